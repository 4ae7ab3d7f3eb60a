package router

import (
	"net/http"
	"time"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/unrolled/secure"
	"go.uber.org/zap"

	"sympto/internal/config"
	"sympto/internal/handlers"
	"sympto/internal/history"
	"sympto/internal/models"
	"sympto/internal/services"
	"sympto/internal/steps"
)

// Deps are the services the routes are served from.
type Deps struct {
	Sessions *services.SessionManager
	History  *history.Service
	Health   handlers.HealthChecker
	Catalog  *models.Catalog
	Steps    *steps.Registry
}

func keyFunc(c *gin.Context) string {
	if clientID := c.GetString(handlers.ClientIDContextKey); clientID != "" {
		return clientID
	}
	return c.ClientIP()
}

func errorHandler(c *gin.Context, info ratelimit.Info) {
	c.Header("Retry-After", info.ResetTime.UTC().Format(http.TimeFormat))
	c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests. Try again later."})
}

func Setup(log *zap.Logger, conf config.ServerConfig, deps Deps) *gin.Engine {
	// Set up a new Gin router, add recovery middleware and request logging.
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger(log))

	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{conf.AllowedOrigin},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", CSRFTokenHeaderKey},
		ExposeHeaders:    []string{CSRFTokenHeaderKey},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	store := cookie.NewStore([]byte(conf.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		HttpOnly: true,
		Secure:   conf.Production,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   86400 * 30,
	})
	router.Use(sessions.Sessions("sympto_session", store))

	// --- Now that sessions are initialized, other middleware can use them ---
	router.Use(ClientIdentity())
	router.Use(CSRFProtection())
	router.Use(BearerToken())

	secureMiddleware := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "same-origin",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		IsDevelopment:         !conf.Production,
	})
	router.Use(func(c *gin.Context) {
		err := secureMiddleware.Process(c.Writer, c.Request)
		if err != nil {
			c.Abort()
			return
		}
	})

	// Handlers and routes
	wizardHandler := handlers.NewWizardHandler(log, deps.Sessions, deps.Catalog, deps.Steps)
	resultsHandler := handlers.NewResultsHandler(log, deps.Sessions)
	historyHandler := handlers.NewHistoryHandler(log, deps.History, deps.Health)

	rateLimitStore := ratelimit.InMemoryStore(&ratelimit.InMemoryOptions{
		Rate:  time.Minute,
		Limit: 5,
	})
	limiter := ratelimit.RateLimiter(rateLimitStore, &ratelimit.Options{
		ErrorHandler: errorHandler,
		KeyFunc:      keyFunc,
	})

	router.GET("/healthz", historyHandler.Health)

	assessmentRoutes := router.Group("/assessment")
	{
		assessmentRoutes.GET("", wizardHandler.Show)
		assessmentRoutes.GET("/catalog", wizardHandler.Catalog)
		assessmentRoutes.POST("/field", wizardHandler.SetField)
		assessmentRoutes.POST("/next", wizardHandler.Next)
		assessmentRoutes.POST("/prev", wizardHandler.Prev)
		assessmentRoutes.POST("/submit", limiter, wizardHandler.Submit)
		assessmentRoutes.POST("/reset", wizardHandler.Reset)
		assessmentRoutes.GET("/results", resultsHandler.ShowResults)
		assessmentRoutes.POST("/results/analyze", limiter, resultsHandler.RetryAnalysis)
	}

	historyRoutes := router.Group("/history")
	{
		historyRoutes.GET("", historyHandler.List)
		historyRoutes.GET("/compare", historyHandler.Compare)
		historyRoutes.GET("/chart", historyHandler.Chart)
		historyRoutes.DELETE("/:id", historyHandler.Delete)
		historyRoutes.DELETE("", historyHandler.DeleteAll)
	}

	return router
}
