package router

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"sympto/internal/utils"
)

// Define keys for storing the token in the session and context.
const (
	csrfTokenSessionKey = "csrf_token"
	csrfTokenFormKey    = "_csrf"
	csrfTokenContextKey = "csrf_token"
	CSRFTokenHeaderKey  = "X-CSRF-Token"
)

// CSRFProtection issues a per-session token and requires it back on unsafe methods. The token
// is echoed in the X-CSRF-Token response header so the front end can read it.
func CSRFProtection() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)

		token, _ := session.Get(csrfTokenSessionKey).(string)
		if token == "" {
			newToken, err := utils.GenerateSecureToken(32)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate CSRF token"})
				return
			}
			token = newToken
			session.Set(csrfTokenSessionKey, token)
			if err := session.Save(); err != nil {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to save session"})
				return
			}
		}

		c.Set(csrfTokenContextKey, token)
		c.Header(CSRFTokenHeaderKey, token)

		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
			// Get token from the header first (fetch requests), then the form.
			submitted := c.GetHeader(CSRFTokenHeaderKey)
			if submitted == "" {
				submitted = c.PostForm(csrfTokenFormKey)
			}
			if submitted == "" || !utils.TokensEqual(submitted, token) {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Invalid CSRF token"})
				return
			}
		}

		c.Next()
	}
}
