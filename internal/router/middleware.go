package router

import (
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"sympto/internal/apiclient"
	"sympto/internal/handlers"
)

const clientIDSessionKey = "clientID"

// ClientIdentity gives every browser a stable client ID, kept in the cookie session, and puts
// it in the context for the handlers.
func ClientIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		clientID, ok := session.Get(clientIDSessionKey).(string)
		if !ok || uuid.Validate(clientID) != nil {
			clientID = uuid.NewString()
			session.Set(clientIDSessionKey, clientID)
			if err := session.Save(); err != nil {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to save session"})
				return
			}
		}

		c.Set(handlers.ClientIDContextKey, clientID)
		c.Next()
	}
}

// BearerToken forwards the caller's Authorization bearer token to the assessment API by
// attaching it to the request context.
func BearerToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if token, ok := strings.CutPrefix(header, "Bearer "); ok && token != "" {
			c.Request = c.Request.WithContext(apiclient.WithToken(c.Request.Context(), token))
		}
		c.Next()
	}
}
