// Package handlers exposes the wizard, its results and the assessment history over HTTP.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"sympto/internal/apiclient"
	"sympto/internal/services"
	"sympto/internal/submission"
	"sympto/internal/validation"
	"sympto/internal/wizard"
)

// ClientIDContextKey is where the router's identity middleware leaves the browser client ID.
const ClientIDContextKey = "client_id"

func clientSession(c *gin.Context, sessions *services.SessionManager) (*services.Session, bool) {
	clientID := c.GetString(ClientIDContextKey)
	if clientID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing client session"})
		return nil, false
	}
	return sessions.Get(c.Request.Context(), clientID), true
}

// statusFor maps core errors onto HTTP statuses.
func statusFor(err error) int {
	var (
		verrs  validation.Errors
		subErr *submission.SubmissionError
		apiErr *apiclient.APIError
	)
	switch {
	case errors.As(err, &verrs):
		return http.StatusUnprocessableEntity
	case errors.Is(err, wizard.ErrNotReviewStep),
		errors.Is(err, wizard.ErrSubmitting),
		errors.Is(err, services.ErrRetrying),
		errors.Is(err, services.ErrResultsShown):
		return http.StatusConflict
	case errors.Is(err, services.ErrNoAssessment):
		return http.StatusNotFound
	case errors.Is(err, wizard.ErrNoSubmitter), errors.Is(err, wizard.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.As(err, &subErr):
		return upstreamStatus(subErr.Status)
	case errors.As(err, &apiErr):
		return upstreamStatus(apiErr.Status)
	default:
		return http.StatusInternalServerError
	}
}

// upstreamStatus passes through the API's client errors and reports everything else as a bad
// gateway.
func upstreamStatus(status int) int {
	switch status {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return status
	default:
		return http.StatusBadGateway
	}
}

func abortWithError(c *gin.Context, err error) {
	body := gin.H{"error": err.Error()}
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		body["error"] = "Please correct the highlighted fields."
		body["fields"] = verrs
	}
	c.AbortWithStatusJSON(statusFor(err), body)
}
