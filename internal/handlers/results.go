package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sympto/internal/services"
)

type ResultsHandler struct {
	log      *zap.Logger
	sessions *services.SessionManager
}

func NewResultsHandler(log *zap.Logger, sessions *services.SessionManager) *ResultsHandler {
	return &ResultsHandler{log: log, sessions: sessions}
}

// ShowResults returns the client's current assessment, its analysis state and the last error.
func (h *ResultsHandler) ShowResults(c *gin.Context) {
	s, ok := clientSession(c, h.sessions)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.Results())
}

// RetryAnalysis re-runs the analysis of the current assessment.
func (h *ResultsHandler) RetryAnalysis(c *gin.Context) {
	s, ok := clientSession(c, h.sessions)
	if !ok {
		return
	}
	if _, err := s.RetryAnalysis(c.Request.Context()); err != nil {
		h.log.Warn("Analysis retry failed", zap.String("client_id", s.ID), zap.Error(err))
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.Results())
}
