package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sympto/internal/models"
	"sympto/internal/services"
	"sympto/internal/steps"
)

type WizardHandler struct {
	log      *zap.Logger
	sessions *services.SessionManager
	catalog  *models.Catalog
	steps    *steps.Registry
}

func NewWizardHandler(log *zap.Logger, sessions *services.SessionManager, catalog *models.Catalog, registry *steps.Registry) *WizardHandler {
	return &WizardHandler{log: log, sessions: sessions, catalog: catalog, steps: registry}
}

type fieldRequest struct {
	Field models.Field `json:"field" binding:"required"`
	// Value is null to clear the field.
	Value *float64 `json:"value"`
}

func (h *WizardHandler) render(c *gin.Context, status int, s *services.Session) {
	c.JSON(status, gin.H{
		"state": s.Wizard.State(),
		"live":  s.Live.Snapshot(),
	})
}

// Show returns the wizard state for the calling client.
func (h *WizardHandler) Show(c *gin.Context) {
	s, ok := clientSession(c, h.sessions)
	if !ok {
		return
	}
	h.render(c, http.StatusOK, s)
}

func (h *WizardHandler) SetField(c *gin.Context) {
	s, ok := clientSession(c, h.sessions)
	if !ok {
		return
	}

	var req fieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid field update"})
		return
	}

	var err error
	if req.Value == nil {
		err = s.ClearField(req.Field)
	} else {
		err = s.SetField(req.Field, *req.Value)
	}
	if errors.Is(err, models.ErrUnknownField) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		abortWithError(c, err)
		return
	}
	h.render(c, http.StatusOK, s)
}

func (h *WizardHandler) Next(c *gin.Context) {
	s, ok := clientSession(c, h.sessions)
	if !ok {
		return
	}
	// A blocked step is reported through state.errors and the live region.
	if err := s.Next(); err != nil {
		h.render(c, statusFor(err), s)
		return
	}
	h.render(c, http.StatusOK, s)
}

func (h *WizardHandler) Prev(c *gin.Context) {
	s, ok := clientSession(c, h.sessions)
	if !ok {
		return
	}
	if err := s.Prev(); err != nil {
		abortWithError(c, err)
		return
	}
	h.render(c, http.StatusOK, s)
}

func (h *WizardHandler) Submit(c *gin.Context) {
	s, ok := clientSession(c, h.sessions)
	if !ok {
		return
	}

	a, err := s.Submit(c.Request.Context())
	if err != nil {
		h.log.Warn("Submit rejected", zap.String("client_id", s.ID), zap.Error(err))
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"assessment": a,
		"results":    s.Results(),
	})
}

// Reset starts a new assessment, dropping results and the stored draft.
func (h *WizardHandler) Reset(c *gin.Context) {
	s, ok := clientSession(c, h.sessions)
	if !ok {
		return
	}
	if err := s.StartNew(c.Request.Context()); err != nil {
		abortWithError(c, err)
		return
	}
	h.render(c, http.StatusOK, s)
}

// Catalog returns field metadata and the step layout for rendering the form.
func (h *WizardHandler) Catalog(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"fields": h.catalog.Fields,
		"steps":  h.steps.All(),
	})
}
