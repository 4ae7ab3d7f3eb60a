package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sympto/internal/apiclient"
	"sympto/internal/history"
	"sympto/internal/models"
)

const defaultChartLimit = 20

// HealthChecker reports on the upstream analysis service.
type HealthChecker interface {
	AIHealth(ctx context.Context) (map[string]any, error)
}

type HistoryHandler struct {
	log     *zap.Logger
	history *history.Service
	health  HealthChecker
}

func NewHistoryHandler(log *zap.Logger, svc *history.Service, health HealthChecker) *HistoryHandler {
	return &HistoryHandler{log: log, history: svc, health: health}
}

type listQuery struct {
	Page      int    `form:"page" binding:"omitempty,min=1"`
	Limit     int    `form:"limit" binding:"omitempty,min=1,max=100"`
	SortBy    string `form:"sortBy" binding:"omitempty,oneof=createdAt updatedAt"`
	SortOrder string `form:"sortOrder" binding:"omitempty,oneof=asc desc"`
}

func (h *HistoryHandler) List(c *gin.Context) {
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid list parameters"})
		return
	}

	page, err := h.history.List(c.Request.Context(), apiclient.ListOptions{
		Page:      q.Page,
		Limit:     q.Limit,
		SortBy:    q.SortBy,
		SortOrder: q.SortOrder,
	})
	if err != nil {
		h.log.Error("Failed to list assessments", zap.Error(err))
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

type compareQuery struct {
	A string `form:"a" binding:"required"`
	B string `form:"b" binding:"required"`
}

func (h *HistoryHandler) Compare(c *gin.Context) {
	var q compareQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Two assessment IDs are required"})
		return
	}

	cmp, err := h.history.CompareByID(c.Request.Context(), q.A, q.B)
	if errors.Is(err, history.ErrSameAssessment) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, cmp)
}

type chartQuery struct {
	Fields string `form:"fields"`
	Limit  int    `form:"limit" binding:"omitempty,min=2,max=100"`
	Format string `form:"format" binding:"omitempty,oneof=json html"`
}

// Chart plots the selected fields across recent assessments. The default is every lab result.
func (h *HistoryHandler) Chart(c *gin.Context) {
	var q chartQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid chart parameters"})
		return
	}

	fields := models.LabFields
	if q.Fields != "" {
		fields = nil
		for _, name := range strings.Split(q.Fields, ",") {
			name = strings.TrimSpace(name)
			if !models.IsField(name) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown field: " + name})
				return
			}
			fields = append(fields, models.Field(name))
		}
	}
	limit := q.Limit
	if limit == 0 {
		limit = defaultChartLimit
	}

	line, err := h.history.Chart(c.Request.Context(), fields, limit)
	if err != nil {
		h.log.Error("Failed to build trend chart", zap.Error(err))
		abortWithError(c, err)
		return
	}

	if q.Format == "html" {
		// The rendered page pulls echarts from its CDN and runs an inline script.
		c.Header("Content-Security-Policy", "default-src 'self'; script-src 'self' https://go-echarts.github.io 'unsafe-inline'")
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.Status(http.StatusOK)
		if err := line.Render(c.Writer); err != nil {
			h.log.Error("Failed to render trend chart", zap.Error(err))
		}
		return
	}

	options, err := json.Marshal(line.JSON())
	if err != nil {
		h.log.Error("Failed to encode trend chart", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to build chart"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"options": json.RawMessage(options)})
}

func (h *HistoryHandler) Delete(c *gin.Context) {
	if err := h.history.Delete(c.Request.Context(), c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *HistoryHandler) DeleteAll(c *gin.Context) {
	if err := h.history.DeleteAll(c.Request.Context()); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Health reports whether the analysis service is reachable.
func (h *HistoryHandler) Health(c *gin.Context) {
	status, err := h.health.AIHealth(c.Request.Context())
	if err != nil {
		h.log.Warn("AI health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "ai": status})
}
