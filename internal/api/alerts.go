package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/Chudetat/moodlight/internal/database"
	"github.com/Chudetat/moodlight/internal/models"
)

const defaultAlertLimit = 50

// AlertHandler serves stored alerts and records subscriber feedback.
type AlertHandler struct {
	alerts   *database.AlertRepository
	feedback *database.FeedbackRepository
	logger   *logrus.Logger
}

// NewAlertHandler creates a new alert handler.
func NewAlertHandler(alerts *database.AlertRepository, feedback *database.FeedbackRepository, logger *logrus.Logger) *AlertHandler {
	return &AlertHandler{alerts: alerts, feedback: feedback, logger: logger}
}

// ListAlerts returns recent alerts, optionally filtered by severity and
// brand. GET /api/alerts?severity=critical&brand=Acme&limit=20
func (h *AlertHandler) ListAlerts(c *gin.Context) {
	severity := c.Query("severity")
	if severity != "" {
		switch models.Severity(severity) {
		case models.SeverityInfo, models.SeverityWarning, models.SeverityCritical:
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid severity"})
			return
		}
	}

	limit := defaultAlertLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	alerts, err := h.alerts.List(c.Request.Context(), severity, c.Query("brand"), limit)
	if err != nil {
		h.logger.WithError(err).Error("Could not list alerts")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load alerts"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts, "count": len(alerts)})
}

type feedbackRequest struct {
	Action models.FeedbackAction `json:"action" binding:"required"`
}

// RecordFeedback records one interaction with an alert for the
// authenticated subscriber. POST /api/alerts/:id/feedback
func (h *AlertHandler) RecordFeedback(c *gin.Context) {
	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "action is required"})
		return
	}
	switch req.Action {
	case models.FeedbackExpanded, models.FeedbackThumbsUp, models.FeedbackThumbsDown:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid action"})
		return
	}

	username := c.GetString("username")
	if username == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	record := &models.FeedbackRecord{
		AlertID:   c.Param("id"),
		Username:  username,
		Action:    req.Action,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.feedback.Record(c.Request.Context(), record); err != nil {
		h.logger.WithError(err).Error("Could not record feedback")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record feedback"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "recorded"})
}
