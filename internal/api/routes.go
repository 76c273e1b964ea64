package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/Chudetat/moodlight/internal/config"
	"github.com/Chudetat/moodlight/internal/database"
	"github.com/Chudetat/moodlight/internal/middleware"
)

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Services  Services  `json:"services"`
}

type Services struct {
	Database string `json:"database"`
	Redis    string `json:"redis"`
}

// SetupRoutes wires the alert read/feedback surface onto the router.
// Dashboard rendering and report generation live elsewhere; this API only
// serves stored alerts and records subscriber feedback.
func SetupRoutes(router *gin.Engine, cfg *config.Config, db *database.PostgresDB, redis *database.RedisClient, logger *logrus.Logger) {
	router.GET("/health", healthCheck(db, redis))

	alerts := database.NewAlertRepository(db.Pool)
	feedback := database.NewFeedbackRepository(db.Pool)
	h := NewAlertHandler(alerts, feedback, logger)

	auth := middleware.NewAuthMiddleware(cfg.Security.JWTSecret)

	apiGroup := router.Group("/api")
	{
		apiGroup.GET("/alerts", h.ListAlerts)
		apiGroup.POST("/alerts/:id/feedback", auth.RequireAuth(), h.RecordFeedback)
	}
}

func healthCheck(db *database.PostgresDB, redis *database.RedisClient) gin.HandlerFunc {
	return func(c *gin.Context) {
		response := HealthResponse{
			Status:    "ok",
			Timestamp: time.Now(),
			Version:   "1.0.0",
			Services: Services{
				Database: "ok",
				Redis:    "ok",
			},
		}

		if err := db.HealthCheck(c.Request.Context()); err != nil {
			response.Services.Database = "error"
			response.Status = "degraded"
		}
		if redis != nil {
			if err := redis.HealthCheck(c.Request.Context()); err != nil {
				response.Services.Redis = "error"
				response.Status = "degraded"
			}
		}

		statusCode := http.StatusOK
		if response.Status == "degraded" {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, response)
	}
}
