package services

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Chudetat/moodlight/internal/config"
	"github.com/Chudetat/moodlight/internal/database"
	"github.com/Chudetat/moodlight/internal/models"
)

// CooldownService suppresses repeat alerts for the same situation. The
// alerts table is the authoritative record; Redis is a best-effort fast
// path that saves a query when the key was seen recently. Redis being down
// never changes the outcome.
type CooldownService struct {
	redis              *database.RedisClient
	alerts             *database.AlertRepository
	logger             *logrus.Logger
	cooldown           time.Duration
	predictiveCooldown time.Duration
}

// NewCooldownService creates a cooldown service. redis may be nil.
func NewCooldownService(cfg *config.Config, redis *database.RedisClient, alerts *database.AlertRepository, logger *logrus.Logger) *CooldownService {
	return &CooldownService{
		redis:              redis,
		alerts:             alerts,
		logger:             logger,
		cooldown:           time.Duration(cfg.Pipeline.CooldownHours) * time.Hour,
		predictiveCooldown: time.Duration(cfg.Pipeline.PredictiveCooldownHours) * time.Hour,
	}
}

// BuildKey derives the dedup identity of an alert:
// alert_type[:metric][:brand][:topic][:username]:date. The metric segment
// applies only to predictive alerts, so one predictive type tracking
// several metrics does not suppress itself.
func BuildKey(a *models.Alert, now time.Time) string {
	parts := []string{string(a.AlertType)}
	if a.AlertType.IsPredictive() {
		if p, ok := a.Payload.(models.PredictivePayload); ok && p.Metric != "" {
			parts = append(parts, p.Metric)
		}
	}
	if a.Brand != "" {
		parts = append(parts, a.Brand)
	}
	if a.Topic != "" {
		parts = append(parts, a.Topic)
	}
	if a.Username != "" {
		parts = append(parts, a.Username)
	}
	parts = append(parts, now.UTC().Format("2006-01-02"))
	return strings.Join(parts, ":")
}

// Window returns the suppression window for an alert type. Predictive
// alerts get a longer window since trends move slowly.
func (s *CooldownService) Window(alertType models.AlertType) time.Duration {
	if alertType.IsPredictive() {
		return s.predictiveCooldown
	}
	return s.cooldown
}

// Suppressed reports whether an alert with the same cooldown key already
// fired within the window. Sets a.CooldownKey as a side effect. Errors on
// the authoritative check fail open: a lookup failure never drops an alert.
func (s *CooldownService) Suppressed(ctx context.Context, a *models.Alert) bool {
	key := BuildKey(a, a.Timestamp)
	a.CooldownKey = key
	window := s.Window(a.AlertType)

	if s.redis != nil {
		n, err := s.redis.Exists(ctx, "cooldown:"+key)
		if err == nil && n > 0 {
			return true
		}
	}

	count, err := s.alerts.CountByCooldownKey(ctx, key, time.Now().UTC().Add(-window))
	if err != nil {
		s.logger.WithError(err).WithField("cooldown_key", key).Warn("Cooldown lookup failed, allowing alert")
		return false
	}
	if count > 0 {
		s.markSeen(ctx, key, window)
		return true
	}
	return false
}

// MarkStored records a just-stored alert in the fast path so the rest of
// the run and near-future runs skip the database check.
func (s *CooldownService) MarkStored(ctx context.Context, a *models.Alert) {
	s.markSeen(ctx, a.CooldownKey, s.Window(a.AlertType))
}

func (s *CooldownService) markSeen(ctx context.Context, key string, window time.Duration) {
	if s.redis == nil || key == "" {
		return
	}
	if _, err := s.redis.SetNX(ctx, "cooldown:"+key, "1", window); err != nil {
		s.logger.WithError(err).Debug("Cooldown cache write failed")
	}
}
