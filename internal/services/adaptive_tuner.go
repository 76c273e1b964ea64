package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Chudetat/moodlight/internal/config"
	"github.com/Chudetat/moodlight/internal/database"
	"github.com/Chudetat/moodlight/internal/models"
)

// AdaptiveTuner adjusts alert thresholds from feedback data, making noisy
// alert types quieter and valued ones more sensitive.
//
// Guardrails: max one step per cycle, never beyond 0.5x-2x of the design
// default, and no adjustment under the minimum alert volume.
type AdaptiveTuner struct {
	alerts     *database.AlertRepository
	feedback   *database.FeedbackRepository
	thresholds *database.ThresholdRepository
	logger     *logrus.Logger

	lookback  time.Duration
	minAlerts int
	step      float64
}

// NewAdaptiveTuner creates a tuner from the tuning section of the config.
func NewAdaptiveTuner(cfg *config.Config, alerts *database.AlertRepository, feedback *database.FeedbackRepository,
	thresholds *database.ThresholdRepository, logger *logrus.Logger) *AdaptiveTuner {
	return &AdaptiveTuner{
		alerts:     alerts,
		feedback:   feedback,
		thresholds: thresholds,
		logger:     logger,
		lookback:   time.Duration(cfg.Tuning.LookbackDays) * 24 * time.Hour,
		minAlerts:  cfg.Tuning.MinAlerts,
		step:       cfg.Tuning.StepPercent,
	}
}

// Run executes one tuning cycle and returns the changes made, keyed by
// alert type. An empty map means no adjustment was warranted.
func (t *AdaptiveTuner) Run(ctx context.Context) (map[models.AlertType]models.ThresholdChange, error) {
	cutoff := time.Now().UTC().Add(-t.lookback)

	alertCounts, err := t.alerts.CountByTypeSince(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("load alert counts: %w", err)
	}
	summaries, err := t.feedback.Summaries(ctx, cutoff, alertCounts)
	if err != nil {
		return nil, fmt.Errorf("load feedback summaries: %w", err)
	}
	if len(summaries) == 0 {
		t.logger.Info("No feedback data, skipping threshold tuning")
		return map[models.AlertType]models.ThresholdChange{}, nil
	}

	stored, err := t.thresholds.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load thresholds: %w", err)
	}
	// Untuned types start from their design default.
	current := MergeThresholds(stored)
	defaults := DefaultThresholds()

	types := make([]models.AlertType, 0, len(summaries))
	for alertType := range summaries {
		types = append(types, alertType)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	changes := make(map[models.AlertType]models.ThresholdChange)
	for _, alertType := range types {
		stats := summaries[alertType]
		if stats.TotalAlerts < t.minAlerts {
			continue
		}

		engagement := stats.EngagementRate
		approval := stats.ApprovalRate
		thumbsDown := 1 - approval

		var direction string
		var factor float64
		var reason string
		switch {
		case thumbsDown > 0.5 || engagement < 0.1:
			direction = "raise"
			factor = 1 + t.step
			reason = fmt.Sprintf("Low engagement (%.0f%%) or high thumbs-down (%.0f%%) over %d alerts",
				engagement*100, thumbsDown*100, stats.TotalAlerts)
		case approval > 0.6 && engagement > 0.5:
			direction = "lower"
			factor = 1 - t.step
			reason = fmt.Sprintf("High approval (%.0f%%) and engagement (%.0f%%) over %d alerts",
				approval*100, engagement*100, stats.TotalAlerts)
		default:
			continue
		}

		curr := current[alertType]
		def := defaults[alertType]
		newWarning := applyGuardrail(curr.Warning, def.Warning, factor)
		newCritical := applyGuardrail(curr.Critical, def.Critical, factor)

		if floatPtrEqual(newWarning, curr.Warning) && floatPtrEqual(newCritical, curr.Critical) {
			continue
		}

		cfg := models.ThresholdConfig{Warning: newWarning, Critical: newCritical}
		if err := t.thresholds.Update(ctx, alertType, cfg, reason); err != nil {
			t.logger.WithError(err).WithField("alert_type", alertType).Warn("Threshold update failed")
			continue
		}

		changes[alertType] = models.ThresholdChange{
			Direction:   direction,
			Reason:      reason,
			OldWarning:  curr.Warning,
			NewWarning:  newWarning,
			OldCritical: curr.Critical,
			NewCritical: newCritical,
		}
		t.logger.WithFields(logrus.Fields{
			"alert_type": alertType,
			"direction":  direction,
			"reason":     reason,
		}).Info("Adjusted alert threshold")
	}

	return changes, nil
}

// applyGuardrail scales one threshold level, clamped to [0.5x, 2x] of the
// design default. A missing current or default level passes through
// untouched so untunable levels stay untunable.
func applyGuardrail(current, def *float64, factor float64) *float64 {
	if current == nil || def == nil {
		return current
	}
	v := *current * factor
	v = math.Max(*def*0.5, math.Min(*def*2.0, v))
	v = math.Round(v*10000) / 10000
	return &v
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
