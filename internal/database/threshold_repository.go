package database

import (
	"context"
	"fmt"
	"time"

	"github.com/Chudetat/moodlight/internal/models"
)

// ThresholdRepository stores tunable alert thresholds plus an append-only
// audit trail of every change the adaptive tuner makes.
type ThresholdRepository struct {
	pool DatabasePool
}

// NewThresholdRepository creates a new threshold repository.
func NewThresholdRepository(pool DatabasePool) *ThresholdRepository {
	return &ThresholdRepository{pool: pool}
}

// Load returns the current threshold overrides. Alert types without a row
// fall back to their hardcoded defaults.
func (r *ThresholdRepository) Load(ctx context.Context) (models.Thresholds, error) {
	rows, err := r.pool.Query(ctx, `SELECT alert_type, warning_threshold, critical_threshold FROM alert_thresholds`)
	if err != nil {
		return nil, fmt.Errorf("failed to load thresholds: %w", err)
	}
	defer rows.Close()

	thresholds := make(models.Thresholds)
	for rows.Next() {
		var alertType string
		var warning, critical *float64
		if err := rows.Scan(&alertType, &warning, &critical); err != nil {
			return nil, fmt.Errorf("failed to scan threshold row: %w", err)
		}
		thresholds[models.AlertType(alertType)] = models.ThresholdConfig{Warning: warning, Critical: critical}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating threshold rows: %w", err)
	}
	return thresholds, nil
}

// Update upserts one alert type's levels and records the change in the
// audit trail.
func (r *ThresholdRepository) Update(ctx context.Context, alertType models.AlertType, cfg models.ThresholdConfig, reason string) error {
	upsert := `
		INSERT INTO alert_thresholds (alert_type, warning_threshold, critical_threshold, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (alert_type) DO UPDATE SET
			warning_threshold = EXCLUDED.warning_threshold,
			critical_threshold = EXCLUDED.critical_threshold,
			updated_at = EXCLUDED.updated_at
	`
	now := time.Now().UTC()
	if _, err := r.pool.Exec(ctx, upsert, string(alertType), cfg.Warning, cfg.Critical, now); err != nil {
		return fmt.Errorf("failed to update threshold for %s: %w", alertType, err)
	}

	audit := `
		INSERT INTO threshold_changes (alert_type, new_warning, new_critical, reason, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := r.pool.Exec(ctx, audit, string(alertType), cfg.Warning, cfg.Critical, reason, now); err != nil {
		return fmt.Errorf("failed to record threshold change for %s: %w", alertType, err)
	}
	return nil
}
