package database

import (
	"context"
	"fmt"
	"time"

	"github.com/Chudetat/moodlight/internal/models"
)

// AlertRepository owns the alerts table. One row per non-deduplicated
// detection; rows are immutable except for the emailed flag.
type AlertRepository struct {
	pool DatabasePool
}

// NewAlertRepository creates a new alert repository.
func NewAlertRepository(pool DatabasePool) *AlertRepository {
	return &AlertRepository{pool: pool}
}

// Insert persists one alert. The payload is serialized to its JSON variant
// here, at the storage boundary only.
func (r *AlertRepository) Insert(ctx context.Context, alert *models.Alert) error {
	payload, err := models.EncodePayload(alert.Payload)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO alerts (id, alert_type, severity, title, summary,
			investigation, data, emailed, cooldown_key, username, brand, topic, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err = r.pool.Exec(ctx, query,
		alert.ID, string(alert.AlertType), string(alert.Severity), alert.Title, alert.Summary,
		nullableString(alert.Investigation), payload, alert.Emailed, alert.CooldownKey,
		nullableString(alert.Username), nullableString(alert.Brand), nullableString(alert.Topic),
		alert.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to insert alert %s: %w", alert.AlertType, err)
	}
	return nil
}

// CountByCooldownKey counts alerts with the given cooldown key stored after
// the cutoff. The cooldown gate treats a nonzero count as "suppress".
func (r *AlertRepository) CountByCooldownKey(ctx context.Context, cooldownKey string, cutoff time.Time) (int64, error) {
	query := `SELECT COUNT(*) FROM alerts WHERE cooldown_key = $1 AND timestamp > $2`

	var count int64
	if err := r.pool.QueryRow(ctx, query, cooldownKey, cutoff).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to check cooldown key: %w", err)
	}
	return count, nil
}

// Recent loads alerts of one type (optionally one brand) newer than the
// cutoff, most recent first. Feeds the reasoning chain's historical step.
func (r *AlertRepository) Recent(ctx context.Context, alertType models.AlertType, brand string, cutoff time.Time, limit int) ([]models.Alert, error) {
	var query string
	var args []interface{}
	if brand != "" {
		query = `
			SELECT id, alert_type, severity, title, summary, cooldown_key, timestamp
			FROM alerts
			WHERE alert_type = $1 AND brand = $2 AND timestamp > $3
			ORDER BY timestamp DESC LIMIT $4
		`
		args = []interface{}{string(alertType), brand, cutoff, limit}
	} else {
		query = `
			SELECT id, alert_type, severity, title, summary, cooldown_key, timestamp
			FROM alerts
			WHERE alert_type = $1 AND timestamp > $2
			ORDER BY timestamp DESC LIMIT $3
		`
		args = []interface{}{string(alertType), cutoff, limit}
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent alerts: %w", err)
	}
	defer rows.Close()

	var alerts []models.Alert
	for rows.Next() {
		var a models.Alert
		var alertType, severity string
		if err := rows.Scan(&a.ID, &alertType, &severity, &a.Title, &a.Summary, &a.CooldownKey, &a.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan alert row: %w", err)
		}
		a.AlertType = models.AlertType(alertType)
		a.Severity = models.Severity(severity)
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alert rows: %w", err)
	}
	return alerts, nil
}

// List loads alerts for the API, filtered by optional severity and brand.
func (r *AlertRepository) List(ctx context.Context, severity, brand string, limit int) ([]models.Alert, error) {
	query := `
		SELECT id, alert_type, severity, title, summary, COALESCE(investigation, ''),
		       COALESCE(brand, ''), COALESCE(topic, ''), COALESCE(username, ''),
		       cooldown_key, emailed, timestamp
		FROM alerts
		WHERE ($1 = '' OR severity = $1)
		  AND ($2 = '' OR brand = $2)
		ORDER BY timestamp DESC
		LIMIT $3
	`

	rows, err := r.pool.Query(ctx, query, severity, brand, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []models.Alert
	for rows.Next() {
		var a models.Alert
		var alertType, sev string
		if err := rows.Scan(&a.ID, &alertType, &sev, &a.Title, &a.Summary, &a.Investigation,
			&a.Brand, &a.Topic, &a.Username, &a.CooldownKey, &a.Emailed, &a.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		a.AlertType = models.AlertType(alertType)
		a.Severity = models.Severity(sev)
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alerts: %w", err)
	}
	return alerts, nil
}

// CountByTypeSince counts stored alerts per type newer than the cutoff.
// The adaptive tuner uses this as the denominator for engagement rates.
func (r *AlertRepository) CountByTypeSince(ctx context.Context, cutoff time.Time) (map[models.AlertType]int, error) {
	query := `
		SELECT alert_type, COUNT(*)
		FROM alerts
		WHERE timestamp > $1
		GROUP BY alert_type
	`

	rows, err := r.pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to count alerts by type: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.AlertType]int)
	for rows.Next() {
		var alertType string
		var count int
		if err := rows.Scan(&alertType, &count); err != nil {
			return nil, fmt.Errorf("failed to scan alert count: %w", err)
		}
		counts[models.AlertType(alertType)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alert counts: %w", err)
	}
	return counts, nil
}

// MarkEmailed sets the emailed flag for the alert with the given cooldown
// key. Called by the notification collaborator after a successful send.
func (r *AlertRepository) MarkEmailed(ctx context.Context, cooldownKey string) error {
	query := `UPDATE alerts SET emailed = true WHERE cooldown_key = $1`
	if _, err := r.pool.Exec(ctx, query, cooldownKey); err != nil {
		return fmt.Errorf("failed to mark alert emailed: %w", err)
	}
	return nil
}
