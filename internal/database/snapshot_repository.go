package database

import (
	"context"
	"fmt"
	"time"

	"github.com/Chudetat/moodlight/internal/models"
)

// SnapshotRepository owns the metric_snapshots table: one scalar value per
// (date, scope, scope_name, metric_name). All trend analysis reads from it.
type SnapshotRepository struct {
	pool DatabasePool
}

// NewSnapshotRepository creates a new snapshot repository.
func NewSnapshotRepository(pool DatabasePool) *SnapshotRepository {
	return &SnapshotRepository{pool: pool}
}

// Upsert captures one metric value. Conflicts on the natural key overwrite
// value and sample size, so concurrent detector runs and re-runs are
// idempotent.
func (r *SnapshotRepository) Upsert(ctx context.Context, s models.MetricSnapshot) error {
	query := `
		INSERT INTO metric_snapshots
			(snapshot_date, scope, scope_name, metric_name, metric_value, sample_size)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (snapshot_date, scope, scope_name, metric_name)
		DO UPDATE SET metric_value = EXCLUDED.metric_value,
		              sample_size = EXCLUDED.sample_size,
		              created_at = NOW()
	`

	scopeName := nullableString(s.ScopeName)
	_, err := r.pool.Exec(ctx, query,
		s.Date.UTC().Truncate(24*time.Hour), string(s.Scope), scopeName, s.MetricName, s.Value, s.SampleSize)
	if err != nil {
		return fmt.Errorf("failed to upsert metric snapshot %s/%s/%s: %w", s.Scope, s.ScopeName, s.MetricName, err)
	}
	return nil
}

// History loads a metric's snapshots with date >= cutoff, ordered by date.
func (r *SnapshotRepository) History(ctx context.Context, scope models.Scope, scopeName, metricName string, cutoff time.Time) ([]models.TrendPoint, error) {
	var query string
	var args []interface{}
	if scopeName != "" {
		query = `
			SELECT snapshot_date, metric_value FROM metric_snapshots
			WHERE scope = $1 AND scope_name = $2
			  AND metric_name = $3 AND snapshot_date >= $4
			ORDER BY snapshot_date
		`
		args = []interface{}{string(scope), scopeName, metricName, cutoff}
	} else {
		query = `
			SELECT snapshot_date, metric_value FROM metric_snapshots
			WHERE scope = $1 AND scope_name IS NULL
			  AND metric_name = $2 AND snapshot_date >= $3
			ORDER BY snapshot_date
		`
		args = []interface{}{string(scope), metricName, cutoff}
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot history: %w", err)
	}
	defer rows.Close()

	var points []models.TrendPoint
	for rows.Next() {
		var date time.Time
		var value float64
		if err := rows.Scan(&date, &value); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		points = append(points, models.TrendPoint{Date: date.Format("2006-01-02"), Value: value})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshot rows: %w", err)
	}
	return points, nil
}

// LatestByScope loads the most recent snapshot per metric for one scope,
// across all scope names. Used to assemble investigation context
// (economic indicators, commodity prices).
func (r *SnapshotRepository) LatestByScope(ctx context.Context, scope models.Scope) ([]models.MetricSnapshot, error) {
	query := `
		SELECT DISTINCT ON (scope_name, metric_name)
		       snapshot_date, scope_name, metric_name, metric_value, sample_size
		FROM metric_snapshots
		WHERE scope = $1
		ORDER BY scope_name, metric_name, snapshot_date DESC
	`

	rows, err := r.pool.Query(ctx, query, string(scope))
	if err != nil {
		return nil, fmt.Errorf("failed to load latest %s snapshots: %w", scope, err)
	}
	defer rows.Close()

	var snapshots []models.MetricSnapshot
	for rows.Next() {
		var s models.MetricSnapshot
		var scopeName *string
		if err := rows.Scan(&s.Date, &scopeName, &s.MetricName, &s.Value, &s.SampleSize); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		s.Scope = scope
		if scopeName != nil {
			s.ScopeName = *scopeName
		}
		snapshots = append(snapshots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}
	return snapshots, nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
