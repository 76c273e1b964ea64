package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Chudetat/moodlight/internal/database"
)

// retentionPolicy names one table's age cutoff.
type retentionPolicy struct {
	table  string
	column string
	days   int
}

// Scored records stay a month, snapshots a quarter so trend history
// outlives the data that produced it.
var retentionPolicies = []retentionPolicy{
	{"news_scored", "created_at", 30},
	{"social_scored", "created_at", 30},
	{"metric_snapshots", "snapshot_date", 90},
	{"pipeline_runs", "started_at", 30},
}

// CleanupService prunes stale rows from the large tables to keep the
// database from growing without bound. Only rows older than the retention
// window are ever deleted.
type CleanupService struct {
	pool   database.DatabasePool
	logger *logrus.Logger
}

// NewCleanupService creates a new cleanup service.
func NewCleanupService(pool database.DatabasePool, logger *logrus.Logger) *CleanupService {
	return &CleanupService{pool: pool, logger: logger}
}

// Run applies every retention policy once and returns the total rows
// pruned. A failing table is logged and skipped; the rest still run.
func (c *CleanupService) Run(ctx context.Context) int64 {
	var total int64
	now := time.Now().UTC()

	for _, policy := range retentionPolicies {
		cutoff := now.AddDate(0, 0, -policy.days)
		query := fmt.Sprintf("DELETE FROM %s WHERE %s < $1", policy.table, policy.column)

		tag, err := c.pool.Exec(ctx, query, cutoff)
		if err != nil {
			c.logger.WithError(err).WithField("table", policy.table).Warn("Retention pruning failed, skipping table")
			continue
		}
		if deleted := tag.RowsAffected(); deleted > 0 {
			c.logger.WithFields(logrus.Fields{
				"table":   policy.table,
				"deleted": deleted,
				"days":    policy.days,
			}).Info("Pruned stale rows")
			total += deleted
		}
	}
	return total
}
