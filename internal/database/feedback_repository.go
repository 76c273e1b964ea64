package database

import (
	"context"
	"fmt"
	"time"

	"github.com/Chudetat/moodlight/internal/models"
)

// FeedbackRepository persists user reactions to alerts (expanded,
// thumbs up, thumbs down) and aggregates them for the adaptive tuner.
type FeedbackRepository struct {
	pool DatabasePool
}

// NewFeedbackRepository creates a new feedback repository.
func NewFeedbackRepository(pool DatabasePool) *FeedbackRepository {
	return &FeedbackRepository{pool: pool}
}

// Record stores one feedback action. Duplicate (alert, user, action) tuples
// are ignored so a user mashing the same button counts once.
func (r *FeedbackRepository) Record(ctx context.Context, fb *models.FeedbackRecord) error {
	query := `
		INSERT INTO alert_feedback (alert_id, username, action, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (alert_id, username, action) DO NOTHING
	`
	_, err := r.pool.Exec(ctx, query, fb.AlertID, fb.Username, string(fb.Action), fb.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record feedback: %w", err)
	}
	return nil
}

// Summaries aggregates feedback per alert type newer than the cutoff.
// Engagement and approval rates are computed against the caller-supplied
// alert counts; types with zero stored alerts are skipped.
func (r *FeedbackRepository) Summaries(ctx context.Context, cutoff time.Time, alertCounts map[models.AlertType]int) (map[models.AlertType]models.FeedbackSummary, error) {
	query := `
		SELECT a.alert_type,
		       COUNT(*) FILTER (WHERE f.action = 'expanded'),
		       COUNT(*) FILTER (WHERE f.action = 'thumbs_up'),
		       COUNT(*) FILTER (WHERE f.action = 'thumbs_down')
		FROM alert_feedback f
		JOIN alerts a ON a.id = f.alert_id
		WHERE f.created_at > $1
		GROUP BY a.alert_type
	`

	rows, err := r.pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate feedback: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.AlertType][3]int)
	for rows.Next() {
		var alertType string
		var expanded, up, down int
		if err := rows.Scan(&alertType, &expanded, &up, &down); err != nil {
			return nil, fmt.Errorf("failed to scan feedback row: %w", err)
		}
		counts[models.AlertType(alertType)] = [3]int{expanded, up, down}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating feedback rows: %w", err)
	}

	summaries := make(map[models.AlertType]models.FeedbackSummary)
	for alertType, c := range counts {
		total := alertCounts[alertType]
		expanded, up, down := c[0], c[1], c[2]
		s := models.FeedbackSummary{
			AlertType:     alertType,
			TotalAlerts:   total,
			ExpandedCount: expanded,
			ThumbsUp:      up,
			ThumbsDown:    down,
			// No votes defaults to a neutral 0.5 so the tuner treats
			// unrated alert types as neither loved nor hated.
			ApprovalRate:   0.5,
			ThumbsDownRate: 0.5,
		}
		if total > 0 {
			s.EngagementRate = float64(expanded) / float64(total)
		}
		if rated := up + down; rated > 0 {
			s.ApprovalRate = float64(up) / float64(rated)
			s.ThumbsDownRate = float64(down) / float64(rated)
		}
		summaries[alertType] = s
	}
	return summaries, nil
}
