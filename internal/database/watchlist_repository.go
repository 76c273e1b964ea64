package database

import (
	"context"
	"fmt"

	"github.com/Chudetat/moodlight/internal/models"
)

// WatchlistRepository loads subscriber watchlists and discovered
// competitors. All methods are read-only; the dashboard owns writes.
type WatchlistRepository struct {
	pool DatabasePool
}

// NewWatchlistRepository creates a new watchlist repository.
func NewWatchlistRepository(pool DatabasePool) *WatchlistRepository {
	return &WatchlistRepository{pool: pool}
}

// BrandWatchlist maps each subscriber to the brands they monitor.
func (r *WatchlistRepository) BrandWatchlist(ctx context.Context) (models.Watchlist, error) {
	rows, err := r.pool.Query(ctx, `SELECT username, brand_name FROM brand_watchlist`)
	if err != nil {
		return nil, fmt.Errorf("failed to load brand watchlist: %w", err)
	}
	defer rows.Close()

	watchlist := make(models.Watchlist)
	for rows.Next() {
		var username, brand string
		if err := rows.Scan(&username, &brand); err != nil {
			return nil, fmt.Errorf("failed to scan watchlist row: %w", err)
		}
		watchlist[username] = append(watchlist[username], brand)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating watchlist rows: %w", err)
	}
	return watchlist, nil
}

// TopicWatchlist maps each subscriber to their watched topics.
func (r *WatchlistRepository) TopicWatchlist(ctx context.Context) (models.TopicWatchlist, error) {
	rows, err := r.pool.Query(ctx, `SELECT username, topic_name, is_category FROM topic_watchlist`)
	if err != nil {
		return nil, fmt.Errorf("failed to load topic watchlist: %w", err)
	}
	defer rows.Close()

	watchlist := make(models.TopicWatchlist)
	for rows.Next() {
		var username, topic string
		var isCategory bool
		if err := rows.Scan(&username, &topic, &isCategory); err != nil {
			return nil, fmt.Errorf("failed to scan topic watchlist row: %w", err)
		}
		watchlist[username] = append(watchlist[username], models.TopicEntry{Name: topic, IsCategory: isCategory})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating topic watchlist rows: %w", err)
	}
	return watchlist, nil
}

// Competitors returns the cached competitors for one brand, highest
// confidence first.
func (r *WatchlistRepository) Competitors(ctx context.Context, brand string) ([]models.Competitor, error) {
	query := `
		SELECT brand_name, competitor_name, created_at
		FROM brand_competitors
		WHERE brand_name = $1
		ORDER BY confidence DESC
	`
	rows, err := r.pool.Query(ctx, query, brand)
	if err != nil {
		return nil, fmt.Errorf("failed to load competitors for %s: %w", brand, err)
	}
	defer rows.Close()

	var competitors []models.Competitor
	for rows.Next() {
		var c models.Competitor
		if err := rows.Scan(&c.Brand, &c.CompetitorName, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan competitor row: %w", err)
		}
		competitors = append(competitors, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating competitor rows: %w", err)
	}
	return competitors, nil
}
