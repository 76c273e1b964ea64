package database

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Chudetat/moodlight/internal/models"
)

// RecordsRepository reads the scored datasets the acquisition collaborators
// produce. The engine never parses raw feeds; rows arrive pre-scored.
type RecordsRepository struct {
	pool DatabasePool
}

// NewRecordsRepository creates a new records repository.
func NewRecordsRepository(pool DatabasePool) *RecordsRepository {
	return &RecordsRepository{pool: pool}
}

// News loads scored news items created after the cutoff.
func (r *RecordsRepository) News(ctx context.Context, cutoff time.Time) ([]models.ScoredRecord, error) {
	query := `
		SELECT id, COALESCE(title, ''), COALESCE(text, ''), COALESCE(source, ''),
		       COALESCE(topic, ''), COALESCE(country, ''), COALESCE(intensity, 0),
		       empathy_score, COALESCE(dominant_emotion, ''), created_at
		FROM news_scored
		WHERE created_at >= $1
	`
	return r.scanRecords(ctx, query, cutoff, "news")
}

// Social loads scored social posts created after the cutoff.
func (r *RecordsRepository) Social(ctx context.Context, cutoff time.Time) ([]models.ScoredRecord, error) {
	query := `
		SELECT id, COALESCE(title, ''), COALESCE(text, ''), COALESCE(source, ''),
		       COALESCE(topic, ''), COALESCE(country, ''), COALESCE(intensity, 0),
		       empathy_score, COALESCE(dominant_emotion, ''), created_at
		FROM social_scored
		WHERE created_at >= $1
	`
	return r.scanRecords(ctx, query, cutoff, "social")
}

func (r *RecordsRepository) scanRecords(ctx context.Context, query string, cutoff time.Time, kind string) ([]models.ScoredRecord, error) {
	rows, err := r.pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s records: %w", kind, err)
	}
	defer rows.Close()

	var records []models.ScoredRecord
	for rows.Next() {
		var rec models.ScoredRecord
		var empathy *float64
		if err := rows.Scan(&rec.ID, &rec.Title, &rec.Text, &rec.Source, &rec.Topic,
			&rec.Country, &rec.Intensity, &empathy, &rec.DominantEmotion, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan %s record: %w", kind, err)
		}
		if empathy != nil {
			rec.EmpathyScore = *empathy
			rec.HasEmpathyScore = true
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s records: %w", kind, err)
	}
	return records, nil
}

// Markets loads market/economic/commodity observations with a trading day
// after the cutoff. Values stay exact decimals until the analysis boundary.
func (r *RecordsRepository) Markets(ctx context.Context, cutoff time.Time) ([]models.MarketTick, error) {
	query := `
		SELECT symbol, value, COALESCE(market_sentiment, 0.5), latest_trading_day
		FROM markets
		WHERE latest_trading_day >= $1
	`
	rows, err := r.pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to load market rows: %w", err)
	}
	defer rows.Close()

	var ticks []models.MarketTick
	for rows.Next() {
		var t models.MarketTick
		var value string
		if err := rows.Scan(&t.Symbol, &value, &t.Sentiment, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan market row: %w", err)
		}
		d, err := decimal.NewFromString(value)
		if err != nil {
			return nil, fmt.Errorf("invalid market value for %s: %w", t.Symbol, err)
		}
		t.Value = d
		ticks = append(ticks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating market rows: %w", err)
	}
	return ticks, nil
}
