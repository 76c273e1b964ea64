package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Chudetat/moodlight/internal/models"
)

// CompetitiveRepository persists one competitive snapshot per brand per
// run, so the next run can diff against it.
type CompetitiveRepository struct {
	pool DatabasePool
}

// NewCompetitiveRepository creates a new competitive snapshot repository.
func NewCompetitiveRepository(pool DatabasePool) *CompetitiveRepository {
	return &CompetitiveRepository{pool: pool}
}

// Latest returns the most recent snapshot for a brand, or nil when none
// has been stored yet.
func (r *CompetitiveRepository) Latest(ctx context.Context, brand string) (*models.CompetitiveSnapshot, error) {
	query := `
		SELECT snapshot_data, created_at
		FROM competitive_snapshots
		WHERE brand_name = $1
		ORDER BY created_at DESC LIMIT 1
	`
	var raw []byte
	var createdAt time.Time
	err := r.pool.QueryRow(ctx, query, brand).Scan(&raw, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load competitive snapshot for %s: %w", brand, err)
	}

	var snapshot models.CompetitiveSnapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode competitive snapshot for %s: %w", brand, err)
	}
	snapshot.CreatedAt = createdAt
	return &snapshot, nil
}

// Store appends the current snapshot for a brand.
func (r *CompetitiveRepository) Store(ctx context.Context, snapshot *models.CompetitiveSnapshot) error {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode competitive snapshot for %s: %w", snapshot.Brand, err)
	}
	query := `
		INSERT INTO competitive_snapshots (brand_name, snapshot_data, created_at)
		VALUES ($1, $2, $3)
	`
	if _, err := r.pool.Exec(ctx, query, snapshot.Brand, raw, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to store competitive snapshot for %s: %w", snapshot.Brand, err)
	}
	return nil
}
