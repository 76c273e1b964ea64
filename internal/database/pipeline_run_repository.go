package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PipelineRunRepository records one bookkeeping row per batch execution.
type PipelineRunRepository struct {
	pool DatabasePool
}

// NewPipelineRunRepository creates a new pipeline-run repository.
func NewPipelineRunRepository(pool DatabasePool) *PipelineRunRepository {
	return &PipelineRunRepository{pool: pool}
}

// Start inserts a running row and returns its ID.
func (r *PipelineRunRepository) Start(ctx context.Context, pipelineName string) (string, error) {
	id := uuid.New().String()
	query := `
		INSERT INTO pipeline_runs (id, pipeline_name, status, started_at)
		VALUES ($1, $2, 'running', $3)
	`
	if _, err := r.pool.Exec(ctx, query, id, pipelineName, time.Now().UTC()); err != nil {
		return "", fmt.Errorf("failed to start pipeline run: %w", err)
	}
	return id, nil
}

// Complete marks a run as succeeded with the number of alerts stored.
func (r *PipelineRunRepository) Complete(ctx context.Context, id string, rowCount int) error {
	query := `
		UPDATE pipeline_runs
		SET status = 'success', row_count = $2, completed_at = $3
		WHERE id = $1
	`
	if _, err := r.pool.Exec(ctx, query, id, rowCount, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to complete pipeline run: %w", err)
	}
	return nil
}

// Fail marks a run as failed with the terminal error message.
func (r *PipelineRunRepository) Fail(ctx context.Context, id string, errMsg string) error {
	query := `
		UPDATE pipeline_runs
		SET status = 'failed', error_message = $2, completed_at = $3
		WHERE id = $1
	`
	if _, err := r.pool.Exec(ctx, query, id, errMsg, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to mark pipeline run failed: %w", err)
	}
	return nil
}
