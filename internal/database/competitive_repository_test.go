package database

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chudetat/moodlight/internal/models"
)

func TestCompetitiveRepository_Latest(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	stored := models.CompetitiveSnapshot{
		Brand:        "Acme",
		ShareOfVoice: map[string]float64{"Acme": 0.55, "Zenith": 0.45},
		Gaps:         map[string]float64{"Zenith": 0.12},
	}
	raw, err := json.Marshal(stored)
	require.NoError(t, err)

	created := time.Date(2026, 8, 27, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM competitive_snapshots\s+WHERE brand_name = \$1`).
		WithArgs("Acme").
		WillReturnRows(pgxmock.NewRows([]string{"snapshot_data", "created_at"}).
			AddRow(raw, created))

	repo := NewCompetitiveRepository(mock)
	snapshot, err := repo.Latest(context.Background(), "Acme")
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	assert.Equal(t, "Acme", snapshot.Brand)
	assert.InDelta(t, 0.45, snapshot.ShareOfVoice["Zenith"], 1e-9)
	assert.Equal(t, created, snapshot.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompetitiveRepository_Latest_NoRows(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`FROM competitive_snapshots`).
		WithArgs("Acme").
		WillReturnError(pgx.ErrNoRows)

	repo := NewCompetitiveRepository(mock)
	snapshot, err := repo.Latest(context.Background(), "Acme")
	require.NoError(t, err)
	assert.Nil(t, snapshot)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompetitiveRepository_Latest_BadPayload(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`FROM competitive_snapshots`).
		WithArgs("Acme").
		WillReturnRows(pgxmock.NewRows([]string{"snapshot_data", "created_at"}).
			AddRow([]byte("{broken"), time.Now().UTC()))

	repo := NewCompetitiveRepository(mock)
	_, err = repo.Latest(context.Background(), "Acme")
	assert.ErrorContains(t, err, "failed to decode competitive snapshot for Acme")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompetitiveRepository_Store(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`INSERT INTO competitive_snapshots`).
		WithArgs("Acme", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	repo := NewCompetitiveRepository(mock)
	err = repo.Store(context.Background(), &models.CompetitiveSnapshot{
		Brand:        "Acme",
		ShareOfVoice: map[string]float64{"Acme": 1.0},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
