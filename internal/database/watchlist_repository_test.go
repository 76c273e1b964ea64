package database

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chudetat/moodlight/internal/models"
)

func TestWatchlistRepository_BrandWatchlist(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT username, brand_name FROM brand_watchlist`).
		WillReturnRows(pgxmock.NewRows([]string{"username", "brand_name"}).
			AddRow("jordan", "Acme").
			AddRow("jordan", "Zenith").
			AddRow("sam", "Acme"))

	repo := NewWatchlistRepository(mock)
	watchlist, err := repo.BrandWatchlist(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.Watchlist{
		"jordan": {"Acme", "Zenith"},
		"sam":    {"Acme"},
	}, watchlist)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWatchlistRepository_BrandWatchlist_Empty(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`FROM brand_watchlist`).
		WillReturnRows(pgxmock.NewRows([]string{"username", "brand_name"}))

	repo := NewWatchlistRepository(mock)
	watchlist, err := repo.BrandWatchlist(context.Background())
	require.NoError(t, err)
	assert.Empty(t, watchlist)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWatchlistRepository_TopicWatchlist(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT username, topic_name, is_category FROM topic_watchlist`).
		WillReturnRows(pgxmock.NewRows([]string{"username", "topic_name", "is_category"}).
			AddRow("jordan", "semiconductors", false).
			AddRow("jordan", "technology", true))

	repo := NewWatchlistRepository(mock)
	watchlist, err := repo.TopicWatchlist(context.Background())
	require.NoError(t, err)
	require.Len(t, watchlist["jordan"], 2)
	assert.Equal(t, models.TopicEntry{Name: "semiconductors", IsCategory: false}, watchlist["jordan"][0])
	assert.Equal(t, models.TopicEntry{Name: "technology", IsCategory: true}, watchlist["jordan"][1])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWatchlistRepository_Competitors(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	created := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM brand_competitors\s+WHERE brand_name = \$1\s+ORDER BY confidence DESC`).
		WithArgs("Acme").
		WillReturnRows(pgxmock.NewRows([]string{"brand_name", "competitor_name", "created_at"}).
			AddRow("Acme", "Zenith", created).
			AddRow("Acme", "Northwind", created))

	repo := NewWatchlistRepository(mock)
	competitors, err := repo.Competitors(context.Background(), "Acme")
	require.NoError(t, err)
	require.Len(t, competitors, 2)
	assert.Equal(t, "Zenith", competitors[0].CompetitorName)
	assert.Equal(t, "Acme", competitors[1].Brand)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWatchlistRepository_CompetitorsQueryError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`FROM brand_competitors`).
		WithArgs("Acme").
		WillReturnError(assert.AnError)

	repo := NewWatchlistRepository(mock)
	_, err = repo.Competitors(context.Background(), "Acme")
	assert.ErrorContains(t, err, "failed to load competitors for Acme")
	assert.NoError(t, mock.ExpectationsWereMet())
}
