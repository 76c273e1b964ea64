package services

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chudetat/moodlight/internal/ai"
	"github.com/Chudetat/moodlight/internal/config"
	"github.com/Chudetat/moodlight/internal/database"
	"github.com/Chudetat/moodlight/internal/models"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "abcde", truncate("abcdefgh", 5))
	assert.Equal(t, "", truncate("", 5))

	// Never cuts through a multi-byte rune: "é" is 2 bytes, so a 3-byte
	// cap backs off to the previous boundary.
	assert.Equal(t, "aé", truncate("aéé", 3))
	assert.True(t, utf8.ValidString(truncate("日本語のテキスト", 10)))
}

func TestTagAlerts(t *testing.T) {
	alerts := []models.Alert{
		{AlertType: models.AlertMoodShift},
		{AlertType: models.AlertBrandCrisis},
	}
	tagged := tagAlerts(familyBrand, alerts)
	assert.Len(t, tagged, 2)
	for _, ta := range tagged {
		assert.Equal(t, familyBrand, ta.family)
	}
	assert.Empty(t, tagAlerts(familyGlobal, nil))
}

func TestBuildDetectorJobs(t *testing.T) {
	p := NewPipeline(&config.Config{}, PipelineDeps{}, logrus.New())
	ds := &Dataset{}

	// A brand watched by two subscribers only runs once; each unique brand
	// gets its detectors plus one competitive job.
	watchlist := models.Watchlist{
		"jordan": {"Acme", "Zenith"},
		"sam":    {"Acme"},
	}
	topics := models.TopicWatchlist{
		"jordan": {{Name: "Technology & AI", IsCategory: true}},
	}

	jobs := p.buildDetectorJobs(ds, watchlist, topics, DefaultThresholds())
	expected := len(GlobalDetectors()) +
		2*(len(BrandDetectors())+1) +
		len(TopicDetectors())
	assert.Len(t, jobs, expected)

	// No watchlists leaves just the global detectors.
	jobs = p.buildDetectorJobs(ds, nil, nil, DefaultThresholds())
	assert.Len(t, jobs, len(GlobalDetectors()))
}

func TestTruncateLongErrorMessage(t *testing.T) {
	long := strings.Repeat("x", 600)
	assert.Len(t, truncate(long, 500), 500)
}

// anyAlertArgs matches the thirteen alert-insert arguments without
// constraining their values; these tests only assert how many inserts happen.
var anyAlertArgs = []interface{}{
	pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
	pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
	pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
	pgxmock.AnyArg(),
}

// barrierGenerator blocks every Generate call until released, so a test
// can observe how many calls are in flight at once.
type barrierGenerator struct {
	arrived chan struct{}
	release chan struct{}
}

func (g *barrierGenerator) Generate(ctx context.Context, _, _ string, _ int) (string, error) {
	g.arrived <- struct{}{}
	select {
	case <-g.release:
		return "ANALYSIS: pressure building across channels", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func newProcessTestPipeline(t *testing.T, gen ai.Generator) (*Pipeline, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)

	cfg := &config.Config{
		Pipeline: config.PipelineConfig{CooldownHours: 6, PredictiveCooldownHours: 24, MaxChainWorkers: 2},
		AI:       config.AIConfig{MaxTokensPerStep: 600},
	}
	logger := logrus.New()
	alerts := database.NewAlertRepository(mock)
	snapshots := database.NewSnapshotRepository(mock)

	p := NewPipeline(cfg, PipelineDeps{
		Alerts:   alerts,
		Cooldown: NewCooldownService(cfg, nil, alerts, logger),
		Chain:    NewChainService(cfg, gen, alerts, snapshots, logger),
	}, logger)
	return p, mock
}

func TestProcessAlerts_InvestigatesConcurrently(t *testing.T) {
	gen := &barrierGenerator{arrived: make(chan struct{}), release: make(chan struct{})}
	p, mock := newProcessTestPipeline(t, gen)
	defer mock.Close()

	for i := 0; i < 2; i++ {
		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM alerts WHERE cooldown_key`).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))
	}
	for i := 0; i < 2; i++ {
		mock.ExpectExec(`INSERT INTO alerts`).WithArgs(anyAlertArgs...).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}

	// Both investigations must be in flight before either is released; a
	// sequential loop would stall on the first call.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 2; i++ {
			select {
			case <-gen.arrived:
			case <-time.After(5 * time.Second):
				t.Error("expected two investigations in flight at once")
				close(gen.release)
				return
			}
		}
		close(gen.release)
	}()

	alerts := []models.Alert{
		testAlert(models.AlertMoodShift, "", "Mood dropped", "empathy down"),
		testAlert(models.AlertBrandNewsSurge, "Acme", "Acme coverage climbing", "coverage up"),
	}
	stored := p.processAlerts(context.Background(), alerts, &Dataset{})
	<-done

	assert.Equal(t, 2, stored)
	assert.Contains(t, alerts[0].Investigation, "ANALYSIS")
	assert.Contains(t, alerts[1].Investigation, "ANALYSIS")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessAlerts_InRunDuplicateSuppressed(t *testing.T) {
	gen := &stubGenerator{text: "ANALYSIS: isolated swing"}
	p, mock := newProcessTestPipeline(t, gen)
	defer mock.Close()

	// Both copies share one cooldown key: the gate consults the store for
	// each, but only the first survives to be inserted.
	for i := 0; i < 2; i++ {
		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM alerts WHERE cooldown_key`).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))
	}
	mock.ExpectExec(`INSERT INTO alerts`).WithArgs(anyAlertArgs...).WillReturnResult(pgxmock.NewResult("INSERT", 1))

	alerts := []models.Alert{
		testAlert(models.AlertMoodShift, "", "Mood dropped", "empathy down"),
		testAlert(models.AlertMoodShift, "", "Mood dropped again", "still down"),
	}
	stored := p.processAlerts(context.Background(), alerts, &Dataset{})

	assert.Equal(t, 1, stored)
	assert.NoError(t, mock.ExpectationsWereMet())
}
