package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chudetat/moodlight/internal/config"
	"github.com/Chudetat/moodlight/internal/database"
	"github.com/Chudetat/moodlight/internal/models"
)

func newTestPredictive(t *testing.T) (*PredictiveDetector, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)

	logger := logrus.New()
	analyzer := NewTrendAnalyzer(&config.Config{}, database.NewSnapshotRepository(mock), logger)
	return NewPredictiveDetector(analyzer, logger), mock
}

func fallingTrend(values ...float64) *models.Trend {
	trend, _ := FitTrend(points(values...))
	return trend
}

func TestLevelValue(t *testing.T) {
	thresholds := DefaultThresholds()

	v, ok := levelValue(thresholds, models.AlertMoodShift, "warning")
	assert.True(t, ok)
	assert.Equal(t, 0.15, v)

	v, ok = levelValue(thresholds, models.AlertMoodShift, "critical")
	assert.True(t, ok)
	assert.Equal(t, 0.25, v)

	// Levels that are not explicitly configured do not exist.
	_, ok = levelValue(thresholds, models.AlertBrandWhiteSpace, "warning")
	assert.False(t, ok)
	_, ok = levelValue(thresholds, models.AlertType("unknown"), "warning")
	assert.False(t, ok)
}

func TestCheckCrossings_GlobalMetric(t *testing.T) {
	detector, mock := newTestPredictive(t)
	defer mock.Close()

	// Empathy falling 0.05/day from 0.20 crosses the 0.15 warning line in
	// one day, on a perfectly linear trend.
	trends := map[string]*models.Trend{
		"avg_empathy_news": fallingTrend(0.30, 0.25, 0.20),
	}

	alerts := detector.checkCrossings(context.Background(), models.ScopeGlobal, "", "",
		trends, globalMetricThresholds, DefaultThresholds())
	require.Len(t, alerts, 1)

	a := alerts[0]
	assert.Equal(t, models.AlertType("predictive_mood_shift"), a.AlertType)
	assert.Equal(t, models.SeverityInfo, a.Severity)
	assert.Equal(t, "Trending toward mood shift threshold", a.Title)
	assert.Empty(t, a.Brand)

	payload := a.Payload.(models.PredictivePayload)
	assert.Equal(t, "avg_empathy_news", payload.Metric)
	require.NotNil(t, payload.Crossing)
	assert.Equal(t, 1.0, payload.Crossing.DaysToCrossing)
	assert.Equal(t, models.ConfidenceHigh, payload.Crossing.Confidence)
}

func TestCheckCrossings_BrandMetric(t *testing.T) {
	detector, mock := newTestPredictive(t)
	defer mock.Close()

	trends := map[string]*models.Trend{
		"velocity": fallingTrend(0.40, 0.50, 0.60),
	}

	alerts := detector.checkCrossings(context.Background(), models.ScopeBrand, "Acme", "jordan",
		trends, brandMetricThresholds, DefaultThresholds())
	require.Len(t, alerts, 1)

	a := alerts[0]
	assert.Equal(t, models.AlertType("predictive_brand_velocity_spike"), a.AlertType)
	assert.Equal(t, "Acme: trending toward brand velocity spike", a.Title)
	assert.Equal(t, "Acme", a.Brand)
	assert.Equal(t, "jordan", a.Username)
}

func TestCheckCrossings_LowConfidenceSkipped(t *testing.T) {
	detector, mock := newTestPredictive(t)
	defer mock.Close()

	// Same trajectory but a noisy fit; low confidence is not actionable.
	trends := map[string]*models.Trend{
		"avg_empathy_news": {Slope: -0.05, CurrentValue: 0.20, RSquared: 0.3, DataPoints: 5},
	}

	alerts := detector.checkCrossings(context.Background(), models.ScopeGlobal, "", "",
		trends, globalMetricThresholds, DefaultThresholds())
	assert.Empty(t, alerts)
}

func TestDetectCompoundSignals(t *testing.T) {
	detector, mock := newTestPredictive(t)
	defer mock.Close()

	// Three metrics sitting in the 80-100% band of their thresholds.
	trends := map[string]*models.Trend{
		"velocity":           {CurrentValue: 0.60},
		"density":            {CurrentValue: 0.63},
		"mention_count_news": {CurrentValue: 4.5},
	}

	alerts := detector.detectCompoundSignals(context.Background(), models.ScopeBrand, "Acme",
		trends, DefaultThresholds())
	require.Len(t, alerts, 1)

	a := alerts[0]
	assert.Equal(t, models.AlertCompoundSignal, a.AlertType)
	assert.Equal(t, models.SeverityInfo, a.Severity)
	assert.Equal(t, "Compound signal detected for Acme", a.Title)
	assert.Equal(t, "Acme", a.Brand)

	payload := a.Payload.(models.CompoundSignalPayload)
	assert.Equal(t, 3, payload.Score)
	assert.Len(t, payload.Signals, 3)
}

func TestDetectCompoundSignals_BelowThreshold(t *testing.T) {
	detector, mock := newTestPredictive(t)
	defer mock.Close()

	// Two converging signals are not enough, and a metric already past its
	// threshold does not count as converging.
	trends := map[string]*models.Trend{
		"velocity":           {CurrentValue: 0.60},
		"density":            {CurrentValue: 0.75},
		"mention_count_news": {CurrentValue: 4.5},
	}

	alerts := detector.detectCompoundSignals(context.Background(), models.ScopeBrand, "Acme",
		trends, DefaultThresholds())
	assert.Empty(t, alerts)
}

func TestDetectCompoundSignals_MomentumContribution(t *testing.T) {
	detector, mock := newTestPredictive(t)
	defer mock.Close()

	day := time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC)

	// density's momentum lookup fails and only skips that signal.
	mock.ExpectQuery(`FROM metric_snapshots`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("no history"))
	// velocity's history shows a widening daily gain: accelerating.
	mock.ExpectQuery(`FROM metric_snapshots`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"snapshot_date", "metric_value"}).
			AddRow(day, 0.40).
			AddRow(day.AddDate(0, 0, 1), 0.45).
			AddRow(day.AddDate(0, 0, 2), 0.60))

	trends := map[string]*models.Trend{
		"density":  {CurrentValue: 0.63},
		"velocity": {CurrentValue: 0.60},
	}

	alerts := detector.detectCompoundSignals(context.Background(), models.ScopeBrand, "Acme",
		trends, DefaultThresholds())
	require.Len(t, alerts, 1)

	payload := alerts[0].Payload.(models.CompoundSignalPayload)
	assert.Equal(t, 3, payload.Score)
	assert.Contains(t, payload.Signals, "velocity accelerating (strong)")
	assert.NoError(t, mock.ExpectationsWereMet())
}
