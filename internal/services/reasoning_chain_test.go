package services

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chudetat/moodlight/internal/config"
	"github.com/Chudetat/moodlight/internal/database"
	"github.com/Chudetat/moodlight/internal/models"
)

// seqGenerator returns one scripted response per call, in order. A nil
// entry simulates a generation failure on that call.
type seqGenerator struct {
	responses []*string
	calls     int
}

func resp(s string) *string { return &s }

func (g *seqGenerator) Generate(_ context.Context, _, _ string, _ int) (string, error) {
	if g.calls >= len(g.responses) {
		return "", errors.New("unexpected generation call")
	}
	r := g.responses[g.calls]
	g.calls++
	if r == nil {
		return "", errors.New("generation failed")
	}
	return *r, nil
}

func newTestChain(t *testing.T, gen *seqGenerator) (*ChainService, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)

	cfg := &config.Config{AI: config.AIConfig{MaxTokensPerStep: 600}}
	svc := NewChainService(cfg, gen,
		database.NewAlertRepository(mock),
		database.NewSnapshotRepository(mock),
		logrus.New())
	return svc, mock
}

func TestChainSteps(t *testing.T) {
	assert.Len(t, ChainSteps(models.AlertMoodShift), 3)
	assert.Len(t, ChainSteps(models.AlertTopicEmergence), 4)
	assert.Len(t, ChainSteps(models.AlertBrandCrisis), 5)

	// Predictive types always get the full chain; unknown types the default.
	assert.Len(t, ChainSteps(models.AlertType("predictive_mood_shift")), 5)
	assert.Len(t, ChainSteps(models.AlertType("something_new")), 3)
}

func TestShouldUseChain(t *testing.T) {
	assert.True(t, ShouldUseChain(&models.Alert{AlertType: models.AlertType("predictive_mood_shift")}))
	assert.True(t, ShouldUseChain(&models.Alert{AlertType: models.AlertBrandCrisis, Severity: models.SeverityCritical}))
	assert.True(t, ShouldUseChain(&models.Alert{AlertType: models.AlertCompetitorMomentum, Severity: models.SeverityWarning}))
	assert.False(t, ShouldUseChain(&models.Alert{AlertType: models.AlertMoodShift, Severity: models.SeverityWarning}))
	// Critical severity forces a chain for any type.
	assert.True(t, ShouldUseChain(&models.Alert{AlertType: models.AlertMoodShift, Severity: models.SeverityCritical}))
}

func TestChainRun_Complete(t *testing.T) {
	gen := &seqGenerator{responses: []*string{
		resp("The mood dropped sharply overnight.\nConfidence: 0.8"),
		resp("1. Primary cause: coordinated negative coverage of the sector\n" +
			"2. Contributing factor: weak market close amplifying sentiment\n" +
			"Confidence: 0.7"),
		resp("Overall confidence: 82\nRecommendation: ACT_NOW\nReasoning: strong agreement across steps."),
	}}
	svc, mock := newTestChain(t, gen)
	defer mock.Close()

	alert := &models.Alert{
		AlertType: models.AlertMoodShift,
		Severity:  models.SeverityCritical,
		Title:     "Mood dropped 25 points",
		Summary:   "Average empathy fell from 0.55 to 0.30.",
	}
	result := svc.Run(context.Background(), alert, nil)
	require.NotNil(t, result)

	assert.Equal(t, models.ChainComplete, result.ChainStatus)
	require.Len(t, result.Steps, 3)
	assert.Equal(t, models.StepSituation, result.Steps[0].Step)
	assert.InDelta(t, 0.8, result.Steps[0].Confidence, 1e-9)
	assert.Equal(t, models.StepCausal, result.Steps[1].Step)
	require.Len(t, result.Steps[1].LikelyCauses, 2)
	assert.Contains(t, result.Steps[1].LikelyCauses[0], "coordinated negative coverage")
	assert.Equal(t, models.StepConfidence, result.Steps[2].Step)
	assert.InDelta(t, 0.82, result.Steps[2].Confidence, 1e-9)

	assert.Equal(t, 82, result.OverallConfidence)
	assert.Equal(t, models.RecommendActNow, result.Recommendation)
	assert.Equal(t, "Mood dropped 25 points — Immediate action recommended", result.Summary)
	assert.Equal(t, 3, gen.calls)
}

func TestChainRun_ConfidenceBailout(t *testing.T) {
	gen := &seqGenerator{responses: []*string{
		resp("Too little data to say anything.\nConfidence: 0.1"),
	}}
	svc, mock := newTestChain(t, gen)
	defer mock.Close()

	alert := &models.Alert{AlertType: models.AlertMoodShift, Title: "Mood dropped"}
	result := svc.Run(context.Background(), alert, nil)
	require.NotNil(t, result)

	assert.Equal(t, models.ChainPartial, result.ChainStatus)
	require.Len(t, result.Steps, 1)
	// Without a terminal confidence step the overall score is the mean of
	// completed step confidences and the recommendation stays monitor.
	assert.Equal(t, 10, result.OverallConfidence)
	assert.Equal(t, models.RecommendMonitor, result.Recommendation)
	assert.Equal(t, "Mood dropped", result.Summary)
	assert.Equal(t, 1, gen.calls)
}

func TestChainRun_StepFailureStopsChain(t *testing.T) {
	gen := &seqGenerator{responses: []*string{
		resp("Situation looks contained.\nConfidence: 0.9"),
		nil,
	}}
	svc, mock := newTestChain(t, gen)
	defer mock.Close()

	alert := &models.Alert{AlertType: models.AlertMoodShift, Title: "Mood dropped"}
	result := svc.Run(context.Background(), alert, nil)
	require.NotNil(t, result)

	assert.Equal(t, models.ChainPartial, result.ChainStatus)
	require.Len(t, result.Steps, 1)
	assert.Equal(t, 90, result.OverallConfidence)
}

func TestChainRun_FirstStepFailureReturnsNil(t *testing.T) {
	gen := &seqGenerator{responses: []*string{nil}}
	svc, mock := newTestChain(t, gen)
	defer mock.Close()

	alert := &models.Alert{AlertType: models.AlertMoodShift, Title: "Mood dropped"}
	assert.Nil(t, svc.Run(context.Background(), alert, nil))
}

func TestInvestigate(t *testing.T) {
	gen := &seqGenerator{responses: []*string{
		resp("  ANALYSIS: something happened.\n\nIMPLICATIONS: it matters.\n\nWATCH:\n- the metric  "),
	}}
	svc, mock := newTestChain(t, gen)
	defer mock.Close()

	alert := &models.Alert{AlertType: models.AlertMoodShift, Title: "Mood dropped", Summary: "details"}
	text, err := svc.Investigate(context.Background(), alert, nil)
	require.NoError(t, err)
	assert.Equal(t, "ANALYSIS: something happened.\n\nIMPLICATIONS: it matters.\n\nWATCH:\n- the metric", text)

	gen = &seqGenerator{responses: []*string{nil}}
	svc, mock2 := newTestChain(t, gen)
	defer mock2.Close()
	_, err = svc.Investigate(context.Background(), alert, nil)
	assert.Error(t, err)
}

func TestParseConfidence(t *testing.T) {
	assert.InDelta(t, 0.85, parseConfidence("Some analysis.\nConfidence: 0.85"), 1e-9)
	assert.InDelta(t, 0.9, parseConfidence("confidence: .9"), 1e-9)
	assert.InDelta(t, 0.75, parseConfidence("Confidence: 75%"), 1e-9)
	// Out-of-range decimals clamp to 1.
	assert.InDelta(t, 1.0, parseConfidence("Confidence: 1.5"), 1e-9)
	// Missing or mangled output defaults to neutral.
	assert.InDelta(t, 0.5, parseConfidence("no score given"), 1e-9)
	assert.InDelta(t, 0.5, parseConfidence("Confidence: high"), 1e-9)
}

func TestParseTerminal(t *testing.T) {
	overall, rec := parseTerminal("Overall confidence: 82\nRecommendation: ACT_NOW")
	assert.Equal(t, 82, overall)
	assert.Equal(t, models.RecommendActNow, rec)

	overall, rec = parseTerminal("Overall confidence: 30\nRecommendation: INVESTIGATE_FURTHER")
	assert.Equal(t, 30, overall)
	assert.Equal(t, models.RecommendInvestigateFurther, rec)

	// No parsable output lands on the neutral defaults.
	overall, rec = parseTerminal("the model rambled")
	assert.Equal(t, 50, overall)
	assert.Equal(t, models.RecommendMonitor, rec)

	// Scores above 100 clamp.
	overall, _ = parseTerminal("Overall confidence: 150")
	assert.Equal(t, 100, overall)

	// Spelled-out recommendations count too.
	_, rec = parseTerminal("You should act now on this.")
	assert.Equal(t, models.RecommendActNow, rec)
}

func TestExtractNumberedItems(t *testing.T) {
	text := "intro line\n" +
		"1. Primary cause: negative coverage wave\n" +
		"2) Contributing factor: market weakness\n" +
		"- also this dashed line counts here\n" +
		"3. tiny\n" +
		"closing line"
	items := extractNumberedItems(text, 5)
	require.Len(t, items, 3)
	assert.Equal(t, "Primary cause: negative coverage wave", items[0])
	assert.Equal(t, "Contributing factor: market weakness", items[1])
	assert.Equal(t, "also this dashed line counts here", items[2])

	// The limit caps output.
	assert.Len(t, extractNumberedItems(text, 2), 2)
}

func TestExtractBulletItems(t *testing.T) {
	text := "Recommended actions:\n" +
		"- Brief the communications team today\n" +
		"• Prepare a holding statement\n" +
		"- ok\n" +
		"1. numbered lines are ignored here\n"
	items := extractBulletItems(text, 5)
	require.Len(t, items, 2)
	assert.Equal(t, "Brief the communications team today", items[0])
	assert.Equal(t, "Prepare a holding statement", items[1])
}
