package services

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chudetat/moodlight/internal/models"
)

// stubGenerator is a canned Generator for tests.
type stubGenerator struct {
	text    string
	err     error
	prompts []string
}

func (g *stubGenerator) Generate(_ context.Context, _, userPrompt string, _ int) (string, error) {
	g.prompts = append(g.prompts, userPrompt)
	if g.err != nil {
		return "", g.err
	}
	return g.text, nil
}

func testAlert(alertType models.AlertType, brand, title, summary string) models.Alert {
	a := newAlert(alertType, models.SeverityWarning, title, summary, nil)
	a.Brand = brand
	return a
}

func TestRelatedness(t *testing.T) {
	// Same brand alone clears the threshold.
	a := testAlert(models.AlertBrandNewsSurge, "Acme", "x", "y")
	b := testAlert(models.AlertBrandSentimentShift, "Acme", "p", "q")
	assert.GreaterOrEqual(t, relatedness(&a, &b), 3)

	// A causal pair plus one shared significant word also clears it,
	// in either order.
	c := testAlert(models.AlertBreakingSignal, "", "Hostile coverage wave", "")
	d := testAlert(models.AlertBrandCrisis, "Acme", "Hostile volume climbing", "")
	assert.Equal(t, 3, relatedness(&c, &d))
	assert.Equal(t, 3, relatedness(&d, &c))

	// Unrelated types with disjoint wording never correlate.
	e := testAlert(models.AlertMoodShift, "", "Empathy dropped", "")
	f := testAlert(models.AlertTopicSaturation, "", "Crowded conversation", "")
	assert.Less(t, relatedness(&e, &f), 3)
}

func TestRelatedness_SocialBuzzCausalPairs(t *testing.T) {
	// Breaking news and emerging topics drive social mention surges the
	// same way they drive news surges.
	breaking := testAlert(models.AlertBreakingSignal, "", "Hostile coverage wave", "")
	emergence := testAlert(models.AlertTopicEmergence, "", "Fresh conversation thread", "")
	buzz := testAlert(models.AlertBrandSocialBuzz, "Acme", "Hostile posts climbing", "")

	assert.Equal(t, 3, relatedness(&breaking, &buzz))
	assert.Equal(t, 3, relatedness(&buzz, &breaking))
	assert.Equal(t, 2, relatedness(&emergence, &buzz))
}

func TestSignificantWords(t *testing.T) {
	words := significantWords("The surge was detected across hostile coverage")
	// Stopwords and short words are dropped; "surge" and "detected" are
	// noise words even though they are long enough.
	assert.False(t, words["the"])
	assert.False(t, words["was"])
	assert.False(t, words["surge"])
	assert.True(t, words["hostile"])
	assert.True(t, words["coverage"])
	assert.True(t, words["across"])
}

func TestCorrelate_ClustersRelatedAlerts(t *testing.T) {
	correlator := NewCorrelator(&stubGenerator{text: "report"}, logrus.New())

	alerts := []models.Alert{
		testAlert(models.AlertBrandNewsSurge, "Acme", "Acme surge", ""),
		testAlert(models.AlertMoodShift, "", "Unrelated empathy swing", ""),
		testAlert(models.AlertBrandCrisis, "Acme", "Acme crisis", ""),
	}

	clusters := correlator.Correlate(alerts)
	require.Len(t, clusters, 1)
	require.Len(t, clusters[0], 2)
	assert.Equal(t, models.AlertBrandNewsSurge, clusters[0][0].AlertType)
	assert.Equal(t, models.AlertBrandCrisis, clusters[0][1].AlertType)
}

func TestCorrelate_TransitiveClustering(t *testing.T) {
	correlator := NewCorrelator(&stubGenerator{text: "report"}, logrus.New())

	// A relates to B and B to C through the shared brand; union-find
	// pulls all three into one cluster.
	alerts := []models.Alert{
		testAlert(models.AlertBrandNewsSurge, "Acme", "a", ""),
		testAlert(models.AlertBrandSentimentShift, "Acme", "b", ""),
		testAlert(models.AlertBrandCrisis, "Acme", "c", ""),
	}

	clusters := correlator.Correlate(alerts)
	require.Len(t, clusters, 1)
	assert.Len(t, clusters[0], 3)
}

func TestCorrelate_TooFewAlerts(t *testing.T) {
	correlator := NewCorrelator(&stubGenerator{}, logrus.New())
	assert.Nil(t, correlator.Correlate(nil))
	assert.Nil(t, correlator.Correlate([]models.Alert{testAlert(models.AlertMoodShift, "", "x", "")}))
}

func TestGenerateSituationReport(t *testing.T) {
	gen := &stubGenerator{text: "The signals share a single cause."}
	correlator := NewCorrelator(gen, logrus.New())

	cluster := []models.Alert{
		testAlert(models.AlertBrandNewsSurge, "Acme", "Acme news surge", "surge summary"),
		testAlert(models.AlertBrandCrisis, "Acme", "Acme crisis", "crisis summary"),
		testAlert(models.AlertBreakingSignal, "", "Breaking volume", "breaking summary"),
		testAlert(models.AlertMoodShift, "", "Mood dropped", "mood summary"),
	}
	cluster[0].Username = "jordan"

	report := correlator.GenerateSituationReport(context.Background(), cluster)
	assert.Equal(t, models.AlertSituationReport, report.AlertType)
	assert.Equal(t, models.SeverityCritical, report.Severity)
	assert.Equal(t, "Situation Report: Brand News Surge + Brand Crisis + Breaking Signal (+1 more)", report.Title)
	assert.Equal(t, "The signals share a single cause.", report.Investigation)
	assert.Equal(t, "Acme", report.Brand)
	assert.Equal(t, "jordan", report.Username)
	assert.Contains(t, report.Summary, "4 correlated signals detected:")

	payload := report.Payload.(models.SituationReportPayload)
	assert.Len(t, payload.CorrelatedAlerts, 4)
	assert.Equal(t, []string{"Acme"}, payload.Brands)
	// Alert types are deduplicated and sorted for stable output.
	assert.Equal(t, []string{"brand_crisis", "brand_news_surge", "breaking_signal", "mood_shift"}, payload.AlertTypes)

	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "CORRELATED ALERTS (4 signals detected simultaneously)")
}

func TestGenerateSituationReport_GenerationFailure(t *testing.T) {
	correlator := NewCorrelator(&stubGenerator{err: errors.New("service down")}, logrus.New())

	cluster := []models.Alert{
		testAlert(models.AlertBrandNewsSurge, "Acme", "a", ""),
		testAlert(models.AlertBrandCrisis, "Acme", "b", ""),
	}
	report := correlator.GenerateSituationReport(context.Background(), cluster)
	assert.Equal(t, "Situation report generation failed: service down", report.Investigation)
	assert.Equal(t, models.SeverityCritical, report.Severity)
}
