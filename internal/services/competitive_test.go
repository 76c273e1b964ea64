package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chudetat/moodlight/internal/models"
)

func TestComputeCompetitiveSnapshot(t *testing.T) {
	news := brandRecords(day2, "Acme", 10, 0.5, "")
	news = append(news, brandRecords(day2, "Zenith", 50, 0.4, "")...)
	ds := &Dataset{News: news, Now: day2}

	snap := ComputeCompetitiveSnapshot(ds, "Acme", []models.Competitor{
		{Brand: "Acme", CompetitorName: "Zenith"},
	})
	require.NotNil(t, snap)

	assert.Equal(t, 10, snap.Standings["Acme"].MentionCount)
	assert.Equal(t, 50, snap.Standings["Zenith"].MentionCount)
	assert.Equal(t, 16.7, snap.ShareOfVoice["Acme"])
	assert.Equal(t, 83.3, snap.ShareOfVoice["Zenith"])

	assert.Equal(t, -0.4, snap.Gaps["density_gap"])
	assert.Equal(t, 0.1, snap.Gaps["density_brand"])
	assert.Equal(t, 0.5, snap.Gaps["density_comp_avg"])
}

func standingsSnapshot(brand string, sov map[string]float64, velocities map[string]float64) *models.CompetitiveSnapshot {
	standings := make(map[string]models.BrandStanding)
	for name, v := range velocities {
		standings[name] = models.BrandStanding{VLDS: &models.VLDSScores{Velocity: v}}
	}
	return &models.CompetitiveSnapshot{Brand: brand, Standings: standings, ShareOfVoice: sov, Gaps: map[string]float64{}}
}

func TestRunCompetitiveDetectors_CompetitorMomentum(t *testing.T) {
	current := standingsSnapshot("Acme",
		map[string]float64{"Acme": 40, "Zenith": 60},
		map[string]float64{"Acme": 0.3, "Zenith": 0.8})

	alerts := RunCompetitiveDetectors("Acme", "jordan", current, nil, DefaultThresholds())
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertCompetitorMomentum, alerts[0].AlertType)
	assert.Equal(t, "Acme", alerts[0].Brand)
	payload := alerts[0].Payload.(models.CompetitivePayload)
	assert.Equal(t, "Zenith", payload.Competitor)

	// A 0.3 gap does not clear the strictly-greater-than threshold.
	current = standingsSnapshot("Acme",
		map[string]float64{"Acme": 50, "Zenith": 50},
		map[string]float64{"Acme": 0.3, "Zenith": 0.6})
	assert.Empty(t, RunCompetitiveDetectors("Acme", "jordan", current, nil, DefaultThresholds()))
}

func TestRunCompetitiveDetectors_ShareOfVoiceDrop(t *testing.T) {
	previous := standingsSnapshot("Acme",
		map[string]float64{"Acme": 55, "Zenith": 45},
		map[string]float64{"Acme": 0.5, "Zenith": 0.5})
	current := standingsSnapshot("Acme",
		map[string]float64{"Acme": 40, "Zenith": 60},
		map[string]float64{"Acme": 0.5, "Zenith": 0.5})

	alerts := RunCompetitiveDetectors("Acme", "jordan", current, previous, DefaultThresholds())
	drops := alertsOfType(alerts, models.AlertShareOfVoiceShift)
	require.Len(t, drops, 2) // the 15pt drop plus the overtake
	assert.Equal(t, models.SeverityWarning, drops[0].Severity)
}

func TestRunCompetitiveDetectors_Overtake(t *testing.T) {
	previous := standingsSnapshot("Acme",
		map[string]float64{"Acme": 52, "Zenith": 48},
		map[string]float64{"Acme": 0.5, "Zenith": 0.5})
	current := standingsSnapshot("Acme",
		map[string]float64{"Acme": 48, "Zenith": 52},
		map[string]float64{"Acme": 0.5, "Zenith": 0.5})

	alerts := RunCompetitiveDetectors("Acme", "jordan", current, previous, DefaultThresholds())
	// The 4pt dip stays under the drop threshold, so only the reversal
	// fires, and a reversal is always critical.
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertShareOfVoiceShift, alerts[0].AlertType)
	assert.Equal(t, models.SeverityCritical, alerts[0].Severity)
	assert.Contains(t, alerts[0].Title, "overtook")
}

func TestRunCompetitiveDetectors_WhiteSpace(t *testing.T) {
	current := standingsSnapshot("Acme",
		map[string]float64{"Acme": 50, "Zenith": 50},
		map[string]float64{"Acme": 0.5, "Zenith": 0.5})
	current.Gaps = map[string]float64{
		"density_gap":      -0.4,
		"density_brand":    0.1,
		"density_comp_avg": 0.5,
	}

	alerts := RunCompetitiveDetectors("Acme", "jordan", current, nil, DefaultThresholds())
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertCompetitiveWhiteSpace, alerts[0].AlertType)
}

func TestRunCompetitiveDetectors_NilSnapshots(t *testing.T) {
	assert.Empty(t, RunCompetitiveDetectors("Acme", "jordan", nil, nil, DefaultThresholds()))
}

func alertsOfType(alerts []models.Alert, alertType models.AlertType) []models.Alert {
	var out []models.Alert
	for _, a := range alerts {
		if a.AlertType == alertType {
			out = append(out, a)
		}
	}
	return out
}
