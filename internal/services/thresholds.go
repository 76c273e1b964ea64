package services

import "github.com/Chudetat/moodlight/internal/models"

// DefaultThresholds returns the immutable design defaults for every tunable
// alert type. The adaptive tuner clamps adjusted values to [0.5x, 2x] of
// these; they are never mutated in place.
//
// Units vary by family: mood/divergence thresholds are ratios on the 0-1
// empathy scale (detectors convert to 0-100 points for display; the
// crossing predictor compares raw metric values against them directly),
// cluster/VLDS thresholds are ratios in [0,1], surge thresholds are
// baseline multipliers, intensity thresholds are on the 1-5 scale.
func DefaultThresholds() models.Thresholds {
	f := models.Float64Ptr
	return models.Thresholds{
		models.AlertMoodShift:            {Warning: f(0.15), Critical: f(0.25)},
		models.AlertMarketMoodDivergence: {Warning: f(0.25), Critical: f(0.40)},
		models.AlertIntensityCluster:     {Warning: f(0.4), Critical: f(0.6)},
		models.AlertTopicEmergence:       {Warning: f(0.20)},
		models.AlertRegulatorySpike:      {Warning: f(3.0)},
		models.AlertBreakingSignal:       {Warning: f(3.0)},
		models.AlertGeopoliticalRisk:     {Warning: f(3.5), Critical: f(4.2)},

		models.AlertBrandNewsSurge:       {Warning: f(3.0), Critical: f(5.0)},
		models.AlertBrandSocialBuzz:      {Warning: f(3.0), Critical: f(5.0)},
		models.AlertBrandSentimentShift:  {Warning: f(0.15)},
		models.AlertBrandWhiteSpace:      {Critical: f(0.7)},
		models.AlertBrandVelocitySpike:   {Critical: f(0.7)},
		models.AlertBrandNarrativeFading: {Warning: f(0.3)},
		models.AlertBrandSaturation:      {Warning: f(0.7)},
		models.AlertBrandCrisis:          {Critical: f(5.0)},

		models.AlertTopicMentionSurge:   {Warning: f(3.0)},
		models.AlertTopicSentimentShift: {Warning: f(0.15)},
		models.AlertTopicIntensitySpike: {Warning: f(3.5), Critical: f(4.2)},
		models.AlertTopicVelocitySpike:  {Critical: f(0.7)},
		models.AlertTopicSaturation:     {Warning: f(0.7)},

		models.AlertCompetitorMomentum:    {Warning: f(0.3)},
		models.AlertShareOfVoiceShift:     {Warning: f(10), Critical: f(20)},
		models.AlertCompetitiveWhiteSpace: {Warning: f(0.3)},
	}
}

// MergeThresholds overlays stored overrides on the design defaults so
// detectors always see a fully populated table.
func MergeThresholds(overrides models.Thresholds) models.Thresholds {
	merged := DefaultThresholds()
	for alertType, cfg := range overrides {
		base := merged[alertType]
		if cfg.Warning != nil {
			base.Warning = cfg.Warning
		}
		if cfg.Critical != nil {
			base.Critical = cfg.Critical
		}
		merged[alertType] = base
	}
	return merged
}
