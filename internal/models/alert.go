package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Severity classifies how urgent an alert is.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// AlertType identifies which detector produced an alert and which payload
// variant its Data field carries.
type AlertType string

const (
	// Global detectors
	AlertMoodShift            AlertType = "mood_shift"
	AlertMarketMoodDivergence AlertType = "market_mood_divergence"
	AlertIntensityCluster     AlertType = "intensity_cluster"
	AlertTopicEmergence       AlertType = "topic_emergence"
	AlertRegulatorySpike      AlertType = "regulatory_policy_spike"
	AlertBreakingSignal       AlertType = "breaking_signal"
	AlertGeopoliticalRisk     AlertType = "geopolitical_risk_escalation"

	// Brand detectors
	AlertBrandNewsSurge       AlertType = "brand_news_surge"
	AlertBrandSocialBuzz      AlertType = "brand_social_buzz"
	AlertBrandSentimentShift  AlertType = "brand_sentiment_shift"
	AlertBrandWhiteSpace      AlertType = "brand_white_space"
	AlertBrandVelocitySpike   AlertType = "brand_velocity_spike"
	AlertBrandNarrativeFading AlertType = "brand_narrative_fading"
	AlertBrandSaturation      AlertType = "brand_saturation"
	AlertBrandCrisis          AlertType = "brand_crisis"

	// Topic detectors
	AlertTopicMentionSurge   AlertType = "topic_mention_surge"
	AlertTopicSentimentShift AlertType = "topic_sentiment_shift"
	AlertTopicIntensitySpike AlertType = "topic_intensity_spike"
	AlertTopicVelocitySpike  AlertType = "topic_velocity_spike"
	AlertTopicSaturation     AlertType = "topic_saturation"

	// Competitive detectors
	AlertCompetitorMomentum    AlertType = "competitor_momentum"
	AlertShareOfVoiceShift     AlertType = "share_of_voice_shift"
	AlertCompetitiveWhiteSpace AlertType = "competitive_white_space"

	// Predictive / synthesized
	AlertCompoundSignal  AlertType = "predictive_compound_signal"
	AlertSituationReport AlertType = "situation_report"
)

// PredictivePrefix marks alert types emitted by the crossing predictor,
// e.g. "predictive_mood_shift".
const PredictivePrefix = "predictive_"

// IsPredictive reports whether the alert type was produced by the
// predictive detector family.
func (t AlertType) IsPredictive() bool {
	return len(t) > len(PredictivePrefix) && string(t[:len(PredictivePrefix)]) == PredictivePrefix
}

// Alert is one detection result. Immutable after creation except for the
// Emailed/Investigated flags set by downstream consumers.
type Alert struct {
	ID            string       `json:"id"`
	AlertType     AlertType    `json:"alert_type"`
	Severity      Severity     `json:"severity"`
	Title         string       `json:"title"`
	Summary       string       `json:"summary"`
	Payload       AlertPayload `json:"-"`
	Investigation string       `json:"investigation,omitempty"`
	Brand         string       `json:"brand,omitempty"`
	Topic         string       `json:"topic,omitempty"`
	Username      string       `json:"username,omitempty"`
	CooldownKey   string       `json:"cooldown_key"`
	Emailed       bool         `json:"emailed"`
	Timestamp     time.Time    `json:"timestamp"`
}

// AlertPayload is the per-alert-type structured data variant. Concrete
// payloads are plain structs; they are serialized to JSON only at the
// storage boundary.
type AlertPayload interface {
	PayloadType() AlertType
}

// EncodePayload serializes an alert's payload for persistence. A nil
// payload encodes as an empty JSON object.
func EncodePayload(p AlertPayload) (string, error) {
	if p == nil {
		return "{}", nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode %s payload: %w", p.PayloadType(), err)
	}
	return string(b), nil
}

// MoodShiftPayload backs mood_shift alerts.
type MoodShiftPayload struct {
	Source    string  `json:"source"`
	PrevDay   string  `json:"prev_day"`
	CurrDay   string  `json:"curr_day"`
	PrevScore float64 `json:"prev_score"`
	CurrScore float64 `json:"curr_score"`
	Shift     float64 `json:"shift"`
}

func (MoodShiftPayload) PayloadType() AlertType { return AlertMoodShift }

// DivergencePayload backs market_mood_divergence alerts.
type DivergencePayload struct {
	SocialScore float64 `json:"social_score"`
	MarketScore float64 `json:"market_score"`
	Gap         float64 `json:"gap"`
}

func (DivergencePayload) PayloadType() AlertType { return AlertMarketMoodDivergence }

// IntensityClusterPayload backs intensity_cluster alerts.
type IntensityClusterPayload struct {
	Source           string  `json:"source"`
	HighEmotionCount int     `json:"high_emotion_count"`
	Total            int     `json:"total"`
	Ratio            float64 `json:"ratio"`
}

func (IntensityClusterPayload) PayloadType() AlertType { return AlertIntensityCluster }

// TopicEmergencePayload backs topic_emergence alerts.
type TopicEmergencePayload struct {
	Topic           string  `json:"topic"`
	Count           int     `json:"count"`
	Percentage      float64 `json:"percentage"`
	PriorDaysChecked int    `json:"prior_days_checked"`
}

func (TopicEmergencePayload) PayloadType() AlertType { return AlertTopicEmergence }

// SurgePayload backs mention-surge alerts for brands and topics.
type SurgePayload struct {
	Entity     string  `json:"entity"`
	Source     string  `json:"source"`
	TodayCount int     `json:"today_count"`
	Baseline   float64 `json:"baseline"`
	Multiplier float64 `json:"multiplier"`
}

func (SurgePayload) PayloadType() AlertType { return AlertBrandNewsSurge }

// SentimentShiftPayload backs brand/topic sentiment shift alerts.
type SentimentShiftPayload struct {
	Entity     string  `json:"entity"`
	RollingAvg float64 `json:"rolling_avg"`
	Current    float64 `json:"current"`
	Shift      float64 `json:"shift"`
}

func (SentimentShiftPayload) PayloadType() AlertType { return AlertBrandSentimentShift }

// VLDSPayload backs the velocity/longevity/density/scarcity alert family.
type VLDSPayload struct {
	Entity        string     `json:"entity"`
	Scores        VLDSScores `json:"scores"`
	PrevLongevity float64    `json:"prev_longevity,omitempty"`
}

func (VLDSPayload) PayloadType() AlertType { return AlertBrandVelocitySpike }

// CrisisPayload backs brand_crisis alerts. All three conditions held when
// the alert fired.
type CrisisPayload struct {
	Brand            string  `json:"brand"`
	TodayVolume      int     `json:"today_volume"`
	BaselineVolume   float64 `json:"baseline_volume"`
	AvgEmpathy       float64 `json:"avg_empathy"`
	NegativeShare    float64 `json:"negative_share"`
	DominantEmotion  string  `json:"dominant_emotion"`
}

func (CrisisPayload) PayloadType() AlertType { return AlertBrandCrisis }

// IntensitySpikePayload backs geopolitical and topic intensity alerts.
type IntensitySpikePayload struct {
	Entity       string  `json:"entity,omitempty"`
	AvgIntensity float64 `json:"avg_intensity"`
	Baseline     float64 `json:"baseline"`
	SampleSize   int     `json:"sample_size"`
}

func (IntensitySpikePayload) PayloadType() AlertType { return AlertGeopoliticalRisk }

// CompetitivePayload backs the competitive detector family.
type CompetitivePayload struct {
	Brand        string             `json:"brand"`
	Competitor   string             `json:"competitor,omitempty"`
	ShareOfVoice map[string]float64 `json:"share_of_voice,omitempty"`
	Gaps         map[string]float64 `json:"gaps,omitempty"`
}

func (CompetitivePayload) PayloadType() AlertType { return AlertCompetitorMomentum }

// PredictivePayload backs predictive_* alerts emitted before a threshold
// is crossed.
type PredictivePayload struct {
	Metric   string              `json:"metric"`
	Brand    string              `json:"brand,omitempty"`
	Trend    TrendSummary        `json:"trend"`
	Crossing *CrossingPrediction `json:"crossing,omitempty"`
	Momentum *Momentum           `json:"momentum,omitempty"`
}

func (PredictivePayload) PayloadType() AlertType { return AlertType(PredictivePrefix + "threshold") }

// CompoundSignalPayload backs predictive_compound_signal alerts.
type CompoundSignalPayload struct {
	Score     int      `json:"score"`
	Signals   []string `json:"signals"`
	Scope     string   `json:"scope"`
	ScopeName string   `json:"scope_name,omitempty"`
}

func (CompoundSignalPayload) PayloadType() AlertType { return AlertCompoundSignal }

// CorrelatedAlertRef is a compact reference to one member of a cluster.
type CorrelatedAlertRef struct {
	AlertType AlertType `json:"alert_type"`
	Severity  Severity  `json:"severity"`
	Title     string    `json:"title"`
	Brand     string    `json:"brand,omitempty"`
	Summary   string    `json:"summary"`
}

// SituationReportPayload backs the meta-alert synthesized from a cluster
// of correlated alerts.
type SituationReportPayload struct {
	CorrelatedAlerts []CorrelatedAlertRef `json:"correlated_alerts"`
	AlertTypes       []string             `json:"alert_types"`
	Brands           []string             `json:"brands"`
}

func (SituationReportPayload) PayloadType() AlertType { return AlertSituationReport }
