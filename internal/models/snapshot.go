package models

import "time"

// Scope partitions metric snapshots by the kind of entity they describe.
type Scope string

const (
	ScopeGlobal    Scope = "global"
	ScopeBrand     Scope = "brand"
	ScopeTopic     Scope = "topic"
	ScopeEconomic  Scope = "economic"
	ScopeCommodity Scope = "commodity"
)

// MetricSnapshot is one scalar metric value for one (date, scope, entity,
// metric) key. Unique per natural key; upserted, never deleted by the engine.
type MetricSnapshot struct {
	Date       time.Time `json:"snapshot_date"`
	Scope      Scope     `json:"scope"`
	ScopeName  string    `json:"scope_name,omitempty"`
	MetricName string    `json:"metric_name"`
	Value      float64   `json:"metric_value"`
	SampleSize int       `json:"sample_size"`
}

// TrendPoint is one (date, value) observation in a trend's history.
type TrendPoint struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// Trend is a linear fit over a metric's recent snapshot history. Derived,
// never persisted.
type Trend struct {
	Slope        float64      `json:"slope"`
	RSquared     float64      `json:"r_squared"`
	CurrentValue float64      `json:"current_value"`
	DataPoints   int          `json:"data_points"`
	History      []TrendPoint `json:"values"`
}

// TrendSummary is the compact form embedded in alert payloads.
type TrendSummary struct {
	Slope        float64 `json:"slope"`
	RSquared     float64 `json:"r_squared"`
	CurrentValue float64 `json:"current_value"`
}

// Summary strips the history for embedding in a payload.
func (t *Trend) Summary() TrendSummary {
	return TrendSummary{Slope: t.Slope, RSquared: t.RSquared, CurrentValue: t.CurrentValue}
}

// MomentumDirection classifies the second derivative of a trend.
type MomentumDirection string

const (
	MomentumAccelerating MomentumDirection = "accelerating"
	MomentumSteady       MomentumDirection = "steady"
	MomentumDecelerating MomentumDirection = "decelerating"
)

// MomentumMagnitude buckets |acceleration/current| at 0.03 and 0.10.
type MomentumMagnitude string

const (
	MagnitudeWeak     MomentumMagnitude = "weak"
	MagnitudeModerate MomentumMagnitude = "moderate"
	MagnitudeStrong   MomentumMagnitude = "strong"
)

// Momentum is the first/second-derivative behavior of a trend.
type Momentum struct {
	Velocity     float64           `json:"velocity"`
	Acceleration float64           `json:"acceleration"`
	Direction    MomentumDirection `json:"direction"`
	Magnitude    MomentumMagnitude `json:"magnitude"`
}

// CrossingConfidence grades a threshold-crossing prediction by the fit's R².
type CrossingConfidence string

const (
	ConfidenceHigh   CrossingConfidence = "high"
	ConfidenceMedium CrossingConfidence = "medium"
	ConfidenceLow    CrossingConfidence = "low"
)

// Actionable reports whether callers should act on the prediction.
func (c CrossingConfidence) Actionable() bool {
	return c == ConfidenceHigh || c == ConfidenceMedium
}

// CrossingPrediction estimates when a trending metric will cross a threshold.
type CrossingPrediction struct {
	DaysToCrossing float64            `json:"days_to_crossing"`
	PredictedValue float64            `json:"predicted_value"`
	Confidence     CrossingConfidence `json:"confidence"`
}
