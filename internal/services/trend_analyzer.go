package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Chudetat/moodlight/internal/config"
	"github.com/Chudetat/moodlight/internal/database"
	"github.com/Chudetat/moodlight/internal/models"
)

// ErrInsufficientData is returned when a metric has fewer than three
// snapshot points in the lookback window. Callers treat it as "no trend",
// not a failure.
var ErrInsufficientData = errors.New("insufficient data for trend")

const minTrendPoints = 3

// TrendAnalyzer derives trends, momentum, and threshold-crossing
// predictions from stored metric snapshots. All math is plain least
// squares; no model state survives between calls.
type TrendAnalyzer struct {
	snapshots    *database.SnapshotRepository
	logger       *logrus.Logger
	lookbackDays int
}

// NewTrendAnalyzer creates a new trend analyzer.
func NewTrendAnalyzer(cfg *config.Config, snapshots *database.SnapshotRepository, logger *logrus.Logger) *TrendAnalyzer {
	lookback := cfg.Pipeline.TrendLookbackDays
	if lookback <= 0 {
		lookback = 7
	}
	return &TrendAnalyzer{
		snapshots:    snapshots,
		logger:       logger,
		lookbackDays: lookback,
	}
}

// ComputeTrend loads the metric's snapshot history inside the lookback
// window and fits an ordinary least squares line over the ordered index
// sequence.
func (a *TrendAnalyzer) ComputeTrend(ctx context.Context, scope models.Scope, scopeName, metricName string) (*models.Trend, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -a.lookbackDays)
	points, err := a.snapshots.History(ctx, scope, scopeName, metricName, cutoff)
	if err != nil {
		return nil, fmt.Errorf("load snapshot history for %s: %w", metricName, err)
	}
	return FitTrend(points)
}

// FitTrend runs the regression over an ordered point series. Exposed so
// detectors holding in-memory histories can reuse the same math.
func FitTrend(points []models.TrendPoint) (*models.Trend, error) {
	n := len(points)
	if n < minTrendPoints {
		return nil, ErrInsufficientData
	}

	// OLS over x = 0..n-1
	var sumX, sumY, sumXY, sumXX float64
	for i, p := range points {
		x := float64(i)
		sumX += x
		sumY += p.Value
		sumXY += x * p.Value
		sumXX += x * x
	}
	fn := float64(n)
	denom := fn*sumXX - sumX*sumX
	var slope, intercept float64
	if denom != 0 {
		slope = (fn*sumXY - sumX*sumY) / denom
		intercept = (sumY - slope*sumX) / fn
	}

	mean := sumY / fn
	var ssRes, ssTot float64
	for i, p := range points {
		pred := slope*float64(i) + intercept
		ssRes += (p.Value - pred) * (p.Value - pred)
		ssTot += (p.Value - mean) * (p.Value - mean)
	}
	rSquared := 0.0
	if ssTot > 0 {
		rSquared = 1 - ssRes/ssTot
	}

	return &models.Trend{
		Slope:        slope,
		RSquared:     rSquared,
		CurrentValue: points[n-1].Value,
		DataPoints:   n,
		History:      points,
	}, nil
}

// ComputeMomentum re-derives the trend and classifies the second
// derivative of its value series.
func (a *TrendAnalyzer) ComputeMomentum(ctx context.Context, scope models.Scope, scopeName, metricName string) (*models.Momentum, error) {
	trend, err := a.ComputeTrend(ctx, scope, scopeName, metricName)
	if err != nil {
		return nil, err
	}
	return MomentumFromTrend(trend), nil
}

// MomentumFromTrend derives velocity/acceleration from a trend's history.
func MomentumFromTrend(trend *models.Trend) *models.Momentum {
	values := trend.History
	diffs := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		diffs = append(diffs, values[i].Value-values[i-1].Value)
	}
	if len(diffs) == 0 {
		return &models.Momentum{Direction: models.MomentumSteady, Magnitude: models.MagnitudeWeak}
	}

	velocity := diffs[len(diffs)-1]
	acceleration := 0.0
	if len(diffs) >= 2 {
		acceleration = diffs[len(diffs)-1] - diffs[len(diffs)-2]
	}

	direction := models.MomentumSteady
	if math.Abs(acceleration) >= 0.001 {
		if acceleration > 0 {
			direction = models.MomentumAccelerating
		} else {
			direction = models.MomentumDecelerating
		}
	}

	current := trend.CurrentValue
	relAccel := math.Abs(acceleration)
	if current != 0 {
		relAccel = math.Abs(acceleration / current)
	}
	magnitude := models.MagnitudeWeak
	switch {
	case relAccel > 0.1:
		magnitude = models.MagnitudeStrong
	case relAccel > 0.03:
		magnitude = models.MagnitudeModerate
	}

	return &models.Momentum{
		Velocity:     round4(velocity),
		Acceleration: round4(acceleration),
		Direction:    direction,
		Magnitude:    magnitude,
	}
}

// PredictThresholdCrossing estimates when a trending metric will cross the
// threshold at its current rate. Returns nil when the metric is already
// past the threshold, not moving toward it, or would take longer than
// maxDays to arrive.
func PredictThresholdCrossing(trend *models.Trend, threshold float64, maxDays int) *models.CrossingPrediction {
	if trend == nil {
		return nil
	}
	slope := trend.Slope
	current := trend.CurrentValue

	if (slope > 0 && current >= threshold) || (slope < 0 && current <= threshold) {
		return nil
	}
	if slope == 0 {
		return nil
	}
	if slope > 0 && threshold < current {
		return nil
	}
	if slope < 0 && threshold > current {
		return nil
	}

	days := (threshold - current) / slope
	if days <= 0 || days > float64(maxDays) {
		return nil
	}

	confidence := models.ConfidenceLow
	switch {
	case trend.RSquared > 0.7:
		confidence = models.ConfidenceHigh
	case trend.RSquared > 0.4:
		confidence = models.ConfidenceMedium
	}

	return &models.CrossingPrediction{
		DaysToCrossing: math.Round(days*10) / 10,
		PredictedValue: round4(threshold),
		Confidence:     confidence,
	}
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
