package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Chudetat/moodlight/internal/models"
)

// metricThreshold names the alert threshold a metric trends toward.
type metricThreshold struct {
	AlertType models.AlertType
	Level     string
}

// Global metrics checked for threshold approach each run.
var globalMetricThresholds = map[string]metricThreshold{
	"avg_empathy_news":         {models.AlertMoodShift, "warning"},
	"avg_empathy_social":       {models.AlertMoodShift, "warning"},
	"high_emotion_ratio_news":  {models.AlertIntensityCluster, "warning"},
	"high_emotion_ratio_social": {models.AlertIntensityCluster, "warning"},
	"market_sentiment":         {models.AlertMarketMoodDivergence, "warning"},
}

// Brand metrics checked for threshold approach.
var brandMetricThresholds = map[string]metricThreshold{
	"velocity": {models.AlertBrandVelocitySpike, "critical"},
	"density":  {models.AlertBrandSaturation, "warning"},
	"scarcity": {models.AlertBrandWhiteSpace, "critical"},
}

// compoundMapping ties a metric to the threshold it approaches for
// compound-signal scoring. Direction is the side the metric closes in from.
type compoundMapping struct {
	AlertType models.AlertType
	Level     string
	Direction string
}

var compoundMetricMap = map[string]compoundMapping{
	"avg_empathy_news":         {models.AlertMoodShift, "critical", "above"},
	"avg_empathy_social":       {models.AlertMoodShift, "critical", "above"},
	"high_emotion_ratio_news":  {models.AlertIntensityCluster, "critical", "above"},
	"high_emotion_ratio_social": {models.AlertIntensityCluster, "critical", "above"},
	"velocity":                 {models.AlertBrandVelocitySpike, "critical", "above"},
	"density":                  {models.AlertBrandSaturation, "warning", "above"},
	"mention_count_news":       {models.AlertBrandNewsSurge, "critical", "above"},
	"mention_count_social":     {models.AlertBrandSocialBuzz, "critical", "above"},
}

const (
	compoundScoreThreshold = 3
	maxCrossingDays        = 7
)

// PredictiveDetector finds metrics trending toward alert thresholds before
// they cross, and compound situations where several weak signals align.
// Pure statistics over the snapshot history; no model calls.
type PredictiveDetector struct {
	trends *TrendAnalyzer
	logger *logrus.Logger
}

// NewPredictiveDetector creates a new predictive detector.
func NewPredictiveDetector(trends *TrendAnalyzer, logger *logrus.Logger) *PredictiveDetector {
	return &PredictiveDetector{trends: trends, logger: logger}
}

// Run executes all predictive checks for the global scope and every watched
// brand. All emitted alerts carry severity info.
func (d *PredictiveDetector) Run(ctx context.Context, watchlist models.Watchlist, thresholds models.Thresholds) []models.Alert {
	var alerts []models.Alert

	globalTrends := d.loadTrends(ctx, models.ScopeGlobal, "", sortedKeys(globalMetricThresholds))
	alerts = append(alerts, d.checkCrossings(ctx, models.ScopeGlobal, "", "", globalTrends, globalMetricThresholds, thresholds)...)
	alerts = append(alerts, d.detectCompoundSignals(ctx, models.ScopeGlobal, "", globalTrends, thresholds)...)

	for _, username := range sortedKeys(watchlist) {
		for _, brand := range watchlist[username] {
			metrics := append(sortedKeys(brandMetricThresholds),
				"mention_count_news", "mention_count_social", "avg_empathy")
			brandTrends := d.loadTrends(ctx, models.ScopeBrand, brand, metrics)

			brandAlerts := d.checkCrossings(ctx, models.ScopeBrand, brand, username, brandTrends, brandMetricThresholds, thresholds)
			alerts = append(alerts, brandAlerts...)
			alerts = append(alerts, d.detectCompoundSignals(ctx, models.ScopeBrand, brand, brandTrends, thresholds)...)
		}
	}

	return alerts
}

func (d *PredictiveDetector) loadTrends(ctx context.Context, scope models.Scope, scopeName string, metrics []string) map[string]*models.Trend {
	trends := make(map[string]*models.Trend)
	for _, metric := range metrics {
		trend, err := d.trends.ComputeTrend(ctx, scope, scopeName, metric)
		if err != nil {
			continue
		}
		trends[metric] = trend
	}
	return trends
}

func (d *PredictiveDetector) checkCrossings(ctx context.Context, scope models.Scope, scopeName, username string,
	trends map[string]*models.Trend, checks map[string]metricThreshold, thresholds models.Thresholds) []models.Alert {

	var alerts []models.Alert
	for _, metric := range sortedKeys(checks) {
		trend, ok := trends[metric]
		if !ok {
			continue
		}
		check := checks[metric]
		thresholdVal, ok := levelValue(thresholds, check.AlertType, check.Level)
		if !ok {
			continue
		}

		crossing := PredictThresholdCrossing(trend, thresholdVal, maxCrossingDays)
		if crossing == nil || !crossing.Confidence.Actionable() {
			continue
		}

		momentum, _ := d.trends.ComputeMomentum(ctx, scope, scopeName, metric)
		directionNote := ""
		if momentum != nil && momentum.Direction != models.MomentumSteady {
			directionNote = fmt.Sprintf(" and %s (%s)", momentum.Direction, momentum.Magnitude)
		}

		readableType := strings.ReplaceAll(string(check.AlertType), "_", " ")
		title := fmt.Sprintf("Trending toward %s threshold", readableType)
		summary := fmt.Sprintf(
			"%s is trending toward the %s threshold (%g). At current rate, crossing in ~%.1f days%s. Confidence: %s.",
			titleCase(strings.ReplaceAll(metric, "_", " ")), check.Level, thresholdVal,
			crossing.DaysToCrossing, directionNote, crossing.Confidence)
		if scope == models.ScopeBrand {
			title = fmt.Sprintf("%s: trending toward %s", scopeName, readableType)
			summary = fmt.Sprintf(
				"%s for %s is trending toward the %s threshold (%g). Crossing in ~%.1f days%s. Confidence: %s.",
				titleCase(metric), scopeName, check.Level, thresholdVal,
				crossing.DaysToCrossing, directionNote, crossing.Confidence)
		}

		a := newAlert(
			models.AlertType(models.PredictivePrefix+string(check.AlertType)),
			models.SeverityInfo, title, summary,
			models.PredictivePayload{
				Metric:   metric,
				Brand:    scopeName,
				Trend:    trend.Summary(),
				Crossing: crossing,
				Momentum: momentum,
			})
		if scope == models.ScopeBrand {
			a.Brand = scopeName
			a.Username = username
		}
		alerts = append(alerts, a)

		d.logger.WithFields(logrus.Fields{
			"metric":     metric,
			"scope":      scope,
			"entity":     scopeName,
			"days":       crossing.DaysToCrossing,
			"confidence": crossing.Confidence,
		}).Info("Predicted threshold crossing")
	}
	return alerts
}

// detectCompoundSignals scores converging weak signals: +1 for each metric
// within 80% of its threshold, +1 for each accelerating toward it. A total
// of 3 or more fires one compound alert for the scope.
func (d *PredictiveDetector) detectCompoundSignals(ctx context.Context, scope models.Scope, scopeName string,
	trends map[string]*models.Trend, thresholds models.Thresholds) []models.Alert {

	score := 0
	var signals []string

	for _, metric := range sortedKeys(trends) {
		trend := trends[metric]
		mapping, ok := compoundMetricMap[metric]
		if !ok {
			continue
		}
		thresholdVal, ok := levelValue(thresholds, mapping.AlertType, mapping.Level)
		if !ok {
			continue
		}

		current := trend.CurrentValue
		if mapping.Direction == "above" {
			if thresholdVal > 0 {
				progress := current / thresholdVal
				if progress >= 0.8 && progress < 1.0 {
					score++
					signals = append(signals, fmt.Sprintf("%s at %.0f%% of threshold", metric, progress*100))
				}
			}
		} else if current > 0 {
			progress := thresholdVal / current
			if progress >= 0.8 && progress < 1.0 {
				score++
				signals = append(signals, fmt.Sprintf("%s approaching lower threshold", metric))
			}
		}

		momentum, err := d.trends.ComputeMomentum(ctx, scope, scopeName, metric)
		if err != nil || momentum == nil {
			continue
		}
		if mapping.Direction == "above" && momentum.Direction == models.MomentumAccelerating {
			score++
			signals = append(signals, fmt.Sprintf("%s accelerating (%s)", metric, momentum.Magnitude))
		} else if mapping.Direction == "below" && momentum.Direction == models.MomentumDecelerating {
			score++
			signals = append(signals, fmt.Sprintf("%s decelerating toward threshold", metric))
		}
	}

	if score < compoundScoreThreshold {
		return nil
	}

	title := "Compound signal detected"
	if scope == models.ScopeBrand {
		title += " for " + scopeName
	}
	head := signals
	if len(head) > 4 {
		head = head[:4]
	}
	a := newAlert(models.AlertCompoundSignal, models.SeverityInfo, title,
		fmt.Sprintf("%d converging signals detected: %s. Multiple metrics are approaching thresholds simultaneously.",
			score, strings.Join(head, "; ")),
		models.CompoundSignalPayload{
			Score:     score,
			Signals:   signals,
			Scope:     string(scope),
			ScopeName: scopeName,
		})
	if scope == models.ScopeBrand {
		a.Brand = scopeName
	}
	return []models.Alert{a}
}

// levelValue returns the named threshold level only when it is explicitly
// configured; predictive checks skip alert types with no tunable level.
func levelValue(t models.Thresholds, alertType models.AlertType, level string) (float64, bool) {
	cfg, ok := t[alertType]
	if !ok {
		return 0, false
	}
	var v *float64
	if level == "critical" {
		v = cfg.Critical
	} else {
		v = cfg.Warning
	}
	if v == nil {
		return 0, false
	}
	return *v, true
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
