package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/Chudetat/moodlight/internal/models"
)

// sourceSlices pairs each record source with its label for detectors that
// scan news and social independently.
func (ds *Dataset) sourceSlices() []struct {
	Label   string
	Records []models.ScoredRecord
} {
	return []struct {
		Label   string
		Records []models.ScoredRecord
	}{
		{"news", ds.News},
		{"social", ds.Social},
	}
}

// MoodShiftDetector fires on large day-over-day swings in average empathy,
// measured in points on a 0-100 scale.
type MoodShiftDetector struct{}

func (d *MoodShiftDetector) Name() string { return "mood_shift" }

func (d *MoodShiftDetector) Run(_ context.Context, ds *Dataset, thresholds models.Thresholds) []models.Alert {
	// Threshold table stores ratios; the comparison happens in points.
	warning := thresholds.Level(models.AlertMoodShift, "warning", 0.15) * 100
	critical := thresholds.Level(models.AlertMoodShift, "critical", 0.25) * 100

	var alerts []models.Alert
	for _, src := range ds.sourceSlices() {
		daily := dailyEmpathyMeans(src.Records)
		if len(daily) < 2 {
			continue
		}
		prev := daily[len(daily)-2]
		curr := daily[len(daily)-1]
		prevPct := prev.Value * 100
		currPct := curr.Value * 100
		shift := currPct - prevPct
		if math.Abs(shift) <= warning {
			continue
		}

		direction := "surged"
		if shift < 0 {
			direction = "dropped"
		}
		severity := models.SeverityWarning
		if math.Abs(shift) > critical {
			severity = models.SeverityCritical
		}
		alerts = append(alerts, newAlert(
			models.AlertMoodShift, severity,
			fmt.Sprintf("Mood %s %.0fpts in %s", direction, math.Abs(shift), src.Label),
			fmt.Sprintf("Average %s empathy score %s from %.0f to %.0f (%+.0fpts day-over-day).",
				src.Label, direction, prevPct, currPct, shift),
			models.MoodShiftPayload{
				Source:    src.Label,
				PrevDay:   prev.Date,
				CurrDay:   curr.Date,
				PrevScore: math.Round(prevPct*10) / 10,
				CurrScore: math.Round(currPct*10) / 10,
				Shift:     math.Round(shift*10) / 10,
			},
		))
	}
	return alerts
}

// MarketMoodDivergenceDetector fires when market sentiment and social mood
// diverge by a large point gap.
type MarketMoodDivergenceDetector struct{}

func (d *MarketMoodDivergenceDetector) Name() string { return "market_mood_divergence" }

func (d *MarketMoodDivergenceDetector) Run(_ context.Context, ds *Dataset, thresholds models.Thresholds) []models.Alert {
	if len(ds.Social) == 0 || len(ds.Markets) == 0 {
		return nil
	}
	socialMean, n := meanEmpathy(ds.Social)
	if n == 0 {
		return nil
	}

	var marketSum float64
	for _, t := range ds.Markets {
		marketSum += t.Sentiment
	}
	marketMean := marketSum / float64(len(ds.Markets))

	socialScore := socialMean * 100
	marketScore := marketMean * 100
	gap := math.Abs(socialScore - marketScore)

	warning := thresholds.Level(models.AlertMarketMoodDivergence, "warning", 0.25) * 100
	critical := thresholds.Level(models.AlertMarketMoodDivergence, "critical", 0.40) * 100
	if gap <= warning {
		return nil
	}

	socialDir, marketDir := "negative", "bullish"
	if socialScore > marketScore {
		socialDir, marketDir = "positive", "bearish"
	}
	severity := models.SeverityWarning
	if gap > critical {
		severity = models.SeverityCritical
	}
	return []models.Alert{newAlert(
		models.AlertMarketMoodDivergence, severity,
		fmt.Sprintf("Market-mood divergence: %.0fpt gap", gap),
		fmt.Sprintf("Social mood (%.0f) and market sentiment (%.0f) are diverging by %.0f points. Social is %s while markets are %s.",
			socialScore, marketScore, gap, socialDir, marketDir),
		models.DivergencePayload{
			SocialScore: math.Round(socialScore*10) / 10,
			MarketScore: math.Round(marketScore*10) / 10,
			Gap:         math.Round(gap*10) / 10,
		},
	)}
}

// IntensityClusterDetector fires when an unusual share of a source's items
// are highly emotional (empathy score above 0.7).
type IntensityClusterDetector struct{}

func (d *IntensityClusterDetector) Name() string { return "intensity_cluster" }

func (d *IntensityClusterDetector) Run(_ context.Context, ds *Dataset, thresholds models.Thresholds) []models.Alert {
	warning := thresholds.Level(models.AlertIntensityCluster, "warning", 0.4)
	critical := thresholds.Level(models.AlertIntensityCluster, "critical", 0.6)

	var alerts []models.Alert
	for _, src := range ds.sourceSlices() {
		total := len(src.Records)
		if total == 0 {
			continue
		}
		high := 0
		for _, r := range src.Records {
			if r.HasEmpathyScore && r.EmpathyScore > 0.7 {
				high++
			}
		}
		ratio := float64(high) / float64(total)
		if ratio <= warning {
			continue
		}
		severity := models.SeverityWarning
		if ratio > critical {
			severity = models.SeverityCritical
		}
		alerts = append(alerts, newAlert(
			models.AlertIntensityCluster, severity,
			fmt.Sprintf("High-emotion spike in %s: %.0f%% intense", src.Label, ratio*100),
			fmt.Sprintf("%d of %d %s items (%.0f%%) have empathy scores above 0.7, indicating an unusual cluster of emotionally charged content.",
				high, total, src.Label, ratio*100),
			models.IntensityClusterPayload{
				Source:           src.Label,
				HighEmotionCount: high,
				Total:            total,
				Ratio:            math.Round(ratio*1000) / 1000,
			},
		))
	}
	return alerts
}

// TopicEmergenceDetector fires when a topic absent from the prior lookback
// days suddenly dominates today's coverage.
type TopicEmergenceDetector struct{}

func (d *TopicEmergenceDetector) Name() string { return "topic_emergence" }

const topicEmergenceLookbackDays = 3

func (d *TopicEmergenceDetector) Run(_ context.Context, ds *Dataset, thresholds models.Thresholds) []models.Alert {
	byDay := groupByDay(ds.News)
	days := sortedDays(byDay)
	if len(days) < 2 {
		return nil
	}

	latest := days[len(days)-1]
	prior := days[:len(days)-1]
	if len(prior) > topicEmergenceLookbackDays {
		prior = prior[len(prior)-topicEmergenceLookbackDays:]
	}

	priorTopics := make(map[string]bool)
	for _, day := range prior {
		for _, r := range byDay[day] {
			if r.Topic != "" {
				priorTopics[strings.ToLower(r.Topic)] = true
			}
		}
	}

	todayTopics := make(map[string]int)
	totalToday := len(byDay[latest])
	for _, r := range byDay[latest] {
		if r.Topic != "" {
			todayTopics[r.Topic]++
		}
	}
	if totalToday == 0 {
		return nil
	}

	minShare := thresholds.Level(models.AlertTopicEmergence, "warning", 0.20)

	var alerts []models.Alert
	for topic, count := range todayTopics {
		share := float64(count) / float64(totalToday)
		if share <= minShare || priorTopics[strings.ToLower(topic)] {
			continue
		}
		if strings.EqualFold(topic, "other") {
			continue
		}
		alerts = append(alerts, newAlert(
			models.AlertTopicEmergence, models.SeverityCritical,
			fmt.Sprintf("Emerging topic: %s", topic),
			fmt.Sprintf("%q appeared in %d articles (%.0f%% of today's coverage) but was absent from the prior %d day(s). This may signal a breaking development.",
				topic, count, share*100, len(prior)),
			models.TopicEmergencePayload{
				Topic:            topic,
				Count:            count,
				Percentage:       math.Round(share*1000) / 10,
				PriorDaysChecked: len(prior),
			},
		))
	}
	return alerts
}

// Topics whose coverage is treated as regulatory/policy signal.
var regulatoryTopics = map[string]bool{
	"regulation & policy":   true,
	"politics & government": true,
}

// Topics whose intensity is treated as geopolitical risk signal.
var geopoliticalTopics = map[string]bool{
	"war & foreign policy": true,
	"immigration":          true,
	"crime & safety":       true,
}

func topicSubset(records []models.ScoredRecord, topics map[string]bool) []models.ScoredRecord {
	var subset []models.ScoredRecord
	for _, r := range records {
		if topics[strings.ToLower(r.Topic)] {
			subset = append(subset, r)
		}
	}
	return subset
}

// volumeSurge applies the dual surge rule shared by the surge-family
// detectors: a strict multiplier over an established baseline, or a fixed
// floor when the baseline is near zero.
func volumeSurge(counts map[string]int, multiplier, floor float64) (today int, baseline float64, fired bool) {
	days := make([]string, 0, len(counts))
	for d := range counts {
		days = append(days, d)
	}
	if len(days) < 2 {
		return 0, 0, false
	}
	sort.Strings(days)

	today = counts[days[len(days)-1]]
	sum := 0
	for _, d := range days[:len(days)-1] {
		sum += counts[d]
	}
	baseline = float64(sum) / float64(len(days)-1)

	fired = (baseline >= 2 && float64(today) > baseline*multiplier) ||
		(baseline < 2 && float64(today) >= floor)
	return today, baseline, fired
}

// RegulatorySpikeDetector fires on surging volume of regulatory and policy
// coverage.
type RegulatorySpikeDetector struct{}

func (d *RegulatorySpikeDetector) Name() string { return "regulatory_policy_spike" }

func (d *RegulatorySpikeDetector) Run(_ context.Context, ds *Dataset, thresholds models.Thresholds) []models.Alert {
	subset := topicSubset(ds.News, regulatoryTopics)
	if len(subset) == 0 {
		return nil
	}
	multiplier := thresholds.Level(models.AlertRegulatorySpike, "warning", 3.0)
	today, baseline, fired := volumeSurge(dailyCounts(subset), multiplier, 5)
	if !fired {
		return nil
	}
	severity := models.SeverityWarning
	if baseline >= 2 && float64(today) > baseline*multiplier*2 {
		severity = models.SeverityCritical
	}
	return []models.Alert{newAlert(
		models.AlertRegulatorySpike, severity,
		fmt.Sprintf("Regulatory coverage spike: %d items today", today),
		fmt.Sprintf("Regulatory and policy coverage jumped to %d items today against a baseline of %.1f/day. Policy moves often precede market and brand impact.",
			today, baseline),
		models.SurgePayload{
			Entity:     "regulatory",
			Source:     "news",
			TodayCount: today,
			Baseline:   math.Round(baseline*10) / 10,
			Multiplier: surgeMultiplier(today, baseline),
		},
	)}
}

// BreakingSignalDetector fires on an abrupt surge in overall news volume,
// the bluntest possible "something is happening" signal.
type BreakingSignalDetector struct{}

func (d *BreakingSignalDetector) Name() string { return "breaking_signal" }

func (d *BreakingSignalDetector) Run(_ context.Context, ds *Dataset, thresholds models.Thresholds) []models.Alert {
	if len(ds.News) == 0 {
		return nil
	}
	multiplier := thresholds.Level(models.AlertBreakingSignal, "warning", 3.0)
	today, baseline, fired := volumeSurge(dailyCounts(ds.News), multiplier, 5)
	if !fired {
		return nil
	}
	return []models.Alert{newAlert(
		models.AlertBreakingSignal, models.SeverityCritical,
		fmt.Sprintf("Breaking signal: news volume at %.1fx baseline", surgeMultiplier(today, baseline)),
		fmt.Sprintf("Overall news volume hit %d items today against a baseline of %.1f/day. A volume surge this broad usually means a breaking development.",
			today, baseline),
		models.SurgePayload{
			Entity:     "all_news",
			Source:     "news",
			TodayCount: today,
			Baseline:   math.Round(baseline*10) / 10,
			Multiplier: surgeMultiplier(today, baseline),
		},
	)}
}

// GeopoliticalRiskDetector fires when average intensity across
// geopolitical topics escalates.
type GeopoliticalRiskDetector struct{}

func (d *GeopoliticalRiskDetector) Name() string { return "geopolitical_risk_escalation" }

func (d *GeopoliticalRiskDetector) Run(_ context.Context, ds *Dataset, thresholds models.Thresholds) []models.Alert {
	subset := topicSubset(ds.News, geopoliticalTopics)
	var sum float64
	var n int
	for _, r := range subset {
		if r.Intensity > 0 {
			sum += float64(r.Intensity)
			n++
		}
	}
	if n < 3 {
		return nil
	}
	avg := sum / float64(n)

	warning := thresholds.Level(models.AlertGeopoliticalRisk, "warning", 3.5)
	critical := thresholds.Level(models.AlertGeopoliticalRisk, "critical", 4.2)
	if avg <= warning {
		return nil
	}
	severity := models.SeverityWarning
	if avg > critical {
		severity = models.SeverityCritical
	}
	return []models.Alert{newAlert(
		models.AlertGeopoliticalRisk, severity,
		fmt.Sprintf("Geopolitical risk escalating: intensity %.1f/5", avg),
		fmt.Sprintf("Average intensity across war, immigration, and crime coverage is %.1f/5 over %d articles, above the %.1f escalation threshold.",
			avg, n, warning),
		models.IntensitySpikePayload{
			Entity:       "geopolitical",
			AvgIntensity: math.Round(avg*100) / 100,
			Baseline:     warning,
			SampleSize:   n,
		},
	)}
}

func surgeMultiplier(today int, baseline float64) float64 {
	return math.Round(float64(today)/math.Max(baseline, 0.1)*10) / 10
}
