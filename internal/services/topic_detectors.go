package services

import (
	"context"
	"fmt"
	"math"

	"github.com/Chudetat/moodlight/internal/models"
)

// Topic surge uses a higher floor than brands: topic-filtered sets are
// broader, so a handful of matches is not a signal.
const topicSurgeFloor = 8

// TopicVLDSDetector runs the VLDS composite over a watched topic's
// filtered coverage.
type TopicVLDSDetector struct{}

func (d *TopicVLDSDetector) Name() string { return "topic_vlds" }

func (d *TopicVLDSDetector) Run(_ context.Context, ds *Dataset, entity Entity, thresholds models.Thresholds) []models.Alert {
	topicRecords := concatRecords(
		filterByTopic(ds.News, entity.Name, entity.IsCategory),
		filterByTopic(ds.Social, entity.Name, entity.IsCategory),
	)
	vlds := ComputeVLDS(topicRecords)
	if vlds == nil {
		return nil
	}

	var alerts []models.Alert

	if vlds.Velocity > thresholds.Level(models.AlertTopicVelocitySpike, "critical", 0.7) {
		a := newAlert(
			models.AlertTopicVelocitySpike, models.SeverityCritical,
			fmt.Sprintf("Velocity spike for topic %q", entity.Name),
			fmt.Sprintf("Conversation around %q is accelerating (velocity: %.2f) across %d posts.",
				entity.Name, vlds.Velocity, vlds.TotalPosts),
			models.VLDSPayload{Entity: entity.Name, Scores: *vlds},
		)
		a.Topic, a.Username = entity.Name, entity.Username
		alerts = append(alerts, a)
	}

	if vlds.Density > thresholds.Level(models.AlertTopicSaturation, "warning", 0.7) {
		a := newAlert(
			models.AlertTopicSaturation, models.SeverityWarning,
			fmt.Sprintf("Topic %q is saturated", entity.Name),
			fmt.Sprintf("%q has a density score of %.2f. The space is crowded; a differentiated angle will be needed to break through.",
				entity.Name, vlds.Density),
			models.VLDSPayload{Entity: entity.Name, Scores: *vlds},
		)
		a.Topic, a.Username = entity.Name, entity.Username
		alerts = append(alerts, a)
	}

	return alerts
}

// TopicMentionSurgeDetector fires on sudden volume spikes for a watched
// topic.
type TopicMentionSurgeDetector struct{}

func (d *TopicMentionSurgeDetector) Name() string { return "topic_mention_surge" }

func (d *TopicMentionSurgeDetector) Run(_ context.Context, ds *Dataset, entity Entity, thresholds models.Thresholds) []models.Alert {
	topicRecords := concatRecords(
		filterByTopic(ds.News, entity.Name, entity.IsCategory),
		filterByTopic(ds.Social, entity.Name, entity.IsCategory),
	)
	if len(topicRecords) == 0 {
		return nil
	}

	multiplier := thresholds.Level(models.AlertTopicMentionSurge, "warning", 3.0)
	today, baseline, fired := volumeSurge(dailyCounts(topicRecords), multiplier, topicSurgeFloor)
	if !fired {
		return nil
	}

	a := newAlert(
		models.AlertTopicMentionSurge, models.SeverityCritical,
		fmt.Sprintf("Mention surge for topic %q", entity.Name),
		fmt.Sprintf("%q appeared in %d items today vs a baseline of %.1f/day. This is a %.1fx spike.",
			entity.Name, today, baseline, surgeMultiplier(today, baseline)),
		models.SurgePayload{
			Entity:     entity.Name,
			Source:     "combined",
			TodayCount: today,
			Baseline:   math.Round(baseline*10) / 10,
			Multiplier: surgeMultiplier(today, baseline),
		},
	)
	a.Topic, a.Username = entity.Name, entity.Username
	return []models.Alert{a}
}

// TopicSentimentShiftDetector mirrors the brand sentiment-shift rule over
// a watched topic.
type TopicSentimentShiftDetector struct{}

func (d *TopicSentimentShiftDetector) Name() string { return "topic_sentiment_shift" }

func (d *TopicSentimentShiftDetector) Run(_ context.Context, ds *Dataset, entity Entity, thresholds models.Thresholds) []models.Alert {
	topicRecords := concatRecords(
		filterByTopic(ds.News, entity.Name, entity.IsCategory),
		filterByTopic(ds.Social, entity.Name, entity.IsCategory),
	)
	daily := dailyEmpathyMeans(topicRecords)
	if len(daily) < 3 {
		return nil
	}

	var sum float64
	for _, p := range daily[:len(daily)-1] {
		sum += p.Value
	}
	rollingAvg := sum / float64(len(daily)-1)
	current := daily[len(daily)-1].Value
	shift := current - rollingAvg

	minShift := thresholds.Level(models.AlertTopicSentimentShift, "warning", 0.15)
	if math.Abs(shift) <= minShift {
		return nil
	}

	direction := "improved"
	if shift < 0 {
		direction = "declined"
	}
	a := newAlert(
		models.AlertTopicSentimentShift, models.SeverityWarning,
		fmt.Sprintf("Sentiment %s for topic %q", direction, entity.Name),
		fmt.Sprintf("Sentiment around %q %s from %.3f (trailing avg) to %.3f (shift: %+.3f).",
			entity.Name, direction, rollingAvg, current, shift),
		models.SentimentShiftPayload{
			Entity:     entity.Name,
			RollingAvg: math.Round(rollingAvg*1000) / 1000,
			Current:    math.Round(current*1000) / 1000,
			Shift:      math.Round(shift*1000) / 1000,
		},
	)
	a.Topic, a.Username = entity.Name, entity.Username
	return []models.Alert{a}
}

// TopicIntensitySpikeDetector fires when a watched topic's average
// intensity escalates on the 1-5 scale.
type TopicIntensitySpikeDetector struct{}

func (d *TopicIntensitySpikeDetector) Name() string { return "topic_intensity_spike" }

func (d *TopicIntensitySpikeDetector) Run(_ context.Context, ds *Dataset, entity Entity, thresholds models.Thresholds) []models.Alert {
	topicRecords := filterByTopic(ds.News, entity.Name, entity.IsCategory)
	var sum float64
	var n int
	for _, r := range topicRecords {
		if r.Intensity > 0 {
			sum += float64(r.Intensity)
			n++
		}
	}
	if n < 3 {
		return nil
	}
	avg := sum / float64(n)

	warning := thresholds.Level(models.AlertTopicIntensitySpike, "warning", 3.5)
	critical := thresholds.Level(models.AlertTopicIntensitySpike, "critical", 4.2)
	if avg <= warning {
		return nil
	}
	severity := models.SeverityWarning
	if avg > critical {
		severity = models.SeverityCritical
	}
	a := newAlert(
		models.AlertTopicIntensitySpike, severity,
		fmt.Sprintf("Intensity spike for topic %q: %.1f/5", entity.Name, avg),
		fmt.Sprintf("Average intensity for %q is %.1f/5 over %d articles, above the %.1f threshold.",
			entity.Name, avg, n, warning),
		models.IntensitySpikePayload{
			Entity:       entity.Name,
			AvgIntensity: math.Round(avg*100) / 100,
			Baseline:     warning,
			SampleSize:   n,
		},
	)
	a.Topic, a.Username = entity.Name, entity.Username
	return []models.Alert{a}
}
