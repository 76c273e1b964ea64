package services

import (
	"context"
	"fmt"
	"math"

	"github.com/Chudetat/moodlight/internal/models"
)

// BrandVLDSDetector scores a brand's filtered coverage on the VLDS
// composite and fires the opportunity/saturation family.
type BrandVLDSDetector struct{}

func (d *BrandVLDSDetector) Name() string { return "brand_vlds" }

func (d *BrandVLDSDetector) Run(_ context.Context, ds *Dataset, entity Entity, thresholds models.Thresholds) []models.Alert {
	brandRecords := concatRecords(
		filterByBrand(ds.News, entity.Name),
		filterByBrand(ds.Social, entity.Name),
	)
	vlds := ComputeVLDS(brandRecords)
	if vlds == nil {
		return nil
	}

	var alerts []models.Alert

	if vlds.Scarcity > thresholds.Level(models.AlertBrandWhiteSpace, "critical", 0.7) {
		a := newAlert(
			models.AlertBrandWhiteSpace, models.SeverityCritical,
			fmt.Sprintf("White space opportunity for %s", entity.Name),
			fmt.Sprintf("%s has a scarcity score of %.2f. Low coverage density means first-mover advantage; only %d posts found across sources.",
				entity.Name, vlds.Scarcity, vlds.TotalPosts),
			models.VLDSPayload{Entity: entity.Name, Scores: *vlds},
		)
		a.Brand, a.Username = entity.Name, entity.Username
		alerts = append(alerts, a)
	}

	if vlds.Velocity > thresholds.Level(models.AlertBrandVelocitySpike, "critical", 0.7) {
		a := newAlert(
			models.AlertBrandVelocitySpike, models.SeverityCritical,
			fmt.Sprintf("Velocity spike for %s", entity.Name),
			fmt.Sprintf("Conversation about %s is accelerating (velocity: %.2f). Recent coverage is outpacing earlier periods significantly.",
				entity.Name, vlds.Velocity),
			models.VLDSPayload{Entity: entity.Name, Scores: *vlds},
		)
		a.Brand, a.Username = entity.Name, entity.Username
		alerts = append(alerts, a)
	}

	if prev, ok := ds.PrevLongevity[entity.Name]; ok {
		fadeFloor := thresholds.Level(models.AlertBrandNarrativeFading, "warning", 0.3)
		if prev > 0.6 && vlds.Longevity < fadeFloor {
			a := newAlert(
				models.AlertBrandNarrativeFading, models.SeverityWarning,
				fmt.Sprintf("Narrative fading for %s", entity.Name),
				fmt.Sprintf("%s longevity dropped from %.2f to %.2f. The conversation window may be closing.",
					entity.Name, prev, vlds.Longevity),
				models.VLDSPayload{Entity: entity.Name, Scores: *vlds, PrevLongevity: prev},
			)
			a.Brand, a.Username = entity.Name, entity.Username
			alerts = append(alerts, a)
		}
	}

	if vlds.Density > thresholds.Level(models.AlertBrandSaturation, "warning", 0.7) {
		a := newAlert(
			models.AlertBrandSaturation, models.SeverityWarning,
			fmt.Sprintf("Market saturated for %s", entity.Name),
			fmt.Sprintf("%s has a density score of %.2f. The conversation space is crowded; consider differentiating or finding adjacent white space.",
				entity.Name, vlds.Density),
			models.VLDSPayload{Entity: entity.Name, Scores: *vlds},
		)
		a.Brand, a.Username = entity.Name, entity.Username
		alerts = append(alerts, a)
	}

	return alerts
}

// BrandMentionSurgeDetector fires on sudden spikes in a brand's news or
// social mention volume.
type BrandMentionSurgeDetector struct{}

func (d *BrandMentionSurgeDetector) Name() string { return "brand_mention_surge" }

const brandSurgeFloor = 5

func (d *BrandMentionSurgeDetector) Run(_ context.Context, ds *Dataset, entity Entity, thresholds models.Thresholds) []models.Alert {
	var alerts []models.Alert
	for _, src := range ds.sourceSlices() {
		brandRecords := filterByBrand(src.Records, entity.Name)
		if len(brandRecords) == 0 {
			continue
		}

		alertType := models.AlertBrandNewsSurge
		if src.Label == "social" {
			alertType = models.AlertBrandSocialBuzz
		}
		multiplier := thresholds.Level(alertType, "warning", 3.0)

		today, baseline, fired := volumeSurge(dailyCounts(brandRecords), multiplier, brandSurgeFloor)
		if !fired {
			continue
		}

		a := newAlert(
			alertType, models.SeverityCritical,
			fmt.Sprintf("%s mention surge for %s", titleCase(src.Label), entity.Name),
			fmt.Sprintf("%s appeared in %d %s items today vs a baseline of %.1f/day. This is a %.1fx spike.",
				entity.Name, today, src.Label, baseline, surgeMultiplier(today, baseline)),
			models.SurgePayload{
				Entity:     entity.Name,
				Source:     src.Label,
				TodayCount: today,
				Baseline:   math.Round(baseline*10) / 10,
				Multiplier: surgeMultiplier(today, baseline),
			},
		)
		a.Brand, a.Username = entity.Name, entity.Username
		alerts = append(alerts, a)
	}
	return alerts
}

// BrandSentimentShiftDetector fires when a brand's latest daily sentiment
// moves meaningfully against its trailing average.
type BrandSentimentShiftDetector struct{}

func (d *BrandSentimentShiftDetector) Name() string { return "brand_sentiment_shift" }

func (d *BrandSentimentShiftDetector) Run(_ context.Context, ds *Dataset, entity Entity, thresholds models.Thresholds) []models.Alert {
	brandRecords := concatRecords(
		filterByBrand(ds.News, entity.Name),
		filterByBrand(ds.Social, entity.Name),
	)
	daily := dailyEmpathyMeans(brandRecords)
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

	minShift := thresholds.Level(models.AlertBrandSentimentShift, "warning", 0.15)
	if math.Abs(shift) <= minShift {
		return nil
	}

	direction := "improved"
	if shift < 0 {
		direction = "declined"
	}
	a := newAlert(
		models.AlertBrandSentimentShift, models.SeverityWarning,
		fmt.Sprintf("Sentiment %s for %s", direction, entity.Name),
		fmt.Sprintf("Brand sentiment for %s %s from %.3f (trailing avg) to %.3f (shift: %+.3f). This signals a meaningful change in how audiences perceive the brand.",
			entity.Name, direction, rollingAvg, current, shift),
		models.SentimentShiftPayload{
			Entity:     entity.Name,
			RollingAvg: math.Round(rollingAvg*1000) / 1000,
			Current:    math.Round(current*1000) / 1000,
			Shift:      math.Round(shift*1000) / 1000,
		},
	)
	a.Brand, a.Username = entity.Name, entity.Username
	return []models.Alert{a}
}

// BrandCrisisDetector fires only when volume surge, hostile sentiment, and
// negative-emotion dominance all hold at once. A conjunction rather than a
// weighted score.
type BrandCrisisDetector struct{}

func (d *BrandCrisisDetector) Name() string { return "brand_crisis" }

func (d *BrandCrisisDetector) Run(_ context.Context, ds *Dataset, entity Entity, thresholds models.Thresholds) []models.Alert {
	brandRecords := concatRecords(
		filterByBrand(ds.News, entity.Name),
		filterByBrand(ds.Social, entity.Name),
	)
	counts := dailyCounts(brandRecords)
	if len(counts) < 2 {
		return nil
	}

	days := make([]string, 0, len(counts))
	for day := range counts {
		days = append(days, day)
	}
	sortDays(days)
	today := counts[days[len(days)-1]]
	sum := 0
	for _, day := range days[:len(days)-1] {
		sum += counts[day]
	}
	baseline := float64(sum) / float64(len(days)-1)

	volumeFloor := thresholds.Level(models.AlertBrandCrisis, "critical", 5.0)
	volumeSurged := float64(today) > math.Max(2*baseline, volumeFloor)

	avgEmpathy, scored := meanEmpathy(brandRecords)
	lowEmpathy := scored > 0 && avgEmpathy < 0.15

	negShare := negativeShare(brandRecords)
	negativeDominant := negShare > 0.5

	if !volumeSurged || !lowEmpathy || !negativeDominant {
		return nil
	}

	a := newAlert(
		models.AlertBrandCrisis, models.SeverityCritical,
		fmt.Sprintf("CRISIS: %s under hostile coverage surge", entity.Name),
		fmt.Sprintf("%s volume hit %d vs %.1f/day baseline with average empathy %.2f and %.0f%% negative-emotion coverage. All three crisis conditions hold.",
			entity.Name, today, baseline, avgEmpathy, negShare*100),
		models.CrisisPayload{
			Brand:           entity.Name,
			TodayVolume:     today,
			BaselineVolume:  math.Round(baseline*10) / 10,
			AvgEmpathy:      math.Round(avgEmpathy*1000) / 1000,
			NegativeShare:   math.Round(negShare*1000) / 1000,
			DominantEmotion: dominantEmotion(brandRecords),
		},
	)
	a.Brand, a.Username = entity.Name, entity.Username
	return []models.Alert{a}
}
