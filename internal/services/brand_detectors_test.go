package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chudetat/moodlight/internal/models"
)

func brandRecords(day time.Time, brand string, n int, empathy float64, emotion string) []models.ScoredRecord {
	var records []models.ScoredRecord
	for i := 0; i < n; i++ {
		records = append(records, models.ScoredRecord{
			Title:           "Coverage of " + brand,
			Text:            brand + " in the news again",
			Source:          "wire",
			EmpathyScore:    empathy,
			HasEmpathyScore: true,
			DominantEmotion: emotion,
			CreatedAt:       day.Add(time.Duration(i) * time.Minute),
		})
	}
	return records
}

var acme = Entity{Name: "Acme", Username: "jordan"}

func TestBrandCrisisDetector_AllConditionsHold(t *testing.T) {
	det := &BrandCrisisDetector{}
	news := brandRecords(day1, "Acme", 2, 0.1, "anger")
	news = append(news, brandRecords(day2, "Acme", 6, 0.1, "anger")...)
	news = append(news, brandRecords(day2, "Acme", 2, 0.1, "joy")...)

	alerts := det.Run(context.Background(), &Dataset{News: news}, acme, DefaultThresholds())
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertBrandCrisis, alerts[0].AlertType)
	assert.Equal(t, models.SeverityCritical, alerts[0].Severity)
	assert.Equal(t, "Acme", alerts[0].Brand)
	assert.Equal(t, "jordan", alerts[0].Username)

	payload := alerts[0].Payload.(models.CrisisPayload)
	assert.Equal(t, 8, payload.TodayVolume)
	assert.Equal(t, 2.0, payload.BaselineVolume)
	assert.Equal(t, 0.8, payload.NegativeShare)
	assert.Equal(t, "anger", payload.DominantEmotion)
}

func TestBrandCrisisDetector_ConjunctionRequired(t *testing.T) {
	det := &BrandCrisisDetector{}
	thresholds := DefaultThresholds()

	// Volume and negativity without hostile sentiment: no crisis.
	news := brandRecords(day1, "Acme", 2, 0.5, "anger")
	news = append(news, brandRecords(day2, "Acme", 8, 0.5, "anger")...)
	assert.Empty(t, det.Run(context.Background(), &Dataset{News: news}, acme, thresholds))

	// Volume and hostile sentiment without negative dominance: no crisis.
	news = brandRecords(day1, "Acme", 2, 0.1, "joy")
	news = append(news, brandRecords(day2, "Acme", 8, 0.1, "joy")...)
	assert.Empty(t, det.Run(context.Background(), &Dataset{News: news}, acme, thresholds))

	// Hostile and negative without a volume surge: today must exceed
	// max(2x baseline, floor), and 5 does not exceed 5.
	news = brandRecords(day1, "Acme", 2, 0.1, "anger")
	news = append(news, brandRecords(day2, "Acme", 5, 0.1, "anger")...)
	assert.Empty(t, det.Run(context.Background(), &Dataset{News: news}, acme, thresholds))
}

func TestBrandMentionSurgeDetector_FloorPath(t *testing.T) {
	det := &BrandMentionSurgeDetector{}
	news := brandRecords(day1, "Acme", 1, 0.5, "")
	news = append(news, brandRecords(day2, "Acme", 5, 0.5, "")...)

	alerts := det.Run(context.Background(), &Dataset{News: news}, acme, DefaultThresholds())
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertBrandNewsSurge, alerts[0].AlertType)
	assert.Equal(t, models.SeverityCritical, alerts[0].Severity)
	payload := alerts[0].Payload.(models.SurgePayload)
	assert.Equal(t, "news", payload.Source)
	assert.Equal(t, 5, payload.TodayCount)
}

func TestBrandMentionSurgeDetector_BelowFloor(t *testing.T) {
	det := &BrandMentionSurgeDetector{}
	news := brandRecords(day1, "Acme", 1, 0.5, "")
	news = append(news, brandRecords(day2, "Acme", 4, 0.5, "")...)
	assert.Empty(t, det.Run(context.Background(), &Dataset{News: news}, acme, DefaultThresholds()))
}

func TestBrandMentionSurgeDetector_SocialSource(t *testing.T) {
	det := &BrandMentionSurgeDetector{}
	social := brandRecords(day1, "Acme", 2, 0.5, "")
	social = append(social, brandRecords(day2, "Acme", 7, 0.5, "")...)

	alerts := det.Run(context.Background(), &Dataset{Social: social}, acme, DefaultThresholds())
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertBrandSocialBuzz, alerts[0].AlertType)
}

func TestBrandSentimentShiftDetector(t *testing.T) {
	det := &BrandSentimentShiftDetector{}
	day3 := day2.AddDate(0, 0, 1)
	news := brandRecords(day1, "Acme", 3, 0.5, "")
	news = append(news, brandRecords(day2, "Acme", 3, 0.5, "")...)
	news = append(news, brandRecords(day3, "Acme", 3, 0.2, "")...)

	alerts := det.Run(context.Background(), &Dataset{News: news}, acme, DefaultThresholds())
	require.Len(t, alerts, 1)
	assert.Contains(t, alerts[0].Title, "declined")
	payload := alerts[0].Payload.(models.SentimentShiftPayload)
	assert.Equal(t, 0.5, payload.RollingAvg)
	assert.Equal(t, 0.2, payload.Current)
	assert.Equal(t, -0.3, payload.Shift)
}

func TestBrandSentimentShiftDetector_NeedsThreeDays(t *testing.T) {
	det := &BrandSentimentShiftDetector{}
	news := brandRecords(day1, "Acme", 3, 0.5, "")
	news = append(news, brandRecords(day2, "Acme", 3, 0.1, "")...)
	assert.Empty(t, det.Run(context.Background(), &Dataset{News: news}, acme, DefaultThresholds()))
}

func TestBrandVLDSDetector_WhiteSpace(t *testing.T) {
	det := &BrandVLDSDetector{}
	news := brandRecords(day2, "Acme", 10, 0.5, "")

	alerts := det.Run(context.Background(), &Dataset{News: news}, acme, DefaultThresholds())
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertBrandWhiteSpace, alerts[0].AlertType)
	payload := alerts[0].Payload.(models.VLDSPayload)
	assert.Equal(t, 0.9, payload.Scores.Scarcity)
}

func TestBrandVLDSDetector_NarrativeFading(t *testing.T) {
	det := &BrandVLDSDetector{}
	news := brandRecords(day1, "Acme", 5, 0.5, "")
	news = append(news, brandRecords(day2, "Acme", 5, 0.5, "")...)
	ds := &Dataset{News: news, PrevLongevity: map[string]float64{"Acme": 0.7}}

	alerts := det.Run(context.Background(), ds, acme, DefaultThresholds())
	var fading *models.Alert
	for i := range alerts {
		if alerts[i].AlertType == models.AlertBrandNarrativeFading {
			fading = &alerts[i]
		}
	}
	require.NotNil(t, fading)
	payload := fading.Payload.(models.VLDSPayload)
	assert.Equal(t, 0.7, payload.PrevLongevity)
	assert.Equal(t, 0.29, payload.Scores.Longevity)
}

func TestBrandVLDSDetector_TooFewRecords(t *testing.T) {
	det := &BrandVLDSDetector{}
	news := brandRecords(day2, "Acme", 4, 0.5, "")
	assert.Empty(t, det.Run(context.Background(), &Dataset{News: news}, acme, DefaultThresholds()))
}
