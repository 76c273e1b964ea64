package services

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Chudetat/moodlight/internal/models"
)

// Dataset is the immutable per-run input shared by every detector. The
// pipeline loads it once; detectors only read it.
type Dataset struct {
	News    []models.ScoredRecord
	Social  []models.ScoredRecord
	Markets []models.MarketTick
	Now     time.Time

	// PrevLongevity maps entity name to its most recent stored longevity
	// score, for the narrative-fading comparison. Loaded from the snapshot
	// store before detectors run; absent entries disable that rule.
	PrevLongevity map[string]float64
}

// Detector is one isolated detection rule over the run's dataset. A
// detector that cannot run (missing fields, empty input) returns an empty
// slice, never an error; failures must not propagate past this boundary.
type Detector interface {
	Name() string
	Run(ctx context.Context, ds *Dataset, thresholds models.Thresholds) []models.Alert
}

// Entity is one watched brand or topic together with its subscriber.
type Entity struct {
	Name       string
	Username   string
	IsCategory bool
}

// EntityDetector is a detection rule scoped to a single watched entity.
// The pipeline fans these out over the watchlist on the worker pool.
type EntityDetector interface {
	Name() string
	Run(ctx context.Context, ds *Dataset, entity Entity, thresholds models.Thresholds) []models.Alert
}

// GlobalDetectors returns the static registry of whole-dataset detectors.
func GlobalDetectors() []Detector {
	return []Detector{
		&MoodShiftDetector{},
		&MarketMoodDivergenceDetector{},
		&IntensityClusterDetector{},
		&TopicEmergenceDetector{},
		&RegulatorySpikeDetector{},
		&BreakingSignalDetector{},
		&GeopoliticalRiskDetector{},
	}
}

// BrandDetectors returns the static registry of per-brand detectors.
func BrandDetectors() []EntityDetector {
	return []EntityDetector{
		&BrandVLDSDetector{},
		&BrandMentionSurgeDetector{},
		&BrandSentimentShiftDetector{},
		&BrandCrisisDetector{},
	}
}

// TopicDetectors returns the static registry of per-topic detectors.
func TopicDetectors() []EntityDetector {
	return []EntityDetector{
		&TopicVLDSDetector{},
		&TopicMentionSurgeDetector{},
		&TopicSentimentShiftDetector{},
		&TopicIntensitySpikeDetector{},
	}
}

// newAlert builds the common alert envelope. The cooldown key is assigned
// later by the cooldown gate.
func newAlert(alertType models.AlertType, severity models.Severity, title, summary string, payload models.AlertPayload) models.Alert {
	return models.Alert{
		ID:        uuid.New().String(),
		AlertType: alertType,
		Severity:  severity,
		Title:     title,
		Summary:   summary,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// ---------------------------------------------------------------------------
// Shared record helpers
// ---------------------------------------------------------------------------

func dateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func sortedDays(byDay map[string][]models.ScoredRecord) []string {
	days := make([]string, 0, len(byDay))
	for d := range byDay {
		days = append(days, d)
	}
	sort.Strings(days)
	return days
}

func groupByDay(records []models.ScoredRecord) map[string][]models.ScoredRecord {
	byDay := make(map[string][]models.ScoredRecord)
	for _, r := range records {
		d := dateKey(r.CreatedAt)
		byDay[d] = append(byDay[d], r)
	}
	return byDay
}

func dailyCounts(records []models.ScoredRecord) map[string]int {
	counts := make(map[string]int)
	for _, r := range records {
		counts[dateKey(r.CreatedAt)]++
	}
	return counts
}

// dailyEmpathyMeans returns per-day average empathy, ordered by date.
// Days where no record carries a score are skipped.
func dailyEmpathyMeans(records []models.ScoredRecord) []models.TrendPoint {
	byDay := groupByDay(records)
	var points []models.TrendPoint
	for _, day := range sortedDays(byDay) {
		var sum float64
		var n int
		for _, r := range byDay[day] {
			if r.HasEmpathyScore {
				sum += r.EmpathyScore
				n++
			}
		}
		if n > 0 {
			points = append(points, models.TrendPoint{Date: day, Value: sum / float64(n)})
		}
	}
	return points
}

func meanEmpathy(records []models.ScoredRecord) (float64, int) {
	var sum float64
	var n int
	for _, r := range records {
		if r.HasEmpathyScore {
			sum += r.EmpathyScore
			n++
		}
	}
	if n == 0 {
		return 0, 0
	}
	return sum / float64(n), n
}

// filterByBrand keeps records mentioning the brand in title, text, or
// source, case-insensitively.
func filterByBrand(records []models.ScoredRecord, brand string) []models.ScoredRecord {
	needle := strings.ToLower(brand)
	if needle == "" {
		return nil
	}
	var filtered []models.ScoredRecord
	for _, r := range records {
		if strings.Contains(strings.ToLower(r.Title), needle) ||
			strings.Contains(strings.ToLower(r.Text), needle) ||
			strings.Contains(strings.ToLower(r.Source), needle) {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

// filterByTopic keeps records matching a watched topic. Category entries
// match the record's classified topic exactly; free-text entries match the
// topic, title, or text.
func filterByTopic(records []models.ScoredRecord, topic string, isCategory bool) []models.ScoredRecord {
	needle := strings.ToLower(topic)
	if needle == "" {
		return nil
	}
	var filtered []models.ScoredRecord
	for _, r := range records {
		if isCategory {
			if strings.EqualFold(r.Topic, topic) {
				filtered = append(filtered, r)
			}
			continue
		}
		if strings.Contains(strings.ToLower(r.Topic), needle) ||
			strings.Contains(strings.ToLower(r.Title), needle) ||
			strings.Contains(strings.ToLower(r.Text), needle) {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

// negativeEmotions are the dominant-emotion labels counted toward the
// crisis detector's negative share.
var negativeEmotions = map[string]bool{
	"anger":   true,
	"disgust": true,
	"fear":    true,
	"sadness": true,
}

func negativeShare(records []models.ScoredRecord) float64 {
	if len(records) == 0 {
		return 0
	}
	n := 0
	for _, r := range records {
		if negativeEmotions[strings.ToLower(r.DominantEmotion)] {
			n++
		}
	}
	return float64(n) / float64(len(records))
}

// dominantEmotion returns the most frequent dominant-emotion label.
func dominantEmotion(records []models.ScoredRecord) string {
	counts := make(map[string]int)
	for _, r := range records {
		if r.DominantEmotion != "" {
			counts[strings.ToLower(r.DominantEmotion)]++
		}
	}
	best, bestCount := "", 0
	for emotion, count := range counts {
		if count > bestCount || (count == bestCount && emotion < best) {
			best, bestCount = emotion, count
		}
	}
	return best
}

func sortDays(days []string) {
	sort.Strings(days)
}

func titleCase(s string) string {
	words := strings.Split(s, " ")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

func concatRecords(a, b []models.ScoredRecord) []models.ScoredRecord {
	out := make([]models.ScoredRecord, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	return out
}
