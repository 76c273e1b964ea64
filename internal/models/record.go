package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ScoredRecord is one normalized news or social item produced by the
// data-acquisition collaborators. The engine never parses raw feeds.
type ScoredRecord struct {
	ID              string    `json:"id"`
	Title           string    `json:"title,omitempty"`
	Text            string    `json:"text"`
	Source          string    `json:"source"`
	Topic           string    `json:"topic,omitempty"`
	Country         string    `json:"country,omitempty"`
	Intensity       int       `json:"intensity,omitempty"` // 1-5, 0 when unscored
	EmpathyScore    float64   `json:"empathy_score"`
	HasEmpathyScore bool      `json:"-"`
	DominantEmotion string    `json:"dominant_emotion,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// MarketTick is one scalar market/economic/commodity observation. Values
// arrive as exact decimals from the feed collaborators; trend math converts
// to float64 at the analysis boundary.
type MarketTick struct {
	Symbol    string          `json:"symbol"`
	Value     decimal.Decimal `json:"value"`
	Sentiment float64         `json:"market_sentiment,omitempty"` // 0=bearish, 1=bullish
	Timestamp time.Time       `json:"timestamp"`
}

// Watchlist maps usernames to the brand names they monitor.
type Watchlist map[string][]string

// Brands returns the total number of watched brands across all subscribers.
func (w Watchlist) Brands() int {
	n := 0
	for _, brands := range w {
		n += len(brands)
	}
	return n
}

// TopicEntry is one watched topic; IsCategory marks a topic-category match
// rather than a free-text one.
type TopicEntry struct {
	Name       string
	IsCategory bool
}

// TopicWatchlist maps usernames to their watched topics.
type TopicWatchlist map[string][]TopicEntry

// BrandStanding is one brand's position inside a competitive snapshot.
type BrandStanding struct {
	VLDS         *VLDSScores `json:"vlds,omitempty"`
	MentionCount int         `json:"mention_count"`
}

// CompetitiveSnapshot compares a watched brand against its competitors at
// one point in time. Persisted between runs so the competitive detectors
// can diff against the previous state.
type CompetitiveSnapshot struct {
	Brand        string                   `json:"brand"`
	Standings    map[string]BrandStanding `json:"standings"`
	ShareOfVoice map[string]float64       `json:"share_of_voice"`
	Gaps         map[string]float64       `json:"competitive_gaps"`
	CreatedAt    time.Time                `json:"created_at"`
}

// Competitor is one discovered competitor of a watched brand.
type Competitor struct {
	Brand          string    `json:"brand_name"`
	CompetitorName string    `json:"competitor_name"`
	CreatedAt      time.Time `json:"created_at"`
}

// FeedbackAction is one kind of user interaction with an alert.
type FeedbackAction string

const (
	FeedbackExpanded   FeedbackAction = "expanded"
	FeedbackThumbsUp   FeedbackAction = "thumbs_up"
	FeedbackThumbsDown FeedbackAction = "thumbs_down"
)

// FeedbackRecord is one user interaction, unique per
// (alert_id, username, action). Append-only.
type FeedbackRecord struct {
	AlertID   string         `json:"alert_id"`
	Username  string         `json:"username"`
	Action    FeedbackAction `json:"action"`
	CreatedAt time.Time      `json:"created_at"`
}

// FeedbackSummary aggregates feedback for one alert type over the tuning
// lookback window.
type FeedbackSummary struct {
	AlertType      AlertType `json:"alert_type"`
	TotalAlerts    int       `json:"total_alerts"`
	ExpandedCount  int       `json:"expanded_count"`
	ThumbsUp       int       `json:"thumbs_up"`
	ThumbsDown     int       `json:"thumbs_down"`
	EngagementRate float64   `json:"engagement_rate"`
	ApprovalRate   float64   `json:"approval_rate"`
	ThumbsDownRate float64   `json:"thumbs_down_rate"`
}

// PipelineRun is the bookkeeping row for one batch execution.
type PipelineRun struct {
	ID           string     `json:"id"`
	PipelineName string     `json:"pipeline_name"`
	Status       string     `json:"status"`
	RowCount     int        `json:"row_count"`
	ErrorMessage string     `json:"error_message,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// VLDSScores is the velocity/longevity/density/scarcity composite for one
// entity's filtered coverage. Formulas and constants are calibrated product
// values; keep them stable.
type VLDSScores struct {
	Velocity   float64 `json:"velocity"`
	Longevity  float64 `json:"longevity"`
	Density    float64 `json:"density"`
	Scarcity   float64 `json:"scarcity"`
	AvgEmpathy float64 `json:"empathy_score"`
	TotalPosts int     `json:"total_posts"`
}
