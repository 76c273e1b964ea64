package models

// StepKind is one investigation step in a reasoning chain.
type StepKind string

const (
	StepSituation  StepKind = "situation"
	StepHistorical StepKind = "historical"
	StepCausal     StepKind = "causal"
	StepStrategic  StepKind = "strategic"
	StepConfidence StepKind = "confidence"
)

// Recommendation is the terminal action token of a completed chain.
type Recommendation string

const (
	RecommendActNow             Recommendation = "act_now"
	RecommendMonitor            Recommendation = "monitor"
	RecommendInvestigateFurther Recommendation = "investigate_further"
)

// ChainStatus reports whether every configured step completed.
type ChainStatus string

const (
	ChainComplete ChainStatus = "complete"
	ChainPartial  ChainStatus = "partial"
)

// StepResult is the output of one reasoning step. Confidence is in [0,1].
// The step-specific fields are populated only by the steps that extract them.
type StepResult struct {
	Step       StepKind `json:"step"`
	Title      string   `json:"title"`
	Content    string   `json:"content"`
	Confidence float64  `json:"confidence"`

	PrecedentFound     bool     `json:"precedent_found,omitempty"`
	LikelyCauses       []string `json:"likely_causes,omitempty"`
	RecommendedActions []string `json:"recommended_actions,omitempty"`

	// Populated by the terminal confidence step only.
	OverallConfidence int            `json:"overall_confidence,omitempty"`
	Recommendation    Recommendation `json:"recommendation,omitempty"`
}

// ChainResult is a full reasoning-chain investigation attached to an alert.
type ChainResult struct {
	ChainStatus       ChainStatus    `json:"chain_status"`
	Steps             []StepResult   `json:"steps"`
	OverallConfidence int            `json:"overall_confidence"` // 0-100
	Recommendation    Recommendation `json:"recommendation"`
	Summary           string         `json:"summary"`
}
