package services

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Chudetat/moodlight/internal/ai"
	"github.com/Chudetat/moodlight/internal/config"
	"github.com/Chudetat/moodlight/internal/database"
	"github.com/Chudetat/moodlight/internal/models"
)

// Chain step plans per alert type. Simple alerts get 3 steps, strategic
// ones 4, predictive and crisis-grade alerts the full 5.
var chainConfigs = map[models.AlertType][]models.StepKind{
	models.AlertBrandNewsSurge:      {models.StepSituation, models.StepCausal, models.StepConfidence},
	models.AlertBrandSocialBuzz:     {models.StepSituation, models.StepCausal, models.StepConfidence},
	models.AlertBrandSentimentShift: {models.StepSituation, models.StepHistorical, models.StepConfidence},
	models.AlertMoodShift:           {models.StepSituation, models.StepCausal, models.StepConfidence},
	models.AlertIntensityCluster:    {models.StepSituation, models.StepCausal, models.StepConfidence},

	models.AlertMarketMoodDivergence:  {models.StepSituation, models.StepHistorical, models.StepCausal, models.StepConfidence},
	models.AlertTopicEmergence:        {models.StepSituation, models.StepCausal, models.StepStrategic, models.StepConfidence},
	models.AlertBrandWhiteSpace:       {models.StepSituation, models.StepCausal, models.StepStrategic, models.StepConfidence},
	models.AlertBrandVelocitySpike:    {models.StepSituation, models.StepHistorical, models.StepStrategic, models.StepConfidence},
	models.AlertBrandNarrativeFading:  {models.StepSituation, models.StepHistorical, models.StepStrategic, models.StepConfidence},
	models.AlertBrandSaturation:       {models.StepSituation, models.StepCausal, models.StepStrategic, models.StepConfidence},
	models.AlertCompetitorMomentum:    {models.StepSituation, models.StepHistorical, models.StepCausal, models.StepConfidence},
	models.AlertShareOfVoiceShift:     {models.StepSituation, models.StepHistorical, models.StepStrategic, models.StepConfidence},
	models.AlertCompetitiveWhiteSpace: {models.StepSituation, models.StepCausal, models.StepStrategic, models.StepConfidence},

	models.AlertBrandCrisis:      fullChain,
	models.AlertRegulatorySpike:  fullChain,
	models.AlertBreakingSignal:   {models.StepSituation, models.StepCausal, models.StepConfidence},
	models.AlertGeopoliticalRisk: fullChain,
	models.AlertSituationReport:  fullChain,
	models.AlertCompoundSignal:   fullChain,

	models.AlertTopicMentionSurge:   {models.StepSituation, models.StepCausal, models.StepConfidence},
	models.AlertTopicSentimentShift: {models.StepSituation, models.StepHistorical, models.StepConfidence},
	models.AlertTopicIntensitySpike: {models.StepSituation, models.StepCausal, models.StepConfidence},
	models.AlertTopicVelocitySpike:  {models.StepSituation, models.StepHistorical, models.StepStrategic, models.StepConfidence},
	models.AlertTopicSaturation:     {models.StepSituation, models.StepCausal, models.StepStrategic, models.StepConfidence},
}

var fullChain = []models.StepKind{
	models.StepSituation, models.StepHistorical, models.StepCausal,
	models.StepStrategic, models.StepConfidence,
}

var defaultChain = []models.StepKind{
	models.StepSituation, models.StepCausal, models.StepConfidence,
}

// ChainSteps returns the step plan for an alert type. Predictive alerts
// always run the full chain; unknown types get the default plan.
func ChainSteps(alertType models.AlertType) []models.StepKind {
	if steps, ok := chainConfigs[alertType]; ok {
		return steps
	}
	if alertType.IsPredictive() {
		return fullChain
	}
	return defaultChain
}

// ShouldUseChain decides whether an alert warrants multi-step reasoning
// instead of a single-turn investigation.
func ShouldUseChain(a *models.Alert) bool {
	if a.AlertType.IsPredictive() {
		return true
	}
	switch a.AlertType {
	case models.AlertCompetitorMomentum, models.AlertShareOfVoiceShift, models.AlertCompetitiveWhiteSpace,
		models.AlertBrandCrisis, models.AlertRegulatorySpike, models.AlertGeopoliticalRisk, models.AlertBreakingSignal,
		models.AlertTopicVelocitySpike, models.AlertTopicSaturation,
		models.AlertBrandWhiteSpace, models.AlertBrandNarrativeFading:
		return true
	}
	return a.Severity == models.SeverityCritical
}

// ChainService executes multi-step reasoning chains where each step's
// output feeds the next prompt, with an early exit when a step's own
// confidence collapses.
type ChainService struct {
	generator ai.Generator
	alerts    *database.AlertRepository
	snapshots *database.SnapshotRepository
	logger    *logrus.Logger
	maxTokens int
}

// NewChainService creates a chain service.
func NewChainService(cfg *config.Config, generator ai.Generator, alerts *database.AlertRepository,
	snapshots *database.SnapshotRepository, logger *logrus.Logger) *ChainService {
	return &ChainService{
		generator: generator,
		alerts:    alerts,
		snapshots: snapshots,
		logger:    logger,
		maxTokens: cfg.AI.MaxTokensPerStep,
	}
}

const chainBailoutConfidence = 0.2

// Run executes the chain for one alert. A step failure or a confidence
// collapse stops the chain with status partial; the completed steps are
// still returned. Returns nil when no step completed at all.
func (s *ChainService) Run(ctx context.Context, alert *models.Alert, ds *Dataset) *models.ChainResult {
	steps := ChainSteps(alert.AlertType)
	dataContext := s.buildContext(ctx, alert, ds)

	var completed []models.StepResult
	status := models.ChainComplete

	for _, kind := range steps {
		log := s.logger.WithFields(logrus.Fields{"alert_type": alert.AlertType, "step": kind})
		result, err := s.runStep(ctx, kind, alert, dataContext, completed)
		if err != nil {
			log.WithError(err).Warn("Chain step failed, stopping chain")
			status = models.ChainPartial
			break
		}
		completed = append(completed, *result)

		if result.Confidence < chainBailoutConfidence {
			log.WithField("confidence", result.Confidence).Info("Step confidence too low, stopping chain")
			status = models.ChainPartial
			break
		}
	}

	if len(completed) == 0 {
		return nil
	}

	last := completed[len(completed)-1]
	overall := last.OverallConfidence
	recommendation := last.Recommendation
	if last.Step != models.StepConfidence {
		var sum float64
		for _, st := range completed {
			sum += st.Confidence
		}
		overall = int(sum / float64(len(completed)) * 100)
		recommendation = models.RecommendMonitor
	}

	summary := alert.Title
	switch recommendation {
	case models.RecommendActNow:
		summary += " — Immediate action recommended"
	case models.RecommendInvestigateFurther:
		summary += " — Further investigation needed"
	}

	return &models.ChainResult{
		ChainStatus:       status,
		Steps:             completed,
		OverallConfidence: overall,
		Recommendation:    recommendation,
		Summary:           summary,
	}
}

func (s *ChainService) runStep(ctx context.Context, kind models.StepKind, alert *models.Alert,
	dataContext string, prior []models.StepResult) (*models.StepResult, error) {

	var prompt string
	var precedentFound bool
	switch kind {
	case models.StepSituation:
		prompt = situationPrompt(alert, dataContext)
	case models.StepHistorical:
		prompt, precedentFound = s.historicalPrompt(ctx, alert, prior)
	case models.StepCausal:
		prompt = causalPrompt(dataContext, prior)
	case models.StepStrategic:
		prompt = strategicPrompt(prior)
	case models.StepConfidence:
		prompt = confidencePrompt(prior)
	default:
		return nil, fmt.Errorf("unknown chain step %q", kind)
	}

	text, err := s.generator.Generate(ctx, "", prompt, s.maxTokens)
	if err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)

	result := &models.StepResult{
		Step:       kind,
		Title:      stepTitle(kind),
		Content:    text,
		Confidence: parseConfidence(text),
	}

	switch kind {
	case models.StepHistorical:
		result.PrecedentFound = precedentFound
	case models.StepCausal:
		result.LikelyCauses = extractNumberedItems(text, 5)
	case models.StepStrategic:
		result.RecommendedActions = extractBulletItems(text, 5)
	case models.StepConfidence:
		overall, recommendation := parseTerminal(text)
		result.OverallConfidence = overall
		result.Recommendation = recommendation
		result.Confidence = float64(overall) / 100
	}
	return result, nil
}

func stepTitle(kind models.StepKind) string {
	switch kind {
	case models.StepSituation:
		return "Situation Assessment"
	case models.StepHistorical:
		return "Historical Context"
	case models.StepCausal:
		return "Causal Analysis"
	case models.StepStrategic:
		return "Strategic Implications"
	case models.StepConfidence:
		return "Confidence Assessment"
	}
	return string(kind)
}

// ---------------------------------------------------------------------------
// Context assembly
// ---------------------------------------------------------------------------

// buildContext gathers supporting data for the prompts: brand-filtered
// headlines and posts, market sentiment, and the latest economic and
// commodity snapshots. Snapshot lookups failing only shrinks the context.
func (s *ChainService) buildContext(ctx context.Context, alert *models.Alert, ds *Dataset) string {
	var parts []string

	if ds != nil {
		news := ds.News
		if alert.Brand != "" {
			if filtered := filterByBrand(news, alert.Brand); len(filtered) > 0 {
				news = filtered
			}
		}
		var headlines []string
		for _, r := range news {
			if r.Title == "" {
				continue
			}
			headlines = append(headlines, "- "+r.Title)
			if len(headlines) == 10 {
				break
			}
		}
		if len(headlines) > 0 {
			parts = append(parts, "Recent headlines:\n"+strings.Join(headlines, "\n"))
		}

		social := ds.Social
		if alert.Brand != "" {
			if filtered := filterByBrand(social, alert.Brand); len(filtered) > 0 {
				social = filtered
			}
		}
		var posts []string
		for _, r := range social {
			if r.Text == "" {
				continue
			}
			text := truncate(r.Text, 200)
			posts = append(posts, "- "+text)
			if len(posts) == 5 {
				break
			}
		}
		if len(posts) > 0 {
			parts = append(parts, "Recent social posts:\n"+strings.Join(posts, "\n"))
		}

		if len(ds.Markets) > 0 {
			var sum float64
			for _, t := range ds.Markets {
				sum += t.Sentiment
			}
			parts = append(parts, fmt.Sprintf("Current market sentiment: %.2f (0=bearish, 1=bullish)",
				sum/float64(len(ds.Markets))))
		}
	}

	if econ, err := s.snapshots.LatestByScope(ctx, models.ScopeEconomic); err == nil && len(econ) > 0 {
		lines := []string{"Economic indicators:"}
		for _, snap := range econ {
			label := titleCase(strings.ReplaceAll(snap.MetricName, "_", " "))
			lines = append(lines, fmt.Sprintf("  - %s: %g (as of %s)", label, snap.Value, snap.Date.Format("2006-01-02")))
		}
		parts = append(parts, strings.Join(lines, "\n"))
	}

	if comm, err := s.snapshots.LatestByScope(ctx, models.ScopeCommodity); err == nil && len(comm) > 0 {
		lines := []string{"Commodity prices:"}
		for _, snap := range comm {
			if snap.MetricName == "price" {
				lines = append(lines, fmt.Sprintf("  - %s: $%.2f", snap.ScopeName, snap.Value))
			}
		}
		if len(lines) > 1 {
			parts = append(parts, strings.Join(lines, "\n"))
		}
	}

	if len(parts) == 0 {
		return "No additional context available."
	}
	return strings.Join(parts, "\n\n")
}

// ---------------------------------------------------------------------------
// Step prompts
// ---------------------------------------------------------------------------

func formatPriorSteps(prior []models.StepResult) string {
	if len(prior) == 0 {
		return ""
	}
	parts := make([]string, 0, len(prior))
	for _, st := range prior {
		parts = append(parts, fmt.Sprintf("[%s]: %s", st.Title, st.Content))
	}
	return strings.Join(parts, "\n\n")
}

func situationPrompt(alert *models.Alert, dataContext string) string {
	brandNote := ""
	if alert.Brand != "" {
		brandNote = " about " + alert.Brand
	}
	return fmt.Sprintf(`You are Moodlight's intelligence analyst. Provide a concise SITUATION ASSESSMENT%s.

ALERT:
- Type: %s
- Severity: %s
- Title: %s
- Summary: %s

DATA:
%s

Provide exactly:
1. What is happening? (2-3 sentences describing the situation)
2. How significant are the numbers? (1 sentence)
3. Is this new or a continuation? (1 sentence)

End with: Confidence: [0.0-1.0]`, brandNote, alert.AlertType, alert.Severity, alert.Title, alert.Summary, dataContext)
}

const historicalLookbackDays = 30

func (s *ChainService) historicalPrompt(ctx context.Context, alert *models.Alert, prior []models.StepResult) (string, bool) {
	cutoff := time.Now().UTC().AddDate(0, 0, -historicalLookbackDays)

	histSummary := "No similar alerts found in the past 30 days."
	precedent := false
	if past, err := s.alerts.Recent(ctx, alert.AlertType, alert.Brand, cutoff, 5); err == nil && len(past) > 0 {
		precedent = true
		lines := make([]string, 0, len(past))
		for _, a := range past {
			lines = append(lines, fmt.Sprintf("- [%s] %s", a.Timestamp.Format("2006-01-02"), a.Title))
		}
		histSummary = "Similar alerts in the past 30 days:\n" + strings.Join(lines, "\n")
	}

	metricSummary := ""
	if p, ok := alert.Payload.(models.PredictivePayload); ok && p.Metric != "" {
		scope := models.ScopeGlobal
		if alert.Brand != "" {
			scope = models.ScopeBrand
		}
		if history, err := s.snapshots.History(ctx, scope, alert.Brand, p.Metric, cutoff); err == nil && len(history) > 0 {
			if len(history) > 7 {
				history = history[len(history)-7:]
			}
			lines := make([]string, 0, len(history))
			for _, pt := range history {
				lines = append(lines, fmt.Sprintf("  %s: %.4f", pt.Date, pt.Value))
			}
			metricSummary = fmt.Sprintf("\nMetric trend (%s):\n%s", p.Metric, strings.Join(lines, "\n"))
		}
	}

	return fmt.Sprintf(`You are Moodlight's intelligence analyst. Provide HISTORICAL CONTEXT for this alert.

PRIOR ANALYSIS:
%s

HISTORICAL DATA:
%s
%s

Has this pattern occurred before? If so, what happened next?
Was the outcome significant or did it normalize?
Assess whether this follows precedent or represents something new.

End with: Confidence: [0.0-1.0]`, formatPriorSteps(prior), histSummary, metricSummary), precedent
}

func causalPrompt(dataContext string, prior []models.StepResult) string {
	return fmt.Sprintf(`You are Moodlight's intelligence analyst. Provide CAUSAL ANALYSIS.

PRIOR ANALYSIS:
%s

SUPPORTING DATA:
%s

Why is this happening? Cross-reference the news topics, social sentiment, and market data.
Identify 2-3 likely causes (be specific, cite data points).

Format:
1. Primary cause: [explanation]
2. Contributing factor: [explanation]
3. Additional context: [explanation]

End with: Confidence: [0.0-1.0]`, formatPriorSteps(prior), dataContext)
}

func strategicPrompt(prior []models.StepResult) string {
	return fmt.Sprintf(`You are Moodlight's intelligence analyst. Provide STRATEGIC IMPLICATIONS.

PRIOR ANALYSIS:
%s

Apply relevant strategic frameworks to your analysis.

Based on the situation, history, and causes identified:
1. What are the strategic implications? (2-3 sentences)
2. What specific actions should be taken? (2-3 bullet points)
3. What frameworks best apply and why? (1-2 sentences)

End with: Confidence: [0.0-1.0]`, formatPriorSteps(prior))
}

func confidencePrompt(prior []models.StepResult) string {
	confLines := make([]string, 0, len(prior))
	for _, st := range prior {
		confLines = append(confLines, fmt.Sprintf("- %s: %.2f", st.Title, st.Confidence))
	}
	return fmt.Sprintf(`You are Moodlight's intelligence analyst. Provide a CONFIDENCE ASSESSMENT.

PRIOR ANALYSIS:
%s

Step confidences so far:
%s

Score your overall confidence 0-100 considering:
1. Data quality and sample size
2. Signal strength (how clear is the pattern?)
3. Historical precedent (was this confirmed before?)
4. Agreement across prior steps

Then recommend ONE action:
- ACT_NOW: High confidence, clear threat/opportunity requiring immediate action
- MONITOR: Moderate confidence, worth watching closely over next 24-48 hours
- INVESTIGATE_FURTHER: Low confidence, need more data before acting

Format:
Overall confidence: [0-100]
Recommendation: [ACT_NOW|MONITOR|INVESTIGATE_FURTHER]
Reasoning: [2-3 sentences explaining your assessment]`, formatPriorSteps(prior), strings.Join(confLines, "\n"))
}

// ---------------------------------------------------------------------------
// Response parsing
// ---------------------------------------------------------------------------

var (
	confidenceDecimalRe = regexp.MustCompile(`(?i)confidence[:\s]+([01]?\.\d+)`)
	confidencePercentRe = regexp.MustCompile(`(?i)confidence[:\s]+(\d{1,3})%`)
	overallConfidenceRe = regexp.MustCompile(`(?i)overall\s+confidence[:\s]+(\d{1,3})`)
)

// parseConfidence extracts a [0,1] confidence from step output, defaulting
// to neutral when the model omitted or mangled it.
func parseConfidence(text string) float64 {
	if m := confidenceDecimalRe.FindStringSubmatch(text); m != nil {
		v, err := strconv.ParseFloat(m[1], 64)
		if err == nil {
			if v > 1 {
				v = 1
			}
			return v
		}
	}
	if m := confidencePercentRe.FindStringSubmatch(text); m != nil {
		v, err := strconv.ParseFloat(m[1], 64)
		if err == nil {
			if v > 100 {
				v = 100
			}
			return v / 100
		}
	}
	return 0.5
}

// parseTerminal extracts the 0-100 overall score and the recommendation
// token from the confidence step's output.
func parseTerminal(text string) (int, models.Recommendation) {
	overall := 50
	if m := overallConfidenceRe.FindStringSubmatch(text); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil {
			if v > 100 {
				v = 100
			}
			overall = v
		}
	}

	recommendation := models.RecommendMonitor
	lower := strings.ToLower(text)
	if strings.Contains(lower, "act_now") || strings.Contains(lower, "act now") {
		recommendation = models.RecommendActNow
	} else if strings.Contains(lower, "investigate_further") || strings.Contains(lower, "investigate further") {
		recommendation = models.RecommendInvestigateFurther
	}
	return overall, recommendation
}

// extractNumberedItems pulls the substantive numbered or dashed lines out
// of a step's output, trimmed to 200 characters each.
func extractNumberedItems(text string, limit int) []string {
	var items []string
	for _, line := range strings.Split(text, "\n") {
		stripped := strings.TrimSpace(line)
		if stripped == "" {
			continue
		}
		first := stripped[0]
		if (first < '0' || first > '9') && first != '-' {
			continue
		}
		item := strings.TrimSpace(strings.TrimLeft(stripped, "0123456789.-) "))
		if len(item) > 10 {
			items = append(items, truncate(item, 200))
			if len(items) == limit {
				break
			}
		}
	}
	return items
}

func extractBulletItems(text string, limit int) []string {
	var items []string
	for _, line := range strings.Split(text, "\n") {
		stripped := strings.TrimSpace(line)
		if !strings.HasPrefix(stripped, "-") && !strings.HasPrefix(stripped, "•") {
			continue
		}
		item := strings.TrimSpace(strings.TrimLeft(stripped, "-•"))
		if len(item) > 10 {
			items = append(items, truncate(item, 200))
			if len(items) == limit {
				break
			}
		}
	}
	return items
}

// ---------------------------------------------------------------------------
// Single-turn fallback
// ---------------------------------------------------------------------------

const investigationMaxTokens = 800

// Investigate runs the single-turn investigation used for simple alerts
// and as the fallback when chain execution produced nothing.
func (s *ChainService) Investigate(ctx context.Context, alert *models.Alert, ds *Dataset) (string, error) {
	brandNote := ""
	if alert.Brand != "" {
		brandNote = " This alert is specific to the brand: " + alert.Brand + "."
	}
	prompt := fmt.Sprintf(`You are Moodlight's intelligence analyst. An anomaly was detected that requires investigation.%s

ALERT:
- Type: %s
- Severity: %s
- Title: %s
- Summary: %s

SUPPORTING DATA:
%s

Provide a concise investigation in exactly this format:

ANALYSIS: [2-3 sentences on what's happening and why]

IMPLICATIONS: [2-3 sentences on why this matters and what it means for strategy]

WATCH: [2-3 bullet points of what to monitor next]`,
		brandNote, alert.AlertType, alert.Severity, alert.Title, alert.Summary,
		s.buildContext(ctx, alert, ds))

	text, err := s.generator.Generate(ctx, "", prompt, investigationMaxTokens)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}
