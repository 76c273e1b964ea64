package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Chudetat/moodlight/internal/ai"
	"github.com/Chudetat/moodlight/internal/models"
)

// causalPair is an ordered alert-type pair with a known causal link.
type causalPair struct {
	a, b models.AlertType
}

// Known causal relationships between alert types. Checked in both orders;
// each match adds a relatedness bonus.
var causalPatterns = map[causalPair]int{
	{models.AlertGeopoliticalRisk, models.AlertMarketMoodDivergence}: 2,
	{models.AlertGeopoliticalRisk, models.AlertBrandSentimentShift}:  2,
	{models.AlertRegulatorySpike, models.AlertBrandSentimentShift}:   2,
	{models.AlertRegulatorySpike, models.AlertMarketMoodDivergence}:  2,
	{models.AlertBreakingSignal, models.AlertBrandCrisis}:            2,
	{models.AlertBreakingSignal, models.AlertBrandNewsSurge}:         2,
	{models.AlertBreakingSignal, models.AlertBrandSocialBuzz}:        2,
	{models.AlertMoodShift, models.AlertMarketMoodDivergence}:        2,
	{models.AlertBrandCrisis, models.AlertBrandSentimentShift}:       2,
	{models.AlertTopicEmergence, models.AlertBreakingSignal}:         2,
	{models.AlertTopicEmergence, models.AlertBrandNewsSurge}:         2,
	{models.AlertTopicEmergence, models.AlertBrandSocialBuzz}:        2,
	{models.AlertIntensityCluster, models.AlertBreakingSignal}:       2,
	{models.AlertIntensityCluster, models.AlertBrandCrisis}:          2,
}

// Minimum relatedness score for two alerts to be considered correlated.
const correlationThreshold = 3

var correlationStopwords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true, "was": true,
	"were": true, "in": true, "on": true, "at": true, "to": true, "for": true,
	"of": true, "and": true, "or": true, "but": true, "with": true,
	"from": true, "by": true, "this": true, "that": true, "it": true,
	"not": true, "be": true, "has": true, "had": true, "have": true,
	"will": true, "would": true, "could": true, "should": true, "may": true,
	"can": true, "do": true, "did": true, "been": true, "being": true,
	"their": true, "there": true, "than": true, "more": true, "less": true,
	"alert": true, "detected": true, "spike": true, "surge": true, "shift": true,
}

// Correlator finds clusters of related alerts within one run and
// synthesizes a unified situation report per cluster.
type Correlator struct {
	generator ai.Generator
	logger    *logrus.Logger
}

// NewCorrelator creates a new alert correlator.
func NewCorrelator(generator ai.Generator, logger *logrus.Logger) *Correlator {
	return &Correlator{generator: generator, logger: logger}
}

// relatedness scores how related two alerts are. Same brand +3, known
// causal pattern +2, significant word overlap in titles/summaries +1 or +2.
func relatedness(a, b *models.Alert) int {
	score := 0

	brandA := strings.ToLower(a.Brand)
	brandB := strings.ToLower(b.Brand)
	if brandA != "" && brandA == brandB {
		score += 3
	}

	if bonus, ok := causalPatterns[causalPair{a.AlertType, b.AlertType}]; ok {
		score += bonus
	} else if bonus, ok := causalPatterns[causalPair{b.AlertType, a.AlertType}]; ok {
		score += bonus
	}

	wordsA := significantWords(a.Title + " " + a.Summary)
	wordsB := significantWords(b.Title + " " + b.Summary)
	if len(wordsA) > 0 && len(wordsB) > 0 {
		overlap := 0
		for w := range wordsA {
			if wordsB[w] {
				overlap++
			}
		}
		switch {
		case overlap >= 3:
			score += 2
		case overlap >= 1:
			score++
		}
	}

	return score
}

func significantWords(text string) map[string]bool {
	words := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		if len(w) > 3 && !correlationStopwords[w] {
			words[w] = true
		}
	}
	return words
}

// unionFind is a flat-array disjoint set with path compression.
type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	return &unionFind{parent: parent}
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(x, y int) {
	px, py := u.find(x), u.find(y)
	if px != py {
		u.parent[px] = py
	}
}

// Correlate groups alerts from one run into clusters of two or more
// related alerts. Alerts with no sufficiently related partner are left out.
func (c *Correlator) Correlate(alerts []models.Alert) [][]models.Alert {
	if len(alerts) < 2 {
		return nil
	}

	uf := newUnionFind(len(alerts))
	for i := 0; i < len(alerts); i++ {
		for j := i + 1; j < len(alerts); j++ {
			if relatedness(&alerts[i], &alerts[j]) >= correlationThreshold {
				uf.union(i, j)
			}
		}
	}

	groups := make(map[int][]int)
	var roots []int
	for i := range alerts {
		root := uf.find(i)
		if _, seen := groups[root]; !seen {
			roots = append(roots, root)
		}
		groups[root] = append(groups[root], i)
	}

	var clusters [][]models.Alert
	for _, root := range roots {
		indices := groups[root]
		if len(indices) < 2 {
			continue
		}
		cluster := make([]models.Alert, 0, len(indices))
		for _, i := range indices {
			cluster = append(cluster, alerts[i])
		}
		clusters = append(clusters, cluster)
	}
	return clusters
}

const situationReportSystemPrompt = "You are a senior intelligence analyst specializing in connecting " +
	"disparate signals into unified situational awareness. You focus on " +
	"causal chains, compound risks, and actionable synthesis."

const situationReportMaxTokens = 1000

// GenerateSituationReport synthesizes one critical meta-alert from a
// cluster of correlated alerts. The synthesis text lands in the alert's
// Investigation field; a failed generation is recorded there, never fatal.
func (c *Correlator) GenerateSituationReport(ctx context.Context, cluster []models.Alert) models.Alert {
	var summaries []string
	typeSet := make(map[string]bool)
	brandSet := make(map[string]bool)
	var alertTypes, brands []string

	for i, a := range cluster {
		if !typeSet[string(a.AlertType)] {
			typeSet[string(a.AlertType)] = true
			alertTypes = append(alertTypes, string(a.AlertType))
		}
		if a.Brand != "" && !brandSet[a.Brand] {
			brandSet[a.Brand] = true
			brands = append(brands, a.Brand)
		}
		summaries = append(summaries, fmt.Sprintf(
			"%d. [%s] %s: %s\n   Summary: %s",
			i+1, strings.ToUpper(string(a.Severity)), a.AlertType, a.Title, a.Summary))
	}
	sort.Strings(alertTypes)
	sort.Strings(brands)

	promptContext := fmt.Sprintf("CORRELATED ALERTS (%d signals detected simultaneously):\n\n%s",
		len(cluster), strings.Join(summaries, "\n\n"))
	if len(brands) > 0 {
		promptContext += "\n\nBrands involved: " + strings.Join(brands, ", ")
	}
	promptContext += "\nAlert types: " + strings.Join(alertTypes, ", ")

	prompt := fmt.Sprintf(`You are a senior intelligence analyst. Multiple alert signals have fired simultaneously
in our monitoring system. Your job is to determine HOW these signals are connected and what the
unified situation means strategically.

%s

Analyze these correlated signals and produce a SITUATION REPORT:

1. CONNECTION: How are these signals related? What is the common thread or causal chain?
2. UNIFIED ASSESSMENT: What is the overall situation when you connect these dots?
3. SEVERITY: Is the combined situation more serious than any individual alert suggests?
4. STRATEGIC IMPLICATION: What does this mean for decision-makers?
5. RECOMMENDED ACTION: What should be done NOW given the full picture?

Be direct and specific. Connect the dots between signals — that's the entire point.
Target 200-400 words.`, promptContext)

	investigation, err := c.generator.Generate(ctx, situationReportSystemPrompt, prompt, situationReportMaxTokens)
	if err != nil {
		c.logger.WithError(err).Warn("Situation report synthesis failed")
		investigation = fmt.Sprintf("Situation report generation failed: %v", err)
	}

	titleParts := make([]string, 0, 3)
	for _, a := range cluster[:minInt(3, len(cluster))] {
		titleParts = append(titleParts, titleCase(strings.ReplaceAll(string(a.AlertType), "_", " ")))
	}
	title := "Situation Report: " + strings.Join(titleParts, " + ")
	if len(cluster) > 3 {
		title += fmt.Sprintf(" (+%d more)", len(cluster)-3)
	}

	summaryLines := []string{fmt.Sprintf("%d correlated signals detected:", len(cluster))}
	for _, a := range cluster {
		summaryLines = append(summaryLines, fmt.Sprintf("- [%s] %s", a.Severity, a.Title))
	}

	refs := make([]models.CorrelatedAlertRef, 0, len(cluster))
	for _, a := range cluster {
		refs = append(refs, models.CorrelatedAlertRef{
			AlertType: a.AlertType,
			Severity:  a.Severity,
			Title:     a.Title,
			Brand:     a.Brand,
			Summary:   truncate(a.Summary, 200),
		})
	}

	report := newAlert(models.AlertSituationReport, models.SeverityCritical, title,
		strings.Join(summaryLines, "\n"),
		models.SituationReportPayload{
			CorrelatedAlerts: refs,
			AlertTypes:       alertTypes,
			Brands:           brands,
		})
	report.Investigation = investigation
	report.Brand = strings.Join(brands, ", ")
	report.Username = cluster[0].Username
	return report
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
