package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/Chudetat/moodlight/internal/config"
	"github.com/Chudetat/moodlight/internal/database"
	"github.com/Chudetat/moodlight/internal/models"
)

// Pipeline is the batch orchestrator: one Run loads the scored data,
// captures snapshots, fans detectors out over a worker pool, correlates,
// dedups, investigates, stores, and tunes. Later stages never roll back
// earlier ones; a failed stage is logged and the run continues where that
// is safe.
type Pipeline struct {
	cfg *config.Config
	log *logrus.Logger

	records     *database.RecordsRepository
	watchlists  *database.WatchlistRepository
	thresholds  *database.ThresholdRepository
	alerts      *database.AlertRepository
	snapshots   *database.SnapshotRepository
	competitive *database.CompetitiveRepository
	runs        *database.PipelineRunRepository

	snapshotSvc *SnapshotService
	predictive  *PredictiveDetector
	correlator  *Correlator
	cooldown    *CooldownService
	chain       *ChainService
	tuner       *AdaptiveTuner
	cleanup     *CleanupService
}

// PipelineDeps bundles the collaborators a Pipeline needs.
type PipelineDeps struct {
	Records     *database.RecordsRepository
	Watchlists  *database.WatchlistRepository
	Thresholds  *database.ThresholdRepository
	Alerts      *database.AlertRepository
	Snapshots   *database.SnapshotRepository
	Competitive *database.CompetitiveRepository
	Runs        *database.PipelineRunRepository

	SnapshotSvc *SnapshotService
	Predictive  *PredictiveDetector
	Correlator  *Correlator
	Cooldown    *CooldownService
	Chain       *ChainService
	Tuner       *AdaptiveTuner
	Cleanup     *CleanupService
}

// NewPipeline creates the orchestrator.
func NewPipeline(cfg *config.Config, deps PipelineDeps, logger *logrus.Logger) *Pipeline {
	return &Pipeline{
		cfg:         cfg,
		log:         logger,
		records:     deps.Records,
		watchlists:  deps.Watchlists,
		thresholds:  deps.Thresholds,
		alerts:      deps.Alerts,
		snapshots:   deps.Snapshots,
		competitive: deps.Competitive,
		runs:        deps.Runs,
		snapshotSvc: deps.SnapshotSvc,
		predictive:  deps.Predictive,
		correlator:  deps.Correlator,
		cooldown:    deps.Cooldown,
		chain:       deps.Chain,
		tuner:       deps.Tuner,
		cleanup:     deps.Cleanup,
	}
}

// RunSummary reports what one pipeline run produced.
type RunSummary struct {
	GlobalAlerts      int
	BrandAlerts       int
	CompetitiveAlerts int
	TopicAlerts       int
	PredictiveAlerts  int
	SituationReports  int
	Stored            int
	SnapshotsCaptured int
}

const pipelineName = "alert_pipeline"

// Run executes one full pipeline cycle.
func (p *Pipeline) Run(ctx context.Context) (*RunSummary, error) {
	runID, err := p.runs.Start(ctx, pipelineName)
	if err != nil {
		return nil, fmt.Errorf("start pipeline run: %w", err)
	}

	summary, err := p.run(ctx)
	if err != nil {
		if failErr := p.runs.Fail(ctx, runID, truncate(err.Error(), 500)); failErr != nil {
			p.log.WithError(failErr).Warn("Could not record pipeline failure")
		}
		return summary, err
	}

	if completeErr := p.runs.Complete(ctx, runID, summary.Stored); completeErr != nil {
		p.log.WithError(completeErr).Warn("Could not record pipeline completion")
	}
	return summary, nil
}

func (p *Pipeline) run(ctx context.Context) (*RunSummary, error) {
	summary := &RunSummary{}
	now := time.Now().UTC()
	cutoff := now.AddDate(0, 0, -p.cfg.Pipeline.LookbackDays)

	// Load data. News and social both failing to produce rows is a no-op
	// run, not an error.
	news, err := p.records.News(ctx, cutoff)
	if err != nil {
		p.log.WithError(err).Warn("Could not load news records")
	}
	social, err := p.records.Social(ctx, cutoff)
	if err != nil {
		p.log.WithError(err).Warn("Could not load social records")
	}
	markets, err := p.records.Markets(ctx, cutoff)
	if err != nil {
		p.log.WithError(err).Warn("Could not load market ticks")
	}
	p.log.WithFields(logrus.Fields{
		"news": len(news), "social": len(social), "markets": len(markets),
	}).Info("Loaded scored data")

	if len(news) == 0 && len(social) == 0 {
		p.log.Info("No news or social data available, nothing to detect")
		return summary, nil
	}

	watchlist, err := p.watchlists.BrandWatchlist(ctx)
	if err != nil {
		p.log.WithError(err).Warn("Could not load brand watchlist")
	}
	topicWatchlist, err := p.watchlists.TopicWatchlist(ctx)
	if err != nil {
		p.log.WithError(err).Warn("Could not load topic watchlist")
	}
	p.log.WithFields(logrus.Fields{
		"subscribers": len(watchlist), "watched_brands": watchlist.Brands(),
	}).Info("Loaded watchlists")

	stored, err := p.thresholds.Load(ctx)
	if err != nil {
		p.log.WithError(err).Warn("Could not load thresholds, using defaults")
	}
	thresholds := MergeThresholds(stored)

	ds := &Dataset{
		News:          news,
		Social:        social,
		Markets:       markets,
		Now:           now,
		PrevLongevity: p.loadPrevLongevity(ctx, watchlist),
	}

	// Snapshots feed the predictive detectors, so capture before detection.
	summary.SnapshotsCaptured = p.snapshotSvc.Capture(ctx, ds, watchlist, topicWatchlist)

	// Detection, fanned out over a bounded pool.
	jobs := p.buildDetectorJobs(ds, watchlist, topicWatchlist, thresholds)
	workers := OptimalWorkers(p.cfg.Pipeline.MaxDetectorWorkers, len(jobs))
	p.log.WithFields(logrus.Fields{"jobs": len(jobs), "workers": workers}).Info("Running detectors")
	tagged := runJobs(ctx, workers, jobs)

	var allAlerts []models.Alert
	for _, t := range tagged {
		switch t.family {
		case familyGlobal:
			summary.GlobalAlerts++
		case familyBrand:
			summary.BrandAlerts++
		case familyCompetitive:
			summary.CompetitiveAlerts++
		case familyTopic:
			summary.TopicAlerts++
		}
		allAlerts = append(allAlerts, t.alert)
	}

	predictiveAlerts := p.predictive.Run(ctx, watchlist, thresholds)
	summary.PredictiveAlerts = len(predictiveAlerts)
	allAlerts = append(allAlerts, predictiveAlerts...)

	p.log.WithField("total", len(allAlerts)).Info("Detection complete")

	if len(allAlerts) == 0 {
		p.runTuning(ctx)
		p.runCleanup(ctx)
		return summary, nil
	}

	// Correlation: clusters become situation reports and ride along with
	// the rest of the run's alerts.
	clusters := p.correlator.Correlate(allAlerts)
	for _, cluster := range clusters {
		report := p.correlator.GenerateSituationReport(ctx, cluster)
		allAlerts = append(allAlerts, report)
		summary.SituationReports++
	}
	if len(clusters) > 0 {
		p.log.WithField("clusters", len(clusters)).Info("Generated situation reports")
	}

	summary.Stored = p.processAlerts(ctx, allAlerts, ds)
	p.runTuning(ctx)
	p.runCleanup(ctx)

	p.log.WithFields(logrus.Fields{
		"global":      summary.GlobalAlerts,
		"brand":       summary.BrandAlerts,
		"competitive": summary.CompetitiveAlerts,
		"topic":       summary.TopicAlerts,
		"predictive":  summary.PredictiveAlerts,
		"situation":   summary.SituationReports,
		"stored":      summary.Stored,
	}).Info("Pipeline run complete")
	return summary, nil
}

type detectorFamily int

const (
	familyGlobal detectorFamily = iota
	familyBrand
	familyCompetitive
	familyTopic
)

type taggedAlert struct {
	family detectorFamily
	alert  models.Alert
}

// buildDetectorJobs assembles one job per (detector, entity) pairing so the
// pool can schedule them independently.
func (p *Pipeline) buildDetectorJobs(ds *Dataset, watchlist models.Watchlist,
	topics models.TopicWatchlist, thresholds models.Thresholds) []func(ctx context.Context) []taggedAlert {

	var jobs []func(ctx context.Context) []taggedAlert

	for _, det := range GlobalDetectors() {
		det := det
		jobs = append(jobs, func(ctx context.Context) []taggedAlert {
			return tagAlerts(familyGlobal, det.Run(ctx, ds, thresholds))
		})
	}

	seenBrands := make(map[string]bool)
	for _, username := range sortedKeys(watchlist) {
		for _, brand := range watchlist[username] {
			if seenBrands[brand] {
				continue
			}
			seenBrands[brand] = true
			entity := Entity{Name: brand, Username: username}
			for _, det := range BrandDetectors() {
				det := det
				jobs = append(jobs, func(ctx context.Context) []taggedAlert {
					return tagAlerts(familyBrand, det.Run(ctx, ds, entity, thresholds))
				})
			}
			jobs = append(jobs, p.competitiveJob(ds, entity, thresholds))
		}
	}

	seenTopics := make(map[string]bool)
	for _, username := range sortedKeys(topics) {
		for _, entry := range topics[username] {
			if seenTopics[entry.Name] {
				continue
			}
			seenTopics[entry.Name] = true
			entity := Entity{Name: entry.Name, Username: username, IsCategory: entry.IsCategory}
			for _, det := range TopicDetectors() {
				det := det
				jobs = append(jobs, func(ctx context.Context) []taggedAlert {
					return tagAlerts(familyTopic, det.Run(ctx, ds, entity, thresholds))
				})
			}
		}
	}

	return jobs
}

// competitiveJob wraps the snapshot-compare-store cycle for one brand.
func (p *Pipeline) competitiveJob(ds *Dataset, entity Entity, thresholds models.Thresholds) func(ctx context.Context) []taggedAlert {
	return func(ctx context.Context) []taggedAlert {
		competitors, err := p.watchlists.Competitors(ctx, entity.Name)
		if err != nil {
			p.log.WithError(err).WithField("brand", entity.Name).Warn("Could not load competitors")
			return nil
		}
		if len(competitors) == 0 {
			return nil
		}

		current := ComputeCompetitiveSnapshot(ds, entity.Name, competitors)
		previous, err := p.competitive.Latest(ctx, entity.Name)
		if err != nil {
			p.log.WithError(err).WithField("brand", entity.Name).Warn("Could not load previous competitive snapshot")
		}
		if err := p.competitive.Store(ctx, current); err != nil {
			p.log.WithError(err).WithField("brand", entity.Name).Warn("Could not store competitive snapshot")
		}

		return tagAlerts(familyCompetitive,
			RunCompetitiveDetectors(entity.Name, entity.Username, current, previous, thresholds))
	}
}

func tagAlerts(family detectorFamily, alerts []models.Alert) []taggedAlert {
	tagged := make([]taggedAlert, 0, len(alerts))
	for _, a := range alerts {
		tagged = append(tagged, taggedAlert{family: family, alert: a})
	}
	return tagged
}

// processAlerts applies the cooldown gate, investigates survivors on a
// bounded pool, and stores them. Returns the number stored.
func (p *Pipeline) processAlerts(ctx context.Context, alerts []models.Alert, ds *Dataset) int {
	// Gate sequentially so a key accepted earlier in the run suppresses
	// later duplicates.
	var survivors []*models.Alert
	seen := make(map[string]bool)
	for i := range alerts {
		alert := &alerts[i]
		if p.cooldown.Suppressed(ctx, alert) || seen[alert.CooldownKey] {
			p.log.WithFields(logrus.Fields{"alert_type": alert.AlertType, "title": alert.Title}).Info("Skipped by cooldown")
			continue
		}
		seen[alert.CooldownKey] = true
		survivors = append(survivors, alert)
	}
	if len(survivors) == 0 {
		return 0
	}

	// Chains are sequential per alert but independent across alerts, so
	// investigations fan out over their own bounded pool.
	jobs := make([]func(ctx context.Context) []investigation, len(survivors))
	for i := range survivors {
		i, alert := i, survivors[i]
		jobs[i] = func(ctx context.Context) []investigation {
			// Situation reports already carry their synthesis.
			if alert.AlertType == models.AlertSituationReport && alert.Investigation != "" {
				return []investigation{{index: i, text: alert.Investigation}}
			}
			return []investigation{{index: i, text: p.investigate(ctx, alert, ds)}}
		}
	}
	workers := OptimalWorkers(p.cfg.Pipeline.MaxChainWorkers, len(jobs))
	p.log.WithFields(logrus.Fields{"alerts": len(jobs), "workers": workers}).Info("Investigating alerts")
	for _, inv := range runJobs(ctx, workers, jobs) {
		survivors[inv.index].Investigation = inv.text
	}

	stored := 0
	for _, alert := range survivors {
		log := p.log.WithFields(logrus.Fields{"alert_type": alert.AlertType, "title": alert.Title})
		if err := p.alerts.Insert(ctx, alert); err != nil {
			log.WithError(err).Error("Could not store alert")
			continue
		}
		p.cooldown.MarkStored(ctx, alert)
		stored++
		log.Info("Alert stored")
	}
	return stored
}

// investigation pairs a survivor's index with its investigation text so
// pool results can be reattached even when a cancelled run skips jobs.
type investigation struct {
	index int
	text  string
}

// investigate picks multi-step or single-turn investigation per alert and
// serializes the result. Investigation failures leave the field empty.
func (p *Pipeline) investigate(ctx context.Context, alert *models.Alert, ds *Dataset) string {
	stepCtx := ctx
	if timeout := p.cfg.AITimeout(); timeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, timeout*6)
		defer cancel()
	}

	if ShouldUseChain(alert) {
		if result := p.chain.Run(stepCtx, alert, ds); result != nil {
			p.log.WithFields(logrus.Fields{
				"alert_type": alert.AlertType,
				"steps":      len(result.Steps),
				"confidence": result.OverallConfidence,
			}).Info("Reasoning chain complete")
			if encoded, err := json.Marshal(result); err == nil {
				return string(encoded)
			}
		}
	}

	text, err := p.chain.Investigate(stepCtx, alert, ds)
	if err != nil {
		p.log.WithError(err).WithField("alert_type", alert.AlertType).Warn("Investigation failed")
		return ""
	}
	return text
}

// loadPrevLongevity pulls each watched brand's last stored longevity so the
// narrative-fading detector can compare against it.
func (p *Pipeline) loadPrevLongevity(ctx context.Context, watchlist models.Watchlist) map[string]float64 {
	prev := make(map[string]float64)
	cutoff := time.Now().UTC().AddDate(0, 0, -p.cfg.Pipeline.TrendLookbackDays)
	seen := make(map[string]bool)
	for _, brands := range watchlist {
		for _, brand := range brands {
			if seen[brand] {
				continue
			}
			seen[brand] = true
			history, err := p.snapshots.History(ctx, models.ScopeBrand, brand, "longevity", cutoff)
			if err != nil || len(history) == 0 {
				continue
			}
			prev[brand] = history[len(history)-1].Value
		}
	}
	return prev
}

func (p *Pipeline) runTuning(ctx context.Context) {
	changes, err := p.tuner.Run(ctx)
	if err != nil {
		p.log.WithError(err).Warn("Adaptive tuning failed")
		return
	}
	if len(changes) > 0 {
		p.log.WithField("adjusted", len(changes)).Info("Adaptive tuning adjusted thresholds")
	}
}

func (p *Pipeline) runCleanup(ctx context.Context) {
	if p.cleanup == nil {
		return
	}
	if pruned := p.cleanup.Run(ctx); pruned > 0 {
		p.log.WithField("rows", pruned).Info("Retention pruning complete")
	}
}

// truncate caps s at n bytes without splitting a multi-byte rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
