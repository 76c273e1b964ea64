package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Chudetat/moodlight/internal/database"
	"github.com/Chudetat/moodlight/internal/models"
)

// SnapshotService captures the per-run metric values the trend analyzer
// and predictive detectors feed on. Each upsert is independently
// conflict-safe; a failed write is logged and skipped, never fatal.
type SnapshotService struct {
	repo   *database.SnapshotRepository
	logger *logrus.Logger
}

// NewSnapshotService creates a new snapshot capture service.
func NewSnapshotService(repo *database.SnapshotRepository, logger *logrus.Logger) *SnapshotService {
	return &SnapshotService{repo: repo, logger: logger}
}

// Capture computes and stores today's metric snapshots for the global,
// brand, topic, and commodity scopes. Returns the number of snapshots
// stored.
func (s *SnapshotService) Capture(ctx context.Context, ds *Dataset, watchlist models.Watchlist, topics models.TopicWatchlist) int {
	date := ds.Now.UTC().Truncate(24 * time.Hour)
	var snapshots []models.MetricSnapshot

	add := func(scope models.Scope, scopeName, metric string, value float64, sample int) {
		snapshots = append(snapshots, models.MetricSnapshot{
			Date:       date,
			Scope:      scope,
			ScopeName:  scopeName,
			MetricName: metric,
			Value:      value,
			SampleSize: sample,
		})
	}

	// Global source metrics
	for _, src := range ds.sourceSlices() {
		if len(src.Records) == 0 {
			continue
		}
		if avg, n := meanEmpathy(src.Records); n > 0 {
			add(models.ScopeGlobal, "", "avg_empathy_"+src.Label, avg, len(src.Records))
			high := 0
			for _, r := range src.Records {
				if r.HasEmpathyScore && r.EmpathyScore > 0.7 {
					high++
				}
			}
			add(models.ScopeGlobal, "", "high_emotion_ratio_"+src.Label,
				float64(high)/float64(len(src.Records)), len(src.Records))
		}
		add(models.ScopeGlobal, "", "total_"+src.Label+"_count", float64(len(src.Records)), len(src.Records))
	}

	if len(ds.Markets) > 0 {
		var sum float64
		for _, t := range ds.Markets {
			sum += t.Sentiment
		}
		add(models.ScopeGlobal, "", "market_sentiment", sum/float64(len(ds.Markets)), len(ds.Markets))
	}

	// Geopolitical intensity for trend tracking
	geo := topicSubset(ds.News, geopoliticalTopics)
	var geoSum float64
	var geoCount int
	for _, r := range geo {
		if r.Intensity > 0 {
			geoSum += float64(r.Intensity)
			geoCount++
		}
	}
	if geoCount > 0 {
		add(models.ScopeGlobal, "", "avg_intensity_geopolitical", geoSum/float64(geoCount), geoCount)
	}

	// Per-brand metrics (each brand once, however many users watch it)
	seenBrands := make(map[string]bool)
	for _, brands := range watchlist {
		for _, brand := range brands {
			if seenBrands[brand] {
				continue
			}
			seenBrands[brand] = true
			news := filterByBrand(ds.News, brand)
			social := filterByBrand(ds.Social, brand)

			add(models.ScopeBrand, brand, "mention_count_news", float64(len(news)), len(news))
			add(models.ScopeBrand, brand, "mention_count_social", float64(len(social)), len(social))

			combined := concatRecords(news, social)
			if avg, n := meanEmpathy(combined); n > 0 {
				add(models.ScopeBrand, brand, "avg_empathy", avg, len(combined))
			}
			if vlds := ComputeVLDS(combined); vlds != nil {
				add(models.ScopeBrand, brand, "velocity", vlds.Velocity, vlds.TotalPosts)
				add(models.ScopeBrand, brand, "longevity", vlds.Longevity, vlds.TotalPosts)
				add(models.ScopeBrand, brand, "density", vlds.Density, vlds.TotalPosts)
				add(models.ScopeBrand, brand, "scarcity", vlds.Scarcity, vlds.TotalPosts)
			}
		}
	}

	// Per-topic metrics
	seenTopics := make(map[string]bool)
	for _, entries := range topics {
		for _, entry := range entries {
			if seenTopics[entry.Name] {
				continue
			}
			seenTopics[entry.Name] = true
			filtered := concatRecords(
				filterByTopic(ds.News, entry.Name, entry.IsCategory),
				filterByTopic(ds.Social, entry.Name, entry.IsCategory),
			)
			add(models.ScopeTopic, entry.Name, "mention_count", float64(len(filtered)), len(filtered))
			if vlds := ComputeVLDS(filtered); vlds != nil {
				add(models.ScopeTopic, entry.Name, "velocity", vlds.Velocity, vlds.TotalPosts)
				add(models.ScopeTopic, entry.Name, "density", vlds.Density, vlds.TotalPosts)
			}
		}
	}

	// Per-symbol market values for the reasoning chain's context
	latestBySymbol := make(map[string]models.MarketTick)
	for _, t := range ds.Markets {
		if prev, ok := latestBySymbol[t.Symbol]; !ok || t.Timestamp.After(prev.Timestamp) {
			latestBySymbol[t.Symbol] = t
		}
	}
	for symbol, tick := range latestBySymbol {
		value, _ := tick.Value.Float64()
		add(models.ScopeCommodity, symbol, "price", value, 1)
	}

	stored := 0
	for _, snap := range snapshots {
		if err := s.repo.Upsert(ctx, snap); err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"scope":  snap.Scope,
				"entity": snap.ScopeName,
				"metric": snap.MetricName,
			}).Warn("Snapshot upsert failed, skipping")
			continue
		}
		stored++
	}
	return stored
}
