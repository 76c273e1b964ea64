package services

import (
	"math"
	"sort"

	"github.com/Chudetat/moodlight/internal/models"
)

// Minimum filtered records before VLDS scoring is meaningful.
const minVLDSRecords = 5

// ComputeVLDS scores a brand- or topic-filtered record set on the
// velocity/longevity/density/scarcity composite. The formulas and
// constants are calibrated product values; do not retune them.
//
// Returns nil below the minimum record count.
func ComputeVLDS(records []models.ScoredRecord) *models.VLDSScores {
	total := len(records)
	if total < minVLDSRecords {
		return nil
	}

	counts := dailyCounts(records)
	days := make([]string, 0, len(counts))
	for d := range counts {
		days = append(days, d)
	}
	sort.Strings(days)

	// Velocity: mean of the two most recent days' volume against the mean
	// of everything before them, halved and capped at 1.
	velocity := 0.5
	if len(days) >= 2 {
		recent := float64(counts[days[len(days)-1]]+counts[days[len(days)-2]]) / 2
		olderDays := days[:maxInt(1, len(days)-2)]
		olderSum := 0
		for _, d := range olderDays {
			olderSum += counts[d]
		}
		older := float64(olderSum) / float64(len(olderDays))
		ratio := 1.0
		if older > 0 {
			ratio = recent / older
		}
		velocity = math.Min(ratio/2.0, 1.0)
	}

	longevity := math.Min(float64(len(days))/7.0, 1.0)
	density := math.Min(float64(total)/100.0, 1.0)
	scarcity := 1.0 - round2(density)

	var empathySum float64
	var empathyCount int
	for _, r := range records {
		if r.HasEmpathyScore {
			empathySum += r.EmpathyScore
			empathyCount++
		}
	}
	avgEmpathy := 0.0
	if empathyCount > 0 {
		avgEmpathy = empathySum / float64(empathyCount)
	}

	return &models.VLDSScores{
		Velocity:   round2(velocity),
		Longevity:  round2(longevity),
		Density:    round2(density),
		Scarcity:   round2(scarcity),
		AvgEmpathy: math.Round(avgEmpathy*1000) / 1000,
		TotalPosts: total,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
