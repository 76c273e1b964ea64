package services

import (
	"fmt"
	"math"

	"github.com/Chudetat/moodlight/internal/models"
)

// ComputeCompetitiveSnapshot measures a brand and its competitors over the
// run's dataset: per-name VLDS and mention counts, share of voice, and
// brand-vs-average-competitor metric gaps.
func ComputeCompetitiveSnapshot(ds *Dataset, brand string, competitors []models.Competitor) *models.CompetitiveSnapshot {
	names := []string{brand}
	for _, c := range competitors {
		names = append(names, c.CompetitorName)
	}

	standings := make(map[string]models.BrandStanding, len(names))
	totalMentions := 0
	for _, name := range names {
		records := concatRecords(
			filterByBrand(ds.News, name),
			filterByBrand(ds.Social, name),
		)
		standings[name] = models.BrandStanding{
			VLDS:         ComputeVLDS(records),
			MentionCount: len(records),
		}
		totalMentions += len(records)
	}

	sov := make(map[string]float64, len(names))
	for _, name := range names {
		if totalMentions > 0 {
			sov[name] = math.Round(float64(standings[name].MentionCount)/float64(totalMentions)*1000) / 10
		} else {
			sov[name] = 0
		}
	}

	gaps := make(map[string]float64)
	brandVLDS := standings[brand].VLDS
	var compScores []*models.VLDSScores
	for _, c := range competitors {
		if v := standings[c.CompetitorName].VLDS; v != nil {
			compScores = append(compScores, v)
		}
	}
	if brandVLDS != nil && len(compScores) > 0 {
		metric := func(v *models.VLDSScores, name string) float64 {
			switch name {
			case "velocity":
				return v.Velocity
			case "longevity":
				return v.Longevity
			case "density":
				return v.Density
			default:
				return v.Scarcity
			}
		}
		for _, name := range []string{"velocity", "longevity", "density", "scarcity"} {
			var sum float64
			for _, v := range compScores {
				sum += metric(v, name)
			}
			avg := sum / float64(len(compScores))
			brandVal := metric(brandVLDS, name)
			gaps[name+"_gap"] = math.Round((brandVal-avg)*1000) / 1000
			gaps[name+"_brand"] = math.Round(brandVal*1000) / 1000
			gaps[name+"_comp_avg"] = math.Round(avg*1000) / 1000
		}
	}

	return &models.CompetitiveSnapshot{
		Brand:        brand,
		Standings:    standings,
		ShareOfVoice: sov,
		Gaps:         gaps,
		CreatedAt:    ds.Now,
	}
}

// RunCompetitiveDetectors diffs the current snapshot against the previous
// one and fires the competitive alert family. A nil previous snapshot
// disables the comparison-based rules.
func RunCompetitiveDetectors(brand, username string, current, previous *models.CompetitiveSnapshot, thresholds models.Thresholds) []models.Alert {
	if current == nil {
		return nil
	}
	var alerts []models.Alert

	brandVLDS := current.Standings[brand].VLDS

	// Competitor momentum: a competitor's conversation velocity clearly
	// outpacing the brand's.
	momentumGap := thresholds.Level(models.AlertCompetitorMomentum, "warning", 0.3)
	if brandVLDS != nil {
		for name, standing := range current.Standings {
			if name == brand || standing.VLDS == nil {
				continue
			}
			gap := standing.VLDS.Velocity - brandVLDS.Velocity
			if gap <= momentumGap {
				continue
			}
			a := newAlert(
				models.AlertCompetitorMomentum, models.SeverityWarning,
				fmt.Sprintf("%s is outpacing %s", name, brand),
				fmt.Sprintf("%s's conversation velocity (%.2f) exceeds %s's (%.2f) by %.2f. The competitor is gaining narrative momentum.",
					name, standing.VLDS.Velocity, brand, brandVLDS.Velocity, gap),
				models.CompetitivePayload{
					Brand:        brand,
					Competitor:   name,
					ShareOfVoice: current.ShareOfVoice,
					Gaps:         current.Gaps,
				},
			)
			a.Brand, a.Username = brand, username
			alerts = append(alerts, a)
		}
	}

	// Share-of-voice shift: the brand losing ground against the field
	// since the last snapshot, or being overtaken outright.
	if previous != nil {
		warnPts := thresholds.Level(models.AlertShareOfVoiceShift, "warning", 10)
		critPts := thresholds.Level(models.AlertShareOfVoiceShift, "critical", 20)
		prevSOV, okPrev := previous.ShareOfVoice[brand]
		currSOV, okCurr := current.ShareOfVoice[brand]
		if okPrev && okCurr {
			drop := prevSOV - currSOV
			if drop > warnPts {
				severity := models.SeverityWarning
				if drop > critPts {
					severity = models.SeverityCritical
				}
				a := newAlert(
					models.AlertShareOfVoiceShift, severity,
					fmt.Sprintf("%s losing share of voice: -%.1fpts", brand, drop),
					fmt.Sprintf("%s's share of voice dropped from %.1f%% to %.1f%% since the last snapshot.",
						brand, prevSOV, currSOV),
					models.CompetitivePayload{
						Brand:        brand,
						ShareOfVoice: current.ShareOfVoice,
						Gaps:         current.Gaps,
					},
				)
				a.Brand, a.Username = brand, username
				alerts = append(alerts, a)
			}
		}

		for name := range current.Standings {
			if name == brand {
				continue
			}
			overtookNow := current.ShareOfVoice[name] > current.ShareOfVoice[brand]
			ledBefore := previous.ShareOfVoice[name] <= previous.ShareOfVoice[brand]
			if overtookNow && ledBefore {
				a := newAlert(
					models.AlertShareOfVoiceShift, models.SeverityCritical,
					fmt.Sprintf("%s overtook %s in share of voice", name, brand),
					fmt.Sprintf("%s now holds %.1f%% share of voice vs %s's %.1f%%, reversing the previous standing.",
						name, current.ShareOfVoice[name], brand, current.ShareOfVoice[brand]),
					models.CompetitivePayload{
						Brand:        brand,
						Competitor:   name,
						ShareOfVoice: current.ShareOfVoice,
						Gaps:         current.Gaps,
					},
				)
				a.Brand, a.Username = brand, username
				alerts = append(alerts, a)
			}
		}
	}

	// Competitive white space: the field is saturated while the brand's
	// own coverage density stays low.
	if gap, ok := current.Gaps["density_gap"]; ok {
		minGap := thresholds.Level(models.AlertCompetitiveWhiteSpace, "warning", 0.3)
		if gap < -minGap {
			a := newAlert(
				models.AlertCompetitiveWhiteSpace, models.SeverityWarning,
				fmt.Sprintf("White space vs competitors for %s", brand),
				fmt.Sprintf("Competitors average %.2f density while %s sits at %.2f. Their space is crowded and the brand's adjacent space is open.",
					current.Gaps["density_comp_avg"], brand, current.Gaps["density_brand"]),
				models.CompetitivePayload{
					Brand:        brand,
					ShareOfVoice: current.ShareOfVoice,
					Gaps:         current.Gaps,
				},
			)
			a.Brand, a.Username = brand, username
			alerts = append(alerts, a)
		}
	}

	return alerts
}
