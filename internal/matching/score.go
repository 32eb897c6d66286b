package matching

import (
	"math"
	"sort"
	"strings"

	"github.com/Le520407/swift-fix-pro-sub002/internal/model"
)

// Sub-score weights. They must sum to exactly 1.0 — changing any of them
// changes ranking outcomes.
const (
	WeightRating       = 0.22
	WeightExperience   = 0.18
	WeightAvailability = 0.15
	WeightLocation     = 0.15
	WeightCategory     = 0.10
	WeightRecent       = 0.10
	WeightPrice        = 0.05
	WeightMembership   = 0.05
)

// Sub-score names, used in rationale building and score breakdowns.
const (
	ScoreRating       = "rating"
	ScoreExperience   = "experience"
	ScoreAvailability = "availability"
	ScoreLocation     = "location"
	ScoreCategory     = "category_expertise"
	ScoreRecent       = "recent_activity"
	ScorePrice        = "price_compatibility"
	ScoreMembership   = "membership"
)

// Placeholder until budget data exists on jobs; see price score below.
const neutralPriceScore = 70

// rationalePhrases maps qualifying sub-scores to user-facing explanations.
var rationalePhrases = map[string]string{
	ScoreRating:       "highly rated by customers",
	ScoreExperience:   "proven track record on similar jobs",
	ScoreAvailability: "available at the requested time",
	ScoreLocation:     "serves the job's area",
	ScoreCategory:     "specialist in the requested category",
	ScoreRecent:       "recently active on the platform",
	ScorePrice:        "competitive pricing",
	ScoreMembership:   "premium membership benefits",
}

const fallbackRationale = "good overall match for this job"

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// ratingScore is neutral for unrated providers so newcomers are not buried,
// then scales the 5-star average with volume and recency bonuses.
func ratingScore(stats *model.ProviderStats) float64 {
	if stats.Count == 0 {
		return 50
	}
	score := stats.Average / 5 * 100
	if stats.Count >= 10 {
		score += 5
	}
	if stats.Count >= 50 {
		score += 5
	}
	if stats.Count >= 100 {
		score += 5
	}
	if stats.RecentCount >= 3 {
		score += 3
	}
	return clamp(score)
}

var completedJobThresholds = []int{1, 5, 15, 50, 100}

func experienceScore(stats *model.ProviderStats) float64 {
	var score float64
	for _, t := range completedJobThresholds {
		if stats.CompletedJobs >= t {
			score += 20
		}
	}
	if stats.CompletionRate >= 90 {
		score += 10
	} else if stats.CompletionRate >= 80 {
		score += 5
	}
	if stats.RecentJobs >= 2 {
		score += 5
	}
	return clamp(score)
}

// locationScore is a coarse service-area text match, not geospatial routing.
func locationScore(provider *model.Provider, job *model.Job) float64 {
	if provider.ServiceArea == "" || job.City == "" {
		return 50
	}
	area := strings.ToLower(provider.ServiceArea)
	if strings.Contains(area, strings.ToLower(job.City)) {
		return 100
	}
	if job.State != "" && strings.Contains(area, strings.ToLower(job.State)) {
		return 70
	}
	return 30
}

// categoryScore rewards specialization: an exact category match is required,
// and fewer listed categories score higher.
func categoryScore(provider *model.Provider, job *model.Job) float64 {
	if !provider.HasCategory(job.Category) {
		return 0
	}
	score := 80.0
	switch n := len(provider.Categories); {
	case n == 1:
		score += 20
	case n <= 3:
		score += 10
	}
	return clamp(score)
}

func recentActivityScore(stats *model.ProviderStats) float64 {
	recent := stats.RecentJobs + stats.RecentCount
	switch {
	case recent >= 5:
		return 100
	case recent >= 3:
		return 80
	case recent >= 1:
		return 60
	default:
		return 30
	}
}

var tierBaseScore = map[model.MembershipTier]float64{
	model.TierBasic:        0,
	model.TierProfessional: 25,
	model.TierPremium:      50,
	model.TierEnterprise:   75,
}

func membershipScore(provider *model.Provider) float64 {
	score := tierBaseScore[provider.Tier]
	f := provider.Features
	if f.PriorityAssignment {
		score += 15
	}
	if f.EmergencyService {
		score += 10
	}
	if f.FeaturedListing {
		score += 10
	}
	if f.Analytics {
		score += 5
	}
	if f.PrioritySupport {
		score += 5
	}
	return clamp(score)
}

// buildRationale picks the three largest weighted contributions whose raw
// score is at least 80 and joins their phrases; a generic phrase covers
// providers with no standout component.
func buildRationale(subs []model.SubScore) string {
	qualified := make([]model.SubScore, 0, len(subs))
	for _, s := range subs {
		if s.Score >= 80 {
			qualified = append(qualified, s)
		}
	}
	sort.Slice(qualified, func(i, j int) bool {
		return qualified[i].Weighted > qualified[j].Weighted
	})
	if len(qualified) > 3 {
		qualified = qualified[:3]
	}
	phrases := make([]string, 0, len(qualified))
	for _, s := range qualified {
		if p, ok := rationalePhrases[s.Name]; ok {
			phrases = append(phrases, p)
		}
	}
	if len(phrases) == 0 {
		return fallbackRationale
	}
	return strings.Join(phrases, "; ")
}

// ComputeScore combines the eight weighted sub-scores for one provider and
// job into a ScoreRecord. availabilityScore is evaluated separately because
// it may consult the job store for current workload.
func ComputeScore(provider *model.Provider, stats *model.ProviderStats, job *model.Job, availabilityScore float64) model.ScoreRecord {
	subs := []model.SubScore{
		{Name: ScoreRating, Score: ratingScore(stats), Weight: WeightRating},
		{Name: ScoreExperience, Score: experienceScore(stats), Weight: WeightExperience},
		{Name: ScoreAvailability, Score: clamp(availabilityScore), Weight: WeightAvailability},
		{Name: ScoreLocation, Score: locationScore(provider, job), Weight: WeightLocation},
		{Name: ScoreCategory, Score: categoryScore(provider, job), Weight: WeightCategory},
		{Name: ScoreRecent, Score: recentActivityScore(stats), Weight: WeightRecent},
		{Name: ScorePrice, Score: neutralPriceScore, Weight: WeightPrice},
		{Name: ScoreMembership, Score: membershipScore(provider), Weight: WeightMembership},
	}

	var total float64
	for i := range subs {
		subs[i].Weighted = subs[i].Score * subs[i].Weight
		total += subs[i].Weighted
	}
	total = math.Round(total*100) / 100

	return model.ScoreRecord{
		ProviderID: provider.ID,
		Provider:   provider,
		SubScores:  subs,
		TotalScore: total,
		Rationale:  buildRationale(subs),
	}
}

// WeightSum returns the sum of the eight weights. Exposed so callers and
// tests can assert the weights still form a proper convex combination.
func WeightSum() float64 {
	return WeightRating + WeightExperience + WeightAvailability + WeightLocation +
		WeightCategory + WeightRecent + WeightPrice + WeightMembership
}

// failedScore marks a provider whose statistics or scoring blew up; it sinks
// to the bottom and is excluded from ranked results.
func failedScore(providerID string) model.ScoreRecord {
	return model.ScoreRecord{
		ProviderID: providerID,
		TotalScore: 0,
		Rationale:  "error",
		Failed:     true,
	}
}
