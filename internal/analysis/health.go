package analysis

import (
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/mikey/subtrack/internal/core"
	"github.com/mikey/subtrack/internal/lookup"
)

const (
	maxScore = 100
	minScore = 0
)

// Health labels, from best to worst
const (
	LabelHealthy = "Healthy"
	LabelFair    = "Fair"
	LabelReview  = "Review"
	LabelCancel  = "Cancel?"
)

// HealthLabel buckets a score: 75 and up is healthy, 50 fair, 25 review,
// anything lower is a cancellation candidate.
func HealthLabel(score int) string {
	switch {
	case score >= 75:
		return LabelHealthy
	case score >= 50:
		return LabelFair
	case score >= 25:
		return LabelReview
	default:
		return LabelCancel
	}
}

// ScoreHealth computes one score per profile, in profile order. Penalties are
// applied as recency, regularity, cost, overlap; the running score is clamped
// to [0,100] after each one and every applied penalty adds one tip.
func ScoreHealth(profiles []core.MerchantProfile, overlaps []core.OverlapCandidate, today core.Date, cfg Config) []core.HealthScore {
	medians := categoryMedians(profiles)

	scores := make([]core.HealthScore, 0, len(profiles))
	for _, p := range profiles {
		s := scorer{score: maxScore, tips: []string{}}

		s.apply(recencyPenalty(p, today, cfg.Health))
		s.apply(regularityPenalty(p, cfg))
		s.apply(costPenalty(p, medians, cfg.Health))
		s.apply(overlapPenalty(p, overlaps, cfg.Health))

		scores = append(scores, core.HealthScore{
			Merchant: p.Merchant,
			Currency: p.Currency,
			Score:    s.score,
			Label:    HealthLabel(s.score),
			Tips:     s.tips,
		})
	}
	return scores
}

type scorer struct {
	score int
	tips  []string
}

func (s *scorer) apply(penalty int, tip string) {
	if penalty <= 0 {
		return
	}
	s.score -= penalty
	if s.score < minScore {
		s.score = minScore
	}
	if s.score > maxScore {
		s.score = maxScore
	}
	s.tips = append(s.tips, tip)
}

// recencyPenalty grows with the number of expected periods that passed
// without a charge. Irregular merchants are measured against their median gap.
func recencyPenalty(p core.MerchantProfile, today core.Date, w HealthWeights) (int, string) {
	expected := p.Frequency.Days()
	if expected == 0 {
		expected = medianInt(p.Deltas)
	}
	if expected <= 0 || p.LastChargeDate.IsZero() {
		return 0, ""
	}

	since := p.LastChargeDate.DaysUntil(today)
	ratio := float64(since) / float64(expected)
	if ratio <= 1 {
		return 0, ""
	}
	penalty := int(math.Round((ratio - 1) * float64(w.RecencyMax) / 2))
	if penalty > w.RecencyMax {
		penalty = w.RecencyMax
	}
	return penalty, fmt.Sprintf("No charge seen for %d days; expected every %d days", since, expected)
}

func regularityPenalty(p core.MerchantProfile, cfg Config) (int, string) {
	switch {
	case p.Frequency == core.CadenceIrregular:
		return cfg.Health.RegularityIrregular, "Charges do not follow a regular billing cycle"
	case p.LowConfidence:
		return cfg.Health.RegularitySingle, fmt.Sprintf("Only one charge seen; %s cadence assumed", p.Frequency)
	}
	if cv := variation(p.Deltas); cv > cfg.VarianceThreshold {
		return cfg.Health.RegularityVariance, fmt.Sprintf("Charge intervals vary by %.0f%%", cv*100)
	}
	return 0, ""
}

func costPenalty(p core.MerchantProfile, medians map[categoryKey]decimal.Decimal, w HealthWeights) (int, string) {
	median, ok := medians[categoryKey{category: p.Category, currency: p.Currency}]
	if !ok || !median.IsPositive() {
		return 0, ""
	}
	ratio := p.MonthlyCost.Div(median).InexactFloat64()
	if ratio <= w.CostRatio {
		return 0, ""
	}
	penalty := int(math.Round((ratio - 1) * 10))
	if penalty > w.CostMax {
		penalty = w.CostMax
	}
	return penalty, fmt.Sprintf("Costs %.1fx the %s median", ratio, p.Category)
}

func overlapPenalty(p core.MerchantProfile, overlaps []core.OverlapCandidate, w HealthWeights) (int, string) {
	for _, o := range overlaps {
		if o.Currency == p.Currency && o.Involves(p.Merchant) {
			return w.Overlap, fmt.Sprintf("Overlaps with %s in %s", o.Partner(p.Merchant), o.Category)
		}
	}
	return 0, ""
}

// categoryMedians returns the median monthly cost of every categorized
// (category, currency) group with at least two merchants
func categoryMedians(profiles []core.MerchantProfile) map[categoryKey]decimal.Decimal {
	groups := make(map[categoryKey][]decimal.Decimal)
	for _, p := range profiles {
		if p.Category == "" || p.Category == lookup.Uncategorized {
			continue
		}
		key := categoryKey{category: p.Category, currency: p.Currency}
		groups[key] = append(groups[key], p.MonthlyCost)
	}

	medians := make(map[categoryKey]decimal.Decimal, len(groups))
	for key, costs := range groups {
		if len(costs) < 2 {
			continue
		}
		sort.Slice(costs, func(i, j int) bool {
			return costs[i].LessThan(costs[j])
		})
		mid := len(costs) / 2
		if len(costs)%2 == 1 {
			medians[key] = costs[mid]
		} else {
			medians[key] = costs[mid-1].Add(costs[mid]).Div(decimal.NewFromInt(2))
		}
	}
	return medians
}

func medianInt(values []int) int {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]int(nil), values...)
	sort.Ints(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// variation is the coefficient of variation of the deltas, 0 below two samples
func variation(deltas []int) float64 {
	if len(deltas) < 2 {
		return 0
	}
	var sum float64
	for _, d := range deltas {
		sum += float64(d)
	}
	mean := sum / float64(len(deltas))
	if mean == 0 {
		return 0
	}
	var sq float64
	for _, d := range deltas {
		diff := float64(d) - mean
		sq += diff * diff
	}
	return math.Sqrt(sq/float64(len(deltas)-1)) / mean
}
