package analysis

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/mikey/subtrack/internal/core"
	"github.com/mikey/subtrack/internal/lookup"
)

type categoryKey struct {
	category string
	currency string
}

// DetectOverlaps pairs merchants of the same category and currency whose
// monthly costs differ by at most tolerance relative to the larger cost.
// Uncategorized merchants never overlap.
func DetectOverlaps(profiles []core.MerchantProfile, tolerance float64) []core.OverlapCandidate {
	groups := make(map[categoryKey][]core.MerchantProfile)
	for _, p := range profiles {
		if p.Category == "" || p.Category == lookup.Uncategorized || !p.MonthlyCost.IsPositive() {
			continue
		}
		key := categoryKey{category: p.Category, currency: p.Currency}
		groups[key] = append(groups[key], p)
	}

	limit := decimal.NewFromFloat(tolerance)
	overlaps := []core.OverlapCandidate{}
	for key, group := range groups {
		if len(group) < 2 {
			continue
		}
		sort.Slice(group, func(i, j int) bool {
			return group[i].Merchant < group[j].Merchant
		})

		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				a, b := group[i], group[j]
				if a.Merchant == b.Merchant {
					continue
				}
				ratio := costDeltaRatio(a.MonthlyCost, b.MonthlyCost)
				if ratio.GreaterThan(limit) {
					continue
				}
				overlaps = append(overlaps, core.OverlapCandidate{
					Merchants:        [2]string{a.Merchant, b.Merchant},
					Category:         key.category,
					Currency:         key.currency,
					CostDeltaRatio:   ratio.Round(4).InexactFloat64(),
					PotentialSavings: decimal.Min(a.MonthlyCost, b.MonthlyCost),
				})
			}
		}
	}

	sort.Slice(overlaps, func(i, j int) bool {
		x, y := overlaps[i], overlaps[j]
		if x.Category != y.Category {
			return x.Category < y.Category
		}
		if x.Currency != y.Currency {
			return x.Currency < y.Currency
		}
		if x.Merchants[0] != y.Merchants[0] {
			return x.Merchants[0] < y.Merchants[0]
		}
		return x.Merchants[1] < y.Merchants[1]
	})
	return overlaps
}

func costDeltaRatio(a, b decimal.Decimal) decimal.Decimal {
	larger := decimal.Max(a, b)
	if !larger.IsPositive() {
		return decimal.Zero
	}
	return a.Sub(b).Abs().Div(larger)
}
