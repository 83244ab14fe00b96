package analysis

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/mikey/subtrack/internal/core"
	"github.com/mikey/subtrack/internal/lookup"
)

var twelve = decimal.NewFromInt(12)

// ReportInput carries the derived entities of one analysis run
type ReportInput struct {
	Today           core.Date
	TotalRecords    int
	Profiles        []core.MerchantProfile
	Cancelled       []core.SubscriptionEvent
	Overlaps        []core.OverlapCandidate
	Health          []core.HealthScore
	LookaheadDays   int
	PrimaryCurrency string
	Tables          *lookup.Tables
}

// BuildReport assembles the report. Spend is totalled per currency and never
// summed across currencies; the headline totals cover the primary currency
// only. Every list is sorted so identical input gives identical output.
func BuildReport(in ReportInput) *core.Report {
	report := &core.Report{
		AsOf:                    in.Today.String(),
		TotalRecords:            in.TotalRecords,
		MerchantCount:           len(in.Profiles),
		PrimaryCurrency:         in.PrimaryCurrency,
		SpendByCurrency:         map[string]float64{},
		YearlySpendByCurrency:   map[string]float64{},
		PotentialMonthlySavings: map[string]float64{},
		Merchants:               []core.MerchantRow{},
		Overlaps:                []core.OverlapRow{},
		ForgottenSubscriptions:  []core.ForgottenRow{},
		Health:                  []core.HealthScore{},
		RecentlyCancelled:       []core.CancelledRow{},
		MonthlyTrend:            map[string][]core.TrendPoint{},
		CategoryBreakdown:       map[string][]core.CategorySpend{},
	}

	healthByID := make(map[string]core.HealthScore, len(in.Health))
	for _, h := range in.Health {
		healthByID[h.Merchant+"/"+h.Currency] = h
	}
	if in.Health != nil {
		report.Health = in.Health
	}

	spend := make(map[string]decimal.Decimal)
	for _, p := range in.Profiles {
		spend[p.Currency] = spend[p.Currency].Add(p.MonthlyCost)
		health := healthByID[p.ID()]

		row := core.MerchantRow{
			Merchant:      p.Merchant,
			Category:      p.Category,
			MonthlyCost:   money(p.MonthlyCost),
			Currency:      p.Currency,
			Source:        p.Source,
			Frequency:     p.Frequency,
			LowConfidence: p.LowConfidence,
			Status:        string(p.Status),
			LastCharge:    p.LastChargeDate.String(),
			ChargeCount:   len(p.Events),
			HealthScore:   health.Score,
			HealthLabel:   health.Label,
			CancelURL:     in.Tables.CancelURL(p.Merchant),
		}
		if p.NextRenewalDate != nil {
			next := p.NextRenewalDate.String()
			row.NextRenewal = &next
		}
		report.Merchants = append(report.Merchants, row)

		if p.Status == core.ProfileForgotten {
			report.ForgottenSubscriptions = append(report.ForgottenSubscriptions, core.ForgottenRow{
				Merchant:      p.Merchant,
				Currency:      p.Currency,
				Frequency:     p.Frequency,
				LastCharge:    p.LastChargeDate.String(),
				DaysSinceLast: p.LastChargeDate.DaysUntil(in.Today),
				MonthlyCost:   money(p.MonthlyCost),
			})
		}
	}
	sortMerchantRows(report.Merchants)

	for currency, total := range spend {
		report.SpendByCurrency[currency] = money(total)
		report.YearlySpendByCurrency[currency] = money(total.Mul(twelve))
	}
	primary := spend[in.PrimaryCurrency]
	report.TotalMonthlySpend = money(primary)
	report.TotalYearlySpend = money(primary.Mul(twelve))

	report.UpcomingRenewals = UpcomingRenewals(in.Profiles, in.Today, in.LookaheadDays)

	savings := make(map[string]decimal.Decimal)
	for _, o := range in.Overlaps {
		savings[o.Currency] = savings[o.Currency].Add(o.PotentialSavings)
		report.Overlaps = append(report.Overlaps, core.OverlapRow{
			Merchants:        o.Merchants,
			Category:         o.Category,
			Currency:         o.Currency,
			CostDeltaRatio:   o.CostDeltaRatio,
			PotentialSavings: money(o.PotentialSavings),
		})
	}
	for currency, total := range savings {
		report.PotentialMonthlySavings[currency] = money(total)
	}

	report.RecentlyCancelled = recentlyCancelled(in.Cancelled, in.Profiles, in.Tables)
	report.MonthlyTrend = monthlyTrend(in.Profiles)
	report.CategoryBreakdown = categoryBreakdown(in.Profiles)
	return report
}

// recentlyCancelled lists merchants seen only through cancellation notices,
// most recent first
func recentlyCancelled(cancelled []core.SubscriptionEvent, profiles []core.MerchantProfile, tables *lookup.Tables) []core.CancelledRow {
	active := make(map[string]struct{}, len(profiles))
	for _, p := range profiles {
		active[p.Key] = struct{}{}
	}

	latest := make(map[string]core.SubscriptionEvent)
	for _, ev := range cancelled {
		key := merchantKey(tables, ev.Merchant)
		if _, ok := active[key]; ok {
			continue
		}
		if prev, ok := latest[key]; !ok || prev.Date.Before(ev.Date) {
			latest[key] = ev
		}
	}

	rows := make([]core.CancelledRow, 0, len(latest))
	for _, ev := range latest {
		merchant := tables.Canonical(ev.Merchant)
		rows = append(rows, core.CancelledRow{
			Merchant:      merchant,
			Category:      tables.Category(merchant),
			CancelledDate: ev.Date.String(),
			LastAmount:    money(ev.Amount),
			Currency:      ev.Currency,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].CancelledDate != rows[j].CancelledDate {
			return rows[i].CancelledDate > rows[j].CancelledDate
		}
		return rows[i].Merchant < rows[j].Merchant
	})
	return rows
}

// monthlyTrend sums the charges of every calendar month per currency
func monthlyTrend(profiles []core.MerchantProfile) map[string][]core.TrendPoint {
	byCurrency := make(map[string]map[string]decimal.Decimal)
	for _, p := range profiles {
		months, ok := byCurrency[p.Currency]
		if !ok {
			months = make(map[string]decimal.Decimal)
			byCurrency[p.Currency] = months
		}
		for _, ev := range p.Events {
			months[ev.Date.Month()] = months[ev.Date.Month()].Add(ev.Amount)
		}
	}

	trend := make(map[string][]core.TrendPoint, len(byCurrency))
	for currency, months := range byCurrency {
		points := make([]core.TrendPoint, 0, len(months))
		for month, amount := range months {
			points = append(points, core.TrendPoint{Month: month, Amount: money(amount)})
		}
		sort.Slice(points, func(i, j int) bool {
			return points[i].Month < points[j].Month
		})
		trend[currency] = points
	}
	return trend
}

// categoryBreakdown totals monthly cost per category within each currency,
// largest first
func categoryBreakdown(profiles []core.MerchantProfile) map[string][]core.CategorySpend {
	byCurrency := make(map[string]map[string]decimal.Decimal)
	for _, p := range profiles {
		cats, ok := byCurrency[p.Currency]
		if !ok {
			cats = make(map[string]decimal.Decimal)
			byCurrency[p.Currency] = cats
		}
		cats[p.Category] = cats[p.Category].Add(p.MonthlyCost)
	}

	breakdown := make(map[string][]core.CategorySpend, len(byCurrency))
	for currency, cats := range byCurrency {
		rows := make([]core.CategorySpend, 0, len(cats))
		for category, cost := range cats {
			rows = append(rows, core.CategorySpend{Category: category, MonthlyCost: money(cost)})
		}
		sort.Slice(rows, func(i, j int) bool {
			if rows[i].MonthlyCost != rows[j].MonthlyCost {
				return rows[i].MonthlyCost > rows[j].MonthlyCost
			}
			return rows[i].Category < rows[j].Category
		})
		breakdown[currency] = rows
	}
	return breakdown
}

func sortMerchantRows(rows []core.MerchantRow) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].MonthlyCost != rows[j].MonthlyCost {
			return rows[i].MonthlyCost > rows[j].MonthlyCost
		}
		if rows[i].Merchant != rows[j].Merchant {
			return rows[i].Merchant < rows[j].Merchant
		}
		return rows[i].Currency < rows[j].Currency
	})
}

func money(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}
