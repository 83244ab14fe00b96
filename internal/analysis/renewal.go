package analysis

import (
	"sort"

	"github.com/mikey/subtrack/internal/core"
)

// PredictRenewal returns the first expected charge on or after today,
// counting whole periods from the last charge. A renewal falling exactly on
// today is returned as today and is listed as upcoming with zero days left;
// it only moves to the next period once today has passed. Irregular cadences
// have no prediction.
func PredictRenewal(last core.Date, cadence core.Cadence, today core.Date) (core.Date, bool) {
	months := cadence.Months()
	if months == 0 || last.IsZero() {
		return core.Date{}, false
	}

	// step from the last charge each time so month-end clamping never drifts
	next := last.AddMonths(months)
	for k := 2; next.Before(today); k++ {
		next = last.AddMonths(k * months)
	}
	return next, true
}

// WithRenewals returns a copy of profiles with NextRenewalDate filled in
func WithRenewals(profiles []core.MerchantProfile, today core.Date) []core.MerchantProfile {
	out := make([]core.MerchantProfile, len(profiles))
	for i, p := range profiles {
		p.NextRenewalDate = nil
		if next, ok := PredictRenewal(p.LastChargeDate, p.Frequency, today); ok {
			p.NextRenewalDate = &next
		}
		out[i] = p
	}
	return out
}

// UpcomingRenewals lists predicted renewals falling within lookaheadDays of
// today, soonest first. Both ends of the window are inclusive.
func UpcomingRenewals(profiles []core.MerchantProfile, today core.Date, lookaheadDays int) []core.RenewalRow {
	rows := []core.RenewalRow{}
	for _, p := range profiles {
		if p.NextRenewalDate == nil {
			continue
		}
		days := today.DaysUntil(*p.NextRenewalDate)
		if days < 0 || days > lookaheadDays {
			continue
		}
		rows = append(rows, core.RenewalRow{
			Merchant:    p.Merchant,
			Amount:      money(p.LastAmount),
			Currency:    p.Currency,
			RenewalDate: p.NextRenewalDate.String(),
			DaysUntil:   days,
		})
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].DaysUntil != rows[j].DaysUntil {
			return rows[i].DaysUntil < rows[j].DaysUntil
		}
		if rows[i].Merchant != rows[j].Merchant {
			return rows[i].Merchant < rows[j].Merchant
		}
		return rows[i].Currency < rows[j].Currency
	})
	return rows
}
