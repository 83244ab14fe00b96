package analysis

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/mikey/subtrack/internal/core"
	"github.com/mikey/subtrack/internal/lookup"
)

// CadenceResult is the outcome of cadence inference over one merchant's dates
type CadenceResult struct {
	Cadence       core.Cadence
	LowConfidence bool
	Deltas        []int
}

// InferCadence assigns the cadence matched by a strict majority of the
// day-deltas between consecutive dates. Same-day charges carry no period
// information and are ignored. Without any usable delta the fallback cadence
// is assumed and the result is marked low confidence.
func InferCadence(dates []core.Date, fallback core.Cadence) CadenceResult {
	var deltas []int
	for i := 1; i < len(dates); i++ {
		if d := dates[i-1].DaysUntil(dates[i]); d > 0 {
			deltas = append(deltas, d)
		}
	}
	if len(deltas) == 0 {
		if fallback == "" {
			fallback = core.CadenceMonthly
		}
		return CadenceResult{Cadence: fallback, LowConfidence: true, Deltas: []int{}}
	}

	for _, cadence := range core.PeriodicCadences {
		matches := 0
		for _, d := range deltas {
			if abs(d-cadence.Days()) <= cadence.Tolerance() {
				matches++
			}
		}
		if matches*2 > len(deltas) {
			return CadenceResult{Cadence: cadence, Deltas: deltas}
		}
	}
	return CadenceResult{Cadence: core.CadenceIrregular, Deltas: deltas}
}

// MonthlyCost normalizes a charge to its monthly equivalent. Irregular
// charges have no period and are returned unchanged.
func MonthlyCost(amount decimal.Decimal, cadence core.Cadence) decimal.Decimal {
	months := cadence.Months()
	if months == 0 {
		return amount
	}
	return amount.Div(decimal.NewFromInt(int64(months))).Round(2)
}

type groupKey struct {
	merchant string
	currency string
}

// Aggregate partitions active events by (normalized merchant, currency) and
// derives one profile per partition. Cancellation notices are returned
// separately. Renewal and status fields depend on the current date and are
// left for WithRenewals and FlagForgotten.
func Aggregate(events []core.SubscriptionEvent, tables *lookup.Tables, cfg Config) ([]core.MerchantProfile, []core.SubscriptionEvent) {
	seen := make(map[string]struct{}, len(events))
	groups := make(map[groupKey][]core.SubscriptionEvent)
	var cancelled []core.SubscriptionEvent

	for _, ev := range events {
		if _, dup := seen[ev.ID]; dup {
			continue
		}
		seen[ev.ID] = struct{}{}

		if ev.IsCancellation() {
			cancelled = append(cancelled, ev)
			continue
		}
		key := groupKey{merchant: merchantKey(tables, ev.Merchant), currency: ev.Currency}
		groups[key] = append(groups[key], ev)
	}

	profiles := make([]core.MerchantProfile, 0, len(groups))
	for key, evs := range groups {
		profiles = append(profiles, buildProfile(key, evs, tables, cfg))
	}
	sortProfiles(profiles)
	sortEvents(cancelled)
	return profiles, cancelled
}

func buildProfile(key groupKey, events []core.SubscriptionEvent, tables *lookup.Tables, cfg Config) core.MerchantProfile {
	sortEvents(events)

	dates := make([]core.Date, len(events))
	for i, ev := range events {
		dates[i] = ev.Date
	}
	cadence := InferCadence(dates, cfg.SingleEventCadence)
	if override, ok := frequencyOverride(events); ok {
		cadence.Cadence = override
		cadence.LowConfidence = false
	}

	last := events[len(events)-1]
	merchant := tables.Canonical(last.Merchant)

	return core.MerchantProfile{
		Key:            key.merchant,
		Merchant:       merchant,
		Category:       tables.Category(merchant),
		Currency:       key.currency,
		Events:         events,
		Frequency:      cadence.Cadence,
		LowConfidence:  cadence.LowConfidence,
		Deltas:         cadence.Deltas,
		MonthlyCost:    MonthlyCost(last.Amount, cadence.Cadence),
		LastAmount:     last.Amount,
		LastChargeDate: last.Date,
		Status:         core.ProfileActive,
		Source:         last.Source,
	}
}

// frequencyOverride returns the cadence pinned by the most recent event that
// carries one. Events must be sorted by date.
func frequencyOverride(events []core.SubscriptionEvent) (core.Cadence, bool) {
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].FrequencyOverride == "" {
			continue
		}
		if cadence, err := core.ParseCadence(string(events[i].FrequencyOverride)); err == nil {
			return cadence, true
		}
	}
	return "", false
}

func sortEvents(events []core.SubscriptionEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].Date.Equal(events[j].Date) {
			return events[i].Date.Before(events[j].Date)
		}
		return events[i].ID < events[j].ID
	})
}

func sortProfiles(profiles []core.MerchantProfile) {
	sort.Slice(profiles, func(i, j int) bool {
		if profiles[i].Merchant != profiles[j].Merchant {
			return profiles[i].Merchant < profiles[j].Merchant
		}
		if profiles[i].Currency != profiles[j].Currency {
			return profiles[i].Currency < profiles[j].Currency
		}
		return profiles[i].Key < profiles[j].Key
	})
}

// merchantKey collapses aliases and spelling variants of one merchant
func merchantKey(tables *lookup.Tables, merchant string) string {
	return tables.Key(tables.Canonical(merchant))
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
