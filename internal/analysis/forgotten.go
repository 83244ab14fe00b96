package analysis

import (
	"github.com/mikey/subtrack/internal/core"
)

// FlagForgotten returns a copy of profiles in which every periodic merchant
// silent for more than cycles expected periods is marked forgotten
func FlagForgotten(profiles []core.MerchantProfile, today core.Date, cycles int) []core.MerchantProfile {
	out := make([]core.MerchantProfile, len(profiles))
	for i, p := range profiles {
		p.Status = core.ProfileActive
		if isForgotten(p, today, cycles) {
			p.Status = core.ProfileForgotten
		}
		out[i] = p
	}
	return out
}

func isForgotten(p core.MerchantProfile, today core.Date, cycles int) bool {
	period := p.Frequency.Days()
	if period == 0 || p.LastChargeDate.IsZero() {
		return false
	}
	return p.LastChargeDate.DaysUntil(today) > cycles*period
}
