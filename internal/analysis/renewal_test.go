package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikey/subtrack/internal/core"
)

func TestPredictRenewal(t *testing.T) {
	tests := []struct {
		name    string
		last    string
		cadence core.Cadence
		today   string
		want    string
	}{
		{"rolls forward past missed periods", "2024-11-01", core.CadenceMonthly, "2025-01-15", "2025-02-01"},
		{"next period still ahead", "2025-01-10", core.CadenceMonthly, "2025-01-15", "2025-02-10"},
		{"renewal due today", "2024-12-15", core.CadenceMonthly, "2025-01-15", "2025-01-15"},
		{"quarterly", "2024-09-20", core.CadenceQuarterly, "2025-01-15", "2025-03-20"},
		{"yearly", "2024-03-01", core.CadenceYearly, "2025-01-15", "2025-03-01"},
		{"month end does not drift", "2024-01-31", core.CadenceMonthly, "2024-03-15", "2024-03-31"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := PredictRenewal(day(tt.last), tt.cadence, day(tt.today))
			require.True(t, ok)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestPredictRenewalIrregular(t *testing.T) {
	_, ok := PredictRenewal(day("2024-11-01"), core.CadenceIrregular, day("2025-01-15"))
	assert.False(t, ok)
}

func TestUpcomingRenewals(t *testing.T) {
	today := day("2025-01-15")
	profiles := WithRenewals([]core.MerchantProfile{
		{Merchant: "Zoom", Currency: "USD", Frequency: core.CadenceMonthly, LastChargeDate: day("2024-12-20"), LastAmount: mustDecimal("15.99")},
		{Merchant: "Adobe", Currency: "USD", Frequency: core.CadenceMonthly, LastChargeDate: day("2024-12-20"), LastAmount: mustDecimal("54.99")},
		{Merchant: "Dropbox", Currency: "USD", Frequency: core.CadenceYearly, LastChargeDate: day("2024-03-01"), LastAmount: mustDecimal("119.88")},
		{Merchant: "Netflix", Currency: "USD", Frequency: core.CadenceMonthly, LastChargeDate: day("2025-01-01"), LastAmount: mustDecimal("15.49")},
		{Merchant: "Etsy", Currency: "USD", Frequency: core.CadenceIrregular, LastChargeDate: day("2025-01-10"), LastAmount: mustDecimal("23.00")},
	}, today)

	rows := UpcomingRenewals(profiles, today, 30)
	require.Len(t, rows, 3)

	assert.Equal(t, "Adobe", rows[0].Merchant)
	assert.Equal(t, 5, rows[0].DaysUntil)
	assert.Equal(t, "2025-01-20", rows[0].RenewalDate)
	assert.Equal(t, 54.99, rows[0].Amount)
	assert.Equal(t, "Zoom", rows[1].Merchant)
	assert.Equal(t, 5, rows[1].DaysUntil)
	assert.Equal(t, "Netflix", rows[2].Merchant)
	assert.Equal(t, 17, rows[2].DaysUntil)

	assert.Nil(t, profiles[4].NextRenewalDate)
	require.NotNil(t, profiles[2].NextRenewalDate)
	assert.Equal(t, "2025-03-01", profiles[2].NextRenewalDate.String())
}

func TestUpcomingRenewalDueToday(t *testing.T) {
	today := day("2025-01-15")
	profiles := WithRenewals([]core.MerchantProfile{
		{Merchant: "Hulu", Currency: "USD", Frequency: core.CadenceMonthly, LastChargeDate: day("2024-12-15"), LastAmount: mustDecimal("15.00")},
	}, today)

	rows := UpcomingRenewals(profiles, today, 30)
	require.Len(t, rows, 1)
	assert.Equal(t, "2025-01-15", rows[0].RenewalDate)
	assert.Equal(t, 0, rows[0].DaysUntil)

	// once the day has passed the next period is predicted
	tomorrow := today.AddDays(1)
	next, ok := PredictRenewal(day("2024-12-15"), core.CadenceMonthly, tomorrow)
	require.True(t, ok)
	assert.Equal(t, "2025-02-15", next.String())
}
