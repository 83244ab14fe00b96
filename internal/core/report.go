package core

// Report is the structured output consumed by presentation layers.
// All slices are sorted and all maps are keyed so that identical event
// logs serialize to identical bytes.
type Report struct {
	AsOf                    string                     `json:"as_of"`
	TotalRecords            int                        `json:"total_records"`
	SkippedRecords          int                        `json:"skipped_records"`
	MerchantCount           int                        `json:"merchant_count"`
	PrimaryCurrency         string                     `json:"primary_currency"`
	TotalMonthlySpend       float64                    `json:"total_monthly_spend"`
	TotalYearlySpend        float64                    `json:"total_yearly_spend"`
	SpendByCurrency         map[string]float64         `json:"spend_by_currency"`
	YearlySpendByCurrency   map[string]float64         `json:"yearly_spend_by_currency"`
	PotentialMonthlySavings map[string]float64         `json:"potential_monthly_savings"`
	Merchants               []MerchantRow              `json:"merchants"`
	UpcomingRenewals        []RenewalRow               `json:"upcoming_renewals_30d"`
	Overlaps                []OverlapRow               `json:"overlaps"`
	ForgottenSubscriptions  []ForgottenRow             `json:"forgotten_subscriptions"`
	Health                  []HealthScore              `json:"health"`
	RecentlyCancelled       []CancelledRow             `json:"recently_cancelled"`
	MonthlyTrend            map[string][]TrendPoint    `json:"monthly_trend"`
	CategoryBreakdown       map[string][]CategorySpend `json:"category_breakdown"`
}

// MerchantRow is one merchant/currency line of the report
type MerchantRow struct {
	Merchant      string  `json:"merchant"`
	Category      string  `json:"category"`
	MonthlyCost   float64 `json:"monthly_cost"`
	Currency      string  `json:"currency"`
	NextRenewal   *string `json:"next_renewal"`
	Source        Source  `json:"source"`
	Frequency     Cadence `json:"frequency"`
	LowConfidence bool    `json:"low_confidence"`
	Status        string  `json:"status"`
	LastCharge    string  `json:"last_charge"`
	ChargeCount   int     `json:"charge_count"`
	HealthScore   int     `json:"health_score"`
	HealthLabel   string  `json:"health_label"`
	CancelURL     string  `json:"cancel_url,omitempty"`
}

// RenewalRow is a predicted charge inside the lookahead window
type RenewalRow struct {
	Merchant    string  `json:"merchant"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	RenewalDate string  `json:"renewal_date"`
	DaysUntil   int     `json:"days_until"`
}

// OverlapRow is the serialized form of an OverlapCandidate
type OverlapRow struct {
	Merchants        [2]string `json:"merchants"`
	Category         string    `json:"category"`
	Currency         string    `json:"currency"`
	CostDeltaRatio   float64   `json:"cost_delta_ratio"`
	PotentialSavings float64   `json:"potential_savings"`
}

// ForgottenRow lists a merchant whose cadence has lapsed
type ForgottenRow struct {
	Merchant      string  `json:"merchant"`
	Currency      string  `json:"currency"`
	Frequency     Cadence `json:"frequency"`
	LastCharge    string  `json:"last_charge"`
	DaysSinceLast int     `json:"days_since_last"`
	MonthlyCost   float64 `json:"monthly_cost"`
}

// CancelledRow lists a merchant seen only through cancellation notices
type CancelledRow struct {
	Merchant      string  `json:"merchant"`
	Category      string  `json:"category"`
	CancelledDate string  `json:"cancelled_date"`
	LastAmount    float64 `json:"last_amount"`
	Currency      string  `json:"currency"`
}

// TrendPoint is the total charged in one month
type TrendPoint struct {
	Month  string  `json:"month"`
	Amount float64 `json:"amount"`
}

// CategorySpend is the monthly-equivalent spend of a category
type CategorySpend struct {
	Category    string  `json:"category"`
	MonthlyCost float64 `json:"monthly_cost"`
}
