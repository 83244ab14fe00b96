package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RawEmail represents an email message as handed over by a mail source
type RawEmail struct {
	Subject    string
	From       string
	Body       string
	ReceivedAt time.Time
	Headers    map[string][]string
}

// Source records how an event entered the ledger
type Source string

const (
	SourceEmail  Source = "email"
	SourceManual Source = "manual"
)

// EventStatus distinguishes billing events from cancellation notices
type EventStatus string

const (
	StatusActive    EventStatus = "active"
	StatusCancelled EventStatus = "cancelled"
)

// SubscriptionEvent is one detected billing email or manual entry.
// Events are immutable once appended to the log. A manual entry may carry a
// FrequencyOverride that pins the merchant's cadence instead of inferring it.
type SubscriptionEvent struct {
	ID                string          `json:"id"`
	Merchant          string          `json:"merchant"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	Date              Date            `json:"date"`
	Subject           string          `json:"subject"`
	SourceEmail       string          `json:"source_email"`
	DetectedKeywords  []string        `json:"detected_keywords"`
	ParsedAt          time.Time       `json:"parsed_at"`
	Source            Source          `json:"source"`
	Status            EventStatus     `json:"status,omitempty"`
	FrequencyOverride Cadence         `json:"frequency_override,omitempty"`
}

// IsCancellation reports whether the event is a cancellation notice
func (e *SubscriptionEvent) IsCancellation() bool {
	return e.Status == StatusCancelled
}

// Validate checks the fields every stored event must carry. Cancellation
// notices may quote no price and carry a zero amount.
func (e *SubscriptionEvent) Validate() error {
	switch {
	case e.ID == "":
		return fmt.Errorf("%w: missing id", ErrInvalidEvent)
	case strings.TrimSpace(e.Merchant) == "":
		return fmt.Errorf("%w: missing merchant", ErrInvalidEvent)
	case e.Amount.IsNegative():
		return fmt.Errorf("%w: amount must not be negative", ErrInvalidEvent)
	case e.Amount.IsZero() && !e.IsCancellation():
		return fmt.Errorf("%w: amount must be positive", ErrInvalidEvent)
	case len(e.Currency) != 3:
		return fmt.Errorf("%w: currency must be an ISO code", ErrInvalidEvent)
	case e.Date.IsZero():
		return fmt.Errorf("%w: missing date", ErrInvalidEvent)
	case e.Source != SourceEmail && e.Source != SourceManual:
		return fmt.Errorf("%w: unknown source %q", ErrInvalidEvent, e.Source)
	}
	if e.FrequencyOverride != "" {
		if _, err := ParseCadence(string(e.FrequencyOverride)); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
		}
	}
	return nil
}

// NewManualEvent creates a user-entered event. Manual events carry a random
// id instead of a content fingerprint.
func NewManualEvent(merchant string, amount decimal.Decimal, currency string, date Date, now time.Time) SubscriptionEvent {
	return SubscriptionEvent{
		ID:               uuid.NewString(),
		Merchant:         strings.TrimSpace(merchant),
		Amount:           amount,
		Currency:         strings.ToUpper(strings.TrimSpace(currency)),
		Date:             date,
		DetectedKeywords: []string{},
		ParsedAt:         now.UTC(),
		Source:           SourceManual,
		Status:           StatusActive,
	}
}

// Cadence is the inferred billing period of a merchant
type Cadence string

const (
	CadenceMonthly   Cadence = "monthly"
	CadenceQuarterly Cadence = "quarterly"
	CadenceYearly    Cadence = "yearly"
	CadenceIrregular Cadence = "irregular"
)

// PeriodicCadences lists the cadences with a stable period, in matching order
var PeriodicCadences = []Cadence{CadenceMonthly, CadenceQuarterly, CadenceYearly}

// ParseCadence parses a cadence name
func ParseCadence(s string) (Cadence, error) {
	switch c := Cadence(strings.ToLower(strings.TrimSpace(s))); c {
	case CadenceMonthly, CadenceQuarterly, CadenceYearly, CadenceIrregular:
		return c, nil
	}
	return "", fmt.Errorf("unknown cadence: %s", s)
}

// Months returns the period length in calendar months, 0 for irregular
func (c Cadence) Months() int {
	switch c {
	case CadenceMonthly:
		return 1
	case CadenceQuarterly:
		return 3
	case CadenceYearly:
		return 12
	}
	return 0
}

// Days returns the canonical period length in days, 0 for irregular
func (c Cadence) Days() int {
	switch c {
	case CadenceMonthly:
		return 30
	case CadenceQuarterly:
		return 90
	case CadenceYearly:
		return 365
	}
	return 0
}

// Tolerance returns the accepted deviation in days from Days()
func (c Cadence) Tolerance() int {
	switch c {
	case CadenceMonthly:
		return 5
	case CadenceQuarterly:
		return 10
	case CadenceYearly:
		return 20
	}
	return 0
}

// IsPeriodic reports whether the cadence has a stable period
func (c Cadence) IsPeriodic() bool {
	return c.Months() > 0
}

// ProfileStatus is the liveness classification of a merchant
type ProfileStatus string

const (
	ProfileActive    ProfileStatus = "active"
	ProfileForgotten ProfileStatus = "forgotten"
)

// MerchantProfile is derived from the events of one merchant in one currency.
// Profiles are recomputed from the event log on every analysis run.
type MerchantProfile struct {
	Key             string
	Merchant        string
	Category        string
	Currency        string
	Events          []SubscriptionEvent
	Frequency       Cadence
	LowConfidence   bool
	Deltas          []int
	MonthlyCost     decimal.Decimal
	LastAmount      decimal.Decimal
	LastChargeDate  Date
	NextRenewalDate *Date
	Status          ProfileStatus
	Source          Source
}

// ID identifies the profile across merchant and currency
func (p *MerchantProfile) ID() string {
	return p.Merchant + "/" + p.Currency
}

// OverlapCandidate is an unordered pair of same-category merchants with
// similar monthly cost. Merchants is kept in ascending order.
type OverlapCandidate struct {
	Merchants        [2]string
	Category         string
	Currency         string
	CostDeltaRatio   float64
	PotentialSavings decimal.Decimal
}

// Involves reports whether the merchant is one side of the pair
func (o *OverlapCandidate) Involves(merchant string) bool {
	return o.Merchants[0] == merchant || o.Merchants[1] == merchant
}

// Partner returns the other merchant of the pair
func (o *OverlapCandidate) Partner(merchant string) string {
	if o.Merchants[0] == merchant {
		return o.Merchants[1]
	}
	return o.Merchants[0]
}

// HealthScore is the composite 0-100 indicator for a merchant
type HealthScore struct {
	Merchant string   `json:"merchant"`
	Currency string   `json:"currency"`
	Score    int      `json:"score"`
	Label    string   `json:"label"`
	Tips     []string `json:"tips"`
}

// RejectReason explains why an email produced no event
type RejectReason string

const (
	ReasonNone          RejectReason = ""
	ReasonNoSender      RejectReason = "no_sender"
	ReasonIgnoredSender RejectReason = "ignored_sender"
	ReasonNoTrigger     RejectReason = "no_trigger"
	ReasonExcluded      RejectReason = "excluded"
	ReasonNoAmount      RejectReason = "no_amount"
	ReasonNoMerchant    RejectReason = "no_merchant"
)

// ExtractResult is either a matched event or a rejection reason
type ExtractResult struct {
	Event  *SubscriptionEvent
	Reason RejectReason
}

// Matched reports whether an event was extracted
func (r ExtractResult) Matched() bool {
	return r.Event != nil
}

// LoadResult is a full read of the event log
type LoadResult struct {
	Events  []SubscriptionEvent
	Skipped int
}

// IngestStats summarises one ingestion batch
type IngestStats struct {
	Scanned    int `json:"scanned"`
	Matched    int `json:"matched"`
	Appended   int `json:"appended"`
	Duplicates int `json:"duplicates"`
	Rejected   int `json:"rejected"`
}
