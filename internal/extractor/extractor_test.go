package extractor

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/subtrack/internal/core"
	"github.com/mikey/subtrack/internal/ignorelist"
	"github.com/mikey/subtrack/internal/lookup"
	"github.com/mikey/subtrack/internal/utils"
)

var parsedAt = time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)

func newTestExtractor(t *testing.T, ignored ...string) *Extractor {
	t.Helper()
	tables, err := lookup.Default()
	require.NoError(t, err)

	logger := zap.NewNop()
	x := New(tables, DefaultOptions(), ignorelist.NewChecker(ignored, logger), utils.NewTextProcessor(logger), logger)
	x.now = func() time.Time { return parsedAt }
	return x
}

func received(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 9, 30, 0, 0, time.UTC)
}

func TestExtractMatchedEmails(t *testing.T) {
	x := newTestExtractor(t)

	tests := []struct {
		name         string
		email        core.RawEmail
		merchant     string
		amount       string
		currency     string
		date         core.Date
		status       core.EventStatus
		wantKeywords []string
	}{
		{
			name: "merchant from registrable sender domain",
			email: core.RawEmail{
				From:       "Netflix <info@mailer.netflix.com>",
				Subject:    "Your Netflix membership receipt",
				Body:       "Thanks! You were charged $15.49 on November 1, 2024 for your plan.",
				ReceivedAt: received(2024, time.November, 1),
			},
			merchant:     "Netflix",
			amount:       "15.49",
			currency:     "USD",
			date:         core.NewDate(2024, time.November, 1),
			status:       core.StatusActive,
			wantKeywords: []string{"receipt", "your plan", "membership"},
		},
		{
			name: "comma decimal with trailing euro symbol",
			email: core.RawEmail{
				From:       "Spotify <no-reply@spotify.com>",
				Subject:    "Spotify Premium receipt",
				Body:       "Datum: 2024-10-05\nGesamt: 10,99 €",
				ReceivedAt: received(2024, time.October, 5),
			},
			merchant: "Spotify",
			amount:   "10.99",
			currency: "EUR",
			date:     core.NewDate(2024, time.October, 5),
			status:   core.StatusActive,
		},
		{
			name: "generic mail provider falls back to subject",
			email: core.RawEmail{
				From:       "billing.bot@gmail.com",
				Subject:    "Your Disney Plus subscription renewal",
				Body:       "We charged USD 7.99 to your card.",
				ReceivedAt: received(2024, time.December, 3),
			},
			merchant: "Disney+",
			amount:   "7.99",
			currency: "USD",
			date:     core.NewDate(2024, time.December, 3),
			status:   core.StatusActive,
		},
		{
			name: "currency code belongs to the following number",
			email: core.RawEmail{
				From:       "invoices@digitalocean.com",
				Subject:    "Invoice available",
				Body:       "Invoice #2024 USD 15.00 has been paid.",
				ReceivedAt: received(2024, time.September, 1),
			},
			merchant: "DigitalOcean",
			amount:   "15",
			currency: "USD",
			date:     core.NewDate(2024, time.September, 1),
			status:   core.StatusActive,
		},
		{
			name: "thousands separator and naira",
			email: core.RawEmail{
				From:       "Starlink <billing@starlink.com>",
				Subject:    "Payment reminder",
				Body:       "Your automatic payment of ₦57,000.00 will be taken soon.",
				ReceivedAt: received(2024, time.August, 20),
			},
			merchant: "Starlink",
			amount:   "57000",
			currency: "NGN",
			date:     core.NewDate(2024, time.August, 20),
			status:   core.StatusActive,
		},
		{
			name: "cancellation notice",
			email: core.RawEmail{
				From:       "Dropbox <no-reply@dropbox.com>",
				Subject:    "Your subscription has been cancelled",
				Body:       "We're sorry to see you go. Your last charge was $11.99.",
				ReceivedAt: received(2024, time.July, 9),
			},
			merchant: "Dropbox",
			amount:   "11.99",
			currency: "USD",
			date:     core.NewDate(2024, time.July, 9),
			status:   core.StatusCancelled,
		},
		{
			name: "future date in body is not the charge date",
			email: core.RawEmail{
				From:       "billing@openai.com",
				Subject:    "Your ChatGPT Plus receipt",
				Body:       "Amount paid $20.00. Next billing date: January 1, 2025.",
				ReceivedAt: received(2024, time.December, 1),
			},
			merchant: "OpenAI",
			amount:   "20",
			currency: "USD",
			date:     core.NewDate(2024, time.December, 1),
			status:   core.StatusActive,
		},
		{
			name: "approximate merchant name via payment processor",
			email: core.RawEmail{
				From:       "service@paypal.com",
				Subject:    "Receipt for your payment to Spotifyy AB",
				Body:       "You sent a payment of £9.99 GBP",
				ReceivedAt: received(2024, time.June, 2),
			},
			merchant: "Spotify",
			amount:   "9.99",
			currency: "GBP",
			date:     core.NewDate(2024, time.June, 2),
			status:   core.StatusActive,
		},
		{
			name: "no-break space between symbol and number",
			email: core.RawEmail{
				From:       "Hulu <billing@hulu.com>",
				Subject:    "Your Hulu subscription receipt",
				Body:       "Price:\u00a0$\u00a015.00",
				ReceivedAt: received(2024, time.November, 5),
			},
			merchant: "Hulu",
			amount:   "15",
			currency: "USD",
			date:     core.NewDate(2024, time.November, 5),
			status:   core.StatusActive,
		},
		{
			name: "dotted thousands without minor units",
			email: core.RawEmail{
				From:       "billing@nintendo.co.jp",
				Subject:    "Nintendo Switch Online membership receipt",
				Body:       "Total: ¥1.500",
				ReceivedAt: received(2024, time.October, 1),
			},
			merchant: "Nintendo",
			amount:   "1500",
			currency: "JPY",
			date:     core.NewDate(2024, time.October, 1),
			status:   core.StatusActive,
		},
		{
			name: "three decimals skipped for the next price",
			email: core.RawEmail{
				From:       "billing@vercel.com",
				Subject:    "Your Vercel invoice",
				Body:       "Usage rate $15.999 per unit. Amount charged: $20.00",
				ReceivedAt: received(2024, time.October, 2),
			},
			merchant: "Vercel",
			amount:   "20",
			currency: "USD",
			date:     core.NewDate(2024, time.October, 2),
			status:   core.StatusActive,
		},
		{
			name: "cancellation notice without a price",
			email: core.RawEmail{
				From:       "Netflix <info@mailer.netflix.com>",
				Subject:    "Your membership has been cancelled",
				Body:       "We're sorry to see you go. You can restart any time.",
				ReceivedAt: received(2024, time.December, 12),
			},
			merchant: "Netflix",
			amount:   "0",
			currency: "USD",
			date:     core.NewDate(2024, time.December, 12),
			status:   core.StatusCancelled,
		},
		{
			name: "unknown merchant named in subject",
			email: core.RawEmail{
				From:       "noreply@stripe.com",
				Subject:    "Your Acme Cloud receipt",
				Body:       "Amount paid: $12.00 on 3 May 2024",
				ReceivedAt: received(2024, time.May, 3),
			},
			merchant: "Acme Cloud",
			amount:   "12",
			currency: "USD",
			date:     core.NewDate(2024, time.May, 3),
			status:   core.StatusActive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := x.Extract(tt.email)
			require.True(t, result.Matched(), "rejected: %s", result.Reason)

			ev := result.Event
			assert.Equal(t, tt.merchant, ev.Merchant)
			assert.True(t, decimal.RequireFromString(tt.amount).Equal(ev.Amount), "amount %s", ev.Amount)
			assert.Equal(t, tt.currency, ev.Currency)
			assert.Equal(t, tt.date, ev.Date)
			assert.Equal(t, tt.status, ev.Status)
			assert.Equal(t, core.SourceEmail, ev.Source)
			assert.Equal(t, parsedAt, ev.ParsedAt)
			assert.NoError(t, ev.Validate())
			if tt.wantKeywords != nil {
				assert.Equal(t, tt.wantKeywords, ev.DetectedKeywords)
			}
		})
	}
}

func TestExtractRejections(t *testing.T) {
	x := newTestExtractor(t, "bank.example")

	tests := []struct {
		name  string
		email core.RawEmail
		want  core.RejectReason
	}{
		{
			name:  "missing sender",
			email: core.RawEmail{Subject: "Your receipt", Body: "$5.00"},
			want:  core.ReasonNoSender,
		},
		{
			name:  "ignored sender domain",
			email: core.RawEmail{From: "alerts@mail.bank.example", Subject: "Payment receipt", Body: "$5.00"},
			want:  core.ReasonIgnoredSender,
		},
		{
			name:  "no trigger term",
			email: core.RawEmail{From: "friend@example.com", Subject: "Lunch on Friday?", Body: "It was $12 each."},
			want:  core.ReasonNoTrigger,
		},
		{
			name:  "promotional email",
			email: core.RawEmail{From: "deals@shop.com", Subject: "Your order confirmation receipt", Body: "Total $30.00"},
			want:  core.ReasonExcluded,
		},
		{
			name:  "no price",
			email: core.RawEmail{From: "hello@notion.so", Subject: "Your subscription is active", Body: "Welcome aboard."},
			want:  core.ReasonNoAmount,
		},
		{
			name:  "price with three decimals",
			email: core.RawEmail{From: "hello@notion.so", Subject: "Your receipt", Body: "Total $15.999"},
			want:  core.ReasonNoAmount,
		},
		{
			name:  "zero price",
			email: core.RawEmail{From: "hello@notion.so", Subject: "Your invoice", Body: "Total due USD 0.00"},
			want:  core.ReasonNoAmount,
		},
		{
			name:  "no merchant from generic provider",
			email: core.RawEmail{From: "someone@gmail.com", Subject: "invoice attached", Body: "Total $40.00"},
			want:  core.ReasonNoMerchant,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := x.Extract(tt.email)
			assert.False(t, result.Matched())
			assert.Equal(t, tt.want, result.Reason)
		})
	}
}

func TestExtractIsDeterministic(t *testing.T) {
	x := newTestExtractor(t)
	email := core.RawEmail{
		From:       "GitHub <noreply@github.com>",
		Subject:    "[GitHub] Payment receipt",
		Body:       "We received payment for your GitHub Pro subscription. Total: $4.00",
		ReceivedAt: received(2024, time.October, 11),
	}

	first := x.Extract(email)
	second := x.Extract(email)
	require.True(t, first.Matched())
	require.True(t, second.Matched())
	assert.Equal(t, first.Event, second.Event)
	assert.Equal(t, core.Fingerprint("noreply@github.com", "[GitHub] Payment receipt", core.DateOf(email.ReceivedAt)), first.Event.ID)
	assert.Equal(t, "GitHub", first.Event.Merchant)
}

func TestExtractIDIgnoresScanDate(t *testing.T) {
	tables, err := lookup.Default()
	require.NoError(t, err)
	logger := zap.NewNop()

	extractAt := func(now time.Time, email core.RawEmail) *core.SubscriptionEvent {
		x := New(tables, DefaultOptions(), ignorelist.NewChecker(nil, logger), utils.NewTextProcessor(logger), logger)
		x.now = func() time.Time { return now }
		result := x.Extract(email)
		require.True(t, result.Matched(), "rejected: %s", result.Reason)
		return result.Event
	}
	day1 := time.Date(2025, time.January, 15, 8, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)

	dated := core.RawEmail{
		From:    "Netflix <info@mailer.netflix.com>",
		Subject: "Your Netflix receipt",
		Body:    "You were charged $15.49 on 2025-01-10.",
	}
	first, second := extractAt(day1, dated), extractAt(day2, dated)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, core.NewDate(2025, time.January, 10), first.Date)
	assert.Equal(t, first.Date, second.Date)

	undated := core.RawEmail{
		From:    "Netflix <info@mailer.netflix.com>",
		Subject: "Your Netflix receipt",
		Body:    "You were charged $15.49.",
	}
	first, second = extractAt(day1, undated), extractAt(day2, undated)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, core.DateOf(day1), first.Date)
	assert.Equal(t, core.DateOf(day2), second.Date)
}

func TestAmbiguousGrouping(t *testing.T) {
	assert.True(t, ambiguousGrouping("15.999"))
	assert.True(t, ambiguousGrouping("1.500"))
	assert.False(t, ambiguousGrouping("1.234.567"))
	assert.False(t, ambiguousGrouping("1.234,56"))
	assert.False(t, ambiguousGrouping("57,000"))
	assert.False(t, ambiguousGrouping("15.99"))

	assert.Equal(t, 2, minorDigits("USD"))
	assert.Equal(t, 0, minorDigits("JPY"))
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"15.49", "15.49"},
		{"10,99", "10.99"},
		{"1,234.56", "1234.56"},
		{"1.234,56", "1234.56"},
		{"57,000", "57000"},
		{"1.234.567", "1234567"},
		{"12", "12"},
		{"12.5", "12.5"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := parseNumber(tt.raw)
			require.True(t, ok)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s", got)
		})
	}
}
