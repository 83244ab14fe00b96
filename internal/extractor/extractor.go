// Package extractor turns raw billing emails into subscription events using
// table-driven heuristics. Extraction is a pure function of the email and the
// tables; it never fails and never touches the source mailbox.
package extractor

import (
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mikey/subtrack/internal/core"
	"github.com/mikey/subtrack/internal/ignorelist"
	"github.com/mikey/subtrack/internal/lookup"
	"github.com/mikey/subtrack/internal/utils"
)

const maxSubjectLength = 200

var (
	bareAddressRe = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	subjectNameRe = regexp.MustCompile(`(?:[Yy]our|[Ff]rom)\s+([A-Z0-9][\w&+.\-]*(?:\s+[A-Z0-9][\w&+.\-]*){0,2})\s+(?:receipt|invoice|subscription|payment|membership|plan|bill|renewal)`)
)

// Options holds the extraction limits
type Options struct {
	MaxBodySize    int
	MaxAmount      decimal.Decimal
	DateWindowDays int
	FuzzyDistance  int

	// FallbackCurrency is recorded on cancellation notices that quote no price
	FallbackCurrency string
}

// DefaultOptions returns the limits used when nothing is configured
func DefaultOptions() Options {
	return Options{
		MaxBodySize:      8192,
		MaxAmount:        decimal.NewFromInt(9999999),
		DateWindowDays:   400,
		FuzzyDistance:    1,
		FallbackCurrency: "USD",
	}
}

// Extractor implements core.Extractor
type Extractor struct {
	tables  *lookup.Tables
	opts    Options
	ignore  *ignorelist.Checker
	text    *utils.TextProcessor
	amounts *amountScanner
	logger  *zap.Logger
	now     func() time.Time
}

// New creates a new extractor
func New(
	tables *lookup.Tables,
	opts Options,
	ignore *ignorelist.Checker,
	text *utils.TextProcessor,
	logger *zap.Logger,
) *Extractor {
	if opts.MaxAmount.IsZero() {
		opts.MaxAmount = DefaultOptions().MaxAmount
	}
	if opts.DateWindowDays <= 0 {
		opts.DateWindowDays = DefaultOptions().DateWindowDays
	}
	if opts.FallbackCurrency == "" {
		opts.FallbackCurrency = DefaultOptions().FallbackCurrency
	}
	return &Extractor{
		tables:  tables,
		opts:    opts,
		ignore:  ignore,
		text:    text,
		amounts: newAmountScanner(tables, opts.MaxAmount),
		logger:  logger,
		now:     time.Now,
	}
}

// Extract converts one email into at most one event
func (x *Extractor) Extract(email core.RawEmail) core.ExtractResult {
	addr := parseSender(email.From)
	if addr == nil {
		return reject(core.ReasonNoSender)
	}
	if x.ignore.IsIgnored(addr.Address) {
		return reject(core.ReasonIgnoredSender)
	}

	subject := x.text.NormalizeWhitespace(email.Subject)
	body := x.text.NormalizeWhitespace(x.text.ProcessText(email.Body, x.opts.MaxBodySize))
	folded := lookup.Fold(subject + "\n" + body)

	keywords := x.tables.MatchTriggers(folded)
	if len(keywords) == 0 {
		return reject(core.ReasonNoTrigger)
	}

	cancelled := x.tables.Cancelled(folded)
	if !cancelled && x.tables.Excluded(folded) {
		return reject(core.ReasonExcluded)
	}

	// a cancellation notice needs no price to end a subscription
	amount, currency, ok := x.amounts.find(subject + "\n" + body)
	if !ok {
		if !cancelled {
			return reject(core.ReasonNoAmount)
		}
		amount, currency = decimal.Zero, x.opts.FallbackCurrency
	}

	merchant := x.merchant(addr, subject)
	if merchant == "" {
		return reject(core.ReasonNoMerchant)
	}

	date, day := x.chargeDate(body, email.ReceivedAt)

	status := core.StatusActive
	if cancelled {
		status = core.StatusCancelled
	}

	return core.ExtractResult{Event: &core.SubscriptionEvent{
		ID:               core.Fingerprint(addr.Address, subject, day),
		Merchant:         merchant,
		Amount:           amount,
		Currency:         currency,
		Date:             date,
		Subject:          truncateRunes(subject, maxSubjectLength),
		SourceEmail:      strings.ToLower(addr.Address),
		DetectedKeywords: keywords,
		ParsedAt:         x.now().UTC(),
		Source:           core.SourceEmail,
		Status:           status,
	}}
}

// chargeDate returns the event date and the day the fingerprint is built on.
// Both come from the email alone when it carries a receive time. Without one
// the current date only bounds the search for a date in the body; if none is
// found the event is dated today but fingerprinted on a zero day, so a rescan
// on another day still yields the same id.
func (x *Extractor) chargeDate(body string, receivedAt time.Time) (core.Date, core.Date) {
	if !receivedAt.IsZero() {
		received := core.DateOf(receivedAt)
		if date, found := findDate(body, received, x.opts.DateWindowDays); found {
			return date, received
		}
		return received, received
	}

	today := core.DateOf(x.now())
	if date, found := findDate(body, today, x.opts.DateWindowDays); found {
		return date, date
	}
	return today, core.Date{}
}

// merchant prefers the sender's registrable domain; shared mail providers
// and payment processors fall back to the subject line and display name
func (x *Extractor) merchant(addr *mail.Address, subject string) string {
	domain := ""
	if at := strings.LastIndex(addr.Address, "@"); at >= 0 {
		domain = strings.ToLower(addr.Address[at+1:])
	}

	if domain != "" && !x.tables.IsGenericProvider(domain) {
		return x.tables.MerchantForDomain(domain)
	}

	if name := x.merchantFromSubject(subject); name != "" {
		return name
	}
	if name := strings.TrimSpace(addr.Name); name != "" && !strings.Contains(name, "@") {
		return x.tables.Canonical(name)
	}
	return ""
}

func (x *Extractor) merchantFromSubject(subject string) string {
	tokens := lookup.Tokenize(lookup.Fold(subject))
	if len(tokens) == 0 {
		return ""
	}

	// exact phrase of a known name, earliest then longest
	best, bestPos := "", len(tokens)
	for _, alias := range x.tables.Names() {
		if pos := indexSequence(tokens, alias.Tokens); pos >= 0 && pos < bestPos {
			best, bestPos = alias.Canonical, pos
		}
	}
	if best != "" {
		return best
	}

	// single-word names with a typo or an odd spelling
	if x.opts.FuzzyDistance > 0 {
		for _, token := range tokens {
			if len(token) < 5 {
				continue
			}
			for _, alias := range x.tables.Names() {
				if len(alias.Tokens) != 1 || len(alias.Tokens[0]) < 5 {
					continue
				}
				if levenshtein.ComputeDistance(token, alias.Tokens[0]) <= x.opts.FuzzyDistance {
					x.logger.Debug("Merchant matched approximately",
						zap.String("subject_word", token),
						zap.String("merchant", alias.Canonical))
					return alias.Canonical
				}
			}
		}
	}

	if m := subjectNameRe.FindStringSubmatch(subject); m != nil {
		return x.tables.Canonical(m[1])
	}
	return ""
}

func parseSender(from string) *mail.Address {
	from = strings.TrimSpace(from)
	if from == "" {
		return nil
	}
	if addr, err := mail.ParseAddress(from); err == nil {
		return addr
	}
	if bare := bareAddressRe.FindString(from); bare != "" {
		return &mail.Address{Address: bare}
	}
	return nil
}

func indexSequence(tokens, seq []string) int {
	if len(seq) == 0 {
		return -1
	}
outer:
	for i := 0; i+len(seq) <= len(tokens); i++ {
		for j, s := range seq {
			if tokens[i+j] != s {
				continue outer
			}
		}
		return i
	}
	return -1
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func reject(reason core.RejectReason) core.ExtractResult {
	return core.ExtractResult{Reason: reason}
}
