package extractor

import (
	"regexp"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	"github.com/mikey/subtrack/internal/lookup"
)

const numberPattern = `(\d{1,3}(?:[.,]\d{3})+(?:[.,]\d{1,2})?|\d+(?:[.,]\d{1,2})?)`

type amountMatch struct {
	pos      int
	amount   decimal.Decimal
	currency string
}

// amountScanner finds prices written with a currency symbol or ISO code
// directly before or after the number
type amountScanner struct {
	tables    *lookup.Tables
	prefixSym *regexp.Regexp
	suffixSym *regexp.Regexp
	prefixISO *regexp.Regexp
	suffixISO *regexp.Regexp
	max       decimal.Decimal
}

func newAmountScanner(tables *lookup.Tables, max decimal.Decimal) *amountScanner {
	symbols := make([]string, 0, len(tables.CurrencySymbols()))
	for _, sym := range tables.CurrencySymbols() {
		symbols = append(symbols, regexp.QuoteMeta(sym))
	}
	sym := `(` + strings.Join(symbols, "|") + `)`

	return &amountScanner{
		tables:    tables,
		prefixSym: regexp.MustCompile(sym + `\s?` + numberPattern),
		suffixSym: regexp.MustCompile(numberPattern + `\s?` + sym),
		prefixISO: regexp.MustCompile(`\b([A-Z]{3})\s?` + numberPattern),
		suffixISO: regexp.MustCompile(numberPattern + `\s?([A-Z]{3})\b`),
		max:       max,
	}
}

// find returns the first unambiguous price in text. A price is ambiguous when
// its currency marker is directly followed by another number ("#2024 USD
// 15.00"), because the marker then belongs to the later number.
func (s *amountScanner) find(text string) (decimal.Decimal, string, bool) {
	var matches []amountMatch

	collect := func(re *regexp.Regexp, markerFirst, iso bool) {
		for _, loc := range re.FindAllStringSubmatchIndex(text, -1) {
			markerStart, markerEnd, numStart, numEnd := loc[2], loc[3], loc[4], loc[5]
			if !markerFirst {
				numStart, numEnd, markerStart, markerEnd = loc[2], loc[3], loc[4], loc[5]
			}

			// the number must not be glued to further digits
			if numStart > 0 && isDigit(text[numStart-1]) {
				continue
			}
			if numEnd < len(text) && isDigit(text[numEnd]) {
				continue
			}
			if !markerFirst && followedByNumber(text[markerEnd:]) {
				continue
			}

			marker := text[markerStart:markerEnd]
			var code string
			if iso {
				if !s.tables.IsCurrencyCode(marker) {
					continue
				}
				code = marker
			} else {
				c, ok := s.tables.CurrencyForSymbol(marker)
				if !ok {
					continue
				}
				code = c
			}

			raw := text[numStart:numEnd]
			if ambiguousGrouping(raw) && minorDigits(code) > 0 {
				continue
			}
			amount, ok := parseNumber(raw)
			if !ok || !amount.IsPositive() || amount.GreaterThan(s.max) {
				continue
			}
			matches = append(matches, amountMatch{pos: loc[0], amount: amount, currency: code})
		}
	}

	collect(s.prefixSym, true, false)
	collect(s.suffixSym, false, false)
	collect(s.prefixISO, true, true)
	collect(s.suffixISO, false, true)

	if len(matches) == 0 {
		return decimal.Zero, "", false
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].pos < matches[j].pos
	})
	return matches[0].amount, matches[0].currency, true
}

// parseNumber accepts both 1,234.56 and 1.234,56. A separator followed by
// one or two trailing digits is the decimal mark; any other separator groups
// thousands.
func parseNumber(raw string) (decimal.Decimal, bool) {
	sep := strings.LastIndexAny(raw, ".,")
	intPart, frac := raw, ""
	if sep >= 0 {
		tail := raw[sep+1:]
		if len(tail) <= 2 {
			intPart, frac = raw[:sep], tail
		}
	}
	intPart = strings.NewReplacer(".", "", ",", "").Replace(intPart)
	if intPart == "" {
		intPart = "0"
	}
	value := intPart
	if frac != "" {
		value += "." + frac
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// ambiguousGrouping reports a number with a single dot followed by exactly
// three digits, such as 15.999. It is either a mistyped price or a grouped
// whole amount, and only currencies without minor units settle which.
func ambiguousGrouping(raw string) bool {
	dot := strings.IndexByte(raw, '.')
	if dot < 0 || strings.Count(raw, ".") != 1 || strings.Contains(raw, ",") {
		return false
	}
	return len(raw)-dot-1 == 3
}

// minorDigits returns the number of decimal places of an ISO currency
func minorDigits(code string) int {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return 2
	}
	scale, _ := currency.Standard.Rounding(unit)
	return scale
}

func followedByNumber(rest string) bool {
	rest = strings.TrimLeft(rest, " ")
	return rest != "" && isDigit(rest[0])
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
