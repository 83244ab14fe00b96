package extractor

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mikey/subtrack/internal/core"
)

const monthNames = `(january|february|march|april|may|june|july|august|september|october|november|december|jan|feb|mar|apr|jun|jul|aug|sept|sep|oct|nov|dec)`

var (
	isoDateRe     = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	monthFirstRe  = regexp.MustCompile(`(?i)\b` + monthNames + `\.?\s+(\d{1,2})(?:st|nd|rd|th)?,?\s+(\d{4})\b`)
	dayFirstRe    = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?\s+` + monthNames + `\.?,?\s+(\d{4})\b`)
	monthByPrefix = map[string]time.Month{}
)

func init() {
	for m := time.January; m <= time.December; m++ {
		monthByPrefix[strings.ToLower(m.String()[:3])] = m
	}
}

type dateMatch struct {
	pos  int
	date core.Date
}

// findDate returns the first date written in the body that is plausible for a
// charge notified by an email received on received: not after the receive day
// and not older than window days.
func findDate(body string, received core.Date, window int) (core.Date, bool) {
	var matches []dateMatch

	for _, m := range isoDateRe.FindAllStringSubmatchIndex(body, -1) {
		y, _ := strconv.Atoi(body[m[2]:m[3]])
		mo, _ := strconv.Atoi(body[m[4]:m[5]])
		d, _ := strconv.Atoi(body[m[6]:m[7]])
		if date, ok := validDate(y, time.Month(mo), d); ok {
			matches = append(matches, dateMatch{pos: m[0], date: date})
		}
	}
	for _, m := range monthFirstRe.FindAllStringSubmatchIndex(body, -1) {
		mo := monthByPrefix[strings.ToLower(body[m[2] : m[2]+3])]
		d, _ := strconv.Atoi(body[m[4]:m[5]])
		y, _ := strconv.Atoi(body[m[6]:m[7]])
		if date, ok := validDate(y, mo, d); ok {
			matches = append(matches, dateMatch{pos: m[0], date: date})
		}
	}
	for _, m := range dayFirstRe.FindAllStringSubmatchIndex(body, -1) {
		d, _ := strconv.Atoi(body[m[2]:m[3]])
		mo := monthByPrefix[strings.ToLower(body[m[4] : m[4]+3])]
		y, _ := strconv.Atoi(body[m[6]:m[7]])
		if date, ok := validDate(y, mo, d); ok {
			matches = append(matches, dateMatch{pos: m[0], date: date})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].pos < matches[j].pos
	})

	latest := received.AddDays(1)
	earliest := received.AddDays(-window)
	for _, m := range matches {
		if m.date.After(latest) || m.date.Before(earliest) {
			continue
		}
		return m.date, true
	}
	return core.Date{}, false
}

func validDate(y int, m time.Month, d int) (core.Date, bool) {
	if m < time.January || m > time.December || d < 1 || d > 31 || y < 1970 || y > 9999 {
		return core.Date{}, false
	}
	date := core.NewDate(y, m, d)
	if date.Time().Day() != d {
		return core.Date{}, false
	}
	return date, true
}
