// Package lookup holds the versioned heuristic tables used by extraction and
// analysis: merchant aliases, the category taxonomy, trigger, exclusion and
// cancellation vocabularies, currency symbols and cancellation links.
package lookup

import (
	_ "embed"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/net/publicsuffix"
	"golang.org/x/text/cases"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// Uncategorized is assigned to merchants no category rule matches
const Uncategorized = "Other"

//go:embed default_tables.yaml
var defaultTables []byte

type categoryRule struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

type tableFile struct {
	Version          int                 `yaml:"version"`
	Triggers         []string            `yaml:"triggers"`
	Exclusions       []string            `yaml:"exclusions"`
	Cancellations    []string            `yaml:"cancellations"`
	GenericProviders []string            `yaml:"generic_providers"`
	LegalSuffixes    []string            `yaml:"legal_suffixes"`
	CurrencySymbols  map[string]string   `yaml:"currency_symbols"`
	CurrencyCodes    []string            `yaml:"currency_codes"`
	Aliases          map[string][]string `yaml:"aliases"`
	Categories       []categoryRule      `yaml:"categories"`
	CancelLinks      map[string]string   `yaml:"cancel_links"`
}

// NameAlias is a merchant name, split into normalized words, and the
// canonical display name it refers to
type NameAlias struct {
	Tokens    []string
	Canonical string
}

type category struct {
	name     string
	keywords [][]string
}

type cancelLink struct {
	keyword string
	tokens  []string
	url     string
}

// Tables is the parsed, indexed form of a table file. It is read-only after
// construction and safe for concurrent use.
type Tables struct {
	version          int
	triggers         []string
	exclusions       []string
	cancellations    []string
	genericProviders map[string]struct{}
	legalSuffixes    map[string]struct{}
	symbols          map[string]string
	symbolOrder      []string
	codes            map[string]struct{}
	nameAliases      map[string]string
	domainAliases    map[string]string
	names            []NameAlias
	categories       []category
	cancelLinks      []cancelLink
}

// Default returns the tables embedded in the binary
func Default() (*Tables, error) {
	return Parse(defaultTables)
}

// Load reads tables from a YAML file; an empty path selects the embedded default
func Load(path string) (*Tables, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read lookup tables: %w", err)
	}
	return Parse(data)
}

// Parse builds tables from YAML
func Parse(data []byte) (*Tables, error) {
	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse lookup tables: %w", err)
	}
	if f.Version <= 0 {
		return nil, fmt.Errorf("lookup tables must declare a positive version")
	}
	if len(f.Triggers) == 0 {
		return nil, fmt.Errorf("lookup tables must declare at least one trigger term")
	}

	t := &Tables{
		version:          f.Version,
		triggers:         foldAll(f.Triggers),
		exclusions:       foldAll(f.Exclusions),
		cancellations:    foldAll(f.Cancellations),
		genericProviders: make(map[string]struct{}),
		legalSuffixes:    make(map[string]struct{}),
		symbols:          make(map[string]string),
		codes:            make(map[string]struct{}),
		nameAliases:      make(map[string]string),
		domainAliases:    make(map[string]string),
	}

	for _, d := range f.GenericProviders {
		t.genericProviders[Fold(strings.TrimSpace(d))] = struct{}{}
	}
	for _, s := range f.LegalSuffixes {
		t.legalSuffixes[Fold(strings.TrimSpace(s))] = struct{}{}
	}

	for _, code := range f.CurrencyCodes {
		code = strings.ToUpper(strings.TrimSpace(code))
		if _, err := currency.ParseISO(code); err != nil {
			return nil, fmt.Errorf("invalid currency code %q: %w", code, err)
		}
		t.codes[code] = struct{}{}
	}
	for sym, code := range f.CurrencySymbols {
		code = strings.ToUpper(strings.TrimSpace(code))
		if _, ok := t.codes[code]; !ok {
			return nil, fmt.Errorf("currency symbol %q maps to undeclared code %q", sym, code)
		}
		t.symbols[sym] = code
		t.symbolOrder = append(t.symbolOrder, sym)
	}
	sort.Slice(t.symbolOrder, func(i, j int) bool {
		a, b := t.symbolOrder[i], t.symbolOrder[j]
		if len(a) != len(b) {
			return len(a) > len(b)
		}
		return a < b
	})

	canonicals := make([]string, 0, len(f.Aliases))
	for canonical := range f.Aliases {
		canonicals = append(canonicals, canonical)
	}
	sort.Strings(canonicals)
	for _, canonical := range canonicals {
		if err := t.addAlias(canonical, canonical); err != nil {
			return nil, err
		}
		for _, alias := range f.Aliases[canonical] {
			if err := t.addAlias(alias, canonical); err != nil {
				return nil, err
			}
		}
	}
	sort.SliceStable(t.names, func(i, j int) bool {
		return len(t.names[i].Tokens) > len(t.names[j].Tokens)
	})

	for _, rule := range f.Categories {
		if strings.TrimSpace(rule.Name) == "" {
			return nil, fmt.Errorf("category rule without a name")
		}
		c := category{name: rule.Name}
		for _, kw := range rule.Keywords {
			if tokens := tokenize(Fold(kw)); len(tokens) > 0 {
				c.keywords = append(c.keywords, tokens)
			}
		}
		t.categories = append(t.categories, c)
	}

	for kw, link := range f.CancelLinks {
		u, err := url.Parse(strings.TrimSpace(link))
		if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
			return nil, fmt.Errorf("cancel link for %q is not an http(s) url: %q", kw, link)
		}
		folded := Fold(strings.TrimSpace(kw))
		if tokens := tokenize(folded); len(tokens) > 0 {
			t.cancelLinks = append(t.cancelLinks, cancelLink{keyword: strings.Join(tokens, " "), tokens: tokens, url: u.String()})
		}
	}
	sort.Slice(t.cancelLinks, func(i, j int) bool {
		a, b := t.cancelLinks[i].keyword, t.cancelLinks[j].keyword
		if len(a) != len(b) {
			return len(a) > len(b)
		}
		return a < b
	})

	return t, nil
}

func (t *Tables) addAlias(alias, canonical string) error {
	folded := Fold(strings.TrimSpace(alias))
	if folded == "" {
		return nil
	}
	if looksLikeDomain(folded) {
		if prev, ok := t.domainAliases[folded]; ok && prev != canonical {
			return fmt.Errorf("domain %q is an alias of both %q and %q", folded, prev, canonical)
		}
		t.domainAliases[folded] = canonical
		return nil
	}
	key := t.keyOf(folded)
	if key == "" {
		return nil
	}
	if prev, ok := t.nameAliases[key]; ok {
		if prev != canonical {
			return fmt.Errorf("alias %q refers to both %q and %q", alias, prev, canonical)
		}
		return nil
	}
	t.nameAliases[key] = canonical
	t.names = append(t.names, NameAlias{Tokens: strings.Fields(key), Canonical: canonical})
	return nil
}

// Version returns the table revision
func (t *Tables) Version() int {
	return t.version
}

// Fold case-folds text for case-insensitive matching
func Fold(s string) string {
	return cases.Fold().String(s)
}

// Key normalizes a merchant name or domain: case-folded, punctuation removed,
// trailing legal-entity suffixes stripped, domains reduced to their
// registrable label.
func (t *Tables) Key(name string) string {
	folded := Fold(strings.TrimSpace(name))
	if looksLikeDomain(folded) {
		folded = registrableLabel(folded)
	}
	return t.keyOf(folded)
}

func (t *Tables) keyOf(folded string) string {
	tokens := tokenize(folded)
	for len(tokens) > 1 {
		if _, ok := t.legalSuffixes[tokens[len(tokens)-1]]; !ok {
			break
		}
		tokens = tokens[:len(tokens)-1]
	}
	return strings.Join(tokens, " ")
}

// Canonical maps a raw merchant name or domain to its display name. Unknown
// merchants are title-cased from their normalized key.
func (t *Tables) Canonical(name string) string {
	folded := Fold(strings.TrimSpace(name))
	if folded == "" {
		return ""
	}
	if looksLikeDomain(folded) {
		if c, ok := t.lookupDomain(folded); ok {
			return c
		}
	}
	key := t.Key(folded)
	if c, ok := t.nameAliases[key]; ok {
		return c
	}
	return cases.Title(language.English).String(key)
}

func (t *Tables) lookupDomain(domain string) (string, bool) {
	if c, ok := t.domainAliases[domain]; ok {
		return c, true
	}
	if reg, err := publicsuffix.EffectiveTLDPlusOne(domain); err == nil {
		if c, ok := t.domainAliases[reg]; ok {
			return c, true
		}
	}
	return "", false
}

// MerchantForDomain derives a merchant display name from a sender domain.
// Mail infrastructure subdomains (mailer., email., billing.) are dropped by
// reducing the domain to its registrable form.
func (t *Tables) MerchantForDomain(domain string) string {
	domain = Fold(strings.TrimSpace(domain))
	if domain == "" {
		return ""
	}
	if c, ok := t.lookupDomain(domain); ok {
		return c
	}
	return t.Canonical(registrableLabel(domain))
}

// IsGenericProvider reports whether the domain is a shared mailbox provider
// or payment processor that sends on behalf of many merchants
func (t *Tables) IsGenericProvider(domain string) bool {
	domain = Fold(strings.TrimSpace(domain))
	if _, ok := t.genericProviders[domain]; ok {
		return true
	}
	if reg, err := publicsuffix.EffectiveTLDPlusOne(domain); err == nil {
		_, ok := t.genericProviders[reg]
		return ok
	}
	return false
}

// Category returns the category of a merchant, or Uncategorized
func (t *Tables) Category(merchant string) string {
	tokens := strings.Fields(t.Key(merchant))
	for _, c := range t.categories {
		for _, kw := range c.keywords {
			if containsSequence(tokens, kw) {
				return c.name
			}
		}
	}
	return Uncategorized
}

// CancelURL returns the cancellation page of a merchant, or "" when none is
// known. Keywords match whole words of the normalized name and the longest
// matching keyword wins, so "apple music" beats "apple".
func (t *Tables) CancelURL(merchant string) string {
	tokens := strings.Fields(t.Key(merchant))
	for _, link := range t.cancelLinks {
		if containsSequence(tokens, link.tokens) {
			return link.url
		}
	}
	return ""
}

// Names lists the known merchant names, longest first
func (t *Tables) Names() []NameAlias {
	return t.names
}

// MatchTriggers returns the trigger terms contained in already folded text,
// in table order
func (t *Tables) MatchTriggers(folded string) []string {
	var matched []string
	for _, term := range t.triggers {
		if strings.Contains(folded, term) {
			matched = append(matched, term)
		}
	}
	return matched
}

// Excluded reports whether folded text matches the exclusion vocabulary
func (t *Tables) Excluded(folded string) bool {
	return containsAny(folded, t.exclusions)
}

// Cancelled reports whether folded text announces a cancellation
func (t *Tables) Cancelled(folded string) bool {
	return containsAny(folded, t.cancellations)
}

// CurrencySymbols lists the known symbols, longest first
func (t *Tables) CurrencySymbols() []string {
	return t.symbolOrder
}

// CurrencyForSymbol maps a currency symbol to its ISO code
func (t *Tables) CurrencyForSymbol(sym string) (string, bool) {
	code, ok := t.symbols[sym]
	return code, ok
}

// IsCurrencyCode reports whether code is an accepted ISO 4217 code
func (t *Tables) IsCurrencyCode(code string) bool {
	_, ok := t.codes[code]
	return ok
}

// Tokenize splits folded text into letter/digit words
func Tokenize(folded string) []string {
	return tokenize(folded)
}

func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func foldAll(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, term := range terms {
		if f := Fold(term); strings.TrimSpace(f) != "" {
			out = append(out, f)
		}
	}
	return out
}

func containsAny(s string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(s, term) {
			return true
		}
	}
	return false
}

func containsSequence(tokens, seq []string) bool {
	if len(seq) == 0 || len(seq) > len(tokens) {
		return false
	}
outer:
	for i := 0; i+len(seq) <= len(tokens); i++ {
		for j, s := range seq {
			if tokens[i+j] != s {
				continue outer
			}
		}
		return true
	}
	return false
}

func looksLikeDomain(s string) bool {
	if strings.ContainsAny(s, " \t@/") || !strings.Contains(s, ".") {
		return false
	}
	tld := s[strings.LastIndex(s, ".")+1:]
	if len(tld) < 2 {
		return false
	}
	for _, r := range tld {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

func registrableLabel(domain string) string {
	reg, err := publicsuffix.EffectiveTLDPlusOne(domain)
	if err != nil {
		return domain
	}
	suffix, _ := publicsuffix.PublicSuffix(reg)
	return strings.TrimSuffix(reg, "."+suffix)
}
