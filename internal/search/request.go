// Package search turns typed email search filters into parameterized
// queries against the tabular store. The compiler is a pure function:
// it performs no I/O and holds no state across calls.
package search

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Field identifies a logical searchable field of an email record.
type Field int

const (
	FieldSubject Field = iota
	FieldBody
	FieldSummary
	FieldSender
	FieldRecipient
)

func (f Field) String() string {
	switch f {
	case FieldSubject:
		return "subject"
	case FieldBody:
		return "body"
	case FieldSummary:
		return "summary"
	case FieldSender:
		return "sender"
	case FieldRecipient:
		return "recipient"
	default:
		return "unknown"
	}
}

// ParseField maps a field name to its Field value.
func ParseField(s string) (Field, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "subject":
		return FieldSubject, nil
	case "body":
		return FieldBody, nil
	case "summary":
		return FieldSummary, nil
	case "sender", "from":
		return FieldSender, nil
	case "recipient", "to":
		return FieldRecipient, nil
	default:
		return 0, fmt.Errorf("unknown search field %q", s)
	}
}

// SortKey selects the result ordering.
type SortKey int

const (
	SortNewestFirst SortKey = iota
	SortOldestFirst
	SortRelevance
)

func (k SortKey) String() string {
	switch k {
	case SortNewestFirst:
		return "newest"
	case SortOldestFirst:
		return "oldest"
	case SortRelevance:
		return "relevance"
	default:
		return "unknown"
	}
}

// ParseSortKey maps a sort name to its SortKey value.
func ParseSortKey(s string) (SortKey, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "newest":
		return SortNewestFirst, nil
	case "oldest":
		return SortOldestFirst, nil
	case "relevance":
		return SortRelevance, nil
	default:
		return 0, fmt.Errorf("unknown sort key %q", s)
	}
}

// Request holds one search invocation's filters. It is built fresh per
// search and never mutated afterwards. Optional filters are absent
// (zero value / nil), not sentinel values.
type Request struct {
	Keywords          []string   // free-text tokens, each ANDed
	Fields            []Field    // fields keyword/exclusion terms match against
	ExactPhrase       bool       // collapse Keywords into one literal phrase
	ExcludeTerms      []string   // terms that must not match in any Field
	SenderContains    string     // containment filter on the sender column
	RecipientContains string     // containment filter on the recipient column
	DateFrom          *time.Time // inclusive lower bound on sent date
	DateTo            *time.Time // inclusive upper bound on sent date
	Category          string     // equality filter, requires JoinSummary
	JoinSummary       bool       // LEFT JOIN the summary/category table
	CaseSensitive     bool       // when false, comparisons fold case on both sides
	Limit             int        // row cap, must be positive
	Sort              SortKey
}

// HasFilters reports whether any filter clause would be emitted.
// A request with no filters compiles to a select-everything predicate
// bounded only by Limit.
func (r *Request) HasFilters() bool {
	return len(r.Keywords) > 0 ||
		len(r.ExcludeTerms) > 0 ||
		r.SenderContains != "" ||
		r.RecipientContains != "" ||
		r.DateFrom != nil ||
		r.DateTo != nil ||
		r.Category != ""
}

// Phrase returns the keywords rejoined into a single literal phrase.
func (r *Request) Phrase() string {
	return strings.Join(r.Keywords, " ")
}

// ParseQueryText splits free search text into keywords and exclusion
// terms. Double-quoted phrases stay together as one token; a leading
// '-' marks a token as an exclusion.
func ParseQueryText(text string) (keywords, excludes []string) {
	for _, tok := range tokenize(text) {
		negate := false
		if strings.HasPrefix(tok, "-") && len(tok) > 1 {
			negate = true
			tok = tok[1:]
		}
		tok = unquote(tok)
		if tok == "" {
			continue
		}
		if negate {
			excludes = append(excludes, tok)
		} else {
			keywords = append(keywords, tok)
		}
	}
	return keywords, excludes
}

// tokenize splits on whitespace while keeping quoted phrases intact.
// A '-' immediately before a quote negates the whole phrase.
func tokenize(text string) []string {
	var tokens []string
	var current strings.Builder
	inQuotes := false

	for _, ch := range text {
		switch {
		case ch == '"':
			inQuotes = !inQuotes
			current.WriteRune(ch)
		case (ch == ' ' || ch == '\t' || ch == '\n') && !inQuotes:
			if current.Len() > 0 {
				tokens = append(tokens, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(ch)
		}
	}
	if current.Len() > 0 {
		tokens = append(tokens, current.String())
	}
	return tokens
}

// unquote strips surrounding double quotes, also after a '-' prefix
// has been removed by the caller.
func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// ParseDate parses an absolute date in common formats, UTC midnight.
func ParseDate(value string) (*time.Time, error) {
	formats := []string{
		"2006-01-02",
		"2006/01/02",
		"01/02/2006",
	}
	value = strings.TrimSpace(value)
	for _, format := range formats {
		if t, err := time.Parse(format, value); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unrecognized date %q (want YYYY-MM-DD)", value)
}

var relativeDateRe = regexp.MustCompile(`^(\d+)([dwmy])$`)

// ParseRelativeDate parses quick presets like 7d, 2w, 6m, 1y into an
// absolute date relative to now. Returns nil when the value doesn't
// look like a relative date.
func ParseRelativeDate(value string, now time.Time) *time.Time {
	match := relativeDateRe.FindStringSubmatch(strings.ToLower(strings.TrimSpace(value)))
	if match == nil {
		return nil
	}

	amount, _ := strconv.Atoi(match[1])
	var result time.Time
	switch match[2] {
	case "d":
		result = now.AddDate(0, 0, -amount)
	case "w":
		result = now.AddDate(0, 0, -amount*7)
	case "m":
		result = now.AddDate(0, -amount, 0)
	case "y":
		result = now.AddDate(-amount, 0, 0)
	default:
		return nil
	}
	return &result
}
