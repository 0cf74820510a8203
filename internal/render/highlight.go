// Package render turns result sets into user-facing output: match
// highlighting for the result list and CSV for export.
package render

import (
	"html"
	"regexp"
	"sort"
	"strings"
)

// Span is a half-open byte range [Start, End) of a matched term.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Spans locates every occurrence of the given terms in text and
// returns merged, ordered match ranges. Matching folds case unless
// caseSensitive is set, mirroring how the search itself compared.
func Spans(text string, terms []string, caseSensitive bool) []Span {
	if text == "" || len(terms) == 0 {
		return nil
	}

	var spans []Span
	for _, term := range terms {
		if term == "" {
			continue
		}
		pattern := regexp.QuoteMeta(term)
		if !caseSensitive {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			continue
		}
		for _, m := range re.FindAllStringIndex(text, -1) {
			spans = append(spans, Span{Start: m[0], End: m[1]})
		}
	}
	return mergeSpans(spans)
}

// mergeSpans sorts spans and coalesces overlapping or touching ones.
func mergeSpans(spans []Span) []Span {
	if len(spans) <= 1 {
		return spans
	}
	sort.Slice(spans, func(i, j int) bool {
		if spans[i].Start != spans[j].Start {
			return spans[i].Start < spans[j].Start
		}
		return spans[i].End < spans[j].End
	})

	merged := spans[:1]
	for _, s := range spans[1:] {
		last := &merged[len(merged)-1]
		if s.Start <= last.End {
			if s.End > last.End {
				last.End = s.End
			}
			continue
		}
		merged = append(merged, s)
	}
	return merged
}

// HTML returns text with matched terms wrapped in <mark> tags and all
// other content HTML-escaped.
func HTML(text string, terms []string, caseSensitive bool) string {
	spans := Spans(text, terms, caseSensitive)
	if len(spans) == 0 {
		return html.EscapeString(text)
	}

	var sb strings.Builder
	pos := 0
	for _, s := range spans {
		sb.WriteString(html.EscapeString(text[pos:s.Start]))
		sb.WriteString("<mark>")
		sb.WriteString(html.EscapeString(text[s.Start:s.End]))
		sb.WriteString("</mark>")
		pos = s.End
	}
	sb.WriteString(html.EscapeString(text[pos:]))
	return sb.String()
}
