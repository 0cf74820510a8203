package render

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSpans(t *testing.T) {
	tests := []struct {
		name          string
		text          string
		terms         []string
		caseSensitive bool
		want          []Span
	}{
		{
			name:  "single match",
			text:  "the budget report",
			terms: []string{"budget"},
			want:  []Span{{Start: 4, End: 10}},
		},
		{
			name:  "case folded match",
			text:  "Budget and BUDGET",
			terms: []string{"budget"},
			want:  []Span{{Start: 0, End: 6}, {Start: 11, End: 17}},
		},
		{
			name:          "case sensitive skips wrong case",
			text:          "Budget and budget",
			terms:         []string{"budget"},
			caseSensitive: true,
			want:          []Span{{Start: 11, End: 17}},
		},
		{
			name:  "overlapping terms merge",
			text:  "quarterly report",
			terms: []string{"quarterly rep", "rep"},
			want:  []Span{{Start: 0, End: 13}},
		},
		{
			name:  "adjacent spans coalesce",
			text:  "abcdef",
			terms: []string{"abc", "def"},
			want:  []Span{{Start: 0, End: 6}},
		},
		{
			name:  "regex metacharacters are literal",
			text:  "cost (estimated) is $5",
			terms: []string{"(estimated)", "$5"},
			want:  []Span{{Start: 5, End: 16}, {Start: 20, End: 22}},
		},
		{
			name:  "no match",
			text:  "nothing here",
			terms: []string{"budget"},
			want:  nil,
		},
		{
			name:  "empty term ignored",
			text:  "anything",
			terms: []string{""},
			want:  nil,
		},
		{
			name:  "empty text",
			text:  "",
			terms: []string{"budget"},
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Spans(tt.text, tt.terms, tt.caseSensitive)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Spans() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestHTML(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		terms []string
		want  string
	}{
		{
			name:  "wraps match in mark",
			text:  "the budget report",
			terms: []string{"budget"},
			want:  "the <mark>budget</mark> report",
		},
		{
			name:  "escapes surrounding html",
			text:  "<b>budget</b>",
			terms: []string{"budget"},
			want:  "&lt;b&gt;<mark>budget</mark>&lt;/b&gt;",
		},
		{
			name:  "escapes matched text too",
			text:  "a < b and a < c",
			terms: []string{"a < b"},
			want:  "<mark>a &lt; b</mark> and a &lt; c",
		},
		{
			name:  "no match escapes everything",
			text:  "<script>alert(1)</script>",
			terms: []string{"budget"},
			want:  "&lt;script&gt;alert(1)&lt;/script&gt;",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTML(tt.text, tt.terms, false); got != tt.want {
				t.Errorf("HTML() = %q, want %q", got, tt.want)
			}
		})
	}
}
