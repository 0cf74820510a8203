// Package query executes compiled search statements against the email
// store and returns typed result rows. It never builds statement text
// from user input itself; that is the search package's job.
package query

import "time"

// EmailRecord is one row of the email table, with optional joined
// summary columns and the computed relevance score when the query
// sorted by relevance.
type EmailRecord struct {
	ID         string
	Subject    string
	Body       string
	Sender     string
	Recipient  string
	SentAt     time.Time
	SourceFile string
	Summary    *string // nil unless the summary join was enabled and matched
	Category   *string
	Relevance  *int64 // nil unless sorted by relevance
}

// Snippet returns the first n characters of the body for list views.
func (r *EmailRecord) Snippet(n int) string {
	runes := []rune(r.Body)
	if len(runes) <= n {
		return r.Body
	}
	return string(runes[:n]) + "..."
}

// ResultSet is the outcome of one executed search. A failed query
// never yields a partial ResultSet: it is either complete or absent.
type ResultSet struct {
	Rows   []EmailRecord
	Stats  ResultStats
	Joined bool // summary columns were part of the result shape
}

// ResultStats summarizes a result set for display.
type ResultStats struct {
	Total            int
	UniqueSenders    int
	UniqueRecipients int
	OldestSent       *time.Time
	NewestSent       *time.Time
}

// ComputeStats derives summary statistics over returned rows.
func ComputeStats(rows []EmailRecord) ResultStats {
	stats := ResultStats{Total: len(rows)}
	if len(rows) == 0 {
		return stats
	}

	senders := make(map[string]struct{})
	recipients := make(map[string]struct{})
	oldest, newest := rows[0].SentAt, rows[0].SentAt
	for _, r := range rows {
		senders[r.Sender] = struct{}{}
		recipients[r.Recipient] = struct{}{}
		if r.SentAt.Before(oldest) {
			oldest = r.SentAt
		}
		if r.SentAt.After(newest) {
			newest = r.SentAt
		}
	}
	stats.UniqueSenders = len(senders)
	stats.UniqueRecipients = len(recipients)
	stats.OldestSent = &oldest
	stats.NewestSent = &newest
	return stats
}

// Columns returns the result column names in row order, used as the
// CSV export header. Summary columns are present only when the search
// ran with the summary join.
func (rs *ResultSet) Columns() []string {
	cols := []string{"email_id", "subject", "body", "sender", "recipient", "sent_at", "source_file"}
	if rs.Joined {
		cols = append(cols, "summary", "category")
	}
	return cols
}
