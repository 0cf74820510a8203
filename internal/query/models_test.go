package query

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestComputeStats(t *testing.T) {
	rows := []EmailRecord{
		{Sender: "alice@example.com", Recipient: "bob@example.com", SentAt: time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)},
		{Sender: "alice@example.com", Recipient: "carol@example.com", SentAt: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)},
		{Sender: "dave@example.com", Recipient: "bob@example.com", SentAt: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)},
	}

	stats := ComputeStats(rows)

	if stats.Total != 3 {
		t.Errorf("Total = %d, want 3", stats.Total)
	}
	if stats.UniqueSenders != 2 {
		t.Errorf("UniqueSenders = %d, want 2", stats.UniqueSenders)
	}
	if stats.UniqueRecipients != 2 {
		t.Errorf("UniqueRecipients = %d, want 2", stats.UniqueRecipients)
	}
	if got := stats.OldestSent.Format("2006-01-02"); got != "2024-01-10" {
		t.Errorf("OldestSent = %s, want 2024-01-10", got)
	}
	if got := stats.NewestSent.Format("2006-01-02"); got != "2024-03-05" {
		t.Errorf("NewestSent = %s, want 2024-03-05", got)
	}
}

func TestComputeStats_Empty(t *testing.T) {
	stats := ComputeStats(nil)
	if stats.Total != 0 || stats.OldestSent != nil || stats.NewestSent != nil {
		t.Errorf("empty stats = %+v", stats)
	}
}

func TestSnippet(t *testing.T) {
	rec := EmailRecord{Body: strings.Repeat("x", 600)}
	if got := rec.Snippet(500); len([]rune(got)) != 503 || !strings.HasSuffix(got, "...") {
		t.Errorf("snippet length = %d", len([]rune(got)))
	}

	short := EmailRecord{Body: "brief"}
	if got := short.Snippet(500); got != "brief" {
		t.Errorf("short body altered: %q", got)
	}
}

func TestResultSetColumns(t *testing.T) {
	plain := &ResultSet{}
	want := []string{"email_id", "subject", "body", "sender", "recipient", "sent_at", "source_file"}
	if diff := cmp.Diff(want, plain.Columns()); diff != "" {
		t.Errorf("columns mismatch (-want +got):\n%s", diff)
	}

	joined := &ResultSet{Joined: true}
	want = append(want, "summary", "category")
	if diff := cmp.Diff(want, joined.Columns()); diff != "" {
		t.Errorf("joined columns mismatch (-want +got):\n%s", diff)
	}
}
