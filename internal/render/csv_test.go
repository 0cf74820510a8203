package render

import (
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/afpdata/mailsift/internal/query"
)

func strPtr(s string) *string { return &s }

func sampleRows() []query.EmailRecord {
	return []query.EmailRecord{
		{
			ID:         "e1",
			Subject:    "Quarterly Budget",
			Body:       "numbers, with a comma",
			Sender:     "alice@corp.com",
			Recipient:  "bob@corp.com",
			SentAt:     time.Date(2024, 3, 10, 9, 30, 0, 0, time.UTC),
			SourceFile: "archive_a.pst",
			Summary:    strPtr("Budget review"),
			Category:   strPtr("Finance"),
		},
		{
			ID:         "e2",
			Subject:    `He said "hello"`,
			Body:       "line one\nline two",
			Sender:     "carol@corp.com",
			Recipient:  "dave@corp.com",
			SentAt:     time.Date(2024, 3, 12, 14, 0, 5, 0, time.UTC),
			SourceFile: "archive_a.pst",
		},
	}
}

func TestWriteCSV(t *testing.T) {
	rs := &query.ResultSet{Rows: sampleRows()}

	var sb strings.Builder
	if err := WriteCSV(&sb, rs); err != nil {
		t.Fatalf("write csv: %v", err)
	}

	records, err := csv.NewReader(strings.NewReader(sb.String())).ReadAll()
	if err != nil {
		t.Fatalf("re-read csv: %v", err)
	}

	want := [][]string{
		{"email_id", "subject", "body", "sender", "recipient", "sent_at", "source_file"},
		{"e1", "Quarterly Budget", "numbers, with a comma",
			"alice@corp.com", "bob@corp.com", "2024-03-10 09:30:00", "archive_a.pst"},
		{"e2", `He said "hello"`, "line one\nline two",
			"carol@corp.com", "dave@corp.com", "2024-03-12 14:00:05", "archive_a.pst"},
	}
	if diff := cmp.Diff(want, records); diff != "" {
		t.Errorf("csv mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteCSV_JoinedColumns(t *testing.T) {
	rs := &query.ResultSet{Rows: sampleRows(), Joined: true}

	var sb strings.Builder
	if err := WriteCSV(&sb, rs); err != nil {
		t.Fatalf("write csv: %v", err)
	}

	records, err := csv.NewReader(strings.NewReader(sb.String())).ReadAll()
	if err != nil {
		t.Fatalf("re-read csv: %v", err)
	}

	header := records[0]
	if header[len(header)-2] != "summary" || header[len(header)-1] != "category" {
		t.Errorf("joined header = %v", header)
	}
	// e1 carries its summary row, e2 has none and exports blanks.
	if got := records[1][7:]; got[0] != "Budget review" || got[1] != "Finance" {
		t.Errorf("e1 summary columns = %v", got)
	}
	if got := records[2][7:]; got[0] != "" || got[1] != "" {
		t.Errorf("e2 summary columns = %v, want blanks", got)
	}
}

func TestWriteCSV_Empty(t *testing.T) {
	var sb strings.Builder
	if err := WriteCSV(&sb, &query.ResultSet{}); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	if got := strings.TrimRight(sb.String(), "\n"); got != strings.Join((&query.ResultSet{}).Columns(), ",") {
		t.Errorf("empty export = %q, want header only", got)
	}
}

func TestExportFilename(t *testing.T) {
	now := time.Date(2024, 3, 10, 9, 30, 45, 0, time.UTC)
	if got := ExportFilename(now); got != "email_search_20240310_093045.csv" {
		t.Errorf("ExportFilename() = %q", got)
	}
}
