package render

import (
	"encoding/csv"
	"io"
	"time"

	"github.com/afpdata/mailsift/internal/query"
)

// csvTimeFormat matches how sent dates display in the result list.
const csvTimeFormat = "2006-01-02 15:04:05"

// WriteCSV writes the result set as comma-separated values with a
// header row matching the result column names.
func WriteCSV(w io.Writer, rs *query.ResultSet) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(rs.Columns()); err != nil {
		return err
	}

	for _, rec := range rs.Rows {
		row := []string{
			rec.ID,
			rec.Subject,
			rec.Body,
			rec.Sender,
			rec.Recipient,
			rec.SentAt.Format(csvTimeFormat),
			rec.SourceFile,
		}
		if rs.Joined {
			row = append(row, deref(rec.Summary), deref(rec.Category))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// ExportFilename returns the timestamped download name for an export.
func ExportFilename(now time.Time) string {
	return "email_search_" + now.Format("20060102_150405") + ".csv"
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
