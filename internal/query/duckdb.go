package query

import (
	"context"
	"database/sql"
	"fmt"
	"runtime"
	"time"

	_ "github.com/marcboeker/go-duckdb"
	"github.com/rotisserie/eris"

	"github.com/afpdata/mailsift/internal/search"
)

// DuckDBEngine executes compiled queries against a DuckDB database
// holding the email table and the optional summary table. The engine
// is read-only with respect to the data: it only ever runs the
// statements the search compiler produced.
type DuckDBEngine struct {
	db  *sql.DB
	cfg search.StoreConfig
}

// NewDuckDBEngine opens the database at path ("" for in-memory) and
// returns an engine bound to the configured tables.
func NewDuckDBEngine(path string, cfg search.StoreConfig) (*DuckDBEngine, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	// Session settings don't propagate across pooled connections, so
	// constrain to one.
	db.SetMaxOpenConns(1)

	threads := runtime.GOMAXPROCS(0)
	if _, err := db.Exec(fmt.Sprintf("SET threads = %d", threads)); err != nil {
		db.Close()
		return nil, fmt.Errorf("set threads: %w", err)
	}

	return &DuckDBEngine{db: db, cfg: cfg}, nil
}

// DB exposes the underlying handle for test seeding.
func (e *DuckDBEngine) DB() *sql.DB {
	return e.db
}

// Close releases DuckDB resources.
func (e *DuckDBEngine) Close() error {
	return e.db.Close()
}

// Search executes a compiled search statement, binding parameters in
// the order the compiler emitted them.
func (e *DuckDBEngine) Search(ctx context.Context, q *search.CompiledQuery) (*ResultSet, error) {
	rows, err := e.db.QueryContext(ctx, q.Statement, bindArgs(q.Params)...)
	if err != nil {
		return nil, eris.Wrapf(ErrExecution, "search: %v", err)
	}
	defer rows.Close()

	records, joined, err := scanRecords(rows)
	if err != nil {
		return nil, eris.Wrapf(ErrExecution, "scan results: %v", err)
	}

	return &ResultSet{
		Rows:   records,
		Stats:  ComputeStats(records),
		Joined: joined,
	}, nil
}

// GetMessage fetches one record by id, including summary columns when
// a summary table is configured.
func (e *DuckDBEngine) GetMessage(ctx context.Context, id string) (*EmailRecord, error) {
	q := search.CompileByID(id, e.cfg.SummaryTable != "", e.cfg)
	rows, err := e.db.QueryContext(ctx, q.Statement, bindArgs(q.Params)...)
	if err != nil {
		return nil, eris.Wrapf(ErrExecution, "get message: %v", err)
	}
	defer rows.Close()

	records, _, err := scanRecords(rows)
	if err != nil {
		return nil, eris.Wrapf(ErrExecution, "scan message: %v", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

// ListCategories returns the distinct non-null categories of the
// summary table.
func (e *DuckDBEngine) ListCategories(ctx context.Context) ([]string, error) {
	if e.cfg.SummaryTable == "" {
		return nil, nil
	}
	q := search.CompileCategories(e.cfg)
	rows, err := e.db.QueryContext(ctx, q.Statement)
	if err != nil {
		return nil, eris.Wrapf(ErrExecution, "list categories: %v", err)
	}
	defer rows.Close()

	var categories []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, eris.Wrapf(ErrExecution, "scan category: %v", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// bindArgs flattens typed parameters into driver arguments, preserving
// placeholder order.
func bindArgs(params []search.Param) []interface{} {
	args := make([]interface{}, len(params))
	for i, p := range params {
		args[i] = p.Value
	}
	return args
}

// scanRecords reads result rows, adapting to the optional summary and
// relevance columns by inspecting the result shape.
func scanRecords(rows *sql.Rows) ([]EmailRecord, bool, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, false, err
	}
	hasSummary := false
	hasRelevance := false
	for _, c := range cols {
		switch c {
		case "summary":
			hasSummary = true
		case "relevance":
			hasRelevance = true
		}
	}

	var records []EmailRecord
	for rows.Next() {
		var (
			rec       EmailRecord
			sentAt    time.Time
			summary   sql.NullString
			category  sql.NullString
			relevance sql.NullInt64
		)

		dest := []interface{}{
			&rec.ID, &rec.Subject, &rec.Body,
			&rec.Sender, &rec.Recipient, &sentAt, &rec.SourceFile,
		}
		if hasSummary {
			dest = append(dest, &summary, &category)
		}
		if hasRelevance {
			dest = append(dest, &relevance)
		}

		if err := rows.Scan(dest...); err != nil {
			return nil, false, err
		}

		rec.SentAt = sentAt
		if summary.Valid {
			rec.Summary = &summary.String
		}
		if category.Valid {
			rec.Category = &category.String
		}
		if relevance.Valid {
			rec.Relevance = &relevance.Int64
		}
		records = append(records, rec)
	}
	return records, hasSummary, rows.Err()
}
