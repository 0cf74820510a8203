package query

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/afpdata/mailsift/internal/search"
)

// ErrExecution marks a store-side query failure (syntax, permission,
// timeout). It is surfaced to the user as a non-fatal message and the
// current result set is cleared rather than showing stale data.
var ErrExecution = eris.New("query execution failed")

// Engine runs compiled queries against a backing store. Implemented by
// DuckDBEngine; handlers and tests may supply fakes.
type Engine interface {
	// Search executes a compiled search statement and returns the
	// complete result set. Results are never partial: any failure
	// yields a nil ResultSet and a wrapped ErrExecution.
	Search(ctx context.Context, q *search.CompiledQuery) (*ResultSet, error)

	// GetMessage fetches a single record by id for full-body views.
	// Returns (nil, nil) when the id does not exist.
	GetMessage(ctx context.Context, id string) (*EmailRecord, error)

	// ListCategories returns the distinct category values of the
	// summary table, for populating the category selector.
	ListCategories(ctx context.Context) ([]string, error)

	// Close releases store resources.
	Close() error
}
