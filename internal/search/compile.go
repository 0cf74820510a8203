package search

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrInvalidRequest marks a malformed filter combination, rejected
// before compilation. Callers test for it with errors.Is.
var ErrInvalidRequest = eris.New("invalid search request")

// StoreConfig names the store objects a compiled query runs against.
// Identifiers come from configuration only, never from user input,
// which is why they may appear directly in statement text.
type StoreConfig struct {
	Table        string // primary email table, optionally catalog.schema qualified
	SummaryTable string // joined summary/category table
}

// Column names of the primary email table.
const (
	colID         = "email_id"
	colSubject    = "subject"
	colBody       = "body"
	colSender     = "sender"
	colRecipient  = "recipient"
	colSentAt     = "sent_at"
	colSourceFile = "source_file"
)

// Column names of the summary table.
const (
	colSummary  = "summary"
	colCategory = "category"
)

// column resolves a logical field to its qualified column reference.
// The primary table is always aliased m and the summary table s.
func (f Field) column() string {
	switch f {
	case FieldSubject:
		return "m." + colSubject
	case FieldBody:
		return "m." + colBody
	case FieldSummary:
		return "s." + colSummary
	case FieldSender:
		return "m." + colSender
	case FieldRecipient:
		return "m." + colRecipient
	default:
		return ""
	}
}

// Relevance weights per field for SortRelevance. Coarse static scores,
// not a ranking algorithm: only the first keyword (or the phrase) is
// tested, a known simplification.
const (
	subjectWeight = 3
	bodyWeight    = 2
	summaryWeight = 2
)

// Compile turns a search request into a parameterized statement plus
// its ordered bound values. It is total and pure: same input, same
// output, no I/O. Malformed requests fail with ErrInvalidRequest.
//
// Every user-supplied value (keywords, exclusions, sender/recipient
// substrings, date bounds, category, limit) is bound through the
// parameter list; only config-derived identifiers and enum-derived
// keywords appear in the statement text.
func Compile(req *Request, cfg StoreConfig) (*CompiledQuery, error) {
	if err := validate(req, cfg); err != nil {
		return nil, err
	}

	w := &stmtWriter{}

	w.raw("SELECT m." + colID + ", m." + colSubject + ", m." + colBody +
		", m." + colSender + ", m." + colRecipient + ", m." + colSentAt +
		", m." + colSourceFile)
	if req.JoinSummary {
		w.raw(", s." + colSummary + ", s." + colCategory)
	}
	if req.Sort == SortRelevance {
		w.raw(", ")
		renderRelevance(w, req)
	}

	w.raw("\nFROM " + quoteIdent(cfg.Table) + " AS m")
	if req.JoinSummary {
		// LEFT JOIN so records without a summary still appear, with
		// NULL summary/category.
		w.raw("\nLEFT JOIN " + quoteIdent(cfg.SummaryTable) +
			" AS s ON s." + colID + " = m." + colID)
	}

	w.raw("\nWHERE ")
	if req.HasFilters() {
		buildPredicate(req).render(w)
	} else {
		// Empty request: select everything, bounded only by the limit.
		w.raw("1=1")
	}

	w.raw("\nORDER BY " + orderClause(req.Sort))

	w.raw("\nLIMIT ")
	w.bind(Param{Name: "limit", Type: ParamInt, Value: req.Limit})

	return &CompiledQuery{Statement: w.sb.String(), Params: w.params}, nil
}

// CompileByID builds the single-record lookup used for full-body views.
func CompileByID(id string, joinSummary bool, cfg StoreConfig) *CompiledQuery {
	w := &stmtWriter{}
	w.raw("SELECT m." + colID + ", m." + colSubject + ", m." + colBody +
		", m." + colSender + ", m." + colRecipient + ", m." + colSentAt +
		", m." + colSourceFile)
	if joinSummary {
		w.raw(", s." + colSummary + ", s." + colCategory)
	}
	w.raw("\nFROM " + quoteIdent(cfg.Table) + " AS m")
	if joinSummary {
		w.raw("\nLEFT JOIN " + quoteIdent(cfg.SummaryTable) +
			" AS s ON s." + colID + " = m." + colID)
	}
	w.raw("\nWHERE m." + colID + " = ")
	w.bind(Param{Name: "id", Type: ParamString, Value: id})
	w.raw("\nLIMIT ")
	w.bind(Param{Name: "limit", Type: ParamInt, Value: 1})
	return &CompiledQuery{Statement: w.sb.String(), Params: w.params}
}

// CompileCategories builds the distinct-category listing that populates
// the category selector. No user input is involved.
func CompileCategories(cfg StoreConfig) *CompiledQuery {
	stmt := "SELECT DISTINCT " + colCategory +
		"\nFROM " + quoteIdent(cfg.SummaryTable) +
		"\nWHERE " + colCategory + " IS NOT NULL" +
		"\nORDER BY " + colCategory
	return &CompiledQuery{Statement: stmt}
}

func validate(req *Request, cfg StoreConfig) error {
	if cfg.Table == "" {
		return eris.Wrap(ErrInvalidRequest, "store table not configured")
	}
	if req.Limit <= 0 {
		return eris.Wrap(ErrInvalidRequest, "limit must be positive")
	}
	if (len(req.Keywords) > 0 || len(req.ExcludeTerms) > 0) && len(req.Fields) == 0 {
		return eris.Wrap(ErrInvalidRequest, "search fields must be non-empty when keywords or exclusions are set")
	}
	for _, f := range req.Fields {
		if f.column() == "" {
			return eris.Wrap(ErrInvalidRequest, "unsupported search field")
		}
		if f == FieldSummary && !req.JoinSummary {
			return eris.Wrap(ErrInvalidRequest, "summary field requires the summary join")
		}
	}
	if req.Category != "" && !req.JoinSummary {
		// Signal instead of silently dropping the clause: a dropped
		// filter changes result semantics without telling the caller.
		return eris.Wrap(ErrInvalidRequest, "category filter requires the summary join")
	}
	if req.JoinSummary && cfg.SummaryTable == "" {
		return eris.Wrap(ErrInvalidRequest, "summary table not configured")
	}
	switch req.Sort {
	case SortNewestFirst, SortOldestFirst, SortRelevance:
	default:
		return eris.Wrap(ErrInvalidRequest, "unsupported sort key")
	}
	return nil
}

// buildPredicate assembles the conjunction of all active filter
// clauses. Returns nil when no filter is active.
func buildPredicate(req *Request) clause {
	fold := !req.CaseSensitive
	var conj []clause

	if len(req.Keywords) > 0 {
		if req.ExactPhrase {
			conj = append(conj, fieldsAnyContain(req.Fields, "phrase", req.Phrase(), fold))
		} else {
			// Each keyword must appear somewhere in at least one
			// selected field; different keywords may hit different
			// fields.
			for i, kw := range req.Keywords {
				name := "keyword_" + strconv.Itoa(i)
				conj = append(conj, fieldsAnyContain(req.Fields, name, kw, fold))
			}
		}
	}

	for i, term := range req.ExcludeTerms {
		name := "exclude_" + strconv.Itoa(i)
		conj = append(conj, not{inner: fieldsAnyContain(req.Fields, name, term, fold)})
	}

	if req.SenderContains != "" {
		conj = append(conj, contains{
			col:   "m." + colSender,
			param: Param{Name: "sender", Type: ParamString, Value: likePattern(req.SenderContains)},
			fold:  true,
		})
	}
	if req.RecipientContains != "" {
		conj = append(conj, contains{
			col:   "m." + colRecipient,
			param: Param{Name: "recipient", Type: ParamString, Value: likePattern(req.RecipientContains)},
			fold:  true,
		})
	}

	if req.DateFrom != nil {
		conj = append(conj, compare{
			expr:  "CAST(m." + colSentAt + " AS DATE)",
			op:    ">=",
			cast:  "DATE",
			param: Param{Name: "date_from", Type: ParamDate, Value: req.DateFrom.Format("2006-01-02")},
		})
	}
	if req.DateTo != nil {
		conj = append(conj, compare{
			expr:  "CAST(m." + colSentAt + " AS DATE)",
			op:    "<=",
			cast:  "DATE",
			param: Param{Name: "date_to", Type: ParamDate, Value: req.DateTo.Format("2006-01-02")},
		})
	}

	if req.Category != "" && req.JoinSummary {
		conj = append(conj, compare{
			expr:  "s." + colCategory,
			op:    "=",
			param: Param{Name: "category", Type: ParamString, Value: req.Category},
		})
	}

	switch len(conj) {
	case 0:
		return nil
	case 1:
		return conj[0]
	default:
		return and{parts: conj}
	}
}

// fieldsAnyContain builds the OR-across-fields containment test for a
// single literal. One parameter is bound per field, all carrying the
// same pattern.
func fieldsAnyContain(fields []Field, name, term string, fold bool) clause {
	pattern := likePattern(term)
	parts := make([]clause, len(fields))
	for i, f := range fields {
		parts[i] = contains{
			col:   f.column(),
			param: Param{Name: name, Type: ParamString, Value: pattern},
			fold:  fold,
		}
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return or{parts: parts}
}

// renderRelevance writes the static weighted relevance expression.
// Only the first keyword (or the whole phrase) is scored.
func renderRelevance(w *stmtWriter, req *Request) {
	if len(req.Keywords) == 0 {
		w.raw("0 AS relevance")
		return
	}
	literal := req.Keywords[0]
	if req.ExactPhrase {
		literal = req.Phrase()
	}
	fold := !req.CaseSensitive
	pattern := likePattern(literal)

	w.raw("(CASE WHEN ")
	contains{col: "m." + colSubject, param: Param{Name: "score_subject", Type: ParamString, Value: pattern}, fold: fold}.render(w)
	w.raw(" THEN " + strconv.Itoa(subjectWeight) + " ELSE 0 END + CASE WHEN ")
	contains{col: "m." + colBody, param: Param{Name: "score_body", Type: ParamString, Value: pattern}, fold: fold}.render(w)
	w.raw(" THEN " + strconv.Itoa(bodyWeight) + " ELSE 0 END")
	if req.JoinSummary {
		w.raw(" + CASE WHEN ")
		contains{col: "s." + colSummary, param: Param{Name: "score_summary", Type: ParamString, Value: pattern}, fold: fold}.render(w)
		w.raw(" THEN " + strconv.Itoa(summaryWeight) + " ELSE 0 END")
	}
	w.raw(") AS relevance")
}

func orderClause(k SortKey) string {
	switch k {
	case SortOldestFirst:
		return "m." + colSentAt + " ASC"
	case SortRelevance:
		return "relevance DESC, m." + colSentAt + " DESC"
	default:
		return "m." + colSentAt + " DESC"
	}
}

// quoteIdent quotes a possibly dot-qualified identifier so configured
// table names can't break out of identifier position.
func quoteIdent(ident string) string {
	parts := strings.Split(ident, ".")
	for i, p := range parts {
		parts[i] = `"` + strings.ReplaceAll(p, `"`, `""`) + `"`
	}
	return strings.Join(parts, ".")
}

