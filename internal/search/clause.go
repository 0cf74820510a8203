package search

import "strings"

// ParamType is the bind type of a query parameter.
type ParamType int

const (
	ParamString ParamType = iota
	ParamDate
	ParamInt
)

func (t ParamType) String() string {
	switch t {
	case ParamString:
		return "STRING"
	case ParamDate:
		return "DATE"
	case ParamInt:
		return "INT64"
	default:
		return "UNKNOWN"
	}
}

// Param is one bound query value. Name is informational; binding is by
// position, in the order placeholders appear in the statement.
type Param struct {
	Name  string
	Type  ParamType
	Value interface{}
}

// CompiledQuery is a parameterized statement plus its ordered bound
// values. User input appears only in Params, never in Statement.
type CompiledQuery struct {
	Statement string
	Params    []Param
}

// stmtWriter accumulates statement text and parameters in lockstep, so
// parameter order always matches placeholder order by construction.
type stmtWriter struct {
	sb     strings.Builder
	params []Param
}

func (w *stmtWriter) raw(s string) {
	w.sb.WriteString(s)
}

// bind emits a placeholder and records its parameter.
func (w *stmtWriter) bind(p Param) {
	w.sb.WriteString("?")
	w.params = append(w.params, p)
}

// clause is one atomic or composite boolean condition of the predicate.
// Rendering a clause writes its SQL and collects its parameters through
// the shared writer, which is the only way a value reaches the query.
type clause interface {
	render(w *stmtWriter)
}

// contains is a substring containment test against a column. When fold
// is set the comparison folds case on both sides (ILIKE); otherwise it
// is an exact-case LIKE. The bound pattern has LIKE wildcards escaped.
type contains struct {
	col   string
	param Param
	fold  bool
}

func (c contains) render(w *stmtWriter) {
	op := " LIKE "
	if c.fold {
		op = " ILIKE "
	}
	w.raw(c.col)
	w.raw(op)
	w.bind(c.param)
	w.raw(` ESCAPE '\'`)
}

// compare is a binary comparison between a column expression and a
// bound value, e.g. date bounds and category equality.
type compare struct {
	expr  string // left-hand column expression, config/enum derived only
	op    string
	cast  string // optional CAST target for the bound value
	param Param
}

func (c compare) render(w *stmtWriter) {
	w.raw(c.expr)
	w.raw(" ")
	w.raw(c.op)
	w.raw(" ")
	if c.cast != "" {
		w.raw("CAST(")
		w.bind(c.param)
		w.raw(" AS " + c.cast + ")")
	} else {
		w.bind(c.param)
	}
}

type not struct {
	inner clause
}

func (n not) render(w *stmtWriter) {
	w.raw("NOT (")
	n.inner.render(w)
	w.raw(")")
}

type and struct {
	parts []clause
}

func (a and) render(w *stmtWriter) {
	renderJoined(w, a.parts, " AND ")
}

type or struct {
	parts []clause
}

func (o or) render(w *stmtWriter) {
	renderJoined(w, o.parts, " OR ")
}

func renderJoined(w *stmtWriter, parts []clause, sep string) {
	w.raw("(")
	for i, p := range parts {
		if i > 0 {
			w.raw(sep)
		}
		p.render(w)
	}
	w.raw(")")
}

// escapeLike escapes LIKE/ILIKE wildcard characters in user input so a
// search term only ever matches literally.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}

// likePattern wraps a term in containment wildcards after escaping.
func likePattern(term string) string {
	return "%" + escapeLike(term) + "%"
}
