package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"

	"github.com/afpdata/mailsift/internal/query"
	"github.com/afpdata/mailsift/internal/render"
	"github.com/afpdata/mailsift/internal/search"
)

// snippetLength is how much of the body appears in list results; the
// full body is available per message.
const snippetLength = 500

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// ResultRow is one search hit in list responses.
type ResultRow struct {
	ID           string        `json:"id"`
	Subject      string        `json:"subject"`
	Sender       string        `json:"sender"`
	Recipient    string        `json:"recipient"`
	SentAt       string        `json:"sent_at"`
	SourceFile   string        `json:"source_file"`
	Snippet      string        `json:"snippet"`
	Summary      *string       `json:"summary,omitempty"`
	Category     *string       `json:"category,omitempty"`
	Relevance    *int64        `json:"relevance,omitempty"`
	SubjectSpans []render.Span `json:"subject_spans,omitempty"`
	SnippetSpans []render.Span `json:"snippet_spans,omitempty"`
	SubjectHTML  string        `json:"subject_html"`
	SnippetHTML  string        `json:"snippet_html"`
}

// StatsResponse summarizes a result set.
type StatsResponse struct {
	Total            int    `json:"total"`
	UniqueSenders    int    `json:"unique_senders"`
	UniqueRecipients int    `json:"unique_recipients"`
	OldestSent       string `json:"oldest_sent,omitempty"`
	NewestSent       string `json:"newest_sent,omitempty"`
}

// SearchResponse is the full search answer.
type SearchResponse struct {
	Stats   StatsResponse `json:"stats"`
	Columns []string      `json:"columns"`
	Results []ResultRow   `json:"results"`
	Cached  bool          `json:"cached"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, err string, message string) {
	writeJSON(w, status, ErrorResponse{Error: err, Message: message})
}

func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// handleSearch compiles the request filters into a query, runs it (or
// serves it from the short-TTL cache) and renders highlighted results.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.storeErr != nil {
		writeError(w, http.StatusServiceUnavailable, "store_unconfigured", eris.ToString(s.storeErr, false))
		return
	}

	req, err := s.requestFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	compiled, err := search.Compile(req, s.cfg.StoreIdentifiers())
	if err != nil {
		if errors.Is(err, search.ErrInvalidRequest) {
			writeError(w, http.StatusBadRequest, "invalid_request", eris.ToString(err, false))
			return
		}
		s.logger.Error("compile failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to compile query")
		return
	}

	sess := sessionFromContext(r.Context())

	key := query.CacheKey(compiled)
	results, cached := s.cache.Get(key)
	if !cached {
		results, err = s.engine.Search(r.Context(), compiled)
		if err != nil {
			// Never show stale data next to an error: the session's
			// exportable result set is cleared, not left as-is.
			if sess != nil {
				sess.SetLastResults(nil)
			}
			s.logger.Error("search failed", "error", err)
			writeError(w, http.StatusBadGateway, "query_error", eris.ToString(err, false))
			return
		}
		s.cache.Put(key, results)
	}

	if sess != nil {
		sess.SetLastResults(results)
	}

	writeJSON(w, http.StatusOK, buildSearchResponse(req, results, cached))
}

// requestFromQuery maps URL query parameters onto a search request.
func (s *Server) requestFromQuery(r *http.Request) (*search.Request, error) {
	q := r.URL.Query()

	keywords, excludes := search.ParseQueryText(q.Get("q"))
	excludes = append(excludes, splitList(q.Get("exclude"))...)

	fields, err := parseFields(q.Get("fields"))
	if err != nil {
		return nil, err
	}

	sort, err := search.ParseSortKey(q.Get("sort"))
	if err != nil {
		return nil, err
	}

	req := &search.Request{
		Keywords:          keywords,
		Fields:            fields,
		ExactPhrase:       parseBool(q.Get("phrase")),
		ExcludeTerms:      excludes,
		SenderContains:    q.Get("sender"),
		RecipientContains: q.Get("recipient"),
		Category:          q.Get("category"),
		JoinSummary:       parseBool(q.Get("join")),
		CaseSensitive:     parseBool(q.Get("case")),
		Sort:              sort,
	}

	limit := 0
	if v := q.Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil {
			return nil, eris.Wrap(search.ErrInvalidRequest, "limit must be a number")
		}
	}
	req.Limit = s.cfg.ClampLimit(limit)

	if req.DateFrom, err = s.parseDateParam(q.Get("from")); err != nil {
		return nil, err
	}
	if req.DateTo, err = s.parseDateParam(q.Get("to")); err != nil {
		return nil, err
	}

	return req, nil
}

// parseDateParam accepts an absolute date or a quick preset like 30d.
func (s *Server) parseDateParam(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	if t := search.ParseRelativeDate(value, s.now()); t != nil {
		return t, nil
	}
	return search.ParseDate(value)
}

func parseFields(value string) ([]search.Field, error) {
	names := splitList(value)
	if len(names) == 0 {
		// Default matches the primary text columns.
		return []search.Field{search.FieldSubject, search.FieldBody}, nil
	}
	fields := make([]search.Field, 0, len(names))
	seen := make(map[search.Field]bool)
	for _, name := range names {
		f, err := search.ParseField(name)
		if err != nil {
			return nil, err
		}
		if !seen[f] {
			seen[f] = true
			fields = append(fields, f)
		}
	}
	return fields, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseBool(value string) bool {
	b, _ := strconv.ParseBool(value)
	return b
}

func buildSearchResponse(req *search.Request, rs *query.ResultSet, cached bool) SearchResponse {
	terms := req.Keywords
	if req.ExactPhrase && len(req.Keywords) > 0 {
		terms = []string{req.Phrase()}
	}

	rows := make([]ResultRow, len(rs.Rows))
	for i, rec := range rs.Rows {
		snippet := rec.Snippet(snippetLength)
		rows[i] = ResultRow{
			ID:           rec.ID,
			Subject:      rec.Subject,
			Sender:       rec.Sender,
			Recipient:    rec.Recipient,
			SentAt:       rec.SentAt.Format(time.RFC3339),
			SourceFile:   rec.SourceFile,
			Snippet:      snippet,
			Summary:      rec.Summary,
			Category:     rec.Category,
			Relevance:    rec.Relevance,
			SubjectSpans: render.Spans(rec.Subject, terms, req.CaseSensitive),
			SnippetSpans: render.Spans(snippet, terms, req.CaseSensitive),
			SubjectHTML:  render.HTML(rec.Subject, terms, req.CaseSensitive),
			SnippetHTML:  render.HTML(snippet, terms, req.CaseSensitive),
		}
	}

	stats := StatsResponse{
		Total:            rs.Stats.Total,
		UniqueSenders:    rs.Stats.UniqueSenders,
		UniqueRecipients: rs.Stats.UniqueRecipients,
	}
	if rs.Stats.OldestSent != nil {
		stats.OldestSent = rs.Stats.OldestSent.Format("2006-01-02")
	}
	if rs.Stats.NewestSent != nil {
		stats.NewestSent = rs.Stats.NewestSent.Format("2006-01-02")
	}

	return SearchResponse{
		Stats:   stats,
		Columns: rs.Columns(),
		Results: rows,
		Cached:  cached,
	}
}

// handleGetMessage returns a single record with its full body.
func (s *Server) handleGetMessage(w http.ResponseWriter, r *http.Request) {
	if s.storeErr != nil {
		writeError(w, http.StatusServiceUnavailable, "store_unconfigured", eris.ToString(s.storeErr, false))
		return
	}

	id := chi.URLParam(r, "id")
	rec, err := s.engine.GetMessage(r.Context(), id)
	if err != nil {
		s.logger.Error("get message failed", "id", id, "error", err)
		writeError(w, http.StatusBadGateway, "query_error", "Failed to retrieve message")
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "not_found", "Message not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":          rec.ID,
		"subject":     rec.Subject,
		"body":        rec.Body,
		"sender":      rec.Sender,
		"recipient":   rec.Recipient,
		"sent_at":     rec.SentAt.Format(time.RFC3339),
		"source_file": rec.SourceFile,
		"summary":     rec.Summary,
		"category":    rec.Category,
	})
}

// handleCategories returns the category selector values: the static
// configured list when present, otherwise the distinct values of the
// summary table.
func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	if len(s.cfg.Store.Categories) > 0 {
		writeJSON(w, http.StatusOK, map[string]interface{}{"categories": s.cfg.Store.Categories})
		return
	}

	if s.storeErr != nil {
		writeError(w, http.StatusServiceUnavailable, "store_unconfigured", eris.ToString(s.storeErr, false))
		return
	}

	categories, err := s.engine.ListCategories(r.Context())
	if err != nil {
		s.logger.Error("list categories failed", "error", err)
		writeError(w, http.StatusBadGateway, "query_error", "Failed to list categories")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"categories": categories})
}

// handleExport streams the session's last result set as a timestamped
// CSV download. Without a prior successful search there is nothing to
// export and the request is refused.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var results *query.ResultSet
	if sess := sessionFromContext(r.Context()); sess != nil {
		results = sess.LastResults()
	}
	if results == nil || len(results.Rows) == 0 {
		writeError(w, http.StatusConflict, "nothing_to_export", "Run a search with results before exporting")
		return
	}

	filename := render.ExportFilename(s.now())
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)

	if err := render.WriteCSV(w, results); err != nil {
		s.logger.Error("csv export failed", "error", err)
	}
}
