package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/afpdata/mailsift/internal/query"
	"github.com/afpdata/mailsift/internal/search"
)

var (
	searchFields    []string
	searchPhrase    bool
	searchExclude   []string
	searchSender    string
	searchRecipient string
	searchFrom      string
	searchTo        string
	searchCategory  string
	searchJoin      bool
	searchCaseSens  bool
	searchLimit     int
	searchSort      string
	searchJSON      bool
)

var searchCmd = &cobra.Command{
	Use:   "search <terms>",
	Short: "Search the email archive",
	Long: `Search the email archive with free-text keywords and filters.

Bare words are ANDed together; each must appear in at least one of the
selected fields. Double-quoted phrases stay together, and a leading
'-' excludes a term. Date bounds accept YYYY-MM-DD or quick presets
like 7d, 2w, 6m, 1y.

Examples:
  mailsift search meeting schedule
  mailsift search '"quarterly report"' --from 90d
  mailsift search contract -draft --sender alice --sort relevance
  mailsift search payment --join --category Finance`,
	Args: cobra.MinimumNArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := buildRequest(strings.Join(args, " "))
		if err != nil {
			return err
		}

		if err := cfg.ValidateStore(); err != nil {
			return err
		}

		compiled, err := search.Compile(req, cfg.StoreIdentifiers())
		if err != nil {
			return err
		}

		engine, err := query.NewDuckDBEngine(cfg.Store.Database, cfg.StoreIdentifiers())
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer engine.Close()

		results, err := engine.Search(cmd.Context(), compiled)
		if err != nil {
			return err
		}

		if len(results.Rows) == 0 {
			fmt.Println("No messages found.")
			return nil
		}

		if searchJSON {
			return outputResultsJSON(results)
		}
		return outputResultsTable(results)
	},
}

// buildRequest assembles a search request from the free text and the
// command flags.
func buildRequest(text string) (*search.Request, error) {
	keywords, excludes := search.ParseQueryText(text)
	excludes = append(excludes, searchExclude...)

	fields := make([]search.Field, 0, len(searchFields))
	for _, name := range searchFields {
		f, err := search.ParseField(name)
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}

	sort, err := search.ParseSortKey(searchSort)
	if err != nil {
		return nil, err
	}

	req := &search.Request{
		Keywords:          keywords,
		Fields:            fields,
		ExactPhrase:       searchPhrase,
		ExcludeTerms:      excludes,
		SenderContains:    searchSender,
		RecipientContains: searchRecipient,
		Category:          searchCategory,
		JoinSummary:       searchJoin || searchCategory != "",
		CaseSensitive:     searchCaseSens,
		Limit:             cfg.ClampLimit(searchLimit),
		Sort:              sort,
	}

	if req.DateFrom, err = parseDateFlag(searchFrom); err != nil {
		return nil, err
	}
	if req.DateTo, err = parseDateFlag(searchTo); err != nil {
		return nil, err
	}

	return req, nil
}

func parseDateFlag(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	if t := search.ParseRelativeDate(value, time.Now().UTC()); t != nil {
		return t, nil
	}
	return search.ParseDate(value)
}

func outputResultsTable(results *query.ResultSet) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDATE\tFROM\tTO\tSUBJECT")
	fmt.Fprintln(w, "──\t────\t────\t──\t───────")

	for _, rec := range results.Rows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			truncate(rec.ID, 12),
			rec.SentAt.Format("2006-01-02"),
			truncate(rec.Sender, 28),
			truncate(rec.Recipient, 28),
			truncate(rec.Subject, 50),
		)
	}

	w.Flush()
	st := results.Stats
	fmt.Printf("\n%d results, %d senders, %d recipients", st.Total, st.UniqueSenders, st.UniqueRecipients)
	if st.OldestSent != nil && st.NewestSent != nil {
		fmt.Printf(", %s to %s", st.OldestSent.Format("2006-01-02"), st.NewestSent.Format("2006-01-02"))
	}
	fmt.Println()
	return nil
}

func outputResultsJSON(results *query.ResultSet) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}

// registerFilterFlags defines the shared filter flags; search and
// export both take them.
func registerFilterFlags(fs *pflag.FlagSet) {
	fs.StringSliceVar(&searchFields, "fields", []string{"subject", "body"}, "fields keywords match against (subject,body,summary,sender,recipient)")
	fs.BoolVar(&searchPhrase, "phrase", false, "match all terms as one exact phrase")
	fs.StringArrayVar(&searchExclude, "exclude", nil, "term that must not appear in any selected field (repeatable)")
	fs.StringVar(&searchSender, "sender", "", "sender contains")
	fs.StringVar(&searchRecipient, "recipient", "", "recipient contains")
	fs.StringVar(&searchFrom, "from", "", "sent on or after (YYYY-MM-DD or 7d/2w/6m/1y)")
	fs.StringVar(&searchTo, "to", "", "sent on or before (YYYY-MM-DD or 7d/2w/6m/1y)")
	fs.StringVar(&searchCategory, "category", "", "category filter (implies --join)")
	fs.BoolVar(&searchJoin, "join", false, "join the summary/category table")
	fs.BoolVar(&searchCaseSens, "case-sensitive", false, "match case exactly")
	fs.IntVar(&searchLimit, "limit", 0, "max results (default from config)")
	fs.StringVar(&searchSort, "sort", "newest", "sort order: newest, oldest, relevance")
}

func init() {
	registerFilterFlags(searchCmd.Flags())
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output JSON")

	rootCmd.AddCommand(searchCmd)
}
