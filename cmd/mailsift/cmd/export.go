package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/afpdata/mailsift/internal/query"
	"github.com/afpdata/mailsift/internal/render"
	"github.com/afpdata/mailsift/internal/search"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export <terms>",
	Short: "Search and write the results to a CSV file",
	Long: `Run a search and write the full result set as CSV with a header
row. Accepts the same filters as the search command. The output path
defaults to a timestamped file in the current directory.`,
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
			return fmt.Errorf("no results to export")
		}

		out := exportOut
		if out == "" {
			out = render.ExportFilename(time.Now())
		}

		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("create %s: %w", out, err)
		}
		defer f.Close()

		if err := render.WriteCSV(f, results); err != nil {
			return fmt.Errorf("write csv: %w", err)
		}

		fmt.Printf("Wrote %d rows to %s\n", len(results.Rows), out)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output file (default: timestamped name)")
	registerFilterFlags(exportCmd.Flags())

	rootCmd.AddCommand(exportCmd)
}
