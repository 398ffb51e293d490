package main

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/oeaw/storyscout/internal/export"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export scored publications",
	Long: `Writes all analyzed publications, ordered by press score, to a file or
stdout. CSV and XLSX carry the flat report columns; JSON carries the full
records.

Examples:
  storyscout export --format csv --output report.csv
  storyscout export --format xlsx
  storyscout export --format json > scored.json`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("export"); err != nil {
			return err
		}

		format, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")
		if export.ContentType(format) == "" {
			return eris.Errorf("export: --format must be csv, json, or xlsx (got %q)", format)
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return err
		}

		pubs, err := st.ListScored(ctx)
		if err != nil {
			return err
		}

		w := os.Stdout
		if output == "" && format == export.FormatXLSX {
			// A workbook on a terminal is useless; pick a dated file instead.
			output = export.Filename(format, time.Now())
		}
		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				return eris.Wrap(err, "export: create output file")
			}
			defer f.Close()
			w = f
		}

		if err := export.Write(w, format, pubs); err != nil {
			return err
		}

		zap.L().Info("export complete",
			zap.String("format", format),
			zap.Int("publications", len(pubs)),
			zap.String("output", output),
		)
		return nil
	},
}

func init() {
	f := exportCmd.Flags()
	f.String("format", "csv", "output format: csv, json, or xlsx")
	f.String("output", "", "output file path (default: stdout)")
	rootCmd.AddCommand(exportCmd)
}
