package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/featsource/internal/catalog"
	"github.com/sells-group/featsource/internal/db"
	"github.com/sells-group/featsource/internal/export"
	"github.com/sells-group/featsource/internal/layer"
)

var (
	exportSchema      string
	exportBatchSize   int
	exportConcurrency int
	exportUpsert      bool
	exportLayers      []string
	exportXLSX        string
)

var exportCmd = &cobra.Command{
	Use:   "export <dsn>...",
	Short: "Export layers to PostGIS or an XLSX workbook",
	Long: "Exports every layer of each source into export.database_url, one table per layer, " +
		"and records each run in <schema>.export_status. With --xlsx, writes a workbook instead.",
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if exportXLSX != "" {
			return exportWorkbook(cmd, args)
		}
		if err := cfg.Validate("export"); err != nil {
			return err
		}

		pool, err := db.Connect(ctx, cfg.Export.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()

		opts := export.RunOptions{
			Options: export.Options{
				Schema:    firstNonEmpty(exportSchema, cfg.Export.Schema),
				BatchSize: firstPositive(exportBatchSize, cfg.Export.BatchSize),
				Upsert:    exportUpsert,
			},
			Concurrency: firstPositive(exportConcurrency, cfg.Export.Concurrency),
			Layers:      exportLayers,
		}
		open := func(ctx context.Context, dsn string) (*catalog.Catalog, error) {
			return openCatalog(ctx, dsn, false)
		}

		start := time.Now()
		results, err := export.Run(ctx, pool, open, args, opts)
		formatResults(cmd.OutOrStdout(), results)
		if err != nil {
			return err
		}
		zap.L().Info("export finished", zap.Int("layers", len(results)), zap.Duration("elapsed", time.Since(start)))
		return nil
	},
}

var exportStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the export log",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("export"); err != nil {
			return err
		}
		pool, err := db.Connect(ctx, cfg.Export.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()

		rows, err := export.Status(ctx, pool, firstNonEmpty(exportSchema, cfg.Export.Schema))
		if err != nil {
			return eris.Wrap(err, "export status")
		}
		if len(rows) == 0 {
			zap.L().Info("no exports recorded, run 'export <dsn>' first")
			return nil
		}
		formatStatus(cmd.OutOrStdout(), rows)
		return nil
	},
}

func init() {
	exportCmd.PersistentFlags().StringVar(&exportSchema, "schema", "", "target schema (default from config)")
	exportCmd.Flags().IntVar(&exportBatchSize, "batch-size", 0, "rows per COPY batch (default from config)")
	exportCmd.Flags().IntVar(&exportConcurrency, "concurrency", 0, "sources exported at once (default from config)")
	exportCmd.Flags().BoolVar(&exportUpsert, "upsert", false, "merge rows by fid instead of appending")
	exportCmd.Flags().StringSliceVar(&exportLayers, "layer", nil, "export only these layer names or paths")
	exportCmd.Flags().StringVar(&exportXLSX, "xlsx", "", "write an XLSX workbook to this path instead of PostGIS")
	exportCmd.AddCommand(exportStatusCmd)
	rootCmd.AddCommand(exportCmd)
}

func exportWorkbook(cmd *cobra.Command, dsns []string) error {
	ctx := cmd.Context()
	var layers []*layer.Layer
	for _, dsn := range dsns {
		c, err := openCatalog(ctx, dsn, false)
		if err != nil {
			return err
		}
		defer c.Close() //nolint:errcheck
		for _, l := range c.Layers() {
			if len(exportLayers) == 0 || contains(exportLayers, l.Name()) || contains(exportLayers, l.Path()) {
				layers = append(layers, l)
			}
		}
	}
	n, err := export.ToXLSX(ctx, exportXLSX, layers)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "wrote %d features from %d layers to %s\n", n, len(layers), exportXLSX)
	return nil
}

func formatResults(out io.Writer, results []export.Result) {
	if len(results) == 0 {
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SOURCE\tLAYER\tTABLE\tROWS\tDURATION")
	_, _ = fmt.Fprintln(w, "------\t-----\t-----\t----\t--------")
	for _, r := range results {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", r.Source, r.Layer, r.Table, r.Rows, r.Duration.Round(time.Millisecond))
	}
	_ = w.Flush()
}

func formatStatus(out io.Writer, rows []export.StatusRow) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SOURCE\tLAYER\tTARGET\tROWS\tEXPORTED\tDURATION")
	_, _ = fmt.Fprintln(w, "------\t-----\t------\t----\t--------\t--------")
	for _, r := range rows {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			truncate(r.Source, 40), r.Layer, r.Target, r.RowCount,
			r.ExportedAt.Format("2006-01-02 15:04"),
			(time.Duration(r.DurationMs) * time.Millisecond).String())
	}
	_ = w.Flush()
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func firstPositive(a, b int) int {
	if a > 0 {
		return a
	}
	return b
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
