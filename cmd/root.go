package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/featsource/internal/catalog"
	"github.com/sells-group/featsource/internal/config"
	"github.com/sells-group/featsource/internal/diag"
	"github.com/sells-group/featsource/internal/feature"
	"github.com/sells-group/featsource/internal/layer"
	"github.com/sells-group/featsource/internal/source"
)

var (
	cfg *config.Config

	flagUpdate   bool
	flagMaxDepth int
)

var rootCmd = &cobra.Command{
	Use:   "featsource",
	Short: "Browse, edit and export vector feature stores",
	Long: "Opens file geodatabases, shapefile directories, legacy TIGER/Line record files and PostGIS " +
		"databases as catalogs of layers, and copies or exports their features.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagUpdate, "update", false, "open sources for writing (default from config)")
	rootCmd.PersistentFlags().IntVar(&flagMaxDepth, "max-depth", 0, "maximum discovery depth (default from config)")
}

// sourceOptions merges config and persistent flags.
func sourceOptions(update bool) source.Options {
	opts := source.Options{
		Update:    update || flagUpdate || cfg.Source.Update,
		MaxDepth:  cfg.Source.MaxDepth,
		Sink:      diag.NewZapSink(nil),
		FIDColumn: cfg.PostGIS.FIDColumn,
		Charset:   cfg.Tiger.Charset,
	}
	if flagMaxDepth > 0 {
		opts.MaxDepth = flagMaxDepth
	}
	return opts
}

// openCatalog opens dsn and logs discovery statistics.
func openCatalog(ctx context.Context, dsn string, update bool) (*catalog.Catalog, error) {
	c, err := source.Open(ctx, dsn, sourceOptions(update))
	if err != nil {
		return nil, err
	}
	st := c.Stats()
	zap.L().Debug("catalog opened",
		zap.String("dsn", dsn),
		zap.Int("layers", c.Len()),
		zap.Int("groups", st.Groups),
		zap.Int("failed", st.Failed),
	)
	return c, nil
}

// findLayer resolves ref as a layer index, name or path.
func findLayer(c *catalog.Catalog, ref string) (int, *layer.Layer, error) {
	if i, err := strconv.Atoi(ref); err == nil {
		l, ok := c.Layer(i)
		if !ok {
			return 0, nil, feature.Errorf(feature.KindBounds, nil, "layer index %d out of range [0,%d)", i, c.Len())
		}
		return i, l, nil
	}
	i, l, ok := c.LayerByName(ref)
	if !ok {
		return 0, nil, eris.Errorf("no layer named %q", ref)
	}
	return i, l, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
