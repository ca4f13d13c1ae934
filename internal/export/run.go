package export

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/featsource/internal/catalog"
	"github.com/sells-group/featsource/internal/db"
)

// Opener opens and discovers a catalog for a DSN.
type Opener func(ctx context.Context, dsn string) (*catalog.Catalog, error)

// RunOptions configures Run.
type RunOptions struct {
	Options
	// Concurrency bounds how many sources export at once (default 3).
	Concurrency int
	// Layers restricts export to layers with these names or paths.
	Layers []string
}

// Run exports every layer of every source to PostGIS, one goroutine per
// source. Layers within a source are exported in index order. The first
// failure cancels the remaining work.
func Run(ctx context.Context, pool db.Pool, open Opener, sources []string, opts RunOptions) ([]Result, error) {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 3
	}
	if err := EnsureSchema(ctx, pool, opts.Schema); err != nil {
		return nil, err
	}

	log := zap.L().With(zap.String("component", "export.run"))

	var mu sync.Mutex
	var results []Result

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for _, dsn := range sources {
		g.Go(func() error {
			c, err := open(gCtx, dsn)
			if err != nil {
				return eris.Wrapf(err, "export: open %s", dsn)
			}
			defer c.Close() //nolint:errcheck

			for _, l := range c.Layers() {
				if !selected(opts.Layers, l.Name(), l.Path()) {
					continue
				}
				o := opts.Options
				o.Source = dsn
				res, err := ToPostGIS(gCtx, pool, l, o)
				if err != nil {
					return eris.Wrapf(err, "export: %s %s", dsn, l.Path())
				}
				mu.Lock()
				results = append(results, res)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}

	log.Info("export complete", zap.Int("sources", len(sources)), zap.Int("layers", len(results)))
	return results, nil
}

func selected(want []string, name, path string) bool {
	if len(want) == 0 {
		return true
	}
	for _, w := range want {
		if w == name || w == path {
			return true
		}
	}
	return false
}
