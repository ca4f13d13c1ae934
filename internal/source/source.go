// Package source resolves a data source name to a native store and opens a
// catalog over it. Store packages register themselves through drivers.go.
package source

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/sells-group/featsource/internal/catalog"
	"github.com/sells-group/featsource/internal/diag"
)

// Options are passed to every driver. Drivers ignore what they do not use.
type Options struct {
	Update   bool
	MaxDepth int
	Sink     diag.Sink
	// FIDColumn names the PostGIS key column.
	FIDColumn string
	// Charset of TIGER alpha fields.
	Charset string
	// Fs backs file-based drivers that support it; the OS filesystem when
	// nil.
	Fs afero.Fs
}

// Driver opens a native store at a location.
type Driver interface {
	Open(ctx context.Context, location string, opts Options) (catalog.Store, error)
}

// DriverFunc adapts a function to Driver.
type DriverFunc func(ctx context.Context, location string, opts Options) (catalog.Store, error)

// Open implements Driver.
func (f DriverFunc) Open(ctx context.Context, location string, opts Options) (catalog.Store, error) {
	return f(ctx, location, opts)
}

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Driver)
)

// Register makes a driver available under name. It panics on an empty
// name, a nil driver or a duplicate registration.
func Register(name string, d Driver) {
	if name == "" {
		panic("source: could not register a driver with an empty name")
	}
	if d == nil {
		panic("source: could not register a nil driver")
	}
	driversMu.Lock()
	defer driversMu.Unlock()
	if _, dup := drivers[name]; dup {
		panic("source: Register called twice for " + name)
	}
	drivers[name] = d
}

// Drivers returns the registered driver names, sorted.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	names := make([]string, 0, len(drivers))
	for n := range drivers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func lookup(name string) (Driver, bool) {
	driversMu.RLock()
	defer driversMu.RUnlock()
	d, ok := drivers[name]
	return d, ok
}

// byExtension infers a driver for DSNs given as a bare path.
var byExtension = map[string]string{
	".gdb":  "gdb",
	".shp":  "shapefile",
	".yaml": "mem",
	".yml":  "mem",
}

// Parse splits a DSN of the form scheme:location. PostgreSQL URLs map to
// the postgis driver and bare paths are resolved by extension.
func Parse(dsn string) (scheme, location string, err error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgis", dsn, nil
	}
	if s, loc, ok := strings.Cut(dsn, ":"); ok && s != "" {
		if _, known := lookup(s); known {
			return s, loc, nil
		}
	}
	if s, ok := byExtension[strings.ToLower(filepath.Ext(dsn))]; ok {
		return s, dsn, nil
	}
	return "", "", eris.Errorf("source: cannot resolve a driver for %q (have %s)", dsn, strings.Join(Drivers(), ", "))
}

// OpenStore resolves dsn and opens its native store without discovery.
func OpenStore(ctx context.Context, dsn string, opts Options) (catalog.Store, error) {
	scheme, location, err := Parse(dsn)
	if err != nil {
		return nil, err
	}
	d, ok := lookup(scheme)
	if !ok {
		return nil, eris.Errorf("source: unknown driver %q", scheme)
	}
	store, err := d.Open(ctx, location, opts)
	if err != nil {
		return nil, eris.Wrapf(err, "source: open %s store", scheme)
	}
	return store, nil
}

// Open resolves dsn, opens the store and discovers its layers. On failure
// the store is closed.
func Open(ctx context.Context, dsn string, opts Options) (*catalog.Catalog, error) {
	store, err := OpenStore(ctx, dsn, opts)
	if err != nil {
		return nil, err
	}

	catOpts := []catalog.Option{catalog.WithUpdate(opts.Update), catalog.WithMaxDepth(opts.MaxDepth)}
	if opts.Sink != nil {
		catOpts = append(catOpts, catalog.WithSink(opts.Sink))
	}
	c := catalog.New(store, dsn, catOpts...)
	if err := c.Open(ctx); err != nil {
		if cerr := c.Close(); cerr != nil {
			zap.L().Warn("source: close after failed open",
				zap.String("component", "source.source"),
				zap.String("dsn", dsn),
				zap.Error(cerr),
			)
		}
		return nil, err
	}
	return c, nil
}
