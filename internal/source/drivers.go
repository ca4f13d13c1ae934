package source

import (
	"context"

	"github.com/spf13/afero"

	"github.com/sells-group/featsource/internal/catalog"
	"github.com/sells-group/featsource/internal/gdb"
	"github.com/sells-group/featsource/internal/memstore"
	"github.com/sells-group/featsource/internal/postgis"
	"github.com/sells-group/featsource/internal/shapefile"
	"github.com/sells-group/featsource/internal/tiger"
)

func init() {
	Register("gdb", DriverFunc(func(ctx context.Context, loc string, o Options) (catalog.Store, error) {
		return gdb.Open(ctx, loc, o.Update)
	}))
	Register("tiger", DriverFunc(func(_ context.Context, loc string, o Options) (catalog.Store, error) {
		fs := o.Fs
		if fs == nil {
			fs = afero.NewOsFs()
		}
		return tiger.NewStore(fs, loc, tiger.Options{Update: o.Update, Charset: o.Charset, DefaultVersion: tiger.Version2004})
	}))
	Register("shapefile", DriverFunc(func(_ context.Context, loc string, o Options) (catalog.Store, error) {
		return shapefile.Open(loc, o.Update)
	}))
	Register("postgis", DriverFunc(func(ctx context.Context, loc string, o Options) (catalog.Store, error) {
		return postgis.Connect(ctx, loc, postgis.Options{FIDColumn: o.FIDColumn, Update: o.Update})
	}))
	Register("mem", DriverFunc(func(_ context.Context, loc string, _ Options) (catalog.Store, error) {
		m, err := memstore.ParseFile(loc)
		if err != nil {
			return nil, err
		}
		return memstore.New(m)
	}))
}
