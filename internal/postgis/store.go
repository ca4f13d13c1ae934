// Package postgis exposes PostgreSQL schemas and tables as a native store.
// Schemas are groups and base tables are leaf containers.
package postgis

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/featsource/internal/db"
	"github.com/sells-group/featsource/internal/feature"
	"github.com/sells-group/featsource/internal/layer"
)

// Container types.
const (
	TypeSchema = "Schema"
	TypeTable  = "Table"
)

// DefaultFIDColumn is the integer key column every table must carry.
const DefaultFIDColumn = "ogc_fid"

// Options configures a Store.
type Options struct {
	FIDColumn string
	Update    bool
}

// Store is a PostGIS database.
type Store struct {
	pool   db.Pool
	fid    string
	update bool
	closer func()
}

// NewStore wraps pool. closer, if non-nil, is called by Close.
func NewStore(pool db.Pool, opts Options, closer func()) *Store {
	fid := opts.FIDColumn
	if fid == "" {
		fid = DefaultFIDColumn
	}
	return &Store{pool: pool, fid: fid, update: opts.Update, closer: closer}
}

// Connect opens a pool for url and wraps it.
func Connect(ctx context.Context, url string, opts Options) (*Store, error) {
	pool, err := db.Connect(ctx, url)
	if err != nil {
		return nil, err
	}
	return NewStore(pool, opts, pool.Close), nil
}

// ContainerTypes implements catalog.Store.
func (s *Store) ContainerTypes(context.Context) ([]string, error) {
	return []string{TypeSchema, TypeTable}, nil
}

func split(path string) []string {
	trimmed := strings.Trim(path, `\`)
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, `\`)
}

const schemasQuery = `
	SELECT DISTINCT table_schema
	FROM information_schema.tables
	WHERE table_type = 'BASE TABLE'
		AND table_schema NOT IN ('information_schema', 'topology', 'tiger', 'tiger_data')
		AND table_schema NOT LIKE 'pg\_%'
	ORDER BY table_schema`

const tablesQuery = `
	SELECT table_name
	FROM information_schema.tables
	WHERE table_type = 'BASE TABLE' AND table_schema = $1
	ORDER BY table_name`

// Children implements catalog.Store.
func (s *Store) Children(ctx context.Context, typ, parent string) ([]string, error) {
	parts := split(parent)
	switch {
	case len(parts) == 0 && typ == TypeSchema:
		names, err := s.names(ctx, schemasQuery)
		if err != nil {
			return nil, eris.Wrap(err, "postgis: list schemas")
		}
		return joinAll(parent, names), nil
	case len(parts) == 1 && typ == TypeTable:
		names, err := s.names(ctx, tablesQuery, parts[0])
		if err != nil {
			return nil, eris.Wrapf(err, "postgis: list tables in %s", parts[0])
		}
		return joinAll(parent, names), nil
	}
	return nil, nil
}

func joinAll(parent string, names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = layer.Join(parent, n)
	}
	return out
}

func (s *Store) names(ctx context.Context, q string, args ...any) ([]string, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Store) ident(path string) (pgx.Identifier, error) {
	parts := split(path)
	if len(parts) != 2 {
		return nil, feature.Errorf(feature.KindNotFound, nil, "postgis: %s is not a schema\\table path", path)
	}
	return pgx.Identifier{parts[0], parts[1]}, nil
}

// OpenContainer implements catalog.Store. Column metadata is read when the
// layer derives its schema.
func (s *Store) OpenContainer(_ context.Context, path string) (layer.Table, layer.Codec, error) {
	id, err := s.ident(path)
	if err != nil {
		return nil, nil, err
	}
	return &Table{store: s, path: path, id: id}, layer.DescriptorCodec{}, nil
}

// DeleteContainer implements catalog.Deleter.
func (s *Store) DeleteContainer(ctx context.Context, path string) error {
	if !s.update {
		return feature.Errorf(feature.KindUnsupported, nil, "postgis: store is read-only")
	}
	id, err := s.ident(path)
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, "DROP TABLE "+id.Sanitize()); err != nil {
		return eris.Wrapf(err, "postgis: drop %s", strings.Join(id, "."))
	}
	zap.L().Info("postgis: table dropped",
		zap.String("component", "postgis.store"),
		zap.String("table", strings.Join(id, ".")),
	)
	return nil
}

// Close implements catalog.Store.
func (s *Store) Close() error {
	if s.closer != nil {
		s.closer()
		s.closer = nil
	}
	return nil
}
