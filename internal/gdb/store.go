// Package gdb is a geodatabase kept in a single SQLite file. Items form a
// tree of feature datasets, feature classes and tables; each record
// container is its own SQL table with WKB geometry.
package gdb

import (
	"context"
	"database/sql"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sells-group/featsource/internal/feature"
	"github.com/sells-group/featsource/internal/layer"
)

// Item types.
const (
	TypeFeatureDataset = "Feature Dataset"
	TypeFeatureClass   = "Feature Class"
	TypeTable          = "Table"
)

const migration = `
CREATE TABLE IF NOT EXISTS gdb_item_types (
	name     TEXT PRIMARY KEY,
	position INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS gdb_items (
	path          TEXT PRIMARY KEY,
	parent        TEXT NOT NULL,
	type          TEXT NOT NULL REFERENCES gdb_item_types(name),
	table_name    TEXT,
	geometry_type TEXT NOT NULL DEFAULT 'none',
	srid          INTEGER NOT NULL DEFAULT 4326
);

CREATE TABLE IF NOT EXISTS gdb_fields (
	item_path TEXT NOT NULL REFERENCES gdb_items(path),
	position  INTEGER NOT NULL,
	name      TEXT NOT NULL,
	type      TEXT NOT NULL,
	width     INTEGER NOT NULL DEFAULT 0,
	scale     INTEGER NOT NULL DEFAULT 0,
	nullable  INTEGER NOT NULL DEFAULT 1,
	PRIMARY KEY (item_path, position)
);

CREATE INDEX IF NOT EXISTS idx_gdb_items_parent ON gdb_items(parent);

INSERT OR IGNORE INTO gdb_item_types (name, position) VALUES
	('Feature Dataset', 1),
	('Feature Class', 2),
	('Table', 3);
`

// Store is an open geodatabase.
type Store struct {
	db     *sql.DB
	path   string
	update bool
}

// NewStore wraps an existing connection. It does not create the catalog
// tables.
func NewStore(db *sql.DB, update bool) *Store {
	return &Store{db: db, update: update}
}

func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "gdb: open")
	}
	// Pragmas below are per connection.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, eris.Wrapf(err, "gdb: exec %s", pragma)
		}
	}
	return db, nil
}

// Create initializes an empty geodatabase at path and opens it for update.
func Create(ctx context.Context, path string) (*Store, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, migration); err != nil {
		_ = db.Close()
		return nil, eris.Wrap(err, "gdb: migrate")
	}
	return &Store{db: db, path: path, update: true}, nil
}

// Open opens an existing geodatabase.
func Open(ctx context.Context, path string, update bool) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, eris.Wrapf(err, "gdb: stat %s", path)
	}
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}

	var n int
	err = db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'gdb_items'`,
	).Scan(&n)
	if err != nil {
		_ = db.Close()
		return nil, eris.Wrapf(err, "gdb: inspect %s", path)
	}
	if n == 0 {
		_ = db.Close()
		return nil, eris.Errorf("gdb: %s is not a geodatabase", path)
	}
	return &Store{db: db, path: path, update: update}, nil
}

// ContainerTypes implements catalog.Store.
func (s *Store) ContainerTypes(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM gdb_item_types ORDER BY position`)
	if err != nil {
		return nil, eris.Wrap(err, "gdb: query item types")
	}
	defer rows.Close() //nolint:errcheck

	var types []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "gdb: scan item type")
		}
		types = append(types, name)
	}
	return types, rows.Err()
}

// Children implements catalog.Store.
func (s *Store) Children(ctx context.Context, typ, parent string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT path FROM gdb_items WHERE parent = ? AND type = ? ORDER BY rowid`,
		parent, typ,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "gdb: list %s items under %s", typ, parent)
	}
	defer rows.Close() //nolint:errcheck

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, eris.Wrap(err, "gdb: scan item path")
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type item struct {
	path      string
	typ       string
	tableName string
	geom      feature.GeomType
	srid      int
}

func (s *Store) lookup(ctx context.Context, q interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}, path string) (item, error) {
	it := item{path: path}
	var tableName sql.NullString
	var geom string
	err := q.QueryRowContext(ctx,
		`SELECT type, table_name, geometry_type, srid FROM gdb_items WHERE path = ?`, path,
	).Scan(&it.typ, &tableName, &geom, &it.srid)
	if eris.Is(err, sql.ErrNoRows) {
		return it, feature.Errorf(feature.KindNotFound, nil, "gdb: no item %s", path)
	}
	if err != nil {
		return it, eris.Wrapf(err, "gdb: look up %s", path)
	}
	it.tableName = tableName.String
	g, ok := feature.ParseGeomType(geom)
	if !ok {
		return it, feature.Errorf(feature.KindSchema, nil, "gdb: %s has unknown geometry type %q", path, geom)
	}
	it.geom = g
	return it, nil
}

// OpenContainer implements catalog.Store.
func (s *Store) OpenContainer(ctx context.Context, path string) (layer.Table, layer.Codec, error) {
	it, err := s.lookup(ctx, s.db, path)
	if err != nil {
		return nil, nil, err
	}
	if it.tableName == "" {
		return nil, nil, eris.Errorf("gdb: %s (%s) holds no records", path, it.typ)
	}

	next, err := s.db.PrepareContext(ctx,
		`SELECT fid FROM `+quoteIdent(it.tableName)+` WHERE fid > ? ORDER BY fid LIMIT 1`)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "gdb: prepare cursor for %s", path)
	}
	return &Table{store: s, item: it, next: next}, layer.DescriptorCodec{}, nil
}

// DeleteContainer implements catalog.Deleter. The record table and its
// catalog rows are removed in one transaction.
func (s *Store) DeleteContainer(ctx context.Context, path string) error {
	if !s.update {
		return feature.Errorf(feature.KindUnsupported, nil, "gdb: %s is read-only", s.path)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "gdb: begin delete")
	}
	defer tx.Rollback() //nolint:errcheck

	it, err := s.lookup(ctx, tx, path)
	if err != nil {
		return err
	}
	if it.tableName != "" {
		if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS `+quoteIdent(it.tableName)); err != nil {
			return eris.Wrapf(err, "gdb: drop %s", it.tableName)
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM gdb_fields WHERE item_path = ?`, path); err != nil {
		return eris.Wrapf(err, "gdb: delete fields of %s", path)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM gdb_items WHERE path = ?`, path); err != nil {
		return eris.Wrapf(err, "gdb: delete item %s", path)
	}
	if err := tx.Commit(); err != nil {
		return eris.Wrapf(err, "gdb: commit delete of %s", path)
	}

	zap.L().Debug("gdb: item deleted",
		zap.String("component", "gdb.store"),
		zap.String("path", path),
		zap.String("table", it.tableName),
	)
	return nil
}

// Close implements catalog.Store.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return eris.Wrap(err, "gdb: close")
	}
	return nil
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
