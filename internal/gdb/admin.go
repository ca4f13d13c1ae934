package gdb

import (
	"context"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/featsource/internal/feature"
	"github.com/sells-group/featsource/internal/layer"
)

var unsafeIdent = regexp.MustCompile(`[^a-z0-9_]+`)

func sqlType(t feature.FieldType) string {
	switch t {
	case feature.TypeInteger, feature.TypeInteger64:
		return "INTEGER"
	case feature.TypeReal:
		return "REAL"
	case feature.TypeBinary:
		return "BLOB"
	default:
		return "TEXT"
	}
}

// tableNameFor derives a unique SQL table name from an item name.
func tableNameFor(name string) string {
	base := unsafeIdent.ReplaceAllString(strings.ToLower(name), "_")
	base = strings.Trim(base, "_")
	if base == "" {
		base = "item"
	}
	return base + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

func (s *Store) checkParent(ctx context.Context, parent string) error {
	if parent == layer.Root {
		return nil
	}
	it, err := s.lookup(ctx, s.db, parent)
	if err != nil {
		return err
	}
	if it.typ != TypeFeatureDataset {
		return eris.Errorf("gdb: %s is a %s, not a feature dataset", parent, it.typ)
	}
	return nil
}

// CreateFeatureDataset adds a group under parent and returns its path.
func (s *Store) CreateFeatureDataset(ctx context.Context, parent, name string) (string, error) {
	if !s.update {
		return "", feature.Errorf(feature.KindUnsupported, nil, "gdb: %s is read-only", s.path)
	}
	if err := s.checkParent(ctx, parent); err != nil {
		return "", err
	}
	path := layer.Join(parent, name)
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO gdb_items (path, parent, type) VALUES (?, ?, ?)`,
		path, parent, TypeFeatureDataset,
	); err != nil {
		return "", eris.Wrapf(err, "gdb: create feature dataset %s", path)
	}
	return path, nil
}

// CreateFeatureClass adds a record container with geometry under parent.
func (s *Store) CreateFeatureClass(ctx context.Context, parent, name string, g feature.GeomType, fields []feature.FieldDefn) (string, error) {
	return s.createRecordItem(ctx, TypeFeatureClass, parent, name, g, fields)
}

// CreateTable adds a record container without geometry under parent.
func (s *Store) CreateTable(ctx context.Context, parent, name string, fields []feature.FieldDefn) (string, error) {
	return s.createRecordItem(ctx, TypeTable, parent, name, feature.GeomNone, fields)
}

func (s *Store) createRecordItem(ctx context.Context, typ, parent, name string, g feature.GeomType, fields []feature.FieldDefn) (string, error) {
	if !s.update {
		return "", feature.Errorf(feature.KindUnsupported, nil, "gdb: %s is read-only", s.path)
	}
	all := append([]feature.FieldDefn{{Name: GlobalIDField, Type: feature.TypeString}}, fields...)
	if _, err := feature.NewSchema(name, g, all); err != nil {
		return "", feature.Errorf(feature.KindSchema, err, "gdb: invalid fields for %s", name)
	}
	if err := s.checkParent(ctx, parent); err != nil {
		return "", err
	}

	path := layer.Join(parent, name)
	table := tableNameFor(name)

	cols := []string{
		"fid INTEGER PRIMARY KEY AUTOINCREMENT",
		"globalid TEXT NOT NULL",
		"shape BLOB",
	}
	for _, fd := range fields {
		cols = append(cols, quoteIdent(fd.Name)+" "+sqlType(fd.Type))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", eris.Wrap(err, "gdb: begin create")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `CREATE TABLE `+quoteIdent(table)+` (`+strings.Join(cols, ", ")+`)`); err != nil {
		return "", eris.Wrapf(err, "gdb: create table for %s", path)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO gdb_items (path, parent, type, table_name, geometry_type) VALUES (?, ?, ?, ?, ?)`,
		path, parent, typ, table, string(g),
	); err != nil {
		return "", eris.Wrapf(err, "gdb: register %s", path)
	}
	for i, fd := range fields {
		nullable := 0
		if fd.Nullable {
			nullable = 1
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO gdb_fields (item_path, position, name, type, width, scale, nullable) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			path, i, fd.Name, string(fd.Type), fd.Width, fd.Precision, nullable,
		); err != nil {
			return "", eris.Wrapf(err, "gdb: register field %s of %s", fd.Name, path)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", eris.Wrapf(err, "gdb: commit create of %s", path)
	}
	return path, nil
}
