package gdb

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"

	"github.com/sells-group/featsource/internal/feature"
	"github.com/sells-group/featsource/internal/layer"
)

// GlobalIDField is the read-only identifier every record carries.
const GlobalIDField = "GlobalID"

// Table is an open feature class or table.
type Table struct {
	store  *Store
	item   item
	next   *sql.Stmt
	fields []feature.FieldDefn
	closed bool
}

// NextFID implements layer.Table.
func (t *Table) NextFID(ctx context.Context, after int64) (int64, bool, error) {
	var fid int64
	err := t.next.QueryRowContext(ctx, after).Scan(&fid)
	if eris.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, eris.Wrapf(err, "gdb: advance %s", t.item.path)
	}
	return fid, true, nil
}

// Describe implements layer.DescribedTable.
func (t *Table) Describe(ctx context.Context) (layer.Description, error) {
	rows, err := t.store.db.QueryContext(ctx,
		`SELECT name, type, width, scale, nullable FROM gdb_fields WHERE item_path = ? ORDER BY position`,
		t.item.path,
	)
	if err != nil {
		return layer.Description{}, eris.Wrapf(err, "gdb: query fields of %s", t.item.path)
	}
	defer rows.Close() //nolint:errcheck

	fields := []feature.FieldDefn{{Name: GlobalIDField, Type: feature.TypeString, Width: 38, ReadOnly: true}}
	for rows.Next() {
		var fd feature.FieldDefn
		var typ string
		var nullable int
		if err := rows.Scan(&fd.Name, &typ, &fd.Width, &fd.Precision, &nullable); err != nil {
			return layer.Description{}, eris.Wrapf(err, "gdb: scan field of %s", t.item.path)
		}
		fd.Type = feature.FieldType(typ)
		fd.Nullable = nullable != 0
		fields = append(fields, fd)
	}
	if err := rows.Err(); err != nil {
		return layer.Description{}, eris.Wrapf(err, "gdb: read fields of %s", t.item.path)
	}

	t.fields = fields
	return layer.Description{Geom: t.item.geom, Fields: fields}, nil
}

func (t *Table) columns(fields []feature.FieldDefn) []string {
	cols := make([]string, 0, len(fields))
	for _, fd := range fields {
		if fd.Name == GlobalIDField {
			cols = append(cols, "globalid")
			continue
		}
		cols = append(cols, quoteIdent(fd.Name))
	}
	return cols
}

// ReadRow implements layer.DescribedTable.
func (t *Table) ReadRow(ctx context.Context, fid int64) (layer.Row, error) {
	if t.fields == nil {
		if _, err := t.Describe(ctx); err != nil {
			return layer.Row{}, err
		}
	}

	cols := append(t.columns(t.fields), "shape")
	query := `SELECT ` + strings.Join(cols, ", ") + ` FROM ` + quoteIdent(t.item.tableName) + ` WHERE fid = ?`

	raw := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	err := t.store.db.QueryRowContext(ctx, query, fid).Scan(ptrs...)
	if eris.Is(err, sql.ErrNoRows) {
		return layer.Row{}, feature.Errorf(feature.KindNotFound, nil, "gdb: %s has no fid %d", t.item.path, fid)
	}
	if err != nil {
		return layer.Row{}, eris.Wrapf(err, "gdb: read %s fid %d", t.item.path, fid)
	}

	row := layer.Row{Values: raw[:len(raw)-1]}
	if shape, ok := raw[len(raw)-1].([]byte); ok && len(shape) > 0 {
		g, err := wkb.Unmarshal(shape)
		if err != nil {
			return layer.Row{}, feature.Errorf(feature.KindDecode, err, "gdb: %s fid %d shape", t.item.path, fid)
		}
		row.Geometry = g
	}
	return row, nil
}

// InsertRow implements layer.DescribedTable. The GlobalID is generated.
func (t *Table) InsertRow(ctx context.Context, fields []feature.FieldDefn, row layer.Row) (int64, error) {
	if !t.store.update {
		return 0, feature.Errorf(feature.KindUnsupported, nil, "gdb: %s is read-only", t.item.path)
	}

	cols := []string{"globalid"}
	args := []any{"{" + strings.ToUpper(uuid.NewString()) + "}"}
	for i, fd := range fields {
		if fd.Name == GlobalIDField {
			continue
		}
		cols = append(cols, quoteIdent(fd.Name))
		args = append(args, toSQL(fd.Type, row.Values[i]))
	}

	shape, err := encodeShape(row.Geometry)
	if err != nil {
		return 0, feature.Errorf(feature.KindSchema, err, "gdb: encode shape for %s", t.item.path)
	}
	cols = append(cols, "shape")
	args = append(args, shape)

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	res, err := t.store.db.ExecContext(ctx,
		`INSERT INTO `+quoteIdent(t.item.tableName)+` (`+strings.Join(cols, ", ")+`) VALUES (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "gdb: insert into %s", t.item.path)
	}
	fid, err := res.LastInsertId()
	if err != nil {
		return 0, eris.Wrapf(err, "gdb: read fid for %s", t.item.path)
	}
	return fid, nil
}

func toSQL(typ feature.FieldType, v any) any {
	tm, ok := v.(time.Time)
	if !ok {
		return v
	}
	if typ == feature.TypeDate {
		return tm.Format("2006-01-02")
	}
	return tm.Format(time.RFC3339Nano)
}

func encodeShape(g geom.T) ([]byte, error) {
	if g == nil {
		return nil, nil
	}
	return wkb.Marshal(g, wkb.NDR)
}

// Writable implements layer.Writable.
func (t *Table) Writable() bool { return t.store.update }

// Close implements layer.Table.
func (t *Table) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	if err := t.next.Close(); err != nil {
		return eris.Wrapf(err, "gdb: close cursor for %s", t.item.path)
	}
	return nil
}
