package memstore

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/featsource/internal/feature"
	"github.com/sells-group/featsource/internal/layer"
)

// Table is an open in-memory container.
type Table struct {
	store  *Store
	entry  *entry
	closed bool
}

// Path returns the container path.
func (t *Table) Path() string { return t.entry.path }

// NextFID implements layer.Table.
func (t *Table) NextFID(_ context.Context, after int64) (int64, bool, error) {
	for _, r := range t.entry.rows {
		if r.fid > after {
			return r.fid, true, nil
		}
	}
	return 0, false, nil
}

// Describe implements layer.DescribedTable.
func (t *Table) Describe(context.Context) (layer.Description, error) {
	n := t.entry.node
	if n.FailSchema {
		return layer.Description{}, eris.Errorf("memstore: %s metadata is corrupt", t.entry.path)
	}
	g, ok := feature.ParseGeomType(n.Geometry)
	if !ok {
		return layer.Description{}, eris.Errorf("memstore: %s has unknown geometry type %q", t.entry.path, n.Geometry)
	}

	fields := make([]feature.FieldDefn, 0, len(n.Fields))
	for _, fs := range n.Fields {
		nullable := true
		if fs.Nullable != nil {
			nullable = *fs.Nullable
		}
		fields = append(fields, feature.FieldDefn{
			Name:      fs.Name,
			Type:      feature.FieldType(fs.Type),
			Width:     fs.Width,
			Precision: fs.Precision,
			Nullable:  nullable,
			ReadOnly:  fs.ReadOnly,
		})
	}
	return layer.Description{Geom: g, Fields: fields}, nil
}

// ReadRow implements layer.DescribedTable.
func (t *Table) ReadRow(_ context.Context, fid int64) (layer.Row, error) {
	for _, r := range t.entry.rows {
		if r.fid != fid {
			continue
		}
		values := make([]any, len(t.entry.node.Fields))
		for i, fs := range t.entry.node.Fields {
			values[i] = r.values[fs.Name]
		}
		return layer.Row{Values: values, Geometry: r.geom}, nil
	}
	return layer.Row{}, feature.Errorf(feature.KindNotFound, nil, "memstore: %s has no fid %d", t.entry.path, fid)
}

// InsertRow implements layer.DescribedTable.
func (t *Table) InsertRow(_ context.Context, fields []feature.FieldDefn, r layer.Row) (int64, error) {
	if t.entry.node.ReadOnly {
		return 0, feature.Errorf(feature.KindUnsupported, nil, "memstore: %s is read-only", t.entry.path)
	}
	var next int64 = 1
	if n := len(t.entry.rows); n > 0 {
		next = t.entry.rows[n-1].fid + 1
	}
	values := make(map[string]any, len(fields))
	for i, fd := range fields {
		values[fd.Name] = r.Values[i]
	}
	t.entry.rows = append(t.entry.rows, &row{fid: next, values: values, geom: r.Geometry})
	return next, nil
}

// Writable implements layer.Writable.
func (t *Table) Writable() bool { return !t.entry.node.ReadOnly }

// Close implements layer.Table. The handle is released even when the
// manifest asks Close to fail.
func (t *Table) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	t.store.live--
	if t.entry.node.FailClose {
		return eris.Errorf("memstore: close %s failed", t.entry.path)
	}
	return nil
}
