package shapefile

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/sells-group/featsource/internal/feature"
	"github.com/sells-group/featsource/internal/layer"
)

// Table is a shapefile loaded into memory.
type Table struct {
	path    string
	geom    feature.GeomType
	fields  []feature.FieldDefn
	shapes  []shp.Shape
	attrs   [][]string
	decoder *encoding.Decoder
	closed  bool
}

func load(path, file string) (*Table, error) {
	// go-shp reports a missing attribute file as zero fields.
	dbf := file[:len(file)-3] + "dbf"
	if _, err := os.Stat(dbf); err != nil {
		return nil, feature.Errorf(feature.KindSchema, err, "shapefile: %s has no attribute file %s", file, filepath.Base(dbf))
	}

	r, err := shp.Open(file)
	if err != nil {
		return nil, eris.Wrapf(err, "shapefile: open %s", file)
	}
	defer func() { _ = r.Close() }()

	t := &Table{
		path:    path,
		geom:    geomTypeOf(r.GeometryType),
		decoder: charsetOf(file).NewDecoder(),
	}
	for _, f := range r.Fields() {
		t.fields = append(t.fields, fieldDefn(f))
	}

	for r.Next() {
		_, s := r.Shape()
		row := make([]string, len(t.fields))
		for i := range t.fields {
			row[i] = r.Attribute(i)
		}
		t.shapes = append(t.shapes, s)
		t.attrs = append(t.attrs, row)
	}
	if err := r.Err(); err != nil {
		return nil, eris.Wrapf(err, "shapefile: read %s", file)
	}
	return t, nil
}

// charsetOf reads the .cpg sidecar. Files without one are ISO-8859-1.
func charsetOf(file string) encoding.Encoding {
	b, err := os.ReadFile(strings.TrimSuffix(file, filepath.Ext(file)) + ".cpg")
	if err != nil {
		return charmap.ISO8859_1
	}
	name := strings.TrimSpace(string(b))
	if e, err := htmlindex.Get(name); err == nil {
		return e
	}
	return charmap.ISO8859_1
}

func fieldName(f shp.Field) string {
	return strings.TrimRight(f.String(), "\x00")
}

func fieldDefn(f shp.Field) feature.FieldDefn {
	fd := feature.FieldDefn{
		Name:      fieldName(f),
		Width:     int(f.Size),
		Precision: int(f.Precision),
		Nullable:  true,
	}
	switch f.Fieldtype {
	case 'N':
		switch {
		case f.Precision > 0:
			fd.Type = feature.TypeReal
		case f.Size < 10:
			fd.Type = feature.TypeInteger
		default:
			fd.Type = feature.TypeInteger64
		}
	case 'F':
		fd.Type = feature.TypeReal
	case 'D':
		fd.Type = feature.TypeDate
	default:
		fd.Type = feature.TypeString
	}
	return fd
}

// NextFID implements layer.Table. FIDs are 0-based record positions.
func (t *Table) NextFID(_ context.Context, after int64) (int64, bool, error) {
	if t.closed {
		return 0, false, feature.Errorf(feature.KindState, nil, "shapefile: %s is closed", t.path)
	}
	next := after + 1
	if next < 0 {
		next = 0
	}
	if next >= int64(len(t.shapes)) {
		return 0, false, nil
	}
	return next, true, nil
}

// Describe implements layer.DescribedTable.
func (t *Table) Describe(context.Context) (layer.Description, error) {
	return layer.Description{Geom: t.geom, Fields: t.fields}, nil
}

// ReadRow implements layer.DescribedTable. Attribute values are returned as
// decoded, trimmed text; blanks are null.
func (t *Table) ReadRow(_ context.Context, fid int64) (layer.Row, error) {
	if fid < 0 || fid >= int64(len(t.shapes)) {
		return layer.Row{}, feature.Errorf(feature.KindNotFound, nil, "shapefile: %s has no fid %d", t.path, fid)
	}
	raw := t.attrs[fid]
	values := make([]any, len(raw))
	for i, s := range raw {
		s = strings.TrimSpace(strings.TrimRight(s, "\x00"))
		if s == "" {
			continue
		}
		if t.fields[i].Type == feature.TypeString {
			decoded, err := t.decoder.String(s)
			if err != nil {
				return layer.Row{}, feature.Errorf(feature.KindDecode, err,
					"shapefile: %s fid %d field %s", t.path, fid, t.fields[i].Name)
			}
			s = decoded
		}
		values[i] = s
	}

	g, err := toGeom(t.shapes[fid])
	if err != nil {
		return layer.Row{}, feature.Errorf(feature.KindDecode, err, "shapefile: %s fid %d shape", t.path, fid)
	}
	return layer.Row{Values: values, Geometry: g}, nil
}

// InsertRow implements layer.DescribedTable. Shapefiles are read-only.
func (t *Table) InsertRow(context.Context, []feature.FieldDefn, layer.Row) (int64, error) {
	return 0, feature.Errorf(feature.KindUnsupported, nil, "shapefile: %s is read-only", t.path)
}

// Writable implements layer.Writable.
func (t *Table) Writable() bool { return false }

// Close implements layer.Table.
func (t *Table) Close() error {
	t.closed = true
	t.shapes = nil
	t.attrs = nil
	return nil
}
