package layer

import (
	"context"

	"github.com/twpayne/go-geom"

	"github.com/sells-group/featsource/internal/feature"
)

// Description is the field metadata a native container reports about
// itself.
type Description struct {
	Geom   feature.GeomType
	Fields []feature.FieldDefn
}

// Row is a record in native representation: one value per described field,
// in description order, plus geometry.
type Row struct {
	Values   []any
	Geometry geom.T
}

// DescribedTable is a native container that carries its own field metadata.
type DescribedTable interface {
	Table
	Describe(ctx context.Context) (Description, error)
	// ReadRow returns a feature.KindNotFound error for unknown fids.
	ReadRow(ctx context.Context, fid int64) (Row, error)
	// InsertRow writes the given fields (a subset of the description) and
	// returns the new fid.
	InsertRow(ctx context.Context, fields []feature.FieldDefn, row Row) (int64, error)
}

// DescriptorCodec derives the schema from the table's own metadata.
type DescriptorCodec struct{}

func describedTable(t Table) (DescribedTable, error) {
	dt, ok := t.(DescribedTable)
	if !ok {
		return nil, feature.Errorf(feature.KindSchema, nil, "layer: %T does not describe its fields", t)
	}
	return dt, nil
}

// Schema implements Codec.
func (DescriptorCodec) Schema(ctx context.Context, t Table, name string) (*feature.Schema, error) {
	dt, err := describedTable(t)
	if err != nil {
		return nil, err
	}
	desc, err := dt.Describe(ctx)
	if err != nil {
		return nil, feature.Errorf(feature.KindSchema, err, "layer: describe %s", name)
	}
	s, err := feature.NewSchema(name, desc.Geom, desc.Fields)
	if err != nil {
		return nil, feature.Errorf(feature.KindSchema, err, "layer: build schema for %s", name)
	}
	return s, nil
}

// Decode implements Codec.
func (DescriptorCodec) Decode(ctx context.Context, t Table, s *feature.Schema, fid int64) (*feature.Feature, error) {
	dt, err := describedTable(t)
	if err != nil {
		return nil, err
	}
	row, err := dt.ReadRow(ctx, fid)
	if err != nil {
		if feature.KindOf(err) != feature.KindUnknown {
			return nil, err
		}
		return nil, feature.Errorf(feature.KindNativeCall, err, "layer: read %s fid %d", s.Name(), fid)
	}
	if len(row.Values) != s.NumFields() {
		return nil, feature.Errorf(feature.KindDecode, nil,
			"layer: %s fid %d has %d values, schema has %d", s.Name(), fid, len(row.Values), s.NumFields())
	}

	values := make([]any, s.NumFields())
	for i, raw := range row.Values {
		fd := s.Field(i)
		v, err := feature.Coerce(fd.Type, raw)
		if err != nil {
			return nil, feature.Errorf(feature.KindDecode, err, "layer: %s fid %d field %s", s.Name(), fid, fd.Name)
		}
		values[i] = v
	}
	return feature.Build(s, fid, values, row.Geometry)
}

// Encode implements Codec. Read-only fields are skipped.
func (DescriptorCodec) Encode(ctx context.Context, t Table, s *feature.Schema, f *feature.Feature) (int64, error) {
	dt, err := describedTable(t)
	if err != nil {
		return 0, err
	}

	var fields []feature.FieldDefn
	var values []any
	for i := 0; i < s.NumFields(); i++ {
		fd := s.Field(i)
		if fd.ReadOnly {
			continue
		}
		v := f.Value(i)
		if v == nil && !fd.Nullable {
			return 0, feature.Errorf(feature.KindSchema, nil, "layer: %s field %s is not nullable", s.Name(), fd.Name)
		}
		fields = append(fields, fd)
		values = append(values, v)
	}

	fid, err := dt.InsertRow(ctx, fields, Row{Values: values, Geometry: f.Geometry})
	if err != nil {
		if feature.KindOf(err) != feature.KindUnknown {
			return 0, err
		}
		return 0, feature.Errorf(feature.KindNativeCall, err, "layer: insert into %s", s.Name())
	}
	return fid, nil
}
