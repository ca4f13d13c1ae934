package feature

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// Feature is one record of a layer: a FID, one value per schema field (nil
// means null) and an optional geometry.
type Feature struct {
	FID      int64
	Geometry geom.T

	schema *Schema
	values []any
}

// New returns an empty feature (all fields null) bound to schema.
func New(schema *Schema) *Feature {
	return &Feature{FID: -1, schema: schema, values: make([]any, schema.NumFields())}
}

// Build assembles a fully decoded feature. values must already be coerced
// to the declared field types and have one entry per schema field.
func Build(schema *Schema, fid int64, values []any, g geom.T) (*Feature, error) {
	if len(values) != schema.NumFields() {
		return nil, eris.Errorf("feature: %s expects %d values, got %d", schema.Name(), schema.NumFields(), len(values))
	}
	f := &Feature{FID: fid, Geometry: g, schema: schema, values: make([]any, len(values))}
	copy(f.values, values)
	return f, nil
}

// Schema returns the schema the feature was built on.
func (f *Feature) Schema() *Schema { return f.schema }

// Set coerces v to the named field's declared type and stores it.
func (f *Feature) Set(name string, v any) error {
	i := f.schema.FieldIndex(name)
	if i < 0 {
		return Errorf(KindSchema, nil, "feature: %s has no field %s", f.schema.Name(), name)
	}
	return f.SetIndex(i, v)
}

// SetIndex coerces v to the i-th field's declared type and stores it.
func (f *Feature) SetIndex(i int, v any) error {
	if i < 0 || i >= len(f.values) {
		return Errorf(KindBounds, nil, "feature: field index %d out of range", i)
	}
	fd := f.schema.Field(i)
	cv, err := Coerce(fd.Type, v)
	if err != nil {
		return Errorf(KindDecode, err, "feature: set %s", fd.Name)
	}
	f.values[i] = cv
	return nil
}

// Get returns the named field's value and whether the field exists.
func (f *Feature) Get(name string) (any, bool) {
	i := f.schema.FieldIndex(name)
	if i < 0 {
		return nil, false
	}
	return f.values[i], true
}

// Value returns the i-th field value (nil when null).
func (f *Feature) Value(i int) any { return f.values[i] }

// IsNull reports whether the i-th field is null.
func (f *Feature) IsNull(i int) bool { return f.values[i] == nil }

// Values returns a copy of all field values in schema order.
func (f *Feature) Values() []any {
	out := make([]any, len(f.values))
	copy(out, f.values)
	return out
}

// Properties returns the non-null field values keyed by field name.
func (f *Feature) Properties() map[string]any {
	props := make(map[string]any, len(f.values))
	for i, v := range f.values {
		if v == nil {
			continue
		}
		props[f.schema.Field(i).Name] = v
	}
	return props
}
