// Package feature defines the portable schema, feature and error model that
// every native store is mapped onto.
package feature

import (
	"strings"

	"github.com/rotisserie/eris"
)

// FieldType is the declared type of an attribute field.
type FieldType string

const (
	TypeString    FieldType = "string"
	TypeInteger   FieldType = "integer"
	TypeInteger64 FieldType = "integer64"
	TypeReal      FieldType = "real"
	TypeDate      FieldType = "date"
	TypeDateTime  FieldType = "datetime"
	TypeBinary    FieldType = "binary"
)

// Valid reports whether t is one of the known field types.
func (t FieldType) Valid() bool {
	switch t {
	case TypeString, TypeInteger, TypeInteger64, TypeReal, TypeDate, TypeDateTime, TypeBinary:
		return true
	}
	return false
}

// GeomType is the declared geometry type of a layer.
type GeomType string

const (
	GeomNone            GeomType = "none"
	GeomUnknown         GeomType = "unknown"
	GeomPoint           GeomType = "point"
	GeomLineString      GeomType = "linestring"
	GeomPolygon         GeomType = "polygon"
	GeomMultiPoint      GeomType = "multipoint"
	GeomMultiLineString GeomType = "multilinestring"
	GeomMultiPolygon    GeomType = "multipolygon"
)

// ParseGeomType maps a case-insensitive name (e.g. "MULTIPOLYGON") to a
// GeomType. Empty input maps to GeomNone.
func ParseGeomType(s string) (GeomType, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return GeomNone, true
	}
	switch g := GeomType(s); g {
	case GeomNone, GeomUnknown, GeomPoint, GeomLineString, GeomPolygon,
		GeomMultiPoint, GeomMultiLineString, GeomMultiPolygon:
		return g, true
	case "geometry":
		return GeomUnknown, true
	}
	return GeomUnknown, false
}

// FieldDefn describes one attribute field.
type FieldDefn struct {
	Name      string
	Type      FieldType
	Width     int
	Precision int
	Nullable  bool
	// ReadOnly fields are decoded on read but never written on create.
	ReadOnly bool
}

// Schema is an ordered, immutable list of field definitions plus the layer
// geometry type. Build one with NewSchema; it is never modified afterwards.
type Schema struct {
	name   string
	geom   GeomType
	fields []FieldDefn
	index  map[string]int
}

// NewSchema validates the field list and returns an immutable schema.
// Field names must be non-empty and unique (case-insensitive).
func NewSchema(name string, geom GeomType, fields []FieldDefn) (*Schema, error) {
	if geom == "" {
		geom = GeomNone
	}
	s := &Schema{
		name:   name,
		geom:   geom,
		fields: make([]FieldDefn, len(fields)),
		index:  make(map[string]int, len(fields)),
	}
	copy(s.fields, fields)

	for i, f := range s.fields {
		if f.Name == "" {
			return nil, eris.Errorf("feature: field %d of %s has no name", i, name)
		}
		if !f.Type.Valid() {
			return nil, eris.Errorf("feature: field %s of %s has unknown type %q", f.Name, name, f.Type)
		}
		key := strings.ToLower(f.Name)
		if _, dup := s.index[key]; dup {
			return nil, eris.Errorf("feature: duplicate field %s in %s", f.Name, name)
		}
		s.index[key] = i
	}
	return s, nil
}

// Name returns the layer name the schema was derived for.
func (s *Schema) Name() string { return s.name }

// GeomType returns the declared geometry type.
func (s *Schema) GeomType() GeomType { return s.geom }

// NumFields returns the number of attribute fields.
func (s *Schema) NumFields() int { return len(s.fields) }

// Field returns the i-th field definition.
func (s *Schema) Field(i int) FieldDefn { return s.fields[i] }

// Fields returns a copy of the field list.
func (s *Schema) Fields() []FieldDefn {
	out := make([]FieldDefn, len(s.fields))
	copy(out, s.fields)
	return out
}

// FieldIndex returns the position of the named field, or -1.
func (s *Schema) FieldIndex(name string) int {
	if i, ok := s.index[strings.ToLower(name)]; ok {
		return i
	}
	return -1
}

// Equal reports whether two schemas describe the same fields in the same
// order with the same geometry type.
func (s *Schema) Equal(o *Schema) bool {
	if s == o {
		return true
	}
	if s == nil || o == nil || s.geom != o.geom || len(s.fields) != len(o.fields) {
		return false
	}
	for i := range s.fields {
		if s.fields[i] != o.fields[i] {
			return false
		}
	}
	return true
}
