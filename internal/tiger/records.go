package tiger

import "github.com/sells-group/featsource/internal/feature"

// Justification of a fixed-width field.
const (
	JustifyLeft  = 'L'
	JustifyRight = 'R'
)

// Character class of a fixed-width field.
const (
	KindNumeric = 'N'
	KindAlpha   = 'A'
)

// FieldInfo is one column of a fixed-width record layout. Begin and End are
// 1-based inclusive byte positions; zero means the field is synthesized.
type FieldInfo struct {
	Name    string
	Justify byte
	Kind    byte
	Type    feature.FieldType
	Begin   int
	End     int
	Len     int
	// Define adds the field to the schema, Set fills it on read and Write
	// emits it on create.
	Define bool
	Set    bool
	Write  bool
}

// RecordInfo is a complete record layout.
type RecordInfo struct {
	Fields []FieldInfo
	Length int
}

// Landmark record geometry columns.
const (
	lonBegin, lonEnd = 55, 64
	latBegin, latEnd = 65, 73
)

const landmarksFileCode = '7'

// LandmarksLayer is the container name of record type 7.
const LandmarksLayer = "Landmarks"

var rt7Info2002 = RecordInfo{
	Length: 74,
	Fields: []FieldInfo{
		{Name: "MODULE", Justify: ' ', Kind: ' ', Type: feature.TypeString, Len: 8, Define: true},
		{Name: "FILE", Justify: JustifyLeft, Kind: KindNumeric, Type: feature.TypeInteger, Begin: 6, End: 10, Len: 5, Define: true, Set: true, Write: true},
		{Name: "LAND", Justify: JustifyRight, Kind: KindNumeric, Type: feature.TypeInteger64, Begin: 11, End: 20, Len: 10, Define: true, Set: true, Write: true},
		{Name: "SOURCE", Justify: JustifyLeft, Kind: KindAlpha, Type: feature.TypeString, Begin: 21, End: 21, Len: 1, Define: true, Set: true, Write: true},
		{Name: "CFCC", Justify: JustifyLeft, Kind: KindAlpha, Type: feature.TypeString, Begin: 22, End: 24, Len: 3, Define: true, Set: true, Write: true},
		{Name: "LANAME", Justify: JustifyLeft, Kind: KindAlpha, Type: feature.TypeString, Begin: 25, End: 54, Len: 30, Define: true, Set: true, Write: true},
		{Name: "LALONG", Justify: JustifyRight, Kind: KindNumeric, Type: feature.TypeInteger, Begin: 55, End: 64, Len: 10, Define: true, Set: true, Write: true},
		{Name: "LALAT", Justify: JustifyRight, Kind: KindNumeric, Type: feature.TypeInteger, Begin: 65, End: 73, Len: 9, Define: true, Set: true, Write: true},
		{Name: "FILLER", Justify: JustifyLeft, Kind: KindAlpha, Type: feature.TypeString, Begin: 74, End: 74, Len: 1, Define: true, Set: true, Write: true},
	},
}

var rt7InfoLegacy = RecordInfo{
	Length: 74,
	Fields: []FieldInfo{
		{Name: "MODULE", Justify: ' ', Kind: ' ', Type: feature.TypeString, Len: 8, Define: true},
		{Name: "FILE", Justify: JustifyLeft, Kind: KindNumeric, Type: feature.TypeString, Begin: 6, End: 10, Len: 5, Define: true, Write: true},
		{Name: "STATE", Justify: JustifyLeft, Kind: KindNumeric, Type: feature.TypeInteger, Begin: 6, End: 7, Len: 2, Define: true, Set: true, Write: true},
		{Name: "COUNTY", Justify: JustifyLeft, Kind: KindNumeric, Type: feature.TypeInteger, Begin: 8, End: 10, Len: 3, Define: true, Set: true, Write: true},
		{Name: "LAND", Justify: JustifyRight, Kind: KindNumeric, Type: feature.TypeInteger64, Begin: 11, End: 20, Len: 10, Define: true, Set: true, Write: true},
		{Name: "SOURCE", Justify: JustifyLeft, Kind: KindAlpha, Type: feature.TypeString, Begin: 21, End: 21, Len: 1, Define: true, Set: true, Write: true},
		{Name: "CFCC", Justify: JustifyLeft, Kind: KindAlpha, Type: feature.TypeString, Begin: 22, End: 24, Len: 3, Define: true, Set: true, Write: true},
		{Name: "LANAME", Justify: JustifyLeft, Kind: KindAlpha, Type: feature.TypeString, Begin: 25, End: 54, Len: 30, Define: true, Set: true, Write: true},
	},
}

// LandmarksInfo returns the record type 7 layout used by version v.
func LandmarksInfo(v Version) *RecordInfo {
	if v >= Version2002 {
		return &rt7Info2002
	}
	return &rt7InfoLegacy
}

// Schema returns the field definitions of every defined field.
func (ri *RecordInfo) Schema() []feature.FieldDefn {
	var out []feature.FieldDefn
	for _, fi := range ri.Fields {
		if !fi.Define {
			continue
		}
		out = append(out, feature.FieldDefn{
			Name:     fi.Name,
			Type:     fi.Type,
			Width:    fi.Len,
			Nullable: true,
			ReadOnly: !fi.Write,
		})
	}
	return out
}
