package tiger

import (
	"bytes"
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/twpayne/go-geom"

	"github.com/sells-group/featsource/internal/feature"
	"github.com/sells-group/featsource/internal/layer"
)

// Codec maps fixed-width landmark records to features using the static
// layout selected by the file's version.
type Codec struct{}

func recordFile(t layer.Table) (*RecordFile, error) {
	rf, ok := t.(*RecordFile)
	if !ok {
		return nil, feature.Errorf(feature.KindSchema, nil, "tiger: %T is not a record file", t)
	}
	return rf, nil
}

// Schema implements layer.Codec.
func (Codec) Schema(_ context.Context, t layer.Table, name string) (*feature.Schema, error) {
	rf, err := recordFile(t)
	if err != nil {
		return nil, err
	}
	if rf.layoutErr != nil {
		return nil, rf.layoutErr
	}
	if rf.info == nil {
		return nil, feature.Errorf(feature.KindSchema, nil,
			"tiger: %s has unrecognized version code %q", rf.path, rf.code)
	}
	s, err := feature.NewSchema(name, feature.GeomPoint, rf.info.Schema())
	if err != nil {
		return nil, feature.Errorf(feature.KindSchema, err, "tiger: build schema for %s", rf.path)
	}
	return s, nil
}

// Decode implements layer.Codec.
func (Codec) Decode(_ context.Context, t layer.Table, s *feature.Schema, fid int64) (*feature.Feature, error) {
	rf, err := recordFile(t)
	if err != nil {
		return nil, err
	}
	rec, err := rf.readRecord(fid)
	if err != nil {
		return nil, err
	}

	values := make([]any, 0, s.NumFields())
	for _, fi := range rf.info.Fields {
		if !fi.Define {
			continue
		}
		v, err := rf.decodeField(fi, rec)
		if err != nil {
			return nil, feature.Errorf(feature.KindDecode, err, "tiger: %s record %d field %s", rf.module, fid, fi.Name)
		}
		values = append(values, v)
	}

	lon, err := parseCoord(rec, lonBegin, lonEnd)
	if err != nil {
		return nil, feature.Errorf(feature.KindDecode, err, "tiger: %s record %d longitude", rf.module, fid)
	}
	lat, err := parseCoord(rec, latBegin, latEnd)
	if err != nil {
		return nil, feature.Errorf(feature.KindDecode, err, "tiger: %s record %d latitude", rf.module, fid)
	}

	var g geom.T
	if lon != 0 || lat != 0 {
		g = geom.NewPointFlat(geom.XY, []float64{float64(lon) / 1e6, float64(lat) / 1e6}).SetSRID(4326)
	}
	return feature.Build(s, fid, values, g)
}

func (rf *RecordFile) decodeField(fi FieldInfo, rec []byte) (any, error) {
	if !fi.Set {
		if fi.Name == "MODULE" {
			return rf.module, nil
		}
		return nil, nil
	}

	raw := rec[fi.Begin-1 : fi.End]
	text := string(raw)
	if fi.Kind == KindAlpha {
		decoded, err := rf.charset.NewDecoder().Bytes(raw)
		if err != nil {
			return nil, err
		}
		text = string(decoded)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	return feature.Coerce(fi.Type, text)
}

// parseCoord reads a signed integer in microdegrees. Blank is zero.
func parseCoord(rec []byte, begin, end int) (int64, error) {
	s := strings.TrimSpace(string(rec[begin-1 : end]))
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(strings.TrimPrefix(s, "+"), 10, 64)
}

// Encode implements layer.Codec. The record carries the file's own
// version code; read-only fields are left blank.
func (Codec) Encode(_ context.Context, t layer.Table, s *feature.Schema, f *feature.Feature) (int64, error) {
	rf, err := recordFile(t)
	if err != nil {
		return 0, err
	}
	if rf.info == nil {
		return 0, feature.Errorf(feature.KindSchema, nil, "tiger: %s has unrecognized version code %q", rf.path, rf.code)
	}

	rec := bytes.Repeat([]byte{' '}, rf.info.Length)
	rec[0] = landmarksFileCode
	copy(rec[1:5], rf.code)

	i := -1
	for _, fi := range rf.info.Fields {
		if !fi.Define {
			continue
		}
		i++
		if !fi.Write || fi.Begin == 0 {
			continue
		}
		v := f.Value(i)
		if v == nil {
			continue
		}
		text, err := rf.formatField(fi, v)
		if err != nil {
			return 0, err
		}
		copy(rec[fi.Begin-1:fi.End], text)
	}

	if f.Geometry != nil {
		p, ok := f.Geometry.(*geom.Point)
		if !ok {
			return 0, feature.Errorf(feature.KindSchema, nil, "tiger: %s accepts point geometry only, got %T", s.Name(), f.Geometry)
		}
		if err := writeCoord(rec, lonBegin, lonEnd, p.X()); err != nil {
			return 0, err
		}
		if err := writeCoord(rec, latBegin, latEnd, p.Y()); err != nil {
			return 0, err
		}
	}

	return rf.appendRecord(rec)
}

func (rf *RecordFile) formatField(fi FieldInfo, v any) ([]byte, error) {
	var raw []byte
	switch x := v.(type) {
	case string:
		if fi.Kind == KindAlpha {
			enc, err := rf.charset.NewEncoder().String(x)
			if err != nil {
				return nil, feature.Errorf(feature.KindDecode, err, "tiger: %q cannot be written to %s", x, fi.Name)
			}
			raw = []byte(enc)
		} else {
			raw = []byte(x)
		}
	case int32:
		raw = []byte(strconv.FormatInt(int64(x), 10))
	case int64:
		raw = []byte(strconv.FormatInt(x, 10))
	default:
		cv, err := feature.Coerce(feature.TypeString, v)
		if err != nil {
			return nil, feature.Errorf(feature.KindDecode, err, "tiger: field %s", fi.Name)
		}
		raw = []byte(cv.(string))
	}
	width := fi.End - fi.Begin + 1
	if fi.Kind == KindNumeric && fi.Justify == JustifyLeft {
		return zeroFill(fi.Name, raw, width)
	}
	return justify(fi.Name, raw, width, fi.Justify)
}

// zeroFill writes left-justified numeric codes such as FIPS state and
// county numbers, which keep their leading zeros.
func zeroFill(name string, raw []byte, width int) ([]byte, error) {
	if len(raw) == 0 || bytes.IndexFunc(raw, func(r rune) bool { return r < '0' || r > '9' }) >= 0 {
		return nil, feature.Errorf(feature.KindSchema, nil, "tiger: %s needs an unsigned number, got %q", name, raw)
	}
	if len(raw) > width {
		return nil, feature.Errorf(feature.KindSchema, nil, "tiger: value %q overflows %s width %d", raw, name, width)
	}
	return append(bytes.Repeat([]byte{'0'}, width-len(raw)), raw...), nil
}

func justify(name string, raw []byte, width int, how byte) ([]byte, error) {
	if len(raw) > width {
		return nil, feature.Errorf(feature.KindSchema, nil, "tiger: value %q overflows %s width %d", raw, name, width)
	}
	pad := bytes.Repeat([]byte{' '}, width-len(raw))
	if how == JustifyRight {
		return append(pad, raw...), nil
	}
	return append(raw, pad...), nil
}

func writeCoord(rec []byte, begin, end int, deg float64) error {
	micro := int64(math.Round(deg * 1e6))
	text, err := justify("coordinate", []byte(strconv.FormatInt(micro, 10)), end-begin+1, JustifyRight)
	if err != nil {
		return err
	}
	copy(rec[begin-1:end], text)
	return nil
}
