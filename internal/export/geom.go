package export

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"github.com/twpayne/go-geom/encoding/wkt"
)

// SRID every exported geometry is tagged with.
const SRID = 4326

// withSRID returns g tagged with srid.
func withSRID(g geom.T, srid int) geom.T {
	switch v := g.(type) {
	case *geom.Point:
		return v.SetSRID(srid)
	case *geom.LineString:
		return v.SetSRID(srid)
	case *geom.Polygon:
		return v.SetSRID(srid)
	case *geom.MultiPoint:
		return v.SetSRID(srid)
	case *geom.MultiLineString:
		return v.SetSRID(srid)
	case *geom.MultiPolygon:
		return v.SetSRID(srid)
	case *geom.GeometryCollection:
		return v.SetSRID(srid)
	}
	return g
}

// encodeEWKB converts g to EWKB with SRID 4326. nil geometries encode to
// nil.
func encodeEWKB(g geom.T) ([]byte, error) {
	if g == nil {
		return nil, nil
	}
	data, err := ewkb.Marshal(withSRID(g, SRID), ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "export: encode EWKB")
	}
	return data, nil
}

func encodeWKT(g geom.T) (string, error) {
	if g == nil {
		return "", nil
	}
	s, err := wkt.Marshal(g)
	if err != nil {
		return "", eris.Wrap(err, "export: encode WKT")
	}
	return s, nil
}
