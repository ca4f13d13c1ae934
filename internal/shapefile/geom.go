package shapefile

import (
	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/featsource/internal/feature"
)

const srid = 4326

func geomTypeOf(t shp.ShapeType) feature.GeomType {
	switch t {
	case shp.POINT, shp.POINTZ, shp.POINTM:
		return feature.GeomPoint
	case shp.POLYLINE, shp.POLYLINEZ, shp.POLYLINEM:
		return feature.GeomMultiLineString
	case shp.POLYGON, shp.POLYGONZ, shp.POLYGONM:
		return feature.GeomMultiPolygon
	case shp.MULTIPOINT, shp.MULTIPOINTZ, shp.MULTIPOINTM:
		return feature.GeomMultiPoint
	case shp.NULL:
		return feature.GeomNone
	}
	return feature.GeomUnknown
}

// toGeom converts one shape. Null shapes have no geometry.
func toGeom(s shp.Shape) (geom.T, error) {
	switch v := s.(type) {
	case nil, *shp.Null:
		return nil, nil
	case *shp.Point:
		return geom.NewPointFlat(geom.XY, []float64{v.X, v.Y}).SetSRID(srid), nil
	case *shp.PointZ:
		return geom.NewPointFlat(geom.XY, []float64{v.X, v.Y}).SetSRID(srid), nil
	case *shp.MultiPoint:
		return geom.NewMultiPointFlat(geom.XY, flat(v.Points)).SetSRID(srid), nil
	case *shp.PolyLine:
		return lines(v.Parts, v.Points)
	case *shp.PolyLineZ:
		return lines(v.Parts, v.Points)
	case *shp.Polygon:
		return polygons(v.Parts, v.Points)
	case *shp.PolygonZ:
		return polygons(v.Parts, v.Points)
	}
	return nil, eris.Errorf("unsupported shape %T", s)
}

func flat(pts []shp.Point) []float64 {
	out := make([]float64, 0, 2*len(pts))
	for _, p := range pts {
		out = append(out, p.X, p.Y)
	}
	return out
}

// partRanges splits points by the part start offsets.
func partRanges(parts []int32, pts []shp.Point) ([][]shp.Point, error) {
	out := make([][]shp.Point, 0, len(parts))
	for i, start := range parts {
		end := int32(len(pts))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if start < 0 || start > end || end > int32(len(pts)) {
			return nil, eris.Errorf("part %d spans [%d,%d) of %d points", i, start, end, len(pts))
		}
		out = append(out, pts[start:end])
	}
	return out, nil
}

func lines(parts []int32, pts []shp.Point) (geom.T, error) {
	ranges, err := partRanges(parts, pts)
	if err != nil {
		return nil, err
	}
	mls := geom.NewMultiLineString(geom.XY)
	for _, r := range ranges {
		if err := mls.Push(geom.NewLineStringFlat(geom.XY, flat(r))); err != nil {
			return nil, eris.Wrap(err, "push line")
		}
	}
	return mls.SetSRID(srid), nil
}

// polygons groups rings into polygons. Clockwise rings start a new
// polygon; counter-clockwise rings are holes of the polygon before them.
func polygons(parts []int32, pts []shp.Point) (geom.T, error) {
	ranges, err := partRanges(parts, pts)
	if err != nil {
		return nil, err
	}
	var polys [][][]float64
	for _, r := range ranges {
		ring := flat(r)
		if signedArea(r) <= 0 || len(polys) == 0 {
			polys = append(polys, [][]float64{ring})
			continue
		}
		last := len(polys) - 1
		polys[last] = append(polys[last], ring)
	}

	mp := geom.NewMultiPolygon(geom.XY)
	for _, rings := range polys {
		p := geom.NewPolygon(geom.XY)
		for _, ring := range rings {
			if err := p.Push(geom.NewLinearRingFlat(geom.XY, ring)); err != nil {
				return nil, eris.Wrap(err, "push ring")
			}
		}
		if err := mp.Push(p); err != nil {
			return nil, eris.Wrap(err, "push polygon")
		}
	}
	return mp.SetSRID(srid), nil
}

// signedArea is positive for counter-clockwise rings.
func signedArea(pts []shp.Point) float64 {
	var a float64
	for i := range pts {
		j := (i + 1) % len(pts)
		a += pts[i].X*pts[j].Y - pts[j].X*pts[i].Y
	}
	return a / 2
}
