package shapefile

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/featsource/internal/catalog"
	"github.com/sells-group/featsource/internal/diag"
	"github.com/sells-group/featsource/internal/feature"
	"github.com/sells-group/featsource/internal/layer"
)

// closeWriter closes w and moves the attribute file to where readers look
// for it; go-shp's writer names it "<base>dbf" without the dot.
func closeWriter(t *testing.T, w *shp.Writer, file string) {
	t.Helper()
	w.Close()
	base := strings.TrimSuffix(file, filepath.Ext(file))
	if _, err := os.Stat(base + "dbf"); err == nil {
		require.NoError(t, os.Rename(base+"dbf", base+".dbf"))
	}
}

func writeRoads(t *testing.T, file string) {
	t.Helper()
	w, err := shp.Create(file, shp.POLYLINE)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{
		shp.StringField("NAME", 20),
		shp.NumberField("LANES", 4),
		shp.FloatField("LEN", 10, 2),
		shp.DateField("OPENED"),
	}))

	n := w.Write(shp.NewPolyLine([][]shp.Point{
		{{X: 0, Y: 0}, {X: 1, Y: 1}},
		{{X: 2, Y: 2}, {X: 3, Y: 2}, {X: 4, Y: 3}},
	}))
	require.NoError(t, w.WriteAttribute(int(n), 0, "Caf\xe9 Row"))
	require.NoError(t, w.WriteAttribute(int(n), 1, 2))
	require.NoError(t, w.WriteAttribute(int(n), 2, 12.5))
	require.NoError(t, w.WriteAttribute(int(n), 3, "20190601"))

	n = w.Write(shp.NewPolyLine([][]shp.Point{{{X: 5, Y: 5}, {X: 6, Y: 6}}}))
	require.NoError(t, w.WriteAttribute(int(n), 0, "Main"))
	closeWriter(t, w, file)
}

func writeLots(t *testing.T, file string) {
	t.Helper()
	w, err := shp.Create(file, shp.POLYGON)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{shp.StringField("APN", 12)}))

	lot := shp.Polygon(*shp.NewPolyLine([][]shp.Point{
		// Outer, clockwise.
		{{X: 0, Y: 0}, {X: 0, Y: 10}, {X: 10, Y: 10}, {X: 10, Y: 0}, {X: 0, Y: 0}},
		// Hole, counter-clockwise.
		{{X: 2, Y: 2}, {X: 4, Y: 2}, {X: 4, Y: 4}, {X: 2, Y: 4}, {X: 2, Y: 2}},
		{{X: 20, Y: 0}, {X: 20, Y: 5}, {X: 25, Y: 5}, {X: 25, Y: 0}, {X: 20, Y: 0}},
	}))
	n := w.Write(&lot)
	require.NoError(t, w.WriteAttribute(int(n), 0, "001-234-56"))
	closeWriter(t, w, file)
}

func fixture(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "parcels"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "README.txt"), []byte("x"), 0o644))
	writeRoads(t, filepath.Join(root, "roads.shp"))
	writeLots(t, filepath.Join(root, "parcels", "lots.shp"))
	return root
}

func TestCatalogOverDirectory(t *testing.T) {
	root := fixture(t)
	ctx := context.Background()

	s, err := Open(root, false)
	require.NoError(t, err)
	c := catalog.New(s, "dir", catalog.WithSink(diag.Nop{}))
	require.NoError(t, c.Open(ctx))
	defer c.Close() //nolint:errcheck

	require.Equal(t, 2, c.Len())
	lots, _ := c.Layer(0)
	roads, _ := c.Layer(1)
	assert.Equal(t, `\parcels\lots`, lots.Path())
	assert.Equal(t, `\roads`, roads.Path())
	assert.Equal(t, catalog.Stats{Groups: 1, Attempted: 2, Opened: 2}, c.Stats())

	assert.Equal(t, feature.GeomMultiLineString, roads.Schema().GeomType())
	assert.Equal(t, feature.GeomMultiPolygon, lots.Schema().GeomType())

	types := map[string]feature.FieldType{}
	for _, fd := range roads.Schema().Fields() {
		types[fd.Name] = fd.Type
	}
	assert.Equal(t, map[string]feature.FieldType{
		"NAME":   feature.TypeString,
		"LANES":  feature.TypeInteger,
		"LEN":    feature.TypeReal,
		"OPENED": feature.TypeDate,
	}, types)

	f, err := roads.Feature(ctx, 0)
	require.NoError(t, err)
	props := f.Properties()
	assert.Equal(t, "Café Row", props["NAME"])
	assert.Equal(t, int32(2), props["LANES"])
	assert.Equal(t, 12.5, props["LEN"])
	assert.Equal(t, time.Date(2019, 6, 1, 0, 0, 0, 0, time.UTC), props["OPENED"])
	mls, ok := f.Geometry.(*geom.MultiLineString)
	require.True(t, ok)
	assert.Equal(t, 2, mls.NumLineStrings())

	f, err = roads.Feature(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, f.Properties()["LANES"])
	assert.Nil(t, f.Properties()["OPENED"])

	_, err = roads.Feature(ctx, 2)
	assert.Equal(t, feature.KindNotFound, feature.KindOf(err))

	lot, err := lots.Feature(ctx, 0)
	require.NoError(t, err)
	mp, ok := lot.Geometry.(*geom.MultiPolygon)
	require.True(t, ok)
	require.Equal(t, 2, mp.NumPolygons())
	assert.Equal(t, 2, mp.Polygon(0).NumLinearRings())
	assert.Equal(t, 1, mp.Polygon(1).NumLinearRings())

	assert.False(t, roads.TestCapability(layer.CapSequentialWrite))
	_, err = roads.CreateFeature(ctx, roads.NewFeature())
	assert.Equal(t, feature.KindUnsupported, feature.KindOf(err))
}

func TestUTF8CodePage(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "names.shp")
	w, err := shp.Create(file, shp.POINT)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{shp.StringField("NAME", 20)}))
	n := w.Write(&shp.Point{X: -118.25, Y: 34.05})
	require.NoError(t, w.WriteAttribute(int(n), 0, "Café"))
	closeWriter(t, w, file)
	require.NoError(t, os.WriteFile(filepath.Join(root, "names.cpg"), []byte("UTF-8\n"), 0o644))

	s, err := Open(file, false)
	require.NoError(t, err)
	c := catalog.New(s, "one", catalog.WithSink(diag.Nop{}))
	require.NoError(t, c.Open(context.Background()))
	defer c.Close() //nolint:errcheck

	l, _ := c.Layer(0)
	assert.Equal(t, `\names`, l.Path())
	f, err := l.Feature(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, "Café", f.Properties()["NAME"])
	pt, ok := f.Geometry.(*geom.Point)
	require.True(t, ok)
	assert.Equal(t, []float64{-118.25, 34.05}, pt.FlatCoords())
	assert.Equal(t, 4326, pt.SRID())
}

func TestRemoveLayerDeletesSidecars(t *testing.T) {
	root := fixture(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "roads.prj"), []byte("GEOGCS[]"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "roadside.shp"), []byte{}, 0o644))
	ctx := context.Background()

	s, err := Open(root, true)
	require.NoError(t, err)
	rec := &diag.Recorder{}
	c := catalog.New(s, "dir", catalog.WithSink(rec), catalog.WithUpdate(true))
	require.NoError(t, c.Open(ctx))
	defer c.Close() //nolint:errcheck

	// roadside.shp is not a valid shapefile and fails to open.
	assert.Equal(t, 1, c.Stats().Failed)

	idx, _, ok := c.LayerByName("roads")
	require.True(t, ok)
	require.NoError(t, c.RemoveLayer(ctx, idx))

	for _, ext := range []string{".shp", ".shx", ".dbf", ".prj"} {
		_, err := os.Stat(filepath.Join(root, "roads"+ext))
		assert.True(t, os.IsNotExist(err), ext)
	}
	_, err = os.Stat(filepath.Join(root, "roadside.shp"))
	assert.NoError(t, err)
}

func TestMissingDBFFailsLeaf(t *testing.T) {
	root := fixture(t)
	require.NoError(t, os.Remove(filepath.Join(root, "roads.dbf")))

	_, err := load(`\roads`, filepath.Join(root, "roads.shp"))
	assert.Equal(t, feature.KindSchema, feature.KindOf(err))

	s, err := Open(root, false)
	require.NoError(t, err)
	c := catalog.New(s, "dir", catalog.WithSink(diag.Nop{}))
	require.NoError(t, c.Open(context.Background()))
	defer c.Close() //nolint:errcheck

	require.Equal(t, 1, c.Len())
	l, _ := c.Layer(0)
	assert.Equal(t, `\parcels\lots`, l.Path())
	assert.Equal(t, catalog.Stats{Groups: 1, Attempted: 2, Opened: 1, Failed: 1}, c.Stats())
}

func TestReadOnlyDelete(t *testing.T) {
	root := fixture(t)
	s, err := Open(root, false)
	require.NoError(t, err)
	err = s.DeleteContainer(context.Background(), `\roads`)
	assert.Equal(t, feature.KindUnsupported, feature.KindOf(err))
	_, err = os.Stat(filepath.Join(root, "roads.shp"))
	assert.NoError(t, err)
}

func TestOpen_RejectsOtherFiles(t *testing.T) {
	root := t.TempDir()
	txt := filepath.Join(root, "a.txt")
	require.NoError(t, os.WriteFile(txt, []byte("x"), 0o644))
	_, err := Open(txt, false)
	assert.Error(t, err)
	_, err = Open(filepath.Join(root, "missing"), false)
	assert.Error(t, err)
}

func TestChildren_UnknownParent(t *testing.T) {
	s, err := Open(t.TempDir(), false)
	require.NoError(t, err)
	_, err = s.Children(context.Background(), TypeShapefile, `\nowhere`)
	assert.Equal(t, feature.KindNotFound, feature.KindOf(err))
}

func TestGeomTypeOf(t *testing.T) {
	tests := []struct {
		in   shp.ShapeType
		want feature.GeomType
	}{
		{shp.POINT, feature.GeomPoint},
		{shp.POLYLINEZ, feature.GeomMultiLineString},
		{shp.POLYGON, feature.GeomMultiPolygon},
		{shp.MULTIPOINT, feature.GeomMultiPoint},
		{shp.NULL, feature.GeomNone},
		{shp.MULTIPATCH, feature.GeomUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, geomTypeOf(tt.in), tt.in)
	}
}

func TestToGeom_BadParts(t *testing.T) {
	_, err := toGeom(&shp.PolyLine{
		NumParts: 2,
		Parts:    []int32{0, 5},
		Points:   []shp.Point{{X: 0, Y: 0}, {X: 1, Y: 1}},
	})
	assert.Error(t, err)

	g, err := toGeom(&shp.Null{})
	require.NoError(t, err)
	assert.Nil(t, g)
}
