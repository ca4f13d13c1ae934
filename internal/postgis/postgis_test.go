package postgis

import (
	"context"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"

	"github.com/sells-group/featsource/internal/catalog"
	"github.com/sells-group/featsource/internal/diag"
	"github.com/sells-group/featsource/internal/feature"
	"github.com/sells-group/featsource/internal/layer"
)

func columnRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{"column_name", "udt_name", "is_nullable", "width", "scale"}).
		AddRow("ogc_fid", "int4", "NO", 0, 0).
		AddRow("name", "varchar", "YES", 40, 0).
		AddRow("lanes", "int4", "YES", 0, 0).
		AddRow("built", "date", "YES", 0, 0).
		AddRow("cost", "numeric", "YES", 0, 2).
		AddRow("geom", "geometry", "YES", 0, 0)
}

func expectDiscovery(mock pgxmock.PgxPoolIface) {
	mock.ExpectQuery("SELECT DISTINCT table_schema").
		WillReturnRows(pgxmock.NewRows([]string{"table_schema"}).AddRow("gis"))
	mock.ExpectQuery("SELECT table_name").WithArgs("gis").
		WillReturnRows(pgxmock.NewRows([]string{"table_name"}).AddRow("notes").AddRow("roads"))
	mock.ExpectQuery("FROM information_schema.columns").WithArgs("gis", "notes").
		WillReturnRows(pgxmock.NewRows([]string{"column_name", "udt_name", "is_nullable", "width", "scale"}).
			AddRow("id", "int4", "NO", 0, 0))
	mock.ExpectQuery("FROM information_schema.columns").WithArgs("gis", "roads").
		WillReturnRows(columnRows())
	mock.ExpectQuery("SELECT type, srid FROM geometry_columns").WithArgs("gis", "roads", "geom").
		WillReturnRows(pgxmock.NewRows([]string{"type", "srid"}).AddRow("LINESTRING", 4326))
}

func TestCatalogOverPostGIS(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	expectDiscovery(mock)

	ctx := context.Background()
	rec := &diag.Recorder{}
	c := catalog.New(NewStore(mock, Options{Update: true}, nil), "pg",
		catalog.WithSink(rec), catalog.WithUpdate(true))
	require.NoError(t, c.Open(ctx))

	// notes has no ogc_fid column.
	require.Equal(t, 1, c.Len())
	assert.Equal(t, 1, rec.Count(diag.SeverityFailure))
	assert.Equal(t, catalog.Stats{Groups: 1, Attempted: 2, Opened: 1, Failed: 1}, c.Stats())

	roads, _ := c.Layer(0)
	assert.Equal(t, `\gis\roads`, roads.Path())
	assert.Equal(t, feature.GeomLineString, roads.Schema().GeomType())
	require.Equal(t, 4, roads.Schema().NumFields())
	assert.Equal(t, feature.TypeReal, roads.Schema().Field(3).Type)

	shape, err := wkb.Marshal(geom.NewLineStringFlat(geom.XY, []float64{1, 2, 3, 4}), wkb.NDR)
	require.NoError(t, err)
	built := time.Date(1999, 3, 4, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "name", "lanes", "built", "cost"::float8, ST_AsBinary("geom") FROM "gis"."roads" WHERE "ogc_fid" = $1`)).
		WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows([]string{"name", "lanes", "built", "cost", "st_asbinary"}).
			AddRow("Main", int32(2), built, 10.5, shape))

	f, err := roads.Feature(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), f.FID)
	props := f.Properties()
	assert.Equal(t, "Main", props["name"])
	assert.Equal(t, int32(2), props["lanes"])
	assert.Equal(t, built, props["built"])
	assert.Equal(t, 10.5, props["cost"])
	ls, ok := f.Geometry.(*geom.LineString)
	require.True(t, ok)
	assert.Equal(t, []float64{1, 2, 3, 4}, ls.FlatCoords())

	mock.ExpectQuery(`SELECT "name"`).WithArgs(int64(8)).
		WillReturnRows(pgxmock.NewRows([]string{"name", "lanes", "built", "cost", "st_asbinary"}))
	_, err = roads.Feature(ctx, 8)
	assert.Equal(t, feature.KindNotFound, feature.KindOf(err))

	nf := roads.NewFeature()
	require.NoError(t, nf.Set("name", "Oak"))
	require.NoError(t, nf.Set("lanes", 3))
	nf.Geometry = geom.NewLineStringFlat(geom.XY, []float64{0, 0, 1, 1})
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "gis"."roads" ("name", "lanes", "built", "cost", "geom") VALUES ($1, $2, $3, $4, ST_SetSRID(ST_GeomFromWKB($5), 4326)) RETURNING "ogc_fid"`)).
		WithArgs("Oak", int32(3), nil, nil, pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"ogc_fid"}).AddRow(int64(12)))
	fid, err := roads.CreateFeature(ctx, nf)
	require.NoError(t, err)
	assert.Equal(t, int64(12), fid)

	mock.ExpectExec(regexp.QuoteMeta(`DROP TABLE "gis"."roads"`)).
		WillReturnResult(pgxmock.NewResult("DROP", 0))
	require.NoError(t, c.RemoveLayer(ctx, 0))
	assert.Equal(t, 0, c.Len())

	require.NoError(t, c.Close())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIterateFollowsFIDOrder(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewStore(mock, Options{FIDColumn: "id"}, nil)
	tbl, _, err := s.OpenContainer(context.Background(), `\public\pts`)
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "id" FROM "public"."pts" WHERE "id" > $1 ORDER BY "id" LIMIT 1`)).
		WithArgs(int64(-1)).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(3)))
	mock.ExpectQuery(`SELECT "id" FROM`).
		WithArgs(int64(3)).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	fid, ok, err := tbl.NextFID(context.Background(), -1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(3), fid)

	_, ok, err = tbl.NextFID(context.Background(), 3)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSchemaListingFailureAbortsOpen(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT DISTINCT table_schema").WillReturnError(fmt.Errorf("connection reset"))

	c := catalog.New(NewStore(mock, Options{}, nil), "pg", catalog.WithSink(diag.Nop{}))
	err = c.Open(context.Background())
	assert.Equal(t, feature.KindNativeCall, feature.KindOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReadOnlyStore(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewStore(mock, Options{}, nil)
	assert.Equal(t, feature.KindUnsupported, feature.KindOf(s.DeleteContainer(context.Background(), `\gis\roads`)))

	tbl, _, err := s.OpenContainer(context.Background(), `\gis\roads`)
	require.NoError(t, err)
	_, err = tbl.(*Table).InsertRow(context.Background(), nil, layer.Row{})
	assert.Equal(t, feature.KindUnsupported, feature.KindOf(err))

	_, _, err = s.OpenContainer(context.Background(), `\gis`)
	assert.Equal(t, feature.KindNotFound, feature.KindOf(err))
}

func TestCloseCallsCloser(t *testing.T) {
	calls := 0
	s := NewStore(nil, Options{}, func() { calls++ })
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, 1, calls)
}

func TestFieldType(t *testing.T) {
	tests := []struct {
		udt      string
		wantType feature.FieldType
		wantExpr string
	}{
		{"int2", feature.TypeInteger, `"c"`},
		{"int8", feature.TypeInteger64, `"c"`},
		{"float8", feature.TypeReal, `"c"`},
		{"numeric", feature.TypeReal, `"c"::float8`},
		{"timestamptz", feature.TypeDateTime, `"c"`},
		{"bytea", feature.TypeBinary, `"c"`},
		{"uuid", feature.TypeString, `"c"::text`},
	}
	for _, tt := range tests {
		t.Run(tt.udt, func(t *testing.T) {
			typ, expr := fieldType(tt.udt, `"c"`)
			assert.Equal(t, tt.wantType, typ)
			assert.Equal(t, tt.wantExpr, expr)
		})
	}
}
