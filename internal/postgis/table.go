package postgis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/wkb"

	"github.com/sells-group/featsource/internal/feature"
	"github.com/sells-group/featsource/internal/layer"
)

const defaultSRID = 4326

// column is one attribute column and the select expression that reads it.
type column struct {
	defn feature.FieldDefn
	expr string
}

// Table is one PostGIS table.
type Table struct {
	store   *Store
	path    string
	id      pgx.Identifier
	columns []column
	geomCol string
	srid    int
}

const columnsQuery = `
	SELECT column_name, udt_name, is_nullable,
		COALESCE(character_maximum_length, 0), COALESCE(numeric_scale, 0)
	FROM information_schema.columns
	WHERE table_schema = $1 AND table_name = $2
	ORDER BY ordinal_position`

const geometryQuery = `
	SELECT type, srid FROM geometry_columns
	WHERE f_table_schema = $1 AND f_table_name = $2 AND f_geometry_column = $3`

// fieldType maps a udt name to a field type and the select expression that
// yields a value Coerce accepts.
func fieldType(udt, quoted string) (feature.FieldType, string) {
	switch udt {
	case "int2", "int4":
		return feature.TypeInteger, quoted
	case "int8":
		return feature.TypeInteger64, quoted
	case "float4", "float8":
		return feature.TypeReal, quoted
	case "numeric":
		return feature.TypeReal, quoted + "::float8"
	case "date":
		return feature.TypeDate, quoted
	case "timestamp", "timestamptz":
		return feature.TypeDateTime, quoted
	case "bytea":
		return feature.TypeBinary, quoted
	case "text", "varchar", "bpchar":
		return feature.TypeString, quoted
	}
	return feature.TypeString, quoted + "::text"
}

// Describe implements layer.DescribedTable. The FID column is required; the
// first geometry column becomes the shape.
func (t *Table) Describe(ctx context.Context) (layer.Description, error) {
	rows, err := t.store.pool.Query(ctx, columnsQuery, t.id[0], t.id[1])
	if err != nil {
		return layer.Description{}, eris.Wrapf(err, "postgis: query columns of %s", t.path)
	}
	defer rows.Close()

	hasFID := false
	t.columns = nil
	for rows.Next() {
		var name, udt, nullable string
		var width, scale int
		if err := rows.Scan(&name, &udt, &nullable, &width, &scale); err != nil {
			return layer.Description{}, eris.Wrapf(err, "postgis: scan column of %s", t.path)
		}
		switch {
		case name == t.store.fid:
			hasFID = true
			continue
		case udt == "geometry" && t.geomCol == "":
			t.geomCol = name
			continue
		}
		typ, expr := fieldType(udt, pgx.Identifier{name}.Sanitize())
		t.columns = append(t.columns, column{
			defn: feature.FieldDefn{
				Name:      name,
				Type:      typ,
				Width:     width,
				Precision: scale,
				Nullable:  nullable == "YES",
			},
			expr: expr,
		})
	}
	if err := rows.Err(); err != nil {
		return layer.Description{}, eris.Wrapf(err, "postgis: read columns of %s", t.path)
	}
	if !hasFID {
		return layer.Description{}, feature.Errorf(feature.KindSchema, nil,
			"postgis: %s has no %s column", t.path, t.store.fid)
	}

	desc := layer.Description{Geom: feature.GeomNone}
	for _, c := range t.columns {
		desc.Fields = append(desc.Fields, c.defn)
	}
	if t.geomCol != "" {
		desc.Geom, t.srid = t.geometryInfo(ctx)
	}
	return desc, nil
}

// geometryInfo reads the declared type and SRID. Unregistered columns are
// treated as generic geometry in 4326.
func (t *Table) geometryInfo(ctx context.Context) (feature.GeomType, int) {
	var typ string
	var srid int
	err := t.store.pool.QueryRow(ctx, geometryQuery, t.id[0], t.id[1], t.geomCol).Scan(&typ, &srid)
	if err != nil {
		return feature.GeomUnknown, defaultSRID
	}
	g, ok := feature.ParseGeomType(typ)
	if !ok {
		g = feature.GeomUnknown
	}
	if srid <= 0 {
		srid = defaultSRID
	}
	return g, srid
}

// NextFID implements layer.Table.
func (t *Table) NextFID(ctx context.Context, after int64) (int64, bool, error) {
	fid := pgx.Identifier{t.store.fid}.Sanitize()
	var next int64
	err := t.store.pool.QueryRow(ctx,
		fmt.Sprintf("SELECT %s FROM %s WHERE %s > $1 ORDER BY %s LIMIT 1", fid, t.id.Sanitize(), fid, fid),
		after,
	).Scan(&next)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, eris.Wrapf(err, "postgis: advance %s", t.path)
	}
	return next, true, nil
}

func (t *Table) selectList() string {
	exprs := make([]string, 0, len(t.columns)+1)
	for _, c := range t.columns {
		exprs = append(exprs, c.expr)
	}
	if t.geomCol != "" {
		exprs = append(exprs, "ST_AsBinary("+pgx.Identifier{t.geomCol}.Sanitize()+")")
	}
	return strings.Join(exprs, ", ")
}

// ReadRow implements layer.DescribedTable.
func (t *Table) ReadRow(ctx context.Context, fid int64) (layer.Row, error) {
	list := t.selectList()
	if list == "" {
		list = "1"
	}
	rows, err := t.store.pool.Query(ctx,
		fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1", list, t.id.Sanitize(), pgx.Identifier{t.store.fid}.Sanitize()),
		fid,
	)
	if err != nil {
		return layer.Row{}, eris.Wrapf(err, "postgis: read %s fid %d", t.path, fid)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return layer.Row{}, eris.Wrapf(err, "postgis: read %s fid %d", t.path, fid)
		}
		return layer.Row{}, feature.Errorf(feature.KindNotFound, nil, "postgis: %s has no fid %d", t.path, fid)
	}
	values, err := rows.Values()
	if err != nil {
		return layer.Row{}, eris.Wrapf(err, "postgis: values of %s fid %d", t.path, fid)
	}

	row := layer.Row{Values: values[:len(t.columns)]}
	if t.geomCol != "" {
		if b, ok := values[len(t.columns)].([]byte); ok && len(b) > 0 {
			g, err := wkb.Unmarshal(b)
			if err != nil {
				return layer.Row{}, feature.Errorf(feature.KindDecode, err, "postgis: %s fid %d geometry", t.path, fid)
			}
			row.Geometry = g
		}
	}
	return row, nil
}

// InsertRow implements layer.DescribedTable. The FID is assigned by the
// column default.
func (t *Table) InsertRow(ctx context.Context, fields []feature.FieldDefn, row layer.Row) (int64, error) {
	if !t.store.update {
		return 0, feature.Errorf(feature.KindUnsupported, nil, "postgis: %s is read-only", t.path)
	}

	cols := make([]string, 0, len(fields)+1)
	params := make([]string, 0, len(fields)+1)
	args := make([]any, 0, len(fields)+1)
	for i, fd := range fields {
		cols = append(cols, pgx.Identifier{fd.Name}.Sanitize())
		params = append(params, fmt.Sprintf("$%d", len(args)+1))
		args = append(args, row.Values[i])
	}
	if t.geomCol != "" && row.Geometry != nil {
		b, err := wkb.Marshal(row.Geometry, wkb.NDR)
		if err != nil {
			return 0, feature.Errorf(feature.KindSchema, err, "postgis: encode geometry for %s", t.path)
		}
		cols = append(cols, pgx.Identifier{t.geomCol}.Sanitize())
		params = append(params, fmt.Sprintf("ST_SetSRID(ST_GeomFromWKB($%d), %d)", len(args)+1, t.srid))
		args = append(args, b)
	}

	q := fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING %s", t.id.Sanitize(), pgx.Identifier{t.store.fid}.Sanitize())
	if len(cols) > 0 {
		q = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
			t.id.Sanitize(), strings.Join(cols, ", "), strings.Join(params, ", "), pgx.Identifier{t.store.fid}.Sanitize())
	}

	var fid int64
	if err := t.store.pool.QueryRow(ctx, q, args...).Scan(&fid); err != nil {
		return 0, eris.Wrapf(err, "postgis: insert into %s", t.path)
	}
	return fid, nil
}

// Writable implements layer.Writable.
func (t *Table) Writable() bool { return t.store.update }

// Close implements layer.Table. Tables hold no server resources.
func (t *Table) Close() error { return nil }
