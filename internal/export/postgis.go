// Package export moves features out of a catalog: into PostGIS tables, XLSX
// workbooks or other layers.
package export

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/featsource/internal/db"
	"github.com/sells-group/featsource/internal/feature"
	"github.com/sells-group/featsource/internal/layer"
)

// DefaultSchema receives exported tables and the status table.
const DefaultSchema = "featsource"

// Options configures a PostGIS export.
type Options struct {
	Schema string
	// Table overrides the target table name, which defaults to the layer
	// name.
	Table     string
	BatchSize int
	// Upsert merges rows by fid instead of appending.
	Upsert bool
	// Source labels the export in export_status.
	Source string
}

// Result describes one exported layer.
type Result struct {
	Source   string
	Layer    string
	Table    string
	Rows     int64
	Duration time.Duration
}

// StatusRow is a row of featsource.export_status.
type StatusRow struct {
	Source     string
	Layer      string
	Target     string
	RowCount   int64
	ExportedAt time.Time
	DurationMs int
}

var unsafeName = regexp.MustCompile(`[^a-z0-9_]+`)

// TableName derives a PostgreSQL table name from a layer name.
func TableName(layerName string) string {
	n := strings.Trim(unsafeName.ReplaceAllString(strings.ToLower(layerName), "_"), "_")
	if n == "" {
		return "layer"
	}
	if n[0] >= '0' && n[0] <= '9' {
		n = "l_" + n
	}
	return n
}

func pgType(t feature.FieldType) string {
	switch t {
	case feature.TypeInteger:
		return "integer"
	case feature.TypeInteger64:
		return "bigint"
	case feature.TypeReal:
		return "double precision"
	case feature.TypeDate:
		return "date"
	case feature.TypeDateTime:
		return "timestamptz"
	case feature.TypeBinary:
		return "bytea"
	}
	return "text"
}

// columnName keeps attribute columns clear of the fid and geom columns.
func columnName(field string) string {
	switch strings.ToLower(field) {
	case "fid", "geom":
		return "attr_" + field
	}
	return field
}

// columns returns the target column list: fid, attributes, geom.
func columns(s *feature.Schema) []string {
	cols := []string{"fid"}
	for _, fd := range s.Fields() {
		cols = append(cols, columnName(fd.Name))
	}
	return append(cols, "geom")
}

// CreateTableSQL returns the DDL for a layer's target table.
func CreateTableSQL(target pgx.Identifier, s *feature.Schema) string {
	defs := []string{"fid bigint PRIMARY KEY"}
	for _, fd := range s.Fields() {
		defs = append(defs, pgx.Identifier{columnName(fd.Name)}.Sanitize()+" "+pgType(fd.Type))
	}
	defs = append(defs, fmt.Sprintf("geom geometry(Geometry, %d)", SRID))
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", target.Sanitize(), strings.Join(defs, ", "))
}

const statusDDL = `
	CREATE TABLE IF NOT EXISTS %s.export_status (
		source      TEXT NOT NULL,
		layer       TEXT NOT NULL,
		target      TEXT NOT NULL,
		row_count   BIGINT NOT NULL,
		exported_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		duration_ms INTEGER,
		PRIMARY KEY (source, layer)
	)`

// EnsureSchema creates the target schema and its export_status table.
func EnsureSchema(ctx context.Context, pool db.Pool, schema string) error {
	if schema == "" {
		schema = DefaultSchema
	}
	q := pgx.Identifier{schema}.Sanitize()
	if _, err := pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+q); err != nil {
		return eris.Wrapf(err, "export: create schema %s", schema)
	}
	if _, err := pool.Exec(ctx, fmt.Sprintf(statusDDL, q)); err != nil {
		return eris.Wrap(err, "export: create export_status")
	}
	return nil
}

// ToPostGIS creates the target table if needed and loads every feature of
// l through COPY in batches. The schema must already exist (EnsureSchema).
func ToPostGIS(ctx context.Context, pool db.Pool, l *layer.Layer, opts Options) (Result, error) {
	if opts.Schema == "" {
		opts.Schema = DefaultSchema
	}
	if opts.Table == "" {
		opts.Table = TableName(l.Name())
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = db.DefaultBatchSize
	}
	target := pgx.Identifier{opts.Schema, opts.Table}
	res := Result{Source: opts.Source, Layer: l.Path(), Table: opts.Schema + "." + opts.Table}

	log := zap.L().With(
		zap.String("component", "export.postgis"),
		zap.String("layer", l.Path()),
		zap.String("table", res.Table),
	)
	start := time.Now()

	if _, err := pool.Exec(ctx, CreateTableSQL(target, l.Schema())); err != nil {
		return res, eris.Wrapf(err, "export: create %s", res.Table)
	}

	cols := columns(l.Schema())
	flush := func(batch [][]any) error {
		var n int64
		var err error
		if opts.Upsert {
			n, err = db.BulkUpsert(ctx, pool, db.UpsertConfig{
				Table: target, Columns: cols, ConflictKeys: []string{"fid"},
			}, batch)
		} else {
			n, err = db.CopyFrom(ctx, pool, target, cols, batch)
		}
		if err != nil {
			return err
		}
		res.Rows += n
		log.Debug("batch exported", zap.Int64("rows", n))
		return nil
	}

	batch := make([][]any, 0, opts.BatchSize)
	it := l.Iterate()
	for it.Next(ctx) {
		row, err := toRow(it.Feature())
		if err != nil {
			return res, err
		}
		batch = append(batch, row)
		if len(batch) == opts.BatchSize {
			if err := flush(batch); err != nil {
				return res, err
			}
			batch = batch[:0]
		}
	}
	if err := it.Err(); err != nil {
		return res, eris.Wrapf(err, "export: read %s", l.Path())
	}
	if len(batch) > 0 {
		if err := flush(batch); err != nil {
			return res, err
		}
	}

	res.Duration = time.Since(start)
	if err := recordExport(ctx, pool, opts.Schema, res); err != nil {
		log.Warn("failed to record export status", zap.Error(err))
	}
	log.Info("layer exported", zap.Int64("rows", res.Rows), zap.Duration("duration", res.Duration))
	return res, nil
}

func toRow(f *feature.Feature) ([]any, error) {
	shape, err := encodeEWKB(f.Geometry)
	if err != nil {
		return nil, err
	}
	row := make([]any, 0, f.Schema().NumFields()+2)
	row = append(row, f.FID)
	row = append(row, f.Values()...)
	return append(row, shape), nil
}

func recordExport(ctx context.Context, pool db.Pool, schema string, r Result) error {
	_, err := pool.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s.export_status (source, layer, target, row_count, duration_ms)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (source, layer) DO UPDATE SET
			target = EXCLUDED.target,
			row_count = EXCLUDED.row_count,
			exported_at = now(),
			duration_ms = EXCLUDED.duration_ms`, pgx.Identifier{schema}.Sanitize()),
		r.Source, r.Layer, r.Table, r.Rows, int(r.Duration.Milliseconds()),
	)
	if err != nil {
		return eris.Wrap(err, "export: record export status")
	}
	return nil
}

// Status lists featsource.export_status.
func Status(ctx context.Context, pool db.Pool, schema string) ([]StatusRow, error) {
	if schema == "" {
		schema = DefaultSchema
	}
	rows, err := pool.Query(ctx, fmt.Sprintf(`
		SELECT source, layer, target, row_count, exported_at, COALESCE(duration_ms, 0)
		FROM %s.export_status
		ORDER BY source, layer`, pgx.Identifier{schema}.Sanitize()))
	if err != nil {
		return nil, eris.Wrap(err, "export: query export status")
	}
	defer rows.Close()

	var out []StatusRow
	for rows.Next() {
		var sr StatusRow
		if err := rows.Scan(&sr.Source, &sr.Layer, &sr.Target, &sr.RowCount, &sr.ExportedAt, &sr.DurationMs); err != nil {
			return nil, eris.Wrap(err, "export: scan export status row")
		}
		out = append(out, sr)
	}
	return out, rows.Err()
}
