package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdent(t *testing.T) {
	assert.Equal(t, pgx.Identifier{"gis", "roads"}, Ident("gis.roads"))
	assert.Equal(t, pgx.Identifier{"roads"}, Ident("roads"))
}

func TestCopyFrom_EmptyRows(t *testing.T) {
	n, err := CopyFrom(context.TODO(), nil, pgx.Identifier{"t"}, []string{"a"}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyFrom_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"gis", "roads"}, []string{"a"}).WillReturnError(fmt.Errorf("permission denied"))

	_, err = CopyFrom(context.Background(), mock, pgx.Identifier{"gis", "roads"}, []string{"a"}, [][]any{{1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO gis.roads")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyBatches(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	table := pgx.Identifier{"gis", "roads"}
	mock.ExpectCopyFrom(table, []string{"a", "b"}).WillReturnResult(2)
	mock.ExpectCopyFrom(table, []string{"a", "b"}).WillReturnResult(2)
	mock.ExpectCopyFrom(table, []string{"a", "b"}).WillReturnResult(1)

	rows := [][]any{{1, "x"}, {2, "y"}, {3, "z"}, {4, "w"}, {5, "v"}}
	n, err := CopyBatches(context.Background(), mock, table, []string{"a", "b"}, rows, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyBatches_PartialFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	table := pgx.Identifier{"roads"}
	mock.ExpectCopyFrom(table, []string{"a"}).WillReturnResult(2)
	mock.ExpectCopyFrom(table, []string{"a"}).WillReturnError(fmt.Errorf("disk full"))

	n, err := CopyBatches(context.Background(), mock, table, []string{"a"}, [][]any{{1}, {2}, {3}}, 2)
	require.Error(t, err)
	assert.Equal(t, int64(2), n)
	assert.Contains(t, err.Error(), "batch 2-3")
}

func TestBulkUpsert_Validation(t *testing.T) {
	n, err := BulkUpsert(context.Background(), nil, UpsertConfig{Table: pgx.Identifier{"t"}}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)

	_, err = BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:        pgx.Identifier{"t"},
		ConflictKeys: []string{"fid"},
	}, [][]any{{1}})
	assert.ErrorContains(t, err, "no columns specified")

	_, err = BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:   pgx.Identifier{"t"},
		Columns: []string{"fid"},
	}, [][]any{{1}})
	assert.ErrorContains(t, err, "no conflict keys specified")
}

func TestBulkUpsert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_gis_roads" \(LIKE "gis"."roads"`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_gis_roads"}, []string{"fid", "name"}).WillReturnResult(2)
	mock.ExpectExec(`ON CONFLICT \("fid"\) DO UPDATE SET "name" = EXCLUDED."name"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        pgx.Identifier{"gis", "roads"},
		Columns:      []string{"fid", "name"},
		ConflictKeys: []string{"fid"},
	}, [][]any{{1, "a"}, {2, "b"}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestBulkUpsert_KeysOnly(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_ids"}, []string{"fid"}).WillReturnResult(1)
	mock.ExpectExec(`ON CONFLICT \("fid"\) DO NOTHING`).WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectCommit()

	n, err := BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        pgx.Identifier{"ids"},
		Columns:      []string{"fid"},
		ConflictKeys: []string{"fid"},
	}, [][]any{{1}})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestQuoteAndJoin(t *testing.T) {
	assert.Equal(t, `"id", "name", "value"`, QuoteAndJoin([]string{"id", "name", "value"}))
}

func TestBulkUpsert_CopyFailureRollsBack(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_ids"}, []string{"fid"}).WillReturnError(fmt.Errorf("bad row"))
	mock.ExpectRollback()

	_, err = BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        pgx.Identifier{"ids"},
		Columns:      []string{"fid"},
		ConflictKeys: []string{"fid"},
	}, [][]any{{1}})
	assert.ErrorContains(t, err, "COPY into temp table for ids")
	assert.NoError(t, mock.ExpectationsWereMet())
}
