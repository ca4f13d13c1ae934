package memstore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/featsource/internal/layer"
)

const sample = `
name: sample
containers:
  - name: hydro
    type: group
    children:
      - name: rivers
        type: table
        geometry: multilinestring
        fields: [{name: name, type: string}]
        rows:
          - {fid: 2, values: {name: Snake}, geometry: "MULTILINESTRING ((0 0, 1 1))"}
          - {fid: 1, values: {name: Green}}
  - {name: wells, type: table}
`

func sampleStore(t *testing.T) *Store {
	t.Helper()
	m, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)
	s, err := New(m)
	require.NoError(t, err)
	return s
}

func TestParse_DefaultsTypes(t *testing.T) {
	m, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)
	assert.Equal(t, DefaultTypes, m.Types)
	assert.Equal(t, "sample", m.Name)
}

func TestParse_RejectsUnknownKeys(t *testing.T) {
	_, err := Parse(strings.NewReader("name: x\nbogus: 1\n"))
	require.Error(t, err)
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))
	m, err := ParseFile(path)
	require.NoError(t, err)
	assert.Len(t, m.Containers, 2)

	_, err = ParseFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestNew_BadGeometry(t *testing.T) {
	_, err := New(Manifest{Containers: []Node{{
		Name: "x", Type: "table",
		Rows: []RowSpec{{FID: 1, Geometry: "POINT (oops"}},
	}}})
	require.Error(t, err)
}

func TestNew_DuplicatePath(t *testing.T) {
	_, err := New(Manifest{Containers: []Node{{Name: "x"}, {Name: "x"}}})
	require.Error(t, err)
}

func TestChildren_FiltersByType(t *testing.T) {
	s := sampleStore(t)
	ctx := context.Background()

	groups, err := s.Children(ctx, "group", layer.Root)
	require.NoError(t, err)
	assert.Equal(t, []string{`\hydro`}, groups)

	tables, err := s.Children(ctx, "table", layer.Root)
	require.NoError(t, err)
	assert.Equal(t, []string{`\wells`}, tables)

	nested, err := s.Children(ctx, "table", `\hydro`)
	require.NoError(t, err)
	assert.Equal(t, []string{`\hydro\rivers`}, nested)

	_, err = s.Children(ctx, "table", `\nope`)
	require.Error(t, err)
}

func TestTable_ReadsInFIDOrder(t *testing.T) {
	s := sampleStore(t)
	ctx := context.Background()

	tbl, _, err := s.OpenContainer(ctx, `\hydro\rivers`)
	require.NoError(t, err)
	mt := tbl.(*Table)

	fid, ok, err := mt.NextFID(ctx, -1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1), fid)

	row, err := mt.ReadRow(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []any{"Snake"}, row.Values)
	_, isMulti := row.Geometry.(*geom.MultiLineString)
	assert.True(t, isMulti)

	_, ok, err = mt.NextFID(ctx, 2)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, 1, s.LiveHandles())
	require.NoError(t, mt.Close())
	require.NoError(t, mt.Close())
	assert.Equal(t, 0, s.LiveHandles())
}

func TestDeleteContainer(t *testing.T) {
	s := sampleStore(t)
	ctx := context.Background()

	require.NoError(t, s.DeleteContainer(ctx, `\hydro\rivers`))
	assert.False(t, s.Has(`\hydro\rivers`))
	nested, err := s.Children(ctx, "table", `\hydro`)
	require.NoError(t, err)
	assert.Empty(t, nested)

	require.Error(t, s.DeleteContainer(ctx, `\hydro\rivers`))
}
