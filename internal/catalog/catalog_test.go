package catalog_test

import (
	"context"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/featsource/internal/catalog"
	"github.com/sells-group/featsource/internal/diag"
	"github.com/sells-group/featsource/internal/feature"
	"github.com/sells-group/featsource/internal/memstore"
)

func newStore(t *testing.T, manifest string) *memstore.Store {
	t.Helper()
	m, err := memstore.Parse(strings.NewReader(manifest))
	require.NoError(t, err)
	s, err := memstore.New(m)
	require.NoError(t, err)
	return s
}

func paths(c *catalog.Catalog) []string {
	var out []string
	for _, l := range c.Layers() {
		out = append(out, l.Path())
	}
	return out
}

const nestedManifest = `
name: nested
types: [table]
containers:
  - name: A
    type: table
    fields: [{name: v, type: string}]
  - name: B
    type: table
    children:
      - {name: B1, type: table, fields: [{name: v, type: integer}]}
      - {name: B2, type: table, fail_open: true}
`

func TestOpen_FlattensNestingAndSkipsFailedLeaves(t *testing.T) {
	s := newStore(t, nestedManifest)
	rec := &diag.Recorder{}
	c := catalog.New(s, "nested", catalog.WithSink(rec))

	require.NoError(t, c.Open(context.Background()))
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, []string{`\A`, `\B\B1`}, paths(c))
	assert.Equal(t, []string{`\A`, `\B\B1`, `\B\B2`}, s.Attempts())
	assert.Equal(t, 2, s.LiveHandles())

	assert.Equal(t, 1, rec.Count(diag.SeverityFailure))
	assert.Equal(t, catalog.Stats{Groups: 1, Attempted: 3, Opened: 2, Failed: 1}, c.Stats())

	l, ok := c.Layer(1)
	require.True(t, ok)
	assert.Equal(t, "B1", l.Name())

	i, byName, ok := c.LayerByName("A")
	require.True(t, ok)
	assert.Equal(t, 0, i)
	assert.Equal(t, `\A`, byName.Path())

	require.NoError(t, c.Close())
	assert.Equal(t, 0, s.LiveHandles())
}

func TestOpen_EmptyStoreFails(t *testing.T) {
	s := newStore(t, "name: empty\n")
	c := catalog.New(s, "empty", catalog.WithSink(diag.Nop{}))

	err := c.Open(context.Background())
	require.Error(t, err)
	assert.Equal(t, feature.KindNotFound, feature.KindOf(err))
	assert.Equal(t, 0, c.Len())
}

func TestOpen_AllLeavesFail(t *testing.T) {
	s := newStore(t, `
containers:
  - {name: X, type: table, fail_open: true}
  - {name: Y, type: table, fail_schema: true}
`)
	c := catalog.New(s, "bad", catalog.WithSink(diag.Nop{}))

	require.Error(t, c.Open(context.Background()))
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, 0, s.LiveHandles())
}

func TestOpen_SchemaFailureReleasesHandle(t *testing.T) {
	s := newStore(t, `
containers:
  - {name: ok, type: table, fields: [{name: a, type: string}]}
  - {name: corrupt, type: table, fail_schema: true}
`)
	rec := &diag.Recorder{}
	c := catalog.New(s, "leak", catalog.WithSink(rec))

	require.NoError(t, c.Open(context.Background()))
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, 1, s.LiveHandles())

	events := rec.Events()
	require.Len(t, events, 1)
	assert.Equal(t, feature.KindSchema, events[0].Code)
	assert.Contains(t, events[0].Message, `\corrupt`)
}

func TestOpen_RootFailureAborts(t *testing.T) {
	s := newStore(t, nestedManifest)
	s.FailRoot()
	c := catalog.New(s, "root", catalog.WithSink(diag.Nop{}))

	err := c.Open(context.Background())
	assert.Equal(t, feature.KindNativeCall, feature.KindOf(err))
	assert.Empty(t, s.Attempts())
}

func TestOpen_ContainerTypesFailure(t *testing.T) {
	s := newStore(t, "fail_types: true\n")
	c := catalog.New(s, "types", catalog.WithSink(diag.Nop{}))

	err := c.Open(context.Background())
	assert.Equal(t, feature.KindNativeCall, feature.KindOf(err))
}

func TestOpen_GroupListingFailureIsNotALeaf(t *testing.T) {
	s := newStore(t, `
types: [table]
containers:
  - {name: A, type: table}
  - name: G
    type: table
    fail_children: true
    children:
      - {name: G1, type: table}
`)
	rec := &diag.Recorder{}
	c := catalog.New(s, "enum", catalog.WithSink(rec))

	require.NoError(t, c.Open(context.Background()))
	assert.Equal(t, []string{`\A`}, paths(c))
	assert.Equal(t, []string{`\A`}, s.Attempts())
	assert.Equal(t, 1, rec.Count(diag.SeverityFailure))
}

func TestOpen_MaxDepth(t *testing.T) {
	s := newStore(t, nestedManifest)
	c := catalog.New(s, "depth", catalog.WithSink(diag.Nop{}), catalog.WithMaxDepth(1))

	require.NoError(t, c.Open(context.Background()))
	assert.Equal(t, []string{`\A`}, paths(c))
}

func TestOpen_Twice(t *testing.T) {
	s := newStore(t, nestedManifest)
	c := catalog.New(s, "twice", catalog.WithSink(diag.Nop{}))
	require.NoError(t, c.Open(context.Background()))

	err := c.Open(context.Background())
	assert.Equal(t, feature.KindState, feature.KindOf(err))

	require.NoError(t, c.Close())
	err = c.Open(context.Background())
	assert.Equal(t, feature.KindState, feature.KindOf(err))
}

func TestLayer_OutOfRange(t *testing.T) {
	s := newStore(t, nestedManifest)
	c := catalog.New(s, "range", catalog.WithSink(diag.Nop{}))
	require.NoError(t, c.Open(context.Background()))

	for _, i := range []int{-1, 2, 100} {
		l, ok := c.Layer(i)
		assert.False(t, ok)
		assert.Nil(t, l)
	}
	_, _, ok := c.LayerByName("nope")
	assert.False(t, ok)
}

const flatManifest = `
types: [table]
containers:
  - {name: L0, type: table}
  - {name: L1, type: table}
  - {name: L2, type: table}
`

func TestRemoveLayer_ShiftsIndices(t *testing.T) {
	s := newStore(t, flatManifest)
	c := catalog.New(s, "rm", catalog.WithSink(diag.Nop{}), catalog.WithUpdate(true))
	require.NoError(t, c.Open(context.Background()))
	require.True(t, c.TestCapability(catalog.CapDeleteLayer))

	require.NoError(t, c.RemoveLayer(context.Background(), 1))
	assert.Equal(t, []string{`\L0`, `\L2`}, paths(c))
	assert.False(t, s.Has(`\L1`))
	assert.Equal(t, 2, s.LiveHandles())

	l, ok := c.Layer(1)
	require.True(t, ok)
	assert.Equal(t, "L2", l.Name())
}

func TestRemoveLayer_InvalidIndexLeavesSequence(t *testing.T) {
	s := newStore(t, flatManifest)
	c := catalog.New(s, "rm", catalog.WithSink(diag.Nop{}), catalog.WithUpdate(true))
	require.NoError(t, c.Open(context.Background()))

	for _, i := range []int{-1, 3} {
		err := c.RemoveLayer(context.Background(), i)
		assert.Equal(t, feature.KindBounds, feature.KindOf(err))
	}
	assert.Equal(t, 3, c.Len())
	assert.Equal(t, 3, s.LiveHandles())
}

func TestRemoveLayer_ReadOnlyCatalogKeepsContainer(t *testing.T) {
	s := newStore(t, flatManifest)
	rec := &diag.Recorder{}
	c := catalog.New(s, "ro", catalog.WithSink(rec))
	require.NoError(t, c.Open(context.Background()))
	assert.False(t, c.TestCapability(catalog.CapDeleteLayer))
	assert.False(t, c.TestCapability(catalog.CapCreateLayer))

	err := c.RemoveLayer(context.Background(), 0)
	assert.Equal(t, feature.KindUnsupported, feature.KindOf(err))
	assert.Equal(t, []string{`\L1`, `\L2`}, paths(c))
	assert.True(t, s.Has(`\L0`))
	assert.Equal(t, 2, s.LiveHandles())

	events := rec.Events()
	require.Len(t, events, 1)
	assert.Equal(t, diag.SeverityWarning, events[0].Severity)
	assert.Contains(t, events[0].Message, "L0 was not deleted however it has been closed")
}

type refusingStore struct {
	*memstore.Store
}

func (refusingStore) DeleteContainer(context.Context, string) error {
	return eris.New("container is locked")
}

func TestRemoveLayer_NativeDeleteFailure(t *testing.T) {
	s := newStore(t, flatManifest)
	rec := &diag.Recorder{}
	c := catalog.New(refusingStore{s}, "locked", catalog.WithSink(rec), catalog.WithUpdate(true))
	require.NoError(t, c.Open(context.Background()))

	err := c.RemoveLayer(context.Background(), 2)
	assert.Equal(t, feature.KindNativeCall, feature.KindOf(err))
	assert.Equal(t, 2, c.Len())
	assert.True(t, s.Has(`\L2`))
	assert.Equal(t, 1, rec.Count(diag.SeverityWarning))
}

func TestClose_ReleasesEverything(t *testing.T) {
	s := newStore(t, `
containers:
  - {name: a, type: table, fail_close: true}
  - {name: b, type: table}
`)
	c := catalog.New(s, "close", catalog.WithSink(diag.Nop{}))
	require.NoError(t, c.Open(context.Background()))
	require.Equal(t, 2, s.LiveHandles())

	err := c.Close()
	require.Error(t, err)
	assert.Equal(t, 0, s.LiveHandles())
	assert.Equal(t, 0, c.Len())
	require.NoError(t, c.Close())
}
