// Package layer binds one native record container to a portable schema and
// mediates feature reads and writes against it.
package layer

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/featsource/internal/feature"
)

// Capability names accepted by Layer.TestCapability.
const (
	CapRandomRead      = "RandomRead"
	CapSequentialWrite = "SequentialWrite"
)

// Table is an owned native record container handle.
type Table interface {
	// NextFID returns the smallest record id strictly greater than after.
	// ok is false once the container is exhausted.
	NextFID(ctx context.Context, after int64) (fid int64, ok bool, err error)
	Close() error
}

// Writable is implemented by tables that can report whether they accept
// new records.
type Writable interface {
	Writable() bool
}

// Codec is the schema-and-record strategy for a family of tables. A layer
// calls Schema exactly once, at construction.
type Codec interface {
	Schema(ctx context.Context, t Table, name string) (*feature.Schema, error)
	Decode(ctx context.Context, t Table, s *feature.Schema, fid int64) (*feature.Feature, error)
	Encode(ctx context.Context, t Table, s *feature.Schema, f *feature.Feature) (int64, error)
}

// Layer is a fully initialized adapter: it owns its table and an immutable
// schema. There is no partially constructed Layer.
type Layer struct {
	path   string
	table  Table
	codec  Codec
	schema *feature.Schema
	closed bool
}

// New adopts table and derives the schema through codec. The caller gives
// up table on entry: on failure New closes it before returning.
func New(ctx context.Context, table Table, codec Codec, path string) (*Layer, error) {
	if table == nil {
		return nil, feature.Errorf(feature.KindState, nil, "layer: %s has no table", path)
	}
	if codec == nil {
		closeTable(table, path)
		return nil, feature.Errorf(feature.KindSchema, nil, "layer: %s has no codec", path)
	}

	schema, err := codec.Schema(ctx, table, NameOf(path))
	if err != nil {
		closeTable(table, path)
		if feature.KindOf(err) == feature.KindUnknown {
			return nil, feature.Errorf(feature.KindSchema, err, "layer: derive schema for %s", path)
		}
		return nil, err
	}

	return &Layer{path: path, table: table, codec: codec, schema: schema}, nil
}

func closeTable(t Table, path string) {
	if err := t.Close(); err != nil {
		zap.L().Warn("layer: release table after failed init",
			zap.String("path", path),
			zap.Error(err),
		)
	}
}

// Root is the top of every store namespace.
const Root = `\`

// Join appends name to a backslash-separated container path.
func Join(parent, name string) string {
	if parent == "" || parent == Root {
		return Root + name
	}
	return strings.TrimRight(parent, Root) + Root + name
}

// NameOf returns the last segment of a backslash-separated container path.
func NameOf(path string) string {
	trimmed := strings.TrimRight(path, `\`)
	if i := strings.LastIndex(trimmed, `\`); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}

// Path returns the container identifier in the store namespace.
func (l *Layer) Path() string { return l.path }

// Name returns the last path segment.
func (l *Layer) Name() string { return l.schema.Name() }

// Schema returns the immutable schema derived at construction.
func (l *Layer) Schema() *feature.Schema { return l.schema }

// Table exposes the owned native handle for collaborators that must act on
// the same container, such as the catalog during deletion. The layer keeps
// ownership.
func (l *Layer) Table() Table { return l.table }

// Feature reads and decodes one record. Either every field decodes or an
// error is returned with no feature.
func (l *Layer) Feature(ctx context.Context, fid int64) (*feature.Feature, error) {
	if l.closed {
		return nil, feature.Errorf(feature.KindState, nil, "layer: %s is closed", l.path)
	}
	f, err := l.codec.Decode(ctx, l.table, l.schema, fid)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// CreateFeature appends f and returns the FID assigned by the store. f must
// have been built on this layer's schema.
func (l *Layer) CreateFeature(ctx context.Context, f *feature.Feature) (int64, error) {
	if l.closed {
		return 0, feature.Errorf(feature.KindState, nil, "layer: %s is closed", l.path)
	}
	if f == nil || !l.schema.Equal(f.Schema()) {
		return 0, feature.Errorf(feature.KindSchema, nil, "layer: feature schema does not match %s", l.path)
	}
	if !l.TestCapability(CapSequentialWrite) {
		return 0, feature.Errorf(feature.KindUnsupported, nil, "layer: %s does not accept new features", l.path)
	}
	fid, err := l.codec.Encode(ctx, l.table, l.schema, f)
	if err != nil {
		return 0, err
	}
	f.FID = fid
	return fid, nil
}

// NewFeature returns an empty feature bound to this layer's schema.
func (l *Layer) NewFeature() *feature.Feature {
	return feature.New(l.schema)
}

// TestCapability reports whether the layer supports a named capability.
func (l *Layer) TestCapability(name string) bool {
	switch name {
	case CapRandomRead:
		return true
	case CapSequentialWrite:
		w, ok := l.table.(Writable)
		return ok && w.Writable()
	}
	return false
}

// Iterate returns an iterator over all features in FID order.
func (l *Layer) Iterate() *Iterator {
	return &Iterator{layer: l, last: -1}
}

// Close releases the owned table. It is safe to call more than once.
func (l *Layer) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true
	if err := l.table.Close(); err != nil {
		return feature.Errorf(feature.KindNativeCall, err, "layer: close %s", l.path)
	}
	return nil
}
