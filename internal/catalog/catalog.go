// Package catalog discovers record containers in a native store, flattens
// any nesting, and exposes one layer adapter per leaf container, addressed
// by index.
package catalog

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/featsource/internal/diag"
	"github.com/sells-group/featsource/internal/feature"
	"github.com/sells-group/featsource/internal/layer"
)

// Root is the namespace path discovery starts from.
const Root = layer.Root

// Capability names accepted by Catalog.TestCapability.
const (
	CapCreateLayer = "CreateLayer"
	CapDeleteLayer = "DeleteLayer"
)

const defaultMaxDepth = 32

// Store is the native store connection a catalog discovers containers in.
type Store interface {
	// ContainerTypes lists every discoverable container type.
	ContainerTypes(ctx context.Context) ([]string, error)
	// Children lists the full paths of containers of type typ directly
	// beneath parent.
	Children(ctx context.Context, typ, parent string) ([]string, error)
	// OpenContainer opens a leaf container. On error no handle is returned
	// and the store has released anything it acquired.
	OpenContainer(ctx context.Context, path string) (layer.Table, layer.Codec, error)
	Close() error
}

// Deleter is implemented by stores that can delete a container.
type Deleter interface {
	DeleteContainer(ctx context.Context, path string) error
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithUpdate opens the catalog for update, enabling container deletion on
// stores that support it.
func WithUpdate(update bool) Option {
	return func(c *Catalog) { c.update = update }
}

// WithSink routes diagnostics to sink instead of the global zap logger.
func WithSink(sink diag.Sink) Option {
	return func(c *Catalog) {
		if sink != nil {
			c.sink = sink
		}
	}
}

// WithMaxDepth bounds discovery recursion. Paths deeper than depth are
// reported and skipped.
func WithMaxDepth(depth int) Option {
	return func(c *Catalog) {
		if depth > 0 {
			c.maxDepth = depth
		}
	}
}

// Catalog owns a store connection and the ordered layers discovered in it.
// It is not safe for concurrent use; callers serialize access.
type Catalog struct {
	name     string
	store    Store
	layers   []*layer.Layer
	sink     diag.Sink
	update   bool
	maxDepth int
	opened   bool
	closed   bool
	stats    Stats
}

// Stats summarizes the last discovery walk.
type Stats struct {
	Groups    int
	Attempted int
	Opened    int
	Failed    int
}

// New returns an empty catalog that takes ownership of store. name is a
// label for diagnostics.
func New(store Store, name string, opts ...Option) *Catalog {
	c := &Catalog{
		name:     name,
		store:    store,
		sink:     diag.NewZapSink(nil),
		maxDepth: defaultMaxDepth,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Name returns the diagnostic label.
func (c *Catalog) Name() string { return c.name }

// Updatable reports whether the catalog was opened for update.
func (c *Catalog) Updatable() bool { return c.update }

// Stats returns counters from the discovery walk.
func (c *Catalog) Stats() Stats { return c.stats }

// Open discovers every leaf container and builds a layer for each. It
// succeeds when at least one layer was built; leaf failures are reported to
// the sink and do not stop the walk. Failures enumerating the root abort.
func (c *Catalog) Open(ctx context.Context) error {
	if c.closed {
		return feature.Errorf(feature.KindState, nil, "catalog: %s is closed", c.name)
	}
	if c.opened {
		return feature.Errorf(feature.KindState, nil, "catalog: %s is already open", c.name)
	}
	c.opened = true

	log := zap.L().With(
		zap.String("component", "catalog.catalog"),
		zap.String("catalog", c.name),
	)

	types, err := c.store.ContainerTypes(ctx)
	if err != nil {
		return feature.Errorf(feature.KindNativeCall, err, "catalog: list container types of %s", c.name)
	}

	if err := c.walkRoot(ctx, types); err != nil {
		return err
	}

	log.Debug("discovery complete",
		zap.Int("groups", c.stats.Groups),
		zap.Int("attempted", c.stats.Attempted),
		zap.Int("opened", c.stats.Opened),
		zap.Int("failed", c.stats.Failed),
	)

	if len(c.layers) == 0 {
		return feature.Errorf(feature.KindNotFound, nil,
			"catalog: %s has no usable containers (%d attempted)", c.name, c.stats.Attempted)
	}
	return nil
}

// Len returns the number of layers.
func (c *Catalog) Len() int { return len(c.layers) }

// Layer returns the i-th layer, or false when i is out of range.
func (c *Catalog) Layer(i int) (*layer.Layer, bool) {
	if i < 0 || i >= len(c.layers) {
		return nil, false
	}
	return c.layers[i], true
}

// LayerByName returns the first layer whose name matches.
func (c *Catalog) LayerByName(name string) (int, *layer.Layer, bool) {
	for i, l := range c.layers {
		if l.Name() == name || l.Path() == name {
			return i, l, true
		}
	}
	return -1, nil, false
}

// Layers returns the layers in index order.
func (c *Catalog) Layers() []*layer.Layer {
	out := make([]*layer.Layer, len(c.layers))
	copy(out, c.layers)
	return out
}

// TestCapability reports whether the catalog supports a named mutating
// operation.
func (c *Catalog) TestCapability(name string) bool {
	switch name {
	case CapDeleteLayer:
		_, ok := c.store.(Deleter)
		return ok && c.update
	}
	return false
}

// Close closes every layer, then the store.
func (c *Catalog) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true

	var first error
	for _, l := range c.layers {
		if err := l.Close(); err != nil && first == nil {
			first = err
		}
	}
	c.layers = nil

	if err := c.store.Close(); err != nil && first == nil {
		first = feature.Errorf(feature.KindNativeCall, err, "catalog: close store %s", c.name)
	}
	return first
}

func (c *Catalog) report(sev diag.Severity, code feature.Kind, msg string, err error) {
	c.sink.Report(diag.Event{Severity: sev, Code: code, Message: msg, Err: err})
}
