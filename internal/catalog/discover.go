package catalog

import (
	"context"
	"fmt"

	"github.com/sells-group/featsource/internal/diag"
	"github.com/sells-group/featsource/internal/feature"
	"github.com/sells-group/featsource/internal/layer"
)

// walkRoot enumerates the root namespace. Any failure here aborts Open;
// everything beneath the root is walked by walkNode, which cannot fail.
func (c *Catalog) walkRoot(ctx context.Context, types []string) error {
	for _, typ := range types {
		children, err := c.store.Children(ctx, typ, Root)
		if err != nil {
			return feature.Errorf(feature.KindNativeCall, err, "catalog: list %s containers under root of %s", typ, c.name)
		}
		for _, child := range children {
			if child == Root {
				continue
			}
			c.walkNode(ctx, types, child, 1)
		}
	}
	return nil
}

// walkNode visits a non-root path. A path with children under any type is a
// group and is only recursed into; a path with no children under every type
// is a leaf and is opened. Failures are reported and counted, never
// returned.
func (c *Catalog) walkNode(ctx context.Context, types []string, path string, depth int) {
	if depth > c.maxDepth {
		c.stats.Failed++
		c.report(diag.SeverityFailure, feature.KindSchema,
			fmt.Sprintf("catalog: %s exceeds maximum depth %d", path, c.maxDepth), nil)
		return
	}

	childrenFound := false
	enumFailed := false
	for _, typ := range types {
		children, err := c.store.Children(ctx, typ, path)
		if err != nil {
			enumFailed = true
			c.report(diag.SeverityFailure, feature.KindNativeCall,
				fmt.Sprintf("catalog: error listing %s containers under %s", typ, path), err)
			continue
		}
		for _, child := range children {
			if child == path {
				continue
			}
			childrenFound = true
			c.walkNode(ctx, types, child, depth+1)
		}
	}

	if childrenFound {
		c.stats.Groups++
		return
	}
	if enumFailed {
		// Without a complete listing the path cannot be classified as a leaf.
		c.stats.Failed++
		return
	}
	c.openLeaf(ctx, path)
}

// openLeaf opens one leaf container and builds its layer. Ownership of the
// native handle passes to layer.New, which releases it on failure.
func (c *Catalog) openLeaf(ctx context.Context, path string) {
	c.stats.Attempted++

	table, codec, err := c.store.OpenContainer(ctx, path)
	if err != nil {
		c.stats.Failed++
		c.report(diag.SeverityFailure, feature.KindNativeCall, "catalog: error opening "+path, err)
		return
	}

	l, err := layer.New(ctx, table, codec, path)
	if err != nil {
		c.stats.Failed++
		c.report(diag.SeverityFailure, feature.KindOf(err), "catalog: error initializing layer for "+path, err)
		return
	}

	c.stats.Opened++
	c.layers = append(c.layers, l)
}
