package catalog

import (
	"context"
	"fmt"

	"github.com/sells-group/featsource/internal/diag"
	"github.com/sells-group/featsource/internal/feature"
)

// RemoveLayer closes the i-th layer, drops it from the sequence (later
// indices shift down by one) and then asks the store to delete the
// container.
//
// The in-memory removal always stands once i is valid. When the store
// cannot or will not delete the container, an error is still returned so the
// caller sees that the backing store kept it.
func (c *Catalog) RemoveLayer(ctx context.Context, i int) error {
	if i < 0 || i >= len(c.layers) {
		return feature.Errorf(feature.KindBounds, nil, "catalog: layer index %d out of range [0,%d)", i, len(c.layers))
	}

	l := c.layers[i]
	path := l.Path()
	name := l.Name()

	if err := l.Close(); err != nil {
		c.report(diag.SeverityWarning, feature.KindNativeCall, "catalog: error closing "+path, err)
	}
	c.layers = append(c.layers[:i], c.layers[i+1:]...)

	deleter, ok := c.store.(Deleter)
	if !ok || !c.update {
		c.report(diag.SeverityWarning, feature.KindUnsupported,
			fmt.Sprintf("catalog: %s was not deleted however it has been closed", name), nil)
		return feature.Errorf(feature.KindUnsupported, nil, "catalog: %s cannot delete %s", c.name, path)
	}

	if err := deleter.DeleteContainer(ctx, path); err != nil {
		c.report(diag.SeverityWarning, feature.KindNativeCall,
			fmt.Sprintf("catalog: %s was not deleted however it has been closed", name), err)
		return feature.Errorf(feature.KindNativeCall, err, "catalog: delete %s", path)
	}
	return nil
}
