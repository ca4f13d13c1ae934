package layer

import (
	"context"

	"github.com/sells-group/featsource/internal/feature"
)

// Iterator walks a layer's features in FID order.
//
//	it := l.Iterate()
//	for it.Next(ctx) {
//		f := it.Feature()
//	}
//	if err := it.Err(); err != nil { ... }
type Iterator struct {
	layer *Layer
	last  int64
	cur   *feature.Feature
	err   error
	done  bool
}

// Next advances to the next feature. It returns false at the end or on the
// first error.
func (it *Iterator) Next(ctx context.Context) bool {
	if it.done {
		return false
	}
	if it.layer.closed {
		it.fail(feature.Errorf(feature.KindState, nil, "layer: %s is closed", it.layer.path))
		return false
	}

	fid, ok, err := it.layer.table.NextFID(ctx, it.last)
	if err != nil {
		it.fail(feature.Errorf(feature.KindNativeCall, err, "layer: advance %s", it.layer.path))
		return false
	}
	if !ok {
		it.done = true
		it.cur = nil
		return false
	}

	f, err := it.layer.Feature(ctx, fid)
	if err != nil {
		it.fail(err)
		return false
	}
	it.last = fid
	it.cur = f
	return true
}

func (it *Iterator) fail(err error) {
	it.err = err
	it.done = true
	it.cur = nil
}

// Feature returns the current feature.
func (it *Iterator) Feature() *feature.Feature { return it.cur }

// Err returns the error that stopped iteration, if any.
func (it *Iterator) Err() error { return it.err }

// Reset restarts iteration from the first feature.
func (it *Iterator) Reset() {
	it.last = -1
	it.cur = nil
	it.err = nil
	it.done = false
}
