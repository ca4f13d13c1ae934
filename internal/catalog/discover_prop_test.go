package catalog_test

import (
	"context"
	"fmt"
	"sort"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/sells-group/featsource/internal/catalog"
	"github.com/sells-group/featsource/internal/diag"
	"github.com/sells-group/featsource/internal/layer"
	"github.com/sells-group/featsource/internal/memstore"
)

// treeBuilder turns a byte stream into a container tree so gopter can
// shrink trees through their seeds.
type treeBuilder struct {
	seeds []uint8
	pos   int
	leafs []string
	good  []string
}

func (b *treeBuilder) next() uint8 {
	if b.pos >= len(b.seeds) {
		return 0
	}
	v := b.seeds[b.pos]
	b.pos++
	return v
}

func (b *treeBuilder) children(parent string, depth int) []memstore.Node {
	n := int(b.next() % 4)
	out := make([]memstore.Node, 0, n)
	for i := 0; i < n; i++ {
		v := b.next()
		node := memstore.Node{Name: fmt.Sprintf("n%d_%d", depth, i), Type: "table"}
		path := layer.Join(parent, node.Name)
		if depth < 3 && v%3 == 0 {
			node.Type = "group"
			node.Children = b.children(path, depth+1)
		}
		if len(node.Children) == 0 {
			b.leafs = append(b.leafs, path)
			switch {
			case v%5 == 1:
				node.FailOpen = true
			case v%7 == 2:
				node.FailSchema = true
			default:
				b.good = append(b.good, path)
			}
		}
		out = append(out, node)
	}
	return out
}

func buildTree(seeds []uint8) (memstore.Manifest, *treeBuilder) {
	b := &treeBuilder{seeds: seeds}
	m := memstore.Manifest{Name: "prop", Types: memstore.DefaultTypes}
	m.Containers = b.children(layer.Root, 0)
	return m, b
}

func sorted(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestDiscoveryProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	open := func(seeds []uint8) (*catalog.Catalog, *memstore.Store, *treeBuilder, error) {
		m, b := buildTree(seeds)
		s, err := memstore.New(m)
		if err != nil {
			return nil, nil, nil, err
		}
		c := catalog.New(s, "prop", catalog.WithSink(diag.Nop{}))
		return c, s, b, c.Open(context.Background())
	}

	properties.Property("layers are exactly the leaves that initialize", prop.ForAll(
		func(seeds []uint8) bool {
			c, _, b, _ := open(seeds)
			if c == nil {
				return false
			}
			defer c.Close() //nolint:errcheck

			var got []string
			for _, l := range c.Layers() {
				got = append(got, l.Path())
			}
			return equalStrings(sorted(got), sorted(b.good))
		},
		gen.SliceOf(gen.UInt8()),
	))

	properties.Property("every leaf is attempted exactly once and no group is", prop.ForAll(
		func(seeds []uint8) bool {
			c, s, b, _ := open(seeds)
			if c == nil {
				return false
			}
			defer c.Close() //nolint:errcheck
			return equalStrings(sorted(s.Attempts()), sorted(b.leafs))
		},
		gen.SliceOf(gen.UInt8()),
	))

	properties.Property("open succeeds iff a layer was built", prop.ForAll(
		func(seeds []uint8) bool {
			c, _, _, err := open(seeds)
			if c == nil {
				return false
			}
			defer c.Close() //nolint:errcheck
			return (err == nil) == (c.Len() > 0)
		},
		gen.SliceOf(gen.UInt8()),
	))

	properties.Property("live handles match layers and drop to zero on close", prop.ForAll(
		func(seeds []uint8) bool {
			c, s, _, _ := open(seeds)
			if c == nil {
				return false
			}
			if s.LiveHandles() != c.Len() {
				return false
			}
			_ = c.Close()
			return s.LiveHandles() == 0
		},
		gen.SliceOf(gen.UInt8()),
	))

	properties.Property("remove shifts later indices down by one", prop.ForAll(
		func(seeds []uint8, pick uint8) bool {
			c, _, _, err := open(seeds)
			if c == nil {
				return false
			}
			defer c.Close() //nolint:errcheck
			if err != nil {
				return c.Len() == 0
			}
			before := c.Layers()
			i := int(pick) % len(before)
			_ = c.RemoveLayer(context.Background(), i)
			after := c.Layers()
			if len(after) != len(before)-1 {
				return false
			}
			for j := range after {
				want := before[j]
				if j >= i {
					want = before[j+1]
				}
				if after[j] != want {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.UInt8()),
		gen.UInt8(),
	))

	properties.TestingRun(t)
}
