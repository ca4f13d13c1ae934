package memstore

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkt"

	"github.com/sells-group/featsource/internal/layer"
)

// DefaultTypes is used when a manifest declares no container types.
var DefaultTypes = []string{"group", "table"}

// Store is an in-memory native store. It records every open attempt and
// tracks live handles so tests can assert ownership.
type Store struct {
	name      string
	types     []string
	failTypes bool
	failRoot  bool
	top       []*entry
	byPath    map[string]*entry
	live      int
	attempts  []string
}

type entry struct {
	path     string
	node     Node
	children []*entry
	rows     []*row
}

type row struct {
	fid    int64
	values map[string]any
	geom   geom.T
}

// New builds a store from a manifest.
func New(m Manifest) (*Store, error) {
	types := m.Types
	if len(types) == 0 {
		types = DefaultTypes
	}
	s := &Store{
		name:      m.Name,
		types:     types,
		failTypes: m.FailTypes,
		byPath:    make(map[string]*entry),
	}
	for _, n := range m.Containers {
		e, err := s.build(layer.Root, n)
		if err != nil {
			return nil, err
		}
		s.top = append(s.top, e)
	}
	return s, nil
}

// Name returns the manifest name.
func (s *Store) Name() string { return s.name }

// FailRoot makes every root child listing fail.
func (s *Store) FailRoot() { s.failRoot = true }

func (s *Store) build(parent string, n Node) (*entry, error) {
	if n.Name == "" {
		return nil, eris.Errorf("memstore: container under %s has no name", parent)
	}
	e := &entry{path: layer.Join(parent, n.Name), node: n}
	if _, dup := s.byPath[e.path]; dup {
		return nil, eris.Errorf("memstore: duplicate container %s", e.path)
	}
	s.byPath[e.path] = e

	for _, rs := range n.Rows {
		r := &row{fid: rs.FID, values: rs.Values}
		if rs.Geometry != "" {
			g, err := wkt.Unmarshal(rs.Geometry)
			if err != nil {
				return nil, eris.Wrapf(err, "memstore: parse geometry of %s fid %d", e.path, rs.FID)
			}
			r.geom = g
		}
		e.rows = append(e.rows, r)
	}
	sort.Slice(e.rows, func(i, j int) bool { return e.rows[i].fid < e.rows[j].fid })

	for _, c := range n.Children {
		ce, err := s.build(e.path, c)
		if err != nil {
			return nil, err
		}
		e.children = append(e.children, ce)
	}
	return e, nil
}

// ContainerTypes implements catalog.Store.
func (s *Store) ContainerTypes(context.Context) ([]string, error) {
	if s.failTypes {
		return nil, eris.New("memstore: container types unavailable")
	}
	out := make([]string, len(s.types))
	copy(out, s.types)
	return out, nil
}

// Children implements catalog.Store.
func (s *Store) Children(_ context.Context, typ, parent string) ([]string, error) {
	var list []*entry
	if parent == layer.Root {
		if s.failRoot {
			return nil, eris.New("memstore: root listing failed")
		}
		list = s.top
	} else {
		e, ok := s.byPath[parent]
		if !ok {
			return nil, eris.Errorf("memstore: no container %s", parent)
		}
		if e.node.FailChildren {
			return nil, eris.Errorf("memstore: listing %s failed", parent)
		}
		list = e.children
	}

	var out []string
	for _, e := range list {
		if e.node.Type == typ {
			out = append(out, e.path)
		}
	}
	return out, nil
}

// OpenContainer implements catalog.Store.
func (s *Store) OpenContainer(_ context.Context, path string) (layer.Table, layer.Codec, error) {
	s.attempts = append(s.attempts, path)
	e, ok := s.byPath[path]
	if !ok {
		return nil, nil, eris.Errorf("memstore: no container %s", path)
	}
	if e.node.FailOpen {
		return nil, nil, eris.Errorf("memstore: open %s failed", path)
	}
	s.live++
	return &Table{store: s, entry: e}, layer.DescriptorCodec{}, nil
}

// DeleteContainer implements catalog.Deleter.
func (s *Store) DeleteContainer(_ context.Context, path string) error {
	e, ok := s.byPath[path]
	if !ok {
		return eris.Errorf("memstore: no container %s", path)
	}
	delete(s.byPath, path)
	s.top = without(s.top, e)
	for _, p := range s.byPath {
		p.children = without(p.children, e)
	}
	return nil
}

func without(list []*entry, e *entry) []*entry {
	out := list[:0:0]
	for _, x := range list {
		if x != e {
			out = append(out, x)
		}
	}
	return out
}

// Close implements catalog.Store.
func (s *Store) Close() error { return nil }

// Attempts returns every path passed to OpenContainer, in call order.
func (s *Store) Attempts() []string {
	out := make([]string, len(s.attempts))
	copy(out, s.attempts)
	return out
}

// LiveHandles returns the number of tables opened and not yet closed.
func (s *Store) LiveHandles() int { return s.live }

// Has reports whether a container exists.
func (s *Store) Has(path string) bool {
	_, ok := s.byPath[path]
	return ok
}
