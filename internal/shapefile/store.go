// Package shapefile exposes a directory tree of ESRI shapefiles as a native
// store. Folders that hold shapefiles are groups and each .shp file is a
// leaf container.
package shapefile

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/featsource/internal/feature"
	"github.com/sells-group/featsource/internal/layer"
)

// Container types.
const (
	TypeFolder    = "Folder"
	TypeShapefile = "Shapefile"
)

// sidecars are the files that make up one shapefile besides the .shp.
var sidecars = []string{".shx", ".dbf", ".prj", ".cpg", ".sbn", ".sbx", ".qix", ".shp.xml"}

// Store is a directory of shapefiles.
type Store struct {
	root   string
	only   string
	update bool
	files  map[string]string
}

// Open returns a store rooted at path. path may be a directory or a single
// .shp file, in which case only that file is exposed.
func Open(path string, update bool) (*Store, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, eris.Wrapf(err, "shapefile: stat %s", path)
	}
	s := &Store{root: path, update: update, files: make(map[string]string)}
	if !info.IsDir() {
		if !strings.EqualFold(filepath.Ext(path), ".shp") {
			return nil, eris.Errorf("shapefile: %s is not a .shp file or directory", path)
		}
		s.root = filepath.Dir(path)
		s.only = filepath.Base(path)
	}
	return s, nil
}

// ContainerTypes implements catalog.Store.
func (s *Store) ContainerTypes(context.Context) ([]string, error) {
	return []string{TypeFolder, TypeShapefile}, nil
}

func (s *Store) dirOf(parent string) string {
	rel := strings.Trim(parent, `\`)
	if rel == "" {
		return s.root
	}
	return filepath.Join(s.root, filepath.FromSlash(strings.ReplaceAll(rel, `\`, "/")))
}

// Children implements catalog.Store.
func (s *Store) Children(_ context.Context, typ, parent string) ([]string, error) {
	if _, ok := s.files[parent]; ok {
		return nil, nil
	}
	dir := s.dirOf(parent)
	info, err := os.Stat(dir)
	if err != nil {
		return nil, feature.Errorf(feature.KindNotFound, err, "shapefile: no container %s", parent)
	}
	if !info.IsDir() {
		return nil, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "shapefile: read %s", dir)
	}

	var out []string
	for _, e := range entries {
		name := e.Name()
		switch typ {
		case TypeFolder:
			if s.only != "" || !e.IsDir() || !holdsShapefiles(filepath.Join(dir, name)) {
				continue
			}
			out = append(out, layer.Join(parent, name))
		case TypeShapefile:
			if e.IsDir() || !strings.EqualFold(filepath.Ext(name), ".shp") {
				continue
			}
			if s.only != "" && name != s.only {
				continue
			}
			p := layer.Join(parent, strings.TrimSuffix(name, filepath.Ext(name)))
			s.files[p] = filepath.Join(dir, name)
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out, nil
}

func holdsShapefiles(dir string) bool {
	found := false
	_ = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(d.Name()), ".shp") {
			found = true
			return filepath.SkipAll
		}
		return nil
	})
	return found
}

func (s *Store) fileOf(path string) string {
	if f, ok := s.files[path]; ok {
		return f
	}
	return s.dirOf(path) + ".shp"
}

// OpenContainer implements catalog.Store. The whole file is read up front.
func (s *Store) OpenContainer(_ context.Context, path string) (layer.Table, layer.Codec, error) {
	t, err := load(path, s.fileOf(path))
	if err != nil {
		return nil, nil, err
	}
	zap.L().Debug("shapefile: opened",
		zap.String("component", "shapefile.store"),
		zap.String("path", path),
		zap.Int("records", len(t.shapes)),
	)
	return t, layer.DescriptorCodec{}, nil
}

// DeleteContainer implements catalog.Deleter. The .shp and every sidecar
// with the same base name are removed.
func (s *Store) DeleteContainer(_ context.Context, path string) error {
	if !s.update {
		return feature.Errorf(feature.KindUnsupported, nil, "shapefile: %s is read-only", s.root)
	}
	file := s.fileOf(path)
	if _, err := os.Stat(file); err != nil {
		return feature.Errorf(feature.KindNotFound, err, "shapefile: no container %s", path)
	}

	dir := filepath.Dir(file)
	base := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	entries, err := os.ReadDir(dir)
	if err != nil {
		return eris.Wrapf(err, "shapefile: read %s", dir)
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !isPart(name, base) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			return eris.Wrapf(err, "shapefile: remove %s", name)
		}
	}
	delete(s.files, path)
	return nil
}

func isPart(name, base string) bool {
	if len(name) <= len(base) || !strings.EqualFold(name[:len(base)], base) {
		return false
	}
	ext := strings.ToLower(name[len(base):])
	if ext == ".shp" {
		return true
	}
	for _, sc := range sidecars {
		if ext == sc {
			return true
		}
	}
	return false
}

// Close implements catalog.Store.
func (s *Store) Close() error { return nil }
