// Package tiger reads and appends legacy TIGER/Line record type files.
// Each county module (TGRsscccc) is a group; its record types are leaves.
package tiger

import (
	"context"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/sells-group/featsource/internal/feature"
	"github.com/sells-group/featsource/internal/layer"
)

// Container types reported by the store.
const (
	TypeModule     = "Module"
	TypeRecordType = "RecordType"
)

const landmarksExt = ".RT7"

// Options configures a Store.
type Options struct {
	Update bool
	// Charset of alpha fields; ISO-8859-1 when empty.
	Charset string
	// DefaultVersion applies to empty files, which carry no version code.
	DefaultVersion Version
}

// Store is a directory of TIGER/Line record type files.
type Store struct {
	fs      afero.Fs
	dir     string
	opts    fileOptions
	modules map[string]string // module -> file name
}

// NewStore scans dir for record type 7 files.
func NewStore(fs afero.Fs, dir string, opts Options) (*Store, error) {
	cs, err := CharsetByName(opts.Charset)
	if err != nil {
		return nil, err
	}
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, eris.Wrapf(err, "tiger: read directory %s", dir)
	}

	s := &Store{
		fs:  fs,
		dir: dir,
		opts: fileOptions{
			update:         opts.Update,
			charset:        cs,
			defaultVersion: opts.DefaultVersion,
		},
		modules: make(map[string]string),
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		ext := filepath.Ext(name)
		if !strings.EqualFold(ext, landmarksExt) {
			continue
		}
		module := strings.TrimSuffix(name, ext)
		if _, _, ok := ParseModule(module); !ok {
			continue
		}
		s.modules[strings.ToUpper(module)] = name
	}
	return s, nil
}

// Modules returns the module names in sorted order.
func (s *Store) Modules() []string {
	out := make([]string, 0, len(s.modules))
	for m := range s.modules {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// ContainerTypes implements catalog.Store.
func (s *Store) ContainerTypes(context.Context) ([]string, error) {
	return []string{TypeModule, TypeRecordType}, nil
}

// Children implements catalog.Store.
func (s *Store) Children(_ context.Context, typ, parent string) ([]string, error) {
	if parent == layer.Root {
		if typ != TypeModule {
			return nil, nil
		}
		var out []string
		for _, m := range s.Modules() {
			out = append(out, layer.Join(layer.Root, m))
		}
		return out, nil
	}

	module, leaf := splitPath(parent)
	if _, ok := s.modules[module]; !ok {
		return nil, eris.Errorf("tiger: no module %s", parent)
	}
	if leaf != "" || typ != TypeRecordType {
		return nil, nil
	}
	return []string{layer.Join(parent, LandmarksLayer)}, nil
}

func splitPath(p string) (module, leaf string) {
	parts := strings.Split(strings.Trim(p, `\`), `\`)
	module = strings.ToUpper(parts[0])
	if len(parts) > 1 {
		leaf = parts[1]
	}
	return module, leaf
}

func (s *Store) filePath(containerPath string) (string, string, error) {
	module, leaf := splitPath(containerPath)
	file, ok := s.modules[module]
	if !ok || leaf != LandmarksLayer {
		return "", "", feature.Errorf(feature.KindNotFound, nil, "tiger: no container %s", containerPath)
	}
	return filepath.Join(s.dir, file), module, nil
}

// OpenContainer implements catalog.Store.
func (s *Store) OpenContainer(_ context.Context, containerPath string) (layer.Table, layer.Codec, error) {
	file, module, err := s.filePath(containerPath)
	if err != nil {
		return nil, nil, err
	}
	rf, err := openRecordFile(s.fs, file, module, s.opts)
	if err != nil {
		return nil, nil, err
	}

	state, county, _ := ParseModule(module)
	abbr, _ := AbbrFromFIPS(state)
	zap.L().Debug("tiger: module opened",
		zap.String("component", "tiger.store"),
		zap.String("module", module),
		zap.String("state", abbr),
		zap.String("county", county),
		zap.Stringer("version", rf.Version()),
		zap.Int64("records", rf.Len()),
	)
	return rf, Codec{}, nil
}

// DeleteContainer implements catalog.Deleter by removing the record file.
func (s *Store) DeleteContainer(_ context.Context, containerPath string) error {
	if !s.opts.update {
		return feature.Errorf(feature.KindUnsupported, nil, "tiger: store is read-only")
	}
	file, module, err := s.filePath(containerPath)
	if err != nil {
		return err
	}
	if err := s.fs.Remove(file); err != nil {
		return eris.Wrapf(err, "tiger: remove %s", file)
	}
	delete(s.modules, module)
	return nil
}

// CreateModule creates an empty landmarks file for module. Records appended
// to it carry the store's default version code.
func (s *Store) CreateModule(module string) (string, error) {
	if !s.opts.update {
		return "", feature.Errorf(feature.KindUnsupported, nil, "tiger: store is read-only")
	}
	if _, _, ok := ParseModule(module); !ok {
		return "", eris.Errorf("tiger: invalid module name %q", module)
	}
	if s.opts.defaultVersion == VersionUnknown {
		return "", eris.New("tiger: a default version is required to create modules")
	}
	module = strings.ToUpper(module)
	if _, ok := s.modules[module]; ok {
		return "", eris.Errorf("tiger: module %s already exists", module)
	}

	name := module + landmarksExt
	f, err := s.fs.Create(filepath.Join(s.dir, name))
	if err != nil {
		return "", eris.Wrapf(err, "tiger: create %s", name)
	}
	if err := f.Close(); err != nil {
		return "", eris.Wrapf(err, "tiger: close %s", name)
	}
	s.modules[module] = name
	return layer.Join(layer.Join(layer.Root, module), LandmarksLayer), nil
}

// Close implements catalog.Store.
func (s *Store) Close() error { return nil }
