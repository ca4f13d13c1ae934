// Package memstore is an in-memory native store described by a YAML
// manifest. It backs tests and demos of catalog discovery and can inject
// failures at any container.
package memstore

import (
	"io"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Manifest describes a whole store.
type Manifest struct {
	Name       string   `yaml:"name"`
	Types      []string `yaml:"types"`
	FailTypes  bool     `yaml:"fail_types"`
	Containers []Node   `yaml:"containers"`
}

// Node is one container. Nodes with children are groups; the rest are
// opened as leaves.
type Node struct {
	Name     string      `yaml:"name"`
	Type     string      `yaml:"type"`
	Geometry string      `yaml:"geometry"`
	Fields   []FieldSpec `yaml:"fields"`
	Rows     []RowSpec   `yaml:"rows"`
	Children []Node      `yaml:"children"`
	ReadOnly bool        `yaml:"read_only"`

	// Failure switches.
	FailOpen     bool `yaml:"fail_open"`
	FailChildren bool `yaml:"fail_children"`
	FailSchema   bool `yaml:"fail_schema"`
	FailClose    bool `yaml:"fail_close"`
}

// FieldSpec declares one attribute field.
type FieldSpec struct {
	Name      string `yaml:"name"`
	Type      string `yaml:"type"`
	Width     int    `yaml:"width"`
	Precision int    `yaml:"precision"`
	Nullable  *bool  `yaml:"nullable"`
	ReadOnly  bool   `yaml:"read_only"`
}

// RowSpec is one record. Values are keyed by field name; Geometry is WKT.
type RowSpec struct {
	FID      int64          `yaml:"fid"`
	Values   map[string]any `yaml:"values"`
	Geometry string         `yaml:"geometry"`
}

// Parse decodes a manifest from r.
func Parse(r io.Reader) (Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return Manifest{}, eris.Wrap(err, "memstore: decode manifest")
	}
	if len(m.Types) == 0 {
		m.Types = DefaultTypes
	}
	return m, nil
}

// ParseFile decodes the manifest at path.
func ParseFile(path string) (Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return Manifest{}, eris.Wrapf(err, "memstore: open manifest %s", path)
	}
	defer f.Close() //nolint:errcheck
	return Parse(f)
}
