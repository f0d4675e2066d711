package dataset

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// ManifestName is the file name of the dataset descriptor.
const ManifestName = "data.yaml"

// Manifest is the dataset descriptor read by the training collaborator.
type Manifest struct {
	Path  string `yaml:"path"`
	Train string `yaml:"train"`
	Val   string `yaml:"val"`
	Test  string `yaml:"test,omitempty"`
	NC    int    `yaml:"nc"`
	Names Names  `yaml:"names"`
}

// Names is the class-index to class-name table.
//
// It is written as a mapping ({0: teeth}) and read from either a mapping
// or a plain list, the two forms training tools accept.
type Names map[int]string

// UnmarshalYAML accepts a mapping or a sequence.
func (n *Names) UnmarshalYAML(node *yaml.Node) error {
	out := make(Names)
	switch node.Kind {
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		for i, name := range list {
			out[i] = name
		}
	case yaml.MappingNode:
		var m map[int]string
		if err := node.Decode(&m); err != nil {
			return err
		}
		for k, v := range m {
			out[k] = v
		}
	default:
		return fmt.Errorf("line %d: names must be a mapping or a list", node.Line)
	}
	*n = out
	return nil
}

// List returns the names ordered by index.
func (n Names) List() []string {
	idx := make([]int, 0, len(n))
	for i := range n {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	out := make([]string, len(idx))
	for i, k := range idx {
		out[i] = n[k]
	}
	return out
}

// NewManifest describes a dataset rooted at root with the given subsets.
func NewManifest(root string, classes []string, subsets []string) *Manifest {
	m := &Manifest{Path: root, NC: len(classes), Names: make(Names, len(classes))}
	for i, c := range classes {
		m.Names[i] = c
	}
	for _, s := range subsets {
		dir := path.Join(s, imagesDir)
		switch s {
		case "train":
			m.Train = dir
		case "val":
			m.Val = dir
		case "test":
			m.Test = dir
		}
	}
	// Training tools require a val entry; a one-image corpus has only train.
	if m.Val == "" {
		m.Val = m.Train
	}
	return m
}

// Subsets returns (name, image dir) pairs for the subsets the manifest
// declares, in train, val, test order. A directory listed twice is
// returned once, under its first name.
func (m *Manifest) Subsets() [][2]string {
	var out [][2]string
	seen := make(map[string]bool)
	for _, s := range [][2]string{{"train", m.Train}, {"val", m.Val}, {"test", m.Test}} {
		if s[1] != "" && !seen[s[1]] {
			seen[s[1]] = true
			out = append(out, s)
		}
	}
	return out
}

// Resolve turns a manifest-relative directory into a filesystem path.
// Relative roots are taken relative to the manifest's own directory.
func (m *Manifest) Resolve(manifestPath, dir string) string {
	if filepath.IsAbs(dir) {
		return dir
	}
	root := m.Path
	if root == "" || !filepath.IsAbs(root) {
		root = filepath.Join(filepath.Dir(manifestPath), root)
	}
	return filepath.Join(root, filepath.FromSlash(dir))
}

// WriteManifest writes m as YAML to path.
func WriteManifest(path string, m *Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// ReadManifest loads a manifest from path.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	if m.NC == 0 {
		m.NC = len(m.Names)
	}
	return &m, nil
}
