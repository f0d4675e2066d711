// Package export finds annotation exports inside extracted project trees
// and parses them into image records.
//
// Every JSON file is classified by its structure alone; archive and file
// names are chosen by users and carry no meaning. Each recognized schema
// has exactly one parser.
package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/flxnaf/beamestraight/internal/corpus"
)

// Schema identifies the structure of an export file.
type Schema int

const (
	SchemaUnrecognized Schema = iota
	SchemaLabelStudio
	SchemaCOCO
)

func (s Schema) String() string {
	switch s {
	case SchemaLabelStudio:
		return "label-studio"
	case SchemaCOCO:
		return "coco"
	}
	return "unrecognized"
}

// MarshalText renders the schema name in JSON output.
func (s Schema) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ErrNoExports is returned by Locate when no recognized export exists.
var ErrNoExports = errors.New("no exports found")

// Export is one recognized annotation file.
type Export struct {
	Name   string // project name used in logs and statistics
	Path   string
	Root   string // project root the file was found under
	Schema Schema
}

// Project is a parsed export together with the directories its images
// are looked up in.
type Project struct {
	Export     Export
	Images     []corpus.ImageRecord
	SearchDirs []string
	WalkRoot   string

	// Unlabeled counts source records dropped before conversion because
	// they carry no annotation at all (tasks nobody labeled).
	Unlabeled int
}

// Name returns the project name.
func (p *Project) Name() string { return p.Export.Name }

// Annotations returns the number of raw annotations across all images.
func (p *Project) Annotations() int {
	n := 0
	for _, img := range p.Images {
		n += len(img.Annotations)
	}
	return n
}

// Classify inspects the structure of an export file.
func Classify(data []byte) Schema {
	var list []map[string]json.RawMessage
	if err := json.Unmarshal(data, &list); err == nil {
		if len(list) > 0 && list[0]["data"] != nil && list[0]["annotations"] != nil {
			return SchemaLabelStudio
		}
		return SchemaUnrecognized
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return SchemaUnrecognized
	}
	if isArray(obj["images"]) && isArray(obj["annotations"]) && isArray(obj["categories"]) {
		return SchemaCOCO
	}
	return SchemaUnrecognized
}

func isArray(raw json.RawMessage) bool {
	return bytes.HasPrefix(bytes.TrimSpace(raw), []byte("["))
}

// Locate walks each project root for *.json files and returns the
// recognized exports in root order, then lexical path order. Unrecognized
// or unreadable files are skipped.
func Locate(roots []string, logger *slog.Logger) ([]Export, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var exports []Export
	for _, root := range roots {
		var found []Export
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".json") {
				return nil
			}
			data, err := os.ReadFile(path)
			if err != nil {
				logger.Debug("skipping unreadable json", "path", path, "error", err)
				return nil
			}
			schema := Classify(data)
			if schema == SchemaUnrecognized {
				logger.Debug("skipping unrecognized json", "path", path)
				return nil
			}
			found = append(found, Export{Path: path, Root: root, Schema: schema})
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", root, err)
		}

		sort.Slice(found, func(i, j int) bool { return found[i].Path < found[j].Path })
		for i := range found {
			found[i].Name = projectName(root, found[i].Path, len(found))
			logger.Debug("found export", "project", found[i].Name, "schema", found[i].Schema, "path", found[i].Path)
		}
		exports = append(exports, found...)
	}

	if len(exports) == 0 {
		return nil, ErrNoExports
	}
	return exports, nil
}

// projectName is the root's base name, qualified by the export's relative
// path when a root holds more than one export.
func projectName(root, path string, siblings int) string {
	name := filepath.Base(root)
	if siblings <= 1 {
		return name
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return name
	}
	return name + ":" + filepath.ToSlash(rel)
}

// Parse reads an export with the parser for its schema.
func Parse(e Export) (*Project, error) {
	data, err := os.ReadFile(e.Path)
	if err != nil {
		return nil, fmt.Errorf("read export: %w", err)
	}

	var images []corpus.ImageRecord
	var unlabeled int
	switch e.Schema {
	case SchemaLabelStudio:
		images, unlabeled, err = parseLabelStudio(data)
	case SchemaCOCO:
		images, err = parseCOCO(data)
	default:
		return nil, fmt.Errorf("parse %s: unsupported schema %s", e.Path, e.Schema)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", e.Path, err)
	}

	dir := filepath.Dir(e.Path)
	return &Project{
		Export:     e,
		Images:     images,
		SearchDirs: []string{filepath.Join(dir, "images"), dir},
		WalkRoot:   dir,
		Unlabeled:  unlabeled,
	}, nil
}
