package corpus

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/flxnaf/beamestraight/internal/geom"
)

// Shape is one annotation after per-image geometry work, before a class
// index has been assigned. Err is set when the annotation was rejected.
type Shape struct {
	Label  string
	Points []geom.Point
	Err    error
}

// ProcessedImage is the outcome of resolving and normalizing one image.
// Err is set when the image itself could not be used; Shapes is then empty.
type ProcessedImage struct {
	Record ImageRecord
	Path   string
	Width  int
	Height int
	Err    error
	Shapes []Shape
}

// ProcessedProject groups the processed images of one export.
type ProcessedProject struct {
	Name   string
	Images []ProcessedImage
}

// MergeOptions configures class assignment and empty-image handling.
type MergeOptions struct {
	Classes     []string
	Policy      ClassPolicy
	FoldUnknown bool
	// DropEmpty omits images that end up with no instances instead of
	// emitting them with an empty label file.
	DropEmpty bool
}

// Merger folds processed projects into one corpus.
//
// Projects must be added by a single coordinator in a stable order: the
// image and annotation counters it owns are the only source of
// identifiers, and output names are tagged with the project's position.
type Merger struct {
	mode          Mode
	opts          MergeOptions
	classes       *ClassMap
	imageIDs      *Counter
	annotationIDs *Counter
	images        []Image
	projects      []ProjectStats
	stems         map[string]bool
	logger        *slog.Logger
}

// NewMerger creates a merger for mode.
func NewMerger(mode Mode, opts MergeOptions, logger *slog.Logger) *Merger {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Policy == "" {
		opts.Policy = ClassFixed
	}
	return &Merger{
		mode:          mode,
		opts:          opts,
		classes:       NewClassMap(opts.Classes, opts.Policy, opts.FoldUnknown),
		imageIDs:      NewCounter(),
		annotationIDs: NewCounter(),
		stems:         make(map[string]bool),
		logger:        logger,
	}
}

// ProjectTag returns the zero-padded output-name prefix for the 1-based
// project index.
func ProjectTag(index int) string {
	return fmt.Sprintf("proj%02d", index)
}

// Add merges one project and returns its statistics.
func (m *Merger) Add(p ProcessedProject) ProjectStats {
	index := len(m.projects) + 1
	tag := ProjectTag(index)
	stats := ProjectStats{Name: p.Name}

	for _, pi := range p.Images {
		if pi.Err != nil {
			stats.SkippedImages++
			stats.reject(Reason(pi.Err), len(pi.Record.Annotations))
			continue
		}

		var instances []Instance
		for _, shape := range pi.Shapes {
			if shape.Err != nil {
				stats.reject(Reason(shape.Err), 1)
				continue
			}
			class, err := m.classes.Lookup(shape.Label)
			if err != nil {
				m.logger.Warn("instance rejected",
					"project", p.Name, "image", pi.Record.Ref, "reason", ReasonUnknownClass, "error", err)
				stats.reject(ReasonUnknownClass, 1)
				continue
			}
			points := make([]geom.Point, len(shape.Points))
			copy(points, shape.Points)
			instances = append(instances, Instance{Class: class, Points: points})
		}

		if len(instances) == 0 {
			if m.opts.DropEmpty {
				stats.SkippedImages++
				m.logger.Debug("dropping image without instances", "project", p.Name, "image", pi.Record.Ref)
				continue
			}
			stats.EmptyImages++
		}

		id := m.imageIDs.Next()
		for i := range instances {
			instances[i].ID = m.annotationIDs.Next()
		}
		m.images = append(m.images, Image{
			ID:          id,
			Project:     index,
			ProjectName: p.Name,
			SourceID:    pi.Record.SourceID,
			SourcePath:  pi.Path,
			OutputName:  m.uniqueName(tag, filepath.Base(pi.Path), id),
			Width:       pi.Width,
			Height:      pi.Height,
			Instances:   instances,
		})
		stats.Images++
		stats.Accepted += len(instances)
	}

	m.projects = append(m.projects, stats)
	return stats
}

// Corpus returns the merged corpus. The returned value shares no slices
// with the merger's internal state.
func (m *Merger) Corpus() *Corpus {
	images := make([]Image, len(m.images))
	copy(images, m.images)
	projects := make([]ProjectStats, len(m.projects))
	copy(projects, m.projects)
	return &Corpus{
		Mode:     m.mode,
		Images:   images,
		Classes:  m.classes.Names(),
		Projects: projects,
	}
}

// uniqueName builds "<tag>_<base>", falling back to "<tag>_<stem>_<id><ext>"
// when another image already took the stem. Stems are compared without case
// because label files drop the extension: a.png and a.JPG share a.txt.
func (m *Merger) uniqueName(tag, base string, id int64) string {
	ext := filepath.Ext(base)
	stem := tag + "_" + strings.TrimSuffix(base, ext)
	for n := 0; m.stems[strings.ToLower(stem)]; n++ {
		if n == 0 {
			stem = fmt.Sprintf("%s_%s_%d", tag, strings.TrimSuffix(base, ext), id)
		} else {
			stem = fmt.Sprintf("%s_%s_%d_%d", tag, strings.TrimSuffix(base, ext), id, n)
		}
	}
	m.stems[strings.ToLower(stem)] = true
	return stem + ext
}
