// Package corpus holds the record types that flow through the conversion
// pipeline and the merge stage that folds independently labeled projects
// into one corpus with a single identifier namespace.
//
// Records are values: each stage builds new records and hands them
// forward; nothing downstream mutates what an earlier stage produced.
package corpus

import (
	"fmt"
	"strings"

	"github.com/flxnaf/beamestraight/internal/geom"
)

// Mode selects the label encoding emitted for each polygon.
type Mode string

const (
	// ModeOBB emits the minimum-area oriented box (4 corners) of each polygon.
	ModeOBB Mode = "obb"
	// ModeSeg emits the polygon outline itself.
	ModeSeg Mode = "seg"
)

// ParseMode parses a mode name (case-insensitive).
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeOBB:
		return ModeOBB, nil
	case ModeSeg:
		return ModeSeg, nil
	}
	return "", fmt.Errorf("invalid mode %q: must be one of [obb seg]", s)
}

// RawAnnotation is one polygon instance as read from a source export.
type RawAnnotation struct {
	Label  string
	Points []geom.Point
	Units  geom.Units

	// Invalid is set by parsers when the source record cannot describe a
	// polygon at all (e.g. an odd-length COCO coordinate list).
	Invalid error
}

// ImageRecord is one source image and its annotations.
// SourceID is unique only within the originating export.
type ImageRecord struct {
	SourceID    string
	Ref         string
	Width       int // from export metadata; 0 when the export does not say
	Height      int
	Annotations []RawAnnotation
}

// Instance is a normalized label instance: a class index and points in [0,1].
type Instance struct {
	ID     int64
	Class  int
	Points []geom.Point
}

// Image is a merged image with a globally unique ID and output filename.
type Image struct {
	ID          int64
	Project     int
	ProjectName string
	SourceID    string
	SourcePath  string
	OutputName  string
	Width       int
	Height      int
	Instances   []Instance
}

// Corpus is the union of all accepted images across projects.
type Corpus struct {
	Mode     Mode
	Images   []Image
	Classes  []string
	Projects []ProjectStats
}

// IDs returns the image identifiers in corpus order.
func (c *Corpus) IDs() []int64 {
	ids := make([]int64, len(c.Images))
	for i, img := range c.Images {
		ids[i] = img.ID
	}
	return ids
}

// ByID indexes images by identifier.
func (c *Corpus) ByID() map[int64]*Image {
	m := make(map[int64]*Image, len(c.Images))
	for i := range c.Images {
		m[c.Images[i].ID] = &c.Images[i]
	}
	return m
}

// Totals sums the per-project statistics.
func (c *Corpus) Totals() ProjectStats {
	total := ProjectStats{Name: "total", Rejections: map[string]int{}}
	for _, p := range c.Projects {
		total.Images += p.Images
		total.SkippedImages += p.SkippedImages
		total.EmptyImages += p.EmptyImages
		total.Accepted += p.Accepted
		total.Rejected += p.Rejected
		for reason, n := range p.Rejections {
			total.Rejections[reason] += n
		}
	}
	return total
}

// ProjectStats counts what happened to one project's images and instances.
type ProjectStats struct {
	Name          string         `json:"name"`
	Images        int            `json:"images"`
	SkippedImages int            `json:"skipped_images"`
	EmptyImages   int            `json:"empty_images"`
	Accepted      int            `json:"accepted"`
	Rejected      int            `json:"rejected"`
	Rejections    map[string]int `json:"rejections,omitempty"`
}

func (s *ProjectStats) reject(reason string, n int) {
	if n <= 0 {
		return
	}
	if s.Rejections == nil {
		s.Rejections = make(map[string]int)
	}
	s.Rejected += n
	s.Rejections[reason] += n
}
