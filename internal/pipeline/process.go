package pipeline

import (
	"fmt"

	"github.com/flxnaf/beamestraight/internal/corpus"
	"github.com/flxnaf/beamestraight/internal/export"
	"github.com/flxnaf/beamestraight/internal/resolve"
)

// imageProcessor resolves and encodes the images of one export. It holds
// no mutable state and is shared by the pool's workers.
type imageProcessor struct {
	mode     corpus.Mode
	resolver *resolve.Resolver
	// metadataFirst trusts the export's recorded dimensions over the
	// raster header. COCO records the size the annotator drew on; Label
	// Studio's original_width is per result and often absent.
	metadataFirst bool
}

func newImageProcessor(mode corpus.Mode, p *export.Project) *imageProcessor {
	return &imageProcessor{
		mode:          mode,
		resolver:      resolve.New(p.WalkRoot, p.SearchDirs...),
		metadataFirst: p.Export.Schema == export.SchemaCOCO,
	}
}

func (ip *imageProcessor) process(rec corpus.ImageRecord) corpus.ProcessedImage {
	pi := corpus.ProcessedImage{Record: rec}

	path, err := ip.resolver.Resolve(rec.Ref)
	if err != nil {
		pi.Err = err
		return pi
	}
	pi.Path = path

	pi.Width, pi.Height, err = ip.dimensions(path, rec)
	if err != nil {
		pi.Err = err
		return pi
	}

	pi.Shapes = make([]corpus.Shape, 0, len(rec.Annotations))
	for _, a := range rec.Annotations {
		points, err := corpus.Encode(ip.mode, a, pi.Width, pi.Height)
		pi.Shapes = append(pi.Shapes, corpus.Shape{Label: a.Label, Points: points, Err: err})
	}
	return pi
}

// dimensions picks the image size from export metadata or the raster
// header, falling back to the other source when the preferred one is
// missing.
func (ip *imageProcessor) dimensions(path string, rec corpus.ImageRecord) (int, int, error) {
	hasMeta := rec.Width > 0 && rec.Height > 0
	if ip.metadataFirst && hasMeta {
		return rec.Width, rec.Height, nil
	}

	w, h, err := resolve.Dimensions(path)
	if err == nil && w > 0 && h > 0 {
		return w, h, nil
	}
	if hasMeta {
		return rec.Width, rec.Height, nil
	}
	if err == nil {
		err = fmt.Errorf("empty raster %dx%d", w, h)
	}
	return 0, 0, fmt.Errorf("%w: %v", corpus.ErrImageUnreadable, err)
}
