package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/flxnaf/beamestraight/internal/corpus"
	"github.com/flxnaf/beamestraight/internal/geom"
)

type cocoFile struct {
	Images      []cocoImage      `json:"images"`
	Annotations []cocoAnnotation `json:"annotations"`
	Categories  []cocoCategory   `json:"categories"`
}

type cocoImage struct {
	ID       int64  `json:"id"`
	FileName string `json:"file_name"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

type cocoAnnotation struct {
	ID           int64           `json:"id"`
	ImageID      int64           `json:"image_id"`
	CategoryID   int64           `json:"category_id"`
	Segmentation json.RawMessage `json:"segmentation"`
}

type cocoCategory struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// parseCOCO reads a COCO bundle. Points are pixel coordinates; only the
// first polygon of each segmentation is used.
func parseCOCO(data []byte) ([]corpus.ImageRecord, error) {
	var f cocoFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}

	names := make(map[int64]string, len(f.Categories))
	for _, c := range f.Categories {
		names[c.ID] = c.Name
	}

	byImage := make(map[int64][]corpus.RawAnnotation)
	for _, ann := range f.Annotations {
		a := cocoPolygon(ann.Segmentation)
		a.Label = names[ann.CategoryID]
		byImage[ann.ImageID] = append(byImage[ann.ImageID], a)
	}

	images := make([]corpus.ImageRecord, 0, len(f.Images))
	for _, img := range f.Images {
		images = append(images, corpus.ImageRecord{
			SourceID:    strconv.FormatInt(img.ID, 10),
			Ref:         img.FileName,
			Width:       img.Width,
			Height:      img.Height,
			Annotations: byImage[img.ID],
		})
	}
	return images, nil
}

func cocoPolygon(seg json.RawMessage) corpus.RawAnnotation {
	a := corpus.RawAnnotation{Units: geom.UnitsPixel}

	// RLE masks are objects, not polygon lists.
	if !bytes.HasPrefix(bytes.TrimSpace(seg), []byte("[")) {
		a.Invalid = fmt.Errorf("%w: segmentation is not a polygon list", geom.ErrMalformed)
		return a
	}
	var polys [][]float64
	if err := json.Unmarshal(seg, &polys); err != nil {
		a.Invalid = fmt.Errorf("%w: segmentation: %v", geom.ErrMalformed, err)
		return a
	}
	if len(polys) == 0 {
		a.Invalid = fmt.Errorf("%w: empty segmentation", geom.ErrMalformed)
		return a
	}

	flat := polys[0]
	if len(flat)%2 != 0 {
		a.Invalid = fmt.Errorf("%w: odd coordinate count %d", geom.ErrMalformed, len(flat))
		return a
	}
	if len(flat)/2 < geom.MinPolygonPoints {
		a.Invalid = fmt.Errorf("%w: got %d", geom.ErrTooFewPoints, len(flat)/2)
		return a
	}
	a.Points = make([]geom.Point, len(flat)/2)
	for i := range a.Points {
		a.Points[i] = geom.Point{X: flat[2*i], Y: flat[2*i+1]}
	}
	return a
}
