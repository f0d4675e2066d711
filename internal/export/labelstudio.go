package export

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/flxnaf/beamestraight/internal/corpus"
	"github.com/flxnaf/beamestraight/internal/geom"
)

const polygonResultType = "polygonlabels"

type lsTask struct {
	ID          json.RawMessage `json:"id"`
	Data        map[string]any  `json:"data"`
	Annotations []lsAnnotation  `json:"annotations"`
}

type lsAnnotation struct {
	WasCancelled bool       `json:"was_cancelled"`
	Result       []lsResult `json:"result"`
}

type lsResult struct {
	Type           string  `json:"type"`
	OriginalWidth  int     `json:"original_width"`
	OriginalHeight int     `json:"original_height"`
	Value          lsValue `json:"value"`
}

type lsValue struct {
	Points        json.RawMessage `json:"points"`
	PolygonLabels []string        `json:"polygonlabels"`
}

// parseLabelStudio reads a Label Studio JSON export. Points are
// percentages of the image size.
func parseLabelStudio(data []byte) ([]corpus.ImageRecord, int, error) {
	var tasks []lsTask
	if err := json.Unmarshal(data, &tasks); err != nil {
		return nil, 0, err
	}

	var images []corpus.ImageRecord
	unlabeled := 0
	for i, task := range tasks {
		ref := imageRef(task.Data)
		if ref == "" {
			continue
		}
		if !hasLabels(task.Annotations) {
			unlabeled++
			continue
		}

		rec := corpus.ImageRecord{SourceID: sourceID(task.ID, i), Ref: ref}
		for _, ann := range task.Annotations {
			if ann.WasCancelled {
				continue
			}
			for _, res := range ann.Result {
				if res.Type != polygonResultType {
					continue
				}
				if rec.Width == 0 && res.OriginalWidth > 0 && res.OriginalHeight > 0 {
					rec.Width, rec.Height = res.OriginalWidth, res.OriginalHeight
				}
				rec.Annotations = append(rec.Annotations, lsPolygon(res.Value))
			}
		}
		images = append(images, rec)
	}
	return images, unlabeled, nil
}

func lsPolygon(v lsValue) corpus.RawAnnotation {
	a := corpus.RawAnnotation{Units: geom.UnitsPercent}
	if len(v.PolygonLabels) > 0 {
		a.Label = v.PolygonLabels[0]
	}

	var pairs [][]float64
	if err := json.Unmarshal(v.Points, &pairs); err != nil {
		a.Invalid = fmt.Errorf("%w: points: %v", geom.ErrMalformed, err)
		return a
	}
	if len(pairs) < geom.MinPolygonPoints {
		a.Invalid = fmt.Errorf("%w: got %d", geom.ErrTooFewPoints, len(pairs))
		return a
	}
	a.Points = make([]geom.Point, len(pairs))
	for i, p := range pairs {
		if len(p) != 2 {
			a.Points = nil
			a.Invalid = fmt.Errorf("%w: point %d has %d values", geom.ErrMalformed, i, len(p))
			return a
		}
		a.Points[i] = geom.Point{X: p[0], Y: p[1]}
	}
	return a
}

// imageRef returns the first string value whose key mentions "image",
// scanning keys in sorted order.
func imageRef(data map[string]any) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		if strings.Contains(strings.ToLower(k), "image") {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		if s, ok := data[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func hasLabels(anns []lsAnnotation) bool {
	for _, a := range anns {
		if !a.WasCancelled {
			return true
		}
	}
	return false
}

func sourceID(raw json.RawMessage, index int) string {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" || s == "null" {
		return strconv.Itoa(index)
	}
	return s
}
