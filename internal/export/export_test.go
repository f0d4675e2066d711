package export

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flxnaf/beamestraight/internal/geom"
	"github.com/flxnaf/beamestraight/internal/testutil"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var square = testutil.Polygon{Label: "teeth", Points: [][2]float64{{10, 10}, {90, 10}, {90, 90}, {10, 90}}}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		data string
		want Schema
	}{
		{"label studio", `[{"id":1,"data":{"image":"a.jpg"},"annotations":[]}]`, SchemaLabelStudio},
		{"label studio missing annotations", `[{"id":1,"data":{"image":"a.jpg"}}]`, SchemaUnrecognized},
		{"empty list", `[]`, SchemaUnrecognized},
		{"list of numbers", `[1,2,3]`, SchemaUnrecognized},
		{"coco", `{"images":[],"annotations":[],"categories":[]}`, SchemaCOCO},
		{"coco missing categories", `{"images":[],"annotations":[]}`, SchemaUnrecognized},
		{"coco wrong shape", `{"images":{},"annotations":[],"categories":[]}`, SchemaUnrecognized},
		{"other object", `{"name":"result.json"}`, SchemaUnrecognized},
		{"garbage", `not json`, SchemaUnrecognized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify([]byte(tt.data)))
		})
	}
}

func TestLocate(t *testing.T) {
	work := t.TempDir()
	a := filepath.Join(work, "alpha")
	b := filepath.Join(work, "beta")

	testutil.WriteFile(t, filepath.Join(a, "export.json"), testutil.LabelStudioJSON(t, testutil.LSTask{ID: 1, Image: "x.png"}))
	testutil.WriteFile(t, filepath.Join(a, "notes.json"), []byte(`{"hello":"world"}`))
	testutil.WriteFile(t, filepath.Join(b, "z", "result.json"), testutil.COCOJSON(t, []string{"teeth"}))
	testutil.WriteFile(t, filepath.Join(b, "a", "result.JSON"), testutil.COCOJSON(t, []string{"teeth"}))

	exports, err := Locate([]string{a, b}, quietLogger())
	require.NoError(t, err)
	require.Len(t, exports, 3)

	assert.Equal(t, "alpha", exports[0].Name)
	assert.Equal(t, SchemaLabelStudio, exports[0].Schema)
	assert.Equal(t, a, exports[0].Root)

	assert.Equal(t, "beta:a/result.JSON", exports[1].Name)
	assert.Equal(t, SchemaCOCO, exports[1].Schema)
	assert.Equal(t, "beta:z/result.json", exports[2].Name)
}

func TestLocate_NoExports(t *testing.T) {
	root := t.TempDir()
	testutil.WriteFile(t, filepath.Join(root, "p", "readme.json"), []byte(`{}`))

	_, err := Locate([]string{root}, quietLogger())
	assert.ErrorIs(t, err, ErrNoExports)

	_, err = Locate(nil, quietLogger())
	assert.ErrorIs(t, err, ErrNoExports)
}

func TestParse_LabelStudio(t *testing.T) {
	dir := t.TempDir()
	data := testutil.LabelStudioJSON(t,
		testutil.LSTask{ID: 11, Image: "/data/upload/1/abc-img1.png", Width: 1000, Height: 500, Polygons: []testutil.Polygon{square}},
		testutil.LSTask{ID: 12, Image: "img2.png"},
	)
	path := testutil.WriteFile(t, filepath.Join(dir, "export.json"), data)

	p, err := Parse(Export{Name: "proj", Path: path, Root: dir, Schema: SchemaLabelStudio})
	require.NoError(t, err)

	assert.Equal(t, "proj", p.Name())
	assert.Equal(t, []string{filepath.Join(dir, "images"), dir}, p.SearchDirs)
	assert.Equal(t, dir, p.WalkRoot)
	require.Len(t, p.Images, 2)

	img := p.Images[0]
	assert.Equal(t, "11", img.SourceID)
	assert.Equal(t, "/data/upload/1/abc-img1.png", img.Ref)
	assert.Equal(t, 1000, img.Width)
	assert.Equal(t, 500, img.Height)
	require.Len(t, img.Annotations, 1)
	assert.Equal(t, "teeth", img.Annotations[0].Label)
	assert.Equal(t, geom.UnitsPercent, img.Annotations[0].Units)
	assert.Equal(t, geom.Point{X: 90, Y: 10}, img.Annotations[0].Points[1])

	assert.Empty(t, p.Images[1].Annotations)
	assert.Equal(t, 1, p.Annotations())
}

func TestParse_LabelStudioEdgeCases(t *testing.T) {
	dir := t.TempDir()
	raw := `[
	  {"id": 1, "data": {"text": "no image"}, "annotations": [{"result": []}]},
	  {"id": 2, "data": {"image": "a.png"}, "annotations": []},
	  {"id": 3, "data": {"image": "b.png"}, "annotations": [{"was_cancelled": true, "result": []}]},
	  {"id": 4, "data": {"ocr_image": "", "image_url": "c.png"}, "annotations": [{"result": [
	    {"type": "rectanglelabels", "value": {"x": 1, "y": 2}},
	    {"type": "polygonlabels", "value": {"points": [[1, 2], [3, 4]], "polygonlabels": ["teeth"]}},
	    {"type": "polygonlabels", "value": {"points": [[1, 2], [3], [5, 6]], "polygonlabels": ["teeth"]}},
	    {"type": "polygonlabels", "value": {"points": "bogus", "polygonlabels": ["teeth"]}},
	    {"type": "polygonlabels", "value": {"points": [[1, 2], [3, 4], [5, 6]], "polygonlabels": []}}
	  ]}]}
	]`
	path := testutil.WriteFile(t, filepath.Join(dir, "export.json"), []byte(raw))

	p, err := Parse(Export{Name: "edge", Path: path, Root: dir, Schema: SchemaLabelStudio})
	require.NoError(t, err)

	assert.Equal(t, 2, p.Unlabeled)
	require.Len(t, p.Images, 1)
	img := p.Images[0]
	assert.Equal(t, "c.png", img.Ref, "first non-empty image key wins")
	require.Len(t, img.Annotations, 4)
	assert.ErrorIs(t, img.Annotations[0].Invalid, geom.ErrTooFewPoints)
	assert.ErrorIs(t, img.Annotations[1].Invalid, geom.ErrMalformed)
	assert.ErrorIs(t, img.Annotations[2].Invalid, geom.ErrMalformed)
	assert.NoError(t, img.Annotations[3].Invalid)
	assert.Equal(t, "", img.Annotations[3].Label)
}

func TestParse_COCO(t *testing.T) {
	dir := t.TempDir()
	data := testutil.COCOJSON(t, []string{"teeth", "gum"},
		testutil.COCOImage{ID: 5, FileName: "images/a.jpg", Width: 640, Height: 480, Polygons: []testutil.Polygon{
			{Label: "gum", Points: [][2]float64{{0, 0}, {10, 0}, {10, 10}}},
			{Label: "teeth", Points: [][2]float64{{1, 1}, {2, 2}, {3, 1}, {4, 4}}},
		}},
		testutil.COCOImage{ID: 6, FileName: "b.jpg", Width: 100, Height: 100},
	)
	path := testutil.WriteFile(t, filepath.Join(dir, "result.json"), data)

	p, err := Parse(Export{Name: "coco", Path: path, Root: dir, Schema: SchemaCOCO})
	require.NoError(t, err)
	require.Len(t, p.Images, 2)

	img := p.Images[0]
	assert.Equal(t, "5", img.SourceID)
	assert.Equal(t, "images/a.jpg", img.Ref)
	assert.Equal(t, 640, img.Width)
	require.Len(t, img.Annotations, 2)
	assert.Equal(t, "gum", img.Annotations[0].Label)
	assert.Equal(t, geom.UnitsPixel, img.Annotations[0].Units)
	assert.Equal(t, []geom.Point{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}}, img.Annotations[0].Points)
	assert.Len(t, img.Annotations[1].Points, 4)

	assert.Empty(t, p.Images[1].Annotations)
}

func TestParse_COCOInvalidSegmentations(t *testing.T) {
	dir := t.TempDir()
	raw := `{
	  "images": [{"id": 1, "file_name": "a.jpg", "width": 10, "height": 10}],
	  "categories": [{"id": 1, "name": "teeth"}],
	  "annotations": [
	    {"id": 1, "image_id": 1, "category_id": 1, "segmentation": [[1, 2, 3, 4, 5]]},
	    {"id": 2, "image_id": 1, "category_id": 1, "segmentation": {"counts": [1, 2], "size": [10, 10]}},
	    {"id": 3, "image_id": 1, "category_id": 1, "segmentation": []},
	    {"id": 4, "image_id": 1, "category_id": 1, "segmentation": [[1, 2, 3, 4]]},
	    {"id": 5, "image_id": 1, "category_id": 9, "segmentation": [[1, 2, 3, 4, 5, 6], [7, 8, 9, 9, 8, 7]]}
	  ]
	}`
	path := testutil.WriteFile(t, filepath.Join(dir, "result.json"), []byte(raw))

	p, err := Parse(Export{Name: "coco", Path: path, Root: dir, Schema: SchemaCOCO})
	require.NoError(t, err)
	anns := p.Images[0].Annotations
	require.Len(t, anns, 5)

	assert.ErrorIs(t, anns[0].Invalid, geom.ErrMalformed)
	assert.ErrorIs(t, anns[1].Invalid, geom.ErrMalformed)
	assert.ErrorIs(t, anns[2].Invalid, geom.ErrMalformed)
	assert.ErrorIs(t, anns[3].Invalid, geom.ErrTooFewPoints)

	assert.NoError(t, anns[4].Invalid)
	assert.Equal(t, "", anns[4].Label, "unknown category has no name")
	assert.Len(t, anns[4].Points, 3, "only the first polygon is used")
}

func TestParse_Errors(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteFile(t, filepath.Join(dir, "bad.json"), []byte(`{"images": "x"}`))

	_, err := Parse(Export{Path: path, Schema: SchemaCOCO})
	assert.Error(t, err)

	_, err = Parse(Export{Path: path, Schema: SchemaUnrecognized})
	assert.Error(t, err)

	_, err = Parse(Export{Path: filepath.Join(dir, "missing.json"), Schema: SchemaCOCO})
	assert.Error(t, err)
}

func TestSchema_String(t *testing.T) {
	assert.Equal(t, "label-studio", SchemaLabelStudio.String())
	assert.Equal(t, "coco", SchemaCOCO.String())
	assert.Equal(t, "unrecognized", SchemaUnrecognized.String())
}
