// Package testutil builds on-disk fixtures for conversion tests: raster
// files, zip archives and annotation exports in both supported schemas.
package testutil

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

// PNG encodes a solid w x h image.
func PNG(t testing.TB, w, h int) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0x80
	}
	img.Set(0, 0, color.Gray{Y: 0xff})

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// WriteFile writes data to path, creating parent directories.
func WriteFile(t testing.TB, path string, data []byte) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// WritePNG writes a w x h PNG to path.
func WritePNG(t testing.TB, path string, w, h int) string {
	t.Helper()
	return WriteFile(t, path, PNG(t, w, h))
}

// WriteZip writes a zip archive holding entries (name -> content), added in
// lexical name order. Names ending in "/" become directory entries.
func WriteZip(t testing.TB, path string, entries map[string][]byte) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	zw := zip.NewWriter(f)
	for _, name := range names {
		w, err := zw.Create(name)
		require.NoError(t, err)
		if data := entries[name]; len(data) > 0 {
			_, err = w.Write(data)
			require.NoError(t, err)
		}
	}
	require.NoError(t, zw.Close())
	return path
}

// Polygon is a labeled point list used by the export builders.
type Polygon struct {
	Label  string
	Points [][2]float64
}

// LSTask describes one Label Studio task.
type LSTask struct {
	ID       int
	Image    string // value of data.image
	Width    int    // original_width; 0 omits the field
	Height   int
	Polygons []Polygon
}

// LabelStudioJSON renders tasks as a Label Studio JSON export.
func LabelStudioJSON(t testing.TB, tasks ...LSTask) []byte {
	t.Helper()
	out := make([]map[string]any, 0, len(tasks))
	for _, task := range tasks {
		results := make([]map[string]any, 0, len(task.Polygons))
		for _, p := range task.Polygons {
			points := make([][]float64, len(p.Points))
			for i, pt := range p.Points {
				points[i] = []float64{pt[0], pt[1]}
			}
			r := map[string]any{
				"type":      "polygonlabels",
				"from_name": "label",
				"to_name":   "image",
				"value": map[string]any{
					"points":        points,
					"polygonlabels": []string{p.Label},
				},
			}
			if task.Width > 0 {
				r["original_width"] = task.Width
				r["original_height"] = task.Height
			}
			results = append(results, r)
		}
		out = append(out, map[string]any{
			"id":          task.ID,
			"data":        map[string]any{"image": task.Image},
			"annotations": []map[string]any{{"id": task.ID, "result": results}},
		})
	}
	data, err := json.Marshal(out)
	require.NoError(t, err)
	return data
}

// COCOImage describes one image of a COCO bundle.
type COCOImage struct {
	ID       int
	FileName string
	Width    int
	Height   int
	Polygons []Polygon // pixel coordinates
}

// COCOJSON renders a COCO bundle. Category ids follow the order of
// categories, starting at 0.
func COCOJSON(t testing.TB, categories []string, images ...COCOImage) []byte {
	t.Helper()
	catID := make(map[string]int, len(categories))
	cats := make([]map[string]any, len(categories))
	for i, name := range categories {
		catID[name] = i
		cats[i] = map[string]any{"id": i, "name": name}
	}

	imgs := make([]map[string]any, 0, len(images))
	anns := make([]map[string]any, 0)
	annID := 0
	for _, img := range images {
		imgs = append(imgs, map[string]any{
			"id": img.ID, "file_name": img.FileName, "width": img.Width, "height": img.Height,
		})
		for _, p := range img.Polygons {
			flat := make([]float64, 0, 2*len(p.Points))
			for _, pt := range p.Points {
				flat = append(flat, pt[0], pt[1])
			}
			annID++
			anns = append(anns, map[string]any{
				"id": annID, "image_id": img.ID, "category_id": catID[p.Label],
				"segmentation": [][]float64{flat}, "iscrowd": 0,
			})
		}
	}

	data, err := json.Marshal(map[string]any{
		"images": imgs, "annotations": anns, "categories": cats,
		"info": map[string]any{"description": "fixture"},
	})
	require.NoError(t, err)
	return data
}
