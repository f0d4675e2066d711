package cli

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/flxnaf/beamestraight/internal/testutil"
)

var square = [][2]float64{{10, 10}, {90, 10}, {90, 90}, {10, 90}}

// writeInput builds an input directory with one Label Studio archive of
// three labeled images.
func writeInput(t *testing.T) string {
	t.Helper()
	in := t.TempDir()
	testutil.WriteZip(t, filepath.Join(in, "clinic.zip"), map[string][]byte{
		"export.json": testutil.LabelStudioJSON(t,
			testutil.LSTask{ID: 1, Image: "a.png", Polygons: []testutil.Polygon{{Label: "teeth", Points: square}}},
			testutil.LSTask{ID: 2, Image: "b.png", Polygons: []testutil.Polygon{{Label: "teeth", Points: square}}},
			testutil.LSTask{ID: 3, Image: "c.png", Polygons: []testutil.Polygon{{Label: "teeth", Points: square}}},
		),
		"images/a.png": testutil.PNG(t, 64, 48),
		"images/b.png": testutil.PNG(t, 64, 48),
		"images/c.png": testutil.PNG(t, 64, 48),
	})
	return in
}

// execute runs the root command with args and returns stdout, stderr and
// the command error.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}
