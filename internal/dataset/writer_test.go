package dataset

import (
	"context"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flxnaf/beamestraight/internal/corpus"
	"github.com/flxnaf/beamestraight/internal/geom"
	"github.com/flxnaf/beamestraight/internal/split"
	"github.com/flxnaf/beamestraight/internal/testutil"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func rect(x0, y0, x1, y1 float64) []geom.Point {
	return []geom.Point{{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}}
}

// fixtureCorpus has three images over two projects, one of them empty.
func fixtureCorpus(t *testing.T) (*corpus.Corpus, split.Assignment) {
	t.Helper()
	src := t.TempDir()
	c := &corpus.Corpus{
		Mode:    corpus.ModeOBB,
		Classes: []string{"teeth", "gum"},
		Images: []corpus.Image{
			{
				ID: 1, Project: 1, OutputName: "proj01_a.png",
				SourcePath: testutil.WritePNG(t, filepath.Join(src, "p1", "a.png"), 8, 8),
				Instances:  []corpus.Instance{{ID: 1, Class: 0, Points: rect(0.1, 0.1, 0.9, 0.9)}},
			},
			{
				ID: 2, Project: 1, OutputName: "proj01_b.png",
				SourcePath: testutil.WritePNG(t, filepath.Join(src, "p1", "b.png"), 8, 8),
			},
			{
				ID: 3, Project: 2, OutputName: "proj02_a.png",
				SourcePath: testutil.WritePNG(t, filepath.Join(src, "p2", "a.png"), 8, 8),
				Instances: []corpus.Instance{
					{ID: 2, Class: 0, Points: rect(0, 0, 0.5, 0.25)},
					{ID: 3, Class: 1, Points: rect(0.25, 0.5, 0.75, 1)},
				},
			},
		},
	}
	a := split.Assignment{split.Train: {1, 3}, split.Val: {2}, split.Test: {}}
	return c, a
}

// snapshot lists every file under root, then the contents of every
// non-image file. The absolute root in data.yaml is replaced by <root>.
func snapshot(t *testing.T, root string) []byte {
	t.Helper()
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(root, path)
		files = append(files, filepath.ToSlash(rel))
		return err
	})
	require.NoError(t, err)

	var b strings.Builder
	for _, f := range files {
		b.WriteString(f + "\n")
	}
	for _, f := range files {
		if strings.HasSuffix(f, ".png") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(f)))
		require.NoError(t, err)
		b.WriteString("--- " + f + "\n")
		b.WriteString(strings.ReplaceAll(string(data), root, "<root>"))
	}
	return []byte(b.String())
}

func TestWriter_Golden(t *testing.T) {
	c, a := fixtureCorpus(t)
	root := filepath.Join(t.TempDir(), "out")
	require.NoError(t, PrepareOutput(root, false))

	w := &Writer{Root: root, Mode: corpus.ModeOBB, Workers: 2, Logger: quietLogger()}
	res, err := w.Write(context.Background(), c, a)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, ManifestName), res.ManifestPath)
	assert.Equal(t, 3, res.Instances)
	assert.Equal(t, 2, res.Counts[split.Train])
	assert.Len(t, res.Fingerprint, 64)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "obb_dataset", snapshot(t, root))
}

func TestWriter_Idempotent(t *testing.T) {
	c, a := fixtureCorpus(t)

	var prints []string
	for i := 0; i < 2; i++ {
		root := filepath.Join(t.TempDir(), "out")
		w := &Writer{Root: root, Mode: corpus.ModeOBB, Workers: 3, Logger: quietLogger()}
		res, err := w.Write(context.Background(), c, a)
		require.NoError(t, err)
		prints = append(prints, res.Fingerprint)
	}
	assert.Equal(t, prints[0], prints[1])
}

func TestWriter_RejectsBadInstances(t *testing.T) {
	c, a := fixtureCorpus(t)
	c.Images[0].Instances[0].Points[2].X = 1.2

	w := &Writer{Root: t.TempDir(), Mode: corpus.ModeOBB, Logger: quietLogger()}
	_, err := w.Write(context.Background(), c, a)
	assert.ErrorIs(t, err, ErrInvalidInstance)
}

func TestWriter_UnknownImage(t *testing.T) {
	c, _ := fixtureCorpus(t)
	w := &Writer{Root: t.TempDir(), Mode: corpus.ModeOBB, Logger: quietLogger()}
	_, err := w.Write(context.Background(), c, split.Assignment{split.Train: {1, 99}})
	assert.ErrorContains(t, err, "unknown image 99")
}

func TestFormatLine(t *testing.T) {
	line, err := FormatLine(0, rect(0.1, 0.1, 0.9, 0.9))
	require.NoError(t, err)
	assert.Equal(t, "0 0.100000 0.100000 0.900000 0.100000 0.900000 0.900000 0.100000 0.900000", line)

	line, err = FormatLine(3, []geom.Point{{X: 0, Y: 1}, {X: 1.0 / 3, Y: 2.0 / 3}, {X: 0.1234567, Y: 0}})
	require.NoError(t, err)
	assert.Equal(t, "3 0.000000 1.000000 0.333333 0.666667 0.123457 0.000000", line)
}

func TestFormatLine_Range(t *testing.T) {
	for _, p := range []geom.Point{{X: -0.000001, Y: 0}, {X: 0, Y: 1.000001}, {X: math.NaN(), Y: 0.5}} {
		_, err := FormatLine(0, []geom.Point{p, {X: 0.5, Y: 0.5}, {X: 0.2, Y: 0.2}})
		assert.ErrorIs(t, err, ErrInvalidInstance, "%v", p)
	}
	_, err := FormatLine(-1, rect(0, 0, 1, 1))
	assert.ErrorIs(t, err, ErrInvalidInstance)
}

func TestFormatLabel(t *testing.T) {
	data, err := FormatLabel(corpus.ModeOBB, nil)
	require.NoError(t, err)
	assert.Empty(t, data)

	_, err = FormatLabel(corpus.ModeOBB, []corpus.Instance{{Points: []geom.Point{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}}}})
	assert.ErrorIs(t, err, ErrInvalidInstance)

	pentagon := []geom.Point{{X: 0.5, Y: 0}, {X: 1, Y: 0.4}, {X: 0.8, Y: 1}, {X: 0.2, Y: 1}, {X: 0, Y: 0.4}}
	data, err = FormatLabel(corpus.ModeSeg, []corpus.Instance{{Class: 2, Points: pentagon}})
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "seg_label", data)
}

func TestLabelName(t *testing.T) {
	assert.Equal(t, "proj01_img1.txt", LabelName("proj01_img1.jpg"))
	assert.Equal(t, "proj01_a.b.txt", LabelName("proj01_a.b.webp"))
	assert.Equal(t, "noext.txt", LabelName("noext"))
}

func TestPrepareOutput(t *testing.T) {
	base := t.TempDir()

	fresh := filepath.Join(base, "fresh", "nested")
	require.NoError(t, PrepareOutput(fresh, false))
	assert.DirExists(t, fresh)

	require.NoError(t, PrepareOutput(fresh, false), "empty directory is accepted")

	testutil.WriteFile(t, filepath.Join(fresh, "old.txt"), []byte("x"))
	err := PrepareOutput(fresh, false)
	assert.ErrorIs(t, err, ErrOutputExists)

	require.NoError(t, PrepareOutput(fresh, true))
	entries, err := os.ReadDir(fresh)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCheckOutput(t *testing.T) {
	base := t.TempDir()
	missing := filepath.Join(base, "missing")

	require.NoError(t, CheckOutput(missing, false))
	assert.NoDirExists(t, missing, "check never creates the directory")

	testutil.WriteFile(t, filepath.Join(base, "full", "keep.txt"), []byte("x"))
	assert.ErrorIs(t, CheckOutput(filepath.Join(base, "full"), false), ErrOutputExists)
	require.NoError(t, CheckOutput(filepath.Join(base, "full"), true))
	assert.FileExists(t, filepath.Join(base, "full", "keep.txt"), "check never cleans")
}

func TestWriter_SingleImage(t *testing.T) {
	c, _ := fixtureCorpus(t)
	root := filepath.Join(t.TempDir(), "out")
	w := &Writer{Root: root, Mode: corpus.ModeOBB, Logger: quietLogger()}
	res, err := w.Write(context.Background(), c, split.Assignment{split.Train: {1}})
	require.NoError(t, err)

	m, err := ReadManifest(res.ManifestPath)
	require.NoError(t, err)
	assert.Equal(t, "train/images", m.Train)
	assert.Equal(t, "train/images", m.Val)

	report, err := Verify(res.ManifestPath, corpus.ModeOBB)
	require.NoError(t, err)
	require.Len(t, report.Subsets, 1)
	assert.Equal(t, 1, report.Subsets[0].Images)
}

func TestFingerprint(t *testing.T) {
	entries := []Entry{
		{Subset: "val", Name: "b.png", Label: []byte("0 0.1 0.1\n")},
		{Subset: "train", Name: "a.png", Label: []byte("")},
	}
	reversed := []Entry{entries[1], entries[0]}

	base := Fingerprint(corpus.ModeOBB, []string{"teeth"}, entries)
	assert.Equal(t, base, Fingerprint(corpus.ModeOBB, []string{"teeth"}, reversed), "order independent")
	assert.NotEqual(t, base, Fingerprint(corpus.ModeSeg, []string{"teeth"}, entries))
	assert.NotEqual(t, base, Fingerprint(corpus.ModeOBB, []string{"gum"}, entries))

	moved := []Entry{{Subset: "train", Name: "b.png", Label: entries[0].Label}, entries[1]}
	assert.NotEqual(t, base, Fingerprint(corpus.ModeOBB, []string{"teeth"}, moved))

	// NFD and NFC spellings of the same name hash alike.
	nfc := []Entry{{Subset: "train", Name: "caf\u00e9.png"}}
	nfd := []Entry{{Subset: "train", Name: "cafe\u0301.png"}}
	assert.Equal(t, Fingerprint(corpus.ModeOBB, nil, nfc), Fingerprint(corpus.ModeOBB, nil, nfd))
}
