package resolve

import (
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
	return path
}

func TestBaseName(t *testing.T) {
	tests := []struct {
		ref  string
		want string
	}{
		{"img1.jpg", "img1.jpg"},
		{"/data/upload/3/abc12345-tooth%20scan.png", "abc12345-tooth scan.png"},
		{"https://bucket.example.com/a/b/IMG_01.JPG?X-Amz-Signature=abc", "IMG_01.JPG"},
		{"/data/local-files/?d=exports/images/f%C3%BCnf.jpg", "fünf.jpg"},
		{`C:\labels\images\win.jpeg`, "win.jpeg"},
		{"images/frame.webp#section", "frame.webp"},
		// NFD input ("u" + combining diaeresis) comes back composed.
		{"fu\u0308nf.jpg", "f\u00fcnf.jpg"},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			assert.Equal(t, tt.want, BaseName(tt.ref))
		})
	}
}

func TestResolve_ExactMatch(t *testing.T) {
	dir := t.TempDir()
	images := filepath.Join(dir, "images")
	want := touch(t, filepath.Join(images, "img1.jpg"))
	touch(t, filepath.Join(dir, "img1.png"))

	r := New(dir, images, dir)
	got, err := r.Resolve("/data/upload/7/img1.jpg")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestResolve_ExactBeatsExtensionSwap(t *testing.T) {
	dir := t.TempDir()
	images := filepath.Join(dir, "images")
	touch(t, filepath.Join(images, "img1.png"))
	want := touch(t, filepath.Join(dir, "img1.jpg"))

	// Exact match in the second root wins over an extension swap in the first.
	got, err := New(dir, images, dir).Resolve("img1.jpg")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestResolve_ExtensionSwap(t *testing.T) {
	dir := t.TempDir()
	want := touch(t, filepath.Join(dir, "images", "scan_04.PNG"))

	got, err := New(dir, filepath.Join(dir, "images")).Resolve("scan_04.jpg")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestResolve_MixedCaseExtension(t *testing.T) {
	dir := t.TempDir()
	want := touch(t, filepath.Join(dir, "Scan_05.Jpeg"))

	got, err := New(dir, dir).Resolve("scan_05.jpg")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestResolve_RecursiveSubstring(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "deep", "nested", "notes.txt"))
	want := touch(t, filepath.Join(dir, "deep", "nested", "1234-patient7.webp"))

	got, err := New(dir, filepath.Join(dir, "images")).Resolve("patient7.jpg")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestResolve_UploadPrefixFallback(t *testing.T) {
	dir := t.TempDir()
	want := touch(t, filepath.Join(dir, "images", "IMG_0042.jpg"))

	got, err := New(dir, filepath.Join(dir, "images")).Resolve("/data/upload/2/0a1b2c3d-IMG_0042.jpg")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestResolve_NotFound(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "other.jpg"))
	touch(t, filepath.Join(dir, "missing.txt"))

	_, err := New(dir, dir).Resolve("missing.jpg")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrImageNotFound)

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "missing.jpg", nf.Name)

	_, err = New(dir, dir).Resolve("")
	assert.ErrorIs(t, err, ErrImageNotFound)
}

func TestNew_DropsDuplicateRoots(t *testing.T) {
	r := New("/w", "/a", "", "/a/", "/b")
	assert.Equal(t, []string{"/a", "/b"}, r.Roots)
}

func TestDimensions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "img.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, image.NewGray(image.Rect(0, 0, 37, 19))))
	require.NoError(t, f.Close())

	w, h, err := Dimensions(path)
	require.NoError(t, err)
	assert.Equal(t, 37, w)
	assert.Equal(t, 19, h)

	_, _, err = Dimensions(touch(t, filepath.Join(t.TempDir(), "bad.png")))
	assert.Error(t, err)
}

func TestIsAccepted(t *testing.T) {
	assert.True(t, IsAccepted("a.JPG"))
	assert.True(t, IsAccepted("a.webp"))
	assert.False(t, IsAccepted("a.gif"))
	assert.False(t, IsAccepted("a"))
}
