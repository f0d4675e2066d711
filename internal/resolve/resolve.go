// Package resolve maps loosely recorded image references onto raster files.
//
// Label exports reference images by URL, by Label Studio virtual path
// (/data/upload/..., /data/local-files/?d=...), or by bare filename, and
// archives rarely keep the layout the labeling tool saw. Resolution is a
// cascade of progressively looser probes; the order is fixed because later
// probes can match the wrong file if tried first.
package resolve

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // register decoders for DecodeConfig
	_ "image/png"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	_ "golang.org/x/image/webp"
	"golang.org/x/text/unicode/norm"
)

// AcceptedExts lists the raster extensions the resolver will match, in probe order.
var AcceptedExts = []string{".jpg", ".jpeg", ".png", ".webp"}

// ErrImageNotFound is the sentinel wrapped by NotFoundError.
var ErrImageNotFound = errors.New("image not found")

// NotFoundError reports a reference that no probe could resolve.
type NotFoundError struct {
	Ref  string // reference as recorded in the export
	Name string // bare filename derived from Ref
}

func (e *NotFoundError) Error() string {
	if e.Name == e.Ref {
		return fmt.Sprintf("image not found: %s", e.Name)
	}
	return fmt.Sprintf("image not found: %s (ref %q)", e.Name, e.Ref)
}

func (e *NotFoundError) Unwrap() error {
	return ErrImageNotFound
}

// uploadPrefix matches the random prefix Label Studio puts on uploaded files
// ("3f9a1c2e-IMG_0001.jpg").
var uploadPrefix = regexp.MustCompile(`^[0-9a-f]{8}-`)

// Resolver finds raster files for image references.
type Resolver struct {
	// Roots are probed in order for exact and extension-swapped matches.
	Roots []string
	// WalkRoot is searched recursively as a last resort (the export's own directory).
	WalkRoot string
}

// New creates a resolver that walks walkRoot and probes roots in order.
// Duplicate and empty roots are dropped.
func New(walkRoot string, roots ...string) *Resolver {
	seen := make(map[string]bool, len(roots))
	r := &Resolver{WalkRoot: walkRoot}
	for _, root := range roots {
		if root == "" {
			continue
		}
		clean := filepath.Clean(root)
		if seen[clean] {
			continue
		}
		seen[clean] = true
		r.Roots = append(r.Roots, clean)
	}
	return r
}

// Resolve returns the path of the raster file for ref.
//
// Probes, first match wins:
//  1. reduce ref to a bare, percent-decoded, NFC-normalized filename
//  2. exact filename in each root
//  3. same stem with each accepted extension in each root (case-insensitive)
//  4. recursive search under WalkRoot for an accepted file whose stem contains the stem
//  5. as 4, with a Label Studio upload prefix stripped from the stem
func (r *Resolver) Resolve(ref string) (string, error) {
	name := BaseName(ref)
	if name == "" || name == "." {
		return "", &NotFoundError{Ref: ref, Name: name}
	}

	for _, root := range r.Roots {
		if p := filepath.Join(root, name); isFile(p) {
			return p, nil
		}
	}

	stem := strings.TrimSuffix(name, filepath.Ext(name))
	for _, root := range r.Roots {
		if p, ok := probeStem(root, stem); ok {
			return p, nil
		}
	}

	if p, ok := r.search(stem); ok {
		return p, nil
	}
	if trimmed := uploadPrefix.ReplaceAllString(stem, ""); trimmed != stem && trimmed != "" {
		if p, ok := r.search(trimmed); ok {
			return p, nil
		}
	}

	return "", &NotFoundError{Ref: ref, Name: name}
}

// BaseName reduces an image reference to a bare filename.
func BaseName(ref string) string {
	s := strings.TrimSpace(ref)
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		// /data/local-files/?d=dir/img.jpg carries the path in the query.
		if q, err := url.ParseQuery(s[i+1:]); err == nil && q.Get("d") != "" {
			s = q.Get("d")
		} else {
			s = s[:i]
		}
	}
	s = strings.ReplaceAll(s, `\`, "/")
	if i := strings.LastIndex(s, "/"); i >= 0 {
		s = s[i+1:]
	}
	if dec, err := url.PathUnescape(s); err == nil {
		s = dec
	}
	return norm.NFC.String(s)
}

// IsAccepted reports whether path has an accepted raster extension.
func IsAccepted(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, a := range AcceptedExts {
		if ext == a {
			return true
		}
	}
	return false
}

// Dimensions reads the pixel size from the raster header without decoding
// the full image.
func Dimensions(path string) (width, height int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("decode header %s: %w", filepath.Base(path), err)
	}
	return cfg.Width, cfg.Height, nil
}

func probeStem(root, stem string) (string, bool) {
	for _, ext := range AcceptedExts {
		for _, e := range []string{ext, strings.ToUpper(ext)} {
			if p := filepath.Join(root, stem+e); isFile(p) {
				return p, true
			}
		}
	}

	// Mixed-case names (".Jpg", "IMG.PNG" for "img.png") need a listing.
	entries, err := os.ReadDir(root)
	if err != nil {
		return "", false
	}
	for _, entry := range entries {
		if entry.IsDir() || !IsAccepted(entry.Name()) {
			continue
		}
		n := norm.NFC.String(entry.Name())
		if strings.EqualFold(strings.TrimSuffix(n, filepath.Ext(n)), stem) {
			return filepath.Join(root, entry.Name()), true
		}
	}
	return "", false
}

func (r *Resolver) search(stem string) (string, bool) {
	if r.WalkRoot == "" || stem == "" {
		return "", false
	}
	needle := strings.ToLower(stem)
	var found string
	_ = filepath.WalkDir(r.WalkRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtrees are skipped, not fatal.
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || !IsAccepted(path) {
			return nil
		}
		n := norm.NFC.String(d.Name())
		if strings.Contains(strings.ToLower(strings.TrimSuffix(n, filepath.Ext(n))), needle) {
			found = path
			return fs.SkipAll
		}
		return nil
	})
	return found, found != ""
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
