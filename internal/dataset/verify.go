package dataset

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/flxnaf/beamestraight/internal/corpus"
	"github.com/flxnaf/beamestraight/internal/resolve"
)

// ErrVerificationFailed is returned by Report.Err when problems were found.
var ErrVerificationFailed = errors.New("dataset verification failed")

// maxProblems caps the problems kept in a report; the total is still counted.
const maxProblems = 50

// SubsetReport counts what one subset directory holds.
type SubsetReport struct {
	Name          string `json:"name"`
	ImagesDir     string `json:"images_dir"`
	Images        int    `json:"images"`
	MissingLabels int    `json:"missing_labels"`
	EmptyLabels   int    `json:"empty_labels"`
	Instances     int    `json:"instances"`
}

// Problem is one defect found in a dataset.
type Problem struct {
	File    string `json:"file"`
	Line    int    `json:"line,omitempty"`
	Message string `json:"message"`
}

func (p Problem) String() string {
	if p.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", p.File, p.Line, p.Message)
	}
	return fmt.Sprintf("%s: %s", p.File, p.Message)
}

// Report is the outcome of Verify.
type Report struct {
	Manifest     string         `json:"manifest"`
	Classes      []string       `json:"classes"`
	Subsets      []SubsetReport `json:"subsets"`
	ProblemCount int            `json:"problem_count"`
	Problems     []Problem      `json:"problems,omitempty"`
}

// OK reports whether no problem was found.
func (r *Report) OK() bool { return r.ProblemCount == 0 }

// Err returns ErrVerificationFailed (with the first problem) unless OK.
func (r *Report) Err() error {
	if r.OK() {
		return nil
	}
	return fmt.Errorf("%w: %d problem(s), first: %s", ErrVerificationFailed, r.ProblemCount, r.Problems[0])
}

func (r *Report) add(p Problem) {
	r.ProblemCount++
	if len(r.Problems) < maxProblems {
		r.Problems = append(r.Problems, p)
	}
}

// Verify loads the manifest at manifestPath and checks every declared
// subset: each image has a label file and every label line is a class
// index below nc followed by coordinate pairs in [0,1]. With mode set to
// ModeOBB each line must hold exactly four pairs; an empty mode accepts
// any polygon of three or more pairs.
//
// A non-nil error means the manifest itself could not be used; dataset
// defects are reported in the Report.
func Verify(manifestPath string, mode corpus.Mode) (*Report, error) {
	m, err := ReadManifest(manifestPath)
	if err != nil {
		return nil, err
	}
	subsets := m.Subsets()
	if len(subsets) == 0 {
		return nil, fmt.Errorf("manifest %s declares no subsets", manifestPath)
	}

	r := &Report{Manifest: manifestPath, Classes: m.Names.List()}
	for _, s := range subsets {
		dir := m.Resolve(manifestPath, s[1])
		sr := SubsetReport{Name: s[0], ImagesDir: dir}
		verifySubset(r, &sr, dir, m.NC, mode)
		r.Subsets = append(r.Subsets, sr)
	}
	return r, nil
}

func verifySubset(r *Report, sr *SubsetReport, dir string, nc int, mode corpus.Mode) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		r.add(Problem{File: dir, Message: "images directory unreadable: " + err.Error()})
		return
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && resolve.IsAccepted(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	labels := labelsFor(dir)
	for _, name := range names {
		sr.Images++
		labelPath := filepath.Join(labels, LabelName(name))
		data, err := os.ReadFile(labelPath)
		if err != nil {
			sr.MissingLabels++
			r.add(Problem{File: labelPath, Message: "missing label file"})
			continue
		}
		n := checkLabel(r, labelPath, data, nc, mode)
		if n == 0 {
			sr.EmptyLabels++
		}
		sr.Instances += n
	}
}

// labelsFor maps ".../images" to the sibling ".../labels" directory.
func labelsFor(imagesPath string) string {
	if filepath.Base(imagesPath) == imagesDir {
		return filepath.Join(filepath.Dir(imagesPath), labelsDir)
	}
	return filepath.Join(imagesPath, labelsDir)
}

func checkLabel(r *Report, path string, data []byte, nc int, mode corpus.Mode) int {
	instances := 0
	sc := bufio.NewScanner(bytes.NewReader(data))
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		if msg := checkLine(text, nc, mode); msg != "" {
			r.add(Problem{File: path, Line: line, Message: msg})
			continue
		}
		instances++
	}
	if err := sc.Err(); err != nil {
		r.add(Problem{File: path, Message: err.Error()})
	}
	return instances
}

func checkLine(text string, nc int, mode corpus.Mode) string {
	fields := strings.Fields(text)
	class, err := strconv.Atoi(fields[0])
	if err != nil || class < 0 {
		return fmt.Sprintf("invalid class index %q", fields[0])
	}
	if nc > 0 && class >= nc {
		return fmt.Sprintf("class index %d not below nc=%d", class, nc)
	}

	coords := fields[1:]
	switch {
	case len(coords)%2 != 0:
		return fmt.Sprintf("odd coordinate count %d", len(coords))
	case mode == corpus.ModeOBB && len(coords) != 8:
		return fmt.Sprintf("oriented box needs 8 coordinates, got %d", len(coords))
	case len(coords) < 6:
		return fmt.Sprintf("polygon needs at least 6 coordinates, got %d", len(coords))
	}
	for _, c := range coords {
		v, err := strconv.ParseFloat(c, 64)
		if err != nil || math.IsNaN(v) {
			return fmt.Sprintf("invalid coordinate %q", c)
		}
		if v < 0 || v > 1 {
			return fmt.Sprintf("coordinate %s outside [0,1]", c)
		}
	}
	return ""
}
