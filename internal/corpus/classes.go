package corpus

import (
	"errors"
	"fmt"
	"strings"
)

// ClassPolicy controls how labels without a configured class are handled.
type ClassPolicy string

const (
	// ClassFixed uses only the configured class table.
	ClassFixed ClassPolicy = "fixed"
	// ClassDiscover appends unseen labels to the table in first-seen order.
	ClassDiscover ClassPolicy = "discover"
)

// ParseClassPolicy parses a policy name; empty means ClassFixed.
func ParseClassPolicy(s string) (ClassPolicy, error) {
	switch ClassPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", ClassFixed:
		return ClassFixed, nil
	case ClassDiscover:
		return ClassDiscover, nil
	}
	return "", fmt.Errorf("invalid class policy %q: must be one of [fixed discover]", s)
}

// ErrUnknownClass is returned for labels that have no class index.
var ErrUnknownClass = errors.New("unknown class label")

// ClassMap assigns class indices to labels. Matching is case-insensitive;
// the first spelling seen is the one kept in the name table.
type ClassMap struct {
	names       []string
	index       map[string]int
	policy      ClassPolicy
	foldUnknown bool
}

// NewClassMap builds a class table from names. With foldUnknown set and the
// fixed policy, unknown labels map to class 0 (the single-class setup the
// labeling projects were built around).
func NewClassMap(names []string, policy ClassPolicy, foldUnknown bool) *ClassMap {
	m := &ClassMap{index: make(map[string]int), policy: policy, foldUnknown: foldUnknown}
	for _, n := range names {
		m.add(n)
	}
	return m
}

// Lookup returns the class index for label.
func (m *ClassMap) Lookup(label string) (int, error) {
	key := classKey(label)
	if idx, ok := m.index[key]; ok {
		return idx, nil
	}
	switch {
	case m.policy == ClassDiscover && key != "":
		return m.add(label), nil
	case m.policy != ClassDiscover && m.foldUnknown && len(m.names) > 0:
		return 0, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownClass, label)
}

// Names returns the class table in index order.
func (m *ClassMap) Names() []string {
	out := make([]string, len(m.names))
	copy(out, m.names)
	return out
}

func (m *ClassMap) add(label string) int {
	key := classKey(label)
	if idx, ok := m.index[key]; ok {
		return idx
	}
	idx := len(m.names)
	m.names = append(m.names, strings.TrimSpace(label))
	m.index[key] = idx
	return idx
}

func classKey(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}
