package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDs generates predictable run identifiers for tests.
//
// The same test with a fresh SequentialIDs produces byte-identical ledger
// rows and summaries, which keeps golden comparisons stable.
//
// Thread-safety: all methods are safe for concurrent use.
type SequentialIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialIDs creates a generator producing "<prefix>-0001",
// "<prefix>-0002", ... If prefix is empty, "run" is used.
func NewSequentialIDs(prefix string) *SequentialIDs {
	if prefix == "" {
		prefix = "run"
	}
	return &SequentialIDs{prefix: prefix}
}

// Generate returns the next identifier.
func (g *SequentialIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}
