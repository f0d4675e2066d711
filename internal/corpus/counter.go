package corpus

import "sync/atomic"

// Counter hands out strictly increasing identifiers.
//
// The merge coordinator owns one Counter for images and one for
// annotations; source-local identifiers are never reused. The first call
// to Next returns 1.
type Counter struct {
	n atomic.Int64
}

// NewCounter creates a counter starting at 0.
func NewCounter() *Counter {
	return &Counter{}
}

// NewCounterAt creates a counter whose next value is start+1.
// Used to continue numbering after an existing corpus.
func NewCounterAt(start int64) *Counter {
	c := &Counter{}
	c.n.Store(start)
	return c
}

// Next returns the next identifier.
func (c *Counter) Next() int64 {
	return c.n.Add(1)
}

// Current returns the last identifier handed out (0 if none).
func (c *Counter) Current() int64 {
	return c.n.Load()
}
