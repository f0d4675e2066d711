package corpus

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flxnaf/beamestraight/internal/geom"
	"github.com/flxnaf/beamestraight/internal/resolve"
)

func TestCounter_Next(t *testing.T) {
	c := NewCounter()
	assert.Equal(t, int64(0), c.Current())
	assert.Equal(t, int64(1), c.Next())
	assert.Equal(t, int64(2), c.Next())
	assert.Equal(t, int64(2), c.Current())

	resumed := NewCounterAt(100)
	assert.Equal(t, int64(101), resumed.Next())
}

func TestCounter_Concurrent(t *testing.T) {
	c := NewCounter()
	const goroutines, calls = 20, 50

	var mu sync.Mutex
	seen := make(map[int64]bool)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < calls; j++ {
				id := c.Next()
				mu.Lock()
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, goroutines*calls)
	assert.Equal(t, int64(goroutines*calls), c.Current())
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"obb": ModeOBB, "OBB": ModeOBB, " seg ": ModeSeg} {
		got, err := ParseMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseMode("detect")
	assert.Error(t, err)
}

func TestParseClassPolicy(t *testing.T) {
	p, err := ParseClassPolicy("")
	require.NoError(t, err)
	assert.Equal(t, ClassFixed, p)

	p, err = ParseClassPolicy("Discover")
	require.NoError(t, err)
	assert.Equal(t, ClassDiscover, p)

	_, err = ParseClassPolicy("auto")
	assert.Error(t, err)
}

func TestClassMap_Fixed(t *testing.T) {
	m := NewClassMap([]string{"teeth", "gum"}, ClassFixed, false)

	idx, err := m.Lookup("GUM")
	require.NoError(t, err)
	assert.Equal(t, 1, idx)

	_, err = m.Lookup("tongue")
	assert.ErrorIs(t, err, ErrUnknownClass)
	assert.Equal(t, []string{"teeth", "gum"}, m.Names())
}

func TestClassMap_DiscoverIgnoresBlank(t *testing.T) {
	m := NewClassMap(nil, ClassDiscover, false)
	_, err := m.Lookup("  ")
	assert.ErrorIs(t, err, ErrUnknownClass)
	assert.Empty(t, m.Names())
}

func TestReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&resolve.NotFoundError{Ref: "a.jpg", Name: "a.jpg"}, ReasonImageNotFound},
		{fmt.Errorf("decode: %w", ErrImageUnreadable), ReasonImageUnreadable},
		{geom.ErrNoDimensions, ReasonDimensionsUnknown},
		{fmt.Errorf("point 2: %w", geom.ErrOutOfRange), ReasonGeometryInvalid},
		{geom.ErrMalformed, ReasonGeometryInvalid},
		{geom.ErrDegenerate, ReasonGeometryInvalid},
		{ErrUnknownClass, ReasonUnknownClass},
		{errors.New("boom"), ReasonOther},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, Reason(tt.err))
		})
	}
}

func TestEncode(t *testing.T) {
	square := []geom.Point{{X: 10, Y: 10}, {X: 90, Y: 10}, {X: 90, Y: 90}, {X: 10, Y: 90}}

	t.Run("obb percent", func(t *testing.T) {
		pts, err := Encode(ModeOBB, RawAnnotation{Points: square, Units: geom.UnitsPercent}, 1000, 500)
		require.NoError(t, err)
		require.Len(t, pts, 4)
		assert.InDelta(t, 0.1, pts[0].X, 1e-9)
		assert.InDelta(t, 0.1, pts[0].Y, 1e-9)
		assert.InDelta(t, 0.9, pts[2].X, 1e-9)
		assert.InDelta(t, 0.9, pts[2].Y, 1e-9)
	})

	t.Run("seg percent keeps outline", func(t *testing.T) {
		tri := []geom.Point{{X: 0, Y: 0}, {X: 50, Y: 100}, {X: 100, Y: 0}}
		pts, err := Encode(ModeSeg, RawAnnotation{Points: tri, Units: geom.UnitsPercent}, 640, 480)
		require.NoError(t, err)
		assert.Equal(t, []geom.Point{{X: 0, Y: 0}, {X: 0.5, Y: 1}, {X: 1, Y: 0}}, pts)
	})

	t.Run("coco pixels are clamped", func(t *testing.T) {
		over := []geom.Point{{X: -3, Y: 0}, {X: 104, Y: 0}, {X: 104, Y: 50}, {X: -3, Y: 50}}
		pts, err := Encode(ModeOBB, RawAnnotation{Points: over, Units: geom.UnitsPixel}, 100, 50)
		require.NoError(t, err)
		for _, p := range pts {
			assert.True(t, p.X >= 0 && p.X <= 1 && p.Y >= 0 && p.Y <= 1, "%v", p)
		}
	})

	t.Run("percent overshoot rejected", func(t *testing.T) {
		over := []geom.Point{{X: 0, Y: 0}, {X: 101, Y: 0}, {X: 101, Y: 50}}
		_, err := Encode(ModeSeg, RawAnnotation{Points: over, Units: geom.UnitsPercent}, 100, 100)
		assert.ErrorIs(t, err, geom.ErrOutOfRange)
	})

	t.Run("invalid from parser", func(t *testing.T) {
		_, err := Encode(ModeOBB, RawAnnotation{Invalid: geom.ErrMalformed}, 100, 100)
		assert.ErrorIs(t, err, geom.ErrMalformed)
	})

	t.Run("no dimensions", func(t *testing.T) {
		_, err := Encode(ModeSeg, RawAnnotation{Points: square, Units: geom.UnitsPercent}, 0, 0)
		assert.ErrorIs(t, err, geom.ErrNoDimensions)
	})
}
