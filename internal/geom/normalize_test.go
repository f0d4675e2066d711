package geom

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToPixels_Percent(t *testing.T) {
	px, err := ToPixels([]Point{{10, 10}, {90, 90}}, UnitsPercent, 1000, 500)
	require.NoError(t, err)
	assert.Equal(t, []Point{{100, 50}, {900, 450}}, px)
}

func TestToPixels_PixelIsIdentity(t *testing.T) {
	in := []Point{{12.5, 7}, {3, 4}}
	px, err := ToPixels(in, UnitsPixel, 640, 480)
	require.NoError(t, err)
	assert.Equal(t, in, px)
}

func TestToPixels_RequiresDimensions(t *testing.T) {
	_, err := ToPixels([]Point{{1, 1}}, UnitsPercent, 0, 480)
	assert.ErrorIs(t, err, ErrNoDimensions)
}

func TestToPixels_PercentRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	sizes := [][2]int{{1000, 500}, {1, 1}, {4032, 3024}, {37, 911}}

	for _, size := range sizes {
		for i := 0; i < 200; i++ {
			p := Point{X: rng.Float64() * 100, Y: rng.Float64() * 100}
			pts := []Point{p, {0, 0}, {100, 100}}

			out, err := NormalizePolygon(pts, UnitsPercent, size[0], size[1])
			require.NoError(t, err)
			assert.InDelta(t, p.X/100, out[0].X, 1e-12)
			assert.InDelta(t, p.Y/100, out[0].Y, 1e-12)
		}
	}
}

func TestNormalizePolygon_TooFewPoints(t *testing.T) {
	for _, pts := range [][]Point{nil, {{1, 1}}, {{1, 1}, {2, 2}}} {
		_, err := NormalizePolygon(pts, UnitsPercent, 100, 100)
		assert.ErrorIs(t, err, ErrTooFewPoints)
		assert.True(t, IsGeometryError(err))
	}
}

func TestNormalizePolygon_PixelClamps(t *testing.T) {
	pts := []Point{{-2, -1}, {641, 10}, {320, 481}}
	out, err := NormalizePolygon(pts, UnitsPixel, 640, 480)
	require.NoError(t, err)

	assert.Equal(t, Point{0, 0}, out[0])
	assert.Equal(t, 1.0, out[1].X)
	assert.InDelta(t, 10.0/480, out[1].Y, 1e-12)
	assert.Equal(t, 1.0, out[2].Y)
}

func TestNormalizePolygon_PercentOutOfRange(t *testing.T) {
	pts := []Point{{10, 10}, {105, 10}, {50, 50}}
	_, err := NormalizePolygon(pts, UnitsPercent, 640, 480)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestNormalizePolygon_NonFinite(t *testing.T) {
	pts := []Point{{math.NaN(), 10}, {20, 10}, {50, 50}}
	_, err := NormalizePolygon(pts, UnitsPixel, 640, 480)
	assert.ErrorIs(t, err, ErrOutOfRange)

	pts = []Point{{math.Inf(1), 10}, {20, 10}, {50, 50}}
	_, err = NormalizePolygon(pts, UnitsPixel, 640, 480)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestCheckUnit_SnapsNoise(t *testing.T) {
	p, err := CheckUnit(Point{X: -1e-12, Y: 1 + 1e-12})
	require.NoError(t, err)
	assert.Equal(t, Point{0, 1}, p)

	_, err = CheckUnit(Point{X: -1e-6, Y: 0.5})
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestClampPixels(t *testing.T) {
	out := ClampPixels([]Point{{-5, 20}, {700, -1}}, 640, 480)
	assert.Equal(t, []Point{{0, 20}, {640, 0}}, out)
}
