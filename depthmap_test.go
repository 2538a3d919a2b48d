package excavation

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/alecthomas/assert/v2"
)

func TestBuildDepthMap(t *testing.T) {
	grid := newQuarryGrid(t, WithPixelSize(5, 4))
	depthMap := BuildDepthMap(grid, EstimateSurface(grid))
	assert.Equal(t, 10, depthMap.Width())
	assert.Equal(t, 10, depthMap.Height())
	assert.Equal(t, 50.0, depthMap.SurfaceElevation())
	assert.Equal(t, 20.0, depthMap.PixelArea())
	for r := range depthMap.Height() {
		for c := range depthMap.Width() {
			if 3 <= r && r <= 5 && 3 <= c && c <= 5 {
				assert.Equal(t, 20.0, depthMap.At(r, c))
			} else {
				assert.Equal(t, 0.0, depthMap.At(r, c))
			}
		}
	}
}

func TestBuildDepthMapNaNMask(t *testing.T) {
	r := rand.New(rand.NewPCG(0, 0))
	for range 100 {
		width, height := 1+r.IntN(16), 1+r.IntN(16)
		samples := make([]float64, width*height)
		for i := range samples {
			if r.IntN(4) == 0 {
				samples[i] = math.NaN()
			} else {
				samples[i] = 100 + 10*r.NormFloat64()
			}
		}
		samples[0] = 100
		grid, err := NewRasterGridFromSlice(width, height, samples)
		assert.NoError(t, err)

		depthMap := BuildDepthMap(grid, EstimateSurface(grid))
		for i, depth := range depthMap.Depths().Values() {
			assert.Equal(t, math.IsNaN(samples[i]), math.IsNaN(depth))
			assert.False(t, depth < 0)
		}
	}
}
