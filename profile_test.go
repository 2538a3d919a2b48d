package excavation

import (
	"testing"

	"github.com/alecthomas/assert/v2"
)

func TestExtractProfile(t *testing.T) {
	g, err := NewGrid([][]float64{
		{0, 1, 2},
		{3, 4, 5},
		{6, 7, 8},
	})
	assert.NoError(t, err)

	for _, tc := range []struct {
		name              string
		start             NormalizedPoint
		end               NormalizedPoint
		n                 int
		expectedDistances []float64
		expectedValues    []float64
	}{
		{
			name:              "diagonal",
			start:             NormalizedPoint{X: 0, Y: 0},
			end:               NormalizedPoint{X: 1, Y: 1},
			n:                 3,
			expectedDistances: []float64{0, 0.5, 1},
			expectedValues:    []float64{0, 4, 8},
		},
		{
			name:              "clamped",
			start:             NormalizedPoint{X: -1, Y: 0.5},
			end:               NormalizedPoint{X: 2, Y: 0.5},
			n:                 2,
			expectedDistances: []float64{0, 1},
			expectedValues:    []float64{3, 5},
		},
		{
			name:              "fractional",
			start:             NormalizedPoint{X: 0, Y: 0},
			end:               NormalizedPoint{X: 0.25, Y: 0},
			n:                 2,
			expectedDistances: []float64{0, 1},
			expectedValues:    []float64{0, 0.5},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			profile, err := ExtractProfile(t.Context(), g, tc.start, tc.end, tc.n)
			assert.NoError(t, err)
			assert.Equal(t, tc.start, profile.Start)
			assert.Equal(t, tc.end, profile.End)
			assert.Equal(t, tc.expectedDistances, profile.Distances)
			assert.Equal(t, tc.expectedValues, profile.Values)
		})
	}

	_, err = ExtractProfile(t.Context(), g, NormalizedPoint{}, NormalizedPoint{X: 1}, 1)
	assert.Error(t, err)
}

func TestExtractProfileDepthMap(t *testing.T) {
	grid := newQuarryGrid(t)
	depthMap := BuildDepthMap(grid, EstimateSurface(grid))

	profile, err := ExtractProfile(t.Context(), depthMap.Depths(), NormalizedPoint{X: 0, Y: 4.0 / 9}, NormalizedPoint{X: 1, Y: 4.0 / 9}, 10)
	assert.NoError(t, err)
	assert.Equal(t, 10, len(profile.Values))
	for i, value := range profile.Values {
		expected := 0.0
		if 3 <= i && i <= 5 {
			expected = 20
		}
		assertInDelta(t, expected, value, 1e-9)
	}
}
