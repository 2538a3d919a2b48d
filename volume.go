package excavation

import (
	"encoding/json"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// DefaultSignificanceThreshold is the depth in meters that a pixel must
// exceed to count as excavated.
const DefaultSignificanceThreshold = 1.0

// A CategoryLabel identifies a material category.
type CategoryLabel string

// Material categories, in ascending depth order.
const (
	CategoryShallow  CategoryLabel = "shallow_0_5m"
	CategoryMedium   CategoryLabel = "medium_5_15m"
	CategoryDeep     CategoryLabel = "deep_15_30m"
	CategoryVeryDeep CategoryLabel = "very_deep_30m_plus"
)

var materialBands = [...]struct {
	label      CategoryLabel
	depthRange DepthRange
}{
	{CategoryShallow, DepthRange{Min: 1, Max: 5}},
	{CategoryMedium, DepthRange{Min: 5, Max: 15}},
	{CategoryDeep, DepthRange{Min: 15, Max: 30}},
	{CategoryVeryDeep, DepthRange{Min: 30, Max: math.Inf(1)}},
}

// A DepthRange is a half-open depth interval [Min, Max) in meters. Max may be
// +Inf.
type DepthRange struct {
	Min float64
	Max float64
}

// Contains returns true if depth is in r.
func (r DepthRange) Contains(depth float64) bool {
	return r.Min <= depth && depth < r.Max
}

// MarshalJSON encodes r as [min, max], with an unbounded max as null.
func (r DepthRange) MarshalJSON() ([]byte, error) {
	if math.IsInf(r.Max, 1) {
		return json.Marshal([]any{r.Min, nil})
	}
	return json.Marshal([]float64{r.Min, r.Max})
}

// A MaterialCategory is the excavated volume and area in a depth band.
type MaterialCategory struct {
	Label       CategoryLabel `json:"label"`
	DepthRangeM DepthRange    `json:"depthRangeM"`
	VolumeM3    float64       `json:"volumeM3"`
	AreaM2      float64       `json:"areaM2"`
}

// A VolumeReport describes the excavated volume of a DepthMap.
type VolumeReport struct {
	PixelMethodM3          float64            `json:"pixelMethodM3"`
	IntegralMethodM3       float64            `json:"integralMethodM3"`
	IntegralMethodFailed   bool               `json:"integralMethodFailed,omitempty"`
	ExcavationAreaM2       float64            `json:"excavationAreaM2"`
	AverageDepthM          float64            `json:"averageDepthM"`
	MaxDepthM              float64            `json:"maxDepthM"`
	QuarryPixels           int                `json:"quarryPixels"`
	ReferenceElevationM    float64            `json:"referenceElevationM"`
	SignificanceThresholdM float64            `json:"significanceThresholdM"`
	MaterialCategories     []MaterialCategory `json:"materialCategories"`
}

// Category returns the material category with the given label.
func (r VolumeReport) Category(label CategoryLabel) (MaterialCategory, bool) {
	for _, category := range r.MaterialCategories {
		if category.Label == label {
			return category, true
		}
	}
	return MaterialCategory{}, false
}

// MethodDiscrepancy returns the relative difference between the pixel and
// integral volumes, or zero if both are zero.
func (r VolumeReport) MethodDiscrepancy() float64 {
	largest := max(r.PixelMethodM3, r.IntegralMethodM3)
	if largest == 0 {
		return 0
	}
	return math.Abs(r.PixelMethodM3-r.IntegralMethodM3) / largest
}

type volumeEngine struct {
	significanceThreshold float64
}

// A VolumeOption sets an option on volume computation.
type VolumeOption func(*volumeEngine)

// WithSignificanceThreshold sets the depth in meters that a pixel must exceed
// to count as excavated.
func WithSignificanceThreshold(significanceThreshold float64) VolumeOption {
	return func(e *volumeEngine) {
		e.significanceThreshold = significanceThreshold
	}
}

// ComputeVolume returns the excavated volume of m computed by summing pixels
// and by integrating with Simpson's rule. If integration fails, the integral
// volume is zero and IntegralMethodFailed is set. Only depths above the
// significance threshold are categorized, but the four material categories
// are always present.
func ComputeVolume(m *DepthMap, options ...VolumeOption) VolumeReport {
	e := &volumeEngine{
		significanceThreshold: DefaultSignificanceThreshold,
	}
	for _, option := range options {
		option(e)
	}

	report := VolumeReport{
		ReferenceElevationM:    m.surfaceElevation,
		SignificanceThresholdM: e.significanceThreshold,
	}

	masked := newGrid(m.Width(), m.Height())
	quarryDepths := make([]float64, 0, len(m.depths.values))
	for i, depth := range m.depths.values {
		if depth > e.significanceThreshold {
			masked.values[i] = depth
			quarryDepths = append(quarryDepths, depth)
		}
	}
	pixelArea := m.PixelArea()
	report.MaterialCategories = categorize(quarryDepths, pixelArea)
	if len(quarryDepths) == 0 {
		return report
	}

	report.PixelMethodM3 = floats.Sum(quarryDepths) * pixelArea
	report.ExcavationAreaM2 = float64(len(quarryDepths)) * pixelArea
	report.AverageDepthM = stat.Mean(quarryDepths, nil)
	report.MaxDepthM = floats.Max(quarryDepths)
	report.QuarryPixels = len(quarryDepths)

	if volume, err := integrateSimpson2D(masked, m.pixelWidth, m.pixelHeight); err != nil {
		report.IntegralMethodFailed = true
	} else {
		report.IntegralMethodM3 = volume
	}

	return report
}

// Categorize partitions the depths of m into the fixed material categories.
// Every category is returned, in ascending depth order, even if empty.
func Categorize(m *DepthMap) []MaterialCategory {
	return categorize(m.depths.values, m.PixelArea())
}

func categorize(depths []float64, pixelArea float64) []MaterialCategory {
	categories := make([]MaterialCategory, len(materialBands))
	for i, band := range materialBands {
		categories[i] = MaterialCategory{
			Label:       band.label,
			DepthRangeM: band.depthRange,
		}
	}
	for _, depth := range depths {
		for i, band := range materialBands {
			if band.depthRange.Contains(depth) {
				categories[i].VolumeM3 += depth
				categories[i].AreaM2++
				break
			}
		}
	}
	for i := range categories {
		categories[i].VolumeM3 *= pixelArea
		categories[i].AreaM2 *= pixelArea
	}
	return categories
}

// integrateSimpson2D integrates g over both axes with Simpson's rule, using
// the physical spacing dx between columns and dy between rows, and returns
// the absolute value.
func integrateSimpson2D(g *Grid, dx, dy float64) (volume float64, err error) {
	// integrate.Simpsons panics if there are fewer than three samples.
	defer func() {
		if r := recover(); r != nil {
			volume, err = 0, fmt.Errorf("%w: %v", ErrIntegration, r)
		}
	}()

	x := make([]float64, g.width)
	for i := range x {
		x[i] = float64(i) * dx
	}
	y := make([]float64, g.height)
	for i := range y {
		y[i] = float64(i) * dy
	}

	rowIntegrals := make([]float64, g.height)
	for r := range g.height {
		rowIntegrals[r] = integrate.Simpsons(x, g.values[r*g.width:(r+1)*g.width])
	}
	volume = math.Abs(integrate.Simpsons(y, rowIntegrals))
	if math.IsNaN(volume) || math.IsInf(volume, 0) {
		return 0, fmt.Errorf("%w: non-finite result", ErrIntegration)
	}
	return volume, nil
}
