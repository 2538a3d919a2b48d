package excavation

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/twpayne/go-proj/v11"
)

const sridWGS84 = 4326

// A Geolocator maps a geographic point to a pixel coordinate.
type Geolocator interface {
	Geolocate(point LonLat) (Coord, error)
}

// A GeolocatorFunc is a func that implements Geolocator.
type GeolocatorFunc func(LonLat) (Coord, error)

func (f GeolocatorFunc) Geolocate(point LonLat) (Coord, error) {
	return f(point)
}

// A ProjGeolocator maps geographic points to the pixels of a RasterGrid,
// reprojecting them into the grid's CRS with PROJ.
type ProjGeolocator struct {
	mutex        sync.Mutex
	pj           *proj.PJ
	geoTransform GeoTransform
	width        int
	height       int
}

// NewProjGeolocator returns a new ProjGeolocator for grid, which must have a
// geotransform and an SRID.
func NewProjGeolocator(grid *RasterGrid) (*ProjGeolocator, error) {
	geoTransform, ok := grid.GeoTransform()
	if !ok {
		return nil, errors.New("grid has no geotransform")
	}
	g := &ProjGeolocator{
		geoTransform: geoTransform,
		width:        grid.Width(),
		height:       grid.Height(),
	}
	switch srid := grid.SRID(); srid {
	case 0:
		return nil, errors.New("grid has no SRID")
	case sridWGS84:
	default:
		pj, err := proj.NewCRSToCRS("EPSG:4326", fmt.Sprintf("EPSG:%d", srid), nil)
		if err != nil {
			return nil, err
		}
		// Use longitude, latitude and easting, northing axis order
		// regardless of the CRS definitions.
		g.pj, err = pj.NormalizeForVisualization()
		if err != nil {
			return nil, err
		}
	}
	return g, nil
}

// Geolocate returns the pixel containing point. It returns ErrOutOfBounds if
// point is outside the grid.
func (g *ProjGeolocator) Geolocate(point LonLat) (Coord, error) {
	cols, rows, err := g.project([]LonLat{point})
	if err != nil {
		return Coord{}, err
	}
	col, row := math.Floor(cols[0]), math.Floor(rows[0])
	if math.IsNaN(col) || math.IsNaN(row) ||
		col < 0 || float64(g.width) <= col || row < 0 || float64(g.height) <= row {
		return Coord{}, fmt.Errorf("%w: %g,%g", ErrOutOfBounds, point.Lon, point.Lat)
	}
	return Coord{X: int(col), Y: int(row)}, nil
}

// project returns the fractional pixel coordinates of points.
func (g *ProjGeolocator) project(points []LonLat) ([]float64, []float64, error) {
	coords := make([][]float64, len(points))
	coordsFlat := make([]float64, 2*len(points))
	for i, point := range points {
		coordsFlat[2*i], coordsFlat[2*i+1] = point.Lon, point.Lat
		coords[i] = coordsFlat[2*i : 2*i+2]
	}

	if g.pj != nil {
		g.mutex.Lock()
		err := g.pj.ForwardFloat64Slices(coords)
		g.mutex.Unlock()
		if err != nil {
			return nil, nil, err
		}
	}

	cols := make([]float64, len(points))
	rows := make([]float64, len(points))
	for i, coord := range coords {
		col, row, ok := g.geoTransform.Invert(coord[0], coord[1])
		if !ok {
			col, row = math.NaN(), math.NaN()
		}
		cols[i], rows[i] = col, row
	}
	return cols, rows, nil
}
