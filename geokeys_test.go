package excavation

import (
	"errors"
	"testing"

	"github.com/alecthomas/assert/v2"
)

func TestParseGeoKeys(t *testing.T) {
	directory := []uint16{
		1, 1, 0, 9,
		1024, 0, 1, 1,
		1025, 0, 1, 1,
		1026, 34737, 28, 0,
		2048, 0, 1, 4258,
		2055, 34736, 1, 1,
		3072, 0, 1, 32767,
		3074, 0, 1, 32767,
		3075, 0, 1, 10,
		3076, 0, 1, 9001,
	}
	doubleParams := []float64{
		52,
		0.0174532925199433,
	}
	asciiParams := "PCS Name = ETRS89_ETRS_LAEA|"

	actual, err := ParseGeoKeys(directory, doubleParams, asciiParams)
	assert.NoError(t, err)
	assert.Equal(t, &ParsedGeoKeys{
		Params: map[GeoKey]int{
			GeoKeyGTModelType:  ModelTypeProjected,
			GeoKeyGTRasterType: RasterPixelIsArea,
			GeoKeyGeodeticCRS:  4258,
			GeoKeyProjectedCRS: 32767,
			GeoKeyProjection:   32767,
			GeoKeyProjMethod:   10,
			GeoKeyLinearUnits:  9001,
		},
		DoubleParams: map[GeoKey]float64{
			GeoKeyGeogAngularUnitSize: 0.0174532925199433,
		},
		ASCIIParams: map[GeoKey]string{
			GeoKeyGTCitation: "PCS Name = ETRS89_ETRS_LAEA|",
		},
	}, actual)

	// A user-defined projected CRS has no EPSG code.
	assert.Equal(t, 0, actual.EPSG())
}

func TestParseGeoKeysMultiValuedDouble(t *testing.T) {
	directory := []uint16{
		1, 1, 0, 4,
		1024, 0, 1, ModelTypeGeographic,
		2048, 0, 1, 4326,
		2062, 34736, 7, 1,
		2055, 34736, 1, 0,
	}
	doubleParams := []float64{
		0.0174532925199433,
		-87, -98, -121, 0, 0, 0, 0,
	}

	actual, err := ParseGeoKeys(directory, doubleParams, "")
	assert.NoError(t, err)
	assert.Equal(t, map[GeoKey]float64{
		GeoKeyGeogAngularUnitSize: 0.0174532925199433,
		GeoKey(2062):              -87,
	}, actual.DoubleParams)
	assert.Equal(t, 4326, actual.EPSG())
}

func TestParsedGeoKeysEPSG(t *testing.T) {
	for _, tc := range []struct {
		name               string
		directory          []uint16
		expectedEPSG       int
		expectedRasterType int
	}{
		{
			name: "projected",
			directory: []uint16{
				1, 1, 0, 3,
				1024, 0, 1, 1,
				1025, 0, 1, 1,
				3072, 0, 1, 32633,
			},
			expectedEPSG:       32633,
			expectedRasterType: RasterPixelIsArea,
		},
		{
			name: "geographic",
			directory: []uint16{
				1, 1, 0, 3,
				1024, 0, 1, 2,
				1025, 0, 1, 2,
				2048, 0, 1, 4326,
			},
			expectedEPSG:       4326,
			expectedRasterType: RasterPixelIsPoint,
		},
		{
			name: "no_model_type_prefers_projected",
			directory: []uint16{
				1, 1, 0, 2,
				2048, 0, 1, 4326,
				3072, 0, 1, 3857,
			},
			expectedEPSG:       3857,
			expectedRasterType: RasterPixelIsArea,
		},
		{
			name: "no_model_type_geodetic",
			directory: []uint16{
				1, 1, 0, 1,
				2048, 0, 1, 4258,
			},
			expectedEPSG:       4258,
			expectedRasterType: RasterPixelIsArea,
		},
		{
			name:               "empty",
			directory:          []uint16{1, 1, 0, 0},
			expectedRasterType: RasterPixelIsArea,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			parsedGeoKeys, err := ParseGeoKeys(tc.directory, nil, "")
			assert.NoError(t, err)
			assert.Equal(t, tc.expectedEPSG, parsedGeoKeys.EPSG())
			assert.Equal(t, tc.expectedRasterType, parsedGeoKeys.RasterType())
		})
	}
}

func TestParseGeoKeysErrors(t *testing.T) {
	for _, tc := range []struct {
		name         string
		directory    []uint16
		doubleParams []float64
		asciiParams  string
		expectedErr  error
	}{
		{
			name:        "short",
			directory:   []uint16{1, 1, 0},
			expectedErr: errParse,
		},
		{
			name:        "version",
			directory:   []uint16{2, 1, 0, 0},
			expectedErr: errParse,
		},
		{
			name:        "key_count",
			directory:   []uint16{1, 1, 0, 2, 1024, 0, 1, 1},
			expectedErr: errParse,
		},
		{
			name:        "double_param_out_of_range",
			directory:   []uint16{1, 1, 0, 1, 2055, 34736, 1, 3},
			expectedErr: errParse,
		},
		{
			name:         "multi_valued_double_param_out_of_range",
			directory:    []uint16{1, 1, 0, 1, 2062, 34736, 3, 0},
			doubleParams: []float64{-87, -98},
			expectedErr:  errParse,
		},
		{
			name:        "no_double_values",
			directory:   []uint16{1, 1, 0, 1, 2062, 34736, 0, 0},
			expectedErr: errParse,
		},
		{
			name:        "ascii_param_out_of_range",
			directory:   []uint16{1, 1, 0, 1, 1026, 34737, 10, 0},
			asciiParams: "short|",
			expectedErr: errParse,
		},
		{
			name:        "unknown_location",
			directory:   []uint16{1, 1, 0, 1, 1024, 33550, 1, 0},
			expectedErr: errors.ErrUnsupported,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseGeoKeys(tc.directory, tc.doubleParams, tc.asciiParams)
			assert.IsError(t, err, tc.expectedErr)
		})
	}
}
