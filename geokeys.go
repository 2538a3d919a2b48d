package excavation

import (
	"errors"
	"fmt"
)

var errParse = errors.New("parse error")

// A GeoKey is a key in a GeoTIFF GeoKeyDirectoryTag.
type GeoKey uint16

const (
	GeoKeyGTModelType  GeoKey = 1024
	GeoKeyGTRasterType GeoKey = 1025
	GeoKeyGTCitation   GeoKey = 1026

	GeoKeyGeodeticCRS         GeoKey = 2048
	GeoKeyGeogCitation        GeoKey = 2049
	GeoKeyGeodeticDatum       GeoKey = 2050
	GeoKeyPrimeMeridian       GeoKey = 2051
	GeoKeyAngularUnits        GeoKey = 2054
	GeoKeyGeogAngularUnitSize GeoKey = 2055
	GeoKeyEllipsoid           GeoKey = 2056

	GeoKeyProjectedCRS GeoKey = 3072
	GeoKeyPCSCitation  GeoKey = 3073
	GeoKeyProjection   GeoKey = 3074
	GeoKeyProjMethod   GeoKey = 3075
	GeoKeyLinearUnits  GeoKey = 3076

	GeoKeyVertical      GeoKey = 4096
	GeoKeyVerticalUnits GeoKey = 4099
)

// Values of GeoKeyGTModelType.
const (
	ModelTypeProjected  = 1
	ModelTypeGeographic = 2
)

// Values of GeoKeyGTRasterType.
const (
	RasterPixelIsArea  = 1
	RasterPixelIsPoint = 2
)

// userDefined is the GeoKey value for a user-defined CRS, which has no EPSG
// code.
const userDefined = 32767

// ParsedGeoKeys are the values of a GeoTIFF's GeoKeys, by location.
type ParsedGeoKeys struct {
	Params       map[GeoKey]int
	DoubleParams map[GeoKey]float64
	ASCIIParams  map[GeoKey]string
}

// ParseGeoKeys parses a GeoKeyDirectoryTag and its GeoDoubleParamsTag and
// GeoASCIIParamsTag.
func ParseGeoKeys(directory []uint16, doubleParams []float64, asciiParams string) (*ParsedGeoKeys, error) {
	if len(directory) < 4 {
		return nil, fmt.Errorf("%w: short GeoKey directory", errParse)
	}

	if keyDirectoryVersion := int(directory[0]); keyDirectoryVersion != 1 {
		return nil, fmt.Errorf("%d: %w: unknown GeoKey directory version", keyDirectoryVersion, errParse)
	}
	if keyRevision := int(directory[1]); keyRevision != 1 {
		return nil, fmt.Errorf("%d: %w: unknown GeoKey revision", keyRevision, errParse)
	}
	if minorRevision := int(directory[2]); minorRevision != 0 && minorRevision != 1 {
		return nil, fmt.Errorf("%d: %w: unknown GeoKey minor revision", minorRevision, errParse)
	}
	numberOfKeys := int(directory[3])
	if len(directory) != 4+4*numberOfKeys {
		return nil, fmt.Errorf("%w: expected %d GeoKeys", errParse, numberOfKeys)
	}

	parsedGeoKeys := &ParsedGeoKeys{
		Params:       make(map[GeoKey]int),
		DoubleParams: make(map[GeoKey]float64),
		ASCIIParams:  make(map[GeoKey]string),
	}
	for i := range numberOfKeys {
		keyValues := directory[4+4*i : 4+4*(i+1)]
		key := GeoKey(keyValues[0])
		tiffTagLocation := int(keyValues[1])
		numberOfValues := int(keyValues[2])
		switch tiffTagLocation {
		case 0:
			if numberOfValues != 1 {
				return nil, fmt.Errorf("%d: %w: expected one value", key, errParse)
			}
			parsedGeoKeys.Params[key] = int(keyValues[3])
		case 34736: // GeoDoubleParamsTag
			// Only the first value of multi-valued keys, such as
			// GeogTOWGS84GeoKey, is kept.
			index := int(keyValues[3])
			switch {
			case numberOfValues == 0:
				return nil, fmt.Errorf("%d: %w: expected at least one value", key, errParse)
			case index+numberOfValues > len(doubleParams):
				return nil, fmt.Errorf("%d: %w: double param out of range", key, errParse)
			}
			parsedGeoKeys.DoubleParams[key] = doubleParams[index]
		case 34737: // GeoASCIIParamsTag
			index := int(keyValues[3])
			if index+numberOfValues > len(asciiParams) {
				return nil, fmt.Errorf("%d: %w: ASCII param out of range", key, errParse)
			}
			parsedGeoKeys.ASCIIParams[key] = asciiParams[index : index+numberOfValues]
		default:
			return nil, fmt.Errorf("%d: %w: tag location %d", key, errors.ErrUnsupported, tiffTagLocation)
		}
	}
	return parsedGeoKeys, nil
}

// ModelType returns the model type, or zero if it is not set.
func (k *ParsedGeoKeys) ModelType() int {
	return k.Params[GeoKeyGTModelType]
}

// RasterType returns the raster type, defaulting to RasterPixelIsArea.
func (k *ParsedGeoKeys) RasterType() int {
	if rasterType, ok := k.Params[GeoKeyGTRasterType]; ok {
		return rasterType
	}
	return RasterPixelIsArea
}

// EPSG returns the EPSG code of the CRS, or zero if it is user-defined or
// unknown. Projected rasters use their projected CRS and geographic rasters
// their geodetic CRS. If the model type is not set, the projected CRS is
// preferred.
func (k *ParsedGeoKeys) EPSG() int {
	projected := epsgCode(k.Params[GeoKeyProjectedCRS])
	geodetic := epsgCode(k.Params[GeoKeyGeodeticCRS])
	switch k.ModelType() {
	case ModelTypeProjected:
		return projected
	case ModelTypeGeographic:
		return geodetic
	case 0:
		if projected != 0 {
			return projected
		}
		return geodetic
	default:
		return 0
	}
}

func epsgCode(value int) int {
	if value <= 0 || value >= userDefined {
		return 0
	}
	return value
}
