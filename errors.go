package excavation

import "errors"

var (
	// ErrEmptyRaster is returned when every sample of a raster is NaN or
	// nodata.
	ErrEmptyRaster = errors.New("empty raster")

	// ErrOutOfBounds is returned when a geographic point maps outside a
	// raster.
	ErrOutOfBounds = errors.New("out of bounds")

	// ErrIntegration is returned when numerical integration of a depth map
	// fails.
	ErrIntegration = errors.New("integration failure")

	// ErrUnreadableSource is returned when a raster source is missing or
	// cannot be decoded.
	ErrUnreadableSource = errors.New("unreadable source")

	ErrShape     = errors.New("invalid grid shape")
	ErrPixelSize = errors.New("invalid pixel size")
)
