package excavation

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"strconv"
	"strings"

	"github.com/google/tiff"
	_ "github.com/google/tiff/bigtiff"
	_ "github.com/google/tiff/geotiff"
	"github.com/klauspost/compress/zlib"
	"golang.org/x/image/tiff/lzw"
)

const (
	compressionNone         = 1
	compressionLZW          = 5
	compressionAdobeDeflate = 8
	compressionDeflate      = 32946
)

const (
	sampleFormatUint  = 1
	sampleFormatInt   = 2
	sampleFormatFloat = 3
)

// Approximate lengths of a degree of longitude at the equator and of a degree
// of latitude.
const (
	metersPerDegreeLon = 111320
	metersPerDegreeLat = 110540
)

var errShortRead = errors.New("short read")

// A geoTIFFIFD is a struct into which github.com/google/tiff can unmarshal an
// IFD.
type geoTIFFIFD struct {
	ImageWidth             uint32    `tiff:"field,tag=256"`
	ImageLength            uint32    `tiff:"field,tag=257"`
	BitsPerSample          uint16    `tiff:"field,tag=258"`
	Compression            uint16    `tiff:"field,tag=259"`
	StripOffsets           []uint64  `tiff:"field,tag=273"`
	SamplesPerPixel        uint16    `tiff:"field,tag=277"`
	RowsPerStrip           uint32    `tiff:"field,tag=278"`
	StripByteCounts        []uint64  `tiff:"field,tag=279"`
	PlanarConfiguration    uint16    `tiff:"field,tag=284"`
	Predictor              uint16    `tiff:"field,tag=317"`
	TileWidth              uint32    `tiff:"field,tag=322"`
	TileLength             uint32    `tiff:"field,tag=323"`
	TileOffsets            []uint64  `tiff:"field,tag=324"`
	TileByteCounts         []uint64  `tiff:"field,tag=325"`
	SampleFormat           uint16    `tiff:"field,tag=339"`
	ModelPixelScaleTag     []float64 `tiff:"field,tag=33550"`
	ModelTiepointTag       []float64 `tiff:"field,tag=33922"`
	ModelTransformationTag []float64 `tiff:"field,tag=34264"`
	GeoKeyDirectoryTag     []uint16  `tiff:"field,tag=34735"`
	GeoDoubleParamsTag     []float64 `tiff:"field,tag=34736"`
	GeoASCIIParamsTag      string    `tiff:"field,tag=34737"`
	GDALNoData             string    `tiff:"field,tag=42113"`
}

// A geoTIFFFile is a file that github.com/google/tiff can parse.
type geoTIFFFile interface {
	fs.File
	io.ReaderAt
	io.Seeker
}

// A geoTIFF is an open single-band GeoTIFF file. Its image is divided into
// blocks, which are either tiles or strips.
type geoTIFF struct {
	file              geoTIFFFile
	byteOrder         binary.ByteOrder
	width             int
	height            int
	tiled             bool
	blockWidth        int
	blockHeight       int
	blocksAcross      int
	blocksDown        int
	blockOffsets      []uint64
	blockByteCounts   []uint64
	compression       uint16
	bytesPerSample    int
	decodeSample      sampleDecoder
	rasterGridOptions []RasterGridOption
}

// A sampleDecoder decodes a single sample.
type sampleDecoder func(byteOrder binary.ByteOrder, data []byte) float64

// LoadGeoTIFF loads the first image of the GeoTIFF filename in fsys.
func LoadGeoTIFF(ctx context.Context, fsys fs.FS, filename string) (*RasterGrid, error) {
	g, err := openGeoTIFF(fsys, filename)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", filename, ErrUnreadableSource, err)
	}
	defer g.Close()
	grid, err := g.rasterGrid(ctx, func(_ context.Context, index int) ([]float64, error) {
		return g.readBlock(index)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return grid, nil
}

// openGeoTIFF opens filename in fsys and parses its first IFD.
func openGeoTIFF(fsys fs.FS, filename string) (*geoTIFF, error) {
	file, err := fsys.Open(filename)
	if err != nil {
		return nil, err
	}
	tiffFile, ok := file.(geoTIFFFile)
	if !ok {
		_ = file.Close()
		return nil, errors.ErrUnsupported
	}
	g := &geoTIFF{
		file: tiffFile,
	}
	success := false
	defer func() {
		if !success {
			_ = g.file.Close()
		}
	}()

	var byteOrderMark [2]byte
	if _, err := g.file.ReadAt(byteOrderMark[:], 0); err != nil {
		return nil, err
	}
	switch string(byteOrderMark[:]) {
	case "II":
		g.byteOrder = binary.LittleEndian
	case "MM":
		g.byteOrder = binary.BigEndian
	default:
		return nil, fmt.Errorf("%q: invalid byte order mark", byteOrderMark[:])
	}

	tiffTIFF, err := tiff.Parse(g.file, tiff.GetTagSpace("GeoTIFF"), nil)
	if err != nil {
		return nil, err
	}
	if len(tiffTIFF.IFDs()) == 0 {
		return nil, errors.New("found 0 IFDs, expected at least 1")
	}

	var ifd geoTIFFIFD
	if err := tiff.UnmarshalIFD(tiffTIFF.IFDs()[0], &ifd); err != nil {
		return nil, err
	}
	if err := g.init(&ifd); err != nil {
		return nil, err
	}

	success = true
	return g, nil
}

// init initializes g's layout and metadata from ifd.
func (g *geoTIFF) init(ifd *geoTIFFIFD) error {
	switch {
	case ifd.SamplesPerPixel > 1:
		return fmt.Errorf("%d samples per pixel: %w", ifd.SamplesPerPixel, errors.ErrUnsupported)
	case ifd.PlanarConfiguration > 1:
		return fmt.Errorf("planar configuration %d: %w", ifd.PlanarConfiguration, errors.ErrUnsupported)
	case ifd.Predictor > 1:
		return fmt.Errorf("predictor %d: %w", ifd.Predictor, errors.ErrUnsupported)
	}

	g.width = int(ifd.ImageWidth)
	g.height = int(ifd.ImageLength)
	if g.width == 0 || g.height == 0 {
		return fmt.Errorf("%w: %dx%d", ErrShape, g.width, g.height)
	}

	g.compression = ifd.Compression
	if g.compression == 0 {
		g.compression = compressionNone
	}
	switch g.compression {
	case compressionNone, compressionLZW, compressionAdobeDeflate, compressionDeflate:
	default:
		return fmt.Errorf("compression %d: %w", g.compression, errors.ErrUnsupported)
	}

	sampleFormat := ifd.SampleFormat
	if sampleFormat == 0 {
		sampleFormat = sampleFormatUint
	}
	decodeSample, err := newSampleDecoder(sampleFormat, ifd.BitsPerSample)
	if err != nil {
		return err
	}
	g.decodeSample = decodeSample
	g.bytesPerSample = int(ifd.BitsPerSample) / 8

	switch {
	case ifd.TileWidth != 0 && ifd.TileLength != 0:
		g.tiled = true
		g.blockWidth = int(ifd.TileWidth)
		g.blockHeight = int(ifd.TileLength)
		g.blockOffsets = ifd.TileOffsets
		g.blockByteCounts = ifd.TileByteCounts
	case len(ifd.StripOffsets) != 0:
		g.blockWidth = g.width
		g.blockHeight = int(ifd.RowsPerStrip)
		if g.blockHeight == 0 || g.blockHeight > g.height {
			g.blockHeight = g.height
		}
		g.blockOffsets = ifd.StripOffsets
		g.blockByteCounts = ifd.StripByteCounts
	default:
		return errors.New("no tiles or strips")
	}
	g.blocksAcross = (g.width + g.blockWidth - 1) / g.blockWidth
	g.blocksDown = (g.height + g.blockHeight - 1) / g.blockHeight
	blocksPerImage := g.blocksAcross * g.blocksDown
	if len(g.blockOffsets) != blocksPerImage || len(g.blockByteCounts) != blocksPerImage {
		return errors.New("incorrect number of block byte counts or offsets")
	}

	if noData, ok, err := parseGDALNoData(ifd.GDALNoData); err != nil {
		return err
	} else if ok {
		// Samples are decoded exactly, so the sentinel must be rounded to
		// the sample precision to match.
		if sampleFormat == sampleFormatFloat && ifd.BitsPerSample == 32 {
			noData = float64(float32(noData))
		}
		g.rasterGridOptions = append(g.rasterGridOptions, WithNoData(noData))
	}

	var geoKeys *ParsedGeoKeys
	if len(ifd.GeoKeyDirectoryTag) != 0 {
		geoKeys, err = ParseGeoKeys(ifd.GeoKeyDirectoryTag, ifd.GeoDoubleParamsTag, ifd.GeoASCIIParamsTag)
		if err != nil {
			return err
		}
	}

	geoTransform, ok, err := ifd.geoTransform()
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	srid := 0
	if geoKeys != nil {
		if geoKeys.RasterType() == RasterPixelIsPoint {
			geoTransform.C -= (geoTransform.A + geoTransform.B) / 2
			geoTransform.F -= (geoTransform.D + geoTransform.E) / 2
		}
		srid = geoKeys.EPSG()
		g.rasterGridOptions = append(g.rasterGridOptions, WithSRID(srid))
	}
	g.rasterGridOptions = append(g.rasterGridOptions, WithGeoTransform(geoTransform))
	if (geoKeys != nil && geoKeys.ModelType() == ModelTypeGeographic) || srid == sridWGS84 {
		_, centerLat := geoTransform.Apply(float64(g.width)/2, float64(g.height)/2)
		degreesWidth, degreesHeight := geoTransform.PixelSize()
		pixelWidth := degreesWidth * metersPerDegreeLon * math.Cos(centerLat*math.Pi/180)
		pixelHeight := degreesHeight * metersPerDegreeLat
		g.rasterGridOptions = append(g.rasterGridOptions, WithPixelSize(pixelWidth, pixelHeight))
	}

	return nil
}

// Close closes g's underlying file.
func (g *geoTIFF) Close() error {
	return g.file.Close()
}

// blockSampleCount returns the number of samples stored in the block at
// index. Tiles are always full size but the last strip may be short.
func (g *geoTIFF) blockSampleCount(index int) int {
	if g.tiled {
		return g.blockWidth * g.blockHeight
	}
	return g.blockWidth * min(g.blockHeight, g.height-index*g.blockHeight)
}

// readBlock reads, decompresses, and decodes the block at index.
func (g *geoTIFF) readBlock(index int) ([]float64, error) {
	compressedData := make([]byte, g.blockByteCounts[index])
	switch n, err := g.file.ReadAt(compressedData, int64(g.blockOffsets[index])); {
	case n == len(compressedData):
	case err != nil && !errors.Is(err, io.EOF):
		return nil, err
	default:
		return nil, errShortRead
	}

	sampleCount := g.blockSampleCount(index)
	blockData, err := g.decompress(compressedData, sampleCount*g.bytesPerSample)
	if err != nil {
		return nil, err
	}

	blockSamples := make([]float64, sampleCount)
	for i := range blockSamples {
		blockSamples[i] = g.decodeSample(g.byteOrder, blockData[i*g.bytesPerSample:(i+1)*g.bytesPerSample])
	}
	return blockSamples, nil
}

// decompress decompresses compressedData into size bytes.
func (g *geoTIFF) decompress(compressedData []byte, size int) ([]byte, error) {
	var r io.Reader
	switch g.compression {
	case compressionNone:
		if len(compressedData) < size {
			return nil, errShortRead
		}
		return compressedData[:size], nil
	case compressionLZW:
		lzwReader := lzw.NewReader(bytes.NewReader(compressedData), lzw.MSB, 8)
		defer lzwReader.Close()
		r = lzwReader
	case compressionAdobeDeflate, compressionDeflate:
		zlibReader, err := zlib.NewReader(bytes.NewReader(compressedData))
		if err != nil {
			return nil, err
		}
		defer zlibReader.Close()
		r = zlibReader
	default:
		return nil, errors.ErrUnsupported
	}
	blockData := make([]byte, size)
	if _, err := io.ReadFull(r, blockData); err != nil {
		return nil, err
	}
	return blockData, nil
}

// rasterGrid assembles g's blocks, as returned by blockFunc, into a
// RasterGrid.
func (g *geoTIFF) rasterGrid(ctx context.Context, blockFunc func(context.Context, int) ([]float64, error)) (*RasterGrid, error) {
	samples := make([]float64, g.width*g.height)
	for blockRow := range g.blocksDown {
		for blockCol := range g.blocksAcross {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			index := blockCol + g.blocksAcross*blockRow
			blockSamples, err := blockFunc(ctx, index)
			if err != nil {
				return nil, fmt.Errorf("%w: block %d: %w", ErrUnreadableSource, index, err)
			}
			row0 := blockRow * g.blockHeight
			col0 := blockCol * g.blockWidth
			rows := min(g.blockHeight, g.height-row0)
			cols := min(g.blockWidth, g.width-col0)
			for r := range rows {
				copy(samples[(row0+r)*g.width+col0:][:cols], blockSamples[r*g.blockWidth:][:cols])
			}
		}
	}
	return NewRasterGridFromSlice(g.width, g.height, samples, g.rasterGridOptions...)
}

// geoTransform returns the GeoTransform described by ifd, if any.
func (ifd *geoTIFFIFD) geoTransform() (GeoTransform, bool, error) {
	switch {
	case len(ifd.ModelTransformationTag) == 16:
		m := ifd.ModelTransformationTag
		return GeoTransform{
			A: m[0], B: m[1], C: m[3],
			D: m[4], E: m[5], F: m[7],
		}, true, nil
	case len(ifd.ModelPixelScaleTag) >= 2 && len(ifd.ModelTiepointTag) >= 6:
		scaleX, scaleY := ifd.ModelPixelScaleTag[0], ifd.ModelPixelScaleTag[1]
		i, j := ifd.ModelTiepointTag[0], ifd.ModelTiepointTag[1]
		x, y := ifd.ModelTiepointTag[3], ifd.ModelTiepointTag[4]
		return GeoTransform{
			A: scaleX, B: 0, C: x - i*scaleX,
			D: 0, E: -scaleY, F: y + j*scaleY,
		}, true, nil
	case len(ifd.ModelTransformationTag) == 0 && len(ifd.ModelPixelScaleTag) == 0 && len(ifd.ModelTiepointTag) == 0:
		return GeoTransform{}, false, nil
	default:
		return GeoTransform{}, false, fmt.Errorf("%w: incomplete model transformation", errParse)
	}
}

// parseGDALNoData parses the value of a GDAL_NODATA tag.
func parseGDALNoData(s string) (float64, bool, error) {
	s = strings.Trim(s, "\x00 ")
	if s == "" {
		return 0, false, nil
	}
	noData, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, fmt.Errorf("%q: invalid nodata: %w", s, err)
	}
	return noData, true, nil
}

func newSampleDecoder(sampleFormat, bitsPerSample uint16) (sampleDecoder, error) {
	switch {
	case sampleFormat == sampleFormatFloat && bitsPerSample == 32:
		return func(byteOrder binary.ByteOrder, data []byte) float64 {
			return float64(math.Float32frombits(byteOrder.Uint32(data)))
		}, nil
	case sampleFormat == sampleFormatFloat && bitsPerSample == 64:
		return func(byteOrder binary.ByteOrder, data []byte) float64 {
			return math.Float64frombits(byteOrder.Uint64(data))
		}, nil
	case sampleFormat == sampleFormatInt && bitsPerSample == 8:
		return func(_ binary.ByteOrder, data []byte) float64 {
			return float64(int8(data[0]))
		}, nil
	case sampleFormat == sampleFormatInt && bitsPerSample == 16:
		return func(byteOrder binary.ByteOrder, data []byte) float64 {
			return float64(int16(byteOrder.Uint16(data)))
		}, nil
	case sampleFormat == sampleFormatInt && bitsPerSample == 32:
		return func(byteOrder binary.ByteOrder, data []byte) float64 {
			return float64(int32(byteOrder.Uint32(data)))
		}, nil
	case sampleFormat == sampleFormatUint && bitsPerSample == 8:
		return func(_ binary.ByteOrder, data []byte) float64 {
			return float64(data[0])
		}, nil
	case sampleFormat == sampleFormatUint && bitsPerSample == 16:
		return func(byteOrder binary.ByteOrder, data []byte) float64 {
			return float64(byteOrder.Uint16(data))
		}, nil
	case sampleFormat == sampleFormatUint && bitsPerSample == 32:
		return func(byteOrder binary.ByteOrder, data []byte) float64 {
			return float64(byteOrder.Uint32(data))
		}, nil
	default:
		return nil, fmt.Errorf("sample format %d with %d bits per sample: %w", sampleFormat, bitsPerSample, errors.ErrUnsupported)
	}
}
