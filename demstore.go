package excavation

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/maypok86/otter/v2"
	"go.uber.org/zap"
)

// A blockKey identifies a decoded block of a GeoTIFF in a DEMStore.
type blockKey struct {
	filename string
	index    int
}

// A storeFile is an open GeoTIFF shared by concurrent loads. It is closed
// once it has been evicted and the last load using it has finished.
type storeFile struct {
	*geoTIFF
	mutex   sync.Mutex
	refs    int
	evicted bool
}

// acquire adds a reference to f, returning false if f is already closed.
func (f *storeFile) acquire() bool {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.evicted && f.refs == 0 {
		return false
	}
	f.refs++
	return true
}

// release removes a reference from f, closing it if it has been evicted.
func (f *storeFile) release() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.refs--
	if f.evicted && f.refs == 0 {
		return f.Close()
	}
	return nil
}

// evict marks f as evicted, closing it if nothing is using it.
func (f *storeFile) evict() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.evicted = true
	if f.refs == 0 {
		return f.Close()
	}
	return nil
}

// A DEMStore loads RasterGrids from GeoTIFFs in a filesystem. It keeps
// recently used files open, caches decoded blocks, and remembers which files
// are missing. A DEMStore is safe for concurrent use.
type DEMStore struct {
	mutex               sync.Mutex
	fsys                fs.FS
	logger              *zap.Logger
	fileCacheSize       int
	blockCacheSizeBytes int
	missingFiles        sync.Map
	fileCache           *lru.Cache[string, *storeFile]
	blockCache          *otter.Cache[blockKey, []float64]
}

// A DEMStoreOption sets an option on a DEMStore.
type DEMStoreOption func(*DEMStore)

// NewDEMStore returns a new DEMStore with the given options.
func NewDEMStore(options ...DEMStoreOption) (*DEMStore, error) {
	s := &DEMStore{
		logger:              zap.NewNop(),
		fileCacheSize:       32,
		blockCacheSizeBytes: 128 << 20, // 128MB.
	}
	for _, option := range options {
		option(s)
	}
	if s.fsys == nil {
		return nil, errors.New("no filesystem")
	}

	var err error
	s.fileCache, err = lru.NewWithEvict(s.fileCacheSize, func(filename string, f *storeFile) {
		fileCacheEvictions.Inc()
		if err := f.evict(); err != nil {
			s.logger.Warn("close", zap.String("filename", filename), zap.Error(err))
		}
	})
	if err != nil {
		return nil, err
	}

	s.blockCache, err = otter.New(&otter.Options[blockKey, []float64]{
		MaximumWeight: uint64(max(s.blockCacheSizeBytes, 1)),
		Weigher: func(_ blockKey, blockSamples []float64) uint32 {
			return uint32(8 * len(blockSamples))
		},
	})
	if err != nil {
		return nil, err
	}

	return s, nil
}

// WithFS sets the filesystem that DEMs are loaded from.
func WithFS(fsys fs.FS) DEMStoreOption {
	return func(s *DEMStore) {
		s.fsys = fsys
	}
}

// WithFileCacheSize sets the maximum number of open files.
func WithFileCacheSize(fileCacheSize int) DEMStoreOption {
	return func(s *DEMStore) {
		s.fileCacheSize = fileCacheSize
	}
}

// WithBlockCacheSize sets the maximum size of the decoded block cache in
// bytes.
func WithBlockCacheSize(blockCacheSizeBytes int) DEMStoreOption {
	return func(s *DEMStore) {
		s.blockCacheSizeBytes = blockCacheSizeBytes
	}
}

func WithStoreLogger(logger *zap.Logger) DEMStoreOption {
	return func(s *DEMStore) {
		s.logger = logger
	}
}

// Load returns a new RasterGrid containing the first image of the GeoTIFF
// filename. Missing and undecodable files return errors wrapping
// ErrUnreadableSource.
func (s *DEMStore) Load(ctx context.Context, filename string) (*RasterGrid, error) {
	f, err := s.getFileCached(filename)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", filename, ErrUnreadableSource, err)
	}
	defer func() {
		if err := f.release(); err != nil {
			s.logger.Warn("close", zap.String("filename", filename), zap.Error(err))
		}
	}()
	grid, err := f.rasterGrid(ctx, func(ctx context.Context, index int) ([]float64, error) {
		return s.blockCache.Get(ctx, blockKey{filename: filename, index: index}, otter.LoaderFunc[blockKey, []float64](func(_ context.Context, key blockKey) ([]float64, error) {
			blockCacheLoads.Inc()
			return f.readBlock(key.index)
		}))
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return grid, nil
}

// Close closes all open files once the loads using them have finished.
func (s *DEMStore) Close() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.fileCache.Purge()
	s.blockCache.InvalidateAll()
}

// getFile opens the file filename, remembering if it is missing.
func (s *DEMStore) getFile(filename string) (*geoTIFF, error) {
	switch g, err := openGeoTIFF(s.fsys, filename); {
	case errors.Is(err, fs.ErrNotExist):
		s.missingFiles.Store(filename, struct{}{})
		missingFileCacheMisses.Inc()
		return nil, err
	case err != nil:
		return nil, err
	default:
		return g, nil
	}
}

// getFileCached returns the open file filename with a reference that the
// caller must release, using the cache if possible.
func (s *DEMStore) getFileCached(filename string) (*storeFile, error) {
	if _, ok := s.missingFiles.Load(filename); ok {
		missingFileCacheHits.Inc()
		return nil, fs.ErrNotExist
	}

	if f, ok := s.fileCache.Get(filename); ok && f.acquire() {
		fileCacheHits.Inc()
		return f, nil
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.missingFiles.Load(filename); ok {
		missingFileCacheHits.Inc()
		return nil, fs.ErrNotExist
	}

	if f, ok := s.fileCache.Get(filename); ok && f.acquire() {
		fileCacheHits.Inc()
		return f, nil
	}

	fileCacheMisses.Inc()

	g, err := s.getFile(filename)
	if err != nil {
		s.logger.Warn("open", zap.String("filename", filename), zap.Error(err))
		return nil, err
	}
	f := &storeFile{
		geoTIFF: g,
		refs:    1,
	}
	s.fileCache.Add(filename, f)
	return f, nil
}
