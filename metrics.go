package excavation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	missingFileCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "excavation_missing_file_cache_hits_total",
		Help: "The total number of hits on the missing file cache",
	})
	missingFileCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "excavation_missing_file_cache_misses_total",
		Help: "The total number of misses on the missing file cache",
	})
	fileCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "excavation_file_cache_hits_total",
		Help: "The total number of hits on the open file cache",
	})
	fileCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "excavation_file_cache_misses_total",
		Help: "The total number of misses on the open file cache",
	})
	fileCacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "excavation_file_cache_evictions_total",
		Help: "The total number of evictions from the open file cache",
	})
	blockCacheLoads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "excavation_block_cache_loads_total",
		Help: "The total number of blocks decoded on block cache misses",
	})
	analyses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "excavation_analyses_total",
		Help: "The total number of analyses by result",
	}, []string{"result"})
	surfaceEstimates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "excavation_surface_estimates_total",
		Help: "The total number of surface estimates by method used",
	}, []string{"method"})
	integrationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "excavation_integration_failures_total",
		Help: "The total number of failed volume integrations",
	})
)

// Values of the result label of excavation_analyses_total.
const (
	analysisResultMeasured  = "measured"
	analysisResultSynthetic = "synthetic"
)
