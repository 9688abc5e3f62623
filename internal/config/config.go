// Package config provides configuration management for the HRCE engine.
package config

import (
	"encoding/json"
	"os"

	"gopkg.in/yaml.v3"
)

// EvictionPolicy names a cache tier's eviction strategy.
type EvictionPolicy string

const (
	EvictionTTL    EvictionPolicy = "ttl"
	EvictionLRU    EvictionPolicy = "lru"
	EvictionLFU    EvictionPolicy = "lfu"
	EvictionFIFO   EvictionPolicy = "fifo"
	EvictionRandom EvictionPolicy = "random"
	EvictionManual EvictionPolicy = "manual"
	EvictionHybrid EvictionPolicy = "hybrid"
)

// WarmingStrategy names a Cache Warmer strategy.
type WarmingStrategy string

const (
	WarmingEager     WarmingStrategy = "eager"
	WarmingFrequency WarmingStrategy = "frequency"
	WarmingScheduled WarmingStrategy = "scheduled"
	WarmingLearning  WarmingStrategy = "learning"
)

// Config holds every recognized HRCE setting. Field order follows the
// teacher's flat, fieldalignment-conscious style: one struct, JSON tags,
// grouped by concern prefix rather than nested structs.
type Config struct {
	// L1 in-process cache.
	L1MaxEntries   int   `json:"l1.max_entries" yaml:"l1MaxEntries"`
	L1MaxSizeBytes int64 `json:"l1.max_size_bytes" yaml:"l1MaxSizeBytes"`
	L1DefaultTTLMS int64 `json:"l1.default_ttl_ms" yaml:"l1DefaultTtlMs"`

	// L2 distributed cache.
	L2URL          string `json:"l2.url" yaml:"l2Url"`
	L2DefaultTTLMS int64  `json:"l2.default_ttl_ms" yaml:"l2DefaultTtlMs"`
	L2Enabled      bool   `json:"l2.enabled" yaml:"l2Enabled"`

	CacheInvalidation EvictionPolicy `json:"cache.invalidation" yaml:"cacheInvalidation"`

	// Cache warming.
	WarmingStrategy      WarmingStrategy `json:"warming.strategy" yaml:"warmingStrategy"`
	WarmingMaxItems      int             `json:"warming.max_items" yaml:"warmingMaxItems"`
	WarmingBatchSize     int             `json:"warming.batch_size" yaml:"warmingBatchSize"`
	// WarmingGraceWindowMS protects an L1 entry from warming-triggered
	// eviction for this long after its last access (spec.md §4.9).
	WarmingGraceWindowMS int64 `json:"warming.grace_window_ms" yaml:"warmingGraceWindowMs"`

	// Strategy router.
	RouterEnableLearning      bool `json:"router.enable_learning" yaml:"routerEnableLearning"`
	RouterFeedbackBufferSize  int  `json:"router.feedback_buffer_size" yaml:"routerFeedbackBufferSize"`
	RouterExactThreshold      int  `json:"router.exact_threshold" yaml:"routerExactThreshold"`
	RouterHNSWThreshold       int  `json:"router.hnsw_threshold" yaml:"routerHnswThreshold"`

	// Reranker.
	RerankWeightSimilarity float64 `json:"rerank.weights.similarity" yaml:"rerankWeightSimilarity"`
	RerankWeightMetadata   float64 `json:"rerank.weights.metadata" yaml:"rerankWeightMetadata"`
	RerankWeightTime       float64 `json:"rerank.weights.time" yaml:"rerankWeightTime"`
	RerankWeightImportance float64 `json:"rerank.weights.importance" yaml:"rerankWeightImportance"`
	RerankWeightQuality    float64 `json:"rerank.weights.quality" yaml:"rerankWeightQuality"`
	RerankTopN             int     `json:"rerank.top_n" yaml:"rerankTopN"`

	// Search / fusion / threshold.
	SearchRRFConstant     float64 `json:"search.rrf_k" yaml:"searchRrfK"`
	SearchDefaultThreshold float64 `json:"search.default_threshold" yaml:"searchDefaultThreshold"`
	SearchMinThreshold    float64 `json:"search.min_threshold" yaml:"searchMinThreshold"`
	SearchMaxThreshold    float64 `json:"search.max_threshold" yaml:"searchMaxThreshold"`

	// Cache monitor.
	MonitorSnapshotIntervalSecs int `json:"monitor.snapshot_interval_secs" yaml:"monitorSnapshotIntervalSecs"`
	MonitorSlowQueryThresholdMS int `json:"monitor.slow_query_threshold_ms" yaml:"monitorSlowQueryThresholdMs"`
	MonitorMaxSnapshots         int `json:"monitor.max_snapshots" yaml:"monitorMaxSnapshots"`
	MonitorHitRateAlertFloor    float64 `json:"monitor.hit_rate_alert_floor" yaml:"monitorHitRateAlertFloor"`

	// Batch executor.
	BatchSize          int `json:"batch.size" yaml:"batchSize"`
	BatchMaxConcurrency int `json:"batch.max_concurrency" yaml:"batchMaxConcurrency"`
	BatchTimeoutSecs   int `json:"batch.timeout_secs" yaml:"batchTimeoutSecs"`
	BatchQueueCapacity int `json:"batch.queue_capacity" yaml:"batchQueueCapacity"`

	// Query-result cache.
	QueryCacheDefaultTTLMS int64 `json:"query_cache.default_ttl_ms" yaml:"queryCacheDefaultTtlMs"`
	QueryCacheCleanupIntervalMS int64 `json:"query_cache.cleanup_interval_ms" yaml:"queryCacheCleanupIntervalMs"`

	// Request/driver timeouts.
	RequestTimeoutSecs int `json:"request_timeout_secs" yaml:"requestTimeoutSecs"`
	DriverTimeoutSecs  int `json:"driver_timeout_secs" yaml:"driverTimeoutSecs"`
}

// Default returns a Config with the spec's defaults.
func Default() *Config {
	return &Config{
		L1MaxEntries:   10_000,
		L1MaxSizeBytes: 64 << 20,
		L1DefaultTTLMS: 5 * 60 * 1000,

		L2URL:          "redis://127.0.0.1:6379/0",
		L2DefaultTTLMS: 5 * 60 * 1000,
		L2Enabled:      false,

		CacheInvalidation: EvictionHybrid,

		WarmingStrategy:      WarmingFrequency,
		WarmingMaxItems:      100,
		WarmingBatchSize:     5,
		WarmingGraceWindowMS: 10_000,

		RouterEnableLearning:     true,
		RouterFeedbackBufferSize: 10_000,
		RouterExactThreshold:     10_000,
		RouterHNSWThreshold:      100_000,

		RerankWeightSimilarity: 0.40,
		RerankWeightMetadata:   0.20,
		RerankWeightTime:       0.15,
		RerankWeightImportance: 0.15,
		RerankWeightQuality:    0.10,
		RerankTopN:             100,

		SearchRRFConstant:      60,
		SearchDefaultThreshold: 0.4,
		SearchMinThreshold:     0.0,
		SearchMaxThreshold:     0.9,

		MonitorSnapshotIntervalSecs: 60,
		MonitorSlowQueryThresholdMS: 50,
		MonitorMaxSnapshots:         1000,
		MonitorHitRateAlertFloor:    0.70,

		BatchSize:           50,
		BatchMaxConcurrency: 10,
		BatchTimeoutSecs:    30,
		BatchQueueCapacity:  1000,

		QueryCacheDefaultTTLMS:      5 * 60 * 1000,
		QueryCacheCleanupIntervalMS: 60 * 1000,

		RequestTimeoutSecs: 30,
		DriverTimeoutSecs:  10,
	}
}

// Load reads a JSON settings file, merging it over Default(). Any read or
// parse error yields the defaults rather than failing, matching the
// teacher's config.Load().
func Load(path string) *Config {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return Default()
	}
	return cfg
}

// LoadYAML reads a YAML settings file, merging it over Default(). This is
// a sibling of Load for operators who prefer YAML; semantics match: any
// read or parse error yields defaults.
func LoadYAML(path string) *Config {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return Default()
	}
	return cfg
}
