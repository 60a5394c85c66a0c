// Package metrics provides Prometheus metrics for chunkstore.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for chunkstore.
type Metrics struct {
	// Commit (store()) metrics.
	CommitsTotal    *prometheus.CounterVec
	CommitDuration  prometheus.Histogram
	CommitBytes     prometheus.Histogram
	CurrentVersion  prometheus.Gauge

	// Chunk and space-accounting metrics.
	ChunkCount        prometheus.Gauge
	ChunkMaxLength    prometheus.Gauge
	ChunkMaxLengthLive prometheus.Gauge
	FileSizeBytes     prometheus.Gauge

	// Compaction metrics.
	CompactionsTotal       *prometheus.CounterVec
	CompactionDuration     prometheus.Histogram
	CompactionChunksRewritten prometheus.Counter
	CompactionKeysRewritten   prometheus.Counter

	// Rollback metrics.
	RollbacksTotal *prometheus.CounterVec

	// Page cache metrics.
	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter
	CacheUsedBytes   prometheus.Gauge

	ServerUptimeSeconds prometheus.Gauge
	ServerStartTime     time.Time
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		ServerStartTime: time.Now(),
	}

	m.CommitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chunkstore_commits_total",
			Help: "Total number of store() calls, by status",
		},
		[]string{"status"},
	)

	m.CommitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chunkstore_commit_duration_seconds",
			Help:    "Duration of store() calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	m.CommitBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chunkstore_commit_bytes",
			Help:    "Size of the chunk written by each store() call",
			Buckets: prometheus.ExponentialBuckets(1<<12, 2, 12),
		},
	)

	m.CurrentVersion = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chunkstore_current_version",
			Help: "Most recently committed version number",
		},
	)

	m.ChunkCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chunkstore_chunk_count",
			Help: "Number of chunks currently tracked",
		},
	)

	m.ChunkMaxLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chunkstore_chunk_max_length_bytes",
			Help: "Sum of maxLength across all chunks",
		},
	)

	m.ChunkMaxLengthLive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chunkstore_chunk_max_length_live_bytes",
			Help: "Sum of maxLengthLive across all chunks",
		},
	)

	m.FileSizeBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chunkstore_file_size_bytes",
			Help: "Current on-disk file size",
		},
	)

	m.CompactionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chunkstore_compactions_total",
			Help: "Total number of compact() calls, by status",
		},
		[]string{"status"},
	)

	m.CompactionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chunkstore_compaction_duration_seconds",
			Help:    "Duration of compact() calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	m.CompactionChunksRewritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chunkstore_compaction_chunks_selected_total",
			Help: "Total number of chunks selected for compaction",
		},
	)

	m.CompactionKeysRewritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chunkstore_compaction_keys_rewritten_total",
			Help: "Total number of keys rewritten by compaction",
		},
	)

	m.RollbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chunkstore_rollbacks_total",
			Help: "Total number of rollbackTo() calls, by status",
		},
		[]string{"status"},
	)

	m.CacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chunkstore_cache_hits_total",
			Help: "Total number of page cache hits",
		},
	)

	m.CacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chunkstore_cache_misses_total",
			Help: "Total number of page cache misses",
		},
	)

	m.CacheUsedBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chunkstore_cache_used_bytes",
			Help: "Current page cache byte usage",
		},
	)

	m.ServerUptimeSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chunkstore_uptime_seconds",
			Help: "Process uptime in seconds",
		},
	)

	go m.updateUptime()

	return m
}

// updateUptime periodically updates the uptime gauge.
func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.ServerUptimeSeconds.Set(time.Since(m.ServerStartTime).Seconds())
	}
}

// RecordCommit records one store() call's outcome.
func (m *Metrics) RecordCommit(status string, duration time.Duration, bytesWritten int) {
	m.CommitsTotal.WithLabelValues(status).Inc()
	m.CommitDuration.Observe(duration.Seconds())
	if bytesWritten > 0 {
		m.CommitBytes.Observe(float64(bytesWritten))
	}
}

// RecordCompaction records one compact() call's outcome.
func (m *Metrics) RecordCompaction(status string, duration time.Duration, chunksSelected, keysRewritten int) {
	m.CompactionsTotal.WithLabelValues(status).Inc()
	m.CompactionDuration.Observe(duration.Seconds())
	m.CompactionChunksRewritten.Add(float64(chunksSelected))
	m.CompactionKeysRewritten.Add(float64(keysRewritten))
}

// RecordRollback records one rollbackTo() call's outcome.
func (m *Metrics) RecordRollback(status string) {
	m.RollbacksTotal.WithLabelValues(status).Inc()
}

// UpdateSpaceStats updates the chunk and file-size gauges.
func (m *Metrics) UpdateSpaceStats(currentVersion int64, chunkCount int, maxLength, maxLengthLive uint64, fileSizeBytes int64) {
	m.CurrentVersion.Set(float64(currentVersion))
	m.ChunkCount.Set(float64(chunkCount))
	m.ChunkMaxLength.Set(float64(maxLength))
	m.ChunkMaxLengthLive.Set(float64(maxLengthLive))
	m.FileSizeBytes.Set(float64(fileSizeBytes))
}

// UpdateCacheStats updates the cache byte-usage gauge.
func (m *Metrics) UpdateCacheStats(usedBytes int64) {
	m.CacheUsedBytes.Set(float64(usedBytes))
}
