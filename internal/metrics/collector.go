// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector 检索引擎指标收集器。
// nil Collector 上的全部方法都是空操作，组件不需要判空。
type Collector struct {
	// 嵌入缓存指标
	cacheHits      prometheus.Counter
	cacheMisses    prometheus.Counter
	cacheEvictions prometheus.Counter
	cacheEntries   prometheus.Gauge

	// 检索信号指标
	signalDuration *prometheus.HistogramVec
	signalResults  *prometheus.CounterVec
	signalFailures *prometheus.CounterVec

	// 重排序指标
	rerankBatchesTotal  prometheus.Counter
	rerankBatchesFailed prometheus.Counter

	// 上下文装配指标
	assembledTokens     prometheus.Histogram
	assembledCandidates prometheus.Histogram
	assemblyTruncations prometheus.Counter

	// 查询整体指标
	retrieveDuration prometheus.Histogram
	retrieveTotal    *prometheus.CounterVec
}

// NewCollector 创建指标收集器。reg 为 nil 时使用默认注册表。
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	c := &Collector{}

	c.cacheHits = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "embedding_cache_hits_total",
		Help:      "Total number of embedding cache hits",
	})
	c.cacheMisses = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "embedding_cache_misses_total",
		Help:      "Total number of embedding cache misses",
	})
	c.cacheEvictions = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "embedding_cache_evictions_total",
		Help:      "Total number of embedding cache evictions",
	})
	c.cacheEntries = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "embedding_cache_entries",
		Help:      "Current number of embedding cache entries",
	})

	c.signalDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "signal_duration_seconds",
			Help:      "Per-signal retrieval duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"signal"},
	)
	c.signalResults = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signal_results_total",
			Help:      "Total number of candidates produced per signal",
		},
		[]string{"signal"},
	)
	c.signalFailures = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signal_failures_total",
			Help:      "Total number of absorbed signal failures",
		},
		[]string{"signal", "reason"},
	)

	c.rerankBatchesTotal = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rerank_batches_total",
		Help:      "Total number of rerank scoring batches",
	})
	c.rerankBatchesFailed = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rerank_batches_failed_total",
		Help:      "Total number of failed rerank scoring batches",
	})

	c.assembledTokens = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "assembled_tokens",
		Help:      "Token cost of assembled context per query",
		Buckets:   prometheus.ExponentialBuckets(64, 2, 10),
	})
	c.assembledCandidates = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "assembled_candidates",
		Help:      "Number of candidates accepted per query",
		Buckets:   prometheus.LinearBuckets(1, 2, 15),
	})
	c.assemblyTruncations = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "assembly_truncations_total",
		Help:      "Total number of single-candidate budget truncations",
	})

	c.retrieveDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "retrieve_duration_seconds",
		Help:      "End-to-end retrieve duration in seconds",
		Buckets:   prometheus.DefBuckets,
	})
	c.retrieveTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrieve_total",
			Help:      "Total number of retrieve calls",
		},
		[]string{"status"},
	)

	return c
}

// RecordCacheHit 记录缓存命中。
func (c *Collector) RecordCacheHit() {
	if c == nil {
		return
	}
	c.cacheHits.Inc()
}

// RecordCacheMiss 记录缓存未命中。
func (c *Collector) RecordCacheMiss() {
	if c == nil {
		return
	}
	c.cacheMisses.Inc()
}

// RecordCacheEviction 记录缓存淘汰。
func (c *Collector) RecordCacheEviction() {
	if c == nil {
		return
	}
	c.cacheEvictions.Inc()
}

// SetCacheEntries 更新缓存条目数。
func (c *Collector) SetCacheEntries(n int) {
	if c == nil {
		return
	}
	c.cacheEntries.Set(float64(n))
}

// RecordSignal 记录某信号的一次检索。
func (c *Collector) RecordSignal(signal string, d time.Duration, results int) {
	if c == nil {
		return
	}
	c.signalDuration.WithLabelValues(signal).Observe(d.Seconds())
	c.signalResults.WithLabelValues(signal).Add(float64(results))
}

// RecordSignalFailure 记录被吸收的信号故障。
func (c *Collector) RecordSignalFailure(signal, reason string) {
	if c == nil {
		return
	}
	c.signalFailures.WithLabelValues(signal, reason).Inc()
}

// RecordRerankBatch 记录一个重排序批次。
func (c *Collector) RecordRerankBatch(failed bool) {
	if c == nil {
		return
	}
	c.rerankBatchesTotal.Inc()
	if failed {
		c.rerankBatchesFailed.Inc()
	}
}

// RecordAssembly 记录一次上下文装配。
func (c *Collector) RecordAssembly(tokens, accepted int, truncated bool) {
	if c == nil {
		return
	}
	c.assembledTokens.Observe(float64(tokens))
	c.assembledCandidates.Observe(float64(accepted))
	if truncated {
		c.assemblyTruncations.Inc()
	}
}

// RecordRetrieve 记录一次 retrieve 调用。
func (c *Collector) RecordRetrieve(d time.Duration, status string) {
	if c == nil {
		return
	}
	c.retrieveDuration.Observe(d.Seconds())
	c.retrieveTotal.WithLabelValues(status).Inc()
}
