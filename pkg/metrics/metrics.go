// Package metrics exports the Prometheus collectors the buffer pool and
// hash index touch. A nil *Collectors is valid everywhere an argument of
// this type is accepted — metrics are an additive observability layer,
// never a correctness dependency.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collectors bundles the counters/gauges this module exports. Construct
// once per process via New and register it with whatever registry the
// caller already owns.
type Collectors struct {
	PoolHits      prometheus.Counter
	PoolMisses    prometheus.Counter
	PoolEvictions prometheus.Counter
	PoolSize      prometheus.Gauge

	IndexSplits prometheus.Counter
	IndexMerges prometheus.Counter
	IndexGrows  prometheus.Counter
	IndexShrink prometheus.Counter
}

// New builds a fresh set of collectors and registers them against reg.
// Pass prometheus.NewRegistry() in tests to avoid colliding with the
// default global registry across parallel test binaries.
func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		PoolHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pagestore_buffer_pool_hits_total",
			Help: "Fetches served from a resident frame.",
		}),
		PoolMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pagestore_buffer_pool_misses_total",
			Help: "Fetches that required a disk read.",
		}),
		PoolEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pagestore_buffer_pool_evictions_total",
			Help: "Frames reclaimed via the replacer (free list excluded).",
		}),
		PoolSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pagestore_buffer_pool_size",
			Help: "Total frame capacity across all buffer pool instances.",
		}),
		IndexSplits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pagestore_hash_index_splits_total",
			Help: "Bucket splits performed by the extendible hash index.",
		}),
		IndexMerges: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pagestore_hash_index_merges_total",
			Help: "Bucket merges performed by the extendible hash index.",
		}),
		IndexGrows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pagestore_hash_index_directory_grows_total",
			Help: "Directory global-depth increments.",
		}),
		IndexShrink: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pagestore_hash_index_directory_shrinks_total",
			Help: "Directory global-depth decrements.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			c.PoolHits, c.PoolMisses, c.PoolEvictions, c.PoolSize,
			c.IndexSplits, c.IndexMerges, c.IndexGrows, c.IndexShrink,
		)
	}
	return c
}

// Hit, Miss, Eviction, Split, Merge, Grow, Shrink are nil-receiver-safe:
// every call site can invoke them on a possibly-nil *Collectors without a
// separate guard.
func (c *Collectors) Hit() {
	if c != nil {
		c.PoolHits.Inc()
	}
}

func (c *Collectors) Miss() {
	if c != nil {
		c.PoolMisses.Inc()
	}
}

func (c *Collectors) Eviction() {
	if c != nil {
		c.PoolEvictions.Inc()
	}
}

func (c *Collectors) Split() {
	if c != nil {
		c.IndexSplits.Inc()
	}
}

func (c *Collectors) Merge() {
	if c != nil {
		c.IndexMerges.Inc()
	}
}

func (c *Collectors) Grow() {
	if c != nil {
		c.IndexGrows.Inc()
	}
}

func (c *Collectors) Shrink() {
	if c != nil {
		c.IndexShrink.Inc()
	}
}

// SetPoolSize records the total frame capacity across all instances.
func (c *Collectors) SetPoolSize(n int) {
	if c != nil && c.PoolSize != nil {
		c.PoolSize.Set(float64(n))
	}
}
