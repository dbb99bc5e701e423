// Package metrics is the observability ambient stack carried regardless of
// spec.md's non-goals around external interfaces: prometheus counters and
// gauges for operation volume and region occupancy, plus an
// HdrHistogram-backed latency recorder for the two operations whose tail
// matters most, Commit and Execute.
package metrics

import (
	"sync"
	"time"

	hdrhistogram "github.com/HdrHistogram/hdrhistogram-go"
	"github.com/prometheus/client_golang/prometheus"
)

// Collector aggregates counters, gauges, and latency histograms for one
// open store.
type Collector struct {
	Puts     prometheus.Counter
	Gets     prometheus.Counter
	Deletes  prometheus.Counter
	Commits  prometheus.Counter
	Executes prometheus.Counter
	Aborts   prometheus.Counter
	NoSpace  prometheus.Counter

	FreeData prometheus.Gauge
	LiveData prometheus.Gauge
	FreeMeta prometheus.Gauge
	LiveMeta prometheus.Gauge

	mu          sync.Mutex
	commitHist  *hdrhistogram.Histogram
	executeHist *hdrhistogram.Histogram
}

// New builds a Collector with metric names under the given namespace.
// Registration against a prometheus.Registerer is a separate step
// (MustRegister) so embedders that only want Snapshot() for cmd/pmb stats
// never need to stand up a registry at all.
func New(namespace string) *Collector {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help})
	}
	return &Collector{
		Puts:     counter("puts_total", "Put/PutMeta calls that staged a new block."),
		Gets:     counter("gets_total", "Get calls that found a live block."),
		Deletes:  counter("deletes_total", "Delete calls that staged a removal."),
		Commits:  counter("commits_total", "Transaction commits."),
		Executes: counter("executes_total", "Transaction executes."),
		Aborts:   counter("aborts_total", "Transaction aborts."),
		NoSpace:  counter("no_space_errors_total", "Operations rejected for lack of free blocks or tx slots."),
		FreeData: gauge("data_blocks_free", "Data-region blocks currently free."),
		LiveData: gauge("data_blocks_live", "Data-region blocks currently live."),
		FreeMeta: gauge("meta_blocks_free", "Meta-region blocks currently free."),
		LiveMeta: gauge("meta_blocks_live", "Meta-region blocks currently live."),

		commitHist:  hdrhistogram.New(1, 10*time.Second.Microseconds(), 3),
		executeHist: hdrhistogram.New(1, 10*time.Second.Microseconds(), 3),
	}
}

// MustRegister registers every counter and gauge with r.
func (c *Collector) MustRegister(r prometheus.Registerer) {
	r.MustRegister(
		c.Puts, c.Gets, c.Deletes, c.Commits, c.Executes, c.Aborts, c.NoSpace,
		c.FreeData, c.LiveData, c.FreeMeta, c.LiveMeta,
	)
}

// ObserveCommit records a Commit's wall-clock latency.
func (c *Collector) ObserveCommit(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.commitHist.RecordValue(d.Microseconds())
}

// ObserveExecute records an Execute's wall-clock latency.
func (c *Collector) ObserveExecute(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.executeHist.RecordValue(d.Microseconds())
}

// Snapshot is a point-in-time read of latency percentiles, in
// microseconds, used by cmd/pmb's stats command to print commit/execute
// percentiles without running a scrape loop.
type Snapshot struct {
	CommitP50, CommitP99   int64
	ExecuteP50, ExecuteP99 int64
}

func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		CommitP50:  c.commitHist.ValueAtQuantile(50),
		CommitP99:  c.commitHist.ValueAtQuantile(99),
		ExecuteP50: c.executeHist.ValueAtQuantile(50),
		ExecuteP99: c.executeHist.ValueAtQuantile(99),
	}
}
