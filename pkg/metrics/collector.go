package metrics

import "time"

// StatsSource is the poll surface for gauges, so the collector need not
// import the datastore or commit log packages directly
// (avoids an import cycle: datastore/commitlog sit below this package).
type StatsSource interface {
	// TableRowCounts returns the committed row count of every table, keyed
	// by table name.
	TableRowCounts() map[string]int64
	// SegmentBytes returns the size in bytes of the commit log's
	// currently-open segment.
	SegmentBytes() int64
}

// Collector periodically polls a StatsSource and updates the package-level
// gauges.
type Collector struct {
	source StatsSource
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector.
func NewCollector(source StatsSource) *Collector {
	return &Collector{
		source: source,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics every 15 seconds.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	if c.source == nil {
		return
	}

	counts := c.source.TableRowCounts()
	TablesTotal.Set(float64(len(counts)))
	for table, n := range counts {
		RowsTotal.WithLabelValues(table).Set(float64(n))
	}

	CommitlogSegmentBytes.Set(float64(c.source.SegmentBytes()))
}
