package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/linchenxuan/strixlog/log"
)

// StatsSource provides stream counters, typically a *log.Manager.
type StatsSource interface {
	Stats() []log.StreamStats
}

// suppressedSource is implemented by sources that rate limit their error output.
type suppressedSource interface {
	SuppressedErrors() uint64
}

type streamMetric struct {
	desc  *prometheus.Desc
	vt    prometheus.ValueType
	value func(st *log.StreamStats) float64
}

// Collector reads stream counters on every scrape. It keeps no state of its
// own, so the values are exactly what the streams report at scrape time.
type Collector struct {
	src        StatsSource
	metrics    []streamMetric
	suppressed *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

func newDesc(name, help string, labels ...string) *prometheus.Desc {
	return prometheus.NewDesc(prometheus.BuildFQName("", GroupStrixLog, name), help, labels, nil)
}

// NewCollector returns a collector over src.
func NewCollector(src StatsSource) *Collector {
	counter := func(name, help string, f func(*log.StreamStats) uint64) streamMetric {
		return streamMetric{
			desc:  newDesc(name, help, DimStream),
			vt:    prometheus.CounterValue,
			value: func(st *log.StreamStats) float64 { return float64(f(st)) },
		}
	}

	return &Collector{
		src: src,
		metrics: []streamMetric{
			counter(NameFramedRecordsTotal, "Records staged by callers.",
				func(st *log.StreamStats) uint64 { return st.FramedRecords }),
			counter(NameFramedBytesTotal, "Bytes of records staged by callers.",
				func(st *log.StreamStats) uint64 { return st.FramedBytes }),
			counter(NameDrainedRecordsTotal, "Records delivered by the drain goroutine.",
				func(st *log.StreamStats) uint64 { return st.DrainedRecords }),
			counter(NameDrainedBytesTotal, "Bytes delivered by the drain goroutine.",
				func(st *log.StreamStats) uint64 { return st.DrainedBytes }),
			counter(NameDirectRecordsTotal, "Records written to stdout after shutdown.",
				func(st *log.StreamStats) uint64 { return st.DirectRecords }),
			counter(NameBusySignalsTotal, "Early drain wakeups caused by a full slot.",
				func(st *log.StreamStats) uint64 { return st.BusySignals }),
			counter(NameRotationsTotal, "Log file rotations.",
				func(st *log.StreamStats) uint64 { return st.Rotations }),
			counter(NameDroppedBytesTotal, "Bytes that could not be written to a log file.",
				func(st *log.StreamStats) uint64 { return st.DroppedBytes }),
			{
				desc:  newDesc(NameSlots, "Caller slots allocated by the stream.", DimStream),
				vt:    prometheus.GaugeValue,
				value: func(st *log.StreamStats) float64 { return float64(st.Slots) },
			},
			{
				desc:  newDesc(NameFileOffsetBytes, "Bytes written to the current log file.", DimStream),
				vt:    prometheus.GaugeValue,
				value: func(st *log.StreamStats) float64 { return float64(st.FileOffset) },
			},
		},
		suppressed: newDesc(NameSuppressedErrorsTotal, "Internal errors not printed because of rate limiting."),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, m := range c.metrics {
		ch <- m.desc
	}
	if _, ok := c.src.(suppressedSource); ok {
		ch <- c.suppressed
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	stats := c.src.Stats()
	for i := range stats {
		st := &stats[i]
		for _, m := range c.metrics {
			ch <- prometheus.MustNewConstMetric(m.desc, m.vt, m.value(st), st.Name)
		}
	}
	if s, ok := c.src.(suppressedSource); ok {
		ch <- prometheus.MustNewConstMetric(c.suppressed, prometheus.CounterValue, float64(s.SuppressedErrors()))
	}
}

// Register registers a collector over src with reg.
func Register(reg prometheus.Registerer, src StatsSource) (*Collector, error) {
	c := NewCollector(src)
	if err := reg.Register(c); err != nil {
		return nil, err
	}
	return c, nil
}
