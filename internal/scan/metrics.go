package scan

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts work done by scans.
type Metrics struct {
	Tuples     prometheus.Counter
	Segments   prometheus.Counter
	Underflows prometheus.Counter
	Failures   prometheus.Counter
}

// NewMetrics creates scan counters and registers them with reg when reg is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Tuples: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lbm",
			Subsystem: "scan",
			Name:      "tuples_total",
			Help:      "Bitmap index tuples decoded.",
		}),
		Segments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lbm",
			Subsystem: "scan",
			Name:      "segments_total",
			Help:      "Bitmap segments decoded.",
		}),
		Underflows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lbm",
			Subsystem: "scan",
			Name:      "underflows_total",
			Help:      "Reads that found no upstream tuple available.",
		}),
		Failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lbm",
			Subsystem: "scan",
			Name:      "failures_total",
			Help:      "Scans abandoned because of an error.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Tuples, m.Segments, m.Underflows, m.Failures)
	}
	return m
}
