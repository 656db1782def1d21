package serialization

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for save and load operations.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Buffer counters
	buffersWritten prometheus.Counter
	bytesWritten   prometheus.Counter
	buffersMapped  prometheus.Counter
	bytesMapped    prometheus.Counter

	// Operation metrics
	operations *prometheus.CounterVec   // By op (save/load) and status (ok/error)
	duration   *prometheus.HistogramVec // By op
}

// NewMetrics creates the metrics and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		buffersWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mmpickle",
			Subsystem: "buffer",
			Name:      "written_total",
			Help:      "Total number of buffer files written",
		}),
		bytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mmpickle",
			Subsystem: "buffer",
			Name:      "written_bytes_total",
			Help:      "Total number of bytes written to buffer files",
		}),
		buffersMapped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mmpickle",
			Subsystem: "buffer",
			Name:      "mapped_total",
			Help:      "Total number of buffer files mapped by loads",
		}),
		bytesMapped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mmpickle",
			Subsystem: "buffer",
			Name:      "mapped_bytes_total",
			Help:      "Total number of bytes mapped by loads",
		}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mmpickle",
			Subsystem: "serialization",
			Name:      "operations_total",
			Help:      "Total number of save and load operations",
		}, []string{"op", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mmpickle",
			Subsystem: "serialization",
			Name:      "duration_seconds",
			Help:      "Save and load duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30}, // Millisecond to large checkpoints
		}, []string{"op"}),
	}

	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{
		m.buffersWritten, m.bytesWritten, m.buffersMapped, m.bytesMapped,
		m.operations, m.duration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// recordBufferWritten records one buffer file written.
func (m *Metrics) recordBufferWritten(bytes int) {
	if m == nil {
		return
	}
	m.buffersWritten.Inc()
	m.bytesWritten.Add(float64(bytes))
}

// recordBufferMapped records one buffer file mapped.
func (m *Metrics) recordBufferMapped(bytes int) {
	if m == nil {
		return
	}
	m.buffersMapped.Inc()
	m.bytesMapped.Add(float64(bytes))
}

// recordOperation records the outcome and duration of a save or load.
func (m *Metrics) recordOperation(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.operations.WithLabelValues(op, status).Inc()
	m.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
