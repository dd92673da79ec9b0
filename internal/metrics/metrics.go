package metrics

import (
	"net/http"
	"time"

	"codeberg.org/mutker/thermowatch/internal/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "thermowatch"

var alarmStates = []string{"unknown", "normal", "alarm"}

type promRecorder struct {
	registry *prometheus.Registry

	ingested   prometheus.Counter
	rejected   *prometheus.CounterVec
	evicted    prometheus.Counter
	bufferSize prometheus.Gauge
	queries    *prometheus.HistogramVec
	alarm      *prometheus.GaugeVec
}

type noopRecorder struct{}

// New returns a Prometheus-backed Recorder with its own registry, or a no-op
// Recorder when metrics are disabled.
func New(cfg Config) (Recorder, error) {
	if !cfg.Enabled {
		return NewNoop(), nil
	}
	return NewPrometheus(prometheus.NewRegistry())
}

// NewPrometheus registers the collectors on reg.
func NewPrometheus(reg *prometheus.Registry) (Recorder, error) {
	errFactory := errors.New()

	r := &promRecorder{
		registry: reg,
		ingested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_ingested_total",
			Help:      "Samples accepted into the retention buffer.",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_rejected_total",
			Help:      "Payloads rejected at ingest, by error code.",
		}, []string{"reason"}),
		evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_evicted_total",
			Help:      "Samples dropped after leaving the retention window.",
		}),
		bufferSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "buffer_samples",
			Help:      "Samples currently held in the retention buffer.",
		}),
		queries: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Time spent answering read queries.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
		}, []string{"kind"}),
		alarm: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "alarm_state",
			Help:      "Last evaluated alarm state; 1 for the active state.",
		}, []string{"state"}),
	}

	for _, c := range []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.ingested,
		r.rejected,
		r.evicted,
		r.bufferSize,
		r.queries,
		r.alarm,
	} {
		if err := reg.Register(c); err != nil {
			return nil, errFactory.Wrap(ErrRegisterFailed, err)
		}
	}

	return r, nil
}

func (r *promRecorder) SampleIngested() {
	r.ingested.Inc()
}

func (r *promRecorder) IngestRejected(code errors.ErrorCode) {
	r.rejected.WithLabelValues(string(code)).Inc()
}

func (r *promRecorder) SamplesEvicted(n int) {
	if n > 0 {
		r.evicted.Add(float64(n))
	}
}

func (r *promRecorder) BufferSize(n int) {
	r.bufferSize.Set(float64(n))
}

func (r *promRecorder) QueryObserved(kind string, d time.Duration) {
	r.queries.WithLabelValues(kind).Observe(d.Seconds())
}

func (r *promRecorder) AlarmState(state string) {
	for _, s := range alarmStates {
		v := 0.0
		if s == state {
			v = 1
		}
		r.alarm.WithLabelValues(s).Set(v)
	}
}

func (r *promRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// NewNoop returns a Recorder that discards everything.
func NewNoop() Recorder {
	return &noopRecorder{}
}

func (n *noopRecorder) SampleIngested()                     {}
func (n *noopRecorder) IngestRejected(errors.ErrorCode)     {}
func (n *noopRecorder) SamplesEvicted(int)                  {}
func (n *noopRecorder) BufferSize(int)                      {}
func (n *noopRecorder) QueryObserved(string, time.Duration) {}
func (n *noopRecorder) AlarmState(string)                   {}

func (n *noopRecorder) Handler() http.Handler {
	return http.NotFoundHandler()
}
