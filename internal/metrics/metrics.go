// Package metrics exposes Prometheus instrumentation for issuance, scans,
// rotation timers and the metadata store.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder holds the service metrics.  A nil *Recorder is valid and records
// nothing, so components can be built without instrumentation in tests.
type Recorder struct {
	issued          *prometheus.CounterVec
	scans           *prometheus.CounterVec
	deactivated     prometheus.Counter
	cleaned         prometheus.Counter
	activeRotations prometheus.Gauge
	rotationTicks   prometheus.Counter
	storeLatency    *prometheus.HistogramVec
}

// NewRecorder registers metrics with the provided registry.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		issued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qr_codes_issued_total",
			Help: "QR codes issued grouped by kind and security level",
		}, []string{"kind", "level"}),
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qr_scans_total",
			Help: "Scan validations grouped by result and rejection reason",
		}, []string{"result", "reason"}),
		deactivated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qr_codes_deactivated_total",
			Help: "QR codes explicitly deactivated",
		}),
		cleaned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qr_codes_expired_removed_total",
			Help: "Expired QR codes removed by cleanup",
		}),
		activeRotations: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "qr_rotation_timers_active",
			Help: "Number of rotation timers currently running",
		}),
		rotationTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qr_rotation_ticks_total",
			Help: "Rotation counter increments across all codes",
		}),
		storeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "qr_store_duration_seconds",
			Help:    "Latency of metadata store operations",
			Buckets: prometheus.DefBuckets,
		}, []string{"op", "result"}),
	}
	reg.MustRegister(r.issued, r.scans, r.deactivated, r.cleaned, r.activeRotations, r.rotationTicks, r.storeLatency)
	return r
}

// Handler returns the HTTP handler serving the registry.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (r *Recorder) ObserveIssued(kind, level string) {
	if r == nil {
		return
	}
	r.issued.WithLabelValues(kind, level).Inc()
}

// ObserveScan counts a validation.  reason is empty for accepted scans.
func (r *Recorder) ObserveScan(valid bool, reason string) {
	if r == nil {
		return
	}
	result := "rejected"
	if valid {
		result = "accepted"
	}
	if reason == "" {
		reason = "none"
	}
	r.scans.WithLabelValues(result, reason).Inc()
}

func (r *Recorder) ObserveDeactivated() {
	if r == nil {
		return
	}
	r.deactivated.Inc()
}

func (r *Recorder) ObserveCleaned(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.cleaned.Add(float64(n))
}

func (r *Recorder) SetActiveRotations(n int) {
	if r == nil {
		return
	}
	r.activeRotations.Set(float64(n))
}

func (r *Recorder) ObserveRotationTick() {
	if r == nil {
		return
	}
	r.rotationTicks.Inc()
}

// ObserveStore records the latency of a store call.
func (r *Recorder) ObserveStore(op string, d time.Duration, err error) {
	if r == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.storeLatency.WithLabelValues(op, result).Observe(d.Seconds())
}
