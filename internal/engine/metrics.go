package engine

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/flemzord/lorekeeper/internal/job"
)

// Metrics holds the engine's Prometheus collectors. A nil *Metrics is a
// valid no-op.
type Metrics struct {
	PhaseCalls        *prometheus.CounterVec
	PhaseFaults       *prometheus.CounterVec
	PhaseDuration     *prometheus.HistogramVec
	JobsScheduled     *prometheus.CounterVec
	JobsApplied       *prometheus.CounterVec
	CompressFallbacks prometheus.Counter
	TriggerInjections prometheus.Counter
	CandidateQueue    prometheus.Gauge
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PhaseCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lorekeeper_phase_calls_total",
				Help: "Engine phase calls by phase.",
			},
			[]string{"phase"}, // input | context | output
		),
		PhaseFaults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lorekeeper_phase_faults_total",
				Help: "Faults recovered inside an engine phase.",
			},
			[]string{"phase"},
		),
		PhaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lorekeeper_phase_duration_seconds",
				Help:    "Engine phase latency in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"phase"},
		),
		JobsScheduled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lorekeeper_jobs_scheduled_total",
				Help: "Jobs scheduled by mode.",
			},
			[]string{"mode"}, // generate | compress
		),
		JobsApplied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lorekeeper_jobs_applied_total",
				Help: "Job results consumed by mode and result.",
			},
			[]string{"mode", "result"}, // ok | error
		),
		CompressFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lorekeeper_compress_fallbacks_total",
			Help: "Compressions that kept the most recent lines because the reply named no usable ids.",
		}),
		TriggerInjections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lorekeeper_trigger_injections_total",
			Help: "Card entries injected into context by triggers.",
		}),
		CandidateQueue: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lorekeeper_candidate_queue_length",
			Help: "Candidate queue length observed after the last scan.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.PhaseCalls, m.PhaseFaults, m.PhaseDuration,
			m.JobsScheduled, m.JobsApplied,
			m.CompressFallbacks, m.TriggerInjections, m.CandidateQueue,
		)
	}
	return m
}

// Compile-time interface check.
var _ job.Observer = (*Metrics)(nil)

// Scheduled implements job.Observer.
func (m *Metrics) Scheduled(mode job.Mode) {
	if m == nil {
		return
	}
	m.JobsScheduled.WithLabelValues(string(mode)).Inc()
}

// Applied implements job.Observer.
func (m *Metrics) Applied(mode job.Mode, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.JobsApplied.WithLabelValues(string(mode), result).Inc()
}

// CompressFallback implements job.Observer.
func (m *Metrics) CompressFallback() {
	if m == nil {
		return
	}
	m.CompressFallbacks.Inc()
}

func (m *Metrics) phaseCall(phase string) {
	if m == nil {
		return
	}
	m.PhaseCalls.WithLabelValues(phase).Inc()
}

func (m *Metrics) phaseFault(phase string) {
	if m == nil {
		return
	}
	m.PhaseFaults.WithLabelValues(phase).Inc()
}

func (m *Metrics) phaseDuration(phase string, seconds float64) {
	if m == nil {
		return
	}
	m.PhaseDuration.WithLabelValues(phase).Observe(seconds)
}

func (m *Metrics) injected(n int) {
	if m == nil || n == 0 {
		return
	}
	m.TriggerInjections.Add(float64(n))
}

func (m *Metrics) queueLength(n int) {
	if m == nil {
		return
	}
	m.CandidateQueue.Set(float64(n))
}
