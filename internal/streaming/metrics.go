package streaming

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports the streaming stats to Prometheus.
type Metrics struct {
	bytes         *prometheus.GaugeVec
	textures      *prometheus.GaugeVec
	requestsTotal *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	cyclesTotal   prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		bytes: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "texstream",
				Subsystem: "streaming",
				Name:      "bytes",
				Help:      "Texture streaming memory by kind",
			},
			[]string{"kind"},
		),
		textures: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "texstream",
				Subsystem: "streaming",
				Name:      "textures",
				Help:      "Number of textures by state",
			},
			[]string{"state"},
		),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "texstream",
				Subsystem: "streaming",
				Name:      "requests_total",
				Help:      "Total resize requests issued to textures",
			},
			[]string{"action"},
		),
		cycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "texstream",
				Subsystem: "streaming",
				Name:      "budget_pass_duration_seconds",
				Help:      "Duration of the background budget pass in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
			},
		),
		cyclesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "texstream",
				Subsystem: "streaming",
				Name:      "cycles_total",
				Help:      "Total completed streaming cycles",
			},
		),
	}
	reg.MustRegister(m.bytes, m.textures, m.requestsTotal, m.cycleDuration, m.cyclesTotal)
	return m
}

func (m *Metrics) observeCycle(s *Stats, numTextures int) {
	if m == nil {
		return
	}
	m.bytes.WithLabelValues("pool").Set(float64(s.PoolSize))
	m.bytes.WithLabelValues("budget").Set(float64(s.MemoryBudget))
	m.bytes.WithLabelValues("required").Set(float64(s.RequiredPool))
	m.bytes.WithLabelValues("max_ever_required").Set(float64(s.MaxEverRequired))
	m.bytes.WithLabelValues("over_budget").Set(float64(s.OverBudget))
	m.bytes.WithLabelValues("visible").Set(float64(s.VisibleMips))
	m.bytes.WithLabelValues("hidden").Set(float64(s.HiddenMips))
	m.bytes.WithLabelValues("forced").Set(float64(s.ForcedMips))
	m.bytes.WithLabelValues("unknown_ref").Set(float64(s.UnknownRefMips))
	m.bytes.WithLabelValues("cached").Set(float64(s.CachedMips))
	m.bytes.WithLabelValues("wanted").Set(float64(s.WantedMips))
	m.bytes.WithLabelValues("pending").Set(float64(s.PendingRequests))
	m.textures.WithLabelValues("tracked").Set(float64(numTextures))
	m.textures.WithLabelValues("wanting").Set(float64(s.NumWanting))
	m.cycleDuration.Observe(s.CycleDuration.Seconds())
	m.cyclesTotal.Inc()
}

func (m *Metrics) observeRequest(action string) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(action).Inc()
}
