package tracking

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the tracking subsystem.
type Metrics struct {
	TicksTotal         *prometheus.CounterVec
	TickDuration       prometheus.Histogram
	FetchDuration      *prometheus.HistogramVec
	TransitionsTotal   prometheus.Counter
	NotificationsTotal *prometheus.CounterVec
	TrackedCabinets    prometheus.Gauge
}

// NewMetrics registers and returns tracking metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TicksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wbtrack_ticks_total",
			Help: "Total poll ticks by outcome.",
		}, []string{"outcome"}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "wbtrack_tick_duration_seconds",
			Help:    "Duration of poll ticks in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms .. ~25s
		}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wbtrack_fetch_duration_seconds",
			Help:    "Duration of campaign API calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms .. ~25s
		}, []string{"outcome"}),
		TransitionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wbtrack_transitions_total",
			Help: "Total detected Active to Paused transitions.",
		}),
		NotificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wbtrack_notifications_total",
			Help: "Total transition notifications by delivery result.",
		}, []string{"outcome"}),
		TrackedCabinets: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wbtrack_tracked_cabinets",
			Help: "Number of cabinets with an active poll job.",
		}),
	}

	reg.MustRegister(
		m.TicksTotal,
		m.TickDuration,
		m.FetchDuration,
		m.TransitionsTotal,
		m.NotificationsTotal,
		m.TrackedCabinets,
	)

	return m
}

// PollHooks returns poller hooks that update the corresponding metrics.
func (m *Metrics) PollHooks() PollHooks {
	return PollHooks{
		OnTick: func(outcome TickOutcome, duration float64) {
			m.TicksTotal.WithLabelValues(string(outcome)).Inc()
			m.TickDuration.Observe(duration)
		},
		OnFetch: func(duration float64, err error) {
			m.FetchDuration.WithLabelValues(outcomeLabel(err)).Observe(duration)
		},
		OnTransitions: func(n int) {
			m.TransitionsTotal.Add(float64(n))
		},
		OnNotify: func(err error) {
			m.NotificationsTotal.WithLabelValues(outcomeLabel(err)).Inc()
		},
	}
}

// RegistryHooks returns registry hooks that track the number of active jobs.
func (m *Metrics) RegistryHooks() RegistryHooks {
	return RegistryHooks{
		OnJobsChanged: func(active int) {
			m.TrackedCabinets.Set(float64(active))
		},
	}
}

func outcomeLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
