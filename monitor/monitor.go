// monitor/monitor.go
package monitor

import (
	"expvar"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	ConnectedClients  prometheus.Gauge
	ActiveRooms       prometheus.Gauge
	TransitionsTotal  prometheus.Counter
	TransitionErrors  prometheus.Counter
	ConflictRetries   prometheus.Counter
	TransitionLatency prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		ConnectedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected_clients",
			Help:      "Number of connected websocket clients",
		}),
		ActiveRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_rooms",
			Help:      "Number of live rooms",
		}),
		TransitionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Total number of room transitions attempted",
		}),
		TransitionErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transition_errors_total",
			Help:      "Total number of room transitions that failed",
		}),
		ConflictRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conflict_retries_total",
			Help:      "Total number of transitions aborted on store conflicts",
		}),
		TransitionLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transition_latency_seconds",
			Help:      "Room transition commit latency",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 10),
		}),
	}

	prometheus.MustRegister(
		m.ConnectedClients,
		m.ActiveRooms,
		m.TransitionsTotal,
		m.TransitionErrors,
		m.ConflictRetries,
		m.TransitionLatency,
	)

	return m
}

type Monitor struct {
	metrics   *Metrics
	startTime time.Time
	rooms     int64
	mutex     sync.Mutex
}

func NewMonitor(namespace string) *Monitor {
	return &Monitor{
		metrics:   NewMetrics(namespace),
		startTime: time.Now(),
	}
}

func (m *Monitor) StartServer(addr string) {
	http.Handle("/metrics", promhttp.Handler())

	expvar.Publish("uptime", expvar.Func(func() interface{} {
		return time.Since(m.startTime).Seconds()
	}))

	go http.ListenAndServe(addr, nil)
}

func (m *Monitor) IncConnectedClients() {
	m.metrics.ConnectedClients.Inc()
}

func (m *Monitor) DecConnectedClients() {
	m.metrics.ConnectedClients.Dec()
}

func (m *Monitor) RoomCreated() {
	m.mutex.Lock()
	m.rooms++
	m.metrics.ActiveRooms.Set(float64(m.rooms))
	m.mutex.Unlock()
}

func (m *Monitor) RoomDeleted() {
	m.mutex.Lock()
	if m.rooms > 0 {
		m.rooms--
	}
	m.metrics.ActiveRooms.Set(float64(m.rooms))
	m.mutex.Unlock()
}

// ObserveTransition records one engine call: latency, and the failure
// counters when err is non-nil.
func (m *Monitor) ObserveTransition(duration time.Duration, err error, conflict bool) {
	m.metrics.TransitionsTotal.Inc()
	m.metrics.TransitionLatency.Observe(duration.Seconds())
	if err != nil {
		m.metrics.TransitionErrors.Inc()
	}
	if conflict {
		m.metrics.ConflictRetries.Inc()
	}
}
