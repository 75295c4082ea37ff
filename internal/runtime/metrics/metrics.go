// Package metrics holds the Prometheus collectors shared by the interceptors.
// Every recording method is safe to call on a nil *Metrics, so components can
// run without instrumentation.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "flowguard"

// Reasons reported with rejected admissions.
const (
	ReasonStopped  = "stopped"
	ReasonTimeout  = "timeout"
	ReasonCanceled = "canceled"
)

// Outcomes reported with slow messages.
const (
	OutcomeCompleted = "completed"
	OutcomeSwept     = "swept"
)

// Metrics tracks throttle, window, notification and slow-message activity.
type Metrics struct {
	mu sync.Mutex

	throttleAdmitted    *prometheus.CounterVec
	throttleDelayed     *prometheus.CounterVec
	throttleRejected    *prometheus.CounterVec
	throttleWaitSeconds *prometheus.HistogramVec

	windowMessages *prometheus.GaugeVec
	windowBytes    *prometheus.GaugeVec
	windowErrors   *prometheus.GaugeVec

	notificationsPublished *prometheus.CounterVec
	notificationsFailed    *prometheus.CounterVec

	slowMessages *prometheus.CounterVec
	inFlight     *prometheus.GaugeVec

	registerer prometheus.Registerer
	registered bool
}

func newCounterVec(subsystem, name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

func newGaugeVec(subsystem, name, help string, labels []string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

// New creates the collectors. A nil registerer means prometheus.DefaultRegisterer.
func New(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &Metrics{
		registerer:       registerer,
		throttleAdmitted: newCounterVec("throttle", "admitted_total", "Messages admitted by the throttle", []string{"cache"}),
		throttleDelayed:  newCounterVec("throttle", "delayed_total", "Messages admitted after waiting for a later window", []string{"cache"}),
		throttleRejected: newCounterVec("throttle", "rejected_total", "Messages not admitted on this attempt", []string{"cache", "reason"}),
		throttleWaitSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "throttle",
				Name:      "wait_seconds",
				Help:      "Time spent waiting for a window to roll over",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"cache"},
		),
		windowMessages:         newGaugeVec("window", "messages", "Messages recorded in the current window", []string{"interceptor"}),
		windowBytes:            newGaugeVec("window", "bytes", "Payload bytes recorded in the current window", []string{"interceptor"}),
		windowErrors:           newGaugeVec("window", "errors", "Failed messages recorded in the current window", []string{"interceptor"}),
		notificationsPublished: newCounterVec("notifications", "published_total", "Notifications published", []string{"notification"}),
		notificationsFailed:    newCounterVec("notifications", "failed_total", "Notifications that could not be published", []string{"notification"}),
		slowMessages:           newCounterVec("slow_messages", "total", "Messages that exceeded the slow-message threshold", []string{"interceptor", "outcome"}),
		inFlight:               newGaugeVec("slow_messages", "in_flight", "Messages currently tracked as in flight", []string{"interceptor"}),
	}
}

// Register registers the collectors. Safe to call multiple times.
func (m *Metrics) Register() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	collectors := []prometheus.Collector{
		m.throttleAdmitted,
		m.throttleDelayed,
		m.throttleRejected,
		m.throttleWaitSeconds,
		m.windowMessages,
		m.windowBytes,
		m.windowErrors,
		m.notificationsPublished,
		m.notificationsFailed,
		m.slowMessages,
		m.inFlight,
	}

	for _, c := range collectors {
		if err := m.registerer.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}

	m.registered = true
	return nil
}

func (m *Metrics) ThrottleAdmitted(cache string) {
	if m == nil {
		return
	}
	m.throttleAdmitted.WithLabelValues(cache).Inc()
}

func (m *Metrics) ThrottleDelayed(cache string, waited time.Duration) {
	if m == nil {
		return
	}
	m.throttleDelayed.WithLabelValues(cache).Inc()
	m.throttleWaitSeconds.WithLabelValues(cache).Observe(waited.Seconds())
}

func (m *Metrics) ThrottleRejected(cache, reason string) {
	if m == nil {
		return
	}
	m.throttleRejected.WithLabelValues(cache, reason).Inc()
}

// WindowObserved publishes the live window totals for an interceptor.
func (m *Metrics) WindowObserved(interceptor string, messages, bytes, errors int64) {
	if m == nil {
		return
	}
	m.windowMessages.WithLabelValues(interceptor).Set(float64(messages))
	m.windowBytes.WithLabelValues(interceptor).Set(float64(bytes))
	m.windowErrors.WithLabelValues(interceptor).Set(float64(errors))
}

func (m *Metrics) NotificationPublished(name string) {
	if m == nil {
		return
	}
	m.notificationsPublished.WithLabelValues(name).Inc()
}

func (m *Metrics) NotificationFailed(name string) {
	if m == nil {
		return
	}
	m.notificationsFailed.WithLabelValues(name).Inc()
}

func (m *Metrics) SlowMessage(interceptor, outcome string) {
	if m == nil {
		return
	}
	m.slowMessages.WithLabelValues(interceptor, outcome).Inc()
}

func (m *Metrics) SetInFlight(interceptor string, n int) {
	if m == nil {
		return
	}
	m.inFlight.WithLabelValues(interceptor).Set(float64(n))
}

// Reset clears every collector (useful for testing).
func (m *Metrics) Reset() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.throttleAdmitted.Reset()
	m.throttleDelayed.Reset()
	m.throttleRejected.Reset()
	m.throttleWaitSeconds.Reset()
	m.windowMessages.Reset()
	m.windowBytes.Reset()
	m.windowErrors.Reset()
	m.notificationsPublished.Reset()
	m.notificationsFailed.Reset()
	m.slowMessages.Reset()
	m.inFlight.Reset()
}
