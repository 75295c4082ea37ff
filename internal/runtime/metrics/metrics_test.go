package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Throttle(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	require.NoError(t, m.Register())

	m.ThrottleAdmitted("orders")
	m.ThrottleAdmitted("orders")
	m.ThrottleDelayed("orders", 250*time.Millisecond)
	m.ThrottleRejected("orders", ReasonStopped)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.throttleAdmitted.WithLabelValues("orders")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.throttleDelayed.WithLabelValues("orders")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.throttleRejected.WithLabelValues("orders", ReasonStopped)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.throttleWaitSeconds))
}

func TestMetrics_WindowAndNotifications(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	require.NoError(t, m.Register())

	m.WindowObserved("metrics", 5, 1024, 1)
	m.NotificationPublished("count")
	m.NotificationFailed("count")
	m.SlowMessage("slow", OutcomeSwept)
	m.SetInFlight("slow", 3)

	assert.Equal(t, 5.0, testutil.ToFloat64(m.windowMessages.WithLabelValues("metrics")))
	assert.Equal(t, 1024.0, testutil.ToFloat64(m.windowBytes.WithLabelValues("metrics")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.windowErrors.WithLabelValues("metrics")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notificationsPublished.WithLabelValues("count")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notificationsFailed.WithLabelValues("count")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.slowMessages.WithLabelValues("slow", OutcomeSwept)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.inFlight.WithLabelValues("slow")))
}

func TestMetrics_RegisterTwice(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	require.NoError(t, m.Register())
	require.NoError(t, m.Register())

	other := New(reg)
	assert.NoError(t, other.Register(), "already registered collectors are not an error")
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ThrottleAdmitted("orders")
		m.ThrottleDelayed("orders", time.Second)
		m.ThrottleRejected("orders", ReasonTimeout)
		m.WindowObserved("metrics", 1, 1, 1)
		m.NotificationPublished("n")
		m.NotificationFailed("n")
		m.SlowMessage("slow", OutcomeCompleted)
		m.SetInFlight("slow", 1)
		m.Reset()
		_ = m.Register()
	})
}

func TestMetrics_Reset(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	require.NoError(t, m.Register())

	m.ThrottleAdmitted("orders")
	m.Reset()
	assert.Equal(t, 0, testutil.CollectAndCount(m.throttleAdmitted))
}
