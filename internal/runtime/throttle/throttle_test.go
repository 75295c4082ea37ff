package throttle

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errspkg "github.com/drblury/flowguard/internal/runtime/errors"
	"github.com/drblury/flowguard/internal/runtime/metrics"
	"github.com/drblury/flowguard/internal/runtime/timeslice"
)

func TestConfigDefaults(t *testing.T) {
	th := New(Config{CacheName: "orders"}, timeslice.NewRegistry(), nil, nil)
	cfg := th.Config()

	assert.Equal(t, DefaultWindowDuration, cfg.WindowDuration)
	assert.Equal(t, DefaultMaxPerWindow, cfg.MaxPerWindow)
	assert.Equal(t, DefaultWaitGrace, cfg.WaitGrace)
	assert.Equal(t, DefaultSafetyMargin, cfg.SafetyMargin)
	assert.Equal(t, "throttle:orders", th.Name())
}

func TestStartRejectsInvalidConfig(t *testing.T) {
	th := New(Config{MaxPerWindow: -1}, timeslice.NewRegistry(), nil, nil)

	err := th.Start(context.Background())
	require.Error(t, err)

	var cfgErr errspkg.ConfigValidationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "throttle", cfgErr.Component)
	assert.ErrorIs(t, err, errspkg.ErrCacheNameRequired)
	assert.Contains(t, err.Error(), "max per window")
}

func TestStartRequiresRegistry(t *testing.T) {
	th := New(Config{CacheName: "orders"}, nil, nil, nil)
	assert.ErrorIs(t, th.Start(context.Background()), errspkg.ErrRegistryRequired)
}

func TestAdmitWithinLimit(t *testing.T) {
	registry := timeslice.NewRegistry()
	th := New(Config{CacheName: "orders", MaxPerWindow: 3, WindowDuration: time.Minute}, registry, nil, nil)
	require.NoError(t, th.Start(context.Background()))

	for range 3 {
		require.NoError(t, th.Admit(context.Background()))
	}
	assert.Equal(t, int64(3), registry.Get("orders", time.Minute).Count)
}

func TestAdmitWaitsForNextWindow(t *testing.T) {
	registry := timeslice.NewRegistry()
	th := New(Config{
		CacheName:      "orders",
		MaxPerWindow:   2,
		WindowDuration: 150 * time.Millisecond,
	}, registry, nil, nil)
	require.NoError(t, th.Start(context.Background()))

	var admitted atomic.Int64
	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := th.Admit(context.Background()); err == nil {
				admitted.Add(1)
			}
		}()
	}

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(2), admitted.Load(), "only the first window's quota is admitted immediately")

	wg.Wait()
	assert.Equal(t, int64(5), admitted.Load())
}

func TestSharedCacheNameSharesQuota(t *testing.T) {
	registry := timeslice.NewRegistry()
	cfg := Config{CacheName: "shared", MaxPerWindow: 1, WindowDuration: time.Minute}
	first := New(cfg, registry, nil, nil)
	second := New(cfg, registry, nil, nil)

	require.NoError(t, first.Admit(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, second.Admit(ctx), context.DeadlineExceeded)
}

func TestStopReleasesWaiters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	require.NoError(t, m.Register())
	th := New(Config{CacheName: "orders", MaxPerWindow: 1, WindowDuration: time.Hour}, timeslice.NewRegistry(), nil, m)
	require.NoError(t, th.Admit(context.Background()))

	errCh := make(chan error, 2)
	for range 2 {
		go func() { errCh <- th.Admit(context.Background()) }()
	}

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, th.Stop(context.Background()))
	require.NoError(t, th.Stop(context.Background()))

	for range 2 {
		select {
		case err := <-errCh:
			assert.ErrorIs(t, err, errspkg.ErrThrottleStopped)
		case <-time.After(time.Second):
			t.Fatal("waiter was not released by Stop")
		}
	}

	assert.ErrorIs(t, th.Admit(context.Background()), errspkg.ErrThrottleStopped)
	expected := `
# HELP flowguard_throttle_rejected_total Messages not admitted on this attempt
# TYPE flowguard_throttle_rejected_total counter
flowguard_throttle_rejected_total{cache="orders",reason="stopped"} 3
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "flowguard_throttle_rejected_total"))
}

func TestRestartAfterStop(t *testing.T) {
	th := New(Config{CacheName: "orders", MaxPerWindow: 5, WindowDuration: time.Minute}, timeslice.NewRegistry(), nil, nil)
	require.NoError(t, th.Start(context.Background()))
	require.NoError(t, th.Stop(context.Background()))
	require.ErrorIs(t, th.Admit(context.Background()), errspkg.ErrThrottleStopped)

	require.NoError(t, th.Start(context.Background()))
	assert.NoError(t, th.Admit(context.Background()))
	require.NoError(t, th.Start(context.Background()))
	assert.NoError(t, th.Admit(context.Background()))
}

func TestDelayRecordedOncePerAdmission(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	require.NoError(t, m.Register())
	registry := timeslice.NewRegistry()
	th := New(Config{CacheName: "orders", MaxPerWindow: 1, WindowDuration: time.Hour}, registry, nil, m)
	require.NoError(t, th.Admit(context.Background()))

	clock := time.Now()
	th.now = func() time.Time {
		clock = clock.Add(10 * time.Millisecond)
		return clock
	}
	var wakeups int
	th.afterFunc = func(_ time.Duration, f func()) *time.Timer {
		wakeups++
		if wakeups == 3 {
			registry.Remove("orders")
		}
		return time.AfterFunc(0, f)
	}

	require.NoError(t, th.Admit(context.Background()))
	assert.Equal(t, 3, wakeups)

	expected := `
# HELP flowguard_throttle_delayed_total Messages admitted after waiting for a later window
# TYPE flowguard_throttle_delayed_total counter
flowguard_throttle_delayed_total{cache="orders"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "flowguard_throttle_delayed_total"))

	families, err := reg.Gather()
	require.NoError(t, err)
	var observed uint64
	for _, mf := range families {
		if mf.GetName() == "flowguard_throttle_wait_seconds" {
			observed = mf.GetMetric()[0].GetHistogram().GetSampleCount()
		}
	}
	assert.Equal(t, uint64(1), observed)
}

func TestWaitGuardTimesOut(t *testing.T) {
	th := New(Config{CacheName: "orders", WaitGrace: 10 * time.Millisecond}, timeslice.NewRegistry(), nil, nil)
	th.afterFunc = func(time.Duration, func()) *time.Timer {
		return time.AfterFunc(time.Hour, func() {})
	}

	err := th.wait(context.Background(), th.stopped(), 5*time.Millisecond)
	assert.ErrorIs(t, err, errspkg.ErrThrottleWaitTimeout)
}

func TestWaitReturnsWhenTimerFires(t *testing.T) {
	th := New(Config{CacheName: "orders"}, timeslice.NewRegistry(), nil, nil)
	assert.NoError(t, th.wait(context.Background(), th.stopped(), time.Millisecond))
}

func TestOnStartUsesMessageContext(t *testing.T) {
	th := New(Config{CacheName: "orders", MaxPerWindow: 1, WindowDuration: time.Hour}, timeslice.NewRegistry(), nil, nil)
	require.NoError(t, th.OnStart(message.NewMessage("first", nil)))

	ctx, cancel := context.WithCancel(context.Background())
	msg := message.NewMessage("second", nil)
	msg.SetContext(ctx)

	done := make(chan error, 1)
	go func() { done <- th.OnStart(msg) }()
	cancel()

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(time.Second):
		t.Fatal("cancelled message was not released")
	}
}

func TestInspect(t *testing.T) {
	registry := timeslice.NewRegistry()
	th := New(Config{CacheName: "orders", MaxPerWindow: 5, WindowDuration: 10 * time.Second}, registry, nil, nil)
	require.NoError(t, th.Admit(context.Background()))

	ins := th.Inspect()
	assert.Equal(t, "throttle", ins.Kind)
	assert.Equal(t, 10, ins.WindowDurationSeconds)
	assert.Equal(t, int64(1), ins.Details["window_admitted"])
	assert.Equal(t, int64(5), ins.Details["max_per_window"])
}

func TestReasonFor(t *testing.T) {
	assert.Equal(t, metrics.ReasonStopped, reasonFor(errspkg.ErrThrottleStopped))
	assert.Equal(t, metrics.ReasonTimeout, reasonFor(errspkg.ErrThrottleWaitTimeout))
	assert.Equal(t, metrics.ReasonCanceled, reasonFor(context.Canceled))
}
