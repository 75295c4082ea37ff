// Package throttle bounds how many messages a workflow admits per time window.
//
// Throttles configured with the same cache name draw from one shared quota in
// the timeslice.Registry they are given, even when they guard different
// workflows.
package throttle

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	errspkg "github.com/drblury/flowguard/internal/runtime/errors"
	"github.com/drblury/flowguard/internal/runtime/interceptor"
	loggingpkg "github.com/drblury/flowguard/internal/runtime/logging"
	"github.com/drblury/flowguard/internal/runtime/metrics"
	"github.com/drblury/flowguard/internal/runtime/timeslice"
)

const (
	DefaultWindowDuration = 5 * time.Second
	DefaultMaxPerWindow   = int64(math.MaxInt64)
	DefaultWaitGrace      = time.Second
	DefaultSafetyMargin   = 10 * time.Millisecond
)

// Config configures a Throttle.
type Config struct {
	// CacheName identifies the quota. Required.
	CacheName string
	// WindowDuration is the length of one admission window.
	WindowDuration time.Duration
	// MaxPerWindow is the number of messages admitted per window. Zero means unbounded.
	MaxPerWindow int64
	// WaitGrace is added to the expected wait before the wait is abandoned.
	WaitGrace time.Duration
	// SafetyMargin is added to the remaining window time so the retry lands
	// in the next window.
	SafetyMargin time.Duration
}

func (c Config) withDefaults() Config {
	if c.WindowDuration == 0 {
		c.WindowDuration = DefaultWindowDuration
	}
	if c.MaxPerWindow == 0 {
		c.MaxPerWindow = DefaultMaxPerWindow
	}
	if c.WaitGrace == 0 {
		c.WaitGrace = DefaultWaitGrace
	}
	if c.SafetyMargin == 0 {
		c.SafetyMargin = DefaultSafetyMargin
	}
	return c
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	if c.CacheName == "" {
		errs = append(errs, errspkg.ErrCacheNameRequired)
	}
	if c.WindowDuration < 0 {
		errs = append(errs, errors.New("window duration must not be negative"))
	}
	if c.MaxPerWindow < 0 {
		errs = append(errs, errors.New("max per window must not be negative"))
	}
	if c.WaitGrace < 0 {
		errs = append(errs, errors.New("wait grace must not be negative"))
	}
	if c.SafetyMargin < 0 {
		errs = append(errs, errors.New("safety margin must not be negative"))
	}
	return errspkg.NewConfigValidationError("throttle", errors.Join(errs...))
}

// Throttle is an interceptor that delays messages until the shared window for
// its cache name has room.
type Throttle struct {
	cfg      Config
	registry *timeslice.Registry
	logger   loggingpkg.ServiceLogger
	metrics  *metrics.Metrics
	now      func() time.Time
	// afterFunc schedules the wake-up of a waiting message.
	afterFunc func(time.Duration, func()) *time.Timer

	mu     sync.Mutex
	stopCh chan struct{}
}

// New creates a throttle backed by registry. A nil logger discards output and
// a nil metrics records nothing.
func New(cfg Config, registry *timeslice.Registry, logger loggingpkg.ServiceLogger, m *metrics.Metrics) *Throttle {
	return &Throttle{
		cfg:       cfg.withDefaults(),
		registry:  registry,
		logger:    loggingpkg.ForComponent(logger, "throttle", loggingpkg.LogFields{"cache": cfg.CacheName}),
		metrics:   m,
		now:       time.Now,
		afterFunc: time.AfterFunc,
		stopCh:    make(chan struct{}),
	}
}

func (t *Throttle) Name() string { return "throttle:" + t.cfg.CacheName }

// Config returns the effective configuration.
func (t *Throttle) Config() Config { return t.cfg }

// Start validates the configuration. A stopped throttle admits again after
// Start.
func (t *Throttle) Start(context.Context) error {
	if err := t.cfg.Validate(); err != nil {
		return err
	}
	if t.registry == nil {
		return errspkg.NewConfigValidationError("throttle", errspkg.ErrRegistryRequired)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if isClosed(t.stopCh) {
		t.stopCh = make(chan struct{})
	}
	return nil
}

// Stop releases every waiting message with ErrThrottleStopped. Admissions fail
// immediately until the next Start.
func (t *Throttle) Stop(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !isClosed(t.stopCh) {
		close(t.stopCh)
	}
	return nil
}

func (t *Throttle) stopped() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopCh
}

func isClosed(ch chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func (t *Throttle) OnStart(msg *message.Message) error {
	ctx := context.Background()
	if msg != nil {
		ctx = msg.Context()
	}
	return t.Admit(ctx)
}

func (t *Throttle) OnEnd(in, out *message.Message) {}

// Admit blocks until a slot in the current window is taken. It returns
// ErrThrottleStopped, ErrThrottleWaitTimeout or the context error when the
// message is not admitted on this attempt.
func (t *Throttle) Admit(ctx context.Context) error {
	if t.registry == nil {
		return errspkg.ErrRegistryRequired
	}
	stop := t.stopped()
	var waited time.Duration
	for {
		select {
		case <-stop:
			return t.reject(errspkg.ErrThrottleStopped, metrics.ReasonStopped)
		default:
		}

		slice, ok := t.registry.Acquire(t.cfg.CacheName, t.cfg.WindowDuration, t.cfg.MaxPerWindow)
		if ok {
			if waited > 0 {
				t.metrics.ThrottleDelayed(t.cfg.CacheName, waited)
			}
			t.metrics.ThrottleAdmitted(t.cfg.CacheName)
			return nil
		}

		delay := slice.Remaining(t.now()) + t.cfg.SafetyMargin
		trace.SpanFromContext(ctx).AddEvent("throttle.wait", trace.WithAttributes(
			attribute.String("throttle.cache", t.cfg.CacheName),
			attribute.Int64("throttle.window_count", slice.Count),
			attribute.Int64("throttle.delay_ms", delay.Milliseconds()),
		))
		t.logger.Trace("Window full, waiting", loggingpkg.LogFields{
			"delay_ms":     delay.Milliseconds(),
			"window_count": slice.Count,
		})

		began := t.now()
		err := t.wait(ctx, stop, delay)
		waited += t.now().Sub(began)
		if err != nil {
			return t.reject(err, reasonFor(err))
		}
	}
}

func (t *Throttle) wait(ctx context.Context, stop <-chan struct{}, delay time.Duration) error {
	signal := make(chan struct{}, 1)
	timer := t.afterFunc(delay, func() {
		signal <- struct{}{}
	})
	defer timer.Stop()

	guard := time.NewTimer(delay + t.cfg.WaitGrace)
	defer guard.Stop()

	select {
	case <-signal:
		return nil
	case <-stop:
		return errspkg.ErrThrottleStopped
	case <-ctx.Done():
		return ctx.Err()
	case <-guard.C:
		return errspkg.ErrThrottleWaitTimeout
	}
}

func (t *Throttle) reject(err error, reason string) error {
	t.metrics.ThrottleRejected(t.cfg.CacheName, reason)
	t.logger.Info("Message not admitted", loggingpkg.LogFields{
		"reason": reason,
		"error":  err.Error(),
	})
	return err
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, errspkg.ErrThrottleStopped):
		return metrics.ReasonStopped
	case errors.Is(err, errspkg.ErrThrottleWaitTimeout):
		return metrics.ReasonTimeout
	default:
		return metrics.ReasonCanceled
	}
}

// Inspect reports the state of the shared window.
func (t *Throttle) Inspect() interceptor.Inspection {
	details := map[string]any{
		"cache_name":     t.cfg.CacheName,
		"max_per_window": t.cfg.MaxPerWindow,
	}
	if t.registry != nil {
		slice := t.registry.Get(t.cfg.CacheName, t.cfg.WindowDuration)
		details["window_admitted"] = slice.Count
		details["window_end"] = slice.End.UnixMilli()
	}
	return interceptor.Inspection{
		Name:                  t.Name(),
		Kind:                  "throttle",
		WindowDurationSeconds: int(t.cfg.WindowDuration / time.Second),
		Details:               details,
	}
}
