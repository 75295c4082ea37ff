// Package slowmsg reports messages whose processing takes longer than a
// threshold, including those that never finish.
package slowmsg

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	errspkg "github.com/drblury/flowguard/internal/runtime/errors"
	"github.com/drblury/flowguard/internal/runtime/interceptor"
	loggingpkg "github.com/drblury/flowguard/internal/runtime/logging"
	"github.com/drblury/flowguard/internal/runtime/metadata"
	"github.com/drblury/flowguard/internal/runtime/metrics"
	"github.com/drblury/flowguard/internal/runtime/notify"
)

const (
	DefaultNotifyThreshold  = time.Minute
	DefaultShutdownTimeout  = 10 * time.Second
	DefaultNotificationName = "slow_message"
)

// Config configures a Tracker.
type Config struct {
	NotificationName string
	// NotifyThreshold is the processing time above which a message is reported.
	NotifyThreshold time.Duration
	// SweepInterval is the delay between sweeps for messages that never
	// finished. Defaults to NotifyThreshold plus one minute.
	SweepInterval time.Duration
	// ShutdownTimeout bounds how long Stop waits for the sweep to exit.
	ShutdownTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.NotificationName == "" {
		c.NotificationName = DefaultNotificationName
	}
	if c.NotifyThreshold == 0 {
		c.NotifyThreshold = DefaultNotifyThreshold
	}
	if c.SweepInterval == 0 {
		c.SweepInterval = c.NotifyThreshold + time.Minute
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	return c
}

func (c Config) Validate() error {
	var errs []error
	if c.NotifyThreshold < 0 {
		errs = append(errs, errors.New("notify threshold must not be negative"))
	}
	if c.SweepInterval < 0 {
		errs = append(errs, errors.New("sweep interval must not be negative"))
	}
	if c.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("shutdown timeout must not be negative"))
	}
	return errspkg.NewConfigValidationError("slow message tracker", errors.Join(errs...))
}

// InFlightRecord is a message currently being processed.
type InFlightRecord struct {
	MessageID string    `json:"message_id"`
	Start     time.Time `json:"start"`
}

// Tracker is an interceptor remembering when each message started. A message
// is reported once: either when it completes after the threshold, or by the
// sweep if it is still in flight past the threshold.
type Tracker struct {
	cfg       Config
	publisher notify.Publisher
	logger    loggingpkg.ServiceLogger
	metrics   *metrics.Metrics
	now       func() time.Time

	mu       sync.Mutex
	inFlight map[string]InFlightRecord

	lifecycle sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
}

func New(cfg Config, publisher notify.Publisher, logger loggingpkg.ServiceLogger, m *metrics.Metrics) *Tracker {
	cfg = cfg.withDefaults()
	return &Tracker{
		cfg:       cfg,
		publisher: publisher,
		logger:    loggingpkg.ForComponent(logger, "slow_messages", loggingpkg.LogFields{"notification": cfg.NotificationName}),
		metrics:   m,
		now:       time.Now,
		inFlight:  make(map[string]InFlightRecord),
	}
}

func (t *Tracker) Name() string { return "slow_messages:" + t.cfg.NotificationName }

// Start launches the background sweep.
func (t *Tracker) Start(ctx context.Context) error {
	if err := t.cfg.Validate(); err != nil {
		return err
	}

	t.lifecycle.Lock()
	defer t.lifecycle.Unlock()
	if t.cancel != nil {
		return nil
	}
	sweepCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	t.cancel = cancel
	t.done = make(chan struct{})
	go t.sweepLoop(sweepCtx, t.done)
	return nil
}

func (t *Tracker) sweepLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(t.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Sweep()
		}
	}
}

// Stop cancels the sweep and waits for it to exit, at most ShutdownTimeout or
// until ctx is done.
func (t *Tracker) Stop(ctx context.Context) error {
	t.lifecycle.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.lifecycle.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	timer := time.NewTimer(t.cfg.ShutdownTimeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		t.logger.Info("Sweep did not stop in time, abandoning it", loggingpkg.LogFields{
			"shutdown_timeout_ms": t.cfg.ShutdownTimeout.Milliseconds(),
		})
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the sweep and discards every in-flight record.
func (t *Tracker) Close(ctx context.Context) error {
	err := t.Stop(ctx)
	t.mu.Lock()
	clear(t.inFlight)
	t.mu.Unlock()
	t.metrics.SetInFlight(t.cfg.NotificationName, 0)
	return err
}

func (t *Tracker) OnStart(msg *message.Message) error {
	id := interceptor.MessageID(msg)
	t.mu.Lock()
	t.inFlight[id] = InFlightRecord{MessageID: id, Start: t.now()}
	n := len(t.inFlight)
	t.mu.Unlock()
	t.metrics.SetInFlight(t.cfg.NotificationName, n)
	return nil
}

// OnEnd completes the record for in. A record already taken by the sweep is
// ignored.
func (t *Tracker) OnEnd(in, out *message.Message) {
	id := interceptor.MessageID(in)
	t.mu.Lock()
	record, ok := t.inFlight[id]
	if ok {
		delete(t.inFlight, id)
	}
	n := len(t.inFlight)
	t.mu.Unlock()
	if !ok {
		return
	}
	t.metrics.SetInFlight(t.cfg.NotificationName, n)

	end := t.now()
	duration := end.Sub(record.Start)
	if duration <= t.cfg.NotifyThreshold {
		return
	}

	success := !interceptor.Failed(out) && !interceptor.Failed(in)
	t.metrics.SlowMessage(t.cfg.NotificationName, metrics.OutcomeCompleted)
	notify.Emit(context.Background(), t.publisher, t.cfg.NotificationName, metadata.Metadata{
		notify.AttrMessageID:  record.MessageID,
		notify.AttrStart:      strconv.FormatInt(record.Start.UnixMilli(), 10),
		notify.AttrEnd:        strconv.FormatInt(end.UnixMilli(), 10),
		notify.AttrDurationMs: strconv.FormatInt(duration.Milliseconds(), 10),
		notify.AttrSuccess:    strconv.FormatBool(success),
	}, t.logger, t.metrics)
}

// Sweep evicts and reports every record older than the threshold. It returns
// the number of records reported.
func (t *Tracker) Sweep() int {
	now := t.now()
	var expired []InFlightRecord

	t.mu.Lock()
	for id, record := range t.inFlight {
		if now.Sub(record.Start) > t.cfg.NotifyThreshold {
			expired = append(expired, record)
			delete(t.inFlight, id)
		}
	}
	n := len(t.inFlight)
	t.mu.Unlock()

	if len(expired) == 0 {
		return 0
	}
	t.metrics.SetInFlight(t.cfg.NotificationName, n)

	for _, record := range expired {
		t.metrics.SlowMessage(t.cfg.NotificationName, metrics.OutcomeSwept)
		notify.Emit(context.Background(), t.publisher, t.cfg.NotificationName, metadata.Metadata{
			notify.AttrMessageID:  record.MessageID,
			notify.AttrStart:      strconv.FormatInt(record.Start.UnixMilli(), 10),
			notify.AttrEnd:        "-1",
			notify.AttrDurationMs: "-1",
			notify.AttrSuccess:    "false",
		}, t.logger, t.metrics)
	}
	return len(expired)
}

// InFlight returns a snapshot of the records being tracked.
func (t *Tracker) InFlight() []InFlightRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]InFlightRecord, 0, len(t.inFlight))
	for _, record := range t.inFlight {
		out = append(out, record)
	}
	return out
}

func (t *Tracker) Inspect() interceptor.Inspection {
	t.mu.Lock()
	n := len(t.inFlight)
	t.mu.Unlock()
	return interceptor.Inspection{
		Name: t.Name(),
		Kind: "slow_messages",
		Details: map[string]any{
			"in_flight":           n,
			"notify_threshold_ms": t.cfg.NotifyThreshold.Milliseconds(),
			"sweep_interval_ms":   t.cfg.SweepInterval.Milliseconds(),
		},
	}
}
