package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	errspkg "github.com/drblury/flowguard/internal/runtime/errors"
	"github.com/drblury/flowguard/internal/runtime/interceptor"
	loggingpkg "github.com/drblury/flowguard/internal/runtime/logging"
	"github.com/drblury/flowguard/internal/runtime/metrics"
	"github.com/drblury/flowguard/internal/runtime/statistics"
)

const DefaultCountWindow = time.Minute

// CountConfig configures a CountNotifier.
type CountConfig struct {
	NotificationName string
	WindowDuration   time.Duration
	// MessageCount is the per-window boundary. Required.
	MessageCount *int64
	// MaxNotifications caps consecutive notifications of the same state.
	// Zero means unbounded.
	MaxNotifications int
}

func (c CountConfig) withDefaults() CountConfig {
	if c.WindowDuration == 0 {
		c.WindowDuration = DefaultCountWindow
	}
	return c
}

func (c CountConfig) Validate() error {
	var errs []error
	if c.NotificationName == "" {
		errs = append(errs, errspkg.ErrNotificationNameMissing)
	}
	if c.MessageCount == nil {
		errs = append(errs, errspkg.ErrMessageCountRequired)
	} else if *c.MessageCount < 0 {
		errs = append(errs, errors.New("message count must not be negative"))
	}
	if c.WindowDuration < 0 {
		errs = append(errs, errors.New("window duration must not be negative"))
	}
	if c.MaxNotifications < 0 {
		errs = append(errs, errors.New("max notifications must not be negative"))
	}
	return errspkg.NewConfigValidationError("count notifier", errors.Join(errs...))
}

// CountNotifier counts messages per window and, once a window closes,
// notifies when the count went above or came back below MessageCount.
//
// Consecutive windows on the same side notify at most MaxNotifications times.
// A "below" notification is only sent after an "above" one was, and a window
// exactly at the boundary resets the state.
type CountNotifier struct {
	cfg       CountConfig
	acc       *statistics.Accumulator[*statistics.MessageStatistic]
	publisher Publisher
	logger    loggingpkg.ServiceLogger
	metrics   *metrics.Metrics

	mu         sync.Mutex
	aboveCount int
	belowCount int
	onceAbove  bool

	lifecycle sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewCountNotifier(cfg CountConfig, publisher Publisher, logger loggingpkg.ServiceLogger, m *metrics.Metrics) *CountNotifier {
	cfg = cfg.withDefaults()
	n := &CountNotifier{
		cfg:       cfg,
		acc:       statistics.NewAccumulator(cfg.WindowDuration, 2, statistics.NewMessageStatistic),
		publisher: publisher,
		logger:    loggingpkg.ForComponent(logger, "count_notifier", loggingpkg.LogFields{"notification": cfg.NotificationName}),
		metrics:   m,
	}
	n.acc.OnRollover(n.closeWindow)
	return n
}

func (n *CountNotifier) Name() string { return "count:" + n.cfg.NotificationName }

// Start validates the configuration and starts a ticker that closes idle
// windows, so a window without traffic is still evaluated.
func (n *CountNotifier) Start(ctx context.Context) error {
	if err := n.cfg.Validate(); err != nil {
		return err
	}

	n.lifecycle.Lock()
	defer n.lifecycle.Unlock()
	if n.cancel != nil {
		return nil
	}
	n.acc.Current()

	tickCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	n.cancel = cancel
	n.done = make(chan struct{})
	go n.tick(tickCtx, n.done, tickInterval(n.cfg.WindowDuration))
	return nil
}

func tickInterval(window time.Duration) time.Duration {
	interval := window / 4
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	return interval
}

func (n *CountNotifier) tick(ctx context.Context, done chan struct{}, interval time.Duration) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.acc.Roll()
		}
	}
}

func (n *CountNotifier) Stop(ctx context.Context) error {
	n.lifecycle.Lock()
	cancel, done := n.cancel, n.done
	n.cancel, n.done = nil, nil
	n.lifecycle.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *CountNotifier) OnStart(*message.Message) error { return nil }

func (n *CountNotifier) OnEnd(in, _ *message.Message) {
	n.acc.Update(func(s *statistics.MessageStatistic) {
		s.Record(interceptor.MessageSize(in), false)
	})
}

func (n *CountNotifier) closeWindow(closed *statistics.MessageStatistic) {
	state, notify := n.decide(closed.TotalMessageCount)
	if !notify {
		return
	}
	attrs := WindowAttributes(closed).With(AttrThresholdState, state)
	Emit(context.Background(), n.publisher, n.cfg.NotificationName, attrs, n.logger, n.metrics)
}

// decide applies one closed window's count to the hysteresis state and
// reports which side it is on and whether to notify.
func (n *CountNotifier) decide(count int64) (string, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	var limit int64
	if n.cfg.MessageCount != nil {
		limit = *n.cfg.MessageCount
	}
	maxN := n.cfg.MaxNotifications

	switch {
	case count > limit:
		notify := maxN == 0 || n.aboveCount < maxN
		n.aboveCount++
		n.belowCount = 0
		if notify {
			n.onceAbove = true
		}
		return StateAbove, notify
	case count < limit:
		notify := n.onceAbove && (maxN == 0 || n.belowCount < maxN)
		n.belowCount++
		n.aboveCount = 0
		return StateBelow, notify
	default:
		n.aboveCount = 0
		n.belowCount = 0
		n.onceAbove = false
		return "", false
	}
}

func (n *CountNotifier) Inspect() interceptor.Inspection {
	n.mu.Lock()
	details := map[string]any{
		"notification":      n.cfg.NotificationName,
		"max_notifications": n.cfg.MaxNotifications,
		"above_count":       n.aboveCount,
		"below_count":       n.belowCount,
	}
	n.mu.Unlock()
	if n.cfg.MessageCount != nil {
		details["message_count"] = *n.cfg.MessageCount
	}
	return interceptor.Inspection{
		Name:                  n.Name(),
		Kind:                  "count_notifier",
		WindowCount:           n.acc.WindowCount(),
		WindowDurationSeconds: n.acc.WindowDurationSeconds(),
		History:               n.acc.History(),
		Details:               details,
	}
}
