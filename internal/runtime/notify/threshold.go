package notify

import (
	"context"
	"errors"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	errspkg "github.com/drblury/flowguard/internal/runtime/errors"
	"github.com/drblury/flowguard/internal/runtime/interceptor"
	loggingpkg "github.com/drblury/flowguard/internal/runtime/logging"
	"github.com/drblury/flowguard/internal/runtime/metrics"
	"github.com/drblury/flowguard/internal/runtime/statistics"
)

// ThresholdConfig configures a ThresholdNotifier. Nil thresholds are not
// checked; at least one is required.
type ThresholdConfig struct {
	// NotificationName is the name published when a threshold is exceeded.
	NotificationName string
	WindowDuration   time.Duration
	HistoryCount     int

	CountThreshold *int64
	ErrorThreshold *int64
	SizeThreshold  *int64
}

// Threshold returns a pointer to n, for use in ThresholdConfig.
func Threshold(n int64) *int64 { return &n }

func (c ThresholdConfig) Validate() error {
	var errs []error
	if c.NotificationName == "" {
		errs = append(errs, errspkg.ErrNotificationNameMissing)
	}
	if c.CountThreshold == nil && c.ErrorThreshold == nil && c.SizeThreshold == nil {
		errs = append(errs, errspkg.ErrThresholdRequired)
	}
	for _, th := range []*int64{c.CountThreshold, c.ErrorThreshold, c.SizeThreshold} {
		if th != nil && *th < 0 {
			errs = append(errs, errors.New("thresholds must not be negative"))
			break
		}
	}
	return errspkg.NewConfigValidationError("threshold notifier", errors.Join(errs...))
}

type exceeded func(s *statistics.MessageStatistic) bool

// ThresholdNotifier records message statistics per window and publishes a
// notification each time a message leaves the live window beyond any
// configured threshold.
type ThresholdNotifier struct {
	cfg        ThresholdConfig
	stats      *statistics.MessageMetrics
	predicates []exceeded
	publisher  Publisher
	logger     loggingpkg.ServiceLogger
	metrics    *metrics.Metrics
}

func NewThresholdNotifier(cfg ThresholdConfig, publisher Publisher, logger loggingpkg.ServiceLogger, m *metrics.Metrics) *ThresholdNotifier {
	n := &ThresholdNotifier{
		cfg: cfg,
		stats: statistics.NewMessageMetrics(statistics.Config{
			Name:           cfg.NotificationName,
			WindowDuration: cfg.WindowDuration,
			HistoryCount:   cfg.HistoryCount,
		}, m),
		publisher: publisher,
		logger:    loggingpkg.ForComponent(logger, "threshold_notifier", loggingpkg.LogFields{"notification": cfg.NotificationName}),
		metrics:   m,
	}
	if cfg.CountThreshold != nil {
		limit := *cfg.CountThreshold
		n.predicates = append(n.predicates, func(s *statistics.MessageStatistic) bool { return s.TotalMessageCount > limit })
	}
	if cfg.ErrorThreshold != nil {
		limit := *cfg.ErrorThreshold
		n.predicates = append(n.predicates, func(s *statistics.MessageStatistic) bool { return s.TotalMessageErrorCount > limit })
	}
	if cfg.SizeThreshold != nil {
		limit := *cfg.SizeThreshold
		n.predicates = append(n.predicates, func(s *statistics.MessageStatistic) bool { return s.TotalMessageSize > limit })
	}
	return n
}

func (n *ThresholdNotifier) Name() string { return "threshold:" + n.cfg.NotificationName }

func (n *ThresholdNotifier) Start(ctx context.Context) error {
	if err := n.cfg.Validate(); err != nil {
		return err
	}
	return n.stats.Start(ctx)
}

func (n *ThresholdNotifier) Stop(context.Context) error { return nil }

func (n *ThresholdNotifier) OnStart(*message.Message) error { return nil }

func (n *ThresholdNotifier) OnEnd(in, out *message.Message) {
	snapshot := n.stats.Record(interceptor.MessageSize(in), interceptor.Failed(in) || interceptor.Failed(out))
	n.evaluate(messageContext(in), snapshot)
}

func (n *ThresholdNotifier) evaluate(ctx context.Context, s *statistics.MessageStatistic) bool {
	for _, p := range n.predicates {
		if p(s) {
			return Emit(ctx, n.publisher, n.cfg.NotificationName, WindowAttributes(s), n.logger, n.metrics)
		}
	}
	return false
}

// Statistics exposes the window history the notifier evaluates.
func (n *ThresholdNotifier) Statistics() *statistics.MessageMetrics { return n.stats }

func (n *ThresholdNotifier) Inspect() interceptor.Inspection {
	ins := n.stats.Inspect()
	ins.Name = n.Name()
	ins.Kind = "threshold_notifier"
	details := map[string]any{"notification": n.cfg.NotificationName}
	if n.cfg.CountThreshold != nil {
		details["count_threshold"] = *n.cfg.CountThreshold
	}
	if n.cfg.ErrorThreshold != nil {
		details["error_threshold"] = *n.cfg.ErrorThreshold
	}
	if n.cfg.SizeThreshold != nil {
		details["size_threshold"] = *n.cfg.SizeThreshold
	}
	ins.Details = details
	return ins
}

func messageContext(msg *message.Message) context.Context {
	if msg == nil {
		return context.Background()
	}
	return msg.Context()
}
