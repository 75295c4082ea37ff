package statistics

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	errspkg "github.com/drblury/flowguard/internal/runtime/errors"
	"github.com/drblury/flowguard/internal/runtime/interceptor"
	"github.com/drblury/flowguard/internal/runtime/metrics"
)

// MessageStatistic holds the totals of one window.
type MessageStatistic struct {
	Start                  time.Time `json:"start"`
	End                    time.Time `json:"end"`
	TotalMessageCount      int64     `json:"total_message_count"`
	TotalMessageSize       int64     `json:"total_message_size"`
	TotalMessageErrorCount int64     `json:"total_message_error_count"`
}

// NewMessageStatistic returns an empty window spanning [start, end).
func NewMessageStatistic(start, end time.Time) *MessageStatistic {
	return &MessageStatistic{Start: start, End: end}
}

func (s *MessageStatistic) WindowStart() time.Time { return s.Start }

func (s *MessageStatistic) WindowEnd() time.Time { return s.End }

func (s *MessageStatistic) Clone() *MessageStatistic {
	c := *s
	return &c
}

// Record adds one message to the window.
func (s *MessageStatistic) Record(size int64, failed bool) {
	s.TotalMessageCount++
	s.TotalMessageSize += size
	if failed {
		s.TotalMessageErrorCount++
	}
}

// Config configures the window layout of a statistics interceptor.
type Config struct {
	// Name identifies the interceptor in logs, metrics and introspection.
	Name           string
	WindowDuration time.Duration
	HistoryCount   int
}

func (c Config) validate() error {
	var errs []error
	if c.WindowDuration < 0 {
		errs = append(errs, errors.New("window duration must not be negative"))
	}
	if c.HistoryCount < 0 {
		errs = append(errs, errors.New("history count must not be negative"))
	}
	return errors.Join(errs...)
}

// MessageMetrics is an interceptor counting messages, payload bytes and
// failures per window.
type MessageMetrics struct {
	name    string
	kind    string
	acc     *Accumulator[*MessageStatistic]
	metrics *metrics.Metrics
	filter  func(msg *message.Message) bool
	cfgErr  error
}

// NewMessageMetrics creates a MessageMetrics interceptor. A nil m records no
// Prometheus gauges.
func NewMessageMetrics(cfg Config, m *metrics.Metrics) *MessageMetrics {
	name := cfg.Name
	if name == "" {
		name = "message_metrics"
	}
	return &MessageMetrics{
		name:    name,
		kind:    "message_metrics",
		acc:     NewAccumulator(cfg.WindowDuration, cfg.HistoryCount, NewMessageStatistic),
		metrics: m,
		cfgErr:  cfg.validate(),
	}
}

// FilterConfig selects the messages counted by MessageMetricsByMetadata.
type FilterConfig struct {
	Config
	// MetadataKey names the metadata entry to match. Required.
	MetadataKey string
	// MetadataPattern is a regular expression the value must match.
	// Empty matches any value, as long as the key is present.
	MetadataPattern string
}

// NewMessageMetricsByMetadata creates a MessageMetrics interceptor that only
// counts messages whose MetadataKey value matches MetadataPattern.
func NewMessageMetricsByMetadata(cfg FilterConfig, m *metrics.Metrics) (*MessageMetrics, error) {
	var errs []error
	if err := cfg.validate(); err != nil {
		errs = append(errs, err)
	}
	if cfg.MetadataKey == "" {
		errs = append(errs, errspkg.ErrMetadataKeyRequired)
	}
	pattern, err := regexp.Compile(cfg.MetadataPattern)
	if err != nil {
		errs = append(errs, err)
	}
	if err := errspkg.NewConfigValidationError("message metrics", errors.Join(errs...)); err != nil {
		return nil, err
	}

	if cfg.Name == "" {
		cfg.Name = "message_metrics:" + cfg.MetadataKey
	}
	mm := NewMessageMetrics(cfg.Config, m)
	mm.kind = "message_metrics_by_metadata"
	mm.filter = func(msg *message.Message) bool {
		value, ok := interceptor.MetadataValue(msg, cfg.MetadataKey)
		return ok && pattern.MatchString(value)
	}
	return mm, nil
}

func (mm *MessageMetrics) Name() string { return mm.name }

func (mm *MessageMetrics) Start(context.Context) error {
	if err := errspkg.NewConfigValidationError("message metrics", mm.cfgErr); err != nil {
		return err
	}
	mm.acc.Current()
	return nil
}

func (mm *MessageMetrics) Stop(context.Context) error { return nil }

func (mm *MessageMetrics) OnStart(*message.Message) error { return nil }

// OnEnd records the input message. It counts as failed when either message
// carries the exception marker.
func (mm *MessageMetrics) OnEnd(in, out *message.Message) {
	if mm.filter != nil && !mm.filter(in) {
		return
	}
	mm.Record(interceptor.MessageSize(in), interceptor.Failed(in) || interceptor.Failed(out))
}

// Record adds one message to the live window and returns a copy of it.
func (mm *MessageMetrics) Record(size int64, failed bool) *MessageStatistic {
	snapshot := mm.acc.Update(func(s *MessageStatistic) {
		s.Record(size, failed)
	})
	mm.metrics.WindowObserved(mm.name, snapshot.TotalMessageCount, snapshot.TotalMessageSize, snapshot.TotalMessageErrorCount)
	return snapshot
}

// Accumulator exposes the underlying window history.
func (mm *MessageMetrics) Accumulator() *Accumulator[*MessageStatistic] { return mm.acc }

func (mm *MessageMetrics) Current() *MessageStatistic { return mm.acc.Current() }

func (mm *MessageMetrics) History() []*MessageStatistic { return mm.acc.History() }

func (mm *MessageMetrics) HistoryRange(from, to int) []*MessageStatistic {
	return mm.acc.HistoryRange(from, to)
}

func (mm *MessageMetrics) WindowCount() int { return mm.acc.WindowCount() }

func (mm *MessageMetrics) WindowDurationSeconds() int { return mm.acc.WindowDurationSeconds() }

func (mm *MessageMetrics) Inspect() interceptor.Inspection {
	return interceptor.Inspection{
		Name:                  mm.name,
		Kind:                  mm.kind,
		WindowCount:           mm.acc.WindowCount(),
		WindowDurationSeconds: mm.acc.WindowDurationSeconds(),
		History:               mm.acc.History(),
	}
}
