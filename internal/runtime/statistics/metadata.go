package statistics

import (
	"context"
	"errors"
	"maps"
	"strconv"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	errspkg "github.com/drblury/flowguard/internal/runtime/errors"
	"github.com/drblury/flowguard/internal/runtime/interceptor"
	loggingpkg "github.com/drblury/flowguard/internal/runtime/logging"
)

// MetadataStatistic maps observed metadata values to a number within one
// window. Entries are only added or incremented.
type MetadataStatistic struct {
	Start  time.Time        `json:"start"`
	End    time.Time        `json:"end"`
	Values map[string]int64 `json:"values"`
}

// NewMetadataStatistic returns an empty window spanning [start, end).
func NewMetadataStatistic(start, end time.Time) *MetadataStatistic {
	return &MetadataStatistic{Start: start, End: end, Values: make(map[string]int64)}
}

func (s *MetadataStatistic) WindowStart() time.Time { return s.Start }

func (s *MetadataStatistic) WindowEnd() time.Time { return s.End }

func (s *MetadataStatistic) Clone() *MetadataStatistic {
	return &MetadataStatistic{Start: s.Start, End: s.End, Values: maps.Clone(s.Values)}
}

// Add increases the entry for key by n.
func (s *MetadataStatistic) Add(key string, n int64) {
	if s.Values == nil {
		s.Values = make(map[string]int64)
	}
	s.Values[key] += n
}

// MetadataConfig configures MetadataCount.
type MetadataConfig struct {
	Config
	// MetadataKey names the metadata entry whose values are counted. Required.
	MetadataKey string
}

// MetadataCount counts, per window, how often each value of one metadata key
// is seen.
type MetadataCount struct {
	name   string
	key    string
	acc    *Accumulator[*MetadataStatistic]
	cfgErr error
}

func NewMetadataCount(cfg MetadataConfig) *MetadataCount {
	var errs []error
	if err := cfg.validate(); err != nil {
		errs = append(errs, err)
	}
	if cfg.MetadataKey == "" {
		errs = append(errs, errspkg.ErrMetadataKeyRequired)
	}
	name := cfg.Name
	if name == "" {
		name = "metadata_count:" + cfg.MetadataKey
	}
	return &MetadataCount{
		name:   name,
		key:    cfg.MetadataKey,
		acc:    NewAccumulator(cfg.WindowDuration, cfg.HistoryCount, NewMetadataStatistic),
		cfgErr: errors.Join(errs...),
	}
}

func (mc *MetadataCount) Name() string { return mc.name }

func (mc *MetadataCount) Start(context.Context) error {
	if err := errspkg.NewConfigValidationError("metadata count", mc.cfgErr); err != nil {
		return err
	}
	mc.acc.Current()
	return nil
}

func (mc *MetadataCount) Stop(context.Context) error { return nil }

func (mc *MetadataCount) OnStart(*message.Message) error { return nil }

func (mc *MetadataCount) OnEnd(in, _ *message.Message) {
	value, ok := interceptor.MetadataValue(in, mc.key)
	if !ok {
		return
	}
	mc.Record(value)
}

// Record counts one occurrence of value in the live window.
func (mc *MetadataCount) Record(value string) *MetadataStatistic {
	return mc.acc.Update(func(s *MetadataStatistic) {
		s.Add(value, 1)
	})
}

func (mc *MetadataCount) Accumulator() *Accumulator[*MetadataStatistic] { return mc.acc }

func (mc *MetadataCount) Current() *MetadataStatistic { return mc.acc.Current() }

func (mc *MetadataCount) History() []*MetadataStatistic { return mc.acc.History() }

func (mc *MetadataCount) HistoryRange(from, to int) []*MetadataStatistic {
	return mc.acc.HistoryRange(from, to)
}

func (mc *MetadataCount) Inspect() interceptor.Inspection {
	return interceptor.Inspection{
		Name:                  mc.name,
		Kind:                  "metadata_count",
		WindowCount:           mc.acc.WindowCount(),
		WindowDurationSeconds: mc.acc.WindowDurationSeconds(),
		History:               mc.acc.History(),
		Details:               map[string]any{"metadata_key": mc.key},
	}
}

// TotalsConfig configures MetadataTotals.
type TotalsConfig struct {
	Config
	// MetadataKeys lists the metadata entries whose integer values are summed.
	MetadataKeys []string
}

// MetadataTotals sums, per window, the integer values carried in a set of
// metadata keys. Values that are not integers are skipped.
type MetadataTotals struct {
	name   string
	keys   []string
	acc    *Accumulator[*MetadataStatistic]
	logger loggingpkg.ServiceLogger
	cfgErr error
}

func NewMetadataTotals(cfg TotalsConfig, logger loggingpkg.ServiceLogger) *MetadataTotals {
	var errs []error
	if err := cfg.validate(); err != nil {
		errs = append(errs, err)
	}
	if len(cfg.MetadataKeys) == 0 {
		errs = append(errs, errspkg.ErrMetadataKeyRequired)
	}
	for _, key := range cfg.MetadataKeys {
		if key == "" {
			errs = append(errs, errspkg.ErrMetadataKeyRequired)
			break
		}
	}
	name := cfg.Name
	if name == "" {
		name = "metadata_totals"
	}
	return &MetadataTotals{
		name:   name,
		keys:   append([]string(nil), cfg.MetadataKeys...),
		acc:    NewAccumulator(cfg.WindowDuration, cfg.HistoryCount, NewMetadataStatistic),
		logger: loggingpkg.ForComponent(logger, name, nil),
		cfgErr: errors.Join(errs...),
	}
}

func (mt *MetadataTotals) Name() string { return mt.name }

func (mt *MetadataTotals) Start(context.Context) error {
	if err := errspkg.NewConfigValidationError("metadata totals", mt.cfgErr); err != nil {
		return err
	}
	mt.acc.Current()
	return nil
}

func (mt *MetadataTotals) Stop(context.Context) error { return nil }

func (mt *MetadataTotals) OnStart(*message.Message) error { return nil }

func (mt *MetadataTotals) OnEnd(in, _ *message.Message) {
	values := make(map[string]int64, len(mt.keys))
	for _, key := range mt.keys {
		raw, ok := interceptor.MetadataValue(in, key)
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			mt.logger.Debug("Skipping non-integer metadata value", loggingpkg.LogFields{
				"metadata_key": key,
				"message_uuid": interceptor.MessageID(in),
			})
			continue
		}
		values[key] = n
	}
	if len(values) == 0 {
		return
	}
	mt.acc.Update(func(s *MetadataStatistic) {
		for key, n := range values {
			s.Add(key, n)
		}
	})
}

func (mt *MetadataTotals) Accumulator() *Accumulator[*MetadataStatistic] { return mt.acc }

func (mt *MetadataTotals) Current() *MetadataStatistic { return mt.acc.Current() }

func (mt *MetadataTotals) History() []*MetadataStatistic { return mt.acc.History() }

func (mt *MetadataTotals) Inspect() interceptor.Inspection {
	return interceptor.Inspection{
		Name:                  mt.name,
		Kind:                  "metadata_totals",
		WindowCount:           mt.acc.WindowCount(),
		WindowDurationSeconds: mt.acc.WindowDurationSeconds(),
		History:               mt.acc.History(),
		Details:               map[string]any{"metadata_keys": mt.keys},
	}
}
