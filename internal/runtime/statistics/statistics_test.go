package statistics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errspkg "github.com/drblury/flowguard/internal/runtime/errors"
	"github.com/drblury/flowguard/internal/runtime/interceptor"
	"github.com/drblury/flowguard/internal/runtime/metrics"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestAccumulator(clock *fakeClock, window time.Duration, historyCount int) *Accumulator[*MessageStatistic] {
	return NewAccumulator(window, historyCount, NewMessageStatistic).WithClock(clock.Now)
}

func TestAccumulatorDefaults(t *testing.T) {
	acc := NewAccumulator(0, 0, NewMessageStatistic)
	assert.Equal(t, DefaultWindowDuration, acc.WindowDuration())
	assert.Equal(t, 10, acc.WindowDurationSeconds())
	assert.Equal(t, DefaultHistoryCount, acc.HistoryCount())
	assert.Equal(t, 0, acc.WindowCount())
}

func TestAccumulatorWindowRollover(t *testing.T) {
	clock := newFakeClock()
	acc := newTestAccumulator(clock, 10*time.Second, 5)

	first := acc.Current()
	clock.Advance(5 * time.Second)
	same := acc.Current()
	assert.Equal(t, first.End, same.End, "window end is fixed at creation")
	assert.Equal(t, 1, acc.WindowCount())

	clock.Advance(5 * time.Second)
	next := acc.Current()
	assert.True(t, next.End.After(first.End))
	assert.Equal(t, 2, acc.WindowCount())
}

func TestAccumulatorEvictsOldestWindows(t *testing.T) {
	clock := newFakeClock()
	const historyCount, extra = 4, 3
	acc := newTestAccumulator(clock, time.Second, historyCount)

	var ends []time.Time
	for range historyCount + extra {
		ends = append(ends, acc.Update(func(s *MessageStatistic) { s.Record(1, false) }).End)
		clock.Advance(time.Second)
	}

	history := acc.History()
	require.Len(t, history, historyCount)
	for i, s := range history {
		assert.Equal(t, ends[extra+i], s.End)
	}
	for i := 1; i < len(history); i++ {
		assert.True(t, history[i].End.After(history[i-1].End), "history stays in time order")
	}
}

func TestAccumulatorReturnsCopies(t *testing.T) {
	clock := newFakeClock()
	acc := newTestAccumulator(clock, time.Minute, 10)
	acc.Update(func(s *MessageStatistic) { s.Record(10, false) })

	history := acc.History()
	history[0].TotalMessageCount = 999
	current := acc.Current()
	current.TotalMessageSize = 999

	fresh := acc.Current()
	assert.Equal(t, int64(1), fresh.TotalMessageCount)
	assert.Equal(t, int64(10), fresh.TotalMessageSize)
}

func TestAccumulatorHistoryRange(t *testing.T) {
	clock := newFakeClock()
	acc := newTestAccumulator(clock, time.Second, 10)
	for i := range 3 {
		acc.Update(func(s *MessageStatistic) { s.TotalMessageCount = int64(i) })
		clock.Advance(time.Second)
	}

	got := acc.HistoryRange(1, 3)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].TotalMessageCount)
	assert.Equal(t, int64(2), got[1].TotalMessageCount)

	assert.Empty(t, acc.HistoryRange(-1, 2))
	assert.Empty(t, acc.HistoryRange(0, 4))
	assert.Empty(t, acc.HistoryRange(2, 1))
	assert.NotNil(t, acc.HistoryRange(5, 9))
	assert.Empty(t, acc.HistoryRange(1, 1))
}

func TestAccumulatorRolloverHook(t *testing.T) {
	clock := newFakeClock()
	acc := newTestAccumulator(clock, time.Second, 10)

	var closed []*MessageStatistic
	acc.OnRollover(func(s *MessageStatistic) { closed = append(closed, s) })

	assert.False(t, acc.Roll(), "nothing to close before the first window")
	acc.Update(func(s *MessageStatistic) { s.Record(3, false) })
	assert.False(t, acc.Roll())

	clock.Advance(time.Second)
	assert.True(t, acc.Roll())
	require.Len(t, closed, 1)
	assert.Equal(t, int64(1), closed[0].TotalMessageCount)

	clock.Advance(time.Second)
	acc.Update(func(s *MessageStatistic) { s.Record(3, false) })
	require.Len(t, closed, 2)
	assert.Equal(t, int64(0), closed[1].TotalMessageCount)
}

func TestAccumulatorConcurrentUpdates(t *testing.T) {
	acc := NewAccumulator(time.Hour, 10, NewMessageStatistic)

	const workers, perWorker = 8, 250
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWorker {
				acc.Update(func(s *MessageStatistic) { s.Record(2, false) })
			}
		}()
	}
	wg.Wait()

	current := acc.Current()
	assert.Equal(t, int64(workers*perWorker), current.TotalMessageCount)
	assert.Equal(t, int64(2*workers*perWorker), current.TotalMessageSize)
}

func TestMessageMetricsRecordsMessages(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	require.NoError(t, m.Register())

	mm := NewMessageMetrics(Config{Name: "orders", WindowDuration: time.Minute}, m)
	require.NoError(t, mm.Start(context.Background()))

	ok := message.NewMessage("ok", []byte("12345"))
	mm.OnEnd(ok, ok)

	failed := message.NewMessage("failed", []byte("abc"))
	interceptor.MarkFailed(failed, errors.New("boom"))
	mm.OnEnd(failed, failed)

	current := mm.Current()
	assert.Equal(t, int64(2), current.TotalMessageCount)
	assert.Equal(t, int64(8), current.TotalMessageSize)
	assert.Equal(t, int64(1), current.TotalMessageErrorCount)

	expected := `
# HELP flowguard_window_messages Messages recorded in the current window
# TYPE flowguard_window_messages gauge
flowguard_window_messages{interceptor="orders"} 2
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "flowguard_window_messages"))

	ins := mm.Inspect()
	assert.Equal(t, "message_metrics", ins.Kind)
	assert.Equal(t, 60, ins.WindowDurationSeconds)
	assert.Equal(t, 1, ins.WindowCount)
}

func TestMessageMetricsRejectsNegativeConfig(t *testing.T) {
	mm := NewMessageMetrics(Config{HistoryCount: -1}, nil)
	err := mm.Start(context.Background())
	var cfgErr errspkg.ConfigValidationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "message metrics", cfgErr.Component)
}

func TestMessageMetricsByMetadataFilters(t *testing.T) {
	mm, err := NewMessageMetricsByMetadata(FilterConfig{
		MetadataKey:     "region",
		MetadataPattern: "^eu-",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "message_metrics:region", mm.Name())

	for _, region := range []string{"eu-west", "us-east", "eu-central", ""} {
		msg := message.NewMessage(region, []byte("x"))
		if region != "" {
			msg.Metadata.Set("region", region)
		}
		mm.OnEnd(msg, msg)
	}

	assert.Equal(t, int64(2), mm.Current().TotalMessageCount)
	assert.Equal(t, "message_metrics_by_metadata", mm.Inspect().Kind)
}

func TestMessageMetricsByMetadataValidation(t *testing.T) {
	_, err := NewMessageMetricsByMetadata(FilterConfig{MetadataPattern: "("}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errspkg.ErrMetadataKeyRequired)
	assert.Contains(t, err.Error(), "missing closing )")
}

func TestMetadataCountCountsValues(t *testing.T) {
	mc := NewMetadataCount(MetadataConfig{MetadataKey: "tenant"})
	require.NoError(t, mc.Start(context.Background()))

	for _, tenant := range []string{"a", "b", "a", "a"} {
		msg := message.NewMessage(tenant, nil)
		msg.Metadata.Set("tenant", tenant)
		mc.OnEnd(msg, msg)
	}
	mc.OnEnd(message.NewMessage("untagged", nil), nil)

	current := mc.Current()
	assert.Equal(t, map[string]int64{"a": 3, "b": 1}, current.Values)

	current.Values["a"] = 100
	assert.Equal(t, int64(3), mc.Current().Values["a"])
	assert.Equal(t, "tenant", mc.Inspect().Details["metadata_key"])
}

func TestMetadataCountRequiresKey(t *testing.T) {
	mc := NewMetadataCount(MetadataConfig{})
	assert.ErrorIs(t, mc.Start(context.Background()), errspkg.ErrMetadataKeyRequired)
}

func TestMetadataTotalsSumsIntegers(t *testing.T) {
	mt := NewMetadataTotals(TotalsConfig{MetadataKeys: []string{"items", "weight"}}, nil)
	require.NoError(t, mt.Start(context.Background()))

	first := message.NewMessage("1", nil)
	first.Metadata.Set("items", "3")
	first.Metadata.Set("weight", "10")
	mt.OnEnd(first, first)

	second := message.NewMessage("2", nil)
	second.Metadata.Set("items", "2")
	second.Metadata.Set("weight", "heavy")
	mt.OnEnd(second, second)

	assert.Equal(t, map[string]int64{"items": 5, "weight": 10}, mt.Current().Values)
}

func TestMetadataTotalsRequiresKeys(t *testing.T) {
	mt := NewMetadataTotals(TotalsConfig{}, nil)
	assert.ErrorIs(t, mt.Start(context.Background()), errspkg.ErrMetadataKeyRequired)
}
