// Package statistics keeps rolling per-window statistics about the messages a
// workflow processes.
//
// An Accumulator holds a bounded, time-ordered history of windows. The last
// window is live and accumulates until its end; the next observation after
// that appends a fresh window and drops the oldest once the history is full.
// Every read returns copies, so callers never share state with the
// accumulator.
package statistics

import (
	"slices"
	"sync"
	"time"
)

const (
	DefaultWindowDuration = 10 * time.Second
	DefaultHistoryCount   = 100
)

// Statistic is one window of an Accumulator. S is the statistic type itself,
// normally a pointer, so Clone can return a detached copy.
type Statistic[S any] interface {
	WindowStart() time.Time
	WindowEnd() time.Time
	Clone() S
}

// Accumulator is a bounded history of windows of type S.
type Accumulator[S Statistic[S]] struct {
	mu           sync.Mutex
	window       time.Duration
	historyCount int
	history      []S
	newWindow    func(start, end time.Time) S
	onRollover   func(closed S)
	now          func() time.Time
}

// NewAccumulator creates an accumulator whose windows last window and whose
// history keeps at most historyCount windows. Non-positive values fall back to
// the defaults. newWindow builds an empty window spanning [start, end).
func NewAccumulator[S Statistic[S]](window time.Duration, historyCount int, newWindow func(start, end time.Time) S) *Accumulator[S] {
	if window <= 0 {
		window = DefaultWindowDuration
	}
	if historyCount <= 0 {
		historyCount = DefaultHistoryCount
	}
	return &Accumulator[S]{
		window:       window,
		historyCount: historyCount,
		history:      make([]S, 0, historyCount),
		newWindow:    newWindow,
		now:          time.Now,
	}
}

// WithClock replaces the accumulator clock. Intended for tests.
func (a *Accumulator[S]) WithClock(now func() time.Time) *Accumulator[S] {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.now = now
	return a
}

// OnRollover registers fn to receive a copy of every window that closes.
// fn runs outside the accumulator lock.
func (a *Accumulator[S]) OnRollover(fn func(closed S)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onRollover = fn
}

// Update applies fn to the live window and returns a copy of the result.
// Rollover and mutation happen under one lock.
func (a *Accumulator[S]) Update(fn func(current S)) S {
	a.mu.Lock()
	closed, rolled := a.advanceLocked()
	current := a.history[len(a.history)-1]
	fn(current)
	snapshot := current.Clone()
	hook := a.onRollover
	a.mu.Unlock()

	if rolled && hook != nil {
		hook(closed)
	}
	return snapshot
}

// Current returns a copy of the live window, starting a new one when the
// previous window has ended.
func (a *Accumulator[S]) Current() S {
	return a.Update(func(S) {})
}

// Roll closes the live window if it has ended, without recording anything.
// It reports whether a window was closed.
func (a *Accumulator[S]) Roll() bool {
	a.mu.Lock()
	if len(a.history) == 0 || a.now().Before(a.history[len(a.history)-1].WindowEnd()) {
		a.mu.Unlock()
		return false
	}
	closed, rolled := a.advanceLocked()
	hook := a.onRollover
	a.mu.Unlock()

	if rolled && hook != nil {
		hook(closed)
	}
	return rolled
}

// History returns copies of every window, oldest first.
func (a *Accumulator[S]) History() []S {
	a.mu.Lock()
	defer a.mu.Unlock()
	return cloneAll(a.history)
}

// HistoryRange returns copies of the windows with index in [from, to), oldest
// first. An out-of-range request returns an empty slice.
func (a *Accumulator[S]) HistoryRange(from, to int) []S {
	a.mu.Lock()
	defer a.mu.Unlock()

	if from < 0 || to > len(a.history) || from > to {
		return []S{}
	}
	return cloneAll(a.history[from:to])
}

// WindowCount returns the number of windows held, including the live one.
func (a *Accumulator[S]) WindowCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.history)
}

// WindowDurationSeconds returns the window length in whole seconds.
func (a *Accumulator[S]) WindowDurationSeconds() int {
	return int(a.window / time.Second)
}

// WindowDuration returns the window length.
func (a *Accumulator[S]) WindowDuration() time.Duration {
	return a.window
}

// HistoryCount returns the maximum number of windows kept.
func (a *Accumulator[S]) HistoryCount() int {
	return a.historyCount
}

// advanceLocked makes sure the last window is live. When the previous window
// had ended it is returned as closed.
func (a *Accumulator[S]) advanceLocked() (closed S, rolled bool) {
	now := a.now()
	n := len(a.history)
	if n > 0 {
		last := a.history[n-1]
		if now.Before(last.WindowEnd()) {
			return closed, false
		}
		closed, rolled = last.Clone(), true
	}

	a.history = append(a.history, a.newWindow(now, now.Add(a.window)))
	if len(a.history) > a.historyCount {
		a.history = slices.Delete(a.history, 0, len(a.history)-a.historyCount)
	}
	return closed, rolled
}

func cloneAll[S Statistic[S]](in []S) []S {
	out := make([]S, len(in))
	for i, s := range in {
		out[i] = s.Clone()
	}
	return out
}
