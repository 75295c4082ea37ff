// Package timeslice keeps the active admission window for each named quota.
//
// A Registry is shared by every throttle that should draw from the same budget:
// two workflows configured with the same cache name cooperate on one quota.
package timeslice

import (
	"sort"
	"sync"
	"time"
)

// TimeSlice is one admission window: its end and the number of admissions so far.
type TimeSlice struct {
	End   time.Time
	Count int64
}

// Expired reports whether the slice has ended at now.
func (s TimeSlice) Expired(now time.Time) bool {
	return !now.Before(s.End)
}

// Remaining returns how long until the slice ends, never negative.
func (s TimeSlice) Remaining(now time.Time) time.Duration {
	d := s.End.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Registry maps cache names to the single currently active TimeSlice.
type Registry struct {
	mu     sync.Mutex
	slices map[string]*TimeSlice
	now    func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		slices: make(map[string]*TimeSlice),
		now:    time.Now,
	}
}

// WithClock replaces the registry clock. Intended for tests.
func (r *Registry) WithClock(now func() time.Time) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
	return r
}

// Get returns the active slice for name, starting a new one of length window
// when none exists or the stored one has expired.
func (r *Registry) Get(name string, window time.Duration) TimeSlice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.currentLocked(name, window)
}

// Update replaces the stored slice for name.
func (r *Registry) Update(name string, slice TimeSlice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := slice
	r.slices[name] = &s
}

// Acquire takes one slot from the active slice for name if fewer than limit
// have been taken. It returns the slice as observed after the attempt.
func (r *Registry) Acquire(name string, window time.Duration, limit int64) (TimeSlice, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.currentLocked(name, window)
	if current.Count < limit {
		current.Count++
		return *current, true
	}
	return *current, false
}

// Names returns the cache names known to the registry, sorted.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.slices))
	for name := range r.slices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of cache names in the registry.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slices)
}

// Remove drops the slice for name.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.slices, name)
}

func (r *Registry) currentLocked(name string, window time.Duration) *TimeSlice {
	now := r.now()
	current, ok := r.slices[name]
	if !ok || current.Expired(now) {
		current = &TimeSlice{End: now.Add(window)}
		r.slices[name] = current
	}
	return current
}
