package runtime

import (
	"runtime"
	"runtime/metrics"
	"sync"
	"time"
)

// ResourceUsage is a coarse view of the process, served next to the
// interceptor state.
type ResourceUsage struct {
	CPUPercent  float64 `json:"cpu_percent"`
	MemoryBytes uint64  `json:"memory_bytes"`
	Goroutines  int     `json:"goroutines"`
}

var resourceSamples = [...]string{
	"/cpu/classes/total:cpu-seconds",
	"/cpu/classes/idle:cpu-seconds",
	"/memory/classes/heap/objects:bytes",
	"/sched/goroutines:goroutines",
}

// resourceTracker reads runtime/metrics without stopping the world. CPU usage
// is the busy share of GOMAXPROCS since the previous snapshot; the runtime
// refreshes the CPU estimates at each GC, so short intervals often read 0.
type resourceTracker struct {
	mu      sync.Mutex
	samples []metrics.Sample
	prevCPU float64
	prevAt  time.Time
	now     func() time.Time
}

func newResourceTracker() *resourceTracker {
	return &resourceTracker{now: time.Now}
}

func (r *resourceTracker) Snapshot() ResourceUsage {
	if r == nil {
		return ResourceUsage{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.samples == nil {
		r.samples = make([]metrics.Sample, len(resourceSamples))
		for i, name := range resourceSamples {
			r.samples[i].Name = name
		}
	}
	now := time.Now()
	if r.now != nil {
		now = r.now()
	}
	metrics.Read(r.samples)

	var usage ResourceUsage
	total, idle := r.samples[0].Value, r.samples[1].Value
	if total.Kind() == metrics.KindFloat64 && idle.Kind() == metrics.KindFloat64 {
		busy := total.Float64() - idle.Float64()
		if elapsed := now.Sub(r.prevAt).Seconds(); !r.prevAt.IsZero() && elapsed > 0 {
			usage.CPUPercent = max(0, (busy-r.prevCPU)/elapsed/float64(runtime.GOMAXPROCS(0))*100)
		}
		r.prevCPU, r.prevAt = busy, now
	}
	if v := r.samples[2].Value; v.Kind() == metrics.KindUint64 {
		usage.MemoryBytes = v.Uint64()
	}
	if v := r.samples[3].Value; v.Kind() == metrics.KindUint64 {
		usage.Goroutines = int(v.Uint64())
	}
	return usage
}
