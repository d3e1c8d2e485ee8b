// Package profiler records how long each stage of a scene build takes and samples heap
// statistics when a report is logged.
package profiler

import (
	"log/slog"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-trace/common"
)

// Stage accumulates the time spent in one named build stage.
type Stage struct {
	Name     string
	Calls    int
	Duration time.Duration
}

// Profiler tracks stage timings and memory statistics of scene builds.
// A nil *Profiler is valid and records nothing.
type Profiler struct {
	mu             *sync.Mutex
	logger         *slog.Logger
	stages         map[string]*Stage
	order          []string
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64
}

// ProfilerOption is a function that configures a Profiler during construction.
type ProfilerOption func(*Profiler)

// WithLogger is an option builder that sets the logger reports are written to.
// Defaults to common.Logger().
//
// Parameters:
//   - l: the logger
//
// Returns:
//   - ProfilerOption: a function that applies the option
func WithLogger(l *slog.Logger) ProfilerOption {
	return func(p *Profiler) {
		p.logger = l
	}
}

// NewProfiler creates a new Profiler with no recorded stages.
//
// Parameters:
//   - opts: options applied in order
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler(opts ...ProfilerOption) *Profiler {
	p := &Profiler{
		mu:     &sync.Mutex{},
		stages: make(map[string]*Stage),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Begin starts timing a stage. The returned function stops the timer and adds the elapsed
// time to the stage. Stages may nest and repeat.
//
// Parameters:
//   - name: the stage name
//
// Returns:
//   - func(): stops the timer
func (p *Profiler) Begin(name string) func() {
	if p == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		elapsed := time.Since(start)
		p.mu.Lock()
		defer p.mu.Unlock()
		s, ok := p.stages[name]
		if !ok {
			s = &Stage{Name: name}
			p.stages[name] = s
			p.order = append(p.order, name)
		}
		s.Calls++
		s.Duration += elapsed
	}
}

// Stages returns a copy of the recorded stages in the order they were first seen.
//
// Returns:
//   - []Stage: the stages
func (p *Profiler) Stages() []Stage {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Stage, 0, len(p.order))
	for _, name := range p.order {
		out = append(out, *p.stages[name])
	}
	return out
}

// Reset forgets every recorded stage.
func (p *Profiler) Reset() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	clear(p.stages)
	p.order = p.order[:0]
}

// Report logs every stage, slowest first, followed by heap statistics, then resets the stages.
// Statistics include heap usage, bytes allocated since the previous report, GC count and
// pause times, and total memory.
//
// Returns:
//   - bool: true if anything was recorded since the last report
func (p *Profiler) Report() bool {
	if p == nil {
		return false
	}
	stages := p.Stages()
	if len(stages) == 0 {
		return false
	}
	logger := p.logger
	if logger == nil {
		logger = common.Logger()
	}

	slices.SortStableFunc(stages, func(a, b Stage) int {
		return int(b.Duration - a.Duration)
	})
	for _, s := range stages {
		logger.Debug("profiler: stage", "name", s.Name, "calls", s.Calls, "duration", s.Duration)
	}

	p.mu.Lock()
	runtime.ReadMemStats(&p.memStats)
	// Alloc: bytes of live heap objects. Sys: bytes obtained from the OS.
	allocMB := float64(p.memStats.Alloc) / 1024 / 1024
	sysMB := float64(p.memStats.Sys) / 1024 / 1024
	churnMB := float64(p.memStats.TotalAlloc-p.lastTotalAlloc) / 1024 / 1024

	gcCount := p.memStats.NumGC
	var lastPauseUs, maxPauseUs uint64
	if gcCount > 0 {
		// PauseNs is a circular buffer of the last 256 GC pauses
		lastPauseUs = p.memStats.PauseNs[(gcCount-1)%256] / 1000

		startIdx := p.lastGCCount
		if gcCount-startIdx > 256 {
			startIdx = gcCount - 256
		}
		for i := startIdx; i < gcCount; i++ {
			maxPauseUs = max(maxPauseUs, p.memStats.PauseNs[i%256]/1000)
		}
	}
	p.lastGCCount = gcCount
	p.lastTotalAlloc = p.memStats.TotalAlloc
	p.mu.Unlock()

	logger.Debug("profiler: memory",
		"heap_mb", allocMB,
		"allocated_mb", churnMB,
		"gc", gcCount,
		"gc_last_us", lastPauseUs,
		"gc_max_us", maxPauseUs,
		"sys_mb", sysMB)

	p.Reset()
	return true
}
