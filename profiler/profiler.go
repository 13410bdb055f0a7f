// Package profiler - Rolling per-model latency statistics with periodic runtime reports.
package profiler

import (
	"context"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/nvr-ai/go-classify/logging"
)

// Options configures the profiler.
type Options struct {
	// ReportInterval specifies how often to emit status reports (default: 30s)
	ReportInterval time.Duration
	// MaxSamples bounds the rolling window kept per model (default: 600)
	MaxSamples int
	// Logger receives the reports; logging.Module("profiler") when nil.
	Logger *slog.Logger
}

// Profiler tracks inference timings per model and periodically logs them with
// memory and goroutine figures.
//
// It implements classifier.Observer, so it can be attached with
// classifier.WithObserver.
type Profiler struct {
	reportInterval time.Duration
	maxSamples     int
	log            *slog.Logger

	mu        sync.Mutex
	startTime time.Time
	trackers  map[string]*tracker
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	lastGC    uint32
}

// tracker keeps a rolling window of one model's durations.
type tracker struct {
	durations []time.Duration
	total     time.Duration
	min       time.Duration
	max       time.Duration
	count     int64
	errors    int64
}

// ModelStats is a snapshot of one model's timings.
type ModelStats struct {
	Model   string        `json:"model"`
	Count   int64         `json:"count"`
	Errors  int64         `json:"errors"`
	Samples int           `json:"samples"`
	Average time.Duration `json:"average"`
	Min     time.Duration `json:"min"`
	Max     time.Duration `json:"max"`
}

// New creates a profiler with the specified options.
//
// Arguments:
//   - opts: Configuration options for the profiler
//
// Returns:
//   - *Profiler: A profiler that is recording but not yet reporting.
func New(opts Options) *Profiler {
	if opts.ReportInterval <= 0 {
		opts.ReportInterval = 30 * time.Second
	}
	if opts.MaxSamples <= 0 {
		opts.MaxSamples = 600
	}
	if opts.Logger == nil {
		opts.Logger = logging.Module("profiler")
	}
	return &Profiler{
		reportInterval: opts.ReportInterval,
		maxSamples:     opts.MaxSamples,
		log:            opts.Logger,
		startTime:      time.Now(),
		trackers:       make(map[string]*tracker),
	}
}

// ObserveInference records one classification.
//
// Failed calls count towards Errors only; they do not enter the timing window.
func (p *Profiler) ObserveInference(modelID string, elapsed time.Duration, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.trackers[modelID]
	if !ok {
		t = &tracker{durations: make([]time.Duration, 0, p.maxSamples)}
		p.trackers[modelID] = t
	}
	if err != nil {
		t.errors++
		return
	}

	t.durations = append(t.durations, elapsed)
	t.total += elapsed
	if len(t.durations) > p.maxSamples {
		t.total -= t.durations[0]
		t.durations = t.durations[1:]
	}
	if t.count == 0 || elapsed < t.min {
		t.min = elapsed
	}
	if elapsed > t.max {
		t.max = elapsed
	}
	t.count++
}

// Snapshot returns current statistics sorted by model identifier.
func (p *Profiler) Snapshot() []ModelStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]ModelStats, 0, len(p.trackers))
	for id, t := range p.trackers {
		s := ModelStats{
			Model:   id,
			Count:   t.count,
			Errors:  t.errors,
			Samples: len(t.durations),
			Min:     t.min,
			Max:     t.max,
		}
		if n := len(t.durations); n > 0 {
			s.Average = t.total / time.Duration(n)
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Model < out[j].Model })
	return out
}

// Start emits a report every interval until ctx is done or Stop is called.
// Calling Start on a running profiler does nothing.
func (p *Profiler) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}

	ctx, p.cancel = context.WithCancel(ctx)
	p.startTime = time.Now()
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		ticker := time.NewTicker(p.reportInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.Report()
			}
		}
	}()
}

// Stop ends reporting and waits for the report goroutine.
func (p *Profiler) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	p.wg.Wait()
}

// Report logs runtime figures and one line per observed model.
func (p *Profiler) Report() {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	p.mu.Lock()
	newGC := mem.NumGC - p.lastGC
	p.lastGC = mem.NumGC
	uptime := time.Since(p.startTime)
	p.mu.Unlock()

	p.log.Info("runtime status",
		"uptime", uptime.Truncate(time.Millisecond),
		"goroutines", runtime.NumGoroutine(),
		"cgo_calls", runtime.NumCgoCall(),
		"heap_alloc_bytes", mem.HeapAlloc,
		"sys_bytes", mem.Sys,
		"gc_cycles", mem.NumGC,
		"gc_new", newGC,
	)
	for _, s := range p.Snapshot() {
		p.log.Info("model timings",
			"model", s.Model,
			"count", s.Count,
			"errors", s.Errors,
			"avg", s.Average.Truncate(time.Microsecond),
			"min", s.Min.Truncate(time.Microsecond),
			"max", s.Max.Truncate(time.Microsecond),
			"samples", s.Samples,
		)
	}
}
