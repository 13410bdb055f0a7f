package profiler

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestObserveInference(t *testing.T) {
	p := New(Options{Logger: slog.New(slog.NewTextHandler(&syncBuffer{}, nil))})
	p.ObserveInference("rice", 4*time.Millisecond, nil)
	p.ObserveInference("rice", 2*time.Millisecond, nil)
	p.ObserveInference("rice", 0, errors.New("invoke failed"))
	p.ObserveInference("leaf", 9*time.Millisecond, nil)

	stats := p.Snapshot()
	require.Len(t, stats, 2)
	assert.Equal(t, ModelStats{Model: "leaf", Count: 1, Samples: 1, Average: 9 * time.Millisecond, Min: 9 * time.Millisecond, Max: 9 * time.Millisecond}, stats[0])
	assert.Equal(t, ModelStats{Model: "rice", Count: 2, Errors: 1, Samples: 2, Average: 3 * time.Millisecond, Min: 2 * time.Millisecond, Max: 4 * time.Millisecond}, stats[1])
}

// TestRollingWindow checks the average covers only the last MaxSamples calls.
//
// Arguments:
//   - t: Testing context for assertions and error reporting.
func TestRollingWindow(t *testing.T) {
	p := New(Options{MaxSamples: 2, Logger: slog.New(slog.NewTextHandler(&syncBuffer{}, nil))})
	for _, d := range []time.Duration{10, 20, 30} {
		p.ObserveInference("rice", d*time.Millisecond, nil)
	}
	s := p.Snapshot()[0]
	assert.Equal(t, int64(3), s.Count)
	assert.Equal(t, 2, s.Samples)
	assert.Equal(t, 25*time.Millisecond, s.Average)
	assert.Equal(t, 10*time.Millisecond, s.Min, "min and max cover the whole run")
	assert.Equal(t, 30*time.Millisecond, s.Max)
}

func TestReport(t *testing.T) {
	out := &syncBuffer{}
	p := New(Options{Logger: slog.New(slog.NewTextHandler(out, nil))})
	p.ObserveInference("rice", time.Millisecond, nil)
	p.Report()

	assert.Contains(t, out.String(), "runtime status")
	assert.Contains(t, out.String(), "model=rice")
}

func TestStartStop(t *testing.T) {
	out := &syncBuffer{}
	p := New(Options{ReportInterval: 5 * time.Millisecond, Logger: slog.New(slog.NewTextHandler(out, nil))})
	p.Start(context.Background())
	p.Start(context.Background())

	assert.Eventually(t, func() bool {
		return bytes.Contains([]byte(out.String()), []byte("runtime status"))
	}, time.Second, 5*time.Millisecond)

	p.Stop()
	p.Stop()
}
