package models

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-classify/inference"
	"github.com/nvr-ai/go-classify/inference/fake"
	"github.com/nvr-ai/go-classify/labels"
	"github.com/nvr-ai/go-classify/logging"
)

type observerMock struct {
	mock.Mock
}

func (o *observerMock) ObserveLoad(modelID string, d time.Duration) {
	o.Called(modelID, d)
}

func (o *observerMock) SetLoaded(n int) {
	o.Called(n)
}

// labelFiles serves catalogs by path without touching the filesystem.
func labelFiles(files map[string][]string) LabelLoader {
	return func(path string) (*labels.Catalog, error) {
		names, ok := files[path]
		if !ok {
			return nil, fmt.Errorf("open %s: %w", path, os.ErrNotExist)
		}
		return labels.New(names...)
	}
}

type fixture struct {
	opener  *fake.Opener
	grain   *fake.Engine
	pest    *fake.Engine
	configs map[string]Config
	labels  LabelLoader
}

func newFixture() *fixture {
	f := &fixture{
		grain: fake.Classifier(4, 3, inference.EncodingUint8, inference.EncodingUint8).Quantized(0.0078125, 128),
		pest:  fake.Classifier(8, 2, inference.EncodingFloat32, inference.EncodingFloat32),
	}
	f.opener = fake.NewOpener(map[string]*fake.Engine{
		"grain.tflite": f.grain,
		"pest.tflite":  f.pest,
	})
	f.configs = map[string]Config{
		"grain": {WeightsPath: "grain.tflite", LabelsPath: "grain.txt", InputSide: 4},
		"pest":  {WeightsPath: "pest.tflite", LabelsPath: "pest.txt", InputSide: 8, Threads: 2},
	}
	f.labels = labelFiles(map[string][]string{
		"grain.txt": {"basmati", "jasmine", "arborio"},
		"pest.txt":  {"aphid", "healthy"},
	})
	return f
}

func (f *fixture) registry(opts ...Option) *Registry {
	opts = append([]Option{WithLogger(logging.Discard()), WithLabelLoader(f.labels)}, opts...)
	return NewRegistry(f.opener, opts...)
}

// TestInitializeAll loads every model and exposes encodings and labels.
//
// Arguments:
//   - t: Testing context for assertions and error reporting.
func TestInitializeAll(t *testing.T) {
	f := newFixture()
	r := f.registry(WithThreads(4), WithRuntimeLibrary("/usr/lib/libonnxruntime.so"))

	require.NoError(t, r.InitializeAll(context.Background(), f.configs))
	assert.Equal(t, StateLoaded, r.State())
	assert.Equal(t, []string{"grain", "pest"}, r.IDs())

	grain, err := r.Get("grain")
	require.NoError(t, err)
	assert.Equal(t, "grain", grain.ID)
	assert.Equal(t, inference.BackendTFLite, grain.Backend)
	assert.Equal(t, inference.EncodingUint8, grain.InputEncoding())
	assert.Equal(t, inference.EncodingUint8, grain.OutputEncoding())
	assert.Equal(t, float32(0.0078125), grain.OutputScale())
	assert.Equal(t, 128, grain.OutputZeroPoint())
	assert.Equal(t, 3, grain.OutputSize())
	assert.Equal(t, 4, grain.InputSide())
	assert.Equal(t, "jasmine", grain.Labels.Name(1))

	pest, err := r.Get("pest")
	require.NoError(t, err)
	assert.Equal(t, inference.EncodingFloat32, pest.OutputEncoding())

	require.Len(t, f.opener.Opened, 2)
	// Sorted load order; zero Threads falls back to the registry default.
	assert.Equal(t, "grain.tflite", f.opener.Opened[0].WeightsPath)
	assert.Equal(t, 4, f.opener.Opened[0].Threads)
	assert.Equal(t, 2, f.opener.Opened[1].Threads)
	assert.Equal(t, "/usr/lib/libonnxruntime.so", f.opener.Opened[1].RuntimeLibrary)

	models := r.Models()
	require.Len(t, models, 2)
	assert.Equal(t, "grain", models[0].ID)
}

// TestInitializeAllIsAllOrNothing checks a missing weights file leaves nothing loaded.
//
// Arguments:
//   - t: Testing context for assertions and error reporting.
func TestInitializeAllIsAllOrNothing(t *testing.T) {
	f := newFixture()
	f.configs["zeta"] = Config{WeightsPath: "missing.tflite", LabelsPath: "pest.txt", InputSide: 8}
	r := f.registry()

	err := r.InitializeAll(context.Background(), f.configs)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInitialization)

	var merr *Error
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, "zeta", merr.ModelID)
	assert.Equal(t, PhaseLoad, merr.Phase)
	var missing *fake.MissingError
	assert.ErrorAs(t, err, &missing)

	assert.Equal(t, 1, f.grain.Closes(), "engines opened before the failure are closed")
	assert.Equal(t, 1, f.pest.Closes())
	assert.Equal(t, StateUnloaded, r.State())
	assert.Empty(t, r.IDs())

	_, err = r.Get("grain")
	assert.ErrorIs(t, err, ErrNotInitialized)
}

// TestInitializeAllFailures covers every validation that rejects a model.
//
// Arguments:
//   - t: Testing context for assertions and error reporting.
func TestInitializeAllFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(f *fixture)
		is     error
		closed bool
	}{
		{
			name: "label count mismatch",
			mutate: func(f *fixture) {
				f.labels = labelFiles(map[string][]string{
					"grain.txt": {"basmati", "jasmine"},
					"pest.txt":  {"aphid", "healthy"},
				})
			},
			is:     ErrDecodeInconsistency,
			closed: true,
		},
		{
			name: "missing labels",
			mutate: func(f *fixture) {
				f.labels = labelFiles(map[string][]string{"pest.txt": {"aphid", "healthy"}})
			},
			is:     os.ErrNotExist,
			closed: true,
		},
		{
			name: "input side mismatch",
			mutate: func(f *fixture) {
				f.configs["grain"] = Config{WeightsPath: "grain.tflite", LabelsPath: "grain.txt", InputSide: 5}
			},
			closed: true,
		},
		{
			name:   "non-positive side",
			mutate: func(f *fixture) { f.configs["grain"] = Config{WeightsPath: "grain.tflite", LabelsPath: "grain.txt"} },
		},
		{
			name: "unknown backend",
			mutate: func(f *fixture) {
				f.configs["grain"] = Config{WeightsPath: "grain.bin", LabelsPath: "grain.txt", InputSide: 4}
			},
		},
		{
			name:   "output shape",
			mutate: func(f *fixture) { f.grain.Out.Shape = []int64{3} },
			closed: true,
		},
		{
			name:   "quantized output without scale",
			mutate: func(f *fixture) { f.grain.Out.Scale = 0 },
			closed: true,
		},
		{
			name:   "unsupported encoding",
			mutate: func(f *fixture) { f.grain.In.Encoding = "INT16" },
			is:     inference.ErrUnsupportedEncoding,
			closed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			tt.mutate(f)
			r := f.registry()

			err := r.InitializeAll(context.Background(), f.configs)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInitialization)
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
			var merr *Error
			require.ErrorAs(t, err, &merr)
			assert.Equal(t, "grain", merr.ModelID)
			if tt.closed {
				assert.Equal(t, 1, f.grain.Closes())
			}
			assert.Equal(t, StateUnloaded, r.State())
		})
	}
}

func TestInitializeAllEmpty(t *testing.T) {
	r := newFixture().registry()
	assert.ErrorIs(t, r.InitializeAll(context.Background(), nil), ErrInitialization)
}

func TestInitializeAllCanceled(t *testing.T) {
	f := newFixture()
	r := f.registry()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.InitializeAll(ctx, f.configs)
	assert.ErrorIs(t, err, ErrInitialization)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.opener.Opened)
}

// gatedOpener blocks every Open until release is closed and reports the first call.
func gatedOpener(next inference.Opener, started chan<- struct{}, release <-chan struct{}) inference.Opener {
	var once sync.Once
	return inference.OpenerFunc(func(opts inference.Options) (inference.Engine, error) {
		once.Do(func() { close(started) })
		<-release
		return next.Open(opts)
	})
}

// TestGetDuringInitializeAll checks lookups fail fast while engines are opening.
//
// Arguments:
//   - t: Testing context for assertions and error reporting.
func TestGetDuringInitializeAll(t *testing.T) {
	f := newFixture()
	started, release := make(chan struct{}), make(chan struct{})
	r := NewRegistry(gatedOpener(f.opener, started, release), WithLogger(logging.Discard()), WithLabelLoader(f.labels))

	done := make(chan error, 1)
	go func() { done <- r.InitializeAll(context.Background(), f.configs) }()
	<-started

	lookup := make(chan error, 1)
	go func() {
		_, err := r.Get("grain")
		lookup <- err
	}()
	select {
	case err := <-lookup:
		assert.ErrorIs(t, err, ErrNotInitialized)
	case <-time.After(time.Second):
		t.Fatal("Get blocked while models were loading")
	}
	assert.NotEqual(t, StateLoaded, r.State())
	assert.Empty(t, r.IDs())
	assert.ErrorIs(t, r.InitializeAll(context.Background(), f.configs), ErrInitialization)

	close(release)
	require.NoError(t, <-done)
	m, err := r.Get("grain")
	require.NoError(t, err)
	assert.Equal(t, StateLoaded, m.State())
	require.NoError(t, r.Close())
}

// TestCloseDuringInitializeAll checks a concurrent Close wins over a load in progress.
//
// Arguments:
//   - t: Testing context for assertions and error reporting.
func TestCloseDuringInitializeAll(t *testing.T) {
	f := newFixture()
	started, release := make(chan struct{}), make(chan struct{})
	r := NewRegistry(gatedOpener(f.opener, started, release), WithLogger(logging.Discard()), WithLabelLoader(f.labels))

	done := make(chan error, 1)
	go func() { done <- r.InitializeAll(context.Background(), f.configs) }()
	<-started

	require.NoError(t, r.Close())
	close(release)

	assert.ErrorIs(t, <-done, ErrInitialization)
	assert.NotEqual(t, StateLoaded, r.State())
	assert.Equal(t, 1, f.grain.Closes())
	assert.Equal(t, 1, f.pest.Closes())
	_, err := r.Get("grain")
	assert.ErrorIs(t, err, ErrNotInitialized)
}

// TestRegistryLifecycle covers NotInitialized before init, after close and re-initialization.
//
// Arguments:
//   - t: Testing context for assertions and error reporting.
func TestRegistryLifecycle(t *testing.T) {
	f := newFixture()
	r := f.registry()

	_, err := r.Get("grain")
	assert.ErrorIs(t, err, ErrNotInitialized)

	require.NoError(t, r.InitializeAll(context.Background(), f.configs))
	assert.ErrorIs(t, r.InitializeAll(context.Background(), f.configs), ErrInitialization, "double init")

	_, err = r.Get("rice")
	assert.ErrorIs(t, err, ErrUnknownModel)

	grain, err := r.Get("grain")
	require.NoError(t, err)

	require.NoError(t, r.Close())
	require.NoError(t, r.Close(), "close is idempotent")
	assert.Equal(t, 1, f.grain.Closes())
	assert.Equal(t, 1, f.pest.Closes())
	assert.Equal(t, StateClosed, r.State())
	assert.Equal(t, StateClosed, grain.State())

	_, err = r.Get("grain")
	assert.ErrorIs(t, err, ErrNotInitialized)

	err = grain.Exclusive(func(inference.Engine) error { return nil })
	assert.ErrorIs(t, err, ErrNotInitialized, "a retained handle is unusable after close")

	require.NoError(t, r.InitializeAll(context.Background(), f.configs))
	assert.Equal(t, StateLoaded, r.State())
}

type closeErrEngine struct {
	*fake.Engine
}

func (e closeErrEngine) Close() error {
	_ = e.Engine.Close()
	return errors.New("native handle busy")
}

func TestCloseJoinsErrors(t *testing.T) {
	f := newFixture()
	opener := inference.OpenerFunc(func(opts inference.Options) (inference.Engine, error) {
		e, err := f.opener.Open(opts)
		if err != nil {
			return nil, err
		}
		return closeErrEngine{e.(*fake.Engine)}, nil
	})
	r := NewRegistry(opener, WithLogger(logging.Discard()), WithLabelLoader(f.labels))
	require.NoError(t, r.InitializeAll(context.Background(), f.configs))

	err := r.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "grain")
	assert.Contains(t, err.Error(), "pest")
	assert.Equal(t, StateClosed, r.State())
}

// TestExclusiveSerializes checks calls against one model never overlap.
//
// Arguments:
//   - t: Testing context for assertions and error reporting.
func TestExclusiveSerializes(t *testing.T) {
	f := newFixture()
	r := f.registry()
	require.NoError(t, r.InitializeAll(context.Background(), f.configs))
	grain, err := r.Get("grain")
	require.NoError(t, err)

	var (
		mu      sync.Mutex
		active  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = grain.Exclusive(func(inference.Engine) error {
				mu.Lock()
				active++
				if active > maxSeen {
					maxSeen = active
				}
				mu.Unlock()
				time.Sleep(time.Millisecond)
				mu.Lock()
				active--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
}

// TestCloseWaitsForInference checks Close blocks until the slot is released.
//
// Arguments:
//   - t: Testing context for assertions and error reporting.
func TestCloseWaitsForInference(t *testing.T) {
	f := newFixture()
	r := f.registry()
	require.NoError(t, r.InitializeAll(context.Background(), f.configs))
	grain, err := r.Get("grain")
	require.NoError(t, err)

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- grain.Exclusive(func(inference.Engine) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	closed := make(chan error, 1)
	go func() { closed <- r.Close() }()

	select {
	case <-closed:
		t.Fatal("close returned while inference was in flight")
	case <-time.After(20 * time.Millisecond):
	}
	assert.Equal(t, 0, f.grain.Closes())

	close(release)
	require.NoError(t, <-done)
	require.NoError(t, <-closed)
	assert.Equal(t, 1, f.grain.Closes())
}

func TestObserver(t *testing.T) {
	f := newFixture()
	obs := &observerMock{}
	obs.On("ObserveLoad", "grain", mock.AnythingOfType("time.Duration")).Once()
	obs.On("ObserveLoad", "pest", mock.AnythingOfType("time.Duration")).Once()
	obs.On("SetLoaded", 2).Once()
	obs.On("SetLoaded", 0).Once()

	r := f.registry(WithObserver(obs))
	require.NoError(t, r.InitializeAll(context.Background(), f.configs))
	require.NoError(t, r.Close())
	obs.AssertExpectations(t)
}

func TestDetectionOutputStillLoads(t *testing.T) {
	f := newFixture()
	cfg := f.configs["pest"]
	cfg.ExpectsDetectionOutput = true
	f.configs["pest"] = cfg

	r := f.registry()
	require.NoError(t, r.InitializeAll(context.Background(), f.configs))
	pest, err := r.Get("pest")
	require.NoError(t, err)
	assert.True(t, pest.Config.ExpectsDetectionOutput)
	assert.Equal(t, 2, pest.OutputSize())
}

// TestInitializeAllFromDisk drives the default labels.Load loader.
//
// Arguments:
//   - t: Testing context for assertions and error reporting.
func TestInitializeAllFromDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pest.txt")
	require.NoError(t, os.WriteFile(path, []byte("aphid\n\nhealthy\n"), 0o600))

	f := newFixture()
	r := NewRegistry(f.opener, WithLogger(logging.Discard()))
	require.NoError(t, r.InitializeAll(context.Background(), map[string]Config{
		"pest": {WeightsPath: "pest.tflite", LabelsPath: path, InputSide: 8},
	}))
	pest, err := r.Get("pest")
	require.NoError(t, err)
	assert.Equal(t, []string{"aphid", "healthy"}, pest.Labels.Names())
}

func TestErrorFormatting(t *testing.T) {
	err := NewError("grain", PhaseInfer, ErrInference, errors.New("invoke status 1"))
	assert.Equal(t, `inference failed: model "grain" (infer): invoke status 1`, err.Error())
	assert.ErrorIs(t, err, ErrInference)

	bare := NewError("", "", ErrNotInitialized, nil)
	assert.Equal(t, "model not initialized", bare.Error())
}

func TestConfigValidate(t *testing.T) {
	base := Config{WeightsPath: "m.onnx", LabelsPath: "l.txt", InputSide: 224}
	require.NoError(t, base.Validate())
	b, err := base.ResolveBackend()
	require.NoError(t, err)
	assert.Equal(t, inference.BackendONNX, b)

	explicit := base
	explicit.Backend = "TFLite"
	b, err = explicit.ResolveBackend()
	require.NoError(t, err)
	assert.Equal(t, inference.BackendTFLite, b)

	for name, cfg := range map[string]Config{
		"no weights":    {LabelsPath: "l.txt", InputSide: 1},
		"no labels":     {WeightsPath: "m.onnx", InputSide: 1},
		"negative side": {WeightsPath: "m.onnx", LabelsPath: "l.txt", InputSide: -1},
		"threads":       {WeightsPath: "m.onnx", LabelsPath: "l.txt", InputSide: 1, Threads: -1},
		"bad scale":     {WeightsPath: "m.onnx", LabelsPath: "l.txt", InputSide: 1, Quantization: &inference.Quantization{}},
		"bad backend":   {WeightsPath: "m.onnx", LabelsPath: "l.txt", InputSide: 1, Backend: "coreml"},
		"bad extension": {WeightsPath: "m.pt", LabelsPath: "l.txt", InputSide: 1},
	} {
		assert.Error(t, cfg.Validate(), name)
	}
}
