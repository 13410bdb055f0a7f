package models

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/nvr-ai/go-classify/inference"
	"github.com/nvr-ai/go-classify/labels"
	"github.com/nvr-ai/go-classify/logging"
)

// LabelLoader reads a label file.
type LabelLoader func(path string) (*labels.Catalog, error)

// LoadObserver receives load-time measurements.
type LoadObserver interface {
	// ObserveLoad records how long one model took to load.
	ObserveLoad(modelID string, d time.Duration)
	// SetLoaded records the number of models currently loaded.
	SetLoaded(n int)
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.log = l }
}

// WithThreads sets the thread hint used for models that do not set their own.
func WithThreads(n int) Option {
	return func(r *Registry) { r.threads = n }
}

// WithRuntimeLibrary sets the shared runtime library path handed to the opener.
func WithRuntimeLibrary(path string) Option {
	return func(r *Registry) { r.runtimeLibrary = path }
}

// WithLabelLoader replaces labels.Load.
func WithLabelLoader(fn LabelLoader) Option {
	return func(r *Registry) { r.loadLabels = fn }
}

// WithObserver reports load durations and the loaded model count.
func WithObserver(o LoadObserver) Option {
	return func(r *Registry) { r.observer = o }
}

// Registry loads, owns and tears down a set of models.
//
// A Registry is safe for concurrent use. Engines are released only by Close.
type Registry struct {
	opener         inference.Opener
	log            *slog.Logger
	threads        int
	runtimeLibrary string
	loadLabels     LabelLoader
	observer       LoadObserver

	mu     sync.RWMutex
	state  State
	models map[string]*LoadedModel
	// loading is set while InitializeAll runs without the lock held.
	loading bool
	// aborted records a Close that arrived during loading.
	aborted bool
}

// NewRegistry returns an uninitialized registry that opens engines with opener.
func NewRegistry(opener inference.Opener, opts ...Option) *Registry {
	r := &Registry{
		opener:     opener,
		loadLabels: labels.Load,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = logging.Module("registry")
	}
	return r
}

// InitializeAll loads every configured model or none of them.
//
// Models are loaded in identifier order. On the first failure every engine
// opened so far is closed, the registry stays uninitialized and the returned
// *Error names the failing model. A closed registry may be initialized again.
// Engines are opened without holding the registry lock, so Get keeps failing
// with ErrNotInitialized until every model has loaded.
//
// Arguments:
//   - ctx: Checked between models; loading a single model is not interruptible.
//   - configs: The model set keyed by identifier.
//
// Returns:
//   - error: An *Error of kind ErrInitialization on failure.
func (r *Registry) InitializeAll(ctx context.Context, configs map[string]Config) error {
	if len(configs) == 0 {
		return NewError("", PhaseLoad, ErrInitialization, errors.New("no models configured"))
	}

	r.mu.Lock()
	switch {
	case r.loading:
		r.mu.Unlock()
		return NewError("", PhaseLoad, ErrInitialization, errors.New("initialization already in progress"))
	case r.state == StateLoaded:
		r.mu.Unlock()
		return NewError("", PhaseLoad, ErrInitialization, errors.New("registry already initialized"))
	}
	r.loading = true
	r.aborted = false
	r.mu.Unlock()

	ids := make([]string, 0, len(configs))
	for id := range configs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	start := time.Now()
	loaded := make(map[string]*LoadedModel, len(ids))
	fail := func(err error) error {
		r.discard(loaded)
		r.mu.Lock()
		r.loading = false
		r.mu.Unlock()
		return err
	}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return fail(NewError(id, PhaseLoad, ErrInitialization, err))
		}
		m, err := r.load(id, configs[id])
		if err != nil {
			r.log.Error("model initialization failed", "model", id, "error", err)
			return fail(err)
		}
		loaded[id] = m
	}

	r.mu.Lock()
	if r.aborted {
		r.loading = false
		r.mu.Unlock()
		r.discard(loaded)
		return NewError("", PhaseLoad, ErrInitialization, errors.New("registry closed during initialization"))
	}
	r.models = loaded
	r.state = StateLoaded
	r.loading = false
	if r.observer != nil {
		r.observer.SetLoaded(len(loaded))
	}
	r.mu.Unlock()

	r.log.Info("models initialized", "count", len(loaded), "duration", time.Since(start))
	return nil
}

func (r *Registry) load(id string, cfg Config) (*LoadedModel, error) {
	fail := func(err error) error {
		return NewError(id, PhaseLoad, ErrInitialization, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fail(err)
	}
	backend, _ := cfg.ResolveBackend()
	threads := cfg.Threads
	if threads == 0 {
		threads = r.threads
	}

	start := time.Now()
	engine, err := r.opener.Open(inference.Options{
		Backend:        backend,
		WeightsPath:    cfg.WeightsPath,
		InputSide:      cfg.InputSide,
		Threads:        threads,
		Quantization:   cfg.Quantization,
		RuntimeLibrary: r.runtimeLibrary,
	})
	if err != nil {
		return nil, fail(err)
	}

	catalog, err := r.loadLabels(cfg.LabelsPath)
	if err == nil {
		err = validateTensors(cfg, engine, catalog)
	}
	if err != nil {
		if cerr := engine.Close(); cerr != nil {
			r.log.Warn("closing engine after failed load", "model", id, "error", cerr)
		}
		return nil, fail(err)
	}

	if cfg.ExpectsDetectionOutput {
		r.log.Warn("detection output is not supported, decoding as a classifier", "model", id)
	}

	m := newLoadedModel(id, cfg, backend, catalog, engine)
	elapsed := time.Since(start)
	if r.observer != nil {
		r.observer.ObserveLoad(id, elapsed)
	}
	r.log.Info("model loaded",
		"model", id,
		"backend", backend,
		"input", m.InputEncoding(),
		"output", m.OutputEncoding(),
		"classes", m.OutputSize(),
		"duration", elapsed)
	return m, nil
}

// validateTensors checks the engine against the (1, side, side, 3) -> (1, N) contract.
func validateTensors(cfg Config, engine inference.Engine, catalog *labels.Catalog) error {
	in, out := engine.Input(), engine.Output()
	if err := in.Encoding.Validate(); err != nil {
		return fmt.Errorf("input tensor: %w", err)
	}
	if err := out.Encoding.Validate(); err != nil {
		return fmt.Errorf("output tensor: %w", err)
	}

	side := int64(cfg.InputSide)
	if !shapeEqual(in.Shape, []int64{1, side, side, 3}) {
		return fmt.Errorf("input shape %v, want [1 %d %d 3]", in.Shape, side, side)
	}
	if len(out.Shape) != 2 || out.Shape[0] != 1 || out.Shape[1] <= 0 {
		return fmt.Errorf("output shape %v, want [1 N]", out.Shape)
	}
	if n := int(out.Shape[1]); n != catalog.Len() {
		return fmt.Errorf("%w: output has %d classes, labels file has %d", ErrDecodeInconsistency, n, catalog.Len())
	}
	if out.Encoding.Quantized() && out.Scale <= 0 {
		return fmt.Errorf("quantized output has no scale")
	}
	return nil
}

func shapeEqual(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// discard closes models from a failed initialization.
func (r *Registry) discard(loaded map[string]*LoadedModel) {
	for id, m := range loaded {
		if err := m.close(); err != nil {
			r.log.Warn("closing engine after failed initialization", "model", id, "error", err)
		}
	}
}

// Get resolves a model by identifier.
//
// Returns:
//   - *LoadedModel: The model.
//   - error: ErrNotInitialized before InitializeAll or after Close, ErrUnknownModel for
//     identifiers that are not part of the loaded set.
func (r *Registry) Get(id string) (*LoadedModel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.state != StateLoaded {
		return nil, NewError(id, "", ErrNotInitialized, nil)
	}
	m, ok := r.models[id]
	if !ok {
		return nil, NewError(id, "", ErrUnknownModel, nil)
	}
	return m, nil
}

// IDs returns the loaded identifiers in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.models))
	for id := range r.models {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Models returns the loaded models sorted by identifier.
func (r *Registry) Models() []*LoadedModel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*LoadedModel, 0, len(r.models))
	for _, m := range r.models {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// State returns the registry lifecycle state.
func (r *Registry) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Close releases every engine exactly once, waiting for in-flight inference.
//
// Close is idempotent; all engine errors are joined. A Close that arrives while
// InitializeAll is running makes that initialization fail and release its engines.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loading {
		r.aborted = true
		return nil
	}
	if r.state != StateLoaded {
		return nil
	}

	var errs []error
	for id, m := range r.models {
		if err := m.close(); err != nil {
			errs = append(errs, fmt.Errorf("close model %q: %w", id, err))
		}
	}
	r.models = nil
	r.state = StateClosed
	if r.observer != nil {
		r.observer.SetLoaded(0)
	}
	r.log.Info("models released")
	return errors.Join(errs...)
}
