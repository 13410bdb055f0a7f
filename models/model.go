package models

import (
	"sync"
	"sync/atomic"

	"github.com/nvr-ai/go-classify/inference"
	"github.com/nvr-ai/go-classify/labels"
)

// State is the lifecycle position of a model or registry.
type State int32

// State constants follow Unloaded -> Loaded -> Closed.
const (
	StateUnloaded State = iota
	StateLoaded
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoaded:
		return "loaded"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// LoadedModel is one initialized model owned by a Registry.
//
// The engine is reachable only through Exclusive, which serializes every
// inference against this model.
type LoadedModel struct {
	// ID is the model identifier.
	ID string
	// Config is the configuration the model was loaded from.
	Config Config
	// Backend is the runtime executing the model.
	Backend inference.Backend
	// Labels is the vocabulary indexed by output position.
	Labels *labels.Catalog
	// Input describes the input tensor.
	Input inference.TensorInfo
	// Output describes the output tensor.
	Output inference.TensorInfo

	slot   sync.Mutex
	engine inference.Engine
	state  atomic.Int32
}

func newLoadedModel(id string, cfg Config, backend inference.Backend, catalog *labels.Catalog, engine inference.Engine) *LoadedModel {
	m := &LoadedModel{
		ID:      id,
		Config:  cfg,
		Backend: backend,
		Labels:  catalog,
		Input:   engine.Input(),
		Output:  engine.Output(),
		engine:  engine,
	}
	m.state.Store(int32(StateLoaded))
	return m
}

// State returns the model's lifecycle state.
func (m *LoadedModel) State() State {
	return State(m.state.Load())
}

// InputSide returns the square input edge length.
func (m *LoadedModel) InputSide() int { return m.Config.InputSide }

// InputEncoding returns the input tensor encoding.
func (m *LoadedModel) InputEncoding() inference.Encoding { return m.Input.Encoding }

// OutputEncoding returns the output tensor encoding.
func (m *LoadedModel) OutputEncoding() inference.Encoding { return m.Output.Encoding }

// OutputScale returns the output dequantization scale.
func (m *LoadedModel) OutputScale() float32 { return m.Output.Scale }

// OutputZeroPoint returns the output dequantization zero point.
func (m *LoadedModel) OutputZeroPoint() int { return m.Output.ZeroPoint }

// OutputSize returns the number of output classes, equal to the label count.
func (m *LoadedModel) OutputSize() int { return m.Labels.Len() }

// Exclusive runs fn with sole use of the model's engine.
//
// Calls against the same model wait for each other; calls against different
// models do not. The engine must not be retained after fn returns.
//
// Arguments:
//   - fn: The work to run while holding the slot.
//
// Returns:
//   - error: A NotInitialized *Error if the model is closed, otherwise fn's error.
func (m *LoadedModel) Exclusive(fn func(engine inference.Engine) error) error {
	if m == nil {
		return NewError("", PhaseInfer, ErrNotInitialized, nil)
	}
	m.slot.Lock()
	defer m.slot.Unlock()
	if m.State() != StateLoaded {
		return NewError(m.ID, PhaseInfer, ErrNotInitialized, nil)
	}
	return fn(m.engine)
}

// close waits for any in-flight inference and releases the engine once.
func (m *LoadedModel) close() error {
	m.slot.Lock()
	defer m.slot.Unlock()
	if m.State() == StateClosed {
		return nil
	}
	m.state.Store(int32(StateClosed))
	err := m.engine.Close()
	m.engine = nil
	return err
}
