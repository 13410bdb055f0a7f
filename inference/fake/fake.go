// Package fake - In-memory inference engines for tests and dry runs.
package fake

import (
	"sync"

	"github.com/nvr-ai/go-classify/inference"
)

// Engine is an inference.Engine whose output is produced by a function.
type Engine struct {
	In  inference.TensorInfo
	Out inference.TensorInfo
	// RunFunc fills output; when nil Run copies Raw.
	RunFunc func(input, output []byte) error
	// Raw is copied into the output buffer when RunFunc is nil.
	Raw []byte

	mu     sync.Mutex
	runs   int
	closes int
}

// Classifier returns an engine with a (1, side, side, 3) input and (1, classes) output.
func Classifier(side, classes int, in, out inference.Encoding) *Engine {
	return &Engine{
		In:  inference.TensorInfo{Name: "input", Shape: []int64{1, int64(side), int64(side), 3}, Encoding: in},
		Out: inference.TensorInfo{Name: "output", Shape: []int64{1, int64(classes)}, Encoding: out},
	}
}

// Quantized sets the output scale and zero point.
func (e *Engine) Quantized(scale float32, zeroPoint int) *Engine {
	e.Out.Scale = scale
	e.Out.ZeroPoint = zeroPoint
	return e
}

// Input implements inference.Engine.
func (e *Engine) Input() inference.TensorInfo { return e.In }

// Output implements inference.Engine.
func (e *Engine) Output() inference.TensorInfo { return e.Out }

// Run implements inference.Engine.
func (e *Engine) Run(input, output []byte) error {
	e.mu.Lock()
	closed := e.closes > 0
	e.runs++
	e.mu.Unlock()
	if closed {
		return inference.ErrEngineClosed
	}
	if err := inference.CheckBuffers(e, input, output); err != nil {
		return err
	}
	if e.RunFunc != nil {
		return e.RunFunc(input, output)
	}
	copy(output, e.Raw)
	return nil
}

// Close implements inference.Engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closes++
	return nil
}

// Runs returns how many times Run was called.
func (e *Engine) Runs() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runs
}

// Closes returns how many times Close was called.
func (e *Engine) Closes() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closes
}

// Opener serves engines by weights path.
type Opener struct {
	mu      sync.Mutex
	Engines map[string]*Engine
	// Opened records every Options passed to Open.
	Opened []inference.Options
}

// NewOpener returns an Opener serving engines keyed by weights path.
func NewOpener(engines map[string]*Engine) *Opener {
	return &Opener{Engines: engines}
}

// Open implements inference.Opener; unknown paths fail like a missing file.
func (o *Opener) Open(opts inference.Options) (inference.Engine, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Opened = append(o.Opened, opts)
	e, ok := o.Engines[opts.WeightsPath]
	if !ok {
		return nil, &MissingError{Path: opts.WeightsPath}
	}
	return e, nil
}

// MissingError reports a weights path the Opener does not serve.
type MissingError struct {
	Path string
}

func (e *MissingError) Error() string {
	return "open " + e.Path + ": no such file or directory"
}
