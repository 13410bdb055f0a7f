// Package tflite - TensorFlow Lite inference engine.
//
// Tensors in a .tflite flatbuffer are self-describing: shape, element type and
// per-tensor quantization parameters are read from the interpreter after
// allocation.
package tflite

import (
	"fmt"
	"os"
	"sync"

	tfl "github.com/tphakala/go-tflite"

	"github.com/nvr-ai/go-classify/inference"
	"github.com/nvr-ai/go-classify/logging"
)

// Engine runs a single-input, single-output TFLite model.
type Engine struct {
	mu          sync.Mutex
	model       *tfl.Model
	options     *tfl.InterpreterOptions
	interpreter *tfl.Interpreter
	input       *tfl.Tensor
	output      *tfl.Tensor
	in          inference.TensorInfo
	out         inference.TensorInfo
	closed      bool
}

// Open loads opts.WeightsPath and allocates its tensors.
//
// Arguments:
//   - opts: The weights path and thread hint; other fields are ignored.
//
// Returns:
//   - inference.Engine: The engine.
//   - error: An error if the file is unreadable, the interpreter cannot be built,
//     or the model does not have exactly one input and one output.
func Open(opts inference.Options) (inference.Engine, error) {
	if _, err := os.Stat(opts.WeightsPath); err != nil {
		return nil, fmt.Errorf("tflite weights: %w", err)
	}

	e := &Engine{}
	e.model = tfl.NewModelFromFile(opts.WeightsPath)
	if e.model == nil {
		return nil, fmt.Errorf("cannot load TensorFlow Lite model %s", opts.WeightsPath)
	}

	log := logging.Module("tflite")
	e.options = tfl.NewInterpreterOptions()
	if opts.Threads > 0 {
		e.options.SetNumThread(opts.Threads)
	}
	e.options.SetErrorReporter(func(msg string, _ any) {
		log.Error("TFLite error", "weights", opts.WeightsPath, "message", msg)
	}, nil)

	e.interpreter = tfl.NewInterpreter(e.model, e.options)
	if e.interpreter == nil {
		e.release()
		return nil, fmt.Errorf("cannot create interpreter for %s", opts.WeightsPath)
	}
	if status := e.interpreter.AllocateTensors(); status != tfl.OK {
		e.release()
		return nil, fmt.Errorf("tensor allocation failed for %s", opts.WeightsPath)
	}

	if n := e.interpreter.GetInputTensorCount(); n != 1 {
		e.release()
		return nil, fmt.Errorf("model has %d inputs, want 1", n)
	}
	if n := e.interpreter.GetOutputTensorCount(); n != 1 {
		e.release()
		return nil, fmt.Errorf("model has %d outputs, want 1", n)
	}
	e.input = e.interpreter.GetInputTensor(0)
	e.output = e.interpreter.GetOutputTensor(0)

	var err error
	if e.in, err = describe(e.input); err != nil {
		e.release()
		return nil, fmt.Errorf("input tensor: %w", err)
	}
	if e.out, err = describe(e.output); err != nil {
		e.release()
		return nil, fmt.Errorf("output tensor: %w", err)
	}
	return e, nil
}

// describe converts interpreter tensor metadata to a TensorInfo.
func describe(t *tfl.Tensor) (inference.TensorInfo, error) {
	info := inference.TensorInfo{Name: t.Name()}
	switch t.Type() {
	case tfl.Float32:
		info.Encoding = inference.EncodingFloat32
	case tfl.UInt8:
		info.Encoding = inference.EncodingUint8
		q := t.QuantizationParams()
		info.Scale = float32(q.Scale)
		info.ZeroPoint = q.ZeroPoint
	default:
		return info, fmt.Errorf("%w: tflite type %v", inference.ErrUnsupportedEncoding, t.Type())
	}
	info.Shape = make([]int64, t.NumDims())
	for i := range info.Shape {
		info.Shape[i] = int64(t.Dim(i))
	}
	return info, nil
}

// Input implements inference.Engine.
func (e *Engine) Input() inference.TensorInfo { return e.in }

// Output implements inference.Engine.
func (e *Engine) Output() inference.TensorInfo { return e.out }

// Run implements inference.Engine.
func (e *Engine) Run(input, output []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return inference.ErrEngineClosed
	}
	if err := inference.CheckBuffers(e, input, output); err != nil {
		return err
	}
	if status := e.input.CopyFromBuffer(input); status != tfl.OK {
		return fmt.Errorf("copy input tensor: status %v", status)
	}
	if status := e.interpreter.Invoke(); status != tfl.OK {
		return fmt.Errorf("invoke: status %v", status)
	}
	if status := e.output.CopyToBuffer(output); status != tfl.OK {
		return fmt.Errorf("copy output tensor: status %v", status)
	}
	return nil
}

// Close implements inference.Engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.release()
	return nil
}

func (e *Engine) release() {
	if e.interpreter != nil {
		e.interpreter.Delete()
		e.interpreter = nil
	}
	if e.options != nil {
		e.options.Delete()
		e.options = nil
	}
	if e.model != nil {
		e.model.Delete()
		e.model = nil
	}
	e.input, e.output = nil, nil
}
