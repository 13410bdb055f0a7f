// Package onnx - onnxruntime inference engine.
//
// ONNX graphs declare shape and element type on their inputs and outputs but
// carry no per-tensor quantization parameters, so quantized outputs require
// inference.Options.Quantization.
package onnx

import (
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/nvr-ai/go-classify/inference"
)

var envMu sync.Mutex

// initEnvironment loads the shared library once per process.
func initEnvironment(lib string) error {
	envMu.Lock()
	defer envMu.Unlock()
	if ort.IsInitialized() {
		return nil
	}
	if lib == "" {
		lib = SharedLibPath()
	}
	ort.SetSharedLibraryPath(lib)
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("error initializing ORT environment with %s: %w", lib, err)
	}
	return nil
}

// Engine runs a single-input, single-output ONNX model.
type Engine struct {
	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.CustomDataTensor
	output  *ort.CustomDataTensor
	inBuf   []byte
	outBuf  []byte
	in      inference.TensorInfo
	out     inference.TensorInfo
	closed  bool
}

// Open creates a session for opts.WeightsPath bound to preallocated tensors.
//
// Dynamic dimensions are filled from opts.InputSide for the spatial axes of a
// rank-4 input and with 1 for the batch axis.
//
// Arguments:
//   - opts: The weights path, input side, thread hint, quantization override and library path.
//
// Returns:
//   - inference.Engine: The engine.
//   - error: An error if the runtime, model or tensor layout cannot be used.
func Open(opts inference.Options) (inference.Engine, error) {
	if _, err := os.Stat(opts.WeightsPath); err != nil {
		return nil, fmt.Errorf("onnx weights: %w", err)
	}
	if err := initEnvironment(opts.RuntimeLibrary); err != nil {
		return nil, err
	}

	inputs, outputs, err := ort.GetInputOutputInfo(opts.WeightsPath)
	if err != nil {
		return nil, fmt.Errorf("error reading model IO info: %w", err)
	}
	if len(inputs) != 1 || len(outputs) != 1 {
		return nil, fmt.Errorf("model has %d inputs and %d outputs, want 1 and 1", len(inputs), len(outputs))
	}

	in, err := describe(inputs[0], opts.InputSide, true)
	if err != nil {
		return nil, fmt.Errorf("input tensor: %w", err)
	}
	out, err := describe(outputs[0], opts.InputSide, false)
	if err != nil {
		return nil, fmt.Errorf("output tensor: %w", err)
	}
	if out.Encoding.Quantized() {
		if opts.Quantization == nil {
			return nil, fmt.Errorf("quantized output %q needs a quantization override", out.Name)
		}
		out.Scale = opts.Quantization.Scale
		out.ZeroPoint = opts.Quantization.ZeroPoint
	}

	e := &Engine{
		in:     in,
		out:    out,
		inBuf:  make([]byte, in.ByteSize()),
		outBuf: make([]byte, out.ByteSize()),
	}
	if e.input, err = ort.NewCustomDataTensor(ort.NewShape(in.Shape...), e.inBuf, dataType(in.Encoding)); err != nil {
		return nil, fmt.Errorf("error creating input tensor: %w", err)
	}
	if e.output, err = ort.NewCustomDataTensor(ort.NewShape(out.Shape...), e.outBuf, dataType(out.Encoding)); err != nil {
		e.release()
		return nil, fmt.Errorf("error creating output tensor: %w", err)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		e.release()
		return nil, fmt.Errorf("error creating ORT session options: %w", err)
	}
	defer options.Destroy()
	if opts.Threads > 0 {
		if err := options.SetIntraOpNumThreads(opts.Threads); err != nil {
			e.release()
			return nil, fmt.Errorf("error setting intra-op threads: %w", err)
		}
	}
	if err := options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended); err != nil {
		e.release()
		return nil, fmt.Errorf("error setting graph optimization level: %w", err)
	}

	e.session, err = ort.NewAdvancedSession(opts.WeightsPath,
		[]string{in.Name}, []string{out.Name},
		[]ort.ArbitraryTensor{e.input}, []ort.ArbitraryTensor{e.output},
		options)
	if err != nil {
		e.release()
		return nil, fmt.Errorf("error creating ORT session: %w", err)
	}
	return e, nil
}

// describe converts ORT IO metadata to a TensorInfo with concrete dimensions.
func describe(info ort.InputOutputInfo, side int, isInput bool) (inference.TensorInfo, error) {
	if info.OrtValueType != ort.ONNXTypeTensor {
		return inference.TensorInfo{}, fmt.Errorf("%q is not a tensor", info.Name)
	}
	enc, err := encoding(info.DataType)
	if err != nil {
		return inference.TensorInfo{}, err
	}
	shape, err := resolveShape(info.Dimensions, side, isInput)
	if err != nil {
		return inference.TensorInfo{}, fmt.Errorf("%q: %w", info.Name, err)
	}
	return inference.TensorInfo{Name: info.Name, Shape: shape, Encoding: enc}, nil
}

// encoding maps ORT element types to pipeline encodings.
func encoding(dt ort.TensorElementDataType) (inference.Encoding, error) {
	switch dt {
	case ort.TensorElementDataTypeFloat:
		return inference.EncodingFloat32, nil
	case ort.TensorElementDataTypeUint8:
		return inference.EncodingUint8, nil
	default:
		return "", fmt.Errorf("%w: onnx element type %v", inference.ErrUnsupportedEncoding, dt)
	}
}

func dataType(enc inference.Encoding) ort.TensorElementDataType {
	if enc == inference.EncodingUint8 {
		return ort.TensorElementDataTypeUint8
	}
	return ort.TensorElementDataTypeFloat
}

// resolveShape replaces dynamic (non-positive) dimensions.
func resolveShape(dims ort.Shape, side int, isInput bool) ([]int64, error) {
	shape := make([]int64, len(dims))
	for i, d := range dims {
		switch {
		case d > 0:
			shape[i] = d
		case i == 0:
			shape[i] = 1
		case isInput && len(dims) == 4 && (i == 1 || i == 2) && side > 0:
			shape[i] = int64(side)
		default:
			return nil, fmt.Errorf("dimension %d of %v is dynamic", i, dims)
		}
	}
	return shape, nil
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
	copy(e.inBuf, input)
	if err := e.session.Run(); err != nil {
		return fmt.Errorf("error running ORT session: %w", err)
	}
	copy(output, e.outBuf)
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
	return e.release()
}

func (e *Engine) release() error {
	var err error
	if e.session != nil {
		if derr := e.session.Destroy(); derr != nil {
			err = fmt.Errorf("error destroying ORT session: %w", derr)
		}
		e.session = nil
	}
	if e.input != nil {
		_ = e.input.Destroy()
		e.input = nil
	}
	if e.output != nil {
		_ = e.output.Destroy()
		e.output = nil
	}
	return err
}
