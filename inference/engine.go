// Package inference - Inference engine contract shared by every runtime backend.
package inference

import (
	"errors"
	"fmt"
)

var (
	// ErrEngineClosed is returned when an engine is used after Close.
	ErrEngineClosed = errors.New("inference: engine closed")
	// ErrUnsupportedEncoding is returned for tensor element types outside FLOAT32/QUANT_UINT8.
	ErrUnsupportedEncoding = errors.New("inference: unsupported tensor encoding")
	// ErrBufferSize is returned when a caller buffer does not match the tensor byte size.
	ErrBufferSize = errors.New("inference: buffer size mismatch")
)

// TensorInfo describes one input or output tensor as declared by the model.
type TensorInfo struct {
	// Name is the tensor name inside the model, if the runtime exposes one.
	Name string `json:"name"`
	// Shape is the declared shape, batch dimension included.
	Shape []int64 `json:"shape"`
	// Encoding is the element encoding.
	Encoding Encoding `json:"encoding"`
	// Scale is the dequantization scale; zero for float tensors.
	Scale float32 `json:"scale,omitempty"`
	// ZeroPoint is the dequantization zero point; zero for float tensors.
	ZeroPoint int `json:"zero_point,omitempty"`
}

// Elements returns the number of elements in the tensor.
func (t TensorInfo) Elements() int {
	if len(t.Shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range t.Shape {
		if d <= 0 {
			return 0
		}
		n *= int(d)
	}
	return n
}

// ByteSize returns the size in bytes of a buffer holding the whole tensor.
func (t TensorInfo) ByteSize() int {
	return t.Elements() * t.Encoding.Size()
}

// Engine is a loaded model able to run one synchronous inference at a time.
//
// Implementations are not safe for concurrent Run calls; callers serialize access.
// Close is idempotent.
type Engine interface {
	// Input describes the single input tensor.
	Input() TensorInfo
	// Output describes the single output tensor.
	Output() TensorInfo
	// Run copies input into the model, invokes it and copies the result into output.
	Run(input, output []byte) error
	// Close releases every native resource held by the engine.
	Close() error
}

// Options configures how an engine is opened.
type Options struct {
	// Backend selects the runtime.
	Backend Backend
	// WeightsPath is the compiled model file.
	WeightsPath string
	// InputSide fills dynamic spatial dimensions for runtimes that allow them.
	InputSide int
	// Threads is the runtime thread-pool hint; 0 lets the runtime decide.
	Threads int
	// Quantization overrides the output quantization parameters for runtimes whose
	// model metadata does not carry them.
	Quantization *Quantization
	// RuntimeLibrary is the path to the shared runtime library, when one is needed.
	RuntimeLibrary string
}

// Opener creates engines.
type Opener interface {
	Open(opts Options) (Engine, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(opts Options) (Engine, error)

// Open calls f(opts).
func (f OpenerFunc) Open(opts Options) (Engine, error) {
	return f(opts)
}

// CheckBuffers verifies that input and output match the byte sizes declared by e.
//
// Arguments:
//   - e: The engine whose tensors are the reference.
//   - input: The encoded input buffer.
//   - output: The destination output buffer.
//
// Returns:
//   - error: An ErrBufferSize wrapped error on mismatch, nil otherwise.
func CheckBuffers(e Engine, input, output []byte) error {
	if want := e.Input().ByteSize(); len(input) != want {
		return fmt.Errorf("%w: input has %d bytes, tensor needs %d", ErrBufferSize, len(input), want)
	}
	if want := e.Output().ByteSize(); len(output) != want {
		return fmt.Errorf("%w: output has %d bytes, tensor needs %d", ErrBufferSize, len(output), want)
	}
	return nil
}
