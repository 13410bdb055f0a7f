// Package providers - Runtime backend dispatch.
package providers

import (
	"fmt"

	"github.com/nvr-ai/go-classify/inference"
	"github.com/nvr-ai/go-classify/inference/providers/onnx"
	"github.com/nvr-ai/go-classify/inference/providers/tflite"
)

// Open creates an engine with the runtime named by opts.Backend.
//
// Arguments:
//   - opts: The engine options; Backend must be set.
//
// Returns:
//   - inference.Engine: The engine.
//   - error: An error if the backend is unknown or the runtime fails to load the model.
func Open(opts inference.Options) (inference.Engine, error) {
	switch opts.Backend {
	case inference.BackendTFLite:
		return tflite.Open(opts)
	case inference.BackendONNX:
		return onnx.Open(opts)
	default:
		return nil, fmt.Errorf("no matching runtime backend registered: %q", opts.Backend)
	}
}

// Default opens engines with every built-in runtime.
var Default inference.Opener = inference.OpenerFunc(Open)
