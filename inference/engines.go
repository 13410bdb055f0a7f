// Package inference - Runtime backends able to execute a compiled model.
package inference

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Backend is the runtime used to execute a model's weights file.
type Backend string

const (
	// BackendTFLite executes .tflite flatbuffers through the TensorFlow Lite C API.
	BackendTFLite Backend = "tflite"
	// BackendONNX executes .onnx graphs through onnxruntime.
	BackendONNX Backend = "onnx"
)

// Backends is a list of all supported backends.
var Backends = []Backend{BackendTFLite, BackendONNX}

// ParseBackend converts a configuration string to a Backend.
//
// Arguments:
//   - s: The backend name, case-insensitive.
//
// Returns:
//   - Backend: The matching backend.
//   - error: An error if the name is not a supported backend.
func ParseBackend(s string) (Backend, error) {
	name := Backend(strings.ToLower(strings.TrimSpace(s)))
	for _, b := range Backends {
		if b == name {
			return b, nil
		}
	}
	return "", fmt.Errorf("unsupported backend: %q", s)
}

// BackendFromPath infers the backend from a weights file extension.
//
// Arguments:
//   - path: The weights file path.
//
// Returns:
//   - Backend: The backend owning the extension.
//   - error: An error if the extension is not recognized.
func BackendFromPath(path string) (Backend, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tflite":
		return BackendTFLite, nil
	case ".onnx", ".ort":
		return BackendONNX, nil
	default:
		return "", fmt.Errorf("cannot infer backend from weights file %q", path)
	}
}
