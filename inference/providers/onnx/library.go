package onnx

import (
	"os"
	"runtime"
)

// LibraryEnv names the environment variable consulted when no library path is configured.
const LibraryEnv = "ONNXRUNTIME_LIB"

// SharedLibPath returns the onnxruntime shared library for the current platform.
//
// Returns:
//   - string: $ONNXRUNTIME_LIB when set, otherwise the platform's default library name
//     resolved through the dynamic loader search path.
func SharedLibPath() string {
	if p := os.Getenv(LibraryEnv); p != "" {
		return p
	}
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "libonnxruntime.so"
	}
}
