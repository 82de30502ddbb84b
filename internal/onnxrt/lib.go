// Package onnxrt owns the process-wide ONNX Runtime environment shared by the ONNX
// tagger and embedder.
package onnxrt

import (
	"errors"
	"os"
)

// ErrUnavailable is returned by Init in builds without CGO.
var ErrUnavailable = errors.New("ONNX models require CGO; build with CGO_ENABLED=1 and onnxruntime")

// LibraryEnv names the environment variable that points at libonnxruntime.
const LibraryEnv = "ONNXRUNTIME_LIB"

// LibraryPath returns the configured onnxruntime shared library, or "" for the system default.
func LibraryPath() string {
	return os.Getenv(LibraryEnv)
}
