//go:build cgo
// +build cgo

package onnxrt

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	initOnce sync.Once
	initErr  error
)

// Init initializes the ONNX Runtime environment once per process. Every ONNX model
// shares the environment, so it is never torn down before exit.
func Init() error {
	initOnce.Do(func() {
		if lib := LibraryPath(); lib != "" {
			ort.SetSharedLibraryPath(lib)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			initErr = fmt.Errorf("failed to initialize ONNX runtime: %w", err)
		}
	})
	return initErr
}
