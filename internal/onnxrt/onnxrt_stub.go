//go:build !cgo
// +build !cgo

package onnxrt

// Init always fails when built without CGO.
func Init() error {
	return ErrUnavailable
}
