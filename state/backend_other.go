//go:build !linux && !windows && !(darwin && cgo)

package state

import (
	"memlayout/platform"
	"memlayout/process"
)

// NativeBackend returns a backend that fails every call with ErrNotImplemented.
func NativeBackend() process.Backend {
	return process.UnsupportedBackend{OS: platform.Current().Platform}
}
