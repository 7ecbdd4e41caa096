//go:build darwin && cgo

package state

import (
	"memlayout/process"
	"memlayout/process_darwin"
)

// NativeBackend returns the backend of the host operating system.
func NativeBackend() process.Backend {
	return process_darwin.New()
}
