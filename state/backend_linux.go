//go:build linux

package state

import (
	"memlayout/process"
	"memlayout/process_linux"
)

// NativeBackend returns the backend of the host operating system.
func NativeBackend() process.Backend {
	return process_linux.New()
}
