//go:build windows

package state

import (
	"memlayout/process"
	"memlayout/process_windows"
)

// NativeBackend returns the backend of the host operating system.
func NativeBackend() process.Backend {
	return process_windows.New()
}
