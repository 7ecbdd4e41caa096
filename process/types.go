package process

import "fmt"

// ProcessID represents a unique identifier for a process
type ProcessID int

// Handle is an opaque OS handle to an opened process. On Linux it is the pid,
// on Windows a HANDLE, on Darwin a mach task port.
type Handle uintptr

func (h Handle) String() string {
	return fmt.Sprintf("handle(0x%x)", uintptr(h))
}

// ProcessInfo contains basic information about a process
type ProcessInfo struct {
	PID     ProcessID // Process ID
	PPID    ProcessID // Parent Process ID
	Name    string    // Short process name (comm, image name)
	Exe     string    // Path to the executable
	Cmdline []string  // Command line arguments
	Title   string    // Main window title where the OS has one
}

// ModuleInfo is a loaded image inside a process
type ModuleInfo struct {
	Name string
	Path string
	Base ProcessMemoryAddress
	Size ProcessMemorySize
}

// End returns the first address past the module
func (m ModuleInfo) End() ProcessMemoryAddress {
	return m.Base + ProcessMemoryAddress(m.Size)
}
