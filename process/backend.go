package process

import (
	"memlayout/platform"
	"memlayout/process/memory_map"
)

// Backend is the set of foreign calls one operating system offers for working on
// another process. Implementations live in the per-OS packages and are selected
// once at startup. Operations an OS cannot serve return ErrNotImplemented.
type Backend interface {
	Platform() platform.Platform

	FindProcessByName(name string) (ProcessID, error)
	FindProcessByTitle(title string) (ProcessID, error)
	ListProcesses() ([]ProcessInfo, error)
	Modules(pid ProcessID) ([]ModuleInfo, error)
	Regions(pid ProcessID) ([]memory_map.MemoryMapItem, error)

	Open(pid ProcessID) (Handle, error)
	Close(h Handle) error

	// Bits returns the pointer width of the target in bits
	Bits(h Handle, pid ProcessID) (int, error)

	BaseAddressByHandle(h Handle) (ProcessMemoryAddress, error)
	// BaseAddressByName resolves the load address of a module; an empty name means the main image
	BaseAddressByName(pid ProcessID, name string) (ProcessMemoryAddress, error)

	Allocate(h Handle, hint ProcessMemoryAddress, size ProcessMemorySize, perms Permissions) (ProcessMemoryAddress, error)
	Free(h Handle, addr ProcessMemoryAddress, size ProcessMemorySize) error
	// Protect changes the protection of a range and returns the previous one
	Protect(h Handle, addr ProcessMemoryAddress, size ProcessMemorySize, perms Permissions) (Permissions, error)

	// Read returns exactly size bytes or an error, never a partial buffer
	Read(h Handle, addr ProcessMemoryAddress, size ProcessMemorySize) ([]byte, error)
	// Write stores all of data or returns an error
	Write(h Handle, addr ProcessMemoryAddress, data []byte) error

	Terminate(h Handle) (bool, error)
	InjectLibrary(h Handle, path string) (bool, error)
}

// UnsupportedBackend answers every operation with ErrNotImplemented. It is the
// backend of hosts with no native implementation.
type UnsupportedBackend struct {
	OS platform.Platform
}

var _ Backend = UnsupportedBackend{}

func (u UnsupportedBackend) fail(op string) error {
	return NotImplemented(op, u.OS.String())
}

func (u UnsupportedBackend) Platform() platform.Platform { return u.OS }

func (u UnsupportedBackend) FindProcessByName(string) (ProcessID, error) {
	return 0, u.fail("FindProcessByName")
}

func (u UnsupportedBackend) FindProcessByTitle(string) (ProcessID, error) {
	return 0, u.fail("FindProcessByTitle")
}

func (u UnsupportedBackend) ListProcesses() ([]ProcessInfo, error) {
	return nil, u.fail("ListProcesses")
}

func (u UnsupportedBackend) Modules(ProcessID) ([]ModuleInfo, error) {
	return nil, u.fail("Modules")
}

func (u UnsupportedBackend) Regions(ProcessID) ([]memory_map.MemoryMapItem, error) {
	return nil, u.fail("Regions")
}

func (u UnsupportedBackend) Open(ProcessID) (Handle, error) {
	return 0, u.fail("Open")
}

func (u UnsupportedBackend) Close(Handle) error {
	return u.fail("Close")
}

func (u UnsupportedBackend) Bits(Handle, ProcessID) (int, error) {
	return 0, u.fail("Bits")
}

func (u UnsupportedBackend) BaseAddressByHandle(Handle) (ProcessMemoryAddress, error) {
	return 0, u.fail("BaseAddressByHandle")
}

func (u UnsupportedBackend) BaseAddressByName(ProcessID, string) (ProcessMemoryAddress, error) {
	return 0, u.fail("BaseAddressByName")
}

func (u UnsupportedBackend) Allocate(Handle, ProcessMemoryAddress, ProcessMemorySize, Permissions) (ProcessMemoryAddress, error) {
	return 0, u.fail("Allocate")
}

func (u UnsupportedBackend) Free(Handle, ProcessMemoryAddress, ProcessMemorySize) error {
	return u.fail("Free")
}

func (u UnsupportedBackend) Protect(Handle, ProcessMemoryAddress, ProcessMemorySize, Permissions) (Permissions, error) {
	return 0, u.fail("Protect")
}

func (u UnsupportedBackend) Read(Handle, ProcessMemoryAddress, ProcessMemorySize) ([]byte, error) {
	return nil, u.fail("Read")
}

func (u UnsupportedBackend) Write(Handle, ProcessMemoryAddress, []byte) error {
	return u.fail("Write")
}

func (u UnsupportedBackend) Terminate(Handle) (bool, error) {
	return false, u.fail("Terminate")
}

func (u UnsupportedBackend) InjectLibrary(Handle, string) (bool, error) {
	return false, u.fail("InjectLibrary")
}
