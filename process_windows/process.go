//go:build windows

// Package process_windows implements process.Backend with kernel32 through
// golang.org/x/sys/windows.
package process_windows

import (
	"fmt"
	"strconv"
	"sync"
	"unsafe"

	"memlayout/platform"
	"memlayout/process"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
	"golang.org/x/sys/windows"
)

// kernel32 entry points x/sys/windows does not wrap
var (
	modkernel32            = windows.NewLazySystemDLL("kernel32.dll")
	moduser32              = windows.NewLazySystemDLL("user32.dll")
	procVirtualAllocEx     = modkernel32.NewProc("VirtualAllocEx")
	procVirtualFreeEx      = modkernel32.NewProc("VirtualFreeEx")
	procCreateRemoteThread = modkernel32.NewProc("CreateRemoteThread")
	procLoadLibraryW       = modkernel32.NewProc("LoadLibraryW")
	procFindWindowW        = moduser32.NewProc("FindWindowW")
)

const openAccess = windows.PROCESS_ALL_ACCESS

// Backend implements process.Backend for Windows. A Handle is a process HANDLE.
type Backend struct {
	log *logger.Logger
	mu  sync.Mutex
}

var _ process.Backend = (*Backend)(nil)

// New creates a new Windows backend
func New() *Backend {
	return &Backend{
		log: logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "process-windows")),
	}
}

func (b *Backend) Platform() platform.Platform {
	return platform.Windows
}

func (b *Backend) Open(pid process.ProcessID) (process.Handle, error) {
	handle, err := windows.OpenProcess(openAccess, false, uint32(pid))
	if err != nil {
		return 0, process.NewForeignCallError("OpenProcess", 0, 0, err)
	}

	b.mu.Lock()
	b.log = logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, fmt.Sprintf("process-%d", pid)))
	b.mu.Unlock()

	b.log.Infoln("Process opened")
	return process.Handle(handle), nil
}

func (b *Backend) Close(h process.Handle) error {
	if h == 0 {
		return process.ErrProcessNotOpen
	}
	if err := windows.CloseHandle(windows.Handle(h)); err != nil {
		return process.NewForeignCallError("CloseHandle", 0, 0, err)
	}
	b.log.Infoln("Process closed")
	return nil
}

// Bits reports 32 for WOW64 targets and for any target on a 32-bit host.
func (b *Backend) Bits(h process.Handle, _ process.ProcessID) (int, error) {
	if strconv.IntSize == 32 {
		return 32, nil
	}
	var wow64 bool
	if err := windows.IsWow64Process(windows.Handle(h), &wow64); err != nil {
		return 0, process.NewForeignCallError("IsWow64Process", 0, 0, err)
	}
	if wow64 {
		return 32, nil
	}
	return 64, nil
}

// BaseAddressByHandle is not offered; the module snapshot needs the pid.
func (b *Backend) BaseAddressByHandle(process.Handle) (process.ProcessMemoryAddress, error) {
	return 0, process.NotImplemented("BaseAddressByHandle", "windows")
}

func (b *Backend) Read(h process.Handle, addr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, error) {
	if h == 0 {
		return nil, process.ErrProcessNotOpen
	}
	if size == 0 {
		return []byte{}, nil
	}

	buf := make([]byte, size)
	var bytesRead uintptr
	err := windows.ReadProcessMemory(windows.Handle(h), uintptr(addr), &buf[0], uintptr(size), &bytesRead)
	if err != nil {
		return nil, process.NewForeignCallError("ReadProcessMemory", addr, size, err)
	}
	if bytesRead != uintptr(size) {
		return nil, process.NewForeignCallError("ReadProcessMemory", addr, size,
			fmt.Errorf("read incomplete: expected %d, got %d", size, bytesRead))
	}
	return buf, nil
}

func (b *Backend) Write(h process.Handle, addr process.ProcessMemoryAddress, data []byte) error {
	if h == 0 {
		return process.ErrProcessNotOpen
	}
	if len(data) == 0 {
		return nil
	}

	size := process.ProcessMemorySize(len(data))
	var written uintptr
	err := windows.WriteProcessMemory(windows.Handle(h), uintptr(addr), &data[0], uintptr(len(data)), &written)
	if err != nil {
		return process.NewForeignCallError("WriteProcessMemory", addr, size, err)
	}
	if written != uintptr(len(data)) {
		return process.NewForeignCallError("WriteProcessMemory", addr, size,
			fmt.Errorf("write incomplete: expected %d, got %d", len(data), written))
	}
	return nil
}

func (b *Backend) Allocate(h process.Handle, hint process.ProcessMemoryAddress, size process.ProcessMemorySize, perms process.Permissions) (process.ProcessMemoryAddress, error) {
	if h == 0 {
		return 0, process.ErrProcessNotOpen
	}
	addr, _, err := procVirtualAllocEx.Call(
		uintptr(h),
		uintptr(hint),
		uintptr(size),
		uintptr(windows.MEM_COMMIT|windows.MEM_RESERVE),
		uintptr(process.WindowsProtection.Native(perms)),
	)
	if addr == 0 {
		return 0, process.NewForeignCallError("VirtualAllocEx", hint, size, err)
	}
	return process.ProcessMemoryAddress(addr), nil
}

// Free releases a whole allocation; MEM_RELEASE requires a size of zero.
func (b *Backend) Free(h process.Handle, addr process.ProcessMemoryAddress, size process.ProcessMemorySize) error {
	if h == 0 {
		return process.ErrProcessNotOpen
	}
	ret, _, err := procVirtualFreeEx.Call(uintptr(h), uintptr(addr), 0, uintptr(windows.MEM_RELEASE))
	if ret == 0 {
		return process.NewForeignCallError("VirtualFreeEx", addr, size, err)
	}
	return nil
}

func (b *Backend) Protect(h process.Handle, addr process.ProcessMemoryAddress, size process.ProcessMemorySize, perms process.Permissions) (process.Permissions, error) {
	if h == 0 {
		return 0, process.ErrProcessNotOpen
	}
	var old uint32
	err := windows.VirtualProtectEx(windows.Handle(h), uintptr(addr), uintptr(size), process.WindowsProtection.Native(perms), &old)
	if err != nil {
		return 0, process.NewForeignCallError("VirtualProtectEx", addr, size, err)
	}
	prev, ok := process.WindowsProtection.FromNative(old)
	if !ok {
		b.log.Warn("Unknown previous protection ", fmt.Sprintf("0x%x", old))
	}
	return prev, nil
}

func (b *Backend) Terminate(h process.Handle) (bool, error) {
	if h == 0 {
		return false, process.ErrProcessNotOpen
	}
	if err := windows.TerminateProcess(windows.Handle(h), 1); err != nil {
		return false, process.NewForeignCallError("TerminateProcess", 0, 0, err)
	}
	b.log.Infoln("Process terminated")
	return true, nil
}

func utf16Bytes(s string) ([]byte, error) {
	u, err := windows.UTF16FromString(s)
	if err != nil {
		return nil, err
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&u[0])), len(u)*2), nil
}
