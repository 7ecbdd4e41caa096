//go:build darwin && cgo

// Package process_darwin implements process.Backend with mach VM calls.
// task_for_pid requires the caller to be root or to carry the debugger entitlement.
package process_darwin

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"memlayout/platform"
	"memlayout/process"
	"memlayout/process/memory_map"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
	"golang.org/x/sys/unix"
)

// P_LP64 in kinfo_proc.kp_proc.p_flag
const pLP64 = 0x4

// Backend implements process.Backend for Darwin. A Handle is a mach task port.
type Backend struct {
	log *logger.Logger
	mu  sync.Mutex
}

var _ process.Backend = (*Backend)(nil)

// New creates a new Darwin backend
func New() *Backend {
	return &Backend{
		log: logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "process-darwin")),
	}
}

func (b *Backend) Platform() platform.Platform {
	return platform.Darwin
}

func (b *Backend) ListProcesses() ([]process.ProcessInfo, error) {
	pids, err := listPIDs()
	if err != nil {
		return nil, err
	}
	sort.Ints(pids)

	results := make([]process.ProcessInfo, 0, len(pids))
	for _, pid := range pids {
		exe := procPath(pid)
		name := procName(pid)
		if name == "" && exe != "" {
			name = filepath.Base(exe)
		}
		results = append(results, process.ProcessInfo{PID: process.ProcessID(pid), Name: name, Exe: exe})
	}
	return results, nil
}

func (b *Backend) FindProcessByName(name string) (process.ProcessID, error) {
	all, err := b.ListProcesses()
	if err != nil {
		return 0, err
	}
	for _, info := range all {
		if info.Name == name || (info.Exe != "" && filepath.Base(info.Exe) == name) {
			return info.PID, nil
		}
	}
	return 0, fmt.Errorf("no process found with name %q: %w", name, process.ErrProcessNotFound)
}

// Window titles live in the window server, which this backend does not talk to.
func (b *Backend) FindProcessByTitle(string) (process.ProcessID, error) {
	return 0, process.NotImplemented("FindProcessByTitle", "darwin")
}

func (b *Backend) Modules(process.ProcessID) ([]process.ModuleInfo, error) {
	return nil, process.NotImplemented("Modules", "darwin")
}

func (b *Backend) BaseAddressByName(process.ProcessID, string) (process.ProcessMemoryAddress, error) {
	return 0, process.NotImplemented("BaseAddressByName", "darwin")
}

func (b *Backend) Open(pid process.ProcessID) (process.Handle, error) {
	h, err := taskForPID(pid)
	if err != nil {
		return 0, err
	}

	b.mu.Lock()
	b.log = logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, fmt.Sprintf("process-%d", pid)))
	b.mu.Unlock()

	b.log.Infoln("Process opened")
	return h, nil
}

func (b *Backend) Close(h process.Handle) error {
	if h == 0 {
		return process.ErrProcessNotOpen
	}
	if err := closeTask(h); err != nil {
		return err
	}
	b.log.Infoln("Process closed")
	return nil
}

// Bits reads P_LP64 from the kern.proc.pid sysctl
func (b *Backend) Bits(_ process.Handle, pid process.ProcessID) (int, error) {
	kp, err := unix.SysctlKinfoProc("kern.proc.pid", int(pid))
	if err != nil {
		return 0, process.NewForeignCallError("sysctl kern.proc.pid", 0, 0, err)
	}
	if kp.Proc.P_flag&pLP64 != 0 {
		return 64, nil
	}
	return 32, nil
}

// BaseAddressByHandle returns the first mapped region, where the main image is loaded.
func (b *Backend) BaseAddressByHandle(h process.Handle) (process.ProcessMemoryAddress, error) {
	if h == 0 {
		return 0, process.ErrProcessNotOpen
	}
	start, _, _, err := region(h, 0)
	if err != nil {
		return 0, err
	}
	return start, nil
}

func (b *Backend) Regions(pid process.ProcessID) ([]memory_map.MemoryMapItem, error) {
	h, err := taskForPID(pid)
	if err != nil {
		return nil, err
	}
	defer closeTask(h)

	var mm []memory_map.MemoryMapItem
	for addr := process.ProcessMemoryAddress(0); ; {
		start, size, prot, err := region(h, addr)
		if err != nil {
			// KERN_INVALID_ADDRESS past the last region ends the walk
			var fce *process.ForeignCallError
			if errors.As(err, &fce) && len(mm) > 0 {
				break
			}
			return nil, err
		}
		perms, _ := process.MachProtection.FromNative(prot)
		mm = append(mm, memory_map.MemoryMapItem{
			Address: uint64(start),
			Size:    uint(size),
			Perms:   perms.String() + "p",
		})
		addr = start + process.ProcessMemoryAddress(size)
	}
	return mm, nil
}

func (b *Backend) Read(h process.Handle, addr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, error) {
	if h == 0 {
		return nil, process.ErrProcessNotOpen
	}
	if size == 0 {
		return []byte{}, nil
	}
	buf := make([]byte, size)
	if err := readMemory(h, addr, buf); err != nil {
		return nil, err
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
	return writeMemory(h, addr, data)
}

// Allocate maps fresh pages anywhere when hint is zero, at hint otherwise, then applies perms.
func (b *Backend) Allocate(h process.Handle, hint process.ProcessMemoryAddress, size process.ProcessMemorySize, perms process.Permissions) (process.ProcessMemoryAddress, error) {
	if h == 0 {
		return 0, process.ErrProcessNotOpen
	}
	addr, err := allocate(h, hint, size)
	if err != nil {
		return 0, err
	}
	if perms != process.PermReadWrite {
		if err := protect(h, addr, size, process.MachProtection.Native(perms)); err != nil {
			return 0, err
		}
	}
	return addr, nil
}

func (b *Backend) Free(h process.Handle, addr process.ProcessMemoryAddress, size process.ProcessMemorySize) error {
	if h == 0 {
		return process.ErrProcessNotOpen
	}
	return deallocate(h, addr, size)
}

// Protect queries the current protection first since mach_vm_protect does not report it.
func (b *Backend) Protect(h process.Handle, addr process.ProcessMemoryAddress, size process.ProcessMemorySize, perms process.Permissions) (process.Permissions, error) {
	if h == 0 {
		return 0, process.ErrProcessNotOpen
	}
	_, _, prot, err := region(h, addr)
	if err != nil {
		return 0, err
	}
	if err := protect(h, addr, size, process.MachProtection.Native(perms)); err != nil {
		return 0, err
	}
	prev, _ := process.MachProtection.FromNative(prot)
	return prev, nil
}

func (b *Backend) Terminate(h process.Handle) (bool, error) {
	if h == 0 {
		return false, process.ErrProcessNotOpen
	}
	pid, err := pidForTask(h)
	if err != nil {
		return false, err
	}
	if err := unix.Kill(pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return false, process.NewForeignCallError("kill", 0, 0, err)
	}
	b.log.Infoln("Process terminated", pid)
	return true, nil
}

func (b *Backend) InjectLibrary(process.Handle, string) (bool, error) {
	return false, process.NotImplemented("InjectLibrary", "darwin")
}
