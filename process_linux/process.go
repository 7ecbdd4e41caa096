//go:build linux

// Package process_linux implements process.Backend on top of /proc and the
// process_vm_readv / process_vm_writev syscalls.
package process_linux

import (
	"fmt"
	"sync"

	"memlayout/platform"
	"memlayout/process"
	"memlayout/process/memory_map"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

// Backend implements process.Backend for Linux. A Handle is the target pid;
// opening a process only checks that it exists.
type Backend struct {
	log *logger.Logger
	mu  sync.Mutex
}

var _ process.Backend = (*Backend)(nil)

// New creates a new Linux backend
func New() *Backend {
	return &Backend{
		log: logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "process-linux")),
	}
}

func (b *Backend) Platform() platform.Platform {
	return platform.Linux
}

func (b *Backend) Open(pid process.ProcessID) (process.Handle, error) {
	if pid <= 0 || !procExists(int(pid)) {
		return 0, fmt.Errorf("process with PID %d does not exist: %w", pid, process.ErrProcessNotFound)
	}

	b.mu.Lock()
	b.log = logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, fmt.Sprintf("process-%d", pid)))
	b.mu.Unlock()

	b.log.Infoln("Process opened")
	return process.Handle(pid), nil
}

func (b *Backend) Close(h process.Handle) error {
	if h == 0 {
		return process.ErrProcessNotOpen
	}
	b.log.Infoln("Process closed", int(h))
	return nil
}

// Regions returns the sorted memory map of pid
func (b *Backend) Regions(pid process.ProcessID) ([]memory_map.MemoryMapItem, error) {
	mm, err := memory_map.ReadMemoryMap(int(pid))
	if err != nil {
		return nil, fmt.Errorf("failed to read memory map: %w", err)
	}
	memory_map.Sort(mm)
	return mm, nil
}

// Modules groups file-backed mappings by path; the base is the lowest mapping of the file.
func (b *Backend) Modules(pid process.ProcessID) ([]process.ModuleInfo, error) {
	mm, err := b.Regions(pid)
	if err != nil {
		return nil, err
	}

	index := map[string]int{}
	var modules []process.ModuleInfo
	for _, item := range mm {
		if len(item.Path) == 0 || item.Path[0] != '/' {
			continue
		}
		i, ok := index[item.Path]
		if !ok {
			index[item.Path] = len(modules)
			modules = append(modules, process.ModuleInfo{
				Name: baseName(item.Path),
				Path: item.Path,
				Base: process.ProcessMemoryAddress(item.Address),
				Size: process.ProcessMemorySize(item.Size),
			})
			continue
		}
		m := &modules[i]
		if end := process.ProcessMemoryAddress(item.End()); end > m.End() {
			m.Size = process.ProcessMemorySize(end - m.Base)
		}
	}
	return modules, nil
}

// BaseAddressByHandle is not available: a pid handle carries no image information.
func (b *Backend) BaseAddressByHandle(process.Handle) (process.ProcessMemoryAddress, error) {
	return 0, process.NotImplemented("BaseAddressByHandle", "linux")
}

// BaseAddressByName returns the lowest mapping of the named module. An empty name
// means the main executable.
func (b *Backend) BaseAddressByName(pid process.ProcessID, name string) (process.ProcessMemoryAddress, error) {
	if name == "" {
		exe, err := readExe(pid)
		if err != nil {
			return 0, fmt.Errorf("resolve main image of %d: %w", pid, process.ErrModuleNotFound)
		}
		name = exe
	}

	mm, err := b.Regions(pid)
	if err != nil {
		return 0, err
	}
	base, ok := memory_map.ModuleBase(mm, name)
	if !ok {
		return 0, fmt.Errorf("module %q in process %d: %w", name, pid, process.ErrModuleNotFound)
	}
	return process.ProcessMemoryAddress(base), nil
}

// Remote mmap needs code execution inside the target, which this backend does not do.

func (b *Backend) Allocate(process.Handle, process.ProcessMemoryAddress, process.ProcessMemorySize, process.Permissions) (process.ProcessMemoryAddress, error) {
	return 0, process.NotImplemented("Allocate", "linux")
}

func (b *Backend) Free(process.Handle, process.ProcessMemoryAddress, process.ProcessMemorySize) error {
	return process.NotImplemented("Free", "linux")
}

func (b *Backend) Protect(process.Handle, process.ProcessMemoryAddress, process.ProcessMemorySize, process.Permissions) (process.Permissions, error) {
	return 0, process.NotImplemented("Protect", "linux")
}

func (b *Backend) InjectLibrary(process.Handle, string) (bool, error) {
	return false, process.NotImplemented("InjectLibrary", "linux")
}

// Terminate sends SIGKILL to the target
func (b *Backend) Terminate(h process.Handle) (bool, error) {
	if h == 0 {
		return false, process.ErrProcessNotOpen
	}
	p := &Process{PID: int(h)}
	if err := p.Kill(); err != nil {
		return false, process.NewForeignCallError("kill", 0, 0, err)
	}
	b.log.Infoln("Process terminated", p.PID)
	return true, nil
}
