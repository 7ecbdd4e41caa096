//go:build windows

package process_windows

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unsafe"

	"memlayout/process"
	"memlayout/process/memory_map"

	"golang.org/x/sys/windows"
)

// ListProcesses walks a toolhelp process snapshot
func (b *Backend) ListProcesses() ([]process.ProcessInfo, error) {
	snap, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPPROCESS, 0)
	if err != nil {
		return nil, process.NewForeignCallError("CreateToolhelp32Snapshot", 0, 0, err)
	}
	defer windows.CloseHandle(snap)

	var entry windows.ProcessEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))

	var results []process.ProcessInfo
	for err = windows.Process32First(snap, &entry); err == nil; err = windows.Process32Next(snap, &entry) {
		results = append(results, process.ProcessInfo{
			PID:  process.ProcessID(entry.ProcessID),
			PPID: process.ProcessID(entry.ParentProcessID),
			Name: windows.UTF16ToString(entry.ExeFile[:]),
		})
	}
	if !errors.Is(err, windows.ERROR_NO_MORE_FILES) {
		return nil, process.NewForeignCallError("Process32Next", 0, 0, err)
	}
	return results, nil
}

// FindProcessByName matches the image name case-insensitively, with or without ".exe".
func (b *Backend) FindProcessByName(name string) (process.ProcessID, error) {
	all, err := b.ListProcesses()
	if err != nil {
		return 0, err
	}
	want := strings.TrimSuffix(strings.ToLower(name), ".exe")
	for _, info := range all {
		if strings.TrimSuffix(strings.ToLower(info.Name), ".exe") == want {
			return info.PID, nil
		}
	}
	return 0, fmt.Errorf("no process found with name %q: %w", name, process.ErrProcessNotFound)
}

// FindProcessByTitle finds a top-level window by exact title and returns its owner.
func (b *Backend) FindProcessByTitle(title string) (process.ProcessID, error) {
	ptr, err := windows.UTF16PtrFromString(title)
	if err != nil {
		return 0, err
	}
	hwnd, _, _ := procFindWindowW.Call(0, uintptr(unsafe.Pointer(ptr)))
	if hwnd == 0 {
		return 0, fmt.Errorf("window %q: %w", title, process.ErrWindowNotFound)
	}

	var pid uint32
	if _, err := windows.GetWindowThreadProcessId(windows.HWND(hwnd), &pid); err != nil {
		return 0, process.NewForeignCallError("GetWindowThreadProcessId", 0, 0, err)
	}
	return process.ProcessID(pid), nil
}

// Modules walks a toolhelp module snapshot. The first entry is the main image.
func (b *Backend) Modules(pid process.ProcessID) ([]process.ModuleInfo, error) {
	snap, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPMODULE|windows.TH32CS_SNAPMODULE32, uint32(pid))
	if err != nil {
		return nil, process.NewForeignCallError("CreateToolhelp32Snapshot", 0, 0, err)
	}
	defer windows.CloseHandle(snap)

	var entry windows.ModuleEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))

	var modules []process.ModuleInfo
	for err = windows.Module32First(snap, &entry); err == nil; err = windows.Module32Next(snap, &entry) {
		modules = append(modules, process.ModuleInfo{
			Name: windows.UTF16ToString(entry.Module[:]),
			Path: windows.UTF16ToString(entry.ExePath[:]),
			Base: process.ProcessMemoryAddress(entry.ModBaseAddr),
			Size: process.ProcessMemorySize(entry.ModBaseSize),
		})
	}
	if !errors.Is(err, windows.ERROR_NO_MORE_FILES) {
		return nil, process.NewForeignCallError("Module32Next", 0, 0, err)
	}
	return modules, nil
}

func (b *Backend) BaseAddressByName(pid process.ProcessID, name string) (process.ProcessMemoryAddress, error) {
	modules, err := b.Modules(pid)
	if err != nil {
		return 0, err
	}
	if name == "" && len(modules) > 0 {
		return modules[0].Base, nil
	}
	for _, m := range modules {
		if strings.EqualFold(m.Name, name) || strings.EqualFold(m.Path, name) || strings.EqualFold(filepath.Base(m.Path), name) {
			return m.Base, nil
		}
	}
	return 0, fmt.Errorf("module %q in process %d: %w", name, pid, process.ErrModuleNotFound)
}

// Regions walks the address space with VirtualQueryEx, keeping committed ranges.
func (b *Backend) Regions(pid process.ProcessID) ([]memory_map.MemoryMapItem, error) {
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_INFORMATION, false, uint32(pid))
	if err != nil {
		return nil, process.NewForeignCallError("OpenProcess", 0, 0, err)
	}
	defer windows.CloseHandle(h)

	var mm []memory_map.MemoryMapItem
	var mbi windows.MemoryBasicInformation
	for addr := uintptr(0); ; {
		if err := windows.VirtualQueryEx(h, addr, &mbi, unsafe.Sizeof(mbi)); err != nil {
			break
		}
		if mbi.State == windows.MEM_COMMIT {
			perms, _ := process.WindowsProtection.FromNative(mbi.Protect)
			if mbi.Protect&windows.PAGE_GUARD != 0 {
				perms = process.PermNone
			}
			mm = append(mm, memory_map.MemoryMapItem{
				Address: uint64(mbi.BaseAddress),
				Size:    uint(mbi.RegionSize),
				Perms:   perms.String() + "p",
			})
		}
		next := mbi.BaseAddress + mbi.RegionSize
		if next <= addr {
			break
		}
		addr = next
	}
	return mm, nil
}
