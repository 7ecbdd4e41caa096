//go:build windows

package process_windows

import (
	"fmt"

	"memlayout/process"

	"golang.org/x/sys/windows"
)

// InjectLibrary loads the DLL at path into the target. The UTF-16 path is written
// into a fresh allocation and a remote thread runs LoadLibraryW on it. kernel32 is
// mapped at the same address in every process of the same bitness, so our own
// LoadLibraryW address is valid in the target.
func (b *Backend) InjectLibrary(h process.Handle, path string) (bool, error) {
	if h == 0 {
		return false, process.ErrProcessNotOpen
	}
	if err := procLoadLibraryW.Find(); err != nil {
		return false, process.NewForeignCallError("LoadLibraryW", 0, 0, err)
	}

	arg, err := utf16Bytes(path)
	if err != nil {
		return false, fmt.Errorf("encode path %q: %w", path, err)
	}

	size := process.ProcessMemorySize(len(arg))
	remote, err := b.Allocate(h, 0, size, process.PermReadWrite)
	if err != nil {
		return false, err
	}
	defer func() {
		if err := b.Free(h, remote, size); err != nil {
			b.log.Warn("Failed to free injection buffer: ", err)
		}
	}()

	if err := b.Write(h, remote, arg); err != nil {
		return false, err
	}

	thread, _, callErr := procCreateRemoteThread.Call(
		uintptr(h),
		0,
		0,
		procLoadLibraryW.Addr(),
		uintptr(remote),
		0,
		0,
	)
	if thread == 0 {
		return false, process.NewForeignCallError("CreateRemoteThread", remote, size, callErr)
	}
	defer windows.CloseHandle(windows.Handle(thread))

	if _, err := windows.WaitForSingleObject(windows.Handle(thread), windows.INFINITE); err != nil {
		return false, process.NewForeignCallError("WaitForSingleObject", 0, 0, err)
	}

	b.log.Infoln("Injected", path)
	return true, nil
}
