//go:build linux

package process_linux

import (
	"fmt"
	"unsafe"

	"memlayout/process"

	"golang.org/x/sys/unix"
)

// process_vm_writev writes all of localBuf at remoteAddr in pid. A short transfer is an error.
func process_vm_writev(pid int, localBuf []byte, remoteAddr process.ProcessMemoryAddress) error {
	localIov := unix.Iovec{Base: &localBuf[0]}
	localIov.SetLen(len(localBuf))

	remoteIov := unix.RemoteIovec{
		Base: uintptr(remoteAddr),
		Len:  len(localBuf),
	}

	n, _, errno := unix.Syscall6(
		unix.SYS_PROCESS_VM_WRITEV,
		uintptr(pid),
		uintptr(unsafe.Pointer(&localIov)),
		uintptr(1),
		uintptr(unsafe.Pointer(&remoteIov)),
		uintptr(1),
		uintptr(0),
	)
	if errno != 0 {
		return errno
	}
	if int(n) != len(localBuf) {
		return fmt.Errorf("partial write: %d of %d bytes", n, len(localBuf))
	}
	return nil
}

// Write stores data in the target. Page protection is enforced by the kernel,
// so read-only mappings fail with EFAULT.
func (b *Backend) Write(h process.Handle, addr process.ProcessMemoryAddress, data []byte) error {
	if h == 0 {
		return process.ErrProcessNotOpen
	}
	if len(data) == 0 {
		return nil
	}

	// copy so the caller can't change the buffer mid-transfer
	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)

	if err := process_vm_writev(int(h), dataCopy, addr); err != nil {
		return process.NewForeignCallError("process_vm_writev", addr, process.ProcessMemorySize(len(data)), err)
	}
	return nil
}
