//go:build linux

package process_linux

import (
	"fmt"
	"unsafe"

	"memlayout/process"

	"golang.org/x/sys/unix"
)

// process_vm_readv reads len(localBuf) bytes at remoteAddr in pid. A short transfer is an error.
func process_vm_readv(pid int, localBuf []byte, remoteAddr process.ProcessMemoryAddress) error {
	localIov := unix.Iovec{Base: &localBuf[0]}
	localIov.SetLen(len(localBuf))

	remoteIov := unix.RemoteIovec{
		Base: uintptr(remoteAddr),
		Len:  len(localBuf),
	}

	n, _, errno := unix.Syscall6(
		unix.SYS_PROCESS_VM_READV,
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
		return fmt.Errorf("partial read: %d of %d bytes", n, len(localBuf))
	}
	return nil
}

// Read copies size bytes out of the target
func (b *Backend) Read(h process.Handle, addr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, error) {
	if h == 0 {
		return nil, process.ErrProcessNotOpen
	}
	if size == 0 {
		return []byte{}, nil
	}

	buf := make([]byte, size)
	if err := process_vm_readv(int(h), buf, addr); err != nil {
		return nil, process.NewForeignCallError("process_vm_readv", addr, size, err)
	}
	return buf, nil
}
