//go:build windows

package process_windows

import (
	"os"
	"strconv"
	"testing"
	"unsafe"

	"memlayout/process"

	"github.com/stretchr/testify/require"
)

func openSelf(t *testing.T) (*Backend, process.Handle) {
	t.Helper()
	b := New()
	h, err := b.Open(process.ProcessID(os.Getpid()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close(h) })
	return b, h
}

func TestReadWriteSelf(t *testing.T) {
	b, h := openSelf(t)

	buf := []byte("memlayout-self-read")
	addr := process.ProcessMemoryAddress(uintptr(unsafe.Pointer(&buf[0])))

	data, err := b.Read(h, addr, process.ProcessMemorySize(len(buf)))
	require.NoError(t, err)
	require.Equal(t, buf, data)

	require.NoError(t, b.Write(h, addr, []byte("MEM")))
	require.Equal(t, "MEMlayout-self-read", string(buf))
}

func TestAllocateProtectFree(t *testing.T) {
	b, h := openSelf(t)

	addr, err := b.Allocate(h, 0, 4096, process.PermReadWrite)
	require.NoError(t, err)
	require.NotZero(t, addr)

	prev, err := b.Protect(h, addr, 4096, process.PermRead)
	require.NoError(t, err)
	require.Equal(t, process.PermReadWrite, prev)

	require.NoError(t, b.Free(h, addr, 4096))
}

func TestBitsAndBase(t *testing.T) {
	b, h := openSelf(t)
	pid := process.ProcessID(os.Getpid())

	bits, err := b.Bits(h, pid)
	require.NoError(t, err)
	require.Equal(t, strconv.IntSize, bits)

	base, err := b.BaseAddressByName(pid, "")
	require.NoError(t, err)
	require.NotZero(t, base)

	_, err = b.BaseAddressByHandle(h)
	require.ErrorIs(t, err, process.ErrNotImplemented)
}

func TestLookupFailures(t *testing.T) {
	b := New()

	_, err := b.FindProcessByName("nonexistent-process-xyz")
	require.ErrorIs(t, err, process.ErrProcessNotFound)

	_, err = b.FindProcessByTitle("nonexistent window title xyz")
	require.ErrorIs(t, err, process.ErrWindowNotFound)
}
