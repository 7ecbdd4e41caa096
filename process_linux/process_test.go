//go:build linux

package process_linux

import (
	"errors"
	"os"
	"strconv"
	"syscall"
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
	return b, h
}

func skipIfDenied(t *testing.T, err error) {
	t.Helper()
	if errors.Is(err, syscall.EPERM) || errors.Is(err, syscall.ENOSYS) {
		t.Skipf("process_vm_* not permitted here: %v", err)
	}
}

func TestReadWriteSelf(t *testing.T) {
	b, h := openSelf(t)

	buf := []byte("memlayout-self-read")
	addr := process.ProcessMemoryAddress(uintptr(unsafe.Pointer(&buf[0])))

	data, err := b.Read(h, addr, process.ProcessMemorySize(len(buf)))
	skipIfDenied(t, err)
	require.NoError(t, err)
	require.Equal(t, buf, data)

	require.NoError(t, b.Write(h, addr, []byte("MEM")))
	require.Equal(t, "MEMlayout-self-read", string(buf))
}

func TestReadUnmappedIsForeignCallError(t *testing.T) {
	b, h := openSelf(t)

	_, err := b.Read(h, 0x10, 8)
	skipIfDenied(t, err)
	require.ErrorIs(t, err, process.ErrForeignCall)

	var fce *process.ForeignCallError
	require.ErrorAs(t, err, &fce)
	require.Equal(t, process.ProcessMemoryAddress(0x10), fce.Address)
}

func TestReadOnClosedHandle(t *testing.T) {
	_, err := New().Read(0, 0x1000, 4)
	require.ErrorIs(t, err, process.ErrProcessNotOpen)
}

func TestBitsOfSelf(t *testing.T) {
	b, h := openSelf(t)
	bits, err := b.Bits(h, process.ProcessID(os.Getpid()))
	require.NoError(t, err)
	require.Equal(t, strconv.IntSize, bits)
}

func TestMainImageBase(t *testing.T) {
	b := New()
	pid := process.ProcessID(os.Getpid())

	base, err := b.BaseAddressByName(pid, "")
	require.NoError(t, err)
	require.NotZero(t, base)

	modules, err := b.Modules(pid)
	require.NoError(t, err)
	require.NotEmpty(t, modules)

	_, err = b.BaseAddressByName(pid, "definitely-not-loaded.so")
	require.ErrorIs(t, err, process.ErrModuleNotFound)
}

func TestUnsupportedOperations(t *testing.T) {
	b, h := openSelf(t)

	_, err := b.BaseAddressByHandle(h)
	require.ErrorIs(t, err, process.ErrNotImplemented)

	_, err = b.Allocate(h, 0, 4096, process.PermReadWrite)
	require.ErrorIs(t, err, process.ErrNotImplemented)

	_, err = b.InjectLibrary(h, "/tmp/lib.so")
	require.ErrorIs(t, err, process.ErrNotImplemented)
}

func TestLookupFailures(t *testing.T) {
	b := New()

	_, err := b.FindProcessByName("nonexistent-process-xyz")
	require.ErrorIs(t, err, process.ErrProcessNotFound)

	_, err = b.FindProcessByTitle("nonexistent window title xyz")
	require.ErrorIs(t, err, process.ErrWindowNotFound)

	_, err = b.Open(process.ProcessID(1 << 30))
	require.ErrorIs(t, err, process.ErrProcessNotFound)
}

func TestSplitCmdline(t *testing.T) {
	require.Equal(t, []string{"/usr/bin/game", "-windowed"}, splitCmdline([]byte("/usr/bin/game\x00-windowed\x00")))
	require.Nil(t, splitCmdline(nil))
}
