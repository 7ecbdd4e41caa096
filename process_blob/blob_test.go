package process_blob

import (
	"testing"

	"memlayout/platform"
	"memlayout/process"

	"github.com/stretchr/testify/require"
)

func newTarget(t *testing.T) (*Backend, *Process, process.Handle) {
	t.Helper()
	b := New(platform.Windows)
	p := b.AddProcess(&Process{PID: 42, Name: "game.exe", Title: "Game Window", Bits: 32})
	p.MustMap(0x400000, make([]byte, 0x1000), process.PermReadExec, "game.exe")
	p.MustMap(0x401000, make([]byte, 0x1000), process.PermReadWrite, "game.exe")
	p.Modules = []process.ModuleInfo{{Name: "game.exe", Base: 0x400000, Size: 0x2000}}

	h, err := b.Open(42)
	require.NoError(t, err)
	return b, p, h
}

func TestLookups(t *testing.T) {
	b, _, _ := newTarget(t)

	pid, err := b.FindProcessByName("GAME.EXE")
	require.NoError(t, err)
	require.Equal(t, process.ProcessID(42), pid)

	pid, err = b.FindProcessByTitle("Game Window")
	require.NoError(t, err)
	require.Equal(t, process.ProcessID(42), pid)

	_, err = b.FindProcessByName("other.exe")
	require.ErrorIs(t, err, process.ErrProcessNotFound)

	_, err = b.FindProcessByTitle("Other")
	require.ErrorIs(t, err, process.ErrWindowNotFound)

	_, err = b.Open(7)
	require.ErrorIs(t, err, process.ErrProcessNotFound)

	base, err := b.BaseAddressByName(42, "")
	require.NoError(t, err)
	require.Equal(t, process.ProcessMemoryAddress(0x400000), base)

	_, err = b.BaseAddressByName(42, "missing.dll")
	require.ErrorIs(t, err, process.ErrModuleNotFound)
}

func TestReadWriteAcrossRegions(t *testing.T) {
	b, _, h := newTarget(t)

	_, err := b.Read(h, 0x400ffe, 4)
	require.NoError(t, err)

	err = b.Write(h, 0x401000, []byte{1, 2, 3, 4})
	require.NoError(t, err)

	data, err := b.Read(h, 0x401000, 4)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3, 4}, data)

	err = b.Write(h, 0x400ffe, []byte{9, 9, 9, 9})
	require.ErrorIs(t, err, process.ErrForeignCall)
	require.ErrorIs(t, err, ErrAccessDenied)

	_, err = b.Read(h, 0x401ffe, 4)
	require.ErrorIs(t, err, process.ErrForeignCall)
	require.ErrorIs(t, err, process.ErrAddressNotMapped)
}

func TestReadHugeSizeFails(t *testing.T) {
	b, _, h := newTarget(t)

	_, err := b.Read(h, 0x401000, process.ProcessMemorySize(1<<62))
	require.ErrorIs(t, err, process.ErrForeignCall)
	require.ErrorIs(t, err, process.ErrAddressNotMapped)
}

func TestAllocateProtectFree(t *testing.T) {
	b, p, h := newTarget(t)

	addr, err := b.Allocate(h, 0, 10, process.PermReadWrite)
	require.NoError(t, err)
	require.Equal(t, DefaultAllocBase, addr)

	second, err := b.Allocate(h, 0, 0x1001, process.PermReadWrite)
	require.NoError(t, err)
	require.Equal(t, DefaultAllocBase+0x1000, second)

	r, ok := p.Region(second + 0x1fff)
	require.True(t, ok)
	require.Len(t, r.Data, 0x2000)

	hinted, err := b.Allocate(h, 0x20000000, 1, process.PermRead)
	require.NoError(t, err)
	require.Equal(t, process.ProcessMemoryAddress(0x20000000), hinted)

	prev, err := b.Protect(h, addr, 4, process.PermRead)
	require.NoError(t, err)
	require.Equal(t, process.PermReadWrite, prev)
	require.ErrorIs(t, b.Write(h, addr, []byte{1}), ErrAccessDenied)

	require.NoError(t, b.Free(h, addr, 10))
	_, err = b.Read(h, addr, 1)
	require.ErrorIs(t, err, process.ErrAddressNotMapped)
	require.ErrorIs(t, b.Free(h, addr, 10), process.ErrForeignCall)
}

func TestDisabledOperations(t *testing.T) {
	b, _, h := newTarget(t)
	b.Disable("BaseAddressByHandle", "InjectLibrary")

	_, err := b.BaseAddressByHandle(h)
	require.ErrorIs(t, err, process.ErrNotImplemented)

	_, err = b.InjectLibrary(h, `C:\hook.dll`)
	require.ErrorIs(t, err, process.ErrNotImplemented)
}

func TestTerminateAndHandles(t *testing.T) {
	b, p, h := newTarget(t)
	require.Equal(t, 1, b.OpenHandles(42))

	ok, err := b.InjectLibrary(h, "/tmp/hook.so")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"/tmp/hook.so"}, p.Libraries)

	ok, err = b.Terminate(h)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, p.Exited())

	_, err = b.FindProcessByName("game.exe")
	require.ErrorIs(t, err, process.ErrProcessNotFound)

	require.NoError(t, b.Close(h))
	require.Equal(t, 0, b.OpenHandles(42))
	require.ErrorIs(t, b.Close(h), process.ErrProcessNotOpen)
}

func TestRegionsReported(t *testing.T) {
	b, _, _ := newTarget(t)

	mm, err := b.Regions(42)
	require.NoError(t, err)
	require.Len(t, mm, 2)
	require.Equal(t, "r-xp", mm[0].Perms)
	require.True(t, mm[1].IsWritable())
}
