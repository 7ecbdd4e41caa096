package process

import (
	"encoding/binary"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

// flatMemory is a little-endian byte slice mapped at base
type flatMemory struct {
	base ProcessMemoryAddress
	data []byte
}

func (m *flatMemory) read(addr ProcessMemoryAddress, size ProcessMemorySize) ([]byte, error) {
	if addr < m.base || uint64(addr-m.base)+uint64(size) > uint64(len(m.data)) {
		return nil, ErrAddressNotMapped
	}
	off := addr - m.base
	return m.data[off : uint64(off)+uint64(size)], nil
}

func (m *flatMemory) putPointer(addr, value ProcessMemoryAddress) {
	binary.LittleEndian.PutUint64(m.data[addr-m.base:], uint64(value))
}

func TestResolvePath(t *testing.T) {
	m := &flatMemory{base: 0x1000, data: make([]byte, 0x100)}
	m.putPointer(0x1010, 0x1040)
	m.putPointer(0x1048, 0x1080)

	addr, err := ResolvePath(m.read, 8, 0x1000)
	require.NoError(t, err)
	require.Equal(t, ProcessMemoryAddress(0x1000), addr)

	addr, err = ResolvePath(m.read, 8, 0x1000, 0x10, 0x8, 0x4)
	require.NoError(t, err)
	require.Equal(t, ProcessMemoryAddress(0x1084), addr)

	addr, err = ResolvePath(m.read, 8, 0x1000, 0x10, -0x8)
	require.NoError(t, err)
	require.Equal(t, ProcessMemoryAddress(0x1038), addr)
}

func TestResolvePathNull(t *testing.T) {
	m := &flatMemory{base: 0x1000, data: make([]byte, 0x20)}
	_, err := ResolvePath(m.read, 8, 0x1000, 0, 4)
	require.ErrorIs(t, err, ErrInvalidPointer)
}

func TestReadPointerWidths(t *testing.T) {
	m := &flatMemory{base: 0, data: []byte{0x78, 0x56, 0x34, 0x12, 0xFF, 0xFF, 0xFF, 0xFF}}

	p, err := ReadPointer(m.read, 4, 0)
	require.NoError(t, err)
	require.Equal(t, ProcessMemoryAddress(0x12345678), p)

	_, err = ReadPointer(m.read, 3, 0)
	require.Error(t, err)
}

func TestForeignCallError(t *testing.T) {
	cause := errors.New("access denied")
	err := fmt.Errorf("write field: %w", NewForeignCallError("WriteProcessMemory", 0x400000, 4, cause))

	require.ErrorIs(t, err, ErrForeignCall)
	require.ErrorIs(t, err, cause)

	var fce *ForeignCallError
	require.ErrorAs(t, err, &fce)
	require.Equal(t, "WriteProcessMemory", fce.Op)
	require.Contains(t, err.Error(), "0x400000")
}

func TestUnsupportedBackend(t *testing.T) {
	var b Backend = UnsupportedBackend{}
	_, err := b.FindProcessByName("game")
	require.ErrorIs(t, err, ErrNotImplemented)
	_, err = b.Read(1, 0, 4)
	require.ErrorIs(t, err, ErrNotImplemented)
}

func TestParseAOB(t *testing.T) {
	aob, err := ParseAOB("48 8B ?? 05")
	require.NoError(t, err)
	require.Equal(t, []byte{0x48, 0x8B, 0x00, 0x05}, aob.Pattern)
	require.Equal(t, []byte{0xFF, 0xFF, 0x00, 0xFF}, aob.Mask)
	require.True(t, aob.Match([]byte{0x48, 0x8B, 0x99, 0x05}))
	require.False(t, aob.Match([]byte{0x48, 0x8C, 0x99, 0x05}))

	_, err = ParseAOB("48 XZ")
	require.Error(t, err)
}
