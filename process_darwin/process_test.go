//go:build darwin && cgo

package process_darwin

import (
	"os"
	"strconv"
	"testing"

	"memlayout/process"

	"github.com/stretchr/testify/require"
)

func TestBitsOfSelf(t *testing.T) {
	bits, err := New().Bits(0, process.ProcessID(os.Getpid()))
	require.NoError(t, err)
	require.Equal(t, strconv.IntSize, bits)
}

func TestLookupFailure(t *testing.T) {
	_, err := New().FindProcessByName("nonexistent-process-xyz")
	require.ErrorIs(t, err, process.ErrProcessNotFound)
}

func TestUnsupportedOperations(t *testing.T) {
	b := New()

	_, err := b.FindProcessByTitle("anything")
	require.ErrorIs(t, err, process.ErrNotImplemented)

	_, err = b.BaseAddressByName(process.ProcessID(os.Getpid()), "")
	require.ErrorIs(t, err, process.ErrNotImplemented)

	_, err = b.InjectLibrary(1, "/tmp/lib.dylib")
	require.ErrorIs(t, err, process.ErrNotImplemented)
}
