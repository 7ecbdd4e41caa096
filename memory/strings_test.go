package memory

import (
	"testing"

	"memlayout/platform"
	"memlayout/process"
	"memlayout/process_blob"

	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
)

func TestStringAtPicksLayout(t *testing.T) {
	win, _ := newMemory(t, platform.WindowsX64)
	s, err := StringAt(win, heapBase)
	require.NoError(t, err)
	require.IsType(t, &InlineString{}, s)

	lin, _ := newMemory(t, platform.LinuxX64)
	s, err = StringAt(lin, heapBase)
	require.NoError(t, err)
	require.IsType(t, &HeaderString{}, s)
}

func TestInlineStringInline(t *testing.T) {
	mem, p := newMemory(t, platform.WindowsX64)
	put64(p, heapBase+24, 15)

	s, err := NewInlineString(mem, heapBase)
	require.NoError(t, err)

	require.NoError(t, s.Write("hello"))
	got, err := s.Read()
	require.NoError(t, err)
	require.Equal(t, "hello", got)

	raw, err := mem.ReadAt(heapBase, 6)
	require.NoError(t, err)
	require.Equal(t, []byte("hello\x00"), raw)

	length, err := mem.ReadSize(heapBase + 16)
	require.NoError(t, err)
	require.Equal(t, uint64(5), length)
}

func TestInlineStringGrowsToHeap(t *testing.T) {
	mem, p := newMemory(t, platform.WindowsX64)
	put64(p, heapBase+24, 15)

	s, err := NewInlineString(mem, heapBase)
	require.NoError(t, err)

	long := "this string does not fit inline"
	require.NoError(t, s.Write(long))

	capacity, err := mem.ReadSize(heapBase + 24)
	require.NoError(t, err)
	require.Equal(t, uint64(31), capacity)

	ptr, err := mem.ReadPointer(heapBase)
	require.NoError(t, err)
	require.Equal(t, process_blob.DefaultAllocBase, ptr)

	got, err := s.Read()
	require.NoError(t, err)
	require.Equal(t, long, got)

	require.NoError(t, s.Write("short again"))
	same, err := mem.ReadPointer(heapBase)
	require.NoError(t, err)
	require.Equal(t, ptr, same)

	got, err = s.Read()
	require.NoError(t, err)
	require.Equal(t, "short again", got)
}

func TestInlineStringDecodeFallsBackToHeap(t *testing.T) {
	mem, p := newMemory(t, platform.WindowsX64)
	const chars process.ProcessMemoryAddress = 0x2000ff
	p.MustMap(0x200000, make([]byte, 0x1000), process.PermReadWrite, "")
	require.NoError(t, mem.WriteAt(chars, []byte("abcd")))

	put64(p, heapBase, uint64(chars))
	put64(p, heapBase+16, 4)
	put64(p, heapBase+24, 15)

	s, err := NewInlineString(mem, heapBase)
	require.NoError(t, err)
	got, err := s.Read()
	require.NoError(t, err)
	require.Equal(t, "abcd", got)
}

func TestHeaderString(t *testing.T) {
	mem, p := newMemory(t, platform.LinuxX64)
	header := heapBase + 0x100
	chars := header + 24

	put64(p, header, 8)
	put64(p, header+8, 3)
	put32(p, header+16, 2)
	require.NoError(t, mem.WriteAt(chars, []byte("abc\x00")))
	put64(p, heapBase, uint64(chars))

	s, err := NewHeaderString(mem, heapBase)
	require.NoError(t, err)
	require.Equal(t, 24, s.HeaderSize())

	got, err := s.Read()
	require.NoError(t, err)
	require.Equal(t, "abc", got)

	require.NoError(t, s.Write("xyz12"))
	got, err = s.Read()
	require.NoError(t, err)
	require.Equal(t, "xyz12", got)

	ptr, err := mem.ReadPointer(heapBase)
	require.NoError(t, err)
	require.Equal(t, chars, ptr)

	long := "0123456789abcdef"
	require.NoError(t, s.Write(long))

	ptr, err = mem.ReadPointer(heapBase)
	require.NoError(t, err)
	require.Equal(t, process_blob.DefaultAllocBase+24, ptr)

	hdr, err := s.Header()
	require.NoError(t, err)
	capacity, _ := hdr.Get("capacity")
	require.Equal(t, uint64(39), capacity)
	refs, _ := hdr.Get("ref_count")
	require.Equal(t, int64(2), refs)

	oldCapacity, err := mem.ReadSize(header)
	require.NoError(t, err)
	require.Equal(t, uint64(8), oldCapacity)

	got, err = s.Read()
	require.NoError(t, err)
	require.Equal(t, long, got)
}

func TestHeaderStringNull(t *testing.T) {
	mem, _ := newMemory(t, platform.LinuxX64)
	s, err := NewHeaderString(mem, heapBase)
	require.NoError(t, err)

	_, err = s.Read()
	require.ErrorIs(t, err, ErrNullPointer)
	require.ErrorIs(t, s.Write("x"), ErrNullPointer)
}

func TestInlineStringCorruptLength(t *testing.T) {
	mem, p := newMemory(t, platform.WindowsX64)
	put64(p, heapBase+24, 15)
	s, err := NewInlineString(mem, heapBase)
	require.NoError(t, err)

	for name, length := range map[string]uint64{
		"above MaxInt":      ^uint64(0),
		"above capacity":    16,
		"huge below MaxInt": 1<<63 - 1,
	} {
		put64(p, heapBase+16, length)
		_, err := s.Read()
		require.ErrorIs(t, err, ErrCorrupt, name)

		var access *AccessError
		require.ErrorAs(t, err, &access, name)
	}

	put64(p, heapBase+16, 0)
	put64(p, heapBase+24, ^uint64(0))
	_, err = s.Read()
	require.ErrorIs(t, err, ErrCorrupt)
}

func TestHeaderStringCorruptLength(t *testing.T) {
	mem, p := newMemory(t, platform.LinuxX64)
	header := heapBase + 0x100
	chars := header + 24
	put64(p, heapBase, uint64(chars))

	s, err := NewHeaderString(mem, heapBase)
	require.NoError(t, err)

	put64(p, header, 8)
	put64(p, header+8, 1<<63-1)
	_, err = s.Read()
	require.ErrorIs(t, err, ErrCorrupt)

	put64(p, header+8, ^uint64(0))
	_, err = s.Read()
	require.ErrorIs(t, err, ErrCorrupt)

	// A consistent but enormous header still fails as an error.
	put64(p, header, 1<<62)
	put64(p, header+8, 1<<62)
	_, err = s.Read()
	require.ErrorIs(t, err, process.ErrReadTooLarge)
}

func TestStringEncoding(t *testing.T) {
	mem, p := newMemory(t, platform.WindowsX64)
	put64(p, heapBase+24, 15)

	s, err := NewInlineString(mem, heapBase, WithEncoding(charmap.Windows1252))
	require.NoError(t, err)
	require.NoError(t, s.Write("café"))

	raw, err := mem.ReadAt(heapBase, 4)
	require.NoError(t, err)
	require.Equal(t, []byte{'c', 'a', 'f', 0xe9}, raw)

	got, err := s.Read()
	require.NoError(t, err)
	require.Equal(t, "café", got)
}

func TestBlockSize(t *testing.T) {
	for n, want := range map[int]int{0: 1, 1: 1, 2: 2, 3: 4, 17: 32, 32: 32, 33: 64} {
		require.Equal(t, want, blockSize(n), "blockSize(%d)", n)
	}
}
