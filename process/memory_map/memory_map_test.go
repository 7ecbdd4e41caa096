package memory_map

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleMaps = `55d0c0a00000-55d0c0a02000 r--p 00000000 08:01 131 /usr/bin/game
55d0c0a02000-55d0c0a08000 r-xp 00002000 08:01 131 /usr/bin/game
55d0c0c00000-55d0c0c21000 rw-p 00000000 00:00 0 [heap]
7f1200000000-7f1200020000 r-xp 00000000 08:01 200 /usr/lib/libc.so.6
7ffd00000000-7ffd00021000 rw-p 00000000 00:00 0
`

func TestParse(t *testing.T) {
	mm, err := Parse(strings.NewReader(sampleMaps))
	require.NoError(t, err)
	require.Len(t, mm, 5)

	require.Equal(t, uint64(0x55d0c0a00000), mm[0].Address)
	require.Equal(t, uint(0x2000), mm[0].Size)
	require.Equal(t, "/usr/bin/game", mm[0].Path)
	require.Equal(t, "[heap]", mm[2].Path)
	require.Equal(t, "", mm[4].Path)
	require.True(t, mm[1].IsExecutable())
	require.False(t, mm[1].IsWritable())
}

func TestModuleBase(t *testing.T) {
	mm, err := Parse(strings.NewReader(sampleMaps))
	require.NoError(t, err)

	base, ok := ModuleBase(mm, "game")
	require.True(t, ok)
	require.Equal(t, uint64(0x55d0c0a00000), base)

	base, ok = ModuleBase(mm, "/usr/lib/libc.so.6")
	require.True(t, ok)
	require.Equal(t, uint64(0x7f1200000000), base)

	_, ok = ModuleBase(mm, "libmissing.so")
	require.False(t, ok)
}

func TestRegionLookup(t *testing.T) {
	mm, err := Parse(strings.NewReader(sampleMaps))
	require.NoError(t, err)
	Sort(mm)

	item := GetMemoryRegionForAddress(0x55d0c0c00010, mm)
	require.NotNil(t, item)
	require.Equal(t, "[heap]", item.Path)

	require.False(t, IsValidAddress(0x1000, mm))
	require.False(t, IsValidAddress(0x55d0c0a08000, mm))
}
