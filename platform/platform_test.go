package platform

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfigString(t *testing.T) {
	require.Equal(t, "windows_x64", WindowsX64.String())
	require.Equal(t, "linux", Config{Platform: Linux}.String())

	for _, cfg := range []Config{WindowsX32, WindowsX64, DarwinX64, LinuxX32, LinuxX64, AndroidX32, AndroidX64, IOSX64} {
		parsed, err := ParseConfig(cfg.String())
		require.NoError(t, err)
		require.Equal(t, cfg, parsed)
	}
}

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig("macos_x64")
	require.NoError(t, err)
	require.Equal(t, DarwinX64, cfg)

	cfg, err = ParseConfig("windows")
	require.NoError(t, err)
	require.False(t, cfg.Resolved())
	require.Equal(t, WindowsX32, cfg.WithBits(32))

	_, err = ParseConfig("linux_x48")
	require.Error(t, err)
	_, err = ParseConfig("beos_x32")
	require.Error(t, err)
}

func TestConfigIsComparableKey(t *testing.T) {
	seen := map[Config]int{WindowsX64: 1}
	seen[Config{Platform: Windows, Bits: 64}]++
	require.Equal(t, 2, seen[WindowsX64])
}

func TestRegistryABIQuirks(t *testing.T) {
	cases := []struct {
		cfg       Config
		name      string
		size      int
		alignment int
	}{
		{WindowsX64, NameLong, 4, 4},
		{WindowsX32, NameLong, 4, 4},
		{LinuxX64, NameLong, 8, 8},
		{LinuxX32, NameLong, 4, 4},
		{DarwinX64, NameULong, 8, 8},
		{WindowsX64, NameSize, 8, 8},
		{WindowsX32, NameSize, 4, 4},
		{LinuxX32, NameI64, 8, 4},
		{LinuxX32, NameDouble, 8, 4},
		{WindowsX32, NameDouble, 8, 8},
		{AndroidX32, NameI64, 8, 8},
		{AndroidX32, NameDouble, 8, 8},
		{AndroidX32, NameLong, 4, 4},
		{LinuxX64, NameLongLong, 8, 8},
		{LinuxX64, NameBool, 1, 1},
		{LinuxX64, NameF32, 4, 4},
		{Config{Platform: Linux, Bits: 16}, NameInt, 2, 2},
	}
	for _, tc := range cases {
		t.Run(tc.cfg.String()+"/"+tc.name, func(t *testing.T) {
			r, err := RegistryFor(tc.cfg)
			require.NoError(t, err)
			c, ok := r.Lookup(tc.name)
			require.True(t, ok)
			require.Equal(t, tc.size, c.Size)
			require.Equal(t, tc.alignment, c.Alignment)
		})
	}
}

func TestRegistryRequiresResolvedConfig(t *testing.T) {
	_, err := RegistryFor(Config{Platform: Windows})
	require.Error(t, err)
}

func TestRegistryIsShared(t *testing.T) {
	a, err := RegistryFor(LinuxX64)
	require.NoError(t, err)
	b, err := RegistryFor(LinuxX64)
	require.NoError(t, err)
	require.Same(t, a, b)
	require.Contains(t, a.Names(), NameUIntPtr)
}

func TestPointerCodec(t *testing.T) {
	c, err := PointerCodec(WindowsX32, true)
	require.NoError(t, err)
	require.Equal(t, 4, c.Size)
	require.Equal(t, KindInt, c.Kind)

	v, err := c.Decode([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	require.NoError(t, err)
	require.Equal(t, int64(-1), v)
}

func TestCodecRoundTrip(t *testing.T) {
	r, err := RegistryFor(LinuxX64)
	require.NoError(t, err)

	cases := []struct {
		name string
		in   any
		out  any
	}{
		{NameI8, -5, int64(-5)},
		{NameU16, 0xBEEF, uint64(0xBEEF)},
		{NameI32, int32(-100000), int64(-100000)},
		{NameU64, uint64(1 << 63), uint64(1 << 63)},
		{NameF32, 1.5, float64(1.5)},
		{NameF64, -2.25, float64(-2.25)},
		{NameBool, true, true},
		{NameU8, 0x1FF, uint64(0xFF)},
	}
	for _, tc := range cases {
		c, _ := r.Lookup(tc.name)
		raw, err := c.Encode(tc.in)
		require.NoError(t, err, tc.name)
		require.Len(t, raw, c.Size)
		v, err := c.Decode(raw)
		require.NoError(t, err, tc.name)
		require.Equal(t, tc.out, v, tc.name)
	}

	c, _ := r.Lookup(NameI32)
	_, err = c.Encode("nope")
	require.Error(t, err)
	_, err = c.Decode([]byte{1, 2})
	require.Error(t, err)
}
