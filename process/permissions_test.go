package process

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProtectionTablesCoverEveryCombination(t *testing.T) {
	tables := []*ProtectionTable{WindowsProtection, POSIXProtection, MachProtection}
	require.Len(t, AllPermissions, 8)

	for _, table := range tables {
		t.Run(table.Name, func(t *testing.T) {
			for _, p := range AllPermissions {
				native := table.Native(p)
				back, ok := table.FromNative(native)
				require.True(t, ok, "%s: %s -> 0x%x has no reverse mapping", table.Name, p, native)
				require.True(t, back.Contains(p), "%s: %s collapsed to %s", table.Name, p, back)
			}
		})
	}
}

func TestWindowsProtectionNeverZero(t *testing.T) {
	for _, p := range AllPermissions {
		require.NotZero(t, WindowsProtection.Native(p), p.String())
	}
}

func TestWindowsProtectionValues(t *testing.T) {
	require.Equal(t, uint32(0x01), WindowsProtection.Native(PermNone))
	require.Equal(t, uint32(0x02), WindowsProtection.Native(PermRead))
	require.Equal(t, uint32(0x04), WindowsProtection.Native(PermWrite))
	require.Equal(t, uint32(0x20), WindowsProtection.Native(PermReadExec))
	require.Equal(t, uint32(0x40), WindowsProtection.Native(PermAll))

	// PAGE_GUARD is a modifier and does not change the base protection
	p, ok := WindowsProtection.FromNative(0x100 | 0x04)
	require.True(t, ok)
	require.Equal(t, PermReadWrite, p)
}

func TestPOSIXProtectionIsExact(t *testing.T) {
	for _, p := range AllPermissions {
		back, ok := POSIXProtection.FromNative(POSIXProtection.Native(p))
		require.True(t, ok)
		require.Equal(t, p, back)
	}
}

func TestParsePermissions(t *testing.T) {
	require.Equal(t, PermReadExec, ParsePermissions("r-xp"))
	require.Equal(t, PermNone, ParsePermissions("---p"))
	require.Equal(t, "rw-", PermReadWrite.String())
}
