package process

import "strings"

// Permissions is the abstract {read, write, execute} protection of a memory range
type Permissions uint8

const (
	PermRead Permissions = 1 << iota
	PermWrite
	PermExecute

	PermNone      Permissions = 0
	PermReadWrite             = PermRead | PermWrite
	PermReadExec              = PermRead | PermExecute
	PermAll                   = PermRead | PermWrite | PermExecute
)

// AllPermissions lists the eight combinations in bit order.
var AllPermissions = []Permissions{
	PermNone,
	PermRead,
	PermWrite,
	PermReadWrite,
	PermExecute,
	PermReadExec,
	PermWrite | PermExecute,
	PermAll,
}

func (p Permissions) Readable() bool   { return p&PermRead != 0 }
func (p Permissions) Writable() bool   { return p&PermWrite != 0 }
func (p Permissions) Executable() bool { return p&PermExecute != 0 }

// Contains reports whether every bit of other is set in p
func (p Permissions) Contains(other Permissions) bool {
	return p&other == other
}

// String renders the permissions the way /proc/<pid>/maps does, without the sharing flag
func (p Permissions) String() string {
	b := []byte("---")
	if p.Readable() {
		b[0] = 'r'
	}
	if p.Writable() {
		b[1] = 'w'
	}
	if p.Executable() {
		b[2] = 'x'
	}
	return string(b)
}

// ParsePermissions reads a "rwx" style string. Characters other than r, w and x are ignored.
func ParsePermissions(s string) Permissions {
	var p Permissions
	if strings.ContainsRune(s, 'r') {
		p |= PermRead
	}
	if strings.ContainsRune(s, 'w') {
		p |= PermWrite
	}
	if strings.ContainsRune(s, 'x') {
		p |= PermExecute
	}
	return p
}

// ProtectionTable maps abstract permissions to one OS family's native protection
// constants and back. Combinations the OS cannot express collapse to the nearest
// protection that grants at least the requested access.
type ProtectionTable struct {
	Name       string
	toNative   [8]uint32
	fromNative map[uint32]Permissions
	mask       uint32
}

// Native returns the native protection for p
func (t *ProtectionTable) Native(p Permissions) uint32 {
	return t.toNative[p&PermAll]
}

// FromNative converts a native protection value, ignoring modifier bits outside the table's mask
func (t *ProtectionTable) FromNative(native uint32) (Permissions, bool) {
	p, ok := t.fromNative[native&t.mask]
	return p, ok
}

const (
	pageNoAccess         = 0x01
	pageReadOnly         = 0x02
	pageReadWrite        = 0x04
	pageWriteCopy        = 0x08
	pageExecute          = 0x10
	pageExecuteRead      = 0x20
	pageExecuteReadWrite = 0x40
	pageExecuteWriteCopy = 0x80
)

// WindowsProtection maps to PAGE_* constants. Windows has no write-only page, so
// write implies read.
var WindowsProtection = &ProtectionTable{
	Name: "windows",
	toNative: [8]uint32{
		PermNone:                pageNoAccess,
		PermRead:                pageReadOnly,
		PermWrite:               pageReadWrite,
		PermReadWrite:           pageReadWrite,
		PermExecute:             pageExecute,
		PermReadExec:            pageExecuteRead,
		PermWrite | PermExecute: pageExecuteReadWrite,
		PermAll:                 pageExecuteReadWrite,
	},
	fromNative: map[uint32]Permissions{
		pageNoAccess:         PermNone,
		pageReadOnly:         PermRead,
		pageReadWrite:        PermReadWrite,
		pageWriteCopy:        PermReadWrite,
		pageExecute:          PermExecute,
		pageExecuteRead:      PermReadExec,
		pageExecuteReadWrite: PermAll,
		pageExecuteWriteCopy: PermAll,
	},
	mask: 0xFF,
}

// POSIXProtection maps to PROT_READ / PROT_WRITE / PROT_EXEC, which share our bit order.
var POSIXProtection = bitwiseTable("posix")

// MachProtection maps to VM_PROT_READ / VM_PROT_WRITE / VM_PROT_EXECUTE.
var MachProtection = bitwiseTable("mach")

func bitwiseTable(name string) *ProtectionTable {
	t := &ProtectionTable{Name: name, fromNative: map[uint32]Permissions{}, mask: uint32(PermAll)}
	for _, p := range AllPermissions {
		t.toNative[p] = uint32(p)
		t.fromNative[uint32(p)] = p
	}
	return t
}
