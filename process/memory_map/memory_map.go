package memory_map

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// MemoryMapItem represents a memory region in a process's address space
type MemoryMapItem struct {
	Address uint64 `json:"Address"` // The starting address of the memory region
	Size    uint   `json:"Size"`    // The size of the memory region in bytes
	Perms   string `json:"Perms"`   // Permissions (e.g., "r-xp" for read, execute, private)
	Path    string `json:"Path,omitempty"`
}

// String returns a string representation of the memory map item
func (mmItem MemoryMapItem) String() string {
	if mmItem.Path != "" {
		return fmt.Sprintf("Address: %x, Size: %d, Perms: %s, Path: %s", mmItem.Address, mmItem.Size, mmItem.Perms, mmItem.Path)
	}
	return fmt.Sprintf("Address: %x, Size: %d, Perms: %s", mmItem.Address, mmItem.Size, mmItem.Perms)
}

func (mmItem MemoryMapItem) End() uint64 {
	return mmItem.Address + uint64(mmItem.Size)
}

func (mmItem MemoryMapItem) IsReadable() bool {
	return len(mmItem.Perms) > 0 && mmItem.Perms[0] == 'r'
}

func (mmItem MemoryMapItem) IsWritable() bool {
	return len(mmItem.Perms) > 1 && mmItem.Perms[1] == 'w'
}

func (mmItem MemoryMapItem) IsExecutable() bool {
	return len(mmItem.Perms) > 2 && mmItem.Perms[2] == 'x'
}

// Parse reads the /proc/<pid>/maps text format
func Parse(r io.Reader) ([]MemoryMapItem, error) {
	var memoryMap []MemoryMapItem
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}

		// Parse address range (e.g., "00400000-0040b000")
		start, end, ok := strings.Cut(fields[0], "-")
		if !ok {
			continue
		}

		startAddr, err := strconv.ParseUint(start, 16, 64)
		if err != nil {
			continue
		}

		endAddr, err := strconv.ParseUint(end, 16, 64)
		if err != nil || endAddr < startAddr {
			continue
		}

		item := MemoryMapItem{
			Address: startAddr,
			Size:    uint(endAddr - startAddr),
			Perms:   fields[1],
		}
		// address perms offset dev inode [pathname]
		if len(fields) >= 6 {
			item.Path = strings.Join(fields[5:], " ")
		}
		memoryMap = append(memoryMap, item)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return memoryMap, nil
}

// IsValidAddress checks if an address is within a mapped region
func IsValidAddress(addr uint64, memoryMap []MemoryMapItem) bool {
	return GetMemoryRegionForAddress(addr, memoryMap) != nil
}

// GetMemoryRegionForAddress returns the memory region containing an address.
// memoryMap must be sorted by address.
func GetMemoryRegionForAddress(addr uint64, memoryMap []MemoryMapItem) *MemoryMapItem {
	i := sort.Search(len(memoryMap), func(i int) bool {
		return memoryMap[i].End() > addr
	})
	if i < len(memoryMap) && memoryMap[i].Address <= addr {
		return &memoryMap[i]
	}

	return nil
}

// Sort orders regions by start address
func Sort(memoryMap []MemoryMapItem) {
	sort.Slice(memoryMap, func(i, j int) bool {
		return memoryMap[i].Address < memoryMap[j].Address
	})
}

// ModuleBase returns the lowest mapped address whose backing file is name. name may be
// a full path or a base name.
func ModuleBase(memoryMap []MemoryMapItem, name string) (uint64, bool) {
	found := false
	var base uint64
	for _, item := range memoryMap {
		if item.Path == "" || !matchesModule(item.Path, name) {
			continue
		}
		if !found || item.Address < base {
			base = item.Address
			found = true
		}
	}
	return base, found
}

func matchesModule(path, name string) bool {
	if path == name {
		return true
	}
	return filepath.Base(path) == name
}
