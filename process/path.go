package process

import (
	"encoding/binary"
	"fmt"
)

// ReadFunc reads exactly size bytes at addr.
type ReadFunc func(addr ProcessMemoryAddress, size ProcessMemorySize) ([]byte, error)

// ResolvePath walks a pointer path. It adds the first offset to base, then for every
// following offset loads the pointer stored at the current address and adds the offset
// to it. With no offsets base is returned unchanged.
func ResolvePath(read ReadFunc, pointerSize int, base ProcessMemoryAddress, offsets ...int64) (ProcessMemoryAddress, error) {
	if len(offsets) == 0 {
		return base, nil
	}

	current := base.Offset(offsets[0])
	for i, off := range offsets[1:] {
		ptr, err := ReadPointer(read, pointerSize, current)
		if err != nil {
			return 0, fmt.Errorf("failed to read pointer at level %d (addr %s): %w", i, current.ToString(), err)
		}
		if ptr == 0 {
			return 0, fmt.Errorf("pointer at level %d (addr %s) is null: %w", i, current.ToString(), ErrInvalidPointer)
		}
		current = ptr.Offset(off)
	}
	return current, nil
}

// ReadPointer loads a little-endian pointer of pointerSize bytes.
func ReadPointer(read ReadFunc, pointerSize int, addr ProcessMemoryAddress) (ProcessMemoryAddress, error) {
	data, err := read(addr, ProcessMemorySize(pointerSize))
	if err != nil {
		return 0, err
	}
	switch pointerSize {
	case 1:
		return ProcessMemoryAddress(data[0]), nil
	case 2:
		return ProcessMemoryAddress(binary.LittleEndian.Uint16(data)), nil
	case 4:
		return ProcessMemoryAddress(binary.LittleEndian.Uint32(data)), nil
	case 8:
		return ProcessMemoryAddress(binary.LittleEndian.Uint64(data)), nil
	}
	return 0, fmt.Errorf("unsupported pointer size %d", pointerSize)
}
