package layout

import (
	"encoding/binary"
	"fmt"
	"math"

	"memlayout/marker"
	"memlayout/platform"
)

// RawField is a member before offsets are assigned
type RawField struct {
	Name      string
	Type      *Layout
	Mutable   bool
	Synthetic bool
}

// MaxSize bounds every compiled size and offset. Keeping sizes at or below
// half of MaxInt lets a sum of two of them be checked without overflowing.
const MaxSize = math.MaxInt >> 1

// advance returns offset+size, failing once the result passes MaxSize.
func advance(offset, size int) (int, error) {
	if size > MaxSize || offset > MaxSize-size {
		return 0, fmt.Errorf("%w: layout exceeds %d bytes", ErrInvalidLength, MaxSize)
	}
	return offset + size, nil
}

func alignUp(n, align int) int {
	if align <= 1 {
		return n
	}
	return (n + align - 1) / align * align
}

// Pad assigns natural-alignment offsets to raw, inserting __pad_N byte arrays
// wherever a field would be misaligned and at the tail so that the total size
// is a multiple of the largest member alignment. It returns the fields, the
// total size and the alignment. A layout growing past MaxSize fails with
// ErrInvalidLength.
func Pad(cfg platform.Config, raw []RawField) ([]*Field, int, int, error) {
	fields := make([]*Field, 0, len(raw))
	offset, align, pads := 0, 1, 0

	pad := func(n int) {
		fields = append(fields, &Field{
			name:      fmt.Sprintf("__pad_%d", pads),
			typ:       padding(cfg, n),
			offset:    offset,
			synthetic: true,
		})
		offset += n
		pads++
	}

	for _, r := range raw {
		a := max(r.Type.align, 1)
		if aligned := alignUp(offset, a); aligned != offset {
			pad(aligned - offset)
		}
		fields = append(fields, &Field{
			name:      r.Name,
			typ:       r.Type,
			offset:    offset,
			mutable:   r.Mutable,
			synthetic: r.Synthetic,
		})
		next, err := advance(offset, r.Type.size)
		if err != nil {
			return nil, 0, 0, fmt.Errorf("field %s: %w", r.Name, err)
		}
		offset = next
		align = max(align, a)
	}

	if aligned := alignUp(offset, align); aligned != offset {
		if aligned > MaxSize {
			return nil, 0, 0, fmt.Errorf("%w: layout exceeds %d bytes", ErrInvalidLength, MaxSize)
		}
		pad(aligned - offset)
	}
	return fields, offset, align, nil
}

// sequential lays raw out back to back with no padding.
func sequential(raw []RawField) ([]*Field, int, error) {
	fields := make([]*Field, 0, len(raw))
	offset := 0
	for _, r := range raw {
		fields = append(fields, &Field{
			name:      r.Name,
			typ:       r.Type,
			offset:    offset,
			mutable:   r.Mutable,
			synthetic: r.Synthetic,
		})
		next, err := advance(offset, r.Type.size)
		if err != nil {
			return nil, 0, fmt.Errorf("field %s: %w", r.Name, err)
		}
		offset = next
	}
	return fields, offset, nil
}

var byteCodec = platform.Codec{
	Name:      platform.NameU8,
	Size:      1,
	Alignment: 1,
	Kind:      platform.KindUint,
	Order:     binary.LittleEndian,
}

// padding is a byte array layout not bound to any marker.
func padding(cfg platform.Config, n int) *Layout {
	return &Layout{
		kind:   marker.KindArray,
		name:   fmt.Sprintf("array<u8,%d>", n),
		size:   n,
		align:  1,
		config: cfg,
		elem: &Layout{
			kind:   marker.KindScalar,
			name:   platform.NameU8,
			size:   1,
			align:  1,
			config: cfg,
			codec:  byteCodec,
		},
		length: n,
		sized:  true,
	}
}
