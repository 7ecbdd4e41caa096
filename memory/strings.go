package memory

import (
	"fmt"
	"math"
	"math/bits"

	"memlayout/layout"
	"memlayout/marker"
	"memlayout/process"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// String is a target-side string in one of the supported layouts
type String interface {
	Address() process.ProcessMemoryAddress
	Read() (string, error)
	Write(s string) error
}

// StringOption configures a string accessor
type StringOption func(*stringOptions)

type stringOptions struct {
	enc encoding.Encoding
}

// WithEncoding decodes and encodes the payload with enc instead of UTF-8.
func WithEncoding(enc encoding.Encoding) StringOption {
	return func(o *stringOptions) {
		o.enc = enc
	}
}

func buildStringOptions(opts []StringOption) stringOptions {
	o := stringOptions{enc: unicode.UTF8}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// decode is strict for UTF-8 so that garbage in an inline buffer is detected.
func (o stringOptions) decode(data []byte) (string, error) {
	if o.enc == unicode.UTF8 {
		if _, _, err := transform.Bytes(encoding.UTF8Validator, data); err != nil {
			return "", err
		}
		return string(data), nil
	}
	out, err := o.enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (o stringOptions) encode(s string) ([]byte, error) {
	if o.enc == unicode.UTF8 {
		return []byte(s), nil
	}
	return o.enc.NewEncoder().Bytes([]byte(s))
}

// StringAt returns the string accessor the target's platform uses at addr.
func StringAt(mem Memory, addr process.ProcessMemoryAddress, opts ...StringOption) (String, error) {
	if marker.StringLayoutFor(mem.Config()) == marker.InlineString {
		return NewInlineString(mem, addr, opts...)
	}
	return NewHeaderString(mem, addr, opts...)
}

// blockSize rounds n up to the next power of two, the growth step of the
// target's string allocator.
func blockSize(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}

func readSize(s Struct, name string) (int, error) {
	v, err := s.Get(name)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case uint64:
		if n > math.MaxInt {
			return 0, &AccessError{Op: "read", Name: name, Err: fmt.Errorf("%w: %d", ErrCorrupt, n)}
		}
		return int(n), nil
	case int64:
		if n < 0 {
			return 0, &AccessError{Op: "read", Name: name, Err: fmt.Errorf("%w: %d", ErrCorrupt, n)}
		}
		return int(n), nil
	}
	return 0, fmt.Errorf("%s decoded as %T", name, v)
}

// checkLength rejects a length the block it lives in cannot hold.
func checkLength(name string, length, capacity int) error {
	if length > capacity {
		return &AccessError{Op: "read", Name: name, Err: fmt.Errorf("%w: length %d exceeds capacity %d", ErrCorrupt, length, capacity)}
	}
	return nil
}

func terminated(data []byte) []byte {
	out := make([]byte, len(data)+1)
	copy(out, data)
	return out
}

// InlineString is a string whose short payloads live in a buffer inside the
// object and long ones in a heap block the buffer's pointer member refers to.
type InlineString struct {
	obj  Struct
	data Struct
	opts stringOptions
}

var _ String = (*InlineString)(nil)

func NewInlineString(mem Memory, addr process.ProcessMemoryAddress, opts ...StringOption) (*InlineString, error) {
	obj, err := StructAt(mem, addr, marker.InlineString)
	if err != nil {
		return nil, err
	}
	dv, err := obj.Field("data")
	if err != nil {
		return nil, err
	}
	data, err := dv.Struct()
	if err != nil {
		return nil, err
	}
	return &InlineString{obj: obj, data: data, opts: buildStringOptions(opts)}, nil
}

func (s *InlineString) Address() process.ProcessMemoryAddress {
	return s.obj.Address()
}

func (s *InlineString) heap() (Pointer, error) {
	v, err := s.data.Field("ptr")
	if err != nil {
		return Pointer{}, err
	}
	return v.Pointer()
}

// Read decodes the inline buffer while capacity is below the buffer size,
// falling back to the heap block if that fails.
func (s *InlineString) Read() (string, error) {
	length, err := readSize(s.obj, "length")
	if err != nil {
		return "", err
	}
	capacity, err := readSize(s.obj, "capacity")
	if err != nil {
		return "", err
	}
	if err := checkLength("inline_string", length, capacity); err != nil {
		return "", err
	}

	if capacity < marker.InlineBufferSize && length < marker.InlineBufferSize {
		buf, err := s.data.Field("buf")
		if err != nil {
			return "", err
		}
		raw, err := buf.Bytes()
		if err != nil {
			return "", err
		}
		if str, err := s.opts.decode(raw[:length]); err == nil {
			return str, nil
		}
	}

	ptr, err := s.heap()
	if err != nil {
		return "", err
	}
	target, err := ptr.Value()
	if err != nil {
		return "", err
	}
	if target == 0 {
		return "", &AccessError{Op: "read", Name: "inline_string", Err: ErrNullPointer}
	}
	raw, err := s.obj.mem.ReadAt(target, process.ProcessMemorySize(length))
	if err != nil {
		return "", err
	}
	return s.opts.decode(raw)
}

// Write stores str with a terminator. A payload that does not fit the current
// capacity moves to a new heap block; the previous block is left to the target.
func (s *InlineString) Write(str string) error {
	payload, err := s.opts.encode(str)
	if err != nil {
		return err
	}
	capacity, err := readSize(s.obj, "capacity")
	if err != nil {
		return err
	}

	n := len(payload)
	switch {
	case capacity < marker.InlineBufferSize && n < marker.InlineBufferSize:
		buf, err := s.data.Field("buf")
		if err != nil {
			return err
		}
		if err := buf.SetBytes(terminated(payload)); err != nil {
			return err
		}
	case capacity >= marker.InlineBufferSize && n <= capacity:
		ptr, err := s.heap()
		if err != nil {
			return err
		}
		target, err := ptr.Value()
		if err != nil {
			return err
		}
		if target == 0 {
			return &AccessError{Op: "write", Name: "inline_string", Err: ErrNullPointer}
		}
		if err := s.obj.mem.WriteAt(target, terminated(payload)); err != nil {
			return err
		}
	default:
		block := blockSize(n + 1)
		target, err := s.obj.mem.AllocateAt(0, process.ProcessMemorySize(block), process.PermReadWrite)
		if err != nil {
			return fmt.Errorf("failed to grow string: %w", err)
		}
		if err := s.obj.mem.WriteAt(target, terminated(payload)); err != nil {
			return err
		}
		if err := s.data.Set("ptr", target); err != nil {
			return err
		}
		if err := s.obj.Set("capacity", uint64(block-1)); err != nil {
			return err
		}
	}
	return s.obj.Set("length", uint64(n))
}

// HeaderString is a bare pointer to characters that are preceded by a
// {capacity, length, ref_count} header.
type HeaderString struct {
	obj    Struct
	header *layout.Layout
	opts   stringOptions
}

var _ String = (*HeaderString)(nil)

func NewHeaderString(mem Memory, addr process.ProcessMemoryAddress, opts ...StringOption) (*HeaderString, error) {
	obj, err := StructAt(mem, addr, marker.HeaderString)
	if err != nil {
		return nil, err
	}
	header, err := layout.Compile(marker.StringHeader, mem.Config())
	if err != nil {
		return nil, err
	}
	return &HeaderString{obj: obj, header: header, opts: buildStringOptions(opts)}, nil
}

func (s *HeaderString) Address() process.ProcessMemoryAddress {
	return s.obj.Address()
}

// HeaderSize is the distance from the header to the first character.
func (s *HeaderString) HeaderSize() int {
	return s.header.Size()
}

// Header returns the header of the current block.
func (s *HeaderString) Header() (Struct, error) {
	chars, err := s.chars()
	if err != nil {
		return Struct{}, err
	}
	if chars == 0 {
		return Struct{}, &AccessError{Op: "header", Name: "header_string", Err: ErrNullPointer}
	}
	return New(s.obj.mem, chars.Offset(-int64(s.header.Size())), s.header).Struct()
}

func (s *HeaderString) chars() (process.ProcessMemoryAddress, error) {
	v, err := s.obj.Field("chars")
	if err != nil {
		return 0, err
	}
	p, err := v.Pointer()
	if err != nil {
		return 0, err
	}
	return p.Value()
}

func (s *HeaderString) Read() (string, error) {
	hdr, err := s.Header()
	if err != nil {
		return "", err
	}
	length, err := readSize(hdr, "length")
	if err != nil {
		return "", err
	}
	capacity, err := readSize(hdr, "capacity")
	if err != nil {
		return "", err
	}
	if err := checkLength("header_string", length, capacity); err != nil {
		return "", err
	}
	chars, err := s.chars()
	if err != nil {
		return "", err
	}
	raw, err := s.obj.mem.ReadAt(chars, process.ProcessMemorySize(length))
	if err != nil {
		return "", err
	}
	return s.opts.decode(raw)
}

// Write stores str in place when it fits the capacity. Otherwise it allocates
// a new block, copies the reference count into its header and repoints chars.
func (s *HeaderString) Write(str string) error {
	payload, err := s.opts.encode(str)
	if err != nil {
		return err
	}
	hdr, err := s.Header()
	if err != nil {
		return err
	}
	capacity, err := readSize(hdr, "capacity")
	if err != nil {
		return err
	}

	n := len(payload)
	if n <= capacity {
		if err := s.obj.mem.WriteAt(hdr.Address().Offset(int64(s.header.Size())), terminated(payload)); err != nil {
			return err
		}
		return hdr.Set("length", uint64(n))
	}

	refs, err := hdr.Get("ref_count")
	if err != nil {
		return err
	}

	hsize := s.header.Size()
	block := blockSize(hsize + n + 1)
	base, err := s.obj.mem.AllocateAt(0, process.ProcessMemorySize(block), process.PermReadWrite)
	if err != nil {
		return fmt.Errorf("failed to grow string: %w", err)
	}

	grown, err := New(s.obj.mem, base, s.header).Struct()
	if err != nil {
		return err
	}
	if err := grown.Set("capacity", uint64(block-hsize-1)); err != nil {
		return err
	}
	if err := grown.Set("length", uint64(n)); err != nil {
		return err
	}
	if err := grown.Set("ref_count", refs); err != nil {
		return err
	}

	chars := base.Offset(int64(hsize))
	if err := s.obj.mem.WriteAt(chars, terminated(payload)); err != nil {
		return err
	}
	return s.obj.Set("chars", chars)
}
