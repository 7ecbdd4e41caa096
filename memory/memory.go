// Package memory reads and writes compiled layouts inside a target process.
// Accessors hold an address and a layout and nothing else: every read goes
// back to the target.
package memory

import (
	"errors"
	"fmt"

	"memlayout/layout"
	"memlayout/marker"
	"memlayout/platform"
	"memlayout/process"
)

var (
	ErrNegativeIndex = errors.New("negative index")
	ErrOutOfBounds   = errors.New("index out of bounds")
	ErrSizeUnknown   = errors.New("array has no known length")
	ErrImmutable     = errors.New("not writable")
	ErrNullPointer   = errors.New("null pointer dereference")
	ErrNoField       = errors.New("no such field")
	ErrKind          = errors.New("wrong accessor kind")
	ErrInvalidSlice  = errors.New("invalid slice")
	ErrCorrupt       = errors.New("corrupt size field")
)

// AccessError reports a rejected accessor operation
type AccessError struct {
	Op    string
	Name  string
	Index int
	Err   error
}

func (e *AccessError) Error() string {
	switch {
	case e.Name != "":
		return fmt.Sprintf("%s %s: %v", e.Op, e.Name, e.Err)
	case e.Index != 0 || errors.Is(e.Err, ErrOutOfBounds) || errors.Is(e.Err, ErrNegativeIndex):
		return fmt.Sprintf("%s [%d]: %v", e.Op, e.Index, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *AccessError) Unwrap() error {
	return e.Err
}

// Memory is the target as accessors see it. *state.State implements it.
type Memory interface {
	ReadAt(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, error)
	WriteAt(addr process.ProcessMemoryAddress, data []byte) error
	AllocateAt(hint process.ProcessMemoryAddress, size process.ProcessMemorySize, perms process.Permissions) (process.ProcessMemoryAddress, error)
	FreeAt(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) error
	Config() platform.Config
}

// View is a typed location in the target
type View struct {
	mem     Memory
	addr    process.ProcessMemoryAddress
	layout  *layout.Layout
	mutable bool
}

// New returns a writable view of l at addr.
func New(mem Memory, addr process.ProcessMemoryAddress, l *layout.Layout) View {
	return View{mem: mem, addr: addr, layout: l, mutable: true}
}

// At compiles m for the memory's config and returns a writable view of it at addr.
func At(mem Memory, addr process.ProcessMemoryAddress, m marker.Type) (View, error) {
	l, err := layout.Compile(m, mem.Config())
	if err != nil {
		return View{}, err
	}
	return New(mem, addr, l), nil
}

// StructAt is At followed by Struct.
func StructAt(mem Memory, addr process.ProcessMemoryAddress, m *marker.StructType) (Struct, error) {
	v, err := At(mem, addr, m)
	if err != nil {
		return Struct{}, err
	}
	return v.Struct()
}

func (v View) Memory() Memory                        { return v.mem }
func (v View) Address() process.ProcessMemoryAddress { return v.addr }
func (v View) Layout() *layout.Layout                { return v.layout }
func (v View) Kind() marker.Kind                     { return v.layout.Kind() }
func (v View) Size() int                             { return v.layout.Size() }
func (v View) Mutable() bool                         { return v.mutable }

func (v View) String() string {
	return fmt.Sprintf("%s@%s", v.layout.Name(), v.addr.ToString())
}

// Bytes reads the raw bytes of the view.
func (v View) Bytes() ([]byte, error) {
	return v.mem.ReadAt(v.addr, process.ProcessMemorySize(v.layout.Size()))
}

// SetBytes overwrites the start of the view with data.
func (v View) SetBytes(data []byte) error {
	if !v.mutable {
		return &AccessError{Op: "write", Name: v.layout.Name(), Err: ErrImmutable}
	}
	if len(data) > v.layout.Size() && v.layout.Size() > 0 {
		return &AccessError{Op: "write", Name: v.layout.Name(), Err: fmt.Errorf("%w: %d bytes into %d", ErrOutOfBounds, len(data), v.layout.Size())}
	}
	return v.mem.WriteAt(v.addr, data)
}

// Value reads the view. Scalars decode to int64, uint64, float64 or bool;
// pointers, arrays and aggregates return their accessor.
func (v View) Value() (any, error) {
	switch v.layout.Kind() {
	case marker.KindScalar:
		data, err := v.Bytes()
		if err != nil {
			return nil, err
		}
		return v.layout.Codec().Decode(data)
	case marker.KindPointer:
		return v.Pointer()
	case marker.KindArray:
		return v.Array()
	case marker.KindStruct, marker.KindUnion:
		return v.Struct()
	}
	return nil, &AccessError{Op: "read", Name: v.layout.Name(), Err: ErrKind}
}

// Set writes val. Scalars take any Go number or bool, pointers an address or
// Pointer, and any kind accepts raw bytes.
func (v View) Set(val any) error {
	if !v.mutable {
		return &AccessError{Op: "write", Name: v.layout.Name(), Err: ErrImmutable}
	}
	if raw, ok := val.([]byte); ok {
		return v.SetBytes(raw)
	}

	switch v.layout.Kind() {
	case marker.KindScalar:
		data, err := v.layout.Codec().Encode(val)
		if err != nil {
			return err
		}
		return v.mem.WriteAt(v.addr, data)
	case marker.KindPointer:
		p, err := v.Pointer()
		if err != nil {
			return err
		}
		return p.Set(val)
	}
	return &AccessError{Op: "write", Name: v.layout.Name(), Err: fmt.Errorf("%w: cannot assign %T", ErrKind, val)}
}

func (v View) Struct() (Struct, error) {
	if !v.layout.IsAggregate() {
		return Struct{}, &AccessError{Op: "struct", Name: v.layout.Name(), Err: ErrKind}
	}
	return Struct{v}, nil
}

func (v View) Array() (Array, error) {
	if v.layout.Kind() != marker.KindArray {
		return Array{}, &AccessError{Op: "array", Name: v.layout.Name(), Err: ErrKind}
	}
	return Array{v}, nil
}

// Pointer returns a cursor positioned at the view's own address.
func (v View) Pointer() (Pointer, error) {
	if v.layout.Kind() != marker.KindPointer {
		return Pointer{}, &AccessError{Op: "pointer", Name: v.layout.Name(), Err: ErrKind}
	}
	return Pointer{mem: v.mem, addr: v.addr, layout: v.layout, mutable: v.mutable}, nil
}
