package memory

import (
	"fmt"

	"memlayout/layout"
	"memlayout/process"
)

// Pointer is a cursor over pointer-typed memory. Its address is where a
// pointer is stored; Value reads what is stored there.
type Pointer struct {
	mem     Memory
	addr    process.ProcessMemoryAddress
	layout  *layout.Layout
	mutable bool
}

// NewPointer returns a cursor at addr for the pointer layout l.
func NewPointer(mem Memory, addr process.ProcessMemoryAddress, l *layout.Layout) Pointer {
	return Pointer{mem: mem, addr: addr, layout: l, mutable: true}
}

func (p Pointer) Address() process.ProcessMemoryAddress { return p.addr }
func (p Pointer) Layout() *layout.Layout                { return p.layout }

// Elem is the pointee layout.
func (p Pointer) Elem() *layout.Layout {
	return p.layout.Elem()
}

// Add moves the cursor by n bytes.
func (p *Pointer) Add(n int64) {
	p.addr = p.addr.Offset(n)
}

func (p *Pointer) Sub(n int64) {
	p.addr = p.addr.Offset(-n)
}

// Plus returns a copy moved by n bytes.
func (p Pointer) Plus(n int64) Pointer {
	p.Add(n)
	return p
}

func (p Pointer) Minus(n int64) Pointer {
	p.Sub(n)
	return p
}

// Value reads the pointer stored at the cursor.
func (p Pointer) Value() (process.ProcessMemoryAddress, error) {
	codec := p.layout.Codec()
	data, err := p.mem.ReadAt(p.addr, process.ProcessMemorySize(codec.Size))
	if err != nil {
		return 0, err
	}
	v, err := codec.Decode(data)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case uint64:
		return process.ProcessMemoryAddress(n), nil
	case int64:
		return process.ProcessMemoryAddress(n), nil
	}
	return 0, fmt.Errorf("pointer codec decoded %T", v)
}

// Set stores a new pointer value at the cursor.
func (p Pointer) Set(val any) error {
	if !p.mutable {
		return &AccessError{Op: "write", Name: p.layout.Name(), Err: ErrImmutable}
	}
	var target uint64
	switch v := val.(type) {
	case Pointer:
		target = uint64(v.addr)
	case process.ProcessMemoryAddress:
		target = uint64(v)
	case uint64:
		target = v
	case uintptr:
		target = uint64(v)
	case int:
		target = uint64(v)
	case int64:
		target = uint64(v)
	default:
		return &AccessError{Op: "write", Name: p.layout.Name(), Err: fmt.Errorf("%w: cannot assign %T", ErrKind, val)}
	}
	data, err := p.layout.Codec().Encode(target)
	if err != nil {
		return err
	}
	return p.mem.WriteAt(p.addr, data)
}

// Follow moves to the stored pointer: the result's address is Value.
func (p Pointer) Follow() (Pointer, error) {
	target, err := p.Value()
	if err != nil {
		return Pointer{}, err
	}
	return Pointer{mem: p.mem, addr: target, layout: p.layout, mutable: p.mutable}, nil
}

// Offset walks a pointer path: the first delta moves the cursor and every
// following one is applied after a Follow. Offset(a, b) is Follow(Plus(a)).Plus(b).
func (p Pointer) Offset(deltas ...int64) (Pointer, error) {
	if len(deltas) == 0 {
		return p, nil
	}
	cur := p.Plus(deltas[0])
	for _, d := range deltas[1:] {
		next, err := cur.Follow()
		if err != nil {
			return Pointer{}, err
		}
		cur = next.Plus(d)
	}
	return cur, nil
}

// Deref returns the pointee. Writes through it are allowed for MutPointer and MutRef.
func (p Pointer) Deref() (View, error) {
	target, err := p.Value()
	if err != nil {
		return View{}, err
	}
	if target == 0 {
		return View{}, &AccessError{Op: "deref", Name: p.layout.Name(), Err: ErrNullPointer}
	}
	return View{mem: p.mem, addr: target, layout: p.layout.Elem(), mutable: p.layout.Mutable()}, nil
}

// Index dereferences the pointer as the start of an array of its element type.
func (p Pointer) Index(i int) (View, error) {
	if i < 0 {
		return View{}, &AccessError{Op: "index", Index: i, Err: ErrNegativeIndex}
	}
	base, err := p.Deref()
	if err != nil {
		return View{}, err
	}
	elem := base.layout
	if a, aerr := base.Array(); aerr == nil {
		return a.At(i)
	}
	base.addr = base.addr.Offset(int64(i) * int64(elem.Size()))
	return base, nil
}
