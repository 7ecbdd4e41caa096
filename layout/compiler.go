package layout

import (
	"fmt"
	"strings"
	"sync"

	"memlayout/marker"
	"memlayout/platform"
)

type key struct {
	m   marker.Type
	cfg platform.Config
}

// Compiler memoizes compiled layouts per (marker, config). A struct's slot is
// reserved before its fields are visited so that pointers back to it resolve
// to the same Layout.
type Compiler struct {
	mu       sync.Mutex
	slots    []*Layout
	index    map[key]int
	building map[key]bool
}

func NewCompiler() *Compiler {
	return &Compiler{
		index:    map[key]int{},
		building: map[key]bool{},
	}
}

// Default is the process-wide compiler used by Compile.
var Default = NewCompiler()

// Compile compiles m for cfg with the Default compiler.
func Compile(m marker.Type, cfg platform.Config) (*Layout, error) {
	return Default.Compile(m, cfg)
}

// MustCompile is Compile for package-level declarations known to be valid.
func MustCompile(m marker.Type, cfg platform.Config) *Layout {
	l, err := Compile(m, cfg)
	if err != nil {
		panic(err)
	}
	return l
}

// Len returns the number of memoized layouts.
func (c *Compiler) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.slots)
}

// Compile returns the layout of m for cfg. On error nothing compiled during
// the call is kept.
func (c *Compiler) Compile(m marker.Type, cfg platform.Config) (*Layout, error) {
	if m == nil {
		return nil, &DeclarationError{Type: "<nil>", Err: ErrMalformed}
	}
	if !cfg.Resolved() {
		return nil, &DeclarationError{Type: m.String(), Err: fmt.Errorf("%w: %s", ErrUnresolvedConfig, cfg)}
	}
	reg, err := platform.RegistryFor(cfg)
	if err != nil {
		return nil, &DeclarationError{Type: m.String(), Err: fmt.Errorf("%w: %v", ErrUnresolvedConfig, err)}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	mark := len(c.slots)
	v := &visitor{c: c, cfg: cfg, reg: reg}
	l, err := v.visit(m, true)
	if err != nil {
		c.rollback(mark)
		return nil, err
	}
	return l, nil
}

func (c *Compiler) reserve(k key, l *Layout) {
	c.index[k] = len(c.slots)
	c.slots = append(c.slots, l)
}

func (c *Compiler) rollback(mark int) {
	for _, l := range c.slots[mark:] {
		delete(c.index, key{m: l.marker, cfg: l.config})
	}
	clear(c.slots[mark:])
	c.slots = c.slots[:mark]
	clear(c.building)
}

// vtableSlot is shared so every injected vtable field has the same layout per config.
var vtableSlot = marker.Pointer(marker.Void())

type visitor struct {
	c   *Compiler
	cfg platform.Config
	reg *platform.Registry
}

// visit compiles t. byValue is false when t is reached through a pointer, in
// which case a struct still being compiled is returned as its reserved slot.
func (v *visitor) visit(t marker.Type, byValue bool) (*Layout, error) {
	k := key{m: t, cfg: v.cfg}
	if i, ok := v.c.index[k]; ok {
		if byValue && v.c.building[k] {
			return nil, &DeclarationError{Type: t.String(), Err: ErrSelfByValue}
		}
		return v.c.slots[i], nil
	}

	switch m := t.(type) {
	case *marker.ScalarType:
		return v.visitScalar(m)
	case *marker.PointerType:
		return v.visitPointer(m)
	case *marker.ArrayType:
		return v.visitArray(m, byValue)
	case *marker.FillType:
		return v.visitFill(m)
	case *marker.VoidType:
		l := &Layout{kind: marker.KindVoid, name: "void", align: 1, config: v.cfg, marker: m}
		v.c.reserve(k, l)
		return l, nil
	case *marker.ThisType:
		if m.Target() == nil {
			return nil, &DeclarationError{Type: m.String(), Err: ErrUnboundThis}
		}
		return v.visit(m.Target(), byValue)
	case *marker.StructType:
		if m.IsUnion() {
			return v.visitUnion(m)
		}
		return v.visitStruct(m)
	}
	return nil, &DeclarationError{Type: fmt.Sprintf("%T", t), Err: ErrMalformed}
}

func (v *visitor) visitScalar(m *marker.ScalarType) (*Layout, error) {
	codec, ok := v.reg.Lookup(m.Name())
	if !ok {
		return nil, &DeclarationError{Type: m.Name(), Err: ErrUnknownScalar}
	}
	l := &Layout{
		kind:   marker.KindScalar,
		name:   m.Name(),
		size:   codec.Size,
		align:  codec.Alignment,
		config: v.cfg,
		marker: m,
		codec:  codec,
		signed: codec.Kind == platform.KindInt,
	}
	v.c.reserve(key{m: m, cfg: v.cfg}, l)
	return l, nil
}

func (v *visitor) visitPointer(m *marker.PointerType) (*Layout, error) {
	elem, err := v.visit(m.Elem(), false)
	if err != nil {
		return nil, err
	}
	codec := v.reg.Pointer(m.Signed())
	l := &Layout{
		kind:    marker.KindPointer,
		name:    m.String(),
		size:    codec.Size,
		align:   codec.Alignment,
		config:  v.cfg,
		marker:  m,
		codec:   codec,
		signed:  m.Signed(),
		mutable: m.Mutable(),
		ref:     m.IsRef(),
		elem:    elem,
	}
	v.c.reserve(key{m: m, cfg: v.cfg}, l)
	return l, nil
}

// visitArray: an unsized array takes no room in its container, so its element
// may be a struct still being compiled.
func (v *visitor) visitArray(m *marker.ArrayType, byValue bool) (*Layout, error) {
	n, sized := m.Len()
	if sized && n < 0 {
		return nil, &DeclarationError{Type: m.String(), Err: ErrInvalidLength}
	}
	elem, err := v.visit(m.Elem(), byValue && sized)
	if err != nil {
		return nil, err
	}
	l := &Layout{
		kind:    marker.KindArray,
		name:    m.String(),
		align:   max(elem.align, 1),
		config:  v.cfg,
		marker:  m,
		mutable: m.Mutable(),
		elem:    elem,
		length:  n,
		sized:   sized,
	}
	if sized {
		if elem.size > 0 && n > MaxSize/elem.size {
			return nil, &DeclarationError{Type: m.String(), Err: fmt.Errorf("%w: %d elements of %d bytes exceed %d bytes", ErrInvalidLength, n, elem.size, MaxSize)}
		}
		l.size = n * elem.size
	}
	v.c.reserve(key{m: m, cfg: v.cfg}, l)
	return l, nil
}

func (v *visitor) visitFill(m *marker.FillType) (*Layout, error) {
	n := m.Count(v.cfg)
	if n < 0 || n > MaxSize {
		return nil, &DeclarationError{Type: m.String(), Err: ErrInvalidLength}
	}
	elem, err := v.visit(marker.U8, true)
	if err != nil {
		return nil, err
	}
	l := &Layout{
		kind:   marker.KindArray,
		name:   fmt.Sprintf("array<u8,%d>", n),
		size:   n,
		align:  1,
		config: v.cfg,
		marker: m,
		elem:   elem,
		length: n,
		sized:  true,
	}
	v.c.reserve(key{m: m, cfg: v.cfg}, l)
	return l, nil
}

func (v *visitor) begin(m *marker.StructType) (*Layout, func()) {
	k := key{m: m, cfg: v.cfg}
	l := &Layout{
		kind:   m.Kind(),
		name:   m.Name(),
		align:  1,
		config: v.cfg,
		marker: m,
		origin: m.Origin(),
		packed: m.IsPacked(),
	}
	v.c.reserve(k, l)
	v.c.building[k] = true
	return l, func() { delete(v.c.building, k) }
}

func (v *visitor) visitStruct(m *marker.StructType) (*Layout, error) {
	l, done := v.begin(m)
	defer done()

	w := &walker{v: v, seen: map[*marker.StructType]bool{}, active: map[*marker.StructType]bool{}, names: map[string]bool{}}
	if _, err := w.walk(m); err != nil {
		return nil, err
	}

	var err error
	if m.IsPacked() {
		l.fields, l.size, err = sequential(w.raw)
		l.align = 1
	} else {
		l.fields, l.size, l.align, err = Pad(v.cfg, w.raw)
	}
	if err != nil {
		return nil, &DeclarationError{Type: m.Name(), Err: err}
	}
	for _, f := range l.fields {
		f.offset -= m.Origin()
	}
	l.finish(w.derived)
	return l, nil
}

func (v *visitor) visitUnion(m *marker.StructType) (*Layout, error) {
	if len(m.Bases()) > 0 || m.HasVtable() {
		return nil, &DeclarationError{Type: m.Name(), Err: fmt.Errorf("%w: unions take no bases or vtable", ErrMalformed)}
	}
	l, done := v.begin(m)
	defer done()

	w := &walker{v: v, seen: map[*marker.StructType]bool{}, active: map[*marker.StructType]bool{}, names: map[string]bool{}}
	if _, err := w.walk(m); err != nil {
		return nil, err
	}

	size, align := 0, 1
	for _, r := range w.raw {
		l.fields = append(l.fields, &Field{name: r.Name, typ: r.Type, offset: -m.Origin(), mutable: r.Mutable})
		size = max(size, r.Type.size)
		align = max(align, r.Type.align)
	}
	if m.IsPacked() {
		align = 1
	}
	if alignUp(size, align) > MaxSize {
		return nil, &DeclarationError{Type: m.Name(), Err: fmt.Errorf("%w: layout exceeds %d bytes", ErrInvalidLength, MaxSize)}
	}
	l.size = alignUp(size, align)
	l.align = align
	l.finish(w.derived)
	return l, nil
}

func (l *Layout) finish(derived []marker.Derived) {
	l.byName = make(map[string]*Field, len(l.fields))
	for _, f := range l.fields {
		l.byName[f.name] = f
	}
	if len(derived) > 0 {
		l.derived = make(map[string]marker.DeriveFunc, len(derived))
		for _, d := range derived {
			if _, ok := l.derived[d.Name]; !ok {
				l.derivedNames = append(l.derivedNames, d.Name)
			}
			l.derived[d.Name] = d.Func
		}
	}
}

// walker flattens an inheritance graph into raw fields, outermost base first.
// A base reached through several paths contributes its fields once.
type walker struct {
	v       *visitor
	seen    map[*marker.StructType]bool
	active  map[*marker.StructType]bool
	names   map[string]bool
	raw     []RawField
	derived []marker.Derived
	vtables int
}

// walk returns whether s or any of its ancestors carries a vtable slot.
func (w *walker) walk(s *marker.StructType) (bool, error) {
	if hasVtable, ok := w.seen[s]; ok {
		return hasVtable, nil
	}
	if w.active[s] {
		return false, &DeclarationError{Type: s.Name(), Err: fmt.Errorf("%w: inherits from itself", ErrMalformed)}
	}
	w.active[s] = true
	defer delete(w.active, s)

	inherited := false
	for _, b := range s.Bases() {
		if b == nil || b.IsUnion() {
			return false, &DeclarationError{Type: s.Name(), Err: fmt.Errorf("%w: base must be a struct", ErrMalformed)}
		}
		hv, err := w.walk(b)
		if err != nil {
			return false, err
		}
		inherited = inherited || hv
	}

	if s.HasVtable() && !inherited {
		slot, err := w.v.visit(vtableSlot, true)
		if err != nil {
			return false, err
		}
		name := "__vtable"
		if w.vtables > 0 {
			name = fmt.Sprintf("__vtable_%d", w.vtables)
		}
		w.vtables++
		w.raw = append(w.raw, RawField{Name: name, Type: slot, Synthetic: true})
	}

	for _, f := range s.Fields() {
		if strings.HasPrefix(f.Name, "__") {
			return false, &DeclarationError{Type: s.Name(), Field: f.Name, Err: ErrReservedName}
		}
		if f.Name == "" || f.Type == nil {
			return false, &DeclarationError{Type: s.Name(), Field: f.Name, Err: ErrMalformed}
		}
		if w.names[f.Name] {
			return false, &DeclarationError{Type: s.Name(), Field: f.Name, Err: ErrDuplicateField}
		}
		w.names[f.Name] = true

		t, err := w.v.visit(f.Type, true)
		if err != nil {
			return false, declError(s.Name(), f.Name, err)
		}
		w.raw = append(w.raw, RawField{Name: f.Name, Type: t, Mutable: f.Mutable})
	}
	w.derived = append(w.derived, s.Derived()...)

	hasVtable := inherited || s.HasVtable()
	w.seen[s] = hasVtable
	return hasVtable, nil
}
