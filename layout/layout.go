// Package layout compiles marker declarations into concrete byte layouts for a
// platform config. A compiled Layout is immutable and shared: compiling the
// same marker for the same config twice returns the same pointer.
package layout

import (
	"slices"

	"memlayout/marker"
	"memlayout/platform"
)

// Field is a member of a compiled struct or union
type Field struct {
	name      string
	typ       *Layout
	offset    int
	mutable   bool
	synthetic bool
}

func (f *Field) Name() string    { return f.name }
func (f *Field) Type() *Layout   { return f.typ }
func (f *Field) Offset() int     { return f.offset }
func (f *Field) Size() int       { return f.typ.size }
func (f *Field) Mutable() bool   { return f.mutable }
func (f *Field) Synthetic() bool { return f.synthetic }

// End is the offset of the first byte after the field.
func (f *Field) End() int {
	return f.offset + f.typ.size
}

// Layout is a compiled type: sizes, alignment and, for aggregates, field offsets.
type Layout struct {
	kind    marker.Kind
	name    string
	size    int
	align   int
	config  platform.Config
	marker  marker.Type
	codec   platform.Codec
	signed  bool
	mutable bool
	ref     bool

	elem   *Layout
	length int
	sized  bool

	fields []*Field
	byName map[string]*Field
	origin int
	packed bool

	derived      map[string]marker.DeriveFunc
	derivedNames []string
}

// Kind is one of scalar, struct, union, pointer, array or void. Fills compile
// to byte arrays and This compiles to its struct.
func (l *Layout) Kind() marker.Kind       { return l.kind }
func (l *Layout) Name() string            { return l.name }
func (l *Layout) String() string          { return l.name }
func (l *Layout) Size() int               { return l.size }
func (l *Layout) Alignment() int          { return l.align }
func (l *Layout) Config() platform.Config { return l.config }
func (l *Layout) Marker() marker.Type     { return l.marker }
func (l *Layout) Codec() platform.Codec   { return l.codec }
func (l *Layout) Signed() bool            { return l.signed }
func (l *Layout) Mutable() bool           { return l.mutable }
func (l *Layout) IsRef() bool             { return l.ref }
func (l *Layout) Elem() *Layout           { return l.elem }
func (l *Layout) Len() (int, bool)        { return l.length, l.sized }
func (l *Layout) Origin() int             { return l.origin }
func (l *Layout) Packed() bool            { return l.packed }

// IsAggregate reports whether the layout has fields.
func (l *Layout) IsAggregate() bool {
	return l.kind == marker.KindStruct || l.kind == marker.KindUnion
}

// Fields returns the members in offset order, synthetic vtable and padding fields included.
func (l *Layout) Fields() []*Field {
	return slices.Clone(l.fields)
}

// Field looks up a member by name.
func (l *Layout) Field(name string) (*Field, bool) {
	f, ok := l.byName[name]
	return f, ok
}

// Derived returns a computed property inherited from the declaration.
func (l *Layout) Derived(name string) (marker.DeriveFunc, bool) {
	fn, ok := l.derived[name]
	return fn, ok
}

// DerivedNames lists computed properties, base declarations first.
func (l *Layout) DerivedNames() []string {
	return slices.Clone(l.derivedNames)
}
