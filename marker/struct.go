package marker

import (
	"strings"
)

// FieldDecl is one declared member
type FieldDecl struct {
	Name    string
	Type    Type
	Mutable bool
}

// FieldReader is what a derived property sees: the live values of its struct.
type FieldReader interface {
	Get(name string) (any, error)
}

// DeriveFunc computes a property from other fields of the same struct
type DeriveFunc func(FieldReader) (any, error)

// Derived is a named computed property carried onto the compiled layout
type Derived struct {
	Name string
	Func DeriveFunc
}

// StructType declares a struct or union. Fields keep declaration order.
type StructType struct {
	name    string
	union   bool
	fields  []FieldDecl
	bases   []*StructType
	packed  bool
	vtable  bool
	origin  int
	derived []Derived
}

func (s *StructType) Kind() Kind {
	if s.union {
		return KindUnion
	}
	return KindStruct
}

func (*StructType) sealed() {}

func (s *StructType) Name() string    { return s.name }
func (s *StructType) IsUnion() bool   { return s.union }
func (s *StructType) IsPacked() bool  { return s.packed }
func (s *StructType) HasVtable() bool { return s.vtable }
func (s *StructType) Origin() int     { return s.origin }
func (s *StructType) Bases() []*StructType {
	return append([]*StructType(nil), s.bases...)
}

// Fields returns this declaration's own fields, without inherited ones.
func (s *StructType) Fields() []FieldDecl {
	return append([]FieldDecl(nil), s.fields...)
}

// Derived returns this declaration's own computed properties.
func (s *StructType) Derived() []Derived {
	return append([]Derived(nil), s.derived...)
}

func (s *StructType) String() string {
	var sb strings.Builder
	if s.union {
		sb.WriteString("union ")
	} else {
		sb.WriteString("struct ")
	}
	sb.WriteString(s.name)
	if len(s.bases) > 0 {
		sb.WriteString(" : ")
		for i, b := range s.bases {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(b.name)
		}
	}
	sb.WriteString(" {")
	for i, f := range s.fields {
		if i > 0 {
			sb.WriteString(";")
		}
		sb.WriteString(" ")
		sb.WriteString(f.Name)
		sb.WriteString(": ")
		sb.WriteString(typeName(f.Type))
	}
	sb.WriteString(" }")
	return sb.String()
}

// StructBuilder registers fields eagerly, in the order they are declared.
type StructBuilder struct {
	s *StructType
}

// NewStruct starts a struct declaration
func NewStruct(name string) *StructBuilder {
	return &StructBuilder{s: &StructType{name: name}}
}

// NewUnion starts a union declaration; every field starts at offset 0
func NewUnion(name string) *StructBuilder {
	return &StructBuilder{s: &StructType{name: name, union: true}}
}

// Extends appends base structs. Base fields precede the struct's own fields,
// outermost base first.
func (b *StructBuilder) Extends(bases ...*StructType) *StructBuilder {
	b.s.bases = append(b.s.bases, bases...)
	return b
}

// Packed disables padding insertion
func (b *StructBuilder) Packed() *StructBuilder {
	b.s.packed = true
	return b
}

// Vtable requests a leading pointer-sized dispatch table slot unless an ancestor already has one
func (b *StructBuilder) Vtable() *StructBuilder {
	b.s.vtable = true
	return b
}

// Origin shifts every field offset down by n bytes, for layouts recovered from
// a pointer into the middle of the real object.
func (b *StructBuilder) Origin(n int) *StructBuilder {
	b.s.origin = n
	return b
}

// Field declares a read-only member
func (b *StructBuilder) Field(name string, t Type) *StructBuilder {
	b.s.fields = append(b.s.fields, FieldDecl{Name: name, Type: t})
	return b
}

// MutField declares a writable member
func (b *StructBuilder) MutField(name string, t Type) *StructBuilder {
	b.s.fields = append(b.s.fields, FieldDecl{Name: name, Type: t, Mutable: true})
	return b
}

// Derive attaches a computed property
func (b *StructBuilder) Derive(name string, fn DeriveFunc) *StructBuilder {
	b.s.derived = append(b.s.derived, Derived{Name: name, Func: fn})
	return b
}

// Type exposes the struct under construction, for mutually recursive declarations.
func (b *StructBuilder) Type() *StructType {
	return b.s
}

// Build binds every unbound This reachable through the fields' pointer and
// array types to this struct, and returns the declaration.
func (b *StructBuilder) Build() *StructType {
	for _, f := range b.s.fields {
		bindThis(f.Type, b.s)
	}
	return b.s
}

func bindThis(t Type, s *StructType) {
	switch t := t.(type) {
	case *ThisType:
		if t.target == nil {
			t.target = s
		}
	case *PointerType:
		bindThis(t.elem, s)
	case *ArrayType:
		bindThis(t.elem, s)
	}
}
