// Package marker is the declaration surface for remote C types. A marker is
// pure data describing the shape of a struct, union, pointer, array or scalar;
// nothing here computes offsets or touches a process. See package layout for
// turning markers into concrete layouts.
package marker

import (
	"fmt"
	"maps"
	"sort"
	"strings"

	"memlayout/platform"
)

// Kind enumerates the marker node types
type Kind uint8

const (
	KindScalar Kind = iota
	KindStruct
	KindUnion
	KindPointer
	KindArray
	KindFill
	KindVoid
	KindThis
)

var kindNames = [...]string{
	KindScalar:  "scalar",
	KindStruct:  "struct",
	KindUnion:   "union",
	KindPointer: "pointer",
	KindArray:   "array",
	KindFill:    "fill",
	KindVoid:    "void",
	KindThis:    "this",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Type is a marker node. The set of implementations is closed.
// Identity matters: every constructor call yields a distinct node, and the
// layout compiler memoizes per node.
type Type interface {
	Kind() Kind
	String() string
	sealed()
}

// ScalarType names a primitive from the platform registry
type ScalarType struct {
	name string
}

// Scalar declares a primitive by registry name. Unknown names are reported at compile time.
func Scalar(name string) *ScalarType {
	return &ScalarType{name: name}
}

func (s *ScalarType) Kind() Kind     { return KindScalar }
func (s *ScalarType) String() string { return s.name }
func (s *ScalarType) Name() string   { return s.name }
func (*ScalarType) sealed()          {}

var (
	I8        = Scalar(platform.NameI8)
	U8        = Scalar(platform.NameU8)
	I16       = Scalar(platform.NameI16)
	U16       = Scalar(platform.NameU16)
	I32       = Scalar(platform.NameI32)
	U32       = Scalar(platform.NameU32)
	I64       = Scalar(platform.NameI64)
	U64       = Scalar(platform.NameU64)
	F32       = Scalar(platform.NameF32)
	F64       = Scalar(platform.NameF64)
	Bool      = Scalar(platform.NameBool)
	Byte      = Scalar(platform.NameByte)
	Char      = Scalar(platform.NameChar)
	UChar     = Scalar(platform.NameUChar)
	Short     = Scalar(platform.NameShort)
	UShort    = Scalar(platform.NameUShort)
	Int       = Scalar(platform.NameInt)
	UInt      = Scalar(platform.NameUInt)
	Long      = Scalar(platform.NameLong)
	ULong     = Scalar(platform.NameULong)
	LongLong  = Scalar(platform.NameLongLong)
	ULongLong = Scalar(platform.NameULongLong)
	Float     = Scalar(platform.NameFloat)
	Double    = Scalar(platform.NameDouble)
	Size      = Scalar(platform.NameSize)
	SSize     = Scalar(platform.NameSSize)
	IntPtr    = Scalar(platform.NameIntPtr)
	UIntPtr   = Scalar(platform.NameUIntPtr)
)

var predeclared = map[string]*ScalarType{}

func init() {
	for _, s := range []*ScalarType{I8, U8, I16, U16, I32, U32, I64, U64, F32, F64, Bool, Byte, Char, UChar,
		Short, UShort, Int, UInt, Long, ULong, LongLong, ULongLong, Float, Double, Size, SSize, IntPtr, UIntPtr} {
		predeclared[s.name] = s
	}
}

// Predeclared returns the shared scalar marker for a registry name.
func Predeclared(name string) (*ScalarType, bool) {
	s, ok := predeclared[name]
	return s, ok
}

// PointerType is a pointer or reference to Elem. Mutable pointers expose writes
// through the dereferenced view.
type PointerType struct {
	elem    Type
	mutable bool
	ref     bool
	signed  bool
}

func Pointer(t Type) *PointerType          { return &PointerType{elem: t} }
func PointerSigned(t Type) *PointerType    { return &PointerType{elem: t, signed: true} }
func MutPointer(t Type) *PointerType       { return &PointerType{elem: t, mutable: true} }
func MutPointerSigned(t Type) *PointerType { return &PointerType{elem: t, mutable: true, signed: true} }
func Ref(t Type) *PointerType              { return &PointerType{elem: t, ref: true} }
func MutRef(t Type) *PointerType           { return &PointerType{elem: t, mutable: true, ref: true} }

func (p *PointerType) Kind() Kind    { return KindPointer }
func (p *PointerType) Elem() Type    { return p.elem }
func (p *PointerType) Mutable() bool { return p.mutable }
func (p *PointerType) IsRef() bool   { return p.ref }
func (p *PointerType) Signed() bool  { return p.signed }
func (*PointerType) sealed()         {}

func (p *PointerType) String() string {
	name := "ptr"
	if p.ref {
		name = "ref"
	}
	if p.mutable {
		name = "mut_" + name
	}
	if p.signed {
		name = "s" + name
	}
	return fmt.Sprintf("%s<%s>", name, typeName(p.elem))
}

// ArrayType is a run of Elem. An unsized array can be indexed but has no length.
type ArrayType struct {
	elem    Type
	length  int
	sized   bool
	mutable bool
}

func Array(t Type, n int) *ArrayType    { return &ArrayType{elem: t, length: n, sized: true} }
func MutArray(t Type, n int) *ArrayType { return &ArrayType{elem: t, length: n, sized: true, mutable: true} }
func UnsizedArray(t Type) *ArrayType    { return &ArrayType{elem: t} }
func MutUnsizedArray(t Type) *ArrayType { return &ArrayType{elem: t, mutable: true} }
func (a *ArrayType) Kind() Kind         { return KindArray }
func (a *ArrayType) Elem() Type         { return a.elem }
func (a *ArrayType) Len() (int, bool)   { return a.length, a.sized }
func (a *ArrayType) Mutable() bool      { return a.mutable }
func (*ArrayType) sealed()              {}

func (a *ArrayType) String() string {
	if !a.sized {
		return fmt.Sprintf("array<%s>", typeName(a.elem))
	}
	return fmt.Sprintf("array<%s,%d>", typeName(a.elem), a.length)
}

// Fill is a per-config byte count. A key with Bits 0 matches every width of its platform.
type Fill map[platform.Config]int

// FillType is padding whose size is known empirically per build rather than
// derived from alignment rules.
type FillType struct {
	counts Fill
}

// DynamicFill declares build-specific padding. Configs not listed get zero bytes.
func DynamicFill(counts Fill) *FillType {
	return &FillType{counts: maps.Clone(counts)}
}

func (f *FillType) Kind() Kind { return KindFill }
func (*FillType) sealed()      {}

// Count returns the byte count for cfg: an exact match first, then the platform-wide entry.
func (f *FillType) Count(cfg platform.Config) int {
	if n, ok := f.counts[cfg]; ok {
		return n
	}
	if n, ok := f.counts[platform.Config{Platform: cfg.Platform}]; ok {
		return n
	}
	return 0
}

func (f *FillType) String() string {
	parts := make([]string, 0, len(f.counts))
	for cfg, n := range f.counts {
		parts = append(parts, fmt.Sprintf("%s:%d", cfg, n))
	}
	sort.Strings(parts)
	return "fill{" + strings.Join(parts, ",") + "}"
}

// VoidType is the zero-size type behind void pointers
type VoidType struct{}

var void = &VoidType{}

func Void() *VoidType { return void }

func (*VoidType) Kind() Kind     { return KindVoid }
func (*VoidType) String() string { return "void" }
func (*VoidType) sealed()        {}

// ThisType refers to the struct it is declared in. It is bound by StructBuilder.Build
// and is only meaningful behind a pointer or reference.
type ThisType struct {
	target *StructType
}

// This returns a fresh self-reference placeholder.
func This() *ThisType { return &ThisType{} }

func (t *ThisType) Kind() Kind { return KindThis }
func (*ThisType) sealed()      {}

// Target returns the bound struct, or nil before binding.
func (t *ThisType) Target() *StructType { return t.target }

func (t *ThisType) String() string {
	if t.target == nil {
		return "this"
	}
	return "this(" + t.target.name + ")"
}

// typeName avoids expanding struct bodies when printing composite markers
func typeName(t Type) string {
	if s, ok := t.(*StructType); ok {
		return s.name
	}
	if t == nil {
		return "<nil>"
	}
	return t.String()
}
