package layout

import (
	"errors"
	"sync"
	"testing"

	"memlayout/marker"
	"memlayout/platform"

	"github.com/stretchr/testify/require"
)

type fieldWant struct {
	name   string
	offset int
	size   int
}

func requireFields(t *testing.T, l *Layout, want []fieldWant) {
	t.Helper()
	fields := l.Fields()
	require.Len(t, fields, len(want))
	for i, w := range want {
		require.Equal(t, w.name, fields[i].Name(), "field %d", i)
		require.Equal(t, w.offset, fields[i].Offset(), "field %s offset", w.name)
		require.Equal(t, w.size, fields[i].Size(), "field %s size", w.name)
	}
}

func TestPaddingInserted(t *testing.T) {
	s := marker.NewStruct("u8_u32").Field("a", marker.U8).Field("b", marker.U32).Build()

	l, err := NewCompiler().Compile(s, platform.LinuxX64)
	require.NoError(t, err)
	require.Equal(t, 8, l.Size())
	require.Equal(t, 4, l.Alignment())
	requireFields(t, l, []fieldWant{
		{"a", 0, 1},
		{"__pad_0", 1, 3},
		{"b", 4, 4},
	})

	pad, ok := l.Field("__pad_0")
	require.True(t, ok)
	require.True(t, pad.Synthetic())
}

func TestNoPaddingWhenAligned(t *testing.T) {
	s := marker.NewStruct("u32_u32").Field("a", marker.U32).Field("b", marker.U32).Build()

	l, err := NewCompiler().Compile(s, platform.WindowsX64)
	require.NoError(t, err)
	require.Equal(t, 8, l.Size())
	requireFields(t, l, []fieldWant{{"a", 0, 4}, {"b", 4, 4}})
}

func TestTailPadding(t *testing.T) {
	s := marker.NewStruct("u64_u8").Field("a", marker.U64).Field("b", marker.U8).Build()

	l, err := NewCompiler().Compile(s, platform.LinuxX64)
	require.NoError(t, err)
	require.Equal(t, 16, l.Size())
	require.Equal(t, 8, l.Alignment())
	requireFields(t, l, []fieldWant{{"a", 0, 8}, {"b", 8, 1}, {"__pad_0", 9, 7}})
}

func TestPacked(t *testing.T) {
	s := marker.NewStruct("packed").Packed().Field("a", marker.U8).Field("b", marker.U32).Field("c", marker.U16).Build()

	l, err := NewCompiler().Compile(s, platform.LinuxX64)
	require.NoError(t, err)
	require.Equal(t, 7, l.Size())
	require.Equal(t, 1, l.Alignment())
	require.True(t, l.Packed())
	requireFields(t, l, []fieldWant{{"a", 0, 1}, {"b", 1, 4}, {"c", 5, 2}})
}

func TestPlatformQuirks(t *testing.T) {
	s := marker.NewStruct("quirks").Field("l", marker.Long).Field("p", marker.Pointer(marker.Void())).Build()
	c := NewCompiler()

	win, err := c.Compile(s, platform.WindowsX64)
	require.NoError(t, err)
	requireFields(t, win, []fieldWant{{"l", 0, 4}, {"__pad_0", 4, 4}, {"p", 8, 8}})
	require.Equal(t, 16, win.Size())

	lin, err := c.Compile(s, platform.LinuxX64)
	require.NoError(t, err)
	requireFields(t, lin, []fieldWant{{"l", 0, 8}, {"p", 8, 8}})

	wide := marker.NewStruct("wide").Field("a", marker.U8).Field("b", marker.U64).Build()

	i386, err := c.Compile(wide, platform.LinuxX32)
	require.NoError(t, err)
	require.Equal(t, 12, i386.Size())
	b, _ := i386.Field("b")
	require.Equal(t, 4, b.Offset())

	win32, err := c.Compile(wide, platform.WindowsX32)
	require.NoError(t, err)
	require.Equal(t, 16, win32.Size())
	b, _ = win32.Field("b")
	require.Equal(t, 8, b.Offset())
}

func TestMemoIdentity(t *testing.T) {
	s := marker.NewStruct("memo").Field("a", marker.I32).Build()
	c := NewCompiler()

	first, err := c.Compile(s, platform.WindowsX64)
	require.NoError(t, err)
	n := c.Len()

	second, err := c.Compile(s, platform.WindowsX64)
	require.NoError(t, err)
	require.Same(t, first, second)
	require.Equal(t, n, c.Len())

	other, err := c.Compile(s, platform.WindowsX32)
	require.NoError(t, err)
	require.NotSame(t, first, other)
	require.Equal(t, platform.WindowsX32, other.Config())
}

func TestConcurrentCompileShares(t *testing.T) {
	s := marker.NewStruct("shared").Field("a", marker.I32).Field("next", marker.Pointer(marker.This())).Build()
	c := NewCompiler()

	var wg sync.WaitGroup
	results := make([]*Layout, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = c.Compile(s, platform.LinuxX64)
		}(i)
	}
	wg.Wait()

	for _, l := range results {
		require.NotNil(t, l)
		require.Same(t, results[0], l)
	}
}

func TestFailedCompileRollsBack(t *testing.T) {
	inner := marker.NewStruct("inner").Field("x", marker.U32).Build()
	bad := marker.NewStruct("bad").
		Field("in", marker.Pointer(inner)).
		Field("oops", marker.Scalar("nope")).
		Build()
	c := NewCompiler()

	_, err := c.Compile(bad, platform.LinuxX64)
	require.ErrorIs(t, err, ErrUnknownScalar)
	require.Equal(t, 0, c.Len())

	l, err := c.Compile(inner, platform.LinuxX64)
	require.NoError(t, err)
	require.Equal(t, 4, l.Size())
}

func TestVtableInjectedOnce(t *testing.T) {
	base := marker.NewStruct("base").Vtable().Field("a", marker.I32).Build()
	derived := marker.NewStruct("derived").Extends(base).Vtable().Field("b", marker.I32).Build()

	l, err := NewCompiler().Compile(derived, platform.WindowsX64)
	require.NoError(t, err)
	requireFields(t, l, []fieldWant{{"__vtable", 0, 8}, {"a", 8, 4}, {"b", 12, 4}})
	require.Equal(t, 16, l.Size())

	vt, _ := l.Field("__vtable")
	require.True(t, vt.Synthetic())
	require.Equal(t, marker.KindPointer, vt.Type().Kind())
}

func TestDiamondInheritance(t *testing.T) {
	root := marker.NewStruct("root").Vtable().Field("r", marker.I32).Build()
	left := marker.NewStruct("left").Extends(root).Field("l", marker.I32).Build()
	right := marker.NewStruct("right").Extends(root).Vtable().Field("rt", marker.I32).Build()
	leaf := marker.NewStruct("leaf").Extends(left, right).Field("x", marker.I32).Build()

	l, err := NewCompiler().Compile(leaf, platform.LinuxX64)
	require.NoError(t, err)
	requireFields(t, l, []fieldWant{
		{"__vtable", 0, 8},
		{"r", 8, 4},
		{"l", 12, 4},
		{"rt", 16, 4},
		{"x", 20, 4},
	})
}

func TestIndependentVtableBases(t *testing.T) {
	x := marker.NewStruct("x").Vtable().Field("x", marker.I32).Build()
	y := marker.NewStruct("y").Vtable().Field("y", marker.I32).Build()
	z := marker.NewStruct("z").Extends(x, y).Build()

	l, err := NewCompiler().Compile(z, platform.LinuxX64)
	require.NoError(t, err)
	requireFields(t, l, []fieldWant{
		{"__vtable", 0, 8},
		{"x", 8, 4},
		{"__pad_0", 12, 4},
		{"__vtable_1", 16, 8},
		{"y", 24, 4},
		{"__pad_1", 28, 4},
	})
	require.Equal(t, 32, l.Size())
}

func TestOrigin(t *testing.T) {
	s := marker.NewStruct("shifted").Origin(8).Field("a", marker.U64).Field("b", marker.U32).Build()

	l, err := NewCompiler().Compile(s, platform.LinuxX64)
	require.NoError(t, err)
	require.Equal(t, 8, l.Origin())
	require.Equal(t, 16, l.Size())
	requireFields(t, l, []fieldWant{{"a", -8, 8}, {"b", 0, 4}, {"__pad_0", 4, 4}})
}

func TestOriginPacked(t *testing.T) {
	s := marker.NewStruct("shifted_packed").Packed().Origin(1).Field("a", marker.U8).Field("b", marker.U32).Build()

	l, err := NewCompiler().Compile(s, platform.LinuxX64)
	require.NoError(t, err)
	require.Equal(t, 5, l.Size())
	requireFields(t, l, []fieldWant{{"a", -1, 1}, {"b", 0, 4}})
}

func TestDynamicFill(t *testing.T) {
	fill := marker.DynamicFill(marker.Fill{
		platform.WindowsX64:                   8,
		{Platform: platform.Linux}:            2,
		{Platform: platform.Darwin, Bits: 64}: 0,
	})
	s := marker.NewStruct("filled").Field("a", marker.U8).Field("gap", fill).Field("b", marker.U8).Build()
	c := NewCompiler()

	cases := []struct {
		cfg  platform.Config
		gap  int
		size int
	}{
		{platform.WindowsX64, 8, 10},
		{platform.WindowsX32, 0, 2},
		{platform.LinuxX64, 2, 4},
		{platform.LinuxX32, 2, 4},
		{platform.DarwinX64, 0, 2},
	}
	for _, tc := range cases {
		t.Run(tc.cfg.String(), func(t *testing.T) {
			l, err := c.Compile(s, tc.cfg)
			require.NoError(t, err)
			require.Equal(t, tc.size, l.Size())
			gap, ok := l.Field("gap")
			require.True(t, ok)
			require.Equal(t, tc.gap, gap.Size())
			require.Equal(t, marker.KindArray, gap.Type().Kind())
		})
	}
}

func TestSelfReference(t *testing.T) {
	node := marker.NewStruct("node").
		Field("value", marker.I32).
		Field("next", marker.Pointer(marker.This())).
		Build()

	l, err := NewCompiler().Compile(node, platform.LinuxX64)
	require.NoError(t, err)
	require.Equal(t, 16, l.Size())

	next, ok := l.Field("next")
	require.True(t, ok)
	require.Same(t, l, next.Type().Elem())
}

func TestMutualRecursion(t *testing.T) {
	ab := marker.NewStruct("a")
	b := marker.NewStruct("b").Field("a", marker.Pointer(ab.Type())).Field("n", marker.U8).Build()
	a := ab.Field("b", marker.Pointer(b)).Build()

	l, err := NewCompiler().Compile(a, platform.WindowsX64)
	require.NoError(t, err)

	fb, _ := l.Field("b")
	bl := fb.Type().Elem()
	require.Equal(t, "b", bl.Name())
	require.Equal(t, 16, bl.Size())

	fa, _ := bl.Field("a")
	require.Same(t, l, fa.Type().Elem())
}

func TestUnsizedArrayOfSelf(t *testing.T) {
	s := marker.NewStruct("flex").
		Field("count", marker.U32).
		Field("items", marker.UnsizedArray(marker.This())).
		Build()

	l, err := NewCompiler().Compile(s, platform.LinuxX64)
	require.NoError(t, err)
	require.Equal(t, 4, l.Size())

	items, _ := l.Field("items")
	require.Equal(t, 0, items.Size())
	_, sized := items.Type().Len()
	require.False(t, sized)
	require.Same(t, l, items.Type().Elem())
}

func TestUnion(t *testing.T) {
	u := marker.NewUnion("value").
		Field("a", marker.U8).
		Field("b", marker.U32).
		Field("c", marker.Array(marker.U8, 5)).
		Build()

	l, err := NewCompiler().Compile(u, platform.LinuxX64)
	require.NoError(t, err)
	require.Equal(t, marker.KindUnion, l.Kind())
	require.Equal(t, 8, l.Size())
	require.Equal(t, 4, l.Alignment())
	for _, f := range l.Fields() {
		require.Equal(t, 0, f.Offset(), f.Name())
	}
}

func TestInlineStringLayout(t *testing.T) {
	l, err := NewCompiler().Compile(marker.InlineString, platform.WindowsX64)
	require.NoError(t, err)
	require.Equal(t, 32, l.Size())
	requireFields(t, l, []fieldWant{{"data", 0, 16}, {"length", 16, 8}, {"capacity", 24, 8}})

	hdr, err := NewCompiler().Compile(marker.StringHeader, platform.LinuxX64)
	require.NoError(t, err)
	require.Equal(t, 24, hdr.Size())
}

func TestDerivedCarried(t *testing.T) {
	noop := func(marker.FieldReader) (any, error) { return nil, nil }
	base := marker.NewStruct("base").Field("a", marker.I32).Derive("double_a", noop).Build()
	child := marker.NewStruct("child").Extends(base).Field("b", marker.I32).Derive("sum", noop).Build()

	l, err := NewCompiler().Compile(child, platform.LinuxX64)
	require.NoError(t, err)
	require.Equal(t, []string{"double_a", "sum"}, l.DerivedNames())
	_, ok := l.Derived("sum")
	require.True(t, ok)
}

func TestDeclarationErrors(t *testing.T) {
	base := marker.NewStruct("base").Field("a", marker.I32).Build()
	selfByValue := marker.NewStruct("self_value")
	selfByValue.Field("me", selfByValue.Type()).Build()
	half := marker.Array(marker.U64, MaxSize/16)

	cases := []struct {
		name string
		m    marker.Type
		cfg  platform.Config
		want error
	}{
		{"reserved", marker.NewStruct("r").Field("__x", marker.U8).Build(), platform.LinuxX64, ErrReservedName},
		{"duplicate", marker.NewStruct("d").Field("a", marker.U8).Field("a", marker.U8).Build(), platform.LinuxX64, ErrDuplicateField},
		{"duplicate across bases", marker.NewStruct("d2").Extends(base).Field("a", marker.U8).Build(), platform.LinuxX64, ErrDuplicateField},
		{"this by value", marker.NewStruct("t").Field("me", marker.This()).Build(), platform.LinuxX64, ErrSelfByValue},
		{"struct by value", selfByValue.Type(), platform.LinuxX64, ErrSelfByValue},
		{"this in sized array", marker.NewStruct("ta").Field("me", marker.Array(marker.This(), 2)).Build(), platform.LinuxX64, ErrSelfByValue},
		{"unknown scalar", marker.NewStruct("u").Field("x", marker.Scalar("quad")).Build(), platform.LinuxX64, ErrUnknownScalar},
		{"negative array", marker.Array(marker.U8, -1), platform.LinuxX64, ErrInvalidLength},
		{"array size overflow", marker.Array(marker.U64, MaxSize/8+1), platform.LinuxX64, ErrInvalidLength},
		{"struct offset overflow", marker.NewStruct("huge").Field("a", half).Field("b", half).Field("c", half).Build(), platform.LinuxX64, ErrInvalidLength},
		{"packed offset overflow", marker.NewStruct("huge_packed").Packed().Field("a", half).Field("b", half).Field("c", marker.U8).Field("d", half).Build(), platform.LinuxX64, ErrInvalidLength},
		{"oversized fill", marker.DynamicFill(marker.Fill{platform.LinuxX64: MaxSize + 1}), platform.LinuxX64, ErrInvalidLength},
		{"negative fill", marker.DynamicFill(marker.Fill{platform.LinuxX64: -4}), platform.LinuxX64, ErrInvalidLength},
		{"unresolved config", base, platform.Config{Platform: platform.Linux}, ErrUnresolvedConfig},
		{"unbound this", marker.Pointer(marker.This()), platform.LinuxX64, ErrUnboundThis},
		{"union with base", marker.NewUnion("ub").Extends(base).Field("x", marker.U8).Build(), platform.LinuxX64, ErrMalformed},
		{"union with vtable", marker.NewUnion("uv").Vtable().Field("x", marker.U8).Build(), platform.LinuxX64, ErrMalformed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewCompiler().Compile(tc.m, tc.cfg)
			require.ErrorIs(t, err, tc.want)

			var de *DeclarationError
			require.True(t, errors.As(err, &de))
		})
	}
}

func TestDeclarationErrorNamesField(t *testing.T) {
	s := marker.NewStruct("holder").Field("bad", marker.Pointer(marker.Scalar("quad"))).Build()

	_, err := NewCompiler().Compile(s, platform.LinuxX64)
	var de *DeclarationError
	require.True(t, errors.As(err, &de))
	require.Equal(t, "holder", de.Type)
	require.Equal(t, "bad", de.Field)
	require.ErrorIs(t, err, ErrUnknownScalar)
}

func TestPadFold(t *testing.T) {
	c := NewCompiler()
	u8, err := c.Compile(marker.U8, platform.LinuxX64)
	require.NoError(t, err)
	u16, err := c.Compile(marker.U16, platform.LinuxX64)
	require.NoError(t, err)

	fields, size, align, err := Pad(platform.LinuxX64, []RawField{
		{Name: "a", Type: u8},
		{Name: "b", Type: u16},
		{Name: "c", Type: u8},
	})
	require.NoError(t, err)
	require.Equal(t, 6, size)
	require.Equal(t, 2, align)
	require.Len(t, fields, 5)
	require.Equal(t, "__pad_1", fields[4].Name())

	fields, size, align, err = Pad(platform.LinuxX64, nil)
	require.NoError(t, err)
	require.Empty(t, fields)
	require.Equal(t, 0, size)
	require.Equal(t, 1, align)
}
