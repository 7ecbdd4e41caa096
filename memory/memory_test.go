package memory

import (
	"encoding/binary"
	"testing"

	"memlayout/layout"
	"memlayout/marker"
	"memlayout/platform"
	"memlayout/process"
	"memlayout/process_blob"
	"memlayout/state"

	"github.com/stretchr/testify/require"
)

const heapBase process.ProcessMemoryAddress = 0x1000

func newMemory(t *testing.T, cfg platform.Config) (*state.State, *process_blob.Process) {
	t.Helper()
	b := process_blob.New(cfg.Platform)
	p := b.AddProcess(&process_blob.Process{PID: 1, Name: "target", Bits: cfg.Bits})
	p.MustMap(heapBase, make([]byte, 0x1000), process.PermReadWrite, "")

	s := state.New(b, state.Options{ProcessName: "target", Config: cfg})
	require.NoError(t, s.Load())
	return s, p
}

func put32(p *process_blob.Process, addr process.ProcessMemoryAddress, v uint32) {
	r, _ := p.Region(addr)
	binary.LittleEndian.PutUint32(r.Data[addr-r.Address:], v)
}

func put64(p *process_blob.Process, addr process.ProcessMemoryAddress, v uint64) {
	r, _ := p.Region(addr)
	binary.LittleEndian.PutUint64(r.Data[addr-r.Address:], v)
}

var player = marker.NewStruct("player").
	Field("id", marker.U32).
	MutField("hp", marker.I32).
	Field("pos", marker.MutArray(marker.F32, 3)).
	Field("tags", marker.Array(marker.U8, 4)).
	MutField("target", marker.MutPointer(marker.This())).
	Field("owner", marker.Pointer(marker.This())).
	Derive("alive", func(r marker.FieldReader) (any, error) {
		hp, err := r.Get("hp")
		if err != nil {
			return nil, err
		}
		return hp.(int64) > 0, nil
	}).
	Build()

func TestStructFields(t *testing.T) {
	mem, p := newMemory(t, platform.LinuxX64)
	put32(p, heapBase, 7)
	put32(p, heapBase+4, 100)

	s, err := StructAt(mem, heapBase, player)
	require.NoError(t, err)

	id, err := s.Get("id")
	require.NoError(t, err)
	require.Equal(t, uint64(7), id)

	require.NoError(t, s.Set("hp", -3))
	hp, err := s.Get("hp")
	require.NoError(t, err)
	require.Equal(t, int64(-3), hp)

	alive, err := s.Derived("alive")
	require.NoError(t, err)
	require.Equal(t, false, alive)

	err = s.Set("id", 9)
	require.ErrorIs(t, err, ErrImmutable)

	_, err = s.Get("missing")
	require.ErrorIs(t, err, ErrNoField)

	require.Equal(t, []string{"id", "hp", "pos", "tags", "target", "owner"}, s.Names())
}

func TestStructReadsAreLive(t *testing.T) {
	mem, p := newMemory(t, platform.LinuxX64)
	s, err := StructAt(mem, heapBase, player)
	require.NoError(t, err)

	put32(p, heapBase, 1)
	id, _ := s.Get("id")
	require.Equal(t, uint64(1), id)

	put32(p, heapBase, 2)
	id, _ = s.Get("id")
	require.Equal(t, uint64(2), id)
}

func TestArrayIndexing(t *testing.T) {
	mem, _ := newMemory(t, platform.LinuxX64)
	s, err := StructAt(mem, heapBase, player)
	require.NoError(t, err)

	v, err := s.Field("pos")
	require.NoError(t, err)
	pos, err := v.Array()
	require.NoError(t, err)

	n, err := pos.Len()
	require.NoError(t, err)
	require.Equal(t, 3, n)

	for i := range n {
		elem, err := pos.At(i)
		require.NoError(t, err)
		require.Equal(t, v.Address()+process.ProcessMemoryAddress(i*4), elem.Address())
	}

	_, err = pos.At(3)
	require.ErrorIs(t, err, ErrOutOfBounds)
	_, err = pos.At(-1)
	require.ErrorIs(t, err, ErrNegativeIndex)

	require.NoError(t, pos.Set(1, 1.5))
	f, err := pos.Get(1)
	require.NoError(t, err)
	require.Equal(t, 1.5, f)

	tv, err := s.Field("tags")
	require.NoError(t, err)
	tags, err := tv.Array()
	require.NoError(t, err)
	require.ErrorIs(t, tags.Set(0, 1), ErrImmutable)

	var seen []int
	require.NoError(t, pos.Each(func(i int, _ View) error {
		seen = append(seen, i)
		return nil
	}))
	require.Equal(t, []int{0, 1, 2}, seen)
}

func TestUnsizedArray(t *testing.T) {
	mem, _ := newMemory(t, platform.LinuxX64)
	v, err := At(mem, heapBase, marker.UnsizedArray(marker.U32))
	require.NoError(t, err)
	arr, err := v.Array()
	require.NoError(t, err)

	_, err = arr.Len()
	require.ErrorIs(t, err, ErrSizeUnknown)
	require.ErrorIs(t, arr.Each(func(int, View) error { return nil }), ErrSizeUnknown)

	_, err = arr.Get(0)
	require.NoError(t, err)

	elem, err := arr.At(100)
	require.NoError(t, err)
	require.Equal(t, heapBase+400, elem.Address())

	_, err = arr.Slice(0, Omit, Omit)
	require.ErrorIs(t, err, ErrSizeUnknown)
	_, err = arr.Slice(-3, 5, Omit)
	require.ErrorIs(t, err, ErrSizeUnknown)
	_, err = arr.Slice(Omit, 2, -1)
	require.ErrorIs(t, err, ErrSizeUnknown)

	views, err := arr.Slice(2, 5, Omit)
	require.NoError(t, err)
	require.Len(t, views, 3)
	require.Equal(t, heapBase+8, views[0].Address())
}

func TestSliceResolution(t *testing.T) {
	mem, _ := newMemory(t, platform.LinuxX64)
	v, err := At(mem, heapBase, marker.Array(marker.U8, 5))
	require.NoError(t, err)
	arr, _ := v.Array()

	cases := []struct {
		name              string
		start, stop, step int
		want              []int
	}{
		{"all", Omit, Omit, Omit, []int{0, 1, 2, 3, 4}},
		{"stride", 1, Omit, 2, []int{1, 3}},
		{"reverse", Omit, Omit, -1, []int{4, 3, 2, 1, 0}},
		{"negative start", -2, Omit, Omit, []int{3, 4}},
		{"clamped", 3, 100, 1, []int{3, 4}},
		{"empty", 10, 20, 1, nil},
		{"reverse bounded", 3, 0, -2, []int{3, 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			views, err := arr.Slice(tc.start, tc.stop, tc.step)
			require.NoError(t, err)
			var got []int
			for _, v := range views {
				got = append(got, int(v.Address()-heapBase))
			}
			require.Equal(t, tc.want, got)
		})
	}

	_, err = arr.Slice(0, 5, 0)
	require.ErrorIs(t, err, ErrInvalidSlice)
}

func TestPointerOffsetMatchesFollow(t *testing.T) {
	mem, p := newMemory(t, platform.LinuxX64)
	put64(p, heapBase+0x10, uint64(heapBase+0x200))
	put64(p, heapBase+0x218, uint64(heapBase+0x300))
	put64(p, heapBase+0x20, uint64(heapBase+0x400))

	l, err := layout.Compile(marker.Pointer(marker.Void()), platform.LinuxX64)
	require.NoError(t, err)
	base := NewPointer(mem, heapBase, l)

	for _, pair := range [][2]int64{{0x10, 0x18}, {0x10, -0x8}, {0x20, 0}, {0x218 - 0x200 + 0x10, 4}} {
		a, b := pair[0], pair[1]

		got, err := base.Offset(a, b)
		require.NoError(t, err)

		followed, err := base.Plus(a).Follow()
		require.NoError(t, err)
		require.Equal(t, followed.Plus(b).Address(), got.Address(), "offset(%#x, %#x)", a, b)
	}

	deep, err := base.Offset(0x10, 0x18, 0x4)
	require.NoError(t, err)
	require.Equal(t, heapBase+0x304, deep.Address())

	cur := base
	cur.Add(0x10)
	cur.Sub(0x8)
	require.Equal(t, heapBase+0x8, cur.Address())
	require.Equal(t, heapBase, base.Address())
	require.Equal(t, heapBase, base.Plus(4).Minus(4).Address())
}

func TestPointerDeref(t *testing.T) {
	mem, p := newMemory(t, platform.LinuxX64)
	s, err := StructAt(mem, heapBase, player)
	require.NoError(t, err)

	tv, err := s.Field("target")
	require.NoError(t, err)
	target, err := tv.Pointer()
	require.NoError(t, err)

	_, err = target.Deref()
	require.ErrorIs(t, err, ErrNullPointer)

	require.NoError(t, s.Set("target", heapBase+0x100))
	put32(p, heapBase+0x100, 55)

	other, err := target.Deref()
	require.NoError(t, err)
	os, err := other.Struct()
	require.NoError(t, err)
	id, err := os.Get("id")
	require.NoError(t, err)
	require.Equal(t, uint64(55), id)
	require.NoError(t, os.Set("hp", 10))

	put64(p, heapBase+32, uint64(heapBase+0x100))
	ov, err := s.Field("owner")
	require.NoError(t, err)
	owner, err := ov.Pointer()
	require.NoError(t, err)
	view, err := owner.Deref()
	require.NoError(t, err)
	require.False(t, view.Mutable())
	require.ErrorIs(t, view.Set([]byte{1}), ErrImmutable)
}

func TestLinkedList(t *testing.T) {
	node := marker.NewStruct("node").
		Field("value", marker.I32).
		Field("next", marker.Pointer(marker.This())).
		Build()

	mem, p := newMemory(t, platform.WindowsX32)
	put32(p, heapBase, 1)
	put32(p, heapBase+4, uint32(heapBase+0x40))
	put32(p, heapBase+0x40, 2)
	put32(p, heapBase+0x44, uint32(heapBase+0x80))
	put32(p, heapBase+0x80, 3)

	v, err := At(mem, heapBase, node)
	require.NoError(t, err)

	var values []int64
	for {
		s, err := v.Struct()
		require.NoError(t, err)
		val, err := s.Get("value")
		require.NoError(t, err)
		values = append(values, val.(int64))

		next, err := s.Get("next")
		require.NoError(t, err)
		v, err = next.(Pointer).Deref()
		if err != nil {
			require.ErrorIs(t, err, ErrNullPointer)
			break
		}
	}
	require.Equal(t, []int64{1, 2, 3}, values)
}

func TestUnionView(t *testing.T) {
	u := marker.NewUnion("either").MutField("i", marker.U32).MutField("f", marker.F32).Build()
	mem, _ := newMemory(t, platform.LinuxX64)

	s, err := StructAt(mem, heapBase, u)
	require.NoError(t, err)
	require.NoError(t, s.Set("f", 1.0))

	i, err := s.Get("i")
	require.NoError(t, err)
	require.Equal(t, uint64(0x3f800000), i)
}

func TestWrongKind(t *testing.T) {
	mem, _ := newMemory(t, platform.LinuxX64)
	v, err := At(mem, heapBase, marker.U32)
	require.NoError(t, err)

	_, err = v.Struct()
	require.ErrorIs(t, err, ErrKind)
	_, err = v.Array()
	require.ErrorIs(t, err, ErrKind)
	_, err = v.Pointer()
	require.ErrorIs(t, err, ErrKind)
}

func TestUnloadedMemory(t *testing.T) {
	mem, _ := newMemory(t, platform.LinuxX64)
	v, err := At(mem, heapBase, marker.U32)
	require.NoError(t, err)
	require.NoError(t, mem.Unload())

	_, err = v.Value()
	require.ErrorIs(t, err, process.ErrProcessNotOpen)
}
