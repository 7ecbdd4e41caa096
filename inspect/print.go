package inspect

import (
	"fmt"
	"io"
	"strings"

	"memlayout/coloransi"
	"memlayout/layout"
	"memlayout/marker"
	"memlayout/memory"
	"memlayout/process"
)

// Layout prints the compiled shape of l: one row per field, padding dimmed.
func Layout(w io.Writer, l *layout.Layout) error {
	fmt.Fprintf(w, "=== %s (%s) ===\n", l.Name(), l.Config())
	fmt.Fprintf(w, "Size: 0x%X (%d bytes)  Align: %d\n", l.Size(), l.Size(), l.Alignment())
	if l.Origin() != 0 {
		fmt.Fprintf(w, "Origin: %d\n", l.Origin())
	}
	fmt.Fprintln(w)

	table := NewTable(
		ColumnSpec{Header: "Field", MinWidth: 8},
		ColumnSpec{Header: "Offset", MinWidth: 8},
		ColumnSpec{Header: "Size", MinWidth: 4},
		ColumnSpec{Header: "Align", MinWidth: 5},
		ColumnSpec{Header: "Type", MinWidth: 6},
		ColumnSpec{Header: "Tags", MinWidth: 4},
	)

	if !l.IsAggregate() {
		table.AddRow(l.Name(), offset(0), fmt.Sprint(l.Size()), fmt.Sprint(l.Alignment()), l.Kind().String(), tags(l, nil))
		return table.Render(w)
	}

	for _, f := range l.Fields() {
		cells := []string{
			f.Name(),
			offset(f.Offset()),
			fmt.Sprint(f.Size()),
			fmt.Sprint(f.Type().Alignment()),
			f.Type().Name(),
			tags(f.Type(), f),
		}
		if f.Synthetic() {
			for i := range cells {
				cells[i] = coloransi.Foreground(coloransi.BrightBlack, cells[i])
			}
		}
		table.AddRow(cells...)
	}
	for _, name := range l.DerivedNames() {
		table.AddRow(name, "=", "", "", "derived", "")
	}
	return table.Render(w)
}

func offset(n int) string {
	if n < 0 {
		return fmt.Sprintf("-0x%04X", -n)
	}
	return fmt.Sprintf("0x%04X", n)
}

func tags(l *layout.Layout, f *layout.Field) string {
	var out []string
	if f != nil && f.Mutable() {
		out = append(out, "mut")
	}
	if f != nil && f.Synthetic() {
		out = append(out, "synthetic")
	}
	if l.Packed() {
		out = append(out, "packed")
	}
	if l.IsRef() {
		out = append(out, "ref")
	}
	if l.Kind() == marker.KindPointer && l.Signed() {
		out = append(out, "signed")
	}
	if n, sized := l.Len(); l.Kind() == marker.KindArray && !sized {
		out = append(out, "unsized")
	} else if l.Kind() == marker.KindArray && n == 0 {
		out = append(out, "empty")
	}
	return strings.Join(out, ",")
}

// Option configures Struct
type Option func(*printer)

type printer struct {
	valid       func(process.ProcessMemoryAddress) bool
	maxElements int
	synthetic   bool
}

// WithPointerCheck marks pointer values as valid or not in the AsPtr column.
func WithPointerCheck(valid func(process.ProcessMemoryAddress) bool) Option {
	return func(p *printer) { p.valid = valid }
}

// WithMaxElements limits the expanded rows per array, default 16.
func WithMaxElements(n int) Option {
	return func(p *printer) { p.maxElements = n }
}

// WithSynthetic includes vtable and padding fields.
func WithSynthetic() Option {
	return func(p *printer) { p.synthetic = true }
}

// Struct prints the live values of s, reading every field from the target.
// Read errors are shown in place instead of aborting the table.
func Struct(w io.Writer, s memory.Struct, opts ...Option) error {
	p := &printer{maxElements: 16}
	for _, opt := range opts {
		opt(p)
	}

	l := s.Layout()
	fmt.Fprintf(w, "=== %s @ %s ===\n", l.Name(), s.Address().ToString())
	fmt.Fprintf(w, "Size: 0x%X (%d bytes)\n\n", l.Size(), l.Size())

	table := NewTable(
		ColumnSpec{Header: "Field", MinWidth: 8},
		ColumnSpec{Header: "Offset", MinWidth: 8},
		ColumnSpec{
			Header:   "Value",
			MinWidth: 6,
			FormatFunc: func(s string) string {
				switch {
				case s == "0 (0x0)" || s == "0x0":
					return coloransi.Foreground(coloransi.ColorDimGray, s)
				case strings.HasPrefix(s, "<"):
					return coloransi.Foreground(coloransi.BrightRed, s)
				}
				return coloransi.Foreground(coloransi.ColorLimeGreen, s)
			},
		},
		ColumnSpec{
			Header:   "AsPtr",
			MinWidth: 6,
			FormatFunc: func(s string) string {
				if strings.Contains(s, "✓") {
					return coloransi.Foreground(coloransi.ColorLimeGreen, s)
				}
				if strings.Contains(s, "×") {
					return coloransi.Foreground(coloransi.BrightRed, s)
				}
				return s
			},
		},
		ColumnSpec{Header: "Type", MinWidth: 6},
	)

	for _, f := range l.Fields() {
		if f.Synthetic() && !p.synthetic {
			continue
		}
		v, err := s.Field(f.Name())
		if err != nil {
			table.AddRow(f.Name(), offset(f.Offset()), errCell(err), "", f.Type().Name())
			continue
		}
		value, asPtr := p.format(v)
		table.AddRow(f.Name(), offset(f.Offset()), value, asPtr, f.Type().Name())
		p.expand(table, f.Name(), v)
	}

	for _, name := range l.DerivedNames() {
		val, err := s.Derived(name)
		cell := fmt.Sprint(val)
		if err != nil {
			cell = errCell(err)
		}
		table.AddRow(name, "=", cell, "", "derived")
	}
	return table.Render(w)
}

func errCell(err error) string {
	return "<" + err.Error() + ">"
}

func (p *printer) pointerCell(addr process.ProcessMemoryAddress) string {
	if addr == 0 || p.valid == nil {
		return ""
	}
	if p.valid(addr) {
		return fmt.Sprintf("0x%X ✓", uint64(addr))
	}
	return fmt.Sprintf("0x%X ×", uint64(addr))
}

// format renders one view as a Value cell and an AsPtr cell.
func (p *printer) format(v memory.View) (string, string) {
	l := v.Layout()
	switch l.Kind() {
	case marker.KindScalar:
		val, err := v.Value()
		if err != nil {
			return errCell(err), ""
		}
		return scalar(val), ""

	case marker.KindPointer:
		ptr, err := v.Pointer()
		if err != nil {
			return errCell(err), ""
		}
		addr, err := ptr.Value()
		if err != nil {
			return errCell(err), ""
		}
		return fmt.Sprintf("0x%X", uint64(addr)), p.pointerCell(addr)

	case marker.KindArray:
		a, err := v.Array()
		if err != nil {
			return errCell(err), ""
		}
		return p.arraySummary(a), ""

	case marker.KindStruct, marker.KindUnion:
		var (
			str memory.String
			err error
		)
		switch l.Marker() {
		case marker.InlineString:
			str, err = memory.NewInlineString(v.Memory(), v.Address())
		case marker.HeaderString:
			str, err = memory.NewHeaderString(v.Memory(), v.Address())
		default:
			return "{" + l.Name() + "}", ""
		}
		if err != nil {
			return errCell(err), ""
		}
		text, err := str.Read()
		if err != nil {
			return errCell(err), ""
		}
		return fmt.Sprintf("%q", text), ""
	}
	return "", ""
}

func scalar(val any) string {
	switch n := val.(type) {
	case int64:
		if n < 0 {
			return fmt.Sprintf("%d", n)
		}
		return fmt.Sprintf("%d (0x%X)", n, n)
	case uint64:
		return fmt.Sprintf("%d (0x%X)", n, n)
	case float64:
		return fmt.Sprintf("%g", n)
	}
	return fmt.Sprint(val)
}

func isChar(l *layout.Layout) bool {
	switch l.Name() {
	case "char", "uchar", "byte", "i8", "u8":
		return true
	}
	return false
}

func (p *printer) arraySummary(a memory.Array) string {
	elem := a.Layout().Elem()
	n, err := a.Len()
	if err != nil {
		return fmt.Sprintf("[?]%s", elem.Name())
	}

	if isChar(elem) && n > 0 {
		raw, err := a.Bytes()
		if err != nil {
			return errCell(err)
		}
		if i := strings.IndexByte(string(raw), 0); i >= 0 {
			raw = raw[:i]
		}
		if len(raw) > 0 {
			return fmt.Sprintf("%q", raw)
		}
		return fmt.Sprintf("[%d]%s{...}", n, elem.Name())
	}

	if elem.Kind() != marker.KindScalar && elem.Kind() != marker.KindPointer {
		return fmt.Sprintf("[%d]%s", n, elem.Name())
	}

	shown := min(n, 3)
	parts := make([]string, 0, shown)
	for i := 0; i < shown; i++ {
		ev, err := a.At(i)
		if err != nil {
			return errCell(err)
		}
		s, _ := p.format(ev)
		parts = append(parts, strings.SplitN(s, " ", 2)[0])
	}
	more := ""
	if n > shown {
		more = "..."
	}
	return fmt.Sprintf("[%d]%s{%s%s}", n, elem.Name(), strings.Join(parts, ","), more)
}

// expand adds one row per element of a sized, non-character array.
func (p *printer) expand(table *Table, name string, v memory.View) {
	a, err := v.Array()
	if err != nil || isChar(a.Layout().Elem()) {
		return
	}
	n, err := a.Len()
	if err != nil || n <= 1 {
		return
	}
	size := a.Layout().Elem().Size()
	for i := 0; i < min(n, p.maxElements); i++ {
		ev, err := a.At(i)
		if err != nil {
			table.AddRow(fmt.Sprintf("  %s[%d]", name, i), fmt.Sprintf("+%d", i*size), errCell(err))
			continue
		}
		value, asPtr := p.format(ev)
		table.AddRow(fmt.Sprintf("  %s[%d]", name, i), fmt.Sprintf("+%d", i*size), value, asPtr, ev.Layout().Name())
	}
	if n > p.maxElements {
		table.AddRow(fmt.Sprintf("  ... %d more", n-p.maxElements))
	}
}
