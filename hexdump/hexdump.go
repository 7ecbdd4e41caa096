// Package hexdump renders target memory as coloured hex, optionally annotated
// with the fields of a compiled layout.
package hexdump

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strings"
	"unicode"

	"memlayout/coloransi"
	"memlayout/layout"
	"memlayout/process/memory_map"
)

// Options defines options for customizing the hexdump output
type Options struct {
	// BytesPerLine defines the number of bytes to display per line
	BytesPerLine int

	// GroupSize defines the grouping of bytes (usually 1, 2, 4, or 8)
	GroupSize int

	ShowASCII bool

	// StartOffset is the address printed for the first byte
	StartOffset uint64

	// OffsetWidth is the width of the offset column in hex digits
	OffsetWidth int

	OffsetColor       coloransi.ColorCode
	HexColor          coloransi.ColorCode
	ASCIIColor        coloransi.ColorCode
	NonPrintableColor coloransi.ColorCode
	ZeroColor         coloransi.ColorCode

	// HighlightPattern is a pattern to highlight in the dump
	HighlightPattern []byte
	HighlightColor   coloransi.ColorCode

	// MaxLines is the maximum number of lines to show (0 for no limit)
	MaxLines int

	// PointerSize enables the pointer preview column: every aligned slot of
	// this width that lands inside MemoryMap is listed after the ASCII.
	PointerSize int
	MemoryMap   []memory_map.MemoryMapItem

	// Layout annotates each line with the fields that start on it and
	// colours bytes per field. data must start at the object's first byte,
	// which is the view address minus the layout's origin.
	Layout *layout.Layout
}

// DefaultOptions returns the default hexdump options
func DefaultOptions() Options {
	return Options{
		BytesPerLine:      16,
		GroupSize:         1,
		ShowASCII:         true,
		OffsetWidth:       8,
		OffsetColor:       coloransi.Cyan,
		HexColor:          coloransi.Green,
		ASCIIColor:        coloransi.White,
		NonPrintableColor: coloransi.BrightBlack,
		HighlightColor:    coloransi.Yellow,
		ZeroColor:         coloransi.BrightBlack,
	}
}

// String renders data to a string.
func String(data []byte, opts Options) string {
	var buf bytes.Buffer
	Dump(&buf, data, opts)
	return buf.String()
}

// Dump writes a hex dump of data to w.
func Dump(w io.Writer, data []byte, opts Options) {
	if opts.BytesPerLine <= 0 {
		opts.BytesPerLine = 16
	}
	if opts.GroupSize <= 0 {
		opts.GroupSize = 1
	}
	if opts.OffsetWidth <= 0 {
		opts.OffsetWidth = 8
	}

	d := &dumper{opts: opts, data: data}
	d.markHighlights()
	d.markFields()

	lines := 0
	for offset := 0; offset < len(data); offset += opts.BytesPerLine {
		if opts.MaxLines > 0 && lines >= opts.MaxLines {
			fmt.Fprintf(w, "... %d more bytes\n", len(data)-offset)
			return
		}
		end := min(offset+opts.BytesPerLine, len(data))
		d.line(w, offset, end)
		lines++
	}
}

type dumper struct {
	opts        Options
	data        []byte
	highlighted []bool
	fieldOf     []int // index into fields, -1 for none
	fields      []*layout.Field
}

func (d *dumper) markHighlights() {
	pat := d.opts.HighlightPattern
	if len(pat) == 0 {
		return
	}
	d.highlighted = make([]bool, len(d.data))
	for i := 0; i+len(pat) <= len(d.data); i++ {
		if bytes.Equal(d.data[i:i+len(pat)], pat) {
			for j := range pat {
				d.highlighted[i+j] = true
			}
		}
	}
}

func (d *dumper) markFields() {
	l := d.opts.Layout
	if l == nil || !l.IsAggregate() {
		return
	}
	d.fieldOf = make([]int, len(d.data))
	for i := range d.fieldOf {
		d.fieldOf[i] = -1
	}
	for _, f := range l.Fields() {
		idx := len(d.fields)
		d.fields = append(d.fields, f)
		start := f.Offset() + l.Origin()
		for b := max(start, 0); b < start+f.Size() && b < len(d.data); b++ {
			d.fieldOf[b] = idx
		}
	}
}

func (d *dumper) color(i int) coloransi.ColorCode {
	b := d.data[i]
	switch {
	case d.highlighted != nil && d.highlighted[i]:
		return d.opts.HighlightColor
	case d.fieldOf != nil && d.fieldOf[i] >= 0:
		if d.fields[d.fieldOf[i]].Synthetic() {
			return d.opts.ZeroColor
		}
		return coloransi.ColorFrom(uint64(d.fieldOf[i]))
	case b == 0:
		return d.opts.ZeroColor
	}
	return d.opts.HexColor
}

// line formats data[start:end] as one line of the dump
func (d *dumper) line(w io.Writer, start, end int) {
	opts := d.opts
	n := end - start

	fmt.Fprint(w, coloransi.Foreground(opts.OffsetColor, fmt.Sprintf("%0*x", opts.OffsetWidth, opts.StartOffset+uint64(start))), "  ")

	var groups []string
	var group strings.Builder
	for i := start; i < end; i++ {
		group.WriteString(coloransi.Foreground(d.color(i), fmt.Sprintf("%02x", d.data[i])))
		if (i-start+1)%opts.GroupSize == 0 || i == end-1 {
			groups = append(groups, group.String())
			group.Reset()
		}
	}

	// Mid-line divider once the line reaches past half of BytesPerLine.
	useSplit := opts.BytesPerLine >= 8 && n > opts.BytesPerLine/2
	groupsPerLine := max(opts.BytesPerLine/opts.GroupSize, 1)
	leftGroups := min(groupsPerLine/2, len(groups))
	if useSplit && leftGroups > 0 && leftGroups < len(groups) {
		fmt.Fprint(w, strings.Join(groups[:leftGroups], " "), " | ", strings.Join(groups[leftGroups:], " "))
	} else {
		fmt.Fprint(w, strings.Join(groups, " "))
	}

	// Pad short lines so the ASCII column stays aligned.
	if opts.BytesPerLine > n {
		fullGroups := (opts.BytesPerLine + opts.GroupSize - 1) / opts.GroupSize
		curGroups := (n + opts.GroupSize - 1) / opts.GroupSize
		deltaSpaces := (fullGroups - 1) - max(0, curGroups-1)
		// " | " takes the place of one inter-group space.
		pipeFull, pipeCur := 0, 0
		if opts.BytesPerLine >= 8 {
			pipeFull = 2
		}
		if useSplit {
			pipeCur = 2
		}
		if padding := (opts.BytesPerLine-n)*2 + deltaSpaces + (pipeFull - pipeCur); padding > 0 {
			fmt.Fprint(w, strings.Repeat(" ", padding))
		}
	}

	if opts.ShowASCII {
		fmt.Fprint(w, " | ")
		mid := start + opts.BytesPerLine/2
		if useSplit && mid < end {
			d.ascii(w, start, mid)
			fmt.Fprint(w, " ")
			d.ascii(w, mid, end)
		} else {
			d.ascii(w, start, end)
		}
	}

	if ptrs := d.pointers(start, end); len(ptrs) > 0 {
		fmt.Fprint(w, " | ", coloransi.Foreground(coloransi.Yellow, strings.Join(ptrs, " ")))
	}

	if names := d.annotations(start, end); len(names) > 0 {
		fmt.Fprint(w, "  ", strings.Join(names, " "))
	}

	fmt.Fprintln(w)
}

func (d *dumper) ascii(w io.Writer, start, end int) {
	for i := start; i < end; i++ {
		b := d.data[i]
		r := rune(b)
		switch {
		case d.highlighted != nil && d.highlighted[i]:
			fmt.Fprint(w, coloransi.Foreground(d.opts.HighlightColor, string(r)))
		case b == 0:
			fmt.Fprint(w, coloransi.Foreground(d.opts.ZeroColor, "."))
		case b >= 0x80 || !unicode.IsPrint(r):
			fmt.Fprint(w, coloransi.Foreground(d.opts.NonPrintableColor, "."))
		default:
			fmt.Fprint(w, coloransi.Foreground(d.opts.ASCIIColor, string(r)))
		}
	}
}

// pointers lists aligned pointer-width values on the line that fall inside a mapped region.
func (d *dumper) pointers(start, end int) []string {
	size := d.opts.PointerSize
	if len(d.opts.MemoryMap) == 0 || (size != 4 && size != 8) {
		return nil
	}
	var out []string
	for i := start; i+size <= end; i += size {
		var v uint64
		if size == 8 {
			v = binary.LittleEndian.Uint64(d.data[i:])
		} else {
			v = uint64(binary.LittleEndian.Uint32(d.data[i:]))
		}
		if v != 0 && memory_map.IsValidAddress(v, d.opts.MemoryMap) {
			out = append(out, fmt.Sprintf("0x%x", v))
		}
	}
	return out
}

// annotations names the fields whose first byte is on the line.
func (d *dumper) annotations(start, end int) []string {
	if d.fieldOf == nil {
		return nil
	}
	origin := d.opts.Layout.Origin()
	var out []string
	for idx, f := range d.fields {
		at := f.Offset() + origin
		if f.Synthetic() || at < start || at >= end {
			continue
		}
		out = append(out, coloransi.Foreground(coloransi.ColorFrom(uint64(idx)), fmt.Sprintf("%s@+%x", f.Name(), at)))
	}
	return out
}
