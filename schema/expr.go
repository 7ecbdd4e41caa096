package schema

import (
	"fmt"
	"strconv"

	"memlayout/marker"
	"memlayout/platform"
)

var pointerCtors = map[string]func(marker.Type) *marker.PointerType{
	"ptr":      marker.Pointer,
	"sptr":     marker.PointerSigned,
	"mut_ptr":  marker.MutPointer,
	"mut_sptr": marker.MutPointerSigned,
	"ref":      marker.Ref,
	"mut_ref":  marker.MutRef,
}

var arrayCtors = map[string]func(marker.Type, int) *marker.ArrayType{
	"array":     marker.Array,
	"mut_array": marker.MutArray,
}

var unsizedCtors = map[string]func(marker.Type) *marker.ArrayType{
	"unsized":     marker.UnsizedArray,
	"mut_unsized": marker.MutUnsizedArray,
}

var keywords = map[string]bool{
	"this":          true,
	"void":          true,
	"fill":          true,
	"string":        true,
	"inline_string": true,
	"header_string": true,
}

// builtin reports whether name is taken by a scalar or a type constructor.
func builtin(name string) bool {
	if _, ok := marker.Predeclared(name); ok {
		return true
	}
	_, p := pointerCtors[name]
	_, a := arrayCtors[name]
	_, u := unsizedCtors[name]
	return p || a || u || keywords[name]
}

type parser struct {
	src    string
	pos    int
	schema *Schema
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("%w %q at %d: %s", ErrSyntax, p.src, p.pos, fmt.Sprintf(format, args...))
}

func (p *parser) eof() bool { return p.pos >= len(p.src) }

func (p *parser) skipSpace() {
	for !p.eof() && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t') {
		p.pos++
	}
}

func (p *parser) accept(c byte) bool {
	p.skipSpace()
	if !p.eof() && p.src[p.pos] == c {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expect(c byte) error {
	if !p.accept(c) {
		return p.errorf("expected %q", c)
	}
	return nil
}

func isIdent(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func (p *parser) ident() string {
	p.skipSpace()
	start := p.pos
	for !p.eof() && isIdent(p.src[p.pos]) {
		p.pos++
	}
	return p.src[start:p.pos]
}

func (p *parser) number() (int, error) {
	p.skipSpace()
	start := p.pos
	if !p.eof() && p.src[p.pos] == '-' {
		p.pos++
	}
	for !p.eof() && p.src[p.pos] >= '0' && p.src[p.pos] <= '9' {
		p.pos++
	}
	n, err := strconv.Atoi(p.src[start:p.pos])
	if err != nil {
		return 0, p.errorf("expected a number")
	}
	return n, nil
}

func (p *parser) parseType() (marker.Type, error) {
	name := p.ident()
	if name == "" {
		return nil, p.errorf("expected a type")
	}

	switch name {
	case "this":
		return marker.This(), nil
	case "void":
		return marker.Void(), nil
	case "string":
		return marker.StringLayoutFor(p.schema.config), nil
	case "inline_string":
		return marker.InlineString, nil
	case "header_string":
		return marker.HeaderString, nil
	case "fill":
		return p.parseFill()
	}

	if ctor, ok := pointerCtors[name]; ok {
		elem, err := p.parseElem()
		if err != nil {
			return nil, err
		}
		return ctor(elem), p.expect('>')
	}
	if ctor, ok := unsizedCtors[name]; ok {
		elem, err := p.parseElem()
		if err != nil {
			return nil, err
		}
		return ctor(elem), p.expect('>')
	}
	if ctor, ok := arrayCtors[name]; ok {
		elem, err := p.parseElem()
		if err != nil {
			return nil, err
		}
		if err := p.expect(','); err != nil {
			return nil, err
		}
		n, err := p.number()
		if err != nil {
			return nil, err
		}
		return ctor(elem, n), p.expect('>')
	}

	if s, ok := marker.Predeclared(name); ok {
		return s, nil
	}
	if st, ok := p.schema.types[name]; ok {
		return st, nil
	}
	return nil, fmt.Errorf("%q: %w", name, ErrUnknownType)
}

func (p *parser) parseElem() (marker.Type, error) {
	if err := p.expect('<'); err != nil {
		return nil, err
	}
	return p.parseType()
}

// parseFill reads fill{<config>:<bytes>, ...}. A key without bits applies to
// every width of that platform.
func (p *parser) parseFill() (marker.Type, error) {
	if err := p.expect('{'); err != nil {
		return nil, err
	}
	counts := marker.Fill{}
	if p.accept('}') {
		return marker.DynamicFill(counts), nil
	}
	for {
		key := p.ident()
		cfg, err := platform.ParseConfig(key)
		if err != nil || key == "" {
			return nil, p.errorf("fill key %q is not a platform or platform_xBITS config", key)
		}
		if err := p.expect(':'); err != nil {
			return nil, err
		}
		n, err := p.number()
		if err != nil {
			return nil, err
		}
		counts[cfg] = n
		if p.accept('}') {
			return marker.DynamicFill(counts), nil
		}
		if err := p.expect(','); err != nil {
			return nil, err
		}
	}
}
