// Package schema loads struct declarations from YAML into marker types.
//
//	platform: windows
//	types:
//	  - name: entity
//	    vtable: true
//	    fields:
//	      - {name: id, type: u32}
//	      - {name: next, type: mut_ptr<this>, mut: true}
//	  - name: player
//	    extends: [entity]
//	    fields:
//	      - {name: name, type: string}
//	      - {name: pos, type: "array<f32,3>", mut: true}
//	      - {name: pad, type: "fill{windows_x64:8}"}
//
// Types may reference each other in any order. Cycles are only allowed through
// pointers or unsized arrays.
package schema

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"memlayout/layout"
	"memlayout/marker"
	"memlayout/platform"

	"gopkg.in/yaml.v3"
)

var (
	ErrUnknownType   = errors.New("unknown type")
	ErrDuplicateType = errors.New("duplicate type")
	ErrValueCycle    = errors.New("type contains itself by value")
	ErrSyntax        = errors.New("invalid type expression")
	ErrEmpty         = errors.New("schema declares no types")
)

type document struct {
	Platform string     `yaml:"platform"`
	Types    []typeDecl `yaml:"types"`
}

type typeDecl struct {
	Name    string      `yaml:"name"`
	Union   bool        `yaml:"union"`
	Extends []string    `yaml:"extends"`
	Packed  bool        `yaml:"packed"`
	Vtable  bool        `yaml:"vtable"`
	Origin  int         `yaml:"origin"`
	Fields  []fieldDecl `yaml:"fields"`
}

type fieldDecl struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
	Mut  bool   `yaml:"mut"`
}

// Schema is a set of named struct and union declarations
type Schema struct {
	config platform.Config
	types  map[string]*marker.StructType
	order  []string
}

// LoadFile reads a schema from a YAML file.
func LoadFile(path string) (*Schema, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open schema: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Parse is Load over a byte slice.
func Parse(data []byte) (*Schema, error) {
	return Load(bytes.NewReader(data))
}

// Load decodes a YAML schema and builds its marker graph.
func Load(r io.Reader) (*Schema, error) {
	var doc document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmpty
		}
		return nil, fmt.Errorf("failed to decode schema: %w", err)
	}
	if len(doc.Types) == 0 {
		return nil, ErrEmpty
	}

	p, err := platform.ParsePlatform(doc.Platform)
	if err != nil {
		return nil, fmt.Errorf("schema platform: %w", err)
	}

	s := &Schema{
		config: platform.Config{Platform: p},
		types:  make(map[string]*marker.StructType, len(doc.Types)),
	}

	builders := make(map[string]*marker.StructBuilder, len(doc.Types))
	for _, td := range doc.Types {
		if td.Name == "" {
			return nil, &layout.DeclarationError{Type: "<unnamed>", Err: layout.ErrMalformed}
		}
		if _, dup := builders[td.Name]; dup || builtin(td.Name) {
			return nil, &layout.DeclarationError{Type: td.Name, Err: ErrDuplicateType}
		}
		b := marker.NewStruct(td.Name)
		if td.Union {
			b = marker.NewUnion(td.Name)
		}
		builders[td.Name] = b
		s.types[td.Name] = b.Type()
		s.order = append(s.order, td.Name)
	}

	for _, td := range doc.Types {
		if err := s.declare(builders[td.Name], td); err != nil {
			return nil, err
		}
	}
	for _, name := range s.order {
		builders[name].Build()
	}

	if err := s.checkCycles(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Schema) declare(b *marker.StructBuilder, td typeDecl) error {
	for _, base := range td.Extends {
		st, ok := s.types[base]
		if !ok {
			return &layout.DeclarationError{Type: td.Name, Err: fmt.Errorf("extends %q: %w", base, ErrUnknownType)}
		}
		b.Extends(st)
	}
	if td.Packed {
		b.Packed()
	}
	if td.Vtable {
		b.Vtable()
	}
	if td.Origin != 0 {
		b.Origin(td.Origin)
	}

	for _, fd := range td.Fields {
		t, err := s.Resolve(fd.Type)
		if err != nil {
			return &layout.DeclarationError{Type: td.Name, Field: fd.Name, Err: err}
		}
		if fd.Mut {
			b.MutField(fd.Name, t)
		} else {
			b.Field(fd.Name, t)
		}
	}
	return nil
}

// Config is the schema's platform with the pointer width unresolved.
func (s *Schema) Config() platform.Config {
	return s.config
}

// Lookup returns a declared type by name.
func (s *Schema) Lookup(name string) (*marker.StructType, bool) {
	st, ok := s.types[name]
	return st, ok
}

// Names lists the declared types in file order.
func (s *Schema) Names() []string {
	return append([]string(nil), s.order...)
}

// Resolve parses a type expression against the schema's declarations.
// A bare `this` is left unbound.
func (s *Schema) Resolve(expr string) (marker.Type, error) {
	p := &parser{src: expr, schema: s}
	t, err := p.parseType()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if !p.eof() {
		return nil, p.errorf("unexpected %q", p.src[p.pos:])
	}
	return t, nil
}

// Compile compiles a declared type for cfg with the default compiler.
func (s *Schema) Compile(name string, cfg platform.Config) (*layout.Layout, error) {
	st, ok := s.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrUnknownType)
	}
	return layout.Compile(st, cfg)
}

func (s *Schema) checkCycles() error {
	const (
		visiting = 1
		done     = 2
	)
	marks := map[*marker.StructType]int{}

	var visit func(st *marker.StructType) error
	edge := func(from *marker.StructType, field string, to *marker.StructType) error {
		if marks[to] == visiting {
			return &layout.DeclarationError{Type: from.Name(), Field: field, Err: fmt.Errorf("%w through %s", ErrValueCycle, to.Name())}
		}
		return visit(to)
	}
	visit = func(st *marker.StructType) error {
		if marks[st] == done {
			return nil
		}
		marks[st] = visiting
		for _, base := range st.Bases() {
			if err := edge(st, "", base); err != nil {
				return err
			}
		}
		for _, f := range st.Fields() {
			if dep := valueDep(f.Type, st); dep != nil {
				if err := edge(st, f.Name, dep); err != nil {
					return err
				}
			}
		}
		marks[st] = done
		return nil
	}

	for _, name := range s.order {
		if err := visit(s.types[name]); err != nil {
			return err
		}
	}
	return nil
}

// valueDep returns the struct a field embeds by value, if any.
func valueDep(t marker.Type, self *marker.StructType) *marker.StructType {
	switch t := t.(type) {
	case *marker.StructType:
		return t
	case *marker.ThisType:
		if t.Target() != nil {
			return t.Target()
		}
		return self
	case *marker.ArrayType:
		if _, sized := t.Len(); sized {
			return valueDep(t.Elem(), self)
		}
	}
	return nil
}
