package memory

import "memlayout/marker"

// Struct accesses the fields of a struct or union view
type Struct struct {
	View
}

var _ marker.FieldReader = Struct{}

// Field returns the view of a member. Its writability is the member's declared mutability.
func (s Struct) Field(name string) (View, error) {
	f, ok := s.layout.Field(name)
	if !ok {
		return View{}, &AccessError{Op: "field", Name: s.layout.Name() + "." + name, Err: ErrNoField}
	}
	return View{
		mem:     s.mem,
		addr:    s.addr.Offset(int64(f.Offset())),
		layout:  f.Type(),
		mutable: f.Mutable(),
	}, nil
}

// Get reads a member; see View.Value.
func (s Struct) Get(name string) (any, error) {
	v, err := s.Field(name)
	if err != nil {
		return nil, err
	}
	return v.Value()
}

// Set writes a member declared with MutField.
func (s Struct) Set(name string, val any) error {
	v, err := s.Field(name)
	if err != nil {
		return err
	}
	if !v.mutable {
		return &AccessError{Op: "set", Name: s.layout.Name() + "." + name, Err: ErrImmutable}
	}
	return v.Set(val)
}

// Derived evaluates a computed property against the live fields.
func (s Struct) Derived(name string) (any, error) {
	fn, ok := s.layout.Derived(name)
	if !ok {
		return nil, &AccessError{Op: "derived", Name: s.layout.Name() + "." + name, Err: ErrNoField}
	}
	return fn(s)
}

// Names lists the declared members, skipping synthetic vtable and padding fields.
func (s Struct) Names() []string {
	var names []string
	for _, f := range s.layout.Fields() {
		if !f.Synthetic() {
			names = append(names, f.Name())
		}
	}
	return names
}
