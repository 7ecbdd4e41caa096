package memory

import (
	"fmt"
	"math"
)

// Omit stands for a missing slice bound.
const Omit = math.MinInt

// unsizedBound is the length slices resolve against when an array has none.
const unsizedBound = math.MaxInt32

// Array indexes the elements of an array view. Elements are writable when
// the array was declared with MutArray.
type Array struct {
	View
}

// Len fails with ErrSizeUnknown for unsized arrays.
func (a Array) Len() (int, error) {
	n, sized := a.layout.Len()
	if !sized {
		return 0, &AccessError{Op: "len", Name: a.layout.Name(), Err: ErrSizeUnknown}
	}
	return n, nil
}

func (a Array) check(op string, i int) error {
	if i < 0 {
		return &AccessError{Op: op, Index: i, Err: ErrNegativeIndex}
	}
	if n, sized := a.layout.Len(); sized && i >= n {
		return &AccessError{Op: op, Index: i, Err: fmt.Errorf("%w: length %d", ErrOutOfBounds, n)}
	}
	return nil
}

// At returns element i, at base + i * element size. Unsized arrays are not bounds checked.
func (a Array) At(i int) (View, error) {
	if err := a.check("index", i); err != nil {
		return View{}, err
	}
	elem := a.layout.Elem()
	return View{
		mem:     a.mem,
		addr:    a.addr.Offset(int64(i) * int64(elem.Size())),
		layout:  elem,
		mutable: a.layout.Mutable(),
	}, nil
}

func (a Array) Get(i int) (any, error) {
	v, err := a.At(i)
	if err != nil {
		return nil, err
	}
	return v.Value()
}

func (a Array) Set(i int, val any) error {
	v, err := a.At(i)
	if err != nil {
		return err
	}
	if !v.mutable {
		return &AccessError{Op: "set", Index: i, Err: ErrImmutable}
	}
	return v.Set(val)
}

// Each visits every element in order, stopping at the first error.
func (a Array) Each(fn func(i int, v View) error) error {
	n, err := a.Len()
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		v, err := a.At(i)
		if err != nil {
			return err
		}
		if err := fn(i, v); err != nil {
			return err
		}
	}
	return nil
}

// Slice selects elements the way a Python slice does: negative bounds count
// from the end, out of range bounds are clamped and Omit leaves a bound open.
// On an unsized array a bound that depends on the length is an ErrSizeUnknown.
func (a Array) Slice(start, stop, step int) ([]View, error) {
	n, sized := a.layout.Len()
	if !sized {
		open := (step == Omit || step > 0) && stop == Omit || step < 0 && start == Omit
		if open || (start != Omit && start < 0) || (stop != Omit && stop < 0) {
			return nil, &AccessError{Op: "slice", Name: a.layout.Name(), Err: ErrSizeUnknown}
		}
		n = unsizedBound
	}

	first, last, step, err := resolveSlice(start, stop, step, n)
	if err != nil {
		return nil, &AccessError{Op: "slice", Name: a.layout.Name(), Err: err}
	}

	var views []View
	for i := first; (step > 0 && i < last) || (step < 0 && i > last); i += step {
		v, err := a.At(i)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

func resolveSlice(start, stop, step, length int) (int, int, int, error) {
	if step == Omit {
		step = 1
	}
	if step == 0 {
		return 0, 0, 0, fmt.Errorf("%w: step is zero", ErrInvalidSlice)
	}

	lower, upper := 0, length
	if step < 0 {
		lower, upper = -1, length-1
	}

	clamp := func(v, def int) int {
		if v == Omit {
			return def
		}
		if v < 0 {
			return max(v+length, lower)
		}
		return min(v, upper)
	}

	if step > 0 {
		return clamp(start, lower), clamp(stop, upper), step, nil
	}
	return clamp(start, upper), clamp(stop, lower), step, nil
}
