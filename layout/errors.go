package layout

import (
	"errors"
	"fmt"
)

var (
	ErrReservedName     = errors.New("field name uses the reserved __ prefix")
	ErrDuplicateField   = errors.New("duplicate field name")
	ErrSelfByValue      = errors.New("struct contains itself by value")
	ErrUnknownScalar    = errors.New("unknown scalar type")
	ErrUnresolvedConfig = errors.New("platform config has no pointer width")
	ErrInvalidLength    = errors.New("invalid length")
	ErrUnboundThis      = errors.New("this is not bound to a struct")
	ErrMalformed        = errors.New("malformed declaration")
)

// DeclarationError reports a problem with a marker declaration found while compiling it.
type DeclarationError struct {
	Type  string
	Field string
	Err   error
}

func (e *DeclarationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("declaration %s.%s: %v", e.Type, e.Field, e.Err)
	}
	return fmt.Sprintf("declaration %s: %v", e.Type, e.Err)
}

func (e *DeclarationError) Unwrap() error {
	return e.Err
}

func declError(typ, field string, err error) error {
	var de *DeclarationError
	if !errors.As(err, &de) {
		return &DeclarationError{Type: typ, Field: field, Err: err}
	}
	if de.Field != "" {
		return err
	}
	if de.Type == typ {
		return &DeclarationError{Type: typ, Field: field, Err: de.Err}
	}
	return &DeclarationError{Type: typ, Field: field, Err: fmt.Errorf("%s: %w", de.Type, de.Err)}
}
