// Package process defines the contract every OS backend implements, the
// primitive address types shared by all of them, and the error taxonomy
// surfaced by foreign-process operations.
package process

import (
	"errors"
	"fmt"
)

var (
	// ErrAddressNotMapped is returned when a memory address is not found within any mapped region of a process.
	ErrAddressNotMapped = errors.New("address not mapped")

	// ErrProcessNotOpen is returned when an operation requiring an open process is attempted
	// before the process has been successfully opened or after it has been closed.
	ErrProcessNotOpen = errors.New("process not open")

	ErrProcessNotFound = errors.New("process not found")
	ErrModuleNotFound  = errors.New("module not found")
	ErrWindowNotFound  = errors.New("window not found")

	// ErrNotImplemented is returned by backends for operations the OS cannot serve.
	// It is never approximated by a zero value.
	ErrNotImplemented = errors.New("not implemented")

	ErrInvalidPointer = errors.New("invalid pointer read")

	// ErrReadTooLarge rejects a single read above MaxReadSize.
	ErrReadTooLarge = errors.New("read size exceeds limit")

	// ErrForeignCall marks a failed OS call. It is always carried by a *ForeignCallError.
	ErrForeignCall = errors.New("foreign call failed")
)

// MaxReadSize bounds one read; sizes taken from target memory can be garbage.
const MaxReadSize ProcessMemorySize = 1 << 30

// ForeignCallError describes an OS call that failed. No partial data accompanies it.
type ForeignCallError struct {
	Op      string
	Address ProcessMemoryAddress
	Size    ProcessMemorySize
	Err     error
}

func (e *ForeignCallError) Error() string {
	if e.Size == 0 && e.Address == 0 {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s at %s (%d bytes): %v", e.Op, e.Address.ToString(), uint(e.Size), e.Err)
}

func (e *ForeignCallError) Unwrap() []error {
	return []error{ErrForeignCall, e.Err}
}

// NewForeignCallError wraps err as a failed foreign call.
func NewForeignCallError(op string, addr ProcessMemoryAddress, size ProcessMemorySize, err error) error {
	return &ForeignCallError{Op: op, Address: addr, Size: size, Err: err}
}

// NotImplemented returns an ErrNotImplemented naming the operation and the platform.
func NotImplemented(op, platform string) error {
	return fmt.Errorf("%s on %s: %w", op, platform, ErrNotImplemented)
}
