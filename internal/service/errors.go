package service

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error kinds. Match with errors.Is.
var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrNotFound           = errors.New("not found")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrStockUpdateFailed  = errors.New("stock update failed")
	ErrConflict           = errors.New("conflict")
	ErrCheckoutInProgress = errors.New("checkout already in progress")
)

// Error is a user-facing failure. Message is safe to show to the cashier.
type Error struct {
	Kind        error
	Message     string
	Barcode     string
	ProductName string
	Available   int
	Requested   int
	cause       error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() []error {
	if e.cause != nil {
		return []error{e.Kind, e.cause}
	}
	return []error{e.Kind}
}

func newError(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func invalidInput(format string, args ...any) error {
	return newError(ErrInvalidInput, format, args...)
}

func notFound(format string, args ...any) error {
	return newError(ErrNotFound, format, args...)
}

func conflict(format string, args ...any) error {
	return newError(ErrConflict, format, args...)
}
