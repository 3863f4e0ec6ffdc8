package registry

import (
	"errors"
	"fmt"

	"github.com/edufleetexchange-art/Circularnest/circulars/schema"
	"github.com/edufleetexchange-art/Circularnest/circulars/storage"
)

// Error kinds. Every error returned by the registry matches at most one of these with
// errors.Is, errors matching none of them are unexpected.
var (
	ErrValidation      = errors.New("validation failure")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
	ErrInvalidState    = errors.New("invalid state")
	ErrStorage         = errors.New("storage failure")
)

type kindError struct {
	kind error
	err  error
}

func (e *kindError) Error() string {
	return e.err.Error()
}

func (e *kindError) Unwrap() []error {
	return []error{e.kind, e.err}
}

func withKind(kind, err error) error {
	return &kindError{kind: kind, err: err}
}

func newError(kind error, format string, args ...interface{}) error {
	return withKind(kind, fmt.Errorf(format, args...))
}

func blobError(op string, err error) error {
	if errors.Is(err, storage.ErrBlobNotFound) {
		return withKind(ErrNotFound, fmt.Errorf("%v: %w", op, err))
	}
	return withKind(ErrStorage, fmt.Errorf("%v: %w", op, err))
}

func recordError(op string, err error) error {
	if errors.Is(err, schema.ErrSubmissionNotFound) || errors.Is(err, schema.ErrCircularNotFound) {
		return withKind(ErrNotFound, err)
	}
	return fmt.Errorf("%v: %w", op, err)
}
