package ledger

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound indicates the target entry or site does not exist locally.
	// With replication lag this is usually transient: retry after sync.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyConfirmed indicates a transfer was confirmed before this call.
	// It is the expected outcome of a confirmation race, not a failure.
	ErrAlreadyConfirmed = errors.New("transfer already confirmed")
)

// FieldError describes one invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) String() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError reports input rejected before any write.
// Fields lists every problem found, not just the first one.
type ValidationError struct {
	Fields []FieldError
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.String()
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add records a field problem.
func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// Merge appends the fields of other, prefixing each with prefix.
func (e *ValidationError) Merge(prefix string, other *ValidationError) {
	if other == nil {
		return
	}
	for _, f := range other.Fields {
		name := f.Field
		if prefix != "" {
			name = prefix + "." + f.Field
		}
		e.Add(name, f.Message)
	}
}

// Field returns the message recorded for field, if any.
func (e *ValidationError) Field(field string) (string, bool) {
	for _, f := range e.Fields {
		if f.Field == field {
			return f.Message, true
		}
	}
	return "", false
}

// OrNil returns e as an error when it holds at least one field, else nil.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

// NewValidationError builds a single-field validation error.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}

// PersistenceError wraps a failed storage call.
// No partial state is visible after one is returned; the caller may retry.
type PersistenceError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying storage error.
func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Retryable reports whether retrying the operation may succeed.
func (e *PersistenceError) Retryable() bool {
	return true
}

// NewPersistenceError wraps err for operation op. Returns nil if err is nil.
func NewPersistenceError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsPersistence reports whether err is (or wraps) a PersistenceError.
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

// IsNotFound reports whether err is (or wraps) ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyConfirmed reports whether err is (or wraps) ErrAlreadyConfirmed.
func IsAlreadyConfirmed(err error) bool {
	return errors.Is(err, ErrAlreadyConfirmed)
}

// Stable error codes shown to operators and used in scripted output.
const (
	CodeOK               = "OK"
	CodeValidation       = "E_VALIDATION"
	CodePersistence      = "E_PERSISTENCE"
	CodeNotFound         = "E_NOT_FOUND"
	CodeAlreadyConfirmed = "E_ALREADY_CONFIRMED"
	CodeInternal         = "E_INTERNAL"
)

// Code classifies err into one of the stable codes. A nil error is CodeOK.
func Code(err error) string {
	switch {
	case err == nil:
		return CodeOK
	case IsValidation(err):
		return CodeValidation
	case IsAlreadyConfirmed(err):
		return CodeAlreadyConfirmed
	case IsNotFound(err):
		return CodeNotFound
	case IsPersistence(err):
		return CodePersistence
	default:
		return CodeInternal
	}
}
