// Package ddberrors holds the error taxonomy shared by the tablekit packages.
package ddberrors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrValidation is returned for malformed input: missing key fields,
	// unsupported key types, oversized batches.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when a conditional update matched no item.
	ErrNotFound = errors.New("item not found")

	// ErrAlreadyExists is returned when a put asserted uniqueness and the item existed.
	ErrAlreadyExists = errors.New("item already exists")

	// ErrTransactionCanceled is returned when the store aborted a transaction.
	ErrTransactionCanceled = errors.New("transaction canceled")

	// ErrTransform wraps the per-item decrypt/transform failures of a read.
	ErrTransform = errors.New("item transform failed")

	// ErrInconsistent signals a logic defect: an unprocessed key nobody submitted,
	// or an item tagged with a model outside the expected set.
	ErrInconsistent = errors.New("internal consistency violated")
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field %q: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

type NotFoundError struct {
	Partition string
	Sort      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("item with key %q/%q not found", e.Partition, e.Sort)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

type AlreadyExistsError struct {
	Partition string
	Sort      string
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("item with key %q/%q already exists", e.Partition, e.Sort)
}

func (e *AlreadyExistsError) Is(target error) bool {
	return target == ErrAlreadyExists
}

// TransactionError carries the per-action cancellation reasons reported by the store.
// Reasons has one entry per action in submission order, "None" for actions that did not fail.
type TransactionError struct {
	Reasons []string
	Cause   error
}

func (e *TransactionError) Error() string {
	if len(e.Reasons) == 0 {
		return fmt.Sprintf("transaction canceled: %v", e.Cause)
	}
	return fmt.Sprintf("transaction canceled: [%s]", strings.Join(e.Reasons, ", "))
}

func (e *TransactionError) Is(target error) bool {
	return target == ErrTransactionCanceled
}

func (e *TransactionError) Unwrap() error {
	return e.Cause
}

// Inconsistent wraps a formatted message with ErrInconsistent.
func Inconsistent(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInconsistent, fmt.Sprintf(format, args...))
}

func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

func IsTransactionCanceled(err error) bool {
	return errors.Is(err, ErrTransactionCanceled)
}

// FromStruct converts the result of validator.Struct into a *ValidationError
// naming the first failing field. Other errors are wrapped with ErrValidation.
func FromStruct(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		msgs := make([]string, 0, len(verrs))
		for _, e := range verrs {
			msgs = append(msgs, fmt.Sprintf("%s failed on the %q rule", e.Namespace(), e.Tag()))
		}
		return &ValidationError{Field: verrs[0].Field(), Message: strings.Join(msgs, "; ")}
	}
	return fmt.Errorf("%w: %w", ErrValidation, err)
}
