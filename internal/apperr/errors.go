// Package apperr defines the error taxonomy shared by the economy core and
// its HTTP boundary.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation and presentation
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindStoreConflict
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindStoreConflict:
		return "store_conflict"
	case KindUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

// Error carries a stable kind and code plus a message that is safe to show
// to callers. Err holds the underlying cause for logging.
type Error struct {
	Kind    Kind
	Code    string
	Field   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same code, so wrapped instances of a
// sentinel compare equal to it.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

// Sentinel errors
var (
	ErrValidation = &Error{Kind: KindValidation, Code: "validation", Message: "invalid input"}

	ErrAccountNotFound = &Error{Kind: KindNotFound, Code: "account_not_found", Message: "account not found"}
	ErrSessionNotFound = &Error{Kind: KindNotFound, Code: "session_not_found", Message: "session not found"}
	ErrItemNotFound    = &Error{Kind: KindNotFound, Code: "item_not_found", Message: "item not found in catalog"}

	ErrInsufficientFunds = &Error{Kind: KindConflict, Code: "insufficient_funds", Message: "insufficient token balance"}
	ErrSelfTransfer      = &Error{Kind: KindConflict, Code: "self_transfer", Message: "cannot transfer tokens to yourself"}
	ErrAlreadyBanned     = &Error{Kind: KindConflict, Code: "already_banned", Message: "account is already banned"}
	ErrNotBanned         = &Error{Kind: KindConflict, Code: "not_banned", Message: "account is not banned"}
	ErrAlreadyFinalized  = &Error{Kind: KindConflict, Code: "already_finalized", Message: "session already finalized"}
	ErrSessionOpen       = &Error{Kind: KindConflict, Code: "session_open", Message: "account already has an open session"}
	ErrDuplicateAccount  = &Error{Kind: KindConflict, Code: "duplicate_account", Message: "username already exists"}

	ErrStoreConflict = &Error{Kind: KindStoreConflict, Code: "store_conflict", Message: "concurrent modification detected"}
	ErrUnavailable   = &Error{Kind: KindUnavailable, Code: "unavailable", Message: "service temporarily unavailable"}
	ErrInternal      = &Error{Kind: KindInternal, Code: "internal", Message: "internal error"}
)

// Validation builds a validation error for a single input field.
func Validation(field, message string) error {
	return &Error{Kind: KindValidation, Code: ErrValidation.Code, Field: field, Message: message}
}

// StoreConflict wraps a concurrent-modification failure reported by the store.
func StoreConflict(err error) error {
	return &Error{Kind: KindStoreConflict, Code: ErrStoreConflict.Code, Message: ErrStoreConflict.Message, Err: err}
}

// Unavailable wraps a failure to reach the store.
func Unavailable(err error) error {
	return &Error{Kind: KindUnavailable, Code: ErrUnavailable.Code, Message: ErrUnavailable.Message, Err: err}
}

// Internal wraps an unexpected failure behind a generic message.
func Internal(err error) error {
	return &Error{Kind: KindInternal, Code: ErrInternal.Code, Message: ErrInternal.Message, Err: err}
}

// KindOf resolves the kind of err. Errors outside the taxonomy are internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the stable code of err, or "internal".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrInternal.Code
}

// PublicMessage returns the caller-safe message for err. Causes of internal
// and store failures are never included.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return ErrInternal.Message
}

// Retryable reports whether the caller may retry the failed operation.
func Retryable(err error) bool {
	return KindOf(err) == KindStoreConflict
}
