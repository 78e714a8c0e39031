package models

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidState        = errors.New("invalid state")
	ErrValidation          = errors.New("validation failed")
	ErrDuplicateSubmission = errors.New("duplicate submission")
	ErrSlotsExhausted      = errors.New("no available slots")
	ErrPaymentNotCompleted = errors.New("payment not completed")
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	ErrExternalService     = errors.New("external service error")
)

// ErrInvalidArgument is a ValidationError raised for out-of-range operation arguments.
var ErrInvalidArgument = fmt.Errorf("invalid argument: %w", ErrValidation)

// Error kinds reported to callers alongside the message.
const (
	KindNotFound            = "NotFound"
	KindUnauthorized        = "Unauthorized"
	KindInsufficientBalance = "InsufficientBalance"
	KindInvalidState        = "InvalidState"
	KindInvalidArgument     = "InvalidArgument"
	KindValidation          = "ValidationError"
	KindDuplicateSubmission = "DuplicateSubmission"
	KindSlotsExhausted      = "SlotsExhausted"
	KindPaymentNotCompleted = "PaymentNotCompleted"
	KindConcurrencyConflict = "ConcurrencyConflict"
	KindExternalService     = "ExternalServiceError"
	KindInternal            = "Internal"
)

var kinds = []struct {
	err  error
	kind string
}{
	{ErrNotFound, KindNotFound},
	{ErrUnauthorized, KindUnauthorized},
	{ErrInsufficientBalance, KindInsufficientBalance},
	{ErrInvalidState, KindInvalidState},
	// before ErrValidation: ErrInvalidArgument wraps it
	{ErrInvalidArgument, KindInvalidArgument},
	{ErrValidation, KindValidation},
	{ErrDuplicateSubmission, KindDuplicateSubmission},
	{ErrSlotsExhausted, KindSlotsExhausted},
	{ErrPaymentNotCompleted, KindPaymentNotCompleted},
	{ErrConcurrencyConflict, KindConcurrencyConflict},
	{ErrExternalService, KindExternalService},
}

// ErrorKind returns the kind of err, or KindInternal for errors outside the taxonomy.
func ErrorKind(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// Retryable reports whether the operation that produced err may be retried unchanged.
func Retryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict) || errors.Is(err, ErrExternalService)
}
