package errors

import (
	stdErrors "errors"
	"fmt"
)

type Code string

const (
	CodeValidation        Code = "VALIDATION_ERROR"
	CodeNotFound          Code = "NOT_FOUND"
	CodeInsufficientStock Code = "INSUFFICIENT_STOCK"
	CodeConflict          Code = "CONFLICT"
	CodeStateConflict     Code = "STATE_CONFLICT"
	CodeIdempotency       Code = "IDEMPOTENCY_KEY_REUSED"
	CodeInternal          Code = "INTERNAL_ERROR"
	CodeDependency        Code = "DEPENDENCY_ERROR"
)

// Metadata is the caller-facing policy for a code.
type Metadata struct {
	PublicMessage  string
	Retryable      bool
	DetailsAllowed bool
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:        {PublicMessage: "validation failed", DetailsAllowed: true},
	CodeNotFound:          {PublicMessage: "resource not found"},
	CodeInsufficientStock: {PublicMessage: "insufficient stock", DetailsAllowed: true},
	CodeConflict:          {PublicMessage: "conflict detected"},
	CodeStateConflict:     {PublicMessage: "state transition disallowed", DetailsAllowed: true},
	CodeIdempotency:       {PublicMessage: "idempotency key reused", DetailsAllowed: true},
	CodeInternal:          {PublicMessage: "internal error", Retryable: true},
	CodeDependency:        {PublicMessage: "dependency unavailable", Retryable: true, DetailsAllowed: true},
}

// MetadataFor falls back to the internal policy for unknown codes.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// IsRetryable reports whether repeating the operation may succeed. Untyped
// errors count as internal and are retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return MetadataFor(CodeOf(err)).Retryable
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

// StockShortfall is attached to INSUFFICIENT_STOCK errors.
type StockShortfall struct {
	Available int `json:"available"`
	Requested int `json:"requested"`
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

// InsufficientStock builds the shortfall error raised by reservations and transfers.
func InsufficientStock(available, requested int) *Error {
	if available < 0 {
		available = 0
	}
	return New(CodeInsufficientStock, fmt.Sprintf("insufficient stock: available %d, requested %d", available, requested)).
		WithDetails(StockShortfall{Available: available, Requested: requested})
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

// Shortfall returns the stock shortfall for INSUFFICIENT_STOCK errors.
func (e *Error) Shortfall() (StockShortfall, bool) {
	if e == nil || e.code != CodeInsufficientStock {
		return StockShortfall{}, false
	}
	shortfall, ok := e.details.(StockShortfall)
	return shortfall, ok
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// CodeOf returns the typed code carried by err, defaulting to INTERNAL_ERROR.
func CodeOf(err error) Code {
	if typed := As(err); typed != nil {
		return typed.Code()
	}
	return CodeInternal
}

// IsCode reports whether err carries the provided code.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.Code() == code
}
