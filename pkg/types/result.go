package types

import (
	"errors"

	pkgerrors "github.com/angelmondragon/stockcore/pkg/errors"
)

// Result is the flat outcome handed to callers that do not want to inspect
// typed errors, e.g. the operator CLI.
type Result struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	Code      string `json:"code,omitempty"`
	Available *int   `json:"available,omitempty"`
	Requested *int   `json:"requested,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
	Data      any    `json:"data,omitempty"`
}

// OK wraps data in a successful Result.
func OK(data any) Result {
	return Result{Success: true, Data: data}
}

// ResultFromError maps err onto a failed Result. Storage failures are reported
// with their public message only; stock shortfalls carry both quantities.
func ResultFromError(err error) Result {
	if err == nil {
		return Result{Success: true}
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		meta := pkgerrors.MetadataFor(pkgerrors.CodeInternal)
		return Result{Code: string(pkgerrors.CodeInternal), Message: meta.PublicMessage, Retryable: meta.Retryable}
	}

	res := Result{Code: string(typed.Code()), Message: typed.Message(), Retryable: pkgerrors.IsRetryable(typed)}
	switch typed.Code() {
	case pkgerrors.CodeInternal, pkgerrors.CodeDependency:
		res.Message = pkgerrors.MetadataFor(typed.Code()).PublicMessage
	}
	if shortfall, ok := typed.Shortfall(); ok {
		available, requested := shortfall.Available, shortfall.Requested
		res.Available = &available
		res.Requested = &requested
	}
	return res
}

// IsCode is a convenience for callers holding a Result-producing error.
func IsCode(err error, code pkgerrors.Code) bool {
	var typed *pkgerrors.Error
	return errors.As(err, &typed) && typed.Code() == code
}
