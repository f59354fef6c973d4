package errors

import "fmt"

type Error struct {
	Code       int64  `json:"code"`
	Message    string `json:"message"`
	Cause      error  // the underlying error
	Details    any    `json:"details,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
}

func NewError(code int64, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Errorf builds an Error whose message is formatted from format and args.
func Errorf(code int64, cause error, format string, args ...any) *Error {
	return NewError(code, fmt.Sprintf(format, args...), cause)
}

func (e *Error) WithDetails(details any) *Error {
	e.Details = details
	return e
}

func (e *Error) WithStatusCode(statusCode int) *Error {
	e.StatusCode = statusCode
	return e
}

func (e *Error) Error() string {
	if e.Cause != nil && e.Cause.Error() != e.Message {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) GetCode() int64 {
	return e.Code
}

func (e *Error) GetMessage() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) GetDetails() any {
	return e.Details
}

func (e *Error) GetStatusCode() int {
	return e.StatusCode
}

// CodeOf returns the code of the first *Error found walking err's tree depth
// first, as errors.As does, or 0.
func CodeOf(err error) int64 {
	switch e := err.(type) {
	case nil:
		return 0
	case *Error:
		return e.Code
	case interface{ Unwrap() error }:
		return CodeOf(e.Unwrap())
	case interface{ Unwrap() []error }:
		for _, inner := range e.Unwrap() {
			if code := CodeOf(inner); code != 0 {
				return code
			}
		}
	}
	return 0
}
