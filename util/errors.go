package util

import "github.com/infigaming-com/go-channels/errors"

type UtilError struct {
	baseErr *errors.Error
}

const (
	ErrCodeValueNotFoundInContext = 10000 + iota
	ErrCodeInvalidValueInContext
	ErrCodeRedisUnavailable
)

func NewUtilError(code int64, message string, cause error) *UtilError {
	return &UtilError{
		baseErr: errors.NewError(code, message, cause),
	}
}

func (e *UtilError) Error() string {
	return e.baseErr.Error()
}

func (e *UtilError) GetCode() int64 {
	return e.baseErr.GetCode()
}

func (e *UtilError) GetMessage() string {
	return e.baseErr.GetMessage()
}

// Unwrap exposes the coded error so errors.CodeOf and errors.Is see through it.
func (e *UtilError) Unwrap() error {
	return e.baseErr
}
