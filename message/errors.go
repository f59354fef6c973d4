package message

import "errors"

var (
	// ErrRouting is the cause of every error raised while choosing a handler.
	ErrRouting = errors.New("routing error")
	// ErrDecode is the cause of every payload decoding error.
	ErrDecode = errors.New("decode error")
)

const (
	ErrCodeMissingType = 30000 + iota
	ErrCodeMalformedType
	ErrCodeNoHandler
	ErrCodeUnexpectedFrame
	ErrCodeMalformedJSON
	ErrCodeUnknownEncoding
)
