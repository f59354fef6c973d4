package consumer

import "errors"

var (
	// ErrInvalidHandler is the cause of every handler registration error.
	ErrInvalidHandler = errors.New("invalid handler")
	// ErrNoChannelLayer is returned by group operations on a transport-only connection.
	ErrNoChannelLayer = errors.New("no channel layer")
	// ErrUnsupported is returned when the backend lacks an optional capability.
	ErrUnsupported = errors.New("unsupported by channel layer")
)

const (
	ErrCodeInvalidHandler = 40000 + iota
	ErrCodeDuplicateHandler
	ErrCodeInvalidOption
	ErrCodeNoChannelLayer
	ErrCodeUnsupported
)
