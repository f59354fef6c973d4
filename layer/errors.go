package layer

import "errors"

var (
	// ErrInvalidChannelLayer is the cause of every configuration error.
	ErrInvalidChannelLayer = errors.New("invalid channel layer")
	// ErrInvalidName is returned for unusable group or channel names.
	ErrInvalidName = errors.New("invalid name")
	// ErrChannelFull is returned when a channel is at capacity.
	ErrChannelFull = errors.New("channel full")
	// ErrClosed is returned by a manager or backend after Close.
	ErrClosed = errors.New("channel layer closed")
)

const (
	ErrCodeMissingBackend = 20000 + iota
	ErrCodeUnknownBackend
	ErrCodeBackendInit
	ErrCodeInvalidName
	ErrCodeChannelFull
	ErrCodeClosed
)
