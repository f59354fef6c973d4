// Package layer defines the channel layer: a pluggable pub/sub backend that
// hands out unique channel names, tracks group membership and broadcasts
// messages to every channel of a group. Backends are constructed lazily by a
// Manager from configuration and shared by every connection of the process.
package layer

import (
	"context"
	"regexp"

	"github.com/infigaming-com/go-channels/errors"
	"github.com/infigaming-com/go-channels/message"
)

// Backend is implemented by every channel layer driver.
// Implementations must be safe for concurrent use.
type Backend interface {
	// NewChannel returns a channel name that is unique for the lifetime of the backend.
	NewChannel(ctx context.Context) (string, error)
	// GroupAdd adds channel to group. Adding a member again is a no-op.
	GroupAdd(ctx context.Context, group, channel string) error
	// GroupDiscard removes channel from group. Removing a non-member is a no-op.
	GroupDiscard(ctx context.Context, group, channel string) error
	// GroupSend delivers one copy of msg to every channel in group at call time.
	GroupSend(ctx context.Context, group string, msg message.Message) error
	// Receive blocks until a message addressed to channel is available.
	// Cancelling ctx must never consume a message.
	Receive(ctx context.Context, channel string) (message.Message, error)
}

// ChannelSender is implemented by backends that can address a single channel.
type ChannelSender interface {
	Send(ctx context.Context, channel string, msg message.Message) error
}

// Flusher is implemented by backends that can drop all of their state.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Closer is implemented by backends holding resources that must be released.
type Closer interface {
	Close(ctx context.Context) error
}

const maxNameLength = 100

var namePattern = regexp.MustCompile(`^[a-zA-Z0-9_.\-!]+$`)

// ValidateName checks a group or channel name.
func ValidateName(kind, name string) error {
	if len(name) == 0 || len(name) >= maxNameLength || !namePattern.MatchString(name) {
		return errors.Errorf(ErrCodeInvalidName, ErrInvalidName,
			"%s name %q must be shorter than %d characters and only contain ASCII alphanumerics, hyphens, underscores, periods or '!'", kind, name, maxNameLength)
	}
	return nil
}
