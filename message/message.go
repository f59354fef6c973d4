// Package message defines the value passed between transports, the channel
// layer and connection handlers, and the rules that map a message to the
// handler that processes it.
package message

import (
	"maps"
	"strings"

	"github.com/infigaming-com/go-channels/errors"
)

// Message is a mapping with a required "type" field. Once produced it is
// treated as immutable; use Clone before changing a received message.
type Message map[string]any

// Websocket event types, named after their ASGI counterparts.
const (
	TypeConnect    = "websocket.connect"
	TypeAccept     = "websocket.accept"
	TypeReceive    = "websocket.receive"
	TypeSend       = "websocket.send"
	TypeDisconnect = "websocket.disconnect"
	TypeClose      = "websocket.close"
)

// Websocket close codes used by the core.
const (
	CloseNormal          = 1000
	CloseUnsupportedData = 1003
	CloseAbnormal        = 1006
	CloseInternalError   = 1011
)

// Field names of websocket events.
const (
	FieldType  = "type"
	FieldText  = "text"
	FieldBytes = "bytes"
	FieldCode  = "code"
)

// New builds a message of the given type with the given extra fields.
func New(msgType string, fields map[string]any) Message {
	msg := make(Message, len(fields)+1)
	maps.Copy(msg, fields)
	msg[FieldType] = msgType
	return msg
}

// Type returns the message type, or "" when it is missing or not a string.
func (m Message) Type() string {
	t, _ := m[FieldType].(string)
	return t
}

// Clone returns a shallow copy of m.
func (m Message) Clone() Message {
	if m == nil {
		return nil
	}
	return maps.Clone(m)
}

// Text returns the "text" field and whether it was present.
func (m Message) Text() (string, bool) {
	t, ok := m[FieldText].(string)
	return t, ok
}

// Bytes returns the "bytes" field and whether it was present.
func (m Message) Bytes() ([]byte, bool) {
	b, ok := m[FieldBytes].([]byte)
	return b, ok
}

// Code returns the "code" field as an int; def is returned when it is absent.
func (m Message) Code(def int) int {
	switch c := m[FieldCode].(type) {
	case int:
		return c
	case int64:
		return int(c)
	case float64:
		return int(c)
	default:
		return def
	}
}

// Validate reports a routing error when the message type is unusable.
func (m Message) Validate() error {
	_, err := HandlerName(m)
	return err
}

// HandlerName maps a message type to the name of the handler that receives
// it: dots become underscores, so "chat.message" is handled by "chat_message".
func HandlerName(m Message) (string, error) {
	raw, ok := m[FieldType]
	if !ok {
		return "", errors.NewError(ErrCodeMissingType, "incoming message has no 'type' attribute", ErrRouting)
	}
	t, ok := raw.(string)
	if !ok || t == "" {
		return "", errors.Errorf(ErrCodeMissingType, ErrRouting, "incoming message has an invalid 'type' attribute %v", raw)
	}
	return TypeHandlerName(t)
}

// TypeHandlerName is HandlerName for a bare type string.
func TypeHandlerName(msgType string) (string, error) {
	if msgType == "" {
		return "", errors.NewError(ErrCodeMissingType, "incoming message has an empty 'type' attribute", ErrRouting)
	}
	if strings.HasPrefix(msgType, "_") {
		return "", errors.Errorf(ErrCodeMalformedType, ErrRouting, "malformed type %q in message (leading underscore)", msgType)
	}
	return strings.ReplaceAll(msgType, ".", "_"), nil
}
