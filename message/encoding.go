package message

import (
	"encoding/json"
	"fmt"

	"github.com/infigaming-com/go-channels/errors"
)

// Encoding selects how the payload of a websocket.receive event is decoded
// before it reaches the receive hook.
type Encoding string

const (
	// EncodingRaw passes text or bytes through untouched.
	EncodingRaw   Encoding = ""
	EncodingText  Encoding = "text"
	EncodingBytes Encoding = "bytes"
	EncodingJSON  Encoding = "json"
)

// ParseEncoding validates a configured encoding name.
func ParseEncoding(s string) (Encoding, error) {
	switch e := Encoding(s); e {
	case EncodingRaw, EncodingText, EncodingBytes, EncodingJSON:
		return e, nil
	default:
		return "", errors.Errorf(ErrCodeUnknownEncoding, ErrDecode, "unsupported encoding %q", s)
	}
}

// Decode extracts the payload of a websocket.receive event.
func Decode(enc Encoding, m Message) (any, error) {
	text, hasText := m.Text()
	data, hasBytes := m.Bytes()

	switch enc {
	case EncodingText:
		if !hasText {
			return nil, errors.NewError(ErrCodeUnexpectedFrame, "expected text websocket messages, but got bytes", ErrDecode)
		}
		return text, nil

	case EncodingBytes:
		if !hasBytes {
			return nil, errors.NewError(ErrCodeUnexpectedFrame, "expected bytes websocket messages, but got text", ErrDecode)
		}
		return data, nil

	case EncodingJSON:
		var raw []byte
		switch {
		case hasText:
			raw = []byte(text)
		case hasBytes:
			raw = data
		default:
			return nil, errors.NewError(ErrCodeUnexpectedFrame, "websocket message carries neither text nor bytes", ErrDecode)
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, errors.NewError(ErrCodeMalformedJSON, "malformed JSON data received", fmt.Errorf("%w: %v", ErrDecode, err))
		}
		return v, nil

	case EncodingRaw:
		if hasText {
			return text, nil
		}
		return data, nil

	default:
		return nil, errors.Errorf(ErrCodeUnknownEncoding, ErrDecode, "unsupported encoding %q", string(enc))
	}
}
