// Package wire implements the framed, JSON-encoded protocol shared by the
// broker and the client: a 4-byte big-endian length prefix followed by
// exactly that many bytes of UTF-8 JSON. The JSON value is always an array
// whose first element is the target channel name.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

// SubscribeChannel is the reserved channel name used for the subscription
// declaration frame a client sends immediately after connecting. It may not
// be used as a user channel.
const SubscribeChannel = "__subscribe__"

// MaxFrameSize caps the length a frame may declare, guarding against
// memory exhaustion from a hostile or broken peer.
const MaxFrameSize = 16 * 1024 * 1024 // 16 MiB

// LengthPrefixSize is the width, in bytes, of the frame length header.
const LengthPrefixSize = 4

// Message is a single published or subscribed value: a channel name
// followed by an arbitrary, JSON-serializable tail.
type Message struct {
	Channel string
	Args    []any
}

// New builds a Message from a channel and its trailing arguments.
func New(channel string, args ...any) Message {
	return Message{Channel: channel, Args: args}
}

// EncodeError indicates the message could not be turned into a valid frame:
// either the channel name is missing, or the payload does not marshal to
// JSON.
type EncodeError struct {
	Err error
}

func (e *EncodeError) Error() string { return fmt.Sprintf("wire: encode: %v", e.Err) }
func (e *EncodeError) Unwrap() error { return e.Err }

// FrameError indicates malformed data was read from the wire: bad JSON, a
// JSON root that isn't an array, an array with no channel element, or a
// declared frame length that exceeds MaxFrameSize.
type FrameError struct {
	Err error
}

func (e *FrameError) Error() string { return fmt.Sprintf("wire: frame: %v", e.Err) }
func (e *FrameError) Unwrap() error { return e.Err }

var errEmptyChannel = errors.New("channel name must be a non-empty string")

// MarshalJSON renders the message as a JSON array: [channel, args...].
func (m Message) MarshalJSON() ([]byte, error) {
	if m.Channel == "" {
		return nil, errEmptyChannel
	}
	tuple := make([]any, 0, len(m.Args)+1)
	tuple = append(tuple, m.Channel)
	tuple = append(tuple, m.Args...)
	return json.Marshal(tuple)
}

// UnmarshalJSON parses a JSON array into a Message. The first element must
// be a non-empty string.
func (m *Message) UnmarshalJSON(data []byte) error {
	var tuple []json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return fmt.Errorf("root value is not a JSON array: %w", err)
	}
	if len(tuple) == 0 {
		return errEmptyChannel
	}
	var channel string
	if err := json.Unmarshal(tuple[0], &channel); err != nil || channel == "" {
		return errEmptyChannel
	}
	args := make([]any, 0, len(tuple)-1)
	for _, raw := range tuple[1:] {
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("decoding argument: %w", err)
		}
		args = append(args, v)
	}
	m.Channel = channel
	m.Args = args
	return nil
}

// Encode marshals a message into its JSON payload (without the length
// prefix). Returns an *EncodeError on failure.
func Encode(m Message) ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, &EncodeError{Err: err}
	}
	return b, nil
}

// Decode parses a single frame's JSON payload into a Message. Returns a
// *FrameError on failure.
func Decode(payload []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(payload, &m); err != nil {
		return Message{}, &FrameError{Err: err}
	}
	return m, nil
}
