// Package frame encodes and decodes the messages of the FerresDB streaming protocol.
//
// Every transport message is one complete JSON object tagged by its "type" field:
//   - client → server: upsert, subscribe, unsubscribe, ping, pong
//   - server → client: ack, event, error, ping, pong
//
// Fields that do not apply to a frame type are omitted on the wire, so a pong
// encodes as exactly {"type":"pong"}.
package frame

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Type is the frame discriminator.
type Type string

const (
	TypeUpsert      Type = "upsert"
	TypeSubscribe   Type = "subscribe"
	TypeUnsubscribe Type = "unsubscribe"
	TypePing        Type = "ping"
	TypePong        Type = "pong"
	TypeAck         Type = "ack"
	TypeEvent       Type = "event"
	TypeError       Type = "error"
)

// ErrUnknownType is returned by Decode for frames with a missing or unrecognised type.
var ErrUnknownType = errors.New("frame: unknown type")

// Frame is the union of all frame fields.
type Frame struct {
	Type Type `json:"type"`

	// upsert, subscribe, unsubscribe, event
	Collection string          `json:"collection,omitempty"`
	Points     json.RawMessage `json:"points,omitempty"`
	Events     []string        `json:"events,omitempty"`

	// ack
	Upserted int   `json:"upserted,omitempty"`
	Failed   int   `json:"failed,omitempty"`
	TookMs   int64 `json:"took_ms,omitempty"`

	// event
	Action    string          `json:"action,omitempty"`
	PointIDs  []string        `json:"point_ids,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`

	// error
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}

// Known reports whether t is a protocol frame type.
func (t Type) Known() bool {
	switch t {
	case TypeUpsert, TypeSubscribe, TypeUnsubscribe, TypePing, TypePong, TypeAck, TypeEvent, TypeError:
		return true
	}
	return false
}

// Encode serializes f.
func Encode(f Frame) ([]byte, error) {
	if !f.Type.Known() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, f.Type)
	}
	return json.Marshal(f)
}

// Decode parses one transport message.
func Decode(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("frame: %w", err)
	}
	if !f.Type.Known() {
		return Frame{}, fmt.Errorf("%w: %q", ErrUnknownType, f.Type)
	}
	return f, nil
}

// Pong returns the heartbeat reply frame.
func Pong() Frame {
	return Frame{Type: TypePong}
}

// Ping returns the heartbeat request frame.
func Ping() Frame {
	return Frame{Type: TypePing}
}
