// Package hub provides a thread-safe websocket broadcast hub
// using the idiomatic Go channel-based fan-out pattern.
package hub

import (
	"bytes"
	"encoding/json"
)

// MessageType indicates the websocket message format
type MessageType int

const (
	// JSONMessage is a JSON-encoded message
	JSONMessage MessageType = iota
	// BinaryMessage is a tagged preview frame, see NewFrameMessage
	BinaryMessage
)

// Message represents a message to be broadcast to clients
type Message struct {
	Type MessageType
	Data []byte
}

// NewJSONMessage creates a JSON message from pre-encoded bytes
func NewJSONMessage(data []byte) Message {
	return Message{Type: JSONMessage, Data: data}
}

// EncodeJSON marshals v into a JSON message
func EncodeJSON(v any) (Message, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Message{}, err
	}
	return NewJSONMessage(data), nil
}

// NewFrameMessage wraps a JPEG preview as the source ID, a zero byte,
// then the image.
func NewFrameMessage(source string, jpeg []byte) Message {
	data := make([]byte, 0, len(source)+1+len(jpeg))
	data = append(data, source...)
	data = append(data, 0)
	data = append(data, jpeg...)
	return Message{Type: BinaryMessage, Data: data}
}

// SplitFrameMessage reverses NewFrameMessage
func SplitFrameMessage(data []byte) (source string, jpeg []byte, ok bool) {
	i := bytes.IndexByte(data, 0)
	if i < 0 {
		return "", nil, false
	}
	return string(data[:i]), data[i+1:], true
}
