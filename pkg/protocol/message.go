// Package protocol defines the WebSocket message types exchanged between a
// camera client and the scan server.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Camera → Server messages
	TypeFrame   MessageType = "frame"   // Captured frame
	TypeDismiss MessageType = "dismiss" // User dismissed the barcode notification

	// Server → Camera messages
	TypeStability MessageType = "stability" // Stability indicator changed
	TypeBarcode   MessageType = "barcode"   // Barcode decoded; camera should pause
	TypeError     MessageType = "error"     // Rejected message

	// Bidirectional
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v interface{}) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("failed to parse message: missing type")
	}
	return &msg, nil
}

// =============================================================================
// Camera → Server Message Types
// =============================================================================

// FrameData contains one captured frame
type FrameData struct {
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Format  string `json:"format"` // "jpeg", "bgra", "gray"
	Data    string `json:"data"`   // base64 encoded
	FrameID uint64 `json:"frame_id,omitempty"`

	// Device metadata passed through to the vision backends
	Orientation string      `json:"orientation,omitempty"` // Device orientation, e.g. "landscape_left"
	Intrinsics  *[9]float64 `json:"intrinsics,omitempty"`  // 3x3 camera matrix, row major
}

// DismissData acknowledges a barcode notification
type DismissData struct {
	Payload string `json:"payload,omitempty"` // The barcode being dismissed, informational
}

// =============================================================================
// Server → Camera Message Types
// =============================================================================

// StabilityData reports the stability indicator
type StabilityData struct {
	Stable bool `json:"stable"`
}

// BarcodeData reports a decoded barcode
type BarcodeData struct {
	Payload string `json:"payload"`
	Format  string `json:"format"`
	Backend string `json:"backend,omitempty"`
}

// ErrorData reports a message the server could not handle
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	ErrCodeBadMessage = "bad_message"
	ErrCodeBadFrame   = "bad_frame"
	ErrCodeUnknown    = "unknown_type"
)

// =============================================================================
// Bidirectional Message Types
// =============================================================================

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
