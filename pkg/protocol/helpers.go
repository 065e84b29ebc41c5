package protocol

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/teslashibe/go-steadyscan/pkg/frame"
)

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewFrameMessage creates a frame message from a captured frame
func NewFrameMessage(f *frame.Frame, deviceOrientation string) (*Message, error) {
	return NewMessage(TypeFrame, FrameData{
		Width:       f.Width,
		Height:      f.Height,
		Format:      f.Format.String(),
		Data:        base64.StdEncoding.EncodeToString(f.Data),
		FrameID:     f.Seq,
		Orientation: deviceOrientation,
		Intrinsics:  f.Intrinsics,
	})
}

// NewDismissMessage creates a dismiss message
func NewDismissMessage(payload string) (*Message, error) {
	return NewMessage(TypeDismiss, DismissData{Payload: payload})
}

// NewStabilityMessage creates a stability message
func NewStabilityMessage(stable bool) (*Message, error) {
	return NewMessage(TypeStability, StabilityData{Stable: stable})
}

// NewBarcodeMessage creates a barcode message
func NewBarcodeMessage(payload, format, backend string) (*Message, error) {
	return NewMessage(TypeBarcode, BarcodeData{
		Payload: payload,
		Format:  format,
		Backend: backend,
	})
}

// NewErrorMessage creates an error message
func NewErrorMessage(code, message string) (*Message, error) {
	return NewMessage(TypeError, ErrorData{Code: code, Message: message})
}

// NewPingMessage creates a ping message
func NewPingMessage(id string) (*Message, error) {
	return NewMessage(TypePing, PingData{
		ID:        id,
		Timestamp: time.Now().UnixMilli(),
	})
}

// NewPongMessage creates a pong response message
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

// =============================================================================
// Helper functions for parsing messages
// =============================================================================

// GetFrameData extracts frame data from a message
func (m *Message) GetFrameData() (*FrameData, error) {
	var data FrameData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// DecodeFrameData decodes the base64 image data
func (f *FrameData) DecodeFrameData() ([]byte, error) {
	return base64.StdEncoding.DecodeString(f.Data)
}

// ToFrame decodes the payload into a validated frame. The device
// orientation is mapped to the capture orientation.
func (f *FrameData) ToFrame(captured time.Time) (*frame.Frame, error) {
	format, err := frame.ParseFormat(f.Format)
	if err != nil {
		return nil, err
	}

	data, err := f.DecodeFrameData()
	if err != nil {
		return nil, fmt.Errorf("decode frame data: %w", err)
	}

	fr := &frame.Frame{
		Seq:         f.FrameID,
		Width:       f.Width,
		Height:      f.Height,
		Format:      format,
		Data:        data,
		Captured:    captured,
		Orientation: frame.OrientationFromDevice(f.Orientation),
		Intrinsics:  f.Intrinsics,
	}
	if err := fr.Validate(); err != nil {
		return nil, err
	}
	return fr, nil
}

// GetDismissData extracts dismiss data from a message
func (m *Message) GetDismissData() (*DismissData, error) {
	var data DismissData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetStabilityData extracts stability data from a message
func (m *Message) GetStabilityData() (*StabilityData, error) {
	var data StabilityData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetBarcodeData extracts barcode data from a message
func (m *Message) GetBarcodeData() (*BarcodeData, error) {
	var data BarcodeData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetErrorData extracts error data from a message
func (m *Message) GetErrorData() (*ErrorData, error) {
	var data ErrorData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPingData extracts ping data from a message
func (m *Message) GetPingData() (*PingData, error) {
	var data PingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPongData extracts pong data from a message
func (m *Message) GetPongData() (*PongData, error) {
	var data PongData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
