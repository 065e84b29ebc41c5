package video

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Video errors
var (
	ErrNoProducer   = errors.New("video: producer not found")
	ErrNotConnected = errors.New("video: not connected")
	ErrTimeout      = errors.New("video: timeout waiting for video track")
)

// Signalling message types used by the GStreamer webrtcsink server
const (
	sigWelcome        = "welcome"
	sigList           = "list"
	sigStartSession   = "startSession"
	sigSessionStarted = "sessionStarted"
	sigPeer           = "peer"
	sigEndSession     = "endSession"
)

// signal is one signalling message. Only the fields relevant to Type are set.
type signal struct {
	Type      string      `json:"type"`
	PeerID    string      `json:"peerId,omitempty"`
	SessionID string      `json:"sessionId,omitempty"`
	Producers []producer  `json:"producers,omitempty"`
	SDP       *sdpPayload `json:"sdp,omitempty"`
	ICE       *icePayload `json:"ice,omitempty"`
}

type producer struct {
	ID   string            `json:"id"`
	Meta map[string]string `json:"meta"`
}

type sdpPayload struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

type icePayload struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex"`
}

func parseSignal(data []byte) (signal, error) {
	var s signal
	if err := json.Unmarshal(data, &s); err != nil {
		return signal{}, fmt.Errorf("video: parse signal: %w", err)
	}
	if s.Type == "" {
		return signal{}, fmt.Errorf("video: signal missing type")
	}
	return s, nil
}

// producerNamed returns the ID of the producer whose meta name matches.
// An empty name picks the first producer.
func (s signal) producerNamed(name string) (string, error) {
	for _, p := range s.Producers {
		if name == "" || p.Meta["name"] == name {
			return p.ID, nil
		}
	}
	return "", fmt.Errorf("%w: %q not in %d producers", ErrNoProducer, name, len(s.Producers))
}
