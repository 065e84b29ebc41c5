// Package video receives a remote camera's H264 stream over WebRTC and
// decodes it into frames for scanning.
package video

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v3"
	"github.com/teslashibe/go-steadyscan/internal/log"
)

// Config holds WebRTC client settings
type Config struct {
	SignallingURL  string        // ws://host:8443
	Producer       string        // Producer meta name; empty picks the first
	ConnectTimeout time.Duration // Dial through first video track
	ICEServers     []string      // STUN/TURN URLs; empty for LAN only
}

// DefaultConfig returns settings for a signalling server on the local network
func DefaultConfig(signallingURL string) Config {
	return Config{
		SignallingURL:  signallingURL,
		ConnectTimeout: 15 * time.Second,
	}
}

// Client connects to a WebRTC video producer via GStreamer signalling
type Client struct {
	config Config
	logger *slog.Logger

	ws      *websocket.Conn
	pc      *webrtc.PeerConnection
	wsMutex sync.Mutex // Serializes signalling writes

	myPeerID   string
	producerID string

	sessionMu sync.RWMutex
	sessionID string

	tracks chan *webrtc.TrackRemote
	track  *webrtc.TrackRemote

	closed atomic.Bool
	gaps   atomic.Uint64
}

// NewClient creates a new WebRTC video client
func NewClient(cfg Config) *Client {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 15 * time.Second
	}
	return &Client{
		config: cfg,
		logger: log.For("video").With("url", cfg.SignallingURL),
		tracks: make(chan *webrtc.TrackRemote, 1),
	}
}

// Connect establishes the WebRTC session and waits for the video track
func (c *Client) Connect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.ConnectTimeout)
	defer cancel()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	var err error
	c.ws, _, err = dialer.DialContext(ctx, c.config.SignallingURL, nil)
	if err != nil {
		return fmt.Errorf("signalling connect failed: %w", err)
	}

	welcome, err := c.expect(ctx, sigWelcome)
	if err != nil {
		return fmt.Errorf("welcome failed: %w", err)
	}
	c.myPeerID = welcome.PeerID

	if err := c.send(signal{Type: sigList}); err != nil {
		return fmt.Errorf("list producers: %w", err)
	}
	list, err := c.expect(ctx, sigList)
	if err != nil {
		return fmt.Errorf("find producer failed: %w", err)
	}
	if c.producerID, err = list.producerNamed(c.config.Producer); err != nil {
		return err
	}

	if err := c.createPeerConnection(); err != nil {
		return fmt.Errorf("peer connection failed: %w", err)
	}
	if err := c.send(signal{Type: sigStartSession, PeerID: c.producerID}); err != nil {
		return fmt.Errorf("start session failed: %w", err)
	}

	go c.handleSignalling()

	c.logger.Info("waiting for video track", "peer", c.myPeerID, "producer", c.producerID)
	select {
	case c.track = <-c.tracks:
		c.logger.Info("video connected", "codec", c.track.Codec().MimeType)
		return nil
	case <-ctx.Done():
		return ErrTimeout
	}
}

// expect reads signalling messages until one of the wanted type arrives
func (c *Client) expect(ctx context.Context, want string) (signal, error) {
	if deadline, ok := ctx.Deadline(); ok {
		c.ws.SetReadDeadline(deadline)
		defer c.ws.SetReadDeadline(time.Time{})
	}

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return signal{}, err
		}
		msg, err := parseSignal(data)
		if err != nil {
			return signal{}, err
		}
		if msg.Type == want {
			return msg, nil
		}
		c.logger.Debug("ignoring signal", "type", msg.Type, "want", want)
	}
}

func (c *Client) send(msg signal) error {
	c.wsMutex.Lock()
	defer c.wsMutex.Unlock()
	return c.ws.WriteJSON(msg)
}

func (c *Client) createPeerConnection() error {
	config := webrtc.Configuration{}
	if len(c.config.ICEServers) > 0 {
		config.ICEServers = []webrtc.ICEServer{{URLs: c.config.ICEServers}}
	}

	var err error
	c.pc, err = webrtc.NewPeerConnection(config)
	if err != nil {
		return err
	}

	// Receive only
	if _, err = c.pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		return err
	}

	c.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		if track.Kind() != webrtc.RTPCodecTypeVideo {
			return
		}
		select {
		case c.tracks <- track:
		default:
			c.logger.Warn("ignoring extra video track", "id", track.ID())
		}
	})

	c.pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate != nil {
			c.sendICECandidate(candidate)
		}
	})

	c.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		c.logger.Info("connection state", "state", state.String())
	})

	return nil
}

func (c *Client) handleSignalling() {
	for !c.closed.Load() {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if !c.closed.Load() {
				c.logger.Warn("signalling error", "error", err)
			}
			return
		}

		msg, err := parseSignal(data)
		if err != nil {
			c.logger.Warn("bad signal", "error", err)
			continue
		}

		switch msg.Type {
		case sigSessionStarted:
			c.sessionMu.Lock()
			c.sessionID = msg.SessionID
			c.sessionMu.Unlock()

		case sigPeer:
			c.handlePeerMessage(msg)

		case sigEndSession:
			c.logger.Info("session ended by producer")
			return
		}
	}
}

func (c *Client) handlePeerMessage(msg signal) {
	if msg.SDP != nil && msg.SDP.Type == "offer" {
		offer := webrtc.SessionDescription{
			Type: webrtc.SDPTypeOffer,
			SDP:  msg.SDP.SDP,
		}
		if err := c.answer(offer); err != nil {
			c.logger.Error("negotiation failed", "error", err)
		}
	}

	if msg.ICE != nil {
		err := c.pc.AddICECandidate(webrtc.ICECandidateInit{
			Candidate:     msg.ICE.Candidate,
			SDPMid:        msg.ICE.SDPMid,
			SDPMLineIndex: msg.ICE.SDPMLineIndex,
		})
		if err != nil {
			c.logger.Warn("add ICE candidate failed", "error", err)
		}
	}
}

func (c *Client) answer(offer webrtc.SessionDescription) error {
	if err := c.pc.SetRemoteDescription(offer); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("create answer: %w", err)
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}

	return c.send(signal{
		Type:      sigPeer,
		SessionID: c.session(),
		SDP:       &sdpPayload{Type: answer.Type.String(), SDP: answer.SDP},
	})
}

func (c *Client) sendICECandidate(candidate *webrtc.ICECandidate) {
	session := c.session()
	if session == "" {
		return
	}

	init := candidate.ToJSON()
	err := c.send(signal{
		Type:      sigPeer,
		SessionID: session,
		ICE: &icePayload{
			Candidate:     init.Candidate,
			SDPMid:        init.SDPMid,
			SDPMLineIndex: init.SDPMLineIndex,
		},
	})
	if err != nil {
		c.logger.Warn("send ICE candidate failed", "error", err)
	}
}

func (c *Client) session() string {
	c.sessionMu.RLock()
	defer c.sessionMu.RUnlock()
	return c.sessionID
}

// Run decodes the video track and delivers frames to sink until ctx is done
// or the track ends.
func (c *Client) Run(ctx context.Context, sink Sink) error {
	if c.track == nil {
		return ErrNotConnected
	}

	dec, err := StartDecoder(ctx, sink)
	if err != nil {
		return err
	}
	defer dec.Close()

	// ReadRTP only returns once the peer connection is closed
	stop := context.AfterFunc(ctx, func() { c.Close() })
	defer stop()

	var asm assembler
	for {
		pkt, _, err := c.track.ReadRTP()
		if err != nil {
			if c.closed.Load() {
				return nil
			}
			return fmt.Errorf("video track: %w", err)
		}

		au, err := asm.push(pkt)
		c.gaps.Store(asm.gaps)
		if err != nil {
			c.logger.Debug("depacketize failed", "error", err)
			continue
		}
		if au == nil {
			continue
		}
		if err := dec.Write(au); err != nil {
			return err
		}
	}
}

// Gaps returns how many access units were discarded for packet loss
func (c *Client) Gaps() uint64 {
	return c.gaps.Load()
}

// Close closes the WebRTC connection
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	var err error
	if c.pc != nil {
		err = c.pc.Close()
	}
	if c.ws != nil {
		c.ws.Close()
	}
	return err
}
