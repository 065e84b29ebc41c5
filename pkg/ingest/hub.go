// Package ingest provides the WebSocket hub for camera connections.
// Every connection gets its own scan session; frames are handled on the
// connection's read goroutine, in the order they arrive.
package ingest

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/teslashibe/go-steadyscan/internal/log"
	"github.com/teslashibe/go-steadyscan/pkg/detection"
	"github.com/teslashibe/go-steadyscan/pkg/frame"
	"github.com/teslashibe/go-steadyscan/pkg/protocol"
	"github.com/teslashibe/go-steadyscan/pkg/session"
	"github.com/teslashibe/go-steadyscan/pkg/stability"
)

// Conn is the write side of a camera connection
type Conn interface {
	WriteMessage(messageType int, data []byte) error
}

// CameraConnection represents a connected camera
type CameraConnection struct {
	ID        string
	Conn      Conn
	Session   *session.Session
	Connected time.Time

	mu       sync.Mutex // Serializes writes and guards LastSeen
	lastSeen time.Time
}

// Send sends a message to the camera
func (c *CameraConnection) Send(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(websocket.TextMessage, data)
}

func (c *CameraConnection) touch() {
	c.mu.Lock()
	c.lastSeen = time.Now()
	c.mu.Unlock()
}

// LastSeen returns the time of the last message from the camera
func (c *CameraConnection) LastSeen() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeen
}

// EventType identifies a session event
type EventType string

const (
	EventConnected    EventType = "connected"
	EventDisconnected EventType = "disconnected"
	EventStability    EventType = "stability"
	EventBarcode      EventType = "barcode"
	EventDismissed    EventType = "dismissed"
)

// Event is a session signal published to observers such as the dashboard
type Event struct {
	Camera  string             `json:"camera"`
	Type    EventType          `json:"type"`
	Stable  bool               `json:"stable,omitempty"`
	Barcode *detection.Barcode `json:"barcode,omitempty"`
	Time    time.Time          `json:"time"`
}

// Hub manages WebSocket connections from cameras
type Hub struct {
	mu        sync.RWMutex
	cameras   map[string]*CameraConnection
	factory   Factory
	stability stability.Config
	logger    *slog.Logger

	// Event subscribers, called in registration order
	onEvent []func(Event)
	onFrame []func(cameraID string, f *frame.Frame)

	// Stats
	messagesReceived atomic.Uint64
	messagesSent     atomic.Uint64
	framesReceived   atomic.Uint64
	framesRejected   atomic.Uint64
}

// NewHub creates a new camera hub. New sessions use cfg until
// SetStabilityConfig replaces it.
func NewHub(factory Factory, cfg stability.Config) *Hub {
	return &Hub{
		cameras:   make(map[string]*CameraConnection),
		factory:   factory,
		stability: cfg,
		logger:    log.For("ingest"),
	}
}

// OnEvent subscribes to session events. Callbacks run on the goroutine that
// produced the event, sometimes with the session locked, and must not block.
func (h *Hub) OnEvent(callback func(Event)) {
	h.mu.Lock()
	h.onEvent = append(h.onEvent, callback)
	h.mu.Unlock()
}

// OnFrame subscribes to every valid frame before it reaches the session.
// Callbacks run on the camera's read goroutine and must not block.
func (h *Hub) OnFrame(callback func(cameraID string, f *frame.Frame)) {
	h.mu.Lock()
	h.onFrame = append(h.onFrame, callback)
	h.mu.Unlock()
}

// StabilityConfig returns the config applied to new sessions
func (h *Hub) StabilityConfig() stability.Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.stability
}

// SetStabilityConfig replaces the config for sessions created from now on.
// Connected cameras keep the config they started with.
func (h *Hub) SetStabilityConfig(cfg stability.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	h.mu.Lock()
	h.stability = cfg
	h.mu.Unlock()
	return nil
}

// RegisterRoutes registers WebSocket routes on a Fiber app
func (h *Hub) RegisterRoutes(app *fiber.App) {
	// WebSocket upgrade middleware
	app.Use("/ws/camera", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// Camera connection endpoint
	app.Get("/ws/camera", websocket.New(h.handleCamera))
	app.Get("/ws/camera/:id", websocket.New(h.handleCamera))
}

// handleCamera handles a camera WebSocket connection
func (h *Hub) handleCamera(c *websocket.Conn) {
	cameraID := c.Params("id")
	if cameraID == "" {
		cameraID = uuid.NewString()
	}

	cam, cleanup, ok := h.attach(cameraID, c)
	if !ok {
		h.logger.Warn("camera id already connected", "camera", cameraID)
		if msg, err := protocol.NewErrorMessage(protocol.ErrCodeBadMessage, "camera id already connected"); err == nil {
			if data, err := msg.Bytes(); err == nil {
				c.WriteMessage(websocket.TextMessage, data)
			}
		}
		return
	}
	defer h.detach(cam, cleanup)

	// Read loop
	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			h.logger.Debug("camera read error", "camera", cameraID, "error", err)
			return
		}

		cam.touch()
		h.messagesReceived.Add(1)
		h.handleMessage(cam, data)
	}
}

// attach registers a camera and creates its session
func (h *Hub) attach(cameraID string, conn Conn) (*CameraConnection, func(), bool) {
	h.mu.Lock()
	if _, exists := h.cameras[cameraID]; exists {
		h.mu.Unlock()
		return nil, nil, false
	}

	now := time.Now()
	cam := &CameraConnection{
		ID:        cameraID,
		Conn:      conn,
		Connected: now,
		lastSeen:  now,
	}
	s, cleanup := h.factory(cameraID, h.stability, &cameraListener{hub: h, cam: cam})
	cam.Session = s
	h.cameras[cameraID] = cam
	count := len(h.cameras)
	h.mu.Unlock()

	h.logger.Info("camera connected", "camera", cameraID, "total", count)
	h.publish(Event{Camera: cameraID, Type: EventConnected, Time: now})
	return cam, cleanup, true
}

func (h *Hub) detach(cam *CameraConnection, cleanup func()) {
	h.mu.Lock()
	delete(h.cameras, cam.ID)
	count := len(h.cameras)
	h.mu.Unlock()

	if cleanup != nil {
		cleanup()
	}

	h.logger.Info("camera disconnected", "camera", cam.ID, "total", count)
	h.publish(Event{Camera: cam.ID, Type: EventDisconnected, Time: time.Now()})
}

// handleMessage processes an incoming message from a camera
func (h *Hub) handleMessage(cam *CameraConnection, data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		h.logger.Debug("parse error", "camera", cam.ID, "error", err)
		h.sendError(cam, protocol.ErrCodeBadMessage, err.Error())
		return
	}

	switch msg.Type {
	case protocol.TypeFrame:
		h.framesReceived.Add(1)
		fd, err := msg.GetFrameData()
		if err != nil {
			h.framesRejected.Add(1)
			h.sendError(cam, protocol.ErrCodeBadFrame, err.Error())
			return
		}
		f, err := fd.ToFrame(capturedAt(msg))
		if err != nil {
			h.framesRejected.Add(1)
			h.sendError(cam, protocol.ErrCodeBadFrame, err.Error())
			return
		}
		h.mu.RLock()
		subs := h.onFrame
		h.mu.RUnlock()
		for _, cb := range subs {
			cb(cam.ID, f)
		}
		cam.Session.HandleFrame(f)

	case protocol.TypeDismiss:
		h.dismiss(cam)

	case protocol.TypePing:
		ping, _ := msg.GetPingData()
		id := ""
		if ping != nil {
			id = ping.ID
		}
		h.sendPong(cam, id, msg.Timestamp)

	default:
		h.sendError(cam, protocol.ErrCodeUnknown, string(msg.Type))
	}
}

// capturedAt uses the envelope timestamp, falling back to now
func capturedAt(msg *protocol.Message) time.Time {
	if msg.Timestamp > 0 {
		return time.UnixMilli(msg.Timestamp)
	}
	return time.Now()
}

func (h *Hub) dismiss(cam *CameraConnection) bool {
	if !cam.Session.Dismiss() {
		return false
	}
	h.publish(Event{Camera: cam.ID, Type: EventDismissed, Time: time.Now()})
	return true
}

// Dismiss resumes tracking on a camera showing a barcode. It reports
// whether the camera was connected and showing one.
func (h *Hub) Dismiss(cameraID string) (found, dismissed bool) {
	cam := h.GetCamera(cameraID)
	if cam == nil {
		return false, false
	}
	return true, h.dismiss(cam)
}

func (h *Hub) sendError(cam *CameraConnection, code, message string) {
	msg, err := protocol.NewErrorMessage(code, message)
	if err != nil {
		return
	}
	h.send(cam, msg)
}

func (h *Hub) sendPong(cam *CameraConnection, id string, pingTS int64) {
	msg, err := protocol.NewPongMessage(id, pingTS, time.Now().UnixMilli())
	if err != nil {
		return
	}
	h.send(cam, msg)
}

func (h *Hub) send(cam *CameraConnection, msg *protocol.Message) {
	h.messagesSent.Add(1)
	if err := cam.Send(msg); err != nil {
		h.logger.Debug("send error", "camera", cam.ID, "type", msg.Type, "error", err)
	}
}

func (h *Hub) publish(e Event) {
	h.mu.RLock()
	subs := h.onEvent
	h.mu.RUnlock()

	for _, cb := range subs {
		cb(e)
	}
}

// cameraListener forwards session signals to the camera and to observers
type cameraListener struct {
	hub *Hub
	cam *CameraConnection
}

func (l *cameraListener) StabilityChanged(stable bool) {
	if msg, err := protocol.NewStabilityMessage(stable); err == nil {
		l.hub.send(l.cam, msg)
	}
	l.hub.publish(Event{Camera: l.cam.ID, Type: EventStability, Stable: stable, Time: time.Now()})
}

func (l *cameraListener) BarcodeFound(code detection.Barcode) {
	if msg, err := protocol.NewBarcodeMessage(code.Payload, code.Format, code.Backend); err == nil {
		l.hub.send(l.cam, msg)
	}
	l.hub.publish(Event{Camera: l.cam.ID, Type: EventBarcode, Barcode: &code, Time: time.Now()})
}

// GetCamera returns a camera connection by ID
func (h *Hub) GetCamera(cameraID string) *CameraConnection {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cameras[cameraID]
}

// CameraCount returns the number of connected cameras
func (h *Hub) CameraCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.cameras)
}

// Stats contains hub statistics
type Stats struct {
	CameraCount      int    `json:"camera_count"`
	MessagesReceived uint64 `json:"messages_received"`
	MessagesSent     uint64 `json:"messages_sent"`
	FramesReceived   uint64 `json:"frames_received"`
	FramesRejected   uint64 `json:"frames_rejected"`
}

// GetStats returns hub statistics
func (h *Hub) GetStats() Stats {
	return Stats{
		CameraCount:      h.CameraCount(),
		MessagesReceived: h.messagesReceived.Load(),
		MessagesSent:     h.messagesSent.Load(),
		FramesReceived:   h.framesReceived.Load(),
		FramesRejected:   h.framesRejected.Load(),
	}
}

// CameraInfo contains info about a connected camera
type CameraInfo struct {
	ID        string        `json:"id"`
	Connected time.Time     `json:"connected"`
	LastSeen  time.Time     `json:"last_seen"`
	State     string        `json:"state"`
	Stable    bool          `json:"stable"`
	Session   session.Stats `json:"session"`
}

// GetCameraInfos returns info about all connected cameras
func (h *Hub) GetCameraInfos() []CameraInfo {
	h.mu.RLock()
	cams := make([]*CameraConnection, 0, len(h.cameras))
	for _, c := range h.cameras {
		cams = append(cams, c)
	}
	h.mu.RUnlock()

	infos := make([]CameraInfo, 0, len(cams))
	for _, c := range cams {
		infos = append(infos, CameraInfo{
			ID:        c.ID,
			Connected: c.Connected,
			LastSeen:  c.LastSeen(),
			State:     c.Session.State().String(),
			Stable:    c.Session.Stable(),
			Session:   c.Session.Stats(),
		})
	}
	return infos
}

// RegisterAPIRoutes registers API routes for camera management
func (h *Hub) RegisterAPIRoutes(api fiber.Router) {
	cameras := api.Group("/cameras")

	// List connected cameras
	cameras.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"cameras": h.GetCameraInfos(),
			"count":   h.CameraCount(),
		})
	})

	// Get hub stats
	cameras.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(h.GetStats())
	})

	// Dismiss the barcode shown on a camera
	cameras.Post("/:id/dismiss", func(c *fiber.Ctx) error {
		found, dismissed := h.Dismiss(c.Params("id"))
		if !found {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "camera not connected"})
		}
		if !dismissed {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "no barcode shown"})
		}
		return c.JSON(fiber.Map{"status": "dismissed"})
	})
}
