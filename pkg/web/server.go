// Package web provides the scan server's HTTP API and live dashboard feed
package web

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	"github.com/teslashibe/go-steadyscan/internal/log"
	"github.com/teslashibe/go-steadyscan/pkg/hub"
	"github.com/teslashibe/go-steadyscan/pkg/frame"
	"github.com/teslashibe/go-steadyscan/pkg/ingest"
	"github.com/teslashibe/go-steadyscan/pkg/vision"
)

// maxEvents is the number of session events kept for /api/events
const maxEvents = 200

// Preview stream settings, per camera
const (
	previewInterval = 500 * time.Millisecond
	previewQuality  = 60
)

// Status is the server summary returned by /api/status
type Status struct {
	Uptime    string       `json:"uptime"`
	Detector  string       `json:"detector"`
	Cameras   int          `json:"cameras"`
	Dashboard int          `json:"dashboard_clients"`
	Preview   int          `json:"preview_clients"`
	Ingest    ingest.Stats `json:"ingest"`
	Barcodes  int64        `json:"barcodes"`
}

// Server is the web API server. It owns the camera ingest routes and fans
// session events out to dashboard clients.
type Server struct {
	app      *fiber.App
	port     string
	cameras  *ingest.Hub
	detector string
	started  time.Time
	logger   *slog.Logger

	// Event buffer (last maxEvents entries)
	events   []ingest.Event
	barcodes int64
	eventsMu sync.RWMutex

	// Hubs for websocket broadcast
	eventHub   *hub.Hub
	previewHub *hub.Hub

	previewMu   sync.Mutex
	lastPreview map[string]time.Time
}

// NewServer creates the server and subscribes to the camera hub's events
func NewServer(port string, cameras *ingest.Hub, detector string) *Server {
	s := &Server{
		port:        port,
		cameras:     cameras,
		detector:    detector,
		started:     time.Now(),
		logger:      log.For("web"),
		events:      make([]ingest.Event, 0, maxEvents),
		eventHub:    hub.New("events"),
		previewHub:  hub.New("preview"),
		lastPreview: make(map[string]time.Time),
	}
	cameras.OnEvent(s.AddEvent)
	cameras.OnFrame(s.AddPreview)

	app := fiber.New(fiber.Config{
		AppName:               "steadyscan",
		DisableStartupMessage: true,
		BodyLimit:             16 * 1024 * 1024, // Raw BGRA frames over REST tooling
	})

	// CORS for local development
	app.Use(cors.New())

	// API routes
	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/events", s.handleGetEvents)
	api.Get("/config", s.handleGetConfig)
	api.Put("/config", s.handlePutConfig)
	api.Get("/config/presets", s.handleListPresets)
	api.Put("/config/presets/:name", s.handleApplyPreset)
	cameras.RegisterAPIRoutes(api)

	// Camera ingest
	cameras.RegisterRoutes(app)

	// WebSocket upgrade middleware
	app.Use("/ws/events", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/events", websocket.New(s.handleEventsWS))

	app.Use("/ws/preview", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/preview", websocket.New(s.handlePreviewWS))

	s.app = app
	return s
}

// App returns the underlying Fiber app
func (s *Server) App() *fiber.App {
	return s.app
}

// Start starts the event hub and blocks serving HTTP
func (s *Server) Start() error {
	s.logger.Info("scan server listening", "addr", "http://localhost:"+s.port)

	go s.eventHub.Run()
	go s.previewHub.Run()

	return s.app.Listen(":" + s.port)
}

// StartAsync starts the web server in a goroutine
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			s.logger.Error("web server error", "error", err)
		}
	}()
}

// AddEvent records a session event and broadcasts it to dashboard clients
func (s *Server) AddEvent(e ingest.Event) {
	s.eventsMu.Lock()
	s.events = append(s.events, e)
	if len(s.events) > maxEvents {
		s.events = s.events[1:]
	}
	if e.Type == ingest.EventBarcode {
		s.barcodes++
	}
	s.eventsMu.Unlock()

	if err := s.eventHub.BroadcastJSON(e); err != nil {
		s.logger.Warn("broadcast event", "error", err)
	}
}

// AddPreview broadcasts a JPEG of the frame to preview clients, at most once
// per previewInterval per camera. Nothing is encoded without a viewer.
func (s *Server) AddPreview(cameraID string, f *frame.Frame) {
	if s.previewHub.ClientCount() == 0 || !s.previewDue(cameraID, time.Now()) {
		return
	}

	jpeg, err := vision.EncodeJPEGQuality(f, previewQuality)
	if err != nil {
		s.logger.Debug("preview encode failed", "camera", cameraID, "error", err)
		return
	}
	s.previewHub.BroadcastFrame(cameraID, jpeg)
}

// previewDue reports whether a camera's next preview may be sent at now,
// and if so records it as sent.
func (s *Server) previewDue(cameraID string, now time.Time) bool {
	s.previewMu.Lock()
	defer s.previewMu.Unlock()

	if last, ok := s.lastPreview[cameraID]; ok && now.Sub(last) < previewInterval {
		return false
	}
	s.lastPreview[cameraID] = now
	return true
}

// Events returns a copy of the buffered events, oldest first
func (s *Server) Events() []ingest.Event {
	s.eventsMu.RLock()
	defer s.eventsMu.RUnlock()
	out := make([]ingest.Event, len(s.events))
	copy(out, s.events)
	return out
}

// Status returns the current server summary
func (s *Server) Status() Status {
	s.eventsMu.RLock()
	barcodes := s.barcodes
	s.eventsMu.RUnlock()

	return Status{
		Uptime:    time.Since(s.started).Round(time.Second).String(),
		Detector:  s.detector,
		Cameras:   s.cameras.CameraCount(),
		Dashboard: s.eventHub.ClientCount(),
		Preview:   s.previewHub.ClientCount(),
		Ingest:    s.cameras.GetStats(),
		Barcodes:  barcodes,
	}
}

// Shutdown gracefully stops the web server
func (s *Server) Shutdown() error {
	s.eventHub.Stop()
	s.previewHub.Stop()
	return s.app.Shutdown()
}
