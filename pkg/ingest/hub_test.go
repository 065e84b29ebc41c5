package ingest

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"
	"github.com/teslashibe/go-steadyscan/pkg/analysis"
	"github.com/teslashibe/go-steadyscan/pkg/detection"
	"github.com/teslashibe/go-steadyscan/pkg/frame"
	"github.com/teslashibe/go-steadyscan/pkg/protocol"
	"github.com/teslashibe/go-steadyscan/pkg/registration"
	"github.com/teslashibe/go-steadyscan/pkg/session"
	"github.com/teslashibe/go-steadyscan/pkg/stability"
)

// mockFactory builds sessions that see no motion and decode payload on
// every pass. An empty payload finds nothing.
func mockFactory(payload string) Factory {
	return func(cameraID string, cfg stability.Config, l session.Listener) (*session.Session, func()) {
		det := detection.NewMock()
		if payload != "" {
			det.DetectFunc = func(f *frame.Frame) ([]detection.Barcode, error) {
				return []detection.Barcode{{Payload: payload, Format: "QR_CODE", Backend: "mock"}}, nil
			}
		}
		sched := analysis.NewScheduler(det)
		s := session.New(cfg, registration.NewRegistrar(registration.NewMock()), sched, l)
		return s, func() { sched.Close() }
	}
}

func newTestHub(payload string) *Hub {
	return NewHub(mockFactory(payload), stability.DefaultConfig())
}

func startServer(t *testing.T, hub *Hub, port string) *fiber.App {
	t.Helper()
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	hub.RegisterRoutes(app)
	hub.RegisterAPIRoutes(app.Group("/api"))

	go app.Listen(":" + port)
	time.Sleep(100 * time.Millisecond)
	return app
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("WebSocket dial error: %v", err)
	}
	return ws
}

func sendFrame(t *testing.T, ws *websocket.Conn, seq uint64) {
	t.Helper()
	f := &frame.Frame{Seq: seq, Width: 4, Height: 4, Format: frame.FormatGray, Data: make([]byte, 16)}
	msg, _ := protocol.NewFrameMessage(f, "portrait")
	data, _ := msg.Bytes()
	if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

// readUntil reads messages until one of the wanted type arrives
func readUntil(t *testing.T, ws *websocket.Conn, want protocol.MessageType) (*protocol.Message, []protocol.MessageType) {
	t.Helper()
	var seen []protocol.MessageType
	ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	defer ws.SetReadDeadline(time.Time{})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("read error waiting for %s (seen %v): %v", want, seen, err)
		}
		var msg protocol.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("bad message: %v", err)
		}
		seen = append(seen, msg.Type)
		if msg.Type == want {
			return &msg, seen
		}
	}
}

func TestNewHub(t *testing.T) {
	hub := newTestHub("")

	if hub.CameraCount() != 0 {
		t.Error("CameraCount should be 0 initially")
	}
	if hub.GetCamera("nonexistent") != nil {
		t.Error("GetCamera should return nil for nonexistent camera")
	}
	if len(hub.GetCameraInfos()) != 0 {
		t.Error("GetCameraInfos should return empty slice initially")
	}

	stats := hub.GetStats()
	if stats.MessagesReceived != 0 || stats.MessagesSent != 0 || stats.FramesReceived != 0 {
		t.Errorf("GetStats() = %+v, want zeros", stats)
	}
}

func TestSetStabilityConfig(t *testing.T) {
	hub := newTestHub("")

	if err := hub.SetStabilityConfig(stability.Config{HistorySize: 0, Threshold: 20}); err == nil {
		t.Error("SetStabilityConfig should reject an empty window")
	}
	if hub.StabilityConfig() != stability.DefaultConfig() {
		t.Error("rejected config must not be applied")
	}

	cfg := stability.Config{HistorySize: 8, Threshold: 12}
	if err := hub.SetStabilityConfig(cfg); err != nil {
		t.Fatalf("SetStabilityConfig() error = %v", err)
	}
	if hub.StabilityConfig() != cfg {
		t.Errorf("StabilityConfig() = %+v, want %+v", hub.StabilityConfig(), cfg)
	}
}

func TestWebSocketConnection(t *testing.T) {
	hub := newTestHub("")

	var mu sync.Mutex
	var events []EventType
	hub.OnEvent(func(e Event) {
		mu.Lock()
		events = append(events, e.Type)
		mu.Unlock()
	})

	app := startServer(t, hub, "18180")
	defer app.Shutdown()

	ws := dial(t, "ws://localhost:18180/ws/camera/test-cam")
	defer ws.Close()

	// Wait for connection to be registered
	time.Sleep(50 * time.Millisecond)

	if hub.CameraCount() != 1 {
		t.Errorf("CameraCount = %d, want 1", hub.CameraCount())
	}
	cam := hub.GetCamera("test-cam")
	if cam == nil {
		t.Fatal("GetCamera should return the connected camera")
	}
	if cam.Session.State() != session.AwaitingFirstFrame {
		t.Errorf("new session state = %v, want AwaitingFirstFrame", cam.Session.State())
	}

	// Close and verify disconnect
	ws.Close()
	time.Sleep(100 * time.Millisecond)

	if hub.CameraCount() != 0 {
		t.Errorf("CameraCount = %d, want 0 after disconnect", hub.CameraCount())
	}

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 2 || events[0] != EventConnected || events[1] != EventDisconnected {
		t.Errorf("events = %v, want [connected disconnected]", events)
	}
}

func TestGeneratedCameraID(t *testing.T) {
	hub := newTestHub("")
	app := startServer(t, hub, "18181")
	defer app.Shutdown()

	ws := dial(t, "ws://localhost:18181/ws/camera")
	defer ws.Close()
	time.Sleep(50 * time.Millisecond)

	infos := hub.GetCameraInfos()
	if len(infos) != 1 {
		t.Fatalf("GetCameraInfos() len = %d, want 1", len(infos))
	}
	if len(infos[0].ID) != 36 {
		t.Errorf("generated ID = %q, want a UUID", infos[0].ID)
	}
}

func TestFramesToBarcodeAndDismiss(t *testing.T) {
	hub := newTestHub("https://example.com/item/7")

	var mu sync.Mutex
	var barcodes []string
	hub.OnEvent(func(e Event) {
		if e.Type == EventBarcode {
			mu.Lock()
			barcodes = append(barcodes, e.Barcode.Payload)
			mu.Unlock()
		}
	})

	var frames atomic.Int32
	hub.OnFrame(func(cameraID string, f *frame.Frame) {
		if cameraID == "scanner" {
			frames.Add(1)
		}
	})

	app := startServer(t, hub, "18182")
	defer app.Shutdown()

	ws := dial(t, "ws://localhost:18182/ws/camera/scanner")
	defer ws.Close()
	time.Sleep(50 * time.Millisecond)

	for seq := uint64(1); seq <= 1+stability.DefaultHistorySize; seq++ {
		sendFrame(t, ws, seq)
	}

	msg, seen := readUntil(t, ws, protocol.TypeBarcode)
	if seen[0] != protocol.TypeStability {
		t.Errorf("first message = %s, want stability", seen[0])
	}
	code, err := msg.GetBarcodeData()
	if err != nil {
		t.Fatalf("GetBarcodeData() error = %v", err)
	}
	if code.Payload != "https://example.com/item/7" {
		t.Errorf("Payload = %q", code.Payload)
	}

	cam := hub.GetCamera("scanner")
	if cam.Session.State() != session.BarcodeShown {
		t.Errorf("State() = %v, want BarcodeShown", cam.Session.State())
	}

	// Frames are ignored while the barcode is shown
	sendFrame(t, ws, 100)
	time.Sleep(50 * time.Millisecond)
	if cam.Session.Stats().Suppressed != 1 {
		t.Errorf("Suppressed = %d, want 1", cam.Session.Stats().Suppressed)
	}

	dismiss, _ := protocol.NewDismissMessage(code.Payload)
	data, _ := dismiss.Bytes()
	ws.WriteMessage(websocket.TextMessage, data)
	time.Sleep(50 * time.Millisecond)

	if cam.Session.State() != session.Tracking {
		t.Errorf("State() after dismiss = %v, want Tracking", cam.Session.State())
	}

	mu.Lock()
	defer mu.Unlock()
	if len(barcodes) != 1 {
		t.Errorf("barcode events = %v, want 1", barcodes)
	}
	// Suppressed frames still reach frame subscribers
	if got := frames.Load(); got != int32(2+stability.DefaultHistorySize) {
		t.Errorf("OnFrame calls = %d, want %d", got, 2+stability.DefaultHistorySize)
	}
}

func TestBadFrameReturnsError(t *testing.T) {
	hub := newTestHub("")
	app := startServer(t, hub, "18183")
	defer app.Shutdown()

	ws := dial(t, "ws://localhost:18183/ws/camera/bad")
	defer ws.Close()
	time.Sleep(50 * time.Millisecond)

	msg, _ := protocol.NewMessage(protocol.TypeFrame, protocol.FrameData{Format: "gray", Width: 10, Height: 10, Data: "AAAA"})
	data, _ := msg.Bytes()
	ws.WriteMessage(websocket.TextMessage, data)

	resp, _ := readUntil(t, ws, protocol.TypeError)
	e, _ := resp.GetErrorData()
	if e.Code != protocol.ErrCodeBadFrame {
		t.Errorf("error code = %q, want %q", e.Code, protocol.ErrCodeBadFrame)
	}
	if hub.GetStats().FramesRejected != 1 {
		t.Errorf("FramesRejected = %d, want 1", hub.GetStats().FramesRejected)
	}
}

func TestUnknownMessageType(t *testing.T) {
	hub := newTestHub("")
	app := startServer(t, hub, "18184")
	defer app.Shutdown()

	ws := dial(t, "ws://localhost:18184/ws/camera/unknown")
	defer ws.Close()
	time.Sleep(50 * time.Millisecond)

	ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"motor"}`))

	resp, _ := readUntil(t, ws, protocol.TypeError)
	e, _ := resp.GetErrorData()
	if e.Code != protocol.ErrCodeUnknown {
		t.Errorf("error code = %q, want %q", e.Code, protocol.ErrCodeUnknown)
	}
}

func TestPingPong(t *testing.T) {
	hub := newTestHub("")
	app := startServer(t, hub, "18185")
	defer app.Shutdown()

	ws := dial(t, "ws://localhost:18185/ws/camera/ping-test")
	defer ws.Close()
	time.Sleep(50 * time.Millisecond)

	msg, _ := protocol.NewPingMessage("p1")
	data, _ := msg.Bytes()
	ws.WriteMessage(websocket.TextMessage, data)

	resp, _ := readUntil(t, ws, protocol.TypePong)
	pong, _ := resp.GetPongData()
	if pong.ID != "p1" {
		t.Errorf("pong ID = %q, want p1", pong.ID)
	}
}

func TestDuplicateCameraRejected(t *testing.T) {
	hub := newTestHub("")
	app := startServer(t, hub, "18186")
	defer app.Shutdown()

	first := dial(t, "ws://localhost:18186/ws/camera/dup")
	defer first.Close()
	time.Sleep(50 * time.Millisecond)

	second := dial(t, "ws://localhost:18186/ws/camera/dup")
	defer second.Close()

	readUntil(t, second, protocol.TypeError)
	if hub.CameraCount() != 1 {
		t.Errorf("CameraCount = %d, want 1", hub.CameraCount())
	}
}

func TestAPIListCameras(t *testing.T) {
	hub := newTestHub("")
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	hub.RegisterAPIRoutes(app.Group("/api"))

	req := httptest.NewRequest("GET", "/api/cameras/", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Request error: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("Status = %d, want 200", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "cameras") {
		t.Error("Response should contain 'cameras' field")
	}
}

func TestAPIStats(t *testing.T) {
	hub := newTestHub("")
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	hub.RegisterAPIRoutes(app.Group("/api"))

	resp, err := app.Test(httptest.NewRequest("GET", "/api/cameras/stats", nil))
	if err != nil {
		t.Fatalf("Request error: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("Status = %d, want 200", resp.StatusCode)
	}
}

func TestAPIDismissUnknownCamera(t *testing.T) {
	hub := newTestHub("")
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	hub.RegisterAPIRoutes(app.Group("/api"))

	resp, err := app.Test(httptest.NewRequest("POST", "/api/cameras/ghost/dismiss", nil))
	if err != nil {
		t.Fatalf("Request error: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Errorf("Status = %d, want 404", resp.StatusCode)
	}
}

func TestAPIDismissWithoutBarcode(t *testing.T) {
	hub := newTestHub("")
	app := startServer(t, hub, "18187")
	defer app.Shutdown()

	ws := dial(t, "ws://localhost:18187/ws/camera/idle")
	defer ws.Close()
	time.Sleep(50 * time.Millisecond)

	resp, err := app.Test(httptest.NewRequest("POST", "/api/cameras/idle/dismiss", nil))
	if err != nil {
		t.Fatalf("Request error: %v", err)
	}
	if resp.StatusCode != fiber.StatusConflict {
		t.Errorf("Status = %d, want 409", resp.StatusCode)
	}
}
