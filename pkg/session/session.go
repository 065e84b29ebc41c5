// Package session gates barcode detection on scene stability.
//
// A Session consumes frames in capture order. Each frame is registered
// against the one before it, the offset feeds a stability tracker, and once
// the view has settled the frame is offered to the analysis scheduler. When a
// barcode is found the session stops consuming frames until Dismiss.
package session

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/teslashibe/go-steadyscan/internal/log"
	"github.com/teslashibe/go-steadyscan/pkg/analysis"
	"github.com/teslashibe/go-steadyscan/pkg/debug"
	"github.com/teslashibe/go-steadyscan/pkg/detection"
	"github.com/teslashibe/go-steadyscan/pkg/frame"
	"github.com/teslashibe/go-steadyscan/pkg/stability"
)

// State is the session's position in the detection cycle.
type State int

const (
	// AwaitingFirstFrame has no reference frame yet.
	AwaitingFirstFrame State = iota
	// Tracking registers every frame and submits stable ones for analysis.
	// After a dismissal it holds no reference until the next frame arrives.
	Tracking
	// BarcodeShown ignores frames until the barcode is dismissed.
	BarcodeShown
)

func (s State) String() string {
	switch s {
	case AwaitingFirstFrame:
		return "awaiting_first_frame"
	case Tracking:
		return "tracking"
	case BarcodeShown:
		return "barcode_shown"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Registrar measures the offset between consecutive frames.
// ok is false when the pair contributes nothing.
type Registrar interface {
	Register(prev, cur *frame.Frame) (offset frame.Offset, ok bool)
}

// Analyzer runs at most one detection pass at a time.
type Analyzer interface {
	TrySubmit(f *frame.Frame, onResult analysis.ResultFunc) bool
	InFlight() bool
}

// Listener receives session signals. Methods are called with the session
// lock held, from the frame goroutine or the analysis worker, and must not
// call back into the Session.
type Listener interface {
	StabilityChanged(stable bool)
	BarcodeFound(code detection.Barcode)
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are skipped.
type ListenerFuncs struct {
	OnStability func(stable bool)
	OnBarcode   func(code detection.Barcode)
}

// StabilityChanged implements Listener.
func (l ListenerFuncs) StabilityChanged(stable bool) {
	if l.OnStability != nil {
		l.OnStability(stable)
	}
}

// BarcodeFound implements Listener.
func (l ListenerFuncs) BarcodeFound(code detection.Barcode) {
	if l.OnBarcode != nil {
		l.OnBarcode(code)
	}
}

// Session is the per-camera state machine. HandleFrame and Dismiss may be
// called from different goroutines; frames must arrive in capture order.
type Session struct {
	registrar Registrar
	analyzer  Analyzer
	listener  Listener
	logger    *slog.Logger

	mu      sync.Mutex // Serializes frames, dismissal and analysis results
	state   State
	prev    *frame.Frame
	tracker *stability.Tracker
	stable  bool // Last value reported to the listener
	stats   Stats
}

// Stats holds session counters.
type Stats struct {
	Frames         int64 `json:"frames"`          // Frames handled while not suppressed
	Registered     int64 `json:"registered"`      // Pairs that produced an offset
	Suppressed     int64 `json:"suppressed"`      // Frames ignored while a barcode is shown
	Submitted      int64 `json:"submitted"`       // Frames admitted for analysis
	Barcodes       int64 `json:"barcodes"`        // Barcodes reported
	DroppedResults int64 `json:"dropped_results"` // Results that arrived outside Tracking
}

// New creates a session in AwaitingFirstFrame.
// An invalid stability config falls back to the defaults.
func New(cfg stability.Config, registrar Registrar, analyzer Analyzer, listener Listener) *Session {
	if listener == nil {
		listener = ListenerFuncs{}
	}
	return &Session{
		registrar: registrar,
		analyzer:  analyzer,
		listener:  listener,
		logger:    log.For("session"),
		tracker:   stability.NewTracker(cfg),
	}
}

// HandleFrame advances the session by one captured frame.
func (s *Session) HandleFrame(f *frame.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case BarcodeShown:
		s.stats.Suppressed++
		return

	case AwaitingFirstFrame:
		s.state = Tracking
		s.acquire(f)
		return
	}

	if s.prev == nil {
		s.acquire(f)
		return
	}

	s.stats.Frames++

	if offset, ok := s.registrar.Register(s.prev, f); ok {
		s.tracker.Record(offset)
		s.stats.Registered++
	}
	s.prev = f

	stable := s.tracker.IsStable()
	s.setStable(stable)

	if stable && !s.analyzer.InFlight() {
		if s.analyzer.TrySubmit(f, s.handleResult) {
			s.stats.Submitted++
		}
	}
}

// acquire stores f as the reference frame without registering it.
// Caller holds mu.
func (s *Session) acquire(f *frame.Frame) {
	s.stats.Frames++
	s.prev = f
	s.tracker.Reset()
	debug.FrameLog("session acquired reference frame", "seq", f.Seq)
}

// handleResult runs on the analysis worker while its claim is held.
func (s *Session) handleResult(r analysis.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Tracking {
		s.stats.DroppedResults++
		s.logger.Debug("dropping analysis result", "pass", r.ID, "seq", r.Seq, "state", s.state)
		return
	}
	if !r.Found() {
		return
	}

	best := detection.SelectBest(r.Barcodes)
	s.state = BarcodeShown
	s.stats.Barcodes++
	s.setStable(false)

	s.logger.Info("barcode found",
		"seq", r.Seq,
		"format", best.Format,
		"backend", best.Backend,
		"duration", r.Duration,
	)
	s.listener.BarcodeFound(*best)
}

// Dismiss acknowledges a shown barcode and returns to Tracking. The stability
// history and reference frame are cleared, so the next frame becomes the new
// reference. It reports whether the session was showing a barcode.
func (s *Session) Dismiss() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != BarcodeShown {
		return false
	}

	s.tracker.Reset()
	s.prev = nil
	s.state = Tracking
	s.setStable(false)
	debug.Log("barcode dismissed", "frames", s.stats.Frames, "barcodes", s.stats.Barcodes)
	return true
}

// setStable reports a stability change. Caller holds mu.
func (s *Session) setStable(stable bool) {
	if stable == s.stable {
		return
	}
	s.stable = stable
	debug.FrameLog("stability changed", "stable", stable)
	s.listener.StabilityChanged(stable)
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stable returns the last reported stability.
func (s *Session) Stable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stable
}

// HistoryLen returns the number of offsets in the stability window.
func (s *Session) HistoryLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.Len()
}

// Stats returns current counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
