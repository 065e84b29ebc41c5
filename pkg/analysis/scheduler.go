// Package analysis runs barcode detection off the capture path.
//
// The Scheduler admits at most one analysis pass at a time. A frame offered
// while a pass is running is rejected, not queued: the camera keeps
// producing frames faster than detection can read them, and a stale frame
// is worth nothing once a newer one exists.
package analysis

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/teslashibe/go-steadyscan/internal/log"
	"github.com/teslashibe/go-steadyscan/pkg/debug"
	"github.com/teslashibe/go-steadyscan/pkg/detection"
	"github.com/teslashibe/go-steadyscan/pkg/frame"
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("analysis: scheduler closed")

// Result is the outcome of one analysis pass.
type Result struct {
	ID       uuid.UUID           // Pass identifier, for log correlation
	Seq      uint64              // Sequence number of the analyzed frame
	Barcodes []detection.Barcode // Empty when nothing was found or on error
	Err      error               // Detector failure, if any
	Duration time.Duration
}

// Found reports whether the pass decoded at least one barcode.
func (r Result) Found() bool {
	return r.Err == nil && len(r.Barcodes) > 0
}

// ResultFunc receives the outcome of an admitted pass. It runs on the
// worker goroutine while the claim is still held, so the next pass cannot
// be admitted until it returns.
type ResultFunc func(Result)

type job struct {
	id       uuid.UUID
	frame    *frame.Frame
	onResult ResultFunc
}

// Scheduler owns the single analysis claim and the worker that runs passes.
type Scheduler struct {
	detector detection.Detector
	logger   *slog.Logger

	claim atomic.Bool
	jobs  chan job

	mu     sync.RWMutex // Orders Submit against Close
	closed bool
	done   chan struct{}

	// Stats
	submitted atomic.Int64
	rejected  atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	lastNanos atomic.Int64
}

// Stats holds scheduler counters.
type Stats struct {
	Submitted    int64         `json:"submitted"`
	Rejected     int64         `json:"rejected"`
	Completed    int64         `json:"completed"`
	Failed       int64         `json:"failed"`
	InFlight     bool          `json:"in_flight"`
	LastDuration time.Duration `json:"last_duration_ns"`
}

// NewScheduler creates a scheduler and starts its worker.
func NewScheduler(detector detection.Detector) *Scheduler {
	s := &Scheduler{
		detector: detector,
		logger:   log.For("analysis"),
		jobs:     make(chan job, 1),
		done:     make(chan struct{}),
	}
	go s.run()
	return s
}

// TrySubmit claims the analysis slot for f and schedules a pass. It returns
// false without side effects if a pass is already in flight. onResult is
// called exactly once for every admitted frame.
func (s *Scheduler) TrySubmit(f *frame.Frame, onResult ResultFunc) bool {
	ok, _ := s.Submit(f, onResult)
	return ok
}

// Submit is TrySubmit with an error for a closed scheduler.
func (s *Scheduler) Submit(f *frame.Frame, onResult ResultFunc) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false, ErrClosed
	}
	if !s.claim.CompareAndSwap(false, true) {
		s.rejected.Add(1)
		return false, nil
	}

	// The worker takes a job off the channel before it can release the
	// claim, so holding the claim means the buffer slot is free.
	j := job{id: uuid.New(), frame: f, onResult: onResult}
	s.jobs <- j

	s.submitted.Add(1)
	debug.FrameLog("analysis submitted", "pass", j.id, "seq", f.Seq)
	return true, nil
}

// InFlight reports whether a pass currently holds the claim.
func (s *Scheduler) InFlight() bool {
	return s.claim.Load()
}

func (s *Scheduler) run() {
	for {
		select {
		case <-s.done:
			// A job queued just before Close still gets its callback
			select {
			case j := <-s.jobs:
				s.process(j)
			default:
			}
			return
		case j := <-s.jobs:
			s.process(j)
		}
	}
}

// process runs one pass. The claim is released on every path, after the
// callback has returned.
func (s *Scheduler) process(j job) {
	defer s.claim.Store(false)

	start := time.Now()
	codes, err := s.detect(j.frame)
	elapsed := time.Since(start)
	s.lastNanos.Store(int64(elapsed))

	if err != nil {
		s.failed.Add(1)
		s.logger.Warn("analysis pass failed", "pass", j.id, "seq", j.frame.Seq, "error", err)
		codes = nil
	} else {
		s.completed.Add(1)
		debug.FrameLog("analysis pass done", "pass", j.id, "seq", j.frame.Seq,
			"barcodes", len(codes), "duration", elapsed)
	}

	if j.onResult != nil {
		s.deliver(j, Result{
			ID:       j.id,
			Seq:      j.frame.Seq,
			Barcodes: codes,
			Err:      err,
			Duration: elapsed,
		})
	}
}

// detect calls the detector, converting a panic into an error.
func (s *Scheduler) detect(f *frame.Frame) (codes []detection.Barcode, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("analysis: detector panic: %v", r)
		}
	}()
	return s.detector.Detect(f)
}

func (s *Scheduler) deliver(j job, r Result) {
	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("result callback panicked", "pass", j.id, "panic", p)
		}
	}()
	j.onResult(r)
}

// Stats returns current counters.
func (s *Scheduler) Stats() Stats {
	return Stats{
		Submitted:    s.submitted.Load(),
		Rejected:     s.rejected.Load(),
		Completed:    s.completed.Load(),
		Failed:       s.failed.Load(),
		InFlight:     s.claim.Load(),
		LastDuration: time.Duration(s.lastNanos.Load()),
	}
}

// Close stops the worker once any admitted pass has run and delivered its
// result. Close does not close the detector.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
	return nil
}
