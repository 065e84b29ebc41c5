package analysis

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/teslashibe/go-steadyscan/pkg/detection"
	"github.com/teslashibe/go-steadyscan/pkg/frame"
)

func testFrame(seq uint64) *frame.Frame {
	return &frame.Frame{Seq: seq, Width: 2, Height: 2, Format: frame.FormatGray, Data: make([]byte, 4)}
}

// waitReleased polls until the claim is free or the deadline passes
func waitReleased(t *testing.T, s *Scheduler) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for s.InFlight() {
		if time.Now().After(deadline) {
			t.Fatal("claim was never released")
		}
		time.Sleep(time.Millisecond)
	}
}

func waitResult(t *testing.T, ch <-chan Result) Result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for result")
		return Result{}
	}
}

// blockingDetector holds each pass until release is closed
func blockingDetector() (*detection.Mock, chan struct{}, chan struct{}) {
	started := make(chan struct{}, 8)
	release := make(chan struct{})
	m := detection.NewMock()
	m.DetectFunc = func(f *frame.Frame) ([]detection.Barcode, error) {
		started <- struct{}{}
		<-release
		return nil, nil
	}
	return m, started, release
}

func TestScheduler_RejectsWhileInFlight(t *testing.T) {
	det, started, release := blockingDetector()
	s := NewScheduler(det)
	defer s.Close()

	results := make(chan Result, 4)
	onResult := func(r Result) { results <- r }

	if !s.TrySubmit(testFrame(1), onResult) {
		t.Fatal("first submit should be admitted")
	}
	<-started

	for seq := uint64(2); seq <= 4; seq++ {
		if s.TrySubmit(testFrame(seq), onResult) {
			t.Errorf("submit of frame %d admitted while a pass is in flight", seq)
		}
	}
	if !s.InFlight() {
		t.Error("InFlight() = false during a pass")
	}

	close(release)
	r := waitResult(t, results)
	if r.Seq != 1 {
		t.Errorf("Result.Seq = %d, want 1", r.Seq)
	}
	waitReleased(t, s)

	if det.CallCount() != 1 {
		t.Errorf("detector called %d times, want 1", det.CallCount())
	}
	stats := s.Stats()
	if stats.Submitted != 1 || stats.Rejected != 3 || stats.Completed != 1 {
		t.Errorf("Stats() = %+v, want 1 submitted, 3 rejected, 1 completed", stats)
	}
}

func TestScheduler_ReleasesAfterCallback(t *testing.T) {
	det := detection.NewMock()
	det.DetectFunc = func(f *frame.Frame) ([]detection.Barcode, error) {
		return []detection.Barcode{{Payload: "ABC", Format: "QR_CODE"}}, nil
	}
	s := NewScheduler(det)
	defer s.Close()

	var heldDuringCallback atomic.Bool
	done := make(chan Result, 1)
	s.TrySubmit(testFrame(7), func(r Result) {
		heldDuringCallback.Store(s.InFlight())
		done <- r
	})

	r := waitResult(t, done)
	if !r.Found() || r.Barcodes[0].Payload != "ABC" {
		t.Errorf("Result = %+v, want barcode ABC", r)
	}
	if !heldDuringCallback.Load() {
		t.Error("claim should still be held while the callback runs")
	}
	waitReleased(t, s)

	if !s.TrySubmit(testFrame(8), nil) {
		t.Error("submit after release should be admitted")
	}
}

func TestScheduler_ReleasesOnError(t *testing.T) {
	det := detection.NewMock()
	det.DetectFunc = func(f *frame.Frame) ([]detection.Barcode, error) {
		return nil, errors.New("decoder exploded")
	}
	s := NewScheduler(det)
	defer s.Close()

	done := make(chan Result, 1)
	s.TrySubmit(testFrame(1), func(r Result) { done <- r })

	r := waitResult(t, done)
	if r.Err == nil {
		t.Error("Result.Err = nil, want the detector error")
	}
	if r.Found() {
		t.Error("a failed pass must not report barcodes")
	}
	waitReleased(t, s)

	if s.Stats().Failed != 1 {
		t.Errorf("Stats().Failed = %d, want 1", s.Stats().Failed)
	}
}

func TestScheduler_ReleasesOnPanic(t *testing.T) {
	det := detection.NewMock()
	det.DetectFunc = func(f *frame.Frame) ([]detection.Barcode, error) {
		panic("native crash")
	}
	s := NewScheduler(det)
	defer s.Close()

	done := make(chan Result, 1)
	s.TrySubmit(testFrame(1), func(r Result) { done <- r })

	r := waitResult(t, done)
	if r.Err == nil {
		t.Error("detector panic should surface as Result.Err")
	}
	waitReleased(t, s)
}

func TestScheduler_ReleasesWhenCallbackPanics(t *testing.T) {
	s := NewScheduler(detection.NewMock())
	defer s.Close()

	s.TrySubmit(testFrame(1), func(r Result) { panic("listener bug") })
	waitReleased(t, s)

	if !s.TrySubmit(testFrame(2), nil) {
		t.Error("scheduler should keep working after a callback panic")
	}
}

func TestScheduler_CallbackExactlyOnce(t *testing.T) {
	s := NewScheduler(detection.NewMock())
	defer s.Close()

	var mu sync.Mutex
	calls := map[uint64]int{}
	admitted := map[uint64]bool{}

	for seq := uint64(1); seq <= 50; seq++ {
		ok := s.TrySubmit(testFrame(seq), func(r Result) {
			mu.Lock()
			calls[r.Seq]++
			mu.Unlock()
		})
		if ok {
			admitted[seq] = true
		}
		time.Sleep(100 * time.Microsecond)
	}
	waitReleased(t, s)

	mu.Lock()
	defer mu.Unlock()
	if len(admitted) == 0 {
		t.Fatal("no frame was admitted")
	}
	for seq := range admitted {
		if calls[seq] != 1 {
			t.Errorf("frame %d callback ran %d times, want 1", seq, calls[seq])
		}
	}
	for seq := range calls {
		if !admitted[seq] {
			t.Errorf("callback ran for rejected frame %d", seq)
		}
	}
}

func TestScheduler_SubmitAfterClose(t *testing.T) {
	s := NewScheduler(detection.NewMock())
	s.Close()

	ok, err := s.Submit(testFrame(1), nil)
	if ok || !errors.Is(err, ErrClosed) {
		t.Errorf("Submit() after Close = %v, %v; want false, ErrClosed", ok, err)
	}
	if s.TrySubmit(testFrame(2), nil) {
		t.Error("TrySubmit() after Close should be rejected")
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestScheduler_ConcurrentSubmitAdmitsOne(t *testing.T) {
	det, started, release := blockingDetector()
	s := NewScheduler(det)
	defer s.Close()

	var admitted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(seq uint64) {
			defer wg.Done()
			if s.TrySubmit(testFrame(seq), nil) {
				admitted.Add(1)
			}
		}(uint64(i + 1))
	}
	wg.Wait()

	if admitted.Load() != 1 {
		t.Errorf("admitted %d concurrent submissions, want 1", admitted.Load())
	}
	<-started
	close(release)
	waitReleased(t, s)
}
