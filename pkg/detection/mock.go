package detection

import (
	"sync"
	"time"

	"github.com/teslashibe/go-steadyscan/pkg/frame"
)

// Mock implements Detector for testing.
type Mock struct {
	// DetectFunc is called when Detect is invoked. Nil finds nothing.
	DetectFunc func(f *frame.Frame) ([]Barcode, error)

	// CloseFunc is called when Close is invoked.
	CloseFunc func() error

	mu    sync.Mutex
	calls []MockCall
}

// MockCall records a Detect invocation.
type MockCall struct {
	Seq  uint64
	Time time.Time
}

// NewMock creates a mock detector that never finds anything.
func NewMock() *Mock {
	return &Mock{}
}

// Detect calls DetectFunc and records the call.
func (m *Mock) Detect(f *frame.Frame) ([]Barcode, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Seq: f.Seq, Time: time.Now()})
	fn := m.DetectFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(f)
	}
	return nil, nil
}

// Close calls CloseFunc.
func (m *Mock) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// Calls returns a copy of all recorded calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of Detect calls.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
