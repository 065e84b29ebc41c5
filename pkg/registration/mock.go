package registration

import (
	"sync"

	"github.com/teslashibe/go-steadyscan/pkg/frame"
)

// Mock implements Aligner for testing.
type Mock struct {
	// AlignFunc is called when Align is invoked. Nil returns a zero offset.
	AlignFunc func(prev, cur *frame.Frame) (frame.Offset, error)

	mu    sync.Mutex
	calls [][2]uint64
}

// NewMock creates a mock that always reports no motion.
func NewMock() *Mock {
	return &Mock{}
}

// Align calls AlignFunc and records the frame pair.
func (m *Mock) Align(prev, cur *frame.Frame) (frame.Offset, error) {
	m.mu.Lock()
	m.calls = append(m.calls, [2]uint64{prev.Seq, cur.Seq})
	fn := m.AlignFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(prev, cur)
	}
	return frame.Offset{}, nil
}

// Calls returns the (prev, cur) sequence numbers of every Align call.
func (m *Mock) Calls() [][2]uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][2]uint64, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of Align calls.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
