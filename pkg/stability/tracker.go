// Package stability decides whether the camera view has settled, from a
// fixed window of recent frame-to-frame offsets.
package stability

import (
	"math"

	"github.com/teslashibe/go-steadyscan/pkg/frame"
)

// Tracker keeps the last Config.HistorySize offsets and judges stability by
// their arithmetic mean. A single large motion anywhere in the window keeps
// the scene unstable until it has been evicted.
//
// Tracker is not safe for concurrent use; it is owned by one session.
type Tracker struct {
	config Config

	// Ring buffer of offsets; head is the index of the oldest entry
	history []frame.Offset
	head    int
	count   int
}

// NewTracker creates a tracker. An invalid config falls back to defaults.
func NewTracker(config Config) *Tracker {
	if config.Validate() != nil {
		config = DefaultConfig()
	}
	return &Tracker{
		config:  config,
		history: make([]frame.Offset, config.HistorySize),
	}
}

// Config returns the tracker's parameters
func (t *Tracker) Config() Config {
	return t.config
}

// Reset clears the history. Called when there is no previous frame to
// register against.
func (t *Tracker) Reset() {
	t.head = 0
	t.count = 0
}

// Record appends an offset, evicting the oldest once the window is full
func (t *Tracker) Record(offset frame.Offset) {
	size := len(t.history)
	if t.count < size {
		t.history[(t.head+t.count)%size] = offset
		t.count++
		return
	}

	// Full: overwrite the oldest and advance
	t.history[t.head] = offset
	t.head = (t.head + 1) % size
}

// Len returns the number of offsets currently held
func (t *Tracker) Len() int {
	return t.count
}

// Full reports whether the window holds HistorySize offsets
func (t *Tracker) Full() bool {
	return t.count == len(t.history)
}

// Mean returns the arithmetic mean of the held offsets, or zero if empty
func (t *Tracker) Mean() frame.Offset {
	if t.count == 0 {
		return frame.Offset{}
	}

	var sum frame.Offset
	for i := 0; i < t.count; i++ {
		sum = sum.Add(t.history[(t.head+i)%len(t.history)])
	}
	n := float64(t.count)
	return frame.Offset{DX: sum.DX / n, DY: sum.DY / n}
}

// IsStable reports whether the window is full and the mean offset's
// Manhattan length is strictly below the threshold. A partial window is
// never stable.
func (t *Tracker) IsStable() bool {
	if !t.Full() {
		return false
	}
	mean := t.Mean()
	return math.Abs(mean.DX)+math.Abs(mean.DY) < t.config.Threshold
}

// Offsets returns the held offsets, oldest first
func (t *Tracker) Offsets() []frame.Offset {
	out := make([]frame.Offset, t.count)
	for i := range out {
		out[i] = t.history[(t.head+i)%len(t.history)]
	}
	return out
}
