// Package registration measures the translational offset between
// consecutive frames.
package registration

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-steadyscan/internal/log"
	"github.com/teslashibe/go-steadyscan/pkg/debug"
	"github.com/teslashibe/go-steadyscan/pkg/frame"
)

// Aligner is the image registration backend: it estimates how far cur has
// moved relative to prev.
type Aligner interface {
	Align(prev, cur *frame.Frame) (frame.Offset, error)
}

// warnInterval limits how often registration failures are logged at warn.
const warnInterval = 5 * time.Second

// Registrar calls the aligner once per frame pair and turns failures into
// "no offset". A failed pair contributes nothing to stability history.
type Registrar struct {
	aligner Aligner
	logger  *slog.Logger

	pairs    atomic.Uint64
	failures atomic.Uint64

	mu           sync.Mutex
	lastWarnTime time.Time
}

// NewRegistrar wraps an aligner.
func NewRegistrar(aligner Aligner) *Registrar {
	return &Registrar{
		aligner: aligner,
		logger:  log.For("registration"),
	}
}

// Register returns the offset of cur relative to prev, or false if the
// aligner could not register the pair.
func (r *Registrar) Register(prev, cur *frame.Frame) (frame.Offset, bool) {
	r.pairs.Add(1)

	if !frame.Compatible(prev, cur) {
		r.fail(prev, cur, ErrFrameMismatch)
		return frame.Offset{}, false
	}

	offset, err := r.aligner.Align(prev, cur)
	if err != nil {
		r.fail(prev, cur, err)
		return frame.Offset{}, false
	}

	debug.FrameLog("registered", "prev", prev.Seq, "cur", cur.Seq, "offset", offset.String())
	return offset, true
}

// fail counts and logs a registration failure. Expected misses are logged at
// debug; anything else at warn, at most once per warnInterval.
func (r *Registrar) fail(prev, cur *frame.Frame, err error) {
	total := r.failures.Add(1)

	var prevSeq, curSeq uint64
	if prev != nil {
		prevSeq = prev.Seq
	}
	if cur != nil {
		curSeq = cur.Seq
	}

	if errors.Is(err, ErrNoCorrespondence) {
		r.logger.Debug("registration failed", "prev", prevSeq, "cur", curSeq, "error", err)
		return
	}

	r.mu.Lock()
	shouldWarn := r.lastWarnTime.IsZero() || time.Since(r.lastWarnTime) > warnInterval
	if shouldWarn {
		r.lastWarnTime = time.Now()
	}
	r.mu.Unlock()

	if shouldWarn {
		r.logger.Warn("registration failed", "prev", prevSeq, "cur", curSeq, "error", err, "total_failures", total)
	}
}

// Stats contains registrar counters
type Stats struct {
	Pairs    uint64 `json:"pairs"`
	Failures uint64 `json:"failures"`
}

// Stats returns the registrar counters
func (r *Registrar) Stats() Stats {
	return Stats{
		Pairs:    r.pairs.Load(),
		Failures: r.failures.Load(),
	}
}
