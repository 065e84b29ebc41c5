package registration

import (
	"fmt"
	"image"
	"math"
	"sync"

	"github.com/teslashibe/go-steadyscan/pkg/frame"
	"github.com/teslashibe/go-steadyscan/pkg/vision"
	"gocv.io/x/gocv"
)

// PhaseConfig holds phase correlation parameters
type PhaseConfig struct {
	// MinResponse is the lowest correlation peak (0-1) accepted as a match.
	// Flat or blurred scenes produce a weak, meaningless peak.
	MinResponse float64

	// Scale downsizes frames before correlating (0-1]. The returned offset is
	// always in full-resolution pixels.
	Scale float64

	// Window applies a Hanning window to suppress edge effects
	Window bool
}

// DefaultPhaseConfig returns production defaults
func DefaultPhaseConfig() PhaseConfig {
	return PhaseConfig{
		MinResponse: 0.05,
		Scale:       0.5,
		Window:      true,
	}
}

// PhaseCorrelator registers frames with OpenCV's phase correlation.
// It keeps the prepared matrix of the most recent "cur" frame so the next
// pair, whose prev is that same frame, decodes only one image. The cache is
// keyed by frame identity; client-supplied sequence numbers may repeat.
type PhaseCorrelator struct {
	config PhaseConfig
	mu     sync.Mutex // Protects the cached matrices

	last      gocv.Mat
	lastFrame *frame.Frame
	hasLast   bool

	window     gocv.Mat
	windowSize image.Point
}

// NewPhaseCorrelator creates a phase correlation aligner
func NewPhaseCorrelator(cfg PhaseConfig) *PhaseCorrelator {
	if cfg.Scale <= 0 || cfg.Scale > 1 {
		cfg.Scale = 1
	}
	return &PhaseCorrelator{
		config: cfg,
		window: gocv.NewMat(),
	}
}

// Align estimates the translation of cur relative to prev.
func (p *PhaseCorrelator) Align(prev, cur *frame.Frame) (frame.Offset, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	prevMat, fromCache, err := p.prepareCached(prev)
	if err != nil {
		return frame.Offset{}, fmt.Errorf("prepare previous frame: %w", err)
	}

	curMat, err := p.prepare(cur)
	if err != nil {
		if !fromCache {
			prevMat.Close()
		}
		p.dropCache()
		return frame.Offset{}, fmt.Errorf("prepare current frame: %w", err)
	}

	offset, err := p.correlate(prevMat, curMat)

	// cur becomes the cached frame for the next pair
	if p.hasLast {
		p.last.Close()
	}
	if !fromCache {
		prevMat.Close()
	}
	p.last, p.lastFrame, p.hasLast = curMat, cur, true

	return offset, err
}

func (p *PhaseCorrelator) correlate(prevMat, curMat gocv.Mat) (frame.Offset, error) {
	if prevMat.Rows() != curMat.Rows() || prevMat.Cols() != curMat.Cols() {
		return frame.Offset{}, fmt.Errorf("%w: %dx%d vs %dx%d", ErrFrameMismatch,
			prevMat.Cols(), prevMat.Rows(), curMat.Cols(), curMat.Rows())
	}

	var window gocv.Mat
	if p.config.Window {
		window = p.hanning(image.Pt(curMat.Cols(), curMat.Rows()))
	} else {
		window = gocv.NewMat()
		defer window.Close()
	}

	shift, response := gocv.PhaseCorrelate(prevMat, curMat, window)
	if math.IsNaN(response) || response < p.config.MinResponse {
		return frame.Offset{}, fmt.Errorf("%w: response %.3f", ErrNoCorrespondence, response)
	}

	// Back to full-resolution pixels
	return frame.Offset{
		DX: float64(shift.X) / p.config.Scale,
		DY: float64(shift.Y) / p.config.Scale,
	}, nil
}

// prepareCached returns the cached matrix when f is the last frame seen.
// fromCache reports whether the caller must leave the matrix open.
func (p *PhaseCorrelator) prepareCached(f *frame.Frame) (mat gocv.Mat, fromCache bool, err error) {
	if p.hasLast && f == p.lastFrame {
		return p.last, true, nil
	}
	mat, err = p.prepare(f)
	return mat, false, err
}

// prepare decodes a frame to a downscaled float32 grayscale matrix
func (p *PhaseCorrelator) prepare(f *frame.Frame) (gocv.Mat, error) {
	gray, err := vision.Gray(f)
	if err != nil {
		return gocv.NewMat(), err
	}
	defer gray.Close()

	src := gray
	if p.config.Scale < 1 {
		scaled := gocv.NewMat()
		defer scaled.Close()
		gocv.Resize(gray, &scaled, image.Point{}, p.config.Scale, p.config.Scale, gocv.InterpolationArea)
		src = scaled
	}

	out := gocv.NewMat()
	src.ConvertTo(&out, gocv.MatTypeCV32F)
	if out.Empty() {
		out.Close()
		return gocv.NewMat(), fmt.Errorf("%w: empty after conversion", ErrNoCorrespondence)
	}
	return out, nil
}

// hanning returns a window of the given size, rebuilding it when the size changes
func (p *PhaseCorrelator) hanning(size image.Point) gocv.Mat {
	if size != p.windowSize || p.window.Empty() {
		gocv.CreateHanningWindow(&p.window, size, gocv.MatTypeCV32F)
		p.windowSize = size
	}
	return p.window
}

func (p *PhaseCorrelator) dropCache() {
	if p.hasLast {
		p.last.Close()
	}
	p.lastFrame, p.hasLast = nil, false
}

// Close releases the cached matrices
func (p *PhaseCorrelator) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dropCache()
	return p.window.Close()
}
