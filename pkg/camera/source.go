package camera

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-steadyscan/internal/log"
	"github.com/teslashibe/go-steadyscan/pkg/frame"
	"github.com/teslashibe/go-steadyscan/pkg/vision"
	"gocv.io/x/gocv"
)

// maxMisses is how many consecutive empty reads end Run
const maxMisses = 30

// ErrDeviceLost is returned by Run when the device stops delivering frames
var ErrDeviceLost = errors.New("camera: device stopped delivering frames")

// Sink receives frames in capture order, on the capture goroutine
type Sink func(f *frame.Frame)

// Source reads frames from a local capture device
type Source struct {
	manager *Manager
	logger  *slog.Logger

	seq    atomic.Uint64
	frames atomic.Uint64
	misses atomic.Uint64
}

// NewSource creates a source driven by the manager's config. The config is
// read each time Run opens the device.
func NewSource(m *Manager) *Source {
	return &Source{
		manager: m,
		logger:  log.For("camera"),
	}
}

// Run opens the device and delivers frames to sink until ctx is done.
// Frames are BGRA with monotonically increasing sequence numbers.
func (s *Source) Run(ctx context.Context, sink Sink) error {
	cfg := s.manager.GetConfig()

	capture, err := gocv.OpenVideoCapture(cfg.Device)
	if err != nil {
		return fmt.Errorf("camera: open device %d: %w", cfg.Device, err)
	}
	defer capture.Close()

	// Requested capture mode; drivers fall back to the nearest they support
	capture.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	capture.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	capture.Set(gocv.VideoCaptureFPS, float64(cfg.Framerate))

	s.logger.Info("camera opened",
		"device", cfg.Device,
		"width", capture.Get(gocv.VideoCaptureFrameWidth),
		"height", capture.Get(gocv.VideoCaptureFrameHeight),
		"fps", capture.Get(gocv.VideoCaptureFPS),
	)

	img := gocv.NewMat()
	defer img.Close()

	misses := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if ok := capture.Read(&img); !ok || img.Empty() {
			misses++
			s.misses.Add(1)
			if misses >= maxMisses {
				return ErrDeviceLost
			}
			time.Sleep(10 * time.Millisecond)
			continue
		}
		misses = 0

		f, err := vision.FromBGR(img, s.seq.Add(1))
		if err != nil {
			s.logger.Warn("frame conversion failed", "error", err)
			continue
		}
		f.Captured = time.Now()

		s.frames.Add(1)
		sink(f)
	}
}

// SourceStats holds capture counters
type SourceStats struct {
	Frames uint64 `json:"frames"`
	Misses uint64 `json:"misses"`
}

// Stats returns capture counters
func (s *Source) Stats() SourceStats {
	return SourceStats{
		Frames: s.frames.Load(),
		Misses: s.misses.Load(),
	}
}
