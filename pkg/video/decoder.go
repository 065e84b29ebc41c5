package video

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-steadyscan/internal/log"
	"github.com/teslashibe/go-steadyscan/pkg/frame"
)

// maxJPEG bounds one decoded frame on the ffmpeg pipe
const maxJPEG = 8 << 20

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

// Sink receives decoded frames in stream order
type Sink func(f *frame.Frame)

// Decoder feeds H264 access units to a persistent ffmpeg process and reads
// JPEG frames back over a pipe. Spawning one process per frame costs more
// than the decode itself.
type Decoder struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	logger *slog.Logger

	mu     sync.Mutex // Serializes writes and Close
	closed bool
	done   chan struct{}

	seq     atomic.Uint64
	frames  atomic.Uint64
	skipped atomic.Uint64
	warm    atomic.Bool
}

// StartDecoder launches ffmpeg. Frames are delivered to sink from the
// decoder's reader goroutine.
func StartDecoder(ctx context.Context, sink Sink) (*Decoder, error) {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-loglevel", "error",
		"-f", "h264",       // Input format
		"-i", "pipe:0",     // Read from stdin
		"-f", "image2pipe", // Output as pipe
		"-vcodec", "mjpeg", // Output as JPEG
		"-q:v", "3",        // Quality (1-31, lower is better)
		"pipe:1",           // Write to stdout
	)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	d := &Decoder{
		cmd:    cmd,
		stdin:  stdin,
		logger: log.For("decoder"),
		done:   make(chan struct{}),
	}

	go func() {
		defer close(d.done)
		if err := readJPEGs(stdout, func(data []byte) { d.emit(data, sink) }); err != nil {
			d.logger.Warn("decoder output ended", "error", err)
		}
	}()

	return d, nil
}

// Write sends one access unit to the decoder
func (d *Decoder) Write(au []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return io.ErrClosedPipe
	}
	if _, err := d.stdin.Write(au); err != nil {
		return fmt.Errorf("decoder write: %w", err)
	}
	return nil
}

// emit drops the flat frames ffmpeg produces before the first keyframe
func (d *Decoder) emit(data []byte, sink Sink) {
	if !d.warm.Load() {
		if isFlatJPEG(data) {
			d.skipped.Add(1)
			return
		}
		d.warm.Store(true)
	}

	d.frames.Add(1)
	sink(&frame.Frame{
		Seq:      d.seq.Add(1),
		Format:   frame.FormatJPEG,
		Data:     data,
		Captured: time.Now(),
	})
}

// Frames returns how many frames were delivered and skipped
func (d *Decoder) Frames() (delivered, skipped uint64) {
	return d.frames.Load(), d.skipped.Load()
}

// Close ends the input stream and waits for ffmpeg to drain
func (d *Decoder) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.stdin.Close()
	d.mu.Unlock()

	select {
	case <-d.done:
	case <-time.After(2 * time.Second):
		d.cmd.Process.Kill()
		<-d.done
	}
	return d.cmd.Wait()
}

// readJPEGs splits a concatenated JPEG stream and calls emit for each image
func readJPEGs(r io.Reader, emit func([]byte)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 256<<10), maxJPEG)
	scanner.Split(splitJPEG)

	for scanner.Scan() {
		// Scanner reuses its buffer
		img := make([]byte, len(scanner.Bytes()))
		copy(img, scanner.Bytes())
		emit(img)
	}
	return scanner.Err()
}

// splitJPEG is a bufio.SplitFunc yielding SOI..EOI spans. Entropy coded data
// stuffs 0xFF bytes, so EOI only appears as a marker.
func splitJPEG(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := bytes.Index(data, jpegSOI)
	if start < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		// Keep a trailing 0xFF in case it starts the next SOI
		if n := len(data); n > 0 && data[n-1] == 0xFF {
			return n - 1, nil, nil
		}
		return len(data), nil, nil
	}

	end := bytes.Index(data[start+2:], jpegEOI)
	if end < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		return start, nil, nil
	}

	stop := start + 2 + end + 2
	return stop, data[start:stop], nil
}

// isFlatJPEG reports whether a JPEG is undecodable or nearly uniform
func isFlatJPEG(data []byte) bool {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return true
	}

	b := img.Bounds()
	if b.Dx() < 16 || b.Dy() < 16 {
		return true
	}

	lo, hi := uint32(0xFFFF), uint32(0)
	for y := b.Min.Y; y < b.Max.Y; y += b.Dy() / 10 {
		for x := b.Min.X; x < b.Max.X; x += b.Dx() / 10 {
			r, g, bl, _ := img.At(x, y).RGBA()
			l := (r + g + bl) / 3
			lo, hi = min(lo, l), max(hi, l)
		}
	}

	// Less than ~3% of full scale between darkest and brightest sample
	return hi-lo < 0x0800
}
