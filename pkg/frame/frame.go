// Package frame defines the raw video frame passed through the scanner and
// the translational offset measured between two consecutive frames.
package frame

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Format is the pixel layout of Frame.Data.
type Format int

const (
	// FormatJPEG is a compressed JPEG image.
	FormatJPEG Format = iota
	// FormatBGRA is packed 8-bit BGRA, 4 bytes per pixel (camera native).
	FormatBGRA
	// FormatGray is 8-bit single channel luminance.
	FormatGray
)

func (f Format) String() string {
	switch f {
	case FormatJPEG:
		return "jpeg"
	case FormatBGRA:
		return "bgra"
	case FormatGray:
		return "gray"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// ParseFormat parses the wire name of a pixel format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "jpeg", "jpg", "":
		return FormatJPEG, nil
	case "bgra", "bgra32":
		return FormatBGRA, nil
	case "gray", "grey", "y8":
		return FormatGray, nil
	default:
		return 0, fmt.Errorf("frame: unknown format %q", s)
	}
}

// BytesPerPixel returns the packed pixel size, or 0 for compressed formats.
func (f Format) BytesPerPixel() int {
	switch f {
	case FormatBGRA:
		return 4
	case FormatGray:
		return 1
	default:
		return 0
	}
}

// MaxDimension bounds each side of a frame, keeping size arithmetic and
// OpenCV's C int dimensions in range.
const MaxDimension = 16384

// Validation errors.
var (
	ErrEmpty         = errors.New("frame: empty data")
	ErrBadDimensions = errors.New("frame: invalid dimensions")
	ErrSizeMismatch  = errors.New("frame: data size does not match dimensions")
)

// Frame is one opaque image from the capture stream. Frames are treated as
// immutable once handed to the scanner; Data must not be modified afterwards.
type Frame struct {
	Seq      uint64    // Monotonic sequence number assigned by the source
	Width    int       // Pixels; may be 0 for JPEG (decoded size is used)
	Height   int       // Pixels; may be 0 for JPEG
	Format   Format    // Pixel layout of Data
	Data     []byte    // Pixel bytes
	Captured time.Time // Capture timestamp

	// Metadata passed through to registration and detection backends.
	Orientation Orientation
	Intrinsics  *[9]float64 // Optional 3x3 camera intrinsic matrix, row major
}

// Validate checks that Data is consistent with Format and dimensions.
func (f *Frame) Validate() error {
	if f == nil || len(f.Data) == 0 {
		return ErrEmpty
	}

	if f.Width > MaxDimension || f.Height > MaxDimension {
		return fmt.Errorf("%w: %dx%d exceeds %d", ErrBadDimensions, f.Width, f.Height, MaxDimension)
	}

	bpp := f.Format.BytesPerPixel()
	if bpp == 0 {
		// Compressed: dimensions are optional but must not be negative
		if f.Width < 0 || f.Height < 0 {
			return ErrBadDimensions
		}
		return nil
	}

	if f.Width <= 0 || f.Height <= 0 {
		return ErrBadDimensions
	}
	if f.Width > len(f.Data)/(f.Height*bpp) || len(f.Data) != f.Width*f.Height*bpp {
		return fmt.Errorf("%w: %dx%d %s needs %d bytes, got %d",
			ErrSizeMismatch, f.Width, f.Height, f.Format, f.Width*f.Height*bpp, len(f.Data))
	}
	return nil
}

// Compatible reports whether two frames can be registered against each other:
// same pixel format and, for raw formats, same dimensions.
func Compatible(a, b *Frame) bool {
	if a == nil || b == nil || a.Format != b.Format {
		return false
	}
	if a.Format.BytesPerPixel() == 0 {
		return true
	}
	return a.Width == b.Width && a.Height == b.Height
}
