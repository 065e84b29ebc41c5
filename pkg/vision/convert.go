// Package vision converts scanner frames to and from OpenCV matrices.
package vision

import (
	"errors"
	"fmt"
	"image"

	"github.com/teslashibe/go-steadyscan/pkg/frame"
	"gocv.io/x/gocv"
)

// ErrDecode is returned when a frame cannot be turned into a non-empty image.
var ErrDecode = errors.New("vision: decode failed")

// Gray decodes a frame into an 8-bit single channel Mat owned by the caller.
func Gray(f *frame.Frame) (gocv.Mat, error) {
	if err := f.Validate(); err != nil {
		return gocv.NewMat(), err
	}

	switch f.Format {
	case frame.FormatJPEG:
		img, err := gocv.IMDecode(f.Data, gocv.IMReadGrayScale)
		if err != nil {
			return gocv.NewMat(), fmt.Errorf("%w: %v", ErrDecode, err)
		}
		if img.Empty() {
			img.Close()
			return gocv.NewMat(), fmt.Errorf("%w: empty jpeg", ErrDecode)
		}
		return img, nil

	case frame.FormatBGRA:
		// The wrapped Mat borrows f.Data, so convert before returning
		bgra, err := gocv.NewMatFromBytes(f.Height, f.Width, gocv.MatTypeCV8UC4, f.Data)
		if err != nil {
			return gocv.NewMat(), fmt.Errorf("%w: %v", ErrDecode, err)
		}
		defer bgra.Close()

		gray := gocv.NewMat()
		gocv.CvtColor(bgra, &gray, gocv.ColorBGRAToGray)
		return gray, nil

	case frame.FormatGray:
		wrapped, err := gocv.NewMatFromBytes(f.Height, f.Width, gocv.MatTypeCV8UC1, f.Data)
		if err != nil {
			return gocv.NewMat(), fmt.Errorf("%w: %v", ErrDecode, err)
		}
		defer wrapped.Close()
		return wrapped.Clone(), nil

	default:
		return gocv.NewMat(), fmt.Errorf("%w: unsupported format %s", ErrDecode, f.Format)
	}
}

// Image decodes a frame into a grayscale image.Image for pure-Go decoders.
func Image(f *frame.Frame) (image.Image, error) {
	gray, err := Gray(f)
	if err != nil {
		return nil, err
	}
	defer gray.Close()

	img, err := gray.ToImage()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return img, nil
}

// FromBGR builds a BGRA frame from a 3-channel BGR Mat such as a
// VideoCapture read. The returned frame owns a copy of the pixels.
func FromBGR(mat gocv.Mat, seq uint64) (*frame.Frame, error) {
	if mat.Empty() {
		return nil, fmt.Errorf("%w: empty capture", ErrDecode)
	}

	bgra := gocv.NewMat()
	defer bgra.Close()
	gocv.CvtColor(mat, &bgra, gocv.ColorBGRToBGRA)

	return &frame.Frame{
		Seq:    seq,
		Width:  bgra.Cols(),
		Height: bgra.Rows(),
		Format: frame.FormatBGRA,
		Data:   bgra.ToBytes(),
	}, nil
}

// EncodeJPEG compresses a frame to JPEG, for previews and the wire protocol.
// JPEG frames are returned unchanged.
func EncodeJPEG(f *frame.Frame) ([]byte, error) {
	return EncodeJPEGQuality(f, 0)
}

// EncodeJPEGQuality is EncodeJPEG with an explicit quality (1-100).
// Zero keeps the OpenCV default.
func EncodeJPEGQuality(f *frame.Frame, quality int) ([]byte, error) {
	if f.Format == frame.FormatJPEG {
		return f.Data, nil
	}

	gray, err := Gray(f)
	if err != nil {
		return nil, err
	}
	defer gray.Close()

	var buf *gocv.NativeByteBuffer
	if quality > 0 {
		buf, err = gocv.IMEncodeWithParams(gocv.JPEGFileExt, gray, []int{gocv.IMWriteJpegQuality, quality})
	} else {
		buf, err = gocv.IMEncode(gocv.JPEGFileExt, gray)
	}
	if err != nil {
		return nil, fmt.Errorf("vision: encode jpeg: %w", err)
	}
	defer buf.Close()

	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}
