package detection

import (
	"image"
	"sync"

	"github.com/teslashibe/go-steadyscan/pkg/debug"
	"github.com/teslashibe/go-steadyscan/pkg/frame"
	"github.com/teslashibe/go-steadyscan/pkg/vision"
	"gocv.io/x/gocv"
)

// OpenCVDetector uses OpenCV's QRCodeDetector. It only reads QR codes but
// copes better with perspective than the ZXing port.
type OpenCVDetector struct {
	detector *gocv.QRCodeDetector
	mu       sync.Mutex // Protects inference
	closed   bool
}

// NewOpenCV creates a QR detector backed by OpenCV
func NewOpenCV() *OpenCVDetector {
	qr := gocv.NewQRCodeDetector()
	return &OpenCVDetector{detector: &qr}
}

// Detect finds and decodes a QR code in the frame
func (d *OpenCVDetector) Detect(f *frame.Frame) ([]Barcode, error) {
	img, err := vision.Gray(f)
	if err != nil {
		return nil, WrapError(BackendOpenCV, err)
	}
	defer img.Close()

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, ErrClosed
	}

	points := gocv.NewMat()
	defer points.Close()
	straight := gocv.NewMat()
	defer straight.Close()

	payload := d.detector.DetectAndDecode(img, &points, &straight)
	if payload == "" {
		return nil, nil
	}

	debug.Log("opencv decoded QR", "seq", f.Seq)
	return []Barcode{{
		Payload: payload,
		Format:  "QR_CODE",
		Points:  cornerPoints(points),
		Backend: BackendOpenCV,
	}}, nil
}

// cornerPoints reads the CV_32FC2 corner matrix (1x4 or 4x1 depending on version)
func cornerPoints(m gocv.Mat) []image.Point {
	if m.Empty() || m.Type() != gocv.MatTypeCV32FC2 {
		return nil
	}
	out := make([]image.Point, 0, m.Total())
	for r := 0; r < m.Rows(); r++ {
		for c := 0; c < m.Cols(); c++ {
			v := m.GetVecfAt(r, c)
			if len(v) < 2 {
				continue
			}
			out = append(out, image.Pt(int(v[0]+0.5), int(v[1]+0.5)))
		}
	}
	return out
}

// Close releases the detector resources
func (d *OpenCVDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.detector.Close()
}
