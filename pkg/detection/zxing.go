package detection

import (
	"fmt"
	"image"
	"sync"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/datamatrix"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"
	"github.com/teslashibe/go-steadyscan/pkg/debug"
	"github.com/teslashibe/go-steadyscan/pkg/frame"
	"github.com/teslashibe/go-steadyscan/pkg/vision"
)

// ZXingDetector decodes barcodes with the pure Go ZXing port.
// Every enabled reader runs on each frame, so a frame holding a QR code and
// an EAN label reports both.
type ZXingDetector struct {
	readers []namedReader
	hints   map[gozxing.DecodeHintType]interface{}
	mu      sync.Mutex // Readers keep internal state between calls
	closed  bool
}

type namedReader struct {
	name   string
	reader gozxing.Reader
}

// NewZXing creates a ZXing detector for the configured symbologies
func NewZXing(cfg Config) (*ZXingDetector, error) {
	hints := map[gozxing.DecodeHintType]interface{}{}
	if cfg.TryHarder {
		hints[gozxing.DecodeHintType_TRY_HARDER] = true
	}

	d := &ZXingDetector{hints: hints}
	for _, sym := range cfg.Symbologies {
		var r gozxing.Reader
		switch sym {
		case SymbologyQR:
			r = qrcode.NewQRCodeReader()
		case SymbologyDataMatrix:
			r = datamatrix.NewDataMatrixReader()
		case SymbologyCode128:
			r = oned.NewCode128Reader()
		case SymbologyCode39:
			r = oned.NewCode39Reader()
		case SymbologyEAN:
			r = oned.NewMultiFormatUPCEANReader(hints)
		default:
			return nil, fmt.Errorf("detection: unknown symbology %q", sym)
		}
		d.readers = append(d.readers, namedReader{name: sym, reader: r})
	}

	if len(d.readers) == 0 {
		return nil, ErrNoDetectors
	}
	return d, nil
}

// Detect decodes every enabled symbology in the frame
func (d *ZXingDetector) Detect(f *frame.Frame) ([]Barcode, error) {
	img, err := vision.Image(f)
	if err != nil {
		return nil, WrapError(BackendZXing, err)
	}

	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return nil, WrapError(BackendZXing, fmt.Errorf("binarize: %w", err))
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, ErrClosed
	}

	var codes []Barcode
	for _, nr := range d.readers {
		result, err := nr.reader.Decode(bmp, d.hints)
		nr.reader.Reset()
		if err != nil {
			// NotFound, checksum and format failures all mean "nothing here"
			continue
		}
		codes = append(codes, Barcode{
			Payload: result.GetText(),
			Format:  result.GetBarcodeFormat().String(),
			Points:  resultPoints(result.GetResultPoints()),
			Backend: BackendZXing,
		})
	}

	codes = Dedupe(codes)
	if len(codes) > 0 {
		debug.Log("zxing decoded", "seq", f.Seq, "count", len(codes))
	}
	return codes, nil
}

func resultPoints(points []gozxing.ResultPoint) []image.Point {
	if len(points) == 0 {
		return nil
	}
	out := make([]image.Point, 0, len(points))
	for _, p := range points {
		if p == nil {
			continue
		}
		out = append(out, image.Pt(int(p.GetX()+0.5), int(p.GetY()+0.5)))
	}
	return out
}

// Close marks the detector closed. The readers hold no native resources.
func (d *ZXingDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}
