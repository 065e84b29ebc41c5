// Package detection finds and decodes barcodes in a frame
package detection

import (
	"image"

	"github.com/teslashibe/go-steadyscan/pkg/frame"
)

// Barcode is one decoded symbol
type Barcode struct {
	Payload string        `json:"payload"`          // Decoded text
	Format  string        `json:"format"`           // Symbology, e.g. "QR_CODE", "EAN_13"
	Points  []image.Point `json:"points,omitempty"` // Corner or end points in frame pixels
	Backend string        `json:"backend"`          // Detector that produced it
}

// Detector is the interface for barcode detection backends
type Detector interface {
	// Detect returns every barcode found in the frame. An empty result with a
	// nil error means the frame was readable but held no barcode.
	Detect(f *frame.Frame) ([]Barcode, error)

	// Close releases resources
	Close() error
}

// Dedupe drops repeated payloads, keeping the first occurrence
func Dedupe(codes []Barcode) []Barcode {
	if len(codes) < 2 {
		return codes
	}

	seen := make(map[string]bool, len(codes))
	out := codes[:0:0]
	for _, c := range codes {
		key := c.Format + "\x00" + c.Payload
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out
}

// SelectBest picks the barcode to report when several are found.
// Priority: 2D symbols over 1D, then the longest payload.
func SelectBest(codes []Barcode) *Barcode {
	if len(codes) == 0 {
		return nil
	}

	best := &codes[0]
	for i := 1; i < len(codes); i++ {
		c := &codes[i]
		if is2D(c.Format) != is2D(best.Format) {
			if is2D(c.Format) {
				best = c
			}
			continue
		}
		if len(c.Payload) > len(best.Payload) {
			best = c
		}
	}
	return best
}

func is2D(format string) bool {
	switch format {
	case "QR_CODE", "DATA_MATRIX", "AZTEC", "PDF_417", "MAXICODE":
		return true
	}
	return false
}
