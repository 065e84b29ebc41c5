package detection

import "strings"

// Symbologies understood by the ZXing backend
const (
	SymbologyQR         = "qr"
	SymbologyDataMatrix = "datamatrix"
	SymbologyCode128    = "code128"
	SymbologyCode39     = "code39"
	SymbologyEAN        = "ean" // EAN-13, EAN-8, UPC-A, UPC-E
)

// Config holds detector configuration
type Config struct {
	Symbologies []string // Enabled symbologies, tried in order
	TryHarder   bool     // Spend more time per frame for better accuracy
}

// DefaultConfig returns production defaults: every symbology, try harder on
func DefaultConfig() Config {
	return Config{
		Symbologies: []string{
			SymbologyQR,
			SymbologyDataMatrix,
			SymbologyEAN,
			SymbologyCode128,
			SymbologyCode39,
		},
		TryHarder: true,
	}
}

// ParseSymbologies splits a comma separated list, e.g. "qr,ean"
func ParseSymbologies(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
