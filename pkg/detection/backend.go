package detection

import "fmt"

// Backend names accepted by New
const (
	BackendZXing  = "zxing"
	BackendOpenCV = "opencv"
	BackendChain  = "chain" // ZXing first, OpenCV QR as fallback
)

// New builds the named detector backend
func New(backend string, cfg Config) (Detector, error) {
	switch backend {
	case BackendZXing:
		zx, err := NewZXing(cfg)
		if err != nil {
			return nil, err
		}
		return zx, nil
	case BackendOpenCV:
		return NewOpenCV(), nil
	case BackendChain:
		zx, err := NewZXing(cfg)
		if err != nil {
			return nil, err
		}
		chain, err := NewChain(zx, NewOpenCV())
		if err != nil {
			return nil, err
		}
		return chain, nil
	default:
		return nil, fmt.Errorf("detection: unknown backend %q", backend)
	}
}
