package detection

import (
	"errors"
	"log/slog"

	"github.com/teslashibe/go-steadyscan/internal/log"
	"github.com/teslashibe/go-steadyscan/pkg/frame"
)

// Chain tries multiple detectors in order. The first backend that finds at
// least one barcode wins; a backend that errors is skipped.
type Chain struct {
	detectors []Detector
	logger    *slog.Logger
}

// NewChain creates a detector chain.
// At least one detector is required.
func NewChain(detectors ...Detector) (*Chain, error) {
	if len(detectors) == 0 {
		return nil, ErrNoDetectors
	}
	return &Chain{
		detectors: detectors,
		logger:    log.For("detection.chain"),
	}, nil
}

// Detect runs each detector until one finds a barcode. It returns an empty
// result if every backend ran cleanly and found nothing, and a ChainError
// only if every backend failed.
func (c *Chain) Detect(f *frame.Frame) ([]Barcode, error) {
	var errs []error

	for i, d := range c.detectors {
		codes, err := d.Detect(f)
		if err != nil {
			errs = append(errs, err)
			c.logger.Warn("detector failed, trying next",
				"detector_index", i,
				"error", err,
			)
			continue
		}

		if len(codes) > 0 {
			if i > 0 {
				c.logger.Debug("fallback detector found barcode", "detector_index", i)
			}
			return codes, nil
		}
	}

	if len(errs) == len(c.detectors) {
		return nil, &ChainError{Errors: errs}
	}
	return nil, nil
}

// Close closes every detector in the chain.
func (c *Chain) Close() error {
	var errs []error
	for _, d := range c.detectors {
		if err := d.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
