package stability

import (
	"fmt"
	"math"
)

// Default gating parameters. Both are product-tuning values rather than
// structural requirements, so they are carried in Config.
const (
	DefaultHistorySize = 15   // Offsets in the moving-average window
	DefaultThreshold   = 20.0 // Max |mean dx| + |mean dy|, exclusive
)

// Config holds the tunable parameters of the stability gate
type Config struct {
	// HistorySize is the fixed window length. The scene is never reported
	// stable until this many offsets have been recorded.
	HistorySize int `json:"history_size"`

	// Threshold bounds the Manhattan length of the mean offset. A window whose
	// mean reaches the threshold is not stable.
	Threshold float64 `json:"threshold"`
}

// DefaultConfig returns the recommended configuration for handheld scanning
func DefaultConfig() Config {
	return Config{
		HistorySize: DefaultHistorySize,
		Threshold:   DefaultThreshold,
	}
}

// ResponsiveConfig trades false positives for a shorter settle time
func ResponsiveConfig() Config {
	cfg := DefaultConfig()
	cfg.HistorySize = 8
	return cfg
}

// StrictConfig waits longer and demands less drift, for small or dense codes
func StrictConfig() Config {
	cfg := DefaultConfig()
	cfg.HistorySize = 25
	cfg.Threshold = 8
	return cfg
}

// Validate checks the configuration is usable
func (c Config) Validate() error {
	if c.HistorySize < 1 {
		return fmt.Errorf("stability: history size must be >= 1, got %d", c.HistorySize)
	}
	if c.Threshold <= 0 || math.IsNaN(c.Threshold) || math.IsInf(c.Threshold, 0) {
		return fmt.Errorf("stability: threshold must be finite and > 0, got %v", c.Threshold)
	}
	return nil
}

// Presets returns the named configurations
func Presets() map[string]Config {
	return map[string]Config{
		"default":    DefaultConfig(),
		"responsive": ResponsiveConfig(),
		"strict":     StrictConfig(),
	}
}

// Preset looks up a named configuration
func Preset(name string) (Config, bool) {
	cfg, ok := Presets()[name]
	return cfg, ok
}
