// Package config provides configuration helpers for steadyscan commands.
// Every setting has a default and can be overridden by an environment variable.
package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

// Default scanner configuration.
const (
	DefaultPort               = "8090"
	DefaultLogLevel           = "info"
	DefaultHistorySize        = 15
	DefaultStabilityThreshold = 20.0
	DefaultMinResponse        = 0.05
	DefaultRegistrationScale  = 0.5
	DefaultDetector           = "zxing"
	DefaultCameraDevice       = 0
)

// Detector backends accepted by SCAN_DETECTOR.
var validDetectors = map[string]bool{"zxing": true, "opencv": true, "chain": true}

// Config holds process-wide settings read from the environment.
type Config struct {
	Port     string
	LogLevel string

	// Stability gating
	HistorySize        int
	StabilityThreshold float64

	// Registration
	MinResponse       float64
	RegistrationScale float64

	// Detection backend: zxing, opencv or chain
	Detector    string
	Symbologies string // Comma separated; empty enables all

	// Capture
	CameraDevice  int
	SignallingURL string // WebRTC signalling server; empty means local camera

	// WebhookURL receives barcode events as JSON; empty disables it
	WebhookURL string
}

// Load reads the configuration from the environment.
// Malformed numeric values fall back to their defaults.
func Load() Config {
	return Config{
		Port:               String("SCAN_PORT", DefaultPort),
		LogLevel:           String("SCAN_LOG_LEVEL", DefaultLogLevel),
		HistorySize:        Int("SCAN_HISTORY_SIZE", DefaultHistorySize),
		StabilityThreshold: Float("SCAN_STABILITY_THRESHOLD", DefaultStabilityThreshold),
		MinResponse:        Float("SCAN_MIN_RESPONSE", DefaultMinResponse),
		RegistrationScale:  Float("SCAN_REGISTRATION_SCALE", DefaultRegistrationScale),
		Detector:           strings.ToLower(String("SCAN_DETECTOR", DefaultDetector)),
		Symbologies:        String("SCAN_SYMBOLOGIES", ""),
		CameraDevice:       Int("SCAN_CAMERA_DEVICE", DefaultCameraDevice),
		SignallingURL:      String("SCAN_SIGNALLING_URL", ""),
		WebhookURL:         String("SCAN_WEBHOOK_URL", ""),
	}
}

// Validate checks that the settings are usable.
func (c Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("config: port required")
	}
	if c.HistorySize < 1 {
		return fmt.Errorf("config: history size must be >= 1, got %d", c.HistorySize)
	}
	if c.StabilityThreshold <= 0 || !finite(c.StabilityThreshold) {
		return fmt.Errorf("config: stability threshold must be finite and > 0, got %v", c.StabilityThreshold)
	}
	if !(c.MinResponse >= 0 && c.MinResponse <= 1) {
		return fmt.Errorf("config: min response must be in [0, 1], got %v", c.MinResponse)
	}
	if !(c.RegistrationScale > 0 && c.RegistrationScale <= 1) {
		return fmt.Errorf("config: registration scale must be in (0, 1], got %v", c.RegistrationScale)
	}
	if !validDetectors[c.Detector] {
		return fmt.Errorf("config: unknown detector %q (want zxing, opencv or chain)", c.Detector)
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// String returns the env var value or def if unset.
func String(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Int returns the env var parsed as an int, or def if unset or malformed.
func Int(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: ignoring %s=%q: %v\n", key, v, err)
		return def
	}
	return n
}

// Float returns the env var parsed as a float64, or def if unset or malformed.
func Float(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: ignoring %s=%q: %v\n", key, v, err)
		return def
	}
	return f
}
