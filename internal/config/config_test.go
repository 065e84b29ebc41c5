package config

import (
	"math"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"SCAN_PORT", "SCAN_LOG_LEVEL", "SCAN_HISTORY_SIZE", "SCAN_STABILITY_THRESHOLD",
		"SCAN_MIN_RESPONSE", "SCAN_REGISTRATION_SCALE", "SCAN_DETECTOR",
		"SCAN_CAMERA_DEVICE", "SCAN_SIGNALLING_URL", "SCAN_SYMBOLOGIES", "SCAN_WEBHOOK_URL",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()

	if cfg.Port != DefaultPort {
		t.Errorf("Port: got %q, want %q", cfg.Port, DefaultPort)
	}
	if cfg.HistorySize != 15 {
		t.Errorf("HistorySize: got %d, want 15", cfg.HistorySize)
	}
	if cfg.StabilityThreshold != 20 {
		t.Errorf("StabilityThreshold: got %v, want 20", cfg.StabilityThreshold)
	}
	if cfg.Detector != "zxing" {
		t.Errorf("Detector: got %q, want zxing", cfg.Detector)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SCAN_PORT", "9000")
	t.Setenv("SCAN_HISTORY_SIZE", "30")
	t.Setenv("SCAN_STABILITY_THRESHOLD", "12.5")
	t.Setenv("SCAN_DETECTOR", "OpenCV")
	t.Setenv("SCAN_SIGNALLING_URL", "ws://10.0.0.2:8443")
	t.Setenv("SCAN_SYMBOLOGIES", "qr,ean")
	t.Setenv("SCAN_WEBHOOK_URL", "http://erp.local/scans")

	cfg := Load()

	if cfg.Symbologies != "qr,ean" {
		t.Errorf("Symbologies: got %q", cfg.Symbologies)
	}
	if cfg.WebhookURL != "http://erp.local/scans" {
		t.Errorf("WebhookURL: got %q", cfg.WebhookURL)
	}

	if cfg.Port != "9000" {
		t.Errorf("Port: got %q, want 9000", cfg.Port)
	}
	if cfg.HistorySize != 30 {
		t.Errorf("HistorySize: got %d, want 30", cfg.HistorySize)
	}
	if cfg.StabilityThreshold != 12.5 {
		t.Errorf("StabilityThreshold: got %v, want 12.5", cfg.StabilityThreshold)
	}
	if cfg.Detector != "opencv" {
		t.Errorf("Detector: got %q, want opencv", cfg.Detector)
	}
	if cfg.SignallingURL != "ws://10.0.0.2:8443" {
		t.Errorf("SignallingURL: got %q", cfg.SignallingURL)
	}
}

func TestLoad_MalformedFallsBack(t *testing.T) {
	t.Setenv("SCAN_HISTORY_SIZE", "many")
	t.Setenv("SCAN_STABILITY_THRESHOLD", "twenty")

	cfg := Load()

	if cfg.HistorySize != DefaultHistorySize {
		t.Errorf("HistorySize: got %d, want default %d", cfg.HistorySize, DefaultHistorySize)
	}
	if cfg.StabilityThreshold != DefaultStabilityThreshold {
		t.Errorf("StabilityThreshold: got %v, want default", cfg.StabilityThreshold)
	}
}

func TestValidate(t *testing.T) {
	base := Config{
		Port:               "8090",
		HistorySize:        15,
		StabilityThreshold: 20,
		MinResponse:        0.05,
		RegistrationScale:  0.5,
		Detector:           "chain",
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"empty port", func(c *Config) { c.Port = "" }, true},
		{"zero history", func(c *Config) { c.HistorySize = 0 }, true},
		{"negative threshold", func(c *Config) { c.StabilityThreshold = -1 }, true},
		{"NaN threshold", func(c *Config) { c.StabilityThreshold = math.NaN() }, true},
		{"infinite threshold", func(c *Config) { c.StabilityThreshold = math.Inf(1) }, true},
		{"NaN response", func(c *Config) { c.MinResponse = math.NaN() }, true},
		{"NaN scale", func(c *Config) { c.RegistrationScale = math.NaN() }, true},
		{"response above one", func(c *Config) { c.MinResponse = 1.5 }, true},
		{"zero scale", func(c *Config) { c.RegistrationScale = 0 }, true},
		{"unknown detector", func(c *Config) { c.Detector = "vision" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_NonFiniteThresholdFailsValidation(t *testing.T) {
	for _, v := range []string{"NaN", "Inf", "-Inf"} {
		t.Run(v, func(t *testing.T) {
			t.Setenv("SCAN_STABILITY_THRESHOLD", v)
			if err := Load().Validate(); err == nil {
				t.Errorf("Validate() with SCAN_STABILITY_THRESHOLD=%s: want error", v)
			}
		})
	}
}
