package camera

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Manager holds the current camera configuration and handles updates.
type Manager struct {
	config Config
	mu     sync.RWMutex
}

// NewManager creates a new camera manager with the given config.
func NewManager(cfg Config) *Manager {
	return &Manager{
		config: cfg,
	}
}

// GetConfig returns the current camera configuration.
func (m *Manager) GetConfig() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// SetConfig replaces the camera configuration after validating it.
func (m *Manager) SetConfig(cfg Config) error {
	if errors := cfg.Validate(); len(errors) > 0 {
		return fmt.Errorf("validation failed: %v", errors)
	}

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return nil
}

// UpdateConfig updates specific fields of the configuration.
// Accepts a map of field names to values; a "preset" entry is applied first
// and the other entries override it.
func (m *Manager) UpdateConfig(params map[string]interface{}) error {
	cfg := m.GetConfig()

	if presetName, ok := params["preset"].(string); ok {
		preset := GetPreset(presetName)
		if preset == nil {
			return fmt.Errorf("unknown preset: %s", presetName)
		}
		cfg = *preset
	}

	for key, value := range params {
		var field *int
		switch key {
		case "preset":
			continue
		case "device":
			field = &cfg.Device
		case "width":
			field = &cfg.Width
		case "height":
			field = &cfg.Height
		case "framerate":
			field = &cfg.Framerate
		case "quality":
			field = &cfg.Quality
		default:
			return fmt.Errorf("unknown camera parameter: %s", key)
		}

		v, ok := toInt(value)
		if !ok {
			return fmt.Errorf("camera parameter %s: not an integer: %v", key, value)
		}
		*field = v
	}

	return m.SetConfig(cfg)
}

// GetConfigJSON returns the current config as a map for JSON serialization.
func (m *Manager) GetConfigJSON() map[string]interface{} {
	cfg := m.GetConfig()

	// Convert to map via JSON for consistent serialization
	data, _ := json.Marshal(cfg)
	var result map[string]interface{}
	json.Unmarshal(data, &result)

	return result
}

// ParseOverrides parses "key=value" pairs separated by commas, such as a
// command line flag, into UpdateConfig parameters.
func ParseOverrides(s string) (map[string]interface{}, error) {
	params := make(map[string]interface{})
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("camera override %q: want key=value", pair)
		}
		params[strings.ToLower(strings.TrimSpace(key))] = strings.TrimSpace(value)
	}
	return params, nil
}

// Helper functions for type conversion

func toInt(v interface{}) (int, bool) {
	switch val := v.(type) {
	case int:
		return val, true
	case int64:
		return int(val), true
	case float64:
		return int(val), true
	case json.Number:
		i, err := val.Int64()
		if err == nil {
			return int(i), true
		}
	case string:
		i, err := strconv.Atoi(val)
		if err == nil {
			return i, true
		}
	}
	return 0, false
}
