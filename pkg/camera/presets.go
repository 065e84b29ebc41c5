package camera

// Preset names for common configurations
const (
	PresetDefault  = "default"
	PresetLegacy   = "legacy"
	Preset1080p    = "1080p"
	PresetLowLight = "lowlight"
	PresetFast     = "fast"
)

// Presets returns all available preset configurations.
func Presets() map[string]Config {
	return map[string]Config{
		PresetDefault:  DefaultConfig(),
		PresetLegacy:   LegacyConfig(),
		Preset1080p:    HD1080Config(),
		PresetLowLight: LowLightConfig(),
		PresetFast:     FastConfig(),
	}
}

// PresetNames returns the list of available preset names.
func PresetNames() []string {
	return []string{
		PresetDefault,
		PresetLegacy,
		Preset1080p,
		PresetLowLight,
		PresetFast,
	}
}

// GetPreset returns a preset config by name, or nil if not found.
func GetPreset(name string) *Config {
	presets := Presets()
	if cfg, ok := presets[name]; ok {
		return &cfg
	}
	return nil
}

// LegacyConfig returns 640x480 for older webcams.
func LegacyConfig() Config {
	cfg := DefaultConfig()
	cfg.Width = 640
	cfg.Height = 480
	return cfg
}

// HD1080Config returns 1080p for dense 2D codes at a distance.
// Registration runs on a downscaled copy, so the cost is mostly decode.
func HD1080Config() Config {
	cfg := DefaultConfig()
	cfg.Width = 1920
	cfg.Height = 1080
	return cfg
}

// LowLightConfig trades framerate for exposure. At 15 fps the driver's auto
// exposure can hold each frame longer; the stability gate waits out the blur.
func LowLightConfig() Config {
	cfg := DefaultConfig()
	cfg.Framerate = 15
	return cfg
}

// FastConfig favours framerate for codes passing on a conveyor or in a hand
// sweep, where a settled window is only a fraction of a second.
func FastConfig() Config {
	cfg := LegacyConfig()
	cfg.Framerate = 60
	return cfg
}
