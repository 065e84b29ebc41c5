// Package debug provides global verbose-tracing flags
package debug

import "github.com/teslashibe/go-steadyscan/internal/log"

// Enabled controls whether debug logging is active
var Enabled bool

// Frames controls per-frame tracing (offsets, stability verdicts, submissions).
// At camera rate this is very noisy, so it has its own --debug-frames flag.
var Frames bool

// Log emits a debug message only if debug mode is enabled
func Log(msg string, args ...any) {
	if Enabled {
		log.Info(msg, args...)
	}
}

// FrameLog emits a per-frame trace only if frame tracing is enabled
func FrameLog(msg string, args ...any) {
	if Frames {
		log.Info(msg, args...)
	}
}
