package ingest

import (
	"github.com/teslashibe/go-steadyscan/pkg/analysis"
	"github.com/teslashibe/go-steadyscan/pkg/detection"
	"github.com/teslashibe/go-steadyscan/pkg/registration"
	"github.com/teslashibe/go-steadyscan/pkg/session"
	"github.com/teslashibe/go-steadyscan/pkg/stability"
)

// Factory builds the session for a newly connected camera. The returned
// cleanup is called once the camera disconnects.
type Factory func(cameraID string, cfg stability.Config, l session.Listener) (s *session.Session, cleanup func())

// PipelineFactory wires each camera to its own phase correlator and
// analysis scheduler. The detector is shared and must be safe for
// concurrent use.
func PipelineFactory(detector detection.Detector, phase registration.PhaseConfig) Factory {
	return func(cameraID string, cfg stability.Config, l session.Listener) (*session.Session, func()) {
		correlator := registration.NewPhaseCorrelator(phase)
		scheduler := analysis.NewScheduler(detector)

		s := session.New(cfg, registration.NewRegistrar(correlator), scheduler, l)
		return s, func() {
			scheduler.Close()
			correlator.Close()
		}
	}
}
