package registration

import "errors"

// Sentinel errors returned by aligners.
var (
	// ErrNoCorrespondence is returned when the two frames share no usable
	// structure (flat scene, heavy blur, or a cut).
	ErrNoCorrespondence = errors.New("registration: no correspondence between frames")

	// ErrFrameMismatch is returned when frames differ in format or size.
	ErrFrameMismatch = errors.New("registration: frames have different format or size")
)
