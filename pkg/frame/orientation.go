package frame

// Orientation is the rotation of the captured image relative to upright.
type Orientation int

const (
	OrientationPortrait Orientation = iota
	OrientationPortraitUpsideDown
	OrientationLandscapeLeft
	OrientationLandscapeRight
)

func (o Orientation) String() string {
	switch o {
	case OrientationPortraitUpsideDown:
		return "portrait_upside_down"
	case OrientationLandscapeLeft:
		return "landscape_left"
	case OrientationLandscapeRight:
		return "landscape_right"
	default:
		return "portrait"
	}
}

// ParseOrientation parses the wire name of an orientation.
// Unknown names map to portrait.
func ParseOrientation(s string) Orientation {
	switch s {
	case "portrait_upside_down":
		return OrientationPortraitUpsideDown
	case "landscape_left":
		return OrientationLandscapeLeft
	case "landscape_right":
		return OrientationLandscapeRight
	default:
		return OrientationPortrait
	}
}

// OrientationFromDevice maps a physical device orientation to the capture
// orientation. The sensor is mounted rotated, so the two landscape sides swap;
// face-up, face-down and unknown fall back to portrait.
func OrientationFromDevice(device string) Orientation {
	switch device {
	case "landscape_right":
		return OrientationLandscapeLeft
	case "landscape_left":
		return OrientationLandscapeRight
	case "portrait_upside_down":
		return OrientationPortraitUpsideDown
	default:
		return OrientationPortrait
	}
}
