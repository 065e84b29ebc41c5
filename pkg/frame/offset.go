package frame

import (
	"fmt"
	"math"
)

// Offset is the translational displacement between two consecutive frames,
// in pixels of the registered image.
type Offset struct {
	DX, DY float64
}

// Add returns the component-wise sum of o and other.
func (o Offset) Add(other Offset) Offset {
	return Offset{DX: o.DX + other.DX, DY: o.DY + other.DY}
}

// Scale returns o with both components multiplied by k.
func (o Offset) Scale(k float64) Offset {
	return Offset{DX: o.DX * k, DY: o.DY * k}
}

// Manhattan returns |DX| + |DY|.
func (o Offset) Manhattan() float64 {
	return math.Abs(o.DX) + math.Abs(o.DY)
}

func (o Offset) String() string {
	return fmt.Sprintf("(%.2f, %.2f)", o.DX, o.DY)
}
