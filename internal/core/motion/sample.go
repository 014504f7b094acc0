package motion

import (
	"context"
	"math"
)

// Sample is one relative motion event read from the pointer device.
type Sample struct {
	DX int8
	DY int8
}

// Magnitude returns the Euclidean length of the motion vector.
// Integer inputs still produce fractional distances, e.g. (1, 1) → √2.
func (s Sample) Magnitude() float64 {
	dx := float64(s.DX)
	dy := float64(s.DY)
	return math.Sqrt(dx*dx + dy*dy)
}

// SampleSource produces motion samples one at a time.
// NextSample blocks until a full event has been read. Errors wrap ErrDeviceRead
// and are never retried by the source itself.
type SampleSource interface {
	NextSample(ctx context.Context) (Sample, error)
}
