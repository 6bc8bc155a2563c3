// Package testpoints implements near-threshold test-point sampling:
// given a coarse estimate of a boundary (a ramping tester's pickup
// value, or a distance point on the R/X plane), it generates a
// geometrically narrowing sequence of refinement points clustered around
// that boundary, sparing the operator from hand-specifying every point.
package testpoints

import (
	"math"
	"math/rand"
)

// Sampler holds a seeded RNG and produces refinement points biased toward
// a boundary estimate using a triangular distribution.
type Sampler struct {
	rng *rand.Rand
}

// NewSampler creates a Sampler seeded with the given value.
func NewSampler(seed int64) *Sampler {
	return &Sampler{rng: rand.New(rand.NewSource(seed))} //nolint:gosec
}

// triangular samples from a triangular distribution on [lo, hi], biasing
// samples toward mode.
func (s *Sampler) triangular(lo, hi, mode float64) float64 {
	if hi <= lo {
		return mode
	}
	u := s.rng.Float64()
	fc := (mode - lo) / (hi - lo)
	if u < fc {
		return lo + math.Sqrt(u*(hi-lo)*(mode-lo))
	}
	return hi - math.Sqrt((1-u)*(hi-lo)*(hi-mode))
}

// RefineScalar takes a coarse estimate of a scalar boundary (e.g. a
// ramping tester's pickup_value) and the original step size the coarse
// pass used, and returns `levels` points sampled from successively
// narrower windows around estimate — the half-width halves at each level,
// so later points cluster tighter around the boundary than earlier ones.
func (s *Sampler) RefineScalar(estimate, origStep float64, levels int) []float64 {
	if levels <= 0 {
		return nil
	}
	points := make([]float64, 0, levels)
	halfWidth := origStep
	for l := 0; l < levels; l++ {
		halfWidth /= 2
		points = append(points, s.triangular(estimate-halfWidth, estimate+halfWidth, estimate))
	}
	return points
}

// Point2D is one refinement point on a two-axis boundary (e.g. the
// distance tester's R/X plane).
type Point2D struct {
	R, X float64
}

// RefineRX narrows around an (r, x) boundary estimate on two independent
// axes, for the distance tester's optional AutoRefine pass.
func (s *Sampler) RefineRX(r, x, origStepR, origStepX float64, levels int) []Point2D {
	if levels <= 0 {
		return nil
	}
	points := make([]Point2D, 0, levels)
	halfR, halfX := origStepR, origStepX
	for l := 0; l < levels; l++ {
		halfR /= 2
		halfX /= 2
		points = append(points, Point2D{
			R: s.triangular(r-halfR, r+halfR, r),
			X: s.triangular(x-halfX, x+halfX, x),
		})
	}
	return points
}
