package vehicle

import (
	"math"

	"github.com/OCAP2/softbody/internal/soft"
)

// DefaultMaxSubsteps caps the physics steps run for one host tick so a
// stalled host does not spiral.
const DefaultMaxSubsteps = 200

// Stepper turns host frame times into a whole number of physics steps of
// soft.PhysicsDT, carrying the remainder to the next tick.
type Stepper struct {
	// Fixed, when positive, runs exactly that many steps per tick.
	Fixed int
	Max   int

	acc float64
}

// NewStepper returns a stepper with the default cap. fixed <= 0 derives the
// step count from the host dt.
func NewStepper(fixed int) *Stepper {
	return &Stepper{Fixed: fixed, Max: DefaultMaxSubsteps}
}

// Steps returns the number of physics steps for a tick of hostDt seconds.
func (s *Stepper) Steps(hostDt float64) int {
	if s.Fixed > 0 {
		return s.Fixed
	}
	if hostDt <= 0 || math.IsNaN(hostDt) {
		return 0
	}
	s.acc += hostDt
	n := int(math.Floor(s.acc/soft.PhysicsDT + 1e-9))
	s.acc -= float64(n) * soft.PhysicsDT
	if s.acc < 0 {
		s.acc = 0
	}
	if s.Max > 0 && n > s.Max {
		n = s.Max
		s.acc = 0
	}
	return n
}

// Remainder is the host time not yet covered by physics steps.
func (s *Stepper) Remainder() float64 { return s.acc }

// Reset drops the carried remainder.
func (s *Stepper) Reset() { s.acc = 0 }
