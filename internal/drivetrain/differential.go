package drivetrain

import (
	"fmt"
	"math"

	"github.com/OCAP2/softbody/internal/vmath"
)

// DiffMode is the coupling of a differential.
type DiffMode int

const (
	DiffSplit DiffMode = iota
	DiffOpen
	DiffViscous
	DiffLocked
)

var diffModeNames = [...]string{"split", "open", "viscous", "locked"}

func (m DiffMode) String() string {
	if m < 0 || int(m) >= len(diffModeNames) {
		return "invalid"
	}
	return diffModeNames[m]
}

// ParseDiffMode maps a definition letter or name to a DiffMode.
func ParseDiffMode(s string) (DiffMode, error) {
	switch s {
	case "s", "split":
		return DiffSplit, nil
	case "o", "open":
		return DiffOpen, nil
	case "v", "viscous":
		return DiffViscous, nil
	case "l", "locked":
		return DiffLocked, nil
	}
	return 0, fmt.Errorf("unknown differential mode %q", s)
}

const (
	viscousDamp  = 10000.0
	lockedRate   = 1000000.0
	lockedDamp   = lockedRate / 100
	openMinSpeed = 1.0
)

// Differential joins two shafts. For a wheel differential A and B are wheel
// indices; for an inter-axle differential they are axle indices.
type Differential struct {
	A, B  int
	Modes []DiffMode
	Which int

	// DeltaRotation is the angle the shafts turned against each other while
	// locked.
	DeltaRotation float64
}

// NewDifferential returns a differential. Without modes it defaults to open.
func NewDifferential(a, b int, modes []DiffMode) *Differential {
	if len(modes) == 0 {
		modes = []DiffMode{DiffOpen}
	}
	return &Differential{A: a, B: b, Modes: modes}
}

// Mode returns the active mode.
func (d *Differential) Mode() DiffMode { return d.Modes[d.Which] }

// ToggleMode advances to the next available mode.
func (d *Differential) ToggleMode() {
	d.Which = (d.Which + 1) % len(d.Modes)
}

// Split divides in between the two shafts turning at speedA and speedB.
func (d *Differential) Split(speedA, speedB, in, dt float64) (outA, outB float64) {
	switch d.Mode() {
	case DiffOpen:
		sum := math.Abs(speedA) + math.Abs(speedB)
		ratio := 0.5
		if min(math.Abs(speedA), math.Abs(speedB)) > openMinSpeed {
			ratio = math.Abs(speedA) / sum
		}
		return in * vmath.Clamp(ratio, 0.1, 0.9), in * vmath.Clamp(1-ratio, 0.1, 0.9)
	case DiffViscous:
		delta := speedA - speedB
		return in/2 - delta*viscousDamp, in/2 + delta*viscousDamp
	case DiffLocked:
		delta := speedA - speedB
		d.DeltaRotation += delta * dt
		outA = in/2 - d.DeltaRotation*lockedRate - delta*lockedDamp
		outB = in/2 + d.DeltaRotation*lockedRate + delta*lockedDamp
		return outA, outB
	default:
		return in / 2, in / 2
	}
}
