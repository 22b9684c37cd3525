package aero

import (
	"fmt"
	"math"
	"sort"
)

// Airfoil is a parametric polar. Angles are in degrees.
type Airfoil struct {
	Name string
	// Cl0 is the lift coefficient at zero angle of attack.
	Cl0 float64
	// ClAlpha is the lift slope per degree.
	ClAlpha float64
	// Stall is the stall angle of attack.
	Stall float64
	Cd0   float64
	// K scales lift-induced profile drag.
	K   float64
	Cm0 float64
}

var airfoils = map[string]Airfoil{
	"naca0009": {Name: "naca0009", ClAlpha: 0.1, Stall: 14, Cd0: 0.006, K: 0.008},
	"naca2412": {Name: "naca2412", Cl0: 0.25, ClAlpha: 0.105, Stall: 15, Cd0: 0.007, K: 0.008, Cm0: -0.05},
	"clarky":   {Name: "clarky", Cl0: 0.4, ClAlpha: 0.1, Stall: 14, Cd0: 0.009, K: 0.01, Cm0: -0.08},
	"flat":     {Name: "flat", ClAlpha: 0.09, Stall: 8, Cd0: 0.02, K: 0.02},
}

// DefaultAirfoil is used when a wing names none.
const DefaultAirfoil = "naca2412"

// LookupAirfoil returns the named polar.
func LookupAirfoil(name string) (Airfoil, error) {
	if name == "" {
		name = DefaultAirfoil
	}
	a, ok := airfoils[name]
	if !ok {
		return Airfoil{}, fmt.Errorf("unknown airfoil %q", name)
	}
	return a, nil
}

// AirfoilNames lists the built-in polars.
func AirfoilNames() []string {
	names := make([]string, 0, len(airfoils))
	for n := range airfoils {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Params returns lift, drag and moment coefficients at aoa for a section
// whose trailing chordRatio is deflected by deflection degrees.
func (a Airfoil) Params(aoa, chordRatio, deflection float64) (cl, cd, cm float64) {
	tau := math.Sqrt(math.Max(0, math.Min(chordRatio, 1)))
	eff := aoa + deflection*tau
	eff = math.Mod(eff+180, 360)
	if eff < 0 {
		eff += 360
	}
	eff -= 180

	rad := eff * math.Pi / 180
	s, c := math.Sin(rad), math.Cos(rad)
	plate := 2 * s * c
	if math.Abs(eff) <= a.Stall {
		cl = a.Cl0 + a.ClAlpha*eff
		cd = a.Cd0 + a.K*cl*cl
	} else {
		cl = plate
		cd = a.Cd0 + 2*s*s
	}
	// Deflected surfaces add form drag.
	cd += 0.01 * math.Abs(deflection) * tau / 10
	cm = a.Cm0 - 0.25*(cl-a.Cl0)*0.1 - 0.008*deflection*tau
	return cl, cd, cm
}
