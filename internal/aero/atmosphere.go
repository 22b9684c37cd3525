// Package aero computes aerodynamic forces: flexible airfoil wings with
// control surfaces, turboprops and turbojets with propwash.
package aero

import "math"

// Standard atmosphere, troposphere only (valid up to 11000 m).
const (
	SeaLevelPressure = 101325.0
	SeaLevelDensity  = 1.225

	lapseRate      = 0.0065
	seaLevelTemp   = 288.15
	pressureExp    = 5.24947
	densityPerPasc = 0.0000120896
)

// AirDensity returns the air density in kg/m³ at altitude metres.
func AirDensity(altitude float64) float64 {
	altitude = math.Min(altitude, 11000)
	p := SeaLevelPressure * math.Pow(1-lapseRate*altitude/seaLevelTemp, pressureExp)
	return p * densityPerPasc
}
