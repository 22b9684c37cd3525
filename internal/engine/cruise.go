package engine

import "math"

const (
	cruiseKp        = 2.0
	cruiseKi        = 0.5
	cruiseSpeedRate = 2.5
	cruiseRPMRate   = 1000.0
	cruiseRPMScale  = 0.01
	cruiseOverride  = 0.05
)

// Cruise holds a road speed, or an engine rpm in neutral.
type Cruise struct {
	Active      bool
	TargetSpeed float64
	TargetRPM   float64
	LowerLimit  float64

	integral float64
}

// CruiseInput is what cruise control reads each step.
type CruiseInput struct {
	Throttle     float64
	Brake        float64
	Clutch       float64
	ParkingBrake bool
	Accel        bool
	Decel        bool
	WheelSpeed   float64
}

// Toggle engages cruise at the current speed and rpm, or releases it.
// It returns the new state.
func (c *Cruise) Toggle(e *Engine, wheelSpeed float64) bool {
	c.Active = !c.Active
	c.integral = 0
	if c.Active {
		c.TargetSpeed = wheelSpeed
		c.TargetRPM = e.rpm
	}
	return c.Active
}

// Update returns the throttle to apply. disengaged is true when the driver
// or the vehicle state cancelled cruise this step.
func (c *Cruise) Update(e *Engine, in CruiseInput, dt float64) (acc float64, disengaged bool) {
	if !c.Active {
		return in.Throttle, false
	}
	if in.Brake > cruiseOverride || in.Clutch > cruiseOverride ||
		(e.gear > 0 && c.TargetSpeed < c.LowerLimit) ||
		(in.ParkingBrake && e.gear > 0) || !e.running || !e.contact {
		c.Active = false
		c.integral = 0
		return in.Throttle, true
	}

	switch {
	case in.Accel && e.gear > 0:
		c.TargetSpeed += cruiseSpeedRate * dt
	case in.Accel:
		c.TargetRPM = math.Min(c.TargetRPM+cruiseRPMRate*dt, e.maxRPM)
	case in.Decel && e.gear > 0:
		c.TargetSpeed = math.Max(c.TargetSpeed-cruiseSpeedRate*dt, c.LowerLimit)
	case in.Decel:
		c.TargetRPM = math.Max(c.TargetRPM-cruiseRPMRate*dt, e.idleRPM)
	}

	var err float64
	if e.gear > 0 {
		err = c.TargetSpeed - in.WheelSpeed
	} else {
		err = (c.TargetRPM - e.rpm) * cruiseRPMScale
	}
	out := cruiseKp*err + cruiseKi*c.integral
	// Integrate only while the output is not saturated.
	if (out < 1 || err < 0) && (out > 0 || err > 0) {
		c.integral += err * dt
	}
	out = math.Min(math.Max(out, 0), 1)
	return math.Max(in.Throttle, out), false
}
