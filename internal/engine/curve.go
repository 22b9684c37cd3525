package engine

import (
	"fmt"
	"math"
	"slices"
	"sort"
)

// Interpolation selects how a TorqueCurve reads between samples.
type Interpolation int

const (
	Linear Interpolation = iota
	Spline
)

// builtinCurves are normalised: x is rpm as a fraction of the engine's max
// rpm, y the torque fraction.
var builtinCurves = map[string][][2]float64{
	"default": {
		{0, 0.6}, {0.15, 0.8}, {0.35, 0.95}, {0.6, 1}, {0.85, 0.95}, {1, 0.85}, {1.25, 0.5},
	},
	"turbodiesel": {
		{0, 0.5}, {0.2, 0.85}, {0.4, 1}, {0.7, 1}, {1, 0.75}, {1.25, 0.4},
	},
	"gasoline": {
		{0, 0.4}, {0.2, 0.7}, {0.5, 0.9}, {0.75, 1}, {1, 0.9}, {1.25, 0.5},
	},
	"electric": {
		{0, 1}, {0.5, 1}, {0.75, 0.8}, {1, 0.55}, {1.25, 0.3},
	},
	"flat": {
		{0, 1}, {1.25, 1},
	},
}

// CurveNames lists the built-in torque curves.
func CurveNames() []string {
	names := make([]string, 0, len(builtinCurves))
	for n := range builtinCurves {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// TorqueCurve maps engine rpm to a torque fraction.
type TorqueCurve struct {
	Name   string
	Mode   Interpolation
	points [][2]float64
}

// NewTorqueCurve returns the named built-in curve scaled to maxRPM.
func NewTorqueCurve(name string, maxRPM float64) (*TorqueCurve, error) {
	if name == "" {
		name = "default"
	}
	base, ok := builtinCurves[name]
	if !ok {
		return nil, fmt.Errorf("unknown torque curve %q", name)
	}
	pts := make([][2]float64, len(base))
	for i, p := range base {
		pts[i] = [2]float64{p[0] * maxRPM, p[1]}
	}
	return &TorqueCurve{Name: name, Mode: Spline, points: pts}, nil
}

// CustomTorqueCurve builds a curve from (rpm, fraction) samples.
func CustomTorqueCurve(samples [][2]float64) (*TorqueCurve, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("torque curve has no samples")
	}
	pts := slices.Clone(samples)
	slices.SortFunc(pts, func(a, b [2]float64) int {
		switch {
		case a[0] < b[0]:
			return -1
		case a[0] > b[0]:
			return 1
		}
		return 0
	})
	for _, p := range pts {
		if math.IsNaN(p[0]) || math.IsNaN(p[1]) || p[1] < 0 {
			return nil, fmt.Errorf("torque curve sample %v out of range", p)
		}
	}
	return &TorqueCurve{Name: "custom", Mode: Linear, points: pts}, nil
}

// At returns the torque fraction at rpm, clamped to the sampled range.
func (c *TorqueCurve) At(rpm float64) float64 {
	p := c.points
	if len(p) == 1 || rpm <= p[0][0] {
		return p[0][1]
	}
	last := len(p) - 1
	if rpm >= p[last][0] {
		return p[last][1]
	}
	i := sort.Search(len(p), func(i int) bool { return p[i][0] > rpm }) - 1
	span := p[i+1][0] - p[i][0]
	if span <= 0 {
		return p[i][1]
	}
	t := (rpm - p[i][0]) / span
	if c.Mode == Linear || len(p) < 3 {
		return p[i][1] + (p[i+1][1]-p[i][1])*t
	}
	// Catmull-Rom with clamped end tangents.
	y0 := p[max(i-1, 0)][1]
	y1, y2 := p[i][1], p[i+1][1]
	y3 := p[min(i+2, last)][1]
	t2, t3 := t*t, t*t*t
	v := 0.5 * (2*y1 + (-y0+y2)*t + (2*y0-5*y1+4*y2-y3)*t2 + (-y0+3*y1-3*y2+y3)*t3)
	return math.Max(v, 0)
}
