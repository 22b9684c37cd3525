// Package actuate animates beams and rotators: hydros steered by the
// driver, command keys, rotators and trigger beams.
package actuate

import (
	"fmt"
	"math"
	"sort"

	"github.com/OCAP2/softbody/pkg/core"
)

// inertiaRate is the output change per second of a model returning 1.
const inertiaRate = 2.0

// inertiaSettle resets the ramp timer once the output is this close to the input.
const inertiaSettle = 0.002

// Inertia models, sampled over the normalised ramp time [0, 1].
var inertiaModels = map[string][][2]float64{
	"constant":  {{0, 1}, {1, 1}},
	"linear":    {{0, 0}, {1, 1}},
	"quadratic": {{0, 0}, {0.25, 0.0625}, {0.5, 0.25}, {0.75, 0.5625}, {1, 1}},
	"softstart": {{0, 0.1}, {0.3, 0.5}, {1, 1}},
	"fast":      {{0, 1}, {0.5, 2}, {1, 3}},
}

// DefaultInertiaModel is used when a definition names no function.
const DefaultInertiaModel = "constant"

// InertiaModels lists the built-in ramp models.
func InertiaModels() []string {
	names := make([]string, 0, len(inertiaModels))
	for n := range inertiaModels {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func sampleModel(pts [][2]float64, x float64) float64 {
	x = math.Min(math.Max(x, 0), 1)
	for i := 1; i < len(pts); i++ {
		if x <= pts[i][0] {
			a, b := pts[i-1], pts[i]
			return a[1] + (b[1]-a[1])*(x-a[0])/(b[0]-a[0])
		}
	}
	return pts[len(pts)-1][1]
}

// Inertia delays a command value with separate start and stop ramps. A nil
// Inertia passes values through.
type Inertia struct {
	StartDelay float64
	StopDelay  float64

	start, stop [][2]float64
	last        float64
	time        float64
}

// NewInertia builds an inertia from its definition; a nil definition
// returns nil.
func NewInertia(def *core.InertiaDef) (*Inertia, error) {
	if def == nil {
		return nil, nil
	}
	if def.StartDelay <= 0 || def.StopDelay <= 0 {
		return nil, fmt.Errorf("inertia delays must be positive, got %g/%g", def.StartDelay, def.StopDelay)
	}
	model := func(name string) ([][2]float64, error) {
		if name == "" {
			name = DefaultInertiaModel
		}
		m, ok := inertiaModels[name]
		if !ok {
			return nil, fmt.Errorf("unknown inertia function %q", name)
		}
		return m, nil
	}
	start, err := model(def.StartFunction)
	if err != nil {
		return nil, err
	}
	stop, err := model(def.StopFunction)
	if err != nil {
		return nil, err
	}
	return &Inertia{StartDelay: def.StartDelay, StopDelay: def.StopDelay, start: start, stop: stop}, nil
}

// Calc moves the output toward input and returns it. Moving away from zero
// uses the start ramp, otherwise the stop ramp. The output never overshoots
// input.
func (in *Inertia) Calc(input, dt float64) float64 {
	if in == nil {
		return input
	}
	out := in.last
	rel := math.Abs(input) - math.Abs(out)
	diff := input - out
	if math.Abs(diff) < inertiaSettle {
		in.time = 0
	}
	in.time += dt

	step := func() float64 {
		if rel > 0 {
			return sampleModel(in.start, in.StartDelay*in.time) * inertiaRate * dt
		}
		return sampleModel(in.stop, in.StopDelay*in.time) * inertiaRate * dt
	}
	switch {
	case diff > 0:
		out = math.Min(out+step(), input)
	case diff < 0:
		out = math.Max(out-step(), input)
	}
	in.last = out
	return out
}

// Last returns the most recent output.
func (in *Inertia) Last() float64 {
	if in == nil {
		return 0
	}
	return in.last
}

// Reset clears the ramp state.
func (in *Inertia) Reset() {
	if in == nil {
		return
	}
	in.last = 0
	in.time = 0
}
