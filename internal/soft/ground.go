package soft

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"sort"
	"sync/atomic"

	"github.com/OCAP2/softbody/internal/vmath"
)

// GroundModel describes the friction and fluid behaviour of a surface.
// A model with SolidGroundLevel != 0 is a fluid layer above solid ground.
type GroundModel struct {
	Name string `json:"name"`

	VA       float64 `json:"va"`
	MS       float64 `json:"ms"`
	MC       float64 `json:"mc"`
	T2       float64 `json:"t2"`
	VS       float64 `json:"vs"`
	Alpha    float64 `json:"alpha"`
	Strength float64 `json:"strength"`

	FluidDensity     float64 `json:"fluidDensity,omitempty"`
	FlowConsistency  float64 `json:"flowConsistency,omitempty"`
	FlowBehavior     float64 `json:"flowBehavior,omitempty"`
	SolidGroundLevel float64 `json:"solidGroundLevel,omitempty"`
	DragAnisotropy   float64 `json:"dragAnisotropy,omitempty"`
}

var builtinGrounds = []GroundModel{
	{Name: "concrete", VA: 0.15, MS: 1.0, MC: 0.8, T2: 0.01, VS: 1, Alpha: 2, Strength: 1},
	{Name: "asphalt", VA: 0.15, MS: 1.05, MC: 0.85, T2: 0.01, VS: 1, Alpha: 2, Strength: 1},
	{Name: "gravel", VA: 0.2, MS: 0.7, MC: 0.6, T2: 0.02, VS: 1.5, Alpha: 2, Strength: 1},
	{Name: "grass", VA: 0.2, MS: 0.6, MC: 0.45, T2: 0.02, VS: 1.5, Alpha: 2, Strength: 1},
	{Name: "ice", VA: 0.1, MS: 0.2, MC: 0.15, T2: 0.005, VS: 1, Alpha: 2, Strength: 1},
	{
		Name: "mud", VA: 0.2, MS: 0.5, MC: 0.35, T2: 0.05, VS: 1, Alpha: 2, Strength: 1,
		FluidDensity: 2000, FlowConsistency: 1000, FlowBehavior: 0.6, SolidGroundLevel: 0.5, DragAnisotropy: 0.5,
	},
	{Name: "frictionless", VA: 0.15, VS: 1, Alpha: 2, Strength: 1},
}

// groundModels is replaced as a whole on registration so lookups from the
// physics workers never lock.
var groundModels atomic.Pointer[map[string]*GroundModel]

func init() {
	m := make(map[string]*GroundModel, len(builtinGrounds))
	for i := range builtinGrounds {
		m[builtinGrounds[i].Name] = &builtinGrounds[i]
	}
	groundModels.Store(&m)
}

// DefaultGround is the model used when the ground reports an unknown material.
var DefaultGround = &builtinGrounds[0]

// LookupGroundModel returns the named model, or DefaultGround.
func LookupGroundModel(name string) *GroundModel {
	if gm, ok := (*groundModels.Load())[name]; ok {
		return gm
	}
	return DefaultGround
}

// GroundModelNames lists the known models.
func GroundModelNames() []string {
	models := *groundModels.Load()
	names := make([]string, 0, len(models))
	for n := range models {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// RegisterGroundModel adds gm, replacing a model of the same name. A zero
// Strength counts as 1.
func RegisterGroundModel(gm GroundModel) error {
	switch {
	case gm.Name == "":
		return errors.New("ground model has no name")
	case gm.MS < 0 || gm.MC < 0 || gm.T2 < 0:
		return fmt.Errorf("ground model %q: negative friction coefficient", gm.Name)
	case gm.VA <= 0 || gm.VS <= 0 || gm.Alpha <= 0:
		return fmt.Errorf("ground model %q: adhesion velocity, stribeck velocity and alpha must be positive", gm.Name)
	case gm.Strength < 0:
		return fmt.Errorf("ground model %q: negative strength", gm.Name)
	}
	if gm.Strength == 0 {
		gm.Strength = 1
	}
	for {
		old := groundModels.Load()
		m := maps.Clone(*old)
		m[gm.Name] = &gm
		if groundModels.CompareAndSwap(old, &m) {
			return nil
		}
	}
}

// NoWater is reported by grounds without a water plane.
var NoWater = math.Inf(-1)

// GroundProbe answers terrain and water queries. HeightAt returns the
// terrain height under (x, z), its unit normal and the material name.
type GroundProbe interface {
	HeightAt(x, z float64) (float64, vmath.Vec3, string)
	WaterLevelAt(x, z float64) float64
}

// FlatGround is an infinite plane with an optional water level.
type FlatGround struct {
	Height   float64
	Material string
	Water    float64
}

// NewFlatGround returns a dry plane at height h.
func NewFlatGround(h float64, material string) *FlatGround {
	return &FlatGround{Height: h, Material: material, Water: NoWater}
}

func (g *FlatGround) HeightAt(x, z float64) (float64, vmath.Vec3, string) {
	return g.Height, vmath.UnitY, g.Material
}

func (g *FlatGround) WaterLevelAt(x, z float64) float64 { return g.Water }

// PrimitiveCollision returns the contact force on n given its accumulated
// force, its velocity relative to the surface, the surface normal and the
// penetration depth. A negative reaction derives the normal reaction from
// the node state; otherwise reaction is used as is.
func PrimitiveCollision(n *Node, force, vel, normal vmath.Vec3, dt float64, gm *GroundModel, penetration, reaction float64) vmath.Vec3 {
	vn := vel.Dot(normal)

	if gm.SolidGroundLevel != 0 && penetration >= 0 {
		vsq := math.Max(vel.LenSq(), 1e-6)
		m := gm.FlowConsistency * math.Pow(vsq, (gm.FlowBehavior-1)*0.5)
		drag := vel.Scale(-m * n.Surface)
		if gm.DragAnisotropy < 1 && vn > 0 {
			da := 1.0
			if vsq <= gm.VA*gm.VA {
				da = vsq / (gm.VA * gm.VA)
			}
			drag = drag.Add(normal.Scale(vn * m * (1 - gm.DragAnisotropy) * da))
		}
		force = force.Add(drag)

		buoy := gm.FluidDensity * penetration * -DefaultGravity * n.Volume
		if gm.FlowBehavior < 1 && vn >= 0 {
			fn := force.Dot(normal)
			if fn < 0 && buoy > -fn {
				buoy = -fn
			}
		}
		force = force.Add(normal.Scale(buoy))
	}

	if penetration < gm.SolidGroundLevel {
		return force
	}

	slip, slipv := vel.Sub(normal.Scale(vn)).NormLen()
	fn := force.Dot(normal)
	fdn := fn
	var freaction float64
	if reaction < 0 {
		freaction = -fn
		if vn < 0 {
			freaction += -vn * n.Mass / dt
		}
		freaction = math.Max(freaction, 0)
		n.Slip = slipv
	} else {
		freaction = reaction
		fn = 0
	}

	g := freaction * gm.Strength * n.Friction
	msg := gm.MS * g
	if slipv < gm.VA && g > 0 && force.Sub(normal.Scale(fdn)).LenSq() <= msg*msg {
		ff := -msg * (1 - math.Exp(-slipv/gm.VA))
		return normal.Scale(fn + freaction).Add(slip.Scale(ff))
	}
	stribeck := gm.MC + (gm.MS-gm.MC)*math.Exp(-math.Pow(slipv/gm.VS, gm.Alpha))
	ff := -(stribeck + math.Min(gm.T2*slipv, 5)) * g
	return force.Add(normal.Scale(freaction)).Add(slip.Scale(ff))
}
