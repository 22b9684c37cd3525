package vehicle

import (
	"errors"
	"math"

	"github.com/OCAP2/softbody/internal/actuate"
	"github.com/OCAP2/softbody/internal/aero"
	"github.com/OCAP2/softbody/internal/collision"
	"github.com/OCAP2/softbody/internal/drivetrain"
	"github.com/OCAP2/softbody/internal/engine"
	"github.com/OCAP2/softbody/internal/lock"
	"github.com/OCAP2/softbody/internal/marine"
	"github.com/OCAP2/softbody/internal/replay"
	"github.com/OCAP2/softbody/internal/soft"
	"github.com/OCAP2/softbody/internal/vmath"
	"github.com/OCAP2/softbody/pkg/core"
)

// Wheel beam defaults.
const (
	wheelSpring = 800000.0
	wheelDamp   = 4000.0
)

// spawner carries the state of one Spawn call.
type spawner struct {
	v    *Vehicle
	def  *core.Definition
	body *soft.Body
	// explicit marks nodes whose mass the definition sets.
	explicit []bool
	// nodes is the number of definition nodes; rim nodes follow.
	nodes int
}

// Spawn builds a vehicle from def with every node moved by offset. Invalid
// definitions return a DefinitionInvalid error and no vehicle.
func Spawn(id core.VehicleID, def *core.Definition, offset vmath.Vec3, opts Options) (*Vehicle, error) {
	if def == nil || len(def.Nodes) == 0 {
		return nil, core.NewError(core.DefinitionInvalid, id, core.CodeNoNodes, "definition has no nodes")
	}
	if def.DryMass < 0 || def.MinimumMass < 0 {
		return nil, core.NewError(core.DefinitionInvalid, id, core.CodeBadMass, "negative dry or minimum mass")
	}
	opts = opts.withDefaults()
	v := &Vehicle{
		ID:         id,
		Name:       def.Name,
		Def:        def,
		Body:       &soft.Body{},
		Drivetrain: drivetrain.New(),
		Commands:   actuate.NewCommands(),
		Hydros:     &actuate.Hydros{},
		Locks:      lock.NewLocks(id),
		Replay:     replay.NewBuffer(opts.ReplayLength, opts.ReplayStepping),
		opts:       opts,
		state:      core.StateSimulated,
		cameras:    def.Cameras,
	}
	v.Triggers = actuate.NewTriggers(v.Commands, v)
	v.Body.Triggers = v.Triggers
	v.Cruise.LowerLimit = def.Cruise.LowerLimit

	s := &spawner{v: v, def: def, body: v.Body, nodes: len(def.Nodes)}
	steps := []func() error{
		s.buildNodes,
		s.buildBeams,
		s.buildWheels,
		s.distributeMass,
		s.buildDrivetrain,
		s.buildEngine,
		s.buildCabs,
		s.buildAero,
		s.buildMarine,
		s.buildCommands,
		s.buildLocks,
		s.checkCameras,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, stamp(err, id)
		}
	}

	v.env = soft.Env{
		Gravity:      opts.Gravity,
		DisableDrag:  def.DisableDrag,
		NodeBuoyancy: len(v.buoyCabs) == 0,
	}
	for _, h := range def.Hooks {
		v.autoLock = v.autoLock || h.AutoLock
	}
	v.trigThrottle, v.trigBrake = -1, -1
	if v.Engine != nil {
		v.running = v.Engine.Running()
	}
	v.out.init()
	v.net.init()

	v.Body.Reindex()
	v.Body.Translate(offset)
	v.neighbours = collision.Neighbours(v.Body)
	v.beamCount = len(v.Body.Beams)
	v.dryMass = v.Body.TotalMass()
	v.Body.UpdateBounds(&v.Bounds, boundsHorizon, boundsPad)
	v.emitKind(core.EventSpawn)
	return v, nil
}

// stamp puts the vehicle id on errors raised by subsystems that do not know
// it and wraps plain errors as DefinitionInvalid.
func stamp(err error, id core.VehicleID) error {
	var se *core.SimError
	if errors.As(err, &se) {
		if se.Vehicle == core.NoVehicle {
			se.Vehicle = id
		}
		return se
	}
	e := core.NewError(core.DefinitionInvalid, id, core.CodeBadShape, "%v", err)
	e.Err = err
	return e
}

func (s *spawner) invalid(code, format string, args ...any) *core.SimError {
	return core.NewError(core.DefinitionInvalid, s.v.ID, code, format, args...)
}

// node checks a reference to a definition node, or to any node once rims
// exist.
func (s *spawner) node(what string, n int) error {
	if n < 0 || n >= len(s.body.Nodes) {
		return s.invalid(core.CodeBadNodeRef, "%s references node %d of %d", what, n, len(s.body.Nodes))
	}
	return nil
}

func (s *spawner) buildNodes() error {
	s.explicit = make([]bool, 0, len(s.def.Nodes))
	for i, nd := range s.def.Nodes {
		if nd.Mass < 0 {
			return s.invalid(core.CodeBadMass, "node %d has negative mass", i)
		}
		pos := vmath.FromArray(nd.Pos)
		if !pos.IsFinite() {
			return s.invalid(core.CodeBadShape, "node %d position is not finite", i)
		}
		n := soft.NewNode(pos, nd.Mass)
		n.Buoyancy = nd.Buoyancy
		if nd.Friction > 0 {
			n.Friction = nd.Friction
		}
		if nd.Volume > 0 {
			n.Volume = nd.Volume
		}
		if nd.Surface > 0 {
			n.Surface = nd.Surface
		}
		n.CollRadius = nd.CollRadius
		if nd.LockGroup != 0 {
			n.LockGroup = nd.LockGroup
		}
		for _, f := range []struct {
			on   bool
			flag soft.NodeFlag
		}{
			{nd.Contactless, soft.FlagContactless},
			{nd.Contacter, soft.FlagContacter},
			{nd.Hot, soft.FlagHot},
			{nd.NoParticles, soft.FlagNoParticles},
		} {
			if f.on {
				n.Flags |= f.flag
			}
		}
		if nd.Immovable {
			n.SetImmovable()
		}
		s.body.AddNode(n)
		s.explicit = append(s.explicit, nd.Mass > 0)
	}
	return nil
}

func orDefault(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

func (s *spawner) buildBeams() error {
	for i := range s.def.Beams {
		if err := s.buildBeam(i, &s.def.Beams[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *spawner) buildBeam(i int, bd *core.BeamDef) error {
	if err := s.node("beam", bd.N1); err != nil {
		return err
	}
	if err := s.node("beam", bd.N2); err != nil {
		return err
	}
	if bd.N1 == bd.N2 {
		return s.invalid(core.CodeBadBeam, "beam %d joins node %d to itself", i, bd.N1)
	}
	dist := s.body.Nodes[bd.N1].Pos.Dist(s.body.Nodes[bd.N2].Pos)
	length := orDefault(bd.Length, dist)
	if length < 0 {
		return s.invalid(core.CodeBadBeam, "beam %d has negative length", i)
	}
	bm := soft.NewBeam(bd.N1, bd.N2, length)
	bm.K = orDefault(bd.Spring, soft.DefaultSpring)
	bm.D = orDefault(bd.Damp, soft.DefaultDamp)
	bm.SetThresholds(orDefault(bd.Deform, soft.DefaultDeform), orDefault(bd.Strength, soft.DefaultStrength))
	bm.Plastic = bd.Plastic
	bm.ShortBound, bm.LongBound = bd.ShortBound, bd.LongBound
	bm.DetacherGroup = bd.DetacherGroup

	typ := bd.Type
	if typ == "" {
		switch {
		case bd.Shock != nil:
			typ = core.BeamShock
		case bd.Hydro != nil:
			typ = core.BeamHydro
		case bd.Command != nil:
			typ = core.BeamCommand
		case bd.Trigger != nil:
			typ = core.BeamTrigger
		default:
			typ = core.BeamNormal
		}
	}

	switch typ {
	case core.BeamNormal:
	case core.BeamInvisible:
		bm.Type = soft.BeamInvisible
	case core.BeamRope:
		bm.Type, bm.Bounded = soft.BeamRope, soft.Rope
	case core.BeamSupport:
		bm.Type, bm.Bounded = soft.BeamSupport, soft.SupportBeam
	case core.BeamShock, core.BeamShock2, core.BeamShock3:
		if bd.Shock == nil {
			return s.invalid(core.CodeBadBeam, "%s beam %d has no shock parameters", typ, i)
		}
		s.shock(&bm, typ, bd.Shock)
	case core.BeamHydro:
		if bd.Hydro == nil {
			return s.invalid(core.CodeBadBeam, "hydro beam %d has no hydro parameters", i)
		}
		bm.Type = soft.BeamHydro
		if bm.ShortBound != 0 || bm.LongBound != 0 {
			bm.Bounded = soft.Shock1
		}
	case core.BeamCommand:
		if bd.Command == nil {
			return s.invalid(core.CodeBadBeam, "command beam %d has no command parameters", i)
		}
		bm.Type = soft.BeamCommand
	case core.BeamTrigger:
		if bd.Trigger == nil {
			return s.invalid(core.CodeBadBeam, "trigger beam %d has no trigger parameters", i)
		}
		if err := s.trigger(&bm, i, bd.Trigger); err != nil {
			return err
		}
	default:
		return s.invalid(core.CodeBadBeam, "beam %d has unknown type %q", i, typ)
	}

	idx := s.body.AddBeam(bm)
	switch {
	case bd.Hydro != nil && bm.Type == soft.BeamHydro:
		return s.hydro(idx, bd.Hydro)
	case bd.Command != nil && bm.Type == soft.BeamCommand:
		return s.command(idx, bd.Command)
	}
	return nil
}

func (s *spawner) shock(bm *soft.Beam, typ string, sd *core.ShockDef) {
	bm.ShortBound, bm.LongBound = sd.ShortBound, sd.LongBound
	if sd.Precomp > 0 {
		bm.L *= sd.Precomp
		bm.RefL = bm.L
	}
	sh := soft.Shock{
		SbdSpring: orDefault(sd.BumpSpring, soft.DefaultSpring),
		SbdDamp:   orDefault(sd.BumpDamp, soft.DefaultDamp),
	}
	switch typ {
	case core.BeamShock:
		bm.Type, bm.Bounded = soft.BeamShock1, soft.Shock1
		bm.K = orDefault(sd.Spring, bm.K)
		bm.D = orDefault(sd.Damp, bm.D)
	case core.BeamShock2:
		bm.Type, bm.Bounded = soft.BeamShock2, soft.Shock2
		sh.SpringIn, sh.DampIn = sd.SpringIn, sd.DampIn
		sh.SpringOut, sh.DampOut = sd.SpringOut, sd.DampOut
		sh.ProgSpringIn, sh.ProgDampIn = sd.ProgSpringIn, sd.ProgDampIn
		sh.ProgSpringOut, sh.ProgDampOut = sd.ProgSpringOut, sd.ProgDampOut
		sh.SoftBump = sd.SoftBump
		bm.K, bm.D = sd.SpringIn, sd.DampIn
	case core.BeamShock3:
		bm.Type, bm.Bounded = soft.BeamShock3, soft.Shock3
		sh.SpringIn, sh.DampIn = sd.SpringIn, sd.DampIn
		sh.SpringOut, sh.DampOut = sd.SpringOut, sd.DampOut
		sh.DampInSlow, sh.SplitIn, sh.DampInFast = sd.DampInSlow, sd.SplitIn, sd.DampInFast
		sh.DampOutSlow, sh.SplitOut, sh.DampOutFast = sd.DampOutSlow, sd.SplitOut, sd.DampOutFast
		bm.K, bm.D = sd.SpringIn, sd.DampIn
	}
	bm.Shock = s.body.AddShock(sh)
}

// trigger makes bm a force-free switch beam.
func (s *spawner) trigger(bm *soft.Beam, i int, td *core.TriggerDef) error {
	flags, err := actuate.ParseTriggerOptions(td.Options)
	if err != nil {
		return s.invalid(core.CodeBadBeam, "trigger beam %d: %v", i, err)
	}
	fn, err := actuate.ParseEngineFunc(td.EngineFunc)
	if err != nil {
		return s.invalid(core.CodeBadBeam, "trigger beam %d: %v", i, err)
	}
	hooks := flags&(soft.TriggerHookLock|soft.TriggerHookUnlock) != 0
	engineTrig := flags&soft.TriggerEngine != 0
	if !hooks && !engineTrig {
		for _, k := range []int{td.KeyShort, td.KeyLong} {
			if k < 0 || k > core.MaxCommands {
				return s.invalid(core.CodeBadCommand, "trigger beam %d: command key %d out of range", i, k)
			}
		}
	}
	bm.Type, bm.Bounded = soft.BeamTrigger, soft.Trigger
	bm.K, bm.D = 0, 0
	bm.ShortBound, bm.LongBound = td.ShortBound, td.LongBound
	bm.Shock = s.body.AddShock(soft.Shock{
		TriggerShort:   td.KeyShort,
		TriggerLong:    td.KeyLong,
		TriggerFlags:   flags,
		TriggerEnabled: true,
		TriggerBound:   td.Boundary,
		EngineFunc:     int(fn),
	})
	return nil
}

func (s *spawner) hydro(beam int, hd *core.HydroDef) error {
	flags, err := actuate.ParseHydroFlags(hd.Flags)
	if err != nil {
		return s.invalid(core.CodeBadBeam, "hydro beam %d: %v", beam, err)
	}
	in, err := actuate.NewInertia(hd.Inertia)
	if err != nil {
		return s.invalid(core.CodeBadBeam, "hydro beam %d: %v", beam, err)
	}
	bm := &s.body.Beams[beam]
	s.v.Hydros.List = append(s.v.Hydros.List, actuate.NewHydro(beam, hd.Ratio, flags, bm.L, in))
	return nil
}

func (s *spawner) command(beam int, cd *core.CommandBeamDef) error {
	in, err := actuate.NewInertia(cd.Inertia)
	if err != nil {
		return s.invalid(core.CodeBadCommand, "command beam %d: %v", beam, err)
	}
	press := actuate.PressHold
	switch {
	case cd.OnePressCenter:
		press = actuate.PressOnceCenter
	case cd.OnePress:
		press = actuate.PressOnce
	}
	cb := actuate.CommandBeam{
		Beam:           beam,
		ShortRatio:     cd.ShortRatio,
		LongRatio:      cd.LongRatio,
		RateShort:      cd.RateShort,
		RateLong:       cd.RateLong,
		EngineCoupling: cd.EngineCoupling,
		NeedsEngine:    cd.NeedsEngine,
		Centering:      cd.AutoCenter,
		OnePress:       press,
	}
	if _, err := s.v.Commands.AddBeam(cb, cd.KeyShort, cd.KeyLong, in); err != nil {
		return err
	}
	for _, k := range []int{cd.KeyShort, cd.KeyLong} {
		if k > 0 && cd.Description != "" && s.v.Commands.Keys[k].Description == "" {
			s.v.Commands.Keys[k].Description = cd.Description
		}
	}
	return nil
}

// perpendicular returns a unit vector normal to axis.
func perpendicular(axis vmath.Vec3) vmath.Vec3 {
	ref := vmath.UnitY
	if math.Abs(axis.Dot(ref)) > 0.9 {
		ref = vmath.UnitX
	}
	return axis.Cross(ref).Normalize()
}

// buildWheels generates the rims. Each wheel gets 2*Rays nodes alternating
// between the Node1 and Node2 planes, half a ray apart, tied to both axis
// nodes and to their rim neighbours.
func (s *spawner) buildWheels() error {
	for wi, wd := range s.def.Wheels {
		for _, n := range []int{wd.Node1, wd.Node2, wd.ArmNode} {
			if n < 0 || n >= s.nodes {
				return s.invalid(core.CodeBadNodeRef, "wheel %d references node %d of %d", wi, n, s.nodes)
			}
		}
		if wd.Rays < 2 || wd.Radius <= 0 || wd.Node1 == wd.Node2 || wd.Mass < 0 {
			return s.invalid(core.CodeBadWheel, "wheel %d needs two axis nodes, two rays and a positive radius", wi)
		}
		a0, a1 := s.body.Nodes[wd.Node1].Pos, s.body.Nodes[wd.Node2].Pos
		axisVec, axisLen := a1.Sub(a0).NormLen()
		if axisLen == 0 {
			return s.invalid(core.CodeBadWheel, "wheel %d axis nodes coincide", wi)
		}
		count := 2 * wd.Rays
		mass := wd.Mass / float64(count)
		if wd.Mass == 0 {
			mass = soft.MinNodeMass
		}
		ray := perpendicular(axisVec).Scale(wd.Radius)
		rim := make([]int, 0, count)
		for j := range count {
			angle := float64(j) * math.Pi / float64(wd.Rays)
			base := a0
			if j%2 == 1 {
				base = a1
			}
			n := soft.NewNode(base.Add(ray.RotateAround(axisVec, angle)), mass)
			n.Flags |= soft.FlagWheel | soft.FlagTyre
			n.WheelID = wi
			rim = append(rim, s.body.AddNode(n))
			s.explicit = append(s.explicit, true)
		}

		k := orDefault(wd.Spring, wheelSpring)
		d := orDefault(wd.Damp, wheelDamp)
		add := func(p1, p2 int) {
			bm := soft.NewBeam(p1, p2, s.body.Nodes[p1].Pos.Dist(s.body.Nodes[p2].Pos))
			bm.K, bm.D = k, d
			bm.DetacherGroup = wd.DetacherGroup
			s.body.AddBeam(bm)
		}
		for j, n := range rim {
			add(wd.Node1, n)
			add(wd.Node2, n)
			add(n, rim[(j+1)%count])
			add(n, rim[(j+2)%count])
		}

		w := drivetrain.NewWheel(rim, wd.Node1, wd.Node2, wd.Radius, wd.Width, math.Max(wd.Mass, soft.MinNodeMass))
		w.Braking = drivetrain.ParseBrakeCombo(wd.Braking)
		w.Propulsion = drivetrain.ParsePropulsion(wd.Propulsion)
		w.DetacherGroup = wd.DetacherGroup
		w.Arm = wd.ArmNode
		arm := s.body.Nodes[wd.ArmNode].Pos
		if arm.Dist(a0) < arm.Dist(a1) {
			w.NearAttach = wd.Node1
		} else {
			w.NearAttach = wd.Node2
		}
		s.v.Drivetrain.Wheels = append(s.v.Drivetrain.Wheels, w)
	}
	return nil
}

// distributeMass spreads the dry mass over definition nodes without an
// explicit mass, in proportion to the length of the beams they hold, and
// applies the mass floor.
func (s *spawner) distributeMass() error {
	floor := s.def.MinimumMass
	if floor == 0 {
		floor = DefaultMinimumMass
	}
	share := make([]float64, s.nodes)
	total := 0.0
	for i := range s.body.Beams {
		bm := &s.body.Beams[i]
		if bm.P1 >= s.nodes || bm.P2 >= s.nodes {
			continue
		}
		half := bm.L * 0.5
		for _, n := range []int{bm.P1, bm.P2} {
			if !s.explicit[n] {
				share[n] += half
				total += half
			}
		}
	}
	for i := range s.nodes {
		n := &s.body.Nodes[i]
		if s.explicit[i] {
			n.SetMass(n.Mass, soft.MinNodeMass)
			continue
		}
		m := 0.0
		if total > 0 {
			m = s.def.DryMass * share[i] / total
		}
		n.SetMass(m, floor)
	}
	return nil
}

func parseDiffs(names []string) ([]drivetrain.DiffMode, error) {
	modes := make([]drivetrain.DiffMode, 0, len(names))
	for _, n := range names {
		m, err := drivetrain.ParseDiffMode(n)
		if err != nil {
			return nil, err
		}
		modes = append(modes, m)
	}
	return modes, nil
}

func (s *spawner) buildDrivetrain() error {
	dt := s.v.Drivetrain
	wheels := len(dt.Wheels)
	for i, ad := range s.def.Axles {
		if ad.WheelA < 0 || ad.WheelA >= wheels || ad.WheelB < 0 || ad.WheelB >= wheels || ad.WheelA == ad.WheelB {
			return s.invalid(core.CodeBadWheel, "axle %d references wheels %d and %d of %d", i, ad.WheelA, ad.WheelB, wheels)
		}
		modes, err := parseDiffs(ad.Diffs)
		if err != nil {
			return s.invalid(core.CodeBadWheel, "axle %d: %v", i, err)
		}
		dt.Axles = append(dt.Axles, drivetrain.NewDifferential(ad.WheelA, ad.WheelB, modes))
	}
	axles := len(dt.Axles)
	for i, ia := range s.def.InterAxles {
		if ia.AxleA < 0 || ia.AxleA >= axles || ia.AxleB < 0 || ia.AxleB >= axles || ia.AxleA == ia.AxleB {
			return s.invalid(core.CodeBadWheel, "inter-axle %d references axles %d and %d of %d", i, ia.AxleA, ia.AxleB, axles)
		}
		modes, err := parseDiffs(ia.Diffs)
		if err != nil {
			return s.invalid(core.CodeBadWheel, "inter-axle %d: %v", i, err)
		}
		dt.InterAxles = append(dt.InterAxles, drivetrain.NewDifferential(ia.AxleA, ia.AxleB, modes))
	}
	if tcd := s.def.TransferCase; tcd != nil {
		if tcd.AxleA < 0 || tcd.AxleA >= axles || tcd.AxleB >= axles {
			return s.invalid(core.CodeBadWheel, "transfer case references axles %d and %d of %d", tcd.AxleA, tcd.AxleB, axles)
		}
		tc := &drivetrain.TransferCase{
			AxleA:    tcd.AxleA,
			AxleB:    tcd.AxleB,
			Has2WD:   tcd.Has2WD,
			Has2WDLo: tcd.Has2WDLo,
			FourWD:   !tcd.Has2WD,
			Ratios:   append([]float64{1}, tcd.GearRatios...),
		}
		dt.SetTransferCase(tc, []drivetrain.DiffMode{drivetrain.DiffLocked})
		if tc.AxleB >= 0 {
			ax := dt.Axles[tc.AxleB]
			for _, wi := range []int{ax.A, ax.B} {
				if tc.FourWD {
					dt.Wheels[wi].Propulsion = drivetrain.PropForward
				} else {
					dt.Wheels[wi].Propulsion = drivetrain.PropNone
				}
			}
		}
	}

	if f := s.def.Brakes.Force; f > 0 {
		dt.BrakeForce = f
		dt.HandbrakeForce = drivetrain.HandbrakeForceFactor * f
	}
	if f := s.def.Brakes.ParkingForce; f > 0 {
		dt.HandbrakeForce = f
	}
	if a := s.def.ABS; a != nil {
		dt.ABS = drivetrain.NewAssist(a.Enabled, a.Ratio, a.Pulse, a.MinSpeed, a.Slip, a.Fade)
	}
	if a := s.def.TC; a != nil {
		dt.TC = drivetrain.NewAssist(a.Enabled, a.Ratio, a.Pulse, a.MinSpeed, a.Slip, a.Fade)
	}
	return nil
}

func (s *spawner) buildEngine() error {
	if s.def.Engine == nil {
		return nil
	}
	e, err := engine.New(s.def.Engine)
	if err != nil {
		se := s.invalid(core.CodeBadEngine, "engine: %v", err)
		se.Err = err
		return se
	}
	s.v.Engine = e
	if tc := s.v.Drivetrain.TransferCase; tc != nil {
		e.SetTCaseRatio(tc.Ratio())
	}
	return nil
}

func (s *spawner) buildCabs() error {
	var coll [][3]int
	for i, cd := range s.def.Cabs {
		for _, n := range cd.Nodes {
			if err := s.node("cab", n); err != nil {
				return err
			}
		}
		a, b, c := cd.Nodes[0], cd.Nodes[1], cd.Nodes[2]
		if a == b || b == c || a == c {
			return s.invalid(core.CodeBadShape, "cab %d repeats a node", i)
		}
		for _, n := range cd.Nodes {
			s.body.Nodes[n].Flags |= soft.FlagCab
		}
		if cd.Collision {
			coll = append(coll, cd.Nodes)
		}
		if cd.Buoyancy {
			mode, err := marine.ParseMode(cd.Mode)
			if err != nil {
				return s.invalid(core.CodeBadShape, "cab %d: %v", i, err)
			}
			s.v.buoyCabs = append(s.v.buoyCabs, buoyCab{nodes: cd.Nodes, mode: mode})
		}
	}
	c := collision.NewCollider(coll, s.def.CollisionRange)
	c.DisableSelf = s.def.DisableSelfCollisions
	s.v.Collider = c
	s.v.hasCabs = len(coll) > 0
	return nil
}

func (s *spawner) buildAero() error {
	nodes := s.body.Nodes
	for i, tp := range s.def.Turboprops {
		refs := append([]int{tp.Ref, tp.Back}, tp.Blades...)
		for _, n := range refs {
			if err := s.node("turboprop", n); err != nil {
				return err
			}
		}
		p, err := aero.NewTurboprop(nodes, tp.Ref, tp.Back, tp.Blades, -1, tp.Power, 0)
		if err != nil {
			return s.invalid(core.CodeBadShape, "turboprop %d: %v", i, err)
		}
		s.v.Engines = append(s.v.Engines, p)
	}
	for i, tj := range s.def.Turbojets {
		for _, n := range []int{tj.Front, tj.Back, tj.Side} {
			if err := s.node("turbojet", n); err != nil {
				return err
			}
		}
		j, err := aero.NewTurbojet(nodes, tj.Front, tj.Back, tj.Side, tj.DryThrust, tj.WetThrust, tj.Reverse, tj.Diameter)
		if err != nil {
			return s.invalid(core.CodeBadShape, "turbojet %d: %v", i, err)
		}
		s.v.Engines = append(s.v.Engines, j)
	}
	for i, wd := range s.def.Wings {
		for _, n := range wd.Nodes {
			if err := s.node("wing", n); err != nil {
				return err
			}
		}
		w, err := aero.NewWing(wd.Nodes, wd.Airfoil, wd.Control, wd.MinDeflection, wd.MaxDeflection, wd.LiftCoef)
		if err != nil {
			return s.invalid(core.CodeBadShape, "wing %d: %v", i, err)
		}
		s.v.Wings = append(s.v.Wings, w)
	}
	s.washes()
	s.inducedDrag()
	return nil
}

// washes couples each wing to the turboprops whose disc it sits behind.
// The ratio is the share of the wing span covered by the disc.
func (s *spawner) washes() {
	nodes := s.body.Nodes
	for ei, tp := range s.def.Turboprops {
		ref := nodes[tp.Ref].Pos
		axis := ref.Sub(nodes[tp.Back].Pos).Normalize()
		radius := ref.Dist(nodes[tp.Blades[0]].Pos)
		for _, w := range s.v.Wings {
			center := vmath.Zero
			for _, n := range w.Nodes {
				center = center.Add(nodes[n].Pos)
			}
			center = center.Scale(1.0 / 8)
			rel := center.Sub(ref)
			if rel.Dot(axis) >= 0 {
				continue
			}
			if rel.ProjectOnPlane(axis).Len() > radius {
				continue
			}
			span, _ := w.SpanArea(nodes)
			if span <= 0 {
				continue
			}
			w.Washes = append(w.Washes, aero.Wash{Engine: ei, Ratio: math.Min(1, 2*radius/span)})
		}
	}
}

// inducedDrag marks the end sections of every run of wings that share
// their side nodes and gives them the span and area of the whole run.
func (s *spawner) inducedDrag() {
	nodes := s.body.Nodes
	wings := s.v.Wings
	for start := 0; start < len(wings); {
		end := start
		for end+1 < len(wings) && wings[end].Nodes[aero.FrontRightDown] == wings[end+1].Nodes[aero.FrontLeftDown] {
			end++
		}
		span, area := 0.0, 0.0
		for i := start; i <= end; i++ {
			sp, ar := wings[i].SpanArea(nodes)
			span += sp
			area += ar
		}
		for _, i := range []int{start, end} {
			w := wings[i]
			w.InducedDrag = true
			w.IDSpan, w.IDArea = span, area
			w.IDLeft = i == start
		}
		start = end + 1
	}
}

func (s *spawner) buildMarine() error {
	s.v.Buoyancy = &marine.Buoyancy{}
	for i, sp := range s.def.Screwprops {
		for _, n := range []int{sp.Ref, sp.Back, sp.Up} {
			if err := s.node("screwprop", n); err != nil {
				return err
			}
		}
		p, err := marine.NewScrewprop(s.body.Nodes, sp.Ref, sp.Back, sp.Up, sp.Power, nil)
		if err != nil {
			return s.invalid(core.CodeBadShape, "screwprop %d: %v", i, err)
		}
		s.v.Screwprops = append(s.v.Screwprops, p)
	}
	return nil
}

func (s *spawner) buildCommands() error {
	cmds := s.v.Commands
	for _, ck := range s.def.Commands {
		k, err := cmds.Key(ck.ID)
		if err != nil {
			return s.invalid(core.CodeBadCommand, "command key %d out of range", ck.ID)
		}
		k.Description = ck.Description
	}
	for i, rd := range s.def.Rotators {
		for _, n := range append(append([]int{rd.Axis[0], rd.Axis[1]}, rd.Base[:]...), rd.Rot[:]...) {
			if err := s.node("rotator", n); err != nil {
				return err
			}
		}
		in, err := actuate.NewInertia(rd.Inertia)
		if err != nil {
			return s.invalid(core.CodeBadCommand, "rotator %d: %v", i, err)
		}
		r := actuate.Rotator{
			Axis1:          rd.Axis[0],
			Axis2:          rd.Axis[1],
			Base:           rd.Base,
			Rot:            rd.Rot,
			Rate:           rd.Rate,
			Force:          orDefault(rd.Force, actuate.DefaultRotatorForce),
			Tolerance:      rd.Tolerance,
			EngineCoupling: rd.EngineCoupling,
			NeedsEngine:    rd.NeedsEngine,
		}
		if _, err := cmds.AddRotator(r, rd.KeyLeft, rd.KeyRight, in); err != nil {
			return err
		}
	}
	// Vehicles with commands but no engine run them as machines.
	cmds.Machine = s.def.Engine == nil && (len(cmds.Beams) > 0 || len(cmds.Rotators) > 0)
	return nil
}

func (s *spawner) buildLocks() error {
	l, body := s.v.Locks, s.body
	for _, d := range s.def.Ropables {
		if _, err := l.AddRopable(body, d); err != nil {
			return err
		}
	}
	for _, d := range s.def.Hooks {
		if _, err := l.AddHook(body, d); err != nil {
			return err
		}
	}
	for _, d := range s.def.Ties {
		if _, err := l.AddTie(body, d); err != nil {
			return err
		}
	}
	for _, d := range s.def.Ropes {
		if _, err := l.AddRope(body, d); err != nil {
			return err
		}
	}
	for _, d := range s.def.Rails {
		if _, err := l.AddRail(body, d); err != nil {
			return err
		}
	}
	for _, d := range s.def.SlideNodes {
		if _, err := l.AddSlideNode(body, d); err != nil {
			return err
		}
	}
	return nil
}

func (s *spawner) checkCameras() error {
	for _, c := range s.def.Cameras {
		for _, n := range []int{c.Center, c.Back, c.Left} {
			if err := s.node("camera", n); err != nil {
				return err
			}
		}
	}
	return nil
}
