// pkg/core/inputs.go
package core

// MaxCommands is the highest command key id.
const MaxCommands = 84

// Action is a one-shot request carried by Inputs. Actions are edge
// triggered: each entry is applied once in the tick that drains it.
type Action string

const (
	ActionToggleContact       Action = "toggle_contact"
	ActionStartEngine         Action = "start_engine"
	ActionStopEngine          Action = "stop_engine"
	ActionShiftUp             Action = "shift_up"
	ActionShiftDown           Action = "shift_down"
	ActionShiftNeutral        Action = "shift_neutral"
	ActionAutoShiftUp         Action = "autoshift_up"
	ActionAutoShiftDown       Action = "autoshift_down"
	ActionToggleShiftMode     Action = "toggle_shift_mode"
	ActionToggleAxleDiff      Action = "toggle_axle_diff"
	ActionToggleInterAxleDiff Action = "toggle_interaxle_diff"
	ActionToggleTCaseMode     Action = "toggle_tcase_mode"
	ActionToggleTCaseRatio    Action = "toggle_tcase_ratio"
	ActionToggleCruise        Action = "toggle_cruise"
	ActionToggleABS           Action = "toggle_abs"
	ActionToggleTC            Action = "toggle_tc"
	ActionToggleParkingBrake  Action = "toggle_parking_brake"
	ActionToggleTrailerBrake  Action = "toggle_trailer_parking_brake"
	ActionHookToggle          Action = "hook_toggle"
	ActionHookLock            Action = "hook_lock"
	ActionHookUnlock          Action = "hook_unlock"
	ActionTieToggle           Action = "tie_toggle"
	ActionRopeToggle          Action = "rope_toggle"
	ActionSlideToggle         Action = "slide_toggle"
	ActionToggleLights        Action = "toggle_lights"
	ActionToggleBeacons       Action = "toggle_beacons"
	ActionReplayToggle        Action = "replay_toggle"
	ActionToggleDebug         Action = "toggle_debug"
	ActionToggleCamera        Action = "toggle_camera"
)

// Blink states for the turn signals.
const (
	BlinkOff     = 0
	BlinkLeft    = -1
	BlinkRight   = 1
	BlinkWarning = 2
)

// Inputs is the control state a host submits for one vehicle. Analog values
// persist until replaced; Actions are consumed by the tick that drains them.
type Inputs struct {
	Throttle float64 `json:"throttle"`
	Brake    float64 `json:"brake"`
	Clutch   float64 `json:"clutch"`
	Steer    float64 `json:"steer"`

	ThrottleMod25 bool `json:"throttleMod25,omitempty"`
	ThrottleMod50 bool `json:"throttleMod50,omitempty"`
	BrakeMod25    bool `json:"brakeMod25,omitempty"`
	BrakeMod50    bool `json:"brakeMod50,omitempty"`

	Handbrake bool `json:"handbrake,omitempty"`
	Starter   bool `json:"starter,omitempty"`
	// Contact, when set, forces the ignition state.
	Contact *bool `json:"contact,omitempty"`
	// ShiftTo, when set, requests a specific gear (-1 reverse, 0 neutral).
	ShiftTo *int `json:"shiftTo,omitempty"`

	CruiseAccel bool `json:"cruiseAccel,omitempty"`
	CruiseDecel bool `json:"cruiseDecel,omitempty"`

	Blink int  `json:"blink,omitempty"`
	Horn  bool `json:"horn,omitempty"`

	// Commands maps command key id (1..MaxCommands) to the player value in [0, 1].
	Commands map[int]float64 `json:"commands,omitempty"`

	Aileron      float64 `json:"aileron,omitempty"`
	Elevator     float64 `json:"elevator,omitempty"`
	Rudder       float64 `json:"rudder,omitempty"`
	Flaps        int     `json:"flaps,omitempty"`
	Airbrake     int     `json:"airbrake,omitempty"`
	AeroThrottle float64 `json:"aeroThrottle,omitempty"`
	AeroReverse  bool    `json:"aeroReverse,omitempty"`

	ScrewThrottle float64 `json:"screwThrottle,omitempty"`
	ScrewRudder   float64 `json:"screwRudder,omitempty"`

	// HookGroup selects the hook group for hook actions; 0 means the manual group -1.
	HookGroup int `json:"hookGroup,omitempty"`
	// TieGroup selects the tie group for tie actions; 0 means all groups.
	TieGroup int `json:"tieGroup,omitempty"`

	// ReplayScrub moves the replay position in frames per second while the
	// vehicle is in replay mode; negative values go back in time.
	ReplayScrub float64 `json:"replayScrub,omitempty"`

	Actions []Action `json:"actions,omitempty"`
}

// EffectiveThrottle applies the pedal modifiers.
func (in *Inputs) EffectiveThrottle() float64 {
	return applyModifier(in.Throttle, in.ThrottleMod25, in.ThrottleMod50)
}

// EffectiveBrake applies the pedal modifiers.
func (in *Inputs) EffectiveBrake() float64 {
	return applyModifier(in.Brake, in.BrakeMod25, in.BrakeMod50)
}

func applyModifier(v float64, m25, m50 bool) float64 {
	if !m25 && !m50 {
		return v
	}
	mod := 0.0
	if m25 {
		mod += 0.25
	}
	if m50 {
		mod += 0.5
	}
	return v * mod
}

// Has reports whether action a is queued.
func (in *Inputs) Has(a Action) bool {
	for _, x := range in.Actions {
		if x == a {
			return true
		}
	}
	return false
}

// Merge folds a newer input message into in: analog state is replaced, actions
// accumulate so none are lost when several messages arrive in one tick.
func (in *Inputs) Merge(next Inputs) {
	actions := append(in.Actions, next.Actions...)
	cmds := in.Commands
	*in = next
	in.Actions = actions
	if next.Commands == nil {
		in.Commands = cmds
	}
}
