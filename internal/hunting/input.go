package hunting

import (
	"fmt"
	"slices"
	"time"

	"golang.org/x/time/rate"
)

// Action is a decoded operator trigger.
type Action int

const (
	ActionNextPS Action = iota
	ActionPrevPS
	ActionMarkPS
	ActionNextVS
	ActionPrevVS
	ActionMarkVS
	ActionNextIB
	ActionPrevIB
	ActionMarkIB
	ActionNextRT
	ActionPrevRT
	ActionMarkRT
	ActionReload
	ActionToggleOriginal
	ActionResetHunting
	ActionTuneUp
	ActionTuneDown

	numActions
)

var actionNames = [...]string{
	"next_ps", "prev_ps", "mark_ps",
	"next_vs", "prev_vs", "mark_vs",
	"next_ib", "prev_ib", "mark_ib",
	"next_rt", "prev_rt", "mark_rt",
	"reload", "toggle_original", "reset_hunting",
	"tune_up", "tune_down",
}

func (a Action) String() string {
	if a < 0 || a >= numActions {
		return fmt.Sprintf("action(%d)", int(a))
	}
	return actionNames[a]
}

// ParseAction parses the configuration name of an action.
func ParseAction(s string) (Action, error) {
	i := slices.Index(actionNames[:], s)
	if i < 0 {
		return 0, fmt.Errorf("unknown action %q", s)
	}
	return Action(i), nil
}

// MarshalText implements encoding.TextMarshaler.
func (a Action) MarshalText() ([]byte, error) {
	if a < 0 || a >= numActions {
		return nil, fmt.Errorf("invalid action %d", int(a))
	}
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Action) UnmarshalText(b []byte) error {
	v, err := ParseAction(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// AllActions returns every action in declaration order.
func AllActions() []Action {
	out := make([]Action, numActions)
	for i := range out {
		out[i] = Action(i)
	}
	return out
}

// Navigation splits a next/prev/mark action into its resource and direction.
// dir is +1 for next, -1 for prev and 0 for mark. ok is false for actions
// that do not navigate.
func (a Action) Navigation() (r Resource, dir int, ok bool) {
	if a < ActionNextPS || a > ActionMarkRT {
		return 0, 0, false
	}
	group := int(a-ActionNextPS) / 3
	switch int(a-ActionNextPS) % 3 {
	case 0:
		dir = 1
	case 1:
		dir = -1
	}
	return [...]Resource{ResourcePixel, ResourceVertex, ResourceIndexBuffer, ResourceRenderTarget}[group], dir, true
}

// Event is a raw key state change as delivered by the host's input layer.
// Pollers that report a held key every frame send repeated Down events.
type Event struct {
	Action Action
	Down   bool
	At     time.Time
}

// Binding configures how events for one action become triggers.
type Binding struct {
	Action Action

	// RepeatRate is the number of triggers per second while the key stays
	// down. Zero fires once per press.
	RepeatRate float64

	// ReleaseDelay postpones the release trigger of a Hold binding.
	ReleaseDelay time.Duration

	// Hold makes the action level-triggered: a Down trigger on press and an
	// Up trigger on (delayed) release.
	Hold bool
}

// Trigger is a dispatched action. Down is false only for the release of a
// Hold binding.
type Trigger struct {
	Action Action
	Down   bool
}

type keyState struct {
	binding   Binding
	pressed   bool
	limiter   *rate.Limiter
	releaseAt time.Time
	pending   bool
}

// Dispatcher turns events into triggers using per-action bindings.
// Actions without a binding fire once per press.
//
// Thread-safety: NOT safe for concurrent use. Driven from the frame thread.
type Dispatcher struct {
	keys [numActions]keyState
}

// NewDispatcher creates a dispatcher with the given bindings. Later
// bindings for the same action replace earlier ones.
func NewDispatcher(bindings ...Binding) *Dispatcher {
	d := &Dispatcher{}
	for a := range d.keys {
		d.keys[a].binding = Binding{Action: Action(a)}
	}
	for _, b := range bindings {
		if b.Action < 0 || b.Action >= numActions {
			continue
		}
		d.keys[b.Action].binding = b
	}
	return d
}

// Binding returns the binding in effect for a.
func (d *Dispatcher) Binding(a Action) Binding {
	return d.keys[a].binding
}

// Dispatch processes one event. It returns the trigger it produced, if any.
func (d *Dispatcher) Dispatch(ev Event) (Trigger, bool) {
	if ev.Action < 0 || ev.Action >= numActions {
		return Trigger{}, false
	}
	k := &d.keys[ev.Action]
	b := k.binding

	if !ev.Down {
		if !k.pressed {
			return Trigger{}, false
		}
		k.pressed = false
		k.limiter = nil
		if !b.Hold {
			return Trigger{}, false
		}
		if b.ReleaseDelay <= 0 {
			return Trigger{Action: ev.Action, Down: false}, true
		}
		k.pending = true
		k.releaseAt = ev.At.Add(b.ReleaseDelay)
		return Trigger{}, false
	}

	if k.pressed {
		// Key held. Only non-hold bindings with a repeat rate fire again.
		if b.Hold || k.limiter == nil {
			return Trigger{}, false
		}
		if !k.limiter.AllowN(ev.At, 1) {
			return Trigger{}, false
		}
		return Trigger{Action: ev.Action, Down: true}, true
	}

	k.pressed = true
	if b.Hold && k.pending {
		// Re-pressed before the delayed release fired: stay down.
		k.pending = false
		return Trigger{}, false
	}
	if !b.Hold && b.RepeatRate > 0 {
		k.limiter = rate.NewLimiter(rate.Limit(b.RepeatRate), 1)
		k.limiter.AllowN(ev.At, 1)
	}
	return Trigger{Action: ev.Action, Down: true}, true
}

// Poll returns delayed releases that are due at now, in action order.
func (d *Dispatcher) Poll(now time.Time) []Trigger {
	var out []Trigger
	for a := range d.keys {
		k := &d.keys[a]
		if k.pending && !now.Before(k.releaseAt) {
			k.pending = false
			out = append(out, Trigger{Action: Action(a), Down: false})
		}
	}
	return out
}

// Reset forgets all key state, including pending releases.
func (d *Dispatcher) Reset() {
	for a := range d.keys {
		d.keys[a] = keyState{binding: d.keys[a].binding}
	}
}
