package hunting

import (
	"fmt"
	"sync"
	"time"

	"github.com/roach88/shaderhunt/internal/ir"
)

// DefaultIdleTimeout clears hunting state after this long without input.
const DefaultIdleTimeout = 60 * time.Second

// Resource is a browsable object category. Each has its own Set.
type Resource int

const (
	ResourceVertex Resource = iota
	ResourcePixel
	ResourceGeometry
	ResourceHull
	ResourceDomain
	ResourceCompute
	ResourceIndexBuffer
	ResourceRenderTarget

	numResources
)

var resourceNames = [...]string{"vs", "ps", "gs", "hs", "ds", "cs", "ib", "rt"}

func (r Resource) String() string {
	if r < 0 || r >= numResources {
		return fmt.Sprintf("resource(%d)", int(r))
	}
	return resourceNames[r]
}

// ResourceForKind maps a program kind to its Resource.
func ResourceForKind(k ir.ProgramKind) Resource {
	switch k {
	case ir.KindVertex:
		return ResourceVertex
	case ir.KindPixel:
		return ResourcePixel
	case ir.KindGeometry:
		return ResourceGeometry
	case ir.KindHull:
		return ResourceHull
	case ir.KindDomain:
		return ResourceDomain
	default:
		return ResourceCompute
	}
}

// ProgramKind returns the program kind of r. ok is false for buffers and
// render targets.
func (r Resource) ProgramKind() (ir.ProgramKind, bool) {
	if r < ResourceVertex || r > ResourceCompute {
		return 0, false
	}
	return ir.ProgramKind(r - ResourceVertex), true
}

// Tracker holds one Set per Resource and clears them all when the operator
// goes idle.
//
// Until the first input event ever arrives, every Tick clears the sets:
// nobody is hunting yet, so there is no reason to accumulate ids. After
// that, Tick clears once the time since the last input exceeds the idle
// timeout.
//
// Thread-safety: safe for concurrent use.
type Tracker struct {
	sets [numResources]*Set
	idle time.Duration

	mu        sync.Mutex
	lastInput time.Time
	touched   bool
	clears    int
}

// NewTracker creates a tracker. idle <= 0 disables the idle timeout but
// keeps the first-touch grace.
func NewTracker(idle time.Duration) *Tracker {
	t := &Tracker{idle: idle}
	for i := range t.sets {
		t.sets[i] = NewSet()
	}
	return t
}

// Set returns the Set for r.
func (t *Tracker) Set(r Resource) *Set {
	return t.sets[r]
}

// Observe records id for r.
func (t *Tracker) Observe(r Resource, id ID) bool {
	if r < 0 || r >= numResources {
		return false
	}
	return t.sets[r].Observe(id)
}

// Touch records operator input at now.
func (t *Tracker) Touch(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastInput = now
	t.touched = true
}

// Active reports whether the operator has touched the controls and has not
// gone idle as of now.
func (t *Tracker) Active(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.activeLocked(now)
}

func (t *Tracker) activeLocked(now time.Time) bool {
	if !t.touched {
		return false
	}
	return t.idle <= 0 || now.Sub(t.lastInput) < t.idle
}

// Tick applies first-touch grace and idle clearing. Returns true if the
// sets were cleared.
func (t *Tracker) Tick(now time.Time) bool {
	t.mu.Lock()
	clear := !t.activeLocked(now)
	if clear {
		t.clears++
	}
	t.mu.Unlock()

	if clear {
		for _, s := range t.sets {
			s.Clear()
		}
	}
	return clear
}

// Reset empties every set and forgets every cursor position.
func (t *Tracker) Reset() {
	for _, s := range t.sets {
		s.Reset()
	}
}

// Clears returns how many times Tick cleared the sets.
func (t *Tracker) Clears() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.clears
}
