package harness

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario is one conformance scenario: a fresh engine, some files on disk
// and a sequence of host and operator steps.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Config is decoded over the engine defaults. Directories are always
	// replaced with per-run temp dirs and watching is disabled. Hashing
	// defaults to "header" so programs fingerprint to their declared id.
	Config yaml.Node `yaml:"config"`

	// Files are written before the engine starts, stamped with the start
	// time.
	Files []File `yaml:"files"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions"`
}

// File is an artifact or rules file.
type File struct {
	// Dir is "overrides" (default), "cache" or "rules".
	Dir     string `yaml:"dir,omitempty"`
	Name    string `yaml:"name"`
	Content string `yaml:"content"`
}

// Step is one scenario action. Exactly one field is set.
type Step struct {
	Create  *CreateStep   `yaml:"create,omitempty"`
	Release string        `yaml:"release,omitempty"`
	Bind    string        `yaml:"bind,omitempty"`
	Observe *ObserveStep  `yaml:"observe,omitempty"`
	Write   *File         `yaml:"write,omitempty"`
	Advance time.Duration `yaml:"advance,omitempty"`

	// Press sends a down and an up event for each action, then ticks.
	Press []string `yaml:"press,omitempty"`

	Tick    bool   `yaml:"tick,omitempty"`
	Reload  bool   `yaml:"reload,omitempty"`
	Promote string `yaml:"promote,omitempty"`
}

// CreateStep creates a program whose header fingerprint is ID.
type CreateStep struct {
	As   string `yaml:"as"`
	Kind string `yaml:"kind"`
	ID   string `yaml:"id"`
	Body string `yaml:"body,omitempty"`
}

// ObserveStep records a non-program id.
type ObserveStep struct {
	Resource string `yaml:"resource"`
	ID       string `yaml:"id"`
}

// op returns the name of the step's action, or "" when none or several
// are set.
func (s Step) op() string {
	var ops []string
	if s.Create != nil {
		ops = append(ops, "create")
	}
	if s.Release != "" {
		ops = append(ops, "release")
	}
	if s.Bind != "" {
		ops = append(ops, "bind")
	}
	if s.Observe != nil {
		ops = append(ops, "observe")
	}
	if s.Write != nil {
		ops = append(ops, "write")
	}
	if s.Advance != 0 {
		ops = append(ops, "advance")
	}
	if len(s.Press) > 0 {
		ops = append(ops, "press")
	}
	if s.Tick {
		ops = append(ops, "tick")
	}
	if s.Reload {
		ops = append(ops, "reload")
	}
	if s.Promote != "" {
		ops = append(ops, "promote")
	}
	if len(ops) != 1 {
		return ""
	}
	return ops[0]
}

// Assertion checks the engine after the last step.
type Assertion struct {
	Type string `yaml:"type"`

	Program    string `yaml:"program,omitempty"`
	Provenance string `yaml:"provenance,omitempty"`
	Resource   string `yaml:"resource,omitempty"`
	ID         string `yaml:"id,omitempty"`
	Dir        string `yaml:"dir,omitempty"`
	File       string `yaml:"file,omitempty"`
	Contains   string `yaml:"contains,omitempty"`
	Event      string `yaml:"event,omitempty"`
	Count      int    `yaml:"count,omitempty"`
}

// TraceEvent is one line of a scenario trace.
type TraceEvent struct {
	Seq    int    `json:"seq"`
	Op     string `json:"op"`
	Detail string `json:"detail,omitempty"`
}

func (e TraceEvent) String() string {
	if e.Detail == "" {
		return fmt.Sprintf("%03d %s", e.Seq, e.Op)
	}
	return fmt.Sprintf("%03d %s %s", e.Seq, e.Op, e.Detail)
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every step ran and every assertion held.
	Pass bool `json:"pass"`

	Trace  []TraceEvent `json:"trace"`
	Errors []string     `json:"errors,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a trace line.
func (r *Result) AddTrace(op, format string, args ...any) {
	r.Trace = append(r.Trace, TraceEvent{
		Seq:    len(r.Trace) + 1,
		Op:     op,
		Detail: fmt.Sprintf(format, args...),
	})
}

// Render returns the trace as text, one event per line.
func (r *Result) Render(name string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "scenario: %s\n", name)
	for _, ev := range r.Trace {
		b.WriteString(ev.String())
		b.WriteByte('\n')
	}
	return b.String()
}
