package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/shaderhunt/internal/hunting"
	"github.com/roach88/shaderhunt/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  %s\n", event)
		}
	}
	return buf.String()
}

func (h *Harness) fail(a Assertion, expected, actual string) error {
	return &AssertionError{
		Type:     a.Type,
		Expected: expected,
		Actual:   actual,
		Trace:    h.result.Trace,
	}
}

// check evaluates one assertion against the engine's current state.
func (h *Harness) check(ctx context.Context, a Assertion) error {
	switch a.Type {
	case AssertProvenance:
		return h.assertProvenance(a)
	case AssertReplaced, AssertNotReplaced:
		return h.assertReplaced(a)
	case AssertSelected:
		return h.assertSelected(a)
	case AssertFileExists, AssertFileAbsent:
		return h.assertFile(a)
	case AssertJournal:
		return h.assertJournal(ctx, a)
	case AssertLive:
		return h.assertLive(a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func (h *Harness) assertProvenance(a Assertion) error {
	rec, ok := h.engine.Registry().Get(h.programs[a.Program])
	if !ok {
		return h.fail(a, fmt.Sprintf("%s with provenance %s", a.Program, a.Provenance), "program not registered")
	}
	if rec.Provenance.String() != a.Provenance {
		return h.fail(a,
			fmt.Sprintf("%s with provenance %s", a.Program, a.Provenance),
			fmt.Sprintf("provenance %s", rec.Provenance))
	}
	return nil
}

func (h *Harness) assertReplaced(a Assertion) error {
	want := a.Type == AssertReplaced
	_, got := h.engine.Registry().Replacement(h.programs[a.Program])
	if got != want {
		return h.fail(a,
			fmt.Sprintf("%s replaced=%t", a.Program, want),
			fmt.Sprintf("replaced=%t", got))
	}
	return nil
}

func (h *Harness) assertSelected(a Assertion) error {
	res, _ := parseResource(a.Resource)
	fp, _ := ir.ParseFingerprint(a.ID)
	id, ok := h.engine.Selected(res)
	if !ok {
		return h.fail(a, fmt.Sprintf("%s selected %s", res, fp), "nothing selected")
	}
	if id != hunting.ID(fp) {
		return h.fail(a, fmt.Sprintf("%s selected %s", res, fp), fmt.Sprintf("selected %s", ir.Fingerprint(id)))
	}
	return nil
}

func (h *Harness) assertFile(a Assertion) error {
	path := filepath.Join(h.dirs[a.Dir], a.File)
	data, err := os.ReadFile(path)
	exists := err == nil

	if a.Type == AssertFileAbsent {
		if exists {
			return h.fail(a, a.File+" absent", "file exists")
		}
		return nil
	}
	if !exists {
		return h.fail(a, a.File+" exists", err.Error())
	}
	if a.Contains != "" && !strings.Contains(string(data), a.Contains) {
		return h.fail(a,
			fmt.Sprintf("%s containing %q", a.File, a.Contains),
			fmt.Sprintf("content %q", string(data)))
	}
	return nil
}

func (h *Harness) assertJournal(ctx context.Context, a Assertion) error {
	events, err := h.journal.Events(ctx, SessionID)
	if err != nil {
		return fmt.Errorf("read journal: %w", err)
	}
	n := 0
	for _, ev := range events {
		if string(ev.Type) == a.Event {
			n++
		}
	}
	if n != a.Count {
		return h.fail(a,
			fmt.Sprintf("%d %s events", a.Count, a.Event),
			fmt.Sprintf("%d %s events", n, a.Event))
	}
	return nil
}

func (h *Harness) assertLive(a Assertion) error {
	if n := h.device.LiveCount(); n != a.Count {
		return h.fail(a,
			fmt.Sprintf("%d live device programs", a.Count),
			fmt.Sprintf("%d live device programs", n))
	}
	return nil
}
