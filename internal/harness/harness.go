package harness

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/shaderhunt/internal/config"
	"github.com/roach88/shaderhunt/internal/engine"
	"github.com/roach88/shaderhunt/internal/hunting"
	"github.com/roach88/shaderhunt/internal/ir"
	"github.com/roach88/shaderhunt/internal/store"
	"github.com/roach88/shaderhunt/internal/testutil"
)

// SessionID is the journal session id of every harness run.
const SessionID = "harness-session"

// Harness is the state of one scenario run.
type Harness struct {
	engine  *engine.Engine
	device  *testutil.Device
	journal *store.Store
	clock   *testutil.ManualClock
	dirs    map[string]string

	programs map[string]ir.Handle
	labels   map[ir.Handle]string
	result   *Result
}

// Run executes a scenario and returns the result.
//
// Step failures (a program the device refuses, a file that cannot be
// written) and failed assertions are reported in Result.Errors. An error
// is returned only when the run could not be set up.
func Run(scenario *Scenario) (*Result, error) {
	root, err := os.MkdirTemp("", "shaderhunt-harness-")
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario dir: %w", err)
	}
	defer os.RemoveAll(root)

	dirs := map[string]string{
		"overrides": filepath.Join(root, "overrides"),
		"cache":     filepath.Join(root, "cache"),
		"rules":     filepath.Join(root, "rules"),
	}
	dirs[""] = dirs["overrides"]
	for _, d := range []string{dirs["overrides"], dirs["cache"], dirs["rules"]} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create scenario dir: %w", err)
		}
	}

	cfg, err := scenarioConfig(scenario, dirs)
	if err != nil {
		return nil, err
	}

	clock := testutil.NewManualClock()
	for _, f := range scenario.Files {
		if err := writeFile(dirs, f, clock.Now()); err != nil {
			return nil, err
		}
	}

	// Create fresh in-memory SQLite database
	journal, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer journal.Close()

	device := testutil.NewDevice()
	eng, err := engine.New(cfg, device, testutil.NewToolchain(),
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))), // Suppress logs in tests
		engine.WithJournal(journal),
		engine.WithClock(clock.Now),
		engine.WithSessionIDGenerator(testutil.NewFixedSessionGenerator(SessionID)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	defer eng.Close()

	ctx := context.Background()
	if err := eng.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start engine: %w", err)
	}

	h := &Harness{
		engine:   eng,
		device:   device,
		journal:  journal,
		clock:    clock,
		dirs:     dirs,
		programs: make(map[string]ir.Handle),
		labels:   make(map[ir.Handle]string),
		result:   NewResult(),
	}

	for i, step := range scenario.Steps {
		if err := h.execute(ctx, step); err != nil {
			h.result.AddError(fmt.Sprintf("step %d (%s): %v", i+1, step.op(), err))
		}
	}

	for _, a := range scenario.Assertions {
		if err := h.check(ctx, a); err != nil {
			h.result.AddError(err.Error())
		}
	}
	return h.result, nil
}

// scenarioConfig decodes the scenario's config over the defaults and pins
// everything that would make a run nondeterministic or touch shared state.
func scenarioConfig(scenario *Scenario, dirs map[string]string) (config.Config, error) {
	var data []byte
	if scenario.Config.Kind != 0 {
		var err error
		if data, err = yaml.Marshal(&scenario.Config); err != nil {
			return config.Config{}, fmt.Errorf("failed to encode scenario config: %w", err)
		}
	}
	cfg, err := config.Decode(bytes.NewReader(data))
	if err != nil {
		return config.Config{}, fmt.Errorf("scenario config: %w", err)
	}
	if !hasKey(&scenario.Config, "hash_strategy") {
		cfg.HashStrategy = ir.HashHeader.String()
	}
	cfg.OverridesDir = dirs["overrides"]
	cfg.CacheDir = dirs["cache"]
	cfg.AutoPatch.RulesDir = dirs["rules"]
	cfg.Watch.Enabled = false
	cfg.Journal.Path = ""
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("scenario config: %w", err)
	}
	return cfg, nil
}

func hasKey(node *yaml.Node, key string) bool {
	if node.Kind != yaml.MappingNode {
		return false
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return true
		}
	}
	return false
}

func writeFile(dirs map[string]string, f File, mtime time.Time) error {
	path := filepath.Join(dirs[f.Dir], f.Name)
	if err := os.WriteFile(path, []byte(f.Content), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", f.Name, err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		return fmt.Errorf("failed to stamp %s: %w", f.Name, err)
	}
	return nil
}

func (h *Harness) execute(ctx context.Context, step Step) error {
	r := h.result
	switch step.op() {
	case "create":
		c := step.Create
		kind, _ := ir.ParseProgramKind(c.Kind)
		fp, _ := ir.ParseFingerprint(c.ID)
		live, err := h.engine.CreateProgram(ctx, kind, testutil.ProgramBytecode(uint64(fp), c.Body), nil)
		if err != nil {
			r.AddTrace("create", "%s %s failed", c.As, ir.Key(fp, kind))
			return err
		}
		h.programs[c.As] = live
		h.labels[live] = c.As
		rec, _ := h.engine.Registry().Get(live)
		r.AddTrace("create", "%s %s live=%s replacement=%s provenance=%s",
			c.As, ir.Key(fp, kind), handleString(live), handleString(rec.Replacement), rec.Provenance)

	case "release":
		// The host drops its own program after the intercept runs.
		live := h.programs[step.Release]
		h.engine.ReleaseProgram(ctx, live)
		r.AddTrace("release", "%s live=%s", step.Release, handleString(live))
		if err := h.device.ReleaseProgram(live); err != nil {
			return err
		}

	case "bind":
		live := h.programs[step.Bind]
		bound := h.engine.Bind(live)
		which := "replacement"
		if bound == live {
			which = "original"
		}
		r.AddTrace("bind", "%s -> %s", step.Bind, which)

	case "observe":
		res, _ := parseResource(step.Observe.Resource)
		id, _ := ir.ParseFingerprint(step.Observe.ID)
		h.engine.Observe(res, hunting.ID(id))
		r.AddTrace("observe", "%s %s", res, id)

	case "write":
		if err := writeFile(h.dirs, *step.Write, h.clock.Now()); err != nil {
			return err
		}
		dir := step.Write.Dir
		if dir == "" {
			dir = "overrides"
		}
		r.AddTrace("write", "%s/%s", dir, step.Write.Name)

	case "advance":
		h.clock.Advance(step.Advance)
		r.AddTrace("advance", "%s", step.Advance)

	case "press":
		now := h.clock.Now()
		events := make([]hunting.Event, 0, 2*len(step.Press))
		for _, name := range step.Press {
			a, _ := hunting.ParseAction(name)
			events = append(events,
				hunting.Event{Action: a, Down: true, At: now},
				hunting.Event{Action: a, Down: false, At: now})
		}
		h.tick(ctx, events...)

	case "tick":
		h.tick(ctx)

	case "reload":
		h.traceReload(h.engine.Reloader().ReloadAll(ctx))

	case "promote":
		rec, _ := h.engine.Registry().Get(h.programs[step.Promote])
		// A failed promotion is an outcome, not a step error.
		ok, _ := h.engine.Promoter().Promote(ctx, rec.Fingerprint, rec.Kind)
		r.AddTrace("promote", "%s ok=%t", ir.Key(rec.Fingerprint, rec.Kind), ok)
	}
	return nil
}

func (h *Harness) tick(ctx context.Context, events ...hunting.Event) {
	r := h.result
	now := h.clock.Now()
	report := h.engine.Tick(ctx, now, events...)

	r.AddTrace("tick", "t=%s", now.Sub(testutil.Epoch))
	for _, trig := range report.Triggers {
		state := "up"
		if trig.Down {
			state = "down"
		}
		r.AddTrace("trigger", "%s %s", trig.Action, state)
	}
	for _, sel := range report.Moves {
		r.AddTrace("select", "%s %s", sel.Resource, ir.Fingerprint(sel.ID))
	}
	for _, sel := range report.Marks {
		r.AddTrace("mark", "%s %s", sel.Resource, ir.Fingerprint(sel.ID))
	}
	for _, p := range report.Promotions {
		r.AddTrace("promote", "%s ok=%t", p.Key, p.OK)
	}
	if report.Reload != nil {
		h.traceReload(*report.Reload)
	}
	if report.Cleared {
		r.AddTrace("cleared", "")
	}
}

func (h *Harness) traceReload(report engine.ReloadReport) {
	r := h.result
	r.AddTrace("reload", "files=%d reloaded=%d failed=%d", report.Files, report.Reloaded(), report.Failed())
	for _, res := range report.Results {
		label := h.labels[res.Handle]
		if res.Err != nil {
			r.AddTrace("reload-failed", "%s %s", label, res.Key)
			continue
		}
		r.AddTrace("reloaded", "%s %s provenance=%s", label, res.Key, res.Provenance)
	}
}

func handleString(h ir.Handle) string {
	if !h.Valid() {
		return "none"
	}
	return fmt.Sprintf("%#x", uint64(h))
}
