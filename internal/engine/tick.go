package engine

import (
	"context"
	"time"

	"github.com/roach88/shaderhunt/internal/hunting"
	"github.com/roach88/shaderhunt/internal/ir"
)

// Selection is a cursor position after a navigation or mark.
type Selection struct {
	Resource hunting.Resource
	ID       hunting.ID
}

// PromotionResult is the outcome of marking a program.
type PromotionResult struct {
	Key ir.ArtifactKey
	OK  bool
	Err error
}

// FileReload is the outcome of reloading one watched file.
type FileReload struct {
	Path     string
	Reloaded int
	Err      error
}

// TickReport describes what one Tick did.
type TickReport struct {
	Triggers   []hunting.Trigger
	Moves      []Selection
	Marks      []Selection
	Promotions []PromotionResult

	// Reload is set when the operator asked for a full reload.
	Reload *ReloadReport

	// Watched lists files reloaded because the watcher saw them change.
	Watched []FileReload

	// Cleared reports that the hunting sets were emptied by idle clearing.
	Cleared bool
}

// Tick runs once per frame on the frame thread. It dispatches queued and
// given input events, acts on the resulting triggers, reloads watched files
// and applies hunting idle clearing.
func (e *Engine) Tick(ctx context.Context, now time.Time, events ...hunting.Event) TickReport {
	var report TickReport

	pending := append(e.queue.Drain(), events...)
	for _, ev := range pending {
		if ev.At.IsZero() {
			ev.At = now
		}
		if trig, ok := e.dispatcher.Dispatch(ev); ok {
			report.Triggers = append(report.Triggers, trig)
		}
	}
	report.Triggers = append(report.Triggers, e.dispatcher.Poll(now)...)

	for _, trig := range report.Triggers {
		e.apply(ctx, now, trig, &report)
	}

	if e.watcher != nil {
		for _, path := range e.watcher.Drain() {
			n, err := e.reloader.ReloadFile(ctx, path)
			if err != nil {
				e.logger.Error("watched reload failed", "path", path, "error", err)
			}
			report.Watched = append(report.Watched, FileReload{Path: path, Reloaded: n, Err: err})
		}
	}

	if e.cfg.Hunting.Enabled {
		report.Cleared = e.tracker.Tick(now)
	}
	if report.Reload != nil || len(report.Watched) > 0 || len(report.Promotions) > 0 {
		e.metrics.liveReplacements.Set(float64(e.registry.Replaced()))
	}
	return report
}

// apply acts on one trigger. Every press counts as operator input for the
// hunting idle timer, whatever it is bound to.
func (e *Engine) apply(ctx context.Context, now time.Time, trig hunting.Trigger, report *TickReport) {
	if trig.Down && e.cfg.Hunting.Enabled {
		e.tracker.Touch(now)
	}
	if r, dir, ok := trig.Action.Navigation(); ok {
		if !e.cfg.Hunting.Enabled || !trig.Down {
			return
		}
		set := e.tracker.Set(r)
		var (
			id    hunting.ID
			found bool
		)
		switch dir {
		case 1:
			id, found = set.Next()
		case -1:
			id, found = set.Prev()
		default:
			e.mark(ctx, r, report)
			return
		}
		if found {
			report.Moves = append(report.Moves, Selection{Resource: r, ID: id})
			e.logger.Info("selected", "resource", r.String(), "id", ir.Fingerprint(id).String())
		}
		return
	}

	switch trig.Action {
	case hunting.ActionReload:
		if !trig.Down {
			return
		}
		rep := e.reloader.ReloadAll(ctx)
		report.Reload = &rep

	case hunting.ActionToggleOriginal:
		if e.dispatcher.Binding(trig.Action).Hold {
			e.showOriginal.Store(trig.Down)
		} else if trig.Down {
			e.showOriginal.Store(!e.showOriginal.Load())
		}
		e.logger.Debug("show original", "enabled", e.showOriginal.Load())

	case hunting.ActionResetHunting:
		if !trig.Down {
			return
		}
		e.tracker.Reset()
		e.logger.Info("hunting state reset")

	case hunting.ActionTuneUp, hunting.ActionTuneDown:
		if !trig.Down {
			return
		}
		step := e.cfg.Tune.Step
		if trig.Action == hunting.ActionTuneDown {
			step = -step
		}
		e.tuneMu.Lock()
		if len(e.tune) > 0 {
			e.tune[0] += step
		}
		e.tuneMu.Unlock()
	}
}

// mark acts on the current selection of r. Programs are promoted; other
// resources are only recorded.
func (e *Engine) mark(ctx context.Context, r hunting.Resource, report *TickReport) {
	id, ok := e.tracker.Set(r).Selected()
	if !ok {
		return
	}
	report.Marks = append(report.Marks, Selection{Resource: r, ID: id})
	fp := ir.Fingerprint(id)

	kind, isProgram := r.ProgramKind()
	if !isProgram {
		e.logger.Info("marked", "resource", r.String(), "id", fp.String())
		e.appendEvent(ctx, ir.JournalEvent{
			Type:        ir.EventMark,
			Fingerprint: fp,
			Resource:    r.String(),
			OK:          true,
		})
		return
	}

	promoted, err := e.promoter.Promote(ctx, fp, kind)
	if err != nil {
		e.logger.Error("promotion failed",
			"fingerprint", fp.String(),
			"kind", kind.String(),
			"error", err)
	}
	report.Promotions = append(report.Promotions, PromotionResult{Key: ir.Key(fp, kind), OK: promoted, Err: err})

	ev := ir.JournalEvent{
		Type:        ir.EventPromote,
		Fingerprint: fp,
		Kind:        kind,
		Resource:    r.String(),
		OK:          promoted,
	}
	if err != nil {
		ev.Detail = err.Error()
	}
	e.appendEvent(ctx, ev)
}
