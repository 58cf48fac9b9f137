package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/shaderhunt/internal/artifact"
	"github.com/roach88/shaderhunt/internal/ir"
	"github.com/roach88/shaderhunt/internal/registry"
)

// Device creates and releases programs on the host. It is the real creation
// entry point, never the intercept, so replacements are not themselves
// intercepted.
type Device interface {
	CreateProgram(kind ir.ProgramKind, bytecode []byte) (ir.Handle, error)
	ReleaseProgram(h ir.Handle) error
}

// ReloadResult is the outcome of reloading one live program.
type ReloadResult struct {
	Handle     ir.Handle
	Key        ir.ArtifactKey
	Path       string
	Provenance ir.Provenance
	Err        error
}

// ReloadReport summarizes a ReloadAll scan.
type ReloadReport struct {
	// Files is the number of editable artifacts examined.
	Files int

	Results []ReloadResult

	// Errors holds scan failures that are not tied to a program.
	Errors []error
}

// Reloaded returns the number of programs whose replacement was installed.
func (r ReloadReport) Reloaded() int {
	n := 0
	for _, res := range r.Results {
		if res.Err == nil {
			n++
		}
	}
	return n
}

// Failed returns the number of failed program reloads plus scan errors.
func (r ReloadReport) Failed() int {
	n := len(r.Errors)
	for _, res := range r.Results {
		if res.Err != nil {
			n++
		}
	}
	return n
}

// ReloadDriver re-reads edited artifacts and swaps live replacements.
//
// Thread-safety: ReloadDriver is driven from the frame thread. It may run
// concurrently with intercepts; registry updates are atomic.
type ReloadDriver struct {
	store    *artifact.Store
	resolver *Resolver
	registry *registry.Registry
	device   Device
	logger   *slog.Logger
	metrics  *Metrics

	// onResult observes every per-program outcome (journaling).
	onResult func(context.Context, ReloadResult)
}

// NewReloadDriver creates a ReloadDriver. Artifacts are built through res and
// installed into reg using dev.
func NewReloadDriver(s *artifact.Store, res *Resolver, reg *registry.Registry, dev Device, logger *slog.Logger) *ReloadDriver {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReloadDriver{
		store:    s,
		resolver: res,
		registry: reg,
		device:   dev,
		logger:   logger,
		metrics:  res.metrics,
	}
}

// ReloadAll scans the overrides dir for replacement sources (canonical and
// legacy names) and assembly files, and reloads every live program they
// apply to. A failing file is recorded and the scan continues.
func (d *ReloadDriver) ReloadAll(ctx context.Context) ReloadReport {
	var report ReloadReport

	entries, err := d.store.List(artifact.RootOverrides)
	if err != nil {
		d.logger.Error("reload scan failed", "error", err)
		report.Errors = append(report.Errors, err)
		return report
	}

	for _, entry := range entries {
		if entry.Role != ir.RoleHumanSource && entry.Role != ir.RoleDisassembly {
			continue
		}
		report.Files++
		report.Results = append(report.Results, d.reloadEntry(ctx, entry)...)
	}

	d.logger.Info("reload complete",
		"files", report.Files,
		"reloaded", report.Reloaded(),
		"failed", report.Failed())
	return report
}

// ReloadFile reloads the live programs a single artifact applies to and
// returns how many were swapped. Files outside the overrides dir, and
// artifacts that are not editable text, are ignored.
func (d *ReloadDriver) ReloadFile(ctx context.Context, path string) (int, error) {
	entry, err := d.store.EntryForPath(path)
	if err != nil {
		return 0, fmt.Errorf("reload %s: %w", path, err)
	}
	if entry.Root != artifact.RootOverrides ||
		(entry.Role != ir.RoleHumanSource && entry.Role != ir.RoleDisassembly) {
		d.logger.Debug("not a reloadable artifact", "path", path)
		return 0, nil
	}

	n := 0
	var errs []error
	for _, res := range d.reloadEntry(ctx, entry) {
		if res.Err != nil {
			errs = append(errs, res.Err)
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}

// reloadEntry builds the artifact once and installs it for every live
// program with the same key whose replacement is out of date.
//
// An assembly file is skipped while a replacement source exists for the same
// key; the source takes precedence, as it does at creation.
func (d *ReloadDriver) reloadEntry(ctx context.Context, entry artifact.Entry) []ReloadResult {
	key := entry.Key

	if entry.Role == ir.RoleDisassembly && d.store.Exists(artifact.RootOverrides, key, ir.RoleHumanSource) {
		d.logger.Debug("assembly shadowed by source", "path", entry.Path)
		return nil
	}

	var stale []registry.Record
	for _, h := range d.registry.LookupByFingerprint(key.Fingerprint) {
		rec, ok := d.registry.Get(h)
		if !ok || rec.Kind != key.Kind {
			continue
		}
		if upToDate(rec, entry) {
			continue
		}
		stale = append(stale, rec)
	}
	if len(stale) == 0 {
		return nil
	}

	var (
		built *Resolution
		err   error
	)
	if entry.Role == ir.RoleHumanSource {
		built, err = d.resolver.CompileSource(ctx, key, entry)
	} else {
		built, err = d.resolver.AssembleFile(ctx, key, entry)
	}
	if err != nil {
		d.logger.Error("reload build failed",
			"fingerprint", key.Fingerprint.String(),
			"kind", key.Kind.String(),
			"path", entry.Path,
			"error", err)
		results := make([]ReloadResult, 0, len(stale))
		for _, rec := range stale {
			results = append(results, d.finish(ctx, ReloadResult{Handle: rec.Live, Key: key, Path: entry.Path, Err: err}))
		}
		return results
	}

	results := make([]ReloadResult, 0, len(stale))
	for _, rec := range stale {
		h := rec.Live
		res := ReloadResult{Handle: h, Key: key, Path: entry.Path, Provenance: built.Provenance}
		replacement, err := d.device.CreateProgram(key.Kind, built.Bytecode)
		if err != nil {
			res.Err = newCreateError(key, entry.Path, err)
			d.logger.Error("reload create failed", "handle", uint64(h), "path", entry.Path, "error", err)
			results = append(results, d.finish(ctx, res))
			continue
		}
		if !d.registry.UpdateReplacement(h, rec.Generation, replacement, built.Provenance, built.SourceTime, built.Header) {
			res.Err = fmt.Errorf("handle %#x released during reload: %w", uint64(h), ErrUnknownProgram)
			results = append(results, d.finish(ctx, res))
			continue
		}
		d.logger.Info("reloaded program",
			"handle", uint64(h),
			"fingerprint", key.Fingerprint.String(),
			"kind", key.Kind.String(),
			"provenance", built.Provenance.String(),
			"header", built.Header)
		results = append(results, d.finish(ctx, res))
	}
	return results
}

// upToDate reports whether rec already runs what entry holds. A cached
// binary counts when its companion source time matches, so the first reload
// after attach does not rebuild it.
func upToDate(rec registry.Record, entry artifact.Entry) bool {
	switch {
	case rec.Provenance.IsSourceBased():
	case rec.Provenance == ir.ProvenanceCachedBinary && entry.Role == ir.RoleHumanSource && !rec.SourceTime.IsZero():
	default:
		return false
	}
	return artifact.SameTimestamp(rec.SourceTime, entry.ModTime)
}

func (d *ReloadDriver) finish(ctx context.Context, res ReloadResult) ReloadResult {
	d.metrics.reloadsTotal.WithLabelValues(resultLabel(res.Err == nil)).Inc()
	if d.onResult != nil {
		d.onResult(ctx, res)
	}
	return res
}
