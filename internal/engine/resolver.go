package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/roach88/shaderhunt/internal/artifact"
	"github.com/roach88/shaderhunt/internal/compiler"
	"github.com/roach88/shaderhunt/internal/ir"
)

// Resolution is a replacement program built from an artifact.
//
// Bytecode may be shared between concurrent callers; treat it as read-only.
type Resolution struct {
	Bytecode   []byte
	Provenance ir.Provenance

	// SourceTime is the modification time of the editable artifact the
	// bytecode came from. Zero means "always retry on reload".
	SourceTime time.Time

	// Header is the first line of the replacement source.
	Header string

	// Path is the artifact the bytecode was built from.
	Path string

	// Warnings are non-fatal toolchain diagnostics.
	Warnings []string

	// Applied lists the fix rules that changed an auto-patched program.
	Applied []string
}

// Resolver finds a replacement for a newly created program.
//
// Stages, first match wins:
//  1. cached binary (overrides, then cache) whose timestamp matches its source
//  2. human source in overrides, compiled and cached
//  3. assembly in overrides, reassembled (never cached)
//  4. auto-patch of the original, when enabled and not marked bad
//
// A missing artifact moves on to the next stage silently. An artifact that
// exists but fails to build stops resolution with a *ResolveError wrapping
// the toolchain's *compiler.DiagnosticError; later stages are not tried.
//
// Thread-safety: safe for concurrent use. Concurrent resolutions of the same
// key are coalesced. No locks are held across file I/O or toolchain calls.
type Resolver struct {
	store     *artifact.Store
	toolchain compiler.Toolchain
	targets   map[ir.Fingerprint]string
	fixer     *compiler.Fixer
	autopatch bool
	persist   bool
	logger    *slog.Logger
	metrics   *Metrics

	group singleflight.Group
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithForcedTargets overrides the compile target per fingerprint.
func WithForcedTargets(targets map[ir.Fingerprint]string) ResolverOption {
	return func(r *Resolver) { r.targets = targets }
}

// WithAutoPatch enables stage 4 with the given fix rules. persist also
// writes decompiled text to the cache dir for reference.
func WithAutoPatch(fixer *compiler.Fixer, persist bool) ResolverOption {
	return func(r *Resolver) {
		r.fixer = fixer
		r.autopatch = true
		r.persist = persist
	}
}

// WithResolverLogger sets the logger. Default: slog.Default().
func WithResolverLogger(l *slog.Logger) ResolverOption {
	return func(r *Resolver) { r.logger = l }
}

func withResolverMetrics(m *Metrics) ResolverOption {
	return func(r *Resolver) { r.metrics = m }
}

// NewResolver creates a Resolver over s using tc.
func NewResolver(s *artifact.Store, tc compiler.Toolchain, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		store:     s,
		toolchain: tc,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		r.metrics = newMetrics(nil)
	}
	return r
}

// Target returns the compile target for key: the forced target for its
// fingerprint or the kind's default.
func (r *Resolver) Target(key ir.ArtifactKey) string {
	if t, ok := r.targets[key.Fingerprint]; ok {
		return t
	}
	return key.Kind.DefaultTarget()
}

// Resolve returns the replacement for a program, or nil when there is none.
// original is the program's own bytecode, used only by auto-patch.
func (r *Resolver) Resolve(ctx context.Context, fp ir.Fingerprint, kind ir.ProgramKind, original []byte) (*Resolution, error) {
	key := ir.Key(fp, kind)
	v, err, _ := r.group.Do(key.String(), func() (any, error) {
		start := time.Now()
		defer func() { r.metrics.resolveDuration.Observe(time.Since(start).Seconds()) }()
		return r.resolve(ctx, key, original)
	})
	if err != nil {
		var re *ResolveError
		if errors.As(err, &re) {
			r.metrics.resolveErrors.WithLabelValues(string(re.Code)).Inc()
		}
		return nil, err
	}
	res, _ := v.(*Resolution)
	return res, nil
}

func (r *Resolver) resolve(ctx context.Context, key ir.ArtifactKey, original []byte) (*Resolution, error) {
	if res := r.cachedBinary(key); res != nil {
		return res, nil
	}

	src, err := r.store.Stat(artifact.RootOverrides, key, ir.RoleHumanSource)
	if err == nil {
		return r.CompileSource(ctx, key, src)
	} else if !IsNotFound(err) {
		return nil, newReadError(key, r.store.Path(artifact.RootOverrides, key, ir.RoleHumanSource), err)
	}

	asm, err := r.store.Stat(artifact.RootOverrides, key, ir.RoleDisassembly)
	if err == nil {
		return r.AssembleFile(ctx, key, asm)
	} else if !IsNotFound(err) {
		return nil, newReadError(key, r.store.Path(artifact.RootOverrides, key, ir.RoleDisassembly), err)
	}

	if r.autopatch {
		return r.autoPatch(ctx, key, original), nil
	}
	return nil, nil
}

// cachedBinary is stage 1. A binary is valid when its source companion in
// the overrides dir carries exactly the same timestamp. Without a companion
// a binary placed in the overrides dir is used as is, while one in the
// cache dir is machine output whose source is gone, so it is ignored.
func (r *Resolver) cachedBinary(key ir.ArtifactKey) *Resolution {
	companion, cerr := r.store.Stat(artifact.RootOverrides, key, ir.RoleHumanSource)
	hasCompanion := cerr == nil

	roots := []artifact.Root{artifact.RootOverrides}
	if filepath.Clean(r.store.Dir(artifact.RootCache)) != filepath.Clean(r.store.Dir(artifact.RootOverrides)) {
		roots = append(roots, artifact.RootCache)
	}

	for _, root := range roots {
		bin, err := r.store.Stat(root, key, ir.RoleBinaryCache)
		if err != nil {
			if !IsNotFound(err) {
				r.logger.Warn("cached binary unreadable", "key", key.String(), "error", err)
			}
			continue
		}

		switch {
		case hasCompanion && !artifact.SameTimestamp(bin.ModTime, companion.ModTime):
			r.logger.Debug("cached binary stale", "key", key.String(), "error", newStaleError(key, bin.Path))
			continue
		case !hasCompanion && root == artifact.RootCache:
			r.logger.Debug("cached binary without source", "key", key.String(), "error", newStaleError(key, bin.Path))
			continue
		}

		data, err := r.store.ReadFile(bin)
		if err != nil {
			r.logger.Warn("cached binary unreadable", "key", key.String(), "path", bin.Path, "error", err)
			continue
		}
		res := &Resolution{
			Bytecode:   data,
			Provenance: ir.ProvenanceCachedBinary,
			Path:       bin.Path,
		}
		if hasCompanion {
			res.SourceTime = companion.ModTime
			if raw, err := r.store.ReadFile(companion); err == nil {
				if text, err := artifact.DecodeText(raw); err == nil {
					res.Header = text.Header
				}
			}
		}
		r.logger.Debug("using cached binary", "key", key.String(), "path", bin.Path)
		return res
	}
	return nil
}

// CompileSource is stage 2 for a specific source file. On success the
// binary is written to the cache dir tagged with the source's timestamp.
func (r *Resolver) CompileSource(ctx context.Context, key ir.ArtifactKey, src artifact.Entry) (*Resolution, error) {
	raw, err := r.store.ReadFile(src)
	if err != nil {
		return nil, newReadError(key, src.Path, err)
	}
	text, err := artifact.DecodeText(raw)
	if err != nil {
		return nil, newReadError(key, src.Path, err)
	}

	target := r.Target(key)
	out, err := r.toolchain.Compile(ctx, text.Body, target)
	if err != nil {
		return nil, newCompileError(key, src.Path, err)
	}

	if _, err := r.store.WriteTagged(artifact.RootCache, key, ir.RoleBinaryCache, out.Bytecode, src.ModTime); err != nil {
		r.logger.Warn("failed to cache compiled binary", "key", key.String(), "error", err)
	}

	r.logger.Info("compiled replacement source",
		"key", key.String(),
		"path", src.Path,
		"target", target,
		"header", text.Header,
	)
	return &Resolution{
		Bytecode:   out.Bytecode,
		Provenance: ir.ProvenanceRecompiled,
		SourceTime: src.ModTime,
		Header:     text.Header,
		Path:       src.Path,
		Warnings:   out.Warnings,
	}, nil
}

// AssembleFile is stage 3 for a specific assembly file. Recovered assembler
// errors are logged as warnings. Nothing is cached and the source time is
// zero, so every reload retries.
func (r *Resolver) AssembleFile(ctx context.Context, key ir.ArtifactKey, asm artifact.Entry) (*Resolution, error) {
	raw, err := r.store.ReadFile(asm)
	if err != nil {
		return nil, newReadError(key, asm.Path, err)
	}
	text, err := artifact.DecodeText(raw)
	if err != nil {
		return nil, newReadError(key, asm.Path, err)
	}

	out, err := r.toolchain.Assemble(ctx, text.Body)
	if err != nil {
		return nil, newCompileError(key, asm.Path, err)
	}
	for _, w := range out.Warnings {
		r.logger.Warn("assembler warning", "key", key.String(), "path", asm.Path, "warning", w)
	}

	r.logger.Info("reassembled replacement", "key", key.String(), "path", asm.Path)
	return &Resolution{
		Bytecode:   out.Bytecode,
		Provenance: ir.ProvenanceReassembled,
		Header:     text.Header,
		Path:       asm.Path,
		Warnings:   out.Warnings,
	}, nil
}

// autoPatch is stage 4. It never returns an error: any failure marks the
// key bad so it is not attempted again.
func (r *Resolver) autoPatch(ctx context.Context, key ir.ArtifactKey, original []byte) *Resolution {
	if r.store.Exists(artifact.RootOverrides, key, ir.RoleMarkedBad) || r.store.Exists(artifact.RootCache, key, ir.RoleMarkedBad) {
		r.metrics.autopatchTotal.WithLabelValues("skipped").Inc()
		return nil
	}
	if r.fixer.Len() == 0 && !r.persist {
		return nil
	}
	if len(original) == 0 {
		return nil
	}

	asm, err := r.toolchain.Disassemble(ctx, original)
	if err != nil {
		r.markBad(key, err)
		return nil
	}
	decompiled, err := r.toolchain.Decompile(ctx, asm, key.Kind)
	if err != nil {
		r.markBad(key, err)
		return nil
	}

	patched, applied := r.fixer.Apply(decompiled, key.Kind)
	if len(applied) == 0 {
		r.persistText(key, decompiled)
		r.metrics.autopatchTotal.WithLabelValues("unchanged").Inc()
		return nil
	}

	out, err := r.toolchain.Compile(ctx, patched, r.Target(key))
	if err != nil {
		r.markBad(key, err)
		return nil
	}
	r.persistText(key, patched)

	r.metrics.autopatchTotal.WithLabelValues("patched").Inc()
	r.logger.Info("auto-patched program", "key", key.String(), "rules", applied)
	return &Resolution{
		Bytecode:   out.Bytecode,
		Provenance: ir.ProvenanceAutoPatched,
		Header:     artifact.FirstLine(patched),
		Applied:    applied,
		Warnings:   out.Warnings,
	}
}

func (r *Resolver) markBad(key ir.ArtifactKey, cause error) {
	r.metrics.autopatchTotal.WithLabelValues("failed").Inc()
	r.logger.Warn("auto-patch failed, marking bad", "key", key.String(), "error", cause)
	body := fmt.Sprintf("auto-patch failed for %s\n%s\n", key, compiler.Diagnostics(cause))
	if _, err := r.store.Write(artifact.RootCache, key, ir.RoleMarkedBad, []byte(body)); err != nil {
		r.logger.Warn("failed to write bad marker", "key", key.String(), "error", err)
	}
}

// persistText writes decompiled text next to the cache for reference. It is
// skipped when cache and overrides share a directory, where the file would
// be read back as an override.
func (r *Resolver) persistText(key ir.ArtifactKey, text string) {
	if !r.persist {
		return
	}
	if filepath.Clean(r.store.Dir(artifact.RootCache)) == filepath.Clean(r.store.Dir(artifact.RootOverrides)) {
		return
	}
	if _, err := r.store.Write(artifact.RootCache, key, ir.RoleHumanSource, []byte(text)); err != nil {
		r.logger.Warn("failed to persist decompiled text", "key", key.String(), "error", err)
	}
}
