package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/shaderhunt/internal/artifact"
	"github.com/roach88/shaderhunt/internal/compiler"
	"github.com/roach88/shaderhunt/internal/ir"
	"github.com/roach88/shaderhunt/internal/registry"
)

const disassemblyTrailer = "/*~~~~ disassembly ~~~~"

// Promoter turns a live program into an editable replacement source in the
// overrides dir and makes it live through the reload path.
//
// Two promotions of the same fingerprint may race their file writes; the
// last rename wins.
type Promoter struct {
	store     *artifact.Store
	registry  *registry.Registry
	toolchain compiler.Toolchain
	reloader  *ReloadDriver
	logger    *slog.Logger
	metrics   *Metrics
}

// NewPromoter creates a Promoter.
func NewPromoter(s *artifact.Store, reg *registry.Registry, tc compiler.Toolchain, reloader *ReloadDriver, logger *slog.Logger) *Promoter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Promoter{
		store:     s,
		registry:  reg,
		toolchain: tc,
		reloader:  reloader,
		logger:    logger,
		metrics:   reloader.metrics,
	}
}

// Promote writes {fp}-{kind}_replace.txt from the program's retained
// original and reloads it. An existing source is authoritative: it is
// reloaded, never overwritten. Success means the final reload succeeded.
//
// Returns ErrUnknownProgram when no live program has the key and
// ErrNoOriginal when none of them retained its bytecode.
func (p *Promoter) Promote(ctx context.Context, fp ir.Fingerprint, kind ir.ProgramKind) (bool, error) {
	ok, err := p.promote(ctx, ir.Key(fp, kind))
	p.metrics.promotionsTotal.WithLabelValues(resultLabel(ok)).Inc()
	return ok, err
}

func (p *Promoter) promote(ctx context.Context, key ir.ArtifactKey) (bool, error) {
	original, err := p.original(key)
	if err != nil {
		return false, err
	}

	path := p.store.Path(artifact.RootOverrides, key, ir.RoleHumanSource)
	if p.store.Exists(artifact.RootOverrides, key, ir.RoleHumanSource) {
		p.logger.Info("replacement source exists, reloading", "key", key.String(), "path", path)
		if _, err := p.reloader.ReloadFile(ctx, path); err != nil {
			return false, err
		}
		return true, nil
	}

	asm, err := p.toolchain.Disassemble(ctx, original)
	if err != nil {
		return false, fmt.Errorf("promote %s: %w", key, err)
	}
	decompiled, err := p.toolchain.Decompile(ctx, asm, key.Kind)
	if err != nil {
		return false, fmt.Errorf("promote %s: %w", key, err)
	}

	text := promotedSource(key, decompiled, asm)
	if _, err := p.store.Write(artifact.RootOverrides, key, ir.RoleHumanSource, []byte(text)); err != nil {
		return false, fmt.Errorf("promote %s: %w", key, err)
	}
	p.logger.Info("promoted program", "key", key.String(), "path", path)

	if _, err := p.reloader.ReloadFile(ctx, path); err != nil {
		p.appendDiagnostics(key, text, err)
		return false, err
	}
	return true, nil
}

// original returns the retained bytecode of any live program with key.
func (p *Promoter) original(key ir.ArtifactKey) ([]byte, error) {
	found := false
	for _, h := range p.registry.LookupByFingerprint(key.Fingerprint) {
		rec, ok := p.registry.Get(h)
		if !ok || rec.Kind != key.Kind {
			continue
		}
		found = true
		if len(rec.Original) > 0 {
			return rec.Original, nil
		}
	}
	if !found {
		return nil, fmt.Errorf("promote %s: %w", key, ErrUnknownProgram)
	}
	return nil, fmt.Errorf("promote %s: %w", key, ErrNoOriginal)
}

// appendDiagnostics rewrites the promoted file with the toolchain's
// diagnostics in a trailing comment so the operator sees them in place.
func (p *Promoter) appendDiagnostics(key ir.ArtifactKey, text string, cause error) {
	diag := strings.ReplaceAll(compiler.Diagnostics(cause), "*/", "* /")
	body := text + "\n/*~~~~ compile errors ~~~~\n" + diag + "\n*/\n"
	if _, err := p.store.Write(artifact.RootOverrides, key, ir.RoleHumanSource, []byte(body)); err != nil {
		p.logger.Warn("failed to append diagnostics", "key", key.String(), "error", err)
	}
}

func promotedSource(key ir.ArtifactKey, decompiled, asm string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "// %s decompiled by shaderhunt\n", key)
	b.WriteString(decompiled)
	if !strings.HasSuffix(decompiled, "\n") {
		b.WriteByte('\n')
	}
	b.WriteString(disassemblyTrailer + "\n")
	b.WriteString(strings.ReplaceAll(asm, "*/", "* /"))
	if !strings.HasSuffix(asm, "\n") {
		b.WriteByte('\n')
	}
	b.WriteString("*/\n")
	return b.String()
}
