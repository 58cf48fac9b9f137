package engine

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shaderhunt/internal/artifact"
	"github.com/roach88/shaderhunt/internal/ir"
	"github.com/roach88/shaderhunt/internal/registry"
	"github.com/roach88/shaderhunt/internal/testutil"
)

func TestPromoter_WritesSourceAndInstallsReplacement(t *testing.T) {
	env := newResolverEnv(t)
	h := env.register(t, 0xAABB, ir.KindVertex, "orig")

	ok, err := env.promoter.Promote(context.Background(), 0xAABB, ir.KindVertex)
	require.NoError(t, err)
	assert.True(t, ok)

	key := ir.Key(0xAABB, ir.KindVertex)
	assert.Equal(t, "000000000000aabb-vs_replace.txt", key.Filename(ir.RoleHumanSource))
	text, _, err := env.store.ReadText(artifact.RootOverrides, key, ir.RoleHumanSource)
	require.NoError(t, err)
	assert.Equal(t, "// 000000000000aabb-vs decompiled by shaderhunt", text.Header)
	assert.Contains(t, text.Body, "mul(r1, cb0)")
	assert.Contains(t, text.Body, "/*~~~~ disassembly ~~~~\nasm 6f726967\nret\n*/\n")

	rec, _ := env.registry.Get(h)
	assert.Equal(t, ir.ProvenanceRecompiled, rec.Provenance)
	assert.True(t, rec.Replacement.Valid())
}

func TestPromoter_ExistingSourceIsAuthoritative(t *testing.T) {
	env := newResolverEnv(t)
	h := env.register(t, testFP, ir.KindPixel, "orig")
	key := ir.Key(testFP, ir.KindPixel)
	testutil.WriteFile(t, env.overDir, key.Filename(ir.RoleHumanSource), "// hand edit\n", testutil.Epoch)

	ok, err := env.promoter.Promote(context.Background(), testFP, ir.KindPixel)
	require.NoError(t, err)
	assert.True(t, ok)

	text, _, err := env.store.ReadText(artifact.RootOverrides, key, ir.RoleHumanSource)
	require.NoError(t, err)
	assert.Equal(t, "// hand edit\n", text.Body, "existing source is never overwritten")
	assert.Equal(t, 0, env.tc.Decompiles())

	rec, _ := env.registry.Get(h)
	assert.Equal(t, "// hand edit", rec.Header)
}

func TestPromoter_NoOriginal(t *testing.T) {
	env := newResolverEnv(t)
	h, err := env.dev.CreateProgram(ir.KindPixel, []byte("orig"))
	require.NoError(t, err)
	env.registry.Register(registry.Record{Fingerprint: testFP, Kind: ir.KindPixel, Live: h})

	ok, err := env.promoter.Promote(context.Background(), testFP, ir.KindPixel)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrNoOriginal)
	assert.False(t, env.store.Exists(artifact.RootOverrides, ir.Key(testFP, ir.KindPixel), ir.RoleHumanSource))
}

func TestPromoter_UnknownProgram(t *testing.T) {
	env := newResolverEnv(t)
	env.register(t, testFP, ir.KindVertex, "orig")

	ok, err := env.promoter.Promote(context.Background(), testFP, ir.KindPixel)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrUnknownProgram)
}

func TestPromoter_DecompileFailure(t *testing.T) {
	env := newResolverEnv(t)
	env.register(t, testFP, ir.KindPixel, "orig")
	env.tc.SetFailures(false, true)

	ok, err := env.promoter.Promote(context.Background(), testFP, ir.KindPixel)
	assert.False(t, ok)
	require.Error(t, err)
	assert.False(t, env.store.Exists(artifact.RootOverrides, ir.Key(testFP, ir.KindPixel), ir.RoleHumanSource))
}

// brokenDecompiler emits source the compiler rejects.
type brokenDecompiler struct {
	*testutil.Toolchain
}

func (b brokenDecompiler) Decompile(ctx context.Context, asm string, kind ir.ProgramKind) (string, error) {
	src, err := b.Toolchain.Decompile(ctx, asm, kind)
	return src + "#error unsupported intrinsic\n", err
}

func TestPromoter_CompileFailureAppendsDiagnostics(t *testing.T) {
	env := newResolverEnv(t)
	h := env.register(t, testFP, ir.KindPixel, "orig")
	promoter := NewPromoter(env.store, env.registry, brokenDecompiler{env.tc}, env.reloader, discardLogger())

	ok, err := promoter.Promote(context.Background(), testFP, ir.KindPixel)
	assert.False(t, ok)
	require.Error(t, err)
	assert.True(t, IsCompileFailed(err))

	text, _, err := env.store.ReadText(artifact.RootOverrides, ir.Key(testFP, ir.KindPixel), ir.RoleHumanSource)
	require.NoError(t, err)
	idx := strings.Index(text.Body, "/*~~~~ compile errors ~~~~")
	require.GreaterOrEqual(t, idx, 0)
	assert.Contains(t, text.Body[idx:], "error X1000")

	_, replaced := env.registry.Replacement(h)
	assert.False(t, replaced)
}
