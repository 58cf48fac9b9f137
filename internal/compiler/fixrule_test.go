package compiler

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shaderhunt/internal/ir"
)

func TestCompileFixRuleBasic(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
		fix: "halo-fix": {
			description: "Move stereo correction"
			kinds: ["vs", "gs"]
			match: #"o0\.x = (r\d+)\.x;"#
			replace: "o0.x = stereo(${1}).x;"
			once: true
		}
	`)
	require.NoError(t, v.Err())

	rule, err := CompileFixRule(v.LookupPath(cue.ParsePath(`fix."halo-fix"`)))
	require.NoError(t, err)

	assert.Equal(t, "halo-fix", rule.Name)
	assert.Equal(t, "Move stereo correction", rule.Description)
	assert.Equal(t, []ir.ProgramKind{ir.KindVertex, ir.KindGeometry}, rule.Kinds)
	assert.Equal(t, `o0\.x = (r\d+)\.x;`, rule.Match)
	assert.True(t, rule.Once)
}

func TestCompileFixRuleErrors(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		field string
	}{
		{"missing match", `fix: r: { replace: "x" }`, "match"},
		{"empty match", `fix: r: { match: "", replace: "x" }`, "match"},
		{"bad regexp", `fix: r: { match: "(", replace: "x" }`, "match"},
		{"missing replace", `fix: r: { match: "a" }`, "replace"},
		{"unknown kind", `fix: r: { match: "a", replace: "b", kinds: ["zz"] }`, "kinds"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := cuecontext.New()
			v := ctx.CompileString(tt.src)
			require.NoError(t, v.Err())

			_, err := CompileFixRule(v.LookupPath(cue.ParsePath("fix.r")))
			require.Error(t, err)
			var ce *CompileError
			require.True(t, errors.As(err, &ce), "want CompileError, got %T", err)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestCompileFixRulesPreservesOrder(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
		fix: zeta: { match: "z", replace: "Z" }
		fix: alpha: { match: "a", replace: "A" }
	`)
	rules, err := CompileFixRules(v)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "zeta", rules[0].Name)
	assert.Equal(t, "alpha", rules[1].Name)
}

func TestCompileFixRulesWithoutFixStruct(t *testing.T) {
	ctx := cuecontext.New()
	rules, err := CompileFixRules(ctx.CompileString(`other: 1`))
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func TestLoadFixRules(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.cue"), []byte(`fix: second: { match: "b", replace: "B" }`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.cue"), []byte(`fix: first: { match: "a", replace: "A" }`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte(`ignored`), 0o644))

	rules, err := LoadFixRules(dir)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "first", rules[0].Name)
	assert.Equal(t, "second", rules[1].Name)
}

func TestLoadFixRulesDuplicateName(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.cue"), []byte(`fix: same: { match: "a", replace: "A" }`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.cue"), []byte(`fix: same: { match: "b", replace: "B" }`), 0o644))

	_, err := LoadFixRules(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"same"`)
}

func TestLoadFixRulesMissingDir(t *testing.T) {
	rules, err := LoadFixRules(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func TestLoadFixRulesSyntaxError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.cue"), []byte(`fix: r: { match: `), 0o644))
	_, err := LoadFixRules(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.cue")
}
