package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const stereoRules = `
fix: "stereo-mul": {
	description: "Swap multiply operands"
	kinds:       ["ps"]
	match:       #"mul\((r\d+), cb0\)"#
	replace:     "mul(cb0, ${1})"
}
fix: "vs-only": {
	kinds:   ["vs"]
	match:   "cb0"
	replace: "cb1"
}
`

// writeFixture writes a rules dir and a decompiled program, returning both paths.
func writeFixture(t *testing.T, rules, text string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	rulesDir := filepath.Join(dir, "fixes")
	require.NoError(t, os.MkdirAll(rulesDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(rulesDir, "stereo.cue"), []byte(rules), 0644))

	file := filepath.Join(dir, "000000000000aabb-ps_replace.txt")
	require.NoError(t, os.WriteFile(file, []byte(text), 0644))
	return rulesDir, file
}

func TestFixAppliesRules(t *testing.T) {
	rulesDir, file := writeFixture(t, stereoRules, "o0 = mul(r1, cb0);\n")

	buf := &bytes.Buffer{}
	cmd := NewFixCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{rulesDir, file, "--kind", "ps"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "o0 = mul(cb0, r1);\n", buf.String())
}

func TestFixJSON(t *testing.T) {
	rulesDir, file := writeFixture(t, stereoRules, "o0 = mul(r1, cb0);\n")

	buf := &bytes.Buffer{}
	cmd := NewFixCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{rulesDir, file, "--kind", "ps"})

	require.NoError(t, cmd.Execute())

	var resp struct {
		Status string    `json:"status"`
		Data   FixResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, []string{"stereo-mul"}, resp.Data.Applied)
	assert.Equal(t, "ps", resp.Data.Kind)
	assert.Equal(t, "o0 = mul(cb0, r1);\n", resp.Data.Text)
}

func TestFixWritesOutputFile(t *testing.T) {
	rulesDir, file := writeFixture(t, stereoRules, "o0 = mul(r1, cb0);\n")
	out := filepath.Join(t.TempDir(), "patched.txt")

	buf := &bytes.Buffer{}
	cmd := NewFixCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{rulesDir, file, "--kind", "ps", "-o", out})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "✓ 1 rule(s) applied")

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "o0 = mul(cb0, r1);\n", string(data))
}

func TestFixNoRuleMatched(t *testing.T) {
	// The vs-only rule would match but the program is a pixel shader.
	rulesDir, file := writeFixture(t, stereoRules, "o0 = cb0;\n")

	buf := &bytes.Buffer{}
	cmd := NewFixCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{rulesDir, file, "--kind", "ps"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, buf.String(), "Error [E005]")
}

func TestFixInvalidRules(t *testing.T) {
	rulesDir, file := writeFixture(t, `fix: bad: { match: "(", replace: "x" }`, "o0 = cb0;\n")

	buf := &bytes.Buffer{}
	cmd := NewFixCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{rulesDir, file, "--kind", "ps"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, ErrCodeRules, resp.Error.Code)
}

func TestFixErrors(t *testing.T) {
	rulesDir, file := writeFixture(t, stereoRules, "o0 = cb0;\n")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"bad kind", []string{rulesDir, file, "--kind", "zz"}, "invalid --kind"},
		{"missing rules dir", []string{"/nonexistent/fixes", file, "--kind", "ps"}, "rules directory not found"},
		{"missing file", []string{rulesDir, "/nonexistent/file.txt", "--kind", "ps"}, "failed to read"},
		{"missing kind", []string{rulesDir, file}, "kind"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := NewFixCommand(&RootOptions{Format: "text"})
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetArgs(tt.args)

			err := cmd.Execute()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
