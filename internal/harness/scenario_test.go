package harness

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseScenario_Valid(t *testing.T) {
	data := []byte(`
name: basic
description: "Create and bind"
config:
  hunting:
    enabled: true
files:
  - name: 000000000000aabb-vs_replace.txt
    content: "// tweak\n"
  - dir: rules
    name: r.cue
    content: 'fix: r: { match: "a", replace: "b" }'
steps:
  - create: { as: A, kind: vs, id: aabb, body: main }
  - bind: A
  - advance: 250ms
  - press: [next_vs, mark_vs]
  - observe: { resource: ib, id: beef }
  - tick: true
  - reload: true
  - promote: A
  - release: A
assertions:
  - type: provenance
    program: A
    provenance: recompiled-from-source
  - type: selected
    resource: vs
    id: aabb
`)
	s, err := ParseScenario(data)
	require.NoError(t, err)

	assert.Equal(t, "basic", s.Name)
	assert.Equal(t, yaml.MappingNode, s.Config.Kind)
	require.Len(t, s.Files, 2)
	assert.Equal(t, "rules", s.Files[1].Dir)
	require.Len(t, s.Steps, 9)
	assert.Equal(t, "create", s.Steps[0].op())
	assert.Equal(t, &CreateStep{As: "A", Kind: "vs", ID: "aabb", Body: "main"}, s.Steps[0].Create)
	assert.Equal(t, 250*time.Millisecond, s.Steps[2].Advance)
	assert.Equal(t, []string{"next_vs", "mark_vs"}, s.Steps[3].Press)
	assert.Equal(t, "release", s.Steps[8].op())
	require.Len(t, s.Assertions, 2)
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing name",
			yaml: "description: d\nsteps: [{tick: true}]\n",
			want: "name is required",
		},
		{
			name: "missing description",
			yaml: "name: n\nsteps: [{tick: true}]\n",
			want: "description is required",
		},
		{
			name: "no steps",
			yaml: "name: n\ndescription: d\n",
			want: "steps list is required",
		},
		{
			name: "unknown field",
			yaml: "name: n\ndescription: d\nstep: [{tick: true}]\n",
			want: "field step not found",
		},
		{
			name: "two actions in one step",
			yaml: "name: n\ndescription: d\nsteps: [{tick: true, reload: true}]\n",
			want: "exactly one action",
		},
		{
			name: "empty step",
			yaml: "name: n\ndescription: d\nsteps: [{}]\n",
			want: "exactly one action",
		},
		{
			name: "label used before create",
			yaml: "name: n\ndescription: d\nsteps: [{bind: A}]\n",
			want: `program "A" is not created before use`,
		},
		{
			name: "duplicate label",
			yaml: "name: n\ndescription: d\nsteps:\n  - create: {as: A, kind: vs, id: '1'}\n  - create: {as: A, kind: ps, id: '2'}\n",
			want: `program "A" already created`,
		},
		{
			name: "bad kind",
			yaml: "name: n\ndescription: d\nsteps: [{create: {as: A, kind: xs, id: '1'}}]\n",
			want: "xs",
		},
		{
			name: "bad fingerprint",
			yaml: "name: n\ndescription: d\nsteps: [{create: {as: A, kind: vs, id: zz}}]\n",
			want: "invalid fingerprint",
		},
		{
			name: "unknown action",
			yaml: "name: n\ndescription: d\nsteps: [{press: [jump]}]\n",
			want: `unknown action "jump"`,
		},
		{
			name: "unknown resource",
			yaml: "name: n\ndescription: d\nsteps: [{observe: {resource: zz, id: '1'}}]\n",
			want: `unknown resource "zz"`,
		},
		{
			name: "unknown file dir",
			yaml: "name: n\ndescription: d\nfiles: [{dir: tmp, name: x}]\nsteps: [{tick: true}]\n",
			want: `unknown dir "tmp"`,
		},
		{
			name: "unknown assertion",
			yaml: "name: n\ndescription: d\nsteps: [{tick: true}]\nassertions: [{type: magic}]\n",
			want: `unknown type "magic"`,
		},
		{
			name: "assertion on unknown program",
			yaml: "name: n\ndescription: d\nsteps: [{tick: true}]\nassertions: [{type: replaced, program: A}]\n",
			want: `unknown program "A"`,
		},
		{
			name: "bad provenance",
			yaml: "name: n\ndescription: d\nsteps: [{create: {as: A, kind: vs, id: '1'}}]\nassertions: [{type: provenance, program: A, provenance: magic}]\n",
			want: `unknown provenance "magic"`,
		},
		{
			name: "config not a mapping",
			yaml: "name: n\ndescription: d\nconfig: [1]\nsteps: [{tick: true}]\n",
			want: "config must be a mapping",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_AllTestdataScenariosParse(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		s, err := LoadScenario(path)
		require.NoError(t, err, path)
		base := filepath.Base(path)
		assert.Equal(t, base[:len(base)-len(filepath.Ext(base))], s.Name, "scenario name matches file name")

		_, err = os.Stat(filepath.Join("testdata", "golden", s.Name+".golden"))
		assert.NoError(t, err, "golden file for %s", s.Name)
	}
}
