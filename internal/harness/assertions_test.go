package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssertFile_ContentMismatch(t *testing.T) {
	scenario := mustParse(t, `
name: content
description: Override text does not contain the expected marker
files:
  - name: 000000000000aabb-vs_replace.txt
    content: "// plain\n"
steps:
  - tick: true
assertions:
  - { type: file_exists, file: 000000000000aabb-vs_replace.txt, contains: "// plain" }
  - { type: file_exists, file: 000000000000aabb-vs_replace.txt, contains: "stereo" }
  - { type: file_absent, file: 000000000000aabb-vs_replace.txt }
  - { type: file_absent, dir: cache, file: 000000000000aabb-vs_replace.txt }
`)
	result, err := Run(scenario)
	require.NoError(t, err)

	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], `containing "stereo"`)
	assert.Contains(t, result.Errors[1], "Assertion failed: file_absent")
}

func TestAssertSelected_WrongID(t *testing.T) {
	scenario := mustParse(t, `
name: selected
description: The cursor is on a different render target
config:
  hunting: { enabled: true }
steps:
  - observe: { resource: rt, id: "1" }
  - observe: { resource: rt, id: "2" }
  - press: [prev_rt]
assertions:
  - { type: selected, resource: rt, id: "2" }
  - { type: selected, resource: rt, id: "1" }
`)
	result, err := Run(scenario)
	require.NoError(t, err)

	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "selected 0000000000000002")
}

func TestAssertJournal_CountsByType(t *testing.T) {
	scenario := mustParse(t, `
name: journal
description: Creates and releases are journaled separately
steps:
  - create: { as: A, kind: vs, id: "1" }
  - create: { as: B, kind: ps, id: "2" }
  - release: A
assertions:
  - { type: journal_count, event: create, count: 2 }
  - { type: journal_count, event: release, count: 1 }
  - { type: journal_count, event: promote, count: 0 }
  - { type: live_programs, count: 1 }
`)
	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
}
