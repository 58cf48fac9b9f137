package harness

import (
	"bytes"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/shaderhunt/internal/hunting"
	"github.com/roach88/shaderhunt/internal/ir"
)

// Assertion types.
const (
	AssertProvenance  = "provenance"
	AssertReplaced    = "replaced"
	AssertNotReplaced = "not_replaced"
	AssertSelected    = "selected"
	AssertFileExists  = "file_exists"
	AssertFileAbsent  = "file_absent"
	AssertJournal     = "journal_count"
	AssertLive        = "live_programs"
)

var assertionTypes = []string{
	AssertProvenance, AssertReplaced, AssertNotReplaced, AssertSelected,
	AssertFileExists, AssertFileAbsent, AssertJournal, AssertLive,
}

var fileDirs = []string{"", "overrides", "cache", "rules"}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or fails validation.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks required fields, step shapes and that every
// program label is created before it is used.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if s.Config.Kind != 0 && s.Config.Kind != yaml.MappingNode {
		return fmt.Errorf("config must be a mapping")
	}

	for i, f := range s.Files {
		if err := validateFile(f); err != nil {
			return fmt.Errorf("files[%d]: %w", i, err)
		}
	}

	labels := make(map[string]bool)
	use := func(i int, label string) error {
		if !labels[label] {
			return fmt.Errorf("steps[%d]: program %q is not created before use", i, label)
		}
		return nil
	}
	for i, step := range s.Steps {
		switch step.op() {
		case "":
			return fmt.Errorf("steps[%d]: exactly one action is required", i)
		case "create":
			c := step.Create
			if c.As == "" {
				return fmt.Errorf("steps[%d]: create.as is required", i)
			}
			if labels[c.As] {
				return fmt.Errorf("steps[%d]: program %q already created", i, c.As)
			}
			if _, err := ir.ParseProgramKind(c.Kind); err != nil {
				return fmt.Errorf("steps[%d]: %w", i, err)
			}
			if _, err := ir.ParseFingerprint(c.ID); err != nil {
				return fmt.Errorf("steps[%d]: %w", i, err)
			}
			labels[c.As] = true
		case "release":
			if err := use(i, step.Release); err != nil {
				return err
			}
		case "bind":
			if err := use(i, step.Bind); err != nil {
				return err
			}
		case "promote":
			if err := use(i, step.Promote); err != nil {
				return err
			}
		case "observe":
			if _, err := parseResource(step.Observe.Resource); err != nil {
				return fmt.Errorf("steps[%d]: %w", i, err)
			}
			if _, err := ir.ParseFingerprint(step.Observe.ID); err != nil {
				return fmt.Errorf("steps[%d]: %w", i, err)
			}
		case "write":
			if err := validateFile(*step.Write); err != nil {
				return fmt.Errorf("steps[%d]: %w", i, err)
			}
		case "advance":
			if step.Advance < 0 {
				return fmt.Errorf("steps[%d]: advance must not be negative", i)
			}
		case "press":
			for _, name := range step.Press {
				if _, err := hunting.ParseAction(name); err != nil {
					return fmt.Errorf("steps[%d]: %w", i, err)
				}
			}
		}
	}

	for i, a := range s.Assertions {
		if !slices.Contains(assertionTypes, a.Type) {
			return fmt.Errorf("assertions[%d]: unknown type %q", i, a.Type)
		}
		switch a.Type {
		case AssertProvenance, AssertReplaced, AssertNotReplaced:
			if !labels[a.Program] {
				return fmt.Errorf("assertions[%d]: unknown program %q", i, a.Program)
			}
			if a.Type == AssertProvenance {
				if _, err := ir.ParseProvenance(a.Provenance); err != nil {
					return fmt.Errorf("assertions[%d]: %w", i, err)
				}
			}
		case AssertSelected:
			if _, err := parseResource(a.Resource); err != nil {
				return fmt.Errorf("assertions[%d]: %w", i, err)
			}
			if _, err := ir.ParseFingerprint(a.ID); err != nil {
				return fmt.Errorf("assertions[%d]: %w", i, err)
			}
		case AssertFileExists, AssertFileAbsent:
			if a.File == "" || !slices.Contains(fileDirs, a.Dir) {
				return fmt.Errorf("assertions[%d]: file and a valid dir are required", i)
			}
		case AssertJournal:
			if a.Event == "" {
				return fmt.Errorf("assertions[%d]: event is required", i)
			}
		}
	}
	return nil
}

func validateFile(f File) error {
	if f.Name == "" {
		return fmt.Errorf("name is required")
	}
	if !slices.Contains(fileDirs, f.Dir) {
		return fmt.Errorf("unknown dir %q", f.Dir)
	}
	return nil
}

// parseResource parses a hunting resource name ("vs", "ib", ...).
func parseResource(s string) (hunting.Resource, error) {
	for r := hunting.ResourceVertex; r <= hunting.ResourceRenderTarget; r++ {
		if r.String() == s {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown resource %q", s)
}
