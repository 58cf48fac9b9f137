package compiler

import (
	"fmt"
	"regexp"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/shaderhunt/internal/ir"
)

// CompileFixRule parses a CUE value into a FixRule.
// Uses the CUE Go API directly.
//
// The value should be the rule struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`fix: halo: { match: "a", replace: "b" }`)
//	rule, err := CompileFixRule(v.LookupPath(cue.ParsePath("fix.halo")))
func CompileFixRule(v cue.Value) (*ir.FixRule, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	rule := &ir.FixRule{}

	labels := v.Path().Selectors()
	if len(labels) > 0 {
		rule.Name = unquoteLabel(labels[len(labels)-1])
	}

	// match (required, must be a valid regular expression)
	matchVal := v.LookupPath(cue.ParsePath("match"))
	if !matchVal.Exists() {
		return nil, &CompileError{Field: "match", Message: "match is required", Pos: v.Pos()}
	}
	match, err := matchVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	if match == "" {
		return nil, &CompileError{Field: "match", Message: "match must not be empty", Pos: matchVal.Pos()}
	}
	if _, err := regexp.Compile(match); err != nil {
		return nil, &CompileError{Field: "match", Message: fmt.Sprintf("invalid regular expression: %v", err), Pos: matchVal.Pos()}
	}
	rule.Match = match

	// replace (required, may be empty to delete matches)
	replaceVal := v.LookupPath(cue.ParsePath("replace"))
	if !replaceVal.Exists() {
		return nil, &CompileError{Field: "replace", Message: "replace is required", Pos: v.Pos()}
	}
	if rule.Replace, err = replaceVal.String(); err != nil {
		return nil, formatCUEError(err)
	}

	if descVal := v.LookupPath(cue.ParsePath("description")); descVal.Exists() {
		if rule.Description, err = descVal.String(); err != nil {
			return nil, formatCUEError(err)
		}
	}

	if onceVal := v.LookupPath(cue.ParsePath("once")); onceVal.Exists() {
		if rule.Once, err = onceVal.Bool(); err != nil {
			return nil, formatCUEError(err)
		}
	}

	if kindsVal := v.LookupPath(cue.ParsePath("kinds")); kindsVal.Exists() {
		rule.Kinds, err = parseKinds(kindsVal)
		if err != nil {
			return nil, err
		}
	}

	return rule, nil
}

// CompileFixRules compiles every rule under the top-level "fix" struct of v,
// in declaration order. A value without "fix" yields no rules.
func CompileFixRules(v cue.Value) ([]ir.FixRule, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	fixVal := v.LookupPath(cue.ParsePath("fix"))
	if !fixVal.Exists() {
		return nil, nil
	}
	iter, err := fixVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var rules []ir.FixRule
	for iter.Next() {
		rule, err := CompileFixRule(iter.Value())
		if err != nil {
			return nil, err
		}
		rules = append(rules, *rule)
	}
	return rules, nil
}

func parseKinds(v cue.Value) ([]ir.ProgramKind, error) {
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var kinds []ir.ProgramKind
	for iter.Next() {
		name, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		kind, err := ir.ParseProgramKind(name)
		if err != nil {
			return nil, &CompileError{Field: "kinds", Message: err.Error(), Pos: iter.Value().Pos()}
		}
		kinds = append(kinds, kind)
	}
	return kinds, nil
}

// unquoteLabel strips the quotes CUE keeps on labels like "halo-fix".
func unquoteLabel(sel cue.Selector) string {
	s := sel.String()
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// CompileError is a rule compilation failure with its CUE position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
