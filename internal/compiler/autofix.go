package compiler

import (
	"fmt"
	"regexp"

	"github.com/roach88/shaderhunt/internal/ir"
)

// Fixer applies compiled fix rules to decompiled program text.
//
// Thread-safety: Fixer is immutable after construction and safe for
// concurrent use.
type Fixer struct {
	rules []compiledRule
}

type compiledRule struct {
	rule ir.FixRule
	re   *regexp.Regexp
}

// NewFixer compiles the rules' patterns. Rule order is preserved.
func NewFixer(rules []ir.FixRule) (*Fixer, error) {
	f := &Fixer{rules: make([]compiledRule, 0, len(rules))}
	for _, r := range rules {
		re, err := regexp.Compile(r.Match)
		if err != nil {
			return nil, fmt.Errorf("fix rule %q: %w", r.Name, err)
		}
		f.rules = append(f.rules, compiledRule{rule: r, re: re})
	}
	return f, nil
}

// Len returns the number of rules.
func (f *Fixer) Len() int {
	if f == nil {
		return 0
	}
	return len(f.rules)
}

// Apply runs every rule applicable to kind over text in order. It returns
// the rewritten text and the names of rules that changed something. An empty
// applied list means text is returned unchanged.
func (f *Fixer) Apply(text string, kind ir.ProgramKind) (string, []string) {
	if f == nil {
		return text, nil
	}
	var applied []string
	for _, cr := range f.rules {
		if !cr.rule.AppliesTo(kind) {
			continue
		}
		var out string
		if cr.rule.Once {
			out = replaceFirst(cr.re, text, cr.rule.Replace)
		} else {
			out = cr.re.ReplaceAllString(text, cr.rule.Replace)
		}
		if out != text {
			applied = append(applied, cr.rule.Name)
			text = out
		}
	}
	return text, applied
}

func replaceFirst(re *regexp.Regexp, text, template string) string {
	loc := re.FindStringSubmatchIndex(text)
	if loc == nil {
		return text
	}
	var dst []byte
	dst = re.ExpandString(dst, template, text, loc)
	return text[:loc[0]] + string(dst) + text[loc[1]:]
}
