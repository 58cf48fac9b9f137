package compiler

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/shaderhunt/internal/ir"
)

// LoadFixRules compiles every .cue file in dir (non-recursive) in filename
// order and returns their rules concatenated. Rule names must be unique
// across files. A missing directory yields no rules.
func LoadFixRules(dir string) ([]ir.FixRule, error) {
	files, err := FindCUEFiles(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}

	ctx := cuecontext.New()
	seen := make(map[string]string)
	var rules []ir.FixRule
	for _, path := range files {
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		v := ctx.CompileBytes(src, cue.Filename(path))
		fileRules, err := CompileFixRules(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		for _, r := range fileRules {
			if prev, dup := seen[r.Name]; dup {
				return nil, fmt.Errorf("fix rule %q defined in both %s and %s", r.Name, prev, filepath.Base(path))
			}
			seen[r.Name] = filepath.Base(path)
			rules = append(rules, r)
		}
	}
	return rules, nil
}

// FindCUEFiles returns the .cue files directly inside dir, sorted.
func FindCUEFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".cue" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}
