package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/shaderhunt/internal/compiler"
	"github.com/roach88/shaderhunt/internal/ir"
)

// FixOptions holds flags for the fix command.
type FixOptions struct {
	*RootOptions
	Kind   string
	Output string // write the rewritten text here instead of stdout
}

// FixResult holds the fix command output.
type FixResult struct {
	File    string   `json:"file"`
	Kind    string   `json:"kind"`
	Applied []string `json:"applied"`
	Text    string   `json:"text,omitempty"`
	Output  string   `json:"output,omitempty"`
}

// NewFixCommand creates the fix command.
func NewFixCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FixOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "fix <rules-dir> <decompiled-file>",
		Short: "Apply auto-fix rules to decompiled program text",
		Long: `Run the fix rules in a directory over a decompiled program, exactly as
the engine's auto-patch stage would, and print the rewritten text.

Exit codes:
  0 - At least one rule changed the text
  1 - No rule matched
  2 - Command error (rules failed to load, file not found, etc.)

Examples:
  shaderhunt fix ./fixes 000000000000aabb-ps_replace.txt --kind ps
  shaderhunt fix ./fixes dump.hlsl --kind vs -o patched.hlsl
  shaderhunt fix ./fixes dump.hlsl --kind vs --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFix(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Kind, "kind", "", "program kind (vs|ps|gs|hs|ds|cs) (required)")
	_ = cmd.MarkFlagRequired("kind")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write rewritten text to file")

	return cmd
}

func runFix(opts *FixOptions, rulesDir, file string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	kind, err := ir.ParseProgramKind(opts.Kind)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --kind", err)
	}
	if _, err := os.Stat(rulesDir); err != nil {
		_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("rules directory not found: %s", rulesDir), nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("rules directory not found: %s", rulesDir))
	}

	rules, err := compiler.LoadFixRules(rulesDir)
	if err != nil {
		_ = formatter.Error(ErrCodeRules, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load fix rules", err)
	}
	fixer, err := compiler.NewFixer(rules)
	if err != nil {
		_ = formatter.Error(ErrCodeRules, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load fix rules", err)
	}
	formatter.VerboseLog("Loaded %d fix rule(s) from %s", fixer.Len(), rulesDir)

	data, err := os.ReadFile(file)
	if err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("failed to read %s", file), err)
	}

	text, applied := fixer.Apply(string(data), kind)
	result := FixResult{File: file, Kind: kind.String(), Applied: applied}
	if result.Applied == nil {
		result.Applied = []string{}
	}
	for _, name := range applied {
		formatter.VerboseLog("Applied %s", name)
	}

	if len(applied) == 0 {
		_ = formatter.Error(ErrCodeNoMatch, fmt.Sprintf("no fix rule matched %s", file), nil)
		return NewExitError(ExitFailure, "no fix rule matched")
	}

	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, []byte(text), 0o644); err != nil {
			_ = formatter.Error(ErrCodeWriteFailed, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to write output", err)
		}
		result.Output = opts.Output
	} else {
		result.Text = text
	}

	if opts.Format == "json" {
		return formatter.Success(result)
	}

	w := cmd.OutOrStdout()
	if opts.Output != "" {
		fmt.Fprintf(w, "✓ %d rule(s) applied, wrote %s\n", len(applied), opts.Output)
		return nil
	}
	fmt.Fprint(w, text)
	return nil
}
