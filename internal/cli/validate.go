package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/shaderhunt/internal/compiler"
	"github.com/roach88/shaderhunt/internal/config"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Rules string // rules dir to check instead of the config's
	Print bool   // print the effective config
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Config   string   `json:"config,omitempty"`
	RulesDir string   `json:"rules_dir,omitempty"`
	Rules    []string `json:"rules,omitempty"`
	Errors   []string `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate [config-file]",
		Short: "Check an engine config and its fix rules",
		Long: `Load an engine config file and the fix rules it points at, reporting
every problem found. Without a config file the defaults are checked, so
--rules alone validates a rules directory.

Exit codes:
  0 - Config and rules are valid
  1 - Validation failed

Examples:
  shaderhunt validate shaderhunt.yaml
  shaderhunt validate --rules ./fixes
  shaderhunt validate shaderhunt.yaml --print`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return runValidate(opts, path, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Rules, "rules", "", "fix rules directory (overrides the config's)")
	cmd.Flags().BoolVar(&opts.Print, "print", false, "print the effective config as YAML")

	return cmd
}

func runValidate(opts *ValidateOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	result := ValidationResult{Config: path}
	cfg := config.Default()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			return outputValidation(formatter, ErrCodeConfig, result)
		}
		cfg = loaded
	}
	formatter.VerboseLog("Config: overrides=%s cache=%s hash=%s", cfg.OverridesDir, cfg.Cache(), cfg.HashStrategy)

	rulesDir := cfg.AutoPatch.RulesDir
	if opts.Rules != "" {
		rulesDir = opts.Rules
	}
	result.RulesDir = rulesDir

	rules, err := compiler.LoadFixRules(rulesDir)
	if err == nil {
		_, err = compiler.NewFixer(rules)
	}
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		return outputValidation(formatter, ErrCodeRules, result)
	}
	for _, r := range rules {
		result.Rules = append(result.Rules, r.Name)
		formatter.VerboseLog("Rule %s: %s", r.Name, r.Match)
	}

	result.Valid = true
	if err := outputValidation(formatter, "", result); err != nil {
		return err
	}
	if opts.Print && opts.Format != "json" {
		data, err := cfg.Marshal()
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to encode config", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\n%s", data)
	}
	return nil
}

func outputValidation(f *OutputFormatter, code string, result ValidationResult) error {
	if f.Format == "json" {
		response := CLIResponse{Status: "ok", Data: result}
		if !result.Valid {
			response.Status = "error"
			response.Error = &CLIError{Code: code, Message: "validation failed", Details: result.Errors}
		}
		encoder := json.NewEncoder(f.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}
	} else if result.Valid {
		fmt.Fprintf(f.Writer, "✓ Valid (%d fix rule(s) in %s)\n", len(result.Rules), result.RulesDir)
	} else {
		fmt.Fprintf(f.Writer, "✗ Validation failed [%s]\n", code)
		for _, e := range result.Errors {
			fmt.Fprintf(f.Writer, "  %s\n", e)
		}
	}

	if !result.Valid {
		return NewExitError(ExitFailure, "validation failed")
	}
	return nil
}
