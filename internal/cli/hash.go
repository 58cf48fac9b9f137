package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/shaderhunt/internal/ir"
)

// HashOptions holds flags for the hash command.
type HashOptions struct {
	*RootOptions
	Strategy string // empty means every strategy
}

// FileHash holds the fingerprints of one bytecode file.
type FileHash struct {
	Path         string            `json:"path"`
	Size         int               `json:"size"`
	Fingerprints map[string]string `json:"fingerprints"`
	Errors       map[string]string `json:"errors,omitempty"` // strategies that cannot read the file
}

// HashResult holds the hash command output.
type HashResult struct {
	Files []FileHash `json:"files"`
}

// NewHashCommand creates the hash command.
func NewHashCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HashOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "hash <bytecode-file>...",
		Short: "Fingerprint program bytecode",
		Long: `Compute the fingerprint the engine would assign to program bytecode.

Without --strategy every strategy is shown. The header and sections
strategies need a well-formed container; when they cannot read a file the
engine falls back to fnv, and this command reports why.

Examples:
  shaderhunt hash dump/vs_0001.bin
  shaderhunt hash --strategy sections dump/*.bin
  shaderhunt hash --format json dump/ps_0002.bin`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHash(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Strategy, "strategy", "", "hash strategy (fnv|header|sections)")

	return cmd
}

func runHash(opts *HashOptions, paths []string, cmd *cobra.Command) error {
	strategies := []ir.HashStrategy{ir.HashFNV, ir.HashHeader, ir.HashSections}
	if opts.Strategy != "" {
		s, err := ir.ParseHashStrategy(opts.Strategy)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --strategy", err)
		}
		strategies = []ir.HashStrategy{s}
	}

	result := HashResult{Files: make([]FileHash, 0, len(paths))}
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to read %s", path), err)
		}
		result.Files = append(result.Files, hashFile(path, data, strategies))
	}

	if opts.Format == "json" {
		return newFormatter(opts.RootOptions, cmd).Success(result)
	}

	w := cmd.OutOrStdout()
	for _, f := range result.Files {
		fmt.Fprintf(w, "%s (%d bytes)\n", f.Path, f.Size)
		for _, s := range strategies {
			name := s.String()
			if fp, ok := f.Fingerprints[name]; ok {
				fmt.Fprintf(w, "  %-9s %s\n", name, fp)
			} else {
				fmt.Fprintf(w, "  %-9s unavailable: %s\n", name, f.Errors[name])
			}
		}
	}
	return nil
}

func hashFile(path string, data []byte, strategies []ir.HashStrategy) FileHash {
	fh := FileHash{
		Path:         path,
		Size:         len(data),
		Fingerprints: make(map[string]string),
	}
	for _, s := range strategies {
		var (
			fp  ir.Fingerprint
			err error
		)
		switch s {
		case ir.HashHeader:
			fp, err = ir.HeaderFingerprint(data)
		case ir.HashSections:
			fp, err = ir.SectionsFingerprint(data)
		default:
			fp = ir.FNVFingerprint(data)
		}
		if err != nil {
			if fh.Errors == nil {
				fh.Errors = make(map[string]string)
			}
			fh.Errors[s.String()] = err.Error()
			continue
		}
		fh.Fingerprints[s.String()] = fp.String()
	}
	return fh
}
