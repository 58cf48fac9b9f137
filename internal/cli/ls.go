package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/shaderhunt/internal/artifact"
	"github.com/roach88/shaderhunt/internal/config"
)

// ListOptions holds flags for the ls command.
type ListOptions struct {
	*RootOptions
	Config    string
	Overrides string
	Cache     string
	Root      string // "overrides", "cache" or empty for both
}

// ArtifactInfo is one listed artifact.
type ArtifactInfo struct {
	Root   string `json:"root"`
	Key    string `json:"key"`
	Role   string `json:"role"`
	Name   string `json:"name"`
	Size   int64  `json:"size"`
	Legacy bool   `json:"legacy,omitempty"`
}

// ListResult holds the ls command output.
type ListResult struct {
	OverridesDir string         `json:"overrides_dir"`
	CacheDir     string         `json:"cache_dir"`
	Artifacts    []ArtifactInfo `json:"artifacts"`
}

// NewListCommand creates the ls command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List artifacts in the overrides and cache directories",
		Long: `List every artifact the engine would recognize, with its key and role.

Directories come from --config, or from --overrides and --cache. When the
cache directory equals the overrides directory its files are listed once.

Examples:
  shaderhunt ls --config shaderhunt.yaml
  shaderhunt ls --overrides ShaderFixes --root overrides
  shaderhunt ls --overrides ShaderFixes --cache ShaderCache --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Config, "config", "", "engine config file")
	cmd.Flags().StringVar(&opts.Overrides, "overrides", "", "overrides directory")
	cmd.Flags().StringVar(&opts.Cache, "cache", "", "cache directory (defaults to overrides)")
	cmd.Flags().StringVar(&opts.Root, "root", "", "list only one root (overrides|cache)")

	return cmd
}

func runList(opts *ListOptions, cmd *cobra.Command) error {
	overrides, cache := opts.Overrides, opts.Cache
	if opts.Config != "" {
		cfg, err := config.Load(opts.Config)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load config", err)
		}
		overrides, cache = cfg.OverridesDir, cfg.Cache()
	}
	if overrides == "" {
		return NewExitError(ExitCommandError, "one of --config or --overrides is required")
	}
	if cache == "" {
		cache = overrides
	}

	var roots []artifact.Root
	switch opts.Root {
	case "":
		roots = []artifact.Root{artifact.RootOverrides}
		if cache != overrides {
			roots = append(roots, artifact.RootCache)
		}
	case "overrides":
		roots = []artifact.Root{artifact.RootOverrides}
	case "cache":
		roots = []artifact.Root{artifact.RootCache}
	default:
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid --root %q: must be overrides or cache", opts.Root))
	}

	s := artifact.NewStore(overrides, cache)
	result := ListResult{
		OverridesDir: overrides,
		CacheDir:     cache,
		Artifacts:    []ArtifactInfo{},
	}
	for _, root := range roots {
		entries, err := s.List(root)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to list %s", root), err)
		}
		for _, e := range entries {
			result.Artifacts = append(result.Artifacts, ArtifactInfo{
				Root:   root.String(),
				Key:    e.Key.String(),
				Role:   e.Role.String(),
				Name:   filepath.Base(e.Path),
				Size:   e.Size,
				Legacy: e.Legacy,
			})
		}
	}

	if opts.Format == "json" {
		return newFormatter(opts.RootOptions, cmd).Success(result)
	}

	w := cmd.OutOrStdout()
	if len(result.Artifacts) == 0 {
		fmt.Fprintln(w, "No artifacts found.")
		return nil
	}
	for _, a := range result.Artifacts {
		legacy := ""
		if a.Legacy {
			legacy = " (legacy name)"
		}
		fmt.Fprintf(w, "%-9s  %s  %-12s  %6d%s\n", a.Root, a.Key, a.Role, a.Size, legacy)
	}
	fmt.Fprintf(w, "\n%d artifact(s)\n", len(result.Artifacts))
	return nil
}
