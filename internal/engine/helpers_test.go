package engine

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shaderhunt/internal/artifact"
	"github.com/roach88/shaderhunt/internal/compiler"
	"github.com/roach88/shaderhunt/internal/config"
	"github.com/roach88/shaderhunt/internal/ir"
	"github.com/roach88/shaderhunt/internal/registry"
	"github.com/roach88/shaderhunt/internal/testutil"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testConfig returns a config with separate temp overrides and cache dirs
// and header hashing, so test programs fingerprint to their chosen ids.
func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.OverridesDir = t.TempDir()
	cfg.CacheDir = t.TempDir()
	cfg.HashStrategy = ir.HashHeader.String()
	cfg.AutoPatch.RulesDir = t.TempDir()
	return cfg
}

type testEngine struct {
	*Engine
	dev  *testutil.Device
	tc   *testutil.Toolchain
	prom *prometheus.Registry
	cfg  config.Config
}

func newTestEngine(t *testing.T, cfg config.Config, opts ...Option) *testEngine {
	t.Helper()
	dev := testutil.NewDevice()
	tc := testutil.NewToolchain()
	prom := prometheus.NewRegistry()

	all := append([]Option{WithLogger(discardLogger()), WithMetrics(prom)}, opts...)
	e, err := New(cfg, dev, tc, all...)
	require.NoError(t, err)
	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(func() { e.Close() })
	return &testEngine{Engine: e, dev: dev, tc: tc, prom: prom, cfg: cfg}
}

// resolverEnv is a resolver with its own registry and reload/promotion
// pipeline, for tests below the Engine.
type resolverEnv struct {
	store    *artifact.Store
	dev      *testutil.Device
	tc       *testutil.Toolchain
	resolver *Resolver
	registry *registry.Registry
	reloader *ReloadDriver
	promoter *Promoter
	overDir  string
	cacheDir string
}

func newResolverEnv(t *testing.T, opts ...ResolverOption) *resolverEnv {
	t.Helper()
	overDir, cacheDir := t.TempDir(), t.TempDir()
	s := artifact.NewStore(overDir, cacheDir)
	dev := testutil.NewDevice()
	tc := testutil.NewToolchain()

	all := append([]ResolverOption{WithResolverLogger(discardLogger())}, opts...)
	res := NewResolver(s, tc, all...)
	reg := registry.New(dev, registry.WithLogger(discardLogger()))
	reloader := NewReloadDriver(s, res, reg, dev, discardLogger())
	return &resolverEnv{
		store:    s,
		dev:      dev,
		tc:       tc,
		resolver: res,
		registry: reg,
		reloader: reloader,
		promoter: NewPromoter(s, reg, tc, reloader, discardLogger()),
		overDir:  overDir,
		cacheDir: cacheDir,
	}
}

// register creates an original program on the device and registers it with
// its bytecode retained.
func (env *resolverEnv) register(t *testing.T, fp ir.Fingerprint, kind ir.ProgramKind, original string) ir.Handle {
	t.Helper()
	h, err := env.dev.CreateProgram(kind, []byte(original))
	require.NoError(t, err)
	env.registry.Register(registry.Record{
		Fingerprint: fp,
		Kind:        kind,
		Live:        h,
		Original:    []byte(original),
	})
	return h
}

func mustFixer(t *testing.T, rules ...ir.FixRule) *compiler.Fixer {
	t.Helper()
	f, err := compiler.NewFixer(rules)
	require.NoError(t, err)
	return f
}
