package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/shaderhunt/internal/artifact"
	"github.com/roach88/shaderhunt/internal/compiler"
	"github.com/roach88/shaderhunt/internal/config"
	"github.com/roach88/shaderhunt/internal/hunting"
	"github.com/roach88/shaderhunt/internal/ir"
	"github.com/roach88/shaderhunt/internal/registry"
	"github.com/roach88/shaderhunt/internal/store"
)

// Journal records what the engine did during a session.
// Implemented by *store.Store.
type Journal interface {
	BeginSession(ctx context.Context, sess ir.Session) error
	EndSession(ctx context.Context, id string, at time.Time) error
	AppendEvent(ctx context.Context, ev ir.JournalEvent) error
	PutOriginal(ctx context.Context, fp ir.Fingerprint, kind ir.ProgramKind, bytecode []byte) error
}

// Engine is the per-device context object. It is created at attach time and
// closed at detach; everything else hangs off it.
//
// Thread-safety model:
//   - CreateProgram, ReleaseProgram, Bind, Observe, Enqueue: safe from any
//     goroutine; the host may create programs on several threads at once
//   - Tick: must be called from exactly one goroutine (the frame thread)
//   - Start, Close: once each, from the attaching goroutine
//
// No failure inside the engine crosses the creation intercept: every fault
// degrades to the original program. Only the device's own failure to create
// the original is returned.
type Engine struct {
	cfg       config.Config
	device    Device
	toolchain compiler.Toolchain
	hasher    *ir.Hasher
	store     *artifact.Store
	registry  *registry.Registry
	resolver  *Resolver
	reloader  *ReloadDriver
	promoter  *Promoter
	fixer     *compiler.Fixer

	tracker    *hunting.Tracker
	dispatcher *hunting.Dispatcher
	queue      *inputQueue
	watcher    *artifact.Watcher
	ownWatcher bool

	journal    Journal
	ownJournal io.Closer
	sessionID  string
	sessionGen SessionIDGenerator
	clock      *Clock
	now        func() time.Time

	logger  *slog.Logger
	metrics *Metrics
	promReg prometheus.Registerer

	showOriginal atomic.Bool

	tuneMu sync.Mutex
	tune   []float64

	closeOnce sync.Once
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics registers the engine's collectors with reg.
// Default: collectors are created but not registered.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(e *Engine) { e.promReg = reg }
}

// WithJournal records the session into j instead of opening cfg.Journal.Path.
// The engine does not close j.
func WithJournal(j Journal) Option {
	return func(e *Engine) { e.journal = j }
}

// WithClock replaces time.Now for journal timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithFixer uses f for auto-patching instead of loading the rules dir.
func WithFixer(f *compiler.Fixer) Option {
	return func(e *Engine) { e.fixer = f }
}

// WithSessionIDGenerator replaces the UUIDv7 session id generator.
func WithSessionIDGenerator(g SessionIDGenerator) Option {
	return func(e *Engine) { e.sessionGen = g }
}

// WithWatcher uses w for change notifications instead of creating one from
// the watch config. The engine drains it but does not close it.
func WithWatcher(w *artifact.Watcher) Option {
	return func(e *Engine) { e.watcher = w }
}

// New creates an Engine for one host device. cfg must be valid.
//
// Auto-patch rules are loaded from cfg.AutoPatch.RulesDir unless WithFixer
// is given. A rules dir that does not exist means no rules.
func New(cfg config.Config, dev Device, tc compiler.Toolchain, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	targets, err := cfg.Targets()
	if err != nil {
		return nil, err
	}
	bindings, err := cfg.DispatcherBindings()
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:        cfg,
		device:     dev,
		toolchain:  tc,
		hasher:     ir.NewHasher(cfg.Strategy()),
		store:      artifact.NewStore(cfg.OverridesDir, cfg.Cache()),
		tracker:    hunting.NewTracker(cfg.Hunting.IdleTimeout),
		dispatcher: hunting.NewDispatcher(bindings...),
		queue:      newInputQueue(),
		sessionGen: UUIDv7Generator{},
		clock:      NewClock(),
		now:        time.Now,
		logger:     slog.Default(),
		tune:       make([]float64, cfg.Tune.Count),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.metrics = newMetrics(e.promReg)

	resolverOpts := []ResolverOption{
		WithForcedTargets(targets),
		WithResolverLogger(e.logger),
		withResolverMetrics(e.metrics),
	}
	if cfg.AutoPatch.Enabled {
		if e.fixer == nil {
			rules, err := compiler.LoadFixRules(cfg.AutoPatch.RulesDir)
			if err != nil {
				return nil, fmt.Errorf("load fix rules: %w", err)
			}
			fixer, err := compiler.NewFixer(rules)
			if err != nil {
				return nil, fmt.Errorf("load fix rules: %w", err)
			}
			e.fixer = fixer
		}
		resolverOpts = append(resolverOpts, WithAutoPatch(e.fixer, cfg.AutoPatch.Persist))
	}

	e.registry = registry.New(dev, registry.WithLogger(e.logger))
	e.resolver = NewResolver(e.store, tc, resolverOpts...)
	e.reloader = NewReloadDriver(e.store, e.resolver, e.registry, dev, e.logger)
	e.reloader.onResult = e.journalReload
	e.promoter = NewPromoter(e.store, e.registry, tc, e.reloader, e.logger)

	if e.watcher == nil && cfg.Watch.Enabled {
		w, err := artifact.NewWatcher(e.store,
			artifact.WithSettleWindow(cfg.Watch.SettleWindow),
			artifact.WithWatcherLogger(e.logger))
		if err != nil {
			return nil, fmt.Errorf("create watcher: %w", err)
		}
		e.watcher = w
		e.ownWatcher = true
	}

	if e.journal == nil && cfg.Journal.Path != "" {
		js, err := store.Open(cfg.Journal.Path)
		if err != nil {
			if e.ownWatcher {
				_ = e.watcher.Close()
			}
			return nil, fmt.Errorf("open journal: %w", err)
		}
		e.journal = js
		e.ownJournal = js
	}
	return e, nil
}

// Start begins the journal session and the override watcher.
func (e *Engine) Start(ctx context.Context) error {
	if e.journal != nil {
		e.sessionID = e.sessionGen.Generate()
		sess := ir.Session{
			ID:            e.sessionID,
			StartedAt:     e.now(),
			EngineVersion: ir.EngineVersion,
			HashStrategy:  e.hasher.Strategy().String(),
			OverridesDir:  e.store.Dir(artifact.RootOverrides),
			CacheDir:      e.store.Dir(artifact.RootCache),
		}
		if err := e.journal.BeginSession(ctx, sess); err != nil {
			return fmt.Errorf("begin journal session: %w", err)
		}
	}
	if e.ownWatcher {
		if err := e.watcher.Start(ctx); err != nil {
			return fmt.Errorf("start watcher: %w", err)
		}
	}
	e.logger.Info("engine attached",
		"overrides", e.store.Dir(artifact.RootOverrides),
		"cache", e.store.Dir(artifact.RootCache),
		"hash", e.hasher.Strategy().String(),
		"hunting", e.cfg.Hunting.Enabled,
		"session", e.sessionID)
	return nil
}

// Close releases every replacement the engine installed, stops the watcher
// and ends the journal session. Safe to call more than once.
func (e *Engine) Close() error {
	var errs []error
	e.closeOnce.Do(func() {
		e.queue.Close()
		e.registry.Close()
		e.metrics.liveReplacements.Set(0)
		if e.ownWatcher {
			if err := e.watcher.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close watcher: %w", err))
			}
		}
		if e.journal != nil && e.sessionID != "" {
			if err := e.journal.EndSession(context.Background(), e.sessionID, e.now()); err != nil {
				errs = append(errs, fmt.Errorf("end journal session: %w", err))
			}
		}
		if e.ownJournal != nil {
			if err := e.ownJournal.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close journal: %w", err))
			}
		}
		e.logger.Info("engine detached", "session", e.sessionID)
	})
	return errors.Join(errs...)
}

// CreateProgram is the creation intercept. It hashes bytecode, resolves a
// replacement, creates the original (whose handle the host receives) and
// the replacement, and registers both.
//
// linkage may be nil.
func (e *Engine) CreateProgram(ctx context.Context, kind ir.ProgramKind, bytecode []byte, linkage registry.Linkage) (ir.Handle, error) {
	fp := e.hasher.Hash(bytecode)
	key := ir.Key(fp, kind)

	res, rerr := e.resolver.Resolve(ctx, fp, kind, bytecode)
	if rerr != nil {
		e.logger.Error("replacement failed, using original",
			"fingerprint", fp.String(),
			"kind", kind.String(),
			"error", rerr,
			"diagnostics", compiler.Diagnostics(rerr))
	}

	live, err := e.device.CreateProgram(kind, bytecode)
	if err != nil {
		return 0, err
	}

	rec := registry.Record{
		Fingerprint: fp,
		Kind:        kind,
		Live:        live,
		Linkage:     linkage,
	}
	if e.cfg.RetainsOriginals() {
		rec.Original = bytes.Clone(bytecode)
	}
	if res != nil {
		replacement, err := e.device.CreateProgram(kind, res.Bytecode)
		if err != nil {
			rerr = newCreateError(key, res.Path, err)
			e.metrics.resolveErrors.WithLabelValues(string(ErrCodeCreateFailed)).Inc()
			e.logger.Error("replacement rejected by device, using original",
				"fingerprint", fp.String(),
				"kind", kind.String(),
				"error", err)
		} else {
			rec.Replacement = replacement
			rec.Provenance = res.Provenance
			rec.SourceTime = res.SourceTime
			rec.Header = res.Header
		}
	}
	e.registry.Register(rec)
	e.metrics.createsTotal.WithLabelValues(rec.Provenance.String()).Inc()
	e.metrics.liveReplacements.Set(float64(e.registry.Replaced()))

	if rec.Replacement.Valid() {
		e.logger.Info("replaced program",
			"handle", uint64(live),
			"fingerprint", fp.String(),
			"kind", kind.String(),
			"provenance", rec.Provenance.String(),
			"header", rec.Header)
	}

	if e.cfg.Hunting.Enabled {
		e.tracker.Observe(hunting.ResourceForKind(kind), hunting.ID(fp))
	}
	e.export(ctx, key, bytecode)
	e.journalCreate(ctx, rec, res, rerr)
	return live, nil
}

// ReleaseProgram forgets a program the host released, along with its
// replacement.
func (e *Engine) ReleaseProgram(ctx context.Context, h ir.Handle) {
	rec, ok := e.registry.Get(h)
	if !e.registry.Purge(h) {
		return
	}
	e.metrics.liveReplacements.Set(float64(e.registry.Replaced()))
	if ok {
		e.appendEvent(ctx, ir.JournalEvent{
			Type:        ir.EventRelease,
			Handle:      h,
			Fingerprint: rec.Fingerprint,
			Kind:        rec.Kind,
			Provenance:  rec.Provenance,
			OK:          true,
		})
	}
}

// Bind returns the program to bind in place of h: its replacement, or h
// itself when there is none or the operator is showing originals. While
// hunting, bound programs are observed so the operator can cycle through
// what is actually drawn.
func (e *Engine) Bind(h ir.Handle) ir.Handle {
	if e.cfg.Hunting.Enabled {
		if rec, ok := e.registry.Get(h); ok {
			e.tracker.Observe(hunting.ResourceForKind(rec.Kind), hunting.ID(rec.Fingerprint))
		}
	}
	if e.showOriginal.Load() {
		return h
	}
	if rep, ok := e.registry.Replacement(h); ok {
		return rep
	}
	return h
}

// Observe records a non-program id (index buffer, render target) seen
// while drawing. Ignored unless hunting is enabled.
func (e *Engine) Observe(r hunting.Resource, id hunting.ID) {
	if !e.cfg.Hunting.Enabled {
		return
	}
	e.tracker.Observe(r, id)
}

// Enqueue queues an operator input event for the next Tick. Safe from the
// host's input thread.
func (e *Engine) Enqueue(ev hunting.Event) bool {
	return e.queue.Enqueue(ev)
}

// Selected returns the operator's current selection for r.
func (e *Engine) Selected(r hunting.Resource) (hunting.ID, bool) {
	return e.tracker.Set(r).Selected()
}

// ShowOriginal reports whether Bind currently returns originals.
func (e *Engine) ShowOriginal() bool {
	return e.showOriginal.Load()
}

// Tune returns a copy of the tune values.
func (e *Engine) Tune() []float64 {
	e.tuneMu.Lock()
	defer e.tuneMu.Unlock()
	return append([]float64(nil), e.tune...)
}

// SetTune sets tune value i. Out of range indices are ignored.
func (e *Engine) SetTune(i int, v float64) {
	e.tuneMu.Lock()
	defer e.tuneMu.Unlock()
	if i >= 0 && i < len(e.tune) {
		e.tune[i] = v
	}
}

// Registry exposes the program table, for inspection.
func (e *Engine) Registry() *registry.Registry {
	return e.registry
}

// Reloader returns the reload driver.
func (e *Engine) Reloader() *ReloadDriver {
	return e.reloader
}

// Promoter returns the promotion controller.
func (e *Engine) Promoter() *Promoter {
	return e.promoter
}

// export writes the configured diagnostic copies of an original into the
// cache dir. Existing exports are left alone.
func (e *Engine) export(ctx context.Context, key ir.ArtifactKey, bytecode []byte) {
	if e.cfg.Export.OriginalBinary && !e.store.Exists(artifact.RootCache, key, ir.RoleOriginal) {
		if _, err := e.store.Write(artifact.RootCache, key, ir.RoleOriginal, bytecode); err != nil {
			e.logger.Warn("export original failed", "key", key.String(), "error", err)
		}
	}
	if e.cfg.Export.Disassembly && !e.store.Exists(artifact.RootCache, key, ir.RoleDisassembly) {
		asm, err := e.toolchain.Disassemble(ctx, bytecode)
		if err != nil {
			e.logger.Warn("export disassembly failed", "key", key.String(), "error", err)
			return
		}
		if _, err := e.store.Write(artifact.RootCache, key, ir.RoleDisassembly, []byte(asm)); err != nil {
			e.logger.Warn("export disassembly failed", "key", key.String(), "error", err)
		}
	}
}

func (e *Engine) journalCreate(ctx context.Context, rec registry.Record, res *Resolution, rerr error) {
	if e.journal == nil {
		return
	}
	ev := ir.JournalEvent{
		Type:        ir.EventCreate,
		Handle:      rec.Live,
		Fingerprint: rec.Fingerprint,
		Kind:        rec.Kind,
		Provenance:  rec.Provenance,
		OK:          rerr == nil,
	}
	switch {
	case rerr != nil:
		ev.Detail = compiler.Diagnostics(rerr)
	case res != nil && len(res.Applied) > 0:
		ev.Detail = fmt.Sprintf("rules: %v", res.Applied)
	case res != nil:
		ev.Detail = res.Path
	}
	e.appendEvent(ctx, ev)

	if len(rec.Original) > 0 {
		if err := e.journal.PutOriginal(ctx, rec.Fingerprint, rec.Kind, rec.Original); err != nil {
			e.logger.Warn("journal original failed", "fingerprint", rec.Fingerprint.String(), "error", err)
		}
	}
}

func (e *Engine) journalReload(ctx context.Context, res ReloadResult) {
	ev := ir.JournalEvent{
		Type:        ir.EventReload,
		Handle:      res.Handle,
		Fingerprint: res.Key.Fingerprint,
		Kind:        res.Key.Kind,
		Provenance:  res.Provenance,
		OK:          res.Err == nil,
		Detail:      res.Path,
	}
	if res.Err != nil {
		ev.Detail = compiler.Diagnostics(res.Err)
	}
	e.appendEvent(ctx, ev)
}

// appendEvent stamps ev and writes it to the journal. Journal failures are
// logged, never returned.
func (e *Engine) appendEvent(ctx context.Context, ev ir.JournalEvent) {
	if e.journal == nil || e.sessionID == "" {
		return
	}
	ev.SessionID = e.sessionID
	ev.Seq = e.clock.Next()
	ev.At = e.now()
	if err := e.journal.AppendEvent(ctx, ev); err != nil {
		e.logger.Warn("journal append failed", "type", string(ev.Type), "seq", ev.Seq, "error", err)
	}
}
