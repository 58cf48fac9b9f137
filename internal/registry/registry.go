// Package registry tracks every program the host created through the
// intercept, keyed by the handle the host received.
//
// The host owns all handles. The registry keeps a non-owning reference to
// the live handle and the duty to release any replacement it installed. The
// host allocator recycles handle values, so Register always purges an
// existing entry for the same handle before installing the new one.
//
// Thread-safety: all methods are safe for concurrent use. A single mutex
// guards the map; Releaser calls and logging happen after it is dropped.
package registry

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/roach88/shaderhunt/internal/ir"
)

// Releaser releases host objects this package created.
type Releaser interface {
	ReleaseProgram(h ir.Handle) error
}

// Linkage is an external reference-counted object attached to a program
// at creation (class linkage on some APIs). The registry drops its reference
// on purge.
type Linkage interface {
	Release()
}

// Record is the bookkeeping for one live program.
type Record struct {
	Fingerprint ir.Fingerprint
	Kind        ir.ProgramKind
	Provenance  ir.Provenance

	// SourceTime is the modification time of the artifact the replacement
	// came from. Zero when there is none or when edits must always be retried.
	SourceTime time.Time

	// Original is the retained original bytecode, owned by the registry.
	Original []byte

	// Live is the handle the host received. Not owned.
	Live ir.Handle

	// Replacement is the program substituted at bind time. Owned: released
	// when superseded or purged. Zero when none is installed.
	Replacement ir.Handle

	Linkage Linkage

	// Header is the first line of the replacement source, if any.
	Header string

	// Generation is assigned by Register and changes whenever the handle is
	// registered again. Callers that look a record up, work unlocked and then
	// write back pass it to UpdateReplacement.
	Generation uint64
}

// Registry is the handle-keyed program table.
type Registry struct {
	mu       sync.Mutex
	records  map[ir.Handle]*Record
	gen      uint64
	releaser Releaser
	logger   *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// New creates an empty registry. releaser may be nil when no replacement
// will ever be installed (tests).
func New(releaser Releaser, opts ...Option) *Registry {
	r := &Registry{
		records:  make(map[ir.Handle]*Record),
		releaser: releaser,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register installs rec under rec.Live. An existing entry for the same
// handle is a recycled handle from an unrelated object: it is purged, with
// its release side effects, before the new entry goes in.
//
// The registry takes ownership of rec.Original and rec.Replacement.
func (r *Registry) Register(rec Record) {
	stored := rec
	r.mu.Lock()
	r.gen++
	stored.Generation = r.gen
	prev := r.records[rec.Live]
	r.records[rec.Live] = &stored
	r.mu.Unlock()

	if prev != nil {
		r.logger.Info("handle reused, purging previous entry",
			"handle", uint64(rec.Live),
			"old_fingerprint", prev.Fingerprint.String(),
			"new_fingerprint", rec.Fingerprint.String())
		r.release(prev)
	}
}

// Purge removes the entry for h, releasing its replacement, retained
// bytecode and linkage. Purging an unknown handle is a no-op. Returns true
// if an entry was removed.
func (r *Registry) Purge(h ir.Handle) bool {
	r.mu.Lock()
	rec := r.records[h]
	delete(r.records, h)
	r.mu.Unlock()

	if rec == nil {
		return false
	}
	r.release(rec)
	return true
}

// UpdateReplacement installs replacement for h and then releases the one it
// supersedes. The swap happens under the lock, so a concurrent Replacement
// call observes either the old or the new handle, never none. Release
// failures are logged, not returned.
//
// gen is the Generation of the record the replacement was built for. Returns
// false if h is no longer registered under that generation (released, or
// recycled for another program); replacement is then released immediately
// since nothing owns it.
func (r *Registry) UpdateReplacement(h ir.Handle, gen uint64, replacement ir.Handle, prov ir.Provenance, sourceTime time.Time, header string) bool {
	r.mu.Lock()
	rec := r.records[h]
	current := rec != nil && rec.Generation == gen
	var old ir.Handle
	if current {
		old = rec.Replacement
		rec.Replacement = replacement
		rec.Provenance = prov
		rec.SourceTime = sourceTime
		rec.Header = header
	}
	r.mu.Unlock()

	if !current {
		if rec == nil {
			r.logger.Warn("replacement for unknown handle released", "handle", uint64(h))
		} else {
			r.logger.Warn("handle recycled before replacement installed, released",
				"handle", uint64(h),
				"fingerprint", rec.Fingerprint.String())
		}
		r.releaseHandle(replacement)
		return false
	}
	if old.Valid() && old != replacement {
		r.releaseHandle(old)
	}
	return true
}

// Replacement returns the replacement installed for h.
func (r *Registry) Replacement(h ir.Handle) (ir.Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.records[h]
	if rec == nil || !rec.Replacement.Valid() {
		return 0, false
	}
	return rec.Replacement, true
}

// Get returns a copy of the record for h. The copy shares Original; callers
// must not modify it.
func (r *Registry) Get(h ir.Handle) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.records[h]
	if rec == nil {
		return Record{}, false
	}
	return *rec, true
}

// LookupByFingerprint returns, sorted, every handle whose program has fp.
// The registry is keyed by handle because the intercept only knows the
// handle, so this is a linear scan. Several unrelated handles may share a
// fingerprint.
func (r *Registry) LookupByFingerprint(fp ir.Fingerprint) []ir.Handle {
	r.mu.Lock()
	var handles []ir.Handle
	for h, rec := range r.records {
		if rec.Fingerprint == fp {
			handles = append(handles, h)
		}
	}
	r.mu.Unlock()
	sort.Slice(handles, func(i, j int) bool { return handles[i] < handles[j] })
	return handles
}

// Len returns the number of registered handles.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// Replaced returns the number of entries with an installed replacement.
func (r *Registry) Replaced() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, rec := range r.records {
		if rec.Replacement.Valid() {
			n++
		}
	}
	return n
}

// Snapshot returns copies of all records sorted by live handle.
func (r *Registry) Snapshot() []Record {
	r.mu.Lock()
	out := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, *rec)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Live < out[j].Live })
	return out
}

// Close purges every entry. Used at detach.
func (r *Registry) Close() {
	r.mu.Lock()
	recs := r.records
	r.records = make(map[ir.Handle]*Record)
	r.mu.Unlock()

	for _, rec := range recs {
		r.release(rec)
	}
}

// release frees everything a removed record owns. Called without the lock.
func (r *Registry) release(rec *Record) {
	r.releaseHandle(rec.Replacement)
	rec.Replacement = 0
	if rec.Linkage != nil {
		rec.Linkage.Release()
		rec.Linkage = nil
	}
	rec.Original = nil
}

func (r *Registry) releaseHandle(h ir.Handle) {
	if !h.Valid() || r.releaser == nil {
		return
	}
	if err := r.releaser.ReleaseProgram(h); err != nil {
		r.logger.Warn("release replacement failed", "handle", uint64(h), "error", err)
	}
}
