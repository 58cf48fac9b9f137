package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/roach88/shaderhunt/internal/ir"
)

// ErrNotFound reports that an expected artifact is absent. Resolution treats
// it as "try the next stage".
var ErrNotFound = errors.New("artifact not found")

// Root selects one of the two artifact directories.
type Root int

const (
	RootOverrides Root = iota
	RootCache
)

func (r Root) String() string {
	switch r {
	case RootOverrides:
		return "overrides"
	case RootCache:
		return "cache"
	default:
		return fmt.Sprintf("root(%d)", int(r))
	}
}

// Entry describes one artifact file on disk.
type Entry struct {
	Root    Root
	Path    string
	Key     ir.ArtifactKey
	Role    ir.Role
	ModTime time.Time
	Size    int64
	Legacy  bool
}

// Store reads and writes artifacts under the overrides and cache roots.
//
// Thread-safety: Store holds no mutable state and is safe for concurrent use.
// Concurrent writers to the same artifact race; the last rename wins.
type Store struct {
	overridesDir string
	cacheDir     string
}

// NewStore creates a Store. cacheDir may equal overridesDir.
func NewStore(overridesDir, cacheDir string) *Store {
	return &Store{overridesDir: overridesDir, cacheDir: cacheDir}
}

// Dir returns the directory for root.
func (s *Store) Dir(root Root) string {
	if root == RootCache {
		return s.cacheDir
	}
	return s.overridesDir
}

// Path returns the canonical path of an artifact.
func (s *Store) Path(root Root, key ir.ArtifactKey, role ir.Role) string {
	return filepath.Join(s.Dir(root), key.Filename(role))
}

// Stat returns the artifact's entry or an error wrapping ErrNotFound.
func (s *Store) Stat(root Root, key ir.ArtifactKey, role ir.Role) (Entry, error) {
	path := s.Path(root, key, role)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Entry{}, fmt.Errorf("%s %s: %w", root, key.Filename(role), ErrNotFound)
		}
		return Entry{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return Entry{}, fmt.Errorf("%s is a directory: %w", path, ErrNotFound)
	}
	return Entry{
		Root:    root,
		Path:    path,
		Key:     key,
		Role:    role,
		ModTime: info.ModTime(),
		Size:    info.Size(),
	}, nil
}

// Exists reports whether the artifact is present.
func (s *Store) Exists(root Root, key ir.ArtifactKey, role ir.Role) bool {
	_, err := s.Stat(root, key, role)
	return err == nil
}

// ReadBinary reads an artifact's raw bytes together with its entry.
func (s *Store) ReadBinary(root Root, key ir.ArtifactKey, role ir.Role) ([]byte, Entry, error) {
	entry, err := s.Stat(root, key, role)
	if err != nil {
		return nil, Entry{}, err
	}
	data, err := os.ReadFile(entry.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, Entry{}, fmt.Errorf("%s: %w", entry.Path, ErrNotFound)
		}
		return nil, Entry{}, fmt.Errorf("read %s: %w", entry.Path, err)
	}
	return data, entry, nil
}

// ReadText reads a text artifact, decoding any byte-order mark.
func (s *Store) ReadText(root Root, key ir.ArtifactKey, role ir.Role) (Text, Entry, error) {
	data, entry, err := s.ReadBinary(root, key, role)
	if err != nil {
		return Text{}, Entry{}, err
	}
	text, err := DecodeText(data)
	if err != nil {
		return Text{}, Entry{}, fmt.Errorf("decode %s: %w", entry.Path, err)
	}
	return text, entry, nil
}

// ReadFile reads any artifact by path, for callers that already have an
// Entry from a scan.
func (s *Store) ReadFile(entry Entry) ([]byte, error) {
	data, err := os.ReadFile(entry.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", entry.Path, ErrNotFound)
		}
		return nil, fmt.Errorf("read %s: %w", entry.Path, err)
	}
	return data, nil
}

// Write stores data at the artifact's canonical path.
func (s *Store) Write(root Root, key ir.ArtifactKey, role ir.Role, data []byte) (Entry, error) {
	return s.WriteTagged(root, key, role, data, time.Time{})
}

// WriteTagged stores data and, when tag is non-zero, sets the file's
// modification time to tag. Compiled binaries are tagged with their source's
// mtime so the pair can be compared exactly later.
func (s *Store) WriteTagged(root Root, key ir.ArtifactKey, role ir.Role, data []byte, tag time.Time) (Entry, error) {
	path := s.Path(root, key, role)
	if err := writeFileAtomic(path, data, 0o644); err != nil {
		return Entry{}, err
	}
	if !tag.IsZero() {
		if err := os.Chtimes(path, tag, tag); err != nil {
			return Entry{}, fmt.Errorf("tag %s: %w", path, err)
		}
	}
	return s.Stat(root, key, role)
}

// Remove deletes an artifact. Removing an absent artifact is not an error.
func (s *Store) Remove(root Root, key ir.ArtifactKey, role ir.Role) error {
	err := os.Remove(s.Path(root, key, role))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", key.Filename(role), err)
	}
	return nil
}

// List returns every artifact in root whose name parses, sorted by filename.
// Files with other names are ignored. A missing root yields no entries.
func (s *Store) List(root Root) ([]Entry, error) {
	dir := s.Dir(root)
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	var entries []Entry
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		parsed, err := ir.ParseFilename(de.Name())
		if err != nil {
			continue
		}
		info, err := de.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		entries = append(entries, Entry{
			Root:    root,
			Path:    filepath.Join(dir, de.Name()),
			Key:     parsed.Key,
			Role:    parsed.Role,
			ModTime: info.ModTime(),
			Size:    info.Size(),
			Legacy:  parsed.Legacy,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Path < entries[j].Path
	})
	return entries, nil
}

// EntryForPath parses a path inside one of the roots into an Entry.
func (s *Store) EntryForPath(path string) (Entry, error) {
	parsed, err := ir.ParseFilename(filepath.Base(path))
	if err != nil {
		return Entry{}, err
	}
	root := RootOverrides
	if filepath.Clean(filepath.Dir(path)) == filepath.Clean(s.cacheDir) &&
		filepath.Clean(s.cacheDir) != filepath.Clean(s.overridesDir) {
		root = RootCache
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Entry{}, fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return Entry{}, fmt.Errorf("stat %s: %w", path, err)
	}
	return Entry{
		Root:    root,
		Path:    path,
		Key:     parsed.Key,
		Role:    parsed.Role,
		ModTime: info.ModTime(),
		Size:    info.Size(),
		Legacy:  parsed.Legacy,
	}, nil
}

// SameTimestamp reports whether two artifacts carry exactly the same mtime.
func SameTimestamp(a, b time.Time) bool {
	return a.Equal(b)
}

// writeFileAtomic writes to a temp file in the target directory and renames
// it into place.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(path)+"-")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename into %s: %w", path, err)
	}
	committed = true
	return nil
}
