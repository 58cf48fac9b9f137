package artifact

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shaderhunt/internal/ir"
)

type manualNow struct {
	mu sync.Mutex
	t  time.Time
}

func (m *manualNow) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t
}

func (m *manualNow) Advance(d time.Duration) {
	m.mu.Lock()
	m.t = m.t.Add(d)
	m.mu.Unlock()
}

func TestIsReloadable(t *testing.T) {
	assert.True(t, IsReloadable("000000000000aabb-vs_replace.txt"))
	assert.False(t, IsReloadable("000000000000aabb-vs_replace.bin"))
	assert.True(t, IsReloadable("000000000000aabb-vs.txt"))
	assert.False(t, IsReloadable("000000000000aabb-vs_bad.txt"))
	assert.False(t, IsReloadable("000000000000aabb-vs.bin"))
	assert.False(t, IsReloadable("notes.txt"))
}

func TestWatcher_NoteAndDrainSettles(t *testing.T) {
	s := newTestStore(t)
	clock := &manualNow{t: time.Unix(1000, 0)}
	w, err := NewWatcher(s, WithWatcherClock(clock.Now), WithSettleWindow(100*time.Millisecond))
	require.NoError(t, err)
	defer w.Close()

	src := s.Path(RootOverrides, ir.Key(1, ir.KindPixel), ir.RoleHumanSource)
	w.Note(src)
	w.Note(filepath.Join(s.Dir(RootOverrides), "scratch.txt"))

	assert.Empty(t, w.Drain(), "still settling")

	clock.Advance(150 * time.Millisecond)
	assert.Equal(t, []string{src}, w.Drain())
	assert.Empty(t, w.Drain(), "drained paths are forgotten")
}

func TestWatcher_ObservesWrites(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.MkdirAll(s.Dir(RootOverrides), 0o755))

	w, err := NewWatcher(s, WithSettleWindow(0))
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	key := ir.Key(0xaabb, ir.KindVertex)
	_, err = s.Write(RootOverrides, key, ir.RoleHumanSource, []byte("// edit\n"))
	require.NoError(t, err)

	want := s.Path(RootOverrides, key, ir.RoleHumanSource)
	var seen []string
	require.Eventually(t, func() bool {
		seen = append(seen, w.Drain()...)
		for _, p := range seen {
			if p == want {
				return true
			}
		}
		return false
	}, 5*time.Second, 20*time.Millisecond)
}
