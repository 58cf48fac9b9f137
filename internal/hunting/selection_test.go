package hunting

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSet_EmptyNavigation(t *testing.T) {
	s := NewSet()
	_, ok := s.Next()
	assert.False(t, ok)
	_, ok = s.Prev()
	assert.False(t, ok)
	_, ok = s.Selected()
	assert.False(t, ok)
}

func TestSet_Wraparound(t *testing.T) {
	const a, b, c = ID(10), ID(20), ID(30)
	s := NewSet()
	for _, id := range []ID{c, a, b} {
		s.Observe(id)
	}
	assert.Equal(t, []ID{a, b, c}, s.IDs())

	got, ok := s.Next()
	require.True(t, ok)
	assert.Equal(t, a, got, "first next selects the smallest id")

	s.Next()
	got, _ = s.Next()
	assert.Equal(t, c, got)

	got, _ = s.Next()
	assert.Equal(t, a, got, "next from the last wraps to the first")

	got, _ = s.Prev()
	assert.Equal(t, c, got, "prev from the first wraps to the last")
}

func TestSet_FirstPrevSelectsLast(t *testing.T) {
	s := NewSet()
	s.Observe(1)
	s.Observe(2)
	got, ok := s.Prev()
	require.True(t, ok)
	assert.Equal(t, ID(2), got)
}

func TestSet_ObserveDoesNotMoveCursor(t *testing.T) {
	s := NewSet()
	assert.True(t, s.Observe(50))
	assert.False(t, s.Observe(50), "duplicate")
	s.Next()

	s.Observe(10)
	s.Observe(90)

	got, ok := s.Selected()
	require.True(t, ok)
	assert.Equal(t, ID(50), got)
	assert.True(t, s.IsSelected(50))
	assert.False(t, s.IsSelected(10))

	got, _ = s.Next()
	assert.Equal(t, ID(90), got)
}

func TestSet_TwoVertexProgramsScenario(t *testing.T) {
	s := NewSet()
	s.Observe(0xbb)
	s.Observe(0xaa)

	got, _ := s.Next()
	assert.Equal(t, ID(0xaa), got)
	got, _ = s.Next()
	assert.Equal(t, ID(0xbb), got)
	got, _ = s.Next()
	assert.Equal(t, ID(0xaa), got)
}

func TestSet_ClearReseatsNearLastOrdinal(t *testing.T) {
	s := NewSet()
	for _, id := range []ID{1, 2, 3, 4} {
		s.Observe(id)
	}
	s.Next()
	s.Next()
	s.Next() // ordinal 2
	s.Clear()

	assert.Equal(t, 0, s.Len())
	_, ok := s.Selected()
	assert.False(t, ok)

	s.Observe(100)
	s.Observe(200)
	s.Observe(300)
	s.Observe(400)
	got, ok := s.Next()
	require.True(t, ok)
	assert.Equal(t, ID(300), got, "resumes at the previous ordinal")
}

func TestSet_ClearReseatClampsToSize(t *testing.T) {
	s := NewSet()
	for _, id := range []ID{1, 2, 3, 4, 5} {
		s.Observe(id)
	}
	s.Prev() // ordinal 4
	s.Clear()

	s.Observe(7)
	s.Observe(8)
	got, _ := s.Next()
	assert.Equal(t, ID(8), got)
}

func TestSet_ResetForgetsOrdinal(t *testing.T) {
	s := NewSet()
	for _, id := range []ID{1, 2, 3} {
		s.Observe(id)
	}
	s.Prev()
	s.Reset()

	s.Observe(5)
	s.Observe(6)
	got, _ := s.Next()
	assert.Equal(t, ID(5), got)
	assert.True(t, s.Contains(5))
	assert.False(t, s.Contains(1))
}

func TestSet_ConcurrentObserve(t *testing.T) {
	s := NewSet()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				s.Observe(ID(i))
				if w == 0 {
					s.Next()
				}
			}
		}(w)
	}
	wg.Wait()
	assert.Equal(t, 100, s.Len())
	ids := s.IDs()
	for i := 1; i < len(ids); i++ {
		assert.Less(t, ids[i-1], ids[i])
	}
}
