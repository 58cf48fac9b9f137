package hunting

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shaderhunt/internal/ir"
	"github.com/roach88/shaderhunt/internal/testutil"
)

func TestTracker_FirstTouchGrace(t *testing.T) {
	clock := testutil.NewManualClock()
	tr := NewTracker(DefaultIdleTimeout)

	tr.Observe(ResourceVertex, 1)
	assert.True(t, tr.Tick(clock.Now()), "cleared before any input")
	assert.Equal(t, 0, tr.Set(ResourceVertex).Len())

	tr.Touch(clock.Now())
	tr.Observe(ResourceVertex, 1)
	assert.False(t, tr.Tick(clock.Now()))
	assert.Equal(t, 1, tr.Set(ResourceVertex).Len())
	assert.Equal(t, 1, tr.Clears())
}

func TestTracker_IdleTimeoutClearsAll(t *testing.T) {
	clock := testutil.NewManualClock()
	tr := NewTracker(DefaultIdleTimeout)
	tr.Touch(clock.Now())

	tr.Observe(ResourceVertex, 1)
	tr.Observe(ResourcePixel, 2)
	tr.Observe(ResourceRenderTarget, 3)
	tr.Set(ResourcePixel).Next()

	clock.Advance(59 * time.Second)
	assert.False(t, tr.Tick(clock.Now()))
	assert.True(t, tr.Active(clock.Now()))

	clock.Advance(time.Second)
	assert.True(t, tr.Tick(clock.Now()))
	assert.False(t, tr.Active(clock.Now()))
	for _, r := range []Resource{ResourceVertex, ResourcePixel, ResourceRenderTarget} {
		assert.Equal(t, 0, tr.Set(r).Len(), r.String())
	}
	_, ok := tr.Set(ResourcePixel).Selected()
	assert.False(t, ok)
}

func TestTracker_TouchExtendsIdle(t *testing.T) {
	clock := testutil.NewManualClock()
	tr := NewTracker(10 * time.Second)
	tr.Touch(clock.Now())
	tr.Observe(ResourceIndexBuffer, 9)

	clock.Advance(8 * time.Second)
	tr.Touch(clock.Now())
	clock.Advance(8 * time.Second)
	assert.False(t, tr.Tick(clock.Now()))
	assert.Equal(t, 1, tr.Set(ResourceIndexBuffer).Len())
}

func TestTracker_NoIdleTimeout(t *testing.T) {
	clock := testutil.NewManualClock()
	tr := NewTracker(0)
	assert.True(t, tr.Tick(clock.Now()), "grace still applies")
	tr.Touch(clock.Now())
	clock.Advance(24 * time.Hour)
	assert.False(t, tr.Tick(clock.Now()))
}

func TestTracker_Reset(t *testing.T) {
	tr := NewTracker(DefaultIdleTimeout)
	tr.Observe(ResourceVertex, 1)
	tr.Observe(ResourceVertex, 2)
	tr.Set(ResourceVertex).Prev()
	tr.Reset()

	tr.Observe(ResourceVertex, 3)
	tr.Observe(ResourceVertex, 4)
	got, _ := tr.Set(ResourceVertex).Next()
	assert.Equal(t, ID(3), got)
}

func TestResourceForKind(t *testing.T) {
	for _, k := range ir.AllKinds {
		r := ResourceForKind(k)
		back, ok := r.ProgramKind()
		require.True(t, ok)
		assert.Equal(t, k, back)
		assert.Equal(t, k.String(), r.String())
	}
	_, ok := ResourceIndexBuffer.ProgramKind()
	assert.False(t, ok)
	assert.Equal(t, "rt", ResourceRenderTarget.String())
}
