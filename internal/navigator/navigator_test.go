package navigator

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cristi184/diabetDashApp-sub000/internal/timewindow"
)

func TestNewDefaults(t *testing.T) {
	n := New()

	assert.Equal(t, 0, n.Offset())
	assert.Equal(t, timewindow.Day, n.Granularity())
	assert.False(t, n.CanNext())
}

func TestPreviousAndNext(t *testing.T) {
	n := New()

	n.Previous()
	n.Previous()
	assert.Equal(t, -2, n.Offset())
	assert.True(t, n.CanNext())

	assert.True(t, n.Next())
	assert.True(t, n.Next())
	assert.Equal(t, 0, n.Offset())

	assert.False(t, n.Next())
	assert.Equal(t, 0, n.Offset())
}

func TestNextNeverGoesIntoFuture(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 50; trial++ {
		n := New()
		for i := rng.Intn(10); i > 0; i-- {
			n.Previous()
		}
		for i := 0; i < 25; i++ {
			n.Next()
			require.LessOrEqual(t, n.Offset(), 0)
		}
		assert.Equal(t, 0, n.Offset())
	}
}

func TestResetToPresent(t *testing.T) {
	n := New()
	n.Previous()
	n.Previous()

	n.ResetToPresent()

	assert.Equal(t, 0, n.Offset())
}

func TestSetGranularityResetsOffset(t *testing.T) {
	n := New()
	n.Previous()

	require.NoError(t, n.SetGranularity(timewindow.Week))
	assert.Equal(t, timewindow.Week, n.Granularity())
	assert.Equal(t, 0, n.Offset())

	n.Previous()
	assert.ErrorIs(t, n.SetGranularity("fortnight"), timewindow.ErrInvalidGranularity)
	assert.Equal(t, timewindow.Week, n.Granularity())
	assert.Equal(t, -1, n.Offset())
}

func TestHandleDrag(t *testing.T) {
	tests := []struct {
		name       string
		start      int
		startX     float64
		endX       float64
		wantAction Action
		wantOffset int
	}{
		{"right swipe goes back", 0, 100, 200, ActionPrevious, -1},
		{"left swipe goes forward", -2, 200, 100, ActionNext, -1},
		{"left swipe at present is ignored", 0, 200, 100, ActionNone, 0},
		{"short drag right", -1, 100, 140, ActionNone, -1},
		{"short drag left", -1, 140, 100, ActionNone, -1},
		{"exactly at threshold", -1, 100, 150, ActionNone, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := New()
			for i := 0; i > tt.start; i-- {
				n.Previous()
			}

			assert.Equal(t, tt.wantAction, n.HandleDrag(tt.startX, tt.endX))
			assert.Equal(t, tt.wantOffset, n.Offset())
		})
	}
}

func TestWithSwipeThreshold(t *testing.T) {
	n := New(WithSwipeThreshold(10))
	assert.Equal(t, ActionPrevious, n.HandleDrag(0, 20))

	n = New(WithSwipeThreshold(-5))
	assert.Equal(t, ActionNone, n.HandleDrag(0, 20))
}

func TestWithOffset(t *testing.T) {
	n := New(WithOffset(-3))
	assert.Equal(t, -3, n.Offset())
	assert.True(t, n.CanNext())

	n = New(WithOffset(4))
	assert.Equal(t, 0, n.Offset())
	assert.False(t, n.CanNext())

	n = New(WithOffset(-2_000_000_000))
	assert.Equal(t, ActionNext, n.HandleDrag(200, 100))
	assert.Equal(t, -1_999_999_999, n.Offset())
}

func TestWindow(t *testing.T) {
	now := time.Date(2024, 5, 15, 9, 0, 0, 0, time.UTC)
	n := New(WithGranularity(timewindow.Week))
	n.Previous()

	w, err := n.Window(now)
	require.NoError(t, err)

	want, err := timewindow.Resolve(timewindow.Week, -1, now)
	require.NoError(t, err)
	assert.Equal(t, want, w)
}

func TestActionString(t *testing.T) {
	assert.Equal(t, "next", ActionNext.String())
	assert.Equal(t, "previous", ActionPrevious.String())
	assert.Equal(t, "none", ActionNone.String())
}
