// Package navigator tracks which chart period is on screen and translates
// button presses and swipe gestures into offset changes.
package navigator

import (
	"sync"
	"time"

	"github.com/Cristi184/diabetDashApp-sub000/internal/timewindow"
)

// DefaultSwipeThreshold is the horizontal distance in pixels a drag must cover to count as a swipe.
const DefaultSwipeThreshold = 50.0

// Action is the navigation a gesture resolved to.
type Action int

const (
	ActionNone Action = iota
	ActionPrevious
	ActionNext
)

func (a Action) String() string {
	switch a {
	case ActionPrevious:
		return "previous"
	case ActionNext:
		return "next"
	default:
		return "none"
	}
}

// Option configures a Navigator.
type Option func(*Navigator)

// WithSwipeThreshold sets the minimum drag distance for a swipe. Non-positive values are ignored.
func WithSwipeThreshold(px float64) Option {
	return func(n *Navigator) {
		if px > 0 {
			n.threshold = px
		}
	}
}

// WithGranularity sets the initial granularity.
func WithGranularity(g timewindow.Granularity) Option {
	return func(n *Navigator) { n.granularity = g }
}

// WithOffset sets the initial period offset. Positive values are clamped to 0.
func WithOffset(offset int) Option {
	return func(n *Navigator) { n.offset = min(offset, 0) }
}

// Navigator holds the current granularity and period offset.
// Offset 0 is the period containing now; negative offsets are earlier periods.
// The offset never becomes positive.
type Navigator struct {
	mu          sync.Mutex
	granularity timewindow.Granularity
	offset      int
	threshold   float64
}

// New creates a navigator showing the current day.
func New(opts ...Option) *Navigator {
	n := &Navigator{
		granularity: timewindow.Day,
		threshold:   DefaultSwipeThreshold,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Offset returns the current period offset.
func (n *Navigator) Offset() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.offset
}

// Granularity returns the current granularity.
func (n *Navigator) Granularity() timewindow.Granularity {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.granularity
}

// Previous moves one period back.
func (n *Navigator) Previous() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.offset--
}

// Next moves one period forward. It does nothing and returns false when already at the present.
func (n *Navigator) Next() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.next()
}

func (n *Navigator) next() bool {
	if n.offset >= 0 {
		return false
	}
	n.offset++
	return true
}

// CanNext reports whether Next would move.
func (n *Navigator) CanNext() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.offset < 0
}

// ResetToPresent jumps back to offset 0.
func (n *Navigator) ResetToPresent() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.offset = 0
}

// SetGranularity switches the period size and returns to the present.
func (n *Navigator) SetGranularity(g timewindow.Granularity) error {
	if !g.Valid() {
		return timewindow.ErrInvalidGranularity
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.granularity = g
	n.offset = 0
	return nil
}

// HandleDrag interprets a horizontal drag from startX to endX.
// Dragging left past the threshold advances like Next, dragging right goes back like Previous.
// A left swipe at the present resolves to ActionNone.
func (n *Navigator) HandleDrag(startX, endX float64) Action {
	n.mu.Lock()
	defer n.mu.Unlock()

	dx := endX - startX
	switch {
	case dx < -n.threshold:
		if n.next() {
			return ActionNext
		}
	case dx > n.threshold:
		n.offset--
		return ActionPrevious
	}
	return ActionNone
}

// Window resolves the window currently on screen.
func (n *Navigator) Window(now time.Time) (timewindow.Window, error) {
	n.mu.Lock()
	g, offset := n.granularity, n.offset
	n.mu.Unlock()
	return timewindow.Resolve(g, offset, now)
}
