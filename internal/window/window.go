// Package window projects the conversation log onto the suffix that is
// materialized for display and grows it backwards in fixed batches as the
// reader scrolls to the top.
//
// A Window never holds messages itself. It only tracks the suffix width W;
// the visible entries are always log[len(log)-W:].
package window

import (
	"errors"
	"fmt"
)

// DefaultBatchSize is the number of entries loaded per growth step.
const DefaultBatchSize = 20

// NearBottomThreshold is the distance from the bottom, in viewport units,
// that still counts as "at the bottom".
const NearBottomThreshold = 50

// ErrInvariantViolation is returned when the width falls outside [0, len(log)].
var ErrInvariantViolation = errors.New("window: invariant violation")

// ScrollSignal is what the presentation layer reports on every scroll event.
type ScrollSignal struct {
	AtTop    bool `json:"atTop"`
	AtBottom bool `json:"atBottom"`
}

// Growth describes the outcome of GrowIfAtTop.
type Growth struct {
	Grew     bool `json:"grew"`
	OldWidth int  `json:"oldWidth"`
	NewWidth int  `json:"newWidth"`
	// Anchor is the index, inside the new window, of the entry that was
	// topmost before the growth. The caller keeps that entry at the same
	// visual offset by scrolling down by the height of the prepended entries.
	Anchor int `json:"anchor"`
}

// ScrollResult combines top growth and bottom detection for one scroll event.
type ScrollResult struct {
	Growth
	ScrolledUp bool `json:"scrolledUp"`
}

// Window is the suffix projection state. The zero value is not usable; use New.
type Window struct {
	batch      int
	width      int
	scrolledUp bool
}

// New returns a window that loads batch entries at a time.
// A non-positive batch uses DefaultBatchSize.
func New(batch int) *Window {
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	return &Window{batch: batch}
}

// BatchSize returns K.
func (w *Window) BatchSize() int { return w.batch }

// Width returns W.
func (w *Window) Width() int { return w.width }

// ScrolledUp reports whether the reader has scrolled away from the bottom, in
// which case new content must not auto-scroll into view.
func (w *Window) ScrolledUp() bool { return w.scrolledUp }

// Reset initializes the window over a log of n entries: W = min(K, n).
// It is used at startup and after the log is cleared.
func (w *Window) Reset(n int) {
	w.width = min(w.batch, n)
	w.scrolledUp = false
}

// GrowIfAtTop grows W by K, clamped to n, when the reader is at the top and
// older entries exist.
func (w *Window) GrowIfAtTop(n int, atTop bool) Growth {
	g := Growth{OldWidth: w.width, NewWidth: w.width}
	if !atTop || w.width >= n {
		return g
	}
	g.NewWidth = min(w.width+w.batch, n)
	g.Grew = true
	g.Anchor = g.NewWidth - g.OldWidth
	w.width = g.NewWidth
	return g
}

// Sync follows a log mutation from prevLen to newLen entries. Appended
// entries extend the window so it keeps showing the newest turns; removed
// tail entries shrink it. W never drops below min(K, newLen).
func (w *Window) Sync(prevLen, newLen int) {
	w.width += newLen - prevLen
	w.width = max(min(w.width, newLen), min(w.batch, newLen))
}

// FollowTail clears the scrolled-up flag, e.g. when the user sends a turn.
func (w *Window) FollowTail() {
	w.scrolledUp = false
}

// OnScroll evaluates top growth and near-bottom independently. Leaving the
// bottom (or growing at the top) marks the reader as scrolled up; reaching the
// bottom clears it.
func (w *Window) OnScroll(n int, sig ScrollSignal) ScrollResult {
	g := w.GrowIfAtTop(n, sig.AtTop)
	w.scrolledUp = g.Grew || !sig.AtBottom
	if sig.AtBottom {
		w.scrolledUp = false
	}
	return ScrollResult{Growth: g, ScrolledUp: w.scrolledUp}
}

// Bounds returns the half-open range [from, n) of visible log indices.
func (w *Window) Bounds(n int) (from int, err error) {
	if w.width < 0 || w.width > n {
		return 0, fmt.Errorf("%w: width %d over %d entries", ErrInvariantViolation, w.width, n)
	}
	return n - w.width, nil
}

// NearBottom reports whether a scroll position is within NearBottomThreshold
// of the bottom.
func NearBottom(scrollHeight, scrollTop, clientHeight int) bool {
	d := scrollHeight - scrollTop - clientHeight
	if d < 0 {
		d = -d
	}
	return d < NearBottomThreshold
}

// AnchorOffset is the scroll compensation after prepending entries: the new
// scroll position that keeps the previously-topmost entry in place.
func AnchorOffset(oldHeight, newHeight int) int {
	return newHeight - oldHeight
}
