package window

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReset(t *testing.T) {
	w := New(20)
	w.Reset(100)
	require.Equal(t, 20, w.Width())
	w.Reset(1)
	require.Equal(t, 1, w.Width())
	w.Reset(0)
	require.Equal(t, 0, w.Width())

	require.Equal(t, DefaultBatchSize, New(0).BatchSize())
}

func TestGrowIfAtTop_KeepsAnchor(t *testing.T) {
	w := New(20)
	w.Reset(100)

	g := w.GrowIfAtTop(100, true)
	require.True(t, g.Grew)
	require.Equal(t, 20, g.OldWidth)
	require.Equal(t, 40, g.NewWidth)
	from, err := w.Bounds(100)
	require.NoError(t, err)
	require.Equal(t, 60, from)
	// log[80] was the top entry before; it now sits at index 20.
	require.Equal(t, 20, g.Anchor)
	require.Equal(t, 80, from+g.Anchor)
}

func TestGrowIfAtTop_ClampsAndStops(t *testing.T) {
	w := New(20)
	w.Reset(30)

	require.False(t, w.GrowIfAtTop(30, false).Grew)

	g := w.GrowIfAtTop(30, true)
	require.True(t, g.Grew)
	require.Equal(t, 30, g.NewWidth)
	require.Equal(t, 10, g.Anchor)

	g = w.GrowIfAtTop(30, true)
	require.False(t, g.Grew)
	require.Equal(t, 30, w.Width())
}

func TestSync_FollowsAppendsAndTruncation(t *testing.T) {
	w := New(20)
	w.Reset(100)
	w.GrowIfAtTop(100, true) // 40

	w.Sync(100, 102)
	require.Equal(t, 42, w.Width())

	w.Sync(102, 101)
	require.Equal(t, 41, w.Width())

	small := New(20)
	small.Reset(1)
	small.Sync(1, 2)
	require.Equal(t, 2, small.Width())
	small.Sync(2, 1)
	require.Equal(t, 1, small.Width())
}

func TestSync_NeverBelowBatch(t *testing.T) {
	w := New(20)
	w.Reset(5)
	require.Equal(t, 5, w.Width())
	// A truncation that leaves more than K entries keeps at least K visible.
	w.width = 3
	w.Sync(50, 50)
	require.Equal(t, 20, w.Width())
}

// TestSuffixInvariant walks a sequence of operations and checks the window is
// always a suffix of the log.
func TestSuffixInvariant(t *testing.T) {
	w := New(3)
	n := 1
	w.Reset(n)
	ops := []func(){
		func() { w.Sync(n, n+1); n++ },
		func() { w.Sync(n, n+1); n++ },
		func() { w.Sync(n, n+1); n++ },
		func() { w.Sync(n, n+1); n++ },
		func() { w.GrowIfAtTop(n, true) },
		func() { w.Sync(n, n-1); n-- },
		func() { w.OnScroll(n, ScrollSignal{AtTop: true}) },
		func() { n = 1; w.Reset(n) },
	}
	for i, op := range ops {
		op()
		from, err := w.Bounds(n)
		require.NoError(t, err, "op %d", i)
		require.GreaterOrEqual(t, from, 0)
		require.Equal(t, n-from, w.Width())
	}
}

func TestBounds_DetectsViolation(t *testing.T) {
	w := New(20)
	w.Reset(20)
	_, err := w.Bounds(10)
	require.ErrorIs(t, err, ErrInvariantViolation)
}

func TestOnScroll_TopAndBottomIndependent(t *testing.T) {
	w := New(20)
	w.Reset(100)

	r := w.OnScroll(100, ScrollSignal{AtTop: true})
	require.True(t, r.Grew)
	require.True(t, r.ScrolledUp)
	require.True(t, w.ScrolledUp())

	r = w.OnScroll(100, ScrollSignal{AtBottom: true})
	require.False(t, r.Grew)
	require.False(t, r.ScrolledUp)

	// Short content: at top and bottom at once still grows, and stays following.
	r = w.OnScroll(100, ScrollSignal{AtTop: true, AtBottom: true})
	require.True(t, r.Grew)
	require.False(t, r.ScrolledUp)

	w.OnScroll(100, ScrollSignal{})
	require.True(t, w.ScrolledUp())
	w.FollowTail()
	require.False(t, w.ScrolledUp())
}

func TestNearBottom(t *testing.T) {
	require.True(t, NearBottom(1000, 600, 400))
	require.True(t, NearBottom(1000, 560, 400))
	require.False(t, NearBottom(1000, 500, 400))
	require.Equal(t, 300, AnchorOffset(700, 1000))
}
