package dateutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFormatMemoizesWithinSameSecond(t *testing.T) {
	base := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	calls := 0
	clock := func() time.Time {
		calls++
		return base
	}
	g := NewWithClock(clock)

	first := g.Format()
	second := g.Format()

	require.Equal(t, "Thu, 30 Jul 2026 12:00:00 GMT", first)
	require.Equal(t, first, second)
	require.Equal(t, 2, calls) // clock is still called each time; formatting is what's cached
}

func TestFormatRefreshesOnNewSecond(t *testing.T) {
	cur := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return cur }
	g := NewWithClock(clock)

	first := g.Format()
	cur = cur.Add(time.Second)
	second := g.Format()

	require.NotEqual(t, first, second)
}
