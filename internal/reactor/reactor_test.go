package reactor

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func newTestReactor(t *testing.T) *Reactor {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.FatalLevel)
	r, err := New(log)
	require.NoError(t, err)
	return r
}

func TestExecuteAfterOrdering(t *testing.T) {
	r := newTestReactor(t)
	var order []int
	r.ExecuteAfter(30*time.Millisecond, func() { order = append(order, 2) })
	r.ExecuteAfter(10*time.Millisecond, func() { order = append(order, 1) })
	r.ExecuteAfter(50*time.Millisecond, func() { order = append(order, 3); r.BreakLoop() })

	r.RunLoop()

	require.Equal(t, []int{1, 2, 3}, order)
}

func TestCancelBeforeFireNeverRuns(t *testing.T) {
	r := newTestReactor(t)
	ran := false
	h := r.ExecuteAfter(10*time.Millisecond, func() { ran = true })
	h.Cancel()

	r.ExecuteAfter(20*time.Millisecond, func() { r.BreakLoop() })
	r.RunLoop()

	require.False(t, ran)
}

func TestExecuteRunsOnNextTurn(t *testing.T) {
	r := newTestReactor(t)
	done := make(chan struct{})
	r.Execute(func() {
		close(done)
		r.BreakLoop()
	})
	r.RunLoop()
	select {
	case <-done:
	default:
		t.Fatal("task never ran")
	}
}

func TestTaskCountAccessor(t *testing.T) {
	r := newTestReactor(t)
	r.Execute(func() {})
	require.Equal(t, 1, r.TaskCount())
}
