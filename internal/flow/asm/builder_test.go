package asm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/christianparpart/x0-sub009/internal/flow"
)

// TestPrefixMatchHeadRouting builds a routing program equivalent to
// `match prefix(path) { "/api/" => A; "/" => B; else => C; }` and asserts
// the documented routing outcomes, tagging each branch with a distinct
// register value so the fired case is unambiguous.
func TestPrefixMatchHeadRouting(t *testing.T) {
	cases := []struct {
		subject string
		want    string
	}{
		{"/api/v1/x", "A"},
		{"/index", "B"},
		{"/apx", "B"},
		{"", "C"},
	}
	for _, c := range cases {
		got := runPrefixCase(t, c.subject)
		require.Equal(t, c.want, got, "subject=%q", c.subject)
	}
}

func runPrefixCase(t *testing.T, subject string) string {
	t.Helper()
	b := New()
	h := b.Handler("route")

	const pathReg, tagReg, verdictReg = uint16(0), uint16(1), uint16(2)

	aPC := h.PC()
	h.Emit(flow.OpLoadConstInt, tagReg, h.ConstInt(1), 0) // tag "A"
	h.Emit(flow.OpLoadConstInt, verdictReg, h.ConstInt(1), 0)
	h.Emit(flow.OpExit, verdictReg, 0, 0)

	bPC := h.PC()
	h.Emit(flow.OpLoadConstInt, tagReg, h.ConstInt(2), 0) // tag "B"
	h.Emit(flow.OpLoadConstInt, verdictReg, h.ConstInt(1), 0)
	h.Emit(flow.OpExit, verdictReg, 0, 0)

	elsePC := h.PC()
	h.Emit(flow.OpLoadConstInt, tagReg, h.ConstInt(3), 0) // tag "C"
	h.Emit(flow.OpLoadConstInt, verdictReg, h.ConstInt(0), 0)
	h.Emit(flow.OpExit, verdictReg, 0, 0)

	table := flow.NewHeadMatch(map[string]uint32{
		"/api/": uint32(aPC),
		"/":     uint32(bPC),
	})
	tableIdx := h.MatchTable(table)

	matchPC := h.PC()
	pathIdx := h.ConstString(subject)
	h.Emit(flow.OpLoadConstString, pathReg, pathIdx, 0)
	h.Emit(flow.OpMatchHead, pathReg, tableIdx, uint16(elsePC))

	rt := flow.NewRuntime()
	require.NoError(t, flow.Link(b.Program(), rt, b.CallSites()))

	runner, err := flow.NewRunnerAt(b.Program(), rt, "route", nil, matchPC)
	require.NoError(t, err)
	_, state, err := runner.Run()
	require.NoError(t, err)
	require.Equal(t, flow.StateFinished, state)

	switch runner.DebugRegInt(tagReg) {
	case 1:
		return "A"
	case 2:
		return "B"
	default:
		return "C"
	}
}
