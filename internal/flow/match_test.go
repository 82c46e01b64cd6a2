package flow

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSameMatch(t *testing.T) {
	m := NewSameMatch(map[string]uint32{"GET": 10, "POST": 20})

	pc, ok := m.Evaluate("GET")
	require.True(t, ok)
	require.EqualValues(t, 10, pc)

	_, ok = m.Evaluate("DELETE")
	require.False(t, ok)
}

func TestHeadMatchLongestPrefixWins(t *testing.T) {
	m := NewHeadMatch(map[string]uint32{
		"/api/": 1,
		"/":     2,
	})

	cases := []struct {
		subject string
		wantPC  uint32
		wantOK  bool
	}{
		{"/api/v1/x", 1, true},
		{"/index", 2, true},
		{"/apx", 2, true},
		{"", 0, false},
	}
	for _, c := range cases {
		pc, ok := m.Evaluate(c.subject)
		require.Equal(t, c.wantOK, ok, c.subject)
		if ok {
			require.Equal(t, c.wantPC, pc, c.subject)
		}
	}
}

func TestTailMatchLongestSuffixWins(t *testing.T) {
	m := NewTailMatch(map[string]uint32{
		".tar.gz": 1,
		".gz":     2,
	})

	pc, ok := m.Evaluate("archive.tar.gz")
	require.True(t, ok)
	require.EqualValues(t, 1, pc)

	pc, ok = m.Evaluate("file.gz")
	require.True(t, ok)
	require.EqualValues(t, 2, pc)

	_, ok = m.Evaluate("file.txt")
	require.False(t, ok)
}

func TestRegExMatchFirstWins(t *testing.T) {
	m := NewRegExMatch([]RegExCase{
		{Pattern: mustCompile(t, `^/api/`), PC: 1},
		{Pattern: mustCompile(t, `^/`), PC: 2},
	})

	pc, ok := m.Evaluate("/api/x")
	require.True(t, ok)
	require.EqualValues(t, 1, pc)

	pc, ok = m.Evaluate("/home")
	require.True(t, ok)
	require.EqualValues(t, 2, pc)
}
