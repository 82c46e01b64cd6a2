package header

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestOrderedDuplicatesPreserved covers the ordered, duplicate-preserving
// list semantics: same name added twice keeps both fields in wire order.
func TestOrderedDuplicatesPreserved(t *testing.T) {
	var l List
	l.Add("X-Trace", "a")
	l.Add("x-trace", "b")
	l.Add("X-TRACE", "c")

	require.Equal(t, []string{"a", "b", "c"}, l.GetAll("X-Trace"))
	require.Equal(t, "a", l.Get("X-TRACE"))
	require.Equal(t, 3, l.Len())
}

// TestSetOverwritesAllByName covers overwrite-by-name, case-insensitive.
func TestSetOverwritesAllByName(t *testing.T) {
	var l List
	l.Add("Content-Type", "text/plain")
	l.Add("content-type", "text/html")
	l.Set("CONTENT-TYPE", "application/json")

	require.Equal(t, 1, l.Len())
	require.Equal(t, "application/json", l.Get("Content-Type"))
}

// TestDelRemovesAllByName covers remove-by-name.
func TestDelRemovesAllByName(t *testing.T) {
	var l List
	l.Add("Accept", "a")
	l.Add("Accept", "b")
	l.Add("Host", "x")
	l.Del("accept")

	require.False(t, l.Contains("Accept"))
	require.Equal(t, 1, l.Len())
	require.Equal(t, "x", l.Get("Host"))
}

// TestWritePreservesInsertionOrder: wire order must match insertion/set
// order exactly, with no re-sorting by key.
func TestWritePreservesInsertionOrder(t *testing.T) {
	var l List
	l.Add("Zebra", "1")
	l.Add("Alpha", "2")
	l.Add("Mike", "3")

	var sb strings.Builder
	require.NoError(t, l.Write(&sb))
	require.Equal(t, "Zebra: 1\r\nAlpha: 2\r\nMike: 3\r\n", sb.String())
}

func TestCanonicalHeaderKeyCaseInsensitive(t *testing.T) {
	require.Equal(t, "Content-Type", CanonicalHeaderKey("content-type"))
	require.Equal(t, "Content-Type", CanonicalHeaderKey("CONTENT-TYPE"))
	require.Equal(t, "Etag", CanonicalHeaderKey("etag"))
}

func TestTrimString(t *testing.T) {
	require.Equal(t, "value", TrimString(" value \t\r\n"))
	require.Equal(t, "", TrimString(" "))
}

func TestCloneIsIndependent(t *testing.T) {
	var l List
	l.Add("X-A", "1")
	c := l.Clone()
	c.Add("X-A", "2")

	require.Equal(t, 1, l.Len())
	require.Equal(t, 2, c.Len())
}
