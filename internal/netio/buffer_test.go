package netio

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBufferGrowCommitAppend(t *testing.T) {
	var b Buffer
	b.Append([]byte("hello"))
	require.Equal(t, 5, b.Len())

	dst := b.Grow(3)
	copy(dst, []byte("!!!"))
	b.Commit(3)
	require.Equal(t, "hello!!!", string(b.Bytes()))
}

func TestBufferConsume(t *testing.T) {
	var b Buffer
	b.Append([]byte("abcdef"))
	b.Consume(2)
	require.Equal(t, "cdef", string(b.Bytes()))

	b.Consume(100)
	require.Equal(t, 0, b.Len())
}

// TestViewStaysWithinBuffer covers the Buffer/view invariant: a view's
// window must reflect exactly the bytes named at construction time.
func TestViewStaysWithinBuffer(t *testing.T) {
	var b Buffer
	b.Append([]byte("0123456789"))
	v := View{Offset: 2, Length: 4}
	require.Equal(t, "2345", string(v.Slice(&b)))
}

func TestBufferReset(t *testing.T) {
	b := NewBuffer(16)
	b.Append([]byte("data"))
	b.Reset()
	require.Equal(t, 0, b.Len())
	// The buffer still hands out a writable tail after Reset.
	dst := b.Grow(4)
	require.Len(t, dst, 4)
}
