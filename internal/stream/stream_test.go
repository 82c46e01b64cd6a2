package stream

import (
	"compress/gzip"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/christianparpart/x0-sub009/internal/errs"
	"github.com/christianparpart/x0-sub009/internal/netio"
)

// TestCompositeSourceDrainsInOrder covers: a composite source is EOF only
// when its queue is empty and the last source reported EOF.
func TestCompositeSourceDrainsInOrder(t *testing.T) {
	c := NewCompositeSource(NewBufferSource([]byte("foo")), NewBufferSource([]byte("bar")))
	require.False(t, c.EOF())

	sink := NewBufferSink()
	for {
		_, err := sink.Pump(c)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}
	require.Equal(t, "foobar", string(sink.Bytes()))
	require.True(t, c.EOF())
}

func TestCompositeSourceAppendAfterPartialDrain(t *testing.T) {
	c := NewCompositeSource(NewBufferSource([]byte("a")))
	sink := NewBufferSink()
	_, err := sink.Pump(c)
	require.NoError(t, err)
	require.True(t, c.EOF())

	c.Append(NewBufferSource([]byte("b")))
	require.False(t, c.EOF())
	_, err = sink.Pump(c)
	require.NoError(t, err)
	require.Equal(t, "ab", string(sink.Bytes()))
}

// TestGzipFilterRoundTrip pushes three chunks "aaa"/"bbb"/"ccc" through a
// gzip filter and checks they decompress back to "aaabbbccc".
func TestGzipFilterRoundTrip(t *testing.T) {
	inner := NewCompositeSource(
		NewBufferSource([]byte("aaa")),
		NewBufferSource([]byte("bbb")),
		NewBufferSource([]byte("ccc")),
	)
	filtered := NewFilterSource(inner, NewGzipFilter())

	sink := NewBufferSink()
	for {
		_, err := sink.Pump(filtered)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}

	zr, err := gzip.NewReader(bytesReader(sink.Bytes()))
	require.NoError(t, err)
	out, err := io.ReadAll(zr)
	require.NoError(t, err)
	require.Equal(t, "aaabbbccc", string(out))
}

func TestIdentityFilterPassesThrough(t *testing.T) {
	src := NewFilterSource(NewBufferSource([]byte("unchanged")), NewIdentityFilter())
	sink := NewBufferSink()
	_, err := sink.Pump(src)
	for err == nil {
		_, err = sink.Pump(src)
	}
	require.Equal(t, "unchanged", string(sink.Bytes()))
}

// TestAsyncWriteDriverBackpressure covers: if the sink's pump returns
// EAGAIN, no additional source chunks are requested until writability is
// next observed — the fake sink below pumps nothing on its first call and
// only succeeds once rearmed.
func TestAsyncWriteDriverBackpressure(t *testing.T) {
	src := NewBufferSource([]byte("payload"))
	blocked := true
	calls := 0
	sink := sinkFunc(func(s Source) (int64, error) {
		calls++
		if blocked {
			return 0, errs.ErrWouldBlock
		}
		return s.Pull(&netio.Buffer{})
	})

	var resumed func()
	done := false
	var doneErr error
	driver := NewAsyncWriteDriver(sink, src, func(resume func()) {
		resumed = resume
	}, func(err error) { done = true; doneErr = err })
	driver.Start()

	require.False(t, done, "must not finish while blocked")
	require.NotNil(t, resumed, "must rearm instead of busy-polling")
	callsAtBlock := calls

	blocked = false
	resumed()

	require.True(t, done)
	require.NoError(t, doneErr)
	require.Greater(t, calls, callsAtBlock)
}

type sinkFunc func(Source) (int64, error)

func (f sinkFunc) Pump(s Source) (int64, error) { return f(s) }

func bytesReader(p []byte) *bytesReaderT { return &bytesReaderT{p: p} }

type bytesReaderT struct {
	p   []byte
	pos int
}

func (r *bytesReaderT) Read(dst []byte) (int, error) {
	if r.pos >= len(r.p) {
		return 0, io.EOF
	}
	n := copy(dst, r.p[r.pos:])
	r.pos += n
	return n, nil
}
