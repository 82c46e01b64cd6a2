package http1

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// recordingListener captures every Parser event in order, so tests can
// assert both the sequence (property 1: fragmentation invariance)
// and the payload.
type recordingListener struct {
	events []string
	body   []byte
	err    error
}

func (l *recordingListener) OnMessageBegin(method Method, rawMethod, rawTarget string, verMaj, verMin int) error {
	l.events = append(l.events, "begin:"+rawMethod+" "+rawTarget)
	return nil
}
func (l *recordingListener) OnMessageHeader(name, value string) error {
	l.events = append(l.events, "header:"+name+"="+value)
	return nil
}
func (l *recordingListener) OnMessageHeaderEnd() error {
	l.events = append(l.events, "headerend")
	return nil
}
func (l *recordingListener) OnMessageContent(chunk []byte) error {
	l.body = append(l.body, chunk...)
	l.events = append(l.events, "content")
	return nil
}
func (l *recordingListener) OnMessageEnd() error {
	l.events = append(l.events, "end")
	return nil
}
func (l *recordingListener) OnProtocolError(status int, message string) error {
	l.events = append(l.events, "error")
	l.err = errProtocol{status, message}
	return l.err
}

type errProtocol struct {
	status  int
	message string
}

func (e errProtocol) Error() string { return e.message }

// TestParserFragmentationInvariance implements quantified
// invariant: for any split of a well-formed byte stream into fragments, the
// parser must emit the same event sequence as feeding it whole.
func TestParserFragmentationInvariance(t *testing.T) {
	raw := []byte("GET /hi HTTP/1.1\r\nHost: x\r\nX-Multi: a\r\nX-Multi: b\r\n\r\n")

	whole := &recordingListener{}
	NewParser(whole, DefaultLimits).Feed(raw)

	splits := [][]int{
		{len(raw)},
		{1, len(raw) - 1},
		{5, 10, len(raw) - 15},
	}
	for _, sizes := range splits {
		l := &recordingListener{}
		p := NewParser(l, DefaultLimits)
		off := 0
		for _, n := range sizes {
			require.NoError(t, p.Feed(raw[off:off+n]))
			off += n
		}
		require.Equal(t, whole.events, l.events, "split=%v", sizes)
	}

	// Byte-at-a-time is the extreme fragmentation case.
	l := &recordingListener{}
	p := NewParser(l, DefaultLimits)
	for i := range raw {
		require.NoError(t, p.Feed(raw[i:i+1]))
	}
	require.Equal(t, whole.events, l.events)
}

// TestParserChunkedDecode implements scenario 2: concatenated
// chunk payloads reach the listener as "hello world" with a clean end.
func TestParserChunkedDecode(t *testing.T) {
	raw := "POST /u HTTP/1.1\r\nHost: x\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"5\r\nhello\r\n6\r\n world\r\n0\r\n\r\n"

	l := &recordingListener{}
	p := NewParser(l, DefaultLimits)
	require.NoError(t, p.Feed([]byte(raw)))
	require.Equal(t, "hello world", string(l.body))
	require.Equal(t, "end", l.events[len(l.events)-1])
}

// TestParserChunkedDecodeFragmented re-runs scenario 2 split across
// arbitrarily small fragments, since chunked decoding is the parser's most
// stateful sub-machine.
func TestParserChunkedDecodeFragmented(t *testing.T) {
	raw := "POST /u HTTP/1.1\r\nHost: x\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"5\r\nhello\r\n6\r\n world\r\n0\r\n\r\n"

	l := &recordingListener{}
	p := NewParser(l, DefaultLimits)
	for i := 0; i < len(raw); i++ {
		require.NoError(t, p.Feed([]byte(raw)[i:i+1]))
	}
	require.Equal(t, "hello world", string(l.body))
}

// TestParserRejectsConflictingFraming covers "Content-Length
// and Transfer-Encoding are mutually exclusive; if both, protocol-error."
func TestParserRejectsConflictingFraming(t *testing.T) {
	raw := "POST /u HTTP/1.1\r\nHost: x\r\nContent-Length: 5\r\nTransfer-Encoding: chunked\r\n\r\nhello"
	l := &recordingListener{}
	p := NewParser(l, DefaultLimits)
	_ = p.Feed([]byte(raw))
	require.Error(t, l.err)
	ep := l.err.(errProtocol)
	require.Equal(t, 400, ep.status)
}

// TestParserURITooLong covers 414 bound. The URI is fed before
// its terminating space arrives, so the overflow check (which only fires
// when a fragment's accumulated length exceeds the limit without yet
// finding the delimiter) is actually exercised.
func TestParserURITooLong(t *testing.T) {
	limits := DefaultLimits
	limits.MaxURILength = 4
	l := &recordingListener{}
	p := NewParser(l, limits)
	require.NoError(t, p.Feed([]byte("GET ")))
	_ = p.Feed([]byte("much-too-long-path"))
	require.Error(t, l.err)
	require.Equal(t, 414, l.err.(errProtocol).status)
}

// TestParserUnknownMethodPreservesRawText covers "unknown
// methods become UNKNOWN_METHOD preserving the raw string."
func TestParserUnknownMethodPreservesRawText(t *testing.T) {
	l := &recordingListener{}
	p := NewParser(l, DefaultLimits)
	require.NoError(t, p.Feed([]byte("BREW /coffee HTTP/1.1\r\nHost: x\r\n\r\n")))
	require.Equal(t, "begin:BREW /coffee", l.events[0])
	require.Equal(t, MethodUnknown, LookupMethod("BREW"))
}

// TestParserObsFoldIsProtocolError covers "folding not
// supported -- any obs-fold is a protocol error": a bare CR embedded inside
// a header value line (as obsolete line-folding produces once its leading
// whitespace is stripped) is rejected rather than silently accepted.
func TestParserObsFoldIsProtocolError(t *testing.T) {
	raw := "GET / HTTP/1.1\r\nHost: x\r\nX-Bad: a\rb\r\n\r\n"
	l := &recordingListener{}
	p := NewParser(l, DefaultLimits)
	_ = p.Feed([]byte(raw))
	require.Error(t, l.err)
	require.Equal(t, 400, l.err.(errProtocol).status)
}
