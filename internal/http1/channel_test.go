package http1

import (
	"bytes"
	"compress/gzip"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/christianparpart/x0-sub009/internal/dateutil"
	"github.com/christianparpart/x0-sub009/internal/stream"
)

func newTestDategen() *dateutil.Generator { return dateutil.New() }

// drain pumps ch's outbox to completion via an in-memory sink and returns
// everything written, mirroring what a real Conn's AsyncWriteDriver would
// push into the endpoint.
func drain(t *testing.T, ch *Channel) []byte {
	t.Helper()
	sink := stream.NewBufferSink()
	for {
		_, err := sink.Pump(ch.Outbox())
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}
	return sink.Bytes()
}

func splitHeadBody(raw []byte) (head, body string) {
	s := string(raw)
	i := strings.Index(s, "\r\n\r\n")
	if i < 0 {
		return s, ""
	}
	return s[:i], s[i+4:]
}

// TestSimpleGET implements scenario 1.
func TestSimpleGET(t *testing.T) {
	cfg := Config{ServerName: "flowserve"}
	ch := NewChannel(cfg, newTestDategen(), HandlerFunc(func(ch *Channel) {
		ch.Header().Set("Content-Type", "text/plain")
		ch.AppendBuffer([]byte("Hi"))
		ch.Complete()
	}))

	require.NoError(t, ch.Feed([]byte("GET /hi HTTP/1.1\r\nHost: x\r\n\r\n")))
	raw := drain(t, ch)
	head, body := splitHeadBody(raw)

	require.True(t, strings.HasPrefix(head, "HTTP/1.1 200 OK\r\n"), head)
	require.Contains(t, head, "Content-Length: 2")
	require.Contains(t, head, "Content-Type: text/plain")
	require.Contains(t, head, "Date: ")
	require.Equal(t, "Hi", body)
	require.True(t, ch.Persistent())
}

// TestHeadHasNoBody implements scenario 3: headers (including
// Content-Length: 1024) go out, but zero body bytes follow.
func TestHeadHasNoBody(t *testing.T) {
	cfg := Config{}
	ch := NewChannel(cfg, newTestDategen(), HandlerFunc(func(ch *Channel) {
		ch.SetContentLength(1024)
		ch.AppendBuffer(bytes.Repeat([]byte{'x'}, 1024))
		ch.Complete()
	}))

	require.NoError(t, ch.Feed([]byte("HEAD /hi HTTP/1.1\r\nHost: x\r\n\r\n")))
	raw := drain(t, ch)
	head, body := splitHeadBody(raw)

	require.Contains(t, head, "Content-Length: 1024")
	require.Equal(t, "", body)
}

// TestKeepAliveLimit implements scenario 4: with
// max-keep-alive-requests = 3, the server sends three Connection:
// keep-alive responses, then a fourth with Connection: close, then stops
// (the remaining pipelined requests are never reached).
func TestKeepAliveLimit(t *testing.T) {
	cfg := Config{MaxKeepAliveRequests: 3}
	ch := NewChannel(cfg, newTestDategen(), HandlerFunc(func(ch *Channel) {
		ch.AppendBuffer([]byte("ok"))
		ch.Complete()
	}))

	for i := 1; i <= 4; i++ {
		require.NoError(t, ch.Feed([]byte("GET / HTTP/1.1\r\nHost: x\r\nConnection: keep-alive\r\n\r\n")))
		raw := drain(t, ch)
		head, _ := splitHeadBody(raw)
		if i <= 3 {
			require.Contains(t, head, "Connection: keep-alive", "response %d", i)
			require.True(t, ch.Persistent(), "response %d", i)
		} else {
			require.Contains(t, head, "Connection: close", "response %d", i)
			require.False(t, ch.Persistent(), "response %d", i)
		}
		ch.Finish()
		if !ch.Persistent() {
			break
		}
		ch.Reset()
	}
	require.False(t, ch.Persistent())
}

// TestChunkedGzipResponse implements scenario 6.
func TestChunkedGzipResponse(t *testing.T) {
	cfg := Config{}
	ch := NewChannel(cfg, newTestDategen(), HandlerFunc(func(ch *Channel) {
		ch.InstallFilter(stream.NewGzipFilter())
		ch.AppendBuffer([]byte("aaa"))
		ch.AppendBuffer([]byte("bbb"))
		ch.AppendBuffer([]byte("ccc"))
		ch.Complete()
	}))

	require.NoError(t, ch.Feed([]byte("GET /z HTTP/1.1\r\nHost: x\r\n\r\n")))
	raw := drain(t, ch)
	head, body := splitHeadBody(raw)

	require.Contains(t, head, "Content-Encoding: gzip")
	require.Contains(t, head, "Transfer-Encoding: chunked")
	require.Contains(t, head, "Vary: Accept-Encoding")
	require.NotContains(t, head, "Content-Length:")

	plain := dechunk(t, body)
	zr, err := gzip.NewReader(bytes.NewReader(plain))
	require.NoError(t, err)
	out, err := io.ReadAll(zr)
	require.NoError(t, err)
	require.Equal(t, "aaabbbccc", string(out))
}

// TestSniffsContentTypeFromFirstChunk covers a handler that never sets
// Content-Type: the header must be sniffed from the actual first body
// chunk, not fall through to application/octet-stream for every response.
func TestSniffsContentTypeFromFirstChunk(t *testing.T) {
	cfg := Config{}
	ch := NewChannel(cfg, newTestDategen(), HandlerFunc(func(ch *Channel) {
		ch.AppendBuffer([]byte("<!DOCTYPE html><html><body>hi</body></html>"))
		ch.Complete()
	}))

	require.NoError(t, ch.Feed([]byte("GET /hi HTTP/1.1\r\nHost: x\r\n\r\n")))
	raw := drain(t, ch)
	head, _ := splitHeadBody(raw)

	require.Contains(t, head, "Content-Type: text/html")
}

// TestExpect100ContinueEmitted covers scenario Expect: 100-continue: the
// channel must push the interim response ahead of the final one, not just
// record the flag and never act on it.
func TestExpect100ContinueEmitted(t *testing.T) {
	cfg := Config{}
	ch := NewChannel(cfg, newTestDategen(), HandlerFunc(func(ch *Channel) {
		ch.AppendBuffer([]byte("ok"))
		ch.Complete()
	}))

	require.NoError(t, ch.Feed([]byte(
		"POST /upload HTTP/1.1\r\nHost: x\r\nExpect: 100-continue\r\nContent-Length: 2\r\n\r\n")))
	raw := drain(t, ch)

	require.True(t, strings.HasPrefix(string(raw), "HTTP/1.1 100 Continue\r\n\r\n"), string(raw))
	require.Contains(t, string(raw), "HTTP/1.1 200 OK\r\n")
}

// dechunk strips chunked framing from body, returning the concatenated
// chunk payloads.
func dechunk(t *testing.T, body string) []byte {
	t.Helper()
	var out []byte
	rest := body
	for {
		i := strings.Index(rest, "\r\n")
		require.GreaterOrEqual(t, i, 0, "malformed chunk size line in %q", rest)
		sizeLine := rest[:i]
		rest = rest[i+2:]
		var size int
		_, err := fmtSscanHex(sizeLine, &size)
		require.NoError(t, err)
		if size == 0 {
			return out
		}
		out = append(out, rest[:size]...)
		rest = rest[size+2:] // skip chunk data + trailing CRLF
	}
}

func fmtSscanHex(s string, out *int) (int, error) {
	n := 0
	for _, c := range s {
		var d int
		switch {
		case c >= '0' && c <= '9':
			d = int(c - '0')
		case c >= 'a' && c <= 'f':
			d = int(c-'a') + 10
		case c >= 'A' && c <= 'F':
			d = int(c-'A') + 10
		default:
			return 0, io.ErrUnexpectedEOF
		}
		n = n*16 + d
	}
	*out = n
	return 1, nil
}
