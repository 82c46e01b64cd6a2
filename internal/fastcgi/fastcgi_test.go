package fastcgi

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/christianparpart/x0-sub009/internal/dateutil"
	"github.com/christianparpart/x0-sub009/internal/netio"
)

func TestNameValuePairRoundTrip(t *testing.T) {
	var buf []byte
	buf = appendNameValuePair(buf, "REQUEST_METHOD", "GET")
	buf = appendNameValuePair(buf, "SCRIPT_NAME", "/index.php")
	buf = appendNameValuePair(buf, "CONTENT_LENGTH", "")

	params, err := decodeNameValuePairs(buf)
	require.NoError(t, err)
	assert.Equal(t, "GET", params["REQUEST_METHOD"])
	assert.Equal(t, "/index.php", params["SCRIPT_NAME"])
	assert.Equal(t, "", params["CONTENT_LENGTH"])
}

func TestNameValuePairLongLength(t *testing.T) {
	value := make([]byte, 200)
	for i := range value {
		value[i] = 'x'
	}
	var buf []byte
	buf = appendNameValuePair(buf, "X", string(value))

	params, err := decodeNameValuePairs(buf)
	require.NoError(t, err)
	assert.Equal(t, string(value), params["X"])
}

func TestRecordHeaderRoundTrip(t *testing.T) {
	var buf []byte
	buf = appendRecord(buf, typeStdout, 7, []byte("hello"))
	h := decodeHeader(buf)
	assert.Equal(t, uint8(version1), h.version)
	assert.Equal(t, typeStdout, h.reqType)
	assert.EqualValues(t, 7, h.requestID)
	assert.EqualValues(t, 5, h.contentLength)
	// "hello" is 5 bytes, padded to 8: 3 bytes of padding.
	assert.EqualValues(t, 3, h.paddingLength)
	assert.Equal(t, headerLen+5+3, len(buf))
}

func TestBuildRequestFromParams(t *testing.T) {
	params := map[string]string{
		"REQUEST_METHOD":  "POST",
		"SCRIPT_NAME":     "/app",
		"PATH_INFO":       "/users",
		"QUERY_STRING":    "id=1",
		"SERVER_PROTOCOL": "HTTP/1.1",
		"HTTP_HOST":       "example.com",
		"HTTP_X_CUSTOM":   "abc",
		"CONTENT_LENGTH":  "12",
		"CONTENT_TYPE":    "application/json",
	}
	req := buildRequest(params)
	assert.Equal(t, "POST", req.RawMethod)
	assert.Equal(t, "/app/users", req.Path)
	assert.Equal(t, "id=1", req.Query)
	assert.Equal(t, "example.com", req.Host)
	assert.Equal(t, "abc", req.Headers.Get("X-Custom"))
	assert.Equal(t, int64(12), req.ContentLength)
	assert.Equal(t, 1, req.VersionMaj)
	assert.Equal(t, 1, req.VersionMin)
}

func TestChannelServesResponder(t *testing.T) {
	dg := dateutil.New()
	handled := false
	handler := HandlerFunc(func(ch *Channel) {
		handled = true
		ch.SetContentLength(5)
		ch.AppendBuffer([]byte("hello"))
		ch.Complete()
	})

	var lastState State
	ch := newChannel(Config{}, dg, handler, 1, false)
	ch.OnStateChange(func(s State) { lastState = s })
	ch.onParamsComplete(map[string]string{
		"REQUEST_METHOD":  "GET",
		"SCRIPT_NAME":     "/",
		"SERVER_PROTOCOL": "HTTP/1.1",
	})

	assert.True(t, handled)
	assert.Equal(t, StateSending, lastState)

	src := newResponseSource(ch)
	var out []byte
	for {
		var buf netio.Buffer
		n, err := src.Pull(&buf)
		out = append(out, buf.Bytes()[:n]...)
		if err != nil {
			require.Equal(t, io.EOF, err)
			break
		}
	}
	assert.True(t, ch.OutboxDrained())
	assert.Contains(t, string(out), "Status: 200 OK")
	assert.Contains(t, string(out), "hello")
}

// TestSniffsContentTypeFromFirstChunk covers a handler that never sets
// Content-Type: the header must be sniffed from the actual first body
// chunk, not fall through to application/octet-stream for every response.
func TestSniffsContentTypeFromFirstChunk(t *testing.T) {
	dg := dateutil.New()
	handler := HandlerFunc(func(ch *Channel) {
		ch.AppendBuffer([]byte("<!DOCTYPE html><html><body>hi</body></html>"))
		ch.Complete()
	})

	ch := newChannel(Config{}, dg, handler, 1, false)
	ch.onParamsComplete(map[string]string{
		"REQUEST_METHOD":  "GET",
		"SCRIPT_NAME":     "/",
		"SERVER_PROTOCOL": "HTTP/1.1",
	})

	src := newResponseSource(ch)
	var out []byte
	for {
		var buf netio.Buffer
		n, err := src.Pull(&buf)
		out = append(out, buf.Bytes()[:n]...)
		if err != nil {
			require.Equal(t, io.EOF, err)
			break
		}
	}
	assert.Contains(t, string(out), "Content-Type: text/html")
}
