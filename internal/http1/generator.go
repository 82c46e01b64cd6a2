package http1

import (
	"strconv"

	"github.com/christianparpart/x0-sub009/internal/header"
	"github.com/christianparpart/x0-sub009/internal/netio"
)

// Generator serializes a Response onto the outbound wire, the symmetric
// counterpart of Parser. It has no knowledge of sockets: callers append its
// output into a netio.Buffer that the connection then flushes through the
// Endpoint.
type Generator struct{}

// WriteStatusLine appends "HTTP/major.minor SP code SP reason CRLF".
func (Generator) WriteStatusLine(out *netio.Buffer, verMaj, verMin, code int, reason string) {
	out.Append([]byte("HTTP/"))
	out.Append([]byte(strconv.Itoa(verMaj)))
	out.Append([]byte{'.'})
	out.Append([]byte(strconv.Itoa(verMin)))
	out.Append([]byte{' '})
	out.Append([]byte(strconv.Itoa(code)))
	out.Append([]byte{' '})
	out.Append([]byte(reason))
	out.Append([]byte("\r\n"))
}

// WriteHeaders appends fields followed by the blank line terminating the
// header block HeaderFieldList wire form.
func (Generator) WriteHeaders(out *netio.Buffer, fields *header.List) {
	fields.Each(func(name, value string) {
		out.Append([]byte(name))
		out.Append([]byte(": "))
		out.Append([]byte(value))
		out.Append([]byte("\r\n"))
	})
	out.Append([]byte("\r\n"))
}

// WriteChunk appends one chunked-encoding frame: "hex-size CRLF data CRLF",
// An empty chunk is invalid wire form; callers must use
// WriteLastChunk for end-of-body.
func (Generator) WriteChunk(out *netio.Buffer, data []byte) {
	if len(data) == 0 {
		return
	}
	out.Append([]byte(strconv.FormatInt(int64(len(data)), 16)))
	out.Append([]byte("\r\n"))
	out.Append(data)
	out.Append([]byte("\r\n"))
}

// WriteLastChunk appends the terminating "0 CRLF" frame followed by
// trailers (verbatim, per resolution of the Open Question on
// trailer emission) and the final CRLF.
func (Generator) WriteLastChunk(out *netio.Buffer, trailers *header.List) {
	out.Append([]byte("0\r\n"))
	if trailers != nil && trailers.Len() > 0 {
		trailers.Each(func(name, value string) {
			out.Append([]byte(name))
			out.Append([]byte(": "))
			out.Append([]byte(value))
			out.Append([]byte("\r\n"))
		})
	}
	out.Append([]byte("\r\n"))
}

// errorStatusLines supplies the fixed text requires for protocol
// errors emitted before any handler runs.
var errorStatusLines = map[int]string{
	400: "Bad Request",
	413: "Payload Too Large",
	414: "URI Too Long",
	431: "Request Header Fields Too Large",
	500: "Internal Server Error",
	503: "Service Unavailable",
	505: "HTTP Version Not Supported",
}

// ReasonFor returns the fixed reason phrase for status, or "Error" if none
// is registered.
func ReasonFor(status int) string {
	if r, ok := errorStatusLines[status]; ok {
		return r
	}
	return "Error"
}

// WriteFixedErrorResponse renders one of fixed error responses
// (400/413/414/431/500/503/505): a minimal plain-text body, Content-Length,
// Connection: close, no keep-alive.
func (g Generator) WriteFixedErrorResponse(out *netio.Buffer, verMaj, verMin, status int) {
	reason := ReasonFor(status)
	body := reason + "\n"
	g.WriteStatusLine(out, verMaj, verMin, status, reason)
	var h header.List
	h.Set(header.ContentType, "text/plain; charset=utf-8")
	h.Set(header.ContentLength, strconv.Itoa(len(body)))
	h.Set(header.Connection, "close")
	g.WriteHeaders(out, &h)
	out.Append([]byte(body))
}
