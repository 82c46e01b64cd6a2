// Package http1 implements the HTTP/1 wire protocol: a zero-allocation
// streaming Parser, a Generator for the outbound half, and the Channel
// state machine that glues both to a Handler. This package does not know
// about sockets; it operates purely on bytes handed to it by a
// connection.Connection over a netio.Endpoint.
package http1

import (
	"net"

	"github.com/christianparpart/x0-sub009/internal/header"
)

// Method is the enumerated request method. Unknown methods keep their raw
// wire text in Request.RawMethod rather than being rejected.
type Method uint8

const (
	MethodUnknown Method = iota
	MethodGET
	MethodHEAD
	MethodPOST
	MethodPUT
	MethodDELETE
	MethodOPTIONS
	MethodTRACE
	MethodCONNECT
	MethodPROPFIND
	MethodPROPPATCH
	MethodMKCOL
	MethodCOPY
	MethodMOVE
	MethodLOCK
	MethodUNLOCK
)

// methodTable is the exact string table used for method lookup; anything
// not listed here becomes MethodUnknown.
var methodTable = map[string]Method{
	"GET":       MethodGET,
	"HEAD":      MethodHEAD,
	"POST":      MethodPOST,
	"PUT":       MethodPUT,
	"DELETE":    MethodDELETE,
	"OPTIONS":   MethodOPTIONS,
	"TRACE":     MethodTRACE,
	"CONNECT":   MethodCONNECT,
	"PROPFIND":  MethodPROPFIND,
	"PROPPATCH": MethodPROPPATCH,
	"MKCOL":     MethodMKCOL,
	"COPY":      MethodCOPY,
	"MOVE":      MethodMOVE,
	"LOCK":      MethodLOCK,
	"UNLOCK":    MethodUNLOCK,
}

// LookupMethod maps raw via exact string table; unknown methods become
// MethodUnknown while preserving the raw string in the caller.
func LookupMethod(raw string) Method {
	if m, ok := methodTable[raw]; ok {
		return m
	}
	return MethodUnknown
}

// ContentLengthMode is Response's content-length framing choice.
type ContentLengthMode uint8

const (
	// LengthUnknown means no mode has been chosen yet.
	LengthUnknown ContentLengthMode = iota
	// LengthKnown means a fixed Content-Length: N applies.
	LengthKnown
	// LengthChunked means Transfer-Encoding: chunked applies.
	LengthChunked
	// LengthUntilClose means the body is delimited by connection close.
	LengthUntilClose
)

// Request is the in-flight HTTP/1 request. It is owned exclusively by the
// Channel that created it; handlers only borrow it.
type Request struct {
	Method     Method
	RawMethod  string
	VersionMaj int
	VersionMin int

	RawTarget string
	Path      string
	Query     string

	Host    string
	Headers header.List

	// ContentLength is the declared Content-Length, or 0 if none was sent;
	// a chunked body also leaves it at 0 (see Chunked).
	ContentLength int64
	Chunked       bool
	Expect100     bool

	// Body is fed by the Parser's onMessageContent callback; Channel
	// exposes it to handlers either fully buffered or streamed
	// incrementally.
	Body *BodyReader

	RemoteAddr net.Addr
	LocalAddr  net.Addr

	// Custom is the opaque per-request attachment map, keyed by owner
	// pointer so unrelated plug-ins never collide.
	Custom map[interface{}]interface{}
}

// Reset clears r for reuse by a subsequent request on the same connection
// (HTTP/1 keep-alive).
func (r *Request) Reset() {
	*r = Request{RemoteAddr: r.RemoteAddr, LocalAddr: r.LocalAddr}
}

// SetCustom attaches per-request state keyed by an opaque owner pointer
// (typically a plug-in's package-level sentinel or *T).
func (r *Request) SetCustom(owner, value interface{}) {
	if r.Custom == nil {
		r.Custom = make(map[interface{}]interface{})
	}
	r.Custom[owner] = value
}

// GetCustom retrieves a value previously attached with SetCustom.
func (r *Request) GetCustom(owner interface{}) (interface{}, bool) {
	if r.Custom == nil {
		return nil, false
	}
	v, ok := r.Custom[owner]
	return v, ok
}

// Response is the in-flight HTTP/1 response.
type Response struct {
	StatusCode int
	Reason     string

	Headers  header.List
	Trailers header.List

	LengthMode    ContentLengthMode
	ContentLength int64

	// headersFlushed and completed enforce the two invariants: no header
	// mutation after flush, no further chunks after completion.
	headersFlushed bool
	completed      bool
}

// HeadersFlushed reports whether the header block has already gone out.
func (resp *Response) HeadersFlushed() bool { return resp.headersFlushed }

// MarkHeadersFlushed is called by Channel exactly once, at the SENDING
// transition.
func (resp *Response) MarkHeadersFlushed() { resp.headersFlushed = true }

// Completed reports whether Handler called completed on this response.
func (resp *Response) Completed() bool { return resp.completed }

// MarkCompleted is called by Channel when the handler signals completion.
func (resp *Response) MarkCompleted() { resp.completed = true }
