package fastcgi

import (
	"io"

	"github.com/sirupsen/logrus"

	"github.com/christianparpart/x0-sub009/internal/connection"
	"github.com/christianparpart/x0-sub009/internal/dateutil"
	"github.com/christianparpart/x0-sub009/internal/errs"
	"github.com/christianparpart/x0-sub009/internal/netio"
	"github.com/christianparpart/x0-sub009/internal/stream"
)

// requestState tracks one multiplexed FastCGI request within a Conn: each
// request-id maps onto an independent Channel instance.
type requestState struct {
	ch         *Channel
	paramsBuf  []byte
	paramsDone bool
}

// Conn is the FastCGI Connection: one endpoint, one record demultiplexer,
// and one Channel per open request-id.
type Conn struct {
	ep  netio.Endpoint
	cfg Config
	log *logrus.Logger

	dategen *dateutil.Generator
	handler Handler

	in []byte // accumulated, not-yet-parsed record bytes

	requests map[uint16]*requestState

	// sendQueue holds request-ids whose Channel has entered SENDING and is
	// waiting for its turn at the shared endpoint; FastCGI writes are
	// serialized one response at a time per connection (reads remain fully
	// multiplexed), avoiding write-callback contention on one Endpoint.
	sendQueue []uint16
	writing   bool

	closed      bool
	anyKeepConn bool
}

// NewConnectionFactory returns a connection.Factory that builds FastCGI
// connections bound to handler, for registration under protocol name "fcgi"
// in a connection.Registry.
func NewConnectionFactory(cfg Config, handler Handler) connection.Factory {
	dategen := dateutil.New()
	return func(ep netio.Endpoint) connection.Connection {
		return &Conn{
			ep: ep, cfg: cfg, log: cfg.Log,
			dategen: dategen, handler: handler,
			requests: make(map[uint16]*requestState),
		}
	}
}

// OnReadable fills from the endpoint and demultiplexes whatever complete
// records are now available.
func (c *Conn) OnReadable() {
	for !c.closed {
		var buf netio.Buffer
		n, err := c.ep.Fill(&buf)
		if err != nil {
			if err == errs.ErrWouldBlock {
				c.ep.WantRead()
				return
			}
			c.Close()
			return
		}
		if n == 0 {
			c.Close()
			return
		}
		c.in = append(c.in, buf.Bytes()[:n]...)
		c.drainRecords()
	}
}

// drainRecords parses and dispatches every complete record currently
// buffered in c.in, using fixed 8-byte-header framing.
func (c *Conn) drainRecords() {
	for {
		if len(c.in) < headerLen {
			return
		}
		h := decodeHeader(c.in)
		total := headerLen + int(h.contentLength) + int(h.paddingLength)
		if len(c.in) < total {
			return
		}
		content := c.in[headerLen : headerLen+int(h.contentLength)]
		c.handleRecord(h, content)
		c.in = c.in[total:]
	}
}

func (c *Conn) handleRecord(h header, content []byte) {
	switch h.reqType {
	case typeBeginRequest:
		body := decodeBeginRequestBody(content)
		if body.role != RoleResponder {
			var resp []byte
			resp = appendEndRequest(resp, h.requestID, 0, StatusUnknownRole)
			c.writeRaw(resp)
			return
		}
		c.anyKeepConn = body.keepConn()
		rs := &requestState{}
		rs.ch = newChannel(c.cfg, c.dategen, c.handler, h.requestID, body.keepConn())
		rs.ch.OnStateChange(func(s State) { c.onChannelStateChange(h.requestID, s) })
		c.requests[h.requestID] = rs

	case typeAbortRequest:
		if rs, ok := c.requests[h.requestID]; ok && rs.ch != nil {
			rs.ch.Abort(nil)
		}

	case typeParams:
		rs, ok := c.requests[h.requestID]
		if !ok {
			return
		}
		if len(content) == 0 {
			rs.paramsDone = true
			params, err := decodeNameValuePairs(rs.paramsBuf)
			if err != nil {
				delete(c.requests, h.requestID)
				return
			}
			rs.ch.onParamsComplete(params)
			return
		}
		rs.paramsBuf = append(rs.paramsBuf, content...)

	case typeStdin:
		rs, ok := c.requests[h.requestID]
		if !ok {
			return
		}
		if len(content) == 0 {
			rs.ch.endStdin()
			return
		}
		rs.ch.pushStdin(content)

	case typeData:
		// Filter role's second input stream; unused by the Responder role
		// this implementation serves.

	default:
		var resp []byte
		resp = appendRecord(resp, typeUnknownType, h.requestID, []byte{h.reqType, 0, 0, 0, 0, 0, 0, 0})
		c.writeRaw(resp)
	}
}

// onChannelStateChange enqueues a request-id for the shared write pump once
// its Channel starts producing response bytes, and retires it once its
// END_REQUEST has gone out.
func (c *Conn) onChannelStateChange(requestID uint16, s State) {
	if s == StateSending {
		c.sendQueue = append(c.sendQueue, requestID)
		c.pumpNext()
	}
	if s == StateAborted {
		delete(c.requests, requestID)
	}
}

// pumpNext drains the head of sendQueue to completion (its framed STDOUT
// bytes, terminator, and END_REQUEST), then advances to the next queued
// request-id. Only one response drains onto the endpoint at a time.
func (c *Conn) pumpNext() {
	if c.writing || len(c.sendQueue) == 0 {
		return
	}
	requestID := c.sendQueue[0]
	c.sendQueue = c.sendQueue[1:]
	rs, ok := c.requests[requestID]
	if !ok {
		c.pumpNext()
		return
	}
	c.writing = true

	source := newResponseSource(rs.ch)
	sink := stream.NewEndpointSink(c.ep)
	driver := stream.NewAsyncWriteDriver(sink, source, func(resume func()) {
		c.ep.WantWrite()
		if rearmer, ok := c.ep.(interface{ SetWriteCallback(onReady, onTimeout func()) }); ok {
			rearmer.SetWriteCallback(resume, func() { c.Close() })
		}
	}, func(err error) {
		c.writing = false
		if err != nil {
			c.Close()
			return
		}
		rs.ch.Finish()
		keepConn := rs.ch.KeepConn()
		delete(c.requests, requestID)
		if !keepConn {
			c.Close()
			return
		}
		c.pumpNext()
	})
	driver.Start()
}

func (c *Conn) writeRaw(p []byte) {
	for len(p) > 0 {
		n, err := c.ep.Flush(p)
		if n > 0 {
			p = p[n:]
		}
		if err != nil {
			if err == errs.ErrWouldBlock {
				c.ep.WantWrite()
				return
			}
			c.Close()
			return
		}
	}
}

// OnWritable exists to satisfy connection.Connection; actual write resumption
// happens through AsyncWriteDriver's rearm callback in pumpNext.
func (c *Conn) OnWritable() {}

// Closed reports whether this connection has torn down its endpoint.
func (c *Conn) Closed() bool { return c.closed }

// Close tears down the endpoint idempotently.
func (c *Conn) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.ep.Close()
}

// responseSource is a stream.Source that frames one Channel's outbox bytes
// into FCGI_STDOUT records, followed by the empty terminating STDOUT record
// and the END_REQUEST record. Record framing caps each record's content at
// maxContentLength, splitting larger pulls.
type responseSource struct {
	ch      *Channel
	trailer []byte // pre-built terminator + END_REQUEST, appended once
	pos     int
	done    bool
}

func newResponseSource(ch *Channel) *responseSource {
	return &responseSource{ch: ch}
}

func (s *responseSource) Pull(buf *netio.Buffer) (int, error) {
	if s.done {
		return 0, io.EOF
	}
	if s.trailer != nil {
		n := len(s.trailer) - s.pos
		dst := buf.Grow(n)
		copy(dst, s.trailer[s.pos:])
		buf.Commit(n)
		s.pos += n
		s.done = true
		return n, nil
	}

	var tmp netio.Buffer
	n, err := s.ch.Outbox().Pull(&tmp)
	written := 0
	if n > 0 {
		content := tmp.Bytes()[:n]
		for len(content) > 0 {
			chunk := content
			if len(chunk) > maxContentLength {
				chunk = chunk[:maxContentLength]
			}
			dst := buf.Grow(headerLen + len(chunk) + 7)
			framed := appendRecord(dst[:0], typeStdout, s.ch.RequestID(), chunk)
			buf.Commit(len(framed))
			written += len(framed)
			content = content[len(chunk):]
		}
	}
	if err == io.EOF && s.ch.OutboxDrained() {
		var trailer []byte
		trailer = appendRecord(trailer, typeStdout, s.ch.RequestID(), nil)
		trailer = appendEndRequest(trailer, s.ch.RequestID(), 0, StatusRequestComplete)
		s.trailer = trailer
		return written, nil
	}
	if written == 0 && err == nil {
		// Nothing ready yet and not EOF: the handler hasn't appended the next
		// chunk. The pump starts as soon as the headers are finalized, which
		// is before the first body chunk is queued, so this can happen while
		// the handler is still producing; surface would-block to let the
		// driver rearm rather than busy-loop.
		return 0, errs.ErrWouldBlock
	}
	return written, nil
}

func (s *responseSource) EOF() bool { return s.done }

func (s *responseSource) Accept(v stream.SinkVisitor) error { return v.Default(s) }
