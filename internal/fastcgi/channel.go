package fastcgi

import (
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/christianparpart/x0-sub009/internal/dateutil"
	"github.com/christianparpart/x0-sub009/internal/header"
	"github.com/christianparpart/x0-sub009/internal/http1"
	"github.com/christianparpart/x0-sub009/internal/netio"
	"github.com/christianparpart/x0-sub009/internal/sniff"
	"github.com/christianparpart/x0-sub009/internal/stream"
)

// State mirrors internal/http1.State: the per-request machine
// (READING/HANDLING/SENDING/DONE/ABORTED) applies unchanged to a FastCGI
// request, only the wire feeding it differs.
type State = http1.State

const (
	StateReading      = http1.StateReading
	StateHandling     = http1.StateHandling
	StateHandlingDone = http1.StateHandlingDone
	StateSending      = http1.StateSending
	StateDone         = http1.StateDone
	StateAborted      = http1.StateAborted
)

// Handler turns a FastCGI request into a response by driving the Channel's
// response-building API, mirroring internal/http1.Handler.
type Handler interface {
	ServeHTTP(ch *Channel)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ch *Channel)

func (f HandlerFunc) ServeHTTP(ch *Channel) { f(ch) }

// Config bundles per-connection knobs, mirroring internal/http1.Config minus
// the keep-alive-request ceiling (FastCGI's keep-conn comes from the
// BEGIN_REQUEST flag, not a response-counted policy).
type Config struct {
	ServerName string
	Log        *logrus.Logger
}

// Channel is one FastCGI request multiplexed over a shared Connection, keyed
// by request-id. Unlike internal/http1.Channel it is fed by a record
// demultiplexer instead of a byte-stream Parser; the handling and sending
// halves are otherwise the same shape.
type Channel struct {
	cfg     Config
	dategen *dateutil.Generator
	handler Handler

	requestID uint16
	keepConn  bool

	req  *http1.Request
	resp *http1.Response

	state   State
	outbox  *stream.CompositeSource
	filters []stream.Filter

	wroteHeader bool
	firstChunk  []byte

	onStateChange func(State)
}

// newChannel constructs a Channel for one request-id; called by Conn when a
// BEGIN_REQUEST record arrives.
func newChannel(cfg Config, dategen *dateutil.Generator, handler Handler, requestID uint16, keepConn bool) *Channel {
	return &Channel{
		cfg: cfg, dategen: dategen, handler: handler,
		requestID: requestID, keepConn: keepConn,
		state: StateReading,
	}
}

// OnStateChange installs the Conn's observer callback.
func (ch *Channel) OnStateChange(fn func(State)) { ch.onStateChange = fn }

func (ch *Channel) setState(s State) {
	ch.state = s
	if ch.onStateChange != nil {
		ch.onStateChange(s)
	}
}

// State returns the channel's current state.
func (ch *Channel) State() State { return ch.state }

// RequestID returns the FastCGI request-id this channel was opened for.
func (ch *Channel) RequestID() uint16 { return ch.requestID }

// Request returns the in-flight request, valid from HANDLING onward.
func (ch *Channel) Request() *http1.Request { return ch.req }

// Response returns the in-flight response, valid from HANDLING onward.
func (ch *Channel) Response() *http1.Response { return ch.resp }

// onParamsComplete is called once the PARAMS stream's terminating empty
// record arrives; params is the fully decoded CGI environment.
func (ch *Channel) onParamsComplete(params map[string]string) {
	ch.req = buildRequest(params)
	ch.resp = &http1.Response{StatusCode: 200}
	ch.outbox = stream.NewCompositeSource()
	ch.setState(StateHandling)
	ch.dispatch()
}

// pushStdin feeds one STDIN record's content to the request body.
func (ch *Channel) pushStdin(chunk []byte) {
	if ch.req != nil && ch.req.Body != nil {
		_ = ch.req.Body.PushContent(chunk)
	}
}

// endStdin is called when the empty STDIN record (end of stream) arrives.
func (ch *Channel) endStdin() {
	if ch.req != nil && ch.req.Body != nil {
		ch.req.Body.EndContent()
	}
}

func (ch *Channel) dispatch() {
	defer func() {
		if rec := recover(); rec != nil {
			ch.handlerPanicked(rec)
		}
	}()
	ch.handler.ServeHTTP(ch)
}

func (ch *Channel) handlerPanicked(rec interface{}) {
	if ch.cfg.Log != nil {
		ch.cfg.Log.WithField("panic", rec).Error("fastcgi: handler panicked")
	}
	if !ch.wroteHeader {
		ch.SetStatus(500, "")
		ch.Complete()
		return
	}
	ch.setState(StateAborted)
}

// --- Handler-facing response API, mirroring internal/http1.Channel ---

// SetStatus sets the response status code.
func (ch *Channel) SetStatus(code int, reason string) {
	if ch.resp == nil || ch.resp.HeadersFlushed() {
		return
	}
	ch.resp.StatusCode = code
	ch.resp.Reason = reason
}

// Header returns the mutable response header list.
func (ch *Channel) Header() *header.List { return &ch.resp.Headers }

// SetContentLength declares a known body length.
func (ch *Channel) SetContentLength(n int64) {
	if ch.resp.HeadersFlushed() {
		return
	}
	ch.resp.LengthMode = http1.LengthKnown
	ch.resp.ContentLength = n
}

// InstallFilter appends a body filter (e.g. gzip) to the output chain.
func (ch *Channel) InstallFilter(f stream.Filter) {
	if ch.wroteHeader {
		return
	}
	ch.filters = append(ch.filters, f)
}

// AppendBuffer queues p as the next response body chunk.
func (ch *Channel) AppendBuffer(p []byte) {
	if len(p) == 0 || ch.state == StateAborted {
		return
	}
	if !ch.wroteHeader {
		ch.firstChunk = p
	}
	ch.ensureHeadersFinalized()
	ch.outbox.Append(ch.wrapFilters(stream.NewBufferSource(append([]byte(nil), p...))))
}

// AppendFile queues fv as the next response body chunk. FastCGI's STDOUT
// stream has no sendfile fast path once record framing wraps it (see
// responseSource in conn.go), so this still benefits from FileSource's read-ahead but not
// from the Endpoint's zero-copy sendfile.
func (ch *Channel) AppendFile(fv netio.FileView) {
	if ch.state == StateAborted {
		return
	}
	if !ch.wroteHeader {
		ch.firstChunk = peekFileView(fv)
	}
	ch.ensureHeadersFinalized()
	ch.outbox.Append(ch.wrapFilters(stream.NewFileSource(fv)))
}

// peekFileView reads up to a sniffing-table-sized prefix of fv without
// disturbing the shared file offset, so AppendFile can sniff a Content-Type
// the same way AppendBuffer does from its in-memory chunk.
func peekFileView(fv netio.FileView) []byte {
	n := fv.Length
	if n > 512 {
		n = 512
	}
	if n <= 0 {
		return nil
	}
	buf := make([]byte, n)
	n64, err := fv.File().ReadAt(buf, fv.Offset)
	if n64 <= 0 && err != nil {
		return nil
	}
	return buf[:n64]
}

func (ch *Channel) wrapFilters(src stream.Source) stream.Source {
	if len(ch.filters) == 0 {
		return src
	}
	return stream.NewFilterSource(src, ch.filters...)
}

// Complete signals the handler is done producing body chunks.
func (ch *Channel) Complete() {
	if ch.resp.Completed() {
		return
	}
	ch.ensureHeadersFinalized()
	ch.resp.MarkCompleted()
	ch.setState(StateSending)
}

// Abort transitions the channel directly to ABORTED.
func (ch *Channel) Abort(err error) {
	if ch.cfg.Log != nil && err != nil {
		ch.cfg.Log.WithError(err).Warn("fastcgi: channel aborted")
	}
	ch.setState(StateAborted)
}

// ensureHeadersFinalized applies the CGI response header policy exactly
// once: a leading "Status:" pseudo-header (CGI/1.1's substitute for an
// HTTP status line, since FastCGI carries no wire status line of its own),
// then the ordinary header block.
func (ch *Channel) ensureHeadersFinalized() {
	if ch.wroteHeader {
		return
	}
	ch.wroteHeader = true

	h := &ch.resp.Headers
	hasCE := h.Contains(header.ContentEncoding)
	if len(ch.filters) > 0 && !hasCE {
		h.Set(header.ContentEncoding, ch.filters[len(ch.filters)-1].Name())
		hasCE = true
	}
	if hasCE {
		h.Del(header.ContentLength)
		ch.resp.LengthMode = http1.LengthUnknown
		vary := h.Get(header.Vary)
		if vary == "" {
			h.Set(header.Vary, header.AcceptEncoding)
		}
	}
	if ch.resp.LengthMode == http1.LengthKnown {
		h.Set(header.ContentLength, strconv.FormatInt(ch.resp.ContentLength, 10))
	}
	if !h.Contains(header.ContentType) && !ch.suppressesBody() {
		h.Set(header.ContentType, sniff.DetectContentType(ch.firstChunk))
	}
	h.Set(header.Date, ch.dategen.Format())
	if ch.cfg.ServerName != "" {
		h.Set(header.ServerHeader, ch.cfg.ServerName)
	}

	reason := ch.resp.Reason
	if reason == "" {
		reason = http1.ReasonFor(ch.resp.StatusCode)
		if reason == "Error" {
			reason = "OK"
		}
	}

	var head netio.Buffer
	head.Append([]byte("Status: "))
	head.Append([]byte(strconv.Itoa(ch.resp.StatusCode)))
	head.Append([]byte{' '})
	head.Append([]byte(reason))
	head.Append([]byte("\r\n"))
	h.Each(func(name, value string) {
		head.Append([]byte(name))
		head.Append([]byte(": "))
		head.Append([]byte(value))
		head.Append([]byte("\r\n"))
	})
	head.Append([]byte("\r\n"))

	ch.resp.MarkHeadersFlushed()
	ch.outbox.Append(stream.NewBufferSource(head.Bytes()))
	ch.setState(StateSending)
}

func (ch *Channel) suppressesBody() bool {
	code := ch.resp.StatusCode
	return ch.req.Method == http1.MethodHEAD || code == 204 || code == 304 || (code >= 100 && code < 200)
}

// Outbox returns the Source the owning Conn drains into STDOUT records.
func (ch *Channel) Outbox() *stream.CompositeSource { return ch.outbox }

// OutboxDrained reports whether every queued chunk has been flushed and
// Complete was called.
func (ch *Channel) OutboxDrained() bool {
	return ch.resp != nil && ch.resp.Completed() && ch.outbox.EOF()
}

// Finish transitions to DONE once OutboxDrained.
func (ch *Channel) Finish() { ch.setState(StateDone) }

// KeepConn reports the BEGIN_REQUEST record's FCGI_KEEP_CONN flag: whether
// the web server wants the connection to survive after this request's
// END_REQUEST.
func (ch *Channel) KeepConn() bool { return ch.keepConn }
