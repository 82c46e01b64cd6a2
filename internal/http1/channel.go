package http1

import (
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/christianparpart/x0-sub009/internal/dateutil"
	"github.com/christianparpart/x0-sub009/internal/errs"
	"github.com/christianparpart/x0-sub009/internal/header"
	"github.com/christianparpart/x0-sub009/internal/netio"
	"github.com/christianparpart/x0-sub009/internal/reqtarget"
	"github.com/christianparpart/x0-sub009/internal/sniff"
	"github.com/christianparpart/x0-sub009/internal/stream"
)

// State is the Channel state machine's current phase.
type State uint8

const (
	StateReading State = iota
	StateHandling
	StateHandlingDone
	StateSending
	StateDone
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateReading:
		return "reading"
	case StateHandling:
		return "handling"
	case StateHandlingDone:
		return "handling-done"
	case StateSending:
		return "sending"
	case StateDone:
		return "done"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Handler turns a request into a response by driving the Channel's
// response-building API. ServeHTTP may complete synchronously or retain ch
// and call Complete later (e.g. once a suspended Flow runner resumes).
type Handler interface {
	ServeHTTP(ch *Channel)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ch *Channel)

func (f HandlerFunc) ServeHTTP(ch *Channel) { f(ch) }

// Config bundles the per-connection knobs a Channel needs, so Connection can
// construct channels without passing a dozen parameters.
type Config struct {
	ServerName           string // empty disables the Server header (cloaking)
	MaxKeepAliveRequests int    // 0 = unlimited
	Limits               Limits
	Log                  *logrus.Logger
}

// Channel is the per-request state machine: READING → HANDLING → SENDING →
// DONE, with transient HANDLING_DONE, and terminal ABORTED from any state.
type Channel struct {
	cfg     Config
	dategen *dateutil.Generator
	handler Handler

	parser *Parser
	gen    Generator

	req  *Request
	resp *Response

	state        State
	persistent   bool
	requestCount int

	outbox       *stream.CompositeSource
	filters      []stream.Filter
	wroteHeader  bool
	firstChunk   []byte
	sentContinue bool

	// onStateChange lets the owning Connection observe SENDING entry (to
	// start pumping) and DONE/ABORTED exit (to decide keep-alive / close).
	onStateChange func(State)

	// onInterim lets the owning Connection flush an interim (1xx) response
	// queued onto outbox immediately, without waiting for the HANDLING→
	// SENDING transition the final response drives.
	onInterim func()
}

// NewChannel constructs a Channel bound to handler, sharing dategen (a
// per-connection cached Date generator) across every request served on the
// connection.
func NewChannel(cfg Config, dategen *dateutil.Generator, handler Handler) *Channel {
	ch := &Channel{cfg: cfg, dategen: dategen, handler: handler, persistent: true}
	ch.req = &Request{RemoteAddr: nil}
	ch.parser = NewParser(ch, cfg.Limits)
	return ch
}

// OnStateChange installs the Connection's observer callback.
func (ch *Channel) OnStateChange(fn func(State)) { ch.onStateChange = fn }

// OnInterimFlush installs the Connection's callback for draining an interim
// response (SendContinue) immediately.
func (ch *Channel) OnInterimFlush(fn func()) { ch.onInterim = fn }

func (ch *Channel) setState(s State) {
	ch.state = s
	if ch.onStateChange != nil {
		ch.onStateChange(s)
	}
}

// State returns the channel's current state.
func (ch *Channel) State() State { return ch.state }

// Request returns the in-flight request, valid from HANDLING onward.
func (ch *Channel) Request() *Request { return ch.req }

// Response returns the in-flight response, valid from HANDLING onward.
func (ch *Channel) Response() *Response { return ch.resp }

// Feed pushes connection bytes into the parser. Called by Connection for
// every Fill that returns data while the channel is in READING.
func (ch *Channel) Feed(data []byte) error {
	return ch.parser.Feed(data)
}

// --- Listener implementation (Parser → Channel) ---

func (ch *Channel) OnMessageBegin(method Method, rawMethod, rawTarget string, verMaj, verMin int) error {
	ch.req.Method = method
	ch.req.RawMethod = rawMethod
	ch.req.RawTarget = rawTarget
	ch.req.VersionMaj = verMaj
	ch.req.VersionMin = verMin
	ch.req.Body = NewBodyReader()
	// HTTP/1.1 defaults persistent; HTTP/1.0 defaults non-persistent unless
	// told otherwise by a Connection: keep-alive header.
	ch.persistent = verMaj == 1 && verMin >= 1
	return nil
}

func (ch *Channel) OnMessageHeader(name, value string) error {
	ch.req.Headers.Add(name, value)
	lower := strings.ToLower(name)
	switch lower {
	case "host":
		ch.req.Host = value
	case "expect":
		if strings.EqualFold(strings.TrimSpace(value), "100-continue") {
			ch.req.Expect100 = true
		}
	case "connection":
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "close":
			ch.persistent = false
		case "keep-alive":
			ch.persistent = true
		}
	}
	return nil
}

func (ch *Channel) OnMessageHeaderEnd() error {
	ch.req.ContentLength = ch.parser.contentLength
	ch.req.Chunked = ch.parser.chunked
	path, query, err := reqtarget.ParseTarget(ch.req.RawTarget)
	if err != nil {
		ch.abortWithFixedResponse(400)
		return errs.Wrap(errs.Protocol, 400, "malformed request-target", err)
	}
	ch.req.Path = path
	ch.req.Query = query

	ch.resp = &Response{StatusCode: 200}
	ch.outbox = stream.NewCompositeSource()
	ch.setState(StateHandling)
	if ch.req.Expect100 {
		ch.SendContinue()
	}
	ch.dispatch()
	return nil
}

// SendContinue emits the "100 Continue" interim response for a request that
// sent Expect: 100-continue, so a client waiting before it sends the body
// can proceed. Safe to call more than once or when Expect100 wasn't sent;
// it is a no-op past the first call and once the final response has started.
func (ch *Channel) SendContinue() {
	if !ch.req.Expect100 || ch.sentContinue || ch.wroteHeader {
		return
	}
	ch.sentContinue = true
	var head netio.Buffer
	ch.gen.WriteStatusLine(&head, ch.req.VersionMaj, ch.req.VersionMin, 100, "Continue")
	head.Append([]byte("\r\n"))
	ch.outbox.Append(stream.NewBufferSource(head.Bytes()))
	if ch.onInterim != nil {
		ch.onInterim()
	}
}

func (ch *Channel) OnMessageContent(chunk []byte) error {
	if ch.req.Body != nil {
		return ch.req.Body.push(chunk)
	}
	return nil
}

func (ch *Channel) OnMessageEnd() error {
	if ch.req.Body != nil {
		ch.req.Body.end()
	}
	return nil
}

func (ch *Channel) OnProtocolError(status int, message string) error {
	ch.abortWithFixedResponse(status)
	return errs.New(errs.Protocol, status, message)
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
		ch.cfg.Log.WithField("panic", rec).Error("http1: handler panicked")
	}
	if !ch.wroteHeader {
		ch.SetStatus(500, "")
		ch.Complete()
		return
	}
	ch.setState(StateAborted)
}

// --- Handler-facing response API ---

// SetStatus sets the response status code. reason defaults to the standard
// phrase for code if empty. No-op once headers are flushed.
func (ch *Channel) SetStatus(code int, reason string) {
	if ch.resp == nil || ch.resp.HeadersFlushed() {
		return
	}
	ch.resp.StatusCode = code
	ch.resp.Reason = reason
}

// Header returns the mutable response header list. Mutating it after
// headers have been flushed is a documented no-op (the list is still
// returned, but Channel will not re-serialize it).
func (ch *Channel) Header() *header.List {
	return &ch.resp.Headers
}

// Trailers returns the mutable response trailer list, emitted verbatim
// after the terminating chunk when the response is chunked.
func (ch *Channel) Trailers() *header.List {
	return &ch.resp.Trailers
}

// SetContentLength declares a known body length, suppressing chunked
// encoding. Must be called before the first body append.
func (ch *Channel) SetContentLength(n int64) {
	if ch.resp.HeadersFlushed() {
		return
	}
	ch.resp.LengthMode = LengthKnown
	ch.resp.ContentLength = n
}

// InstallFilter appends a body filter (e.g. gzip) to the output chain. Must
// be called before the first body append.
func (ch *Channel) InstallFilter(f stream.Filter) {
	if ch.wroteHeader {
		return
	}
	ch.filters = append(ch.filters, f)
}

// AppendBuffer queues p as the next response body chunk. 1xx/204/304
// responses and HEAD requests never carry a body: the bytes are accepted
// (so handlers need no special-casing) but dropped once headers are
// finalized.
func (ch *Channel) AppendBuffer(p []byte) {
	if len(p) == 0 || ch.state == StateAborted {
		return
	}
	if !ch.wroteHeader {
		ch.firstChunk = p
	}
	ch.ensureHeadersFinalized()
	if ch.suppressesBody() {
		return
	}
	ch.pushBody(append([]byte(nil), p...))
}

// AppendFile queues fv (a zero-copy file range) as the next response body
// chunk. Dropped, like AppendBuffer, when the response class suppresses a
// body.
func (ch *Channel) AppendFile(fv netio.FileView) {
	if ch.state == StateAborted {
		return
	}
	if !ch.wroteHeader {
		ch.firstChunk = peekFileView(fv)
	}
	ch.ensureHeadersFinalized()
	if ch.suppressesBody() {
		return
	}
	if len(ch.filters) == 0 && ch.resp.LengthMode != LengthChunked {
		// No transform and no chunk-size prefix to compute: hand the file
		// range straight to the outbox for a sendfile-style write.
		ch.outbox.Append(stream.NewFileSource(fv))
		return
	}
	var buf netio.Buffer
	src := stream.NewFileSource(fv)
	for {
		n, err := src.Pull(&buf)
		if n == 0 && err != nil {
			break
		}
	}
	ch.pushBody(buf.Bytes())
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

// pushBody drives data through the installed filter chain, if any, and
// frames the result as one application-level chunk. Filters are long-lived
// across calls (the same Filter values installed at InstallFilter time keep
// running their internal compressor state), so a chunk's own end is never
// mistaken for the end of the response — only Complete does that.
func (ch *Channel) pushBody(data []byte) {
	out, err := ch.runFilters(data, false)
	if err != nil {
		ch.Abort(err)
		return
	}
	ch.enqueueChunk(out)
}

// runFilters threads data through every installed filter in order, each
// receiving the same eof flag.
func (ch *Channel) runFilters(data []byte, eof bool) ([]byte, error) {
	if len(ch.filters) == 0 {
		return data, nil
	}
	chunk := data
	for _, f := range ch.filters {
		out, err := f.Process(chunk, eof)
		if err != nil {
			return nil, err
		}
		chunk = out
	}
	return chunk, nil
}

func (ch *Channel) enqueueChunk(data []byte) {
	if len(data) == 0 {
		return
	}
	if ch.resp.LengthMode != LengthChunked {
		ch.outbox.Append(stream.NewBufferSource(data))
		return
	}
	var framed netio.Buffer
	ch.gen.WriteChunk(&framed, data)
	ch.outbox.Append(stream.NewBufferSource(framed.Bytes()))
}

// Complete signals the handler is done producing body chunks. No further
// AppendBuffer/AppendFile calls are valid.
func (ch *Channel) Complete() {
	if ch.resp.Completed() {
		return
	}
	ch.ensureHeadersFinalized()
	if len(ch.filters) > 0 {
		final, err := ch.runFilters(nil, true)
		if err != nil {
			ch.Abort(err)
			return
		}
		ch.enqueueChunk(final)
	}
	if ch.resp.LengthMode == LengthChunked {
		var framed netio.Buffer
		ch.gen.WriteLastChunk(&framed, &ch.resp.Trailers)
		ch.outbox.Append(stream.NewBufferSource(framed.Bytes()))
	}
	ch.resp.MarkCompleted()
	ch.setState(StateSending)
}

// Abort transitions the channel directly to ABORTED; all further
// operations on req/resp become no-ops.
func (ch *Channel) Abort(err error) {
	if ch.cfg.Log != nil && err != nil {
		ch.cfg.Log.WithError(err).Warn("http1: channel aborted")
	}
	ch.setState(StateAborted)
}

// suppressesBody reports the response classes that never carry a body.
func (ch *Channel) suppressesBody() bool {
	code := ch.resp.StatusCode
	return ch.req.Method == MethodHEAD || code == 204 || code == 304 || (code >= 100 && code < 200)
}

// ensureHeadersFinalized applies the header finalization policy exactly
// once, at the HANDLING→SENDING transition.
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
		// Compression drops any pre-existing Content-Length and appends
		// Accept-Encoding to Vary.
		h.Del(header.ContentLength)
		ch.resp.LengthMode = LengthUnknown
		vary := h.Get(header.Vary)
		if vary == "" {
			h.Set(header.Vary, header.AcceptEncoding)
		} else if !strings.Contains(vary, header.AcceptEncoding) {
			h.Set(header.Vary, vary+", "+header.AcceptEncoding)
		}
	}

	if ch.resp.LengthMode == LengthUnknown {
		if ch.resp.ContentLength > 0 && !hasCE {
			ch.resp.LengthMode = LengthKnown
			h.Set(header.ContentLength, strconv.FormatInt(ch.resp.ContentLength, 10))
		} else if ch.req.VersionMaj == 1 && ch.req.VersionMin >= 1 {
			ch.resp.LengthMode = LengthChunked
			h.Set(header.TransferEncoding, "chunked")
		} else {
			ch.resp.LengthMode = LengthUntilClose
			ch.persistent = false
		}
	} else if ch.resp.LengthMode == LengthKnown {
		h.Set(header.ContentLength, strconv.FormatInt(ch.resp.ContentLength, 10))
	}

	if !h.Contains(header.ContentType) && !ch.suppressesBody() {
		h.Set(header.ContentType, sniff.DetectContentType(ch.firstChunk))
	}

	h.Set(header.Date, ch.dategen.Format())
	if ch.cfg.ServerName != "" {
		h.Set(header.ServerHeader, ch.cfg.ServerName)
	}

	if !ch.persistent {
		h.Set(header.Connection, "close")
	} else {
		// Explicit even for HTTP/1.1, where it is the default.
		h.Set(header.Connection, "keep-alive")
	}
	if ch.cfg.MaxKeepAliveRequests > 0 && ch.requestCount+1 > ch.cfg.MaxKeepAliveRequests {
		ch.persistent = false
		h.Set(header.Connection, "close")
	}

	var head netio.Buffer
	reason := ch.resp.Reason
	if reason == "" {
		reason = ReasonFor(ch.resp.StatusCode)
		if reason == "Error" {
			reason = "OK"
		}
	}
	ch.gen.WriteStatusLine(&head, ch.req.VersionMaj, ch.req.VersionMin, ch.resp.StatusCode, reason)
	ch.gen.WriteHeaders(&head, h)
	ch.resp.MarkHeadersFlushed()
	ch.outbox.Append(stream.NewBufferSource(head.Bytes()))
	ch.setState(StateSending)
}

// Persistent reports whether this connection should stay open after this
// channel's response fully drains.
func (ch *Channel) Persistent() bool { return ch.persistent }

// Outbox returns the Source the owning Connection pumps into the endpoint.
func (ch *Channel) Outbox() *stream.CompositeSource { return ch.outbox }

// OutboxDrained reports whether every queued chunk has been fully flushed
// and Complete was called — the SENDING→DONE transition's guard.
func (ch *Channel) OutboxDrained() bool {
	return ch.resp != nil && ch.resp.Completed() && ch.outbox.EOF()
}

// Finish transitions to DONE (if persistent, the caller then resets and
// re-arms for the next request) once OutboxDrained.
func (ch *Channel) Finish() {
	ch.requestCount++
	ch.setState(StateDone)
}

// Reset prepares the channel to read the next pipelined/keep-alive request.
func (ch *Channel) Reset() {
	count := ch.requestCount
	persistent := ch.persistent
	onStateChange := ch.onStateChange
	onInterim := ch.onInterim
	*ch = Channel{
		cfg: ch.cfg, dategen: ch.dategen, handler: ch.handler,
		requestCount: count, persistent: persistent,
	}
	ch.onStateChange = onStateChange
	ch.onInterim = onInterim
	ch.req = &Request{}
	ch.parser = NewParser(ch, ch.cfg.Limits)
	ch.setState(StateReading)
}

// abortWithFixedResponse is used for a protocol error observed before any
// response has started: emit a fixed error response and close.
func (ch *Channel) abortWithFixedResponse(status int) {
	if ch.resp != nil && ch.resp.HeadersFlushed() {
		ch.setState(StateAborted)
		return
	}
	verMaj, verMin := 1, 1
	if ch.req != nil && ch.req.VersionMaj != 0 {
		verMaj, verMin = ch.req.VersionMaj, ch.req.VersionMin
	}
	var buf netio.Buffer
	ch.gen.WriteFixedErrorResponse(&buf, verMaj, verMin, status)
	if ch.outbox == nil {
		ch.outbox = stream.NewCompositeSource()
	}
	ch.outbox.Append(stream.NewBufferSource(buf.Bytes()))
	ch.persistent = false
	ch.setState(StateSending)
}
