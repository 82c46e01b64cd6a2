package http1

import (
 "strconv"
 "strings"

 "github.com/christianparpart/x0-sub009/internal/errs"
 "github.com/christianparpart/x0-sub009/internal/header"
)

// Listener receives the parser's event stream; Channel is the only
// production listener, tests may install their own.
type Listener interface {
	OnMessageBegin(method Method, rawMethod, rawTarget string, verMaj, verMin int) error
	OnMessageHeader(name, value string) error
	OnMessageHeaderEnd() error
	OnMessageContent(chunk []byte) error
	OnMessageEnd() error
	OnProtocolError(status int, message string) error
}

type pstate uint8

const (
 stRequestLineBegin pstate = iota
 stMethod
 stURI
 stVersion
 stRequestLineLF
 stHeaderNameBegin
 stHeaderName
 stHeaderColon
 stHeaderValueBegin
 stHeaderValue
 stHeaderLF
 stHeaderEndLF
 stBodyIdentity
 stBodyChunkSize
 stBodyChunkSizeLF
 stBodyChunkData
 stBodyChunkDataLF
 stBodyTrailerName
 stBodyTrailerValue
 stBodyChunkTrailerEndLF
 stMessageEnd
 stDead // unrecoverable protocol error; Feed becomes a no-op
)

// Limits bounds the parser's acceptance of a single message: maximum
// request-URI length, maximum total header size, and maximum header count.
type Limits struct {
 MaxURILength int
 MaxHeaderSize int
 MaxHeaderCount int
 MaxChunkExtension int
}

// DefaultLimits matches convention's conservative stdlib-derived defaults.
var DefaultLimits = Limits{
 MaxURILength: 8 * 1024,
 MaxHeaderSize: 1 << 20,
 MaxHeaderCount: 256,
 MaxChunkExtension: 4 * 1024,
}

// Parser is a streaming HTTP/1 request parser. Feed may be called with
// arbitrarily small fragments; the parser remembers partial tokens across
// calls.
type Parser struct {
 limits Limits
 listener Listener

 state pstate
 line []byte // accumulator for the current token (method/uri/version/header name or value)

 rawMethod string
 rawTarget string
 verMaj int
 verMin int
 headerName string
 headerSize int
 headerN int

 contentLength int64
 haveLength bool
 haveTransferEnc bool
 chunked bool
 remaining int64 // bytes left in current identity body or current chunk
 chunkExtLen int
 trailerPending bool
}

// NewParser returns a request-mode parser reporting events to listener.
func NewParser(listener Listener, limits Limits) *Parser {
 return &Parser{listener: listener, limits: limits, state: stRequestLineBegin}
}

// Reset rearms the parser for the next request on a keep-alive connection.
func (p *Parser) Reset() {
 *p = Parser{listener: p.listener, limits: p.limits, state: stRequestLineBegin}
}

func (p *Parser) fail(status int, msg string) error {
 p.state = stDead
 return p.listener.OnProtocolError(status, msg)
}

// Feed processes as many bytes of data as form complete tokens, invoking
// listener callbacks along the way, and returns any protocol error raised
// (already reported to the listener via OnProtocolError).
func (p *Parser) Feed(data []byte) error {
 i := 0
 for i < len(data) {
 if p.state == stDead {
 return nil
 }
 switch p.state {
 case stRequestLineBegin, stMethod:
 n, err := p.scanToken(data[i:], ' ', &p.rawMethod, p.limits.MaxURILength, errs.ErrURITooLong)
 if err != nil {
 return err
 }
 if n < 0 {
 p.state = stMethod
 return nil
 }
 i += n
 p.state = stURI
 case stURI:
 n, err := p.scanToken(data[i:], ' ', &p.rawTarget, p.limits.MaxURILength, errs.ErrURITooLong)
 if err != nil {
 return err
 }
 if n < 0 {
 p.state = stURI
 return nil
 }
 i += n
 p.state = stVersion
 case stVersion:
 var verStr string
 n, err := p.scanLine(data[i:], &verStr, p.limits.MaxURILength, errs.ErrURITooLong)
 if err != nil {
 return err
 }
 if n < 0 {
 p.state = stVersion
 return nil
 }
 i += n
 maj, min, verr := parseHTTPVersion(verStr)
 if verr != nil {
 return p.fail(505, "malformed HTTP version")
 }
 p.verMaj, p.verMin = maj, min
 if err := p.listener.OnMessageBegin(LookupMethod(p.rawMethod), p.rawMethod, p.rawTarget, maj, min); err != nil {
 return err
 }
 p.state = stHeaderNameBegin
 case stHeaderNameBegin, stHeaderName:
 if data[i] == '\r' || data[i] == '\n' {
 // Empty line: end of headers.
 n, err := p.consumeCRLF(data[i:])
 if err != nil {
 return err
 }
 if n < 0 {
 return nil
 }
 i += n
 if err := p.onHeadersEnd(); err != nil {
 return err
 }
 continue
 }
 n, err := p.scanToken(data[i:], ':', &p.headerName, p.limits.MaxHeaderSize, errs.ErrHeaderFieldsTooBig)
 if err != nil {
 return err
 }
 if n < 0 {
 p.state = stHeaderName
 return nil
 }
 i += n
 p.headerName = header.TrimString(p.headerName)
 p.state = stHeaderValueBegin
 case stHeaderValueBegin, stHeaderValue:
 var val string
 n, err := p.scanLine(data[i:], &val, p.limits.MaxHeaderSize, errs.ErrHeaderFieldsTooBig)
 if err != nil {
 return err
 }
 if n < 0 {
 p.state = stHeaderValue
 return nil
 }
 i += n
 if strings.ContainsAny(val, "\x00") {
 return p.fail(400, "NUL byte in header value")
 }
 if err := p.onHeaderField(p.headerName, header.TrimString(val)); err != nil {
 return err
 }
 p.state = stHeaderNameBegin
 case stBodyIdentity:
 n := p.consumeIdentity(data[i:])
 i += n
 if p.remaining == 0 {
 if err := p.listener.OnMessageEnd(); err != nil {
 return err
 }
 p.state = stMessageEnd
 }
 case stBodyChunkSize, stBodyChunkSizeLF:
 n, err := p.consumeChunkSize(data[i:])
 if err != nil {
 return err
 }
 if n < 0 {
 return nil
 }
 i += n
 case stBodyChunkData:
 n := p.consumeChunkData(data[i:])
 i += n
 case stBodyChunkDataLF:
 n, err := p.consumeCRLF(data[i:])
 if err != nil {
 return err
 }
 if n < 0 {
 return nil
 }
 i += n
 p.state = stBodyChunkSize
 case stBodyTrailerName, stBodyTrailerValue, stBodyChunkTrailerEndLF:
 n, err := p.consumeTrailers(data[i:])
 if err != nil {
 return err
 }
 if n < 0 {
 return nil
 }
 i += n
 case stMessageEnd:
 // Extra bytes after a completed message belong to the next
 // message; caller (Channel) resets the parser before feeding
 // them, so we should never observe this in practice.
 return nil
 default:
 return nil
 }
 }
 return nil
}

func (p *Parser) onHeaderField(name, value string) error {
 p.headerN++
 p.headerSize += len(name) + len(value)
 if (p.limits.MaxHeaderCount > 0 && p.headerN > p.limits.MaxHeaderCount) ||
 (p.limits.MaxHeaderSize > 0 && p.headerSize > p.limits.MaxHeaderSize) {
 return p.fail(errs.ErrHeaderFieldsTooBig.Status, errs.ErrHeaderFieldsTooBig.Message)
 }
 lower := strings.ToLower(name)
 switch lower {
 case "content-length":
 if p.haveTransferEnc {
 return p.fail(400, "content-length with transfer-encoding")
 }
 n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
 if err != nil || n < 0 {
 return p.fail(400, "malformed content-length")
 }
 if p.haveLength && n != p.contentLength {
 return p.fail(400, "conflicting content-length")
 }
 p.contentLength = n
 p.haveLength = true
 case "transfer-encoding":
 if p.haveLength {
 return p.fail(400, "transfer-encoding with content-length")
 }
 if strings.Contains(strings.ToLower(value), "chunked") {
 p.chunked = true
 }
 p.haveTransferEnc = true
 case "expect":
 // the Channel sets Request.Expect100 from its own OnMessageHeader
 }
 return p.listener.OnMessageHeader(name, value)
}

func (p *Parser) onHeadersEnd() error {
 if err := p.listener.OnMessageHeaderEnd(); err != nil {
 return err
 }
 switch {
 case p.chunked:
 p.state = stBodyChunkSize
 case p.haveLength && p.contentLength > 0:
 p.remaining = p.contentLength
 p.state = stBodyIdentity
 default:
 if err := p.listener.OnMessageEnd(); err != nil {
 return err
 }
 p.state = stMessageEnd
 }
 return nil
}

func (p *Parser) consumeIdentity(data []byte) int {
 n := int64(len(data))
 if n > p.remaining {
 n = p.remaining
 }
 if n > 0 {
 _ = p.listener.OnMessageContent(data[:n])
 p.remaining -= n
 }
 return int(n)
}

func (p *Parser) consumeChunkSize(data []byte) (int, error) {
 i := 0
 for i < len(data) {
 c := data[i]
 if c == '\r' {
 p.state = stBodyChunkSizeLF
 i++
 continue
 }
 if c == '\n' {
 if p.state != stBodyChunkSizeLF {
 return 0, p.fail(400, "malformed chunk size line")
 }
 size, err := parseHexUint(p.line)
 p.line = p.line[:0]
 if err != nil {
 return 0, p.fail(400, "invalid chunk size")
 }
 i++
 if size == 0 {
 p.state = stBodyTrailerName
 } else {
 p.remaining = int64(size)
 p.state = stBodyChunkData
 }
 return i, nil
 }
 if c == ';' {
 // chunk-extension: skip to CR, bounded.
 p.chunkExtLen++
 if p.chunkExtLen > p.limits.MaxChunkExtension {
 return 0, p.fail(400, "chunk extension too long")
 }
 i++
 continue
 }
 if p.chunkExtLen == 0 {
 p.line = append(p.line, c)
 }
 i++
 }
 return i, nil
}

func (p *Parser) consumeChunkData(data []byte) int {
 n := int64(len(data))
 if n > p.remaining {
 n = p.remaining
 }
 if n > 0 {
 _ = p.listener.OnMessageContent(data[:n])
 p.remaining -= n
 }
 if p.remaining == 0 {
 p.state = stBodyChunkDataLF
 }
 return int(n)
}

func (p *Parser) consumeTrailers(data []byte) (int, error) {
 // Trailers are rare; scan a full CRLF-terminated line at a time,
 // treating an immediate CRLF as the terminating empty line.
 i := 0
 for i < len(data) {
 c := data[i]
 p.line = append(p.line, c)
 i++
 if c == '\n' {
 line := string(p.line)
 p.line = p.line[:0]
 trimmed := strings.TrimRight(line, "\r\n")
 if trimmed == "" {
 if err := p.listener.OnMessageEnd(); err != nil {
 return 0, err
 }
 p.state = stMessageEnd
 return i, nil
 }
 if colon := strings.IndexByte(trimmed, ':'); colon > 0 {
 name := header.TrimString(trimmed[:colon])
 val := header.TrimString(trimmed[colon+1:])
 if err := p.listener.OnMessageHeader(name, val); err != nil {
 return 0, err
 }
 }
 }
 }
 return i, nil
}

// scanToken accumulates bytes into p.line up to delim (consumed), storing
// the result (excluding delim, with no surrounding whitespace collapsed)
// into *out. Returns (-1, nil) if delim was not yet found in data (caller
// should await more input); returns the number of bytes consumed otherwise.
func (p *Parser) scanToken(data []byte, delim byte, out *string, max int, overflow *errs.Error) (int, error) {
 for i, c := range data {
 if c == delim {
 p.line = append(p.line, data[:i]...)
 *out = string(p.line)
 p.line = p.line[:0]
 return i + 1, nil
 }
 }
 if len(p.line)+len(data) > max {
 return 0, p.fail(overflow.Status, overflow.Message)
 }
 p.line = append(p.line, data...)
 return -1, nil
}

// scanLine is scanToken specialized for a CRLF- or LF-terminated line; the
// terminator itself is stripped from *out.
func (p *Parser) scanLine(data []byte, out *string, max int, overflow *errs.Error) (int, error) {
 for i, c := range data {
 if c == '\n' {
 p.line = append(p.line, data[:i]...)
 s := string(p.line)
 p.line = p.line[:0]
 *out = strings.TrimSuffix(s, "\r")
 if strings.ContainsRune(*out, '\r') {
 return 0, p.fail(400, "obsolete line folding in header field")
 }
 return i + 1, nil
 }
 }
 if len(p.line)+len(data) > max {
 return 0, p.fail(overflow.Status, overflow.Message)
 }
 p.line = append(p.line, data...)
 return -1, nil
}

// consumeCRLF consumes a standalone CRLF (or LF) marking the end of the
// header block.
func (p *Parser) consumeCRLF(data []byte) (int, error) {
 if data[0] == '\r' {
 if len(data) < 2 {
 return -1, nil
 }
 if data[1] != '\n' {
 return 0, p.fail(400, "malformed CRLF")
 }
 return 2, nil
 }
 if data[0] == '\n' {
 return 1, nil
 }
 return 0, p.fail(400, "malformed CRLF")
}

func parseHTTPVersion(s string) (maj, min int, err error) {
 const prefix = "HTTP/"
 if !strings.HasPrefix(s, prefix) || len(s) < len(prefix)+3 {
 return 0, 0, errs.New(errs.Protocol, 505, "bad version")
 }
 rest := s[len(prefix):]
 dot := strings.IndexByte(rest, '.')
 if dot < 0 {
 return 0, 0, errs.New(errs.Protocol, 505, "bad version")
 }
 maj, e1 := strconv.Atoi(rest[:dot])
 min, e2 := strconv.Atoi(rest[dot+1:])
 if e1 != nil || e2 != nil {
 return 0, 0, errs.New(errs.Protocol, 505, "bad version")
 }
 return maj, min, nil
}

// parseHexUint parses a hex chunk-size field, grounded on convention's
// utils_chunks.go helper of the same shape.
func parseHexUint(v []byte) (uint64, error) {
 if len(v) == 0 {
 return 0, errs.ErrBadFraming
 }
 var n uint64
 for i, b := range v {
 var d byte
 switch {
 case '0' <= b && b <= '9':
 d = b - '0'
 case 'a' <= b && b <= 'f':
 d = b - 'a' + 10
 case 'A' <= b && b <= 'F':
 d = b - 'A' + 10
 default:
 return 0, errs.ErrBadFraming
 }
 if i == 16 {
 return 0, errs.ErrBadFraming
 }
 n <<= 4
 n |= uint64(d)
 }
 return n, nil
}
