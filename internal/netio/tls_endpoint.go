package netio

import (
	"crypto/tls"
	"errors"
	"net"
	"time"

	netErrs "github.com/christianparpart/x0-sub009/internal/errs"
)

// TLSEndpoint decorates a StreamEndpoint with a *tls.Conn — the
// TLS-decorated socket variant. TLS is accepted only as an I/O decoration:
// certificate management and renegotiation policy live entirely in the
// *tls.Config the caller supplies.
type TLSEndpoint struct {
	inner  *StreamEndpoint
	conn   *tls.Conn
	bridge *fdConn
}

// NewTLSEndpoint wraps inner in a server-side TLS handshake using cfg. The
// inner StreamEndpoint's fd is bridged into a net.Conn adapter so the
// standard library's tls.Conn can drive the handshake and record layer over
// our non-blocking fd.
func NewTLSEndpoint(inner *StreamEndpoint, cfg *tls.Config) *TLSEndpoint {
	bridge := &fdConn{ep: inner}
	return &TLSEndpoint{inner: inner, bridge: bridge, conn: tls.Server(bridge, cfg)}
}

func (e *TLSEndpoint) FD() int { return e.inner.FD() }

func (e *TLSEndpoint) SetNotifier(n Notifier) { e.inner.SetNotifier(n) }

func (e *TLSEndpoint) Fill(buf *Buffer) (int, error) {
	dst := buf.Grow(64 * 1024)
	n, err := e.conn.Read(dst)
	if n > 0 {
		buf.Commit(n)
	}
	if err != nil {
		if errors.Is(err, errWouldBlockNet) {
			return n, netErrs.ErrWouldBlock
		}
		return n, netErrs.Wrap(netErrs.Transport, 0, "tls read", err)
	}
	return n, nil
}

func (e *TLSEndpoint) Flush(p []byte) (int, error) {
	n, err := e.conn.Write(p)
	if err != nil {
		if errors.Is(err, errWouldBlockNet) {
			return n, netErrs.ErrWouldBlock
		}
		return n, netErrs.Wrap(netErrs.Transport, 0, "tls write", err)
	}
	return n, nil
}

// FlushFile has no zero-copy path once TLS framing is involved: the
// payload must pass through the record-layer encryptor, so it is read into
// a staging buffer and written through Flush.
func (e *TLSEndpoint) FlushFile(fv FileView) (int64, error) {
	b := make([]byte, fv.Length)
	n, err := fv.File().ReadAt(b, fv.Offset)
	if err != nil && n == 0 {
		return 0, netErrs.Wrap(netErrs.Transport, 0, "read file view", err)
	}
	wn, werr := e.Flush(b[:n])
	return int64(wn), werr
}

// SetReadCallback/SetWriteCallback forward to the inner StreamEndpoint so
// callers that type-assert for them (Conn's write-readiness rearm,
// Connector's first-read arming) work identically whether or not TLS
// decorates the socket.
func (e *TLSEndpoint) SetReadCallback(onReady, onTimeout func())  { e.inner.SetReadCallback(onReady, onTimeout) }
func (e *TLSEndpoint) SetWriteCallback(onReady, onTimeout func()) { e.inner.SetWriteCallback(onReady, onTimeout) }

func (e *TLSEndpoint) WantRead()                              { e.inner.WantRead() }
func (e *TLSEndpoint) WantWrite()                             { e.inner.WantWrite() }
func (e *TLSEndpoint) SetReadTimeout(d time.Duration)         { e.inner.SetReadTimeout(d) }
func (e *TLSEndpoint) SetWriteTimeout(d time.Duration)        { e.inner.SetWriteTimeout(d) }
func (e *TLSEndpoint) RemoteAddr() net.Addr                   { return e.inner.RemoteAddr() }
func (e *TLSEndpoint) LocalAddr() net.Addr                    { return e.inner.LocalAddr() }
func (e *TLSEndpoint) Close() error                           { return e.inner.Close() }

// fdConn adapts a *StreamEndpoint (non-blocking fd semantics) to the
// blocking net.Conn interface tls.Conn expects. Reads/writes that would
// block return errWouldBlockNet, which tls.Conn propagates to our Fill/
// Flush wrappers above as-is (no retry loop: the reactor re-arms and the
// channel calls Fill/Flush again on the next readiness callback).
type fdConn struct {
	ep *StreamEndpoint
	rd Buffer
}

func (c *fdConn) Read(p []byte) (int, error) {
	n, err := c.ep.Fill(&c.rd)
	if err != nil {
		if err == netErrs.ErrWouldBlock {
			return 0, errWouldBlockNet
		}
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	copy(p, c.rd.Bytes())
	got := n
	if got > len(p) {
		got = len(p)
	}
	c.rd.Consume(got)
	return got, nil
}

func (c *fdConn) Write(p []byte) (int, error) {
	n, err := c.ep.Flush(p)
	if err != nil {
		if err == netErrs.ErrWouldBlock {
			return n, errWouldBlockNet
		}
		return n, err
	}
	return n, nil
}

func (c *fdConn) Close() error                         { return nil }
func (c *fdConn) LocalAddr() net.Addr                  { return c.ep.LocalAddr() }
func (c *fdConn) RemoteAddr() net.Addr                 { return c.ep.RemoteAddr() }
func (c *fdConn) SetDeadline(time.Time) error          { return nil }
func (c *fdConn) SetReadDeadline(time.Time) error      { return nil }
func (c *fdConn) SetWriteDeadline(time.Time) error     { return nil }

var errWouldBlockNet = errors.New("netio: would block")

var _ net.Conn = (*fdConn)(nil)
var _ Endpoint = (*TLSEndpoint)(nil)
