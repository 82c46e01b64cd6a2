package netio

import (
 "net"
 "time"

 "github.com/christianparpart/x0-sub009/internal/errs"
 "golang.org/x/sys/unix"
)

// StreamEndpoint is the real-socket Endpoint variant: a non-blocking fd
// (TCP or UNIX domain) accepted by the Connector. Readiness is driven by
// the reactor's epoll poller via FD/SetNotifier.
type StreamEndpoint struct {
	fd       int
	local    net.Addr
	remote   net.Addr
	notifier Notifier
	readTO   time.Duration
	writeTO  time.Duration
	closed   bool

	onRead, onReadTimeout   func()
	onWrite, onWriteTimeout func()
}

// SetReadCallback installs the task/timeout pair WantRead arms on the
// reactor. The Connector calls this once when it attaches a Connection.
func (e *StreamEndpoint) SetReadCallback(onReady, onTimeout func()) {
	e.onRead, e.onReadTimeout = onReady, onTimeout
}

// SetWriteCallback is the write-side counterpart of SetReadCallback.
func (e *StreamEndpoint) SetWriteCallback(onReady, onTimeout func()) {
	e.onWrite, e.onWriteTimeout = onReady, onTimeout
}

// NewStreamEndpoint wraps an already-accepted, already non-blocking fd.
func NewStreamEndpoint(fd int, local, remote net.Addr) *StreamEndpoint {
 return &StreamEndpoint{fd: fd, local: local, remote: remote}
}

func (e *StreamEndpoint) FD() int { return e.fd }

func (e *StreamEndpoint) SetNotifier(n Notifier) { e.notifier = n }

// Fill performs one non-blocking read(2). EAGAIN/EWOULDBLOCK is surfaced as
// errs.ErrWouldBlock so the Connection re-arms readability instead of
// spinning.
func (e *StreamEndpoint) Fill(buf *Buffer) (int, error) {
 dst := buf.Grow(64 * 1024)
 n, err := unix.Read(e.fd, dst)
 if err != nil {
 if err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR {
 return 0, errs.ErrWouldBlock
 }
 return 0, errs.Wrap(errs.Transport, 0, "read", err)
 }
 if n > 0 {
 buf.Commit(n)
 }
 return n, nil
}

// Flush performs one non-blocking write(2) of a contiguous byte range.
func (e *StreamEndpoint) Flush(p []byte) (int, error) {
 n, err := unix.Write(e.fd, p)
 if err != nil {
 if err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR {
 return n, errs.ErrWouldBlock
 }
 return n, errs.Wrap(errs.Transport, 0, "write", err)
 }
 return n, nil
}

// FlushFile transmits via sendfile(2), the zero-copy fast path for
// file-backed response segments.
func (e *StreamEndpoint) FlushFile(fv FileView) (int64, error) {
	off := fv.Offset
	n, err := unix.Sendfile(e.fd, int(fv.File().Fd()), &off, int(fv.Length))
 if err != nil {
 if err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR {
 return int64(n), errs.ErrWouldBlock
 }
 return int64(n), errs.Wrap(errs.Transport, 0, "sendfile", err)
 }
 return int64(n), nil
}

func (e *StreamEndpoint) WantRead() {
 if e.notifier == nil || e.onRead == nil {
 return
 }
 e.notifier.NotifyReadable(e.fd, e.onRead, e.onReadTimeout, e.readTO)
}

func (e *StreamEndpoint) WantWrite() {
 if e.notifier == nil || e.onWrite == nil {
 return
 }
 e.notifier.NotifyWritable(e.fd, e.onWrite, e.onWriteTimeout, e.writeTO)
}

func (e *StreamEndpoint) SetReadTimeout(d time.Duration) { e.readTO = d }
func (e *StreamEndpoint) SetWriteTimeout(d time.Duration) { e.writeTO = d }
func (e *StreamEndpoint) RemoteAddr() net.Addr { return e.remote }
func (e *StreamEndpoint) LocalAddr() net.Addr { return e.local }

func (e *StreamEndpoint) Close() error {
 if e.closed {
 return nil
 }
 e.closed = true
 if e.notifier != nil {
 e.notifier.CancelFD(e.fd)
 }
 return unix.Close(e.fd)
}

// SetSocketOptions applies the knobs named in to a freshly
// accepted or freshly bound fd.
func SetSocketOptions(fd int, nodelay, cork, reuseAddr, reusePort bool) error {
 if nodelay {
 if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
 return err
 }
 }
 if cork {
 if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_CORK, 1); err != nil {
 return err
 }
 }
 if reuseAddr {
 if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
 return err
 }
 }
 if reusePort {
 if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
 return err
 }
 }
 return unix.SetNonblock(fd, true)
}
