// Package netio implements the Endpoint byte-duplex abstraction: a
// polymorphic transport over a kernel stream socket, an in-memory pair for
// tests, or a TLS decoration of either.
package netio

import (
	"net"
	"time"
)

// Endpoint is the byte-duplex abstraction every Connection drives. All
// operations are non-blocking: Fill/Flush return errs.ErrWouldBlock instead
// of blocking the reactor's single thread.
type Endpoint interface {
	// Fill performs a non-blocking read into buf, returning the number of
	// bytes appended. Returns (0, nil) on clean EOF and (0,
	// errs.ErrWouldBlock) when no data is currently available.
	Fill(buf *Buffer) (int, error)

	// Flush performs a non-blocking write of p, returning the number of
	// bytes actually written (which may be less than len(p)).
	Flush(p []byte) (int, error)

	// FlushFile transmits up to fv.Length bytes of fv starting at fv.Offset.
	// StreamEndpoint uses sendfile; the other endpoints read the range into
	// memory and write it through Flush. No endpoint uses splice.
	FlushFile(fv FileView) (int64, error)

	// WantRead/WantWrite ask the owning reactor to re-arm readiness
	// notifications for this endpoint; Connection calls these after a
	// partial Fill/Flush.
	WantRead()
	WantWrite()

	SetReadTimeout(d time.Duration)
	SetWriteTimeout(d time.Duration)

	RemoteAddr() net.Addr
	LocalAddr() net.Addr

	// Close is idempotent; any pending readiness notification is cancelled.
	Close() error
}

// FDer is implemented by endpoints backed by a real OS file descriptor, so
// the reactor can register readiness interest directly via epoll.
type FDer interface {
	FD() int
}

// Rearmer lets an endpoint be told which reactor owns it, so WantRead/
// WantWrite can call back into NotifyReadable/NotifyWritable. Set
// once by the Connector immediately after construction.
type Rearmer interface {
	SetNotifier(n Notifier)
}

// Notifier is the subset of the reactor's contract an Endpoint needs to
// re-arm readiness; implemented by *reactor.Reactor.
type Notifier interface {
	NotifyReadable(fd int, onReady, onTimeout func(), timeout time.Duration)
	NotifyWritable(fd int, onReady, onTimeout func(), timeout time.Duration)
	CancelFD(fd int)
}
