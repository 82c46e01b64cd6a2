package netio

import (
	"net"
	"sync"
	"time"

	"github.com/christianparpart/x0-sub009/internal/errs"
)

// PipeEndpoint is the in-memory Endpoint variant, used for tests and local
// Flow-handler injection without a real socket. Two PipeEndpoints
// constructed by NewPipe are cross-wired: writes to one become readable on
// the other.
type PipeEndpoint struct {
	mu     sync.Mutex
	inbox  []byte
	peer   *PipeEndpoint
	closed bool
	addr   net.Addr
}

// NewPipe returns a connected client/server pair of PipeEndpoints.
func NewPipe() (client, server *PipeEndpoint) {
	client = &PipeEndpoint{addr: pipeAddr("client")}
	server = &PipeEndpoint{addr: pipeAddr("server")}
	client.peer, server.peer = server, client
	return client, server
}

type pipeAddr string

func (a pipeAddr) Network() string { return "pipe" }
func (a pipeAddr) String() string  { return string(a) }

func (e *PipeEndpoint) Fill(buf *Buffer) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.inbox) == 0 {
		if e.closed {
			return 0, nil
		}
		return 0, errs.ErrWouldBlock
	}
	buf.Append(e.inbox)
	n := len(e.inbox)
	e.inbox = e.inbox[:0]
	return n, nil
}

func (e *PipeEndpoint) Flush(p []byte) (int, error) {
	e.peer.mu.Lock()
	defer e.peer.mu.Unlock()
	if e.peer.closed {
		return 0, errs.ErrClosed
	}
	e.peer.inbox = append(e.peer.inbox, p...)
	return len(p), nil
}

func (e *PipeEndpoint) FlushFile(fv FileView) (int64, error) {
	b := make([]byte, fv.Length)
	n, err := fv.File().ReadAt(b, fv.Offset)
	if err != nil && n == 0 {
		return 0, errs.Wrap(errs.Transport, 0, "read file view", err)
	}
	wn, werr := e.Flush(b[:n])
	return int64(wn), werr
}

// SetReadCallback/SetWriteCallback are no-ops: PipeEndpoint never blocks
// (Fill returns ErrWouldBlock only when truly empty and not yet closed,
// and tests drive readability manually), so nothing ever needs rearming.
func (e *PipeEndpoint) SetReadCallback(onReady, onTimeout func())  {}
func (e *PipeEndpoint) SetWriteCallback(onReady, onTimeout func()) {}

func (e *PipeEndpoint) WantRead()                           {}
func (e *PipeEndpoint) WantWrite()                          {}
func (e *PipeEndpoint) SetReadTimeout(time.Duration)         {}
func (e *PipeEndpoint) SetWriteTimeout(time.Duration)        {}
func (e *PipeEndpoint) RemoteAddr() net.Addr                 { return e.peer.addr }
func (e *PipeEndpoint) LocalAddr() net.Addr                  { return e.addr }

func (e *PipeEndpoint) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	return nil
}

var _ Endpoint = (*PipeEndpoint)(nil)
var _ Endpoint = (*StreamEndpoint)(nil)
