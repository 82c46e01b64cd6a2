// Package connector implements the listening accept loop: it owns a
// listening socket, accepts connections, and for each accepted endpoint
// asks a connection.Registry for the right Factory to build a
// connection.Connection.
package connector

import (
	"net"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
	"golang.org/x/time/rate"

	"github.com/christianparpart/x0-sub009/internal/connection"
	"github.com/christianparpart/x0-sub009/internal/errs"
	"github.com/christianparpart/x0-sub009/internal/netio"
	"github.com/christianparpart/x0-sub009/internal/reactor"
)

// Config holds the bind/socket/limit knobs a Connector itself (as opposed
// to a Channel) is responsible for.
type Config struct {
	Address string
	Port    int

	Backlog          int
	MultiAcceptCount int
	ReuseAddr        bool
	ReusePort        bool
	TCPNoDelay       bool
	TCPCork          bool

	// Protocol selects the connection.Registry entry used for every
	// accepted connection on this Connector (no TLS ALPN negotiation is
	// performed here; that is TLSEndpoint's concern once wired).
	Protocol string

	AcceptReadTimeout time.Duration

	// MaxReadIdle/MaxWriteIdle bound how long an accepted connection's
	// Endpoint may sit waiting for read/write readiness before the reactor
	// tears it down. Zero disables the corresponding timeout.
	MaxReadIdle  time.Duration
	MaxWriteIdle time.Duration
}

// DefaultConfig matches the stack's conservative defaults.
var DefaultConfig = Config{
	Backlog:          1024,
	MultiAcceptCount: 32,
	ReuseAddr:        true,
	ReusePort:        false,
	TCPNoDelay:       true,
	Protocol:         "http/1.1",
	MaxReadIdle:      60 * time.Second,
	MaxWriteIdle:     15 * time.Second,
}

// Connector is the listening accept loop. It owns exactly one listening
// Endpoint; Close stops accepting and releases the listening fd.
type Connector struct {
	cfg      Config
	log      *logrus.Logger
	re       *reactor.Reactor
	registry *connection.Registry

	fd     int
	closed bool

	// backoff limits resumed accepts after EMFILE/ENFILE.
	backoff *rate.Limiter

	conns map[connection.Connection]struct{}
}

// New binds and listens on cfg.Address:cfg.Port, applying the socket
// options from cfg.
func New(cfg Config, re *reactor.Reactor, registry *connection.Registry, log *logrus.Logger) (*Connector, error) {
	fd, err := bindListen(cfg)
	if err != nil {
		return nil, err
	}
	c := &Connector{
		cfg: cfg, log: log, re: re, registry: registry, fd: fd,
		backoff: rate.NewLimiter(rate.Every(50*time.Millisecond), 1),
		conns:   make(map[connection.Connection]struct{}),
	}
	return c, nil
}

func bindListen(cfg Config) (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		return -1, err
	}
	if err := netio.SetSocketOptions(fd, cfg.TCPNoDelay, cfg.TCPCork, cfg.ReuseAddr, cfg.ReusePort); err != nil {
		_ = unix.Close(fd)
		return -1, err
	}
	sa := &unix.SockaddrInet4{Port: cfg.Port}
	copy(sa.Addr[:], parseIPv4(cfg.Address))
	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return -1, err
	}
	backlog := cfg.Backlog
	if backlog <= 0 {
		backlog = 128
	}
	if err := unix.Listen(fd, backlog); err != nil {
		_ = unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

func parseIPv4(addr string) [4]byte {
	var out [4]byte
	if addr == "" {
		return out
	}
	ip := net.ParseIP(addr)
	if ip4 := ip.To4(); ip4 != nil {
		copy(out[:], ip4)
	}
	return out
}

func sockaddrToNetAddr(sa unix.Sockaddr) net.Addr {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: net.IP(a.Addr[:]), Port: a.Port}
	case *unix.SockaddrInet6:
		return &net.TCPAddr{IP: net.IP(a.Addr[:]), Port: a.Port}
	default:
		return nil
	}
}

// Start arms the first accept-readiness wait on the reactor.
func (c *Connector) Start() {
	c.armAccept()
}

func (c *Connector) armAccept() {
	if c.closed {
		return
	}
	c.re.ExecuteOnReadable(c.fd, c.onAcceptable, c.cfg.AcceptReadTimeout, nil)
}

func (c *Connector) onAcceptable() {
	if c.closed {
		return
	}
	count := c.cfg.MultiAcceptCount
	if count <= 0 {
		count = 1
	}
	for i := 0; i < count; i++ {
		nfd, sa, err := unix.Accept(c.fd)
		if err != nil {
			if delay, retry := c.handleAcceptError(err); retry {
				if delay > 0 {
					c.re.ExecuteAfter(delay, c.armAccept)
					return
				}
				break
			}
			return
		}
		c.acceptOne(nfd, sa)
	}
	c.armAccept()
}

// handleAcceptError classifies an accept(2) failure. EAGAIN means nothing
// more is pending this wakeup; EMFILE/ENFILE are retryable
// but back off via the rate limiter before the next accept attempt; any
// other error is fatal and stops the connector.
func (c *Connector) handleAcceptError(err error) (delay time.Duration, retryable bool) {
	switch err {
	case unix.EAGAIN, unix.EWOULDBLOCK:
		return 0, true
	case unix.EMFILE, unix.ENFILE:
		if c.log != nil {
			c.log.WithError(err).Warn("connector: fd exhaustion, backing off accepts")
		}
		if !c.backoff.Allow() {
			return 50 * time.Millisecond, true
		}
		return 0, true
	default:
		if c.log != nil {
			c.log.WithError(errs.Wrap(errs.Resource, 503, "accept", err)).Error("connector: fatal accept error")
		}
		c.Close()
		return 0, false
	}
}

func (c *Connector) acceptOne(nfd int, sa unix.Sockaddr) {
	if err := netio.SetSocketOptions(nfd, c.cfg.TCPNoDelay, c.cfg.TCPCork, false, false); err != nil {
		_ = unix.Close(nfd)
		return
	}

	local, _ := unix.Getsockname(nfd)
	ep := netio.NewStreamEndpoint(nfd, sockaddrToNetAddr(local), sockaddrToNetAddr(sa))
	ep.SetNotifier(c.re)
	ep.SetReadTimeout(c.cfg.MaxReadIdle)
	ep.SetWriteTimeout(c.cfg.MaxWriteIdle)

	factory := c.registry.Lookup(c.cfg.Protocol)
	if factory == nil {
		_ = unix.Close(nfd)
		return
	}
	conn := factory(ep)
	c.conns[conn] = struct{}{}

	ep.SetReadCallback(conn.OnReadable, func() { delete(c.conns, conn); conn.Close() })
	ep.WantRead()
}

// Close stops accepting and closes the listening socket. Live connections
// are left running; callers that want a full shutdown close each tracked
// Connection first.
func (c *Connector) Close() {
	if c.closed {
		return
	}
	c.closed = true
	_ = unix.Close(c.fd)
}
