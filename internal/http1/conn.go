package http1

import (
	"github.com/sirupsen/logrus"

	"github.com/christianparpart/x0-sub009/internal/connection"
	"github.com/christianparpart/x0-sub009/internal/dateutil"
	"github.com/christianparpart/x0-sub009/internal/errs"
	"github.com/christianparpart/x0-sub009/internal/netio"
	"github.com/christianparpart/x0-sub009/internal/stream"
)

// Conn is the HTTP/1 Connection: one endpoint, one input buffer, and
// exactly one Channel (HTTP/1 is not multiplexed — contrast
// internal/fastcgi, which keys many channels off one connection).
type Conn struct {
	ep  netio.Endpoint
	log *logrus.Logger

	ch *Channel

	closed  bool
	sink    *stream.EndpointSink
	writing bool
}

// NewConnectionFactory returns a connection.Factory that builds HTTP/1
// connections bound to handler, for registration under protocol name
// "http/1.1" in a connection.Registry.
func NewConnectionFactory(cfg Config, handler Handler) connection.Factory {
	dategen := dateutil.New()
	return func(ep netio.Endpoint) connection.Connection {
		c := &Conn{ep: ep, log: cfg.Log, sink: stream.NewEndpointSink(ep)}
		c.ch = NewChannel(cfg, dategen, handler)
		c.ch.OnStateChange(c.onChannelStateChange)
		c.ch.OnInterimFlush(c.flushInterim)
		return c
	}
}

func (c *Conn) onChannelStateChange(s State) {
	if s == StateSending && !c.writing {
		c.pump()
	}
	if s == StateAborted {
		c.Close()
	}
}

// OnReadable fills from the endpoint and feeds the channel's parser,
// looping until EAGAIN, EOF, or a state transition out of READING.
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
			// Clean EOF: only acceptable between requests.
			c.Close()
			return
		}
		if ferr := c.ch.Feed(buf.Bytes()[:n]); ferr != nil {
			// Parser already pushed a fixed error response via
			// OnProtocolError; fall through to let the pump drain it.
		}
		if c.ch.State() != StateReading {
			return
		}
	}
}

// OnWritable does nothing; a previously EAGAIN'd write is resumed by rearm.
func (c *Conn) OnWritable() {
	// AsyncWriteDriver's rearm callback re-enters pump's Start directly;
	// OnWritable exists only to satisfy the connection.Connection interface.
}

func (c *Conn) pump() {
	c.writing = true
	driver := stream.NewAsyncWriteDriver(c.sink, c.ch.Outbox(), c.rearm, c.onPumpDone)
	driver.Start()
}

// flushInterim drains an interim (100 Continue) response queued by
// Channel.SendContinue right away, sharing the writing flag with pump so
// the two never race a write onto the same sink concurrently. If the final
// response happens to already be fully queued by the time this drains (the
// common case: nothing else was pending), onPumpDone finishes the request
// normally; otherwise it simply releases writing and waits for the later
// HANDLING→SENDING transition to resume the pump.
func (c *Conn) flushInterim() {
	if c.writing {
		return
	}
	c.writing = true
	driver := stream.NewAsyncWriteDriver(c.sink, c.ch.Outbox(), c.rearm, c.onPumpDone)
	driver.Start()
}

func (c *Conn) rearm(resume func()) {
	c.ep.WantWrite()
	if rearmer, ok := c.ep.(interface{ SetWriteCallback(onReady, onTimeout func()) }); ok {
		rearmer.SetWriteCallback(resume, func() { c.Close() })
	}
}

func (c *Conn) onPumpDone(err error) {
	c.writing = false
	if err != nil {
		c.Close()
		return
	}
	if !c.ch.OutboxDrained() {
		// Either an interim flush finished before the final response was
		// queued (the HANDLING→SENDING transition will call pump again), or
		// a filter hasn't flushed its final bytes yet; nothing to resume
		// right now.
		return
	}
	c.ch.Finish()
	if !c.ch.Persistent() {
		c.Close()
		return
	}
	c.ch.Reset()
	c.ep.WantRead()
}

// Closed reports whether this connection has torn down its endpoint.
func (c *Conn) Closed() bool { return c.closed }

// Close tears down the endpoint idempotently.
func (c *Conn) Close() {
	if c.closed {
		return
	}
	c.closed = true
	_ = c.ep.Close()
}
