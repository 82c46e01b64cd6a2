// Package connection defines the narrow contract a Connector needs to turn
// an accepted Endpoint into a live Connection: for each accepted endpoint
// it asks a Registry (keyed by protocol name) for the right Factory to
// build a Connection object. The concrete per-protocol Connections
// (internal/http1, internal/fastcgi) implement this interface; Connector
// never imports either directly.
package connection

import "github.com/christianparpart/x0-sub009/internal/netio"

// Connection is a live, protocol-specific driver over one accepted
// Endpoint. The owning Connector installs OnReadable as the endpoint's read
// callback, so it runs each time the reactor reports the endpoint readable;
// the Connector does not call OnWritable. Connection reads/writes exactly as
// much as is available without blocking.
type Connection interface {
	// OnReadable is called once the endpoint's Fill would return data.
	OnReadable()
	// OnWritable is called once a previously EAGAIN'd Flush can proceed.
	OnWritable()
	// Closed reports whether the connection has torn down its endpoint
	// and should be dropped by the Connector's accounting.
	Closed() bool
	// Close tears down the connection and its endpoint idempotently.
	Close()
}

// Factory constructs a Connection for a freshly accepted Endpoint. Factories
// are registered by protocol name in a Registry ("keyed by
// protocol name").
type Factory func(ep netio.Endpoint) Connection

// Registry maps protocol names (e.g. "http/1.1", "fcgi") to Factory. The
// Connector looks up its configured Protocol for every accepted endpoint;
// it does not consult ALPN/NPN.
type Registry struct {
 factories map[string]Factory
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry { return &Registry{factories: make(map[string]Factory)} }

// Register binds protocol to factory, overwriting any previous binding.
func (r *Registry) Register(protocol string, factory Factory) {
 r.factories[protocol] = factory
}

// Lookup returns the factory bound to protocol, or nil if none.
func (r *Registry) Lookup(protocol string) Factory {
 return r.factories[protocol]
}
