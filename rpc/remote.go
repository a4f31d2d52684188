package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"

	"github.com/agentscope-go/core/retry"
)

// RemoteOptions configures ToRemote (§4.3 "to_remote"), grounded on
// rpc_object.py's to_dist: a host/port of "" starts (or reuses) a local
// Server instead of dialing out, so the same call-site code works whether
// the object ends up local-in-process or served over the network.
type RemoteOptions struct {
	// Host/Port name an existing server to connect to. Leave both empty to
	// start (or reuse) a local Server instead.
	Host, Port string
	// Oid binds to an object already hosted at Host:Port instead of
	// creating a new one. Only meaningful when Host/Port are set.
	Oid string
	// LocalServerConfig configures the implicit local Server started the
	// first time ToRemote is called with no Host/Port in this process.
	LocalServerConfig ServerConfig
	// LocalAddr is the "host:port" (or ":0" for an ephemeral port) the
	// implicit local Server binds to. Defaults to "127.0.0.1:0".
	LocalAddr string
	Retry     retry.Strategy
}

var (
	localServerMu sync.Mutex
	localServer   *Server
)

// sharedLocalServer lazily starts (or returns the already-running) one
// implicit local Server used by every in-process ToRemote(..., no host/port)
// call, mirroring rpc_object.py's module-level lazily-started local server.
func sharedLocalServer(cfg ServerConfig, addr string) (*Server, error) {
	localServerMu.Lock()
	defer localServerMu.Unlock()
	if localServer != nil {
		return localServer, nil
	}
	srv, err := NewServer(cfg)
	if err != nil {
		return nil, err
	}
	if addr == "" {
		addr = "127.0.0.1:0"
	}
	if err := srv.Serve(addr); err != nil {
		return nil, err
	}
	localServer = srv
	return srv, nil
}

// ToRemote converts className/initArgs into a Proxy, either by creating the
// object on an existing remote server (opts.Host/Port set) or by creating it
// on this process's implicit local server (opts.Host/Port empty). The
// returned Proxy is called exactly the same way in both cases.
func ToRemote(ctx context.Context, registry *ClassRegistry, className string, initArgs json.RawMessage, opts RemoteOptions) (*Proxy, error) {
	if registry == nil {
		registry = Default
	}

	host, port := opts.Host, opts.Port
	if host == "" && port == "" {
		srv, err := sharedLocalServer(opts.LocalServerConfig, opts.LocalAddr)
		if err != nil {
			return nil, fmt.Errorf("rpc: start local server: %w", err)
		}
		h, p, err := net.SplitHostPort(srv.Addr())
		if err != nil {
			return nil, fmt.Errorf("rpc: parse local server addr %q: %w", srv.Addr(), err)
		}
		host, port = h, p
	}

	client := NewClient(host, port)

	oid := opts.Oid
	if oid == "" {
		var err error
		oid, err = client.CreateObject(ctx, className, initArgs, "")
		if err != nil {
			return nil, err
		}
	} else {
		if !client.IsAlive(ctx) {
			return nil, &ServerNotAliveError{Host: host, Port: port, Message: "server not reachable while binding to existing oid"}
		}
	}

	methods, err := registry.Methods(className)
	if err != nil {
		return nil, err
	}
	proxy := NewProxy(host, port, oid, className, methods, opts.Retry)
	proxy.client = client
	return proxy, nil
}
