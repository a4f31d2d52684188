package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/agentscope-go/core/retry"
)

// Proxy is a client-side stand-in for an object hosted on an RPC server
// (§4.3 "Client proxy"), grounded on rpc_object.py's RpcObject: it caches
// the class's public method list at construction so calling an unknown
// method fails locally, with no network round trip, exactly like
// RpcObject.__getattr__ raising AgentServerUnsupportedMethodError before
// ever reaching the wire.
type Proxy struct {
	Host, Port string
	Oid        string
	Class      string

	client  *Client
	methods map[string]MethodInfo
	retry   retry.Strategy
}

// NewProxy builds a Proxy for an existing remote object. methods is the
// class's published method-name/async-sync metadata (from a ClassRegistry
// lookup, local or assumed shared with the remote process).
func NewProxy(host, port, oid, class string, methods map[string]MethodInfo, strategy retry.Strategy) *Proxy {
	if strategy == nil {
		strategy = retry.Default()
	}
	return &Proxy{
		Host: host, Port: port, Oid: oid, Class: class,
		client:  NewClient(host, port),
		methods: methods,
		retry:   strategy,
	}
}

// Call invokes method with the given args tuple (each element a JSON value
// to be positionally matched to the remote method's parameters). A sync
// method blocks and returns the decoded result directly; an async method
// returns an *AsyncResult whose Result(ctx) fetches the value, so both are
// returned through the same (json.RawMessage, *AsyncResult, error) shape —
// callers use whichever non-nil value matches what they expected.
func (p *Proxy) Call(ctx context.Context, method string, args ...any) (json.RawMessage, *AsyncResult, error) {
	info, ok := p.methods[method]
	if !ok {
		return nil, nil, &UnsupportedMethodError{Host: p.Host, Port: p.Port, Oid: p.Oid, Method: method}
	}

	encodedArgs := make([]json.RawMessage, len(args))
	for i, a := range args {
		data, err := json.Marshal(a)
		if err != nil {
			return nil, nil, fmt.Errorf("rpc: encode arg %d for %q: %w", i, method, err)
		}
		encodedArgs[i] = data
	}
	argsJSON, err := json.Marshal(encodedArgs)
	if err != nil {
		return nil, nil, fmt.Errorf("rpc: encode args for %q: %w", method, err)
	}

	resp, err := p.client.CallMethod(ctx, p.Oid, method, argsJSON, 0)
	if err != nil {
		return nil, nil, err
	}
	if info.Async || resp.Async {
		return nil, newAsyncResult(p.client, resp.TaskID, p.retry), nil
	}
	return resp.Result, nil, nil
}

// CallSync invokes a known-sync method and returns its decoded result
// directly, failing if the method is actually registered async.
func (p *Proxy) CallSync(ctx context.Context, method string, args ...any) (json.RawMessage, error) {
	result, async, err := p.Call(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	if async != nil {
		return nil, fmt.Errorf("rpc: method %q is async; use Call or CallAsync", method)
	}
	return result, nil
}

// CallAsync invokes a known-async method and returns its AsyncResult,
// failing if the method is actually registered sync.
func (p *Proxy) CallAsync(ctx context.Context, method string, args ...any) (*AsyncResult, error) {
	result, async, err := p.Call(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	if async == nil {
		// Wrap the already-ready sync result in an AsyncResult so callers
		// that generically expect one don't need to special-case it.
		wrapped := &AsyncResult{client: p.client, retry: p.retry, ready: true, value: result}
		return wrapped, nil
	}
	return async, nil
}

// IsAlive probes the object's server.
func (p *Proxy) IsAlive(ctx context.Context) bool { return p.client.IsAlive(ctx) }
