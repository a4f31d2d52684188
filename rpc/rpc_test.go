package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/agentscope-go/core/retry"
)

// echoObj is the RPC-exposed class used throughout this file, matching
// scenario S5's "Echo" class with an async greet(name) method.
type echoObj struct{}

func (e *echoObj) Greet(name string) (string, error) {
	return "hi " + name, nil
}

func newEchoRegistry() *ClassRegistry {
	reg := NewClassRegistry()
	_ = reg.Register("Echo", func(json.RawMessage) (any, error) {
		return &echoObj{}, nil
	}, map[string]MethodInfo{"greet": {Async: true}})
	return reg
}

func fastRetry() retry.Strategy { return retry.NewFixed(3, 15*time.Millisecond) }

func mustServe(t *testing.T, reg *ClassRegistry) *Server {
	t.Helper()
	srv, err := NewServer(ServerConfig{Registry: reg})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	if err := srv.Serve("127.0.0.1:0"); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	return srv
}

// TestAsyncResultIdempotentAfterServerDown exercises property 7: a second
// Result call after the first succeeded must return the same value without
// any further network round trip. It proves that by killing the server
// between the two calls and still getting a clean, unchanged answer back.
func TestAsyncResultIdempotentAfterServerDown(t *testing.T) {
	reg := newEchoRegistry()
	srv := mustServe(t, reg)

	host, port, err := net.SplitHostPort(srv.Addr())
	if err != nil {
		t.Fatalf("split addr: %v", err)
	}
	client := NewClient(host, port)
	ctx := context.Background()

	oid, err := client.CreateObject(ctx, "Echo", json.RawMessage("null"), "")
	if err != nil {
		t.Fatalf("CreateObject: %v", err)
	}

	resp, err := client.CallMethod(ctx, oid, "greet", json.RawMessage(`["x"]`), 0)
	if err != nil {
		t.Fatalf("CallMethod: %v", err)
	}
	if !resp.Async {
		t.Fatalf("expected async response, got sync result %s", resp.Result)
	}

	ar := newAsyncResult(client, resp.TaskID, fastRetry())

	val, err := ar.Result(ctx)
	if err != nil {
		t.Fatalf("first Result: %v", err)
	}
	var s string
	if err := json.Unmarshal(val, &s); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if s != "hi x" {
		t.Fatalf("got %q, want %q", s, "hi x")
	}

	if err := srv.GracefulStop(); err != nil {
		t.Fatalf("GracefulStop: %v", err)
	}

	val2, err2 := ar.Result(ctx)
	if err2 != nil {
		t.Fatalf("second Result should be served from cache, got error: %v", err2)
	}
	if string(val2) != string(val) {
		t.Fatalf("cached value changed: %s vs %s", val2, val)
	}
}

// TestUpdatePlaceholderExhaustsAfterServerDies covers property 8 and the
// second half of scenario S5: a server killed before the first
// update_placeholder poll must surface ServerNotAliveError, and once the
// retry budget is spent the caller sees a *retry.ExhaustedError wrapping it.
func TestUpdatePlaceholderExhaustsAfterServerDies(t *testing.T) {
	reg := newEchoRegistry()
	srv := mustServe(t, reg)
	host, port, err := net.SplitHostPort(srv.Addr())
	if err != nil {
		t.Fatalf("split addr: %v", err)
	}
	client := NewClient(host, port)
	ctx := context.Background()

	oid, err := client.CreateObject(ctx, "Echo", json.RawMessage("null"), "")
	if err != nil {
		t.Fatalf("CreateObject: %v", err)
	}
	resp, err := client.CallMethod(ctx, oid, "greet", json.RawMessage(`["x"]`), 0)
	if err != nil {
		t.Fatalf("CallMethod: %v", err)
	}

	if err := srv.GracefulStop(); err != nil {
		t.Fatalf("GracefulStop: %v", err)
	}

	strategy := retry.NewFixed(2, 10*time.Millisecond)
	_, err = client.UpdatePlaceholder(ctx, resp.TaskID, strategy)
	if err == nil {
		t.Fatal("expected an error once the server is down")
	}
	var exhausted *retry.ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected *retry.ExhaustedError, got %T: %v", err, err)
	}
	var notAlive *ServerNotAliveError
	if !errors.As(exhausted.LastErr, &notAlive) {
		t.Fatalf("expected wrapped *ServerNotAliveError, got %T: %v", exhausted.LastErr, exhausted.LastErr)
	}
}

// TestProxyRejectsUnsupportedMethodLocally proves the unsupported-method
// pre-check never reaches the network: no server is started at all, so any
// RPC attempt would hang or error at dial time, yet Call returns cleanly.
func TestProxyRejectsUnsupportedMethodLocally(t *testing.T) {
	methods := map[string]MethodInfo{"greet": {Async: true}}
	p := NewProxy("127.0.0.1", "1", "some-oid", "Echo", methods, fastRetry())

	_, _, err := p.Call(context.Background(), "not_a_real_method")
	if err == nil {
		t.Fatal("expected an error for an unregistered method")
	}
	var unsupported *UnsupportedMethodError
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected *UnsupportedMethodError, got %T: %v", err, err)
	}
}

// TestToRemoteLocalModeEcho covers scenario S5's happy path: registering
// Echo, obtaining a Proxy via ToRemote with no host/port (so it runs against
// this process's implicit local server), calling the async greet method,
// and reading back "hi x" through AsyncResult.Result.
func TestToRemoteLocalModeEcho(t *testing.T) {
	reg := newEchoRegistry()
	ctx := context.Background()

	proxy, err := ToRemote(ctx, reg, "Echo", json.RawMessage("null"), RemoteOptions{
		LocalServerConfig: ServerConfig{Registry: reg},
		Retry:             fastRetry(),
	})
	if err != nil {
		t.Fatalf("ToRemote: %v", err)
	}

	ar, err := proxy.CallAsync(ctx, "greet", "x")
	if err != nil {
		t.Fatalf("CallAsync: %v", err)
	}
	val, err := ar.Result(ctx)
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	var s string
	if err := json.Unmarshal(val, &s); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if s != "hi x" {
		t.Fatalf("got %q, want %q", s, "hi x")
	}
}
