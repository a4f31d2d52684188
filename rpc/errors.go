package rpc

import "fmt"

// ServerNotAliveError is surfaced when a transport error's is_alive probe
// also fails: the remote process is gone, not merely the one call.
type ServerNotAliveError struct {
	Host, Port string
	Message    string
}

func (e *ServerNotAliveError) Error() string {
	return fmt.Sprintf("rpc: server %s:%s not alive: %s", e.Host, e.Port, e.Message)
}

// CreationFailedError is surfaced when create_object fails on the server.
type CreationFailedError struct {
	Host, Port string
	Message    string
}

func (e *CreationFailedError) Error() string {
	return fmt.Sprintf("rpc: create object on %s:%s failed: %s", e.Host, e.Port, e.Message)
}

// CallFailedError wraps any RPC failure that is_alive did not attribute to a
// dead server: unknown oid, unknown task id, a handler panic/error, etc.
type CallFailedError struct {
	Host, Port string
	Message    string
}

func (e *CallFailedError) Error() string {
	return fmt.Sprintf("rpc: call to %s:%s failed: %s", e.Host, e.Port, e.Message)
}

// UnsupportedMethodError is raised by a Proxy before any network round trip
// when the method name is not in the class's published method set.
type UnsupportedMethodError struct {
	Host, Port, Oid, Method string
}

func (e *UnsupportedMethodError) Error() string {
	return fmt.Sprintf("rpc: object %s on %s:%s has no method %q", e.Oid, e.Host, e.Port, e.Method)
}
