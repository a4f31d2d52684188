// Package rpc is the RPC object layer (C6): a server hosts live Go values
// keyed by an opaque object id, a process-wide registry maps class names to
// constructors and per-method async/sync metadata, and a client Proxy
// dispatches calls over gRPC using a hand-registered ServiceDesc and a JSON
// wire codec rather than protoc-generated stubs — the object payloads
// themselves are opaque JSON blobs, so no .proto schema is needed for them
// either. Grounded on rpc_meta.py's RpcMeta registry/to_dist split and
// registry/registry.go's Config/New/Run wiring style for the server
// lifecycle.
package rpc

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
)

// Constructor builds a new instance of a registered class from its
// JSON-encoded init arguments.
type Constructor func(args json.RawMessage) (any, error)

// MethodInfo describes one exposable method of a registered class.
type MethodInfo struct {
	// Async marks a method whose call returns a task id immediately; the
	// caller polls update_placeholder for the real result. Sync methods
	// block the RPC until the result is ready.
	Async bool
}

// ClassInfo is what the process-wide registry stores per class name.
type ClassInfo struct {
	Name    string
	New     Constructor
	Methods map[string]MethodInfo
}

// ClassRegistry is a process-wide map from class name to ClassInfo,
// populated once per process by RegisterClass (mirrors RpcMeta._REGISTRY).
// The zero value is ready to use; a package-level Default instance backs
// the package-level RegisterClass helper most callers use.
type ClassRegistry struct {
	mu      sync.RWMutex
	classes map[string]ClassInfo
}

// NewClassRegistry builds an empty registry. Most callers should use the
// package-level Default registry instead of constructing their own, unless
// test isolation across registrations is required.
func NewClassRegistry() *ClassRegistry {
	return &ClassRegistry{classes: make(map[string]ClassInfo)}
}

// Default is the process-wide registry used by the package-level
// RegisterClass helper and by to_remote when no explicit
// registry is supplied.
var Default = NewClassRegistry()

// ErrClassAlreadyRegistered is returned when a name is registered twice with
// a different Constructor (idempotent re-registration of the exact same
// constructor value is allowed and a no-op, matching RpcMeta's tolerant
// re-registration behavior but rejecting an actual name collision).
var ErrClassAlreadyRegistered = fmt.Errorf("rpc: class already registered")

// Register adds a class under name. new_ builds a new instance from raw JSON
// init args; methods lists every RPC-exposable method with its async/sync
// designation. Re-registering the same name is an error unless the
// constructor function is byte-identical (same underlying func value).
func (r *ClassRegistry) Register(name string, new_ Constructor, methods map[string]MethodInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.classes == nil {
		r.classes = make(map[string]ClassInfo)
	}
	if existing, ok := r.classes[name]; ok {
		if reflect.ValueOf(existing.New).Pointer() == reflect.ValueOf(new_).Pointer() {
			return nil
		}
		return fmt.Errorf("%w: %q", ErrClassAlreadyRegistered, name)
	}
	r.classes[name] = ClassInfo{Name: name, New: new_, Methods: methods}
	return nil
}

// Lookup returns the registered ClassInfo for name, or false if no class by
// that name was ever registered.
func (r *ClassRegistry) Lookup(name string) (ClassInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ci, ok := r.classes[name]
	return ci, ok
}

// MethodNames returns every public method name registered for class, used
// to seed a Proxy's cached method list (rpc_object.py's
// get_public_methods, but driven by explicit registration metadata instead
// of runtime reflection over a live Python class).
func (r *ClassRegistry) MethodNames(class string) ([]string, error) {
	ci, ok := r.Lookup(class)
	if !ok {
		return nil, fmt.Errorf("rpc: class %q not registered", class)
	}
	names := make([]string, 0, len(ci.Methods))
	for name := range ci.Methods {
		names = append(names, name)
	}
	return names, nil
}

// Methods returns a copy of class's registered method-name/async-sync map,
// used to seed a Proxy without exposing the registry's internal ClassInfo.
func (r *ClassRegistry) Methods(class string) (map[string]MethodInfo, error) {
	ci, ok := r.Lookup(class)
	if !ok {
		return nil, fmt.Errorf("rpc: class %q not registered", class)
	}
	out := make(map[string]MethodInfo, len(ci.Methods))
	for name, info := range ci.Methods {
		out[name] = info
	}
	return out, nil
}

// RegisterClass registers name against the package-level Default registry.
func RegisterClass(name string, new_ Constructor, methods map[string]MethodInfo) error {
	return Default.Register(name, new_, methods)
}

// invokeMethod calls methodName on instance via reflection, decoding a
// single JSON-encoded argument tuple into the method's parameter types and
// re-encoding the (single, non-error) return value as JSON. This is how the
// server dispatches call_method without any code generation per exposed
// class.
func invokeMethod(instance any, methodName string, argsJSON json.RawMessage) (json.RawMessage, error) {
	v := reflect.ValueOf(instance)
	method := v.MethodByName(exportedName(methodName))
	if !method.IsValid() {
		return nil, fmt.Errorf("rpc: method %q not found on %T", methodName, instance)
	}
	mt := method.Type()

	var rawArgs []json.RawMessage
	if len(argsJSON) > 0 {
		if err := json.Unmarshal(argsJSON, &rawArgs); err != nil {
			return nil, fmt.Errorf("rpc: decode args for %q: %w", methodName, err)
		}
	}
	numIn := mt.NumIn()
	if len(rawArgs) != numIn {
		return nil, fmt.Errorf("rpc: method %q expects %d args, got %d", methodName, numIn, len(rawArgs))
	}
	in := make([]reflect.Value, numIn)
	for i := 0; i < numIn; i++ {
		argPtr := reflect.New(mt.In(i))
		if err := json.Unmarshal(rawArgs[i], argPtr.Interface()); err != nil {
			return nil, fmt.Errorf("rpc: decode arg %d for %q: %w", i, methodName, err)
		}
		in[i] = argPtr.Elem()
	}

	out := method.Call(in)
	return encodeMethodResult(out)
}

// encodeMethodResult supports the two conventional Go method shapes: (T) and
// (T, error), or a bare error.
func encodeMethodResult(out []reflect.Value) (json.RawMessage, error) {
	if len(out) == 0 {
		return json.RawMessage("null"), nil
	}
	last := out[len(out)-1]
	if last.Type().Implements(reflect.TypeOf((*error)(nil)).Elem()) {
		if !last.IsNil() {
			return nil, last.Interface().(error)
		}
		out = out[:len(out)-1]
	}
	if len(out) == 0 {
		return json.RawMessage("null"), nil
	}
	data, err := json.Marshal(out[0].Interface())
	if err != nil {
		return nil, fmt.Errorf("rpc: encode result: %w", err)
	}
	return data, nil
}

// exportedName upper-cases the first rune so a lowercase wire method name
// (e.g. "greet") resolves to the exported Go method ("Greet") the RPC class
// author wrote.
func exportedName(name string) string {
	if name == "" {
		return name
	}
	r := []rune(name)
	if r[0] >= 'a' && r[0] <= 'z' {
		r[0] = r[0] - 'a' + 'A'
	}
	return string(r)
}
