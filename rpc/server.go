package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"

	"github.com/agentscope-go/core/memory"
	"github.com/agentscope-go/core/telemetry"
)

// liveObject is one server-hosted instance: the value itself plus the class
// name it was created from, so list_objects/server_info can report it.
type liveObject struct {
	class    string
	instance any
}

// ServerConfig configures a Server. Grounded on registry.Config's
// defaulting/derivation style (registry/registry.go).
type ServerConfig struct {
	// Registry is the class registry consulted by create_object. Defaults
	// to the package-level Default registry.
	Registry *ClassRegistry
	// Pool is the task-result pool backing async calls. Defaults to an
	// in-memory bounded pool (MaxPoolSize entries, MaxResultTTL expiry).
	Pool TaskResultPool
	// MaxPoolSize bounds the default in-memory task pool. Ignored if Pool
	// is set explicitly. Defaults to 8192, mirroring to_dist's
	// max_pool_size default in rpc_meta.py.
	MaxPoolSize int
	// MaxResultTTL bounds how long a completed async result stays fetchable
	// before it's evicted. Defaults to 2 hours (rpc_meta.py's
	// max_expire_time=7200 seconds).
	MaxResultTTL time.Duration
	// DownloadRoot is the directory download_file serves paths relative to.
	// Defaults to the current working directory.
	DownloadRoot string
	// DownloadChunkSize is the size in bytes of each streamed download_file
	// chunk. Defaults to 64KiB.
	DownloadChunkSize int
	Logger            telemetry.Logger
}

func (c *ServerConfig) setDefaults() error {
	if c.Registry == nil {
		c.Registry = Default
	}
	if c.Logger == nil {
		c.Logger = telemetry.NopLogger{}
	}
	if c.Pool == nil {
		size := c.MaxPoolSize
		if size <= 0 {
			size = 8192
		}
		ttl := c.MaxResultTTL
		if ttl <= 0 {
			ttl = 2 * time.Hour
		}
		pool, err := NewMemoryPool(size, ttl)
		if err != nil {
			return err
		}
		c.Pool = pool
	}
	if c.DownloadChunkSize <= 0 {
		c.DownloadChunkSize = 64 * 1024
	}
	return nil
}

// Server hosts live objects keyed by oid and dispatches gRPC calls against
// them (§4.3). One object's calls are serialized via a per-object mutex;
// distinct objects run concurrently.
type Server struct {
	cfg ServerConfig

	mu        sync.RWMutex
	objects   map[string]*liveObject
	objectMus map[string]*sync.Mutex

	modelConfigs json.RawMessage
	startedAt    time.Time
	stopped      bool

	grpcServer *grpc.Server
	listener   net.Listener
	addr       string
}

// NewServer builds a Server ready to Serve/Run.
func NewServer(cfg ServerConfig) (*Server, error) {
	if err := cfg.setDefaults(); err != nil {
		return nil, err
	}
	return &Server{
		cfg:       cfg,
		objects:   make(map[string]*liveObject),
		objectMus: make(map[string]*sync.Mutex),
		startedAt: time.Now(),
	}, nil
}

// Addr returns "host:port" once Serve/Run has bound a listener.
func (s *Server) Addr() string { return s.addr }

// Serve binds addr and starts accepting gRPC connections in the background,
// returning once the listener is bound. Call GracefulStop to shut down.
func (s *Server) Serve(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("rpc: listen on %s: %w", addr, err)
	}
	s.listener = lis
	s.addr = lis.Addr().String()

	s.grpcServer = grpc.NewServer()
	s.grpcServer.RegisterService(&serviceDesc, s)

	go func() {
		_ = s.grpcServer.Serve(lis)
	}()
	return nil
}

// Run blocks serving addr until ctx is canceled, then gracefully stops.
func (s *Server) Run(ctx context.Context, addr string) error {
	if err := s.Serve(addr); err != nil {
		return err
	}
	<-ctx.Done()
	return s.GracefulStop()
}

// GracefulStop finishes in-flight calls best-effort, then stops serving.
func (s *Server) GracefulStop() error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	if s.grpcServer != nil {
		s.grpcServer.GracefulStop()
	}
	return nil
}

func (s *Server) objectMutex(oid string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.objectMus[oid]
	if !ok {
		m = &sync.Mutex{}
		s.objectMus[oid] = m
	}
	return m
}

// createObject implements create_object: looks up the named class, builds
// an instance from init_args, and stores it under a fresh (or caller-given)
// oid.
func (s *Server) createObject(_ context.Context, req createObjectRequest) (createObjectResponse, error) {
	ci, ok := s.cfg.Registry.Lookup(req.ClassName)
	if !ok {
		return createObjectResponse{}, fmt.Errorf("class %q not registered", req.ClassName)
	}
	instance, err := ci.New(req.InitArgs)
	if err != nil {
		return createObjectResponse{}, fmt.Errorf("construct %q: %w", req.ClassName, err)
	}
	oid := req.Oid
	if oid == "" {
		oid = generateOid()
	}
	s.mu.Lock()
	s.objects[oid] = &liveObject{class: req.ClassName, instance: instance}
	s.mu.Unlock()
	return createObjectResponse{OK: true, Oid: oid}, nil
}

// callMethod implements call_method: sync methods run and return inline;
// async methods run on a goroutine and return a task id immediately, with
// the result delivered later via update_placeholder.
func (s *Server) callMethod(ctx context.Context, req callMethodRequest) (callMethodResponse, error) {
	s.mu.RLock()
	obj, ok := s.objects[req.Oid]
	s.mu.RUnlock()
	if !ok {
		return callMethodResponse{}, fmt.Errorf("object %q not found", req.Oid)
	}
	ci, ok := s.cfg.Registry.Lookup(obj.class)
	if !ok {
		return callMethodResponse{}, fmt.Errorf("class %q not registered", obj.class)
	}
	info, ok := ci.Methods[req.Method]
	if !ok {
		return callMethodResponse{}, fmt.Errorf("unsupported method %q on class %q", req.Method, obj.class)
	}

	mu := s.objectMutex(req.Oid)

	runCall := func() (json.RawMessage, error) {
		mu.Lock()
		defer mu.Unlock()
		return invokeMethod(obj.instance, req.Method, req.Args)
	}

	if !info.Async {
		if req.TimeoutSeconds > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, time.Duration(req.TimeoutSeconds)*time.Second)
			defer cancel()
		}
		result, err := runWithContext(ctx, runCall)
		if err != nil {
			return callMethodResponse{}, err
		}
		return callMethodResponse{OK: true, Result: result}, nil
	}

	taskID, err := s.cfg.Pool.NewTask(ctx)
	if err != nil {
		return callMethodResponse{}, fmt.Errorf("reserve task: %w", err)
	}
	go func() {
		result, err := runCall()
		if setErr := s.cfg.Pool.SetResult(context.Background(), taskID, result, err); setErr != nil {
			s.cfg.Logger.Error(context.Background(), "failed to record async task result", telemetry.Field("error", setErr.Error()))
		}
	}()
	return callMethodResponse{OK: true, Async: true, TaskID: taskID}, nil
}

// runWithContext runs fn, respecting ctx cancellation/timeout even though fn
// itself has no ctx parameter (invokeMethod dispatches via reflection over a
// caller-defined method signature, which may not accept one).
func runWithContext(ctx context.Context, fn func() (json.RawMessage, error)) (json.RawMessage, error) {
	type result struct {
		data json.RawMessage
		err  error
	}
	done := make(chan result, 1)
	go func() {
		data, err := fn()
		done <- result{data, err}
	}()
	select {
	case r := <-done:
		return r.data, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Server) deleteObject(oid string) statusResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[oid]; !ok {
		return statusResponse{OK: false, Message: fmt.Sprintf("object %q not found", oid)}
	}
	delete(s.objects, oid)
	delete(s.objectMus, oid)
	return statusResponse{OK: true}
}

func (s *Server) deleteAll() statusResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects = make(map[string]*liveObject)
	s.objectMus = make(map[string]*sync.Mutex)
	return statusResponse{OK: true}
}

func (s *Server) isAlive() statusResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		return statusResponse{OK: false, Message: "server stopping"}
	}
	return statusResponse{OK: true}
}

func (s *Server) listObjects() listObjectsResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]objectSummary, 0, len(s.objects))
	for oid, obj := range s.objects {
		out = append(out, objectSummary{Oid: oid, ClassName: obj.class})
	}
	return listObjectsResponse{Objects: out}
}

func (s *Server) serverInfo() serverInfoResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return serverInfoResponse{
		ObjectCount: len(s.objects),
		StartedAt:   s.startedAt.UTC().Format(time.RFC3339),
	}
}

func (s *Server) setModelConfigs(req setModelConfigsRequest) statusResponse {
	s.mu.Lock()
	s.modelConfigs = req.ConfigsJSON
	s.mu.Unlock()
	return statusResponse{OK: true}
}

// ModelConfigs returns the last JSON blob set via set_model_configs, or nil
// if none has been set.
func (s *Server) ModelConfigs() json.RawMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.modelConfigs
}

// getObjectMemory implements get_object_memory: if the hosted object
// exposes the same Export(memory.ExportType) ([]byte, error) method as
// memory.Manager, its processed-memory JSON export is returned verbatim;
// otherwise an error is returned.
func (s *Server) getObjectMemory(req getObjectMemoryRequest) (getObjectMemoryResponse, error) {
	s.mu.RLock()
	obj, ok := s.objects[req.Oid]
	s.mu.RUnlock()
	if !ok {
		return getObjectMemoryResponse{}, fmt.Errorf("object %q not found", req.Oid)
	}
	exporter, ok := obj.instance.(interface {
		Export(typ memory.ExportType) ([]byte, error)
	})
	if !ok {
		return getObjectMemoryResponse{}, fmt.Errorf("object %q does not expose memory", req.Oid)
	}
	data, err := exporter.Export(memory.ExportProcessed)
	if err != nil {
		return getObjectMemoryResponse{}, fmt.Errorf("export memory: %w", err)
	}
	return getObjectMemoryResponse{OK: true, MemoryJSON: data}, nil
}

func (s *Server) updatePlaceholder(ctx context.Context, req updatePlaceholderRequest) updatePlaceholderResponse {
	entry, found, err := s.cfg.Pool.GetResult(ctx, req.TaskID)
	if err != nil {
		return updatePlaceholderResponse{OK: false, Message: err.Error()}
	}
	if !found {
		return updatePlaceholderResponse{OK: false, Message: fmt.Sprintf("unknown task id %q", req.TaskID)}
	}
	if !entry.Ready {
		return updatePlaceholderResponse{OK: true, Ready: false}
	}
	if entry.ErrMsg != "" {
		return updatePlaceholderResponse{OK: false, Ready: true, Message: entry.ErrMsg}
	}
	return updatePlaceholderResponse{OK: true, Ready: true, Value: entry.Result}
}

func (s *Server) downloadPath(path string) (string, error) {
	root := s.cfg.DownloadRoot
	if root == "" {
		var err error
		root, err = os.Getwd()
		if err != nil {
			return "", err
		}
	}
	return resolveUnderRoot(root, path)
}

func generateOid() string { return uuid.NewString() }
