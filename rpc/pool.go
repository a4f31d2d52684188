package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
)

// taskEntry is what the task-result pool stores per task id: either nothing
// yet (still running), a result, or a failure.
type taskEntry struct {
	Ready   bool            `json:"ready"`
	Result  json.RawMessage `json:"result,omitempty"`
	ErrMsg  string          `json:"err_msg,omitempty"`
	expires time.Time
}

// TaskResultPool is the server's keyed store of async call outcomes (§4.3):
// call_method for an async method returns a fresh task id immediately;
// update_placeholder polls this pool until the entry is Ready.
type TaskResultPool interface {
	// NewTask reserves a task id for an in-flight async call.
	NewTask(ctx context.Context) (string, error)
	// SetResult records the outcome of a previously reserved task id.
	SetResult(ctx context.Context, taskID string, result json.RawMessage, callErr error) error
	// GetResult returns the entry for taskID. found is false if the id is
	// unknown to this pool (expired, evicted, or never issued).
	GetResult(ctx context.Context, taskID string) (entry taskEntry, found bool, err error)
}

// MemoryPool is a single-process task-result pool: a bounded LRU cache with
// per-entry expiry, evicting the oldest entry on overflow (§4.3 "Server
// maintains a bounded pool of task results keyed by task id with per-entry
// expiry. Overflow evicts oldest."), grounded on modelgateway/cache's LRU
// tier built on the same hashicorp/golang-lru/v2 library.
type MemoryPool struct {
	mu     sync.Mutex
	cache  *lru.Cache[string, taskEntry]
	ttl    time.Duration
	nextID func() string
}

// NewMemoryPool builds an in-process pool holding up to maxSize entries,
// each expiring ttl after being set.
func NewMemoryPool(maxSize int, ttl time.Duration) (*MemoryPool, error) {
	cache, err := lru.New[string, taskEntry](maxSize)
	if err != nil {
		return nil, fmt.Errorf("rpc: build task pool cache: %w", err)
	}
	return &MemoryPool{cache: cache, ttl: ttl, nextID: generateTaskID}, nil
}

func (p *MemoryPool) NewTask(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID()
	p.cache.Add(id, taskEntry{Ready: false})
	return id, nil
}

func (p *MemoryPool) SetResult(_ context.Context, taskID string, result json.RawMessage, callErr error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry := taskEntry{Ready: true, Result: result, expires: time.Now().Add(p.ttl)}
	if callErr != nil {
		entry.ErrMsg = callErr.Error()
	}
	p.cache.Add(taskID, entry)
	return nil
}

func (p *MemoryPool) GetResult(_ context.Context, taskID string) (taskEntry, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.cache.Get(taskID)
	if !ok {
		return taskEntry{}, false, nil
	}
	if entry.Ready && !entry.expires.IsZero() && time.Now().After(entry.expires) {
		p.cache.Remove(taskID)
		return taskEntry{}, false, nil
	}
	return entry, true, nil
}

// RedisPool is a distributed task-result pool: any node behind a load
// balancer can serve update_placeholder polling, since task state lives in
// Redis rather than process memory (§4.3 "Distributed task-result pool
// (supplemental)"), grounded on registry/registry.go's use of the same
// go-redis client for its replicated health map over one shared connection.
type RedisPool struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
	nextID func() string
}

// NewRedisPool builds a pool whose entries live under "<prefix>:<task_id>"
// keys in rdb, each expiring ttl after being set.
func NewRedisPool(rdb *redis.Client, prefix string, ttl time.Duration) *RedisPool {
	if prefix == "" {
		prefix = "rpc:task"
	}
	return &RedisPool{rdb: rdb, prefix: prefix, ttl: ttl, nextID: generateTaskID}
}

func (p *RedisPool) key(taskID string) string { return fmt.Sprintf("%s:%s", p.prefix, taskID) }

func (p *RedisPool) NewTask(ctx context.Context) (string, error) {
	id := p.nextID()
	data, _ := json.Marshal(taskEntry{Ready: false})
	if err := p.rdb.Set(ctx, p.key(id), data, p.ttl).Err(); err != nil {
		return "", fmt.Errorf("rpc: reserve task in redis: %w", err)
	}
	return id, nil
}

func (p *RedisPool) SetResult(ctx context.Context, taskID string, result json.RawMessage, callErr error) error {
	entry := taskEntry{Ready: true, Result: result}
	if callErr != nil {
		entry.ErrMsg = callErr.Error()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("rpc: encode task result: %w", err)
	}
	if err := p.rdb.Set(ctx, p.key(taskID), data, p.ttl).Err(); err != nil {
		return fmt.Errorf("rpc: set task result in redis: %w", err)
	}
	return nil
}

func (p *RedisPool) GetResult(ctx context.Context, taskID string) (taskEntry, bool, error) {
	data, err := p.rdb.Get(ctx, p.key(taskID)).Bytes()
	if err == redis.Nil {
		return taskEntry{}, false, nil
	}
	if err != nil {
		return taskEntry{}, false, fmt.Errorf("rpc: get task result from redis: %w", err)
	}
	var entry taskEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return taskEntry{}, false, fmt.Errorf("rpc: decode task result: %w", err)
	}
	return entry, true, nil
}

var taskIDCounter struct {
	mu sync.Mutex
	n  uint64
}

// generateTaskID mints a process-unique task id. Unlike oids (uuid.NewString
// per object, mirroring generate_oid in rpc_meta.py), task ids are high
// frequency and short-lived, so a monotonic counter prefixed with a start-
// time nonce avoids uuid generation overhead on the server's hot path.
func generateTaskID() string {
	taskIDCounter.mu.Lock()
	defer taskIDCounter.mu.Unlock()
	taskIDCounter.n++
	return fmt.Sprintf("%d-%d", processStartNonce, taskIDCounter.n)
}

var processStartNonce = time.Now().UnixNano()
