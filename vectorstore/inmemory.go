package vectorstore

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"
)

// InMemory is a Store backed by a process-local map, used by tests and by
// callers who don't need persistence across restarts. It preserves
// insertion order via LastModifiedAt the same way the memory manager relies
// on a real store to.
type InMemory struct {
	mu        sync.Mutex
	dimension int
	records   map[string]Record
}

// NewInMemory constructs an empty in-memory store for the given vector
// width.
func NewInMemory(dimension int) *InMemory {
	return &InMemory{dimension: dimension, records: make(map[string]Record)}
}

func (s *InMemory) Dimension() int { return s.dimension }

func (s *InMemory) Insert(_ context.Context, ids []string, vectors [][]float32, payloads []map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for i, id := range ids {
		var payload map[string]any
		if i < len(payloads) {
			payload = payloads[i]
		}
		s.records[id] = Record{ID: id, Vector: vectors[i], Payload: payload, LastModifiedAt: now.Add(time.Duration(i))}
	}
	return nil
}

func (s *InMemory) Update(_ context.Context, id string, vector []float32, payload map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	if vector != nil {
		rec.Vector = vector
	}
	if payload != nil {
		rec.Payload = payload
	}
	rec.LastModifiedAt = time.Now()
	s.records[id] = rec
	return nil
}

func (s *InMemory) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}

func (s *InMemory) Get(_ context.Context, id string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (s *InMemory) Search(_ context.Context, query []float32, limit int, filter Filter) ([]SearchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	results := make([]SearchResult, 0, len(s.records))
	for _, rec := range s.records {
		if !matches(rec.Payload, filter) {
			continue
		}
		results = append(results, SearchResult{ID: rec.ID, Score: cosine(query, rec.Vector), Payload: rec.Payload})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (s *InMemory) Reset(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]Record)
	return nil
}

func (s *InMemory) Close() error { return nil }

func matches(payload map[string]any, filter Filter) bool {
	for k, v := range filter {
		if payload[k] != v {
			return false
		}
	}
	return true
}

func cosine(a, b []float32) float32 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(magA) * math.Sqrt(magB)))
}
