// Package vectorstore is the C2 gateway: insert/update/delete/search
// embeddings with attached payloads by opaque id, preserving enough
// ordering information for the memory manager's last_modified_at sort.
package vectorstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get (and by InMemory's Update) for an unknown
// id; Delete of an unknown id is a no-op.
var ErrNotFound = errors.New("vectorstore: id not found")

// Record is a single stored vector plus its opaque payload.
type Record struct {
	ID             string
	Vector         []float32
	Payload        map[string]any
	LastModifiedAt time.Time
}

// SearchResult is a single similarity-search hit.
type SearchResult struct {
	ID      string
	Score   float32
	Payload map[string]any
}

// Filter restricts a search to records whose payload matches every
// key/value pair exactly.
type Filter map[string]any

// Store is the C2 contract.
type Store interface {
	// Insert adds new vectors. len(ids) == len(vectors) == len(payloads).
	Insert(ctx context.Context, ids []string, vectors [][]float32, payloads []map[string]any) error
	// Update replaces the vector and/or payload of an existing id.
	Update(ctx context.Context, id string, vector []float32, payload map[string]any) error
	// Delete removes an id. Deleting an unknown id is a no-op.
	Delete(ctx context.Context, id string) error
	// Get fetches a single record by id.
	Get(ctx context.Context, id string) (Record, error)
	// Search returns up to limit nearest neighbors of query, optionally
	// restricted by filter.
	Search(ctx context.Context, query []float32, limit int, filter Filter) ([]SearchResult, error)
	// Reset deletes every record.
	Reset(ctx context.Context) error
	// Dimension reports the vector width this store was configured for.
	Dimension() int
	Close() error
}
