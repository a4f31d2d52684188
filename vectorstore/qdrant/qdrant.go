// Package qdrant implements vectorstore.Store against a Qdrant instance
// over its gRPC API, adapted from the Qdrant-backed vector store found in
// the broader example pack: DSN parsing, collection bootstrap keyed by
// configurable distance metric, and deterministic UUID point ids for
// caller-supplied non-UUID ids (Qdrant only accepts UUIDs or positive
// integers as point ids).
package qdrant

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	qdrantclient "github.com/qdrant/go-client/qdrant"

	"github.com/agentscope-go/core/vectorstore"
)

// originalIDField stores the caller-supplied id in the payload when it had
// to be replaced by a deterministic UUID for Qdrant's point-id constraint.
const originalIDField = "_original_id"

// lastModifiedField stores the RFC3339 last-modified timestamp so the
// memory manager's last_modified_at ordering survives a round trip through
// Qdrant, which has no native notion of record ordering.
const lastModifiedField = "_last_modified_at"

// Store is a vectorstore.Store backed by Qdrant.
type Store struct {
	client     *qdrantclient.Client
	collection string
	dimension  int
	metric     string
}

// New parses dsn (e.g. "http://localhost:6334?api_key=...") and returns a
// Store bound to collection, creating it if absent.
func New(dsn, collection string, dimension int, metric string) (*Store, error) {
	if collection == "" {
		return nil, fmt.Errorf("qdrant: collection name is required")
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("qdrant: parse dsn: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	portStr := parsed.Port()
	if portStr == "" {
		portStr = "6334"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("qdrant: invalid port in dsn: %w", err)
	}
	cfg := &qdrantclient.Config{Host: host, Port: port}
	if parsed.Scheme == "https" {
		cfg.UseTLS = true
	}
	if apiKey := parsed.Query().Get("api_key"); apiKey != "" {
		cfg.APIKey = apiKey
	}
	client, err := qdrantclient.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("qdrant: create client: %w", err)
	}
	s := &Store{client: client, collection: collection, dimension: dimension, metric: strings.ToLower(strings.TrimSpace(metric))}
	if err := s.ensureCollection(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("qdrant: ensure collection: %w", err)
	}
	return s, nil
}

func (s *Store) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("check collection exists: %w", err)
	}
	if exists {
		return nil
	}
	if s.dimension <= 0 {
		return fmt.Errorf("dimension must be > 0")
	}
	var distance qdrantclient.Distance
	switch s.metric {
	case "l2", "euclidean":
		distance = qdrantclient.Distance_Euclid
	case "ip", "dot":
		distance = qdrantclient.Distance_Dot
	case "manhattan":
		distance = qdrantclient.Distance_Manhattan
	default:
		distance = qdrantclient.Distance_Cosine
	}
	return s.client.CreateCollection(ctx, &qdrantclient.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrantclient.NewVectorsConfig(&qdrantclient.VectorParams{
			Size:     uint64(s.dimension),
			Distance: distance,
		}),
	})
}

func (s *Store) Dimension() int { return s.dimension }

func (s *Store) Close() error { return s.client.Close() }

// pointID returns a Qdrant-legal UUID for id, generating a deterministic
// SHA1-namespaced one when id is not itself a UUID.
func pointID(id string) string {
	if _, err := uuid.Parse(id); err == nil {
		return id
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String()
}

func toPayload(id string, uuidStr string, payload map[string]any) map[string]*qdrantclient.Value {
	flat := make(map[string]any, len(payload)+2)
	for k, v := range payload {
		flat[k] = v
	}
	flat[lastModifiedField] = time.Now().Format(time.RFC3339Nano)
	if uuidStr != id {
		flat[originalIDField] = id
	}
	return qdrantclient.NewValueMap(flat)
}

func (s *Store) Insert(ctx context.Context, ids []string, vectors [][]float32, payloads []map[string]any) error {
	points := make([]*qdrantclient.PointStruct, 0, len(ids))
	for i, id := range ids {
		uuidStr := pointID(id)
		var payload map[string]any
		if i < len(payloads) {
			payload = payloads[i]
		}
		points = append(points, &qdrantclient.PointStruct{
			Id:      qdrantclient.NewIDUUID(uuidStr),
			Vectors: qdrantclient.NewVectorsDense(vectors[i]),
			Payload: toPayload(id, uuidStr, payload),
		})
	}
	_, err := s.client.Upsert(ctx, &qdrantclient.UpsertPoints{CollectionName: s.collection, Points: points})
	return err
}

func (s *Store) Update(ctx context.Context, id string, vector []float32, payload map[string]any) error {
	uuidStr := pointID(id)
	point := &qdrantclient.PointStruct{
		Id:      qdrantclient.NewIDUUID(uuidStr),
		Payload: toPayload(id, uuidStr, payload),
	}
	if vector != nil {
		point.Vectors = qdrantclient.NewVectorsDense(vector)
	}
	_, err := s.client.Upsert(ctx, &qdrantclient.UpsertPoints{CollectionName: s.collection, Points: []*qdrantclient.PointStruct{point}})
	return err
}

func (s *Store) Delete(ctx context.Context, id string) error {
	uuidStr := pointID(id)
	_, err := s.client.Delete(ctx, &qdrantclient.DeletePoints{
		CollectionName: s.collection,
		Points:         qdrantclient.NewPointsSelector(qdrantclient.NewIDUUID(uuidStr)),
	})
	return err
}

func (s *Store) Get(ctx context.Context, id string) (vectorstore.Record, error) {
	uuidStr := pointID(id)
	points, err := s.client.Get(ctx, &qdrantclient.GetPoints{
		CollectionName: s.collection,
		Ids:            []*qdrantclient.PointId{qdrantclient.NewIDUUID(uuidStr)},
		WithPayload:    qdrantclient.NewWithPayload(true),
		WithVectors:    qdrantclient.NewWithVectors(true),
	})
	if err != nil {
		return vectorstore.Record{}, err
	}
	if len(points) == 0 {
		return vectorstore.Record{}, vectorstore.ErrNotFound
	}
	return fromPoint(id, points[0].GetPayload(), points[0].GetVectors()), nil
}

func (s *Store) Search(ctx context.Context, query []float32, limit int, filter vectorstore.Filter) ([]vectorstore.SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}
	var qf *qdrantclient.Filter
	if len(filter) > 0 {
		must := make([]*qdrantclient.Condition, 0, len(filter))
		for k, v := range filter {
			if s, ok := v.(string); ok {
				must = append(must, qdrantclient.NewMatch(k, s))
			}
		}
		qf = &qdrantclient.Filter{Must: must}
	}
	lim := uint64(limit)
	hits, err := s.client.Query(ctx, &qdrantclient.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrantclient.NewQueryDense(query),
		Limit:          &lim,
		Filter:         qf,
		WithPayload:    qdrantclient.NewWithPayload(true),
	})
	if err != nil {
		return nil, err
	}
	results := make([]vectorstore.SearchResult, 0, len(hits))
	for _, hit := range hits {
		payload, originalID := fromPayloadMap(hit.Payload)
		id := originalID
		if id == "" {
			id = hit.Id.GetUuid()
		}
		results = append(results, vectorstore.SearchResult{ID: id, Score: hit.Score, Payload: payload})
	}
	return results, nil
}

func (s *Store) Reset(ctx context.Context) error {
	return s.client.DeleteCollection(ctx, s.collection)
}

func fromPayloadMap(payload map[string]*qdrantclient.Value) (map[string]any, string) {
	out := make(map[string]any, len(payload))
	var originalID string
	for k, v := range payload {
		if k == originalIDField {
			originalID = v.GetStringValue()
			continue
		}
		if k == lastModifiedField {
			continue
		}
		out[k] = valueToAny(v)
	}
	return out, originalID
}

func valueToAny(v *qdrantclient.Value) any {
	switch {
	case v.GetStringValue() != "":
		return v.GetStringValue()
	case v.GetIntegerValue() != 0:
		return v.GetIntegerValue()
	case v.GetDoubleValue() != 0:
		return v.GetDoubleValue()
	default:
		return v.GetBoolValue()
	}
}

func fromPoint(fallbackID string, payload map[string]*qdrantclient.Value, vectors *qdrantclient.VectorsOutput) vectorstore.Record {
	data, originalID := fromPayloadMap(payload)
	id := originalID
	if id == "" {
		id = fallbackID
	}
	lastMod := time.Now()
	if raw, ok := payload[lastModifiedField]; ok {
		if t, err := time.Parse(time.RFC3339Nano, raw.GetStringValue()); err == nil {
			lastMod = t
		}
	}
	var vec []float32
	if vectors != nil && vectors.GetVector() != nil {
		vec = vectors.GetVector().GetData()
	}
	return vectorstore.Record{ID: id, Vector: vec, Payload: data, LastModifiedAt: lastMod}
}
