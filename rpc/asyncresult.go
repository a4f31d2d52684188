package rpc

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/agentscope-go/core/retry"
)

// AsyncResult represents the eventual outcome of an async call (§4.3,
// grounded on rpc_async.py's AsyncResult): Result exclusively owns its
// cached value once filled, so a second Result call is a pure read with no
// further round trip (testable property 7).
type AsyncResult struct {
	client *Client
	retry  retry.Strategy

	mu      sync.Mutex
	taskID  string
	ready   bool
	value   json.RawMessage
	err     error
}

// newAsyncResult wraps a task id already assigned by call_method.
func newAsyncResult(client *Client, taskID string, strategy retry.Strategy) *AsyncResult {
	if strategy == nil {
		strategy = retry.Default()
	}
	return &AsyncResult{client: client, retry: strategy, taskID: taskID}
}

// Result ensures a task id is assigned, polls update_placeholder under the
// configured retry policy, decodes the value, and rewrites any non-web-
// reachable path it carries into a locally downloaded copy. Calling Result
// twice performs at most one update_placeholder round trip after the first
// success (property 7): the second call is served from the cached value.
func (r *AsyncResult) Result(ctx context.Context) (json.RawMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ready {
		return r.value, r.err
	}

	raw, err := r.client.UpdatePlaceholder(ctx, r.taskID, r.retry)
	if err != nil {
		r.ready = true
		r.err = err
		return nil, err
	}

	rewritten, rwErr := r.downloadEmbeddedFiles(ctx, raw)
	if rwErr != nil {
		rewritten = raw
	}

	r.ready = true
	r.value = rewritten
	return r.value, nil
}

// filePayload is the minimal shape Result inspects to find and rewrite
// non-web-reachable paths: a top-level "url" field, matching the one field
// rpc_async.py's _check_and_download_files actually reads off Msg.
type filePayload struct {
	URL json.RawMessage `json:"url,omitempty"`
}

// downloadEmbeddedFiles mirrors rpc_async.py's _check_and_download_files: if
// the decoded value carries a "url" field (string or array of strings) whose
// entries are not already web-reachable, each is downloaded via the
// server's download_file and the field is rewritten to the local path(s).
func (r *AsyncResult) downloadEmbeddedFiles(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(raw, &payload); err != nil {
		return raw, nil // not an object; nothing to rewrite
	}
	urlField, ok := payload["url"]
	if !ok {
		return raw, nil
	}

	var single string
	if err := json.Unmarshal(urlField, &single); err == nil {
		local, err := r.resolveURL(ctx, single)
		if err != nil {
			return raw, err
		}
		rewritten, _ := json.Marshal(local)
		payload["url"] = rewritten
		return json.Marshal(payload)
	}

	var many []string
	if err := json.Unmarshal(urlField, &many); err == nil {
		out := make([]string, len(many))
		for i, u := range many {
			local, err := r.resolveURL(ctx, u)
			if err != nil {
				return raw, err
			}
			out[i] = local
		}
		rewritten, _ := json.Marshal(out)
		payload["url"] = rewritten
		return json.Marshal(payload)
	}
	return raw, nil
}

func (r *AsyncResult) resolveURL(ctx context.Context, u string) (string, error) {
	if isWebURL(u) {
		return u, nil
	}
	return r.client.DownloadFile(ctx, u)
}

func isWebURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
