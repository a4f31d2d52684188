package rpc

import "encoding/json"

// Wire request/response shapes for every method in the §4.3 method set.
// These are plain structs, not proto.Message — jsonCodec marshals them
// directly, so no .proto/protoc step is involved.

type createObjectRequest struct {
	ClassName string          `json:"class_name"`
	Oid       string          `json:"oid,omitempty"`
	InitArgs  json.RawMessage `json:"init_args,omitempty"`
}

type createObjectResponse struct {
	OK      bool   `json:"ok"`
	Oid     string `json:"oid"`
	Message string `json:"message,omitempty"`
}

type callMethodRequest struct {
	Oid            string          `json:"oid"`
	Method         string          `json:"method"`
	Args           json.RawMessage `json:"args,omitempty"`
	TimeoutSeconds int             `json:"timeout_seconds,omitempty"`
}

type callMethodResponse struct {
	OK      bool            `json:"ok"`
	Async   bool            `json:"async"`
	TaskID  string          `json:"task_id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Message string          `json:"message,omitempty"`
}

type oidRequest struct {
	Oid string `json:"oid"`
}

type statusResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

type emptyRequest struct{}

type updatePlaceholderRequest struct {
	TaskID string `json:"task_id"`
}

type updatePlaceholderResponse struct {
	OK      bool            `json:"ok"`
	Ready   bool            `json:"ready"`
	Value   json.RawMessage `json:"value,omitempty"`
	Message string          `json:"message,omitempty"`
}

type objectSummary struct {
	Oid       string `json:"oid"`
	ClassName string `json:"class_name"`
}

type listObjectsResponse struct {
	Objects []objectSummary `json:"objects"`
}

type serverInfoResponse struct {
	ObjectCount int    `json:"object_count"`
	PoolUsed    int    `json:"pool_used"`
	StartedAt   string `json:"started_at"`
}

type setModelConfigsRequest struct {
	ConfigsJSON json.RawMessage `json:"configs_json"`
}

type getObjectMemoryRequest struct {
	Oid string `json:"oid"`
}

type getObjectMemoryResponse struct {
	OK         bool            `json:"ok"`
	MemoryJSON json.RawMessage `json:"memory_json,omitempty"`
	Message    string          `json:"message,omitempty"`
}

type downloadFileRequest struct {
	Path string `json:"path"`
}

type downloadFileChunk struct {
	Data []byte `json:"data"`
	Err  string `json:"err,omitempty"`
}
