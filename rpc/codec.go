package rpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// wireCodecName is the gRPC content-subtype ("application/grpc+json") that
// selects jsonCodec on both ends of the connection.
const wireCodecName = "json"

// jsonCodec implements encoding.Codec over plain Go structs, so the RPC
// wire never needs a .proto schema or protoc-generated stubs — only the
// hand-registered ServiceDesc in service_desc.go and this codec (§6 "Payloads
// are binary blobs produced by a language-neutral serializer (JSON, via a
// registered encoding.Codec)").
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)        { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error   { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                         { return wireCodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
