package api

import (
	"github.com/goccy/go-json"
)

// CodecName is the gRPC content-subtype of the inbox API.
const CodecName = "json"

// Codec encodes inbox API messages as JSON. Server and clients force it, so no
// protobuf types are involved.
type Codec struct{}

func (Codec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (Codec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (Codec) Name() string {
	return CodecName
}
