package tickstatsgrpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// CodecName is the content subtype that the Stats service messages are encoded with.
const CodecName = "json"

func init() {
	encoding.RegisterCodec(codec{})
}

// codec is an encoding.Codec that marshals messages as JSON, which lets the Stats service be served without generated
// protobuf types.
type codec struct{}

func (codec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (codec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (codec) Name() string {
	return CodecName
}
