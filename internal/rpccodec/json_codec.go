// Package rpccodec registers a JSON wire codec under grpc's reserved
// "proto" content-subtype name. Evidence and AIR Playout Control messages
// are plain JSON-tagged Go structs rather than protobuf-generated code, so
// transporting them over google.golang.org/grpc needs an encoding.Codec
// that marshals with encoding/json instead of the default proto codec.
// Registering under "proto" (rather than a custom subtype) means standard
// grpc.Dial/grpc.NewServer callers need no extra CallOption — it rides the
// default content-subtype every request already negotiates.
package rpccodec

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// Name is the content-subtype this codec registers under.
const Name = "proto"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return Name }

func (jsonCodec) Marshal(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("rpccodec: marshal %T: %w", v, err)
	}
	return b, nil
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("rpccodec: unmarshal into %T: %w", v, err)
	}
	return nil
}
