// Package wire encodes the CareService messages in protobuf wire format.
// Field numbers are part of the public contract; never reuse one.
package wire

import "fmt"

// Payload is implemented by every request and response type.
type Payload interface {
	Marshal() []byte
	Unmarshal(b []byte) error
}

// Codec plugs the payload types into gRPC.
type Codec struct{}

func (Codec) Name() string { return "proto" }

func (Codec) Marshal(v any) ([]byte, error) {
	p, ok := v.(Payload)
	if !ok {
		return nil, fmt.Errorf("wire: cannot marshal %T", v)
	}
	return p.Marshal(), nil
}

func (Codec) Unmarshal(data []byte, v any) error {
	p, ok := v.(Payload)
	if !ok {
		return fmt.Errorf("wire: cannot unmarshal into %T", v)
	}
	return p.Unmarshal(data)
}
