package protocol

import (
	"fmt"
)

// CodecName is registered as the gRPC content subtype
const CodecName = "proto"

// Message is implemented by every wire message in this package
type Message interface {
	MarshalWire() ([]byte, error)
	UnmarshalWire([]byte) error
}

// Codec adapts the hand-written wire messages to grpc's encoding.Codec
type Codec struct{}

// Marshal encodes v, which must be a Message
func (Codec) Marshal(v interface{}) ([]byte, error) {
	m, ok := v.(Message)
	if !ok {
		return nil, fmt.Errorf("protocol codec: cannot marshal %T", v)
	}
	return m.MarshalWire()
}

// Unmarshal decodes data into v, which must be a Message
func (Codec) Unmarshal(data []byte, v interface{}) error {
	m, ok := v.(Message)
	if !ok {
		return fmt.Errorf("protocol codec: cannot unmarshal into %T", v)
	}
	return m.UnmarshalWire(data)
}

// Name returns the content subtype
func (Codec) Name() string {
	return CodecName
}

// RawMessage holds an encoded message without decoding it. Receiving into a
// RawMessage lets callers decode afterwards and keep typed decode errors.
type RawMessage []byte

// MarshalWire returns the bytes unchanged
func (m *RawMessage) MarshalWire() ([]byte, error) {
	return *m, nil
}

// UnmarshalWire keeps a copy of b
func (m *RawMessage) UnmarshalWire(b []byte) error {
	*m = append((*m)[:0], b...)
	return nil
}
