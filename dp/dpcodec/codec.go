// Package dpcodec defines how rounds and chain state are serialized
// for storage and for carrying round descriptors in blocks.
package dpcodec

import "github.com/gordian-engine/gdpos/dp/dpconsensus"

// Marshaler serializes consensus values.
type Marshaler interface {
	MarshalRound(dpconsensus.Round) ([]byte, error)
	MarshalChainState(dpconsensus.ChainState) ([]byte, error)
}

// Unmarshaler deserializes values produced by the matching [Marshaler].
type Unmarshaler interface {
	UnmarshalRound([]byte, *dpconsensus.Round) error
	UnmarshalChainState([]byte, *dpconsensus.ChainState) error
}

// MarshalCodec is the combination of [Marshaler] and [Unmarshaler].
type MarshalCodec interface {
	Marshaler
	Unmarshaler
}
