package dpconsensus

import (
	"maps"
	"slices"
	"time"
)

// MinerInRound is a single validator's entry in a [Round].
type MinerInRound struct {
	Pubkey string

	// Order is the one-based mining position within the owning round.
	Order int32

	// SupposedOrderOfNextRound is the raw position derived from Signature.
	SupposedOrderOfNextRound int32

	// FinalOrderOfNextRound is the position after collision resolution.
	// It is authoritative when generating the next round.
	FinalOrderOfNextRound int32

	ExpectedMiningTime time.Time
	ActualMiningTimes  []time.Time

	ProducedBlocks     uint64
	ProducedTinyBlocks uint64
	MissedTimeSlots    uint64

	OutValue        Hash
	Signature       Hash
	PreviousInValue Hash

	ImpliedIrreversibleBlockHeight uint64

	// Secret-sharing pieces keyed by the peer's pubkey.
	// EncryptedPieces are the pieces this validator sealed for each peer;
	// DecryptedPieces are the pieces peers opened for this validator.
	EncryptedPieces map[string][]byte
	DecryptedPieces map[string][]byte
}

// HasMined reports whether m published a commitment in its round.
func (m MinerInRound) HasMined() bool {
	return !m.OutValue.IsEmpty()
}

// LatestActualMiningTime returns the last element of ActualMiningTimes,
// and false if m never mined in its round.
func (m MinerInRound) LatestActualMiningTime() (time.Time, bool) {
	if len(m.ActualMiningTimes) == 0 {
		return time.Time{}, false
	}
	return m.ActualMiningTimes[len(m.ActualMiningTimes)-1], true
}

// Clone returns a deep copy of m.
func (m MinerInRound) Clone() MinerInRound {
	m.ActualMiningTimes = slices.Clone(m.ActualMiningTimes)
	m.EncryptedPieces = clonePieces(m.EncryptedPieces)
	m.DecryptedPieces = clonePieces(m.DecryptedPieces)
	return m
}

func clonePieces(in map[string][]byte) map[string][]byte {
	if in == nil {
		return nil
	}
	out := maps.Clone(in)
	for k, v := range out {
		out[k] = slices.Clone(v)
	}
	return out
}
