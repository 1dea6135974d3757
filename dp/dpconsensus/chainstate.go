package dpconsensus

import (
	"fmt"
	"time"

	"github.com/gordian-engine/gdpos/internal/dpmath"
)

// ChainState holds the counters that survive across blocks,
// threaded explicitly through validation and persisted
// atomically alongside the current round.
type ChainState struct {
	// Genesis time, the anchor for term periods and blockchain age.
	ChainStart time.Time

	// Height of the last applied block.
	Height uint64

	// Producer of the last applied block,
	// and how many blocks in a row it has produced.
	LatestProducer    string
	ConsecutiveBlocks uint32

	CurrentRoundNumber uint64
	CurrentTermNumber  uint64
}

// AfterBlock returns the state following a block by producer at height.
// Height must advance by exactly one.
func (s ChainState) AfterBlock(producer string, height uint64) (ChainState, error) {
	want, ok := dpmath.IncUint64(s.Height)
	if !ok {
		return s, fmt.Errorf("chain height overflow at %d", s.Height)
	}
	if height != want {
		return s, fmt.Errorf("block height %d does not follow chain height %d", height, s.Height)
	}

	out := s
	out.Height = height
	if producer == s.LatestProducer {
		if s.ConsecutiveBlocks == ^uint32(0) {
			return s, fmt.Errorf("consecutive block counter overflow for %q", producer)
		}
		out.ConsecutiveBlocks++
	} else {
		out.LatestProducer = producer
		out.ConsecutiveBlocks = 1
	}
	return out, nil
}

// EnterRound returns the state after the given round becomes current.
// The consecutive block counter is kept, so that a round closer
// cannot reset its own streak by transitioning.
func (s ChainState) EnterRound(r Round) ChainState {
	s.CurrentRoundNumber = r.RoundNumber
	s.CurrentTermNumber = r.TermNumber
	return s
}
