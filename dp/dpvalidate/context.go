package dpvalidate

import (
	"time"

	"github.com/gordian-engine/gdpos/dp/dpconsensus"
)

// Context is the input to a [Pipeline] run.
type Context struct {
	// Base is the current round as loaded from the store.
	// It is trusted and checks never modify it.
	Base dpconsensus.Round

	// Previous is the retired round before Base, if any. Trusted.
	Previous *dpconsensus.Round

	// Proposed is the untrusted round derived from the block.
	// For commits and tiny blocks, it is Base with the producer's claims applied
	// (see [ProposeCommit] and [ProposeTinyBlock]).
	// For transitions, it is the proposed next round.
	// It must never share maps or slices with Base.
	Proposed dpconsensus.Round

	Producer  string
	Behavior  dpconsensus.Behavior
	BlockTime time.Time

	// Height of the block being validated.
	Height uint64

	// State before the block being validated.
	State dpconsensus.ChainState

	Params dpconsensus.Params

	// Commitment is the producer's claim for BehaviorUpdateValue.
	Commitment Commitment

	// ElectedValidators is the validator set of the next term,
	// required for BehaviorNextTerm.
	ElectedValidators []string

	// ExpectedNext is set by the NextRoundOrder and ElectedValidators stages
	// to the round independently generated from Base.
	ExpectedNext *dpconsensus.Round
}

// Commitment is the set of values a producer publishes with [dpconsensus.BehaviorUpdateValue].
type Commitment struct {
	OutValue        dpconsensus.Hash
	Signature       dpconsensus.Hash
	PreviousInValue dpconsensus.Hash

	SupposedOrder int32

	// Final orders of other validators moved by collisions.
	TuneOrders map[string]int32

	ImpliedIrreversibleBlockHeight uint64

	// Sealed shares of the producer's pre-image, keyed by recipient.
	EncryptedPieces map[string][]byte

	// Shares opened by the producer, keyed by the dealer who sealed them
	// in the previous round.
	DecryptedPieces map[string][]byte

	// Pre-images of other validators' commitments in the previous round,
	// learned out of band, keyed by validator.
	// The producer's own pre-image only travels as PreviousInValue.
	RevealedInValues map[string]dpconsensus.Hash
}

func (c *Context) interval() time.Duration {
	return c.Params.MiningInterval
}
