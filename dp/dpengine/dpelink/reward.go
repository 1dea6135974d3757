package dpelink

import (
	"context"

	"github.com/gordian-engine/gdpos/dp/dpconsensus"
)

// RoundClosure describes a round that was just closed.
type RoundClosure struct {
	// The final form of the closed round.
	Retired dpconsensus.Round

	// The round opened in its place.
	Next dpconsensus.Round

	// Either [dpconsensus.BehaviorNextRound] or [dpconsensus.BehaviorNextTerm].
	Behavior dpconsensus.Behavior

	// Height of the block that closed the round.
	Height uint64
}

// RewardDistributor is notified every time a round closes.
//
// Calls happen on a background goroutine after the closure has been persisted;
// a returned error is logged and otherwise ignored.
type RewardDistributor interface {
	DistributeRewards(ctx context.Context, c RoundClosure) error
}
