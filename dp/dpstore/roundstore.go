// Package dpstore defines the persistence interfaces for consensus rounds.
package dpstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/gordian-engine/gdpos/dp/dpconsensus"
)

// RoundStore persists the current round, retired rounds,
// and the chain state counters.
//
// The store has exactly one writer, the engine,
// which calls Commit at most once per applied block.
// Loaded values are always independent copies;
// modifying them never affects the store.
type RoundStore interface {
	// Commit atomically persists c:
	// either every part of c is written or none of it is.
	//
	// The first Commit initializes the store.
	// Afterwards, c.Current must either have the same round number
	// as the stored current round, replacing it,
	// or be exactly one greater, in which case c.Retiring must be set
	// to the final form of the stored current round, which is then frozen.
	// Any other round number results in a [RoundNumberMismatchError].
	Commit(ctx context.Context, c Commit) error

	// LoadRound returns the round with the given number,
	// current or retired.
	// A round never committed results in a [dpconsensus.RoundUnknownError].
	LoadRound(ctx context.Context, roundNumber uint64) (dpconsensus.Round, error)

	// LoadCurrentRound returns the live round.
	// Before the first Commit, it returns [ErrStoreUninitialized].
	LoadCurrentRound(ctx context.Context) (dpconsensus.Round, error)

	// LoadPreviousRound returns the most recently retired round.
	// While the current round is the first one committed,
	// it returns a [dpconsensus.RoundUnknownError].
	LoadPreviousRound(ctx context.Context) (dpconsensus.Round, error)

	// LoadChainState returns the state committed alongside the current round.
	LoadChainState(ctx context.Context) (dpconsensus.ChainState, error)
}

// Commit is the unit of atomic persistence for a [RoundStore].
type Commit struct {
	// Final form of the stored current round,
	// set only when Current opens the following round.
	Retiring *dpconsensus.Round

	Current dpconsensus.Round

	State dpconsensus.ChainState
}

// ErrStoreUninitialized is returned from loads
// before the first successful Commit.
var ErrStoreUninitialized = errors.New("store uninitialized")

// ErrRoundFrozen is returned when a Commit attempts
// to overwrite a retired round.
var ErrRoundFrozen = errors.New("round is frozen")

// RoundNumberMismatchError is returned when a Commit
// neither replaces nor directly follows the stored current round.
type RoundNumberMismatchError struct {
	Stored, Committed uint64
}

func (e RoundNumberMismatchError) Error() string {
	return fmt.Sprintf(
		"cannot commit round %d: stored current round is %d",
		e.Committed, e.Stored,
	)
}

// CheckCommit validates c against the stored current round,
// which is nil for an uninitialized store.
// Implementations call it before writing anything.
func CheckCommit(stored *dpconsensus.Round, c Commit) error {
	if c.Current.IsEmpty() {
		return fmt.Errorf("cannot commit round %d: %w", c.Current.RoundNumber, dpconsensus.ErrEmptyMinerSet)
	}
	if c.Current.RoundNumber == 0 {
		return errors.New("cannot commit round 0")
	}
	if c.State.CurrentRoundNumber != c.Current.RoundNumber || c.State.CurrentTermNumber != c.Current.TermNumber {
		return fmt.Errorf(
			"chain state (round %d, term %d) does not match committed round (round %d, term %d)",
			c.State.CurrentRoundNumber, c.State.CurrentTermNumber,
			c.Current.RoundNumber, c.Current.TermNumber,
		)
	}

	if stored == nil {
		if c.Retiring != nil {
			return fmt.Errorf("cannot retire round %d in uninitialized store", c.Retiring.RoundNumber)
		}
		return nil
	}

	switch c.Current.RoundNumber {
	case stored.RoundNumber:
		if c.Retiring != nil {
			return fmt.Errorf("cannot retire round %d without advancing", c.Retiring.RoundNumber)
		}
		return nil

	case stored.RoundNumber + 1:
		if c.Retiring == nil {
			return fmt.Errorf("advancing to round %d requires the final form of round %d", c.Current.RoundNumber, stored.RoundNumber)
		}
		if c.Retiring.RoundNumber != stored.RoundNumber {
			return RoundNumberMismatchError{Stored: stored.RoundNumber, Committed: c.Retiring.RoundNumber}
		}
		return nil

	default:
		if c.Current.RoundNumber < stored.RoundNumber {
			return fmt.Errorf("%w: round %d", ErrRoundFrozen, c.Current.RoundNumber)
		}
		return RoundNumberMismatchError{Stored: stored.RoundNumber, Committed: c.Current.RoundNumber}
	}
}
