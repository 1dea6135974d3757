package dpconsensus

import (
	"errors"
	"fmt"
	"time"
)

const (
	DefaultMiningInterval       = 4000 * time.Millisecond
	DefaultMaxTinyBlocks        = 8
	DefaultTermPeriod           = 7 * 24 * time.Hour
	DefaultTinyBlockMinInterval = 50 * time.Millisecond
)

// Params are the chain-wide scheduling parameters.
type Params struct {
	// Length of a single validator's time slot.
	MiningInterval time.Duration

	// Maximum consecutive blocks by one producer
	// before it must hand over to a round transition.
	MaxTinyBlocks uint32

	// Wall-clock length of a term, measured from chain start.
	TermPeriod time.Duration

	// Minimum spacing between a producer's consecutive tiny blocks.
	TinyBlockMinInterval time.Duration

	// Whether commitment pre-images are dealt as encrypted shares
	// and reconstructed when a validator fails to reveal.
	SecretSharingEnabled bool
}

// DefaultParams returns the default Params.
func DefaultParams() Params {
	return Params{
		MiningInterval:       DefaultMiningInterval,
		MaxTinyBlocks:        DefaultMaxTinyBlocks,
		TermPeriod:           DefaultTermPeriod,
		TinyBlockMinInterval: DefaultTinyBlockMinInterval,
	}
}

// Validate returns an error describing every invalid field of p.
func (p Params) Validate() error {
	var errs []error
	if p.MiningInterval <= 0 {
		errs = append(errs, fmt.Errorf("mining interval must be positive (got %s)", p.MiningInterval))
	}
	if p.MaxTinyBlocks == 0 {
		errs = append(errs, errors.New("max tiny blocks must be at least 1"))
	}
	if p.TermPeriod <= 0 {
		errs = append(errs, fmt.Errorf("term period must be positive (got %s)", p.TermPeriod))
	}
	if p.TinyBlockMinInterval < 0 {
		errs = append(errs, fmt.Errorf("tiny block min interval must not be negative (got %s)", p.TinyBlockMinInterval))
	}
	if p.TinyBlockMinInterval >= p.MiningInterval && p.MiningInterval > 0 {
		errs = append(errs, fmt.Errorf(
			"tiny block min interval %s must be shorter than mining interval %s",
			p.TinyBlockMinInterval, p.MiningInterval,
		))
	}
	return errors.Join(errs...)
}

// MaximumBlocksCount returns how many consecutive blocks
// a single producer may make against base.
//
// When the irreversible round lags the current round by more than two rounds,
// the limit shrinks in proportion to how many validators mined in previous.
// When the lag reaches MaxTinyBlocks rounds, the limit is one.
// A chain that has never confirmed an irreversible block is not throttled.
func MaximumBlocksCount(base Round, previous *Round, p Params) uint32 {
	k := p.MaxTinyBlocks
	libRound := base.ConfirmedIrreversibleBlockRoundNumber
	if libRound == 0 || base.RoundNumber <= libRound {
		return k
	}

	lag := base.RoundNumber - libRound
	if lag >= uint64(k) {
		return 1
	}
	if lag <= 2 {
		return k
	}

	if previous == nil || previous.MinerCount() == 0 {
		return k
	}
	mined := uint64(len(previous.MinedMiners()))
	c := uint64(k) * mined / uint64(previous.MinerCount())
	if c < 1 {
		c = 1
	}
	return uint32(c)
}
