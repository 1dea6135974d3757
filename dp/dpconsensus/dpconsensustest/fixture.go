// Package dpconsensustest contains deterministic fixtures
// for tests involving consensus rounds.
package dpconsensustest

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/gordian-engine/gdpos/dp/dpconsensus"
	"github.com/gordian-engine/gdpos/dp/dpgen"
	"github.com/gordian-engine/gdpos/dp/dporder"
)

// ChainStart is the genesis time used by fixtures.
var ChainStart = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

// DeterministicValidators returns n validator identities,
// sorted and stable across calls.
func DeterministicValidators(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("val-%02d", i)
	}
	return out
}

// Fixture produces rounds and honest commitments for a fixed validator set.
//
// Fields may be modified after [NewFixture] and before first use.
type Fixture struct {
	Validators []string
	Params     dpconsensus.Params
	ChainStart time.Time
}

// NewFixture returns a Fixture with n deterministic validators
// and default parameters.
func NewFixture(n int) *Fixture {
	return &Fixture{
		Validators: DeterministicValidators(n),
		Params:     dpconsensus.DefaultParams(),
		ChainStart: ChainStart,
	}
}

// Genesis returns the genesis for f.
func (f *Fixture) Genesis() dpconsensus.Genesis {
	return dpconsensus.Genesis{
		Validators: append([]string(nil), f.Validators...),
		StartTime:  f.ChainStart,
	}
}

// FirstRound returns round 1 for f's validators.
func (f *Fixture) FirstRound() dpconsensus.Round {
	r, err := dpgen.GenerateFirstRound(f.Validators, f.ChainStart, f.Params)
	if err != nil {
		panic(fmt.Errorf("BUG: failed to generate first round: %w", err))
	}
	return r
}

// InValue returns the deterministic commitment pre-image
// for pubkey in the given round.
func InValue(pubkey string, roundNumber uint64) dpconsensus.Hash {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], roundNumber)
	return dpconsensus.HashOf([]byte("in-value:"), []byte(pubkey), n[:])
}

// HonestValues returns the out value, signature and previous in value
// an honest validator publishes in cur.
func HonestValues(cur dpconsensus.Round, prev *dpconsensus.Round, pubkey string) (
	out, sig, prevIn dpconsensus.Hash,
) {
	in := InValue(pubkey, cur.RoundNumber)
	out = dpconsensus.HashOf(in[:])

	if prev != nil {
		if pm, ok := prev.Miners[pubkey]; ok && pm.HasMined() {
			prevIn = InValue(pubkey, prev.RoundNumber)
		}
	}

	if dpconsensus.SignatureIsDerived(cur, prev) {
		sig = dpconsensus.CalculateSignature(*prev, prevIn)
	} else {
		sig = dpconsensus.CalculateSignature(cur, in)
	}
	return out, sig, prevIn
}

// Commit returns a copy of cur in which pubkey has honestly committed
// at its expected mining time, claiming libHeight as its implied irreversible height.
func (f *Fixture) Commit(cur dpconsensus.Round, prev *dpconsensus.Round, pubkey string, libHeight uint64) dpconsensus.Round {
	next := cur.Clone()
	m, ok := next.Miners[pubkey]
	if !ok {
		panic(fmt.Errorf("BUG: %q is not a member of round %d", pubkey, cur.RoundNumber))
	}

	out, sig, prevIn := HonestValues(cur, prev, pubkey)
	m.OutValue = out
	m.Signature = sig
	m.PreviousInValue = prevIn
	m.ImpliedIrreversibleBlockHeight = libHeight
	m.ActualMiningTimes = append(m.ActualMiningTimes, m.ExpectedMiningTime)
	m.ProducedBlocks++
	next.Miners[pubkey] = m

	if _, err := dporder.Assign(&next, pubkey, sig); err != nil {
		panic(fmt.Errorf("BUG: failed to assign order for %q: %w", pubkey, err))
	}
	return next
}

// CommitAll has every validator in cur commit in mining order,
// skipping any identity listed in skip.
func (f *Fixture) CommitAll(cur dpconsensus.Round, prev *dpconsensus.Round, libHeight uint64, skip ...string) dpconsensus.Round {
	skipped := make(map[string]struct{}, len(skip))
	for _, s := range skip {
		skipped[s] = struct{}{}
	}
	for _, m := range cur.SortedMiners() {
		if _, ok := skipped[m.Pubkey]; ok {
			continue
		}
		cur = f.Commit(cur, prev, m.Pubkey, libHeight)
	}
	return cur
}

// NextRound closes cur in its extra-block slot
// and returns the generated successor.
func (f *Fixture) NextRound(cur dpconsensus.Round) dpconsensus.Round {
	at := cur.ExtraBlockMiningTime(f.Params.MiningInterval)
	next, err := dpgen.GenerateNext(cur, at, cur.ExtraBlockProducer, f.Params, f.ChainStart)
	if err != nil {
		panic(fmt.Errorf("BUG: failed to generate round after %d: %w", cur.RoundNumber, err))
	}
	return next
}
