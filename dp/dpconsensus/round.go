package dpconsensus

import (
	"cmp"
	"encoding/binary"
	"fmt"
	"slices"
	"time"

	"github.com/bits-and-blooms/bitset"
	"github.com/google/uuid"
)

// Round is one scheduling epoch,
// assigning every active validator a deterministic mining time slot.
type Round struct {
	RoundNumber uint64
	TermNumber  uint64

	// RoundID is an opaque identifier derived from the round's schedule.
	// See [Round.ComputeRoundID].
	RoundID uuid.UUID

	// Elapsed time from chain start to the generation of this round.
	BlockchainAge time.Duration

	ConfirmedIrreversibleBlockHeight      uint64
	ConfirmedIrreversibleBlockRoundNumber uint64

	IsMinerListJustChanged bool

	// The validator permitted to close this round.
	ExtraBlockProducer string

	// The validator who closed the previous round.
	// Only that validator may mine in the gap before this round's first slot.
	ExtraBlockProducerOfPreviousRound string

	Miners map[string]MinerInRound
}

// roundIDNamespace seeds [uuid.NewSHA1] for round identifiers.
var roundIDNamespace = uuid.MustParse("8d3c1f0e-5b7a-4f39-9b58-2c5f0d6a9e41")

// Clone returns a deep copy of r.
// Modifying the clone never affects r.
func (r Round) Clone() Round {
	if r.Miners == nil {
		return r
	}
	miners := make(map[string]MinerInRound, len(r.Miners))
	for k, m := range r.Miners {
		miners[k] = m.Clone()
	}
	r.Miners = miners
	return r
}

// MinerCount returns the number of validators in r.
func (r Round) MinerCount() int {
	return len(r.Miners)
}

// IsEmpty reports whether r has no validators.
func (r Round) IsEmpty() bool {
	return len(r.Miners) == 0
}

// HasMiner reports whether pubkey is a member of r.
func (r Round) HasMiner(pubkey string) bool {
	_, ok := r.Miners[pubkey]
	return ok
}

// Miner returns the entry for pubkey,
// or a [MinerUnknownError] if pubkey is not a member of r.
func (r Round) Miner(pubkey string) (MinerInRound, error) {
	m, ok := r.Miners[pubkey]
	if !ok {
		return MinerInRound{}, MinerUnknownError{Pubkey: pubkey, RoundNumber: r.RoundNumber}
	}
	return m, nil
}

// Pubkeys returns the validator identities in r, sorted by order.
func (r Round) Pubkeys() []string {
	sorted := r.SortedMiners()
	out := make([]string, len(sorted))
	for i, m := range sorted {
		out[i] = m.Pubkey
	}
	return out
}

// SortedMiners returns the entries of r sorted by ascending order.
// Entries with equal orders, which only occur in malformed rounds,
// are sorted by pubkey so that the result is deterministic.
func (r Round) SortedMiners() []MinerInRound {
	out := make([]MinerInRound, 0, len(r.Miners))
	for _, m := range r.Miners {
		out = append(out, m)
	}
	slices.SortFunc(out, func(a, b MinerInRound) int {
		if c := cmp.Compare(a.Order, b.Order); c != 0 {
			return c
		}
		return cmp.Compare(a.Pubkey, b.Pubkey)
	})
	return out
}

// MinerByOrder returns the entry holding the given order.
func (r Round) MinerByOrder(order int32) (MinerInRound, bool) {
	for _, m := range r.Miners {
		if m.Order == order {
			return m, true
		}
	}
	return MinerInRound{}, false
}

// MinedMiners returns the entries that published a commitment, sorted by order.
func (r Round) MinedMiners() []MinerInRound {
	var out []MinerInRound
	for _, m := range r.SortedMiners() {
		if m.HasMined() {
			out = append(out, m)
		}
	}
	return out
}

// NotMinedMiners returns the entries without a commitment, sorted by order.
func (r Round) NotMinedMiners() []MinerInRound {
	var out []MinerInRound
	for _, m := range r.SortedMiners() {
		if !m.HasMined() {
			out = append(out, m)
		}
	}
	return out
}

// FirstMiner returns the entry with order 1.
func (r Round) FirstMiner() (MinerInRound, bool) {
	return r.MinerByOrder(1)
}

// RoundStartTime is the expected mining time of the order 1 validator.
// The zero time is returned if no validator holds order 1.
func (r Round) RoundStartTime() time.Time {
	m, ok := r.FirstMiner()
	if !ok {
		return time.Time{}
	}
	return m.ExpectedMiningTime
}

// MiningInterval derives the interval from the first two time slots.
// Single-validator rounds have no second slot, so def is returned.
func (r Round) MiningInterval(def time.Duration) time.Duration {
	if len(r.Miners) < 2 {
		return def
	}
	first, ok1 := r.MinerByOrder(1)
	second, ok2 := r.MinerByOrder(2)
	if !ok1 || !ok2 {
		return def
	}
	d := second.ExpectedMiningTime.Sub(first.ExpectedMiningTime)
	if d <= 0 {
		return def
	}
	return d
}

// ExtraBlockMiningTime is the start of the round-closing slot,
// one interval after the last ordinary slot.
func (r Round) ExtraBlockMiningTime(interval time.Duration) time.Time {
	last, ok := r.MinerByOrder(int32(len(r.Miners)))
	if !ok {
		return time.Time{}
	}
	return last.ExpectedMiningTime.Add(interval)
}

// TotalRoundLength is the duration of every ordinary slot plus the extra slot.
func (r Round) TotalRoundLength(interval time.Duration) time.Duration {
	return time.Duration(len(r.Miners)+1) * interval
}

// ComputeRoundID derives a deterministic identifier
// from the term, round number and schedule of r.
func (r Round) ComputeRoundID() uuid.UUID {
	buf := make([]byte, 0, 16+len(r.Miners)*48)
	buf = binary.BigEndian.AppendUint64(buf, r.TermNumber)
	buf = binary.BigEndian.AppendUint64(buf, r.RoundNumber)
	for _, m := range r.SortedMiners() {
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(m.Pubkey)))
		buf = append(buf, m.Pubkey...)
		buf = binary.BigEndian.AppendUint32(buf, uint32(m.Order))
		buf = binary.BigEndian.AppendUint64(buf, uint64(m.ExpectedMiningTime.UnixMilli()))
	}
	return uuid.NewSHA1(roundIDNamespace, buf)
}

// CheckOrderPermutation returns an error wrapping [ErrMalformedRound]
// unless the orders in r are exactly the permutation 1..N.
func (r Round) CheckOrderPermutation() error {
	n := len(r.Miners)
	if n == 0 {
		return ErrEmptyMinerSet
	}
	seen := bitset.New(uint(n + 1))
	for _, m := range r.SortedMiners() {
		if m.Order < 1 || int(m.Order) > n {
			return fmt.Errorf("%w: validator %q has order %d outside [1, %d]", ErrMalformedRound, m.Pubkey, m.Order, n)
		}
		if seen.Test(uint(m.Order)) {
			return fmt.Errorf("%w: order %d assigned more than once", ErrMalformedRound, m.Order)
		}
		seen.Set(uint(m.Order))
	}
	return nil
}

// CheckTimeSlots returns an error wrapping [ErrMalformedRound]
// unless expected mining times increase by exactly interval per order.
// The orders must already form a permutation.
func (r Round) CheckTimeSlots(interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("%w: non-positive mining interval %s", ErrMalformedRound, interval)
	}
	sorted := r.SortedMiners()
	if len(sorted) == 0 {
		return ErrEmptyMinerSet
	}
	if sorted[0].ExpectedMiningTime.IsZero() {
		return fmt.Errorf("%w: validator %q has no expected mining time", ErrMalformedRound, sorted[0].Pubkey)
	}
	for i := 1; i < len(sorted); i++ {
		d := sorted[i].ExpectedMiningTime.Sub(sorted[i-1].ExpectedMiningTime)
		if d != interval {
			return fmt.Errorf(
				"%w: slot gap between orders %d and %d is %s, expected %s",
				ErrMalformedRound, sorted[i-1].Order, sorted[i].Order, d, interval,
			)
		}
	}
	return nil
}

// Validate checks the structural invariants of r:
// a non-empty validator set whose map keys match the entries,
// orders forming the permutation 1..N,
// and evenly spaced time slots.
func (r Round) Validate(interval time.Duration) error {
	if len(r.Miners) == 0 {
		return ErrEmptyMinerSet
	}
	for k, m := range r.Miners {
		if k != m.Pubkey {
			return fmt.Errorf("%w: entry keyed %q has pubkey %q", ErrMalformedRound, k, m.Pubkey)
		}
	}
	if err := r.CheckOrderPermutation(); err != nil {
		return err
	}
	return r.CheckTimeSlots(interval)
}
