package dporder

import (
	"slices"

	"github.com/bits-and-blooms/bitset"
	"github.com/gordian-engine/gdpos/dp/dpconsensus"
	"github.com/gordian-engine/gdpos/internal/dpmath"
	"github.com/holiman/uint256"
)

// ComputeOrder maps sig, read as a big-endian unsigned integer,
// to an order in [1, n].
func ComputeOrder(sig dpconsensus.Hash, n int) (int32, error) {
	if _, ok := dpmath.OrderCount(n); !ok || n == 0 {
		return 0, InvalidMinerCountError{N: n}
	}

	v := new(uint256.Int).SetBytes32(sig[:])
	v.Mod(v, uint256.NewInt(uint64(n)))

	// v < n <= MaxInt32, so the conversion is exact.
	return int32(v.Uint64()) + 1, nil
}

// ResolveCollision returns candidate if it is not set in occupied.
// Otherwise it scans forward from candidate+1, wrapping from n back to 1,
// and returns the first free order.
// At most n distinct orders are examined;
// if all of them are occupied, ErrNoFreeOrder is returned.
func ResolveCollision(occupied *bitset.BitSet, candidate int32, n int) (int32, error) {
	if !dpmath.InOrderRange(candidate, n) {
		return 0, OrderOutOfRangeError{Order: candidate, N: n}
	}

	for step := 0; step < n; step++ {
		o := ((int(candidate)-1+step)%n + 1)
		if !occupied.Test(uint(o)) {
			return int32(o), nil
		}
	}
	return 0, ErrNoFreeOrder
}

// Assign records pubkey's claim on the order derived from sig.
//
// The submitter always receives its supposed order as its final order.
// Any other validator already holding that final order is moved
// to the next free order by [ResolveCollision].
// When several holders conflict, which only happens in rounds
// that were already inconsistent, they are moved in pubkey order.
//
// Assign returns the supposed order.
// On error, r may have been partially modified.
func Assign(r *dpconsensus.Round, pubkey string, sig dpconsensus.Hash) (int32, error) {
	n := len(r.Miners)
	m, ok := r.Miners[pubkey]
	if !ok {
		return 0, dpconsensus.MinerUnknownError{Pubkey: pubkey, RoundNumber: r.RoundNumber}
	}

	supposed, err := ComputeOrder(sig, n)
	if err != nil {
		return 0, err
	}

	occupied := bitset.New(uint(n + 1))
	var conflicts []string
	for k, other := range r.Miners {
		if k == pubkey || other.FinalOrderOfNextRound == 0 {
			continue
		}
		if !dpmath.InOrderRange(other.FinalOrderOfNextRound, n) {
			return 0, OrderOutOfRangeError{Pubkey: k, Order: other.FinalOrderOfNextRound, N: n}
		}
		if other.FinalOrderOfNextRound == supposed {
			conflicts = append(conflicts, k)
		}
		occupied.Set(uint(other.FinalOrderOfNextRound))
	}
	occupied.Set(uint(supposed))

	slices.Sort(conflicts)
	for _, k := range conflicts {
		moved, err := ResolveCollision(occupied, supposed, n)
		if err != nil {
			return 0, err
		}
		other := r.Miners[k]
		other.FinalOrderOfNextRound = moved
		r.Miners[k] = other
		occupied.Set(uint(moved))
	}

	m.SupposedOrderOfNextRound = supposed
	m.FinalOrderOfNextRound = supposed
	r.Miners[pubkey] = m
	return supposed, nil
}

// TuneOrders returns the final order of every validator
// whose final order differs from its supposed order.
// The result is never nil.
func TuneOrders(r dpconsensus.Round) map[string]int32 {
	out := make(map[string]int32)
	for k, m := range r.Miners {
		if m.FinalOrderOfNextRound == 0 {
			continue
		}
		if m.FinalOrderOfNextRound != m.SupposedOrderOfNextRound {
			out[k] = m.FinalOrderOfNextRound
		}
	}
	return out
}

// ApplyTuneOrders sets the final order of each validator named in tune.
// Every order must lie in [1, N] and every key must be a member of r,
// and after application no two validators may share a final order.
// On error, r may have been partially modified.
func ApplyTuneOrders(r *dpconsensus.Round, tune map[string]int32) error {
	n := len(r.Miners)
	keys := make([]string, 0, len(tune))
	for k := range tune {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, k := range keys {
		o := tune[k]
		m, ok := r.Miners[k]
		if !ok {
			return dpconsensus.MinerUnknownError{Pubkey: k, RoundNumber: r.RoundNumber}
		}
		if !dpmath.InOrderRange(o, n) {
			return OrderOutOfRangeError{Pubkey: k, Order: o, N: n}
		}
		m.FinalOrderOfNextRound = o
		r.Miners[k] = m
	}

	return CheckFinalOrders(*r)
}

// CheckFinalOrders verifies that every assigned final order lies in [1, N]
// and that no two validators share one.
// Unassigned final orders (zero) are ignored.
func CheckFinalOrders(r dpconsensus.Round) error {
	n := len(r.Miners)
	seen := make(map[int32]string, n)

	for _, m := range r.SortedMiners() {
		o := m.FinalOrderOfNextRound
		if o == 0 {
			continue
		}
		if !dpmath.InOrderRange(o, n) {
			return OrderOutOfRangeError{Pubkey: m.Pubkey, Order: o, N: n}
		}
		if prev, ok := seen[o]; ok {
			return DuplicateOrderError{Order: o, Pubkeys: [2]string{prev, m.Pubkey}}
		}
		seen[o] = m.Pubkey
	}
	return nil
}
