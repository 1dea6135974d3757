// Package dplib computes the last irreversible block height
// from the heights validators imply in their commitments.
package dplib

import (
	"slices"

	"github.com/gordian-engine/gdpos/dp/dpconsensus"
)

// ImpliedHeights returns the implied irreversible heights reported in previous
// by validators who also mined in current, sorted ascending.
// Zero heights are not claims and are omitted.
func ImpliedHeights(previous, current dpconsensus.Round) []uint64 {
	var out []uint64
	for k, m := range current.Miners {
		if !m.HasMined() {
			continue
		}
		pm, ok := previous.Miners[k]
		if !ok || pm.ImpliedIrreversibleBlockHeight == 0 {
			continue
		}
		out = append(out, pm.ImpliedIrreversibleBlockHeight)
	}
	slices.Sort(out)
	return out
}

// Calculate returns the new irreversible height and whether it advanced past storedLIB.
//
// Only claims from validators who mined in current count.
// With fewer than a quorum of claims relative to the size of current,
// there is no update.
// Otherwise the candidate is the claim at index (count-1)/3 of the sorted claims,
// which at most a third of the claimants can have inflated.
// A candidate not greater than storedLIB leaves storedLIB in place.
func Calculate(previous, current dpconsensus.Round, storedLIB uint64) (uint64, bool) {
	heights := ImpliedHeights(previous, current)
	if len(heights) == 0 || len(heights) < dpconsensus.MinersCountOfConsent(len(current.Miners)) {
		return storedLIB, false
	}

	candidate := heights[(len(heights)-1)/3]
	if candidate <= storedLIB {
		return storedLIB, false
	}
	return candidate, true
}
