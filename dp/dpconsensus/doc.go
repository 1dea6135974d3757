// Package dpconsensus contains the core data model for
// round-based, rotating-leader delegated proof of stake scheduling.
//
// A [Round] assigns every active validator a one-based mining order
// and an expected mining time.
// Validators publish a commitment ([MinerInRound.OutValue]) during their slot,
// and reveal the pre-image of their previous commitment
// ([MinerInRound.PreviousInValue]) one round later.
// The revealed values feed a pseudorandom [MinerInRound.Signature],
// which in turn determines each validator's order in the next round.
//
// Types in this package are plain values.
// [Round.Clone] must be used whenever a round is about to be modified
// and the original must remain intact.
package dpconsensus
