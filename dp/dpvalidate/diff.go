package dpvalidate

import (
	"fmt"
	"slices"
	"time"

	"github.com/gordian-engine/gdpos/dp/dpconsensus"
)

// DiffRounds describes the first difference found between want and got,
// or returns the empty string if they are equivalent.
// Times are compared by instant, so location and monotonic clock readings are ignored.
func DiffRounds(want, got dpconsensus.Round) string {
	switch {
	case want.RoundNumber != got.RoundNumber:
		return fmt.Sprintf("round number %d != %d", got.RoundNumber, want.RoundNumber)
	case want.TermNumber != got.TermNumber:
		return fmt.Sprintf("term number %d != %d", got.TermNumber, want.TermNumber)
	case want.RoundID != got.RoundID:
		return fmt.Sprintf("round id %s != %s", got.RoundID, want.RoundID)
	case want.BlockchainAge != got.BlockchainAge:
		return fmt.Sprintf("blockchain age %s != %s", got.BlockchainAge, want.BlockchainAge)
	case want.ConfirmedIrreversibleBlockHeight != got.ConfirmedIrreversibleBlockHeight:
		return fmt.Sprintf(
			"confirmed irreversible height %d != %d",
			got.ConfirmedIrreversibleBlockHeight, want.ConfirmedIrreversibleBlockHeight,
		)
	case want.ConfirmedIrreversibleBlockRoundNumber != got.ConfirmedIrreversibleBlockRoundNumber:
		return fmt.Sprintf(
			"confirmed irreversible round %d != %d",
			got.ConfirmedIrreversibleBlockRoundNumber, want.ConfirmedIrreversibleBlockRoundNumber,
		)
	case want.IsMinerListJustChanged != got.IsMinerListJustChanged:
		return fmt.Sprintf("miner list changed flag %t != %t", got.IsMinerListJustChanged, want.IsMinerListJustChanged)
	case want.ExtraBlockProducer != got.ExtraBlockProducer:
		return fmt.Sprintf("extra block producer %q != %q", got.ExtraBlockProducer, want.ExtraBlockProducer)
	case want.ExtraBlockProducerOfPreviousRound != got.ExtraBlockProducerOfPreviousRound:
		return fmt.Sprintf(
			"previous extra block producer %q != %q",
			got.ExtraBlockProducerOfPreviousRound, want.ExtraBlockProducerOfPreviousRound,
		)
	case len(want.Miners) != len(got.Miners):
		return fmt.Sprintf("%d validators != %d", len(got.Miners), len(want.Miners))
	}

	keys := make([]string, 0, len(want.Miners))
	for k := range want.Miners {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, k := range keys {
		w := want.Miners[k]
		g, ok := got.Miners[k]
		if !ok {
			return fmt.Sprintf("validator %q missing", k)
		}
		if d := diffMiners(w, g); d != "" {
			return fmt.Sprintf("validator %q: %s", k, d)
		}
	}
	return ""
}

func diffMiners(want, got dpconsensus.MinerInRound) string {
	switch {
	case want.Pubkey != got.Pubkey:
		return fmt.Sprintf("pubkey %q != %q", got.Pubkey, want.Pubkey)
	case want.Order != got.Order:
		return fmt.Sprintf("order %d != %d", got.Order, want.Order)
	case want.SupposedOrderOfNextRound != got.SupposedOrderOfNextRound:
		return fmt.Sprintf("supposed order %d != %d", got.SupposedOrderOfNextRound, want.SupposedOrderOfNextRound)
	case want.FinalOrderOfNextRound != got.FinalOrderOfNextRound:
		return fmt.Sprintf("final order %d != %d", got.FinalOrderOfNextRound, want.FinalOrderOfNextRound)
	case !want.ExpectedMiningTime.Equal(got.ExpectedMiningTime):
		return fmt.Sprintf("expected mining time %s != %s", got.ExpectedMiningTime, want.ExpectedMiningTime)
	case !slices.EqualFunc(want.ActualMiningTimes, got.ActualMiningTimes, func(a, b time.Time) bool { return a.Equal(b) }):
		return "actual mining times differ"
	case want.ProducedBlocks != got.ProducedBlocks:
		return fmt.Sprintf("produced blocks %d != %d", got.ProducedBlocks, want.ProducedBlocks)
	case want.ProducedTinyBlocks != got.ProducedTinyBlocks:
		return fmt.Sprintf("produced tiny blocks %d != %d", got.ProducedTinyBlocks, want.ProducedTinyBlocks)
	case want.MissedTimeSlots != got.MissedTimeSlots:
		return fmt.Sprintf("missed time slots %d != %d", got.MissedTimeSlots, want.MissedTimeSlots)
	case want.OutValue != got.OutValue:
		return "out value differs"
	case want.Signature != got.Signature:
		return "signature differs"
	case want.PreviousInValue != got.PreviousInValue:
		return "previous in value differs"
	case want.ImpliedIrreversibleBlockHeight != got.ImpliedIrreversibleBlockHeight:
		return fmt.Sprintf(
			"implied irreversible height %d != %d",
			got.ImpliedIrreversibleBlockHeight, want.ImpliedIrreversibleBlockHeight,
		)
	case len(want.EncryptedPieces) != len(got.EncryptedPieces) || len(want.DecryptedPieces) != len(got.DecryptedPieces):
		return "secret pieces differ"
	}
	return ""
}
