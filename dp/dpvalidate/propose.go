package dpvalidate

import (
	"maps"
	"slices"
	"time"

	"github.com/gordian-engine/gdpos/dp/dpconsensus"
	"github.com/gordian-engine/gdpos/dp/dpsecret"
)

// ProposeCommit returns a new round: base with producer's commitment applied.
// Base is not modified.
//
// Claims are applied as given, without any validation;
// the result is the untrusted Proposed round for a [Context].
// Tune orders and revealed pre-images naming unknown validators
// or the producer itself are not applied,
// but remain visible to checks through [Context.Commitment].
// A revealed pre-image never replaces one already set.
func ProposeCommit(base dpconsensus.Round, producer string, t time.Time, c Commitment) dpconsensus.Round {
	out := base.Clone()
	m, ok := out.Miners[producer]
	if !ok {
		return out
	}

	for k, o := range c.TuneOrders {
		if k == producer {
			continue
		}
		other, ok := out.Miners[k]
		if !ok {
			continue
		}
		other.FinalOrderOfNextRound = o
		out.Miners[k] = other
	}

	for dealer, share := range c.DecryptedPieces {
		d, ok := out.Miners[dealer]
		if !ok {
			continue
		}
		if d.DecryptedPieces == nil {
			d.DecryptedPieces = make(map[string][]byte)
		}
		d.DecryptedPieces[producer] = slices.Clone(share)
		out.Miners[dealer] = d
	}

	m.OutValue = c.OutValue
	m.Signature = c.Signature
	m.PreviousInValue = c.PreviousInValue
	m.SupposedOrderOfNextRound = c.SupposedOrder
	m.FinalOrderOfNextRound = c.SupposedOrder
	m.ImpliedIrreversibleBlockHeight = c.ImpliedIrreversibleBlockHeight
	m.ActualMiningTimes = append(m.ActualMiningTimes, t)
	m.ProducedBlocks++
	if len(c.EncryptedPieces) > 0 {
		m.EncryptedPieces = maps.Clone(c.EncryptedPieces)
		for k, v := range m.EncryptedPieces {
			m.EncryptedPieces[k] = slices.Clone(v)
		}
	}
	out.Miners[producer] = m

	if len(c.RevealedInValues) > 0 {
		others := maps.Clone(c.RevealedInValues)
		delete(others, producer)
		dpsecret.RevealInValues(&out, nil, others)
	}
	return out
}

// ProposeTinyBlock returns a new round: base with a tiny block by producer at t.
// Base is not modified.
func ProposeTinyBlock(base dpconsensus.Round, producer string, t time.Time) dpconsensus.Round {
	out := base.Clone()
	m, ok := out.Miners[producer]
	if !ok {
		return out
	}
	m.ActualMiningTimes = append(m.ActualMiningTimes, t)
	m.ProducedBlocks++
	m.ProducedTinyBlocks++
	out.Miners[producer] = m
	return out
}
