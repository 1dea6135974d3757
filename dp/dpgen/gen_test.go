package dpgen_test

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/gordian-engine/gdpos/dp/dpconsensus"
	"github.com/gordian-engine/gdpos/dp/dpconsensus/dpconsensustest"
	"github.com/gordian-engine/gdpos/dp/dpgen"
	"github.com/gordian-engine/gdpos/dp/dporder"
	"github.com/stretchr/testify/require"
)

func sigWithValue(v uint64) dpconsensus.Hash {
	var h dpconsensus.Hash
	binary.BigEndian.PutUint64(h[24:], v)
	return h
}

// mine marks v as having mined in r with the given final order and signature.
func mine(r *dpconsensus.Round, v string, final int32, sig dpconsensus.Hash) {
	m := r.Miners[v]
	m.OutValue = dpconsensus.HashOf([]byte(v))
	m.Signature = sig
	m.SupposedOrderOfNextRound = final
	m.FinalOrderOfNextRound = final
	m.ProducedBlocks++
	r.Miners[v] = m
}

func orders(r dpconsensus.Round) map[string]int32 {
	out := make(map[string]int32, len(r.Miners))
	for k, m := range r.Miners {
		out[k] = m.Order
	}
	return out
}

func TestGenerateFirstRound(t *testing.T) {
	t.Parallel()

	fx := dpconsensustest.NewFixture(4)
	r, err := dpgen.GenerateFirstRound(fx.Validators, fx.ChainStart, fx.Params)
	require.NoError(t, err)

	require.Equal(t, uint64(1), r.RoundNumber)
	require.Equal(t, uint64(1), r.TermNumber)
	require.Equal(t, fx.Validators[0], r.ExtraBlockProducer)
	require.Equal(t, r.ComputeRoundID(), r.RoundID)
	require.NoError(t, r.Validate(fx.Params.MiningInterval))

	for i, v := range fx.Validators {
		m := r.Miners[v]
		require.Equal(t, int32(i+1), m.Order)
		require.Equal(t, fx.ChainStart.Add(time.Duration(i+1)*fx.Params.MiningInterval), m.ExpectedMiningTime)
	}

	_, err = dpgen.GenerateFirstRound(nil, fx.ChainStart, fx.Params)
	require.ErrorIs(t, err, dpconsensus.ErrEmptyMinerSet)

	_, err = dpgen.GenerateFirstRound([]string{"a", "a"}, fx.ChainStart, fx.Params)
	require.ErrorIs(t, err, dpconsensus.ErrMalformedRound)
}

func TestGenerateNext(t *testing.T) {
	t.Parallel()

	fx := dpconsensustest.NewFixture(5)
	v := fx.Validators
	iv := fx.Params.MiningInterval

	// v0 has order 1, so its signature picks the next extra block producer.
	setup := func(ebpSig uint64) dpconsensus.Round {
		r := fx.FirstRound()
		r.ConfirmedIrreversibleBlockHeight = 17
		r.ConfirmedIrreversibleBlockRoundNumber = 1
		mine(&r, v[0], 3, sigWithValue(ebpSig))
		mine(&r, v[1], 1, sigWithValue(100))
		mine(&r, v[2], 5, sigWithValue(101))
		return r
	}

	blockTime := fx.ChainStart.Add(time.Minute)

	t.Run("no adjustments", func(t *testing.T) {
		t.Parallel()

		cur := setup(2) // Order 3, held by v0.
		next, err := dpgen.GenerateNext(cur, blockTime, v[4], fx.Params, fx.ChainStart)
		require.NoError(t, err)

		require.Equal(t, map[string]int32{
			v[1]: 1, v[3]: 2, v[0]: 3, v[4]: 4, v[2]: 5,
		}, orders(next))
		require.Equal(t, v[0], next.ExtraBlockProducer)
		require.Equal(t, v[4], next.ExtraBlockProducerOfPreviousRound)

		require.Equal(t, uint64(2), next.RoundNumber)
		require.Equal(t, uint64(1), next.TermNumber)
		require.Equal(t, uint64(17), next.ConfirmedIrreversibleBlockHeight)
		require.Equal(t, uint64(1), next.ConfirmedIrreversibleBlockRoundNumber)
		require.Equal(t, time.Minute, next.BlockchainAge)
		require.Equal(t, next.ComputeRoundID(), next.RoundID)

		for _, m := range next.Miners {
			require.Equal(t, blockTime.Add(time.Duration(m.Order)*iv), m.ExpectedMiningTime)
			require.True(t, m.OutValue.IsEmpty())
			require.True(t, m.Signature.IsEmpty())
			require.Zero(t, m.FinalOrderOfNextRound)
		}

		require.Equal(t, uint64(1), next.Miners[v[3]].MissedTimeSlots)
		require.Equal(t, uint64(1), next.Miners[v[4]].MissedTimeSlots)
		require.Zero(t, next.Miners[v[0]].MissedTimeSlots)
		require.Equal(t, uint64(1), next.Miners[v[0]].ProducedBlocks)

		// The input round is untouched.
		require.Equal(t, setup(2), cur)
	})

	t.Run("closer does not open the next round", func(t *testing.T) {
		t.Parallel()

		next, err := dpgen.GenerateNext(setup(2), blockTime, v[1], fx.Params, fx.ChainStart)
		require.NoError(t, err)

		require.Equal(t, map[string]int32{
			v[3]: 1, v[1]: 2, v[0]: 3, v[4]: 4, v[2]: 5,
		}, orders(next))
		require.Equal(t, blockTime.Add(iv), next.Miners[v[3]].ExpectedMiningTime)
		require.Equal(t, blockTime.Add(2*iv), next.Miners[v[1]].ExpectedMiningTime)
	})

	t.Run("extra block producer does not hold the last slot", func(t *testing.T) {
		t.Parallel()

		cur := setup(4) // Order 5, held by v2.
		next, err := dpgen.GenerateNext(cur, blockTime, v[3], fx.Params, fx.ChainStart)
		require.NoError(t, err)

		require.Equal(t, v[2], next.ExtraBlockProducer)
		require.Equal(t, map[string]int32{
			v[1]: 1, v[3]: 2, v[0]: 3, v[2]: 4, v[4]: 5,
		}, orders(next))
	})

	t.Run("nobody mined", func(t *testing.T) {
		t.Parallel()

		cur := fx.FirstRound()
		next, err := dpgen.GenerateNext(cur, blockTime, v[0], fx.Params, fx.ChainStart)
		require.NoError(t, err)

		// Original order, then v0 and v1 swapped because v0 closed the round.
		require.Equal(t, map[string]int32{
			v[1]: 1, v[0]: 2, v[2]: 3, v[3]: 4, v[4]: 5,
		}, orders(next))
		require.Equal(t, v[0], next.ExtraBlockProducer)
		for _, m := range next.Miners {
			require.Equal(t, uint64(1), m.MissedTimeSlots)
		}
	})

	t.Run("out of range final order is a hard error", func(t *testing.T) {
		t.Parallel()

		for _, bad := range []int32{0, -1, 6, 1 << 30} {
			cur := setup(2)
			m := cur.Miners[v[2]]
			m.FinalOrderOfNextRound = bad
			cur.Miners[v[2]] = m

			_, err := dpgen.GenerateNext(cur, blockTime, v[4], fx.Params, fx.ChainStart)
			require.ErrorAs(t, err, new(dporder.OrderOutOfRangeError), "final order %d", bad)
		}
	})

	t.Run("duplicate final order is a hard error", func(t *testing.T) {
		t.Parallel()

		cur := setup(2)
		m := cur.Miners[v[2]]
		m.FinalOrderOfNextRound = 3
		cur.Miners[v[2]] = m

		_, err := dpgen.GenerateNext(cur, blockTime, v[4], fx.Params, fx.ChainStart)
		require.ErrorAs(t, err, new(dporder.DuplicateOrderError))
	})

	t.Run("unknown closer", func(t *testing.T) {
		t.Parallel()

		_, err := dpgen.GenerateNext(setup(2), blockTime, "nobody", fx.Params, fx.ChainStart)
		require.ErrorAs(t, err, new(dpconsensus.MinerUnknownError))
	})

	t.Run("empty round", func(t *testing.T) {
		t.Parallel()

		_, err := dpgen.GenerateNext(dpconsensus.Round{RoundNumber: 1}, blockTime, v[0], fx.Params, fx.ChainStart)
		require.ErrorIs(t, err, dpconsensus.ErrEmptyMinerSet)
	})
}

func TestGenerateNext_SmallSets(t *testing.T) {
	t.Parallel()

	t.Run("single validator", func(t *testing.T) {
		t.Parallel()

		fx := dpconsensustest.NewFixture(1)
		cur := fx.CommitAll(fx.FirstRound(), nil, 0)
		next := fx.NextRound(cur)
		require.Equal(t, int32(1), next.Miners[fx.Validators[0]].Order)
		require.Equal(t, fx.Validators[0], next.ExtraBlockProducer)
	})

	t.Run("two validators", func(t *testing.T) {
		t.Parallel()

		fx := dpconsensustest.NewFixture(2)
		cur := fx.CommitAll(fx.FirstRound(), nil, 0)
		next := fx.NextRound(cur)
		require.NoError(t, next.Validate(fx.Params.MiningInterval))

		first, ok := next.MinerByOrder(1)
		require.True(t, ok)
		require.NotEqual(t, cur.ExtraBlockProducer, first.Pubkey)
	})
}

func TestGenerateNext_Chain(t *testing.T) {
	t.Parallel()

	fx := dpconsensustest.NewFixture(5)
	cur := fx.FirstRound()
	var prev *dpconsensus.Round

	for i := 0; i < 6; i++ {
		cur = fx.CommitAll(cur, prev, 0)
		next := fx.NextRound(cur)

		require.NoError(t, next.Validate(fx.Params.MiningInterval))
		require.Equal(t, cur.RoundNumber+1, next.RoundNumber)

		first, _ := next.MinerByOrder(1)
		require.NotEqual(t, cur.ExtraBlockProducer, first.Pubkey)

		last, _ := next.MinerByOrder(5)
		require.NotEqual(t, next.ExtraBlockProducer, last.Pubkey)

		// Everyone mined, so nobody missed a slot.
		for _, m := range next.Miners {
			require.Zero(t, m.MissedTimeSlots)
			require.Equal(t, uint64(i+1), m.ProducedBlocks)
		}

		done := cur
		prev = &done
		cur = next
	}
}

func TestGenerateFirstRoundOfTerm(t *testing.T) {
	t.Parallel()

	fx := dpconsensustest.NewFixture(5)
	cur := fx.CommitAll(fx.FirstRound(), nil, 0)
	cur.ConfirmedIrreversibleBlockHeight = 3
	blockTime := cur.ExtraBlockMiningTime(fx.Params.MiningInterval)

	next, err := dpgen.GenerateFirstRoundOfTerm(fx.Validators, cur, blockTime, cur.ExtraBlockProducer, fx.Params, fx.ChainStart)
	require.NoError(t, err)

	require.Equal(t, uint64(2), next.RoundNumber)
	require.Equal(t, uint64(2), next.TermNumber)
	require.False(t, next.IsMinerListJustChanged)
	require.Equal(t, uint64(3), next.ConfirmedIrreversibleBlockHeight)
	require.Equal(t, cur.ExtraBlockProducer, next.ExtraBlockProducerOfPreviousRound)
	require.NoError(t, next.Validate(fx.Params.MiningInterval))

	sorted := next.SortedMiners()
	require.Equal(t, sorted[0].Pubkey, next.ExtraBlockProducer)
	for i := 1; i < len(sorted); i++ {
		a := dpconsensus.HashOf([]byte(sorted[i-1].Pubkey))
		b := dpconsensus.HashOf([]byte(sorted[i].Pubkey))
		require.Equal(t, 1, bytes.Compare(a[:], b[:]))
	}
	for _, m := range next.Miners {
		require.Zero(t, m.ProducedBlocks)
	}

	changed := append(fx.Validators[:4:4], "val-new")
	next, err = dpgen.GenerateFirstRoundOfTerm(changed, cur, blockTime, cur.ExtraBlockProducer, fx.Params, fx.ChainStart)
	require.NoError(t, err)
	require.True(t, next.IsMinerListJustChanged)
	require.True(t, next.HasMiner("val-new"))
	require.False(t, next.HasMiner(fx.Validators[4]))

	_, err = dpgen.GenerateFirstRoundOfTerm(nil, cur, blockTime, cur.ExtraBlockProducer, fx.Params, fx.ChainStart)
	require.ErrorIs(t, err, dpconsensus.ErrEmptyMinerSet)
}
