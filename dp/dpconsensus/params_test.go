package dpconsensus_test

import (
	"testing"

	"github.com/gordian-engine/gdpos/dp/dpconsensus"
	"github.com/gordian-engine/gdpos/dp/dpconsensus/dpconsensustest"
	"github.com/stretchr/testify/require"
)

func TestParams_Validate(t *testing.T) {
	t.Parallel()

	require.NoError(t, dpconsensus.DefaultParams().Validate())

	require.Error(t, dpconsensus.Params{}.Validate())

	p := dpconsensus.DefaultParams()
	p.TinyBlockMinInterval = p.MiningInterval
	require.Error(t, p.Validate())

	p = dpconsensus.DefaultParams()
	p.MaxTinyBlocks = 0
	require.Error(t, p.Validate())
}

func TestMaximumBlocksCount(t *testing.T) {
	t.Parallel()

	p := dpconsensus.DefaultParams() // K = 8.
	fx := dpconsensustest.NewFixture(5)

	prev := fx.FirstRound()
	prev = fx.Commit(prev, nil, fx.Validators[0], 0)
	prev = fx.Commit(prev, nil, fx.Validators[1], 0)

	base := func(round, libRound uint64) dpconsensus.Round {
		r := fx.FirstRound()
		r.RoundNumber = round
		r.ConfirmedIrreversibleBlockRoundNumber = libRound
		return r
	}

	t.Run("no irreversible block yet", func(t *testing.T) {
		t.Parallel()
		require.Equal(t, uint32(8), dpconsensus.MaximumBlocksCount(base(20, 0), &prev, p))
	})

	t.Run("normal", func(t *testing.T) {
		t.Parallel()
		require.Equal(t, uint32(8), dpconsensus.MaximumBlocksCount(base(10, 9), &prev, p))
		require.Equal(t, uint32(8), dpconsensus.MaximumBlocksCount(base(10, 8), &prev, p))
	})

	t.Run("abnormal scales by previous participation", func(t *testing.T) {
		t.Parallel()
		// 8 * 2 mined / 5 validators = 3.
		require.Equal(t, uint32(3), dpconsensus.MaximumBlocksCount(base(10, 7), &prev, p))
		require.Equal(t, uint32(3), dpconsensus.MaximumBlocksCount(base(10, 3), &prev, p))

		idle := fx.FirstRound()
		require.Equal(t, uint32(1), dpconsensus.MaximumBlocksCount(base(10, 7), &idle, p))
	})

	t.Run("severe", func(t *testing.T) {
		t.Parallel()
		require.Equal(t, uint32(1), dpconsensus.MaximumBlocksCount(base(10, 2), &prev, p))
		require.Equal(t, uint32(1), dpconsensus.MaximumBlocksCount(base(100, 1), &prev, p))
	})
}
