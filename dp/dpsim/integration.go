package dpsim

import (
	"context"
	"testing"
	"time"

	"github.com/gordian-engine/gdpos/dp/dpconsensus"
	"github.com/gordian-engine/gdpos/dp/dpconsensus/dpconsensustest"
	"github.com/gordian-engine/gdpos/dp/dpstore/dpstoretest"
	"github.com/gordian-engine/gdpos/internal/gtest"
	"github.com/stretchr/testify/require"
)

// RunIntegrationTest runs simulated networks against round stores created by f.
func RunIntegrationTest(t *testing.T, f dpstoretest.RoundStoreFactory) {
	t.Helper()

	newSim := func(t *testing.T, cfg Config) (context.Context, *Simulator) {
		t.Helper()

		ctx, cancel := context.WithCancel(context.Background())
		t.Cleanup(cancel)

		rs, err := f(ctx, t.Cleanup)
		require.NoError(t, err)

		s, err := New(ctx, gtest.NewLogger(t), cfg, rs)
		require.NoError(t, err)
		t.Cleanup(s.Engine().Wait)
		return ctx, s
	}

	baseConfig := func(n int) Config {
		return Config{
			Validators:        dpconsensustest.DeterministicValidators(n),
			StartTime:         dpconsensustest.ChainStart,
			Params:            dpconsensus.DefaultParams(),
			TinyBlocksPerSlot: 2,
		}
	}

	t.Run("honest rounds", func(t *testing.T) {
		t.Parallel()

		cfg := baseConfig(5)
		ctx, s := newSim(t, cfg)

		blocks, err := s.RunRounds(ctx, 4)
		require.NoError(t, err)

		commits := make(map[uint64]map[string]int)
		var transitions int
		for i, b := range blocks {
			require.Equal(t, uint64(i+1), b.Height)
			if i > 0 {
				require.False(t, b.Time.Before(blocks[i-1].Time), "block %d went back in time", b.Height)
			}

			switch b.Behavior {
			case dpconsensus.BehaviorUpdateValue:
				if commits[b.RoundNumber] == nil {
					commits[b.RoundNumber] = make(map[string]int)
				}
				commits[b.RoundNumber][b.Producer]++
			case dpconsensus.BehaviorNextRound:
				transitions++
			}
		}
		require.Equal(t, 4, transitions)

		for r := uint64(1); r <= 4; r++ {
			require.Len(t, commits[r], 5, "round %d", r)
			for v, n := range commits[r] {
				require.Equal(t, 1, n, "validator %q in round %d", v, r)
			}
		}

		e := s.Engine()
		cur, err := e.GetCurrentRound(ctx)
		require.NoError(t, err)
		require.Equal(t, uint64(5), cur.RoundNumber)
		require.Equal(t, uint64(3), cur.ConfirmedIrreversibleBlockRoundNumber)
		require.NotZero(t, cur.ConfirmedIrreversibleBlockHeight)

		st, err := e.GetChainState(ctx)
		require.NoError(t, err)
		require.Equal(t, uint64(len(blocks)), st.Height)

		for r := uint64(1); r <= 4; r++ {
			retired, err := e.GetRound(ctx, r)
			require.NoError(t, err)
			for _, m := range retired.Miners {
				require.True(t, m.HasMined(), "validator %q in round %d", m.Pubkey, r)
				require.Zero(t, m.MissedTimeSlots)
			}
		}
	})

	t.Run("offline validator misses its slots", func(t *testing.T) {
		t.Parallel()

		cfg := baseConfig(5)
		off := cfg.Validators[2]
		cfg.Offline = []string{off}
		ctx, s := newSim(t, cfg)

		blocks, err := s.RunRounds(ctx, 3)
		require.NoError(t, err)
		for _, b := range blocks {
			require.NotEqual(t, off, b.Producer)
		}

		cur, err := s.Engine().GetCurrentRound(ctx)
		require.NoError(t, err)
		require.Equal(t, uint64(4), cur.RoundNumber)
		require.Equal(t, uint64(3), cur.Miners[off].MissedTimeSlots)

		// Four of five is still a quorum.
		require.NotZero(t, cur.ConfirmedIrreversibleBlockHeight)
	})

	t.Run("offline extra block producer is replaced", func(t *testing.T) {
		t.Parallel()

		cfg := baseConfig(4)
		ctx, s := newSim(t, cfg)

		first, err := s.Engine().GetCurrentRound(ctx)
		require.NoError(t, err)

		// Rebuild with the first round's closer offline.
		cfg.Offline = []string{first.ExtraBlockProducer}
		ctx, s = newSim(t, cfg)

		blocks, err := s.RunRounds(ctx, 2)
		require.NoError(t, err)

		var closes []Block
		for _, b := range blocks {
			require.NotEqual(t, first.ExtraBlockProducer, b.Producer)
			if b.Behavior.IsTransition() {
				closes = append(closes, b)
			}
		}
		require.Len(t, closes, 2)

		// The takeover happens after the extra block slot has passed.
		iv := cfg.Params.MiningInterval
		extraEnd := first.ExtraBlockMiningTime(iv).Add(iv)
		require.False(t, closes[0].Time.Before(extraEnd))
	})

	t.Run("secret sharing recovers withheld in values", func(t *testing.T) {
		t.Parallel()

		cfg := baseConfig(5)
		cfg.Params.SecretSharingEnabled = true
		w := cfg.Validators[1]
		cfg.Withholding = []string{w}
		ctx, s := newSim(t, cfg)

		_, err := s.RunRounds(ctx, 3)
		require.NoError(t, err)

		for _, r := range []uint64{2, 3} {
			retired, err := s.Engine().GetRound(ctx, r)
			require.NoError(t, err)
			require.Equal(t, s.InValue(w, r-1), retired.Miners[w].PreviousInValue, "round %d", r)
		}
	})

	t.Run("term change elects new validators", func(t *testing.T) {
		t.Parallel()

		cfg := baseConfig(5)
		cfg.Params.TermPeriod = 50 * time.Second
		cfg.NextTermValidators = append(dpconsensustest.DeterministicValidators(4), "val-new")
		ctx, s := newSim(t, cfg)

		blocks, err := s.RunRounds(ctx, 4)
		require.NoError(t, err)

		var termChanges int
		for _, b := range blocks {
			if b.Behavior == dpconsensus.BehaviorNextTerm {
				termChanges++
			}
		}
		require.NotZero(t, termChanges)

		cur, err := s.Engine().GetCurrentRound(ctx)
		require.NoError(t, err)
		require.Greater(t, cur.TermNumber, uint64(1))
		require.True(t, cur.HasMiner("val-new"))
		require.False(t, cur.HasMiner(cfg.Validators[4]))
	})

	t.Run("resume from stored rounds", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		t.Cleanup(cancel)

		rs, err := f(ctx, t.Cleanup)
		require.NoError(t, err)

		cfg := baseConfig(3)
		log := gtest.NewLogger(t)

		s, err := New(ctx, log, cfg, rs)
		require.NoError(t, err)
		first, err := s.RunRounds(ctx, 2)
		require.NoError(t, err)

		// A second simulator over the same store continues the chain.
		s, err = New(ctx, log, cfg, rs)
		require.NoError(t, err)
		t.Cleanup(s.Engine().Wait)

		next, err := s.Step(ctx)
		require.NoError(t, err)
		require.Equal(t, uint64(len(first)+1), next.Height)
		require.Equal(t, uint64(3), next.RoundNumber)
		require.False(t, next.Time.Before(first[len(first)-1].Time))
	})
}
