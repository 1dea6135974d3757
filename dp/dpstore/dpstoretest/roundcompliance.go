// Package dpstoretest contains compliance tests for dpstore implementations.
package dpstoretest

import (
	"context"
	"testing"

	"github.com/gordian-engine/gdpos/dp/dpconsensus"
	"github.com/gordian-engine/gdpos/dp/dpconsensus/dpconsensustest"
	"github.com/gordian-engine/gdpos/dp/dpstore"
	"github.com/stretchr/testify/require"
)

// RoundStoreFactory creates a new, empty RoundStore for a single test.
// The cleanup argument registers a function to run when the test completes.
type RoundStoreFactory func(ctx context.Context, cleanup func(func())) (dpstore.RoundStore, error)

// TestRoundStoreCompliance is the compliance test for [dpstore.RoundStore].
func TestRoundStoreCompliance(t *testing.T, f RoundStoreFactory) {
	t.Helper()

	newStore := func(t *testing.T) (context.Context, dpstore.RoundStore) {
		ctx, cancel := context.WithCancel(context.Background())
		t.Cleanup(cancel)

		s, err := f(ctx, t.Cleanup)
		require.NoError(t, err)
		return ctx, s
	}

	stateFor := func(r dpconsensus.Round, height uint64) dpconsensus.ChainState {
		return dpconsensus.ChainState{
			ChainStart:         dpconsensustest.ChainStart,
			Height:             height,
			CurrentRoundNumber: r.RoundNumber,
			CurrentTermNumber:  r.TermNumber,
		}
	}

	t.Run("uninitialized loads", func(t *testing.T) {
		t.Parallel()

		ctx, s := newStore(t)

		_, err := s.LoadCurrentRound(ctx)
		require.ErrorIs(t, err, dpstore.ErrStoreUninitialized)

		_, err = s.LoadPreviousRound(ctx)
		require.ErrorIs(t, err, dpstore.ErrStoreUninitialized)

		_, err = s.LoadChainState(ctx)
		require.ErrorIs(t, err, dpstore.ErrStoreUninitialized)

		_, err = s.LoadRound(ctx, 1)
		require.ErrorIs(t, err, dpconsensus.RoundUnknownError{RoundNumber: 1})
	})

	t.Run("initialize and overwrite current round", func(t *testing.T) {
		t.Parallel()

		ctx, s := newStore(t)
		fx := dpconsensustest.NewFixture(5)
		r1 := fx.FirstRound()

		require.NoError(t, s.Commit(ctx, dpstore.Commit{Current: r1, State: stateFor(r1, 0)}))

		got, err := s.LoadCurrentRound(ctx)
		require.NoError(t, err)
		require.Equal(t, r1, got)

		_, err = s.LoadPreviousRound(ctx)
		require.ErrorIs(t, err, dpconsensus.RoundUnknownError{RoundNumber: 0})

		// Same round number replaces the live round.
		committed := fx.Commit(r1, nil, fx.Validators[0], 0)
		require.NoError(t, s.Commit(ctx, dpstore.Commit{Current: committed, State: stateFor(committed, 1)}))

		got, err = s.LoadCurrentRound(ctx)
		require.NoError(t, err)
		require.Equal(t, committed, got)

		st, err := s.LoadChainState(ctx)
		require.NoError(t, err)
		require.Equal(t, uint64(1), st.Height)
	})

	t.Run("advance retires and freezes the previous round", func(t *testing.T) {
		t.Parallel()

		ctx, s := newStore(t)
		fx := dpconsensustest.NewFixture(5)
		r1 := fx.FirstRound()
		require.NoError(t, s.Commit(ctx, dpstore.Commit{Current: r1, State: stateFor(r1, 0)}))

		r1 = fx.CommitAll(r1, nil, 0)
		r2 := fx.NextRound(r1)
		require.NoError(t, s.Commit(ctx, dpstore.Commit{Retiring: &r1, Current: r2, State: stateFor(r2, 6)}))

		prev, err := s.LoadPreviousRound(ctx)
		require.NoError(t, err)
		require.Equal(t, r1, prev)

		byNumber, err := s.LoadRound(ctx, 1)
		require.NoError(t, err)
		require.Equal(t, r1, byNumber)

		cur, err := s.LoadCurrentRound(ctx)
		require.NoError(t, err)
		require.Equal(t, r2, cur)

		// Round 1 can no longer be written.
		err = s.Commit(ctx, dpstore.Commit{Current: r1, State: stateFor(r1, 7)})
		require.ErrorIs(t, err, dpstore.ErrRoundFrozen)

		// And nothing changed.
		cur, err = s.LoadCurrentRound(ctx)
		require.NoError(t, err)
		require.Equal(t, r2, cur)
	})

	t.Run("skipping a round is rejected", func(t *testing.T) {
		t.Parallel()

		ctx, s := newStore(t)
		fx := dpconsensustest.NewFixture(3)
		r1 := fx.FirstRound()
		require.NoError(t, s.Commit(ctx, dpstore.Commit{Current: r1, State: stateFor(r1, 0)}))

		r3 := fx.NextRound(fx.NextRound(r1))
		err := s.Commit(ctx, dpstore.Commit{Retiring: &r1, Current: r3, State: stateFor(r3, 1)})
		require.ErrorAs(t, err, new(dpstore.RoundNumberMismatchError))

		_, err = s.LoadRound(ctx, 3)
		require.ErrorIs(t, err, dpconsensus.RoundUnknownError{RoundNumber: 3})
	})

	t.Run("advancing without the retiring round is rejected", func(t *testing.T) {
		t.Parallel()

		ctx, s := newStore(t)
		fx := dpconsensustest.NewFixture(3)
		r1 := fx.FirstRound()
		require.NoError(t, s.Commit(ctx, dpstore.Commit{Current: r1, State: stateFor(r1, 0)}))

		r2 := fx.NextRound(r1)
		require.Error(t, s.Commit(ctx, dpstore.Commit{Current: r2, State: stateFor(r2, 1)}))

		cur, err := s.LoadCurrentRound(ctx)
		require.NoError(t, err)
		require.Equal(t, uint64(1), cur.RoundNumber)
	})

	t.Run("empty validator set is rejected", func(t *testing.T) {
		t.Parallel()

		ctx, s := newStore(t)
		empty := dpconsensus.Round{RoundNumber: 1, TermNumber: 1}
		err := s.Commit(ctx, dpstore.Commit{Current: empty, State: stateFor(empty, 0)})
		require.ErrorIs(t, err, dpconsensus.ErrEmptyMinerSet)

		_, err = s.LoadCurrentRound(ctx)
		require.ErrorIs(t, err, dpstore.ErrStoreUninitialized)
	})

	t.Run("mismatched chain state is rejected", func(t *testing.T) {
		t.Parallel()

		ctx, s := newStore(t)
		r1 := dpconsensustest.NewFixture(2).FirstRound()
		st := stateFor(r1, 0)
		st.CurrentRoundNumber = 2
		require.Error(t, s.Commit(ctx, dpstore.Commit{Current: r1, State: st}))
	})

	t.Run("loaded rounds are independent copies", func(t *testing.T) {
		t.Parallel()

		ctx, s := newStore(t)
		fx := dpconsensustest.NewFixture(4)
		r1 := fx.Commit(fx.FirstRound(), nil, fx.Validators[0], 0)
		require.NoError(t, s.Commit(ctx, dpstore.Commit{Current: r1, State: stateFor(r1, 1)}))

		got, err := s.LoadCurrentRound(ctx)
		require.NoError(t, err)

		m := got.Miners[fx.Validators[0]]
		m.ActualMiningTimes[0] = m.ActualMiningTimes[0].Add(1)
		m.Order = 99
		got.Miners[fx.Validators[0]] = m
		delete(got.Miners, fx.Validators[1])

		again, err := s.LoadCurrentRound(ctx)
		require.NoError(t, err)
		require.Equal(t, r1, again)
	})
}
