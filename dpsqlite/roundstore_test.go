package dpsqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/gordian-engine/gdpos/dp/dpconsensus"
	"github.com/gordian-engine/gdpos/dp/dpconsensus/dpconsensustest"
	"github.com/gordian-engine/gdpos/dp/dpstore"
	"github.com/gordian-engine/gdpos/dp/dpstore/dpstoretest"
	"github.com/gordian-engine/gdpos/dpsqlite"
	"github.com/gordian-engine/gdpos/internal/gtest"
	"github.com/stretchr/testify/require"
)

func TestRoundStoreCompliance_InMem(t *testing.T) {
	t.Parallel()

	dpstoretest.TestRoundStoreCompliance(t, func(ctx context.Context, cleanup func(func())) (dpstore.RoundStore, error) {
		s, err := dpsqlite.NewInMemRoundStore(ctx, gtest.NewLogger(t))
		if err != nil {
			return nil, err
		}
		cleanup(func() {
			require.NoError(t, s.Close())
		})
		return s, nil
	})
}

func TestRoundStoreCompliance_OnDisk(t *testing.T) {
	t.Parallel()

	dpstoretest.TestRoundStoreCompliance(t, func(ctx context.Context, cleanup func(func())) (dpstore.RoundStore, error) {
		// Each call returns a new directory.
		path := filepath.Join(t.TempDir(), "rounds.sqlite")

		s, err := dpsqlite.NewOnDiskRoundStore(ctx, gtest.NewLogger(t), path)
		if err != nil {
			return nil, err
		}
		cleanup(func() {
			require.NoError(t, s.Close())
		})
		return s, nil
	})
}

func TestRoundStore_ReopenOnDisk(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	path := filepath.Join(t.TempDir(), "rounds.sqlite")
	log := gtest.NewLogger(t)

	fx := dpconsensustest.NewFixture(4)
	r1 := fx.CommitAll(fx.FirstRound(), nil, 0)
	r2 := fx.NextRound(r1)
	st := dpconsensus.ChainState{
		ChainStart:         dpconsensustest.ChainStart,
		Height:             4,
		CurrentRoundNumber: 1,
		CurrentTermNumber:  1,
	}

	s, err := dpsqlite.NewOnDiskRoundStore(ctx, log, path)
	require.NoError(t, err)
	require.NoError(t, s.Commit(ctx, dpstore.Commit{Current: r1, State: st}))

	st = st.EnterRound(r2)
	require.NoError(t, s.Commit(ctx, dpstore.Commit{Retiring: &r1, Current: r2, State: st}))
	require.NoError(t, s.Close())

	s, err = dpsqlite.NewOnDiskRoundStore(ctx, log, path)
	require.NoError(t, err)
	defer func() { require.NoError(t, s.Close()) }()

	cur, err := s.LoadCurrentRound(ctx)
	require.NoError(t, err)
	require.Equal(t, r2, cur)

	prev, err := s.LoadPreviousRound(ctx)
	require.NoError(t, err)
	require.Equal(t, r1, prev)

	// Served from the cache the second time; still an independent copy.
	prev.Miners = nil
	again, err := s.LoadRound(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, r1, again)

	got, err := s.LoadChainState(ctx)
	require.NoError(t, err)
	require.Equal(t, st, got)
}
