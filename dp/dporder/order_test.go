package dporder_test

import (
	"encoding/binary"
	"testing"

	"github.com/bits-and-blooms/bitset"
	"github.com/gordian-engine/gdpos/dp/dpconsensus"
	"github.com/gordian-engine/gdpos/dp/dpconsensus/dpconsensustest"
	"github.com/gordian-engine/gdpos/dp/dporder"
	"github.com/stretchr/testify/require"
)

// sigWithValue returns a signature whose integer value is v.
func sigWithValue(v uint64) dpconsensus.Hash {
	var h dpconsensus.Hash
	binary.BigEndian.PutUint64(h[24:], v)
	return h
}

func TestComputeOrder(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		v    uint64
		n    int
		want int32
	}{
		{0, 5, 1},
		{4, 5, 5},
		{5, 5, 1},
		{12, 5, 3},
		{7, 1, 1},
	} {
		got, err := dporder.ComputeOrder(sigWithValue(tc.v), tc.n)
		require.NoError(t, err)
		require.Equal(t, tc.want, got, "v=%d n=%d", tc.v, tc.n)
	}

	// The full 256 bits participate: 2^255 mod 5 = 3, so order 4.
	var high dpconsensus.Hash
	high[0] = 0x80
	got, err := dporder.ComputeOrder(high, 5)
	require.NoError(t, err)
	require.Equal(t, int32(4), got)

	_, err = dporder.ComputeOrder(sigWithValue(1), 0)
	require.ErrorAs(t, err, new(dporder.InvalidMinerCountError))
	_, err = dporder.ComputeOrder(sigWithValue(1), -3)
	require.Error(t, err)
}

func TestComputeOrder_AlwaysInRange(t *testing.T) {
	t.Parallel()

	for n := 1; n <= 23; n++ {
		for i := 0; i < 200; i++ {
			sig := dpconsensus.HashOf([]byte{byte(n), byte(i)})
			o, err := dporder.ComputeOrder(sig, n)
			require.NoError(t, err)
			require.GreaterOrEqual(t, o, int32(1))
			require.LessOrEqual(t, o, int32(n))
		}
	}
}

func TestResolveCollision(t *testing.T) {
	t.Parallel()

	occupied := func(orders ...uint) *bitset.BitSet {
		b := bitset.New(6)
		for _, o := range orders {
			b.Set(o)
		}
		return b
	}

	got, err := dporder.ResolveCollision(occupied(1, 2), 3, 5)
	require.NoError(t, err)
	require.Equal(t, int32(3), got)

	got, err = dporder.ResolveCollision(occupied(3, 4), 3, 5)
	require.NoError(t, err)
	require.Equal(t, int32(5), got)

	// Wraps from 5 back to 1.
	got, err = dporder.ResolveCollision(occupied(4, 5), 4, 5)
	require.NoError(t, err)
	require.Equal(t, int32(1), got)

	got, err = dporder.ResolveCollision(occupied(1, 2, 3, 5), 5, 5)
	require.NoError(t, err)
	require.Equal(t, int32(4), got)

	for _, bad := range []int32{0, -1, 6, 1 << 30} {
		_, err = dporder.ResolveCollision(occupied(), bad, 5)
		require.ErrorAs(t, err, new(dporder.OrderOutOfRangeError), "candidate %d", bad)
	}
}

func TestResolveCollision_AllOccupied(t *testing.T) {
	t.Parallel()

	for n := 1; n <= 9; n++ {
		b := bitset.New(uint(n + 1))
		for o := 1; o <= n; o++ {
			b.Set(uint(o))
		}
		for c := 1; c <= n; c++ {
			got, err := dporder.ResolveCollision(b, int32(c), n)
			require.ErrorIs(t, err, dporder.ErrNoFreeOrder)
			require.Zero(t, got)
		}
	}
}

func TestAssign_BumpsExistingHolder(t *testing.T) {
	t.Parallel()

	fx := dpconsensustest.NewFixture(5)
	r := fx.FirstRound()
	a, b := fx.Validators[0], fx.Validators[1]

	// Both signatures map to order 3.
	sigA := sigWithValue(2)
	sigB := sigWithValue(7)

	got, err := dporder.Assign(&r, a, sigA)
	require.NoError(t, err)
	require.Equal(t, int32(3), got)
	require.Empty(t, dporder.TuneOrders(r))

	got, err = dporder.Assign(&r, b, sigB)
	require.NoError(t, err)
	require.Equal(t, int32(3), got)

	// The newcomer keeps its supposed order; the earlier holder moves forward.
	require.Equal(t, int32(3), r.Miners[b].FinalOrderOfNextRound)
	require.Equal(t, int32(4), r.Miners[a].FinalOrderOfNextRound)
	require.Equal(t, int32(3), r.Miners[a].SupposedOrderOfNextRound)
	require.Equal(t, map[string]int32{a: 4}, dporder.TuneOrders(r))

	require.NoError(t, dporder.CheckFinalOrders(r))
}

func TestAssign_WrapsAroundOnCollision(t *testing.T) {
	t.Parallel()

	fx := dpconsensustest.NewFixture(5)
	r := fx.FirstRound()

	// Take orders 5 and 1 first, then collide on 5.
	_, err := dporder.Assign(&r, fx.Validators[0], sigWithValue(4))
	require.NoError(t, err)
	_, err = dporder.Assign(&r, fx.Validators[1], sigWithValue(0))
	require.NoError(t, err)
	_, err = dporder.Assign(&r, fx.Validators[2], sigWithValue(9))
	require.NoError(t, err)

	require.Equal(t, int32(5), r.Miners[fx.Validators[2]].FinalOrderOfNextRound)
	require.Equal(t, int32(1), r.Miners[fx.Validators[1]].FinalOrderOfNextRound)
	require.Equal(t, int32(2), r.Miners[fx.Validators[0]].FinalOrderOfNextRound)
}

func TestAssign_Errors(t *testing.T) {
	t.Parallel()

	fx := dpconsensustest.NewFixture(3)

	r := fx.FirstRound()
	_, err := dporder.Assign(&r, "nobody", sigWithValue(1))
	require.ErrorAs(t, err, new(dpconsensus.MinerUnknownError))

	// A corrupted final order is reported rather than used.
	m := r.Miners[fx.Validators[1]]
	m.FinalOrderOfNextRound = -2
	r.Miners[fx.Validators[1]] = m
	_, err = dporder.Assign(&r, fx.Validators[0], sigWithValue(1))
	require.ErrorAs(t, err, new(dporder.OrderOutOfRangeError))
}

func TestApplyTuneOrders(t *testing.T) {
	t.Parallel()

	fx := dpconsensustest.NewFixture(5)

	base := fx.FirstRound()
	_, err := dporder.Assign(&base, fx.Validators[0], sigWithValue(0)) // Order 1.
	require.NoError(t, err)
	_, err = dporder.Assign(&base, fx.Validators[1], sigWithValue(1)) // Order 2.
	require.NoError(t, err)

	t.Run("valid", func(t *testing.T) {
		t.Parallel()
		r := base.Clone()
		require.NoError(t, dporder.ApplyTuneOrders(&r, map[string]int32{fx.Validators[0]: 4}))
		require.Equal(t, int32(4), r.Miners[fx.Validators[0]].FinalOrderOfNextRound)
	})

	t.Run("duplicate", func(t *testing.T) {
		t.Parallel()
		r := base.Clone()
		err := dporder.ApplyTuneOrders(&r, map[string]int32{fx.Validators[0]: 2})
		require.ErrorAs(t, err, new(dporder.DuplicateOrderError))
	})

	for _, o := range []int32{0, -1, 6, 1<<31 - 1} {
		t.Run("out of range", func(t *testing.T) {
			t.Parallel()
			r := base.Clone()
			err := dporder.ApplyTuneOrders(&r, map[string]int32{fx.Validators[0]: o})
			require.ErrorAs(t, err, new(dporder.OrderOutOfRangeError))
		})
	}

	t.Run("unknown validator", func(t *testing.T) {
		t.Parallel()
		r := base.Clone()
		err := dporder.ApplyTuneOrders(&r, map[string]int32{"nobody": 3})
		require.ErrorAs(t, err, new(dpconsensus.MinerUnknownError))
	})
}
