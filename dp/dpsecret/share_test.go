package dpsecret_test

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/gordian-engine/gdpos/dp/dpconsensus"
	"github.com/gordian-engine/gdpos/dp/dpsecret"
	"github.com/stretchr/testify/require"
)

func TestThreshold(t *testing.T) {
	t.Parallel()

	for n, want := range map[int]int{1: 1, 2: 1, 3: 2, 4: 2, 5: 3, 7: 4, 17: 11, 21: 14} {
		require.Equal(t, want, dpsecret.Threshold(n), "n=%d", n)
	}
}

func TestDealReconstruct(t *testing.T) {
	t.Parallel()

	for _, n := range []int{1, 2, 3, 4, 5, 7, 10, 21, 50} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			t.Parallel()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			seed := [32]byte{}
			binary.LittleEndian.PutUint64(seed[:8], uint64(n))
			chacha := rand.NewChaCha8(seed)

			secret := dpconsensus.HashOf([]byte(fmt.Sprintf("secret %d", n)))
			threshold := dpsecret.Threshold(n)

			shares, err := dpsecret.Deal(ctx, secret, n, threshold, chacha)
			require.NoError(t, err)
			require.Len(t, shares, n)
			for _, s := range shares {
				require.Len(t, s, dpsecret.ShareSize)
			}

			r, err := dpsecret.NewReconstructor(n, threshold)
			require.NoError(t, err)

			used := 0
			rng := rand.New(chacha)
			for _, idx := range rng.Perm(n) {
				used++
				err = r.AddShare(ctx, idx, shares[idx])
				if err == nil {
					break
				}
				require.ErrorIs(t, err, dpsecret.ErrIncompleteSet)
			}
			require.NoError(t, err)

			// Any threshold shares suffice, and no fewer.
			require.Equal(t, threshold, used)

			got, err := r.Secret()
			require.NoError(t, err)
			require.Equal(t, secret, got)
		})
	}
}

func TestReconstructor_Incomplete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	secret := dpconsensus.HashOf([]byte("x"))
	shares, err := dpsecret.Deal(ctx, secret, 5, 3, nil)
	require.NoError(t, err)

	r, err := dpsecret.NewReconstructor(5, 3)
	require.NoError(t, err)

	_, err = r.Secret()
	require.ErrorIs(t, err, dpsecret.ErrIncompleteSet)

	require.ErrorIs(t, r.AddShare(ctx, 0, shares[0]), dpsecret.ErrIncompleteSet)
	require.ErrorIs(t, r.AddShare(ctx, 4, shares[4]), dpsecret.ErrIncompleteSet)

	_, err = r.Secret()
	require.ErrorIs(t, err, dpsecret.ErrIncompleteSet)

	require.Error(t, r.AddShare(ctx, 5, shares[1]))
	require.Error(t, r.AddShare(ctx, -1, shares[1]))
	require.Error(t, r.AddShare(ctx, 1, shares[1][:10]))

	require.NoError(t, r.AddShare(ctx, 2, shares[2]))
	got, err := r.Secret()
	require.NoError(t, err)
	require.Equal(t, secret, got)
}

func TestDeal_InvalidArguments(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	var secret dpconsensus.Hash

	_, err := dpsecret.Deal(ctx, secret, 0, 1, nil)
	require.Error(t, err)

	_, err = dpsecret.Deal(ctx, secret, 3, 4, nil)
	require.Error(t, err)

	_, err = dpsecret.Deal(ctx, secret, 3, 0, nil)
	require.Error(t, err)

	_, err = dpsecret.NewReconstructor(3, 4)
	require.Error(t, err)
}
