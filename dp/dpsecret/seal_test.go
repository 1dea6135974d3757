package dpsecret_test

import (
	"math/rand/v2"
	"testing"

	"github.com/gordian-engine/gdpos/dp/dpsecret"
	"github.com/stretchr/testify/require"
)

func TestSealOpen(t *testing.T) {
	t.Parallel()

	rnd := rand.NewChaCha8([32]byte{1})

	alice, err := dpsecret.GenerateKeyPair(rnd)
	require.NoError(t, err)
	bob, err := dpsecret.GenerateKeyPair(rnd)
	require.NoError(t, err)
	eve, err := dpsecret.GenerateKeyPair(rnd)
	require.NoError(t, err)

	share := make([]byte, dpsecret.ShareSize)
	for i := range share {
		share[i] = byte(i)
	}

	sealed, err := dpsecret.Seal(share, bob.Public, alice, rnd)
	require.NoError(t, err)
	require.Len(t, sealed, dpsecret.SealedShareSize)

	opened, err := dpsecret.Open(sealed, alice.Public, bob)
	require.NoError(t, err)
	require.Equal(t, share, opened)

	_, err = dpsecret.Open(sealed, alice.Public, eve)
	require.ErrorIs(t, err, dpsecret.ErrOpenFailed)

	_, err = dpsecret.Open(sealed, eve.Public, bob)
	require.ErrorIs(t, err, dpsecret.ErrOpenFailed)

	sealed[len(sealed)-1] ^= 1
	_, err = dpsecret.Open(sealed, alice.Public, bob)
	require.ErrorIs(t, err, dpsecret.ErrOpenFailed)

	_, err = dpsecret.Open(sealed[:10], alice.Public, bob)
	require.ErrorIs(t, err, dpsecret.ErrOpenFailed)
}
