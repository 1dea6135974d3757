package dpsecret_test

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/gordian-engine/gdpos/dp/dpconsensus"
	"github.com/gordian-engine/gdpos/dp/dpconsensus/dpconsensustest"
	"github.com/gordian-engine/gdpos/dp/dpsecret"
	"github.com/stretchr/testify/require"
)

func keyrings(t *testing.T, validators []string) map[string]dpsecret.Keyring {
	t.Helper()

	rnd := rand.NewChaCha8([32]byte{7})
	pairs := make(map[string]dpsecret.KeyPair, len(validators))
	public := make(map[string][32]byte, len(validators))
	for _, v := range validators {
		kp, err := dpsecret.GenerateKeyPair(rnd)
		require.NoError(t, err)
		pairs[v] = kp
		public[v] = kp.Public
	}

	out := make(map[string]dpsecret.Keyring, len(validators))
	for _, v := range validators {
		out[v] = dpsecret.Keyring{Own: v, KeyPair: pairs[v], Public: public}
	}
	return out
}

func TestRevealInValues(t *testing.T) {
	t.Parallel()

	fx := dpconsensustest.NewFixture(3)
	v := fx.Validators

	prev := fx.CommitAll(fx.FirstRound(), nil, 0)
	cur := fx.NextRound(prev)

	// v0 already revealed something, v1 and v2 have not.
	m := cur.Miners[v[0]]
	m.PreviousInValue = dpconsensustest.InValue(v[0], 1)
	cur.Miners[v[0]] = m

	poison := dpconsensus.HashOf([]byte("poison"))
	revealed := dpsecret.RevealInValues(&cur, &prev, map[string]dpconsensus.Hash{
		v[0]: poison,                           // Populated slot: never overwritten.
		v[1]: dpconsensustest.InValue(v[1], 1), // Matches the commitment.
		v[2]: poison,                           // Does not match the commitment.
		"x":  dpconsensustest.InValue("x", 1),  // Not a validator.
	})

	require.Equal(t, []string{v[1]}, revealed)
	require.Equal(t, dpconsensustest.InValue(v[0], 1), cur.Miners[v[0]].PreviousInValue)
	require.Equal(t, dpconsensustest.InValue(v[1], 1), cur.Miners[v[1]].PreviousInValue)
	require.True(t, cur.Miners[v[2]].PreviousInValue.IsEmpty())
}

func TestPieces_EndToEnd(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fx := dpconsensustest.NewFixture(5)
	v := fx.Validators
	krs := keyrings(t, v)

	// Round 1: every validator commits and deals its pre-image.
	r1 := fx.FirstRound()
	for _, dealer := range v {
		r1 = fx.Commit(r1, nil, dealer, 0)
		pieces, err := dpsecret.DealPieces(ctx, r1, dpconsensustest.InValue(dealer, 1), krs[dealer], nil)
		require.NoError(t, err)
		require.Len(t, pieces, 5)

		m := r1.Miners[dealer]
		m.EncryptedPieces = pieces
		r1.Miners[dealer] = m
	}

	// Round 2: v0 never reveals; the other validators open their pieces
	// and record them against each dealer.
	r2 := fx.NextRound(r1)
	for _, peer := range v[1:] {
		for dealer, share := range dpsecret.OpenPieces(r1, krs[peer]) {
			require.NotEqual(t, peer, dealer)
			m := r2.Miners[dealer]
			if m.DecryptedPieces == nil {
				m.DecryptedPieces = make(map[string][]byte)
			}
			m.DecryptedPieces[peer] = share
			r2.Miners[dealer] = m
		}
	}
	require.Len(t, r2.Miners[v[0]].DecryptedPieces, 4)

	in, err := dpsecret.ReconstructInValue(ctx, r1, r2.Miners[v[0]].DecryptedPieces)
	require.NoError(t, err)
	require.Equal(t, dpconsensustest.InValue(v[0], 1), in)

	revealed := dpsecret.RevealFromPieces(ctx, &r2, r1)
	require.Equal(t, v, revealed)
	for _, dealer := range v {
		require.Equal(t, dpconsensustest.InValue(dealer, 1), r2.Miners[dealer].PreviousInValue)
	}
}

func TestReconstructInValue_TooFewPieces(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fx := dpconsensustest.NewFixture(5)
	v := fx.Validators
	krs := keyrings(t, v)

	r1 := fx.Commit(fx.FirstRound(), nil, v[0], 0)
	pieces, err := dpsecret.DealPieces(ctx, r1, dpconsensustest.InValue(v[0], 1), krs[v[0]], nil)
	require.NoError(t, err)
	m := r1.Miners[v[0]]
	m.EncryptedPieces = pieces
	r1.Miners[v[0]] = m

	// Threshold for 5 is 3; collect only 2.
	decrypted := make(map[string][]byte)
	for _, peer := range v[1:3] {
		decrypted[peer] = dpsecret.OpenPieces(r1, krs[peer])[v[0]]
	}
	_, err = dpsecret.ReconstructInValue(ctx, r1, decrypted)
	require.ErrorIs(t, err, dpsecret.ErrIncompleteSet)
}
