package dpjson_test

import (
	"testing"

	"github.com/gordian-engine/gdpos/dp/dpcodec/dpjson"
	"github.com/gordian-engine/gdpos/dp/dpconsensus"
	"github.com/gordian-engine/gdpos/dp/dpconsensus/dpconsensustest"
	"github.com/stretchr/testify/require"
)

func TestMarshalCodec_Round(t *testing.T) {
	t.Parallel()

	fx := dpconsensustest.NewFixture(4)
	r := fx.CommitAll(fx.FirstRound(), nil, 0)

	var c dpjson.MarshalCodec
	b, err := c.MarshalRound(r)
	require.NoError(t, err)

	var got dpconsensus.Round
	require.NoError(t, c.UnmarshalRound(b, &got))
	require.Equal(t, r, got)

	// Deterministic encoding.
	again, err := c.MarshalRound(got)
	require.NoError(t, err)
	require.Equal(t, b, again)
}

func TestMarshalCodec_RejectsMismatchedKey(t *testing.T) {
	t.Parallel()

	fx := dpconsensustest.NewFixture(2)
	r := fx.FirstRound()
	m := r.Miners[fx.Validators[0]]
	delete(r.Miners, fx.Validators[0])
	r.Miners["impostor"] = m

	var c dpjson.MarshalCodec
	b, err := c.MarshalRound(r)
	require.NoError(t, err)

	var got dpconsensus.Round
	require.ErrorIs(t, c.UnmarshalRound(b, &got), dpconsensus.ErrMalformedRound)
}

func TestMarshalCodec_ChainState(t *testing.T) {
	t.Parallel()

	s := dpconsensus.ChainState{
		ChainStart:         dpconsensustest.ChainStart,
		Height:             42,
		LatestProducer:     "val-01",
		ConsecutiveBlocks:  3,
		CurrentRoundNumber: 7,
		CurrentTermNumber:  1,
	}

	var c dpjson.MarshalCodec
	b, err := c.MarshalChainState(s)
	require.NoError(t, err)

	var got dpconsensus.ChainState
	require.NoError(t, c.UnmarshalChainState(b, &got))
	require.Equal(t, s, got)
}
