package dpconsensus_test

import (
	"testing"

	"github.com/gordian-engine/gdpos/dp/dpconsensus"
	"github.com/stretchr/testify/require"
)

func TestChainState_AfterBlock(t *testing.T) {
	t.Parallel()

	var s dpconsensus.ChainState

	s, err := s.AfterBlock("a", 1)
	require.NoError(t, err)
	require.Equal(t, "a", s.LatestProducer)
	require.Equal(t, uint32(1), s.ConsecutiveBlocks)

	s, err = s.AfterBlock("a", 2)
	require.NoError(t, err)
	require.Equal(t, uint32(2), s.ConsecutiveBlocks)

	s, err = s.AfterBlock("b", 3)
	require.NoError(t, err)
	require.Equal(t, "b", s.LatestProducer)
	require.Equal(t, uint32(1), s.ConsecutiveBlocks)

	_, err = s.AfterBlock("b", 5)
	require.Error(t, err)

	_, err = s.AfterBlock("b", 3)
	require.Error(t, err)
}

func TestGenesis_Validate(t *testing.T) {
	t.Parallel()

	g := dpconsensus.Genesis{Validators: []string{"a", "b"}}
	require.Error(t, g.Validate())

	g.StartTime = g.StartTime.AddDate(2024, 0, 0)
	require.NoError(t, g.Validate())

	g.Validators = []string{"a", "a"}
	require.Error(t, g.Validate())

	g.Validators = []string{"a", ""}
	require.Error(t, g.Validate())

	g.Validators = nil
	require.Error(t, g.Validate())
}
