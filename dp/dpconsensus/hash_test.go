package dpconsensus_test

import (
	"encoding/json"
	"testing"

	"github.com/gordian-engine/gdpos/dp/dpconsensus"
	"github.com/stretchr/testify/require"
)

func TestHash_EmptySentinel(t *testing.T) {
	t.Parallel()

	var h dpconsensus.Hash
	require.True(t, h.IsEmpty())
	require.Empty(t, h.String())

	h = dpconsensus.HashOf([]byte("x"))
	require.False(t, h.IsEmpty())
	require.Len(t, h.String(), 64)
}

func TestHashOf_ConcatenatesParts(t *testing.T) {
	t.Parallel()

	require.Equal(t,
		dpconsensus.HashOf([]byte("abc")),
		dpconsensus.HashOf([]byte("a"), []byte("bc")),
	)
	require.NotEqual(t,
		dpconsensus.HashOf([]byte("abc")),
		dpconsensus.HashOf([]byte("abd")),
	)
}

func TestXorAndHash_Commutative(t *testing.T) {
	t.Parallel()

	a := dpconsensus.HashOf([]byte("a"))
	b := dpconsensus.HashOf([]byte("b"))

	require.Equal(t, dpconsensus.XorAndHash(a, b), dpconsensus.XorAndHash(b, a))

	// XOR with the empty sentinel is the identity before hashing.
	require.Equal(t, dpconsensus.HashOf(a[:]), dpconsensus.XorAndHash(a, dpconsensus.Hash{}))
}

func TestHash_Text(t *testing.T) {
	t.Parallel()

	type wrapper struct {
		H dpconsensus.Hash
		E dpconsensus.Hash
	}

	in := wrapper{H: dpconsensus.HashOf([]byte("hello"))}
	b, err := json.Marshal(in)
	require.NoError(t, err)
	require.Contains(t, string(b), `"E":""`)

	var out wrapper
	require.NoError(t, json.Unmarshal(b, &out))
	require.Equal(t, in, out)

	_, err = dpconsensus.HashFromHex("abcd")
	require.Error(t, err)

	_, err = dpconsensus.HashFromHex(string(make([]byte, 64)))
	require.Error(t, err)
}
