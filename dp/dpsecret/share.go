package dpsecret

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/gordian-engine/gdpos/dp/dpconsensus"
	"github.com/klauspost/reedsolomon"
)

// ShareSize is the size of a single unsealed share.
const ShareSize = dpconsensus.HashSize

// ErrIncompleteSet is returned by [Reconstructor.AddShare] when a share was accepted
// but was not sufficient to recover the secret.
var ErrIncompleteSet = errors.New("insufficient shares received to recover secret")

// Threshold is the number of shares required to recover a secret
// dealt among n validators: two thirds of n, and at least one.
func Threshold(n int) int {
	t := 2 * n / 3
	if t < 1 {
		t = 1
	}
	return t
}

// Deal splits secret into n shares, any threshold of which recover it.
// Random padding is read from rnd, or from crypto/rand if rnd is nil.
func Deal(_ context.Context, secret dpconsensus.Hash, n, threshold int, rnd io.Reader) ([][]byte, error) {
	if n <= 0 {
		return nil, fmt.Errorf("share count must be > 0 (got %d)", n)
	}
	if threshold <= 0 || threshold > n {
		return nil, fmt.Errorf("threshold must be in [1, %d] (got %d)", n, threshold)
	}
	if rnd == nil {
		rnd = rand.Reader
	}

	rs, err := reedsolomon.New(threshold, n)
	if err != nil {
		return nil, fmt.Errorf("failed to create reed-solomon encoder: %w", err)
	}

	allShards := rs.(reedsolomon.Extensions).AllocAligned(ShareSize)
	copy(allShards[0], secret[:])
	for i := 1; i < threshold; i++ {
		if _, err := io.ReadFull(rnd, allShards[i]); err != nil {
			return nil, fmt.Errorf("failed to read random padding: %w", err)
		}
	}

	if err := rs.Encode(allShards); err != nil {
		return nil, fmt.Errorf("failed to encode shares: %w", err)
	}

	// Only the parity shards leave the dealer.
	return allShards[threshold:], nil
}

// Reconstructor recovers a secret from shares produced by [Deal].
type Reconstructor struct {
	rs reedsolomon.Encoder

	// Data shards first, then one parity shard per recipient,
	// each zero-length until received.
	allShards [][]byte

	n, threshold int
}

// NewReconstructor returns a Reconstructor for secrets dealt
// with the same n and threshold.
func NewReconstructor(n, threshold int) (*Reconstructor, error) {
	if n <= 0 {
		return nil, fmt.Errorf("share count must be > 0 (got %d)", n)
	}
	if threshold <= 0 || threshold > n {
		return nil, fmt.Errorf("threshold must be in [1, %d] (got %d)", n, threshold)
	}
	rs, err := reedsolomon.New(threshold, n)
	if err != nil {
		return nil, fmt.Errorf("failed to create reed-solomon reconstructor: %w", err)
	}

	allShards := rs.(reedsolomon.Extensions).AllocAligned(ShareSize)

	// Full-length shards would be treated as present,
	// so they stay empty until a share arrives.
	for i, s := range allShards {
		allShards[i] = s[:0]
	}

	return &Reconstructor{
		rs:        rs,
		allShards: allShards,

		n:         n,
		threshold: threshold,
	}, nil
}

// AddShare records the share dealt to recipient idx.
// It returns nil once the secret can be read with [Reconstructor.Secret],
// [ErrIncompleteSet] if more shares are needed,
// or another error if the share is malformed.
func (r *Reconstructor) AddShare(_ context.Context, idx int, share []byte) error {
	if idx < 0 || idx >= r.n {
		return fmt.Errorf("share index %d outside [0, %d)", idx, r.n)
	}
	if len(share) != ShareSize {
		return fmt.Errorf("invalid share size: want %d, got %d", ShareSize, len(share))
	}

	i := r.threshold + idx
	r.allShards[i] = r.allShards[i][:ShareSize]
	_ = copy(r.allShards[i], share)

	if err := r.rs.ReconstructData(r.allShards); err != nil {
		if errors.Is(err, reedsolomon.ErrTooFewShards) {
			return ErrIncompleteSet
		}
		return fmt.Errorf("failed to attempt secret reconstruction: %w", err)
	}
	return nil
}

// Secret returns the recovered secret.
// It must only be called after AddShare returned nil.
func (r *Reconstructor) Secret() (dpconsensus.Hash, error) {
	var h dpconsensus.Hash
	if len(r.allShards[0]) != ShareSize {
		return h, ErrIncompleteSet
	}
	copy(h[:], r.allShards[0])
	return h, nil
}
