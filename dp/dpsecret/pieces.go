package dpsecret

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/gordian-engine/gdpos/dp/dpconsensus"
)

// Keyring holds the local validator's key pair
// and the public share keys of its peers.
type Keyring struct {
	Own     string
	KeyPair KeyPair
	Public  map[string][32]byte
}

// Recipients returns the validators of r in share index order,
// which is ascending by identity so that it does not depend on mining order.
func Recipients(r dpconsensus.Round) []string {
	out := make([]string, 0, len(r.Miners))
	for k := range r.Miners {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// DealPieces splits inValue among the validators of r
// and seals each share for its recipient.
// The result is keyed by recipient and belongs in the dealer's EncryptedPieces.
func DealPieces(
	ctx context.Context,
	r dpconsensus.Round,
	inValue dpconsensus.Hash,
	kr Keyring,
	rnd io.Reader,
) (map[string][]byte, error) {
	recipients := Recipients(r)
	shares, err := Deal(ctx, inValue, len(recipients), Threshold(len(recipients)), rnd)
	if err != nil {
		return nil, err
	}

	out := make(map[string][]byte, len(recipients))
	for i, v := range recipients {
		pub, ok := kr.Public[v]
		if !ok {
			return nil, fmt.Errorf("no share key for recipient %q", v)
		}
		sealed, err := Seal(shares[i], pub, kr.KeyPair, rnd)
		if err != nil {
			return nil, fmt.Errorf("failed to seal share for %q: %w", v, err)
		}
		out[v] = sealed
	}
	return out, nil
}

// OpenPieces opens every piece that peers dealt to kr.Own in prev.
// The result is keyed by dealer;
// each value belongs in the dealer's DecryptedPieces under kr.Own
// in the round following prev.
// Pieces that fail to open are skipped.
func OpenPieces(prev dpconsensus.Round, kr Keyring) map[string][]byte {
	out := make(map[string][]byte)
	for dealer, m := range prev.Miners {
		if dealer == kr.Own {
			continue
		}
		sealed, ok := m.EncryptedPieces[kr.Own]
		if !ok {
			continue
		}
		pub, ok := kr.Public[dealer]
		if !ok {
			continue
		}
		share, err := Open(sealed, pub, kr.KeyPair)
		if err != nil {
			continue
		}
		out[dealer] = share
	}
	return out
}

// ReconstructInValue recovers the pre-image dealt in prev by dealer
// from the pieces its peers decrypted, keyed by the peer.
func ReconstructInValue(ctx context.Context, prev dpconsensus.Round, decrypted map[string][]byte) (dpconsensus.Hash, error) {
	recipients := Recipients(prev)
	n := len(recipients)
	rc, err := NewReconstructor(n, Threshold(n))
	if err != nil {
		return dpconsensus.Hash{}, err
	}

	for i, v := range recipients {
		share, ok := decrypted[v]
		if !ok {
			continue
		}
		err := rc.AddShare(ctx, i, share)
		if err == nil {
			return rc.Secret()
		}
		if !errors.Is(err, ErrIncompleteSet) {
			return dpconsensus.Hash{}, fmt.Errorf("share from %q: %w", v, err)
		}
	}
	return dpconsensus.Hash{}, ErrIncompleteSet
}

// RevealInValues writes candidate pre-images into the PreviousInValue slots of cur.
//
// A slot that is already set is never overwritten.
// When prev is not nil, a candidate is only accepted if its digest
// matches the validator's OutValue in prev.
// The returned identities, sorted, are the slots that were written.
func RevealInValues(cur *dpconsensus.Round, prev *dpconsensus.Round, candidates map[string]dpconsensus.Hash) []string {
	var revealed []string
	for k, in := range candidates {
		if in.IsEmpty() {
			continue
		}
		m, ok := cur.Miners[k]
		if !ok || !m.PreviousInValue.IsEmpty() {
			continue
		}
		if prev != nil {
			pm, ok := prev.Miners[k]
			if !ok || pm.OutValue.IsEmpty() || dpconsensus.HashOf(in[:]) != pm.OutValue {
				continue
			}
		}
		m.PreviousInValue = in
		cur.Miners[k] = m
		revealed = append(revealed, k)
	}
	slices.Sort(revealed)
	return revealed
}

// RevealFromPieces reconstructs the pre-image of every validator in cur
// that has not revealed one but whose peers decrypted enough of its pieces,
// and writes the result through [RevealInValues].
func RevealFromPieces(ctx context.Context, cur *dpconsensus.Round, prev dpconsensus.Round) []string {
	candidates := make(map[string]dpconsensus.Hash)
	for k, m := range cur.Miners {
		if !m.PreviousInValue.IsEmpty() || len(m.DecryptedPieces) == 0 {
			continue
		}
		if len(m.DecryptedPieces) < Threshold(len(prev.Miners)) {
			continue
		}
		in, err := ReconstructInValue(ctx, prev, m.DecryptedPieces)
		if err != nil {
			continue
		}
		candidates[k] = in
	}
	return RevealInValues(cur, &prev, candidates)
}
