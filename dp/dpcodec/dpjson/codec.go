package dpjson

import (
	"encoding/json"
	"fmt"

	"github.com/gordian-engine/gdpos/dp/dpcodec"
	"github.com/gordian-engine/gdpos/dp/dpconsensus"
)

// MarshalCodec is a [dpcodec.MarshalCodec] using JSON.
type MarshalCodec struct{}

var _ dpcodec.MarshalCodec = MarshalCodec{}

func (MarshalCodec) MarshalRound(r dpconsensus.Round) ([]byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal round %d: %w", r.RoundNumber, err)
	}
	return b, nil
}

// UnmarshalRound decodes b into r.
// Entries whose map key disagrees with their pubkey are rejected,
// so that a decoded round can never alias one validator under another's identity.
func (MarshalCodec) UnmarshalRound(b []byte, r *dpconsensus.Round) error {
	var out dpconsensus.Round
	if err := json.Unmarshal(b, &out); err != nil {
		return fmt.Errorf("failed to unmarshal round: %w", err)
	}
	for k, m := range out.Miners {
		if k != m.Pubkey {
			return fmt.Errorf("%w: entry keyed %q has pubkey %q", dpconsensus.ErrMalformedRound, k, m.Pubkey)
		}
	}
	*r = out
	return nil
}

func (MarshalCodec) MarshalChainState(s dpconsensus.ChainState) ([]byte, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chain state: %w", err)
	}
	return b, nil
}

func (MarshalCodec) UnmarshalChainState(b []byte, s *dpconsensus.ChainState) error {
	if err := json.Unmarshal(b, s); err != nil {
		return fmt.Errorf("failed to unmarshal chain state: %w", err)
	}
	return nil
}
