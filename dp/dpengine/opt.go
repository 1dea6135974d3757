package dpengine

import (
	"errors"

	"github.com/gordian-engine/gdpos/dp/dpcodec"
	"github.com/gordian-engine/gdpos/dp/dpconsensus"
	"github.com/gordian-engine/gdpos/dp/dpengine/dpelink"
	"github.com/gordian-engine/gdpos/dp/dpengine/internal/dpemetrics"
	"github.com/gordian-engine/gdpos/dp/dpstore"
	"github.com/prometheus/client_golang/prometheus"
)

// Opt is an option for the [Engine], passed to [New].
type Opt func(*Engine) error

// WithRoundStore sets the engine's round store.
// This option is required.
func WithRoundStore(s dpstore.RoundStore) Opt {
	return func(e *Engine) error {
		e.rs = s
		return nil
	}
}

// WithParams sets the chain parameters.
// Without this option, [dpconsensus.DefaultParams] are used.
func WithParams(p dpconsensus.Params) Opt {
	return func(e *Engine) error {
		if err := p.Validate(); err != nil {
			return err
		}
		e.params = p
		return nil
	}
}

// WithGenesis sets the genesis used to create the first round
// when the round store has not yet been initialized.
// It is ignored when the store already holds a round.
func WithGenesis(g dpconsensus.Genesis) Opt {
	return func(e *Engine) error {
		if err := g.Validate(); err != nil {
			return err
		}
		e.genesis = &g
		return nil
	}
}

// WithElectionProvider sets the source of validators for new terms.
// Without it, a new term keeps the validators of the closing round.
func WithElectionProvider(p dpelink.ElectionProvider) Opt {
	return func(e *Engine) error {
		e.ep = p
		return nil
	}
}

// WithRewardDistributor sets the collaborator notified after every round closure.
func WithRewardDistributor(d dpelink.RewardDistributor) Opt {
	return func(e *Engine) error {
		e.rd = d
		return nil
	}
}

// WithMetricsRegisterer registers engine metrics with reg.
func WithMetricsRegisterer(reg prometheus.Registerer) Opt {
	return func(e *Engine) error {
		if reg == nil {
			return errors.New("metrics registerer must not be nil")
		}
		c, err := dpemetrics.NewCollector(reg)
		if err != nil {
			return err
		}
		e.mc = c
		return nil
	}
}

// WithCodec sets the codec used by [Engine.EncodeRound].
// Without this option, JSON is used.
func WithCodec(c dpcodec.MarshalCodec) Opt {
	return func(e *Engine) error {
		e.codec = c
		return nil
	}
}
