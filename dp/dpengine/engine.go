package dpengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gordian-engine/gdpos/dp/dpcodec"
	"github.com/gordian-engine/gdpos/dp/dpcodec/dpjson"
	"github.com/gordian-engine/gdpos/dp/dpconsensus"
	"github.com/gordian-engine/gdpos/dp/dpengine/dpelink"
	"github.com/gordian-engine/gdpos/dp/dpengine/internal/dpemetrics"
	"github.com/gordian-engine/gdpos/dp/dpgen"
	"github.com/gordian-engine/gdpos/dp/dpstore"
)

// Engine applies consensus payloads to the round store.
//
// Every submission reads one snapshot of the store,
// validates the payload against it,
// and persists the result with a single atomic commit.
// Submissions are serialized; queries may run concurrently with them.
//
// Engine methods are safe to call concurrently.
type Engine struct {
	log *slog.Logger

	// Held for writing by submissions and for reading by queries,
	// so that a query never observes a half-applied block.
	mu sync.RWMutex

	rs      dpstore.RoundStore
	params  dpconsensus.Params
	genesis *dpconsensus.Genesis

	ep dpelink.ElectionProvider
	rd dpelink.RewardDistributor

	mc    *dpemetrics.Collector
	codec dpcodec.MarshalCodec

	// Context and wait group for background reward distribution.
	bgCtx context.Context
	bgWG  sync.WaitGroup
}

// New returns a new Engine configured by opts.
//
// If the round store is uninitialized, [WithGenesis] is required
// and the first round is generated and committed before New returns.
//
// Background work is associated with ctx;
// cancel ctx and call [Engine.Wait] to stop the engine.
func New(ctx context.Context, log *slog.Logger, opts ...Opt) (*Engine, error) {
	e := &Engine{
		log: log,

		params: dpconsensus.DefaultParams(),
		codec:  dpjson.MarshalCodec{},

		bgCtx: ctx,
	}

	var err error
	for _, opt := range opts {
		err = errors.Join(err, opt(e))
	}
	if err != nil {
		return nil, err
	}

	if e.rs == nil {
		return nil, errors.New("dpengine.New: WithRoundStore option is required")
	}

	if err := e.initialize(ctx); err != nil {
		return nil, err
	}

	return e, nil
}

func (e *Engine) initialize(ctx context.Context) error {
	cur, err := e.rs.LoadCurrentRound(ctx)
	if err == nil {
		state, err := e.rs.LoadChainState(ctx)
		if err != nil {
			return fmt.Errorf("failed to load chain state: %w", err)
		}
		if e.genesis != nil && !e.genesis.StartTime.Equal(state.ChainStart) {
			return fmt.Errorf(
				"genesis start time %s disagrees with stored chain start %s",
				e.genesis.StartTime, state.ChainStart,
			)
		}
		e.log.Info(
			"Resuming from stored round",
			"round", cur.RoundNumber, "term", cur.TermNumber, "height", state.Height,
		)
		e.mc.SetState(cur, state)
		return nil
	}
	if !errors.Is(err, dpstore.ErrStoreUninitialized) {
		return fmt.Errorf("failed to load current round: %w", err)
	}

	if e.genesis == nil {
		return fmt.Errorf("no genesis provided: %w", err)
	}

	first, err := dpgen.GenerateFirstRound(e.genesis.Validators, e.genesis.StartTime, e.params)
	if err != nil {
		return fmt.Errorf("failed to generate first round: %w", err)
	}
	state := dpconsensus.ChainState{ChainStart: e.genesis.StartTime}.EnterRound(first)
	if err := e.rs.Commit(ctx, dpstore.Commit{Current: first, State: state}); err != nil {
		return fmt.Errorf("failed to commit first round: %w", err)
	}

	e.log.Info(
		"Initialized from genesis",
		"validators", len(e.genesis.Validators), "start", e.genesis.StartTime,
	)
	e.mc.SetState(first, state)
	return nil
}

// Wait blocks until all background work has finished.
// Cancel the context passed to [New] first.
func (e *Engine) Wait() {
	e.bgWG.Wait()
}

// Params returns the chain parameters the engine validates against.
func (e *Engine) Params() dpconsensus.Params {
	return e.params
}

// snapshot is a consistent view of the store.
type snapshot struct {
	Current  dpconsensus.Round
	Previous *dpconsensus.Round
	State    dpconsensus.ChainState
}

// loadSnapshot must be called with e.mu held.
func (e *Engine) loadSnapshot(ctx context.Context) (snapshot, error) {
	cur, err := e.rs.LoadCurrentRound(ctx)
	if err != nil {
		return snapshot{}, fmt.Errorf("failed to load current round: %w", err)
	}

	state, err := e.rs.LoadChainState(ctx)
	if err != nil {
		return snapshot{}, fmt.Errorf("failed to load chain state: %w", err)
	}

	s := snapshot{Current: cur, State: state}

	prev, err := e.rs.LoadPreviousRound(ctx)
	if err == nil {
		s.Previous = &prev
	} else if !errors.As(err, new(dpconsensus.RoundUnknownError)) {
		return snapshot{}, fmt.Errorf("failed to load previous round: %w", err)
	}

	return s, nil
}

// GetCurrentRound returns the live round.
func (e *Engine) GetCurrentRound(ctx context.Context) (dpconsensus.Round, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.rs.LoadCurrentRound(ctx)
}

// GetPreviousRound returns the most recently closed round.
func (e *Engine) GetPreviousRound(ctx context.Context) (dpconsensus.Round, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.rs.LoadPreviousRound(ctx)
}

// GetRound returns the round with the given number.
func (e *Engine) GetRound(ctx context.Context, roundNumber uint64) (dpconsensus.Round, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.rs.LoadRound(ctx, roundNumber)
}

// GetChainState returns the counters committed with the current round.
func (e *Engine) GetChainState(ctx context.Context) (dpconsensus.ChainState, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.rs.LoadChainState(ctx)
}

// GetMiningInterval returns the slot length of the current round.
func (e *Engine) GetMiningInterval(ctx context.Context) (time.Duration, error) {
	r, err := e.GetCurrentRound(ctx)
	if err != nil {
		return 0, err
	}
	return r.MiningInterval(e.params.MiningInterval), nil
}

// IsDesignatedProducer reports whether the validator may produce
// any kind of block at t according to the current round.
func (e *Engine) IsDesignatedProducer(ctx context.Context, pubkey string, t time.Time) (bool, error) {
	r, err := e.GetCurrentRound(ctx)
	if err != nil {
		return false, err
	}
	return r.IsDesignatedProducer(pubkey, t, r.MiningInterval(e.params.MiningInterval)), nil
}

// EncodeRound returns the round with the given number serialized by the engine's codec.
// Round number zero selects the current round.
func (e *Engine) EncodeRound(ctx context.Context, roundNumber uint64) ([]byte, error) {
	var r dpconsensus.Round
	var err error
	if roundNumber == 0 {
		r, err = e.GetCurrentRound(ctx)
	} else {
		r, err = e.GetRound(ctx, roundNumber)
	}
	if err != nil {
		return nil, err
	}
	return e.codec.MarshalRound(r)
}
