package dpsim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/gordian-engine/gdpos/dp/dpconsensus"
	"github.com/gordian-engine/gdpos/dp/dpengine"
	"github.com/gordian-engine/gdpos/dp/dpengine/dpelink"
	"github.com/gordian-engine/gdpos/dp/dpsecret"
	"github.com/gordian-engine/gdpos/dp/dpstore"
)

// Config describes a simulated network.
type Config struct {
	// Genesis validators, in first-round order.
	Validators []string

	// Genesis time. Leave zero to resume from a store
	// that was initialized by an earlier simulation.
	StartTime time.Time
	Params    dpconsensus.Params

	// Validators elected for every term after the first.
	// When empty, terms keep the validators of the previous term.
	NextTermValidators []string

	// Validators that never produce a block.
	Offline []string

	// Validators that never reveal their previous in value in a commitment.
	Withholding []string

	// Tiny blocks a validator produces in each of its slots
	// after its commitment or after closing a round.
	TinyBlocksPerSlot int

	// Seed for in values and secret sharing randomness.
	Seed [32]byte
}

// Block describes a block the simulator produced.
type Block struct {
	Producer string
	Behavior dpconsensus.Behavior
	Time     time.Time
	Height   uint64

	// Round the block was produced in;
	// for a transition, the round it closed.
	RoundNumber uint64
}

// ErrStalled is returned from [*Simulator.Step]
// when no online validator has anything to produce.
var ErrStalled = errors.New("no online validator can produce a block")

// Simulator drives a [*dpengine.Engine] with a set of honest validators
// on a virtual clock.
//
// Each step asks every online validator for its next command
// and executes the earliest one, so that the simulated chain
// follows the schedule the engine arranges.
//
// A Simulator is not safe for concurrent use;
// the engine it drives may be queried concurrently.
type Simulator struct {
	log *slog.Logger

	e   *dpengine.Engine
	cfg Config

	offline     map[string]bool
	withholding map[string]bool

	rnd      *rand.ChaCha8
	keyrings map[string]dpsecret.Keyring

	// Latest commitment pre-image per validator.
	committed map[string]committedIn

	// Tiny blocks produced per validator and slot.
	tinies map[slotKey]int

	now    time.Time
	height uint64
}

type committedIn struct {
	RoundNumber uint64
	InValue     dpconsensus.Hash
}

type slotKey struct {
	Pubkey   string
	Deadline time.Time
}

// New returns a Simulator driving a new engine over rs.
// If rs already holds rounds, the simulation resumes from them.
// Extra engine options are applied after the simulator's own.
func New(
	ctx context.Context,
	log *slog.Logger,
	cfg Config,
	rs dpstore.RoundStore,
	opts ...dpengine.Opt,
) (*Simulator, error) {
	if len(cfg.Validators) == 0 {
		return nil, errors.New("dpsim.New: at least one validator is required")
	}
	if cfg.TinyBlocksPerSlot < 0 {
		return nil, fmt.Errorf("dpsim.New: negative tiny blocks per slot (%d)", cfg.TinyBlocksPerSlot)
	}

	engineOpts := []dpengine.Opt{
		dpengine.WithRoundStore(rs),
		dpengine.WithParams(cfg.Params),
	}
	if !cfg.StartTime.IsZero() {
		engineOpts = append(engineOpts, dpengine.WithGenesis(dpconsensus.Genesis{
			Validators: cfg.Validators,
			StartTime:  cfg.StartTime,
		}))
	}
	if len(cfg.NextTermValidators) > 0 {
		engineOpts = append(engineOpts, dpengine.WithElectionProvider(dpelink.StaticElection(cfg.NextTermValidators)))
	}
	engineOpts = append(engineOpts, opts...)

	e, err := dpengine.New(ctx, log.With("sys", "engine"), engineOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	s := &Simulator{
		log: log,

		e:   e,
		cfg: cfg,

		offline:     setOf(cfg.Offline),
		withholding: setOf(cfg.Withholding),

		rnd: rand.NewChaCha8(cfg.Seed),

		committed: make(map[string]committedIn),
		tinies:    make(map[slotKey]int),

		now: cfg.StartTime,
	}

	if cfg.Params.SecretSharingEnabled {
		if err := s.generateKeyrings(); err != nil {
			return nil, err
		}
	}

	if err := s.resume(ctx); err != nil {
		return nil, err
	}

	return s, nil
}

func setOf(vals []string) map[string]bool {
	m := make(map[string]bool, len(vals))
	for _, v := range vals {
		m[v] = true
	}
	return m
}

// generateKeyrings creates share keys for every validator
// that can appear in any term.
func (s *Simulator) generateKeyrings() error {
	all := slices.Concat(s.cfg.Validators, s.cfg.NextTermValidators)
	slices.Sort(all)
	all = slices.Compact(all)

	pairs := make(map[string]dpsecret.KeyPair, len(all))
	public := make(map[string][32]byte, len(all))
	for _, v := range all {
		kp, err := dpsecret.GenerateKeyPair(s.rnd)
		if err != nil {
			return fmt.Errorf("failed to generate key pair for %q: %w", v, err)
		}
		pairs[v] = kp
		public[v] = kp.Public
	}

	s.keyrings = make(map[string]dpsecret.Keyring, len(all))
	for _, v := range all {
		s.keyrings[v] = dpsecret.Keyring{Own: v, KeyPair: pairs[v], Public: public}
	}
	return nil
}

// resume moves the clock and height past anything already stored.
func (s *Simulator) resume(ctx context.Context) error {
	st, err := s.e.GetChainState(ctx)
	if err != nil {
		return fmt.Errorf("failed to load chain state: %w", err)
	}
	s.height = st.Height
	if s.now.Before(st.ChainStart) {
		s.now = st.ChainStart
	}

	cur, err := s.e.GetCurrentRound(ctx)
	if err != nil {
		return fmt.Errorf("failed to load current round: %w", err)
	}
	rounds := []dpconsensus.Round{cur}
	if prev, err := s.e.GetPreviousRound(ctx); err == nil {
		rounds = append(rounds, prev)
	}
	for _, r := range rounds {
		for _, m := range r.Miners {
			if t, ok := m.LatestActualMiningTime(); ok && t.After(s.now) {
				s.now = t
			}
		}
	}

	if s.height > 0 {
		s.log.Info("Resumed simulation", "height", s.height, "round", cur.RoundNumber, "now", s.now)
	}
	return nil
}

// Engine returns the engine driven by s.
func (s *Simulator) Engine() *dpengine.Engine {
	return s.e
}

// Now returns the virtual time of the latest block.
func (s *Simulator) Now() time.Time {
	return s.now
}

// InValue returns the commitment pre-image pubkey uses in the given round.
func (s *Simulator) InValue(pubkey string, roundNumber uint64) dpconsensus.Hash {
	b := slices.Concat(s.cfg.Seed[:], []byte(fmt.Sprintf("%s/%d", pubkey, roundNumber)))
	return dpconsensus.HashOf(b)
}

// Pending returns the block the next call to [*Simulator.Step] will produce,
// without producing it.
func (s *Simulator) Pending(ctx context.Context) (Block, error) {
	b, _, err := s.pending(ctx)
	return b, err
}

// pending also returns the deadline of the chosen command.
func (s *Simulator) pending(ctx context.Context) (Block, time.Time, error) {
	cur, err := s.e.GetCurrentRound(ctx)
	if err != nil {
		return Block{}, time.Time{}, err
	}

	var best dpengine.Command
	var producer string
	for _, m := range cur.SortedMiners() {
		if s.offline[m.Pubkey] {
			continue
		}
		cmd, err := s.nextCommand(ctx, m.Pubkey)
		if err != nil {
			return Block{}, time.Time{}, err
		}
		if cmd.Behavior == dpconsensus.BehaviorNothing {
			continue
		}
		// Ties go to the lower order.
		if producer == "" || cmd.MiningTime.Before(best.MiningTime) {
			best = cmd
			producer = m.Pubkey
		}
	}
	if producer == "" {
		return Block{}, time.Time{}, ErrStalled
	}

	return Block{
		Producer:    producer,
		Behavior:    best.Behavior,
		Time:        best.MiningTime,
		Height:      s.height + 1,
		RoundNumber: cur.RoundNumber,
	}, best.Deadline, nil
}

// Step produces the next block.
func (s *Simulator) Step(ctx context.Context) (Block, error) {
	b, deadline, err := s.pending(ctx)
	if err != nil {
		return Block{}, err
	}

	switch b.Behavior {
	case dpconsensus.BehaviorUpdateValue:
		err = s.commit(ctx, b)
	case dpconsensus.BehaviorTinyBlock:
		err = s.e.SubmitTinyBlock(ctx, dpengine.TinyBlockInput{
			Producer:   b.Producer,
			MiningTime: b.Time,
			Height:     b.Height,
		})
		if err == nil {
			s.tinies[slotKey{Pubkey: b.Producer, Deadline: deadline}]++
		}
	case dpconsensus.BehaviorNextRound, dpconsensus.BehaviorNextTerm:
		err = s.closeRound(ctx, b)
	default:
		panic(fmt.Errorf("BUG: unhandled behavior %s", b.Behavior))
	}
	if err != nil {
		return Block{}, fmt.Errorf(
			"%s by %q at height %d failed: %w",
			b.Behavior, b.Producer, b.Height, err,
		)
	}

	s.height = b.Height
	s.now = b.Time
	return b, nil
}

// nextCommand returns pubkey's next command,
// skipping tiny blocks beyond the configured count.
func (s *Simulator) nextCommand(ctx context.Context, pubkey string) (dpengine.Command, error) {
	at := s.now
	for {
		cmd, err := s.e.NextCommand(ctx, pubkey, at)
		if err != nil {
			return dpengine.Command{}, fmt.Errorf("failed to get next command for %q: %w", pubkey, err)
		}
		if cmd.Behavior != dpconsensus.BehaviorTinyBlock {
			return cmd, nil
		}
		if s.tinies[slotKey{Pubkey: pubkey, Deadline: cmd.Deadline}] < s.cfg.TinyBlocksPerSlot {
			return cmd, nil
		}
		// Done with tiny blocks; ask again once the slot is over.
		at = cmd.Deadline
	}
}

func (s *Simulator) commit(ctx context.Context, b Block) error {
	roundNumber := b.RoundNumber
	req := dpengine.PrepareCommitRequest{
		Producer:   b.Producer,
		InValue:    s.InValue(b.Producer, roundNumber),
		MiningTime: b.Time,
		Height:     b.Height,
		Rand:       s.rnd,
	}
	if c, ok := s.committed[b.Producer]; ok && c.RoundNumber+1 == roundNumber && !s.withholding[b.Producer] {
		req.PreviousInValue = c.InValue
	}
	if kr, ok := s.keyrings[b.Producer]; ok {
		req.Keyring = &kr
	}

	in, err := s.e.PrepareCommit(ctx, req)
	if err != nil {
		return err
	}
	if err := s.e.SubmitCommit(ctx, in); err != nil {
		return err
	}

	s.committed[b.Producer] = committedIn{RoundNumber: roundNumber, InValue: req.InValue}
	return nil
}

func (s *Simulator) closeRound(ctx context.Context, b Block) error {
	in, err := s.e.PrepareRoundTransition(ctx, b.Producer, b.Time, b.Height)
	if err != nil {
		return err
	}
	if err := s.e.SubmitRoundTransition(ctx, in); err != nil {
		return err
	}

	s.log.Debug(
		"Closed round",
		"round", b.RoundNumber, "closer", b.Producer, "behavior", in.Behavior,
		"height", b.Height, "time", b.Time,
	)

	// Only the current and previous rounds matter for future commands.
	for k := range s.tinies {
		if k.Deadline.Before(b.Time) {
			delete(s.tinies, k)
		}
	}
	return nil
}

// RunRounds steps until n rounds have been closed,
// returning every block produced.
func (s *Simulator) RunRounds(ctx context.Context, n int) ([]Block, error) {
	var out []Block
	for closed := 0; closed < n; {
		if err := ctx.Err(); err != nil {
			return out, context.Cause(ctx)
		}

		b, err := s.Step(ctx)
		if err != nil {
			return out, err
		}
		out = append(out, b)
		if b.Behavior.IsTransition() {
			closed++
		}
	}
	return out, nil
}
