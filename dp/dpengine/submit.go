package dpengine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gordian-engine/gdpos/dp/dpconsensus"
	"github.com/gordian-engine/gdpos/dp/dpengine/dpelink"
	"github.com/gordian-engine/gdpos/dp/dplib"
	"github.com/gordian-engine/gdpos/dp/dpsecret"
	"github.com/gordian-engine/gdpos/dp/dpstore"
	"github.com/gordian-engine/gdpos/dp/dpvalidate"
)

// CommitInput is the payload of a [dpconsensus.BehaviorUpdateValue] block.
type CommitInput struct {
	Producer string

	OutValue        dpconsensus.Hash
	Signature       dpconsensus.Hash
	PreviousInValue dpconsensus.Hash

	SupposedOrder int32
	TuneOrders    map[string]int32

	ImpliedIrreversibleBlockHeight uint64

	// Block time and height.
	MiningTime time.Time
	Height     uint64

	// Secret sharing pieces; only allowed when enabled in the chain parameters.
	EncryptedPieces map[string][]byte
	DecryptedPieces map[string][]byte

	// Pre-images of other validators' commitments in the previous round,
	// learned out of band.
	// Each must match the validator's commitment,
	// and is only recorded if the validator has not revealed one itself.
	// The producer's own pre-image belongs in PreviousInValue.
	RevealedInValues map[string]dpconsensus.Hash
}

func (in CommitInput) commitment() dpvalidate.Commitment {
	return dpvalidate.Commitment{
		OutValue:        in.OutValue,
		Signature:       in.Signature,
		PreviousInValue: in.PreviousInValue,

		SupposedOrder: in.SupposedOrder,
		TuneOrders:    in.TuneOrders,

		ImpliedIrreversibleBlockHeight: in.ImpliedIrreversibleBlockHeight,

		EncryptedPieces: in.EncryptedPieces,
		DecryptedPieces: in.DecryptedPieces,

		RevealedInValues: in.RevealedInValues,
	}
}

// TinyBlockInput is the payload of a [dpconsensus.BehaviorTinyBlock] block.
type TinyBlockInput struct {
	Producer   string
	MiningTime time.Time
	Height     uint64
}

// TransitionInput is the payload of a block closing the current round.
type TransitionInput struct {
	Producer string

	// Either [dpconsensus.BehaviorNextRound] or [dpconsensus.BehaviorNextTerm].
	Behavior dpconsensus.Behavior

	MiningTime time.Time
	Height     uint64

	// The round the producer proposes to open.
	Next dpconsensus.Round
}

// SubmitCommit validates and applies a commitment.
//
// A payload that fails validation results in a [*dpvalidate.RejectionError]
// and leaves the store unchanged.
func (e *Engine) SubmitCommit(ctx context.Context, in CommitInput) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap, err := e.loadSnapshot(ctx)
	if err != nil {
		return err
	}

	c := in.commitment()
	vc := &dpvalidate.Context{
		Base:       snap.Current,
		Previous:   snap.Previous,
		Proposed:   dpvalidate.ProposeCommit(snap.Current, in.Producer, in.MiningTime, c),
		Producer:   in.Producer,
		Behavior:   dpconsensus.BehaviorUpdateValue,
		BlockTime:  in.MiningTime,
		Height:     in.Height,
		State:      snap.State,
		Params:     e.params,
		Commitment: c,
	}
	if err := e.validate(vc); err != nil {
		return err
	}

	next := vc.Proposed

	if snap.Previous != nil {
		lib, ok := dplib.Calculate(*snap.Previous, next, next.ConfirmedIrreversibleBlockHeight)
		if ok {
			next.ConfirmedIrreversibleBlockHeight = lib
			next.ConfirmedIrreversibleBlockRoundNumber = next.RoundNumber - 1
			e.log.Info(
				"Irreversible block advanced",
				"height", lib, "round", next.RoundNumber,
			)
		}
	}

	state, err := snap.State.AfterBlock(in.Producer, in.Height)
	if err != nil {
		return err
	}

	if err := e.rs.Commit(ctx, dpstore.Commit{Current: next, State: state}); err != nil {
		return fmt.Errorf("failed to commit round %d: %w", next.RoundNumber, err)
	}

	e.log.Debug(
		"Applied commitment",
		"producer", in.Producer, "round", next.RoundNumber, "height", in.Height,
		"supposed_order", in.SupposedOrder, "revealed", len(in.RevealedInValues),
	)
	e.mc.Accepted(dpconsensus.BehaviorUpdateValue)
	e.mc.SetState(next, state)
	return nil
}

// SubmitTinyBlock validates and applies a tiny block.
func (e *Engine) SubmitTinyBlock(ctx context.Context, in TinyBlockInput) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap, err := e.loadSnapshot(ctx)
	if err != nil {
		return err
	}

	vc := &dpvalidate.Context{
		Base:      snap.Current,
		Previous:  snap.Previous,
		Proposed:  dpvalidate.ProposeTinyBlock(snap.Current, in.Producer, in.MiningTime),
		Producer:  in.Producer,
		Behavior:  dpconsensus.BehaviorTinyBlock,
		BlockTime: in.MiningTime,
		Height:    in.Height,
		State:     snap.State,
		Params:    e.params,
	}
	if err := e.validate(vc); err != nil {
		return err
	}

	state, err := snap.State.AfterBlock(in.Producer, in.Height)
	if err != nil {
		return err
	}

	if err := e.rs.Commit(ctx, dpstore.Commit{Current: vc.Proposed, State: state}); err != nil {
		return fmt.Errorf("failed to commit round %d: %w", vc.Proposed.RoundNumber, err)
	}

	e.mc.Accepted(dpconsensus.BehaviorTinyBlock)
	e.mc.SetState(vc.Proposed, state)
	return nil
}

// SubmitRoundTransition validates a round closure and,
// if valid, retires the current round and opens the proposed one.
func (e *Engine) SubmitRoundTransition(ctx context.Context, in TransitionInput) error {
	if !in.Behavior.IsTransition() {
		return fmt.Errorf("behavior %s does not close a round", in.Behavior)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	snap, err := e.loadSnapshot(ctx)
	if err != nil {
		return err
	}

	vc := &dpvalidate.Context{
		Base:      snap.Current,
		Previous:  snap.Previous,
		Proposed:  in.Next.Clone(),
		Producer:  in.Producer,
		Behavior:  in.Behavior,
		BlockTime: in.MiningTime,
		Height:    in.Height,
		State:     snap.State,
		Params:    e.params,
	}
	if in.Behavior == dpconsensus.BehaviorNextTerm {
		elected, err := e.electedValidators(ctx, snap.Current)
		if err != nil {
			return err
		}
		vc.ElectedValidators = elected
	}
	if err := e.validate(vc); err != nil {
		return err
	}

	retiring := snap.Current.Clone()
	if e.params.SecretSharingEnabled && snap.Previous != nil {
		revealed := dpsecret.RevealFromPieces(ctx, &retiring, *snap.Previous)
		if len(revealed) > 0 {
			e.log.Info(
				"Reconstructed withheld in values",
				"round", snap.Previous.RoundNumber, "validators", revealed,
			)
			e.mc.Reconstructed(len(revealed))
		}
	}

	state, err := snap.State.AfterBlock(in.Producer, in.Height)
	if err != nil {
		return err
	}
	state = state.EnterRound(vc.Proposed)

	if err := e.rs.Commit(ctx, dpstore.Commit{
		Retiring: &retiring,
		Current:  vc.Proposed,
		State:    state,
	}); err != nil {
		return fmt.Errorf("failed to commit transition to round %d: %w", vc.Proposed.RoundNumber, err)
	}

	e.log.Info(
		"Entered round",
		"round", vc.Proposed.RoundNumber, "term", vc.Proposed.TermNumber,
		"closer", in.Producer, "behavior", in.Behavior,
		"extra_block_producer", vc.Proposed.ExtraBlockProducer,
	)
	e.mc.Accepted(in.Behavior)
	e.mc.SetState(vc.Proposed, state)

	e.distributeRewards(dpelink.RoundClosure{
		Retired:  retiring,
		Next:     vc.Proposed.Clone(),
		Behavior: in.Behavior,
		Height:   in.Height,
	})
	return nil
}

// validate runs the pipeline for vc, recording and logging rejections.
func (e *Engine) validate(vc *dpvalidate.Context) error {
	err := dpvalidate.Validate(vc)
	if err == nil {
		return nil
	}

	var re *dpvalidate.RejectionError
	if errors.As(err, &re) {
		e.log.Info(
			"Rejected payload",
			"producer", vc.Producer, "behavior", vc.Behavior,
			"round", vc.Base.RoundNumber, "height", vc.Height,
			"stage", re.Stage, "reason", re.Reason,
		)
		e.mc.Rejected(vc.Behavior, re.Stage.String())
	}
	return err
}

// electedValidators returns the validators of the term following cur's.
func (e *Engine) electedValidators(ctx context.Context, cur dpconsensus.Round) ([]string, error) {
	if e.ep == nil {
		return cur.Pubkeys(), nil
	}
	elected, err := e.ep.ElectedValidators(ctx, cur.TermNumber+1)
	if err != nil {
		return nil, fmt.Errorf("failed to get elected validators for term %d: %w", cur.TermNumber+1, err)
	}
	return elected, nil
}

func (e *Engine) distributeRewards(c dpelink.RoundClosure) {
	if e.rd == nil {
		return
	}

	e.bgWG.Add(1)
	go func() {
		defer e.bgWG.Done()
		if err := e.rd.DistributeRewards(e.bgCtx, c); err != nil {
			e.log.Warn(
				"Failed to distribute rewards",
				"round", c.Retired.RoundNumber, "err", err,
			)
		}
	}()
}
