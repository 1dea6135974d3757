package dpengine

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/gordian-engine/gdpos/dp/dpconsensus"
	"github.com/gordian-engine/gdpos/dp/dpgen"
	"github.com/gordian-engine/gdpos/dp/dporder"
	"github.com/gordian-engine/gdpos/dp/dpsecret"
)

// PrepareCommitRequest holds what a validator needs
// to build an honest commitment with [Engine.PrepareCommit].
type PrepareCommitRequest struct {
	Producer string

	// Fresh pre-image for the current round.
	InValue dpconsensus.Hash

	// Pre-image committed in the previous round, if any.
	PreviousInValue dpconsensus.Hash

	MiningTime time.Time
	Height     uint64

	// Used to deal and open pieces when secret sharing is enabled.
	Keyring *dpsecret.Keyring

	// Randomness for dealing pieces; crypto/rand when nil.
	Rand io.Reader
}

// PrepareCommit returns the honest commitment for req against the current round.
// The result is ready for [Engine.SubmitCommit].
func (e *Engine) PrepareCommit(ctx context.Context, req PrepareCommitRequest) (CommitInput, error) {
	e.mu.RLock()
	snap, err := e.loadSnapshot(ctx)
	e.mu.RUnlock()
	if err != nil {
		return CommitInput{}, err
	}

	cur := snap.Current
	m, ok := cur.Miners[req.Producer]
	if !ok {
		return CommitInput{}, dpconsensus.MinerUnknownError{Pubkey: req.Producer, RoundNumber: cur.RoundNumber}
	}
	if req.InValue.IsEmpty() {
		return CommitInput{}, fmt.Errorf("empty in value for %q", req.Producer)
	}

	in := CommitInput{
		Producer:        req.Producer,
		OutValue:        dpconsensus.HashOf(req.InValue[:]),
		PreviousInValue: req.PreviousInValue,
		MiningTime:      req.MiningTime,
		Height:          req.Height,
	}

	if dpconsensus.SignatureIsDerived(cur, snap.Previous) {
		in.Signature = dpconsensus.CalculateSignature(*snap.Previous, req.PreviousInValue)
	} else {
		in.Signature = dpconsensus.CalculateSignature(cur, req.InValue)
	}

	expected := cur.Clone()
	supposed, err := dporder.Assign(&expected, req.Producer, in.Signature)
	if err != nil {
		return CommitInput{}, fmt.Errorf("failed to assign order: %w", err)
	}
	in.SupposedOrder = supposed
	in.TuneOrders = dporder.TuneOrders(expected)

	// The claim may never fall below earlier claims.
	in.ImpliedIrreversibleBlockHeight = max(req.Height, m.ImpliedIrreversibleBlockHeight)
	if snap.Previous != nil {
		if pm, ok := snap.Previous.Miners[req.Producer]; ok {
			in.ImpliedIrreversibleBlockHeight = max(in.ImpliedIrreversibleBlockHeight, pm.ImpliedIrreversibleBlockHeight)
		}
	}

	if e.params.SecretSharingEnabled && req.Keyring != nil {
		pieces, err := dpsecret.DealPieces(ctx, cur, req.InValue, *req.Keyring, req.Rand)
		if err != nil {
			return CommitInput{}, fmt.Errorf("failed to deal pieces: %w", err)
		}
		in.EncryptedPieces = pieces

		if snap.Previous != nil {
			opened := dpsecret.OpenPieces(*snap.Previous, *req.Keyring)
			for dealer := range opened {
				if !cur.HasMiner(dealer) {
					delete(opened, dealer)
				}
			}
			if len(opened) > 0 {
				in.DecryptedPieces = opened
			}
		}
	}

	return in, nil
}

// PrepareRoundTransition returns the honest closure of the current round
// by producer at t, which is ready for [Engine.SubmitRoundTransition].
//
// The term changes when a quorum of validators has signalled the end of the term.
func (e *Engine) PrepareRoundTransition(
	ctx context.Context, producer string, t time.Time, height uint64,
) (TransitionInput, error) {
	e.mu.RLock()
	snap, err := e.loadSnapshot(ctx)
	e.mu.RUnlock()
	if err != nil {
		return TransitionInput{}, err
	}

	cur := snap.Current
	in := TransitionInput{
		Producer:   producer,
		MiningTime: t,
		Height:     height,
	}

	if cur.NeedToChangeTerm(snap.State.ChainStart, e.params.TermPeriod) {
		elected, err := e.electedValidators(ctx, cur)
		if err != nil {
			return TransitionInput{}, err
		}
		next, err := dpgen.GenerateFirstRoundOfTerm(elected, cur, t, producer, e.params, snap.State.ChainStart)
		if err != nil {
			return TransitionInput{}, fmt.Errorf("failed to generate first round of term %d: %w", cur.TermNumber+1, err)
		}
		in.Behavior = dpconsensus.BehaviorNextTerm
		in.Next = next
		return in, nil
	}

	next, err := dpgen.GenerateNext(cur, t, producer, e.params, snap.State.ChainStart)
	if err != nil {
		return TransitionInput{}, fmt.Errorf("failed to generate round %d: %w", cur.RoundNumber+1, err)
	}
	in.Behavior = dpconsensus.BehaviorNextRound
	in.Next = next
	return in, nil
}
