package dpvalidate

import (
	"maps"
	"math"
	"reflect"
	"slices"

	"github.com/gordian-engine/gdpos/dp/dpconsensus"
	"github.com/gordian-engine/gdpos/dp/dpgen"
	"github.com/gordian-engine/gdpos/dp/dporder"
	"github.com/gordian-engine/gdpos/dp/dpsecret"
	"github.com/gordian-engine/gdpos/internal/dpmath"
)

func checkNonEmpty(c *Context) error {
	if c.Base.IsEmpty() {
		return reject(StageNonEmpty, "trusted round %d has no validators", c.Base.RoundNumber)
	}
	if c.Proposed.IsEmpty() {
		return reject(StageNonEmpty, "proposed round has no validators")
	}
	return nil
}

func checkPermission(c *Context) error {
	if c.Producer == "" {
		return reject(StagePermission, "missing producer identity")
	}
	if !c.Base.HasMiner(c.Producer) {
		return reject(StagePermission, "%q is not a validator of round %d", c.Producer, c.Base.RoundNumber)
	}
	return nil
}

func checkTimeSlot(c *Context) error {
	slot := c.Base.SlotOf(c.Producer, c.BlockTime, c.interval())

	switch c.Behavior {
	case dpconsensus.BehaviorUpdateValue:
		if slot != dpconsensus.SlotNormal {
			return reject(StageTimeSlot, "%q is outside its time slot at %s (slot %s)", c.Producer, c.BlockTime, slot)
		}

	case dpconsensus.BehaviorTinyBlock:
		m, ok := c.Base.Miners[c.Producer]
		if !ok {
			return reject(StageTimeSlot, "%q missing from trusted round", c.Producer)
		}
		switch slot {
		case dpconsensus.SlotNormal:
			if !m.HasMined() {
				return reject(StageTimeSlot, "%q must publish its commitment before tiny blocks", c.Producer)
			}
		case dpconsensus.SlotPreRound:
			// Allowed for the closer of the previous round.
		default:
			return reject(StageTimeSlot, "%q may not produce a tiny block at %s (slot %s)", c.Producer, c.BlockTime, slot)
		}
		if last, ok := m.LatestActualMiningTime(); ok && c.BlockTime.Sub(last) < c.Params.TinyBlockMinInterval {
			return reject(
				StageTimeSlot, "tiny block at %s is less than %s after previous block at %s",
				c.BlockTime, c.Params.TinyBlockMinInterval, last,
			)
		}
		if m.ProducedBlocks == math.MaxUint64 {
			return reject(StageTimeSlot, "produced block counter exhausted for %q", c.Producer)
		}

	case dpconsensus.BehaviorNextRound, dpconsensus.BehaviorNextTerm:
		if slot != dpconsensus.SlotExtraBlock && slot != dpconsensus.SlotAbnormal {
			return reject(
				StageTimeSlot, "%q may not close round %d at %s (slot %s)",
				c.Producer, c.Base.RoundNumber, c.BlockTime, slot,
			)
		}

	default:
		return reject(StageTimeSlot, "unexpected behavior %s", c.Behavior)
	}
	return nil
}

func checkContinuousBlocks(c *Context) error {
	if len(c.Base.Miners) == 1 {
		return nil
	}
	limit := dpconsensus.MaximumBlocksCount(c.Base, c.Previous, c.Params)
	if c.State.LatestProducer == c.Producer && c.State.ConsecutiveBlocks >= limit {
		return reject(
			StageContinuousBlocks, "%q already produced %d consecutive blocks (limit %d)",
			c.Producer, c.State.ConsecutiveBlocks, limit,
		)
	}
	return nil
}

func checkCommitValues(c *Context) error {
	bm, ok := c.Base.Miners[c.Producer]
	if !ok {
		return reject(StageCommitValues, "%q missing from trusted round", c.Producer)
	}
	if bm.HasMined() {
		return reject(StageCommitValues, "%q already committed in round %d", c.Producer, c.Base.RoundNumber)
	}
	if c.Commitment.OutValue.IsEmpty() {
		return reject(StageCommitValues, "empty out value")
	}
	if c.Commitment.Signature.IsEmpty() {
		return reject(StageCommitValues, "empty signature")
	}

	pm, ok := c.Proposed.Miners[c.Producer]
	if !ok {
		return reject(StageCommitValues, "%q missing from proposed round", c.Producer)
	}
	if pm.OutValue != c.Commitment.OutValue || pm.Signature != c.Commitment.Signature {
		return reject(StageCommitValues, "proposed round does not carry the committed values")
	}
	if want, ok := dpmath.IncUint64(bm.ProducedBlocks); !ok || pm.ProducedBlocks != want {
		return reject(StageCommitValues, "produced block counter for %q does not advance by one", c.Producer)
	}

	if err := checkPieces(c); err != nil {
		return err
	}

	// Apart from the producer's own entry,
	// the proposal may only differ from the base in final orders,
	// in the pieces the producer decrypted,
	// and in previous in values the producer revealed into empty slots.
	if len(c.Proposed.Miners) != len(c.Base.Miners) {
		return reject(
			StageCommitValues, "proposed round has %d validators, trusted round has %d",
			len(c.Proposed.Miners), len(c.Base.Miners),
		)
	}
	for k, b := range c.Base.Miners {
		if k == c.Producer {
			continue
		}
		p, ok := c.Proposed.Miners[k]
		if !ok {
			return reject(StageCommitValues, "validator %q missing from proposed round", k)
		}
		if rev, ok := c.Commitment.RevealedInValues[k]; ok && b.PreviousInValue.IsEmpty() && p.PreviousInValue == rev {
			// Checked against the previous round by the PreviousInValue stage.
			p.PreviousInValue = b.PreviousInValue
		}
		if !reflect.DeepEqual(normalizeOther(b, c.Producer), normalizeOther(p, c.Producer)) {
			return reject(StageCommitValues, "proposal modifies entry of %q", k)
		}
	}
	return nil
}

func checkPieces(c *Context) error {
	enc := c.Commitment.EncryptedPieces
	dec := c.Commitment.DecryptedPieces
	if !c.Params.SecretSharingEnabled {
		if len(enc) > 0 || len(dec) > 0 {
			return reject(StageCommitValues, "secret sharing pieces supplied while secret sharing is disabled")
		}
		return nil
	}

	for k, v := range enc {
		if !c.Base.HasMiner(k) {
			return reject(StageCommitValues, "encrypted piece for unknown validator %q", k)
		}
		if len(v) != dpsecret.SealedShareSize {
			return reject(StageCommitValues, "encrypted piece for %q has size %d, want %d", k, len(v), dpsecret.SealedShareSize)
		}
	}
	for dealer, v := range dec {
		if dealer == c.Producer {
			return reject(StageCommitValues, "decrypted piece from the producer itself")
		}
		if !c.Base.HasMiner(dealer) {
			return reject(StageCommitValues, "decrypted piece from unknown dealer %q", dealer)
		}
		if len(v) != dpsecret.ShareSize {
			return reject(StageCommitValues, "decrypted piece from %q has size %d, want %d", dealer, len(v), dpsecret.ShareSize)
		}
	}
	return nil
}

// normalizeOther clears the fields a commit by producer may change
// in another validator's entry.
func normalizeOther(m dpconsensus.MinerInRound, producer string) dpconsensus.MinerInRound {
	m = m.Clone()
	m.FinalOrderOfNextRound = 0
	delete(m.DecryptedPieces, producer)
	if len(m.DecryptedPieces) == 0 {
		m.DecryptedPieces = nil
	}
	return m
}

func checkPreviousInValue(c *Context) error {
	prevIn := c.Commitment.PreviousInValue

	if !prevIn.IsEmpty() {
		if c.Previous == nil {
			return reject(StagePreviousInValue, "revealed a previous in value without a previous round")
		}
		pm, ok := c.Previous.Miners[c.Producer]
		if !ok || pm.OutValue.IsEmpty() {
			return reject(
				StagePreviousInValue, "%q committed nothing in round %d to reveal",
				c.Producer, c.Previous.RoundNumber,
			)
		}
		if dpconsensus.HashOf(prevIn[:]) != pm.OutValue {
			return reject(
				StagePreviousInValue, "previous in value does not match out value of %q in round %d",
				c.Producer, c.Previous.RoundNumber,
			)
		}
	}

	if dpconsensus.SignatureIsDerived(c.Base, c.Previous) {
		want := dpconsensus.CalculateSignature(*c.Previous, prevIn)
		if c.Commitment.Signature != want {
			return reject(StagePreviousInValue, "signature is not derived from the revealed previous in value")
		}
	}

	pm, ok := c.Proposed.Miners[c.Producer]
	if !ok {
		return reject(StagePreviousInValue, "%q missing from proposed round", c.Producer)
	}
	if pm.PreviousInValue != prevIn {
		return reject(StagePreviousInValue, "proposed round does not carry the revealed previous in value")
	}

	return checkRevealedInValues(c)
}

// checkRevealedInValues verifies the pre-images the producer reveals
// on behalf of other validators.
func checkRevealedInValues(c *Context) error {
	for k, in := range c.Commitment.RevealedInValues {
		if k == c.Producer {
			return reject(StagePreviousInValue, "%q may only reveal its own pre-image as its previous in value", k)
		}
		if in.IsEmpty() {
			return reject(StagePreviousInValue, "empty pre-image revealed for %q", k)
		}
		if c.Previous == nil {
			return reject(StagePreviousInValue, "revealed pre-image of %q without a previous round", k)
		}
		pm, ok := c.Previous.Miners[k]
		if !ok || pm.OutValue.IsEmpty() {
			return reject(StagePreviousInValue, "%q committed nothing in round %d to reveal", k, c.Previous.RoundNumber)
		}
		if dpconsensus.HashOf(in[:]) != pm.OutValue {
			return reject(
				StagePreviousInValue, "revealed pre-image of %q does not match its out value in round %d",
				k, c.Previous.RoundNumber,
			)
		}

		bm, ok := c.Base.Miners[k]
		if !ok {
			return rejectErr(StagePreviousInValue, dpconsensus.MinerUnknownError{Pubkey: k, RoundNumber: c.Base.RoundNumber})
		}
		want := bm.PreviousInValue
		if want.IsEmpty() {
			want = in
		}
		if c.Proposed.Miners[k].PreviousInValue != want {
			return reject(StagePreviousInValue, "proposed round does not carry the revealed pre-image of %q", k)
		}
	}
	return nil
}

func checkOrderBounds(c *Context) error {
	n := len(c.Base.Miners)
	supposed := c.Commitment.SupposedOrder
	if !dpmath.InOrderRange(supposed, n) {
		return rejectErr(StageOrderBounds, dporder.OrderOutOfRangeError{Pubkey: c.Producer, Order: supposed, N: n})
	}

	want, err := dporder.ComputeOrder(c.Commitment.Signature, n)
	if err != nil {
		return rejectErr(StageOrderBounds, err)
	}
	if supposed != want {
		return reject(StageOrderBounds, "supposed order %d does not match signature order %d", supposed, want)
	}

	if _, ok := c.Commitment.TuneOrders[c.Producer]; ok {
		return reject(StageOrderBounds, "tune orders name the producer %q", c.Producer)
	}
	tuned := c.Base.Clone()
	if err := dporder.ApplyTuneOrders(&tuned, c.Commitment.TuneOrders); err != nil {
		return rejectErr(StageOrderBounds, err)
	}

	pm, ok := c.Proposed.Miners[c.Producer]
	if !ok {
		return reject(StageOrderBounds, "%q missing from proposed round", c.Producer)
	}
	if pm.SupposedOrderOfNextRound != supposed || pm.FinalOrderOfNextRound != supposed {
		return reject(StageOrderBounds, "proposed round does not assign the supposed order to %q", c.Producer)
	}

	if err := dporder.CheckFinalOrders(c.Proposed); err != nil {
		return rejectErr(StageOrderBounds, err)
	}

	// Recompute the assignment from the trusted round alone.
	expected := c.Base.Clone()
	if _, err := dporder.Assign(&expected, c.Producer, c.Commitment.Signature); err != nil {
		return rejectErr(StageOrderBounds, err)
	}
	if !maps.Equal(dporder.TuneOrders(expected), nonNil(c.Commitment.TuneOrders)) {
		return reject(StageOrderBounds, "tune orders do not match collision resolution")
	}
	for k, em := range expected.Miners {
		pm, ok := c.Proposed.Miners[k]
		if !ok {
			return reject(StageOrderBounds, "validator %q missing from proposed round", k)
		}
		if pm.FinalOrderOfNextRound != em.FinalOrderOfNextRound {
			return reject(
				StageOrderBounds, "final order of %q is %d, expected %d",
				k, pm.FinalOrderOfNextRound, em.FinalOrderOfNextRound,
			)
		}
	}
	return nil
}

func nonNil(m map[string]int32) map[string]int32 {
	if m == nil {
		return map[string]int32{}
	}
	return m
}

func checkLIBHeight(c *Context) error {
	claim := c.Commitment.ImpliedIrreversibleBlockHeight
	if claim > c.Height {
		return reject(StageLIBHeight, "implied irreversible height %d exceeds block height %d", claim, c.Height)
	}

	if bm, ok := c.Base.Miners[c.Producer]; ok && claim < bm.ImpliedIrreversibleBlockHeight {
		return reject(
			StageLIBHeight, "implied irreversible height %d below %d already reported in round %d",
			claim, bm.ImpliedIrreversibleBlockHeight, c.Base.RoundNumber,
		)
	}
	if c.Previous != nil {
		if pm, ok := c.Previous.Miners[c.Producer]; ok && claim < pm.ImpliedIrreversibleBlockHeight {
			return reject(
				StageLIBHeight, "implied irreversible height %d below %d reported in round %d",
				claim, pm.ImpliedIrreversibleBlockHeight, c.Previous.RoundNumber,
			)
		}
	}
	return nil
}

func checkRoundTerminate(c *Context) error {
	p := &c.Proposed

	wantRound, ok := dpmath.IncUint64(c.Base.RoundNumber)
	if !ok {
		return reject(StageRoundTerminate, "round number overflow at %d", c.Base.RoundNumber)
	}
	if p.RoundNumber != wantRound {
		return reject(StageRoundTerminate, "proposed round number %d, expected %d", p.RoundNumber, wantRound)
	}

	wantTerm := c.Base.TermNumber
	if c.Behavior == dpconsensus.BehaviorNextTerm {
		wantTerm, ok = dpmath.IncUint64(c.Base.TermNumber)
		if !ok {
			return reject(StageRoundTerminate, "term number overflow at %d", c.Base.TermNumber)
		}
	}
	if p.TermNumber != wantTerm {
		return reject(StageRoundTerminate, "proposed term number %d, expected %d", p.TermNumber, wantTerm)
	}

	for k, m := range p.Miners {
		if k != m.Pubkey {
			return reject(StageRoundTerminate, "entry keyed %q has pubkey %q", k, m.Pubkey)
		}
		if !m.OutValue.IsEmpty() || !m.Signature.IsEmpty() || !m.PreviousInValue.IsEmpty() {
			return reject(StageRoundTerminate, "new round carries commitment values for %q", k)
		}
		if m.SupposedOrderOfNextRound != 0 || m.FinalOrderOfNextRound != 0 {
			return reject(StageRoundTerminate, "new round carries next-round orders for %q", k)
		}
		if len(m.ActualMiningTimes) > 0 || m.ImpliedIrreversibleBlockHeight != 0 || m.ProducedTinyBlocks != 0 {
			return reject(StageRoundTerminate, "new round carries mining activity for %q", k)
		}
		if len(m.EncryptedPieces) > 0 || len(m.DecryptedPieces) > 0 {
			return reject(StageRoundTerminate, "new round carries secret pieces for %q", k)
		}
	}

	if p.ExtraBlockProducerOfPreviousRound != c.Producer {
		return reject(
			StageRoundTerminate, "previous extra block producer is %q, but the round was closed by %q",
			p.ExtraBlockProducerOfPreviousRound, c.Producer,
		)
	}
	if !p.HasMiner(p.ExtraBlockProducer) {
		return reject(StageRoundTerminate, "extra block producer %q is not a validator of the new round", p.ExtraBlockProducer)
	}
	if p.ConfirmedIrreversibleBlockHeight != c.Base.ConfirmedIrreversibleBlockHeight ||
		p.ConfirmedIrreversibleBlockRoundNumber != c.Base.ConfirmedIrreversibleBlockRoundNumber {
		return reject(StageRoundTerminate, "new round changes the confirmed irreversible block")
	}

	if err := p.CheckTimeSlots(c.interval()); err != nil {
		return rejectErr(StageRoundTerminate, err)
	}
	if want := c.BlockTime.Add(c.interval()); !p.RoundStartTime().Equal(want) {
		return reject(StageRoundTerminate, "new round starts at %s, expected %s", p.RoundStartTime(), want)
	}
	if p.RoundID != p.ComputeRoundID() {
		return reject(StageRoundTerminate, "round id does not match schedule")
	}
	return nil
}

func checkProposedOrder(c *Context) error {
	if err := c.Proposed.CheckOrderPermutation(); err != nil {
		return rejectErr(StageProposedOrder, err)
	}
	return nil
}

func checkNextRoundOrder(c *Context) error {
	// The final orders of the validators who mined
	// must map them one-to-one into [1, N].
	n := len(c.Base.Miners)
	seen := make(map[int32]string, n)
	for _, m := range c.Base.MinedMiners() {
		o := m.FinalOrderOfNextRound
		if !dpmath.InOrderRange(o, n) {
			return rejectErr(StageNextRoundOrder, dporder.OrderOutOfRangeError{Pubkey: m.Pubkey, Order: o, N: n})
		}
		if other, ok := seen[o]; ok {
			return rejectErr(StageNextRoundOrder, dporder.DuplicateOrderError{Order: o, Pubkeys: [2]string{other, m.Pubkey}})
		}
		seen[o] = m.Pubkey
	}

	expected, err := dpgen.GenerateNext(c.Base, c.BlockTime, c.Producer, c.Params, c.State.ChainStart)
	if err != nil {
		return rejectErr(StageNextRoundOrder, err)
	}
	c.ExpectedNext = &expected

	if d := DiffRounds(expected, c.Proposed); d != "" {
		return reject(StageNextRoundOrder, "proposed round differs from generated round: %s", d)
	}
	return nil
}

func checkTermQuorum(c *Context) error {
	if !c.Base.NeedToChangeTerm(c.State.ChainStart, c.Params.TermPeriod) {
		return reject(
			StageTermQuorum, "fewer than %d validators signalled the end of term %d",
			dpconsensus.MinersCountOfConsent(len(c.Base.Miners)), c.Base.TermNumber,
		)
	}
	return nil
}

func checkElectedValidators(c *Context) error {
	if len(c.ElectedValidators) == 0 {
		return reject(StageElectedValidators, "no elected validators for term %d", c.Proposed.TermNumber)
	}
	elected := slices.Clone(c.ElectedValidators)
	slices.Sort(elected)
	proposed := make([]string, 0, len(c.Proposed.Miners))
	for k := range c.Proposed.Miners {
		proposed = append(proposed, k)
	}
	slices.Sort(proposed)
	if !slices.Equal(elected, proposed) {
		return reject(StageElectedValidators, "proposed validators %v differ from elected validators %v", proposed, elected)
	}

	expected, err := dpgen.GenerateFirstRoundOfTerm(
		c.ElectedValidators, c.Base, c.BlockTime, c.Producer, c.Params, c.State.ChainStart,
	)
	if err != nil {
		return rejectErr(StageElectedValidators, err)
	}
	c.ExpectedNext = &expected

	if d := DiffRounds(expected, c.Proposed); d != "" {
		return reject(StageElectedValidators, "proposed round differs from generated round: %s", d)
	}
	return nil
}
