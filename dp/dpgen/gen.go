package dpgen

import (
	"bytes"
	"fmt"
	"slices"
	"time"

	"github.com/bits-and-blooms/bitset"
	"github.com/gordian-engine/gdpos/dp/dpconsensus"
	"github.com/gordian-engine/gdpos/dp/dporder"
	"github.com/gordian-engine/gdpos/internal/dpmath"
)

// GenerateFirstRound returns round 1 of term 1.
// Validators are ordered as given,
// and order k mines at start + k*MiningInterval.
func GenerateFirstRound(validators []string, start time.Time, p dpconsensus.Params) (dpconsensus.Round, error) {
	if err := checkValidators(validators); err != nil {
		return dpconsensus.Round{}, err
	}

	r := dpconsensus.Round{
		RoundNumber:        1,
		TermNumber:         1,
		ExtraBlockProducer: validators[0],
		Miners:             make(map[string]dpconsensus.MinerInRound, len(validators)),
	}
	for i, v := range validators {
		order := int32(i + 1)
		r.Miners[v] = dpconsensus.MinerInRound{
			Pubkey:             v,
			Order:              order,
			ExpectedMiningTime: slotTime(start, order, p.MiningInterval),
		}
	}
	r.RoundID = r.ComputeRoundID()
	return r, nil
}

// GenerateNext returns the successor of cur within the same term,
// as produced by closer at blockTime.
//
// Validators who mined in cur keep their final order of next round.
// The remaining orders go to validators who did not mine,
// in their original relative order, and their missed slot counter increments.
// The extra-block producer of the next round is derived
// from the first published signature in cur.
// Finally, the closer never opens the next round,
// and the next extra-block producer never holds the last slot.
func GenerateNext(
	cur dpconsensus.Round,
	blockTime time.Time,
	closer string,
	p dpconsensus.Params,
	chainStart time.Time,
) (dpconsensus.Round, error) {
	n := len(cur.Miners)
	if n == 0 {
		return dpconsensus.Round{}, dpconsensus.ErrEmptyMinerSet
	}
	if _, ok := dpmath.OrderCount(n); !ok {
		return dpconsensus.Round{}, dporder.InvalidMinerCountError{N: n}
	}
	if !cur.HasMiner(closer) {
		return dpconsensus.Round{}, dpconsensus.MinerUnknownError{Pubkey: closer, RoundNumber: cur.RoundNumber}
	}
	roundNumber, ok := dpmath.IncUint64(cur.RoundNumber)
	if !ok {
		return dpconsensus.Round{}, fmt.Errorf("round number overflow at %d", cur.RoundNumber)
	}

	next := dpconsensus.Round{
		RoundNumber: roundNumber,
		TermNumber:  cur.TermNumber,

		BlockchainAge: blockchainAge(chainStart, blockTime),

		ConfirmedIrreversibleBlockHeight:      cur.ConfirmedIrreversibleBlockHeight,
		ConfirmedIrreversibleBlockRoundNumber: cur.ConfirmedIrreversibleBlockRoundNumber,

		ExtraBlockProducerOfPreviousRound: closer,

		Miners: make(map[string]dpconsensus.MinerInRound, n),
	}

	mined := cur.MinedMiners()
	slices.SortFunc(mined, func(a, b dpconsensus.MinerInRound) int {
		return int(a.FinalOrderOfNextRound) - int(b.FinalOrderOfNextRound)
	})

	occupied := bitset.New(uint(n + 1))
	for _, m := range mined {
		o := m.FinalOrderOfNextRound
		if !dpmath.InOrderRange(o, n) {
			return dpconsensus.Round{}, dporder.OrderOutOfRangeError{Pubkey: m.Pubkey, Order: o, N: n}
		}
		if occupied.Test(uint(o)) {
			holder, _ := pubkeyWithFinalOrder(mined, o, m.Pubkey)
			return dpconsensus.Round{}, dporder.DuplicateOrderError{Order: o, Pubkeys: [2]string{holder, m.Pubkey}}
		}
		occupied.Set(uint(o))

		next.Miners[m.Pubkey] = dpconsensus.MinerInRound{
			Pubkey:             m.Pubkey,
			Order:              o,
			ExpectedMiningTime: slotTime(blockTime, o, p.MiningInterval),
			ProducedBlocks:     m.ProducedBlocks,
			MissedTimeSlots:    m.MissedTimeSlots,
		}
	}

	notMined := cur.NotMinedMiners()
	free := make([]int32, 0, len(notMined))
	for o := 1; o <= n; o++ {
		if !occupied.Test(uint(o)) {
			free = append(free, int32(o))
		}
	}
	if len(free) != len(notMined) {
		panic(fmt.Errorf(
			"BUG: %d free orders for %d validators who did not mine", len(free), len(notMined),
		))
	}
	for i, m := range notMined {
		missed, ok := dpmath.IncUint64(m.MissedTimeSlots)
		if !ok {
			return dpconsensus.Round{}, fmt.Errorf("missed time slot overflow for %q", m.Pubkey)
		}
		o := free[i]
		next.Miners[m.Pubkey] = dpconsensus.MinerInRound{
			Pubkey:             m.Pubkey,
			Order:              o,
			ExpectedMiningTime: slotTime(blockTime, o, p.MiningInterval),
			ProducedBlocks:     m.ProducedBlocks,
			MissedTimeSlots:    missed,
		}
	}

	ebpOrder, err := nextExtraBlockProducerOrder(cur)
	if err != nil {
		return dpconsensus.Round{}, err
	}
	ebp, ok := next.MinerByOrder(ebpOrder)
	if !ok {
		panic(fmt.Errorf("BUG: no validator holds extra block producer order %d", ebpOrder))
	}
	next.ExtraBlockProducer = ebp.Pubkey

	breakContinuousMining(&next, closer)

	if err := next.Validate(p.MiningInterval); err != nil {
		return dpconsensus.Round{}, fmt.Errorf("generated round %d failed post-conditions: %w", next.RoundNumber, err)
	}

	next.RoundID = next.ComputeRoundID()
	return next, nil
}

// GenerateFirstRoundOfTerm returns the first round of the term after cur's,
// as produced by closer at blockTime, for the given validator set.
//
// Validators are ordered by descending SHA-256 digest of their identity,
// and the order 1 validator is the extra-block producer.
func GenerateFirstRoundOfTerm(
	validators []string,
	cur dpconsensus.Round,
	blockTime time.Time,
	closer string,
	p dpconsensus.Params,
	chainStart time.Time,
) (dpconsensus.Round, error) {
	if err := checkValidators(validators); err != nil {
		return dpconsensus.Round{}, err
	}
	if !cur.HasMiner(closer) {
		return dpconsensus.Round{}, dpconsensus.MinerUnknownError{Pubkey: closer, RoundNumber: cur.RoundNumber}
	}
	roundNumber, ok := dpmath.IncUint64(cur.RoundNumber)
	if !ok {
		return dpconsensus.Round{}, fmt.Errorf("round number overflow at %d", cur.RoundNumber)
	}
	termNumber, ok := dpmath.IncUint64(cur.TermNumber)
	if !ok {
		return dpconsensus.Round{}, fmt.Errorf("term number overflow at %d", cur.TermNumber)
	}

	sorted := SortForNewTerm(validators)

	next := dpconsensus.Round{
		RoundNumber: roundNumber,
		TermNumber:  termNumber,

		BlockchainAge: blockchainAge(chainStart, blockTime),

		ConfirmedIrreversibleBlockHeight:      cur.ConfirmedIrreversibleBlockHeight,
		ConfirmedIrreversibleBlockRoundNumber: cur.ConfirmedIrreversibleBlockRoundNumber,

		IsMinerListJustChanged: !sameSet(validators, cur.Pubkeys()),

		ExtraBlockProducer:                sorted[0],
		ExtraBlockProducerOfPreviousRound: closer,

		Miners: make(map[string]dpconsensus.MinerInRound, len(sorted)),
	}
	for i, v := range sorted {
		o := int32(i + 1)
		next.Miners[v] = dpconsensus.MinerInRound{
			Pubkey:             v,
			Order:              o,
			ExpectedMiningTime: slotTime(blockTime, o, p.MiningInterval),
		}
	}

	next.RoundID = next.ComputeRoundID()
	return next, nil
}

// SortForNewTerm returns a copy of validators
// sorted by descending SHA-256 digest of each identity.
func SortForNewTerm(validators []string) []string {
	out := slices.Clone(validators)
	slices.SortFunc(out, func(a, b string) int {
		ha := dpconsensus.HashOf([]byte(a))
		hb := dpconsensus.HashOf([]byte(b))
		return bytes.Compare(hb[:], ha[:])
	})
	return out
}

// nextExtraBlockProducerOrder derives the order of the next extra-block producer
// from the signature of the lowest-ordered validator in cur who published one.
// Without any signature, order 1 is used.
func nextExtraBlockProducerOrder(cur dpconsensus.Round) (int32, error) {
	for _, m := range cur.SortedMiners() {
		if m.Signature.IsEmpty() {
			continue
		}
		return dporder.ComputeOrder(m.Signature, len(cur.Miners))
	}
	return 1, nil
}

// breakContinuousMining applies the anti-repetition swaps to next.
func breakContinuousMining(next *dpconsensus.Round, closer string) {
	n := int32(len(next.Miners))
	if n < 2 {
		return
	}

	first, _ := next.MinerByOrder(1)
	if first.Pubkey == closer {
		swapOrders(next, 1, 2)
	}

	if n < 3 {
		return
	}
	last, _ := next.MinerByOrder(n)
	if last.Pubkey == next.ExtraBlockProducer {
		swapOrders(next, n, n-1)
	}
}

// swapOrders exchanges the orders and expected mining times
// of the validators holding orders a and b.
func swapOrders(r *dpconsensus.Round, a, b int32) {
	ma, okA := r.MinerByOrder(a)
	mb, okB := r.MinerByOrder(b)
	if !okA || !okB {
		panic(fmt.Errorf("BUG: cannot swap orders %d and %d", a, b))
	}
	ma.Order, mb.Order = mb.Order, ma.Order
	ma.ExpectedMiningTime, mb.ExpectedMiningTime = mb.ExpectedMiningTime, ma.ExpectedMiningTime
	r.Miners[ma.Pubkey] = ma
	r.Miners[mb.Pubkey] = mb
}

func slotTime(base time.Time, order int32, interval time.Duration) time.Time {
	return base.Add(time.Duration(order) * interval)
}

func blockchainAge(chainStart, t time.Time) time.Duration {
	if chainStart.IsZero() || t.Before(chainStart) {
		return 0
	}
	return t.Sub(chainStart)
}

func pubkeyWithFinalOrder(ms []dpconsensus.MinerInRound, o int32, except string) (string, bool) {
	for _, m := range ms {
		if m.Pubkey != except && m.FinalOrderOfNextRound == o {
			return m.Pubkey, true
		}
	}
	return "", false
}

func checkValidators(validators []string) error {
	if len(validators) == 0 {
		return dpconsensus.ErrEmptyMinerSet
	}
	if _, ok := dpmath.OrderCount(len(validators)); !ok {
		return dporder.InvalidMinerCountError{N: len(validators)}
	}
	seen := make(map[string]struct{}, len(validators))
	for _, v := range validators {
		if v == "" {
			return fmt.Errorf("%w: empty validator identity", dpconsensus.ErrMalformedRound)
		}
		if _, ok := seen[v]; ok {
			return fmt.Errorf("%w: validator %q listed more than once", dpconsensus.ErrMalformedRound, v)
		}
		seen[v] = struct{}{}
	}
	return nil
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := slices.Clone(a)
	bs := slices.Clone(b)
	slices.Sort(as)
	slices.Sort(bs)
	return slices.Equal(as, bs)
}
