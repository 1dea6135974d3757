package dpconsensus

import "time"

// Slot classifies the kind of time slot a validator occupies at an instant.
type Slot uint8

//go:generate go run golang.org/x/tools/cmd/stringer -type Slot -trimprefix=Slot
const (
	// The validator may not produce at the instant.
	SlotNone Slot = iota

	// The validator's own slot: [ExpectedMiningTime, ExpectedMiningTime+interval).
	SlotNormal

	// The one-interval gap before the first slot of the round,
	// reserved for the validator who closed the previous round.
	SlotPreRound

	// The round-closing slot of the designated extra-block producer.
	SlotExtraBlock

	// A takeover slot after the round has overrun its extra-block slot.
	SlotAbnormal
)

// SlotOf reports which kind of slot, if any, pubkey occupies at t.
// Ordinary and pre-round slots take precedence over the closing slots.
func (r Round) SlotOf(pubkey string, t time.Time, interval time.Duration) Slot {
	m, ok := r.Miners[pubkey]
	if !ok || interval <= 0 {
		return SlotNone
	}

	if r.IsInTimeSlot(pubkey, t, interval) {
		return SlotNormal
	}

	start := r.RoundStartTime()
	if pubkey == r.ExtraBlockProducerOfPreviousRound && inWindow(t, start.Add(-interval), interval) {
		return SlotPreRound
	}

	extra := r.ExtraBlockMiningTime(interval)
	if pubkey == r.ExtraBlockProducer && inWindow(t, extra, interval) {
		return SlotExtraBlock
	}

	if r.isInAbnormalSlot(m.Order, t, interval) {
		return SlotAbnormal
	}

	return SlotNone
}

// IsInTimeSlot reports whether t falls within pubkey's ordinary slot.
func (r Round) IsInTimeSlot(pubkey string, t time.Time, interval time.Duration) bool {
	m, ok := r.Miners[pubkey]
	if !ok {
		return false
	}
	return inWindow(t, m.ExpectedMiningTime, interval)
}

// IsDesignatedProducer reports whether pubkey may produce any block at t.
func (r Round) IsDesignatedProducer(pubkey string, t time.Time, interval time.Duration) bool {
	return r.SlotOf(pubkey, t, interval) != SlotNone
}

// isInAbnormalSlot reports whether the validator holding order
// owns the takeover slot containing t.
//
// Once the round overruns its extra-block slot,
// time is divided into virtual rounds of the total round length
// anchored at the round start.
// Within a virtual round, slot index k (counted in intervals) belongs to order k;
// index 0 is unassigned.
func (r Round) isInAbnormalSlot(order int32, t time.Time, interval time.Duration) bool {
	start := r.RoundStartTime()
	if start.IsZero() {
		return false
	}
	total := r.TotalRoundLength(interval)
	if t.Before(start.Add(total)) {
		return false
	}
	missed := t.Sub(start) / total
	virtualStart := start.Add(missed * total)
	idx := t.Sub(virtualStart) / interval
	return int64(idx) == int64(order)
}

// ArrangeAbnormalMiningTime returns the start of the earliest takeover slot
// for pubkey that has not yet ended at t.
// The second result is false if pubkey is not a member of r.
func (r Round) ArrangeAbnormalMiningTime(pubkey string, t time.Time, interval time.Duration) (time.Time, bool) {
	m, ok := r.Miners[pubkey]
	if !ok || interval <= 0 {
		return time.Time{}, false
	}
	start := r.RoundStartTime()
	total := r.TotalRoundLength(interval)
	offset := time.Duration(m.Order) * interval

	roundEnd := start.Add(total)
	if t.Before(roundEnd) {
		return roundEnd.Add(offset), true
	}

	missed := t.Sub(start) / total
	slot := start.Add(missed * total).Add(offset)
	if !t.Before(slot.Add(interval)) {
		slot = slot.Add(total)
	}
	return slot, true
}

func inWindow(t, start time.Time, width time.Duration) bool {
	if start.IsZero() {
		return false
	}
	return !t.Before(start) && t.Before(start.Add(width))
}
