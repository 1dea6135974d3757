package dpengine

import (
	"context"
	"time"

	"github.com/gordian-engine/gdpos/dp/dpconsensus"
)

// Command tells a validator what to produce next, and when.
type Command struct {
	Behavior dpconsensus.Behavior

	// Earliest time at which the block may be produced.
	// Zero for [dpconsensus.BehaviorNothing].
	MiningTime time.Time

	// End of the slot that MiningTime falls in.
	// Zero for [dpconsensus.BehaviorNothing].
	Deadline time.Time
}

// NextCommand returns the next action for pubkey as of now.
//
// A validator who has not committed in the current round
// is told to do so in its own slot.
// Once committed, it may produce tiny blocks for the rest of its slot
// until it reaches the consecutive block limit.
// Otherwise it is directed to the next slot in which it may close the round:
// the extra-block slot if it holds it and is below the limit,
// or its next takeover slot.
func (e *Engine) NextCommand(ctx context.Context, pubkey string, now time.Time) (Command, error) {
	e.mu.RLock()
	snap, err := e.loadSnapshot(ctx)
	e.mu.RUnlock()
	if err != nil {
		return Command{}, err
	}

	cur := snap.Current
	m, ok := cur.Miners[pubkey]
	if !ok {
		return Command{Behavior: dpconsensus.BehaviorNothing}, nil
	}

	iv := cur.MiningInterval(e.params.MiningInterval)
	slotEnd := m.ExpectedMiningTime.Add(iv)

	if !m.HasMined() {
		start := cur.RoundStartTime()
		if pubkey == cur.ExtraBlockProducerOfPreviousRound &&
			!now.Before(start.Add(-iv)) && now.Before(start) &&
			e.mayContinue(snap, pubkey) {
			if c, ok := e.tinyCommand(m, now, start); ok {
				return c, nil
			}
		}
		if now.Before(slotEnd) {
			return Command{
				Behavior:   dpconsensus.BehaviorUpdateValue,
				MiningTime: latest(now, m.ExpectedMiningTime),
				Deadline:   slotEnd,
			}, nil
		}
	} else if now.Before(slotEnd) && e.mayContinue(snap, pubkey) {
		if c, ok := e.tinyCommand(m, now, slotEnd); ok {
			return c, nil
		}
	}

	b := dpconsensus.BehaviorNextRound
	if cur.NeedToChangeTerm(snap.State.ChainStart, e.params.TermPeriod) {
		b = dpconsensus.BehaviorNextTerm
	}

	// A producer at the consecutive block limit leaves the close
	// to whoever takes over next.
	extra := cur.ExtraBlockMiningTime(iv)
	if pubkey == cur.ExtraBlockProducer && now.Before(extra.Add(iv)) && e.mayContinue(snap, pubkey) {
		return Command{
			Behavior:   b,
			MiningTime: latest(now, extra),
			Deadline:   extra.Add(iv),
		}, nil
	}

	at, _ := cur.ArrangeAbnormalMiningTime(pubkey, now, iv)
	return Command{
		Behavior:   b,
		MiningTime: latest(now, at),
		Deadline:   at.Add(iv),
	}, nil
}

// mayContinue reports whether pubkey is below the consecutive block limit.
func (e *Engine) mayContinue(snap snapshot, pubkey string) bool {
	if len(snap.Current.Miners) == 1 || snap.State.LatestProducer != pubkey {
		return true
	}
	return snap.State.ConsecutiveBlocks < dpconsensus.MaximumBlocksCount(snap.Current, snap.Previous, e.params)
}

// tinyCommand returns a tiny block command before deadline,
// or false if the minimum spacing leaves no room for one.
func (e *Engine) tinyCommand(m dpconsensus.MinerInRound, now, deadline time.Time) (Command, bool) {
	at := now
	if last, ok := m.LatestActualMiningTime(); ok {
		at = latest(at, last.Add(e.params.TinyBlockMinInterval))
	}
	if !at.Before(deadline) {
		return Command{}, false
	}
	return Command{
		Behavior:   dpconsensus.BehaviorTinyBlock,
		MiningTime: at,
		Deadline:   deadline,
	}, true
}

func latest(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
