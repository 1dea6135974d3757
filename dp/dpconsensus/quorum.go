package dpconsensus

import "time"

// MinersCountOfConsent is the Byzantine quorum for n validators, ceil(2n/3).
func MinersCountOfConsent(n int) int {
	if n <= 0 {
		return 0
	}
	return (2*n + 2) / 3
}

// IsTimeToChangeTerm reports whether t belongs to a later term period
// than termNumber, with periods measured from chainStart.
func IsTimeToChangeTerm(chainStart, t time.Time, termNumber uint64, period time.Duration) bool {
	if period <= 0 || termNumber == 0 || t.Before(chainStart) {
		return false
	}
	elapsed := uint64(t.Sub(chainStart) / period)
	return elapsed != termNumber-1
}

// NeedToChangeTerm reports whether at least a quorum of validators in r
// last mined at a time that falls in a later term period.
func (r Round) NeedToChangeTerm(chainStart time.Time, period time.Duration) bool {
	n := 0
	for _, m := range r.Miners {
		last, ok := m.LatestActualMiningTime()
		if !ok {
			continue
		}
		if IsTimeToChangeTerm(chainStart, last, r.TermNumber, period) {
			n++
		}
	}
	return n > 0 && n >= MinersCountOfConsent(len(r.Miners))
}
