package dpconsensus

// Behavior is the kind of consensus payload a block carries.
type Behavior uint8

//go:generate go run golang.org/x/tools/cmd/stringer -type Behavior -trimprefix=Behavior
const (
	// Zero value is invalid.
	_ Behavior = iota

	// Publish a commitment, reveal the previous pre-image,
	// and claim a next-round order.
	BehaviorUpdateValue

	// A bonus block within the producer's own slot.
	BehaviorTinyBlock

	// Close the current round and open the next one within the same term.
	BehaviorNextRound

	// Close the current round and open the first round of the next term.
	BehaviorNextTerm

	// Nothing to do until the returned time.
	BehaviorNothing
)

// IsTransition reports whether b closes the current round.
func (b Behavior) IsTransition() bool {
	return b == BehaviorNextRound || b == BehaviorNextTerm
}
