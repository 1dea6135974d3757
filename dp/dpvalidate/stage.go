package dpvalidate

// Stage identifies a single check within a [Pipeline].
type Stage uint8

//go:generate go run golang.org/x/tools/cmd/stringer -type Stage -trimprefix=Stage
const (
	// Zero value is invalid.
	_ Stage = iota

	// Both the trusted and the proposed validator sets are non-empty.
	StageNonEmpty

	// The producer is a member of the trusted round.
	StagePermission

	// The block time falls within a slot the producer may use for the behavior.
	StageTimeSlot

	// The producer has not exhausted its consecutive block allowance.
	StageContinuousBlocks

	// The commitment fields are present and the proposal derives from the trusted round.
	StageCommitValues

	// The revealed pre-image matches the prior commitment
	// and the signature derives from it.
	StagePreviousInValue

	// Claimed orders are in range and match an independent recomputation.
	StageOrderBounds

	// The implied irreversible height is monotonic and bounded by the chain height.
	StageLIBHeight

	// The proposed round directly follows the trusted round and carries no reveal data.
	StageRoundTerminate

	// The proposed orders are the permutation 1..N.
	StageProposedOrder

	// The proposed round equals the round generated from the trusted round.
	StageNextRoundOrder

	// A quorum of validators signalled the end of the term.
	StageTermQuorum

	// The proposed validator set is the elected one.
	StageElectedValidators
)
