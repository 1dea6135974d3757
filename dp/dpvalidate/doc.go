// Package dpvalidate checks proposed consensus payloads
// before they are applied to the round store.
//
// Every check runs over a [Context] that separates
// the trusted base round, loaded from the store,
// from the untrusted proposed round, built from the block.
// The proposed round is always a separate deep copy;
// checks compare it against the base and never the other way around.
//
// A [Pipeline] is the ordered list of checks for one [dpconsensus.Behavior].
// The first failing check ends the run with a [*RejectionError].
package dpvalidate
