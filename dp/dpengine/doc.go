// Package dpengine contains the [Engine],
// which applies validated consensus payloads to a round store
// and answers scheduling queries.
//
// The engine does not produce blocks or talk to the network.
// Callers drive it by submitting the consensus payload of every block
// in chain order: commitments with [Engine.SubmitCommit],
// tiny blocks with [Engine.SubmitTinyBlock],
// and round closures with [Engine.SubmitRoundTransition].
// Validators acting honestly can build those payloads
// with [Engine.PrepareCommit] and [Engine.PrepareRoundTransition],
// and ask what to do next with [Engine.NextCommand].
package dpengine
