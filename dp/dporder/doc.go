// Package dporder maps validator signatures to next-round mining orders
// and resolves collisions between them.
//
// All functions are deterministic.
// Functions that modify a round operate only on the round passed in;
// callers that must preserve a trusted round pass a [dpconsensus.Round.Clone].
package dporder
