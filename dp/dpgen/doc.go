// Package dpgen builds new rounds: the genesis round,
// the successor of a closed round,
// and the first round of a new term.
//
// Generators treat out-of-range or conflicting orders in their input
// as hard errors and never attempt to repair them.
// Rejecting such input is the responsibility of validation.
package dpgen
