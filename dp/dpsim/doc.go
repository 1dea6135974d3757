// Package dpsim simulates a network of honest validators
// producing blocks through a single dpengine.Engine.
//
// The simulation runs on a virtual clock:
// blocks are produced at the times the engine arranges,
// without waiting in real time.
// It is used by the gdpos simulate command and by integration tests
// that exercise the engine against each round store implementation.
package dpsim
