package dpconsensus

import (
	"errors"
	"fmt"
)

// ErrMalformedRound is returned when a round does not satisfy
// the structural invariants of the data model.
var ErrMalformedRound = errors.New("malformed round")

// ErrEmptyMinerSet is returned for a round with no validators.
// It wraps [ErrMalformedRound].
var ErrEmptyMinerSet = fmt.Errorf("%w: empty validator set", ErrMalformedRound)

// RoundUnknownError is returned when looking up a round
// that is not known to the caller.
type RoundUnknownError struct {
	RoundNumber uint64
}

func (e RoundUnknownError) Error() string {
	return fmt.Sprintf("unknown round %d", e.RoundNumber)
}

// MinerUnknownError indicates that a validator identity
// is not present in the round being inspected.
type MinerUnknownError struct {
	Pubkey      string
	RoundNumber uint64
}

func (e MinerUnknownError) Error() string {
	return fmt.Sprintf("validator %q is not a member of round %d", e.Pubkey, e.RoundNumber)
}
