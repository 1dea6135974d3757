// Package dpmemstore contains in-memory implementations of the dpstore interfaces.
package dpmemstore

import (
	"context"
	"sync"

	"github.com/gordian-engine/gdpos/dp/dpconsensus"
	"github.com/gordian-engine/gdpos/dp/dpstore"
)

// RoundStore is an in-memory implementation of [dpstore.RoundStore].
type RoundStore struct {
	mu sync.RWMutex

	rounds map[uint64]dpconsensus.Round

	current uint64 // Zero until initialized.
	state   dpconsensus.ChainState
}

// NewRoundStore returns an empty RoundStore.
func NewRoundStore() *RoundStore {
	return &RoundStore{
		rounds: make(map[uint64]dpconsensus.Round),
	}
}

func (s *RoundStore) Commit(_ context.Context, c dpstore.Commit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stored *dpconsensus.Round
	if s.current != 0 {
		r := s.rounds[s.current]
		stored = &r
	}
	if err := dpstore.CheckCommit(stored, c); err != nil {
		return err
	}

	if c.Retiring != nil {
		s.rounds[c.Retiring.RoundNumber] = c.Retiring.Clone()
	}
	s.rounds[c.Current.RoundNumber] = c.Current.Clone()
	s.current = c.Current.RoundNumber
	s.state = c.State
	return nil
}

func (s *RoundStore) LoadRound(_ context.Context, roundNumber uint64) (dpconsensus.Round, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rounds[roundNumber]
	if !ok {
		return dpconsensus.Round{}, dpconsensus.RoundUnknownError{RoundNumber: roundNumber}
	}
	return r.Clone(), nil
}

func (s *RoundStore) LoadCurrentRound(_ context.Context) (dpconsensus.Round, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == 0 {
		return dpconsensus.Round{}, dpstore.ErrStoreUninitialized
	}
	return s.rounds[s.current].Clone(), nil
}

func (s *RoundStore) LoadPreviousRound(_ context.Context) (dpconsensus.Round, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == 0 {
		return dpconsensus.Round{}, dpstore.ErrStoreUninitialized
	}
	r, ok := s.rounds[s.current-1]
	if !ok {
		return dpconsensus.Round{}, dpconsensus.RoundUnknownError{RoundNumber: s.current - 1}
	}
	return r.Clone(), nil
}

func (s *RoundStore) LoadChainState(_ context.Context) (dpconsensus.ChainState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == 0 {
		return dpconsensus.ChainState{}, dpstore.ErrStoreUninitialized
	}
	return s.state, nil
}
