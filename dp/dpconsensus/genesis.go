package dpconsensus

import (
	"errors"
	"fmt"
	"time"
)

// Genesis is the initial configuration of a chain.
type Genesis struct {
	// Validator identities, in first-round order.
	Validators []string

	// Chain start. The first round's order 1 slot begins
	// one mining interval after this time.
	StartTime time.Time
}

// Validate checks that g has at least one validator,
// no duplicate or empty identities, and a start time.
func (g Genesis) Validate() error {
	if len(g.Validators) == 0 {
		return errors.New("genesis has no validators")
	}
	if g.StartTime.IsZero() {
		return errors.New("genesis has no start time")
	}
	seen := make(map[string]struct{}, len(g.Validators))
	for i, v := range g.Validators {
		if v == "" {
			return fmt.Errorf("genesis validator at index %d has empty identity", i)
		}
		if _, ok := seen[v]; ok {
			return fmt.Errorf("genesis validator %q listed more than once", v)
		}
		seen[v] = struct{}{}
	}
	return nil
}
