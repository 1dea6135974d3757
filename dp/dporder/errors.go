package dporder

import (
	"errors"
	"fmt"
)

// ErrNoFreeOrder is returned by [ResolveCollision]
// when every order in [1, n] is already occupied.
var ErrNoFreeOrder = errors.New("no free order")

// OrderOutOfRangeError is returned when an order lies outside [1, N].
type OrderOutOfRangeError struct {
	Pubkey string // May be empty if the order is not tied to a validator.
	Order  int32
	N      int
}

func (e OrderOutOfRangeError) Error() string {
	if e.Pubkey == "" {
		return fmt.Sprintf("order %d outside [1, %d]", e.Order, e.N)
	}
	return fmt.Sprintf("order %d for validator %q outside [1, %d]", e.Order, e.Pubkey, e.N)
}

// InvalidMinerCountError is returned for a validator count
// that cannot produce any order.
type InvalidMinerCountError struct {
	N int
}

func (e InvalidMinerCountError) Error() string {
	return fmt.Sprintf("invalid validator count %d", e.N)
}

// DuplicateOrderError is returned when two validators hold the same final order.
type DuplicateOrderError struct {
	Order   int32
	Pubkeys [2]string
}

func (e DuplicateOrderError) Error() string {
	return fmt.Sprintf("order %d held by both %q and %q", e.Order, e.Pubkeys[0], e.Pubkeys[1])
}
