// Package gtest contains helpers shared across tests in this module.
package gtest

import (
	"log/slog"
	"testing"

	"github.com/neilotoole/slogt"
)

// NewLogger returns a *slog.Logger that writes through t.Log,
// so that log output is attributed to the correct test
// and only shown for failing tests or with go test -v.
func NewLogger(t testing.TB) *slog.Logger {
	return slogt.New(t)
}
