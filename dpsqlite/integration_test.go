package dpsqlite_test

import (
	"context"
	"testing"

	"github.com/gordian-engine/gdpos/dp/dpsim"
	"github.com/gordian-engine/gdpos/dp/dpstore"
	"github.com/gordian-engine/gdpos/dpsqlite"
	"github.com/gordian-engine/gdpos/internal/gtest"
)

func TestIntegration_InMem(t *testing.T) {
	t.Parallel()

	dpsim.RunIntegrationTest(t, func(ctx context.Context, cleanup func(func())) (dpstore.RoundStore, error) {
		s, err := dpsqlite.NewInMemRoundStore(ctx, gtest.NewLogger(t))
		if err != nil {
			return nil, err
		}
		cleanup(func() { _ = s.Close() })
		return s, nil
	})
}
