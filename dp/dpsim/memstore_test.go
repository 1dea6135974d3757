package dpsim_test

import (
	"context"
	"testing"

	"github.com/gordian-engine/gdpos/dp/dpsim"
	"github.com/gordian-engine/gdpos/dp/dpstore"
	"github.com/gordian-engine/gdpos/dp/dpstore/dpmemstore"
)

func TestIntegration_MemStore(t *testing.T) {
	t.Parallel()

	dpsim.RunIntegrationTest(t, func(context.Context, func(func())) (dpstore.RoundStore, error) {
		return dpmemstore.NewRoundStore(), nil
	})
}
