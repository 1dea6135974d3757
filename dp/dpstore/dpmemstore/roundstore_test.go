package dpmemstore_test

import (
	"context"
	"testing"

	"github.com/gordian-engine/gdpos/dp/dpstore"
	"github.com/gordian-engine/gdpos/dp/dpstore/dpmemstore"
	"github.com/gordian-engine/gdpos/dp/dpstore/dpstoretest"
)

func TestRoundStoreCompliance(t *testing.T) {
	t.Parallel()

	dpstoretest.TestRoundStoreCompliance(t, func(context.Context, func(func())) (dpstore.RoundStore, error) {
		return dpmemstore.NewRoundStore(), nil
	})
}
