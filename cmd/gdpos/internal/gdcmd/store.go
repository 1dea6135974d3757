package gdcmd

import (
	"context"
	"log/slog"

	"github.com/gordian-engine/gdpos/dp/dpstore"
	"github.com/gordian-engine/gdpos/dpsqlite"
)

// openStore opens the SQLite round store at path,
// or a private in-memory one if path is empty.
func openStore(ctx context.Context, log *slog.Logger, path string) (dpstore.RoundStore, func() error, error) {
	var s *dpsqlite.RoundStore
	var err error
	if path == "" {
		s, err = dpsqlite.NewInMemRoundStore(ctx, log)
	} else {
		s, err = dpsqlite.NewOnDiskRoundStore(ctx, log, path)
	}
	if err != nil {
		return nil, nil, err
	}
	return s, s.Close, nil
}
