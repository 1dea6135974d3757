package gdcmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/gordian-engine/gdpos/dp/dpengine"
	"github.com/gordian-engine/gdpos/dp/dpsi"
	"github.com/gordian-engine/gdpos/dp/dpsim"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

func newServeCmd(newLogger loggerFunc) *cobra.Command {
	var f simFlags
	var httpAddr, httpSocket string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run honest validators in real time and serve queries over HTTP",
		Long: `Run honest validators in real time and serve queries over HTTP.

Blocks are produced at the times the engine arranges, against the wall clock.
If --db names an initialized store, the chain resumes from it.
Query the running server with "gdpos query".`,
		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, _ []string) error {
			log, err := newLogger()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			ln, err := listen(httpAddr, httpSocket)
			if err != nil {
				return err
			}

			rs, closeStore, err := openStore(ctx, log.With("sys", "store"), f.DBPath)
			if err != nil {
				_ = ln.Close()
				return err
			}
			defer closeStore()

			initialized, err := storeInitialized(ctx, rs)
			if err != nil {
				_ = ln.Close()
				return err
			}
			cfg, err := f.config(initialized, time.Now().UTC().Truncate(time.Second))
			if err != nil {
				_ = ln.Close()
				return err
			}

			reg := prometheus.NewRegistry()
			s, err := dpsim.New(ctx, log.With("sys", "sim"), cfg, rs, dpengine.WithMetricsRegisterer(reg))
			if err != nil {
				_ = ln.Close()
				return err
			}
			defer s.Engine().Wait()

			h := dpsi.NewHTTPServer(ctx, log.With("sys", "http"), dpsi.HTTPServerConfig{
				Listener: ln,
				Engine:   s.Engine(),
				Gatherer: reg,
			})
			defer h.Wait()
			defer cancel()

			log.Info("Serving", "addr", ln.Addr().String(), "validators", cfg.Validators)

			err = produce(ctx, log, s)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	f.register(cmd)
	cmd.Flags().StringVar(&httpAddr, "http-addr", "127.0.0.1:9090", "TCP address for the HTTP server")
	cmd.Flags().StringVar(&httpSocket, "http-socket", "", "unix socket path for the HTTP server (overrides --http-addr)")

	return cmd
}

func listen(addr, socket string) (net.Listener, error) {
	if socket != "" {
		// A stale socket from an earlier run would fail the listen.
		if err := os.Remove(socket); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to remove old socket: %w", err)
		}
		return net.Listen("unix", socket)
	}
	return net.Listen("tcp", addr)
}

// produce steps s whenever its pending block is due,
// until ctx is canceled.
func produce(ctx context.Context, log *slog.Logger, s *dpsim.Simulator) error {
	for {
		p, err := s.Pending(ctx)
		if err != nil {
			return err
		}

		if d := time.Until(p.Time); d > 0 {
			t := time.NewTimer(d)
			select {
			case <-ctx.Done():
				t.Stop()
				return context.Cause(ctx)
			case <-t.C:
			}
		}

		b, err := s.Step(ctx)
		if err != nil {
			return err
		}
		log.Debug(
			"Produced block",
			"height", b.Height, "round", b.RoundNumber,
			"behavior", b.Behavior, "producer", b.Producer,
		)
	}
}
