package dpsi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gordian-engine/gdpos/dp/dpconsensus"
	"github.com/gordian-engine/gdpos/dp/dpengine"
	"github.com/gordian-engine/gdpos/dp/dpstore"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Engine is the subset of [*dpengine.Engine] the server queries.
type Engine interface {
	GetCurrentRound(context.Context) (dpconsensus.Round, error)
	GetPreviousRound(context.Context) (dpconsensus.Round, error)
	GetRound(ctx context.Context, roundNumber uint64) (dpconsensus.Round, error)
	GetChainState(context.Context) (dpconsensus.ChainState, error)
	GetMiningInterval(context.Context) (time.Duration, error)
	IsDesignatedProducer(ctx context.Context, pubkey string, t time.Time) (bool, error)
	NextCommand(ctx context.Context, pubkey string, now time.Time) (dpengine.Command, error)
}

var _ Engine = (*dpengine.Engine)(nil)

// HTTPServer serves the query API for an [Engine].
type HTTPServer struct {
	// Closed when the serve goroutine returns.
	done chan struct{}
}

type HTTPServerConfig struct {
	Listener net.Listener

	Engine Engine

	// Served at /metrics when set.
	Gatherer prometheus.Gatherer

	// Default time for queries without an "at" parameter.
	// Defaults to time.Now.
	Now func() time.Time
}

// NewHTTPServer serves read-only queries against cfg.Engine on cfg.Listener
// until ctx is canceled.
func NewHTTPServer(ctx context.Context, log *slog.Logger, cfg HTTPServerConfig) *HTTPServer {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	srv := &http.Server{
		Handler: newMux(log, cfg),

		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	h := &HTTPServer{
		done: make(chan struct{}),
	}
	go h.serve(log, cfg.Listener, srv)
	go h.waitForShutdown(ctx, srv)

	return h
}

// Wait blocks until the server has stopped serving.
func (h *HTTPServer) Wait() {
	<-h.done
}

func (h *HTTPServer) waitForShutdown(ctx context.Context, srv *http.Server) {
	select {
	case <-h.done:
		// Serve already returned, possibly on a listener error.
		return
	case <-ctx.Done():
		// Forceful close; in-flight queries are dropped, not drained.
		_ = srv.Close()
	}
}

func (h *HTTPServer) serve(log *slog.Logger, ln net.Listener, srv *http.Server) {
	defer close(h.done)

	// Serve always returns a non-nil error;
	// a closed listener or server is the normal shutdown path.
	if err := srv.Serve(ln); err != nil {
		if errors.Is(err, net.ErrClosed) || errors.Is(err, http.ErrServerClosed) {
			log.Info("HTTP server shutting down")
		} else {
			log.Info("HTTP server shutting down due to error", "err", err)
		}
	}
}

func newMux(log *slog.Logger, cfg HTTPServerConfig) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/round/current", handleCurrentRound(log, cfg)).Methods("GET")
	r.HandleFunc("/round/previous", handlePreviousRound(log, cfg)).Methods("GET")
	r.HandleFunc("/round/{number:[0-9]+}", handleRound(log, cfg)).Methods("GET")
	r.HandleFunc("/chain-state", handleChainState(log, cfg)).Methods("GET")
	r.HandleFunc("/lib", handleLIB(log, cfg)).Methods("GET")
	r.HandleFunc("/mining-interval", handleMiningInterval(log, cfg)).Methods("GET")
	r.HandleFunc("/producers/{pubkey}/designated", handleDesignated(log, cfg)).Methods("GET")
	r.HandleFunc("/producers/{pubkey}/command", handleCommand(log, cfg)).Methods("GET")

	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}

	return r
}

func handleCurrentRound(log *slog.Logger, cfg HTTPServerConfig) func(w http.ResponseWriter, req *http.Request) {
	return func(w http.ResponseWriter, req *http.Request) {
		r, err := cfg.Engine.GetCurrentRound(req.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(log, w, r)
	}
}

func handlePreviousRound(log *slog.Logger, cfg HTTPServerConfig) func(w http.ResponseWriter, req *http.Request) {
	return func(w http.ResponseWriter, req *http.Request) {
		r, err := cfg.Engine.GetPreviousRound(req.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(log, w, r)
	}
}

func handleRound(log *slog.Logger, cfg HTTPServerConfig) func(w http.ResponseWriter, req *http.Request) {
	return func(w http.ResponseWriter, req *http.Request) {
		n, err := strconv.ParseUint(mux.Vars(req)["number"], 10, 64)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid round number: %v", err), http.StatusBadRequest)
			return
		}

		r, err := cfg.Engine.GetRound(req.Context(), n)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(log, w, r)
	}
}

func handleChainState(log *slog.Logger, cfg HTTPServerConfig) func(w http.ResponseWriter, req *http.Request) {
	return func(w http.ResponseWriter, req *http.Request) {
		st, err := cfg.Engine.GetChainState(req.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(log, w, st)
	}
}

// LIBResponse is the body of /lib.
type LIBResponse struct {
	Height      uint64
	RoundNumber uint64
}

func handleLIB(log *slog.Logger, cfg HTTPServerConfig) func(w http.ResponseWriter, req *http.Request) {
	return func(w http.ResponseWriter, req *http.Request) {
		r, err := cfg.Engine.GetCurrentRound(req.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(log, w, LIBResponse{
			Height:      r.ConfirmedIrreversibleBlockHeight,
			RoundNumber: r.ConfirmedIrreversibleBlockRoundNumber,
		})
	}
}

// MiningIntervalResponse is the body of /mining-interval.
type MiningIntervalResponse struct {
	MiningInterval string
	Milliseconds   int64
}

func handleMiningInterval(log *slog.Logger, cfg HTTPServerConfig) func(w http.ResponseWriter, req *http.Request) {
	return func(w http.ResponseWriter, req *http.Request) {
		iv, err := cfg.Engine.GetMiningInterval(req.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(log, w, MiningIntervalResponse{
			MiningInterval: iv.String(),
			Milliseconds:   iv.Milliseconds(),
		})
	}
}

// DesignatedResponse is the body of /producers/{pubkey}/designated.
type DesignatedResponse struct {
	Pubkey     string
	At         time.Time
	Designated bool
}

func handleDesignated(log *slog.Logger, cfg HTTPServerConfig) func(w http.ResponseWriter, req *http.Request) {
	return func(w http.ResponseWriter, req *http.Request) {
		pubkey := mux.Vars(req)["pubkey"]
		at, ok := queryTime(w, req, cfg)
		if !ok {
			return
		}

		designated, err := cfg.Engine.IsDesignatedProducer(req.Context(), pubkey, at)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(log, w, DesignatedResponse{Pubkey: pubkey, At: at, Designated: designated})
	}
}

// CommandResponse is the body of /producers/{pubkey}/command.
type CommandResponse struct {
	Pubkey     string
	Behavior   string
	MiningTime time.Time
	Deadline   time.Time
}

func handleCommand(log *slog.Logger, cfg HTTPServerConfig) func(w http.ResponseWriter, req *http.Request) {
	return func(w http.ResponseWriter, req *http.Request) {
		pubkey := mux.Vars(req)["pubkey"]
		at, ok := queryTime(w, req, cfg)
		if !ok {
			return
		}

		cmd, err := cfg.Engine.NextCommand(req.Context(), pubkey, at)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(log, w, CommandResponse{
			Pubkey:     pubkey,
			Behavior:   cmd.Behavior.String(),
			MiningTime: cmd.MiningTime,
			Deadline:   cmd.Deadline,
		})
	}
}

// queryTime parses the optional RFC 3339 "at" query parameter.
// On failure it writes the response and returns false.
func queryTime(w http.ResponseWriter, req *http.Request, cfg HTTPServerConfig) (time.Time, bool) {
	s := req.URL.Query().Get("at")
	if s == "" {
		return cfg.Now(), true
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid at parameter: %v", err), http.StatusBadRequest)
		return time.Time{}, false
	}
	return t, true
}

func writeJSON(log *slog.Logger, w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn("Failed to marshal response", "err", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.As(err, new(dpconsensus.RoundUnknownError)):
		code = http.StatusNotFound
	case errors.Is(err, dpstore.ErrStoreUninitialized):
		code = http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled):
		// Client went away; the status is unlikely to be read.
		code = http.StatusServiceUnavailable
	}
	http.Error(w, err.Error(), code)
}
