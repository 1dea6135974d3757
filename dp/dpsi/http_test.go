package dpsi_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/gordian-engine/gdpos/dp/dpconsensus"
	"github.com/gordian-engine/gdpos/dp/dpconsensus/dpconsensustest"
	"github.com/gordian-engine/gdpos/dp/dpengine"
	"github.com/gordian-engine/gdpos/dp/dpsi"
	"github.com/gordian-engine/gdpos/dp/dpsim"
	"github.com/gordian-engine/gdpos/dp/dpstore/dpmemstore"
	"github.com/gordian-engine/gdpos/internal/gtest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"github.com/tv42/httpunix"
)

type serverFixture struct {
	Sim *dpsim.Simulator

	// Base URL of the server.
	Base string

	Client *http.Client
}

func newSimulator(t *testing.T, ctx context.Context, reg *prometheus.Registry) *dpsim.Simulator {
	t.Helper()

	s, err := dpsim.New(ctx, gtest.NewLogger(t), dpsim.Config{
		Validators:        dpconsensustest.DeterministicValidators(3),
		StartTime:         dpconsensustest.ChainStart,
		Params:            dpconsensus.DefaultParams(),
		TinyBlocksPerSlot: 1,
	}, dpmemstore.NewRoundStore(), dpengine.WithMetricsRegisterer(reg))
	require.NoError(t, err)
	t.Cleanup(s.Engine().Wait)

	_, err = s.RunRounds(ctx, 2)
	require.NoError(t, err)
	return s
}

func newTCPFixture(t *testing.T, ctx context.Context) *serverFixture {
	t.Helper()

	reg := prometheus.NewRegistry()
	s := newSimulator(t, ctx, reg)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	h := dpsi.NewHTTPServer(ctx, gtest.NewLogger(t), dpsi.HTTPServerConfig{
		Listener: ln,
		Engine:   s.Engine(),
		Gatherer: reg,
		Now:      s.Now,
	})
	t.Cleanup(h.Wait)

	return &serverFixture{
		Sim:    s,
		Base:   "http://" + ln.Addr().String(),
		Client: http.DefaultClient,
	}
}

func (f *serverFixture) get(t *testing.T, path string, wantCode int, out any) {
	t.Helper()

	resp, err := f.Client.Get(f.Base + path)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, wantCode, resp.StatusCode, "body: %s", body)

	if out != nil {
		require.NoError(t, json.Unmarshal(body, out))
	}
}

func TestHTTPServer_Rounds(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := newTCPFixture(t, ctx)
	e := f.Sim.Engine()

	want, err := e.GetCurrentRound(ctx)
	require.NoError(t, err)
	var got dpconsensus.Round
	f.get(t, "/round/current", http.StatusOK, &got)
	require.Equal(t, want, got)

	want, err = e.GetRound(ctx, 1)
	require.NoError(t, err)
	got = dpconsensus.Round{}
	f.get(t, "/round/1", http.StatusOK, &got)
	require.Equal(t, want, got)

	want, err = e.GetPreviousRound(ctx)
	require.NoError(t, err)
	got = dpconsensus.Round{}
	f.get(t, "/round/previous", http.StatusOK, &got)
	require.Equal(t, want, got)

	f.get(t, "/round/99", http.StatusNotFound, nil)
	f.get(t, "/round/abc", http.StatusNotFound, nil)

	wantState, err := e.GetChainState(ctx)
	require.NoError(t, err)
	var gotState dpconsensus.ChainState
	f.get(t, "/chain-state", http.StatusOK, &gotState)
	require.Equal(t, wantState, gotState)
}

func TestHTTPServer_Scheduling(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := newTCPFixture(t, ctx)
	cur, err := f.Sim.Engine().GetCurrentRound(ctx)
	require.NoError(t, err)

	var lib dpsi.LIBResponse
	f.get(t, "/lib", http.StatusOK, &lib)
	require.Equal(t, cur.ConfirmedIrreversibleBlockHeight, lib.Height)
	require.Equal(t, cur.ConfirmedIrreversibleBlockRoundNumber, lib.RoundNumber)

	var iv dpsi.MiningIntervalResponse
	f.get(t, "/mining-interval", http.StatusOK, &iv)
	require.Equal(t, dpconsensus.DefaultMiningInterval.Milliseconds(), iv.Milliseconds)

	m, ok := cur.FirstMiner()
	require.True(t, ok)
	at := m.ExpectedMiningTime

	var d dpsi.DesignatedResponse
	f.get(t, fmt.Sprintf("/producers/%s/designated?at=%s", m.Pubkey, at.Format(time.RFC3339Nano)), http.StatusOK, &d)
	require.True(t, d.Designated)
	require.True(t, d.At.Equal(at))

	d = dpsi.DesignatedResponse{}
	f.get(t, "/producers/stranger/designated?at="+at.Format(time.RFC3339Nano), http.StatusOK, &d)
	require.False(t, d.Designated)

	f.get(t, "/producers/stranger/designated?at=yesterday", http.StatusBadRequest, nil)

	// Without a time, the server's clock is used.
	var c dpsi.CommandResponse
	f.get(t, "/producers/"+m.Pubkey+"/command", http.StatusOK, &c)
	require.Equal(t, dpconsensus.BehaviorUpdateValue.String(), c.Behavior)
	require.True(t, c.MiningTime.Equal(at))
}

func TestHTTPServer_Metrics(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := newTCPFixture(t, ctx)

	resp, err := f.Client.Get(f.Base + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "gdpos_round_number 3")
}

func TestHTTPServer_UnixSocket(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := newSimulator(t, ctx, prometheus.NewRegistry())

	sock := filepath.Join(t.TempDir(), "gdpos.sock")
	ln, err := net.Listen("unix", sock)
	require.NoError(t, err)

	h := dpsi.NewHTTPServer(ctx, gtest.NewLogger(t), dpsi.HTTPServerConfig{
		Listener: ln,
		Engine:   s.Engine(),
	})

	u := &httpunix.Transport{
		DialTimeout:           time.Second,
		RequestTimeout:        time.Second,
		ResponseHeaderTimeout: time.Second,
	}
	u.RegisterLocation("gdpos", sock)
	f := &serverFixture{
		Sim:    s,
		Base:   "http+unix://gdpos",
		Client: &http.Client{Transport: u},
	}

	var lib dpsi.LIBResponse
	f.get(t, "/lib", http.StatusOK, &lib)

	// No gatherer configured.
	f.get(t, "/metrics", http.StatusNotFound, nil)

	cancel()
	h.Wait()
}
