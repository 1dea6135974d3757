package gdcmd

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	petname "github.com/dustinkirkland/golang-petname"
	"github.com/gordian-engine/gdpos/dp/dpconsensus"
	"github.com/gordian-engine/gdpos/dp/dpsim"
	"github.com/gordian-engine/gdpos/dp/dpstore"
	"github.com/spf13/cobra"
)

// simFlags are the network flags shared by simulate and serve.
type simFlags struct {
	NValidators int
	Names       []string
	Offline     []string
	Withhold    []string
	NextTerm    []string

	Interval      time.Duration
	MaxTiny       uint32
	TinyPerSlot   int
	TermPeriod    time.Duration
	SecretSharing bool

	Seed   string
	DBPath string
}

func (f *simFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.IntVar(&f.NValidators, "validators", 5, "number of validators with generated names")
	fs.StringSliceVar(&f.Names, "names", nil, "explicit validator names (overrides --validators)")
	fs.StringSliceVar(&f.Offline, "offline", nil, "validators that never produce blocks")
	fs.StringSliceVar(&f.Withhold, "withhold", nil, "validators that never reveal their previous in value")
	fs.StringSliceVar(&f.NextTerm, "next-term", nil, "validators elected for every later term (default: unchanged)")

	fs.DurationVar(&f.Interval, "interval", dpconsensus.DefaultMiningInterval, "mining interval")
	fs.Uint32Var(&f.MaxTiny, "max-tiny", dpconsensus.DefaultMaxTinyBlocks, "maximum consecutive blocks per producer")
	fs.IntVar(&f.TinyPerSlot, "tiny", 1, "tiny blocks each validator produces per slot")
	fs.DurationVar(&f.TermPeriod, "term-period", dpconsensus.DefaultTermPeriod, "length of a term")
	fs.BoolVar(&f.SecretSharing, "secret-sharing", false, "deal in values as encrypted shares")

	fs.StringVar(&f.Seed, "seed", "gdpos", "seed for in values and share randomness")
	fs.StringVar(&f.DBPath, "db", "", "path to SQLite database (default: in memory)")
}

// config returns the simulator configuration described by f.
// If the store is already initialized, the start time is left zero
// so that the simulation resumes.
func (f *simFlags) config(initialized bool, start time.Time) (dpsim.Config, error) {
	names := f.Names
	if len(names) == 0 {
		if f.NValidators <= 0 {
			return dpsim.Config{}, errors.New("--validators must be positive")
		}
		names = generateNames(f.NValidators)
	}

	p := dpconsensus.DefaultParams()
	p.MiningInterval = f.Interval
	p.MaxTinyBlocks = f.MaxTiny
	p.TermPeriod = f.TermPeriod
	p.SecretSharingEnabled = f.SecretSharing
	if err := p.Validate(); err != nil {
		return dpsim.Config{}, err
	}

	cfg := dpsim.Config{
		Validators:         names,
		Params:             p,
		NextTermValidators: f.NextTerm,
		Offline:            f.Offline,
		Withholding:        f.Withhold,
		TinyBlocksPerSlot:  f.TinyPerSlot,
		Seed:               dpconsensus.HashOf([]byte(f.Seed)),
	}
	if !initialized {
		cfg.StartTime = start
	}
	return cfg, nil
}

// generateNames returns n distinct, sorted validator names.
func generateNames(n int) []string {
	seen := make(map[string]struct{}, n)
	for len(seen) < n {
		seen[petname.Generate(2, "-")] = struct{}{}
	}
	names := make([]string, 0, n)
	for name := range seen {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func newSimulateCmd(newLogger loggerFunc) *cobra.Command {
	var f simFlags
	var rounds int
	var start string

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run honest validators on a virtual clock and print the blocks they produce",
		Args:  cobra.NoArgs,

		RunE: func(cmd *cobra.Command, _ []string) error {
			log, err := newLogger()
			if err != nil {
				return err
			}

			startTime := time.Now().UTC().Truncate(time.Second)
			if start != "" {
				startTime, err = time.Parse(time.RFC3339, start)
				if err != nil {
					return fmt.Errorf("invalid --start: %w", err)
				}
			}

			ctx := cmd.Context()
			rs, closeStore, err := openStore(ctx, log.With("sys", "store"), f.DBPath)
			if err != nil {
				return err
			}
			defer closeStore()

			initialized, err := storeInitialized(ctx, rs)
			if err != nil {
				return err
			}
			cfg, err := f.config(initialized, startTime)
			if err != nil {
				return err
			}

			s, err := dpsim.New(ctx, log.With("sys", "sim"), cfg, rs)
			if err != nil {
				return err
			}
			defer s.Engine().Wait()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-8s %-30s %-6s %-12s %s\n", "HEIGHT", "TIME", "ROUND", "BEHAVIOR", "PRODUCER")
			for closed := 0; closed < rounds; {
				b, err := s.Step(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(
					out, "%-8d %-30s %-6d %-12s %s\n",
					b.Height, b.Time.Format(time.RFC3339Nano), b.RoundNumber, b.Behavior, b.Producer,
				)
				if b.Behavior.IsTransition() {
					closed++
				}
			}

			cur, err := s.Engine().GetCurrentRound(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(
				out, "\nround %d, term %d; irreversible height %d (round %d)\n",
				cur.RoundNumber, cur.TermNumber,
				cur.ConfirmedIrreversibleBlockHeight, cur.ConfirmedIrreversibleBlockRoundNumber,
			)
			return nil
		},
	}

	f.register(cmd)
	cmd.Flags().IntVar(&rounds, "rounds", 10, "number of rounds to close")
	cmd.Flags().StringVar(&start, "start", "", "RFC 3339 chain start time (default: now)")

	return cmd
}

func storeInitialized(ctx context.Context, rs dpstore.RoundStore) (bool, error) {
	_, err := rs.LoadCurrentRound(ctx)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, dpstore.ErrStoreUninitialized) {
		return false, nil
	}
	return false, err
}
