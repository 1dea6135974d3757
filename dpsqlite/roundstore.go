package dpsqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/url"

	"github.com/gordian-engine/gdpos/dp/dpcodec"
	"github.com/gordian-engine/gdpos/dp/dpcodec/dpjson"
	"github.com/gordian-engine/gdpos/dp/dpconsensus"
	"github.com/gordian-engine/gdpos/dp/dpstore"
	lru "github.com/hashicorp/golang-lru/v2"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

// DefaultRetiredCacheSize is the number of retired rounds
// kept decoded in memory when no other size is configured.
const DefaultRetiredCacheSize = 64

// RoundStore is a SQLite-backed [dpstore.RoundStore].
type RoundStore struct {
	log *slog.Logger

	db    *sql.DB
	codec dpcodec.MarshalCodec

	// Retired rounds never change, so decoded copies may be reused.
	retired *lru.Cache[uint64, dpconsensus.Round]
}

var _ dpstore.RoundStore = (*RoundStore)(nil)

// NewInMemRoundStore returns a RoundStore backed by a private in-memory database.
func NewInMemRoundStore(ctx context.Context, log *slog.Logger) (*RoundStore, error) {
	return newRoundStore(ctx, log, ":memory:")
}

// NewOnDiskRoundStore returns a RoundStore backed by the database file at path,
// creating it if necessary.
func NewOnDiskRoundStore(ctx context.Context, log *slog.Logger, path string) (*RoundStore, error) {
	q := url.Values{}
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "foreign_keys(1)")
	return newRoundStore(ctx, log, "file:"+path+"?"+q.Encode())
}

func newRoundStore(ctx context.Context, log *slog.Logger, dsn string) (*RoundStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// There is a single writer, and an in-memory database
	// only exists for the connection that created it.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	retired, err := lru.New[uint64, dpconsensus.Round](DefaultRetiredCacheSize)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create round cache: %w", err)
	}

	return &RoundStore{
		log: log,

		db:    db,
		codec: dpjson.MarshalCodec{},

		retired: retired,
	}, nil
}

// Close closes the underlying database.
func (s *RoundStore) Close() error {
	return s.db.Close()
}

func (s *RoundStore) Commit(ctx context.Context, c dpstore.Commit) (err error) {
	if c.Current.RoundNumber > math.MaxInt64 {
		return fmt.Errorf("round number %d out of range", c.Current.RoundNumber)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rErr := tx.Rollback(); rErr != nil && !errors.Is(rErr, sql.ErrTxDone) {
				err = errors.Join(err, fmt.Errorf("failed to roll back: %w", rErr))
			}
		}
	}()

	stored, err := s.currentRound(ctx, tx)
	var storedPtr *dpconsensus.Round
	switch {
	case err == nil:
		storedPtr = &stored
	case errors.Is(err, dpstore.ErrStoreUninitialized):
		// First commit.
	default:
		return err
	}

	if err := dpstore.CheckCommit(storedPtr, c); err != nil {
		return err
	}

	if c.Retiring != nil {
		if err := s.freeze(ctx, tx, *c.Retiring); err != nil {
			return err
		}
	}

	if err := s.putCurrent(ctx, tx, c.Current); err != nil {
		return err
	}

	stateBody, err := s.codec.MarshalChainState(c.State)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO chain_state(id, current_round, body) VALUES(0, ?, ?)
ON CONFLICT(id) DO UPDATE SET current_round = excluded.current_round, body = excluded.body`,
		int64(c.Current.RoundNumber), stateBody,
	); err != nil {
		return fmt.Errorf("failed to store chain state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	if c.Retiring != nil {
		s.retired.Add(c.Retiring.RoundNumber, c.Retiring.Clone())
		s.log.Debug("Froze round", "round", c.Retiring.RoundNumber)
	}

	return nil
}

// freeze writes the final form of r and marks it frozen.
func (s *RoundStore) freeze(ctx context.Context, tx *sql.Tx, r dpconsensus.Round) error {
	body, err := s.codec.MarshalRound(r)
	if err != nil {
		return err
	}

	res, err := tx.ExecContext(
		ctx,
		`UPDATE rounds SET body = ?, term = ?, frozen = 1 WHERE number = ? AND frozen = 0`,
		body, int64(r.TermNumber), int64(r.RoundNumber),
	)
	if err != nil {
		return fmt.Errorf("failed to freeze round %d: %w", r.RoundNumber, err)
	}
	return requireOneRow(res, r.RoundNumber)
}

// putCurrent inserts or replaces the live round r.
func (s *RoundStore) putCurrent(ctx context.Context, tx *sql.Tx, r dpconsensus.Round) error {
	body, err := s.codec.MarshalRound(r)
	if err != nil {
		return err
	}

	res, err := tx.ExecContext(
		ctx,
		`INSERT INTO rounds(number, term, frozen, body) VALUES(?, ?, 0, ?)
ON CONFLICT(number) DO UPDATE SET term = excluded.term, body = excluded.body
WHERE frozen = 0`,
		int64(r.RoundNumber), int64(r.TermNumber), body,
	)
	if err != nil {
		return fmt.Errorf("failed to store round %d: %w", r.RoundNumber, err)
	}
	return requireOneRow(res, r.RoundNumber)
}

// requireOneRow reports ErrRoundFrozen if res touched no rows.
func requireOneRow(res sql.Result, roundNumber uint64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to count affected rows: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("%w: round %d", dpstore.ErrRoundFrozen, roundNumber)
	}
	return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *RoundStore) currentRound(ctx context.Context, q querier) (dpconsensus.Round, error) {
	var body []byte
	err := q.QueryRowContext(
		ctx,
		`SELECT rounds.body FROM chain_state
JOIN rounds ON rounds.number = chain_state.current_round
WHERE chain_state.id = 0`,
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return dpconsensus.Round{}, dpstore.ErrStoreUninitialized
	}
	if err != nil {
		return dpconsensus.Round{}, fmt.Errorf("failed to load current round: %w", err)
	}

	var r dpconsensus.Round
	if err := s.codec.UnmarshalRound(body, &r); err != nil {
		return dpconsensus.Round{}, err
	}
	return r, nil
}

func (s *RoundStore) LoadRound(ctx context.Context, roundNumber uint64) (dpconsensus.Round, error) {
	if r, ok := s.retired.Get(roundNumber); ok {
		return r.Clone(), nil
	}

	if roundNumber == 0 || roundNumber > math.MaxInt64 {
		return dpconsensus.Round{}, dpconsensus.RoundUnknownError{RoundNumber: roundNumber}
	}

	var body []byte
	var frozen bool
	err := s.db.QueryRowContext(
		ctx,
		`SELECT body, frozen FROM rounds WHERE number = ?`,
		int64(roundNumber),
	).Scan(&body, &frozen)
	if errors.Is(err, sql.ErrNoRows) {
		return dpconsensus.Round{}, dpconsensus.RoundUnknownError{RoundNumber: roundNumber}
	}
	if err != nil {
		return dpconsensus.Round{}, fmt.Errorf("failed to load round %d: %w", roundNumber, err)
	}

	var r dpconsensus.Round
	if err := s.codec.UnmarshalRound(body, &r); err != nil {
		return dpconsensus.Round{}, err
	}

	if frozen {
		s.retired.Add(roundNumber, r.Clone())
	}
	return r, nil
}

func (s *RoundStore) LoadCurrentRound(ctx context.Context) (dpconsensus.Round, error) {
	return s.currentRound(ctx, s.db)
}

func (s *RoundStore) LoadPreviousRound(ctx context.Context) (dpconsensus.Round, error) {
	var cur int64
	err := s.db.QueryRowContext(
		ctx,
		`SELECT current_round FROM chain_state WHERE id = 0`,
	).Scan(&cur)
	if errors.Is(err, sql.ErrNoRows) {
		return dpconsensus.Round{}, dpstore.ErrStoreUninitialized
	}
	if err != nil {
		return dpconsensus.Round{}, fmt.Errorf("failed to load current round number: %w", err)
	}

	return s.LoadRound(ctx, uint64(cur)-1)
}

func (s *RoundStore) LoadChainState(ctx context.Context) (dpconsensus.ChainState, error) {
	var body []byte
	err := s.db.QueryRowContext(
		ctx,
		`SELECT body FROM chain_state WHERE id = 0`,
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return dpconsensus.ChainState{}, dpstore.ErrStoreUninitialized
	}
	if err != nil {
		return dpconsensus.ChainState{}, fmt.Errorf("failed to load chain state: %w", err)
	}

	var st dpconsensus.ChainState
	if err := s.codec.UnmarshalChainState(body, &st); err != nil {
		return dpconsensus.ChainState{}, err
	}
	return st, nil
}
