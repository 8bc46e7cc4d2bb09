package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/slotgo/internal/repository"
)

type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		pool: pool,
	}
}

// RunTxWithOpts runs fn inside a transaction. Serializable read-write is the
// default when opts is nil.
func (s *Store) RunTxWithOpts(
	ctx context.Context,
	opts *pgx.TxOptions,
	fn func(ctx context.Context, tx DB) error,
) error {
	txOpts := pgx.TxOptions{
		IsoLevel:   pgx.Serializable,
		AccessMode: pgx.ReadWrite,
	}

	if opts != nil {
		txOpts.IsoLevel = opts.IsoLevel
		txOpts.AccessMode = opts.AccessMode
		txOpts.DeferrableMode = opts.DeferrableMode
	}

	tx, err := s.pool.BeginTx(ctx, txOpts)
	if err != nil {
		return translateDBErr(err)
	}

	defer tx.Rollback(ctx)

	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", translateDBErr(err))
	}

	return nil
}

// RunTx implements repository.Store.
func (s *Store) RunTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	return s.RunTxWithOpts(ctx, nil, func(ctx context.Context, db DB) error {
		return fn(ctx, txRepos{pool: s.pool, db: db})
	})
}

func (s *Store) Bookings() repository.BookingRepository { return &BookingRepo{pool: s.pool} }
func (s *Store) Venues() repository.VenueRepository     { return &VenueRepo{pool: s.pool} }

type txRepos struct {
	pool *pgxpool.Pool
	db   DB
}

func (t txRepos) Bookings() repository.BookingRepository {
	return (&BookingRepo{pool: t.pool}).With(t.db)
}

func (t txRepos) Venues() repository.VenueRepository {
	return (&VenueRepo{pool: t.pool}).With(t.db)
}
