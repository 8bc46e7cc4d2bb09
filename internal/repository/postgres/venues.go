package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/slotgo/internal/domain"
	"github.com/kirinyoku/slotgo/internal/repository"
	"github.com/shopspring/decimal"
)

type VenueRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *VenueRepo) With(db DB) *VenueRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *VenueRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// Get retrieves a venue by its ID.
//
// Parameters:
//   - ctx: request-scoped context for cancellation and timeouts.
//   - id: unique identifier of the venue to retrieve.
//
// Returns:
//   - *domain.Venue: the venue when found.
//   - error: repository.ErrNotFound if the venue is not found.
func (r *VenueRepo) Get(ctx context.Context, id string) (*domain.Venue, error) {
	const op = "postgres.VenueRepo.Get"

	db := r.handle()

	var v domain.Venue
	var schedule []byte

	err := db.QueryRow(ctx,
		`SELECT id, name, schedule, sports, total_bookings, amount_owed, amount_paid
		 FROM venues WHERE id = $1`,
		id,
	).Scan(&v.ID, &v.Name, &schedule, &v.Sports, &v.TotalBookings, &v.AmountOwed, &v.AmountPaid)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	if len(schedule) > 0 {
		if err := json.Unmarshal(schedule, &v.Schedule); err != nil {
			return nil, fmt.Errorf("%s: decode schedule: %w", op, err)
		}
	}

	return &v, nil
}

// Create inserts a venue with its weekly schedule.
//
// Returns:
//   - error: repository.ErrVenueAlreadyExist if the ID is taken.
func (r *VenueRepo) Create(ctx context.Context, v *domain.Venue) error {
	const op = "postgres.VenueRepo.Create"

	db := r.handle()

	schedule, err := json.Marshal(v.Schedule)
	if err != nil {
		return fmt.Errorf("%s: encode schedule: %w", op, err)
	}

	sports := v.Sports
	if sports == nil {
		sports = []string{}
	}

	if _, err := db.Exec(ctx,
		`INSERT INTO venues(id, name, schedule, sports)
		 VALUES ($1, $2, $3, $4)`,
		v.ID, v.Name, schedule, sports,
	); err != nil {
		err = translateDBErr(err)
		if errors.Is(err, repository.ErrConflict) {
			return fmt.Errorf("%s:%w", op, repository.ErrVenueAlreadyExist)
		}
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

// IncrementCounters atomically adds to the venue's aggregate counters.
//
// Returns:
//   - error: repository.ErrNotFound if the venue is not found.
func (r *VenueRepo) IncrementCounters(
	ctx context.Context,
	id string,
	bookings int64,
	owed decimal.Decimal,
) error {
	const op = "postgres.VenueRepo.IncrementCounters"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE venues
		 SET total_bookings = total_bookings + $2,
		     amount_owed = amount_owed + $3
		 WHERE id = $1`,
		id, bookings, owed,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}
