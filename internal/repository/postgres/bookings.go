package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/slotgo/internal/domain"
	"github.com/kirinyoku/slotgo/internal/repository"
)

const bookingColumns = `id, venue_id, sport, user_id, user_display, session_id, status,
	is_locked, locked_until, is_payment_confirm, base_amount, fees, total_amount,
	payment_ref, created_at, updated_at`

type BookingRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *BookingRepo) With(db DB) *BookingRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *BookingRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// Get retrieves a booking with its scheduled dates.
//
// Returns:
//   - *domain.Booking: the booking when found.
//   - error: repository.ErrNotFound if the booking does not exist.
func (r *BookingRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	const op = "postgres.BookingRepo.Get"

	db := r.handle()

	b, err := scanBooking(db.QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = $1`,
		id,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	if err := r.loadSlots(ctx, db, b); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return b, nil
}

// FindOpenHold retrieves the unconfirmed hold of a checkout session.
//
// Returns:
//   - *domain.Booking: the newest open hold of the session.
//   - error: repository.ErrHoldNotFound if the session holds nothing.
func (r *BookingRepo) FindOpenHold(ctx context.Context, key repository.SessionKey) (*domain.Booking, error) {
	const op = "postgres.BookingRepo.FindOpenHold"

	db := r.handle()

	b, err := scanBooking(db.QueryRow(ctx,
		`SELECT `+bookingColumns+`
		 FROM bookings
		 WHERE venue_id = $1 AND sport = $2 AND user_id = $3 AND session_id = $4
		   AND is_locked AND NOT is_payment_confirm
		 ORDER BY created_at DESC
		 LIMIT 1`,
		key.VenueID, key.Sport, key.UserID, key.SessionID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s:%w", op, repository.ErrHoldNotFound)
		}
		return nil, wrapDBErr(op, err)
	}

	if err := r.loadSlots(ctx, db, b); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return b, nil
}

// FindBySession retrieves the booking a checkout session should confirm:
// an open hold when one exists, else the newest booking of the session.
//
// Returns:
//   - error: repository.ErrNotFound if the session has no booking.
func (r *BookingRepo) FindBySession(ctx context.Context, venueID, sport, sessionID string) (*domain.Booking, error) {
	const op = "postgres.BookingRepo.FindBySession"

	db := r.handle()

	b, err := scanBooking(db.QueryRow(ctx,
		`SELECT `+bookingColumns+`
		 FROM bookings
		 WHERE venue_id = $1 AND sport = $2 AND session_id = $3
		 ORDER BY (is_locked AND NOT is_payment_confirm) DESC, created_at DESC
		 LIMIT 1`,
		venueID, sport, sessionID,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	if err := r.loadSlots(ctx, db, b); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return b, nil
}

// CreateHold inserts a hold header. Slots are attached with ClaimSlot.
func (r *BookingRepo) CreateHold(ctx context.Context, b *domain.Booking) error {
	const op = "postgres.BookingRepo.CreateHold"

	db := r.handle()

	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}

	if _, err := db.Exec(ctx,
		`INSERT INTO bookings(id, venue_id, sport, user_id, user_display, session_id,
		                      status, is_locked, locked_until, is_payment_confirm,
		                      created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, $8, FALSE, $9, $9)`,
		b.ID, b.VenueID, b.Sport, b.UserID, b.UserDisplay, b.SessionID,
		string(domain.BookingPending), b.LockedUntil, b.CreatedAt,
	); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

// ClaimSlot attaches one slot tuple to a booking through the unique index on
// booking_slots. It runs on the bound handle; the lock service always calls
// it inside Store.RunTx.
//
// Parameters:
//   - claim: the booking and the slot tuple to claim.
//   - now: instant used to decide which holds on the tuple have expired.
//
// Returns:
//   - error: repository.ErrConflict if another booking occupies the tuple.
func (r *BookingRepo) ClaimSlot(ctx context.Context, claim repository.SlotClaim, now time.Time) error {
	const op = "postgres.BookingRepo.ClaimSlot"

	if err := r.claimSlotCore(ctx, r.handle(), claim, now); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

// ExtendHold moves the expiry of an unconfirmed hold.
func (r *BookingRepo) ExtendHold(ctx context.Context, id uuid.UUID, lockedUntil time.Time) error {
	const op = "postgres.BookingRepo.ExtendHold"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE bookings
		 SET is_locked = TRUE, locked_until = $2, updated_at = now()
		 WHERE id = $1 AND NOT is_payment_confirm`,
		id, lockedUntil,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrHoldNotFound)
	}

	return nil
}

// ReleaseSlot detaches one slot from a booking.
//
// Returns:
//   - bool: true if the slot was attached to the booking.
//   - int: number of slots the booking still holds.
func (r *BookingRepo) ReleaseSlot(
	ctx context.Context,
	id uuid.UUID,
	date string,
	slot domain.TimeSlot,
) (bool, int, error) {
	const op = "postgres.BookingRepo.ReleaseSlot"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`DELETE FROM booking_slots
		 WHERE booking_id = $1 AND slot_date = $2::date
		   AND playable_area = $3 AND start_time = $4 AND end_time = $5`,
		id, date, slot.PlayableArea, slot.StartTime, slot.EndTime,
	)
	if err != nil {
		return false, 0, wrapDBErr(op, err)
	}

	var remaining int
	if err := db.QueryRow(ctx,
		`SELECT count(*) FROM booking_slots WHERE booking_id = $1`,
		id,
	).Scan(&remaining); err != nil {
		return false, 0, wrapDBErr(op, err)
	}

	return tag.RowsAffected() > 0, remaining, nil
}

// Delete removes a booking; its slot rows go with it.
//
// Returns:
//   - error: repository.ErrNotFound if the booking does not exist.
func (r *BookingRepo) Delete(ctx context.Context, id uuid.UUID) error {
	const op = "postgres.BookingRepo.Delete"

	db := r.handle()

	tag, err := db.Exec(ctx, `DELETE FROM bookings WHERE id = $1`, id)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}

// ListOccupancy lists the slot rows that block their tuple at now for one
// venue, sport and date.
func (r *BookingRepo) ListOccupancy(
	ctx context.Context,
	venueID, sport, date string,
	now time.Time,
) ([]domain.Occupancy, error) {
	const op = "postgres.BookingRepo.ListOccupancy"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT s.playable_area, s.start_time, s.end_time, to_char(s.slot_date, 'YYYY-MM-DD'),
		        b.id, b.user_id, b.user_display, b.session_id, b.status,
		        (b.is_locked AND NOT b.is_payment_confirm), b.locked_until
		 FROM booking_slots s
		 JOIN bookings b ON b.id = s.booking_id
		 WHERE s.venue_id = $1 AND s.sport = $2 AND s.slot_date = $3::date
		   AND (
		        (b.is_locked AND NOT b.is_payment_confirm AND b.locked_until > $4)
		     OR (NOT (b.is_locked AND NOT b.is_payment_confirm)
		         AND b.status IN ('pending', 'confirmed', 'completed'))
		   )
		 ORDER BY s.playable_area, s.created_at`,
		venueID, sport, date, now,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var out []domain.Occupancy
	for rows.Next() {
		var o domain.Occupancy
		var status string

		if err := rows.Scan(
			&o.Slot.PlayableArea,
			&o.Slot.StartTime,
			&o.Slot.EndTime,
			&o.Date,
			&o.BookingID,
			&o.UserID,
			&o.UserDisplay,
			&o.SessionID,
			&status,
			&o.IsHold,
			&o.LockedUntil,
		); err != nil {
			return nil, wrapDBErr(op, err)
		}

		o.Status = domain.BookingStatus(status)
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

// Confirm stamps payment on an unconfirmed booking.
//
// Returns:
//   - error: repository.ErrAlreadyConfirmed if the booking was confirmed before.
//   - error: repository.ErrNotFound if the booking does not exist.
func (r *BookingRepo) Confirm(ctx context.Context, id uuid.UUID, p repository.Payment, now time.Time) error {
	const op = "postgres.BookingRepo.Confirm"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE bookings
		 SET status = $2, is_payment_confirm = TRUE, is_locked = FALSE, locked_until = NULL,
		     base_amount = $3, fees = $4, total_amount = $5, payment_ref = $6, updated_at = $7
		 WHERE id = $1 AND NOT is_payment_confirm`,
		id, string(domain.BookingConfirmed), p.BaseAmount, p.Fees, p.TotalAmount, p.PaymentRef, now,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() > 0 {
		return nil
	}

	var confirmed bool
	if err := db.QueryRow(ctx,
		`SELECT is_payment_confirm FROM bookings WHERE id = $1`,
		id,
	).Scan(&confirmed); err != nil {
		return wrapDBErr(op, err)
	}

	if confirmed {
		return fmt.Errorf("%s:%w", op, repository.ErrAlreadyConfirmed)
	}

	return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
}

// ListExpiredHolds lists unconfirmed holds whose expiry passed before now,
// oldest first.
func (r *BookingRepo) ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]domain.Booking, error) {
	const op = "postgres.BookingRepo.ListExpiredHolds"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT `+bookingColumns+`
		 FROM bookings
		 WHERE is_locked AND NOT is_payment_confirm AND locked_until < $1
		 ORDER BY locked_until
		 LIMIT $2`,
		now, limit,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	var out []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			rows.Close()
			return nil, wrapDBErr(op, err)
		}
		out = append(out, *b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	for i := range out {
		if err := r.loadSlots(ctx, db, &out[i]); err != nil {
			return nil, wrapDBErr(op, err)
		}
	}

	return out, nil
}

// DeleteExpiredHold removes a hold only if it is still unconfirmed and
// expired, so a hold confirmed or extended since it was listed survives.
func (r *BookingRepo) DeleteExpiredHold(ctx context.Context, id uuid.UUID, now time.Time) error {
	const op = "postgres.BookingRepo.DeleteExpiredHold"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`DELETE FROM bookings
		 WHERE id = $1 AND is_locked AND NOT is_payment_confirm AND locked_until < $2`,
		id, now,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}

func (r *BookingRepo) claimSlotCore(ctx context.Context, db DB, c repository.SlotClaim, now time.Time) error {
	if _, err := db.Exec(ctx,
		`DELETE FROM booking_slots s
		 USING bookings b
		 WHERE s.booking_id = b.id
		   AND s.venue_id = $1 AND s.sport = $2 AND s.slot_date = $3::date
		   AND s.playable_area = $4 AND s.start_time = $5 AND s.end_time = $6
		   AND ((b.is_locked AND NOT b.is_payment_confirm AND b.locked_until <= $7)
		     OR (NOT (b.is_locked AND NOT b.is_payment_confirm) AND b.status = 'cancelled'))`,
		c.VenueID, c.Sport, c.Date, c.Slot.PlayableArea, c.Slot.StartTime, c.Slot.EndTime, now,
	); err != nil {
		return translateDBErr(err)
	}

	tag, err := db.Exec(ctx,
		`INSERT INTO booking_slots(booking_id, venue_id, sport, slot_date, playable_area, start_time, end_time)
		 VALUES ($1, $2, $3, $4::date, $5, $6, $7)
		 ON CONFLICT (venue_id, sport, slot_date, playable_area, start_time, end_time) DO NOTHING`,
		c.BookingID, c.VenueID, c.Sport, c.Date, c.Slot.PlayableArea, c.Slot.StartTime, c.Slot.EndTime,
	)
	if err != nil {
		return translateDBErr(err)
	}

	if tag.RowsAffected() == 1 {
		return nil
	}

	var owner uuid.UUID
	if err := db.QueryRow(ctx,
		`SELECT booking_id FROM booking_slots
		 WHERE venue_id = $1 AND sport = $2 AND slot_date = $3::date
		   AND playable_area = $4 AND start_time = $5 AND end_time = $6`,
		c.VenueID, c.Sport, c.Date, c.Slot.PlayableArea, c.Slot.StartTime, c.Slot.EndTime,
	).Scan(&owner); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// the occupant went away between insert and lookup
			return repository.ErrConflict
		}
		return translateDBErr(err)
	}

	if owner == c.BookingID {
		return nil
	}

	return repository.ErrConflict
}

func (r *BookingRepo) loadSlots(ctx context.Context, db DB, b *domain.Booking) error {
	rows, err := db.Query(ctx,
		`SELECT to_char(slot_date, 'YYYY-MM-DD'), playable_area, start_time, end_time
		 FROM booking_slots
		 WHERE booking_id = $1
		 ORDER BY slot_date, playable_area, created_at`,
		b.ID,
	)
	if err != nil {
		return err
	}

	defer rows.Close()

	b.ScheduledDates = nil
	index := make(map[string]int)
	for rows.Next() {
		var date string
		var s domain.TimeSlot

		if err := rows.Scan(&date, &s.PlayableArea, &s.StartTime, &s.EndTime); err != nil {
			return err
		}

		i, ok := index[date]
		if !ok {
			b.ScheduledDates = append(b.ScheduledDates, domain.ScheduledDate{Date: date})
			i = len(b.ScheduledDates) - 1
			index[date] = i
		}
		b.ScheduledDates[i].Slots = append(b.ScheduledDates[i].Slots, s)
	}

	return rows.Err()
}

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var b domain.Booking
	var status string

	if err := row.Scan(
		&b.ID,
		&b.VenueID,
		&b.Sport,
		&b.UserID,
		&b.UserDisplay,
		&b.SessionID,
		&status,
		&b.IsLocked,
		&b.LockedUntil,
		&b.IsPaymentConfirm,
		&b.BaseAmount,
		&b.Fees,
		&b.TotalAmount,
		&b.PaymentRef,
		&b.CreatedAt,
		&b.UpdatedAt,
	); err != nil {
		return nil, err
	}

	b.Status = domain.BookingStatus(status)

	return &b, nil
}
