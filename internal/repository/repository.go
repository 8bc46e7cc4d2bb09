package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/slotgo/internal/domain"
	"github.com/shopspring/decimal"
)

// SlotClaim addresses one slot tuple being claimed for a booking.
type SlotClaim struct {
	BookingID uuid.UUID
	VenueID   string
	Sport     string
	Date      string
	Slot      domain.TimeSlot
}

// SessionKey identifies the open hold of one checkout flow.
type SessionKey struct {
	VenueID   string
	Sport     string
	UserID    string
	SessionID string
}

// Payment carries the fields stamped on a booking when it is confirmed.
type Payment struct {
	PaymentRef  string
	BaseAmount  decimal.Decimal
	Fees        decimal.Decimal
	TotalAmount decimal.Decimal
}

type BookingRepository interface {
	// Get returns the booking with its scheduled dates.
	Get(ctx context.Context, id uuid.UUID) (*domain.Booking, error)

	// FindOpenHold returns the unconfirmed hold of the session, expired or not.
	FindOpenHold(ctx context.Context, key SessionKey) (*domain.Booking, error)

	// FindBySession returns the newest booking of the session in any state.
	FindBySession(ctx context.Context, venueID, sport, sessionID string) (*domain.Booking, error)

	// CreateHold inserts the booking header without slots.
	CreateHold(ctx context.Context, b *domain.Booking) error

	// ClaimSlot attaches a slot to a booking if no other booking occupies the
	// tuple. Expired hold rows on the tuple are purged first. Claiming a slot
	// the booking already owns is a no-op. Returns ErrConflict when another
	// booking occupies the tuple.
	ClaimSlot(ctx context.Context, claim SlotClaim, now time.Time) error

	// ExtendHold moves the hold expiry of an unconfirmed booking.
	ExtendHold(ctx context.Context, id uuid.UUID, lockedUntil time.Time) error

	// ReleaseSlot detaches one slot and reports whether it was attached and
	// how many slots the booking still holds.
	ReleaseSlot(ctx context.Context, id uuid.UUID, date string, slot domain.TimeSlot) (removed bool, remaining int, err error)

	// Delete removes the booking and its slot rows.
	Delete(ctx context.Context, id uuid.UUID) error

	// ListOccupancy returns every slot row of (venue, sport, date) that blocks
	// its tuple at now: non-hold bookings in an occupying status and
	// unexpired holds.
	ListOccupancy(ctx context.Context, venueID, sport, date string, now time.Time) ([]domain.Occupancy, error)

	// Confirm converts an unconfirmed booking into a paid booking. Returns
	// ErrAlreadyConfirmed when it was confirmed before.
	Confirm(ctx context.Context, id uuid.UUID, p Payment, now time.Time) error

	// ListExpiredHolds returns unconfirmed holds whose expiry is before now.
	ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]domain.Booking, error)

	// DeleteExpiredHold removes the hold only if it is still unconfirmed and
	// expired at now. Returns ErrNotFound otherwise.
	DeleteExpiredHold(ctx context.Context, id uuid.UUID, now time.Time) error
}

type VenueRepository interface {
	Get(ctx context.Context, id string) (*domain.Venue, error)
	Create(ctx context.Context, v *domain.Venue) error
	// IncrementCounters adds to the venue's lifetime booking count and amount owed.
	IncrementCounters(ctx context.Context, id string, bookings int64, owed decimal.Decimal) error
}

// Tx exposes repositories bound to one transaction.
type Tx interface {
	Bookings() BookingRepository
	Venues() VenueRepository
}

// Store is the booking store: repositories plus a transaction runner.
type Store interface {
	Tx
	RunTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
