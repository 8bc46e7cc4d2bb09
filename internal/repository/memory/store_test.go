package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/slotgo/internal/domain"
	"github.com/kirinyoku/slotgo/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	t0   = time.Date(2030, 5, 6, 9, 0, 0, 0, time.UTC)
	slot = domain.TimeSlot{StartTime: "10:00 AM", EndTime: "11:00 AM", PlayableArea: 1}
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore()
	require.NoError(t, s.Venues().Create(context.Background(), &domain.Venue{ID: "v1", Name: "Court"}))
	return s
}

func hold(t *testing.T, s *Store, user string, until time.Time) *domain.Booking {
	t.Helper()
	b := &domain.Booking{
		VenueID:     "v1",
		Sport:       "tennis",
		UserID:      user,
		SessionID:   "sess-" + user,
		LockedUntil: &until,
		CreatedAt:   t0,
	}
	require.NoError(t, s.Bookings().CreateHold(context.Background(), b))
	return b
}

func claim(id uuid.UUID) repository.SlotClaim {
	return repository.SlotClaim{BookingID: id, VenueID: "v1", Sport: "tennis", Date: "2030-05-06", Slot: slot}
}

func TestClaimSlot_SecondClaimConflicts(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	a := hold(t, s, "alice", t0.Add(10*time.Minute))
	b := hold(t, s, "bob", t0.Add(10*time.Minute))

	require.NoError(t, s.Bookings().ClaimSlot(ctx, claim(a.ID), t0))
	require.NoError(t, s.Bookings().ClaimSlot(ctx, claim(a.ID), t0), "re-claim by owner is a no-op")

	err := s.Bookings().ClaimSlot(ctx, claim(b.ID), t0)
	assert.ErrorIs(t, err, repository.ErrConflict)

	got, err := s.Bookings().Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.SlotCount())
}

func TestClaimSlot_ExpiredHoldIsReclaimed(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	a := hold(t, s, "alice", t0.Add(10*time.Minute))
	b := hold(t, s, "bob", t0.Add(30*time.Minute))
	require.NoError(t, s.Bookings().ClaimSlot(ctx, claim(a.ID), t0))

	later := t0.Add(11 * time.Minute)
	require.NoError(t, s.Bookings().ClaimSlot(ctx, claim(b.ID), later))

	occ, err := s.Bookings().ListOccupancy(ctx, "v1", "tennis", "2030-05-06", later)
	require.NoError(t, err)
	require.Len(t, occ, 1)
	assert.Equal(t, b.ID, occ[0].BookingID)

	old, err := s.Bookings().Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Zero(t, old.SlotCount())
}

func TestListOccupancy_SkipsExpiredAndCancelled(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	a := hold(t, s, "alice", t0.Add(time.Minute))
	require.NoError(t, s.Bookings().ClaimSlot(ctx, claim(a.ID), t0))

	occ, err := s.Bookings().ListOccupancy(ctx, "v1", "tennis", "2030-05-06", t0)
	require.NoError(t, err)
	assert.Len(t, occ, 1)
	assert.True(t, occ[0].IsHold)

	occ, err = s.Bookings().ListOccupancy(ctx, "v1", "tennis", "2030-05-06", t0.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Empty(t, occ)
}

func TestRunTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	a := hold(t, s, "alice", t0.Add(10*time.Minute))

	boom := errors.New("boom")
	err := s.RunTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		require.NoError(t, tx.Bookings().ClaimSlot(ctx, claim(a.ID), t0))
		require.NoError(t, tx.Venues().IncrementCounters(ctx, "v1", 1, decimal.NewFromInt(5)))
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.Bookings().Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Zero(t, got.SlotCount())

	v, err := s.Venues().Get(ctx, "v1")
	require.NoError(t, err)
	assert.Zero(t, v.TotalBookings)
	assert.True(t, v.AmountOwed.IsZero())
}

func TestConfirm_SecondCallReportsAlreadyConfirmed(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	a := hold(t, s, "alice", t0.Add(10*time.Minute))

	p := repository.Payment{PaymentRef: "pay_1", TotalAmount: decimal.NewFromInt(20)}
	require.NoError(t, s.Bookings().Confirm(ctx, a.ID, p, t0))
	assert.ErrorIs(t, s.Bookings().Confirm(ctx, a.ID, p, t0), repository.ErrAlreadyConfirmed)

	got, err := s.Bookings().Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingConfirmed, got.Status)
	assert.False(t, got.IsHold())
	assert.Nil(t, got.LockedUntil)
}

func TestFindBySession_PrefersOpenHold(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	a := hold(t, s, "alice", t0.Add(10*time.Minute))
	require.NoError(t, s.Bookings().Confirm(ctx, a.ID, repository.Payment{}, t0))
	b := hold(t, s, "alice", t0.Add(10*time.Minute))

	got, err := s.Bookings().FindBySession(ctx, "v1", "tennis", "sess-alice")
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)

	_, err = s.Bookings().FindOpenHold(ctx, repository.SessionKey{VenueID: "v1", Sport: "tennis", UserID: "bob", SessionID: "x"})
	assert.ErrorIs(t, err, repository.ErrHoldNotFound)
}

func TestDeleteExpiredHold_OnlyWhenExpired(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	a := hold(t, s, "alice", t0.Add(10*time.Minute))
	require.NoError(t, s.Bookings().ClaimSlot(ctx, claim(a.ID), t0))

	assert.ErrorIs(t, s.Bookings().DeleteExpiredHold(ctx, a.ID, t0), repository.ErrNotFound)

	expired, err := s.Bookings().ListExpiredHolds(ctx, t0.Add(time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, expired, 1)

	require.NoError(t, s.Bookings().DeleteExpiredHold(ctx, a.ID, t0.Add(time.Hour)))
	_, err = s.Bookings().Get(ctx, a.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
