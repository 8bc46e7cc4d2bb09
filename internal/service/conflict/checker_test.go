package conflict

import (
	"context"
	"testing"
	"time"

	"github.com/kirinyoku/slotgo/internal/domain"
	"github.com/kirinyoku/slotgo/internal/repository"
	"github.com/kirinyoku/slotgo/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2030, 5, 6, 8, 0, 0, 0, time.UTC)

func ts(start, end string) domain.TimeSlot {
	return domain.TimeSlot{StartTime: start, EndTime: end, PlayableArea: 1}
}

func seedHold(t *testing.T, store *memory.Store, user, session string, until time.Time, slots ...domain.TimeSlot) *domain.Booking {
	t.Helper()
	ctx := context.Background()

	b := &domain.Booking{VenueID: "v1", Sport: "tennis", UserID: user, UserDisplay: "User " + user, SessionID: session, LockedUntil: &until}
	require.NoError(t, store.Bookings().CreateHold(ctx, b))
	for _, s := range slots {
		require.NoError(t, store.Bookings().ClaimSlot(ctx, repository.SlotClaim{
			BookingID: b.ID, VenueID: "v1", Sport: "tennis", Date: "2030-05-06", Slot: s,
		}, now))
	}
	return b
}

func newStore(t *testing.T) *memory.Store {
	t.Helper()
	store := memory.NewStore()
	require.NoError(t, store.Venues().Create(context.Background(), &domain.Venue{ID: "v1"}))
	return store
}

func TestCheck_ReportsOtherSessionHold(t *testing.T) {
	store := newStore(t)
	bob := seedHold(t, store, "bob", "s-bob", now.Add(10*time.Minute), ts("10:00 AM", "11:00 AM"))

	c := NewChecker(store, func() time.Time { return now })
	rep, err := c.Check(context.Background(), Request{
		VenueID: "v1", Sport: "tennis", Date: "2030-05-06", PlayableArea: 1,
		Slots:  []domain.TimeSlot{ts("10:00 AM", "11:00 AM"), ts("11:00 AM", "12:00 PM")},
		UserID: "alice", SessionID: "s-alice",
	})
	require.NoError(t, err)

	require.Len(t, rep.Conflicts, 1)
	assert.Equal(t, bob.ID, rep.Conflicts[0].BookingID)
	assert.Equal(t, "bob", rep.Conflicts[0].HolderID)
	assert.Equal(t, "User bob", rep.Conflicts[0].HolderName)
	assert.Equal(t, ReasonHeld, rep.Conflicts[0].Reason)
	assert.Equal(t, []domain.TimeSlot{ts("11:00 AM", "12:00 PM")}, rep.Clean)
}

func TestCheck_OwnSessionIsClean(t *testing.T) {
	store := newStore(t)
	seedHold(t, store, "alice", "s-alice", now.Add(10*time.Minute), ts("10:00 AM", "11:00 AM"))

	c := NewChecker(store, func() time.Time { return now })
	rep, err := c.Check(context.Background(), Request{
		VenueID: "v1", Sport: "tennis", Date: "2030-05-06", PlayableArea: 1,
		Slots:  []domain.TimeSlot{ts("10:00 AM", "11:00 AM")},
		UserID: "alice", SessionID: "s-alice",
	})
	require.NoError(t, err)
	assert.False(t, rep.HasConflicts())

	rep, err = c.Check(context.Background(), Request{
		VenueID: "v1", Sport: "tennis", Date: "2030-05-06", PlayableArea: 1,
		Slots:  []domain.TimeSlot{ts("10:00 AM", "11:00 AM")},
		UserID: "alice", SessionID: "another-tab",
	})
	require.NoError(t, err)
	assert.True(t, rep.HasConflicts())
}

func TestCheck_ConfirmedBookingIsBooked(t *testing.T) {
	store := newStore(t)
	b := seedHold(t, store, "bob", "s-bob", now.Add(10*time.Minute), ts("10:00 AM", "11:00 AM"))
	require.NoError(t, store.Bookings().Confirm(context.Background(), b.ID, repository.Payment{}, now))

	c := NewChecker(store, func() time.Time { return now.Add(time.Hour) })
	rep, err := c.Check(context.Background(), Request{
		VenueID: "v1", Sport: "tennis", Date: "2030-05-06", PlayableArea: 1,
		Slots:  []domain.TimeSlot{{StartTime: "10:00 AM", EndTime: "11:00 AM"}},
		UserID: "bob", SessionID: "s-bob",
	})
	require.NoError(t, err)
	require.Len(t, rep.Conflicts, 1)
	assert.Equal(t, ReasonBooked, rep.Conflicts[0].Reason)
}

func TestCheck_ExpiredHoldIsClean(t *testing.T) {
	store := newStore(t)
	seedHold(t, store, "bob", "s-bob", now.Add(time.Minute), ts("10:00 AM", "11:00 AM"))

	c := NewChecker(store, func() time.Time { return now.Add(2 * time.Minute) })
	rep, err := c.Check(context.Background(), Request{
		VenueID: "v1", Sport: "tennis", Date: "2030-05-06", PlayableArea: 1,
		Slots:  []domain.TimeSlot{ts("10:00 AM", "11:00 AM")},
		UserID: "alice", SessionID: "s-alice",
	})
	require.NoError(t, err)
	assert.Len(t, rep.Clean, 1)
}
