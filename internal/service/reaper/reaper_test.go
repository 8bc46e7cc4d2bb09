package reaper

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/kirinyoku/slotgo/internal/domain"
	"github.com/kirinyoku/slotgo/internal/repository"
	"github.com/kirinyoku/slotgo/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rooms struct {
	got []domain.RoomKey
}

func (r *rooms) SlotsChanged(_ context.Context, keys []domain.RoomKey, _ string) {
	r.got = append(r.got, keys...)
}

func seed(t *testing.T, store *memory.Store, user string, until time.Time, date string) *domain.Booking {
	t.Helper()
	ctx := context.Background()

	b := &domain.Booking{VenueID: "v1", Sport: "tennis", UserID: user, SessionID: "s-" + user, LockedUntil: &until}
	require.NoError(t, store.Bookings().CreateHold(ctx, b))
	require.NoError(t, store.Bookings().ClaimSlot(ctx, repository.SlotClaim{
		BookingID: b.ID, VenueID: "v1", Sport: "tennis", Date: date,
		Slot: domain.TimeSlot{StartTime: "10:00 AM", EndTime: "11:00 AM", PlayableArea: 1},
	}, until.Add(-time.Minute)))
	return b
}

func TestSweep_DeletesOnlyExpiredHolds(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2030, 5, 1, 8, 0, 0, 0, time.UTC)

	store := memory.NewStore()
	require.NoError(t, store.Venues().Create(ctx, &domain.Venue{ID: "v1"}))

	stale := seed(t, store, "alice", now.Add(-time.Minute), "2030-05-06")
	live := seed(t, store, "bob", now.Add(time.Minute), "2030-05-07")
	paid := seed(t, store, "carol", now.Add(-time.Hour), "2030-05-08")
	require.NoError(t, store.Bookings().Confirm(ctx, paid.ID, repository.Payment{}, now))

	n := &rooms{}
	r := New(store, n, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{Now: func() time.Time { return now }})

	res, err := r.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Reclaimed)
	assert.Zero(t, res.Failed)

	_, err = store.Bookings().Get(ctx, stale.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = store.Bookings().Get(ctx, live.ID)
	assert.NoError(t, err)
	_, err = store.Bookings().Get(ctx, paid.ID)
	assert.NoError(t, err)

	require.Len(t, n.got, 1)
	assert.Equal(t, "2030-05-06", n.got[0].Date)

	res, err = r.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Reclaimed)
}

func TestRun_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := New(memory.NewStore(), nil, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{Interval: time.Millisecond})

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop")
	}
}
