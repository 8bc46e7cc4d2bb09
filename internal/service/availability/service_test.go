package availability

import (
	"context"
	"testing"
	"time"

	"github.com/kirinyoku/slotgo/internal/domain"
	"github.com/kirinyoku/slotgo/internal/repository"
	"github.com/kirinyoku/slotgo/internal/repository/memory"
	redisrepo "github.com/kirinyoku/slotgo/internal/repository/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2030-05-06 is a Monday.
const day = "2030-05-06"

func weekSchedule(open, close string) domain.Schedule {
	s := domain.Schedule{}
	for _, d := range []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday"} {
		s[d] = domain.DaySchedule{Open: true, OpenTime: open, CloseTime: close}
	}
	s["sunday"] = domain.DaySchedule{Open: false}
	return s
}

func setup(t *testing.T, now time.Time) (*Service, *memory.Store) {
	t.Helper()

	store := memory.NewStore()
	require.NoError(t, store.Venues().Create(context.Background(), &domain.Venue{
		ID:       "v1",
		Name:     "Center Court",
		Schedule: weekSchedule("9:00 AM", "5:00 PM"),
		Sports:   []string{"tennis"},
	}))

	svc := New(store, nil, Config{Now: func() time.Time { return now }})
	return svc, store
}

func holdSlots(t *testing.T, store *memory.Store, user string, until time.Time, slots ...domain.TimeSlot) {
	t.Helper()
	ctx := context.Background()

	b := &domain.Booking{VenueID: "v1", Sport: "tennis", UserID: user, UserDisplay: user, SessionID: "s-" + user, LockedUntil: &until}
	require.NoError(t, store.Bookings().CreateHold(ctx, b))
	for _, s := range slots {
		require.NoError(t, store.Bookings().ClaimSlot(ctx, repository.SlotClaim{
			BookingID: b.ID, VenueID: "v1", Sport: "tennis", Date: day, Slot: s,
		}, until.Add(-time.Minute)))
	}
}

func ts(start, end string) domain.TimeSlot {
	return domain.TimeSlot{StartTime: start, EndTime: end, PlayableArea: 1}
}

func TestResolve_FutureDayFullGrid(t *testing.T) {
	svc, _ := setup(t, time.Date(2030, 5, 1, 8, 0, 0, 0, time.UTC))

	res, err := svc.Resolve(context.Background(), Query{VenueID: "v1", Sport: "tennis", Date: day, PlayableArea: 1})
	require.NoError(t, err)

	assert.Len(t, res.Available, 8)
	assert.Equal(t, 8, res.TotalSlots)
	assert.False(t, res.IsToday)
	assert.Empty(t, res.CutoffMessage)
}

func TestResolve_SameDayCutoffKeepsCurrentHour(t *testing.T) {
	svc, _ := setup(t, time.Date(2030, 5, 6, 14, 15, 0, 0, time.UTC))

	res, err := svc.Resolve(context.Background(), Query{VenueID: "v1", Sport: "tennis", Date: day, PlayableArea: 1})
	require.NoError(t, err)

	require.Len(t, res.Available, 3)
	assert.Equal(t, "2:00 PM", res.Available[0].StartTime)
	assert.Equal(t, "4:00 PM", res.Available[2].StartTime)
	assert.True(t, res.IsToday)
	assert.Contains(t, res.CutoffMessage, "2:00 PM")
}

func TestResolve_PartitionsHolds(t *testing.T) {
	now := time.Date(2030, 5, 1, 8, 0, 0, 0, time.UTC)
	svc, store := setup(t, now)

	holdSlots(t, store, "bob", now.Add(10*time.Minute), ts("10:00 AM", "11:00 AM"))
	holdSlots(t, store, "alice", now.Add(10*time.Minute), ts("11:00 AM", "12:00 PM"))

	res, err := svc.Resolve(context.Background(), Query{VenueID: "v1", Sport: "tennis", Date: day, PlayableArea: 1, UserID: "alice"})
	require.NoError(t, err)

	require.Len(t, res.Held, 1)
	assert.Equal(t, "bob", res.Held[0].HolderID)
	require.Len(t, res.HeldByYou, 1)
	assert.Equal(t, "11:00 AM", res.HeldByYou[0].StartTime)

	assert.Len(t, res.Available, 7)
	assert.NotContains(t, res.Available, ts("10:00 AM", "11:00 AM"))
	assert.Contains(t, res.Available, ts("11:00 AM", "12:00 PM"))
}

func TestResolve_ExpiredHoldIsAvailable(t *testing.T) {
	now := time.Date(2030, 5, 1, 8, 0, 0, 0, time.UTC)
	svc, store := setup(t, now)

	holdSlots(t, store, "bob", now.Add(-time.Second), ts("10:00 AM", "11:00 AM"))

	res, err := svc.Resolve(context.Background(), Query{VenueID: "v1", Sport: "tennis", Date: day, PlayableArea: 1})
	require.NoError(t, err)
	assert.Len(t, res.Available, 8)
	assert.Empty(t, res.Held)
}

func TestResolve_OtherAreaDoesNotBlock(t *testing.T) {
	now := time.Date(2030, 5, 1, 8, 0, 0, 0, time.UTC)
	svc, store := setup(t, now)

	other := ts("10:00 AM", "11:00 AM")
	other.PlayableArea = 2
	holdSlots(t, store, "bob", now.Add(10*time.Minute), other)

	res, err := svc.Resolve(context.Background(), Query{VenueID: "v1", Sport: "tennis", Date: day, PlayableArea: 1})
	require.NoError(t, err)
	assert.Len(t, res.Available, 8)
}

func TestResolve_ClosedDay(t *testing.T) {
	svc, _ := setup(t, time.Date(2030, 5, 1, 8, 0, 0, 0, time.UTC))

	res, err := svc.Resolve(context.Background(), Query{VenueID: "v1", Sport: "tennis", Date: "2030-05-05", PlayableArea: 1})
	require.NoError(t, err)
	assert.True(t, res.Closed)
	assert.Empty(t, res.Available)
	assert.Contains(t, res.Reason, "Sunday")
}

func TestResolve_Errors(t *testing.T) {
	svc, _ := setup(t, time.Date(2030, 5, 1, 8, 0, 0, 0, time.UTC))
	ctx := context.Background()

	_, err := svc.Resolve(ctx, Query{VenueID: "v1", Sport: "tennis", Date: "06/05/2030"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Resolve(ctx, Query{VenueID: "missing", Sport: "tennis", Date: day})
	assert.ErrorIs(t, err, ErrVenueNotFound)

	_, err = svc.Resolve(ctx, Query{VenueID: "v1", Sport: "padel", Date: day})
	assert.ErrorIs(t, err, ErrSportNotSupported)
}

func TestGrid_CheckBookable(t *testing.T) {
	svc, _ := setup(t, time.Date(2030, 5, 6, 14, 15, 0, 0, time.UTC))

	g, err := svc.Grid(context.Background(), "v1", "tennis", day, 1)
	require.NoError(t, err)

	assert.NoError(t, g.CheckBookable(ts("3:00 PM", "4:00 PM")))
	assert.ErrorIs(t, g.CheckBookable(ts("10:00 AM", "11:00 AM")), ErrSlotAlreadyStarted)
	assert.ErrorIs(t, g.CheckBookable(ts("8:00 PM", "9:00 PM")), ErrSlotOutsideHours)
}

func TestVenue_InsideTxSkipsSharedCacheFill(t *testing.T) {
	store := memory.NewStore()
	require.NoError(t, store.Venues().Create(context.Background(), &domain.Venue{
		ID: "v1", Name: "Center Court", Schedule: weekSchedule("9:00 AM", "5:00 PM"), Sports: []string{"tennis"},
	}))

	// unreachable redis: every cache read misses and falls to the loader
	rdb := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	svc := New(store, redisrepo.New(rdb), Config{VenueCacheTTL: time.Minute})

	ctx := context.Background()
	done := make(chan error, 1)
	go func() {
		done <- store.RunTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			go func() { _, _ = svc.Venue(ctx, "v1") }()
			// let the outside read enter the cache fill and block on the store
			time.Sleep(200 * time.Millisecond)

			v, err := svc.With(tx).Venue(ctx, "v1")
			if err != nil {
				return err
			}
			if v.ID != "v1" {
				return assert.AnError
			}
			return nil
		})
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("venue read inside a transaction waited on a cache fill blocked by that transaction")
	}
}
