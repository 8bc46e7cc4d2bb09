package lock

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kirinyoku/slotgo/internal/domain"
	"github.com/kirinyoku/slotgo/internal/repository/memory"
	"github.com/kirinyoku/slotgo/internal/service/availability"
	"github.com/kirinyoku/slotgo/internal/service/conflict"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const day = "2030-05-06"

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) SlotsChanged(_ context.Context, rooms []domain.RoomKey, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range rooms {
		r.calls = append(r.calls, reason+"@"+k.String())
	}
}

func (r *recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type fixture struct {
	svc   *Service
	store *memory.Store
	clock *clock
	rec   *recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.NewStore()
	schedule := domain.Schedule{}
	for _, d := range []string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"} {
		schedule[d] = domain.DaySchedule{Open: true, OpenTime: "9:00 AM", CloseTime: "5:00 PM"}
	}
	schedule["sunday"] = domain.DaySchedule{}

	require.NoError(t, store.Venues().Create(context.Background(), &domain.Venue{
		ID: "v1", Name: "Center Court", Schedule: schedule, Sports: []string{"tennis"},
	}))

	clk := &clock{t: time.Date(2030, 5, 1, 8, 0, 0, 0, time.UTC)}
	rec := &recorder{}
	avail := availability.New(store, nil, availability.Config{Now: clk.Now})
	checker := conflict.NewChecker(store, clk.Now)

	return &fixture{
		svc:   New(store, avail, checker, rec, Config{Now: clk.Now}),
		store: store,
		clock: clk,
		rec:   rec,
	}
}

func ts(start, end string) domain.TimeSlot {
	return domain.TimeSlot{StartTime: start, EndTime: end, PlayableArea: 1}
}

func req(user string, slot domain.TimeSlot) SlotRequest {
	return SlotRequest{
		VenueID:   "v1",
		Sport:     "tennis",
		Date:      day,
		Slot:      slot,
		UserID:    user,
		SessionID: "s-" + user,
	}
}

func TestLockSlot_CreatesHoldAndAppends(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.LockSlot(ctx, req("alice", ts("10:00 AM", "11:00 AM")))
	require.NoError(t, err)
	require.True(t, first.Locked())
	assert.Equal(t, f.clock.Now().Add(10*time.Minute), first.LockedUntil)

	f.clock.Advance(3 * time.Minute)
	second, err := f.svc.LockSlot(ctx, req("alice", ts("11:00 AM", "12:00 PM")))
	require.NoError(t, err)
	require.True(t, second.Locked())

	assert.Equal(t, first.BookingID, second.BookingID)
	require.Len(t, second.ScheduledDates, 1)
	assert.Len(t, second.ScheduledDates[0].Slots, 2)
	assert.Equal(t, f.clock.Now().Add(10*time.Minute), second.LockedUntil)

	again, err := f.svc.LockSlot(ctx, req("alice", ts("11:00 AM", "12:00 PM")))
	require.NoError(t, err)
	assert.Len(t, again.ScheduledDates[0].Slots, 2, "re-locking a held slot does not duplicate it")

	assert.Contains(t, f.rec.Calls(), ReasonLocked+"@v1:tennis:"+day+":1")
}

func TestLockSlot_OtherSessionConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.LockSlot(ctx, req("alice", ts("10:00 AM", "11:00 AM")))
	require.NoError(t, err)

	res, err := f.svc.LockSlot(ctx, req("bob", ts("10:00 AM", "11:00 AM")))
	require.NoError(t, err)
	require.False(t, res.Locked())
	assert.Equal(t, "alice", res.Conflicts[0].HolderID)
	assert.Equal(t, conflict.ReasonHeld, res.Conflicts[0].Reason)
}

func TestLockSlot_SportSpellingSharesSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.LockSlot(ctx, req("alice", ts("10:00 AM", "11:00 AM")))
	require.NoError(t, err)

	r := req("bob", ts("10:00 AM", "11:00 AM"))
	r.Sport = " Tennis"
	res, err := f.svc.LockSlot(ctx, r)
	require.NoError(t, err)
	require.False(t, res.Locked())
	assert.Equal(t, "alice", res.Conflicts[0].HolderID)

	r.UserID, r.SessionID = "alice", "s-alice"
	r.Slot = ts("11:00 AM", "12:00 PM")
	again, err := f.svc.LockSlot(ctx, r)
	require.NoError(t, err)
	require.True(t, again.Locked())
	assert.Len(t, again.ScheduledDates[0].Slots, 2, "alice's hold is extended, not duplicated")

	b, err := f.store.Bookings().Get(ctx, again.BookingID)
	require.NoError(t, err)
	assert.Equal(t, "tennis", b.Sport)
}

func TestLockSlot_MutualExclusion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.svc.LockSlot(ctx, req(fmt.Sprintf("user-%d", i), ts("1:00 PM", "2:00 PM")))
			if !assert.NoError(t, err) {
				return
			}
			if res.Locked() {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
}

func TestLockSlot_ExpiredHoldIsReclaimed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.LockSlot(ctx, req("alice", ts("10:00 AM", "11:00 AM")))
	require.NoError(t, err)

	f.clock.Advance(10*time.Minute + time.Second)

	res, err := f.svc.LockSlot(ctx, req("bob", ts("10:00 AM", "11:00 AM")))
	require.NoError(t, err)
	assert.True(t, res.Locked())
}

func TestLockSlot_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r := req("alice", ts("10:00 AM", "11:00 AM"))
	r.SessionID = ""
	_, err := f.svc.LockSlot(ctx, r)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.LockSlot(ctx, req("alice", ts("7:00 PM", "8:00 PM")))
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.ErrorIs(t, err, availability.ErrSlotOutsideHours)

	r = req("alice", ts("10:00 AM", "11:00 AM"))
	r.VenueID = "nope"
	_, err = f.svc.LockSlot(ctx, r)
	assert.ErrorIs(t, err, ErrVenueNotFound)
}

func TestReleaseSlot_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.LockSlot(ctx, req("alice", ts("10:00 AM", "11:00 AM")))
	require.NoError(t, err)
	_, err = f.svc.LockSlot(ctx, req("alice", ts("11:00 AM", "12:00 PM")))
	require.NoError(t, err)

	res, err := f.svc.ReleaseSlot(ctx, req("alice", ts("10:00 AM", "11:00 AM")))
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.False(t, res.BookingDeleted)

	res, err = f.svc.ReleaseSlot(ctx, req("alice", ts("10:00 AM", "11:00 AM")))
	require.NoError(t, err)
	assert.False(t, res.Found)

	res, err = f.svc.ReleaseSlot(ctx, req("alice", ts("11:00 AM", "12:00 PM")))
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.True(t, res.BookingDeleted)

	res, err = f.svc.ReleaseSlot(ctx, req("alice", ts("11:00 AM", "12:00 PM")))
	require.NoError(t, err)
	assert.False(t, res.Found)
}

func TestReleaseAllForSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	locked, err := f.svc.LockSlot(ctx, req("alice", ts("10:00 AM", "11:00 AM")))
	require.NoError(t, err)

	sess := SessionRequest{VenueID: "v1", Sport: "tennis", UserID: "alice", SessionID: "s-alice"}
	res, err := f.svc.ReleaseAllForSession(ctx, sess)
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.Equal(t, locked.BookingID, res.BookingID)

	res, err = f.svc.ReleaseAllForSession(ctx, sess)
	require.NoError(t, err)
	assert.False(t, res.Found)

	other, err := f.svc.LockSlot(ctx, req("bob", ts("10:00 AM", "11:00 AM")))
	require.NoError(t, err)
	assert.True(t, other.Locked())
}

func TestReserveRange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.LockSlot(ctx, req("bob", ts("10:00 AM", "11:00 AM")))
	require.NoError(t, err)

	res, err := f.svc.ReserveRange(ctx, RangeRequest{
		VenueID:      "v1",
		Sport:        "tennis",
		Dates:        []string{day, "2030-05-05", "2030-05-07", day},
		PlayableArea: 1,
		UserID:       "alice",
		SessionID:    "s-alice",
	})
	require.NoError(t, err)

	require.Len(t, res.Reserved, 2)
	assert.Len(t, res.Reserved[0].Slots, 7, "bob's slot is excluded")
	assert.Len(t, res.Reserved[1].Slots, 8)
	require.Len(t, res.SkippedDates, 1)
	assert.Equal(t, "2030-05-05", res.SkippedDates[0].Date)
	assert.Equal(t, f.clock.Now().Add(10*time.Minute), res.LockedUntil)
}

func TestReserveRange_NothingReservable(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ReserveRange(context.Background(), RangeRequest{
		VenueID:      "v1",
		Sport:        "tennis",
		Dates:        []string{"2030-05-05"},
		PlayableArea: 1,
		UserID:       "alice",
		SessionID:    "s-alice",
	})
	assert.ErrorIs(t, err, ErrNothingReservable)

	_, err = f.store.Bookings().FindBySession(context.Background(), "v1", "tennis", "s-alice")
	assert.Error(t, err, "no hold is left behind")
}
