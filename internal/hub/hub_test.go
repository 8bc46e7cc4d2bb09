package hub

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/kirinyoku/slotgo/internal/domain"
	"github.com/kirinyoku/slotgo/internal/repository"
	"github.com/kirinyoku/slotgo/internal/repository/memory"
	redisrepo "github.com/kirinyoku/slotgo/internal/repository/redis"
	"github.com/kirinyoku/slotgo/internal/service/availability"
	"github.com/kirinyoku/slotgo/internal/service/conflict"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	id string

	mu     sync.Mutex
	events []Event
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *fakeConn) names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.events))
	for _, ev := range c.events {
		out = append(out, ev.Name)
	}
	return out
}

func (c *fakeConn) last(name string) (Event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.events) - 1; i >= 0; i-- {
		if c.events[i].Name == name {
			return c.events[i], true
		}
	}
	return Event{}, false
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	c.events = nil
	c.mu.Unlock()
}

type fakeRelay struct {
	mu   sync.Mutex
	msgs []redisrepo.RelayMessage
}

func (r *fakeRelay) Publish(_ context.Context, msg redisrepo.RelayMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

var (
	now  = time.Date(2030, 5, 1, 8, 0, 0, 0, time.UTC)
	room = domain.RoomKey{VenueID: "v1", Sport: "tennis", Date: "2030-05-06", PlayableArea: 1}
)

type fixture struct {
	hub   *Hub
	store *memory.Store
	relay *fakeRelay
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.NewStore()
	require.NoError(t, store.Venues().Create(context.Background(), &domain.Venue{
		ID:       "v1",
		Schedule: domain.Schedule{"monday": {Open: true, OpenTime: "9:00 AM", CloseTime: "5:00 PM"}},
	}))

	clock := func() time.Time { return now }
	relay := &fakeRelay{}
	h := New(
		availability.New(store, nil, availability.Config{Now: clock}),
		conflict.NewChecker(store, clock),
		store.Bookings(),
		relay,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		Config{NodeID: "node-a"},
	)

	return &fixture{hub: h, store: store, relay: relay}
}

func (f *fixture) connect(id, user string) *fakeConn {
	c := &fakeConn{id: id}
	f.hub.Register(c, Identity{UserID: user, Name: "User " + user})
	return c
}

func slot(start, end string) domain.TimeSlot {
	return domain.TimeSlot{StartTime: start, EndTime: end, PlayableArea: 1}
}

func TestRoomLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.connect("c1", "alice")
	b := f.connect("c2", "bob")

	f.hub.Join(ctx, "c1", "r1", room)
	ev, ok := a.last(EventRoomJoined)
	require.True(t, ok)
	assert.Equal(t, "r1", ev.RequestID)
	assert.Equal(t, 1, ev.Data.(RoomJoinedPayload).Occupancy)

	f.hub.Join(ctx, "c2", "r2", room)
	ev, ok = a.last(EventUserJoinedRoom)
	require.True(t, ok)
	assert.Equal(t, "bob", ev.Data.(PresencePayload).UserID)
	assert.NotContains(t, b.names(), EventUserJoinedRoom)

	assert.Equal(t, 1, f.hub.Stats().Rooms)
	assert.Equal(t, 2, f.hub.Stats().Connections)

	f.hub.Leave(ctx, "c2", "r3")
	ev, ok = a.last(EventUserLeftRoom)
	require.True(t, ok)
	assert.Equal(t, 1, ev.Data.(PresencePayload).Occupancy)

	f.hub.Disconnect(ctx, "c1")
	stats := f.hub.Stats()
	assert.Zero(t, stats.Rooms, "empty room is deleted")
	assert.Equal(t, 1, stats.Connections)
	assert.False(t, f.hub.IsUserConnected("alice"))
	assert.True(t, f.hub.IsUserConnected("bob"))

	f.hub.Leave(ctx, "c2", "r4")
	assert.Contains(t, b.names(), ErrorEvent(EventLeaveRoom))
}

func TestJoin_SwitchingRoomLeavesPrevious(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.connect("c1", "alice")
	f.connect("c2", "bob")
	f.hub.Join(ctx, "c1", "", room)
	f.hub.Join(ctx, "c2", "", room)
	a.reset()

	other := room
	other.PlayableArea = 2
	f.hub.Join(ctx, "c2", "", other)

	assert.Contains(t, a.names(), EventUserLeftRoom)
	assert.Equal(t, 2, f.hub.Stats().Rooms)
}

func TestJoin_InvalidRoom(t *testing.T) {
	f := newFixture(t)
	a := f.connect("c1", "alice")

	f.hub.Join(context.Background(), "c1", "r1", domain.RoomKey{VenueID: "v1", Sport: "tennis", Date: "tomorrow"})
	ev, ok := a.last(ErrorEvent(EventJoinRoom))
	require.True(t, ok)
	assert.Equal(t, "r1", ev.RequestID)
}

func TestDeclareSelection_BroadcastsAndShowsOnJoin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.connect("c1", "alice")
	f.hub.Join(ctx, "c1", "", room)

	f.hub.DeclareSelection(ctx, "c1", "s1", SelectionRequest{Slots: []domain.TimeSlot{slot("10:00 AM", "11:00 AM")}})
	assert.NotContains(t, a.names(), EventSelectionUpdate, "sender is not echoed")

	b := f.connect("c2", "bob")
	f.hub.Join(ctx, "c2", "", room)
	ev, ok := b.last(EventRoomJoined)
	require.True(t, ok)
	sel := ev.Data.(RoomJoinedPayload).Selections
	require.Len(t, sel, 1)
	assert.Equal(t, "alice", sel[0].UserID)

	f.hub.DeclareSelection(ctx, "c1", "s2", SelectionRequest{Slots: []domain.TimeSlot{slot("11:00 AM", "12:00 PM")}})
	ev, ok = b.last(EventSelectionUpdate)
	require.True(t, ok)
	assert.Equal(t, ActionSelect, ev.Data.(SelectionPayload).Action)

	f.hub.Disconnect(ctx, "c1")
	ev, ok = b.last(EventSelectionUpdate)
	require.True(t, ok)
	assert.Equal(t, ActionDeselect, ev.Data.(SelectionPayload).Action)
	assert.Len(t, ev.Data.(SelectionPayload).Slots, 2)
	assert.Zero(t, f.hub.Stats().Selections)
}

func TestDeclareSelection_ConflictGoesToSenderOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	until := now.Add(10 * time.Minute)
	held := &domain.Booking{VenueID: "v1", Sport: "tennis", UserID: "carol", SessionID: "s-carol", LockedUntil: &until}
	require.NoError(t, f.store.Bookings().CreateHold(ctx, held))
	require.NoError(t, f.store.Bookings().ClaimSlot(ctx, repository.SlotClaim{
		BookingID: held.ID, VenueID: "v1", Sport: "tennis", Date: room.Date, Slot: slot("10:00 AM", "11:00 AM"),
	}, now))

	a := f.connect("c1", "alice")
	b := f.connect("c2", "bob")
	f.hub.Join(ctx, "c1", "", room)
	f.hub.Join(ctx, "c2", "", room)

	f.hub.DeclareSelection(ctx, "c1", "s1", SelectionRequest{Slots: []domain.TimeSlot{slot("10:00 AM", "11:00 AM")}})

	ev, ok := a.last(EventConflictDetected)
	require.True(t, ok)
	assert.Equal(t, "carol", ev.Data.(ConflictPayload).Conflicts[0].HolderID)
	assert.NotContains(t, b.names(), EventSelectionUpdate)
	assert.Zero(t, f.hub.Stats().Selections)
}

func TestResetSelections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.connect("c1", "alice")
	f.hub.Join(ctx, "c1", "", room)
	f.hub.DeclareSelection(ctx, "c1", "", SelectionRequest{Slots: []domain.TimeSlot{slot("10:00 AM", "11:00 AM")}})

	f.hub.ResetSelections(ctx, "c1", "x", "v1")
	ev, ok := a.last(EventSelectionsReset)
	require.True(t, ok)
	assert.Equal(t, 1, ev.Data.(SelectionsResetPayload).Cleared)
	assert.Zero(t, f.hub.Stats().Selections)
}

func TestCheckAvailabilityAndMultiDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.connect("c1", "alice")
	f.hub.CheckAvailability(ctx, "c1", "q0", AvailabilityRequest{})
	assert.Contains(t, a.names(), ErrorEvent(EventCheckAvailability))

	f.hub.Join(ctx, "c1", "", room)
	f.hub.CheckAvailability(ctx, "c1", "q1", AvailabilityRequest{})
	ev, ok := a.last(EventAvailabilityUpdate)
	require.True(t, ok)
	assert.Len(t, ev.Data.(AvailabilityPayload).Availability.Available, 8)

	f.hub.DeclareMultiDay(ctx, "c1", "q2", MultiDayRequest{
		VenueID: "v1", Sport: "tennis", PlayableArea: 1,
		Dates: []string{"2030-05-06", "2030-05-07", "bad"},
	})
	ev, ok = a.last(EventMultiDayUpdate)
	require.True(t, ok)
	days := ev.Data.(MultiDayPayload).Days
	require.Len(t, days, 3)
	assert.Len(t, days[0].Availability.Available, 8)
	assert.True(t, days[1].Availability.Closed)
	assert.NotEmpty(t, days[2].Error)
}

func TestSlotsChanged_PushesAndRelays(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.connect("c1", "alice")
	f.hub.Join(ctx, "c1", "", room)
	a.reset()

	f.hub.SlotsChanged(ctx, []domain.RoomKey{room}, "slot-locked")

	ev, ok := a.last(EventAvailabilityUpdate)
	require.True(t, ok)
	assert.Equal(t, "slot-locked", ev.Data.(AvailabilityPayload).Reason)

	f.relay.mu.Lock()
	defer f.relay.mu.Unlock()
	var found bool
	for _, m := range f.relay.msgs {
		if m.Scope == scopeSlots {
			found = true
			assert.Equal(t, "node-a", m.Origin)
		}
	}
	assert.True(t, found)
}

func TestDeliverRelayed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.connect("c1", "alice")
	f.hub.Join(ctx, "c1", "", room)
	a.reset()

	payload, _ := json.Marshal(SelectionPayload{RoomKey: room, UserID: "remote", Action: ActionSelect})

	f.hub.DeliverRelayed(ctx, redisrepo.RelayMessage{Origin: "node-a", Scope: scopeRoom, Target: room.String(), Event: EventSelectionUpdate, Payload: payload})
	assert.Empty(t, a.names(), "own messages are ignored")

	f.hub.DeliverRelayed(ctx, redisrepo.RelayMessage{Origin: "node-b", Scope: scopeRoom, Target: room.String(), Event: EventSelectionUpdate, Payload: payload})
	assert.Equal(t, []string{EventSelectionUpdate}, a.names())

	sc, _ := json.Marshal(slotsChanged{Room: room, Reason: "hold-expired"})
	f.hub.DeliverRelayed(ctx, redisrepo.RelayMessage{Origin: "node-b", Scope: scopeSlots, Target: room.String(), Event: "slots-changed", Payload: sc})
	assert.Contains(t, a.names(), EventAvailabilityUpdate)
}

func TestBookingConfirmed_ClearsRoomSelections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.connect("c1", "alice")
	f.connect("c2", "bob")
	f.hub.Join(ctx, "c1", "", room)
	f.hub.Join(ctx, "c2", "", room)
	f.hub.DeclareSelection(ctx, "c2", "", SelectionRequest{Slots: []domain.TimeSlot{slot("10:00 AM", "11:00 AM")}})

	until := now.Add(10 * time.Minute)
	b := &domain.Booking{VenueID: "v1", Sport: "tennis", UserID: "alice", SessionID: "s-alice", LockedUntil: &until}
	require.NoError(t, f.store.Bookings().CreateHold(ctx, b))
	require.NoError(t, f.store.Bookings().ClaimSlot(ctx, repository.SlotClaim{
		BookingID: b.ID, VenueID: "v1", Sport: "tennis", Date: room.Date, Slot: slot("1:00 PM", "2:00 PM"),
	}, now))

	f.hub.ConfirmFromClient(ctx, "c1", "b1", BookingConfirmedRequest{BookingID: b.ID})
	assert.Contains(t, a.names(), ErrorEvent(EventBookingConfirmed), "unpaid booking is rejected")

	require.NoError(t, f.store.Bookings().Confirm(ctx, b.ID, repository.Payment{}, now))
	f.hub.ConfirmFromClient(ctx, "c1", "b2", BookingConfirmedRequest{BookingID: b.ID})

	ev, ok := a.last(EventBookingConfirmed)
	require.True(t, ok)
	assert.Equal(t, b.ID, ev.Data.(BookingConfirmedPayload).BookingID)
	assert.Zero(t, f.hub.Stats().Selections)
}

func TestAdminOperations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.connect("c1", "alice")
	f.connect("c2", "alice")
	f.connect("c3", "bob")
	f.hub.Join(ctx, "c1", "", room)
	f.hub.Join(ctx, "c2", "", room)

	users := f.hub.ConnectedUsers("v1")
	require.Len(t, users, 1)
	assert.Equal(t, 2, users[0].Connections)
	assert.Empty(t, f.hub.ConnectedUsers("v2"))

	a.reset()
	assert.Equal(t, 2, f.hub.RefreshVenue(ctx, "v1"))
	ev, ok := a.last(EventAvailabilityUpdate)
	require.True(t, ok)
	assert.True(t, ev.Data.(AvailabilityPayload).Refresh)

	assert.Equal(t, 2, f.hub.BroadcastToVenue(ctx, "v1", "announcement", map[string]string{"msg": "closing early"}))
	assert.Contains(t, a.names(), "announcement")
}
