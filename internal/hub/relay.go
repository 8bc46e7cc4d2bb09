package hub

import (
	"context"
	"encoding/json"

	"github.com/kirinyoku/slotgo/internal/domain"
	redisrepo "github.com/kirinyoku/slotgo/internal/repository/redis"
)

// Relay scopes.
const (
	scopeRoom    = "room"
	scopeVenue   = "venue"
	scopeSlots   = "slots"
	scopeBooking = "booking"
)

// slotsChanged is the relayed form of a room availability change.
type slotsChanged struct {
	Room    domain.RoomKey `json:"room"`
	Reason  string         `json:"reason"`
	Refresh bool           `json:"refresh,omitempty"`
}

// outbox collects work produced under the hub lock.
type outbox struct {
	local  []delivery
	remote []redisrepo.RelayMessage
}

func (o *outbox) add(d ...delivery) {
	o.local = append(o.local, d...)
}

func (o *outbox) relay(scope, target, event string, data any) {
	b, err := json.Marshal(data)
	if err != nil {
		return
	}
	o.remote = append(o.remote, redisrepo.RelayMessage{
		Scope:   scope,
		Target:  target,
		Event:   event,
		Payload: b,
	})
}

func (h *Hub) flush(ctx context.Context, o *outbox) {
	h.deliver(o.local)
	for _, msg := range o.remote {
		h.publish(ctx, msg)
	}
}

// DeliverRelayed applies a broadcast published by another process to the
// local rooms. Messages from this process are ignored.
func (h *Hub) DeliverRelayed(ctx context.Context, msg redisrepo.RelayMessage) {
	if msg.Origin == h.nodeID {
		return
	}

	switch msg.Scope {
	case scopeRoom:
		h.mu.RLock()
		var out []delivery
		for key := range h.rooms {
			if key.String() == msg.Target {
				out = h.roomTargetsLocked(key, "", Event{Name: msg.Event, Data: msg.Payload})
				break
			}
		}
		h.mu.RUnlock()
		h.deliver(out)

	case scopeVenue:
		h.mu.RLock()
		var out []delivery
		for _, key := range h.venueRoomsLocked(msg.Target) {
			out = append(out, h.roomTargetsLocked(key, "", Event{Name: msg.Event, Data: msg.Payload})...)
		}
		h.mu.RUnlock()
		h.deliver(out)

	case scopeSlots:
		var sc slotsChanged
		if err := json.Unmarshal(msg.Payload, &sc); err != nil {
			h.log.Debug("bad relayed slots change", "err", err)
			return
		}
		h.pushAvailability(ctx, sc.Room, sc.Reason, sc.Refresh)

	case scopeBooking:
		var b domain.Booking
		if err := json.Unmarshal(msg.Payload, &b); err != nil {
			h.log.Debug("bad relayed booking", "err", err)
			return
		}
		o := h.bookingConfirmedLocal(&b)
		h.flush(ctx, o)

	default:
		h.log.Debug("unknown relay scope", "scope", msg.Scope)
	}
}
