package hub

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/kirinyoku/slotgo/internal/domain"
)

// Join moves the connection into the room, leaving its previous room first.
// The caller gets room-joined with the current members and the selections
// of others; the other members get user-joined-room.
func (h *Hub) Join(ctx context.Context, connID, requestID string, key domain.RoomKey) {
	o := &outbox{}

	h.mu.Lock()
	c, err := h.clientLocked(connID)
	if err != nil {
		h.mu.Unlock()
		return
	}

	key = key.Normalized()
	if err := validateRoom(key); err != nil {
		h.mu.Unlock()
		h.replyErr(c.conn, EventJoinRoom, requestID, err)
		return
	}

	if c.room != nil && *c.room != key {
		h.leaveLocked(c, o)
	}

	members, ok := h.rooms[key]
	if !ok {
		members = make(map[string]struct{})
		h.rooms[key] = members
	}
	_, already := members[connID]
	members[connID] = struct{}{}
	room := key
	c.room = &room

	joined := RoomJoinedPayload{
		RoomKey:    key,
		Occupancy:  len(members),
		Members:    h.membersLocked(key),
		Selections: h.selectionsLocked(key, c.identity.UserID),
	}
	o.local = append([]delivery{{conn: c.conn, ev: Event{Name: EventRoomJoined, RequestID: requestID, Data: joined}}}, o.local...)

	if !already {
		presence := PresencePayload{
			RoomKey:   key,
			UserID:    c.identity.UserID,
			Name:      c.identity.Name,
			Occupancy: len(members),
		}
		o.add(h.roomTargetsLocked(key, connID, Event{Name: EventUserJoinedRoom, Data: presence})...)
		o.relay(scopeRoom, key.String(), EventUserJoinedRoom, presence)
	}
	h.mu.Unlock()

	h.flush(ctx, o)

	h.log.Debug("joined room", "conn_id", connID, "user_id", c.identity.UserID, "room", key.String())
}

// Leave removes the connection from its room.
func (h *Hub) Leave(ctx context.Context, connID, requestID string) {
	o := &outbox{}

	h.mu.Lock()
	c, err := h.clientLocked(connID)
	if err != nil {
		h.mu.Unlock()
		return
	}
	if c.room == nil {
		h.mu.Unlock()
		h.replyErr(c.conn, EventLeaveRoom, requestID, ErrNotInRoom)
		return
	}
	h.leaveLocked(c, o)
	h.mu.Unlock()

	h.flush(ctx, o)
}

// Disconnect drops the connection and everything it owned. It is safe to call
// for a connection that never joined or is already gone.
func (h *Hub) Disconnect(ctx context.Context, connID string) {
	o := &outbox{}

	h.mu.Lock()
	c, ok := h.clients[connID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if c.room != nil {
		h.leaveLocked(c, o)
	}
	delete(h.clients, connID)

	userID := c.identity.UserID
	if !h.userConnectedLocked(userID) {
		for key := range h.selections {
			if key.UserID == userID {
				h.clearSelectionLocked(key, c.identity, o)
			}
		}
	}
	h.mu.Unlock()

	h.flush(ctx, o)

	h.log.Debug("client disconnected", "conn_id", connID, "user_id", userID)
}

// leaveLocked removes c from its room, announces the departure and drops the
// user's selections there once no connection of the user remains in the
// room. Caller holds h.mu.
func (h *Hub) leaveLocked(c *client, o *outbox) {
	key := *c.room
	connID := c.conn.ID()
	c.room = nil

	members := h.rooms[key]
	delete(members, connID)

	if !h.userInRoomLocked(key, c.identity.UserID, connID) {
		h.clearSelectionLocked(selectionKey{UserID: c.identity.UserID, Room: key}, c.identity, o)
	}

	presence := PresencePayload{
		RoomKey:   key,
		UserID:    c.identity.UserID,
		Name:      c.identity.Name,
		Occupancy: len(members),
	}
	o.add(h.roomTargetsLocked(key, connID, Event{Name: EventUserLeftRoom, Data: presence})...)
	o.relay(scopeRoom, key.String(), EventUserLeftRoom, presence)

	if len(members) == 0 {
		delete(h.rooms, key)
	}
}

func (h *Hub) membersLocked(key domain.RoomKey) []Member {
	seen := make(map[string]struct{})
	out := []Member{}
	for id := range h.rooms[key] {
		c, ok := h.clients[id]
		if !ok {
			continue
		}
		if _, dup := seen[c.identity.UserID]; dup {
			continue
		}
		seen[c.identity.UserID] = struct{}{}
		out = append(out, Member{UserID: c.identity.UserID, Name: c.identity.Name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

func (h *Hub) userConnectedLocked(userID string) bool {
	for _, c := range h.clients {
		if c.identity.UserID == userID {
			return true
		}
	}
	return false
}

func validateRoom(key domain.RoomKey) error {
	if strings.TrimSpace(key.VenueID) == "" || strings.TrimSpace(key.Sport) == "" {
		return fmt.Errorf("%w: venueId and sport are required", ErrInvalidRequest)
	}
	if _, err := domain.ParseDate(key.Date, nil); err != nil {
		return fmt.Errorf("%w: invalid date %q", ErrInvalidRequest, key.Date)
	}
	if key.PlayableArea < 0 {
		return fmt.Errorf("%w: playable area must not be negative", ErrInvalidRequest)
	}
	return nil
}
