package hub

import (
	"context"
	"sort"
	"strings"

	"github.com/kirinyoku/slotgo/internal/domain"
)

type Stats struct {
	NodeID      string         `json:"nodeId"`
	Connections int            `json:"connections"`
	Users       int            `json:"users"`
	Rooms       int            `json:"rooms"`
	Selections  int            `json:"selections"`
	RoomSizes   map[string]int `json:"roomSizes"`
}

type UserPresence struct {
	UserID      string           `json:"userId"`
	Name        string           `json:"name,omitempty"`
	Connections int              `json:"connections"`
	Rooms       []domain.RoomKey `json:"rooms"`
}

// Stats reports the local connection and room tables.
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	users := make(map[string]struct{})
	for _, c := range h.clients {
		users[c.identity.UserID] = struct{}{}
	}

	sizes := make(map[string]int, len(h.rooms))
	for key, members := range h.rooms {
		sizes[key.String()] = len(members)
	}

	return Stats{
		NodeID:      h.nodeID,
		Connections: len(h.clients),
		Users:       len(users),
		Rooms:       len(h.rooms),
		Selections:  len(h.selections),
		RoomSizes:   sizes,
	}
}

// ConnectedUsers lists users with a connection in any room of the venue.
func (h *Hub) ConnectedUsers(venueID string) []UserPresence {
	h.mu.RLock()
	defer h.mu.RUnlock()

	byUser := make(map[string]*UserPresence)
	for _, c := range h.clients {
		if c.room == nil || c.room.VenueID != venueID {
			continue
		}
		p, ok := byUser[c.identity.UserID]
		if !ok {
			p = &UserPresence{UserID: c.identity.UserID, Name: c.identity.Name}
			byUser[c.identity.UserID] = p
		}
		p.Connections++
		if !containsRoom(p.Rooms, *c.room) {
			p.Rooms = append(p.Rooms, *c.room)
		}
	}

	out := make([]UserPresence, 0, len(byUser))
	for _, p := range byUser {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })

	return out
}

// IsUserConnected reports whether the user has any connection on this node.
func (h *Hub) IsUserConnected(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.userConnectedLocked(userID)
}

// RefreshVenue pushes availability with refresh=true to every room of the
// venue and returns how many local connections were reached.
func (h *Hub) RefreshVenue(ctx context.Context, venueID string) int {
	h.mu.RLock()
	rooms := h.venueRoomsLocked(venueID)
	h.mu.RUnlock()

	o := &outbox{}
	o.relay(scopeVenue, venueID, EventAvailabilityUpdate, map[string]any{"venueId": venueID, "refresh": true})

	reached := 0
	for _, key := range rooms {
		reached += h.pushAvailability(ctx, key, "refresh", true)
	}
	h.flush(ctx, o)

	return reached
}

// BroadcastToVenue sends an arbitrary event to every room of the venue and
// returns how many local connections were reached.
func (h *Hub) BroadcastToVenue(ctx context.Context, venueID, event string, payload any) int {
	event = strings.TrimSpace(event)

	o := &outbox{}

	h.mu.RLock()
	for _, key := range h.venueRoomsLocked(venueID) {
		o.add(h.roomTargetsLocked(key, "", Event{Name: event, Data: payload})...)
	}
	h.mu.RUnlock()

	reached := len(o.local)
	o.relay(scopeVenue, venueID, event, payload)
	h.flush(ctx, o)

	return reached
}

func containsRoom(rooms []domain.RoomKey, key domain.RoomKey) bool {
	for _, r := range rooms {
		if r == key {
			return true
		}
	}
	return false
}
