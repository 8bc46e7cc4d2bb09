package hub

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/kirinyoku/slotgo/internal/domain"
	"github.com/kirinyoku/slotgo/internal/service/conflict"
	"github.com/kirinyoku/slotgo/internal/slotgrid"
)

// DeclareSelection records slots the user is considering in the joined room.
// Selecting runs an advisory conflict check first: conflicts go to the
// sender only and nothing is recorded.
func (h *Hub) DeclareSelection(ctx context.Context, connID, requestID string, req SelectionRequest) {
	h.mu.RLock()
	c, err := h.clientLocked(connID)
	if err != nil {
		h.mu.RUnlock()
		return
	}
	identity := c.identity
	var room domain.RoomKey
	joined := c.room != nil
	if joined {
		room = *c.room
	}
	h.mu.RUnlock()

	if !joined {
		h.replyErr(c.conn, EventDeclareSelection, requestID, ErrNotInRoom)
		return
	}

	if req.Action == "" {
		req.Action = ActionSelect
	}
	if req.Action != ActionSelect && req.Action != ActionDeselect {
		h.replyErr(c.conn, EventDeclareSelection, requestID, fmt.Errorf("%w: unknown action %q", ErrInvalidRequest, req.Action))
		return
	}
	if len(req.Slots) == 0 {
		h.replyErr(c.conn, EventDeclareSelection, requestID, fmt.Errorf("%w: no slots", ErrInvalidRequest))
		return
	}

	slots := make([]domain.TimeSlot, 0, len(req.Slots))
	for _, s := range req.Slots {
		s.PlayableArea = room.PlayableArea
		slots = append(slots, s)
	}

	if req.Action == ActionSelect && h.checker != nil {
		rep, err := h.checker.Check(ctx, conflict.Request{
			VenueID:      room.VenueID,
			Sport:        room.Sport,
			Date:         room.Date,
			PlayableArea: room.PlayableArea,
			Slots:        slots,
			UserID:       identity.UserID,
			SessionID:    req.SessionID,
		})
		if err != nil {
			h.log.Error("selection conflict check failed", "room", room.String(), "err", err)
			h.replyErr(c.conn, EventDeclareSelection, requestID, err)
			return
		}
		if rep.HasConflicts() {
			h.reply(c.conn, EventConflictDetected, requestID, ConflictPayload{RoomKey: room, Conflicts: rep.Conflicts})
			return
		}
	}

	o := &outbox{}

	h.mu.Lock()
	key := selectionKey{UserID: identity.UserID, Room: room}
	set := h.selections[key]
	if req.Action == ActionSelect {
		if set == nil {
			set = make(map[string]domain.TimeSlot)
			h.selections[key] = set
		}
		for _, s := range slots {
			set[s.Key()] = s
		}
	} else if set != nil {
		for _, s := range slots {
			delete(set, s.Key())
		}
		if len(set) == 0 {
			delete(h.selections, key)
		}
	}

	update := SelectionPayload{
		RoomKey: room,
		UserID:  identity.UserID,
		Name:    identity.Name,
		Action:  req.Action,
		Slots:   slots,
	}
	o.add(h.roomTargetsLocked(room, connID, Event{Name: EventSelectionUpdate, Data: update})...)
	o.relay(scopeRoom, room.String(), EventSelectionUpdate, update)
	h.mu.Unlock()

	h.flush(ctx, o)
}

// ResetSelections clears every selection the caller holds at the venue.
func (h *Hub) ResetSelections(ctx context.Context, connID, requestID, venueID string) {
	o := &outbox{}

	h.mu.Lock()
	c, err := h.clientLocked(connID)
	if err != nil {
		h.mu.Unlock()
		return
	}

	if strings.TrimSpace(venueID) == "" {
		h.mu.Unlock()
		h.replyErr(c.conn, EventResetSelections, requestID, fmt.Errorf("%w: venueId is required", ErrInvalidRequest))
		return
	}

	cleared := 0
	for key := range h.selections {
		if key.UserID == c.identity.UserID && key.Room.VenueID == venueID {
			h.clearSelectionLocked(key, c.identity, o)
			cleared++
		}
	}
	h.mu.Unlock()

	h.reply(c.conn, EventSelectionsReset, requestID, SelectionsResetPayload{
		VenueID: venueID,
		UserID:  c.identity.UserID,
		Cleared: cleared,
	})
	h.flush(ctx, o)
}

// clearSelectionLocked drops one selection set and tells the room. Caller
// holds h.mu.
func (h *Hub) clearSelectionLocked(key selectionKey, id Identity, o *outbox) {
	set, ok := h.selections[key]
	if !ok {
		return
	}
	delete(h.selections, key)

	update := SelectionPayload{
		RoomKey: key.Room,
		UserID:  id.UserID,
		Name:    id.Name,
		Action:  ActionDeselect,
		Slots:   sortedSlots(set),
	}
	o.add(h.roomTargetsLocked(key.Room, "", Event{Name: EventSelectionUpdate, Data: update})...)
	o.relay(scopeRoom, key.Room.String(), EventSelectionUpdate, update)
}

// selectionsLocked returns the selections of everyone but exceptUser in the
// room. Caller holds h.mu.
func (h *Hub) selectionsLocked(room domain.RoomKey, exceptUser string) []SelectionView {
	out := []SelectionView{}
	for key, set := range h.selections {
		if key.Room != room || key.UserID == exceptUser {
			continue
		}
		view := SelectionView{UserID: key.UserID, Slots: sortedSlots(set)}
		for _, c := range h.clients {
			if c.identity.UserID == key.UserID {
				view.Name = c.identity.Name
				break
			}
		}
		out = append(out, view)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

func sortedSlots(set map[string]domain.TimeSlot) []domain.TimeSlot {
	out := make([]domain.TimeSlot, 0, len(set))
	for _, s := range set {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		a, _ := slotgrid.ParseClock(out[i].StartTime)
		b, _ := slotgrid.ParseClock(out[j].StartTime)
		return a < b
	})
	return out
}
