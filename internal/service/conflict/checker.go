// Package conflict decides whether requested slots collide with bookings or
// live holds of other sessions.
package conflict

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/slotgo/internal/domain"
	"github.com/kirinyoku/slotgo/internal/repository"
)

type Reason string

const (
	ReasonBooked Reason = "booked"
	ReasonHeld   Reason = "held"
)

type Request struct {
	VenueID      string
	Sport        string
	Date         string
	PlayableArea int
	Slots        []domain.TimeSlot
	UserID       string
	SessionID    string
}

type Conflict struct {
	Slot       domain.TimeSlot `json:"slot"`
	Date       string          `json:"date"`
	BookingID  uuid.UUID       `json:"bookingId"`
	HolderID   string          `json:"holderId"`
	HolderName string          `json:"holderName,omitempty"`
	Reason     Reason          `json:"reason"`
}

type Report struct {
	Conflicts []Conflict        `json:"conflicts"`
	Clean     []domain.TimeSlot `json:"clean"`
}

func (r *Report) HasConflicts() bool { return len(r.Conflicts) > 0 }

type Checker struct {
	store repository.Store
	tx    repository.Tx
	now   func() time.Time
}

func NewChecker(store repository.Store, now func() time.Time) *Checker {
	if now == nil {
		now = time.Now
	}
	return &Checker{store: store, now: now}
}

// With binds the checker to tx so the check and the following writes see
// the same snapshot.
func (c *Checker) With(tx repository.Tx) *Checker {
	cp := *c
	cp.tx = tx
	return &cp
}

func (c *Checker) repos() repository.Tx {
	if c.tx != nil {
		return c.tx
	}
	return c.store
}

// Check splits the requested slots into conflicts and clean slots. Holds of
// the requesting session are never conflicts. Slots without an explicit
// playable area take the one of the request.
func (c *Checker) Check(ctx context.Context, req Request) (*Report, error) {
	const op = "service.conflict.Checker.Check"

	req.Sport = domain.NormalizeSport(req.Sport)

	occupancy, err := c.repos().Bookings().ListOccupancy(ctx, req.VenueID, req.Sport, req.Date, c.now())
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	index := make(map[string]domain.Occupancy, len(occupancy))
	for _, o := range occupancy {
		index[occupancyKey(o.Slot)] = o
	}

	rep := &Report{
		Conflicts: []Conflict{},
		Clean:     []domain.TimeSlot{},
	}

	for _, slot := range req.Slots {
		if slot.PlayableArea == 0 {
			slot.PlayableArea = req.PlayableArea
		}

		o, ok := index[occupancyKey(slot)]
		if !ok || ownSession(o, req) {
			rep.Clean = append(rep.Clean, slot)
			continue
		}

		reason := ReasonBooked
		if o.IsHold {
			reason = ReasonHeld
		}

		rep.Conflicts = append(rep.Conflicts, Conflict{
			Slot:       slot,
			Date:       req.Date,
			BookingID:  o.BookingID,
			HolderID:   o.UserID,
			HolderName: o.UserDisplay,
			Reason:     reason,
		})
	}

	return rep, nil
}

func ownSession(o domain.Occupancy, req Request) bool {
	return o.IsHold && req.SessionID != "" && o.SessionID == req.SessionID && o.UserID == req.UserID
}

func occupancyKey(s domain.TimeSlot) string {
	return fmt.Sprintf("%d|%s", s.PlayableArea, s.Key())
}
