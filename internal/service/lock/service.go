// Package lock owns the soft-lock lifecycle of a checkout session: holding,
// releasing and range-reserving slots.
package lock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/slotgo/internal/domain"
	"github.com/kirinyoku/slotgo/internal/repository"
	"github.com/kirinyoku/slotgo/internal/repository/postgres"
	"github.com/kirinyoku/slotgo/internal/service/availability"
	"github.com/kirinyoku/slotgo/internal/service/conflict"
	"github.com/kirinyoku/slotgo/internal/uow"
)

// Notifier is told which rooms changed after a commit.
type Notifier interface {
	SlotsChanged(ctx context.Context, rooms []domain.RoomKey, reason string)
}

const (
	ReasonLocked   = "slot-locked"
	ReasonReleased = "slot-released"
	ReasonRange    = "range-reserved"
)

type Config struct {
	// HoldTTL is the lifetime of a single-slot hold, refreshed on every lock.
	HoldTTL time.Duration
	// RangeHoldTTL is the lifetime of a hold created by ReserveRange.
	RangeHoldTTL time.Duration
	MaxAttempts  int
	Now          func() time.Time
}

type Service struct {
	store    repository.Store
	avail    *availability.Service
	checker  *conflict.Checker
	notifier Notifier
	uow      *uow.UoW
	cfg      Config
}

func New(
	store repository.Store,
	avail *availability.Service,
	checker *conflict.Checker,
	notifier Notifier,
	cfg Config,
) *Service {
	if cfg.HoldTTL <= 0 {
		cfg.HoldTTL = 10 * time.Minute
	}

	if cfg.RangeHoldTTL <= 0 {
		cfg.RangeHoldTTL = 10 * time.Minute
	}

	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Service{
		store:    store,
		avail:    avail,
		checker:  checker,
		notifier: notifier,
		uow:      uow.NewUoW(store),
		cfg:      cfg,
	}
}

type SlotRequest struct {
	VenueID     string
	Sport       string
	Date        string
	Slot        domain.TimeSlot
	UserID      string
	UserDisplay string
	SessionID   string
}

type LockResult struct {
	BookingID      uuid.UUID              `json:"bookingId"`
	ScheduledDates []domain.ScheduledDate `json:"scheduledDates"`
	LockedUntil    time.Time              `json:"lockedUntil"`
	Conflicts      []conflict.Conflict    `json:"conflicts,omitempty"`
}

// Locked reports whether the slot is now held by the session.
func (r *LockResult) Locked() bool { return len(r.Conflicts) == 0 }

type ReleaseResult struct {
	Found          bool      `json:"found"`
	BookingID      uuid.UUID `json:"bookingId,omitempty"`
	BookingDeleted bool      `json:"bookingDeleted"`
}

type RangeRequest struct {
	VenueID      string
	Sport        string
	Dates        []string
	PlayableArea int
	UserID       string
	UserDisplay  string
	SessionID    string
}

type SkippedDate struct {
	Date   string `json:"date"`
	Reason string `json:"reason"`
}

type SkippedSlot struct {
	Date string          `json:"date"`
	Slot domain.TimeSlot `json:"slot"`
}

type RangeResult struct {
	BookingID    uuid.UUID              `json:"bookingId"`
	Reserved     []domain.ScheduledDate `json:"reserved"`
	SkippedDates []SkippedDate          `json:"skippedDates"`
	SkippedSlots []SkippedSlot          `json:"skippedSlots"`
	LockedUntil  time.Time              `json:"lockedUntil"`
}

type SessionRequest struct {
	VenueID   string
	Sport     string
	UserID    string
	SessionID string
}

// LockSlot holds one slot for the caller's session, appending it to the
// session's open hold or creating one.
//
// Parameters:
//   - ctx: request-scoped context.
//   - req: slot tuple and caller identity.
//
// Returns:
//   - *LockResult: the hold, or the conflicts that prevented it.
//   - error: lock.ErrInvalidInput if the request or the slot is invalid.
//   - error: lock.ErrVenueNotFound if the venue does not exist.
func (s *Service) LockSlot(ctx context.Context, req SlotRequest) (*LockResult, error) {
	const op = "service.lock.LockSlot"

	req.Sport = domain.NormalizeSport(req.Sport)

	if err := validateSession(req.VenueID, req.Sport, req.UserID, req.SessionID); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	var (
		res   *LockResult
		rooms []domain.RoomKey
	)

	err := s.uow.DoRetry(ctx, s.cfg.MaxAttempts, postgres.IsRetryable, func(
		ctx context.Context,
		tx repository.Tx,
		after func(uow.AfterCommit),
	) error {
		now := s.cfg.Now()
		res = &LockResult{}

		grid, err := s.avail.With(tx).Grid(ctx, req.VenueID, req.Sport, req.Date, req.Slot.PlayableArea)
		if err != nil {
			return err
		}

		if err := grid.CheckBookable(req.Slot); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}

		rep, err := s.checker.With(tx).Check(ctx, conflict.Request{
			VenueID:      req.VenueID,
			Sport:        req.Sport,
			Date:         req.Date,
			PlayableArea: req.Slot.PlayableArea,
			Slots:        []domain.TimeSlot{req.Slot},
			UserID:       req.UserID,
			SessionID:    req.SessionID,
		})
		if err != nil {
			return err
		}

		if rep.HasConflicts() {
			res.Conflicts = rep.Conflicts
			return nil
		}

		b, err := s.openHold(ctx, tx, req.VenueID, req.Sport, req.UserID, req.UserDisplay, req.SessionID, now)
		if err != nil {
			return err
		}

		err = tx.Bookings().ClaimSlot(ctx, repository.SlotClaim{
			BookingID: b.ID,
			VenueID:   req.VenueID,
			Sport:     req.Sport,
			Date:      req.Date,
			Slot:      req.Slot,
		}, now)
		if err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return errClaimLost
			}
			return err
		}

		until := now.Add(s.cfg.HoldTTL)
		if err := tx.Bookings().ExtendHold(ctx, b.ID, until); err != nil {
			return err
		}

		b, err = tx.Bookings().Get(ctx, b.ID)
		if err != nil {
			return err
		}

		res.BookingID = b.ID
		res.ScheduledDates = b.ScheduledDates
		res.LockedUntil = until
		rooms = []domain.RoomKey{{
			VenueID:      req.VenueID,
			Sport:        req.Sport,
			Date:         req.Date,
			PlayableArea: req.Slot.PlayableArea,
		}}

		after(func(ctx context.Context) {
			s.notify(ctx, rooms, ReasonLocked)
		})

		return nil
	})
	if errors.Is(err, errClaimLost) {
		return s.lostRace(ctx, req)
	}
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return res, nil
}

// lostRace reports the occupant that won a concurrent claim.
func (s *Service) lostRace(ctx context.Context, req SlotRequest) (*LockResult, error) {
	const op = "service.lock.lostRace"

	rep, err := s.checker.Check(ctx, conflict.Request{
		VenueID:      req.VenueID,
		Sport:        req.Sport,
		Date:         req.Date,
		PlayableArea: req.Slot.PlayableArea,
		Slots:        []domain.TimeSlot{req.Slot},
		UserID:       req.UserID,
		SessionID:    req.SessionID,
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if rep.HasConflicts() {
		return &LockResult{Conflicts: rep.Conflicts}, nil
	}

	return &LockResult{Conflicts: []conflict.Conflict{{
		Slot:   req.Slot,
		Date:   req.Date,
		Reason: conflict.ReasonHeld,
	}}}, nil
}

// ReleaseSlot removes one slot from the session's open hold. A missing hold
// or slot is reported with Found=false.
func (s *Service) ReleaseSlot(ctx context.Context, req SlotRequest) (*ReleaseResult, error) {
	const op = "service.lock.ReleaseSlot"

	req.Sport = domain.NormalizeSport(req.Sport)

	if err := validateSession(req.VenueID, req.Sport, req.UserID, req.SessionID); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	var res *ReleaseResult

	err := s.uow.DoRetry(ctx, s.cfg.MaxAttempts, postgres.IsRetryable, func(
		ctx context.Context,
		tx repository.Tx,
		after func(uow.AfterCommit),
	) error {
		res = &ReleaseResult{}

		b, err := tx.Bookings().FindOpenHold(ctx, sessionKey(req.VenueID, req.Sport, req.UserID, req.SessionID))
		if err != nil {
			if errors.Is(err, repository.ErrHoldNotFound) {
				return nil
			}
			return err
		}

		removed, remaining, err := tx.Bookings().ReleaseSlot(ctx, b.ID, req.Date, req.Slot)
		if err != nil {
			return err
		}

		if !removed {
			return nil
		}

		res.Found = true
		res.BookingID = b.ID

		if remaining == 0 {
			if err := tx.Bookings().Delete(ctx, b.ID); err != nil {
				return err
			}
			res.BookingDeleted = true
		}

		rooms := []domain.RoomKey{{
			VenueID:      req.VenueID,
			Sport:        req.Sport,
			Date:         req.Date,
			PlayableArea: req.Slot.PlayableArea,
		}}
		after(func(ctx context.Context) {
			s.notify(ctx, rooms, ReasonReleased)
		})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return res, nil
}

// ReserveRange holds every available slot of each requested date under one
// hold of the session.
//
// Returns:
//   - *RangeResult: reserved slots per date plus what was skipped.
//   - error: lock.ErrNothingReservable if no date yielded a slot.
//   - error: lock.ErrInvalidInput if a date is malformed.
func (s *Service) ReserveRange(ctx context.Context, req RangeRequest) (*RangeResult, error) {
	const op = "service.lock.ReserveRange"

	req.Sport = domain.NormalizeSport(req.Sport)

	if err := validateSession(req.VenueID, req.Sport, req.UserID, req.SessionID); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	dates := dedupe(req.Dates)
	if len(dates) == 0 {
		return nil, fmt.Errorf("%s: %w: at least one date is required", op, ErrInvalidInput)
	}

	var res *RangeResult

	err := s.uow.DoRetry(ctx, s.cfg.MaxAttempts, postgres.IsRetryable, func(
		ctx context.Context,
		tx repository.Tx,
		after func(uow.AfterCommit),
	) error {
		now := s.cfg.Now()
		res = &RangeResult{
			Reserved:     []domain.ScheduledDate{},
			SkippedDates: []SkippedDate{},
			SkippedSlots: []SkippedSlot{},
		}

		var (
			b     *domain.Booking
			rooms []domain.RoomKey
		)

		for _, date := range dates {
			avail, err := s.avail.With(tx).Resolve(ctx, availability.Query{
				VenueID:      req.VenueID,
				Sport:        req.Sport,
				Date:         date,
				PlayableArea: req.PlayableArea,
				UserID:       req.UserID,
			})
			if err != nil {
				return err
			}

			if len(avail.Available) == 0 {
				reason := avail.Reason
				if reason == "" {
					reason = "no available slots"
				}
				res.SkippedDates = append(res.SkippedDates, SkippedDate{Date: date, Reason: reason})
				continue
			}

			if b == nil {
				b, err = s.openHold(ctx, tx, req.VenueID, req.Sport, req.UserID, req.UserDisplay, req.SessionID, now)
				if err != nil {
					return err
				}
			}

			got := domain.ScheduledDate{Date: date}
			for _, slot := range avail.Available {
				err := tx.Bookings().ClaimSlot(ctx, repository.SlotClaim{
					BookingID: b.ID,
					VenueID:   req.VenueID,
					Sport:     req.Sport,
					Date:      date,
					Slot:      slot,
				}, now)
				if errors.Is(err, repository.ErrConflict) {
					res.SkippedSlots = append(res.SkippedSlots, SkippedSlot{Date: date, Slot: slot})
					continue
				}
				if err != nil {
					return err
				}
				got.Slots = append(got.Slots, slot)
			}

			if len(got.Slots) == 0 {
				res.SkippedDates = append(res.SkippedDates, SkippedDate{Date: date, Reason: "all slots were taken"})
				continue
			}

			res.Reserved = append(res.Reserved, got)
			rooms = append(rooms, domain.RoomKey{
				VenueID:      req.VenueID,
				Sport:        req.Sport,
				Date:         date,
				PlayableArea: req.PlayableArea,
			})
		}

		if len(res.Reserved) == 0 {
			return ErrNothingReservable
		}

		until := now.Add(s.cfg.RangeHoldTTL)
		if err := tx.Bookings().ExtendHold(ctx, b.ID, until); err != nil {
			return err
		}

		res.BookingID = b.ID
		res.LockedUntil = until

		after(func(ctx context.Context) {
			s.notify(ctx, rooms, ReasonRange)
		})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return res, nil
}

// ReleaseAllForSession deletes the session's open hold with all its slots.
func (s *Service) ReleaseAllForSession(ctx context.Context, req SessionRequest) (*ReleaseResult, error) {
	const op = "service.lock.ReleaseAllForSession"

	req.Sport = domain.NormalizeSport(req.Sport)

	if err := validateSession(req.VenueID, req.Sport, req.UserID, req.SessionID); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	var res *ReleaseResult

	err := s.uow.DoRetry(ctx, s.cfg.MaxAttempts, postgres.IsRetryable, func(
		ctx context.Context,
		tx repository.Tx,
		after func(uow.AfterCommit),
	) error {
		res = &ReleaseResult{}

		b, err := tx.Bookings().FindOpenHold(ctx, sessionKey(req.VenueID, req.Sport, req.UserID, req.SessionID))
		if err != nil {
			if errors.Is(err, repository.ErrHoldNotFound) {
				return nil
			}
			return err
		}

		if err := tx.Bookings().Delete(ctx, b.ID); err != nil {
			return err
		}

		res.Found = true
		res.BookingID = b.ID
		res.BookingDeleted = true

		rooms := b.Rooms()
		after(func(ctx context.Context) {
			s.notify(ctx, rooms, ReasonReleased)
		})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return res, nil
}

// openHold returns the session's live hold, replacing an expired one with a
// fresh hold.
func (s *Service) openHold(
	ctx context.Context,
	tx repository.Tx,
	venueID, sport, userID, display, sessionID string,
	now time.Time,
) (*domain.Booking, error) {
	b, err := tx.Bookings().FindOpenHold(ctx, sessionKey(venueID, sport, userID, sessionID))
	switch {
	case err == nil && b.HoldActive(now):
		return b, nil
	case err == nil:
		if err := tx.Bookings().Delete(ctx, b.ID); err != nil {
			return nil, err
		}
	case !errors.Is(err, repository.ErrHoldNotFound):
		return nil, err
	}

	until := now.Add(s.cfg.HoldTTL)
	b = &domain.Booking{
		ID:          uuid.New(),
		VenueID:     venueID,
		Sport:       sport,
		Status:      domain.BookingPending,
		IsLocked:    true,
		LockedUntil: &until,
		SessionID:   sessionID,
		UserID:      userID,
		UserDisplay: display,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := tx.Bookings().CreateHold(ctx, b); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrVenueNotFound
		}
		return nil, err
	}

	return b, nil
}

func (s *Service) notify(ctx context.Context, rooms []domain.RoomKey, reason string) {
	if s.notifier == nil || len(rooms) == 0 {
		return
	}
	s.notifier.SlotsChanged(ctx, rooms, reason)
}

func validateSession(venueID, sport, userID, sessionID string) error {
	var missing []string
	if strings.TrimSpace(venueID) == "" {
		missing = append(missing, "venueId")
	}
	if strings.TrimSpace(sport) == "" {
		missing = append(missing, "sport")
	}
	if strings.TrimSpace(userID) == "" {
		missing = append(missing, "userId")
	}
	if strings.TrimSpace(sessionID) == "" {
		missing = append(missing, "sessionId")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidInput, strings.Join(missing, ", "))
	}
	return nil
}

func sessionKey(venueID, sport, userID, sessionID string) repository.SessionKey {
	return repository.SessionKey{
		VenueID:   venueID,
		Sport:     sport,
		UserID:    userID,
		SessionID: sessionID,
	}
}

func dedupe(dates []string) []string {
	seen := make(map[string]struct{}, len(dates))
	out := make([]string, 0, len(dates))
	for _, d := range dates {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	return out
}
