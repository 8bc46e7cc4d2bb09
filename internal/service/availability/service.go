package availability

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/slotgo/internal/domain"
	"github.com/kirinyoku/slotgo/internal/repository"
	redisrepo "github.com/kirinyoku/slotgo/internal/repository/redis"
	"github.com/kirinyoku/slotgo/internal/slotgrid"
)

type Config struct {
	// Location is the venue wall-clock time zone used for "today".
	Location      *time.Location
	VenueCacheTTL time.Duration
	Now           func() time.Time
}

type Service struct {
	store repository.Store
	tx    repository.Tx
	cache *redisrepo.Cache
	cfg   Config
}

// New builds the resolver. cache may be nil.
func New(store repository.Store, cache *redisrepo.Cache, cfg Config) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	if cfg.VenueCacheTTL <= 0 {
		cfg.VenueCacheTTL = 60 * time.Second
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Service{
		store: store,
		cache: cache,
		cfg:   cfg,
	}
}

// With returns a copy of the service reading through tx.
func (s *Service) With(tx repository.Tx) *Service {
	cp := *s
	cp.tx = tx
	return &cp
}

func (s *Service) repos() repository.Tx {
	if s.tx != nil {
		return s.tx
	}
	return s.store
}

type Query struct {
	VenueID      string
	Sport        string
	Date         string
	PlayableArea int
	UserID       string
}

type BookedSlot struct {
	domain.TimeSlot
	BookingID uuid.UUID            `json:"bookingId"`
	Status    domain.BookingStatus `json:"bookingStatus"`
	UserID    string               `json:"userId"`
}

type HeldSlot struct {
	domain.TimeSlot
	BookingID   uuid.UUID  `json:"bookingId"`
	HolderID    string     `json:"holderId"`
	HolderName  string     `json:"holderName,omitempty"`
	LockedUntil *time.Time `json:"lockedUntil,omitempty"`
}

type Result struct {
	VenueID       string            `json:"venueId"`
	Sport         string            `json:"sport"`
	Date          string            `json:"date"`
	PlayableArea  int               `json:"playableArea"`
	Available     []domain.TimeSlot `json:"available"`
	Booked        []BookedSlot      `json:"booked"`
	Held          []HeldSlot        `json:"held"`
	HeldByYou     []HeldSlot        `json:"heldByYou"`
	TotalSlots    int               `json:"totalSlots"`
	IsToday       bool              `json:"isToday"`
	CutoffMessage string            `json:"cutoffMessage,omitempty"`
	Closed        bool              `json:"closed"`
	Reason        string            `json:"reason,omitempty"`
}

// Grid is the bookable slot grid of one venue day after same-day cutoff.
type Grid struct {
	Slots         []domain.TimeSlot
	IsToday       bool
	CutoffMessage string
	Closed        bool
	Reason        string

	// cutoff is the minute of the day before which slots have started.
	cutoff int
}

// Contains reports whether the slot is on the grid.
func (g *Grid) Contains(slot domain.TimeSlot) bool {
	for _, s := range g.Slots {
		if s == slot {
			return true
		}
	}
	return false
}

// Resolve merges the venue's slot grid with bookings and live holds.
//
// Parameters:
//   - ctx: request-scoped context.
//   - q: venue, sport, date, playable area and optional requesting user.
//
// Returns:
//   - *Result: available, booked and held partitions.
//   - error: availability.ErrInvalidInput on a malformed query.
//   - error: availability.ErrVenueNotFound if the venue does not exist.
func (s *Service) Resolve(ctx context.Context, q Query) (*Result, error) {
	const op = "service.availability.Resolve"

	q.Sport = domain.NormalizeSport(q.Sport)

	grid, err := s.Grid(ctx, q.VenueID, q.Sport, q.Date, q.PlayableArea)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	res := &Result{
		VenueID:       q.VenueID,
		Sport:         q.Sport,
		Date:          q.Date,
		PlayableArea:  q.PlayableArea,
		Available:     []domain.TimeSlot{},
		Booked:        []BookedSlot{},
		Held:          []HeldSlot{},
		HeldByYou:     []HeldSlot{},
		TotalSlots:    len(grid.Slots),
		IsToday:       grid.IsToday,
		CutoffMessage: grid.CutoffMessage,
		Closed:        grid.Closed,
		Reason:        grid.Reason,
	}

	if grid.Closed {
		return res, nil
	}

	occupancy, err := s.repos().Bookings().ListOccupancy(ctx, q.VenueID, q.Sport, q.Date, s.cfg.Now())
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	blocked := make(map[string]struct{})
	for _, o := range occupancy {
		if o.Slot.PlayableArea != q.PlayableArea {
			continue
		}

		switch {
		case !o.IsHold:
			res.Booked = append(res.Booked, BookedSlot{
				TimeSlot:  o.Slot,
				BookingID: o.BookingID,
				Status:    o.Status,
				UserID:    o.UserID,
			})
			blocked[o.Slot.Key()] = struct{}{}
		case q.UserID != "" && o.UserID == q.UserID:
			res.HeldByYou = append(res.HeldByYou, heldSlot(o))
		default:
			res.Held = append(res.Held, heldSlot(o))
			blocked[o.Slot.Key()] = struct{}{}
		}
	}

	for _, slot := range grid.Slots {
		if _, ok := blocked[slot.Key()]; ok {
			continue
		}
		res.Available = append(res.Available, slot)
	}

	return res, nil
}

// Grid validates the query keys and returns the bookable grid of the day.
func (s *Service) Grid(ctx context.Context, venueID, sport, date string, area int) (*Grid, error) {
	const op = "service.availability.Grid"

	sport = domain.NormalizeSport(sport)

	if strings.TrimSpace(venueID) == "" || strings.TrimSpace(sport) == "" {
		return nil, fmt.Errorf("%s: %w: venue and sport are required", op, ErrInvalidInput)
	}

	if area < 0 {
		return nil, fmt.Errorf("%s: %w: playable area must not be negative", op, ErrInvalidInput)
	}

	day, err := domain.ParseDate(date, s.cfg.Location)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: invalid date %q", op, ErrInvalidInput, date)
	}

	venue, err := s.Venue(ctx, venueID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if !venue.SupportsSport(sport) {
		return nil, fmt.Errorf("%s: %w: %s", op, ErrSportNotSupported, sport)
	}

	weekday := day.Weekday()
	hours, open := venue.Schedule.For(weekday)
	if !open {
		return &Grid{
			Slots:  []domain.TimeSlot{},
			Closed: true,
			Reason: fmt.Sprintf("venue is closed on %s", weekday),
		}, nil
	}

	slots, err := slotgrid.ForDay(hours, area)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	g := &Grid{Slots: slots}

	now := s.cfg.Now().In(s.cfg.Location)
	today := now.Format(domain.DateLayout)

	switch {
	case date < today:
		g.Slots = []domain.TimeSlot{}
		g.Reason = "date has already passed"
		g.cutoff = 24 * 60
	case date == today:
		cutoff := now.Hour() * 60
		kept := slots[:0:0]
		for _, slot := range slots {
			if slotgrid.StartsBefore(slot, cutoff) {
				continue
			}
			kept = append(kept, slot)
		}
		g.Slots = kept
		g.cutoff = cutoff
		g.IsToday = true
		g.CutoffMessage = fmt.Sprintf("Showing slots from %s onwards", slotgrid.FormatClock(cutoff))
	}

	if g.Slots == nil {
		g.Slots = []domain.TimeSlot{}
	}

	return g, nil
}

// CheckBookable reports why a slot cannot be locked, or nil.
func (g *Grid) CheckBookable(slot domain.TimeSlot) error {
	if g.Contains(slot) {
		return nil
	}
	if g.cutoff > 0 && slotgrid.Valid(slot) && slotgrid.StartsBefore(slot, g.cutoff) {
		return ErrSlotAlreadyStarted
	}
	return ErrSlotOutsideHours
}

// Venue loads a venue through the read-through cache.
//
// Returns:
//   - error: availability.ErrVenueNotFound if the venue does not exist.
func (s *Service) Venue(ctx context.Context, id string) (*domain.Venue, error) {
	const op = "service.availability.Venue"

	load := func(ctx context.Context) (domain.Venue, error) {
		v, err := s.repos().Venues().Get(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return domain.Venue{}, ErrVenueNotFound
			}
			return domain.Venue{}, err
		}
		return *v, nil
	}

	// a shared cache fill may be waiting on the lock this tx holds
	cache := s.cache
	if s.tx != nil {
		cache = nil
	}

	v, err := redisrepo.GetOrSetJSON(ctx, cache, redisrepo.KeyVenueSchedule(id), s.cfg.VenueCacheTTL, load)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return &v, nil
}

// Today returns the current date in the venue time zone.
func (s *Service) Today() string {
	return s.cfg.Now().In(s.cfg.Location).Format(domain.DateLayout)
}

func heldSlot(o domain.Occupancy) HeldSlot {
	return HeldSlot{
		TimeSlot:    o.Slot,
		BookingID:   o.BookingID,
		HolderID:    o.UserID,
		HolderName:  o.UserDisplay,
		LockedUntil: o.LockedUntil,
	}
}
