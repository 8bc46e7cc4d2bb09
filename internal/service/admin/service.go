package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kirinyoku/slotgo/internal/domain"
	"github.com/kirinyoku/slotgo/internal/repository"
	redisrepo "github.com/kirinyoku/slotgo/internal/repository/redis"
	"github.com/kirinyoku/slotgo/internal/slotgrid"
	"github.com/kirinyoku/slotgo/internal/uow"
	"github.com/shopspring/decimal"
)

var weekdays = []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

type Service struct {
	store repository.Store
	cache *redisrepo.Cache
	uow   *uow.UoW
}

// New builds the admin service. cache may be nil.
func New(store repository.Store, cache *redisrepo.Cache) *Service {
	return &Service{
		store: store,
		cache: cache,
		uow:   uow.NewUoW(store),
	}
}

// CreateVenue seeds a venue with its weekly schedule so slots can be held
// against it.
//
// Parameters:
//   - ctx: request-scoped context.
//   - v: venue with ID, schedule and supported sports. Counters are reset.
//
// Returns:
//   - error: admin.ErrInvalidVenue if the ID is empty or the schedule does
//     not parse.
//   - error: admin.ErrVenueConflict if a venue with the same ID exists.
func (s *Service) CreateVenue(ctx context.Context, v domain.Venue) error {
	const op = "service.admin.CreateVenue"

	if err := validateVenue(&v); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	v.TotalBookings = 0
	v.AmountOwed = decimal.Zero
	v.AmountPaid = decimal.Zero

	err := s.uow.Do(ctx, func(ctx context.Context, tx repository.Tx, after func(uow.AfterCommit)) error {
		if err := tx.Venues().Create(ctx, &v); err != nil {
			if errors.Is(err, repository.ErrVenueAlreadyExist) || errors.Is(err, repository.ErrConflict) {
				return fmt.Errorf("%s: %w", op, ErrVenueConflict)
			}
			return fmt.Errorf("%s: %w", op, err)
		}

		after(func(ctx context.Context) {
			if s.cache != nil {
				_ = s.cache.InvalidateVenue(ctx, v.ID)
			}
		})

		return nil
	})

	return err
}

func validateVenue(v *domain.Venue) error {
	v.ID = strings.TrimSpace(v.ID)
	if v.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidVenue)
	}

	if v.Schedule == nil {
		v.Schedule = domain.Schedule{}
	}

	normalized := make(domain.Schedule, len(v.Schedule))
	for day, hours := range v.Schedule {
		key := strings.ToLower(strings.TrimSpace(day))
		if !isWeekday(key) {
			return fmt.Errorf("%w: unknown weekday %q", ErrInvalidVenue, day)
		}
		if hours.Open {
			if _, err := slotgrid.Generate(hours.OpenTime, hours.CloseTime, 0); err != nil {
				return fmt.Errorf("%w: %s: %v", ErrInvalidVenue, key, err)
			}
		}
		normalized[key] = hours
	}
	v.Schedule = normalized

	sports := make([]string, 0, len(v.Sports))
	for _, sp := range v.Sports {
		if sp = domain.NormalizeSport(sp); sp != "" {
			sports = append(sports, sp)
		}
	}
	v.Sports = sports

	return nil
}

func isWeekday(s string) bool {
	for _, d := range weekdays {
		if d == s {
			return true
		}
	}
	return false
}
