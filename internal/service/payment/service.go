// Package payment turns a paid checkout session's hold into a confirmed
// booking.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirinyoku/slotgo/internal/domain"
	"github.com/kirinyoku/slotgo/internal/repository"
	"github.com/kirinyoku/slotgo/internal/repository/postgres"
	"github.com/kirinyoku/slotgo/internal/uow"
	"github.com/shopspring/decimal"
)

// Notifier fans a confirmation out to the real-time rooms it touches.
type Notifier interface {
	BookingConfirmed(ctx context.Context, b *domain.Booking)
}

// EventPublisher emits the confirmation to downstream consumers.
type EventPublisher interface {
	PublishBookingConfirmed(ctx context.Context, b *domain.Booking) error
}

type Config struct {
	MaxAttempts int
	Now         func() time.Time
}

type Service struct {
	store     repository.Store
	notifier  Notifier
	publisher EventPublisher
	uow       *uow.UoW
	log       *slog.Logger
	cfg       Config
}

// New builds the confirmation service. notifier and publisher may be nil.
func New(
	store repository.Store,
	notifier Notifier,
	publisher EventPublisher,
	log *slog.Logger,
	cfg Config,
) *Service {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	if log == nil {
		log = slog.Default()
	}

	return &Service{
		store:     store,
		notifier:  notifier,
		publisher: publisher,
		uow:       uow.NewUoW(store),
		log:       log,
		cfg:       cfg,
	}
}

type ConfirmRequest struct {
	VenueID    string
	Sport      string
	SessionID  string
	UserID     string
	PaymentRef string
	BaseAmount decimal.Decimal
	Fees       decimal.Decimal
	// TotalAmount defaults to BaseAmount + Fees when zero.
	TotalAmount decimal.Decimal
}

type ConfirmResult struct {
	Booking          *domain.Booking `json:"booking"`
	AlreadyConfirmed bool            `json:"alreadyConfirmed"`
}

// Confirm marks the session's hold as paid and books its slots.
//
// Parameters:
//   - ctx: request-scoped context.
//   - req: session identity and payment amounts. UserID is optional and
//     restricts the lookup to that user's booking when set.
//
// Returns:
//   - *ConfirmResult: the booking; AlreadyConfirmed is set when a previous
//     call already confirmed it.
//   - error: payment.ErrHoldNotFound if the session has no booking.
//   - error: payment.ErrHoldExpired if the hold expired before payment.
//   - error: payment.ErrInvalidInput on malformed amounts or keys.
func (s *Service) Confirm(ctx context.Context, req ConfirmRequest) (*ConfirmResult, error) {
	const op = "service.payment.Confirm"

	req.Sport = domain.NormalizeSport(req.Sport)

	if strings.TrimSpace(req.VenueID) == "" || strings.TrimSpace(req.Sport) == "" ||
		strings.TrimSpace(req.SessionID) == "" {
		return nil, fmt.Errorf("%s: %w: venueId, sport and sessionId are required", op, ErrInvalidInput)
	}

	total := req.TotalAmount
	if total.IsZero() {
		total = req.BaseAmount.Add(req.Fees)
	}

	if req.BaseAmount.IsNegative() || req.Fees.IsNegative() || total.IsNegative() {
		return nil, fmt.Errorf("%s: %w: amounts must not be negative", op, ErrInvalidInput)
	}

	var res *ConfirmResult

	err := s.uow.DoRetry(ctx, s.cfg.MaxAttempts, postgres.IsRetryable, func(
		ctx context.Context,
		tx repository.Tx,
		after func(uow.AfterCommit),
	) error {
		now := s.cfg.Now()
		res = &ConfirmResult{}

		b, err := tx.Bookings().FindBySession(ctx, req.VenueID, req.Sport, req.SessionID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrHoldNotFound
			}
			return err
		}

		if req.UserID != "" && b.UserID != req.UserID {
			return ErrHoldNotFound
		}

		if b.IsPaymentConfirm {
			res.Booking = b
			res.AlreadyConfirmed = true
			return nil
		}

		if !b.IsHold() {
			return ErrHoldNotFound
		}

		if !b.HoldActive(now) {
			return ErrHoldExpired
		}

		err = tx.Bookings().Confirm(ctx, b.ID, repository.Payment{
			PaymentRef:  req.PaymentRef,
			BaseAmount:  req.BaseAmount,
			Fees:        req.Fees,
			TotalAmount: total,
		}, now)
		if err != nil {
			if errors.Is(err, repository.ErrAlreadyConfirmed) {
				res.AlreadyConfirmed = true
				res.Booking, err = tx.Bookings().Get(ctx, b.ID)
				return err
			}
			return err
		}

		if err := tx.Venues().IncrementCounters(ctx, b.VenueID, 1, total); err != nil {
			return err
		}

		confirmed, err := tx.Bookings().Get(ctx, b.ID)
		if err != nil {
			return err
		}
		res.Booking = confirmed

		after(func(ctx context.Context) {
			s.announce(ctx, confirmed)
		})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return res, nil
}

func (s *Service) announce(ctx context.Context, b *domain.Booking) {
	if s.notifier != nil {
		s.notifier.BookingConfirmed(ctx, b)
	}

	if s.publisher != nil {
		if err := s.publisher.PublishBookingConfirmed(ctx, b); err != nil {
			s.log.Warn("publish booking confirmed failed",
				"booking_id", b.ID,
				"venue_id", b.VenueID,
				"err", err,
			)
		}
	}
}
