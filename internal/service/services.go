package service

import (
	"context"
	"log/slog"

	"github.com/kirinyoku/slotgo/internal/domain"
	"github.com/kirinyoku/slotgo/internal/repository"
	redis "github.com/kirinyoku/slotgo/internal/repository/redis"
	"github.com/kirinyoku/slotgo/internal/service/admin"
	"github.com/kirinyoku/slotgo/internal/service/availability"
	"github.com/kirinyoku/slotgo/internal/service/conflict"
	"github.com/kirinyoku/slotgo/internal/service/lock"
	"github.com/kirinyoku/slotgo/internal/service/payment"
	"github.com/kirinyoku/slotgo/internal/service/reaper"
)

// Notifier receives the post-commit room notifications of every service.
// The real-time hub implements it.
type Notifier interface {
	SlotsChanged(ctx context.Context, rooms []domain.RoomKey, reason string)
	BookingConfirmed(ctx context.Context, b *domain.Booking)
}

type Services struct {
	Availability *availability.Service
	Conflict     *conflict.Checker
	Lock         *lock.Service
	Payment      *payment.Service
	Admin        *admin.Service
	Reaper       *reaper.Reaper
}

type Config struct {
	Availability availability.Config
	Lock         lock.Config
	Payment      payment.Config
	Reaper       reaper.Config
}

// NewServices wires the booking services over one store. cache, notifier
// and publisher may be nil.
func NewServices(
	store repository.Store,
	cache *redis.Cache,
	notifier Notifier,
	publisher payment.EventPublisher,
	logger *slog.Logger,
	cfg Config,
) *Services {
	avail := availability.New(store, cache, cfg.Availability)
	checker := conflict.NewChecker(store, cfg.Availability.Now)

	var (
		lockNotifier    lock.Notifier
		paymentNotifier payment.Notifier
		reaperNotifier  reaper.Notifier
	)
	if notifier != nil {
		lockNotifier, paymentNotifier, reaperNotifier = notifier, notifier, notifier
	}

	return &Services{
		Availability: avail,
		Conflict:     checker,
		Lock:         lock.New(store, avail, checker, lockNotifier, cfg.Lock),
		Payment:      payment.New(store, paymentNotifier, publisher, logger, cfg.Payment),
		Admin:        admin.New(store, cache),
		Reaper:       reaper.New(store, reaperNotifier, logger, cfg.Reaper),
	}
}
