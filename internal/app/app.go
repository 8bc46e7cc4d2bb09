package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirinyoku/slotgo/internal/auth"
	"github.com/kirinyoku/slotgo/internal/config"
	"github.com/kirinyoku/slotgo/internal/hub"
	"github.com/kirinyoku/slotgo/internal/postgres"
	"github.com/kirinyoku/slotgo/internal/redis"
	"github.com/kirinyoku/slotgo/internal/repository"
	"github.com/kirinyoku/slotgo/internal/repository/memory"
	postgresrepo "github.com/kirinyoku/slotgo/internal/repository/postgres"
	redisrepo "github.com/kirinyoku/slotgo/internal/repository/redis"
	"github.com/kirinyoku/slotgo/internal/service"
	"github.com/kirinyoku/slotgo/internal/service/availability"
	"github.com/kirinyoku/slotgo/internal/service/conflict"
	"github.com/kirinyoku/slotgo/internal/service/lock"
	"github.com/kirinyoku/slotgo/internal/service/payment"
	"github.com/kirinyoku/slotgo/internal/service/reaper"
	"github.com/kirinyoku/slotgo/internal/transport/amqp"
	httpgin "github.com/kirinyoku/slotgo/internal/transport/http/gin"
	"github.com/kirinyoku/slotgo/internal/transport/ws"
	"golang.org/x/sync/errgroup"
)

type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	httpServer *http.Server

	services *service.Services
	hub      *hub.Hub
	relay    *redisrepo.RoomEventsPubSub
	consumer *amqp.Consumer

	closers []func()
}

func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx := context.Background()
	a := &App{cfg: cfg, logger: logger}

	// Initialize dependencies
	store, err := a.newStore(ctx)
	if err != nil {
		return nil, err
	}

	var (
		cache   *redisrepo.Cache
		limiter *redisrepo.SlidingWindowLimiter
		idem    *redisrepo.IdempotencyStore
		relay   hub.Relay
	)
	if cfg.Redis.Addr != "" {
		rdb, err := redis.New(ctx, redis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize redis: %w", err)
		}
		a.closers = append(a.closers, func() { _ = rdb.Close() })

		cache = redisrepo.New(rdb)
		limiter = redisrepo.NewSlidingWindowLimiter(rdb, "lock", cfg.Redis.LockLimit, cfg.Redis.LockWin)
		idem = redisrepo.NewIdempotencyStore(rdb, cfg.Redis.IdemTTL, 0)
		a.relay = redisrepo.NewRoomEventsPubSub(rdb)
		relay = a.relay
	} else {
		logger.Warn("REDIS_ADDR not set: cache, relay, rate limiting and idempotency disabled")
	}

	var publisher payment.EventPublisher
	if cfg.Rabbit.URL != "" {
		pub, err := amqp.NewPublisher(cfg.Rabbit.URL, cfg.Rabbit.Exchange)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize rabbitmq publisher: %w", err)
		}
		a.closers = append(a.closers, func() { _ = pub.Close() })
		publisher = pub
	}

	availCfg := availability.Config{
		Location:      cfg.Booking.Location,
		VenueCacheTTL: cfg.Booking.VenueCacheTTL,
	}

	// the hub resolves with its own stateless resolver and checker so it
	// can be built before the services it is notified by
	a.hub = hub.New(
		availability.New(store, cache, availCfg),
		conflict.NewChecker(store, nil),
		store.Bookings(),
		relay,
		logger,
		hub.Config{NodeID: cfg.Server.NodeID},
	)

	// Initialize services
	a.services = service.NewServices(store, cache, a.hub, publisher, logger, service.Config{
		Availability: availCfg,
		Lock: lock.Config{
			HoldTTL:      cfg.Booking.HoldTTL,
			RangeHoldTTL: cfg.Booking.RangeHoldTTL,
		},
		Payment: payment.Config{},
		Reaper:  reaper.Config{Interval: cfg.Booking.ReaperInterval},
	})

	if cfg.Rabbit.URL != "" {
		a.consumer = amqp.NewConsumer(amqp.ConsumerConfig{
			URL:      cfg.Rabbit.URL,
			Exchange: cfg.Rabbit.Exchange,
			Queue:    cfg.Rabbit.Queue,
			Prefetch: cfg.Rabbit.Prefetch,
			Tag:      "slotgo-" + a.hub.NodeID(),
		}, a.services.Payment, logger)
	}

	verifier := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)
	wsHandler := ws.NewHandler(a.hub, verifier, logger, ws.Config{})

	// Initialize Gin router
	router := httpgin.NewRouter(httpgin.Deps{
		Services:    a.services,
		Hub:         a.hub,
		WS:          wsHandler.Serve,
		Verifier:    verifier,
		Idem:        idem,
		Limiter:     limiter,
		Logger:      logger,
		CORSOrigins: cfg.Server.CORSOrigins,
	})

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

func (a *App) newStore(ctx context.Context) (repository.Store, error) {
	if a.cfg.Booking.Store == config.StoreMemory {
		a.logger.Warn("using in-memory booking store: state is lost on restart")
		return memory.NewStore(), nil
	}

	pgxPool, err := postgres.New(ctx, postgres.Config{
		DSN:      a.cfg.Postgres.DSN(),
		MaxConns: a.cfg.Postgres.MaxConns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres: %w", err)
	}
	a.closers = append(a.closers, pgxPool.Close)

	store := postgresrepo.NewStore(pgxPool)
	if a.cfg.Postgres.Migrate {
		if err := store.Migrate(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to migrate postgres: %w", err)
		}
	}

	return store, nil
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()
	defer a.Close()

	g, gCtx := errgroup.WithContext(ctx)

	// Start HTTP server
	g.Go(func() error {
		a.logger.Info("HTTP server listening", "host", a.cfg.Server.Host, "port", a.cfg.Server.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	// Expired-hold reaper
	g.Go(func() error {
		return a.services.Reaper.Run(gCtx)
	})

	// Cross-process room relay
	if a.relay != nil {
		g.Go(func() error {
			err := a.relay.Subscribe(gCtx, a.hub.DeliverRelayed)
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("room relay stopped: %w", err)
			}
			return nil
		})
	}

	// payment.paid intake
	if a.consumer != nil {
		g.Go(func() error {
			if err := a.consumer.Connect(); err != nil {
				return err
			}
			defer a.consumer.Close()
			return a.consumer.Run(gCtx)
		})
	}

	// Graceful shutdown
	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("shutting down HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.httpServer.Shutdown(ctx)
	})

	return g.Wait()
}

// Close releases pools and broker connections in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
