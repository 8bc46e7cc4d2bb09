package httpgin

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kirinyoku/slotgo/internal/auth"
	"github.com/kirinyoku/slotgo/internal/domain"
	"github.com/kirinyoku/slotgo/internal/hub"
	redisrepo "github.com/kirinyoku/slotgo/internal/repository/redis"
	"github.com/kirinyoku/slotgo/internal/service"
	"github.com/kirinyoku/slotgo/internal/service/admin"
	"github.com/kirinyoku/slotgo/internal/service/availability"
	"github.com/kirinyoku/slotgo/internal/service/lock"
	"github.com/kirinyoku/slotgo/internal/service/payment"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Deps carries what the router wires into handlers. Idem, Limiter and WS
// are optional.
type Deps struct {
	Services    *service.Services
	Hub         *hub.Hub
	WS          gin.HandlerFunc
	Verifier    *auth.Verifier
	Idem        *redisrepo.IdempotencyStore
	Limiter     *redisrepo.SlidingWindowLimiter
	Logger      *slog.Logger
	CORSOrigins []string
}

func NewRouter(d Deps, middlewares ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery(), RequestIDMiddleware(), LoggingMiddleware(d.Logger), CORS(d.CORSOrigins))
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	// Swagger UI
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// health
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if d.WS != nil {
		r.GET("/ws", d.WS)
	}

	svcs := d.Services

	api := r.Group("/", JWTAuth(d.Verifier))
	{
		api.GET("/venues/:id/availability", handleGetAvailability(svcs))

		api.POST("/slots/lock", RateLimit(d.Limiter, d.Logger), handleLockSlot(svcs, d.Idem))
		api.POST("/slots/release", handleReleaseSlot(svcs))
		api.POST("/slots/release-session", handleReleaseSession(svcs))
		api.POST("/slots/reserve-range", handleReserveRange(svcs))

		api.POST("/payments/confirm", handleConfirmPayment(svcs, d.Idem))
	}

	adm := r.Group("/admin", JWTAuth(d.Verifier), RequireRole(auth.RoleAdmin))
	{
		adm.POST("/venues", handleCreateVenue(svcs))
		adm.POST("/holds/reap", handleReapHolds(svcs))

		rt := adm.Group("/realtime")
		rt.GET("/stats", handleRealtimeStats(d.Hub))
		rt.GET("/venues/:venueId/users", handleConnectedUsers(d.Hub))
		rt.GET("/users/:userId/connected", handleUserConnected(d.Hub))
		rt.POST("/venues/:venueId/refresh", handleRefreshVenue(d.Hub))
		rt.POST("/venues/:venueId/broadcast", handleBroadcastToVenue(d.Hub))
	}

	return r
}

// --- Handlers with Swagger annotations ---

// @Summary  Slot availability for one venue, sport, date and area
// @Security BearerAuth
// @Param    id            path   string  true  "Venue ID"
// @Param    sport         query  string  true  "Sport"
// @Param    date          query  string  true  "Date (YYYY-MM-DD)"
// @Param    playableArea  query  int     true  "Playable area"
// @Success  200  {object}  availability.Result
// @Failure  400  {object}  ErrorResponse
// @Failure  404  {object}  ErrorResponse
// @Router   /venues/{id}/availability [get]
func handleGetAvailability(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var q AvailabilityQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			badRequest(c, err.Error())
			return
		}
		res, err := svcs.Availability.Resolve(c.Request.Context(), availability.Query{
			VenueID:      c.Param("id"),
			Sport:        q.Sport,
			Date:         q.Date,
			PlayableArea: q.PlayableArea,
			UserID:       claimsFrom(c).UserID(),
		})
		if err != nil {
			respondErr(c, err)
			return
		}
		// per-user view (heldByYou), so private
		writeJSONWithCache(c, http.StatusOK, res, "private, no-cache", true)
	}
}

// @Summary  Hold one slot for the caller's session (idempotent)
// @Security BearerAuth
// @Param    req body  SlotRequest true "payload"
// @Param    Idempotency-Key header string false "client retry key"
// @Success  200 {object} LockSlotResponse
// @Failure  400 {object} ErrorResponse
// @Failure  409 {object} LockSlotResponse "slot booked or held by another session"
// @Failure  429 {object} ErrorResponse "rate limited"
// @Router   /slots/lock [post]
func handleLockSlot(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SlotRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		claims := claimsFrom(c)

		key, done := beginIdem(c, idem, func(k string) string {
			return redisrepo.KeyIdemLock(claims.UserID(), k)
		})
		if done {
			return
		}

		res, err := svcs.Lock.LockSlot(c.Request.Context(), lock.SlotRequest{
			VenueID:     req.VenueID,
			Sport:       req.Sport,
			Date:        req.Date,
			Slot:        req.slot(),
			UserID:      claims.UserID(),
			UserDisplay: claims.Display(),
			SessionID:   req.SessionID,
		})
		if err != nil {
			releaseIdem(c, idem, key)
			respondErr(c, err)
			return
		}

		resp := LockSlotResponse{Locked: res.Locked(), LockResult: res}
		if !resp.Locked {
			// the conflict may clear, so a retry must run again
			releaseIdem(c, idem, key)
			c.JSON(http.StatusConflict, resp)
			return
		}

		saveIdem(c, idem, key, resp)
		c.JSON(http.StatusOK, resp)
	}
}

// @Summary  Release one slot held by the caller's session
// @Security BearerAuth
// @Param    req body  SlotRequest true "payload"
// @Success  200 {object} lock.ReleaseResult
// @Failure  400 {object} ErrorResponse
// @Router   /slots/release [post]
func handleReleaseSlot(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SlotRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		claims := claimsFrom(c)

		res, err := svcs.Lock.ReleaseSlot(c.Request.Context(), lock.SlotRequest{
			VenueID:   req.VenueID,
			Sport:     req.Sport,
			Date:      req.Date,
			Slot:      req.slot(),
			UserID:    claims.UserID(),
			SessionID: req.SessionID,
		})
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

// @Summary  Release every slot of the caller's session hold
// @Security BearerAuth
// @Param    req body  ReleaseSessionRequest true "payload"
// @Success  200 {object} lock.ReleaseResult
// @Failure  400 {object} ErrorResponse
// @Router   /slots/release-session [post]
func handleReleaseSession(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ReleaseSessionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		res, err := svcs.Lock.ReleaseAllForSession(c.Request.Context(), lock.SessionRequest{
			VenueID:   req.VenueID,
			Sport:     req.Sport,
			UserID:    claimsFrom(c).UserID(),
			SessionID: req.SessionID,
		})
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

// @Summary  Hold every free slot of an area across several dates
// @Security BearerAuth
// @Param    req body  ReserveRangeRequest true "payload"
// @Success  200 {object} lock.RangeResult
// @Failure  400 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse "nothing reservable"
// @Router   /slots/reserve-range [post]
func handleReserveRange(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ReserveRangeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		claims := claimsFrom(c)

		res, err := svcs.Lock.ReserveRange(c.Request.Context(), lock.RangeRequest{
			VenueID:      req.VenueID,
			Sport:        req.Sport,
			Dates:        req.Dates,
			PlayableArea: req.PlayableArea,
			UserID:       claims.UserID(),
			UserDisplay:  claims.Display(),
			SessionID:    req.SessionID,
		})
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

// @Summary  Confirm payment for the caller's session hold (idempotent)
// @Security BearerAuth
// @Param    req body  ConfirmPaymentRequest true "payload"
// @Param    Idempotency-Key header string false "client retry key"
// @Success  200 {object} payment.ConfirmResult
// @Failure  400 {object} ErrorResponse
// @Failure  404 {object} ErrorResponse "no hold for session"
// @Failure  410 {object} ErrorResponse "hold expired"
// @Router   /payments/confirm [post]
func handleConfirmPayment(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ConfirmPaymentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		if req.BaseAmount.IsNegative() || req.Fees.IsNegative() || req.TotalAmount.IsNegative() {
			badRequest(c, "amounts must not be negative")
			return
		}

		key, done := beginIdem(c, idem, func(k string) string {
			return redisrepo.KeyIdemConfirm(req.SessionID, k)
		})
		if done {
			return
		}

		res, err := svcs.Payment.Confirm(c.Request.Context(), payment.ConfirmRequest{
			VenueID:     req.VenueID,
			Sport:       req.Sport,
			SessionID:   req.SessionID,
			UserID:      claimsFrom(c).UserID(),
			PaymentRef:  req.PaymentRef,
			BaseAmount:  req.BaseAmount,
			Fees:        req.Fees,
			TotalAmount: req.TotalAmount,
		})
		if err != nil {
			releaseIdem(c, idem, key)
			respondErr(c, err)
			return
		}

		saveIdem(c, idem, key, res)
		c.JSON(http.StatusOK, res)
	}
}

// @Summary  Seed a venue schedule
// @Security BearerAuth
// @Param    req body  CreateVenueRequest true "payload"
// @Success  201 {object} CreateVenueResponse
// @Failure  400 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse
// @Router   /admin/venues [post]
func handleCreateVenue(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateVenueRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		err := svcs.Admin.CreateVenue(c.Request.Context(), domain.Venue{
			ID:       req.ID,
			Name:     req.Name,
			Schedule: req.Schedule,
			Sports:   req.Sports,
		})
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, CreateVenueResponse{VenueID: req.ID})
	}
}

// @Summary  Reclaim expired holds now
// @Security BearerAuth
// @Success  200 {object} reaper.SweepResult
// @Router   /admin/holds/reap [post]
func handleReapHolds(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := svcs.Reaper.Sweep(c.Request.Context())
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

// @Summary  Real-time connection and room counters of this node
// @Security BearerAuth
// @Success  200 {object} hub.Stats
// @Router   /admin/realtime/stats [get]
func handleRealtimeStats(h *hub.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, h.Stats())
	}
}

// @Summary  Users connected to any room of a venue
// @Security BearerAuth
// @Param    venueId  path  string  true  "Venue ID"
// @Success  200 {array} hub.UserPresence
// @Router   /admin/realtime/venues/{venueId}/users [get]
func handleConnectedUsers(h *hub.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		users := h.ConnectedUsers(c.Param("venueId"))
		if users == nil {
			users = []hub.UserPresence{}
		}
		c.JSON(http.StatusOK, users)
	}
}

// @Summary  Whether a user has a live connection on this node
// @Security BearerAuth
// @Param    userId  path  string  true  "User ID"
// @Success  200 {object} ConnectedResponse
// @Router   /admin/realtime/users/{userId}/connected [get]
func handleUserConnected(h *hub.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("userId")
		c.JSON(http.StatusOK, ConnectedResponse{
			UserID:    userID,
			Connected: h.IsUserConnected(userID),
		})
	}
}

// @Summary  Push fresh availability to every room of a venue
// @Security BearerAuth
// @Param    venueId  path  string  true  "Venue ID"
// @Success  200 {object} ReachedResponse
// @Router   /admin/realtime/venues/{venueId}/refresh [post]
func handleRefreshVenue(h *hub.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		venueID := c.Param("venueId")
		c.JSON(http.StatusOK, ReachedResponse{
			VenueID: venueID,
			Reached: h.RefreshVenue(c.Request.Context(), venueID),
		})
	}
}

// @Summary  Send an event to every room of a venue
// @Security BearerAuth
// @Param    venueId  path  string  true  "Venue ID"
// @Param    req body  BroadcastRequest true "payload"
// @Success  200 {object} ReachedResponse
// @Failure  400 {object} ErrorResponse
// @Router   /admin/realtime/venues/{venueId}/broadcast [post]
func handleBroadcastToVenue(h *hub.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req BroadcastRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		venueID := c.Param("venueId")
		c.JSON(http.StatusOK, ReachedResponse{
			VenueID: venueID,
			Reached: h.BroadcastToVenue(c.Request.Context(), venueID, req.Event, req.Payload),
		})
	}
}

// --- Helpers ---

// beginIdem claims the request's Idempotency-Key. The returned storage key
// is empty when no key was sent. done reports that a response was already
// written (replay or in-flight).
func beginIdem(
	c *gin.Context,
	idem *redisrepo.IdempotencyStore,
	storageKey func(idemKey string) string,
) (string, bool) {
	idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	if idem == nil || idemKey == "" {
		return "", false
	}
	key := storageKey(idemKey)

	state, payload, err := idem.Begin(c.Request.Context(), key)
	if err != nil {
		respondErr(c, err)
		return "", true
	}

	switch state {
	case redisrepo.IdemReplay:
		c.Header("Idempotency-Key", idemKey)
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(payload))
		return "", true
	case redisrepo.IdemInFlight:
		c.Header("Retry-After", "1")
		c.JSON(http.StatusConflict, ErrorResponse{Error: "idempotency key in progress"})
		return "", true
	}

	c.Header("Idempotency-Key", idemKey)
	return key, false
}

func saveIdem(c *gin.Context, idem *redisrepo.IdempotencyStore, key string, resp any) {
	if idem == nil || key == "" {
		return
	}
	b, err := json.Marshal(resp)
	if err != nil {
		_ = idem.Release(c.Request.Context(), key)
		return
	}
	_ = idem.Save(c.Request.Context(), key, string(b))
}

func releaseIdem(c *gin.Context, idem *redisrepo.IdempotencyStore, key string) {
	if idem == nil || key == "" {
		return
	}
	_ = idem.Release(c.Request.Context(), key)
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	switch {
	case errors.Is(err, availability.ErrSlotAlreadyStarted):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: "slot has already started"})
	// input
	case errors.Is(err, availability.ErrInvalidInput),
		errors.Is(err, payment.ErrInvalidInput),
		errors.Is(err, availability.ErrSportNotSupported),
		errors.Is(err, availability.ErrSlotOutsideHours):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, admin.ErrInvalidVenue):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	// lookups
	case errors.Is(err, availability.ErrVenueNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "venue not found"})
	case errors.Is(err, payment.ErrHoldNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no hold found for session"})
	// state
	case errors.Is(err, payment.ErrHoldExpired):
		c.JSON(http.StatusGone, ErrorResponse{Error: "hold expired"})
	case errors.Is(err, lock.ErrNothingReservable):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "no slot could be reserved"})
	case errors.Is(err, admin.ErrVenueConflict):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "venue conflict"})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}
