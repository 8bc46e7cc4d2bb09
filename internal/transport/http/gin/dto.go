package httpgin

import (
	"encoding/json"

	"github.com/kirinyoku/slotgo/internal/domain"
	"github.com/kirinyoku/slotgo/internal/service/lock"
	"github.com/shopspring/decimal"
)

type AvailabilityQuery struct {
	Sport        string `form:"sport" binding:"required"`
	Date         string `form:"date" binding:"required"`
	PlayableArea int    `form:"playableArea" binding:"required,gt=0"`
}

type SlotRequest struct {
	VenueID      string `json:"venueId" binding:"required"`
	Sport        string `json:"sport" binding:"required"`
	Date         string `json:"date" binding:"required"`
	StartTime    string `json:"startTime" binding:"required"`
	EndTime      string `json:"endTime" binding:"required"`
	PlayableArea int    `json:"playableArea" binding:"required,gt=0"`
	SessionID    string `json:"sessionId" binding:"required"`
}

func (r SlotRequest) slot() domain.TimeSlot {
	return domain.TimeSlot{StartTime: r.StartTime, EndTime: r.EndTime, PlayableArea: r.PlayableArea}
}

type ReleaseSessionRequest struct {
	VenueID   string `json:"venueId" binding:"required"`
	Sport     string `json:"sport" binding:"required"`
	SessionID string `json:"sessionId" binding:"required"`
}

type ReserveRangeRequest struct {
	VenueID      string   `json:"venueId" binding:"required"`
	Sport        string   `json:"sport" binding:"required"`
	Dates        []string `json:"dates" binding:"required,min=1,dive,required"`
	PlayableArea int      `json:"playableArea" binding:"required,gt=0"`
	SessionID    string   `json:"sessionId" binding:"required"`
}

type ConfirmPaymentRequest struct {
	VenueID     string          `json:"venueId" binding:"required"`
	Sport       string          `json:"sport" binding:"required"`
	SessionID   string          `json:"sessionId" binding:"required"`
	PaymentRef  string          `json:"paymentRef"`
	BaseAmount  decimal.Decimal `json:"baseAmount" swaggertype:"string"`
	Fees        decimal.Decimal `json:"fees" swaggertype:"string"`
	TotalAmount decimal.Decimal `json:"totalAmount" swaggertype:"string"`
}

type CreateVenueRequest struct {
	ID       string          `json:"id" binding:"required"`
	Name     string          `json:"name"`
	Schedule domain.Schedule `json:"schedule" binding:"required"`
	Sports   []string        `json:"sports"`
}

type BroadcastRequest struct {
	Event   string          `json:"event" binding:"required"`
	Payload json.RawMessage `json:"payload" swaggertype:"object"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type LockSlotResponse struct {
	Locked bool `json:"locked"`
	*lock.LockResult
}

type CreateVenueResponse struct {
	VenueID string `json:"venueId"`
}

type ConnectedResponse struct {
	UserID    string `json:"userId"`
	Connected bool   `json:"connected"`
}

type ReachedResponse struct {
	VenueID string `json:"venueId"`
	Reached int    `json:"reached"`
}
