package amqp

import (
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/slotgo/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	RKPaymentPaid      = "payment.paid"
	RKBookingConfirmed = "booking.confirmed"
)

// PaymentPaid is emitted by the payment gateway once a checkout session is
// charged.
type PaymentPaid struct {
	VenueID     string          `json:"venueId"`
	Sport       string          `json:"sport"`
	SessionID   string          `json:"sessionId"`
	UserID      string          `json:"userId"`
	PaymentRef  string          `json:"paymentRef"`
	BaseAmount  decimal.Decimal `json:"baseAmount"`
	Fees        decimal.Decimal `json:"fees"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
}

type BookingConfirmed struct {
	BookingID      uuid.UUID              `json:"bookingId"`
	VenueID        string                 `json:"venueId"`
	Sport          string                 `json:"sport"`
	UserID         string                 `json:"userId"`
	ScheduledDates []domain.ScheduledDate `json:"scheduledDates"`
	TotalAmount    decimal.Decimal        `json:"totalAmount"`
	PaymentRef     string                 `json:"paymentRef,omitempty"`
	ConfirmedAt    time.Time              `json:"confirmedAt"`
}

func bookingConfirmedFrom(b *domain.Booking) BookingConfirmed {
	return BookingConfirmed{
		BookingID:      b.ID,
		VenueID:        b.VenueID,
		Sport:          b.Sport,
		UserID:         b.UserID,
		ScheduledDates: b.ScheduledDates,
		TotalAmount:    b.TotalAmount,
		PaymentRef:     b.PaymentRef,
		ConfirmedAt:    b.UpdatedAt,
	}
}
