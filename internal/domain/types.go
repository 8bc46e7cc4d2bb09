package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DateLayout is the wire and storage layout of a calendar date.
const DateLayout = "2006-01-02"

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCompleted BookingStatus = "completed"
	BookingCancelled BookingStatus = "cancelled"
)

// Occupies reports whether a non-hold booking in this status blocks its slots.
func (s BookingStatus) Occupies() bool {
	switch s {
	case BookingPending, BookingConfirmed, BookingCompleted:
		return true
	default:
		return false
	}
}

type DaySchedule struct {
	Open      bool   `json:"open"`
	OpenTime  string `json:"openTime"`
	CloseTime string `json:"closeTime"`
}

// Schedule is keyed by lower-case weekday name ("monday").
type Schedule map[string]DaySchedule

// For returns the schedule of the weekday the given date falls on.
func (s Schedule) For(day time.Weekday) (DaySchedule, bool) {
	d, ok := s[strings.ToLower(day.String())]
	if !ok || !d.Open {
		return DaySchedule{}, false
	}
	return d, true
}

type Venue struct {
	ID            string
	Name          string
	Schedule      Schedule
	Sports        []string
	TotalBookings int64
	AmountOwed    decimal.Decimal
	AmountPaid    decimal.Decimal
}

// NormalizeSport is the spelling a sport is stored and compared in. Slot
// tuples, occupancy lookups and room keys all use it.
func NormalizeSport(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// SupportsSport is true when the venue lists no sports or lists this one.
func (v *Venue) SupportsSport(sport string) bool {
	if len(v.Sports) == 0 {
		return true
	}
	for _, s := range v.Sports {
		if strings.EqualFold(s, sport) {
			return true
		}
	}
	return false
}

type TimeSlot struct {
	StartTime    string `json:"startTime"`
	EndTime      string `json:"endTime"`
	PlayableArea int    `json:"playableArea"`
}

// Key identifies the slot within one area as "startTime-endTime".
func (t TimeSlot) Key() string {
	return t.StartTime + "-" + t.EndTime
}

type ScheduledDate struct {
	Date  string     `json:"date"`
	Slots []TimeSlot `json:"slots"`
}

type Booking struct {
	ID               uuid.UUID       `json:"id"`
	VenueID          string          `json:"venueId"`
	Sport            string          `json:"sport"`
	ScheduledDates   []ScheduledDate `json:"scheduledDates"`
	Status           BookingStatus   `json:"bookingStatus"`
	IsLocked         bool            `json:"isLocked"`
	LockedUntil      *time.Time      `json:"lockedUntil,omitempty"`
	SessionID        string          `json:"sessionId"`
	IsPaymentConfirm bool            `json:"isPaymentConfirm"`
	UserID           string          `json:"userId"`
	UserDisplay      string          `json:"userDisplay,omitempty"`
	BaseAmount       decimal.Decimal `json:"baseAmount"`
	Fees             decimal.Decimal `json:"fees"`
	TotalAmount      decimal.Decimal `json:"totalAmount"`
	PaymentRef       string          `json:"paymentRef,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// IsHold reports whether the booking is an unpaid soft lock.
func (b *Booking) IsHold() bool {
	return b.IsLocked && !b.IsPaymentConfirm
}

// HoldActive reports whether the booking is a hold that has not yet expired.
func (b *Booking) HoldActive(now time.Time) bool {
	return b.IsHold() && b.LockedUntil != nil && b.LockedUntil.After(now)
}

// SlotCount returns the number of slots across all scheduled dates.
func (b *Booking) SlotCount() int {
	n := 0
	for _, d := range b.ScheduledDates {
		n += len(d.Slots)
	}
	return n
}

// Rooms lists the distinct rooms touched by the booking.
func (b *Booking) Rooms() []RoomKey {
	seen := make(map[RoomKey]struct{})
	var out []RoomKey
	for _, d := range b.ScheduledDates {
		for _, s := range d.Slots {
			k := RoomKey{VenueID: b.VenueID, Sport: b.Sport, Date: d.Date, PlayableArea: s.PlayableArea}
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	return out
}

// Occupancy is one slot row currently blocking a slot tuple.
type Occupancy struct {
	Slot        TimeSlot
	Date        string
	BookingID   uuid.UUID
	UserID      string
	UserDisplay string
	SessionID   string
	Status      BookingStatus
	IsHold      bool
	LockedUntil *time.Time
}

// RoomKey addresses one real-time broadcast group.
type RoomKey struct {
	VenueID      string `json:"venueId"`
	Sport        string `json:"sport"`
	Date         string `json:"date"`
	PlayableArea int    `json:"playableArea"`
}

// Normalized returns the key with its sport in stored spelling.
func (k RoomKey) Normalized() RoomKey {
	k.VenueID = strings.TrimSpace(k.VenueID)
	k.Sport = NormalizeSport(k.Sport)
	return k
}

func (k RoomKey) String() string {
	return fmt.Sprintf("%s:%s:%s:%d", k.VenueID, k.Sport, k.Date, k.PlayableArea)
}

// ParseDate validates a YYYY-MM-DD date in the given location.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	return time.ParseInLocation(DateLayout, s, loc)
}
