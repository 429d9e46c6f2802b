package models

import (
	"fmt"
	"strconv"
	"strings"

	apperrors "tourbook/internal/errors"
)

type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleAgent    Role = "AGENT"
	RoleCustomer Role = "CUSTOMER"
)

// Principal is the authenticated caller resolved by the HTTP layer.
type Principal struct {
	ID   int64 `json:"id"`
	Role Role  `json:"role"`
}

func (p Principal) IsCustomer() bool {
	return p.Role == RoleCustomer
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

type BookingStatus string

const (
	BookingPending   BookingStatus = "PENDING"
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingCancelled BookingStatus = "CANCELLED"
	BookingCompleted BookingStatus = "COMPLETED"
)

func (s BookingStatus) Valid() bool {
	switch s {
	case BookingPending, BookingConfirmed, BookingCancelled, BookingCompleted:
		return true
	}
	return false
}

func (s BookingStatus) Terminal() bool {
	return s == BookingCancelled || s == BookingCompleted
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentCompleted PaymentStatus = "COMPLETED"
	PaymentFailed    PaymentStatus = "FAILED"
	PaymentRefunded  PaymentStatus = "REFUNDED"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentCompleted, PaymentFailed, PaymentRefunded:
		return true
	}
	return false
}

type PaymentMethod string

const (
	MethodCard         PaymentMethod = "CARD"
	MethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	MethodUSSD         PaymentMethod = "USSD"
	MethodMobileMoney  PaymentMethod = "MOBILE_MONEY"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCard, MethodBankTransfer, MethodUSSD, MethodMobileMoney:
		return true
	}
	return false
}

// Resource statuses stored on the inventory tables.
const (
	TourUpcoming  = "UPCOMING"
	TourOngoing   = "ONGOING"
	TourCompleted = "COMPLETED"
	TourCancelled = "CANCELLED"

	RoomAvailable   = "AVAILABLE"
	RoomUnavailable = "UNAVAILABLE"

	FlightScheduled = "SCHEDULED"
	FlightDelayed   = "DELAYED"
	FlightBoarding  = "BOARDING"
	FlightDeparted  = "DEPARTED"
	FlightArrived   = "ARRIVED"
	FlightCancelled = "CANCELLED"
)

type ResourceKind string

const (
	KindTour   ResourceKind = "TOUR"
	KindRoom   ResourceKind = "ROOM"
	KindFlight ResourceKind = "FLIGHT"
)

// ParseResourceKind accepts "tour", "TOUR", "tours" and similar spellings.
func ParseResourceKind(s string) (ResourceKind, error) {
	switch strings.TrimSuffix(strings.ToUpper(strings.TrimSpace(s)), "S") {
	case "TOUR":
		return KindTour, nil
	case "ROOM":
		return KindRoom, nil
	case "FLIGHT":
		return KindFlight, nil
	}
	return "", apperrors.BadRequest("unknown resource type %q", s)
}

// BookingTarget is the single bookable resource a booking consumes.
type BookingTarget struct {
	Kind ResourceKind
	ID   int64
}

func TourTarget(id int64) BookingTarget   { return BookingTarget{Kind: KindTour, ID: id} }
func RoomTarget(id int64) BookingTarget   { return BookingTarget{Kind: KindRoom, ID: id} }
func FlightTarget(id int64) BookingTarget { return BookingTarget{Kind: KindFlight, ID: id} }

func (t BookingTarget) String() string {
	return string(t.Kind) + ":" + strconv.FormatInt(t.ID, 10)
}

func (t BookingTarget) IsZero() bool {
	return t.Kind == "" && t.ID == 0
}

// TargetFromRefs builds a target from the three nullable references.
// Exactly one of them must be set.
func TargetFromRefs(tourID, roomID, flightID *int64) (BookingTarget, error) {
	var targets []BookingTarget
	if tourID != nil {
		targets = append(targets, TourTarget(*tourID))
	}
	if roomID != nil {
		targets = append(targets, RoomTarget(*roomID))
	}
	if flightID != nil {
		targets = append(targets, FlightTarget(*flightID))
	}

	switch len(targets) {
	case 0:
		return BookingTarget{}, apperrors.Validation("Booking must reference a tour, room or flight",
			apperrors.FieldError{Field: "tourId", Message: "one of tourId, roomId, flightId is required"})
	case 1:
		if targets[0].ID <= 0 {
			return BookingTarget{}, apperrors.Validation("Invalid resource id",
				apperrors.FieldError{Field: fieldForKind(targets[0].Kind), Message: "must be a positive integer"})
		}
		return targets[0], nil
	default:
		return BookingTarget{}, apperrors.Validation("Booking must reference exactly one of tour, room or flight",
			apperrors.FieldError{Field: "tourId", Message: "only one of tourId, roomId, flightId may be set"})
	}
}

// Refs converts the target back to the nullable column representation.
func (t BookingTarget) Refs() (tourID, roomID, flightID *int64) {
	id := t.ID
	switch t.Kind {
	case KindTour:
		tourID = &id
	case KindRoom:
		roomID = &id
	case KindFlight:
		flightID = &id
	}
	return
}

func fieldForKind(k ResourceKind) string {
	switch k {
	case KindRoom:
		return "roomId"
	case KindFlight:
		return "flightId"
	default:
		return "tourId"
	}
}

// Availability is the ledger view of one resource.
type Availability struct {
	Type      ResourceKind `json:"type"`
	ID        int64        `json:"id"`
	Available int          `json:"available"`
	Capacity  int          `json:"capacity"`
	Status    string       `json:"status"`
	Bookable  bool         `json:"bookable"`
}

func (a Availability) String() string {
	return fmt.Sprintf("%s:%d %d/%d", a.Type, a.ID, a.Available, a.Capacity)
}
