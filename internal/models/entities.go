package models

import (
	"time"
)

// User represents a user in the system
type User struct {
	ID           int64     `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Role         Role      `json:"role" db:"role"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}

type Tour struct {
	ID           int64     `json:"id" db:"id"`
	Title        string    `json:"title" db:"title"`
	Destination  string    `json:"destination" db:"destination"`
	Price        Amount    `json:"price" db:"price_minor"`
	MaxGuests    int       `json:"maxGuests" db:"max_guests"`
	GuestsBooked int       `json:"guestsBooked" db:"guests_booked"`
	StartDate    time.Time `json:"startDate" db:"start_date"`
	Status       string    `json:"status" db:"status"`
}

type Hotel struct {
	ID   int64  `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
	City string `json:"city" db:"city"`
}

type Room struct {
	ID             int64  `json:"id" db:"id"`
	HotelID        int64  `json:"hotelId" db:"hotel_id"`
	RoomType       string `json:"roomType" db:"room_type"`
	Price          Amount `json:"price" db:"price_minor"`
	TotalRooms     int    `json:"totalRooms" db:"total_rooms"`
	RoomsAvailable int    `json:"roomsAvailable" db:"rooms_available"`
	Status         string `json:"status" db:"status"`
}

type Flight struct {
	ID             int64     `json:"id" db:"id"`
	FlightNumber   string    `json:"flightNumber" db:"flight_number"`
	Airline        string    `json:"airline" db:"airline"`
	Origin         string    `json:"origin" db:"origin"`
	Destination    string    `json:"destination" db:"destination"`
	DepartureTime  time.Time `json:"departureTime" db:"departure_time"`
	Price          Amount    `json:"price" db:"price_minor"`
	Capacity       int       `json:"capacity" db:"capacity"`
	SeatsAvailable int       `json:"seatsAvailable" db:"seats_available"`
	Status         string    `json:"status" db:"status"`
}

// Booking is the domain booking; Target replaces the three nullable columns.
type Booking struct {
	ID          int64
	UserID      int64
	Target      BookingTarget
	TotalPrice  Amount
	Status      BookingStatus
	BookingDate time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// BookingRow is the persistence shape of a booking.
type BookingRow struct {
	ID          int64         `db:"id"`
	UserID      int64         `db:"user_id"`
	TourID      *int64        `db:"tour_id"`
	RoomID      *int64        `db:"room_id"`
	FlightID    *int64        `db:"flight_id"`
	TotalPrice  Amount        `db:"total_price_minor"`
	Status      BookingStatus `db:"status"`
	BookingDate time.Time     `db:"booking_date"`
	CreatedAt   time.Time     `db:"created_at"`
	UpdatedAt   time.Time     `db:"updated_at"`
}

func (r BookingRow) ToBooking() (*Booking, error) {
	target, err := TargetFromRefs(r.TourID, r.RoomID, r.FlightID)
	if err != nil {
		return nil, err
	}
	return &Booking{
		ID:          r.ID,
		UserID:      r.UserID,
		Target:      target,
		TotalPrice:  r.TotalPrice,
		Status:      r.Status,
		BookingDate: r.BookingDate,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}, nil
}

func NewBookingRow(b *Booking) BookingRow {
	tourID, roomID, flightID := b.Target.Refs()
	return BookingRow{
		ID:          b.ID,
		UserID:      b.UserID,
		TourID:      tourID,
		RoomID:      roomID,
		FlightID:    flightID,
		TotalPrice:  b.TotalPrice,
		Status:      b.Status,
		BookingDate: b.BookingDate,
		CreatedAt:   b.CreatedAt,
		UpdatedAt:   b.UpdatedAt,
	}
}

type Payment struct {
	ID                   int64         `json:"id" db:"id"`
	BookingID            int64         `json:"bookingId" db:"booking_id"`
	UserID               int64         `json:"userId" db:"user_id"`
	Amount               Amount        `json:"amount" db:"amount_minor"`
	Currency             string        `json:"currency" db:"currency"`
	PaymentMethod        PaymentMethod `json:"paymentMethod" db:"payment_method"`
	Status               PaymentStatus `json:"status" db:"status"`
	TransactionReference string        `json:"transactionReference" db:"transaction_reference"`
	AuthorizationURL     string        `json:"authorizationUrl,omitempty" db:"authorization_url"`
	PaymentDate          *time.Time    `json:"paymentDate" db:"payment_date"`
	RefundReason         *string       `json:"refundReason" db:"refund_reason"`
	CreatedAt            time.Time     `json:"createdAt" db:"created_at"`
	UpdatedAt            time.Time     `json:"updatedAt" db:"updated_at"`
}

// InventorySnapshot is the raw ledger state of a resource row.
type InventorySnapshot struct {
	Target   BookingTarget
	Capacity int
	// Available is the number of units that can still be reserved.
	Available int
	Status    string
	Price     Amount
	StartsAt  *time.Time
}

// Bookable reports whether the resource status accepts new reservations.
func (s InventorySnapshot) Bookable() bool {
	switch s.Target.Kind {
	case KindTour:
		return s.Status != TourCancelled && s.Status != TourCompleted
	case KindRoom:
		return s.Status == RoomAvailable
	case KindFlight:
		return s.Status != FlightDeparted && s.Status != FlightArrived && s.Status != FlightCancelled
	}
	return false
}

func (s InventorySnapshot) Availability() Availability {
	return Availability{
		Type:      s.Target.Kind,
		ID:        s.Target.ID,
		Available: s.Available,
		Capacity:  s.Capacity,
		Status:    s.Status,
		Bookable:  s.Bookable(),
	}
}
