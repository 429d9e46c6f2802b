package models

import "time"

// CreateBookingRequest - POST /api/bookings
type CreateBookingRequest struct {
	UserID      int64      `json:"userId"`
	TourID      *int64     `json:"tourId"`
	RoomID      *int64     `json:"roomId"`
	FlightID    *int64     `json:"flightId"`
	TotalPrice  *Amount    `json:"totalPrice"`
	BookingDate *time.Time `json:"bookingDate"`
}

// UpdateBookingRequest - PUT /api/bookings/:id. Absent fields stay unchanged.
type UpdateBookingRequest struct {
	UserID      *int64         `json:"userId"`
	TourID      *int64         `json:"tourId"`
	RoomID      *int64         `json:"roomId"`
	FlightID    *int64         `json:"flightId"`
	TotalPrice  *Amount        `json:"totalPrice"`
	Status      *BookingStatus `json:"status"`
	BookingDate *time.Time     `json:"bookingDate"`
}

// HasTargetChange reports whether any resource reference was supplied.
func (r UpdateBookingRequest) HasTargetChange() bool {
	return r.TourID != nil || r.RoomID != nil || r.FlightID != nil
}

type BookingListFilter struct {
	Page   int
	Limit  int
	UserID *int64
	Status *BookingStatus
	Type   *ResourceKind
	Search string
	// IDs restricts the result to bookings found by the search index.
	IDs []int64
}

func (f BookingListFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}

type TourSummary struct {
	ID          int64     `json:"id" db:"id"`
	Title       string    `json:"title" db:"title"`
	Destination string    `json:"destination" db:"destination"`
	StartDate   time.Time `json:"startDate" db:"start_date"`
	Status      string    `json:"status" db:"status"`
}

type RoomSummary struct {
	ID        int64  `json:"id" db:"id"`
	RoomType  string `json:"roomType" db:"room_type"`
	HotelID   int64  `json:"hotelId" db:"hotel_id"`
	HotelName string `json:"hotelName" db:"hotel_name"`
	Status    string `json:"status" db:"status"`
}

type FlightSummary struct {
	ID            int64     `json:"id" db:"id"`
	FlightNumber  string    `json:"flightNumber" db:"flight_number"`
	Airline       string    `json:"airline" db:"airline"`
	Origin        string    `json:"origin" db:"origin"`
	Destination   string    `json:"destination" db:"destination"`
	DepartureTime time.Time `json:"departureTime" db:"departure_time"`
	Status        string    `json:"status" db:"status"`
}

type UserSummary struct {
	ID    int64  `json:"id" db:"id"`
	Name  string `json:"name" db:"name"`
	Email string `json:"email" db:"email"`
}

// BookingDetails is a booking joined with its resource, user and payment.
type BookingDetails struct {
	Booking
	User    *UserSummary
	Tour    *TourSummary
	Room    *RoomSummary
	Flight  *FlightSummary
	Payment *Payment
}

// BookingResponse is the discriminated booking shape: Type names the single
// populated resource, the other two stay null.
type BookingResponse struct {
	ID          int64          `json:"id"`
	UserID      int64          `json:"userId"`
	Type        ResourceKind   `json:"type"`
	TourID      *int64         `json:"tourId"`
	RoomID      *int64         `json:"roomId"`
	FlightID    *int64         `json:"flightId"`
	Tour        *TourSummary   `json:"tour"`
	Room        *RoomSummary   `json:"room"`
	Flight      *FlightSummary `json:"flight"`
	User        *UserSummary   `json:"user,omitempty"`
	TotalPrice  Amount         `json:"totalPrice"`
	Status      BookingStatus  `json:"status"`
	BookingDate time.Time      `json:"bookingDate"`
	Payment     *Payment       `json:"payment"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

func NewBookingResponse(d *BookingDetails) BookingResponse {
	tourID, roomID, flightID := d.Target.Refs()
	resp := BookingResponse{
		ID:          d.ID,
		UserID:      d.UserID,
		Type:        d.Target.Kind,
		TourID:      tourID,
		RoomID:      roomID,
		FlightID:    flightID,
		User:        d.User,
		TotalPrice:  d.TotalPrice,
		Status:      d.Status,
		BookingDate: d.BookingDate,
		Payment:     d.Payment,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
	switch d.Target.Kind {
	case KindTour:
		resp.Tour = d.Tour
	case KindRoom:
		resp.Room = d.Room
	case KindFlight:
		resp.Flight = d.Flight
	}
	return resp
}

type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

type ListBookingsResponse struct {
	Bookings   []BookingResponse `json:"bookings"`
	Pagination Pagination        `json:"pagination"`
}

// DeleteBookingResponse lists the resource types whose availability was restored.
type DeleteBookingResponse struct {
	ID       int64          `json:"id"`
	Restored []ResourceKind `json:"restored"`
}

// InitiatePaymentRequest - POST /api/payments
type InitiatePaymentRequest struct {
	BookingID     int64         `json:"bookingId" binding:"required,gt=0"`
	PaymentMethod PaymentMethod `json:"paymentMethod" binding:"required"`
}

type InitiatePaymentResponse struct {
	AuthorizationURL     string `json:"authorization_url"`
	PaymentID            int64  `json:"paymentId"`
	TransactionReference string `json:"transactionReference"`
}

type UpdatePaymentStatusRequest struct {
	Status PaymentStatus `json:"status" binding:"required"`
}

type RefundPaymentRequest struct {
	Reason string `json:"reason" binding:"required,min=3,max=500"`
}

// VerificationResult is returned by callback and webhook verification.
type VerificationResult struct {
	Success   bool          `json:"success"`
	Message   string        `json:"message"`
	Reference string        `json:"reference"`
	PaymentID int64         `json:"paymentId"`
	BookingID int64         `json:"bookingId"`
	Status    PaymentStatus `json:"status"`
}

// ResizeCapacityRequest - PATCH /api/{tours,rooms,flights}/:id/capacity.
// Capacity is a pointer so that zero is accepted and absence is not.
type ResizeCapacityRequest struct {
	Capacity *int `json:"capacity" binding:"required,gte=0"`
}
