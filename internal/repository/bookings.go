package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"tourbook/internal/models"
)

type BookingRepositoryPG struct {
	q sqlx.ExtContext
}

var _ BookingRepository = (*BookingRepositoryPG)(nil)

func NewBookingRepository(q sqlx.ExtContext) *BookingRepositoryPG {
	return &BookingRepositoryPG{q: q}
}

const bookingColumns = `
	b.id, b.user_id, b.tour_id, b.room_id, b.flight_id, b.total_price_minor,
	b.status, b.booking_date, b.created_at, b.updated_at`

func (r *BookingRepositoryPG) Create(ctx context.Context, booking *models.Booking) error {
	row := models.NewBookingRow(booking)
	query := `
		INSERT INTO bookings (user_id, tour_id, room_id, flight_id, total_price_minor, status, booking_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`

	err := r.q.QueryRowxContext(ctx, query,
		row.UserID,
		row.TourID,
		row.RoomID,
		row.FlightID,
		row.TotalPrice,
		row.Status,
		row.BookingDate,
	).Scan(&booking.ID, &booking.CreatedAt, &booking.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", translateError(err, "booking"))
	}
	return nil
}

func (r *BookingRepositoryPG) GetByID(ctx context.Context, id int64) (*models.Booking, error) {
	return r.get(ctx, `SELECT`+bookingColumns+` FROM bookings b WHERE b.id = $1`, id)
}

// GetForUpdate locks the booking row until the surrounding transaction ends.
func (r *BookingRepositoryPG) GetForUpdate(ctx context.Context, id int64) (*models.Booking, error) {
	return r.get(ctx, `SELECT`+bookingColumns+` FROM bookings b WHERE b.id = $1 FOR UPDATE`, id)
}

func (r *BookingRepositoryPG) get(ctx context.Context, query string, id int64) (*models.Booking, error) {
	var row models.BookingRow
	if err := sqlx.GetContext(ctx, r.q, &row, query, id); err != nil {
		return nil, notFound(err, "Booking", id)
	}
	return row.ToBooking()
}

func (r *BookingRepositoryPG) Update(ctx context.Context, booking *models.Booking) error {
	row := models.NewBookingRow(booking)
	query := `
		UPDATE bookings
		SET user_id = $2, tour_id = $3, room_id = $4, flight_id = $5,
		    total_price_minor = $6, status = $7, booking_date = $8, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

	err := r.q.QueryRowxContext(ctx, query,
		row.ID,
		row.UserID,
		row.TourID,
		row.RoomID,
		row.FlightID,
		row.TotalPrice,
		row.Status,
		row.BookingDate,
	).Scan(&booking.UpdatedAt)
	if err != nil {
		return notFound(translateError(err, "booking"), "Booking", booking.ID)
	}
	return nil
}

func (r *BookingRepositoryPG) Delete(ctx context.Context, id int64) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM bookings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete booking: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound(sql.ErrNoRows, "Booking", id)
	}
	return nil
}

func (r *BookingRepositoryPG) ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]int64, error) {
	query := `
		SELECT b.id
		FROM bookings b
		LEFT JOIN payments p ON p.booking_id = b.id
		WHERE b.status = 'PENDING' AND b.created_at < $1
		  AND (p.id IS NULL OR p.status <> 'COMPLETED')
		ORDER BY b.created_at
		LIMIT $2`

	var ids []int64
	if err := sqlx.SelectContext(ctx, r.q, &ids, query, createdBefore, limit); err != nil {
		return nil, fmt.Errorf("failed to list stale bookings: %w", err)
	}
	return ids, nil
}

const detailsFrom = `
	FROM bookings b
	JOIN users u ON u.id = b.user_id
	LEFT JOIN tours t ON t.id = b.tour_id
	LEFT JOIN rooms r ON r.id = b.room_id
	LEFT JOIN hotels h ON h.id = r.hotel_id
	LEFT JOIN flights f ON f.id = b.flight_id`

const detailsColumns = bookingColumns + `,
	u.name AS user_name, u.email AS user_email,
	t.title AS tour_title, t.destination AS tour_destination, t.start_date AS tour_start_date, t.status AS tour_status,
	r.room_type AS room_type, r.hotel_id AS room_hotel_id, h.name AS hotel_name, r.status AS room_status,
	f.flight_number AS flight_number, f.airline AS flight_airline, f.origin AS flight_origin,
	f.destination AS flight_destination, f.departure_time AS flight_departure_time, f.status AS flight_status`

type detailsRow struct {
	models.BookingRow
	UserName            string         `db:"user_name"`
	UserEmail           string         `db:"user_email"`
	TourTitle           sql.NullString `db:"tour_title"`
	TourDestination     sql.NullString `db:"tour_destination"`
	TourStartDate       sql.NullTime   `db:"tour_start_date"`
	TourStatus          sql.NullString `db:"tour_status"`
	RoomType            sql.NullString `db:"room_type"`
	RoomHotelID         sql.NullInt64  `db:"room_hotel_id"`
	HotelName           sql.NullString `db:"hotel_name"`
	RoomStatus          sql.NullString `db:"room_status"`
	FlightNumber        sql.NullString `db:"flight_number"`
	FlightAirline       sql.NullString `db:"flight_airline"`
	FlightOrigin        sql.NullString `db:"flight_origin"`
	FlightDestination   sql.NullString `db:"flight_destination"`
	FlightDepartureTime sql.NullTime   `db:"flight_departure_time"`
	FlightStatus        sql.NullString `db:"flight_status"`
}

func (d detailsRow) toDetails() (*models.BookingDetails, error) {
	booking, err := d.ToBooking()
	if err != nil {
		return nil, err
	}
	details := &models.BookingDetails{
		Booking: *booking,
		User:    &models.UserSummary{ID: d.UserID, Name: d.UserName, Email: d.UserEmail},
	}

	switch booking.Target.Kind {
	case models.KindTour:
		details.Tour = &models.TourSummary{
			ID:          booking.Target.ID,
			Title:       d.TourTitle.String,
			Destination: d.TourDestination.String,
			StartDate:   d.TourStartDate.Time,
			Status:      d.TourStatus.String,
		}
	case models.KindRoom:
		details.Room = &models.RoomSummary{
			ID:        booking.Target.ID,
			RoomType:  d.RoomType.String,
			HotelID:   d.RoomHotelID.Int64,
			HotelName: d.HotelName.String,
			Status:    d.RoomStatus.String,
		}
	case models.KindFlight:
		details.Flight = &models.FlightSummary{
			ID:            booking.Target.ID,
			FlightNumber:  d.FlightNumber.String,
			Airline:       d.FlightAirline.String,
			Origin:        d.FlightOrigin.String,
			Destination:   d.FlightDestination.String,
			DepartureTime: d.FlightDepartureTime.Time,
			Status:        d.FlightStatus.String,
		}
	}
	return details, nil
}

func (r *BookingRepositoryPG) GetDetails(ctx context.Context, id int64) (*models.BookingDetails, error) {
	var row detailsRow
	query := `SELECT` + detailsColumns + detailsFrom + ` WHERE b.id = $1`
	if err := sqlx.GetContext(ctx, r.q, &row, query, id); err != nil {
		return nil, notFound(err, "Booking", id)
	}

	details, err := row.toDetails()
	if err != nil {
		return nil, err
	}

	payments, err := r.paymentsFor(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	details.Payment = payments[id]
	return details, nil
}

// List returns one page of bookings together with the total match count.
func (r *BookingRepositoryPG) List(ctx context.Context, filter models.BookingListFilter) ([]models.BookingDetails, int, error) {
	var conditions []string
	var args []any
	argIndex := 1

	if filter.UserID != nil {
		conditions = append(conditions, fmt.Sprintf("b.user_id = $%d", argIndex))
		args = append(args, *filter.UserID)
		argIndex++
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("b.status = $%d", argIndex))
		args = append(args, *filter.Status)
		argIndex++
	}
	if filter.Type != nil {
		switch *filter.Type {
		case models.KindTour:
			conditions = append(conditions, "b.tour_id IS NOT NULL")
		case models.KindRoom:
			conditions = append(conditions, "b.room_id IS NOT NULL")
		case models.KindFlight:
			conditions = append(conditions, "b.flight_id IS NOT NULL")
		}
	}
	if filter.IDs != nil {
		conditions = append(conditions, fmt.Sprintf("b.id = ANY($%d)", argIndex))
		args = append(args, pq.Array(filter.IDs))
		argIndex++
	} else if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf(`(
			t.title ILIKE $%[1]d OR t.destination ILIKE $%[1]d OR h.name ILIKE $%[1]d OR
			r.room_type ILIKE $%[1]d OR f.flight_number ILIKE $%[1]d OR f.airline ILIKE $%[1]d OR
			f.origin ILIKE $%[1]d OR f.destination ILIKE $%[1]d OR
			u.name ILIKE $%[1]d OR u.email ILIKE $%[1]d)`, argIndex))
		args = append(args, "%"+escapeLike(filter.Search)+"%")
		argIndex++
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := sqlx.GetContext(ctx, r.q, &total, `SELECT COUNT(*)`+detailsFrom+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count bookings: %w", err)
	}
	if total == 0 {
		return []models.BookingDetails{}, 0, nil
	}

	query := `SELECT` + detailsColumns + detailsFrom + where +
		fmt.Sprintf(" ORDER BY b.created_at DESC, b.id DESC LIMIT $%d OFFSET $%d", argIndex, argIndex+1)
	args = append(args, filter.Limit, filter.Offset())

	var rows []detailsRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list bookings: %w", err)
	}

	ids := make([]int64, 0, len(rows))
	result := make([]models.BookingDetails, 0, len(rows))
	for _, row := range rows {
		details, err := row.toDetails()
		if err != nil {
			return nil, 0, err
		}
		ids = append(ids, details.ID)
		result = append(result, *details)
	}

	payments, err := r.paymentsFor(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range result {
		result[i].Payment = payments[result[i].ID]
	}

	return result, total, nil
}

func (r *BookingRepositoryPG) paymentsFor(ctx context.Context, bookingIDs []int64) (map[int64]*models.Payment, error) {
	var payments []models.Payment
	query := `SELECT` + paymentColumns + ` FROM payments WHERE booking_id = ANY($1)`
	if err := sqlx.SelectContext(ctx, r.q, &payments, query, pq.Array(bookingIDs)); err != nil {
		return nil, fmt.Errorf("failed to load payments: %w", err)
	}

	byBooking := make(map[int64]*models.Payment, len(payments))
	for i := range payments {
		byBooking[payments[i].BookingID] = &payments[i]
	}
	return byBooking, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
