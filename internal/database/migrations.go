package database

import (
	"context"
	"fmt"
	"log/slog"
)

func (db *DB) RunMigrations(ctx context.Context) error {
	slog.Info("Running database migrations...")

	migrations := []string{
		createUsersTable,
		createToursTable,
		createHotelsTable,
		createRoomsTable,
		createFlightsTable,
		createBookingsTable,
		createPaymentsTable,
		createBookingsIndexes,
	}

	for i, migration := range migrations {
		slog.Info("Running migration", "step", i+1)
		if _, err := db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	slog.Info("All migrations completed successfully")
	return nil
}

const createUsersTable = `
CREATE TABLE IF NOT EXISTS users (
    id BIGSERIAL PRIMARY KEY,
    name VARCHAR(200) NOT NULL,
    email VARCHAR(255) UNIQUE NOT NULL,
    password_hash VARCHAR(64) NOT NULL,
    role VARCHAR(20) NOT NULL DEFAULT 'CUSTOMER' CHECK (role IN ('ADMIN','AGENT','CUSTOMER')),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

// Counters carry the ledger invariant as CHECK constraints.
const createToursTable = `
CREATE TABLE IF NOT EXISTS tours (
    id BIGSERIAL PRIMARY KEY,
    title VARCHAR(255) NOT NULL,
    destination VARCHAR(255) NOT NULL,
    price_minor BIGINT NOT NULL CHECK (price_minor >= 0),
    max_guests INT NOT NULL CHECK (max_guests >= 0),
    guests_booked INT NOT NULL DEFAULT 0,
    start_date TIMESTAMPTZ NOT NULL,
    status VARCHAR(20) NOT NULL DEFAULT 'UPCOMING'
        CHECK (status IN ('UPCOMING','ONGOING','COMPLETED','CANCELLED')),
    CHECK (guests_booked >= 0 AND guests_booked <= max_guests)
);`

const createHotelsTable = `
CREATE TABLE IF NOT EXISTS hotels (
    id BIGSERIAL PRIMARY KEY,
    name VARCHAR(255) NOT NULL,
    city VARCHAR(255) NOT NULL
);`

const createRoomsTable = `
CREATE TABLE IF NOT EXISTS rooms (
    id BIGSERIAL PRIMARY KEY,
    hotel_id BIGINT NOT NULL REFERENCES hotels(id),
    room_type VARCHAR(100) NOT NULL,
    price_minor BIGINT NOT NULL CHECK (price_minor >= 0),
    total_rooms INT NOT NULL CHECK (total_rooms >= 0),
    rooms_available INT NOT NULL,
    status VARCHAR(20) NOT NULL DEFAULT 'AVAILABLE' CHECK (status IN ('AVAILABLE','UNAVAILABLE')),
    CHECK (rooms_available >= 0 AND rooms_available <= total_rooms)
);`

const createFlightsTable = `
CREATE TABLE IF NOT EXISTS flights (
    id BIGSERIAL PRIMARY KEY,
    flight_number VARCHAR(20) NOT NULL,
    airline VARCHAR(100) NOT NULL,
    origin VARCHAR(100) NOT NULL,
    destination VARCHAR(100) NOT NULL,
    departure_time TIMESTAMPTZ NOT NULL,
    price_minor BIGINT NOT NULL CHECK (price_minor >= 0),
    capacity INT NOT NULL CHECK (capacity >= 0),
    seats_available INT NOT NULL,
    status VARCHAR(20) NOT NULL DEFAULT 'SCHEDULED'
        CHECK (status IN ('SCHEDULED','DELAYED','BOARDING','DEPARTED','ARRIVED','CANCELLED')),
    CHECK (seats_available >= 0 AND seats_available <= capacity)
);`

const createBookingsTable = `
CREATE TABLE IF NOT EXISTS bookings (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL REFERENCES users(id),
    tour_id BIGINT REFERENCES tours(id),
    room_id BIGINT REFERENCES rooms(id),
    flight_id BIGINT REFERENCES flights(id),
    total_price_minor BIGINT NOT NULL CHECK (total_price_minor >= 0),
    status VARCHAR(20) NOT NULL DEFAULT 'PENDING'
        CHECK (status IN ('PENDING','CONFIRMED','CANCELLED','COMPLETED')),
    booking_date TIMESTAMPTZ NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CHECK (num_nonnulls(tour_id, room_id, flight_id) = 1)
);`

const createPaymentsTable = `
CREATE TABLE IF NOT EXISTS payments (
    id BIGSERIAL PRIMARY KEY,
    booking_id BIGINT UNIQUE NOT NULL REFERENCES bookings(id),
    user_id BIGINT NOT NULL REFERENCES users(id),
    amount_minor BIGINT NOT NULL CHECK (amount_minor >= 0),
    currency VARCHAR(3) NOT NULL,
    payment_method VARCHAR(20) NOT NULL
        CHECK (payment_method IN ('CARD','BANK_TRANSFER','USSD','MOBILE_MONEY')),
    status VARCHAR(20) NOT NULL DEFAULT 'PENDING'
        CHECK (status IN ('PENDING','COMPLETED','FAILED','REFUNDED')),
    transaction_reference VARCHAR(100) UNIQUE NOT NULL,
    authorization_url TEXT NOT NULL DEFAULT '',
    payment_date TIMESTAMPTZ,
    refund_reason TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

const createBookingsIndexes = `
CREATE INDEX IF NOT EXISTS idx_bookings_user_id ON bookings(user_id);
CREATE INDEX IF NOT EXISTS idx_bookings_status_created ON bookings(status, created_at);
CREATE INDEX IF NOT EXISTS idx_bookings_tour_id ON bookings(tour_id) WHERE tour_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_bookings_room_id ON bookings(room_id) WHERE room_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_bookings_flight_id ON bookings(flight_id) WHERE flight_id IS NOT NULL;`
