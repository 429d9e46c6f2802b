package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"tourbook/internal/config"
	"tourbook/internal/database"
	"tourbook/internal/logger"
)

var (
	clearExisting = flag.Bool("clear", false, "Delete existing bookings, payments and catalog rows first")
	dryRun        = flag.Bool("dry-run", false, "Show what would be generated without making changes")
	tours         = flag.Int("tours", 20, "Number of tours to generate")
	hotels        = flag.Int("hotels", 10, "Number of hotels to generate (four room types each)")
	flights       = flag.Int("flights", 30, "Number of flights to generate")
	password      = flag.String("password", "tourbook", "Password for the demo admin, agent and customer accounts")
	seed          = flag.Int64("seed", time.Now().UnixNano(), "Random seed")
)

type CatalogGenerator struct {
	db *database.DB
}

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", "error", err)
	}
	logger.Init(cfg.LogLevel, cfg.LogFormat)

	catalog := BuildCatalog(Options{
		Tours:    *tours,
		Hotels:   *hotels,
		Flights:  *flights,
		Password: *password,
		Seed:     *seed,
		Now:      time.Now(),
	})

	if *dryRun {
		slog.Info("[DRY RUN] Would generate catalog",
			"users", len(catalog.Users),
			"tours", len(catalog.Tours),
			"hotels", len(catalog.Hotels),
			"flights", len(catalog.Flights))
		return
	}

	ctx := context.Background()
	db, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}
	defer db.Close()

	if err := db.RunMigrations(ctx); err != nil {
		logger.Fatal("Failed to run migrations", "error", err)
	}

	generator := &CatalogGenerator{db: db}
	if err := generator.Write(ctx, catalog, *clearExisting); err != nil {
		logger.Fatal("Failed to generate catalog", "error", err)
	}

	slog.Info("Catalog generation completed successfully!")
}

// Write inserts the catalog in a single transaction. Existing users with the
// same email are left untouched.
func (g *CatalogGenerator) Write(ctx context.Context, c Catalog, clear bool) error {
	tx, err := g.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if clear {
		if _, err := tx.ExecContext(ctx, `TRUNCATE payments, bookings, rooms, hotels, tours, flights RESTART IDENTITY`); err != nil {
			return fmt.Errorf("failed to clear catalog: %w", err)
		}
	}

	for _, u := range c.Users {
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO users (name, email, password_hash, role)
			VALUES (:name, :email, :password_hash, :role)
			ON CONFLICT (email) DO NOTHING`, u); err != nil {
			return fmt.Errorf("failed to insert user %s: %w", u.Email, err)
		}
	}

	for _, t := range c.Tours {
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO tours (title, destination, price_minor, max_guests, guests_booked, start_date, status)
			VALUES (:title, :destination, :price_minor, :max_guests, :guests_booked, :start_date, :status)`, t); err != nil {
			return fmt.Errorf("failed to insert tour %q: %w", t.Title, err)
		}
	}

	for _, h := range c.Hotels {
		if err := insertHotel(ctx, tx, h); err != nil {
			return err
		}
	}

	for _, f := range c.Flights {
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO flights (flight_number, airline, origin, destination, departure_time,
			                     price_minor, capacity, seats_available, status)
			VALUES (:flight_number, :airline, :origin, :destination, :departure_time,
			        :price_minor, :capacity, :seats_available, :status)`, f); err != nil {
			return fmt.Errorf("failed to insert flight %s: %w", f.FlightNumber, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	slog.Info("Generated catalog",
		"tours", len(c.Tours), "hotels", len(c.Hotels), "flights", len(c.Flights))
	return nil
}

func insertHotel(ctx context.Context, tx *sqlx.Tx, h HotelPlan) error {
	var hotelID int64
	if err := tx.QueryRowxContext(ctx,
		`INSERT INTO hotels (name, city) VALUES ($1, $2) RETURNING id`,
		h.Hotel.Name, h.Hotel.City).Scan(&hotelID); err != nil {
		return fmt.Errorf("failed to insert hotel %q: %w", h.Hotel.Name, err)
	}

	for _, r := range h.Rooms {
		r.HotelID = hotelID
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO rooms (hotel_id, room_type, price_minor, total_rooms, rooms_available, status)
			VALUES (:hotel_id, :room_type, :price_minor, :total_rooms, :rooms_available, :status)`, r); err != nil {
			return fmt.Errorf("failed to insert room %s for hotel %d: %w", r.RoomType, hotelID, err)
		}
	}
	return nil
}
