package main

import (
	"fmt"
	"math/rand"
	"time"

	"tourbook/internal/middleware"
	"tourbook/internal/models"
)

// Catalog is the set of rows the generator inserts.
type Catalog struct {
	Users   []models.User
	Tours   []models.Tour
	Hotels  []HotelPlan
	Flights []models.Flight
}

type HotelPlan struct {
	Hotel models.Hotel
	Rooms []models.Room
}

type Options struct {
	Tours    int
	Hotels   int
	Flights  int
	Password string
	Seed     int64
	Now      time.Time
}

var (
	destinations = []string{"Zanzibar", "Cape Town", "Marrakech", "Nairobi", "Accra", "Lagos", "Kigali", "Victoria Falls"}
	tourThemes   = []string{"Safari", "City Walk", "Food Trail", "Coastal Escape", "Mountain Trek", "Heritage Tour"}
	roomTypes    = []string{"Standard", "Deluxe", "Suite", "Family"}
	airlines     = []struct{ name, code string }{{"Tour Air", "TB"}, {"Savanna Wings", "SW"}, {"Coastline", "CL"}}
	airports     = []string{"LOS", "ACC", "NBO", "JNB", "CPT", "KGL", "ZNZ", "RAK"}
)

// BuildCatalog produces a deterministic catalog for opts.Seed. Every counter
// starts at full availability.
func BuildCatalog(opts Options) Catalog {
	rng := rand.New(rand.NewSource(opts.Seed))
	hash := middleware.HashPassword(opts.Password)

	c := Catalog{
		Users: []models.User{
			{Name: "Admin", Email: "admin@tourbook.local", PasswordHash: hash, Role: models.RoleAdmin},
			{Name: "Agent", Email: "agent@tourbook.local", PasswordHash: hash, Role: models.RoleAgent},
			{Name: "Customer", Email: "customer@tourbook.local", PasswordHash: hash, Role: models.RoleCustomer},
		},
	}

	for i := 0; i < opts.Tours; i++ {
		dest := destinations[rng.Intn(len(destinations))]
		c.Tours = append(c.Tours, models.Tour{
			Title:       fmt.Sprintf("%s %s #%d", dest, tourThemes[rng.Intn(len(tourThemes))], i+1),
			Destination: dest,
			Price:       models.NewAmountFromMajor(int64(100 + rng.Intn(20)*50)),
			MaxGuests:   5 + rng.Intn(26),
			StartDate:   opts.Now.AddDate(0, 0, 7+rng.Intn(180)).Truncate(24 * time.Hour),
			Status:      models.TourUpcoming,
		})
	}

	for i := 0; i < opts.Hotels; i++ {
		city := destinations[rng.Intn(len(destinations))]
		plan := HotelPlan{Hotel: models.Hotel{Name: fmt.Sprintf("%s Lodge %d", city, i+1), City: city}}
		for j, roomType := range roomTypes {
			total := 1 + rng.Intn(10)
			plan.Rooms = append(plan.Rooms, models.Room{
				RoomType:       roomType,
				Price:          models.NewAmountFromMajor(int64(40 + j*40 + rng.Intn(40))),
				TotalRooms:     total,
				RoomsAvailable: total,
				Status:         models.RoomAvailable,
			})
		}
		c.Hotels = append(c.Hotels, plan)
	}

	for i := 0; i < opts.Flights; i++ {
		airline := airlines[rng.Intn(len(airlines))]
		origin := rng.Intn(len(airports))
		dest := (origin + 1 + rng.Intn(len(airports)-1)) % len(airports)
		capacity := 50 + rng.Intn(151)
		c.Flights = append(c.Flights, models.Flight{
			FlightNumber:   fmt.Sprintf("%s%03d", airline.code, 100+i),
			Airline:        airline.name,
			Origin:         airports[origin],
			Destination:    airports[dest],
			DepartureTime:  opts.Now.Add(time.Duration(24+rng.Intn(24*90)) * time.Hour).Truncate(time.Hour),
			Price:          models.NewAmountFromMajor(int64(80 + rng.Intn(400))),
			Capacity:       capacity,
			SeatsAvailable: capacity,
			Status:         models.FlightScheduled,
		})
	}

	return c
}
