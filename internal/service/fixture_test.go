package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tourbook/internal/external"
	"tourbook/internal/models"
)

var (
	admin = models.Principal{ID: 1, Role: models.RoleAdmin}
	alice = models.Principal{ID: 2, Role: models.RoleCustomer}
	bob   = models.Principal{ID: 3, Role: models.RoleCustomer}
	agent = models.Principal{ID: 4, Role: models.RoleAgent}
)

const (
	soloTour    int64 = 10
	groupTour   int64 = 11
	openRoom    int64 = 20
	closedRoom  int64 = 21
	shortFlight int64 = 30
)

const webhookSecret = "sk_test_secret"

type fakeGateway struct {
	mu           sync.Mutex
	amounts      map[string]int64
	reportAmount *int64
	status       string
	verifyErr    error
	initErr      error
	initCalls    int
	verifyCalls  int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{amounts: map[string]int64{}}
}

func (g *fakeGateway) Initialize(_ context.Context, req external.InitializeRequest) (*external.InitializeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.initCalls++
	if g.initErr != nil {
		return nil, g.initErr
	}
	g.amounts[req.Reference] = req.Amount
	return &external.InitializeResult{
		AuthorizationURL: "https://checkout.test/" + req.Reference,
		AccessCode:       "code",
		Reference:        req.Reference,
	}, nil
}

func (g *fakeGateway) Verify(_ context.Context, reference string) (*external.Transaction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.verifyCalls++
	if g.verifyErr != nil {
		return nil, g.verifyErr
	}
	amount := g.amounts[reference]
	if g.reportAmount != nil {
		amount = *g.reportAmount
	}
	status := "success"
	if g.status != "" {
		status = g.status
	}
	return &external.Transaction{Reference: reference, Status: status, Amount: amount, Currency: "NGN"}, nil
}

func (g *fakeGateway) ValidSignature(body []byte, signature string) bool {
	return signature != "" && external.Sign(webhookSecret, body) == signature
}

type recordingPublisher struct {
	mu       sync.Mutex
	subjects []string
}

func (p *recordingPublisher) Publish(subject string, _ interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	return nil
}

func (p *recordingPublisher) Subjects() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.subjects...)
}

type memDeduper struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (d *memDeduper) Seen(_ context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.keys[key], nil
}

func (d *memDeduper) Remember(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.keys[key] = true
	return nil
}

type fixture struct {
	ctx      context.Context
	store    *memStore
	gateway  *fakeGateway
	events   *recordingPublisher
	deduper  *memDeduper
	bookings *BookingService
	payments *PaymentService
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	store := newMemStore()
	s := store.state
	s.users[1] = models.User{ID: 1, Name: "Ada Admin", Email: "admin@tourbook.test", Role: models.RoleAdmin}
	s.users[2] = models.User{ID: 2, Name: "Alice Traveller", Email: "alice@tourbook.test", Role: models.RoleCustomer}
	s.users[3] = models.User{ID: 3, Name: "Bob Backpacker", Email: "bob@tourbook.test", Role: models.RoleCustomer}
	s.users[4] = models.User{ID: 4, Name: "Agnes Agent", Email: "agent@tourbook.test", Role: models.RoleAgent}
	s.tours[soloTour] = models.Tour{ID: soloTour, Title: "Zanzibar Sunset", Destination: "Zanzibar",
		Price: models.NewAmountFromMajor(100), MaxGuests: 1, StartDate: now.Add(30 * 24 * time.Hour), Status: models.TourUpcoming}
	s.tours[groupTour] = models.Tour{ID: groupTour, Title: "Serengeti Safari", Destination: "Tanzania",
		Price: models.NewAmountFromMajor(250), MaxGuests: 3, StartDate: now.Add(60 * 24 * time.Hour), Status: models.TourUpcoming}
	s.rooms[openRoom] = models.Room{ID: openRoom, HotelID: 1, RoomType: "Deluxe", Price: models.NewAmountFromMajor(80),
		TotalRooms: 2, RoomsAvailable: 2, Status: models.RoomAvailable}
	s.rooms[closedRoom] = models.Room{ID: closedRoom, HotelID: 1, RoomType: "Suite", Price: models.NewAmountFromMajor(200),
		TotalRooms: 1, RoomsAvailable: 1, Status: models.RoomUnavailable}
	s.flights[shortFlight] = models.Flight{ID: shortFlight, FlightNumber: "TB101", Airline: "Tour Air", Origin: "LOS",
		Destination: "ACC", DepartureTime: now.Add(10 * 24 * time.Hour), Price: models.NewAmountFromMajor(150),
		Capacity: 2, SeatsAvailable: 2, Status: models.FlightScheduled}

	gateway := newFakeGateway()
	events := &recordingPublisher{}
	deduper := &memDeduper{keys: map[string]bool{}}

	bookings := NewBookingService(store, events, nil)
	bookings.now = func() time.Time { return now }
	payments := NewPaymentService(store, gateway, events, deduper, PaymentOptions{Currency: "NGN", CallbackURL: "https://tourbook.test/callback"})
	payments.now = func() time.Time { return now }

	return &fixture{
		ctx:      context.Background(),
		store:    store,
		gateway:  gateway,
		events:   events,
		deduper:  deduper,
		bookings: bookings,
		payments: payments,
		now:      now,
	}
}

func ptr[T any](v T) *T { return &v }

func (f *fixture) tour(id int64) models.Tour {
	var t models.Tour
	f.store.read(func(s *memState) { t = s.tours[id] })
	return t
}

func (f *fixture) room(id int64) models.Room {
	var r models.Room
	f.store.read(func(s *memState) { r = s.rooms[id] })
	return r
}

func (f *fixture) flight(id int64) models.Flight {
	var fl models.Flight
	f.store.read(func(s *memState) { fl = s.flights[id] })
	return fl
}

func (f *fixture) booking(id int64) models.Booking {
	var b models.Booking
	f.store.read(func(s *memState) { b = s.bookings[id] })
	return b
}

func (f *fixture) payment(id int64) models.Payment {
	var p models.Payment
	f.store.read(func(s *memState) { p = s.payments[id] })
	return p
}

func (f *fixture) bookTour(t *testing.T, who models.Principal, tourID int64) *models.BookingResponse {
	t.Helper()
	resp, err := f.bookings.Create(f.ctx, who, &models.CreateBookingRequest{TourID: ptr(tourID)})
	require.NoError(t, err)
	return resp
}

func (f *fixture) initiate(t *testing.T, who models.Principal, bookingID int64) *models.InitiatePaymentResponse {
	t.Helper()
	resp, err := f.payments.Initiate(f.ctx, who, &models.InitiatePaymentRequest{BookingID: bookingID, PaymentMethod: models.MethodCard})
	require.NoError(t, err)
	return resp
}

func webhookBody(reference string) []byte {
	return []byte(`{"event":"charge.success","data":{"reference":"` + reference + `","amount":10000,"status":"success"}}`)
}

// paid creates a tour booking for alice and settles it through the webhook.
func (f *fixture) paid(t *testing.T, tourID int64) (*models.BookingResponse, *models.InitiatePaymentResponse) {
	t.Helper()
	b := f.bookTour(t, alice, tourID)
	p := f.initiate(t, alice, b.ID)
	body := webhookBody(p.TransactionReference)
	res, err := f.payments.HandleWebhook(f.ctx, body, external.Sign(webhookSecret, body))
	require.NoError(t, err)
	require.True(t, res.Success)
	return b, p
}
