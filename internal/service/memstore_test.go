package service

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"

	apperrors "tourbook/internal/errors"
	"tourbook/internal/models"
	"tourbook/internal/repository"
)

// memState is a copy-on-transaction snapshot of every table.
type memState struct {
	tours    map[int64]models.Tour
	rooms    map[int64]models.Room
	flights  map[int64]models.Flight
	users    map[int64]models.User
	bookings map[int64]models.Booking
	payments map[int64]models.Payment
	nextID   int64
}

func newMemState() *memState {
	return &memState{
		tours:    map[int64]models.Tour{},
		rooms:    map[int64]models.Room{},
		flights:  map[int64]models.Flight{},
		users:    map[int64]models.User{},
		bookings: map[int64]models.Booking{},
		payments: map[int64]models.Payment{},
		nextID:   1000,
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *memState) clone() *memState {
	return &memState{
		tours:    cloneMap(s.tours),
		rooms:    cloneMap(s.rooms),
		flights:  cloneMap(s.flights),
		users:    cloneMap(s.users),
		bookings: cloneMap(s.bookings),
		payments: cloneMap(s.payments),
		nextID:   s.nextID,
	}
}

// memStore serializes transactions; a failed transaction discards its copy.
type memStore struct {
	mu    sync.Mutex
	state *memState
	// failCommit makes the next WithTx fail after fn succeeded.
	failCommit bool
}

var _ repository.Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{state: newMemState()}
}

func (m *memStore) Repos() repository.Repositories {
	return memRepos(&memAccess{store: m})
}

func (m *memStore) WithTx(ctx context.Context, fn func(repository.Repositories) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.state.clone()
	if err := fn(memRepos(&memAccess{tx: work})); err != nil {
		return err
	}
	if m.failCommit {
		m.failCommit = false
		return sql.ErrConnDone
	}
	m.state = work
	return nil
}

func (m *memStore) read(fn func(s *memState)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.state)
}

type memAccess struct {
	store *memStore
	tx    *memState
}

func (a *memAccess) with(fn func(s *memState) error) error {
	if a.tx != nil {
		return fn(a.tx)
	}
	a.store.mu.Lock()
	defer a.store.mu.Unlock()
	return fn(a.store.state)
}

func memRepos(a *memAccess) repository.Repositories {
	return repository.Repositories{
		Ledger:   &memLedger{a},
		Bookings: &memBookings{a},
		Payments: &memPayments{a},
		Users:    &memUsers{a},
	}
}

type memLedger struct{ a *memAccess }

func (l *memLedger) Snapshot(_ context.Context, target models.BookingTarget) (*models.InventorySnapshot, error) {
	var snap *models.InventorySnapshot
	err := l.a.with(func(s *memState) error {
		switch target.Kind {
		case models.KindTour:
			t, ok := s.tours[target.ID]
			if !ok {
				return apperrors.NotFound("Tour", target.ID)
			}
			start := t.StartDate
			snap = &models.InventorySnapshot{Target: target, Capacity: t.MaxGuests, Available: t.MaxGuests - t.GuestsBooked, Status: t.Status, Price: t.Price, StartsAt: &start}
		case models.KindRoom:
			r, ok := s.rooms[target.ID]
			if !ok {
				return apperrors.NotFound("Room", target.ID)
			}
			snap = &models.InventorySnapshot{Target: target, Capacity: r.TotalRooms, Available: r.RoomsAvailable, Status: r.Status, Price: r.Price}
		case models.KindFlight:
			f, ok := s.flights[target.ID]
			if !ok {
				return apperrors.NotFound("Flight", target.ID)
			}
			dep := f.DepartureTime
			snap = &models.InventorySnapshot{Target: target, Capacity: f.Capacity, Available: f.SeatsAvailable, Status: f.Status, Price: f.Price, StartsAt: &dep}
		}
		return nil
	})
	return snap, err
}

func (l *memLedger) Reserve(_ context.Context, target models.BookingTarget) (bool, error) {
	var ok bool
	err := l.a.with(func(s *memState) error {
		switch target.Kind {
		case models.KindTour:
			t, found := s.tours[target.ID]
			if found && t.GuestsBooked < t.MaxGuests && t.Status != models.TourCancelled && t.Status != models.TourCompleted {
				t.GuestsBooked++
				s.tours[target.ID] = t
				ok = true
			}
		case models.KindRoom:
			r, found := s.rooms[target.ID]
			if found && r.RoomsAvailable > 0 && r.Status == models.RoomAvailable {
				r.RoomsAvailable--
				s.rooms[target.ID] = r
				ok = true
			}
		case models.KindFlight:
			f, found := s.flights[target.ID]
			if found && f.SeatsAvailable > 0 && f.Status != models.FlightDeparted &&
				f.Status != models.FlightArrived && f.Status != models.FlightCancelled {
				f.SeatsAvailable--
				s.flights[target.ID] = f
				ok = true
			}
		}
		return nil
	})
	return ok, err
}

func (l *memLedger) Release(_ context.Context, target models.BookingTarget) (bool, error) {
	var ok bool
	err := l.a.with(func(s *memState) error {
		switch target.Kind {
		case models.KindTour:
			if t, found := s.tours[target.ID]; found && t.GuestsBooked > 0 {
				t.GuestsBooked--
				s.tours[target.ID] = t
				ok = true
			}
		case models.KindRoom:
			if r, found := s.rooms[target.ID]; found && r.RoomsAvailable < r.TotalRooms {
				r.RoomsAvailable++
				s.rooms[target.ID] = r
				ok = true
			}
		case models.KindFlight:
			if f, found := s.flights[target.ID]; found && f.SeatsAvailable < f.Capacity {
				f.SeatsAvailable++
				s.flights[target.ID] = f
				ok = true
			}
		}
		return nil
	})
	return ok, err
}

func (l *memLedger) Resize(_ context.Context, target models.BookingTarget, capacity int) (bool, error) {
	var ok bool
	err := l.a.with(func(s *memState) error {
		switch target.Kind {
		case models.KindTour:
			if t, found := s.tours[target.ID]; found && t.GuestsBooked <= capacity {
				t.MaxGuests = capacity
				s.tours[target.ID] = t
				ok = true
			}
		case models.KindRoom:
			if r, found := s.rooms[target.ID]; found && r.TotalRooms-r.RoomsAvailable <= capacity {
				r.RoomsAvailable += capacity - r.TotalRooms
				r.TotalRooms = capacity
				s.rooms[target.ID] = r
				ok = true
			}
		case models.KindFlight:
			if f, found := s.flights[target.ID]; found && f.Capacity-f.SeatsAvailable <= capacity {
				f.SeatsAvailable += capacity - f.Capacity
				f.Capacity = capacity
				s.flights[target.ID] = f
				ok = true
			}
		}
		return nil
	})
	return ok, err
}

type memBookings struct{ a *memAccess }

func (r *memBookings) Create(_ context.Context, b *models.Booking) error {
	return r.a.with(func(s *memState) error {
		s.nextID++
		b.ID = s.nextID
		b.CreatedAt = time.Now()
		b.UpdatedAt = b.CreatedAt
		s.bookings[b.ID] = *b
		return nil
	})
}

func (r *memBookings) GetByID(_ context.Context, id int64) (*models.Booking, error) {
	var out *models.Booking
	err := r.a.with(func(s *memState) error {
		b, ok := s.bookings[id]
		if !ok {
			return apperrors.NotFound("Booking", id)
		}
		out = &b
		return nil
	})
	return out, err
}

func (r *memBookings) GetForUpdate(ctx context.Context, id int64) (*models.Booking, error) {
	return r.GetByID(ctx, id)
}

func (r *memBookings) details(s *memState, b models.Booking) models.BookingDetails {
	d := models.BookingDetails{Booking: b}
	if u, ok := s.users[b.UserID]; ok {
		d.User = &models.UserSummary{ID: u.ID, Name: u.Name, Email: u.Email}
	}
	switch b.Target.Kind {
	case models.KindTour:
		t := s.tours[b.Target.ID]
		d.Tour = &models.TourSummary{ID: t.ID, Title: t.Title, Destination: t.Destination, StartDate: t.StartDate, Status: t.Status}
	case models.KindRoom:
		rm := s.rooms[b.Target.ID]
		d.Room = &models.RoomSummary{ID: rm.ID, RoomType: rm.RoomType, HotelID: rm.HotelID, Status: rm.Status}
	case models.KindFlight:
		f := s.flights[b.Target.ID]
		d.Flight = &models.FlightSummary{ID: f.ID, FlightNumber: f.FlightNumber, Airline: f.Airline, Origin: f.Origin, Destination: f.Destination, DepartureTime: f.DepartureTime, Status: f.Status}
	}
	for _, p := range s.payments {
		if p.BookingID == b.ID {
			p := p
			d.Payment = &p
		}
	}
	return d
}

func (r *memBookings) GetDetails(_ context.Context, id int64) (*models.BookingDetails, error) {
	var out *models.BookingDetails
	err := r.a.with(func(s *memState) error {
		b, ok := s.bookings[id]
		if !ok {
			return apperrors.NotFound("Booking", id)
		}
		d := r.details(s, b)
		out = &d
		return nil
	})
	return out, err
}

func (r *memBookings) List(_ context.Context, f models.BookingListFilter) ([]models.BookingDetails, int, error) {
	var out []models.BookingDetails
	total := 0
	err := r.a.with(func(s *memState) error {
		var ids []int64
		for id := range s.bookings {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })

		allowed := map[int64]bool{}
		for _, id := range f.IDs {
			allowed[id] = true
		}

		var matched []models.BookingDetails
		for _, id := range ids {
			b := s.bookings[id]
			if f.UserID != nil && b.UserID != *f.UserID {
				continue
			}
			if f.Status != nil && b.Status != *f.Status {
				continue
			}
			if f.Type != nil && b.Target.Kind != *f.Type {
				continue
			}
			if f.IDs != nil && !allowed[id] {
				continue
			}
			d := r.details(s, b)
			if f.IDs == nil && f.Search != "" && !matchesSearch(d, f.Search) {
				continue
			}
			matched = append(matched, d)
		}

		total = len(matched)
		start := f.Offset()
		if start > total {
			start = total
		}
		end := start + f.Limit
		if end > total {
			end = total
		}
		out = matched[start:end]
		return nil
	})
	return out, total, err
}

func matchesSearch(d models.BookingDetails, q string) bool {
	q = strings.ToLower(q)
	var fields []string
	if d.User != nil {
		fields = append(fields, d.User.Name, d.User.Email)
	}
	if d.Tour != nil {
		fields = append(fields, d.Tour.Title, d.Tour.Destination)
	}
	if d.Flight != nil {
		fields = append(fields, d.Flight.FlightNumber, d.Flight.Airline, d.Flight.Origin, d.Flight.Destination)
	}
	if d.Room != nil {
		fields = append(fields, d.Room.RoomType)
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), q) {
			return true
		}
	}
	return false
}

func (r *memBookings) Update(_ context.Context, b *models.Booking) error {
	return r.a.with(func(s *memState) error {
		if _, ok := s.bookings[b.ID]; !ok {
			return apperrors.NotFound("Booking", b.ID)
		}
		b.UpdatedAt = time.Now()
		s.bookings[b.ID] = *b
		return nil
	})
}

func (r *memBookings) Delete(_ context.Context, id int64) error {
	return r.a.with(func(s *memState) error {
		if _, ok := s.bookings[id]; !ok {
			return apperrors.NotFound("Booking", id)
		}
		delete(s.bookings, id)
		return nil
	})
}

func (r *memBookings) ListStalePending(_ context.Context, before time.Time, limit int) ([]int64, error) {
	var ids []int64
	err := r.a.with(func(s *memState) error {
		for id, b := range s.bookings {
			if b.Status != models.BookingPending || !b.CreatedAt.Before(before) {
				continue
			}
			completed := false
			for _, p := range s.payments {
				if p.BookingID == id && p.Status == models.PaymentCompleted {
					completed = true
				}
			}
			if !completed {
				ids = append(ids, id)
			}
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		if len(ids) > limit {
			ids = ids[:limit]
		}
		return nil
	})
	return ids, err
}

type memPayments struct{ a *memAccess }

func (r *memPayments) Create(_ context.Context, p *models.Payment) error {
	return r.a.with(func(s *memState) error {
		for _, existing := range s.payments {
			if existing.BookingID == p.BookingID || existing.TransactionReference == p.TransactionReference {
				return apperrors.Conflict("payment already exists")
			}
		}
		s.nextID++
		p.ID = s.nextID
		p.CreatedAt = time.Now()
		p.UpdatedAt = p.CreatedAt
		s.payments[p.ID] = *p
		return nil
	})
}

func (r *memPayments) find(match func(models.Payment) bool, key any) (*models.Payment, error) {
	var out *models.Payment
	err := r.a.with(func(s *memState) error {
		for _, p := range s.payments {
			if match(p) {
				p := p
				out = &p
				return nil
			}
		}
		return apperrors.NotFound("Payment", key)
	})
	return out, err
}

func (r *memPayments) GetByID(_ context.Context, id int64) (*models.Payment, error) {
	return r.find(func(p models.Payment) bool { return p.ID == id }, id)
}

func (r *memPayments) GetForUpdate(ctx context.Context, id int64) (*models.Payment, error) {
	return r.GetByID(ctx, id)
}

func (r *memPayments) GetByBookingID(_ context.Context, bookingID int64) (*models.Payment, error) {
	p, err := r.find(func(p models.Payment) bool { return p.BookingID == bookingID }, bookingID)
	if apperrors.Is(err, apperrors.KindNotFound) {
		return nil, nil
	}
	return p, err
}

func (r *memPayments) GetByReference(_ context.Context, ref string) (*models.Payment, error) {
	return r.find(func(p models.Payment) bool { return p.TransactionReference == ref }, ref)
}

func (r *memPayments) GetByReferenceForUpdate(ctx context.Context, ref string) (*models.Payment, error) {
	return r.GetByReference(ctx, ref)
}

func (r *memPayments) Update(_ context.Context, p *models.Payment) error {
	return r.a.with(func(s *memState) error {
		if _, ok := s.payments[p.ID]; !ok {
			return apperrors.NotFound("Payment", p.ID)
		}
		p.UpdatedAt = time.Now()
		s.payments[p.ID] = *p
		return nil
	})
}

func (r *memPayments) Delete(_ context.Context, id int64) error {
	return r.a.with(func(s *memState) error {
		if _, ok := s.payments[id]; !ok {
			return apperrors.NotFound("Payment", id)
		}
		delete(s.payments, id)
		return nil
	})
}

type memUsers struct{ a *memAccess }

func (r *memUsers) GetByID(_ context.Context, id int64) (*models.User, error) {
	var out *models.User
	err := r.a.with(func(s *memState) error {
		u, ok := s.users[id]
		if !ok {
			return apperrors.NotFound("User", id)
		}
		out = &u
		return nil
	})
	return out, err
}

func (r *memUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	var out *models.User
	err := r.a.with(func(s *memState) error {
		for _, u := range s.users {
			if u.Email == email {
				u := u
				out = &u
				return nil
			}
		}
		return apperrors.NotFound("User", email)
	})
	return out, err
}
