package service

import (
	"context"
	"time"

	apperrors "tourbook/internal/errors"
	"tourbook/internal/logger"
	"tourbook/internal/metrics"
	"tourbook/internal/models"
	"tourbook/internal/repository"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
	maxPage         = 1 << 20
	searchHitLimit  = 1000
	expiryBatchSize = 100
)

type BookingService struct {
	store     repository.Store
	publisher EventPublisher
	searcher  BookingSearcher
	now       clock
}

func NewBookingService(store repository.Store, publisher EventPublisher, searcher BookingSearcher) *BookingService {
	return &BookingService{
		store:     store,
		publisher: publisher,
		searcher:  searcher,
		now:       time.Now,
	}
}

func (s *BookingService) Create(ctx context.Context, principal models.Principal, req *models.CreateBookingRequest) (*models.BookingResponse, error) {
	target, err := models.TargetFromRefs(req.TourID, req.RoomID, req.FlightID)
	if err != nil {
		return nil, err
	}

	userID := req.UserID
	if userID == 0 {
		userID = principal.ID
	}
	if principal.IsCustomer() && userID != principal.ID {
		return nil, apperrors.Forbidden("Customers can only create bookings for themselves")
	}
	if req.TotalPrice != nil && *req.TotalPrice < 0 {
		return nil, apperrors.Validation("Invalid total price",
			apperrors.FieldError{Field: "totalPrice", Message: "must be zero or greater"})
	}

	var details *models.BookingDetails
	err = s.store.WithTx(ctx, func(repos repository.Repositories) error {
		if _, err := repos.Users.GetByID(ctx, userID); err != nil {
			return err
		}

		ledger := NewLedger(repos.Ledger)
		if err := ledger.Reserve(ctx, target); err != nil {
			return err
		}
		snap, err := repos.Ledger.Snapshot(ctx, target)
		if err != nil {
			return err
		}

		booking := &models.Booking{
			UserID:      userID,
			Target:      target,
			TotalPrice:  snap.Price,
			Status:      models.BookingPending,
			BookingDate: s.now(),
		}
		if req.TotalPrice != nil {
			booking.TotalPrice = *req.TotalPrice
		}
		switch {
		case req.BookingDate != nil:
			booking.BookingDate = *req.BookingDate
		case snap.StartsAt != nil:
			booking.BookingDate = *snap.StartsAt
		}

		if err := repos.Bookings.Create(ctx, booking); err != nil {
			return err
		}

		details, err = repos.Bookings.GetDetails(ctx, booking.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	metrics.BookingOperations.WithLabelValues("create", string(target.Kind)).Inc()
	logger.WithContext(ctx).Info("Booking created",
		"booking_id", details.ID,
		"target", target.String(),
		"total_price", details.TotalPrice.String())
	publish(ctx, s.publisher, models.EventBookingCreated, models.NewBookingEvent(&details.Booking, s.now()))

	resp := models.NewBookingResponse(details)
	return &resp, nil
}

func (s *BookingService) Get(ctx context.Context, principal models.Principal, id int64) (*models.BookingResponse, error) {
	details, err := s.store.Repos().Bookings.GetDetails(ctx, id)
	if err != nil {
		return nil, err
	}
	if principal.IsCustomer() && details.UserID != principal.ID {
		return nil, apperrors.Forbidden("You can only view your own bookings")
	}
	resp := models.NewBookingResponse(details)
	return &resp, nil
}

func (s *BookingService) List(ctx context.Context, principal models.Principal, filter models.BookingListFilter) (*models.ListBookingsResponse, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Page > maxPage {
		filter.Page = maxPage
	}
	if filter.Limit < 1 {
		filter.Limit = defaultPageSize
	}
	if filter.Limit > maxPageSize {
		filter.Limit = maxPageSize
	}
	if principal.IsCustomer() {
		id := principal.ID
		filter.UserID = &id
	}

	if filter.Search != "" && s.searcher != nil {
		ids, err := s.searcher.SearchBookingIDs(ctx, filter.Search, searchHitLimit)
		switch {
		case err != nil:
			logger.WithContext(ctx).Warn("Booking search index unavailable, falling back to SQL search", "error", err)
		case len(ids) >= searchHitLimit:
			logger.WithContext(ctx).Warn("Booking search hit limit reached, falling back to SQL search",
				"query", filter.Search, "limit", searchHitLimit)
		default:
			if ids == nil {
				ids = []int64{}
			}
			filter.IDs = ids
		}
	}

	rows, total, err := s.store.Repos().Bookings.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	resp := &models.ListBookingsResponse{
		Bookings: make([]models.BookingResponse, 0, len(rows)),
		Pagination: models.Pagination{
			Page:       filter.Page,
			Limit:      filter.Limit,
			Total:      total,
			TotalPages: (total + filter.Limit - 1) / filter.Limit,
		},
	}
	for i := range rows {
		resp.Bookings = append(resp.Bookings, models.NewBookingResponse(&rows[i]))
	}
	return resp, nil
}

func (s *BookingService) Update(ctx context.Context, principal models.Principal, id int64, req *models.UpdateBookingRequest) (*models.BookingResponse, error) {
	var details *models.BookingDetails
	var released bool

	err := s.store.WithTx(ctx, func(repos repository.Repositories) error {
		booking, err := repos.Bookings.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if principal.IsCustomer() {
			if err := customerMayUpdate(principal, booking, req); err != nil {
				return err
			}
		}

		payment, err := repos.Payments.GetByBookingID(ctx, booking.ID)
		if err != nil {
			return err
		}

		newTarget := booking.Target
		if req.HasTargetChange() {
			t, err := models.TargetFromRefs(req.TourID, req.RoomID, req.FlightID)
			if err != nil {
				return err
			}
			if t.Kind != booking.Target.Kind {
				return apperrors.BadRequest("Booking target type cannot change from %s to %s", booking.Target.Kind, t.Kind)
			}
			newTarget = t
		}
		targetChanged := newTarget != booking.Target
		userChanged := req.UserID != nil && *req.UserID != booking.UserID

		if targetChanged || userChanged {
			if err := ValidateReferenceChange(booking); err != nil {
				return err
			}
		}
		if userChanged {
			if _, err := repos.Users.GetByID(ctx, *req.UserID); err != nil {
				return err
			}
		}

		nextStatus := booking.Status
		if req.Status != nil {
			if err := ValidateStatusChange(booking.Status, *req.Status, payment); err != nil {
				return err
			}
			nextStatus = *req.Status
		}

		if req.TotalPrice != nil && *req.TotalPrice != booking.TotalPrice {
			if *req.TotalPrice < 0 {
				return apperrors.Validation("Invalid total price",
					apperrors.FieldError{Field: "totalPrice", Message: "must be zero or greater"})
			}
			if payment != nil && payment.Status == models.PaymentCompleted {
				return apperrors.BadRequest("Cannot change the price of a booking with a completed payment")
			}
			booking.TotalPrice = *req.TotalPrice
		}

		ledger := NewLedger(repos.Ledger)
		if targetChanged {
			if err := ledger.Reassign(ctx, booking.Target, newTarget); err != nil {
				return err
			}
		}
		if nextStatus == models.BookingCancelled && booking.Status != models.BookingCancelled {
			if err := ledger.Release(ctx, newTarget); err != nil {
				return err
			}
			if err := failPendingPayment(ctx, repos, payment); err != nil {
				return err
			}
			released = true
		}

		booking.Target = newTarget
		booking.Status = nextStatus
		if userChanged {
			booking.UserID = *req.UserID
		}
		if req.BookingDate != nil {
			booking.BookingDate = *req.BookingDate
		}

		if err := repos.Bookings.Update(ctx, booking); err != nil {
			return err
		}

		details, err = repos.Bookings.GetDetails(ctx, booking.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	metrics.BookingOperations.WithLabelValues("update", string(details.Target.Kind)).Inc()
	logger.WithContext(ctx).Info("Booking updated",
		"booking_id", details.ID,
		"status", details.Status,
		"released", released)
	publish(ctx, s.publisher, models.EventBookingUpdated, models.NewBookingEvent(&details.Booking, s.now()))

	resp := models.NewBookingResponse(details)
	return &resp, nil
}

func customerMayUpdate(principal models.Principal, booking *models.Booking, req *models.UpdateBookingRequest) error {
	if booking.UserID != principal.ID {
		return apperrors.Forbidden("You can only update your own bookings")
	}
	onlyCancel := req.Status != nil && *req.Status == models.BookingCancelled &&
		req.UserID == nil && !req.HasTargetChange() && req.TotalPrice == nil && req.BookingDate == nil
	if !onlyCancel {
		return apperrors.Forbidden("Customers may only cancel their bookings")
	}
	return nil
}

// failPendingPayment closes a still-open payment intent of a cancelled booking.
func failPendingPayment(ctx context.Context, repos repository.Repositories, payment *models.Payment) error {
	if payment == nil || payment.Status != models.PaymentPending {
		return nil
	}
	payment.Status = models.PaymentFailed
	return repos.Payments.Update(ctx, payment)
}

func (s *BookingService) Delete(ctx context.Context, principal models.Principal, id int64) (*models.DeleteBookingResponse, error) {
	if principal.IsCustomer() {
		return nil, apperrors.Forbidden("Customers cannot delete bookings; cancel instead")
	}

	var booking *models.Booking
	resp := &models.DeleteBookingResponse{ID: id, Restored: []models.ResourceKind{}}

	err := s.store.WithTx(ctx, func(repos repository.Repositories) error {
		var err error
		booking, err = repos.Bookings.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		payment, err := repos.Payments.GetByBookingID(ctx, id)
		if err != nil {
			return err
		}
		if err := ValidateDeletion(booking, payment, s.now()); err != nil {
			return err
		}

		// A cancelled booking gave its unit back when it was cancelled.
		if booking.Status != models.BookingCancelled {
			if err := NewLedger(repos.Ledger).Release(ctx, booking.Target); err != nil {
				return err
			}
			resp.Restored = append(resp.Restored, booking.Target.Kind)
		}

		if payment != nil {
			if err := repos.Payments.Delete(ctx, payment.ID); err != nil {
				return err
			}
		}
		return repos.Bookings.Delete(ctx, id)
	})
	if err != nil {
		return nil, err
	}

	metrics.BookingOperations.WithLabelValues("delete", string(booking.Target.Kind)).Inc()
	logger.WithContext(ctx).Info("Booking deleted", "booking_id", id, "restored", resp.Restored)
	publish(ctx, s.publisher, models.EventBookingDeleted, models.NewBookingEvent(booking, s.now()))

	return resp, nil
}

func (s *BookingService) CheckAvailability(ctx context.Context, target models.BookingTarget) (models.Availability, error) {
	return NewLedger(s.store.Repos().Ledger).CheckAvailability(ctx, target)
}

// ResizeCapacity changes a resource's capacity without dropping below booked units.
func (s *BookingService) ResizeCapacity(ctx context.Context, principal models.Principal, target models.BookingTarget, capacity int) (models.Availability, error) {
	if !principal.IsAdmin() {
		return models.Availability{}, apperrors.Forbidden("Only administrators can change capacity")
	}

	var availability models.Availability
	err := s.store.WithTx(ctx, func(repos repository.Repositories) error {
		var err error
		availability, err = NewLedger(repos.Ledger).Resize(ctx, target, capacity)
		return err
	})
	if err != nil {
		return models.Availability{}, err
	}

	logger.WithContext(ctx).Info("Capacity changed",
		"target", target.String(),
		"capacity", availability.Capacity,
		"available", availability.Available)
	return availability, nil
}

// ExpireStale cancels PENDING bookings older than hold that have no completed
// payment, releasing their inventory. It returns the number cancelled.
func (s *BookingService) ExpireStale(ctx context.Context, hold time.Duration) (int, error) {
	ids, err := s.store.Repos().Bookings.ListStalePending(ctx, s.now().Add(-hold), expiryBatchSize)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, id := range ids {
		var booking *models.Booking
		err := s.store.WithTx(ctx, func(repos repository.Repositories) error {
			b, err := repos.Bookings.GetForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if b.Status != models.BookingPending {
				return nil
			}
			payment, err := repos.Payments.GetByBookingID(ctx, id)
			if err != nil {
				return err
			}
			if payment != nil && payment.Status == models.PaymentCompleted {
				return nil
			}

			if err := NewLedger(repos.Ledger).Release(ctx, b.Target); err != nil {
				return err
			}
			if err := failPendingPayment(ctx, repos, payment); err != nil {
				return err
			}
			b.Status = models.BookingCancelled
			if err := repos.Bookings.Update(ctx, b); err != nil {
				return err
			}
			booking = b
			return nil
		})
		if err != nil {
			logger.WithContext(ctx).Error("Failed to expire booking", "booking_id", id, "error", err)
			continue
		}
		if booking == nil {
			continue
		}

		expired++
		metrics.ExpiredBookings.Inc()
		publish(ctx, s.publisher, models.EventBookingUpdated, models.NewBookingEvent(booking, s.now()))
	}

	if expired > 0 {
		logger.WithContext(ctx).Info("Expired pending bookings", "count", expired)
	}
	return expired, nil
}
