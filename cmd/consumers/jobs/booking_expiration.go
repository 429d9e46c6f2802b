package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Expirer is satisfied by service.BookingService.
type Expirer interface {
	ExpireStale(ctx context.Context, hold time.Duration) (int, error)
}

// BookingExpirationJob periodically cancels PENDING bookings that have held
// inventory longer than the configured hold.
type BookingExpirationJob struct {
	expirer  Expirer
	hold     time.Duration
	interval time.Duration

	stop chan struct{}
	wg   sync.WaitGroup
}

func NewBookingExpirationJob(expirer Expirer, hold, interval time.Duration) *BookingExpirationJob {
	return &BookingExpirationJob{
		expirer:  expirer,
		hold:     hold,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// Start runs one sweep immediately and then one per interval until Stop or
// ctx cancellation. Sweeps never overlap.
func (j *BookingExpirationJob) Start(ctx context.Context) {
	slog.Info("Starting booking expiration job", "check_interval", j.interval.String(), "hold", j.hold.String())

	j.wg.Add(1)
	go func() {
		defer j.wg.Done()

		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()

		j.sweep(ctx)
		for {
			select {
			case <-ticker.C:
				j.sweep(ctx)
			case <-j.stop:
				slog.Info("Booking expiration job stopped")
				return
			case <-ctx.Done():
				slog.Info("Booking expiration job stopped", "reason", ctx.Err())
				return
			}
		}
	}()
}

// Stop waits for an in-flight sweep to finish.
func (j *BookingExpirationJob) Stop() {
	close(j.stop)
	j.wg.Wait()
}

func (j *BookingExpirationJob) sweep(ctx context.Context) {
	n, err := j.expirer.ExpireStale(ctx, j.hold)
	if err != nil {
		slog.Error("Failed to expire stale bookings", "error", err)
		return
	}
	if n == 0 {
		slog.Debug("No expired bookings found")
	}
}
