package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adventuretogether/booking-backend/internal/database"
	"github.com/adventuretogether/booking-backend/internal/models"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// reconcileBatchSize bounds the bookings expired per run
const reconcileBatchSize = 100

// BookingReconciliationService expires PENDING bookings whose payment never completed
type BookingReconciliationService struct {
	bookings   *database.BookingRepository
	auditor    Auditor
	logger     *logrus.Logger
	pendingTTL time.Duration
	interval   time.Duration
	now        func() time.Time

	cron     *cron.Cron
	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewBookingReconciliationService creates a new reconciliation service
func NewBookingReconciliationService(
	bookings *database.BookingRepository,
	auditor Auditor,
	pendingTTL time.Duration,
	interval time.Duration,
	logger *logrus.Logger,
) *BookingReconciliationService {
	ctx, cancel := context.WithCancel(context.Background())
	return &BookingReconciliationService{
		bookings:   bookings,
		auditor:    auditor,
		logger:     logger,
		pendingTTL: pendingTTL,
		interval:   interval,
		now:        time.Now,
		// a slow pass must not overlap the next one
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start schedules the reconciliation job and runs a first pass right away
func (s *BookingReconciliationService) Start() error {
	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.interval), s.reconcileJob); err != nil {
		return fmt.Errorf("failed to schedule reconciliation job: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"interval":    s.interval.String(),
		"pending_ttl": s.pendingTTL.String(),
	}).Info("Starting booking reconciliation")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.reconcileJob()
	}()

	s.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for a running pass to finish
func (s *BookingReconciliationService) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping booking reconciliation")
		s.cancel()
		<-s.cron.Stop().Done()
		s.logger.Info("Booking reconciliation stopped")
	})
	s.wg.Wait()
}

func (s *BookingReconciliationService) reconcileJob() {
	if s.ctx.Err() != nil {
		return
	}
	start := time.Now()
	expired := s.RunOnce(s.ctx)
	s.logger.WithFields(logrus.Fields{
		"expired":     expired,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("Reconciliation pass finished")
}

// RunOnce expires one batch of stale PENDING bookings and returns how many were expired
func (s *BookingReconciliationService) RunOnce(ctx context.Context) int {
	cutoff := s.now().Add(-s.pendingTTL)

	expired, err := s.bookings.ExpireStalePending(ctx, cutoff, reconcileBatchSize)
	if err != nil {
		s.logger.WithError(err).Error("Failed to expire stale bookings")
		return 0
	}
	if len(expired) == 0 {
		return 0
	}

	for _, bookingID := range expired {
		audit := models.NewPaymentAudit(models.PaymentEventBookingExpired, models.PaymentSourceSystem).
			SetBooking(bookingID).
			SetDetails(map[string]interface{}{
				"cutoff":      cutoff.UTC().Format(time.RFC3339),
				"pending_ttl": s.pendingTTL.String(),
			})
		s.auditor.Record(ctx, audit)
	}

	s.logger.WithField("count", len(expired)).Info("Expired stale pending bookings")
	return len(expired)
}
