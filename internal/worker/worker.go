package worker

import (
	"context"
	"fmt"
	"time"

	"farmrent/internal/broker"
	"farmrent/internal/models"
	"farmrent/internal/util"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// MessageSource delivers bus messages. *broker.Consumer implements it.
type MessageSource interface {
	StartConsuming(ctx context.Context, handler broker.MessageHandler) error
	Close() error
}

// FeedWriter appends to a seller's activity feed. *redisclient.Client implements it.
type FeedWriter interface {
	PushSellerFeed(ctx context.Context, sellerID string, entry interface{}) error
}

// OrderFeedWorker projects confirmed bookings and moderation outcomes into
// seller feeds
type OrderFeedWorker struct {
	source       MessageSource
	feed         FeedWriter
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewOrderFeedWorker creates a new order feed worker
func NewOrderFeedWorker(source MessageSource, feed FeedWriter) *OrderFeedWorker {
	w := &OrderFeedWorker{
		source:       source,
		feed:         feed,
		eventHandler: broker.NewEventHandler(),
		logger:       util.GetLogger().With(zap.String("worker", "order-feed")),
	}

	w.eventHandler.OnBookingConfirmed(w.projectBookingConfirmed)
	w.eventHandler.OnListingModerated(w.projectListingModerated)
	return w
}

// Start starts the worker
func (w *OrderFeedWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting order feed worker")
	return w.source.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *OrderFeedWorker) Stop() error {
	w.logger.Info("Stopping order feed worker")
	return w.source.Close()
}

func (w *OrderFeedWorker) projectBookingConfirmed(ctx context.Context, event *models.BookingConfirmedEvent) error {
	entry := models.FeedEntry{
		Kind:        models.FeedKindOrder,
		BookingID:   event.BookingID,
		ListingName: event.ListingName,
		FarmerID:    event.FarmerID,
		Days:        event.Days,
		Amount:      event.Amount,
		TxHash:      event.TxHash,
		At:          event.Timestamp,
	}
	if err := w.feed.PushSellerFeed(ctx, event.SellerID, entry); err != nil {
		return fmt.Errorf("failed to project booking %s: %w", event.BookingID, err)
	}

	util.FeedEventsProjectedTotal.Inc()
	w.logger.Debug("Projected confirmed booking",
		zap.String("booking_id", event.BookingID),
		zap.String("seller_id", event.SellerID))
	return nil
}

func (w *OrderFeedWorker) projectListingModerated(ctx context.Context, event *models.ListingModeratedEvent) error {
	if event.OwnerID == "" {
		return nil
	}
	entry := models.FeedEntry{
		Kind:      models.FeedKindModeration,
		ListingID: event.ListingID,
		Status:    event.Status,
		Comment:   event.Comment,
		At:        event.Timestamp,
	}
	if err := w.feed.PushSellerFeed(ctx, event.OwnerID, entry); err != nil {
		return fmt.Errorf("failed to project moderation of %s: %w", event.ListingID, err)
	}

	util.FeedEventsProjectedTotal.Inc()
	return nil
}

// Locker hands out short-lived exclusive locks. *redisclient.Client implements it.
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, error)
	ReleaseLock(ctx context.Context, key, token string) error
}

// AbandonedCounter counts pending bookings past the abandonment threshold.
// *service.BookingService implements it.
type AbandonedCounter interface {
	CountAbandoned(ctx context.Context) (int, error)
}

const sweepLockKey = "abandoned-sweep"

// StaleBookingSweeper periodically reports abandoned bookings. It never
// changes a booking; a late confirmation still succeeds.
type StaleBookingSweeper struct {
	cron     *cron.Cron
	schedule string
	bookings AbandonedCounter
	locker   Locker
	lockTTL  time.Duration
	logger   *zap.Logger
}

// NewStaleBookingSweeper creates a sweeper running on a cron schedule such as
// "@every 15m". locker may be nil for a single replica.
func NewStaleBookingSweeper(schedule string, bookings AbandonedCounter, locker Locker) *StaleBookingSweeper {
	return &StaleBookingSweeper{
		cron:     cron.New(cron.WithLocation(time.UTC)),
		schedule: schedule,
		bookings: bookings,
		locker:   locker,
		lockTTL:  time.Minute,
		logger:   util.GetLogger().With(zap.String("worker", "abandoned-sweep")),
	}
}

// Start registers the sweep and starts the scheduler
func (s *StaleBookingSweeper) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, func() { _, _ = s.Sweep(context.Background()) }); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.schedule, err)
	}
	s.cron.Start()
	s.logger.Info("Sweeper started", zap.String("schedule", s.schedule))
	return nil
}

// Stop waits for a running sweep to finish
func (s *StaleBookingSweeper) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("Sweeper stopped")
}

// Sweep counts abandoned bookings and publishes the gauge. It reports false
// when another replica holds the sweep lock.
func (s *StaleBookingSweeper) Sweep(ctx context.Context) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.lockTTL)
	defer cancel()

	if s.locker != nil {
		token, err := s.locker.AcquireLock(ctx, sweepLockKey, s.lockTTL)
		if err != nil {
			s.logger.Error("Failed to acquire sweep lock", zap.Error(err))
			return false, err
		}
		if token == "" {
			s.logger.Debug("Sweep already running elsewhere")
			return false, nil
		}
		defer func() {
			if err := s.locker.ReleaseLock(context.Background(), sweepLockKey, token); err != nil {
				s.logger.Warn("Failed to release sweep lock", zap.Error(err))
			}
		}()
	}

	count, err := s.bookings.CountAbandoned(ctx)
	if err != nil {
		s.logger.Error("Failed to count abandoned bookings", zap.Error(err))
		return false, err
	}

	util.BookingsAbandoned.Set(float64(count))
	if count > 0 {
		s.logger.Info("Abandoned bookings awaiting settlement", zap.Int("count", count))
	}
	return true, nil
}
