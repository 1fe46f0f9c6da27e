package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"farmrent/internal/apperr"
	"farmrent/internal/models"
	"farmrent/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BookingService handles the booking lifecycle up to payment
type BookingService struct {
	listings     ListingStore
	bookings     BookingStore
	publisher    EventPublisher
	abandonAfter time.Duration
	logger       *zap.Logger
	now          func() time.Time
}

// NewBookingService creates a new booking service
func NewBookingService(
	listings ListingStore,
	bookings BookingStore,
	publisher EventPublisher,
	abandonAfter time.Duration,
) *BookingService {
	return &BookingService{
		listings:     listings,
		bookings:     bookings,
		publisher:    publisher,
		abandonAfter: abandonAfter,
		logger:       util.GetLogger(),
		now:          time.Now,
	}
}

// InitiateBookingRequest represents a farmer's request to rent a listing
type InitiateBookingRequest struct {
	ListingID string `json:"listing_id"`
	Days      int    `json:"days"`
	FarmerID  string `json:"-"`
}

// Initiate creates a pending booking on an approved listing. The amount is
// fixed here and never recomputed.
func (s *BookingService) Initiate(ctx context.Context, req *InitiateBookingRequest) (*models.Booking, error) {
	ctx, span := util.StartSpan(ctx, "BookingService.Initiate")
	defer span.End()

	if req.Days < 1 {
		return nil, apperr.New(apperr.ErrValidation, "days must be at least 1")
	}
	if strings.TrimSpace(req.FarmerID) == "" {
		return nil, apperr.New(apperr.ErrValidation, "farmer is required")
	}

	listing, err := s.listings.GetListingByID(ctx, req.ListingID)
	if err != nil {
		return nil, err
	}
	if !listing.Visible() {
		return nil, models.ErrListingNotApproved
	}

	days := int64(req.Days)
	if listing.PricePerDay > math.MaxInt64/days {
		return nil, apperr.New(apperr.ErrValidation, "booking amount overflows")
	}

	from := s.now().UTC()
	booking := &models.Booking{
		ListingID:   listing.ID,
		FarmerID:    req.FarmerID,
		SellerID:    listing.OwnerID,
		ListingName: listing.Name,
		OnChainID:   listing.OnChainID,
		From:        from,
		To:          from.Add(time.Duration(req.Days) * 24 * time.Hour),
		Days:        req.Days,
		Amount:      listing.PricePerDay * days,
		Status:      models.BookingStatusPending,
	}

	if err := s.bookings.CreateBooking(ctx, booking); err != nil {
		return nil, fmt.Errorf("failed to create booking: %w", err)
	}

	util.BookingsInitiatedTotal.Inc()
	s.logger.Info("Booking initiated",
		zap.String("booking_id", booking.ID),
		zap.String("listing_id", listing.ID),
		zap.Int64("amount", booking.Amount))

	event := &models.BookingInitiatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeBookingInitiated,
			Timestamp: time.Now(),
		},
		BookingID: booking.ID,
		ListingID: booking.ListingID,
		FarmerID:  booking.FarmerID,
		SellerID:  booking.SellerID,
		Days:      booking.Days,
		Amount:    booking.Amount,
	}
	if err := s.publisher.PublishBookingInitiated(ctx, event); err != nil {
		s.logger.Error("Failed to publish BookingInitiated event", zap.Error(err))
	}

	return booking, nil
}

// Get retrieves a booking owned by callerID
func (s *BookingService) Get(ctx context.Context, bookingID, callerID string) (*models.Booking, error) {
	return loadOwnedBooking(ctx, s.bookings, bookingID, callerID)
}

// ListForFarmer lists a farmer's bookings, newest first
func (s *BookingService) ListForFarmer(ctx context.Context, farmerID string) ([]models.Booking, error) {
	return s.bookings.ListBookingsByFarmer(ctx, farmerID)
}

// Abandoned lists pending bookings older than the abandonment threshold.
// They stay pending; a late confirmation still succeeds.
func (s *BookingService) Abandoned(ctx context.Context) ([]models.Booking, error) {
	return s.bookings.ListPendingBefore(ctx, s.now().Add(-s.abandonAfter))
}

// CountAbandoned counts what Abandoned would return
func (s *BookingService) CountAbandoned(ctx context.Context) (int, error) {
	return s.bookings.CountPendingBefore(ctx, s.now().Add(-s.abandonAfter))
}

func loadOwnedBooking(ctx context.Context, bookings BookingStore, bookingID, callerID string) (*models.Booking, error) {
	booking, err := bookings.GetBookingByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.FarmerID != callerID {
		return nil, models.ErrNotBookingOwner
	}
	return booking, nil
}
