package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"farmrent/internal/apperr"
	"farmrent/internal/models"
	"farmrent/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PriceBand is the plausible daily price range for a category
type PriceBand struct {
	Min int64 `json:"min"`
	Max int64 `json:"max"`
}

// ListingConfig tunes moderation
type ListingConfig struct {
	AutoApproveMaxAge int
	PriceBands        map[string]PriceBand
}

// ListingService handles listing submission and moderation
type ListingService struct {
	store     ListingStore
	publisher EventPublisher
	cfg       ListingConfig
	bands     map[string]PriceBand
	logger    *zap.Logger
}

// NewListingService creates a new listing service
func NewListingService(store ListingStore, publisher EventPublisher, cfg ListingConfig) *ListingService {
	bands := make(map[string]PriceBand, len(cfg.PriceBands))
	for category, band := range cfg.PriceBands {
		bands[strings.ToLower(strings.TrimSpace(category))] = band
	}
	return &ListingService{
		store:     store,
		publisher: publisher,
		cfg:       cfg,
		bands:     bands,
		logger:    util.GetLogger(),
	}
}

// SubmitListingRequest represents a seller's new listing
type SubmitListingRequest struct {
	Name        string `json:"name"`
	Category    string `json:"category"`
	Region      string `json:"region"`
	PricePerDay int64  `json:"price_per_day"`
	ImageURL    string `json:"image_url"`
	AgeInYears  int    `json:"age_in_years"`
	SellerName  string `json:"seller_name"`
	OwnerID     string `json:"-"`
}

func (r *SubmitListingRequest) validate() error {
	switch {
	case r.PricePerDay <= 0:
		return apperr.New(apperr.ErrValidation, "price_per_day must be positive")
	case strings.TrimSpace(r.OwnerID) == "":
		return apperr.New(apperr.ErrValidation, "owner is required")
	case strings.TrimSpace(r.SellerName) == "":
		return apperr.New(apperr.ErrValidation, "seller_name is required")
	case strings.TrimSpace(r.Name) == "":
		return apperr.New(apperr.ErrValidation, "name is required")
	case strings.TrimSpace(r.Category) == "":
		return apperr.New(apperr.ErrValidation, "category is required")
	case strings.TrimSpace(r.Region) == "":
		return apperr.New(apperr.ErrValidation, "region is required")
	case r.AgeInYears < 0:
		return apperr.New(apperr.ErrValidation, "age_in_years must not be negative")
	}
	return nil
}

// Submit creates a listing. Young machinery is approved straight away, older
// machinery waits in the moderation queue.
func (s *ListingService) Submit(ctx context.Context, req *SubmitListingRequest) (*models.Listing, error) {
	ctx, span := util.StartSpan(ctx, "ListingService.Submit")
	defer span.End()

	if err := req.validate(); err != nil {
		return nil, err
	}

	status := models.ListingStatusPending
	if req.AgeInYears <= s.cfg.AutoApproveMaxAge {
		status = models.ListingStatusApproved
	}

	imageURL := strings.TrimSpace(req.ImageURL)
	if imageURL == "" {
		imageURL = models.DefaultImageURL
	}

	listing := &models.Listing{
		Name:        strings.TrimSpace(req.Name),
		Category:    strings.TrimSpace(req.Category),
		Region:      strings.TrimSpace(req.Region),
		PricePerDay: req.PricePerDay,
		ImageURL:    imageURL,
		OwnerID:     req.OwnerID,
		SellerName:  strings.TrimSpace(req.SellerName),
		Status:      status,
		AgeInYears:  req.AgeInYears,
	}

	if err := s.store.CreateListing(ctx, listing); err != nil {
		return nil, fmt.Errorf("failed to create listing: %w", err)
	}

	util.ListingsSubmittedTotal.WithLabelValues(status).Inc()
	s.logger.Info("Listing submitted",
		zap.String("listing_id", listing.ID),
		zap.String("status", listing.Status),
		zap.Int64("on_chain_id", listing.OnChainID))

	event := &models.ListingSubmittedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeListingSubmitted,
			Timestamp: time.Now(),
		},
		ListingID: listing.ID,
		OwnerID:   listing.OwnerID,
		Status:    listing.Status,
		OnChainID: listing.OnChainID,
	}
	if err := s.publisher.PublishListingSubmitted(ctx, event); err != nil {
		s.logger.Error("Failed to publish ListingSubmitted event", zap.Error(err))
	}

	return listing, nil
}

// Approve marks a listing approved. Approving twice is harmless.
func (s *ListingService) Approve(ctx context.Context, id, comment string) (*models.Listing, error) {
	return s.moderate(ctx, id, models.ListingStatusApproved, comment)
}

// Decline marks a listing declined. Declining twice is harmless.
func (s *ListingService) Decline(ctx context.Context, id, comment string) (*models.Listing, error) {
	return s.moderate(ctx, id, models.ListingStatusDeclined, comment)
}

func (s *ListingService) moderate(ctx context.Context, id, status, comment string) (*models.Listing, error) {
	ctx, span := util.StartSpan(ctx, "ListingService.Moderate")
	defer span.End()

	listing, err := s.store.GetListingByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateListingStatus(ctx, id, status, comment); err != nil {
		return nil, err
	}
	listing.Status = status

	util.ListingsModeratedTotal.WithLabelValues(status).Inc()
	s.logger.Info("Listing moderated", zap.String("listing_id", id), zap.String("status", status))

	event := &models.ListingModeratedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeListingModerated,
			Timestamp: time.Now(),
		},
		ListingID: id,
		OwnerID:   listing.OwnerID,
		Status:    status,
		Comment:   comment,
	}
	if err := s.publisher.PublishListingModerated(ctx, event); err != nil {
		s.logger.Error("Failed to publish ListingModerated event", zap.Error(err))
	}

	return listing, nil
}

// Edit applies an admin edit. Status and on-chain id are never changed here.
func (s *ListingService) Edit(ctx context.Context, id string, upd models.ListingUpdate) (*models.Listing, error) {
	if upd.PricePerDay != nil && *upd.PricePerDay <= 0 {
		return nil, apperr.New(apperr.ErrValidation, "price_per_day must be positive")
	}
	for field, v := range map[string]*string{"name": upd.Name, "category": upd.Category, "region": upd.Region} {
		if v != nil && strings.TrimSpace(*v) == "" {
			return nil, apperr.New(apperr.ErrValidation, "%s must not be empty", field)
		}
	}

	listing, err := s.store.UpdateListing(ctx, id, upd)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Listing edited", zap.String("listing_id", id))
	return listing, nil
}

// Delete removes a listing in any status, along with its moderation entries
func (s *ListingService) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteListing(ctx, id); err != nil {
		return err
	}
	s.logger.Info("Listing deleted", zap.String("listing_id", id))
	return nil
}

// Get retrieves a listing regardless of status
func (s *ListingService) Get(ctx context.Context, id string) (*models.Listing, error) {
	return s.store.GetListingByID(ctx, id)
}

// ListingReview is a listing together with its moderation history
type ListingReview struct {
	Listing    *models.Listing          `json:"listing"`
	Moderation []models.ModerationEntry `json:"moderation"`
}

// Review retrieves a listing with its moderation entries for admins
func (s *ListingService) Review(ctx context.Context, id string) (*ListingReview, error) {
	listing, err := s.store.GetListingByID(ctx, id)
	if err != nil {
		return nil, err
	}
	entries, err := s.store.GetModerationEntries(ctx, id)
	if err != nil {
		return nil, err
	}
	return &ListingReview{Listing: listing, Moderation: entries}, nil
}

// Browse lists approved listings for farmers
func (s *ListingService) Browse(ctx context.Context, filter models.ListingFilter) ([]models.Listing, error) {
	filter.Status = models.ListingStatusApproved
	filter.OwnerID = ""
	return s.store.ListListings(ctx, filter)
}

// ListByStatus lists listings in a status; an empty status lists everything
func (s *ListingService) ListByStatus(ctx context.Context, status string) ([]models.Listing, error) {
	switch status {
	case "", models.ListingStatusPending, models.ListingStatusApproved, models.ListingStatusDeclined:
	default:
		return nil, apperr.New(apperr.ErrValidation, "unknown listing status %q", status)
	}
	return s.store.ListListings(ctx, models.ListingFilter{Status: status})
}

// ListBySeller lists a seller's own listings in every status
func (s *ListingService) ListBySeller(ctx context.Context, ownerID string) ([]models.Listing, error) {
	return s.store.ListListings(ctx, models.ListingFilter{OwnerID: ownerID})
}

// PriceCheck is the outcome of ValidatePrice
type PriceCheck struct {
	Category string     `json:"category"`
	Price    int64      `json:"price"`
	Valid    bool       `json:"valid"`
	Band     *PriceBand `json:"band,omitempty"`
	Message  string     `json:"message"`
}

// ValidatePrice checks a daily price against the configured band for its
// category. It is advisory and never blocks a submission.
func (s *ListingService) ValidatePrice(category string, price int64) PriceCheck {
	check := PriceCheck{Category: category, Price: price}

	band, ok := s.bands[strings.ToLower(strings.TrimSpace(category))]
	if !ok {
		check.Message = fmt.Sprintf("no price range known for %q", category)
		return check
	}
	check.Band = &band

	switch {
	case price < band.Min:
		check.Message = fmt.Sprintf("price is below the usual range of %d-%d", band.Min, band.Max)
	case price > band.Max:
		check.Message = fmt.Sprintf("price is above the usual range of %d-%d", band.Min, band.Max)
	default:
		check.Valid = true
		check.Message = "price is within the usual range"
	}
	return check
}
