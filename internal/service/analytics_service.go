package service

import (
	"context"
	"encoding/json"

	"farmrent/internal/models"
	"farmrent/internal/util"

	"go.uber.org/zap"
)

// AnalyticsService builds farmer and seller dashboards from confirmed bookings
type AnalyticsService struct {
	store  AnalyticsStore
	feed   FeedReader
	logger *zap.Logger
}

// NewAnalyticsService creates a new analytics service. feed may be nil.
func NewAnalyticsService(store AnalyticsStore, feed FeedReader) *AnalyticsService {
	return &AnalyticsService{store: store, feed: feed, logger: util.GetLogger()}
}

// Farmer summarizes spend and days rented per machine
func (s *AnalyticsService) Farmer(ctx context.Context, farmerID string) (*models.FarmerAnalytics, error) {
	usage, err := s.store.FarmerUsage(ctx, farmerID)
	if err != nil {
		return nil, err
	}

	out := &models.FarmerAnalytics{Usage: make(map[string]int64, len(usage))}
	for _, u := range usage {
		out.TotalSpent += u.Amount
		out.TotalDays += u.Days
		out.Usage[u.ListingName] += u.Days
	}
	return out, nil
}

// Seller summarizes income per machine
func (s *AnalyticsService) Seller(ctx context.Context, sellerID string) (*models.SellerAnalytics, error) {
	revenue, err := s.store.SellerRevenue(ctx, sellerID)
	if err != nil {
		return nil, err
	}

	out := &models.SellerAnalytics{MachineRevenue: make(map[string]int64, len(revenue))}
	for _, r := range revenue {
		out.TotalIncome += r.Amount
		out.MachineRevenue[r.ListingName] += r.Amount
	}
	return out, nil
}

// SellerOrders lists confirmed bookings on a seller's listings, newest first
func (s *AnalyticsService) SellerOrders(ctx context.Context, sellerID string) ([]models.Booking, error) {
	return s.store.ListConfirmedBySeller(ctx, sellerID)
}

// SellerFeed returns the seller's recent activity, newest first
func (s *AnalyticsService) SellerFeed(ctx context.Context, sellerID string, limit int64) ([]models.FeedEntry, error) {
	entries := []models.FeedEntry{}
	if s.feed == nil {
		return entries, nil
	}

	raw, err := s.feed.SellerFeed(ctx, sellerID, limit)
	if err != nil {
		return nil, err
	}
	for _, item := range raw {
		var entry models.FeedEntry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			s.logger.Warn("Skipping malformed feed entry", zap.String("seller_id", sellerID), zap.Error(err))
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
