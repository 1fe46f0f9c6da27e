package service

import (
	"context"
	"math/big"
	"time"

	"farmrent/internal/chain"
	"farmrent/internal/models"
	"farmrent/internal/oracle"

	"github.com/ethereum/go-ethereum/common"
)

// ListingStore persists listings and their moderation entries
type ListingStore interface {
	CreateListing(ctx context.Context, listing *models.Listing) error
	GetListingByID(ctx context.Context, id string) (*models.Listing, error)
	ListListings(ctx context.Context, filter models.ListingFilter) ([]models.Listing, error)
	UpdateListingStatus(ctx context.Context, id, status, comment string) error
	UpdateListing(ctx context.Context, id string, upd models.ListingUpdate) (*models.Listing, error)
	DeleteListing(ctx context.Context, id string) error
	GetModerationEntries(ctx context.Context, listingID string) ([]models.ModerationEntry, error)
}

// BookingStore persists bookings
type BookingStore interface {
	CreateBooking(ctx context.Context, booking *models.Booking) error
	GetBookingByID(ctx context.Context, id string) (*models.Booking, error)
	ListBookingsByFarmer(ctx context.Context, farmerID string) ([]models.Booking, error)
	ListPendingBefore(ctx context.Context, cutoff time.Time) ([]models.Booking, error)
	CountPendingBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// LedgerStore confirms bookings and keeps the per-farmer order log
type LedgerStore interface {
	ConfirmBooking(ctx context.Context, id, txHash string, at time.Time) (*models.Booking, *models.OrderRecord, error)
	ListOrderRecords(ctx context.Context, farmerID string) ([]models.OrderRecord, error)
}

// AnalyticsStore aggregates confirmed bookings
type AnalyticsStore interface {
	FarmerUsage(ctx context.Context, farmerID string) ([]models.MachineUsage, error)
	SellerRevenue(ctx context.Context, sellerID string) ([]models.MachineUsage, error)
	ListConfirmedBySeller(ctx context.Context, sellerID string) ([]models.Booking, error)
}

// EventPublisher emits domain events. *broker.EventPublisher implements it.
type EventPublisher interface {
	PublishListingSubmitted(ctx context.Context, event *models.ListingSubmittedEvent) error
	PublishListingModerated(ctx context.Context, event *models.ListingModeratedEvent) error
	PublishBookingInitiated(ctx context.Context, event *models.BookingInitiatedEvent) error
	PublishBookingConfirmed(ctx context.Context, event *models.BookingConfirmedEvent) error
}

// RateOracle quotes exchange rates. *oracle.Oracle implements it.
type RateOracle interface {
	GetExchangeRate(ctx context.Context, fiat, asset string) oracle.Quote
}

// RegistryReader reads the on-chain registry. *chain.Registry implements it.
type RegistryReader interface {
	GetEntry(ctx context.Context, index uint64) (*chain.Entry, error)
	Address() common.Address
	ChainID() *big.Int
}

// SettlementVerifier checks a transaction against the registry. *chain.Verifier implements it.
type SettlementVerifier interface {
	VerifySettlement(ctx context.Context, txHash string, index uint64) error
}

// FeedReader reads seller activity feeds. *redisclient.Client implements it.
type FeedReader interface {
	SellerFeed(ctx context.Context, sellerID string, limit int64) ([]string, error)
}
