package service

import (
	"context"
	"testing"

	"farmrent/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyticsCountsConfirmedBookingsOnly(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()

	tractor := f.approvedListing(100)
	seederReq := tractorRequest(1)
	seederReq.Name = "Kisan Seed Drill"
	seederReq.OwnerID = "seller-1"
	seederReq.PricePerDay = 50
	seeder, err := f.listings.Submit(ctx, seederReq)
	require.NoError(t, err)

	a := initiate(t, f, tractor, "farmer-1", 3)
	b := initiate(t, f, seeder, "farmer-1", 2)
	initiate(t, f, tractor, "farmer-1", 10)

	_, err = f.reconciler.Confirm(ctx, a.ID, "0x01", "farmer-1")
	require.NoError(t, err)
	_, err = f.reconciler.Confirm(ctx, b.ID, "0x02", "farmer-1")
	require.NoError(t, err)

	analytics := NewAnalyticsService(f.store, nil)

	farmer, err := analytics.Farmer(ctx, "farmer-1")
	require.NoError(t, err)
	assert.Equal(t, int64(400), farmer.TotalSpent)
	assert.Equal(t, int64(5), farmer.TotalDays)
	assert.Equal(t, map[string]int64{"Mahindra 575": 3, "Kisan Seed Drill": 2}, farmer.Usage)

	seller, err := analytics.Seller(ctx, "seller-1")
	require.NoError(t, err)
	assert.Equal(t, int64(400), seller.TotalIncome)
	assert.Equal(t, int64(300), seller.MachineRevenue["Mahindra 575"])

	orders, err := analytics.SellerOrders(ctx, "seller-1")
	require.NoError(t, err)
	assert.Len(t, orders, 2)

	empty, err := analytics.Farmer(ctx, "farmer-9")
	require.NoError(t, err)
	assert.Zero(t, empty.TotalSpent)
	assert.Empty(t, empty.Usage)
}

func TestSellerFeedSkipsMalformedEntries(t *testing.T) {
	feed := staticFeed{items: []string{
		`{"kind":"order","booking_id":"b-2","amount":300,"at":"2026-03-01T10:00:00Z"}`,
		`not json`,
		`{"kind":"moderation","listing_id":"l-1","status":"approved","at":"2026-02-28T10:00:00Z"}`,
	}}
	analytics := NewAnalyticsService(newMemStore(), feed)

	entries, err := analytics.SellerFeed(context.Background(), "seller-1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, models.FeedKindOrder, entries[0].Kind)
	assert.Equal(t, int64(300), entries[0].Amount)
	assert.Equal(t, models.FeedKindModeration, entries[1].Kind)
}

func TestSellerFeedWithoutReader(t *testing.T) {
	analytics := NewAnalyticsService(newMemStore(), nil)

	entries, err := analytics.SellerFeed(context.Background(), "seller-1", 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
