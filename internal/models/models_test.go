package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestListingVisible(t *testing.T) {
	assert.True(t, (&Listing{Status: ListingStatusApproved}).Visible())
	assert.False(t, (&Listing{Status: ListingStatusPending}).Visible())
	assert.False(t, (&Listing{Status: ListingStatusDeclined}).Visible())
}

func TestBookingAbandoned(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	old := &Booking{Status: BookingStatusPending, CreatedAt: now.Add(-73 * time.Hour)}
	fresh := &Booking{Status: BookingStatusPending, CreatedAt: now.Add(-time.Hour)}
	confirmed := &Booking{Status: BookingStatusConfirmed, CreatedAt: now.Add(-100 * time.Hour)}

	assert.True(t, old.Abandoned(now, 72*time.Hour))
	assert.False(t, fresh.Abandoned(now, 72*time.Hour))
	assert.False(t, confirmed.Abandoned(now, 72*time.Hour))
}
