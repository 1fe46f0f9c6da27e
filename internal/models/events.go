package models

import "time"

// Event types
const (
	EventTypeListingSubmitted = "LISTING_SUBMITTED"
	EventTypeListingModerated = "LISTING_MODERATED"
	EventTypeBookingInitiated = "BOOKING_INITIATED"
	EventTypeBookingConfirmed = "BOOKING_CONFIRMED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// ListingSubmittedEvent published when a seller submits a listing
type ListingSubmittedEvent struct {
	BaseEvent
	ListingID string `json:"listing_id"`
	OwnerID   string `json:"owner_id"`
	Status    string `json:"status"`
	OnChainID int64  `json:"on_chain_id"`
}

// ListingModeratedEvent published when an admin approves or declines a listing
type ListingModeratedEvent struct {
	BaseEvent
	ListingID string `json:"listing_id"`
	OwnerID   string `json:"owner_id"`
	Status    string `json:"status"`
	Comment   string `json:"comment,omitempty"`
}

// BookingInitiatedEvent published when a farmer creates a pending booking
type BookingInitiatedEvent struct {
	BaseEvent
	BookingID string `json:"booking_id"`
	ListingID string `json:"listing_id"`
	FarmerID  string `json:"farmer_id"`
	SellerID  string `json:"seller_id"`
	Days      int    `json:"days"`
	Amount    int64  `json:"amount"`
}

// BookingConfirmedEvent published once a booking has been reconciled with its transaction
type BookingConfirmedEvent struct {
	BaseEvent
	BookingID   string `json:"booking_id"`
	FarmerID    string `json:"farmer_id"`
	SellerID    string `json:"seller_id"`
	ListingName string `json:"listing_name"`
	OnChainID   int64  `json:"on_chain_id"`
	Days        int    `json:"days"`
	Amount      int64  `json:"amount"`
	TxHash      string `json:"tx_hash"`
	OrderSeq    int64  `json:"order_seq"`
}
