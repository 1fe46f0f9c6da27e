package models

import "time"

// Listing represents machinery offered for rent by a seller
type Listing struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Category    string    `db:"category" json:"category"`
	Region      string    `db:"region" json:"region"`
	PricePerDay int64     `db:"price_per_day" json:"price_per_day"`
	ImageURL    string    `db:"image_url" json:"image_url"`
	OwnerID     string    `db:"owner_id" json:"owner_id"`
	SellerName  string    `db:"seller_name" json:"seller_name"`
	Status      string    `db:"status" json:"status"`
	AgeInYears  int       `db:"age_in_years" json:"age_in_years"`
	OnChainID   int64     `db:"on_chain_id" json:"on_chain_id"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Visible reports whether farmers may see and book the listing
func (l *Listing) Visible() bool {
	return l.Status == ListingStatusApproved
}

// ModerationEntry is the moderation-queue record kept alongside a pending listing
type ModerationEntry struct {
	ID           string    `db:"id" json:"id"`
	ListingID    string    `db:"listing_id" json:"listing_id"`
	Status       string    `db:"status" json:"status"`
	AdminComment string    `db:"admin_comment" json:"admin_comment,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// ListingFilter narrows listing queries. Empty fields match everything.
type ListingFilter struct {
	Status   string
	OwnerID  string
	Region   string // case-insensitive prefix
	Category string // case-insensitive prefix, "all" matches everything
	Query    string // case-insensitive name substring
}

// ListingUpdate carries an admin edit. Nil fields are left untouched.
type ListingUpdate struct {
	Name        *string `json:"name,omitempty"`
	Category    *string `json:"category,omitempty"`
	Region      *string `json:"region,omitempty"`
	PricePerDay *int64  `json:"price_per_day,omitempty"`
	ImageURL    *string `json:"image_url,omitempty"`
}

// Booking is a farmer's intent to rent a listing for a number of days.
// SellerID, ListingName and OnChainID are snapshots taken at initiation.
type Booking struct {
	ID          string     `db:"id" json:"id"`
	ListingID   string     `db:"listing_id" json:"listing_id"`
	FarmerID    string     `db:"farmer_id" json:"farmer_id"`
	SellerID    string     `db:"seller_id" json:"seller_id"`
	ListingName string     `db:"listing_name" json:"listing_name"`
	OnChainID   int64      `db:"on_chain_id" json:"on_chain_id"`
	From        time.Time  `db:"rent_from" json:"from"`
	To          time.Time  `db:"rent_to" json:"to"`
	Days        int        `db:"days" json:"days"`
	Amount      int64      `db:"amount" json:"amount"`
	Status      string     `db:"status" json:"status"`
	TxHash      *string    `db:"tx_hash" json:"tx_hash,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	ConfirmedAt *time.Time `db:"confirmed_at" json:"confirmed_at,omitempty"`
}

// Abandoned reports whether a pending booking has outlived the given threshold
func (b *Booking) Abandoned(now time.Time, after time.Duration) bool {
	return b.Status == BookingStatusPending && now.Sub(b.CreatedAt) > after
}

// OrderRecord is an append-only receipt of a confirmed booking, sequenced per farmer
type OrderRecord struct {
	FarmerID    string    `db:"farmer_id" json:"farmer_id"`
	Seq         int64     `db:"seq" json:"seq"`
	BookingID   string    `db:"booking_id" json:"booking_id"`
	TxHash      string    `db:"tx_hash" json:"tx_hash"`
	Amount      int64     `db:"amount" json:"amount"`
	Days        int       `db:"days" json:"days"`
	OnChainID   int64     `db:"on_chain_id" json:"on_chain_id"`
	ListingName string    `db:"listing_name" json:"listing_name"`
	ConfirmedAt time.Time `db:"confirmed_at" json:"confirmed_at"`
}

// MachineUsage aggregates confirmed bookings per machine name
type MachineUsage struct {
	ListingName string `db:"listing_name" json:"listing_name"`
	Days        int64  `db:"days" json:"days"`
	Amount      int64  `db:"amount" json:"amount"`
}

// FarmerAnalytics summarizes a farmer's confirmed rentals
type FarmerAnalytics struct {
	TotalSpent int64            `json:"total_spent"`
	TotalDays  int64            `json:"total_days"`
	Usage      map[string]int64 `json:"usage"`
}

// SellerAnalytics summarizes a seller's confirmed income
type SellerAnalytics struct {
	TotalIncome    int64            `json:"total_income"`
	MachineRevenue map[string]int64 `json:"machine_revenue"`
}

// Listing statuses
const (
	ListingStatusPending  = "pending"
	ListingStatusApproved = "approved"
	ListingStatusDeclined = "declined"
)

// Booking statuses
const (
	BookingStatusPending   = "pending"
	BookingStatusConfirmed = "confirmed"
)

// DefaultImageURL is used when a seller submits a listing without a picture
const DefaultImageURL = "https://images.unsplash.com/photo-1602526420402-1e3a07e13420?q=80&w=1600&auto=format&fit=crop"

// Regions and Categories offered in the marketplace filters
var (
	Regions    = []string{"Thane", "Pune", "Nashik", "Aurangabad", "Nagpur", "Kolhapur", "Satara", "Solapur"}
	Categories = []string{"Tractor", "Rotavator", "Seeder", "Harvester", "Sprayer", "Tiller", "Baler"}
)

// Seller feed entry kinds
const (
	FeedKindOrder      = "order"
	FeedKindModeration = "moderation"
)

// FeedEntry is one item of a seller's recent activity feed
type FeedEntry struct {
	Kind        string    `json:"kind"`
	BookingID   string    `json:"booking_id,omitempty"`
	ListingID   string    `json:"listing_id,omitempty"`
	ListingName string    `json:"listing_name,omitempty"`
	FarmerID    string    `json:"farmer_id,omitempty"`
	Days        int       `json:"days,omitempty"`
	Amount      int64     `json:"amount,omitempty"`
	TxHash      string    `json:"tx_hash,omitempty"`
	Status      string    `json:"status,omitempty"`
	Comment     string    `json:"comment,omitempty"`
	At          time.Time `json:"at"`
}
