package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"farmrent/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// CreateBooking persists a new booking
func (s *Store) CreateBooking(ctx context.Context, booking *models.Booking) error {
	booking.ID = uuid.NewString()

	query := `
		INSERT INTO bookings (id, listing_id, farmer_id, seller_id, listing_name, on_chain_id,
			rent_from, rent_to, days, amount, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at`

	return s.db.GetContext(ctx, &booking.CreatedAt, query,
		booking.ID, booking.ListingID, booking.FarmerID, booking.SellerID, booking.ListingName,
		booking.OnChainID, booking.From, booking.To, booking.Days, booking.Amount, booking.Status)
}

// GetBookingByID retrieves a booking by ID
func (s *Store) GetBookingByID(ctx context.Context, id string) (*models.Booking, error) {
	if !validID(id) {
		return nil, models.ErrBookingNotFound
	}

	var booking models.Booking
	err := s.db.GetContext(ctx, &booking, "SELECT * FROM bookings WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrBookingNotFound
	}
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// ListBookingsByFarmer retrieves a farmer's bookings, newest first
func (s *Store) ListBookingsByFarmer(ctx context.Context, farmerID string) ([]models.Booking, error) {
	bookings := []models.Booking{}
	err := s.db.SelectContext(ctx, &bookings,
		"SELECT * FROM bookings WHERE farmer_id = $1 ORDER BY created_at DESC", farmerID)
	return bookings, err
}

// ListConfirmedBySeller retrieves confirmed bookings on a seller's listings
func (s *Store) ListConfirmedBySeller(ctx context.Context, sellerID string) ([]models.Booking, error) {
	bookings := []models.Booking{}
	err := s.db.SelectContext(ctx, &bookings,
		"SELECT * FROM bookings WHERE seller_id = $1 AND status = $2 ORDER BY confirmed_at DESC",
		sellerID, models.BookingStatusConfirmed)
	return bookings, err
}

// ListPendingBefore retrieves pending bookings created before the cutoff
func (s *Store) ListPendingBefore(ctx context.Context, cutoff time.Time) ([]models.Booking, error) {
	bookings := []models.Booking{}
	err := s.db.SelectContext(ctx, &bookings,
		"SELECT * FROM bookings WHERE status = $1 AND created_at < $2 ORDER BY created_at",
		models.BookingStatusPending, cutoff)
	return bookings, err
}

// CountPendingBefore counts pending bookings created before the cutoff
func (s *Store) CountPendingBefore(ctx context.Context, cutoff time.Time) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		"SELECT COUNT(*) FROM bookings WHERE status = $1 AND created_at < $2",
		models.BookingStatusPending, cutoff)
	return n, err
}

// FarmerUsage aggregates a farmer's confirmed bookings per machine
func (s *Store) FarmerUsage(ctx context.Context, farmerID string) ([]models.MachineUsage, error) {
	usage := []models.MachineUsage{}
	err := s.db.SelectContext(ctx, &usage, `
		SELECT listing_name, SUM(days) AS days, SUM(amount) AS amount
		FROM bookings
		WHERE farmer_id = $1 AND status = $2
		GROUP BY listing_name
		ORDER BY listing_name`,
		farmerID, models.BookingStatusConfirmed)
	return usage, err
}

// SellerRevenue aggregates confirmed bookings on a seller's listings per machine
func (s *Store) SellerRevenue(ctx context.Context, sellerID string) ([]models.MachineUsage, error) {
	usage := []models.MachineUsage{}
	err := s.db.SelectContext(ctx, &usage, `
		SELECT listing_name, SUM(days) AS days, SUM(amount) AS amount
		FROM bookings
		WHERE seller_id = $1 AND status = $2
		GROUP BY listing_name
		ORDER BY listing_name`,
		sellerID, models.BookingStatusConfirmed)
	return usage, err
}

// ConfirmBooking moves a pending booking to confirmed and appends the farmer's
// order record in one transaction. The status predicate is the compare-and-set:
// of two racing confirmations only one matches the row, the other gets
// ErrAlreadyConfirmed and appends nothing. A tx hash already recorded on
// another booking fails with ErrTxAlreadyUsed.
func (s *Store) ConfirmBooking(ctx context.Context, id, txHash string, at time.Time) (*models.Booking, *models.OrderRecord, error) {
	if !validID(id) {
		return nil, nil, models.ErrBookingNotFound
	}

	var (
		booking models.Booking
		record  *models.OrderRecord
	)
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &booking, `
			UPDATE bookings SET status = $1, tx_hash = $2, confirmed_at = $3
			WHERE id = $4 AND status = $5
			RETURNING *`,
			models.BookingStatusConfirmed, txHash, at, id, models.BookingStatusPending)
		if errors.Is(err, sql.ErrNoRows) {
			var exists bool
			if err := tx.GetContext(ctx, &exists, "SELECT EXISTS(SELECT 1 FROM bookings WHERE id = $1)", id); err != nil {
				return err
			}
			if !exists {
				return models.ErrBookingNotFound
			}
			return models.ErrAlreadyConfirmed
		}
		if isUniqueViolation(err, txHashIndexes...) {
			return models.ErrTxAlreadyUsed
		}
		if err != nil {
			return fmt.Errorf("failed to confirm booking: %w", err)
		}

		record = &models.OrderRecord{
			FarmerID:    booking.FarmerID,
			BookingID:   booking.ID,
			TxHash:      txHash,
			Amount:      booking.Amount,
			Days:        booking.Days,
			OnChainID:   booking.OnChainID,
			ListingName: booking.ListingName,
			ConfirmedAt: at,
		}
		err = appendOrderRecord(ctx, tx, record)
		if isUniqueViolation(err, txHashIndexes...) {
			return models.ErrTxAlreadyUsed
		}
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return &booking, record, nil
}

var txHashIndexes = []string{"uq_bookings_tx_hash", "uq_order_records_tx_hash"}

// isUniqueViolation reports whether err is a Postgres unique violation on one
// of the named constraints or indexes.
func isUniqueViolation(err error, constraints ...string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != "23505" {
		return false
	}
	for _, c := range constraints {
		if pqErr.Constraint == c {
			return true
		}
	}
	return false
}
