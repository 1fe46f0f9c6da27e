package store

import (
	"context"
	"fmt"

	"farmrent/internal/models"

	"github.com/jmoiron/sqlx"
)

// appendOrderRecord writes the next entry of a farmer's order log. The advisory
// lock is held until the surrounding transaction ends, so appends for one
// farmer are sequential and seq stays dense.
func appendOrderRecord(ctx context.Context, tx *sqlx.Tx, rec *models.OrderRecord) error {
	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", rec.FarmerID); err != nil {
		return fmt.Errorf("failed to lock order log: %w", err)
	}

	query := `
		INSERT INTO order_records (farmer_id, seq, booking_id, tx_hash, amount, days, on_chain_id,
			listing_name, confirmed_at)
		SELECT $1::text, COALESCE(MAX(seq), 0) + 1, $2::uuid, $3::text, $4::bigint, $5::integer,
			$6::bigint, $7::text, $8::timestamptz
		FROM order_records WHERE farmer_id = $1::text
		RETURNING seq`

	err := tx.GetContext(ctx, &rec.Seq, query,
		rec.FarmerID, rec.BookingID, rec.TxHash, rec.Amount, rec.Days, rec.OnChainID,
		rec.ListingName, rec.ConfirmedAt)
	if err != nil {
		return fmt.Errorf("failed to append order record: %w", err)
	}
	return nil
}

// ListOrderRecords retrieves a farmer's order log in append order
func (s *Store) ListOrderRecords(ctx context.Context, farmerID string) ([]models.OrderRecord, error) {
	records := []models.OrderRecord{}
	err := s.db.SelectContext(ctx, &records,
		"SELECT * FROM order_records WHERE farmer_id = $1 ORDER BY seq", farmerID)
	return records, err
}
