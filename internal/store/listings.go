package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"farmrent/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// CreateListing inserts a listing, assigns its on-chain id and, for pending
// listings, opens a moderation entry. The counter row lock serializes
// concurrent submissions so ids stay unique and are never handed out twice.
func (s *Store) CreateListing(ctx context.Context, listing *models.Listing) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		var next int64
		err := tx.GetContext(ctx, &next, `
			UPDATE chain_index_counter
			SET last_index = GREATEST(last_index, (SELECT COALESCE(MAX(on_chain_id), 0) FROM listings)) + 1
			WHERE id = 1
			RETURNING last_index`)
		if err != nil {
			return fmt.Errorf("failed to allocate on-chain id: %w", err)
		}

		listing.ID = uuid.NewString()
		listing.OnChainID = next

		query := `
			INSERT INTO listings (id, name, category, region, price_per_day, image_url, owner_id,
				seller_name, status, age_in_years, on_chain_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			RETURNING created_at, updated_at`

		err = tx.GetContext(ctx, listing, query,
			listing.ID, listing.Name, listing.Category, listing.Region, listing.PricePerDay,
			listing.ImageURL, listing.OwnerID, listing.SellerName, listing.Status,
			listing.AgeInYears, listing.OnChainID)
		if err != nil {
			return fmt.Errorf("failed to insert listing: %w", err)
		}

		if listing.Status != models.ListingStatusPending {
			return nil
		}

		_, err = tx.ExecContext(ctx,
			"INSERT INTO listing_moderation (id, listing_id, status) VALUES ($1, $2, $3)",
			uuid.NewString(), listing.ID, models.ListingStatusPending)
		if err != nil {
			return fmt.Errorf("failed to open moderation entry: %w", err)
		}
		return nil
	})
}

// GetListingByID retrieves a listing by ID
func (s *Store) GetListingByID(ctx context.Context, id string) (*models.Listing, error) {
	if !validID(id) {
		return nil, models.ErrListingNotFound
	}

	var listing models.Listing
	err := s.db.GetContext(ctx, &listing, "SELECT * FROM listings WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrListingNotFound
	}
	if err != nil {
		return nil, err
	}
	return &listing, nil
}

// ListListings retrieves listings matching the filter, newest first
func (s *Store) ListListings(ctx context.Context, filter models.ListingFilter) ([]models.Listing, error) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if filter.OwnerID != "" {
		add("owner_id = $%d", filter.OwnerID)
	}
	if r := strings.TrimSpace(filter.Region); r != "" {
		add("region ILIKE $%d", escapeLike(r)+"%")
	}
	if c := strings.TrimSpace(filter.Category); c != "" && !strings.EqualFold(c, "all") {
		add("category ILIKE $%d", escapeLike(c)+"%")
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		add("name ILIKE $%d", "%"+escapeLike(q)+"%")
	}

	query := "SELECT * FROM listings"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"

	listings := []models.Listing{}
	err := s.db.SelectContext(ctx, &listings, query, args...)
	return listings, err
}

// UpdateListingStatus records a moderation decision on the listing and its moderation entry
func (s *Store) UpdateListingStatus(ctx context.Context, id, status, comment string) error {
	if !validID(id) {
		return models.ErrListingNotFound
	}

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE listings SET status = $1, updated_at = NOW() WHERE id = $2",
			status, id)
		if err != nil {
			return fmt.Errorf("failed to update listing status: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return models.ErrListingNotFound
		}

		_, err = tx.ExecContext(ctx,
			"UPDATE listing_moderation SET status = $1, admin_comment = $2, updated_at = NOW() WHERE listing_id = $3",
			status, comment, id)
		if err != nil {
			return fmt.Errorf("failed to update moderation entry: %w", err)
		}
		return nil
	})
}

// UpdateListing applies an edit. Status and on_chain_id are never touched here.
func (s *Store) UpdateListing(ctx context.Context, id string, upd models.ListingUpdate) (*models.Listing, error) {
	if !validID(id) {
		return nil, models.ErrListingNotFound
	}

	query := `
		UPDATE listings SET
			name = COALESCE($1, name),
			category = COALESCE($2, category),
			region = COALESCE($3, region),
			price_per_day = COALESCE($4, price_per_day),
			image_url = COALESCE($5, image_url),
			updated_at = NOW()
		WHERE id = $6
		RETURNING *`

	var listing models.Listing
	err := s.db.GetContext(ctx, &listing, query,
		upd.Name, upd.Category, upd.Region, upd.PricePerDay, upd.ImageURL, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrListingNotFound
	}
	if err != nil {
		return nil, err
	}
	return &listing, nil
}

// DeleteListing removes a listing and its moderation entries
func (s *Store) DeleteListing(ctx context.Context, id string) error {
	if !validID(id) {
		return models.ErrListingNotFound
	}

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM listing_moderation WHERE listing_id = $1", id); err != nil {
			return fmt.Errorf("failed to delete moderation entries: %w", err)
		}

		res, err := tx.ExecContext(ctx, "DELETE FROM listings WHERE id = $1", id)
		if err != nil {
			return fmt.Errorf("failed to delete listing: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return models.ErrListingNotFound
		}
		return nil
	})
}

// GetModerationEntries retrieves the moderation history of a listing
func (s *Store) GetModerationEntries(ctx context.Context, listingID string) ([]models.ModerationEntry, error) {
	entries := []models.ModerationEntry{}
	if !validID(listingID) {
		return entries, nil
	}
	err := s.db.SelectContext(ctx, &entries,
		"SELECT * FROM listing_moderation WHERE listing_id = $1 ORDER BY created_at", listingID)
	return entries, err
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(s)
}
