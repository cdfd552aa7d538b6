package store

import (
	"context"
	"database/sql"
	"fmt"

	"market-service/internal/models"
)

// CreateBid appends a new bid state snapshot with its data items and optional
// shipping address in a single transaction.
func (s *Store) CreateBid(ctx context.Context, req *models.BidCreateRequest) (*models.Bid, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	bid := &models.Bid{
		ListingItemID: req.ListingItemID,
		Action:        req.Action,
		Bidder:        req.Bidder,
	}

	query := `
		INSERT INTO bids (listing_item_id, action, bidder)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`

	if err := tx.GetContext(ctx, bid, query,
		bid.ListingItemID, bid.Action, bid.Bidder); err != nil {
		return nil, fmt.Errorf("failed to create bid: %w", err)
	}

	for _, item := range req.Data {
		var d models.BidData
		err := tx.GetContext(ctx, &d,
			`INSERT INTO bid_data (bid_id, data_key, data_value)
			 VALUES ($1, $2, $3)
			 RETURNING id, bid_id, data_key, data_value`,
			bid.ID, item.ID, item.Value)
		if err != nil {
			return nil, fmt.Errorf("failed to create bid data: %w", err)
		}
		bid.Data = append(bid.Data, d)
	}

	if req.Address != nil {
		addr := *req.Address
		addr.BidID = bid.ID
		err := tx.GetContext(ctx, &addr.ID,
			`INSERT INTO bid_addresses
				(bid_id, first_name, last_name, address_line1, address_line2,
				 city, state, zip_code, country)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 RETURNING id`,
			addr.BidID, addr.FirstName, addr.LastName, addr.AddressLine1,
			addr.AddressLine2, addr.City, addr.State, addr.ZipCode, addr.Country)
		if err != nil {
			return nil, fmt.Errorf("failed to create bid address: %w", err)
		}
		bid.Address = &addr
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return bid, nil
}

// GetLatestBid retrieves the newest bid snapshot for a (listing, bidder)
// pair, or nil if the thread has no bids yet.
func (s *Store) GetLatestBid(ctx context.Context, listingItemID int64, bidder string) (*models.Bid, error) {
	var bid models.Bid
	err := s.db.GetContext(ctx, &bid,
		`SELECT * FROM bids
		 WHERE listing_item_id = $1 AND bidder = $2
		 ORDER BY created_at DESC, id DESC LIMIT 1`,
		listingItemID, bidder)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadBidDetails(ctx, &bid); err != nil {
		return nil, err
	}
	return &bid, nil
}

// GetBidByID retrieves a bid snapshot by ID
func (s *Store) GetBidByID(ctx context.Context, id int64) (*models.Bid, error) {
	var bid models.Bid
	err := s.db.GetContext(ctx, &bid, "SELECT * FROM bids WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("bid not found: %d", id)
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadBidDetails(ctx, &bid); err != nil {
		return nil, err
	}
	return &bid, nil
}

// GetBidsByListingItemID retrieves all bid snapshots for a listing
func (s *Store) GetBidsByListingItemID(ctx context.Context, listingItemID int64) ([]models.Bid, error) {
	var bids []models.Bid
	err := s.db.SelectContext(ctx, &bids,
		"SELECT * FROM bids WHERE listing_item_id = $1 ORDER BY created_at, id", listingItemID)
	if err != nil {
		return nil, err
	}
	for i := range bids {
		if err := s.loadBidDetails(ctx, &bids[i]); err != nil {
			return nil, err
		}
	}
	return bids, nil
}

func (s *Store) loadBidDetails(ctx context.Context, bid *models.Bid) error {
	if err := s.db.SelectContext(ctx, &bid.Data,
		"SELECT * FROM bid_data WHERE bid_id = $1 ORDER BY id", bid.ID); err != nil {
		return err
	}

	var addr models.Address
	err := s.db.GetContext(ctx, &addr,
		"SELECT * FROM bid_addresses WHERE bid_id = $1", bid.ID)
	if err == nil {
		bid.Address = &addr
	} else if err != sql.ErrNoRows {
		return err
	}
	return nil
}
