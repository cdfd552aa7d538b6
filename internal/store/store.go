package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"market-service/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// GetListingItemByHash retrieves a listing item by content hash with its
// template, payment information graph and bid threads attached.
func (s *Store) GetListingItemByHash(ctx context.Context, hash string) (*models.ListingItem, error) {
	var item models.ListingItem
	err := s.db.GetContext(ctx, &item, "SELECT * FROM listing_items WHERE hash = $1", hash)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("listing item not found: %s", hash)
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadListingGraph(ctx, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// GetListingItemByID retrieves a listing item by ID with its nested graph.
func (s *Store) GetListingItemByID(ctx context.Context, id int64) (*models.ListingItem, error) {
	var item models.ListingItem
	err := s.db.GetContext(ctx, &item, "SELECT * FROM listing_items WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("listing item not found: %d", id)
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadListingGraph(ctx, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// loadListingGraph attaches template, payment information, escrow, ratio and
// bids. Missing links stay nil; callers decide whether that is an error.
func (s *Store) loadListingGraph(ctx context.Context, item *models.ListingItem) error {
	var tpl models.ListingItemTemplate
	err := s.db.GetContext(ctx, &tpl,
		"SELECT * FROM listing_item_templates WHERE listing_item_id = $1", item.ID)
	if err == nil {
		item.Template = &tpl
	} else if err != sql.ErrNoRows {
		return err
	}

	var pi models.PaymentInformation
	err = s.db.GetContext(ctx, &pi,
		"SELECT * FROM payment_informations WHERE listing_item_id = $1", item.ID)
	if err == sql.ErrNoRows {
		return s.loadBids(ctx, item)
	}
	if err != nil {
		return err
	}
	item.PaymentInformation = &pi

	var escrow models.Escrow
	err = s.db.GetContext(ctx, &escrow,
		"SELECT * FROM escrows WHERE payment_information_id = $1", pi.ID)
	if err == sql.ErrNoRows {
		return s.loadBids(ctx, item)
	}
	if err != nil {
		return err
	}
	pi.Escrow = &escrow

	var ratio models.EscrowRatio
	err = s.db.GetContext(ctx, &ratio,
		"SELECT * FROM escrow_ratios WHERE escrow_id = $1", escrow.ID)
	if err == nil {
		escrow.Ratio = &ratio
	} else if err != sql.ErrNoRows {
		return err
	}

	return s.loadBids(ctx, item)
}

func (s *Store) loadBids(ctx context.Context, item *models.ListingItem) error {
	bids, err := s.GetBidsByListingItemID(ctx, item.ID)
	if err != nil {
		return err
	}
	item.Bids = bids
	return nil
}
