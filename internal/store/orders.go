package store

import (
	"context"
	"database/sql"
	"fmt"

	"market-service/internal/models"
)

// CreateOrder creates a new order
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (hash, buyer_address, seller_address)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	return s.db.GetContext(ctx, order, query,
		order.Hash, order.BuyerAddress, order.SellerAddress)
}

// CreateOrderItem creates a new order item
func (s *Store) CreateOrderItem(ctx context.Context, item *models.OrderItem) error {
	query := `
		INSERT INTO order_items (order_id, bid_id, item_hash, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`

	return s.db.GetContext(ctx, item, query,
		item.OrderID, item.BidID, item.ItemHash, item.Status)
}

// GetOrderItemByID retrieves an order item by ID
func (s *Store) GetOrderItemByID(ctx context.Context, id int64) (*models.OrderItem, error) {
	var item models.OrderItem
	err := s.db.GetContext(ctx, &item, "SELECT * FROM order_items WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order item not found: %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// GetOrderItemByBidID retrieves the order item settling a bid thread. Returns
// nil when the bid has no order yet.
func (s *Store) GetOrderItemByBidID(ctx context.Context, bidID int64) (*models.OrderItem, error) {
	var item models.OrderItem
	err := s.db.GetContext(ctx, &item,
		"SELECT * FROM order_items WHERE bid_id = $1 ORDER BY created_at DESC LIMIT 1", bidID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// UpdateOrderItemStatus updates order item status
func (s *Store) UpdateOrderItemStatus(ctx context.Context, id int64, status models.OrderItemStatus) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE order_items SET status = $1, updated_at = NOW() WHERE id = $2",
		status, id)
	return err
}

// IsMessageProcessed checks if an inbound smsg message has been applied
func (s *Store) IsMessageProcessed(ctx context.Context, msgID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE msg_id = $1)", msgID)
	return exists, err
}

// MarkMessageProcessed marks an inbound smsg message as applied
func (s *Store) MarkMessageProcessed(ctx context.Context, msgID, action string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_events (msg_id, action) VALUES ($1, $2) ON CONFLICT (msg_id) DO NOTHING",
		msgID, action)
	return err
}
