package service

import (
	"context"

	"market-service/internal/models"
)

// Store is the persistence surface the workflows depend on. *store.Store
// satisfies it.
type Store interface {
	GetListingItemByHash(ctx context.Context, hash string) (*models.ListingItem, error)
	GetListingItemByID(ctx context.Context, id int64) (*models.ListingItem, error)

	GetLatestBid(ctx context.Context, listingItemID int64, bidder string) (*models.Bid, error)
	GetBidByID(ctx context.Context, id int64) (*models.Bid, error)
	CreateBid(ctx context.Context, req *models.BidCreateRequest) (*models.Bid, error)

	CreateOrder(ctx context.Context, order *models.Order) error
	CreateOrderItem(ctx context.Context, item *models.OrderItem) error
	GetOrderItemByID(ctx context.Context, id int64) (*models.OrderItem, error)
	GetOrderItemByBidID(ctx context.Context, bidID int64) (*models.OrderItem, error)
	UpdateOrderItemStatus(ctx context.Context, id int64, status models.OrderItemStatus) error
}

// Transport delivers outbound messages over the secure-messaging network.
// *smsg.Transport satisfies it.
type Transport interface {
	Send(ctx context.Context, msg *models.MarketplaceMessage, recipient string) (*models.SendReceipt, error)
}
