package service

import (
	"context"
	"fmt"
	"time"

	"market-service/internal/models"
)

// fakeStore is an in-memory Store for workflow tests.
type fakeStore struct {
	listingsByHash map[string]*models.ListingItem
	listingsByID   map[int64]*models.ListingItem
	bidsByID       map[int64]*models.Bid
	latest         map[string]*models.Bid
	orders         map[int64]*models.Order
	orderItems     map[int64]*models.OrderItem
	itemsByBid     map[int64]*models.OrderItem

	nextID       int64
	statusWrites int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		listingsByHash: make(map[string]*models.ListingItem),
		listingsByID:   make(map[int64]*models.ListingItem),
		bidsByID:       make(map[int64]*models.Bid),
		latest:         make(map[string]*models.Bid),
		orders:         make(map[int64]*models.Order),
		orderItems:     make(map[int64]*models.OrderItem),
		itemsByBid:     make(map[int64]*models.OrderItem),
	}
}

func (s *fakeStore) addListing(l *models.ListingItem) {
	s.listingsByHash[l.Hash] = l
	s.listingsByID[l.ID] = l
}

func (s *fakeStore) id() int64 {
	s.nextID++
	return s.nextID
}

func threadKey(listingItemID int64, bidder string) string {
	return fmt.Sprintf("%d/%s", listingItemID, bidder)
}

func (s *fakeStore) GetListingItemByHash(_ context.Context, hash string) (*models.ListingItem, error) {
	l, ok := s.listingsByHash[hash]
	if !ok {
		return nil, fmt.Errorf("listing item not found: %s", hash)
	}
	return l, nil
}

func (s *fakeStore) GetListingItemByID(_ context.Context, id int64) (*models.ListingItem, error) {
	l, ok := s.listingsByID[id]
	if !ok {
		return nil, fmt.Errorf("listing item not found: %d", id)
	}
	return l, nil
}

func (s *fakeStore) GetLatestBid(_ context.Context, listingItemID int64, bidder string) (*models.Bid, error) {
	return s.latest[threadKey(listingItemID, bidder)], nil
}

func (s *fakeStore) GetBidByID(_ context.Context, id int64) (*models.Bid, error) {
	b, ok := s.bidsByID[id]
	if !ok {
		return nil, fmt.Errorf("bid not found: %d", id)
	}
	return b, nil
}

func (s *fakeStore) CreateBid(_ context.Context, req *models.BidCreateRequest) (*models.Bid, error) {
	bid := &models.Bid{
		ID:            s.id(),
		ListingItemID: req.ListingItemID,
		Action:        req.Action,
		Bidder:        req.Bidder,
		Address:       req.Address,
		CreatedAt:     time.Now(),
	}
	for _, d := range req.Data {
		bid.Data = append(bid.Data, models.BidData{BidID: bid.ID, Key: d.ID, Value: d.Value})
	}
	s.bidsByID[bid.ID] = bid
	s.latest[threadKey(req.ListingItemID, req.Bidder)] = bid
	if l, ok := s.listingsByID[req.ListingItemID]; ok {
		l.Bids = append(l.Bids, *bid)
	}
	return bid, nil
}

func (s *fakeStore) CreateOrder(_ context.Context, order *models.Order) error {
	order.ID = s.id()
	s.orders[order.ID] = order
	return nil
}

func (s *fakeStore) CreateOrderItem(_ context.Context, item *models.OrderItem) error {
	item.ID = s.id()
	s.orderItems[item.ID] = item
	s.itemsByBid[item.BidID] = item
	return nil
}

func (s *fakeStore) GetOrderItemByID(_ context.Context, id int64) (*models.OrderItem, error) {
	item, ok := s.orderItems[id]
	if !ok {
		return nil, fmt.Errorf("order item not found: %d", id)
	}
	return item, nil
}

func (s *fakeStore) GetOrderItemByBidID(_ context.Context, bidID int64) (*models.OrderItem, error) {
	return s.itemsByBid[bidID], nil
}

func (s *fakeStore) UpdateOrderItemStatus(_ context.Context, id int64, status models.OrderItemStatus) error {
	item, ok := s.orderItems[id]
	if !ok {
		return fmt.Errorf("order item not found: %d", id)
	}
	item.Status = status
	s.statusWrites++
	return nil
}

type sentMessage struct {
	msg       *models.MarketplaceMessage
	recipient string
}

// fakeTransport records sends and optionally fails them.
type fakeTransport struct {
	sent    []sentMessage
	sendErr error
}

func (t *fakeTransport) Send(_ context.Context, msg *models.MarketplaceMessage, recipient string) (*models.SendReceipt, error) {
	if t.sendErr != nil {
		return nil, t.sendErr
	}
	t.sent = append(t.sent, sentMessage{msg: msg, recipient: recipient})
	return &models.SendReceipt{
		MsgID:     fmt.Sprintf("msg-%d", len(t.sent)),
		Recipient: recipient,
		SentAt:    time.Now(),
	}, nil
}

// newListing builds a listing with a complete payment chain. ours controls
// whether a template is attached.
func newListing(id int64, hash string, ours bool) *models.ListingItem {
	l := &models.ListingItem{
		ID:            id,
		Hash:          hash,
		SellerAddress: "seller-addr",
		PaymentInformation: &models.PaymentInformation{
			ID:            id * 10,
			ListingItemID: id,
			Currency:      "PART",
			Escrow: &models.Escrow{
				ID:   id * 100,
				Type: models.EscrowTypeMAD,
				Ratio: &models.EscrowRatio{
					ID:     id * 1000,
					Buyer:  100,
					Seller: 100,
				},
			},
		},
	}
	if ours {
		l.Template = &models.ListingItemTemplate{ID: id, ListingItemID: id, ProfileID: 1}
	}
	return l
}

func shippingAddress() *models.Address {
	return &models.Address{
		FirstName:    "Ada",
		LastName:     "Lovelace",
		AddressLine1: "12 Analytical Row",
		City:         "London",
		State:        "LDN",
		ZipCode:      "W1",
		Country:      "UK",
	}
}
