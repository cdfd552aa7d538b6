package service

import (
	"context"
	"fmt"

	"market-service/internal/message"
	"market-service/internal/models"
	"market-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BidWorkflow orchestrates locally-initiated bid actions and applies inbound
// bid messages. All state lives in the store; every method re-reads the
// thread's latest state before validating a transition.
type BidWorkflow struct {
	store     Store
	transport Transport
	logger    *zap.Logger
}

// NewBidWorkflow creates a new bid workflow
func NewBidWorkflow(store Store, transport Transport) *BidWorkflow {
	return &BidWorkflow{
		store:     store,
		transport: transport,
		logger:    util.GetLogger(),
	}
}

// Submit opens (or reopens) a bid thread on someone else's listing. The bid
// is persisted before the message is sent; a send failure is returned as a
// TransportError without rolling the bid back.
func (w *BidWorkflow) Submit(ctx context.Context, listing *models.ListingItem, bidder string, shipping *models.Address, extraData []models.DataItem) (*models.Bid, *models.SendReceipt, error) {
	ctx, span := util.StartSpan(ctx, "BidWorkflow.Submit")
	defer span.End()

	objects := make([]models.DataItem, 0, len(extraData)+9)
	objects = append(objects, models.DataItem{ID: models.DataKeyBidder, Value: bidder})
	objects = append(objects, extraData...)
	if shipping != nil {
		objects = append(objects, message.AddressDataItems(shipping)...)
	}

	msg := message.NewBidMessage(models.BidActionBid, listing.Hash, objects)

	bid, err := w.apply(ctx, msg, listing, bidder)
	if err != nil {
		util.BidsFailedTotal.WithLabelValues("submit").Inc()
		return nil, nil, err
	}

	util.BidsSubmittedTotal.Inc()
	w.logger.Info("Bid submitted",
		zap.Int64("bid_id", bid.ID),
		zap.String("item_hash", listing.Hash),
		zap.String("bidder", bidder))

	receipt, err := w.transport.Send(ctx, msg, listing.SellerAddress)
	if err != nil {
		return bid, nil, &TransportError{Err: err}
	}
	return bid, receipt, nil
}

// Accept closes a bid thread in our favor: only legal on our own listing, and
// only for a bid that belongs to it. Creates the Order and its OrderItem in
// AWAITING_ESCROW.
func (w *BidWorkflow) Accept(ctx context.Context, listing *models.ListingItem, bid *models.Bid) (*models.Bid, *models.SendReceipt, error) {
	ctx, span := util.StartSpan(ctx, "BidWorkflow.Accept")
	defer span.End()

	if listing.Template == nil {
		return nil, nil, ErrNotYourItem
	}
	if !bidBelongsToListing(listing, bid) {
		return nil, nil, ErrBidNotFound
	}

	msg := message.NewBidMessage(models.BidActionAccept, listing.Hash,
		[]models.DataItem{{ID: models.DataKeyBidder, Value: bid.Bidder}})

	accepted, err := w.apply(ctx, msg, listing, bid.Bidder)
	if err != nil {
		util.BidsFailedTotal.WithLabelValues("accept").Inc()
		return nil, nil, err
	}

	if _, err := w.createOrder(ctx, listing, accepted); err != nil {
		return nil, nil, err
	}

	util.BidsAcceptedTotal.Inc()
	w.logger.Info("Bid accepted",
		zap.Int64("bid_id", accepted.ID),
		zap.String("item_hash", listing.Hash))

	receipt, err := w.transport.Send(ctx, msg, bid.Bidder)
	if err != nil {
		return accepted, nil, &TransportError{Err: err}
	}
	return accepted, receipt, nil
}

// Reject closes the current bid; seller-only, so the listing template must be
// present. The thread reopens for a fresh bid.
func (w *BidWorkflow) Reject(ctx context.Context, listing *models.ListingItem, bid *models.Bid) (*models.Bid, *models.SendReceipt, error) {
	ctx, span := util.StartSpan(ctx, "BidWorkflow.Reject")
	defer span.End()

	if listing.Template == nil {
		return nil, nil, ErrNotYourItem
	}
	if !bidBelongsToListing(listing, bid) {
		return nil, nil, ErrBidNotFound
	}

	msg := message.NewBidMessage(models.BidActionReject, listing.Hash,
		[]models.DataItem{{ID: models.DataKeyBidder, Value: bid.Bidder}})

	rejected, err := w.apply(ctx, msg, listing, bid.Bidder)
	if err != nil {
		util.BidsFailedTotal.WithLabelValues("reject").Inc()
		return nil, nil, err
	}

	util.BidsRejectedTotal.Inc()
	w.logger.Info("Bid rejected",
		zap.Int64("bid_id", rejected.ID),
		zap.String("item_hash", listing.Hash))

	receipt, err := w.transport.Send(ctx, msg, bid.Bidder)
	if err != nil {
		return rejected, nil, &TransportError{Err: err}
	}
	return rejected, receipt, nil
}

// Cancel withdraws our own bid. Only the bidder cancels, so no template
// requirement; the message goes to the seller.
func (w *BidWorkflow) Cancel(ctx context.Context, listing *models.ListingItem, bid *models.Bid) (*models.Bid, *models.SendReceipt, error) {
	ctx, span := util.StartSpan(ctx, "BidWorkflow.Cancel")
	defer span.End()

	if !bidBelongsToListing(listing, bid) {
		return nil, nil, ErrBidNotFound
	}

	msg := message.NewBidMessage(models.BidActionCancel, listing.Hash,
		[]models.DataItem{{ID: models.DataKeyBidder, Value: bid.Bidder}})

	cancelled, err := w.apply(ctx, msg, listing, bid.Bidder)
	if err != nil {
		util.BidsFailedTotal.WithLabelValues("cancel").Inc()
		return nil, nil, err
	}

	util.BidsCancelledTotal.Inc()
	w.logger.Info("Bid cancelled",
		zap.Int64("bid_id", cancelled.ID),
		zap.String("item_hash", listing.Hash))

	receipt, err := w.transport.Send(ctx, msg, listing.SellerAddress)
	if err != nil {
		return cancelled, nil, &TransportError{Err: err}
	}
	return cancelled, receipt, nil
}

// OnReceived applies an inbound bid message. The caller (the ingestor)
// decides how to treat validation failures.
func (w *BidWorkflow) OnReceived(ctx context.Context, event *models.MarketplaceEvent) error {
	ctx, span := util.StartSpan(ctx, "BidWorkflow.OnReceived")
	defer span.End()

	msg := &event.MarketplaceMessage

	listing, err := w.store.GetListingItemByHash(ctx, msg.Item)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrListingItemNotFound, msg.Item)
	}

	bidder, ok := msg.ObjectValue(models.DataKeyBidder)
	if !ok {
		bidder = event.SmsgMessage.From
	}

	latest, err := w.store.GetLatestBid(ctx, listing.ID, bidder)
	if err != nil {
		return fmt.Errorf("failed to load latest bid: %w", err)
	}

	req, err := message.BuildBidCreateRequest(msg, listing.ID, bidder, latest)
	if err != nil {
		return err
	}

	bid, err := w.store.CreateBid(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to persist bid: %w", err)
	}

	if bid.Action == models.BidActionAccept {
		if _, err := w.createOrder(ctx, listing, bid); err != nil {
			return err
		}
	}

	w.logger.Info("Inbound bid message applied",
		zap.String("action", msg.Action),
		zap.String("item_hash", msg.Item),
		zap.String("bidder", bidder),
		zap.Int64("bid_id", bid.ID))
	return nil
}

// apply validates the message against the thread's latest persisted state and
// appends the resulting snapshot.
func (w *BidWorkflow) apply(ctx context.Context, msg *models.MarketplaceMessage, listing *models.ListingItem, bidder string) (*models.Bid, error) {
	latest, err := w.store.GetLatestBid(ctx, listing.ID, bidder)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest bid: %w", err)
	}

	req, err := message.BuildBidCreateRequest(msg, listing.ID, bidder, latest)
	if err != nil {
		return nil, err
	}

	return w.store.CreateBid(ctx, req)
}

// createOrder materializes the settlement records for an accepted bid.
func (w *BidWorkflow) createOrder(ctx context.Context, listing *models.ListingItem, bid *models.Bid) (*models.OrderItem, error) {
	order := &models.Order{
		Hash:          uuid.New().String(),
		BuyerAddress:  bid.Bidder,
		SellerAddress: listing.SellerAddress,
	}
	if err := w.store.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	item := &models.OrderItem{
		OrderID:  order.ID,
		BidID:    bid.ID,
		ItemHash: listing.Hash,
		Status:   models.OrderItemStatusAwaitingEscrow,
	}
	if err := w.store.CreateOrderItem(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to create order item: %w", err)
	}

	w.logger.Info("Order created",
		zap.Int64("order_id", order.ID),
		zap.Int64("order_item_id", item.ID),
		zap.Int64("bid_id", bid.ID))
	return item, nil
}

func bidBelongsToListing(listing *models.ListingItem, bid *models.Bid) bool {
	if bid == nil {
		return false
	}
	for i := range listing.Bids {
		if listing.Bids[i].ID == bid.ID {
			return true
		}
	}
	return false
}
