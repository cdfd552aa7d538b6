package service

import (
	"context"
	"fmt"
	"strconv"

	"market-service/internal/message"
	"market-service/internal/models"
	"market-service/internal/util"

	"go.uber.org/zap"
)

// EscrowWorkflow orchestrates escrow actions against order items. Actions are
// guarded by the order item's status and by the bid thread's state; no escrow
// action runs unless the full ownership chain
// OrderItem -> Bid -> ListingItem -> PaymentInformation -> Escrow -> EscrowRatio
// resolves.
type EscrowWorkflow struct {
	store     Store
	transport Transport
	logger    *zap.Logger
}

// NewEscrowWorkflow creates a new escrow workflow
func NewEscrowWorkflow(store Store, transport Transport) *EscrowWorkflow {
	return &EscrowWorkflow{
		store:     store,
		transport: transport,
		logger:    util.GetLogger(),
	}
}

// Lock moves an order item from AWAITING_ESCROW to ESCROW_LOCKED and tells
// the counterparty. A send failure leaves the new status in place.
func (w *EscrowWorkflow) Lock(ctx context.Context, orderItemID int64, nonce, memo string) (*models.OrderItem, *models.SendReceipt, error) {
	ctx, span := util.StartSpan(ctx, "EscrowWorkflow.Lock")
	defer span.End()

	item, err := w.store.GetOrderItemByID(ctx, orderItemID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %d", ErrOrderItemNotFound, orderItemID)
	}
	if item.Status != models.OrderItemStatusAwaitingEscrow {
		util.EscrowFailedTotal.WithLabelValues("lock_state").Inc()
		return nil, nil, &OrderStateError{Op: "lock", Have: item.Status}
	}

	bid, listing, err := w.resolveChain(ctx, item)
	if err != nil {
		util.EscrowFailedTotal.WithLabelValues("lock_chain").Inc()
		return nil, nil, err
	}

	msg := message.NewEscrowMessage(models.EscrowActionLock, listing.Hash,
		[]models.DataItem{
			{ID: models.DataKeyBidder, Value: bid.Bidder},
			{ID: models.DataKeyEscrowNonce, Value: nonce},
			{ID: models.DataKeyEscrowMemo, Value: memo},
		})

	if err := w.store.UpdateOrderItemStatus(ctx, item.ID, models.OrderItemStatusEscrowLocked); err != nil {
		return nil, nil, fmt.Errorf("failed to update order item status: %w", err)
	}
	item.Status = models.OrderItemStatusEscrowLocked

	util.EscrowLockedTotal.Inc()
	w.logger.Info("Escrow locked",
		zap.Int64("order_item_id", item.ID),
		zap.String("item_hash", listing.Hash))

	receipt, err := w.transport.Send(ctx, msg, counterparty(listing, bid))
	if err != nil {
		return item, nil, &TransportError{Err: err}
	}
	return item, receipt, nil
}

// Release advances settlement one step: ESCROW_LOCKED -> SHIPPING (seller
// releases to ship), SHIPPING -> COMPLETE (buyer confirms delivery). Requires
// the bid thread to stand at ACCEPT.
func (w *EscrowWorkflow) Release(ctx context.Context, orderItemID int64, memo string) (*models.OrderItem, *models.SendReceipt, error) {
	ctx, span := util.StartSpan(ctx, "EscrowWorkflow.Release")
	defer span.End()

	item, err := w.store.GetOrderItemByID(ctx, orderItemID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %d", ErrOrderItemNotFound, orderItemID)
	}
	if item.Status != models.OrderItemStatusEscrowLocked && item.Status != models.OrderItemStatusShipping {
		util.EscrowFailedTotal.WithLabelValues("release_state").Inc()
		return nil, nil, &OrderStateError{Op: "release", Have: item.Status}
	}

	bid, listing, err := w.resolveChainAccepted(ctx, item)
	if err != nil {
		util.EscrowFailedTotal.WithLabelValues("release_chain").Inc()
		return nil, nil, err
	}

	next := models.OrderItemStatusShipping
	if item.Status == models.OrderItemStatusShipping {
		next = models.OrderItemStatusComplete
	}

	msg := message.NewEscrowMessage(models.EscrowActionRelease, listing.Hash,
		[]models.DataItem{
			{ID: models.DataKeyBidder, Value: bid.Bidder},
			{ID: models.DataKeyEscrowMemo, Value: memo},
		})

	if err := w.store.UpdateOrderItemStatus(ctx, item.ID, next); err != nil {
		return nil, nil, fmt.Errorf("failed to update order item status: %w", err)
	}
	item.Status = next

	util.EscrowReleasedTotal.Inc()
	w.logger.Info("Escrow released",
		zap.Int64("order_item_id", item.ID),
		zap.String("status", string(next)))

	receipt, err := w.transport.Send(ctx, msg, counterparty(listing, bid))
	if err != nil {
		return item, nil, &TransportError{Err: err}
	}
	return item, receipt, nil
}

// Refund unwinds a locked escrow. A mutually agreed refund (accepted=true)
// terminates the order at COMPLETE; a unilateral one reopens the escrow at
// AWAITING_ESCROW so the parties can re-lock.
func (w *EscrowWorkflow) Refund(ctx context.Context, orderItemID int64, accepted bool, memo string) (*models.OrderItem, *models.SendReceipt, error) {
	ctx, span := util.StartSpan(ctx, "EscrowWorkflow.Refund")
	defer span.End()

	item, err := w.store.GetOrderItemByID(ctx, orderItemID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %d", ErrOrderItemNotFound, orderItemID)
	}
	if item.Status != models.OrderItemStatusEscrowLocked && item.Status != models.OrderItemStatusShipping {
		util.EscrowFailedTotal.WithLabelValues("refund_state").Inc()
		return nil, nil, &OrderStateError{Op: "refund", Have: item.Status}
	}

	bid, listing, err := w.resolveChainAccepted(ctx, item)
	if err != nil {
		util.EscrowFailedTotal.WithLabelValues("refund_chain").Inc()
		return nil, nil, err
	}

	next := models.OrderItemStatusAwaitingEscrow
	if accepted {
		next = models.OrderItemStatusComplete
	}

	msg := message.NewEscrowMessage(models.EscrowActionRefund, listing.Hash,
		[]models.DataItem{
			{ID: models.DataKeyBidder, Value: bid.Bidder},
			{ID: models.DataKeyEscrowMemo, Value: memo},
			{ID: models.DataKeyEscrowAgreed, Value: strconv.FormatBool(accepted)},
		})

	if err := w.store.UpdateOrderItemStatus(ctx, item.ID, next); err != nil {
		return nil, nil, fmt.Errorf("failed to update order item status: %w", err)
	}
	item.Status = next

	util.EscrowRefundedTotal.Inc()
	w.logger.Info("Escrow refunded",
		zap.Int64("order_item_id", item.ID),
		zap.Bool("accepted", accepted),
		zap.String("status", string(next)))

	receipt, err := w.transport.Send(ctx, msg, counterparty(listing, bid))
	if err != nil {
		return item, nil, &TransportError{Err: err}
	}
	return item, receipt, nil
}

// OnReceived applies an inbound escrow message. Redelivered or out-of-order
// messages whose target state equals the current state are a no-op; any other
// precondition miss is an OrderStateError for the caller to drop.
func (w *EscrowWorkflow) OnReceived(ctx context.Context, event *models.MarketplaceEvent) error {
	ctx, span := util.StartSpan(ctx, "EscrowWorkflow.OnReceived")
	defer span.End()

	msg := &event.MarketplaceMessage

	listing, err := w.store.GetListingItemByHash(ctx, msg.Item)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrListingItemNotFound, msg.Item)
	}
	if err := validateListingChain(listing); err != nil {
		return err
	}

	bidder, ok := msg.ObjectValue(models.DataKeyBidder)
	if !ok {
		bidder = event.SmsgMessage.From
	}

	bid, err := w.store.GetLatestBid(ctx, listing.ID, bidder)
	if err != nil {
		return fmt.Errorf("failed to load latest bid: %w", err)
	}
	if bid == nil {
		return fmt.Errorf("%w: no thread for bidder %s", ErrChainBidNotFound, bidder)
	}

	item, err := w.store.GetOrderItemByBidID(ctx, bid.ID)
	if err != nil {
		return fmt.Errorf("failed to load order item: %w", err)
	}
	if item == nil {
		return fmt.Errorf("%w: bid %d", ErrOrderItemNotFound, bid.ID)
	}

	action := models.EscrowAction(msg.Action)
	if action != models.EscrowActionLock && bid.Action != models.BidActionAccept {
		return ErrNoValidAcceptance
	}

	next, err := w.inboundTarget(action, item.Status, msg)
	if err != nil {
		return err
	}
	if next == item.Status {
		w.logger.Info("Inbound escrow message is a no-op",
			zap.String("action", msg.Action),
			zap.Int64("order_item_id", item.ID),
			zap.String("status", string(item.Status)))
		return nil
	}

	if err := w.store.UpdateOrderItemStatus(ctx, item.ID, next); err != nil {
		return fmt.Errorf("failed to update order item status: %w", err)
	}

	w.logger.Info("Inbound escrow message applied",
		zap.String("action", msg.Action),
		zap.Int64("order_item_id", item.ID),
		zap.String("status", string(next)))
	return nil
}

// inboundTarget maps an inbound escrow action onto the status it should
// leave the order item in. Returning the current status means no-op.
func (w *EscrowWorkflow) inboundTarget(action models.EscrowAction, current models.OrderItemStatus, msg *models.MarketplaceMessage) (models.OrderItemStatus, error) {
	switch action {
	case models.EscrowActionLock:
		switch current {
		case models.OrderItemStatusAwaitingEscrow:
			return models.OrderItemStatusEscrowLocked, nil
		case models.OrderItemStatusEscrowLocked:
			return current, nil
		}
	case models.EscrowActionRelease:
		switch current {
		case models.OrderItemStatusEscrowLocked:
			return models.OrderItemStatusShipping, nil
		case models.OrderItemStatusShipping:
			return models.OrderItemStatusComplete, nil
		case models.OrderItemStatusComplete:
			return current, nil
		}
	case models.EscrowActionRefund:
		accepted, _ := msg.ObjectValue(models.DataKeyEscrowAgreed)
		target := models.OrderItemStatusAwaitingEscrow
		if accepted == "true" {
			target = models.OrderItemStatusComplete
		}
		switch current {
		case target:
			return current, nil
		case models.OrderItemStatusEscrowLocked, models.OrderItemStatusShipping:
			return target, nil
		}
	}
	return current, &OrderStateError{Op: string(action), Have: current}
}

// resolveChain walks OrderItem -> Bid -> ListingItem and validates the
// listing's payment graph, failing on the first missing link.
func (w *EscrowWorkflow) resolveChain(ctx context.Context, item *models.OrderItem) (*models.Bid, *models.ListingItem, error) {
	bid, err := w.store.GetBidByID(ctx, item.BidID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %d", ErrChainBidNotFound, item.BidID)
	}

	listing, err := w.store.GetListingItemByID(ctx, bid.ListingItemID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %d", ErrListingItemNotFound, bid.ListingItemID)
	}
	if err := validateListingChain(listing); err != nil {
		return nil, nil, err
	}
	return bid, listing, nil
}

// resolveChainAccepted additionally requires the bid thread to stand at
// ACCEPT, checked before the listing-side links.
func (w *EscrowWorkflow) resolveChainAccepted(ctx context.Context, item *models.OrderItem) (*models.Bid, *models.ListingItem, error) {
	bid, err := w.store.GetBidByID(ctx, item.BidID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %d", ErrChainBidNotFound, item.BidID)
	}
	if bid.Action != models.BidActionAccept {
		return nil, nil, ErrNoValidAcceptance
	}

	listing, err := w.store.GetListingItemByID(ctx, bid.ListingItemID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %d", ErrListingItemNotFound, bid.ListingItemID)
	}
	if err := validateListingChain(listing); err != nil {
		return nil, nil, err
	}
	return bid, listing, nil
}

// validateListingChain checks PaymentInformation, Escrow and EscrowRatio
// independently and in that order, failing fast on the first missing one.
func validateListingChain(listing *models.ListingItem) error {
	if listing.PaymentInformation == nil {
		return fmt.Errorf("%w: listing %d", ErrPaymentInformationNotFound, listing.ID)
	}
	if listing.PaymentInformation.Escrow == nil {
		return fmt.Errorf("%w: listing %d", ErrEscrowNotFound, listing.ID)
	}
	if listing.PaymentInformation.Escrow.Ratio == nil {
		return fmt.Errorf("%w: listing %d", ErrEscrowRatioNotFound, listing.ID)
	}
	return nil
}

// counterparty picks the message recipient: the bidder when the listing is
// ours, the seller when it is not.
func counterparty(listing *models.ListingItem, bid *models.Bid) string {
	if listing.Template != nil {
		return bid.Bidder
	}
	return listing.SellerAddress
}
