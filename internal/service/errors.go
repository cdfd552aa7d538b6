package service

import (
	"errors"
	"fmt"

	"market-service/internal/models"
)

var (
	// ErrNotYourItem means an accept/reject was attempted on a listing this
	// node does not own.
	ErrNotYourItem = errors.New("not your item")

	// ErrBidNotFound means the bid does not belong to the listing item.
	ErrBidNotFound = errors.New("bid not found on listing item")

	// ErrNoValidAcceptance means an escrow action requires the bid thread to
	// be in ACCEPT state and it is not.
	ErrNoValidAcceptance = errors.New("no valid bid acceptance")

	// ErrOwnershipChainIncomplete is the category error for a broken
	// OrderItem -> Bid -> ListingItem -> PaymentInformation -> Escrow ->
	// EscrowRatio chain. The specific link errors below wrap it.
	ErrOwnershipChainIncomplete = errors.New("ownership chain incomplete")

	ErrChainBidNotFound           = fmt.Errorf("%w: bid", ErrOwnershipChainIncomplete)
	ErrListingItemNotFound        = fmt.Errorf("%w: listing item", ErrOwnershipChainIncomplete)
	ErrPaymentInformationNotFound = fmt.Errorf("%w: payment information", ErrOwnershipChainIncomplete)
	ErrEscrowNotFound             = fmt.Errorf("%w: escrow", ErrOwnershipChainIncomplete)
	ErrEscrowRatioNotFound        = fmt.Errorf("%w: escrow ratio", ErrOwnershipChainIncomplete)
	ErrOrderItemNotFound          = fmt.Errorf("%w: order item", ErrOwnershipChainIncomplete)
)

// OrderStateError reports an escrow action attempted against an order item
// whose status does not meet the action's precondition.
type OrderStateError struct {
	Op   string
	Have models.OrderItemStatus
}

func (e *OrderStateError) Error() string {
	return fmt.Sprintf("invalid order state for %s: %s", e.Op, e.Have)
}

// TransportError wraps a failed send. The entity persisted before the send is
// deliberately not rolled back; the caller owns retry.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport send failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
