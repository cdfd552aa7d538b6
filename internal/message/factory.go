// Package message builds outbound negotiation messages and validates inbound
// ones against the bid transition table.
package message

import (
	"errors"
	"fmt"

	"market-service/internal/models"
)

var (
	// ErrMissingListingItem means a model build was attempted without a
	// resolved listing item id.
	ErrMissingListingItem = errors.New("missing listing item")
	// ErrMissingBidder means the bidder address is empty.
	ErrMissingBidder = errors.New("missing bidder address")
)

// TransitionError reports an action that is not legal given the thread's
// prior action.
type TransitionError struct {
	Prior models.BidAction
	Next  models.BidAction
}

func (e *TransitionError) Error() string {
	prior := string(e.Prior)
	if prior == "" {
		prior = "(none)"
	}
	return fmt.Sprintf("illegal bid transition: %s -> %s", prior, e.Next)
}

// MissingFieldError reports a required shipping field absent from the merged
// bid data.
type MissingFieldError struct {
	Key string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing bid data field: %s", e.Key)
}

// IsTransitionLegal is the authoritative transition table. A thread has
// exactly one open bid at a time; ACCEPT closes it for good; CANCEL and
// REJECT reopen it for a fresh bid.
func IsTransitionLegal(prior, next models.BidAction) bool {
	switch prior {
	case models.BidActionNone:
		return next == models.BidActionBid
	case models.BidActionBid:
		return next == models.BidActionAccept ||
			next == models.BidActionReject ||
			next == models.BidActionCancel
	case models.BidActionAccept:
		return false
	case models.BidActionCancel, models.BidActionReject:
		return next == models.BidActionBid
	}
	return false
}

// NewBidMessage constructs an outbound bid message. Pure shape assembly, no
// validation.
func NewBidMessage(action models.BidAction, itemHash string, objects []models.DataItem) *models.MarketplaceMessage {
	return &models.MarketplaceMessage{
		Action:  string(action),
		Item:    itemHash,
		Objects: objects,
	}
}

// NewEscrowMessage constructs an outbound escrow message.
func NewEscrowMessage(action models.EscrowAction, itemHash string, objects []models.DataItem) *models.MarketplaceMessage {
	return &models.MarketplaceMessage{
		Action:  string(action),
		Item:    itemHash,
		Objects: objects,
	}
}

// BuildBidCreateRequest validates a bid message against the thread's latest
// state and turns it into a persistence request. latest is nil for a fresh
// thread. Data items accumulate copy-forward: the latest bid's data is the
// base, the message's items override or extend it.
func BuildBidCreateRequest(msg *models.MarketplaceMessage, listingItemID int64, bidder string, latest *models.Bid) (*models.BidCreateRequest, error) {
	if listingItemID == 0 {
		return nil, ErrMissingListingItem
	}
	if bidder == "" {
		return nil, ErrMissingBidder
	}

	action := models.BidAction(msg.Action)
	prior := models.BidActionNone
	if latest != nil {
		prior = latest.Action
	}
	if !IsTransitionLegal(prior, action) {
		return nil, &TransitionError{Prior: prior, Next: action}
	}

	var priorData []models.BidData
	if latest != nil {
		priorData = latest.Data
	}
	merged := MergeBidData(priorData, msg.Objects)

	req := &models.BidCreateRequest{
		ListingItemID: listingItemID,
		Bidder:        bidder,
		Action:        action,
		Data:          merged,
	}

	// Shipping address travels only on the opening bid.
	if action == models.BidActionBid {
		addr, err := extractAddress(merged)
		if err != nil {
			return nil, err
		}
		req.Address = addr
	}

	return req, nil
}

// MergeBidData applies copy-forward-then-override semantics: every prior key
// persists, incoming items override matching keys and append new ones.
// Ordering is deterministic: prior order first, then new keys in message
// order. Re-merging the same items is idempotent.
func MergeBidData(prior []models.BidData, incoming []models.DataItem) []models.DataItem {
	merged := make([]models.DataItem, 0, len(prior)+len(incoming))
	index := make(map[string]int, len(prior))

	for _, d := range prior {
		index[d.Key] = len(merged)
		merged = append(merged, models.DataItem{ID: d.Key, Value: d.Value})
	}
	for _, item := range incoming {
		if i, ok := index[item.ID]; ok {
			merged[i].Value = item.Value
			continue
		}
		index[item.ID] = len(merged)
		merged = append(merged, item)
	}
	return merged
}

// requiredShipKeys in extraction order. addressLine2 is carried but optional.
var requiredShipKeys = []string{
	models.DataKeyShipFirst,
	models.DataKeyShipLast,
	models.DataKeyShipLine1,
	models.DataKeyShipCity,
	models.DataKeyShipState,
	models.DataKeyShipZip,
	models.DataKeyShipCountry,
}

func extractAddress(data []models.DataItem) (*models.Address, error) {
	values := make(map[string]string, len(data))
	for _, d := range data {
		values[d.ID] = d.Value
	}
	for _, key := range requiredShipKeys {
		if _, ok := values[key]; !ok {
			return nil, &MissingFieldError{Key: key}
		}
	}
	return &models.Address{
		FirstName:    values[models.DataKeyShipFirst],
		LastName:     values[models.DataKeyShipLast],
		AddressLine1: values[models.DataKeyShipLine1],
		AddressLine2: values[models.DataKeyShipLine2],
		City:         values[models.DataKeyShipCity],
		State:        values[models.DataKeyShipState],
		ZipCode:      values[models.DataKeyShipZip],
		Country:      values[models.DataKeyShipCountry],
	}, nil
}

// AddressDataItems serializes a shipping address into wire data items.
func AddressDataItems(addr *models.Address) []models.DataItem {
	return []models.DataItem{
		{ID: models.DataKeyShipFirst, Value: addr.FirstName},
		{ID: models.DataKeyShipLast, Value: addr.LastName},
		{ID: models.DataKeyShipLine1, Value: addr.AddressLine1},
		{ID: models.DataKeyShipLine2, Value: addr.AddressLine2},
		{ID: models.DataKeyShipCity, Value: addr.City},
		{ID: models.DataKeyShipState, Value: addr.State},
		{ID: models.DataKeyShipZip, Value: addr.ZipCode},
		{ID: models.DataKeyShipCountry, Value: addr.Country},
	}
}
