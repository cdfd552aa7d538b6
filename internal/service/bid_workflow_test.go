package service

import (
	"context"
	"errors"
	"testing"

	"market-service/internal/message"
	"market-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitCreatesBidAndSends(t *testing.T) {
	store := newFakeStore()
	transport := &fakeTransport{}
	listing := newListing(1, "hash-1", false)
	store.addListing(listing)

	w := NewBidWorkflow(store, transport)

	bid, receipt, err := w.Submit(context.Background(), listing, "bidder-addr",
		shippingAddress(), []models.DataItem{{ID: "color", Value: "red"}})
	require.NoError(t, err)

	assert.Equal(t, models.BidActionBid, bid.Action)
	assert.Equal(t, "bidder-addr", bid.Bidder)
	require.NotNil(t, bid.Address)
	assert.Equal(t, "UK", bid.Address.Country)

	require.NotNil(t, receipt)
	require.Len(t, transport.sent, 1)
	assert.Equal(t, "seller-addr", transport.sent[0].recipient)
	assert.Equal(t, string(models.BidActionBid), transport.sent[0].msg.Action)
}

func TestSubmitTwiceIsIllegal(t *testing.T) {
	store := newFakeStore()
	transport := &fakeTransport{}
	listing := newListing(1, "hash-1", false)
	store.addListing(listing)

	w := NewBidWorkflow(store, transport)
	ctx := context.Background()

	_, _, err := w.Submit(ctx, listing, "bidder-addr", shippingAddress(), nil)
	require.NoError(t, err)

	_, _, err = w.Submit(ctx, listing, "bidder-addr", shippingAddress(), nil)
	var transition *message.TransitionError
	require.ErrorAs(t, err, &transition)
}

func TestSubmitTransportFailureKeepsBid(t *testing.T) {
	store := newFakeStore()
	transport := &fakeTransport{sendErr: errors.New("network down")}
	listing := newListing(1, "hash-1", false)
	store.addListing(listing)

	w := NewBidWorkflow(store, transport)

	bid, receipt, err := w.Submit(context.Background(), listing, "bidder-addr",
		shippingAddress(), nil)

	var transport2 *TransportError
	require.ErrorAs(t, err, &transport2)
	assert.Nil(t, receipt)

	// The persisted bid is not rolled back; resend is the caller's problem.
	require.NotNil(t, bid)
	latest, _ := store.GetLatestBid(context.Background(), listing.ID, "bidder-addr")
	require.NotNil(t, latest)
	assert.Equal(t, models.BidActionBid, latest.Action)
}

func TestAcceptRequiresOwnListing(t *testing.T) {
	store := newFakeStore()
	listing := newListing(1, "hash-1", false) // no template: not ours
	store.addListing(listing)

	w := NewBidWorkflow(store, &fakeTransport{})

	_, _, err := w.Accept(context.Background(), listing, &models.Bid{ID: 99})
	assert.ErrorIs(t, err, ErrNotYourItem)
}

func TestAcceptRequiresBidOnListing(t *testing.T) {
	store := newFakeStore()
	listing := newListing(1, "hash-1", true)
	store.addListing(listing)

	w := NewBidWorkflow(store, &fakeTransport{})

	_, _, err := w.Accept(context.Background(), listing, &models.Bid{ID: 99, Bidder: "x"})
	assert.ErrorIs(t, err, ErrBidNotFound)
}

func TestAcceptCreatesOrder(t *testing.T) {
	store := newFakeStore()
	transport := &fakeTransport{}
	listing := newListing(1, "hash-1", true)
	store.addListing(listing)

	w := NewBidWorkflow(store, transport)
	ctx := context.Background()

	bid, _, err := w.Submit(ctx, listing, "bidder-addr", shippingAddress(), nil)
	require.NoError(t, err)

	accepted, receipt, err := w.Accept(ctx, listing, bid)
	require.NoError(t, err)

	assert.Equal(t, models.BidActionAccept, accepted.Action)
	require.NotNil(t, receipt)
	assert.Equal(t, "bidder-addr", transport.sent[1].recipient)

	item, err := store.GetOrderItemByBidID(ctx, accepted.ID)
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, models.OrderItemStatusAwaitingEscrow, item.Status)
	assert.Equal(t, "hash-1", item.ItemHash)

	order := store.orders[item.OrderID]
	require.NotNil(t, order)
	assert.Equal(t, "bidder-addr", order.BuyerAddress)
	assert.Equal(t, "seller-addr", order.SellerAddress)
}

func TestAcceptIsTerminal(t *testing.T) {
	store := newFakeStore()
	listing := newListing(1, "hash-1", true)
	store.addListing(listing)

	w := NewBidWorkflow(store, &fakeTransport{})
	ctx := context.Background()

	bid, _, err := w.Submit(ctx, listing, "bidder-addr", shippingAddress(), nil)
	require.NoError(t, err)
	accepted, _, err := w.Accept(ctx, listing, bid)
	require.NoError(t, err)

	var transition *message.TransitionError

	_, _, err = w.Accept(ctx, listing, accepted)
	assert.ErrorAs(t, err, &transition)
	_, _, err = w.Reject(ctx, listing, accepted)
	assert.ErrorAs(t, err, &transition)
	_, _, err = w.Cancel(ctx, listing, accepted)
	assert.ErrorAs(t, err, &transition)

	// Inbound messages for the closed thread are equally rejected.
	for _, action := range []models.BidAction{
		models.BidActionBid,
		models.BidActionAccept,
		models.BidActionReject,
		models.BidActionCancel,
	} {
		ev := bidEvent(action, "hash-1", "bidder-addr", "dup-"+string(action))
		err := w.OnReceived(ctx, ev)
		assert.ErrorAsf(t, err, &transition, "inbound %s after ACCEPT", action)
	}
}

func TestRejectReopensThread(t *testing.T) {
	store := newFakeStore()
	listing := newListing(1, "hash-1", true)
	store.addListing(listing)

	w := NewBidWorkflow(store, &fakeTransport{})
	ctx := context.Background()

	bid, _, err := w.Submit(ctx, listing, "bidder-addr", shippingAddress(), nil)
	require.NoError(t, err)

	rejected, _, err := w.Reject(ctx, listing, bid)
	require.NoError(t, err)
	assert.Equal(t, models.BidActionReject, rejected.Action)

	// A fresh bid on the same thread is legal again.
	fresh, _, err := w.Submit(ctx, listing, "bidder-addr", shippingAddress(), nil)
	require.NoError(t, err)
	assert.Equal(t, models.BidActionBid, fresh.Action)
}

func TestCancelDoesNotRequireTemplate(t *testing.T) {
	store := newFakeStore()
	listing := newListing(1, "hash-1", false)
	store.addListing(listing)

	w := NewBidWorkflow(store, &fakeTransport{})
	ctx := context.Background()

	bid, _, err := w.Submit(ctx, listing, "bidder-addr", shippingAddress(), nil)
	require.NoError(t, err)

	cancelled, _, err := w.Cancel(ctx, listing, bid)
	require.NoError(t, err)
	assert.Equal(t, models.BidActionCancel, cancelled.Action)
}

func TestOnReceivedBidCreatesThread(t *testing.T) {
	store := newFakeStore()
	listing := newListing(1, "hash-1", true)
	store.addListing(listing)

	w := NewBidWorkflow(store, &fakeTransport{})
	ctx := context.Background()

	ev := bidEvent(models.BidActionBid, "hash-1", "peer-addr", "msg-1")
	require.NoError(t, w.OnReceived(ctx, ev))

	latest, err := store.GetLatestBid(ctx, listing.ID, "peer-addr")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, models.BidActionBid, latest.Action)
	require.NotNil(t, latest.Address)
	assert.Equal(t, "UK", latest.Address.Country)
}

func TestOnReceivedAcceptCreatesOrder(t *testing.T) {
	store := newFakeStore()
	listing := newListing(1, "hash-1", false)
	store.addListing(listing)

	w := NewBidWorkflow(store, &fakeTransport{})
	ctx := context.Background()

	// We are the bidder; our bid went out earlier.
	bid, _, err := w.Submit(ctx, listing, "our-addr", shippingAddress(), nil)
	require.NoError(t, err)

	ev := bidEvent(models.BidActionAccept, "hash-1", "our-addr", "msg-2")
	require.NoError(t, w.OnReceived(ctx, ev))

	latest, err := store.GetLatestBid(ctx, listing.ID, "our-addr")
	require.NoError(t, err)
	assert.Equal(t, models.BidActionAccept, latest.Action)
	assert.NotEqual(t, bid.ID, latest.ID) // a new snapshot was appended

	item, err := store.GetOrderItemByBidID(ctx, latest.ID)
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, models.OrderItemStatusAwaitingEscrow, item.Status)
}

func TestOnReceivedUnknownListing(t *testing.T) {
	w := NewBidWorkflow(newFakeStore(), &fakeTransport{})

	ev := bidEvent(models.BidActionBid, "no-such-hash", "peer-addr", "msg-3")
	err := w.OnReceived(context.Background(), ev)
	assert.ErrorIs(t, err, ErrOwnershipChainIncomplete)
}

// bidEvent builds an inbound event the way the transport would deliver it.
func bidEvent(action models.BidAction, itemHash, bidder, msgID string) *models.MarketplaceEvent {
	objects := []models.DataItem{{ID: models.DataKeyBidder, Value: bidder}}
	if action == models.BidActionBid {
		objects = append(objects,
			models.DataItem{ID: models.DataKeyShipFirst, Value: "Ada"},
			models.DataItem{ID: models.DataKeyShipLast, Value: "Lovelace"},
			models.DataItem{ID: models.DataKeyShipLine1, Value: "12 Analytical Row"},
			models.DataItem{ID: models.DataKeyShipCity, Value: "London"},
			models.DataItem{ID: models.DataKeyShipState, Value: "LDN"},
			models.DataItem{ID: models.DataKeyShipZip, Value: "W1"},
			models.DataItem{ID: models.DataKeyShipCountry, Value: "UK"},
		)
	}
	return &models.MarketplaceEvent{
		Action: string(action),
		SmsgMessage: models.SmsgMessage{
			MsgID: msgID,
			From:  bidder,
		},
		MarketplaceMessage: models.MarketplaceMessage{
			Action:  string(action),
			Item:    itemHash,
			Objects: objects,
		},
	}
}
