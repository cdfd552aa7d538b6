package models

import "time"

// Well-known data item keys.
const (
	DataKeyBidder       = "bid.bidder"
	DataKeyShipFirst    = "ship.firstName"
	DataKeyShipLast     = "ship.lastName"
	DataKeyShipLine1    = "ship.addressLine1"
	DataKeyShipLine2    = "ship.addressLine2"
	DataKeyShipCity     = "ship.city"
	DataKeyShipState    = "ship.state"
	DataKeyShipZip      = "ship.zipCode"
	DataKeyShipCountry  = "ship.country"
	DataKeyEscrowNonce  = "escrow.nonce"
	DataKeyEscrowMemo   = "escrow.memo"
	DataKeyEscrowAgreed = "escrow.accepted"
)

// DataItem is one id/value pair on the wire.
type DataItem struct {
	ID    string `json:"id"`
	Value string `json:"value"`
}

// MarketplaceMessage is the wire-level payload of both bid and escrow
// messages: an action tag, the listing item hash, and a flat list of
// id/value pairs.
type MarketplaceMessage struct {
	Action  string     `json:"action"`
	Item    string     `json:"item"`
	Objects []DataItem `json:"objects"`
}

// SmsgMessage is the metadata envelope added by the secure-messaging
// transport.
type SmsgMessage struct {
	MsgID    string    `json:"msgid"`
	From     string    `json:"from"`
	To       string    `json:"to"`
	Sent     time.Time `json:"sent"`
	Received time.Time `json:"received"`
}

// MarketplaceEvent is an inbound message as delivered by the transport.
// Transient: only its consequences are persisted.
type MarketplaceEvent struct {
	Action             string             `json:"action"`
	SmsgMessage        SmsgMessage        `json:"smsgMessage"`
	MarketplaceMessage MarketplaceMessage `json:"marketplaceMessage"`
}

// SendReceipt is returned by the transport after a successful send.
type SendReceipt struct {
	MsgID     string    `json:"msgid"`
	Recipient string    `json:"recipient"`
	SentAt    time.Time `json:"sent_at"`
}

// ObjectValue returns the value of the data item with the given id.
func (m *MarketplaceMessage) ObjectValue(id string) (string, bool) {
	for _, o := range m.Objects {
		if o.ID == id {
			return o.Value, true
		}
	}
	return "", false
}
