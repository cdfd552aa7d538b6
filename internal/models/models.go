package models

import "time"

// BidAction is the current state of a negotiation thread.
type BidAction string

const (
	// BidActionNone marks a thread with no prior bid.
	BidActionNone   BidAction = ""
	BidActionBid    BidAction = "MPA_BID"
	BidActionAccept BidAction = "MPA_ACCEPT"
	BidActionReject BidAction = "MPA_REJECT"
	BidActionCancel BidAction = "MPA_CANCEL"
)

// EscrowAction is a settlement action against an order item.
type EscrowAction string

const (
	EscrowActionLock    EscrowAction = "MPA_LOCK"
	EscrowActionRelease EscrowAction = "MPA_RELEASE"
	EscrowActionRefund  EscrowAction = "MPA_REFUND"
)

// OrderItemStatus tracks an accepted bid through escrow settlement.
type OrderItemStatus string

const (
	OrderItemStatusAwaitingEscrow OrderItemStatus = "AWAITING_ESCROW"
	OrderItemStatusEscrowLocked   OrderItemStatus = "ESCROW_LOCKED"
	OrderItemStatusShipping       OrderItemStatus = "SHIPPING"
	OrderItemStatusComplete       OrderItemStatus = "COMPLETE"
)

// EscrowType of the listing's escrow arrangement.
type EscrowType string

const (
	EscrowTypeMAD EscrowType = "MAD"
)

// ListingItem is an immutable-once-posted item for sale, identified by a
// content hash. A non-nil Template means the listing is our own.
type ListingItem struct {
	ID            int64     `db:"id" json:"id"`
	Hash          string    `db:"hash" json:"hash"`
	SellerAddress string    `db:"seller_address" json:"seller_address"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`

	Template           *ListingItemTemplate `db:"-" json:"template,omitempty"`
	PaymentInformation *PaymentInformation  `db:"-" json:"payment_information,omitempty"`
	Bids               []Bid                `db:"-" json:"bids,omitempty"`
}

// ListingItemTemplate exists only for listings posted by this node.
type ListingItemTemplate struct {
	ID            int64     `db:"id" json:"id"`
	ListingItemID int64     `db:"listing_item_id" json:"listing_item_id"`
	ProfileID     int64     `db:"profile_id" json:"profile_id"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// PaymentInformation links a listing to its escrow template.
type PaymentInformation struct {
	ID            int64  `db:"id" json:"id"`
	ListingItemID int64  `db:"listing_item_id" json:"listing_item_id"`
	Currency      string `db:"currency" json:"currency"`

	Escrow *Escrow `db:"-" json:"escrow,omitempty"`
}

// Escrow is a template property of the listing, never re-created per order.
type Escrow struct {
	ID                   int64      `db:"id" json:"id"`
	PaymentInformationID int64      `db:"payment_information_id" json:"payment_information_id"`
	Type                 EscrowType `db:"type" json:"type"`

	Ratio *EscrowRatio `db:"-" json:"ratio,omitempty"`
}

// EscrowRatio is the buyer/seller split on dispute.
type EscrowRatio struct {
	ID       int64 `db:"id" json:"id"`
	EscrowID int64 `db:"escrow_id" json:"escrow_id"`
	Buyer    int   `db:"buyer" json:"buyer"`
	Seller   int   `db:"seller" json:"seller"`
}

// Bid is one state snapshot of a negotiation thread for a
// (listing item, bidder address) pair. State changes append a new snapshot;
// the newest row is the thread's current state.
type Bid struct {
	ID            int64     `db:"id" json:"id"`
	ListingItemID int64     `db:"listing_item_id" json:"listing_item_id"`
	Action        BidAction `db:"action" json:"action"`
	Bidder        string    `db:"bidder" json:"bidder"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`

	Data    []BidData `db:"-" json:"data,omitempty"`
	Address *Address  `db:"-" json:"address,omitempty"`
}

// BidData is one key/value fact accumulated on a bid thread. Keys are unique
// within a bid's data set.
type BidData struct {
	ID    int64  `db:"id" json:"id"`
	BidID int64  `db:"bid_id" json:"bid_id"`
	Key   string `db:"data_key" json:"key"`
	Value string `db:"data_value" json:"value"`
}

// Address is the shipping address submitted with a bid.
type Address struct {
	ID           int64  `db:"id" json:"id"`
	BidID        int64  `db:"bid_id" json:"bid_id"`
	FirstName    string `db:"first_name" json:"first_name"`
	LastName     string `db:"last_name" json:"last_name"`
	AddressLine1 string `db:"address_line1" json:"address_line1"`
	AddressLine2 string `db:"address_line2" json:"address_line2,omitempty"`
	City         string `db:"city" json:"city"`
	State        string `db:"state" json:"state"`
	ZipCode      string `db:"zip_code" json:"zip_code"`
	Country      string `db:"country" json:"country"`
}

// Order groups the settlement of one accepted bid.
type Order struct {
	ID            int64     `db:"id" json:"id"`
	Hash          string    `db:"hash" json:"hash"`
	BuyerAddress  string    `db:"buyer_address" json:"buyer_address"`
	SellerAddress string    `db:"seller_address" json:"seller_address"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// OrderItem is the per-listing settlement unit, advanced only by the escrow
// workflow.
type OrderItem struct {
	ID        int64           `db:"id" json:"id"`
	OrderID   int64           `db:"order_id" json:"order_id"`
	BidID     int64           `db:"bid_id" json:"bid_id"`
	ItemHash  string          `db:"item_hash" json:"item_hash"`
	Status    OrderItemStatus `db:"status" json:"status"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// BidCreateRequest is the persistence request produced by the message factory
// once an action has passed transition validation.
type BidCreateRequest struct {
	ListingItemID int64
	Bidder        string
	Action        BidAction
	Data          []DataItem
	Address       *Address
}

// ProcessedEvent records an applied inbound message for dedup.
type ProcessedEvent struct {
	MsgID       string    `db:"msg_id"`
	Action      string    `db:"action"`
	ProcessedAt time.Time `db:"processed_at"`
}
