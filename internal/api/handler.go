package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"market-service/internal/message"
	"market-service/internal/models"
	"market-service/internal/service"
	"market-service/internal/store"
	"market-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers. It resolves domain objects and invokes the
// workflows; all negotiation rules live below it.
type Handler struct {
	store  *store.Store
	bids   *service.BidWorkflow
	escrow *service.EscrowWorkflow
}

// NewHandler creates a new HTTP handler
func NewHandler(store *store.Store, bids *service.BidWorkflow, escrow *service.EscrowWorkflow) *Handler {
	return &Handler{
		store:  store,
		bids:   bids,
		escrow: escrow,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/listings/:hash", h.getListing)
		v1.POST("/bids", h.submitBid)
		v1.POST("/bids/:id/accept", h.acceptBid)
		v1.POST("/bids/:id/reject", h.rejectBid)
		v1.POST("/bids/:id/cancel", h.cancelBid)
		v1.GET("/order-items/:id", h.getOrderItem)
		v1.POST("/order-items/:id/lock", h.lockEscrow)
		v1.POST("/order-items/:id/release", h.releaseEscrow)
		v1.POST("/order-items/:id/refund", h.refundEscrow)
	}
}

func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) getListing(c *gin.Context) {
	listing, err := h.store.GetListingItemByHash(c.Request.Context(), c.Param("hash"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Listing not found", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, listing)
}

// SubmitBidRequest opens a bid thread on a listing.
type SubmitBidRequest struct {
	ListingHash     string            `json:"listing_hash" binding:"required"`
	Bidder          string            `json:"bidder" binding:"required"`
	ShippingAddress *models.Address   `json:"shipping_address" binding:"required"`
	Data            []models.DataItem `json:"data,omitempty"`
}

func (h *Handler) submitBid(c *gin.Context) {
	var req SubmitBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	ctx := c.Request.Context()
	listing, err := h.store.GetListingItemByHash(ctx, req.ListingHash)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Listing not found", "details": err.Error()})
		return
	}

	bid, receipt, err := h.bids.Submit(ctx, listing, req.Bidder, req.ShippingAddress, req.Data)
	if err != nil {
		writeWorkflowError(c, err, gin.H{"bid": bid})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"bid": bid, "receipt": receipt})
}

func (h *Handler) acceptBid(c *gin.Context) {
	h.bidAction(c, h.bids.Accept)
}

func (h *Handler) rejectBid(c *gin.Context) {
	h.bidAction(c, h.bids.Reject)
}

func (h *Handler) cancelBid(c *gin.Context) {
	h.bidAction(c, h.bids.Cancel)
}

func (h *Handler) bidAction(c *gin.Context, action func(ctx context.Context, listing *models.ListingItem, bid *models.Bid) (*models.Bid, *models.SendReceipt, error)) {
	bidID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid bid ID"})
		return
	}

	ctx := c.Request.Context()
	bid, err := h.store.GetBidByID(ctx, bidID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Bid not found", "details": err.Error()})
		return
	}
	listing, err := h.store.GetListingItemByID(ctx, bid.ListingItemID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Listing not found", "details": err.Error()})
		return
	}

	updated, receipt, err := action(ctx, listing, bid)
	if err != nil {
		writeWorkflowError(c, err, gin.H{"bid": updated})
		return
	}
	c.JSON(http.StatusOK, gin.H{"bid": updated, "receipt": receipt})
}

func (h *Handler) getOrderItem(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order item ID"})
		return
	}
	item, err := h.store.GetOrderItemByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Order item not found", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, item)
}

// LockEscrowRequest carries the lock parameters.
type LockEscrowRequest struct {
	Nonce string `json:"nonce" binding:"required"`
	Memo  string `json:"memo,omitempty"`
}

func (h *Handler) lockEscrow(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order item ID"})
		return
	}
	var req LockEscrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	item, receipt, err := h.escrow.Lock(c.Request.Context(), id, req.Nonce, req.Memo)
	if err != nil {
		writeWorkflowError(c, err, gin.H{"order_item": item})
		return
	}
	c.JSON(http.StatusOK, gin.H{"order_item": item, "receipt": receipt})
}

// ReleaseEscrowRequest carries the release memo.
type ReleaseEscrowRequest struct {
	Memo string `json:"memo,omitempty"`
}

func (h *Handler) releaseEscrow(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order item ID"})
		return
	}
	var req ReleaseEscrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	item, receipt, err := h.escrow.Release(c.Request.Context(), id, req.Memo)
	if err != nil {
		writeWorkflowError(c, err, gin.H{"order_item": item})
		return
	}
	c.JSON(http.StatusOK, gin.H{"order_item": item, "receipt": receipt})
}

// RefundEscrowRequest carries the refund parameters.
type RefundEscrowRequest struct {
	Accepted bool   `json:"accepted"`
	Memo     string `json:"memo,omitempty"`
}

func (h *Handler) refundEscrow(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order item ID"})
		return
	}
	var req RefundEscrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	item, receipt, err := h.escrow.Refund(c.Request.Context(), id, req.Accepted, req.Memo)
	if err != nil {
		writeWorkflowError(c, err, gin.H{"order_item": item})
		return
	}
	c.JSON(http.StatusOK, gin.H{"order_item": item, "receipt": receipt})
}

// writeWorkflowError maps workflow errors onto HTTP statuses. extra carries
// any entity that was persisted before the failure (the transport-failure
// case: persisted but undelivered).
func writeWorkflowError(c *gin.Context, err error, extra gin.H) {
	status := http.StatusInternalServerError

	var transition *message.TransitionError
	var state *service.OrderStateError
	var missing *message.MissingFieldError
	var transport *service.TransportError

	switch {
	case errors.As(err, &transition), errors.As(err, &state), errors.Is(err, service.ErrNoValidAcceptance):
		status = http.StatusConflict
	case errors.Is(err, service.ErrNotYourItem):
		status = http.StatusForbidden
	case errors.Is(err, service.ErrBidNotFound), errors.Is(err, service.ErrOwnershipChainIncomplete):
		status = http.StatusNotFound
	case errors.As(err, &missing), errors.Is(err, message.ErrMissingBidder), errors.Is(err, message.ErrMissingListingItem):
		status = http.StatusBadRequest
	case errors.As(err, &transport):
		status = http.StatusBadGateway
	}

	body := gin.H{"error": err.Error()}
	for k, v := range extra {
		if v != nil {
			body[k] = v
		}
	}
	c.JSON(status, body)
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
