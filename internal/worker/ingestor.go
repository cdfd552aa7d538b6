// Package worker hosts the single consumer of the inbound smsg stream. Every
// received message is applied exactly once, through one serialized dispatch
// point, or dropped.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"market-service/internal/message"
	"market-service/internal/models"
	"market-service/internal/service"
	"market-service/internal/smsg"
	"market-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventHandler applies one inbound marketplace event.
type EventHandler interface {
	OnReceived(ctx context.Context, event *models.MarketplaceEvent) error
}

// Dedup is the durable processed-message record. *store.Store satisfies it.
type Dedup interface {
	IsMessageProcessed(ctx context.Context, msgID string) (bool, error)
	MarkMessageProcessed(ctx context.Context, msgID, action string) error
}

// SeenCache is the fast-path dedup in front of Dedup. *redisclient.Client
// satisfies it.
type SeenCache interface {
	IsMessageSeen(ctx context.Context, msgID string) (bool, error)
	MarkMessageSeen(ctx context.Context, msgID string, ttl time.Duration) error
}

// Ingestor routes inbound marketplace events to the bid and escrow workflows.
type Ingestor struct {
	consumer *smsg.Consumer
	handlers map[string]EventHandler
	dedup    Dedup
	seen     SeenCache
	seenTTL  time.Duration
	logger   *zap.Logger
}

// NewIngestor creates the ingestor with its static action registry. seen may
// be nil; dedup then carries the whole load.
func NewIngestor(consumer *smsg.Consumer, bids EventHandler, escrow EventHandler, dedup Dedup, seen SeenCache, seenTTL time.Duration) *Ingestor {
	return &Ingestor{
		consumer: consumer,
		handlers: map[string]EventHandler{
			string(models.BidActionBid):        bids,
			string(models.BidActionAccept):     bids,
			string(models.BidActionReject):     bids,
			string(models.BidActionCancel):     bids,
			string(models.EscrowActionLock):    escrow,
			string(models.EscrowActionRelease): escrow,
			string(models.EscrowActionRefund):  escrow,
		},
		dedup:   dedup,
		seen:    seen,
		seenTTL: seenTTL,
		logger:  util.GetLogger(),
	}
}

// Start starts consuming the inbound stream
func (i *Ingestor) Start(ctx context.Context) error {
	i.logger.Info("Starting marketplace event ingestor")
	return i.consumer.StartConsuming(ctx, i.handleMessage)
}

// Stop stops the ingestor
func (i *Ingestor) Stop() error {
	i.logger.Info("Stopping marketplace event ingestor")
	return i.consumer.Close()
}

func (i *Ingestor) handleMessage(ctx context.Context, msg kafka.Message) error {
	var event models.MarketplaceEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		i.logger.Error("Dropping undecodable message", zap.Error(err))
		util.EventsDroppedTotal.WithLabelValues("undecodable").Inc()
		return nil
	}
	return i.HandleEvent(ctx, &event)
}

// HandleEvent applies one inbound event. Validation failures are logged and
// dropped so that a redelivering or reordering transport cannot crash the
// ingestor or corrupt local state; only transient failures propagate.
func (i *Ingestor) HandleEvent(ctx context.Context, event *models.MarketplaceEvent) error {
	msgID := event.SmsgMessage.MsgID
	if msgID == "" {
		i.logger.Warn("Dropping message without msgid", zap.String("action", event.Action))
		util.EventsDroppedTotal.WithLabelValues("no_msgid").Inc()
		return nil
	}

	handler, ok := i.handlers[event.Action]
	if !ok {
		i.logger.Warn("Dropping message with unknown action",
			zap.String("action", event.Action),
			zap.String("msgid", msgID))
		util.EventsDroppedTotal.WithLabelValues("unknown_action").Inc()
		return nil
	}

	if i.seen != nil {
		seen, err := i.seen.IsMessageSeen(ctx, msgID)
		if err != nil {
			i.logger.Warn("Seen-cache check failed, falling back to store",
				zap.String("msgid", msgID), zap.Error(err))
		} else if seen {
			util.EventsDroppedTotal.WithLabelValues("duplicate").Inc()
			return nil
		}
	}

	processed, err := i.dedup.IsMessageProcessed(ctx, msgID)
	if err != nil {
		return err
	}
	if processed {
		i.logger.Info("Message already processed", zap.String("msgid", msgID))
		util.EventsDroppedTotal.WithLabelValues("duplicate").Inc()
		return nil
	}

	if err := handler.OnReceived(ctx, event); err != nil {
		reason, drop := dropReason(err)
		if !drop {
			return err
		}
		i.logger.Warn("Dropping invalid inbound event",
			zap.String("action", event.Action),
			zap.String("msgid", msgID),
			zap.String("reason", reason),
			zap.Error(err))
		util.EventsDroppedTotal.WithLabelValues(reason).Inc()
	} else {
		util.EventsIngestedTotal.WithLabelValues(event.Action).Inc()
	}

	// Dropped events are recorded too: the policy is drop, not retry.
	if err := i.dedup.MarkMessageProcessed(ctx, msgID, event.Action); err != nil {
		i.logger.Error("Failed to mark message processed",
			zap.String("msgid", msgID), zap.Error(err))
	}
	if i.seen != nil {
		if err := i.seen.MarkMessageSeen(ctx, msgID, i.seenTTL); err != nil {
			i.logger.Warn("Failed to mark message seen",
				zap.String("msgid", msgID), zap.Error(err))
		}
	}
	return nil
}

// dropReason classifies handler errors into drop-and-log versus propagate.
func dropReason(err error) (string, bool) {
	var transition *message.TransitionError
	if errors.As(err, &transition) {
		return "invalid_transition", true
	}
	if errors.Is(err, service.ErrOwnershipChainIncomplete) {
		return "chain_incomplete", true
	}
	var state *service.OrderStateError
	if errors.As(err, &state) {
		return "invalid_order_state", true
	}
	if errors.Is(err, service.ErrNoValidAcceptance) {
		return "no_acceptance", true
	}
	var missing *message.MissingFieldError
	if errors.As(err, &missing) {
		return "missing_field", true
	}
	if errors.Is(err, message.ErrMissingBidder) || errors.Is(err, message.ErrMissingListingItem) {
		return "validation", true
	}
	return "", false
}
