// Package smsg carries marketplace messages over the store-and-forward
// secure-messaging network. Kafka provides the store-and-forward semantics:
// delivery may be delayed, retried or duplicated, never assumed ordered.
package smsg

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"market-service/internal/models"
	"market-service/internal/util"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Transport sends outbound marketplace messages.
type Transport struct {
	writer       *kafka.Writer
	localAddress string
	logger       *zap.Logger
}

// NewTransport creates a transport publishing to the outbound topic.
// localAddress is this node's messaging address, stamped as sender.
func NewTransport(brokers []string, topic, localAddress string) *Transport {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}

	return &Transport{
		writer:       writer,
		localAddress: localAddress,
		logger:       util.GetLogger(),
	}
}

// Send envelopes a marketplace message and hands it to the network. The
// returned receipt carries the assigned message ID.
func (t *Transport) Send(ctx context.Context, msg *models.MarketplaceMessage, recipient string) (*models.SendReceipt, error) {
	now := time.Now()
	event := models.MarketplaceEvent{
		Action: msg.Action,
		SmsgMessage: models.SmsgMessage{
			MsgID: uuid.New().String(),
			From:  t.localAddress,
			To:    recipient,
			Sent:  now,
		},
		MarketplaceMessage: *msg,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}

	start := time.Now()
	err = t.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(recipient),
		Value: payload,
		Time:  now,
	})
	util.SmsgSendLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("failed to deliver message: %w", err)
	}

	t.logger.Debug("Message sent",
		zap.String("msgid", event.SmsgMessage.MsgID),
		zap.String("action", msg.Action),
		zap.String("recipient", recipient))

	return &models.SendReceipt{
		MsgID:     event.SmsgMessage.MsgID,
		Recipient: recipient,
		SentAt:    now,
	}, nil
}

// Close closes the transport
func (t *Transport) Close() error {
	return t.writer.Close()
}

// Consumer reads inbound marketplace messages from the network.
type Consumer struct {
	reader *kafka.Reader
}

// NewConsumer creates a consumer on the inbound topic
func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
		StartOffset:    kafka.FirstOffset,
	})

	return &Consumer{reader: reader}
}

// MessageHandler is a function type for handling raw inbound messages
type MessageHandler func(ctx context.Context, msg kafka.Message) error

// StartConsuming fetches messages one at a time and commits each after the
// handler returns nil. A handler error leaves the message uncommitted.
func (c *Consumer) StartConsuming(ctx context.Context, handler MessageHandler) error {
	logger := util.GetLogger()
	logger.Info("Starting smsg consumer", zap.String("topic", c.reader.Config().Topic))

	for {
		select {
		case <-ctx.Done():
			logger.Info("Consumer context cancelled, stopping")
			return ctx.Err()
		default:
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				logger.Error("Error fetching message", zap.Error(err))
				time.Sleep(time.Second)
				continue
			}

			if err := handler(ctx, msg); err != nil {
				logger.Error("Error handling message", zap.Error(err))
				continue
			}

			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				logger.Error("Error committing message", zap.Error(err))
			}
		}
	}
}

// Close closes the consumer
func (c *Consumer) Close() error {
	return c.reader.Close()
}
