package service

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// eventBatchTimeout bounds how long a single notification may take
const eventBatchTimeout = 5 * time.Minute

// EventSubscriber feeds storage notifications published on a NATS subject
// into an EventRouter.
type EventSubscriber struct {
	conn *nats.Conn
	sub  *nats.Subscription
}

// SubscribeEvents connects to url and routes every message on subject.
// Messages are handled one at a time, in order of arrival.
func SubscribeEvents(url, subject string, router *EventRouter) (*EventSubscriber, error) {
	conn, err := nats.Connect(url,
		nats.Name("photo-api"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			zap.L().Warn("Disconnected from NATS", zap.Error(err))
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			zap.L().Info("Reconnected to NATS", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats, %w", err)
	}

	sub, err := conn.Subscribe(subject, func(msg *nats.Msg) {
		handleEventMessage(router, msg.Data)
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to subscribe to %s, %w", subject, err)
	}

	zap.L().Info("Listening for storage events", zap.String("subject", subject))

	return &EventSubscriber{conn: conn, sub: sub}, nil
}

func handleEventMessage(router *EventRouter, data []byte) BatchReport {
	records, err := ParseS3Event(data)
	if err != nil {
		// A poison message is dropped, redelivering it would fail the same way
		zap.L().Warn("Dropping malformed storage event", zap.Error(err))
		return BatchReport{}
	}

	ctx, cancel := context.WithTimeout(context.Background(), eventBatchTimeout)
	defer cancel()

	report := router.HandleBatch(ctx, records)
	zap.L().Debug("Handled storage event batch",
		zap.Int("received", report.Received),
		zap.Int("processed", report.Processed),
		zap.Int("failed", report.Failed),
	)

	return report
}

// Close stops the subscription and drains in-flight messages.
func (s *EventSubscriber) Close() error {
	if err := s.sub.Unsubscribe(); err != nil {
		zap.L().Warn("Failed to unsubscribe from storage events", zap.Error(err))
	}

	return s.conn.Drain()
}
