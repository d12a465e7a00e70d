package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// RawRequest is a parsed-but-untyped message from NATS, ready for the worker
// to validate and execute.
type RawRequest struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
	AckFunc   func()
	NakFunc   func()
}

// RequestSubscriber feeds liquidation requests from JetStream into the
// worker channel. Keepers publish to lend.liquidations.requests.{asset}.
type RequestSubscriber struct {
	js       jetstream.JetStream
	out      chan<- RawRequest
	logger   zerolog.Logger
	consumer jetstream.ConsumeContext
}

func NewRequestSubscriber(js jetstream.JetStream, out chan<- RawRequest, logger zerolog.Logger) *RequestSubscriber {
	return &RequestSubscriber{js: js, out: out, logger: logger}
}

// Subscribe creates the durable consumer. Explicit ACK, max_deliver=5,
// ack_wait=30s.
func (rs *RequestSubscriber) Subscribe(ctx context.Context) error {
	consumer, err := rs.js.CreateOrUpdateConsumer(ctx, "LEND_LIQUIDATIONS", jetstream.ConsumerConfig{
		Durable:       "lend-core-liquidations",
		FilterSubject: "lend.liquidations.requests.>",
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		raw := RawRequest{
			Subject:   msg.Subject(),
			Data:      msg.Data(),
			Timestamp: time.Now(),
			AckFunc:   func() { msg.Ack() },
			NakFunc:   func() { msg.Nak() },
		}
		select {
		case rs.out <- raw:
		case <-ctx.Done():
			msg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	rs.consumer = cc
	rs.logger.Info().Str("subject", "lend.liquidations.requests.>").Msg("subscribed")
	return nil
}

// Stop gracefully stops the consumer.
func (rs *RequestSubscriber) Stop() {
	if rs.consumer != nil {
		rs.consumer.Stop()
	}
}

// EnsureRequestStream creates the inbound requests stream.
func EnsureRequestStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "LEND_LIQUIDATIONS",
		Subjects:  []string{"lend.liquidations.requests.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create requests stream: %w", err)
	}
	return nil
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string, logger zerolog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info().Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}
	return nc, js, nil
}
