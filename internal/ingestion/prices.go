package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"LendCore/internal/observability"
	"LendCore/internal/oracle"
	"LendCore/internal/system"
)

// PriceUpdate is the JSON body oracles publish to lend.prices.updates.{asset}.
type PriceUpdate struct {
	Caller   uuid.UUID `json:"caller"`
	Asset    string    `json:"asset"`
	Price    int64     `json:"price"`
	Decimals uint32    `json:"decimals"`
}

// Submitter is the price admission surface the worker drives.
type Submitter interface {
	Submit(caller uuid.UUID, asset string, price int64, decimals uint32) error
}

// PriceSubscriber feeds candidate prices from JetStream into a worker
// channel.
type PriceSubscriber struct {
	js       jetstream.JetStream
	out      chan<- RawRequest
	logger   zerolog.Logger
	consumer jetstream.ConsumeContext
}

func NewPriceSubscriber(js jetstream.JetStream, out chan<- RawRequest, logger zerolog.Logger) *PriceSubscriber {
	return &PriceSubscriber{js: js, out: out, logger: logger}
}

func (ps *PriceSubscriber) Subscribe(ctx context.Context) error {
	consumer, err := ps.js.CreateOrUpdateConsumer(ctx, "LEND_PRICES", jetstream.ConsumerConfig{
		Durable:       "lend-core-prices",
		FilterSubject: "lend.prices.updates.>",
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return fmt.Errorf("create price consumer: %w", err)
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
		case ps.out <- raw:
		case <-ctx.Done():
			msg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("consume prices: %w", err)
	}
	ps.consumer = cc
	ps.logger.Info().Str("subject", "lend.prices.updates.>").Msg("subscribed")
	return nil
}

func (ps *PriceSubscriber) Stop() {
	if ps.consumer != nil {
		ps.consumer.Stop()
	}
}

// EnsurePriceStream creates the inbound price stream.
func EnsurePriceStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "LEND_PRICES",
		Subjects:  []string{"lend.prices.updates.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create price stream: %w", err)
	}
	return nil
}

// PriceWorker drains candidate prices and runs them through admission.
// Rejections are terminal for the message: the same candidate will never
// pass on redelivery, so every message is ACKed.
type PriceWorker struct {
	in      <-chan RawRequest
	book    Submitter
	logger  zerolog.Logger
	metrics *observability.Metrics
}

func NewPriceWorker(in <-chan RawRequest, book Submitter,
	logger zerolog.Logger, metrics *observability.Metrics) *PriceWorker {
	return &PriceWorker{in: in, book: book, logger: logger, metrics: metrics}
}

func (w *PriceWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-w.in:
			if !ok {
				return nil
			}
			w.handle(raw)
		}
	}
}

func (w *PriceWorker) handle(raw RawRequest) {
	defer raw.AckFunc()

	var u PriceUpdate
	if err := json.Unmarshal(raw.Data, &u); err != nil {
		w.logger.Error().Str("subject", raw.Subject).Err(err).Msg("dropping malformed price update")
		return
	}
	if err := w.book.Submit(u.Caller, u.Asset, u.Price, u.Decimals); err != nil {
		if w.metrics != nil {
			w.metrics.PriceUpdatesRejected.WithLabelValues(u.Asset, admissionReason(err)).Inc()
		}
		w.logger.Warn().
			Str("asset", u.Asset).
			Int64("price", u.Price).
			Err(err).
			Msg("price update rejected")
		return
	}
	if w.metrics != nil {
		w.metrics.PriceUpdatesAccepted.WithLabelValues(u.Asset).Inc()
	}
	w.logger.Debug().Str("asset", u.Asset).Int64("price", u.Price).Msg("price accepted")
}

func admissionReason(err error) string {
	switch {
	case errors.Is(err, oracle.ErrPriceCeiling):
		return "ceiling"
	case errors.Is(err, oracle.ErrPriceDeviation):
		return "deviation"
	case errors.Is(err, oracle.ErrPegDeviation):
		return "peg"
	case errors.Is(err, oracle.ErrDecimalsOutOfRange):
		return "decimals"
	case errors.Is(err, system.ErrUnauthorized):
		return "unauthorized"
	default:
		return "other"
	}
}
