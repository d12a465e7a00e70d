package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"LendCore/internal/event"
	"LendCore/internal/observability"
)

// OutboundMessage is the wire form of one telemetry envelope. Subjects
// follow the pattern lend.core.events.{kind}.
type OutboundMessage struct {
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// Publisher forwards telemetry envelopes to NATS JetStream. Publish is
// non-blocking: the orchestrator's best-effort path must never stall on a
// slow broker, so a full buffer drops the envelope and reports an error.
type Publisher struct {
	js      jetstream.JetStream
	in      chan event.Envelope
	logger  zerolog.Logger
	metrics *observability.Metrics
}

// NewPublisher creates a publisher with the given channel capacity.
func NewPublisher(js jetstream.JetStream, buffer int, logger zerolog.Logger, metrics *observability.Metrics) *Publisher {
	if buffer <= 0 {
		buffer = 1024
	}
	return &Publisher{
		js:      js,
		in:      make(chan event.Envelope, buffer),
		logger:  logger,
		metrics: metrics,
	}
}

// Publish queues an envelope for the outbound loop.
func (p *Publisher) Publish(e event.Envelope) error {
	select {
	case p.in <- e:
		return nil
	default:
		if p.metrics != nil {
			p.metrics.PublishDrops.Inc()
		}
		return fmt.Errorf("sink: publish buffer full, dropped %s", e.Kind)
	}
}

// Run drains the queue until ctx is canceled. Publish failures are logged
// and skipped; downstream consumers tolerate gaps.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-p.in:
			if !ok {
				return nil
			}
			if err := p.publish(ctx, e); err != nil {
				p.logger.Warn().Str("kind", e.Kind.String()).Err(err).Msg("outbound publish failed")
				continue
			}
			if p.metrics != nil {
				p.metrics.EventsPublished.WithLabelValues(e.Kind.String()).Inc()
			}
		}
	}
}

func (p *Publisher) publish(ctx context.Context, e event.Envelope) error {
	data, err := json.Marshal(OutboundMessage{
		Kind:      e.Kind.String(),
		Payload:   e.Payload,
		Timestamp: e.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	subject := fmt.Sprintf("lend.core.events.%s", e.Kind)
	_, err = p.js.Publish(ctx, subject, data)
	return err
}

// EnsureEventStream creates the outbound events stream.
func EnsureEventStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "LEND_CORE_EVENTS",
		Subjects:  []string{"lend.core.events.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create events stream: %w", err)
	}
	return nil
}
