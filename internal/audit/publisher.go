package audit

import (
	"context"
	"log/slog"
	"time"
)

// Publisher accepts audit events from domain logic. Implementations must not
// block the request path; delivery is best effort and losses are surfaced via
// metrics/logs, never as request failures.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// Sink is the delivery end of the pipeline (Kafka in production).
type Sink interface {
	Append(ctx context.Context, event Event) error
}

// NopPublisher drops all events. Used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) {}

// ChannelPublisher decouples event emission from delivery with a buffered
// inbox drained by a Worker. A full inbox drops the event rather than
// blocking a webhook or validation request.
type ChannelPublisher struct {
	inbox  chan Event
	logger *slog.Logger
}

func NewChannelPublisher(buffer int, logger *slog.Logger) *ChannelPublisher {
	return &ChannelPublisher{
		inbox:  make(chan Event, buffer),
		logger: logger,
	}
}

func (p *ChannelPublisher) Publish(_ context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	select {
	case p.inbox <- event:
	default:
		if p.logger != nil {
			p.logger.Warn("audit inbox full, dropping event",
				"action", event.Action,
				"external_id", event.ExternalID,
			)
		}
	}
}

// Inbox exposes the receive side for the worker.
func (p *ChannelPublisher) Inbox() <-chan Event { return p.inbox }

// Worker consumes audit events from the publisher inbox and hands them to a
// sink. It keeps background processing testable without wiring brokers in
// unit tests.
type Worker struct {
	sink   Sink
	inbox  <-chan Event
	logger *slog.Logger
}

func NewWorker(sink Sink, inbox <-chan Event, logger *slog.Logger) *Worker {
	return &Worker{sink: sink, inbox: inbox, logger: logger}
}

// Run drains the inbox until ctx is cancelled. Sink failures are logged and
// the worker keeps going; audit delivery must never wedge the pipeline.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			if err := w.sink.Append(ctx, event); err != nil && w.logger != nil {
				w.logger.Error("audit sink append failed",
					"action", event.Action,
					"error", err,
				)
			}
		}
	}
}
