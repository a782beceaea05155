// Package service implements the identity reconciler: idempotent,
// order-tolerant application of provider events to the identity record store.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"idsync/internal/audit"
	"idsync/internal/identity"
	"idsync/internal/identity/ledger"
	"idsync/internal/identity/metrics"
	dErrors "idsync/pkg/domain-errors"
	"idsync/pkg/requestcontext"
)

// SyncInput carries one create/update event. EventID is the provider's
// delivery id; it is empty for just-in-time provisioning, which is not
// event-sourced and therefore not marker-gated.
type SyncInput struct {
	ExternalID  string
	Email       string
	DisplayName string
	AvatarURL   *string
	EventID     string
}

type Service struct {
	users   identity.UserStore
	ledger  ledger.Ledger
	logger  *slog.Logger
	metrics *metrics.Metrics
	audit   audit.Publisher
	tracer  trace.Tracer
	newID   func() uuid.UUID
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithAuditPublisher(publisher audit.Publisher) Option {
	return func(s *Service) { s.audit = publisher }
}

// WithIDGenerator overrides internal id generation. Test helper.
func WithIDGenerator(gen func() uuid.UUID) Option {
	return func(s *Service) { s.newID = gen }
}

func New(users identity.UserStore, eventLedger ledger.Ledger, opts ...Option) (*Service, error) {
	if users == nil {
		return nil, fmt.Errorf("user store is required")
	}
	if eventLedger == nil {
		return nil, fmt.Errorf("event ledger is required")
	}

	svc := &Service{
		users:  users,
		ledger: eventLedger,
		audit:  audit.NopPublisher{},
		tracer: otel.Tracer("idsync/identity"),
		newID: func() uuid.UUID {
			// UUIDv7 keeps internal ids monotonically sortable by creation time.
			return uuid.Must(uuid.NewV7())
		},
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// SyncUser applies a create/update event (or a JIT provision when EventID is
// empty). The upsert is atomic on external id and unconditionally clears the
// soft-delete marker: any successful create/update reactivates a deleted
// identity, because provider delivery order is not guaranteed. The
// processed-event marker is written only after the upsert commits.
func (s *Service) SyncUser(ctx context.Context, in SyncInput) error {
	ctx, span := s.tracer.Start(ctx, "identity.SyncUser",
		trace.WithAttributes(attribute.String("identity.external_id", in.ExternalID)))
	defer span.End()

	if in.ExternalID == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "external_id is required")
	}
	if in.Email == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "email is required")
	}

	start := time.Now()
	defer func() { s.metrics.ObserveApplyLatency("sync", time.Since(start)) }()

	if in.EventID != "" {
		seen, err := s.ledger.Seen(ctx, in.EventID)
		if err != nil {
			s.metrics.IncrementOutcome("sync", "error")
			return dErrors.Wrap(err, dErrors.CodeInternal, "event ledger unavailable")
		}
		if seen {
			s.metrics.IncrementOutcome("sync", "duplicate")
			s.log(ctx, slog.LevelDebug, "duplicate event delivery ignored",
				"event_id", in.EventID, "external_id", in.ExternalID)
			return nil
		}
	}

	now := requestcontext.Now(ctx).UTC()
	user, resurrected, err := s.users.Upsert(ctx, identity.UpsertUser{
		ID:          s.newID(),
		ExternalID:  in.ExternalID,
		Email:       in.Email,
		DisplayName: in.DisplayName,
		AvatarURL:   in.AvatarURL,
		Now:         now,
	})
	if err != nil {
		s.metrics.IncrementOutcome("sync", "error")
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to upsert user")
	}

	if in.EventID != "" {
		if err := s.ledger.Mark(ctx, in.EventID); err != nil {
			// The upsert committed; a lost marker only means a redundant
			// re-application if the provider redelivers.
			s.metrics.IncrementOutcome("sync", "error")
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record event marker")
		}
	}

	action := audit.ActionUserSynced
	switch {
	case in.EventID == "":
		action = audit.ActionUserProvisioned
	case resurrected:
		action = audit.ActionUserResurrected
	}
	s.audit.Publish(ctx, audit.Event{
		Action:     action,
		ExternalID: in.ExternalID,
		UserID:     user.ID.String(),
		EventID:    in.EventID,
		RequestID:  requestcontext.RequestID(ctx),
	})

	s.metrics.IncrementOutcome("sync", "applied")
	s.log(ctx, slog.LevelInfo, "user synced",
		"external_id", in.ExternalID,
		"user_id", user.ID,
		"event_id", in.EventID,
		"resurrected", resurrected,
	)
	return nil
}

// DeleteUser applies a delete event. Deletes are always event-sourced, so the
// delivery id is mandatory. A delete arriving before any creation is a
// legitimate provider race: it succeeds as a no-op and still records its
// marker, so a retry of the same stale delete cannot undo an out-of-order
// creation applied in between.
func (s *Service) DeleteUser(ctx context.Context, externalID, eventID string) error {
	ctx, span := s.tracer.Start(ctx, "identity.DeleteUser",
		trace.WithAttributes(attribute.String("identity.external_id", externalID)))
	defer span.End()

	if externalID == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "external_id is required")
	}
	if eventID == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "event_id is required")
	}

	start := time.Now()
	defer func() { s.metrics.ObserveApplyLatency("delete", time.Since(start)) }()

	seen, err := s.ledger.Seen(ctx, eventID)
	if err != nil {
		s.metrics.IncrementOutcome("delete", "error")
		return dErrors.Wrap(err, dErrors.CodeInternal, "event ledger unavailable")
	}
	if seen {
		s.metrics.IncrementOutcome("delete", "duplicate")
		s.log(ctx, slog.LevelDebug, "duplicate delete delivery ignored",
			"event_id", eventID, "external_id", externalID)
		return nil
	}

	now := requestcontext.Now(ctx).UTC()
	matched, err := s.users.SoftDelete(ctx, externalID, now)
	if err != nil {
		s.metrics.IncrementOutcome("delete", "error")
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to soft-delete user")
	}

	if err := s.ledger.Mark(ctx, eventID); err != nil {
		s.metrics.IncrementOutcome("delete", "error")
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record event marker")
	}

	s.audit.Publish(ctx, audit.Event{
		Action:     audit.ActionUserDeleted,
		ExternalID: externalID,
		EventID:    eventID,
		RequestID:  requestcontext.RequestID(ctx),
	})

	result := "applied"
	if !matched {
		result = "missing"
	}
	s.metrics.IncrementOutcome("delete", result)
	s.log(ctx, slog.LevelInfo, "user delete applied",
		"external_id", externalID,
		"event_id", eventID,
		"matched", matched,
	)
	return nil
}

func (s *Service) log(ctx context.Context, level slog.Level, msg string, args ...any) {
	if s.logger != nil {
		s.logger.Log(ctx, level, msg, args...)
	}
}
