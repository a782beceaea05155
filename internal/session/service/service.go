// Package service implements the session validator: credential verification,
// cache-backed result reuse, just-in-time provisioning, and ban/scope checks.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"idsync/internal/identity"
	identityservice "idsync/internal/identity/service"
	"idsync/internal/provider"
	"idsync/internal/session"
	"idsync/internal/session/cache"
	"idsync/internal/session/metrics"
	dErrors "idsync/pkg/domain-errors"
	"idsync/pkg/platform/sentinel"
)

// TokenVerifier is the trusted credential verification primitive. It either
// returns the verified subject external id or fails.
type TokenVerifier interface {
	Verify(credential string) (subject string, err error)
}

// Reconciler is the slice of the identity reconciler the validator needs for
// just-in-time provisioning.
type Reconciler interface {
	SyncUser(ctx context.Context, in identityservice.SyncInput) error
}

type Service struct {
	cache       cache.ResultCache
	verifier    TokenVerifier
	users       identity.UserStore
	memberships identity.MembershipStore
	reconciler  Reconciler
	profiles    provider.ProfileClient
	logger      *slog.Logger
	metrics     *metrics.Metrics
	tracer      trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func New(
	resultCache cache.ResultCache,
	verifier TokenVerifier,
	users identity.UserStore,
	memberships identity.MembershipStore,
	reconciler Reconciler,
	profiles provider.ProfileClient,
	opts ...Option,
) (*Service, error) {
	if resultCache == nil {
		return nil, fmt.Errorf("result cache is required")
	}
	if verifier == nil {
		return nil, fmt.Errorf("token verifier is required")
	}
	if users == nil {
		return nil, fmt.Errorf("user store is required")
	}
	if memberships == nil {
		return nil, fmt.Errorf("membership store is required")
	}
	if reconciler == nil {
		return nil, fmt.Errorf("reconciler is required")
	}
	if profiles == nil {
		return nil, fmt.Errorf("profile client is required")
	}

	svc := &Service{
		cache:       resultCache,
		verifier:    verifier,
		users:       users,
		memberships: memberships,
		reconciler:  reconciler,
		profiles:    profiles,
		tracer:      otel.Tracer("idsync/session"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Validate answers "is this credential a valid session, and for whom". The
// cached result is returned verbatim on a hit with no re-verification; that
// is the explicit latency/consistency trade-off, bounded by the cache TTL.
// Authentication failures and authorization denials are payload outcomes
// (Valid=false plus a Reason), never errors. Errors mean infrastructure
// failed and the caller may retry.
func (s *Service) Validate(ctx context.Context, credential, requiredScope string) (*session.Result, error) {
	ctx, span := s.tracer.Start(ctx, "session.Validate")
	defer span.End()

	if credential == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "credential is required")
	}
	resourceID, err := parseScope(requiredScope)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() { s.metrics.ObserveValidateLatency(time.Since(start)) }()

	fingerprint := session.Fingerprint(credential)

	cached, err := s.cache.Get(ctx, fingerprint)
	switch {
	case err == nil:
		s.metrics.IncrementOutcome("cache_hit")
		span.SetAttributes(attribute.String("session.outcome", "cache_hit"))
		return &cached, nil
	case errors.Is(err, sentinel.ErrNotFound):
		// Plain miss, fall through to full verification.
	default:
		// A cache store hiccup must not fail validation; full verification
		// covers correctness and the failure is surfaced via metrics.
		s.metrics.IncrementCacheDegraded()
		s.log(ctx, slog.LevelWarn, "session cache read failed, degrading to full verification", "error", err)
	}

	subject, err := s.verifier.Verify(credential)
	if err != nil {
		s.metrics.IncrementOutcome("invalid")
		span.SetAttributes(attribute.String("session.outcome", "invalid"))
		return &session.Result{Valid: false, Reason: session.ReasonInvalidCredential}, nil
	}

	record, err := s.loadOrProvision(ctx, subject)
	if err != nil {
		s.metrics.IncrementOutcome("error")
		return nil, err
	}

	if record.DeletedAt != nil {
		s.metrics.IncrementOutcome("banned")
		span.SetAttributes(attribute.String("session.outcome", "banned"))
		return &session.Result{Valid: false, Reason: session.ReasonBanned}, nil
	}

	if resourceID != "" {
		role, err := s.memberships.FindRole(ctx, record.ID, resourceID)
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			s.metrics.IncrementOutcome("error")
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load membership")
		}
		if err == nil && role == identity.RoleBanned {
			s.metrics.IncrementOutcome("scope_denied")
			span.SetAttributes(attribute.String("session.outcome", "scope_denied"))
			return &session.Result{Valid: false, Reason: session.ReasonScopeDenied}, nil
		}
	}

	result := buildResult(record)
	if err := s.cache.Set(ctx, fingerprint, *result); err != nil {
		// Write-back is best effort: the result is correct, only reuse is lost.
		s.log(ctx, slog.LevelWarn, "session cache write failed", "error", err)
	}

	s.metrics.IncrementOutcome("valid")
	span.SetAttributes(attribute.String("session.outcome", "valid"))
	return result, nil
}

// loadOrProvision looks up the record for the verified subject, provisioning
// it just in time when the token outran the provider's event delivery. The
// provision goes through the reconciler with no event id, so it is not
// marker-gated; the next provider event converges the record naturally. Both
// of two concurrent racers may provision; the upsert makes that safe.
func (s *Service) loadOrProvision(ctx context.Context, subject string) (identity.User, error) {
	record, err := s.users.FindByExternalID(ctx, subject)
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return identity.User{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load identity record")
	}

	s.metrics.IncrementJITProvisions()
	s.log(ctx, slog.LevelInfo, "provisioning identity record just in time", "external_id", subject)

	profile, err := s.profiles.FetchProfile(ctx, subject)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return identity.User{}, dErrors.New(dErrors.CodeFailedPrecondition, "subject unknown to identity provider")
		}
		return identity.User{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to fetch provider profile")
	}
	if profile.PrimaryEmail == "" {
		return identity.User{}, dErrors.New(dErrors.CodeFailedPrecondition, "provider profile has no email")
	}

	var avatarURL *string
	if profile.AvatarURL != "" {
		avatarURL = &profile.AvatarURL
	}
	if err := s.reconciler.SyncUser(ctx, identityservice.SyncInput{
		ExternalID:  subject,
		Email:       profile.PrimaryEmail,
		DisplayName: profile.DisplayName(),
		AvatarURL:   avatarURL,
	}); err != nil {
		return identity.User{}, err
	}

	record, err = s.users.FindByExternalID(ctx, subject)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			// The upsert committed, so the record must be readable. Absence
			// here is a store read-after-write anomaly, not event lag.
			return identity.User{}, dErrors.New(dErrors.CodeInternal, "identity record absent after provisioning")
		}
		return identity.User{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load identity record")
	}
	return record, nil
}

func buildResult(record identity.User) *session.Result {
	result := &session.Result{
		Valid:       true,
		SubjectID:   record.ExternalID,
		DisplayName: record.DisplayName,
		Attributes: map[string]string{
			"internal_id": record.ID.String(),
			"email":       record.Email,
		},
	}
	if record.AvatarURL != nil {
		result.AvatarURL = *record.AvatarURL
	}
	return result
}

// parseScope splits a "<resourceKind>:<resourceId>" scope. An empty scope is
// allowed and means no membership check.
func parseScope(scope string) (resourceID string, err error) {
	if scope == "" {
		return "", nil
	}
	kind, id, found := strings.Cut(scope, ":")
	if !found || kind == "" || id == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "required_scope must have the form <resourceKind>:<resourceId>")
	}
	return id, nil
}

func (s *Service) log(ctx context.Context, level slog.Level, msg string, args ...any) {
	if s.logger != nil {
		s.logger.Log(ctx, level, msg, args...)
	}
}
