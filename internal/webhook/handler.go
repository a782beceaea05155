package webhook

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/asaskevich/govalidator"
	"github.com/go-chi/chi/v5"

	identityservice "idsync/internal/identity/service"
	dErrors "idsync/pkg/domain-errors"
	"idsync/pkg/platform/httputil"
	"idsync/pkg/requestcontext"
)

const (
	headerDeliveryID = "Webhook-Id"
	headerTimestamp  = "Webhook-Timestamp"
	headerSignature  = "Webhook-Signature"

	maxBodyBytes = 1 << 20
)

// Reconciler is the slice of the identity reconciler the adapter drives.
type Reconciler interface {
	SyncUser(ctx context.Context, in identityservice.SyncInput) error
	DeleteUser(ctx context.Context, externalID, eventID string) error
}

// Event is the provider's webhook payload.
type Event struct {
	Type         string `json:"type"`
	ExternalID   string `json:"external_id"`
	PrimaryEmail string `json:"primary_email,omitempty"`
	Username     string `json:"username,omitempty"`
	AvatarURL    string `json:"avatar_url,omitempty"`
}

const (
	EventUserCreated = "user.created"
	EventUserUpdated = "user.updated"
	EventUserDeleted = "user.deleted"
)

type Handler struct {
	logger     *slog.Logger
	reconciler Reconciler
	verifier   SignatureVerifier
}

// New creates a new webhook Handler.
func New(reconciler Reconciler, verifier SignatureVerifier, logger *slog.Logger) *Handler {
	return &Handler{
		logger:     logger,
		reconciler: reconciler,
		verifier:   verifier,
	}
}

// Register registers the webhook route with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/webhooks/identity", h.handleEvent)
}

// handleEvent applies one provider delivery. Any non-2xx response causes the
// provider to redeliver, so only infrastructure failures map to 5xx; payload
// problems are terminal 4xx because redelivering them cannot help.
func (h *Handler) handleEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "failed to read request body"))
		return
	}

	deliveryID := r.Header.Get(headerDeliveryID)
	if err := h.verifier.Verify(deliveryID, r.Header.Get(headerTimestamp), body, r.Header.Get(headerSignature)); err != nil {
		h.logger.WarnContext(ctx, "rejected webhook delivery",
			"request_id", requestID,
			"delivery_id", deliveryID,
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}

	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "malformed event payload"))
		return
	}
	if event.ExternalID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "event has no external_id"))
		return
	}

	switch event.Type {
	case EventUserCreated, EventUserUpdated:
		err = h.applySync(ctx, event, deliveryID)
	case EventUserDeleted:
		err = h.reconciler.DeleteUser(ctx, event.ExternalID, deliveryID)
	default:
		httputil.WriteError(w, dErrors.Newf(dErrors.CodeBadRequest, "unsupported event type %q", event.Type))
		return
	}

	if err != nil {
		httputil.LogError(h.logger, r, requestID, err)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "applied webhook delivery",
		"request_id", requestID,
		"delivery_id", deliveryID,
		"event_type", event.Type,
		"external_id", event.ExternalID,
	)
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "applied"})
}

func (h *Handler) applySync(ctx context.Context, event Event, deliveryID string) error {
	// A create/update without a usable email is a provider contract breach,
	// rejected before the reconciler is involved.
	if event.PrimaryEmail == "" || !govalidator.IsEmail(event.PrimaryEmail) {
		return dErrors.New(dErrors.CodeFailedPrecondition, "create/update event carries no valid email")
	}

	var avatarURL *string
	if event.AvatarURL != "" {
		avatarURL = &event.AvatarURL
	}
	return h.reconciler.SyncUser(ctx, identityservice.SyncInput{
		ExternalID:  event.ExternalID,
		Email:       event.PrimaryEmail,
		DisplayName: event.Username,
		AvatarURL:   avatarURL,
		EventID:     deliveryID,
	})
}
