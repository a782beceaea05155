// Package provider talks to the identity provider's query API. The session
// validator uses it only for just-in-time provisioning, when a valid token
// arrives before the corresponding creation event has been ingested.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"idsync/internal/platform/config"
	"idsync/pkg/email"
	"idsync/pkg/platform/circuit"
	"idsync/pkg/platform/sentinel"
)

// ErrCircuitOpen is returned without touching the network while the provider
// breaker is open.
var ErrCircuitOpen = errors.New("provider circuit open")

// Profile is the provider's view of a user, fetched from its query API (not
// the event stream).
type Profile struct {
	ExternalID   string `json:"id"`
	PrimaryEmail string `json:"primary_email"`
	Username     string `json:"username,omitempty"`
	FirstName    string `json:"first_name,omitempty"`
	LastName     string `json:"last_name,omitempty"`
	AvatarURL    string `json:"avatar_url,omitempty"`
}

// DisplayName derives a display name: username first, then full name, then a
// name derived from the email local part.
func (p Profile) DisplayName() string {
	if p.Username != "" {
		return p.Username
	}
	if full := strings.TrimSpace(p.FirstName + " " + p.LastName); full != "" {
		return full
	}
	first, last := email.DeriveNameFromEmail(p.PrimaryEmail)
	return strings.TrimSpace(first + " " + last)
}

// ProfileClient fetches provider profiles. Mock implementations back the
// validator's unit tests.
type ProfileClient interface {
	FetchProfile(ctx context.Context, externalID string) (Profile, error)
}

// HTTPClient is the production ProfileClient. A circuit breaker guards the
// provider: after repeated failures calls fail fast with ErrCircuitOpen, and
// one probe per probe interval is let through to test recovery.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
	breaker *circuit.Breaker

	mu        sync.Mutex
	lastProbe time.Time
}

const probeInterval = 30 * time.Second

func NewHTTPClient(cfg config.ProviderConfig) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: circuit.New("provider", circuit.WithFailureThreshold(5)),
	}
}

func (c *HTTPClient) FetchProfile(ctx context.Context, externalID string) (Profile, error) {
	if c.breaker.IsOpen() && !c.probeDue() {
		return Profile{}, ErrCircuitOpen
	}

	profile, err := c.fetch(ctx, externalID)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		c.breaker.RecordFailure()
		return Profile{}, err
	}
	// A 404 is a definitive provider answer, so it counts as healthy.
	c.breaker.RecordSuccess()
	return profile, err
}

// probeDue rations probe calls while the breaker is open.
func (c *HTTPClient) probeDue() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if time.Since(c.lastProbe) < probeInterval {
		return false
	}
	c.lastProbe = time.Now()
	return true
}

func (c *HTTPClient) fetch(ctx context.Context, externalID string) (Profile, error) {
	endpoint := c.baseURL + "/users/" + url.PathEscape(externalID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Profile{}, fmt.Errorf("build profile request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Profile{}, fmt.Errorf("fetch profile: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Profile{}, fmt.Errorf("profile %s: %w", externalID, sentinel.ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return Profile{}, fmt.Errorf("fetch profile: unexpected status %d", resp.StatusCode)
	}

	var profile Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return Profile{}, fmt.Errorf("decode profile: %w", err)
	}
	return profile, nil
}
