package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idsync/internal/platform/config"
	"idsync/pkg/platform/sentinel"
)

func TestFetchProfile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/users/u1":
			_ = json.NewEncoder(w).Encode(Profile{
				ExternalID:   "u1",
				PrimaryEmail: "a@x.com",
				Username:     "alice",
			})
		case "/users/missing":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	client := NewHTTPClient(config.ProviderConfig{
		BaseURL: srv.URL,
		Token:   "secret",
		Timeout: time.Second,
	})
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		profile, err := client.FetchProfile(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "u1", profile.ExternalID)
		assert.Equal(t, "a@x.com", profile.PrimaryEmail)
	})

	t.Run("not found maps to sentinel", func(t *testing.T) {
		_, err := client.FetchProfile(ctx, "missing")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("server failure is an error", func(t *testing.T) {
		_, err := client.FetchProfile(ctx, "boom")
		require.Error(t, err)
		assert.NotErrorIs(t, err, sentinel.ErrNotFound)
	})
}

func TestFetchProfile_CircuitOpensOnRepeatedFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewHTTPClient(config.ProviderConfig{BaseURL: srv.URL, Timeout: time.Second})
	ctx := context.Background()

	// Five failures trip the breaker; the sixth call is the allowed probe.
	for i := 0; i < 6; i++ {
		_, err := client.FetchProfile(ctx, "u1")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrCircuitOpen)
	}

	_, err := client.FetchProfile(ctx, "u1")
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestProfileDisplayName(t *testing.T) {
	tests := []struct {
		name    string
		profile Profile
		want    string
	}{
		{"username wins", Profile{Username: "alice", FirstName: "A", PrimaryEmail: "a@x.com"}, "alice"},
		{"full name next", Profile{FirstName: "Alice", LastName: "Smith", PrimaryEmail: "a@x.com"}, "Alice Smith"},
		{"first name only", Profile{FirstName: "Alice", PrimaryEmail: "a@x.com"}, "Alice"},
		{"derived from email last", Profile{PrimaryEmail: "ada.lovelace@x.com"}, "Ada Lovelace"},
		{"short email local part", Profile{PrimaryEmail: "a@x.com"}, "A User"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.profile.DisplayName())
		})
	}
}
