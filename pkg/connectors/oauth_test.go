package connectors

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relayforge/relayforge/pkg/models"
)

func newTestOAuthService(tokenURL string) (*OAuthService, *testInstallationRepository, *testSecretStore) {
	registry := NewRegistry()
	registry.Register(&Definition{
		Slug: "hubspot",
		Name: "HubSpot",
		Kind: models.ConnectorKindCRM,
		OAuth: &OAuthEndpoints{
			AuthURL:  "https://provider.test/authorize",
			TokenURL: tokenURL,
		},
	})

	installations := newTestInstallationRepository()
	secretStore := newTestSecretStore()
	gateway := NewGateway(slog.Default(), registry, installations, secretStore)

	service := NewOAuthService(slog.Default(), gateway, map[string]OAuthClient{
		"hubspot": {ClientID: "cid", ClientSecret: "csecret"},
	})

	return service, installations, secretStore
}

func TestOAuthService_AuthorizeBuildsStatefulURL(t *testing.T) {
	service, _, _ := newTestOAuthService("https://provider.test/token")

	authURL, err := service.Authorize(context.Background(), "T1", "hubspot", "https://app.test/cb", false)
	require.NoError(t, err)

	assert.Contains(t, authURL, "https://provider.test/authorize")
	assert.Contains(t, authURL, "state=T1%3Ahubspot%3A")
	assert.Contains(t, authURL, "client_id=cid")
}

func TestOAuthService_CallbackRejectsForeignState(t *testing.T) {
	service, installations, _ := newTestOAuthService("https://provider.test/token")

	tests := []string{
		"T2:hubspot:nonce",   // another tenant
		"T1:mailchimp:nonce", // another connector
		"garbage",
		"",
	}

	for _, state := range tests {
		_, err := service.Callback(context.Background(), "T1", "hubspot", "https://app.test/cb", "code", state)
		require.Error(t, err, "state %q must be rejected", state)
		assert.True(t, IsInvalidOAuthState(err))
	}

	// No installation may exist after rejected callbacks.
	assert.Empty(t, installations.installations)
}

func TestOAuthService_CallbackExchangesAndInstalls(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization-code", r.FormValue("code"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at-1","refresh_token":"rt-1","token_type":"bearer","expires_in":3600}`))
	}))
	defer provider.Close()

	service, _, secretStore := newTestOAuthService(provider.URL + "/token")

	state := BuildState("T1", "hubspot", false)

	installation, err := service.Callback(context.Background(), "T1", "hubspot", "https://app.test/cb", "authorization-code", state)
	require.NoError(t, err)

	assert.Equal(t, models.InstallationStatusConnected, installation.Status)
	assert.Empty(t, installation.PublicConfig)

	bundle := secretStore.secrets["tenants/T1/connectors/hubspot"]
	require.NotNil(t, bundle)
	assert.Equal(t, "at-1", bundle["access_token"])
	assert.Equal(t, "rt-1", bundle["refresh_token"])
	assert.NotEmpty(t, bundle["token_expiry"])
}

func TestOAuthService_RefreshRejectionDisconnectsInstallation(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer provider.Close()

	service, installations, _ := newTestOAuthService(provider.URL + "/token")

	installation, err := service.gateway.Install(context.Background(), "T1", "hubspot", map[string]string{
		"access_token":  "at-old",
		"refresh_token": "rt-revoked",
	})
	require.NoError(t, err)
	require.Equal(t, models.InstallationStatusConnected, installation.Status)

	refreshed, err := service.RefreshTenant(context.Background(), "T1")
	require.NoError(t, err)
	assert.Zero(t, refreshed)
	assert.Equal(t, models.InstallationStatusDisconnected, installations.installations[installation.ID].Status)
}

func TestBuildState_EmbedsUnguessableNonce(t *testing.T) {
	first := BuildState("T", "hubspot", false)
	second := BuildState("T", "hubspot", false)

	assert.NotEqual(t, first, second)
	assert.True(t, strings.HasPrefix(first, "T:hubspot:"))

	onboarding := BuildState("T", "hubspot", true)
	assert.True(t, strings.HasPrefix(onboarding, "T:hubspot:onboarding:"))
}
