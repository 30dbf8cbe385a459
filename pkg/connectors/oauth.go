package connectors

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/relayforge/relayforge/pkg/models"
)

// OAuthClient holds the deployment's client credentials for one provider.
type OAuthClient struct {
	ClientID     string
	ClientSecret string
}

// OAuthService drives the two-state authorize/callback flow. State tokens
// encode tenant:connector (optionally :onboarding) plus an unguessable
// nonce; the callback accepts only states carrying the expected prefix.
type OAuthService struct {
	gateway *Gateway
	clients map[string]OAuthClient
	logger  *slog.Logger
}

// NewOAuthService creates an OAuth service over the connector gateway.
func NewOAuthService(logger *slog.Logger, gateway *Gateway, clients map[string]OAuthClient) *OAuthService {
	return &OAuthService{
		gateway: gateway,
		clients: clients,
		logger:  logger,
	}
}

// BuildState encodes tenant and connector into an OAuth state token.
func BuildState(tenantID, connector string, onboarding bool) string {
	state := tenantID + ":" + connector
	if onboarding {
		state += ":onboarding"
	}

	return state + ":" + uuid.NewString()
}

// VerifyState checks that a state token was issued for the expected tenant
// and connector.
func VerifyState(state, tenantID, connector string) error {
	if !strings.HasPrefix(state, tenantID+":"+connector) {
		return ErrInvalidOAuthState
	}

	return nil
}

// Authorize builds the provider authorization URL for a tenant.
func (s *OAuthService) Authorize(ctx context.Context, tenantID, connector, redirectURI string, onboarding bool) (string, error) {
	config, err := s.oauthConfig(connector, redirectURI)
	if err != nil {
		return "", err
	}

	state := BuildState(tenantID, connector, onboarding)

	return config.AuthCodeURL(state, oauth2.AccessTypeOffline), nil
}

// Callback verifies the state, exchanges the code for tokens and stores the
// bundle through the normal installation protocol. Code single-use is
// enforced by the provider, not here, which keeps repeated callbacks with a
// spent code failing cleanly instead of corrupting state.
func (s *OAuthService) Callback(ctx context.Context, tenantID, connector, redirectURI, code, state string) (*models.ConnectorInstallation, error) {
	err := VerifyState(state, tenantID, connector)
	if err != nil {
		s.logger.WarnContext(ctx, "rejected oauth callback with mismatched state",
			"tenant_id", tenantID,
			"connector", connector)

		return nil, err
	}

	config, err := s.oauthConfig(connector, redirectURI)
	if err != nil {
		return nil, err
	}

	token, err := config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	bundle := map[string]string{
		"access_token": token.AccessToken,
		"token_type":   token.TokenType,
	}

	if token.RefreshToken != "" {
		bundle["refresh_token"] = token.RefreshToken
	}

	if !token.Expiry.IsZero() {
		bundle["token_expiry"] = token.Expiry.UTC().Format("2006-01-02T15:04:05Z07:00")
	}

	return s.gateway.Install(ctx, tenantID, connector, bundle)
}

// RefreshTenant refreshes the access token of every OAuth-backed
// installation the tenant owns that carries a refresh token. A failed
// refresh is logged and skipped so one revoked grant does not block the
// rest of the tenant's connectors.
func (s *OAuthService) RefreshTenant(ctx context.Context, tenantID string) (int, error) {
	installations, err := s.gateway.ListInstallations(ctx, tenantID)
	if err != nil {
		return 0, fmt.Errorf("failed to list installations: %w", err)
	}

	refreshed := 0

	for _, installation := range installations {
		if installation.CredentialsPath == "" {
			continue
		}

		definition, err := s.gateway.Registry().Get(installation.Connector)
		if err != nil || definition.OAuth == nil {
			continue
		}

		credentials, err := s.gateway.Resolve(ctx, installation)
		if err != nil {
			s.logger.ErrorContext(ctx, "skipping refresh, credentials unavailable",
				"tenant_id", tenantID,
				"connector", installation.Connector,
				"error", err)

			continue
		}

		refreshToken := credentials["refresh_token"]
		if refreshToken == "" {
			continue
		}

		config, err := s.oauthConfig(installation.Connector, "")
		if err != nil {
			continue
		}

		token, err := config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
		if err != nil {
			s.logger.WarnContext(ctx, "token refresh rejected by provider",
				"tenant_id", tenantID,
				"connector", installation.Connector,
				"error", err)

			// A revoked grant leaves the installation unusable until the
			// tenant re-authorizes; flag it rather than retrying forever.
			statusErr := s.gateway.SetInstallationStatus(ctx, installation.ID, models.InstallationStatusDisconnected)
			if statusErr != nil {
				s.logger.ErrorContext(ctx, "failed to flag disconnected installation",
					"installation_id", installation.ID, "error", statusErr)
			}

			continue
		}

		bundle := map[string]string{
			"access_token":  token.AccessToken,
			"token_type":    token.TokenType,
			"refresh_token": refreshToken,
		}

		if token.RefreshToken != "" {
			bundle["refresh_token"] = token.RefreshToken
		}

		if !token.Expiry.IsZero() {
			bundle["token_expiry"] = token.Expiry.UTC().Format("2006-01-02T15:04:05Z07:00")
		}

		err = s.gateway.RotateCredentials(ctx, tenantID, installation.Connector, bundle)
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to store refreshed token",
				"tenant_id", tenantID,
				"connector", installation.Connector,
				"error", err)

			continue
		}

		refreshed++
	}

	return refreshed, nil
}

func (s *OAuthService) oauthConfig(connector, redirectURI string) (*oauth2.Config, error) {
	definition, err := s.gateway.Registry().Get(connector)
	if err != nil {
		return nil, err
	}

	if definition.OAuth == nil {
		return nil, fmt.Errorf("%w: %s", ErrOAuthNotSupported, connector)
	}

	client := s.clients[connector]

	return &oauth2.Config{
		ClientID:     client.ClientID,
		ClientSecret: client.ClientSecret,
		Endpoint:     definition.OAuth.Endpoint(),
		RedirectURL:  redirectURI,
		Scopes:       definition.OAuth.Scopes,
	}, nil
}
