package cmd

import (
	"os"
	"strings"

	"github.com/relayforge/relayforge/pkg/connectors"
)

// NewOAuthClients loads per-provider client credentials from the
// environment: OAUTH_<SLUG>_CLIENT_ID and OAUTH_<SLUG>_CLIENT_SECRET.
// Providers without configured credentials are absent from the map and
// authorization for them fails at request time.
func NewOAuthClients(registry *connectors.Registry) map[string]connectors.OAuthClient {
	clients := make(map[string]connectors.OAuthClient)

	for _, definition := range registry.All() {
		if definition.OAuth == nil {
			continue
		}

		prefix := "OAUTH_" + strings.ToUpper(definition.Slug)

		clientID := os.Getenv(prefix + "_CLIENT_ID")
		if clientID == "" {
			continue
		}

		clients[definition.Slug] = connectors.OAuthClient{
			ClientID:     clientID,
			ClientSecret: os.Getenv(prefix + "_CLIENT_SECRET"),
		}
	}

	return clients
}
