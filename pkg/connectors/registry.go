package connectors

import (
	"sort"

	"golang.org/x/oauth2"

	"github.com/relayforge/relayforge/pkg/models"
)

// OAuthEndpoints describes a connector's OAuth provider. Client credentials
// are deployment configuration, not part of the definition.
type OAuthEndpoints struct {
	AuthURL  string
	TokenURL string
	Scopes   []string
}

// Endpoint returns the oauth2 endpoint for the provider.
func (o *OAuthEndpoints) Endpoint() oauth2.Endpoint {
	return oauth2.Endpoint{
		AuthURL:  o.AuthURL,
		TokenURL: o.TokenURL,
	}
}

// Definition declares a connector kind the gateway knows how to install.
type Definition struct {
	Slug            string
	Name            string
	Kind            models.ConnectorKind
	DefaultEndpoint string
	OAuth           *OAuthEndpoints
}

// Registry is the typed catalog of connector definitions.
type Registry struct {
	definitions map[string]*Definition
}

// NewRegistry creates an empty connector registry.
func NewRegistry() *Registry {
	return &Registry{definitions: make(map[string]*Definition)}
}

// Register adds a definition to the catalog.
func (r *Registry) Register(definition *Definition) {
	r.definitions[definition.Slug] = definition
}

// Get returns a definition by slug, or ErrConnectorNotFound.
func (r *Registry) Get(slug string) (*Definition, error) {
	definition, exists := r.definitions[slug]
	if !exists {
		return nil, ErrConnectorNotFound
	}

	return definition, nil
}

// All returns every registered definition, sorted by slug.
func (r *Registry) All() []*Definition {
	definitions := make([]*Definition, 0, len(r.definitions))
	for _, definition := range r.definitions {
		definitions = append(definitions, definition)
	}

	sort.Slice(definitions, func(i, j int) bool {
		return definitions[i].Slug < definitions[j].Slug
	})

	return definitions
}

// DefaultRegistry returns the registry with the built-in connector catalog.
func DefaultRegistry() *Registry {
	registry := NewRegistry()

	registry.Register(&Definition{
		Slug: "wordpress",
		Name: "WordPress",
		Kind: models.ConnectorKindCMS,
	})
	registry.Register(&Definition{
		Slug: "shopify",
		Name: "Shopify",
		Kind: models.ConnectorKindEcommerce,
		OAuth: &OAuthEndpoints{
			AuthURL:  "https://accounts.shopify.com/oauth/authorize",
			TokenURL: "https://accounts.shopify.com/oauth/token",
			Scopes:   []string{"read_products", "write_content"},
		},
	})
	registry.Register(&Definition{
		Slug: "hubspot",
		Name: "HubSpot",
		Kind: models.ConnectorKindCRM,
		OAuth: &OAuthEndpoints{
			AuthURL:  "https://app.hubspot.com/oauth/authorize",
			TokenURL: "https://api.hubapi.com/oauth/v1/token",
			Scopes:   []string{"crm.objects.contacts.read", "content"},
		},
	})
	registry.Register(&Definition{
		Slug: "mailchimp",
		Name: "Mailchimp",
		Kind: models.ConnectorKindMarketing,
		OAuth: &OAuthEndpoints{
			AuthURL:  "https://login.mailchimp.com/oauth2/authorize",
			TokenURL: "https://login.mailchimp.com/oauth2/token",
		},
	})
	registry.Register(&Definition{
		Slug: "openai",
		Name: "OpenAI",
		Kind: models.ConnectorKindLLM,
	})

	return registry
}
