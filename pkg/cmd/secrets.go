package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/relayforge/relayforge/pkg/persistence"
	"github.com/relayforge/relayforge/pkg/secrets"
)

// NewSecretStore selects the secret backend at deployment configuration
// time. The backend is fixed for the process lifetime; there is no runtime
// fallback between backends.
func NewSecretStore(logger *slog.Logger, backend string, p persistence.Persistence) secrets.Store {
	switch backend {
	case "vault":
		store, err := secrets.NewVaultStore(
			logger,
			os.Getenv("VAULT_ADDR"),
			os.Getenv("VAULT_TOKEN"),
			os.Getenv("VAULT_MOUNT"),
		)
		if err != nil {
			panic(fmt.Errorf("failed to initialize vault secret store: %w", err))
		}

		return store
	case "database":
		store, err := secrets.NewDatabaseStore(logger, p.SecretBlobRepository(), []byte(os.Getenv("SECRETS_MASTER_KEY")))
		if err != nil {
			panic(fmt.Errorf("failed to initialize database secret store: %w", err))
		}

		return store
	default:
		panic("Unsupported secrets backend: " + backend)
	}
}
