package secrets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	vault "github.com/hashicorp/vault/api"
)

// VaultStore keeps credential bundles in a HashiCorp Vault KV v2 mount.
// Every path gets versioned storage for free, so Rotate is a plain Put.
type VaultStore struct {
	client *vault.Client
	mount  string
	logger *slog.Logger
}

// NewVaultStore builds a vault-backed secret store. The store fails closed:
// a client without a token is rejected here rather than surfacing later as
// scattered per-call errors.
func NewVaultStore(logger *slog.Logger, address, token, mount string) (*VaultStore, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: vault token is empty", ErrBackendUnavailable)
	}

	config := vault.DefaultConfig()
	config.Address = address

	client, err := vault.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}

	client.SetToken(token)

	if mount == "" {
		mount = "secret"
	}

	return &VaultStore{
		client: client,
		mount:  mount,
		logger: logger,
	}, nil
}

// Store writes a bundle at a path. Custom metadata is attached when given.
func (s *VaultStore) Store(ctx context.Context, path string, data map[string]string, metadata map[string]string) error {
	payload := make(map[string]any, len(data))
	for key, value := range data {
		payload[key] = value
	}

	_, err := s.client.KVv2(s.mount).Put(ctx, path, payload)
	if err != nil {
		s.logger.ErrorContext(ctx, "vault store failed", "path", path, "error", err)

		return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}

	if len(metadata) > 0 {
		err = s.client.KVv2(s.mount).PutMetadata(ctx, path, vault.KVMetadataPutInput{
			CustomMetadata: toAnyMap(metadata),
		})
		if err != nil {
			s.logger.WarnContext(ctx, "vault metadata write failed", "path", path, "error", err)
		}
	}

	return nil
}

// Get returns the bundle at a path, or (nil, nil) when the path is absent.
func (s *VaultStore) Get(ctx context.Context, path string) (map[string]string, error) {
	secret, err := s.client.KVv2(s.mount).Get(ctx, path)
	if err != nil {
		if errors.Is(err, vault.ErrSecretNotFound) {
			return nil, nil
		}

		s.logger.ErrorContext(ctx, "vault get failed", "path", path, "error", err)

		return nil, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}

	data := make(map[string]string, len(secret.Data))

	for key, value := range secret.Data {
		text, ok := value.(string)
		if !ok {
			text = fmt.Sprintf("%v", value)
		}

		data[key] = text
	}

	return data, nil
}

// Delete removes the path and its version history.
func (s *VaultStore) Delete(ctx context.Context, path string) error {
	err := s.client.KVv2(s.mount).DeleteMetadata(ctx, path)
	if err != nil {
		if errors.Is(err, vault.ErrSecretNotFound) {
			return nil
		}

		s.logger.ErrorContext(ctx, "vault delete failed", "path", path, "error", err)

		return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}

	return nil
}

// List returns the full path of every leaf stored under a prefix. Vault's
// LIST reads one level and reports nested folders with a trailing slash, so
// folders are walked recursively to keep the output shaped like leaf paths.
func (s *VaultStore) List(ctx context.Context, prefix string) ([]string, error) {
	listPath := fmt.Sprintf("%s/metadata/%s", s.mount, prefix)

	secret, err := s.client.Logical().ListWithContext(ctx, listPath)
	if err != nil {
		s.logger.ErrorContext(ctx, "vault list failed", "prefix", prefix, "error", err)

		return nil, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}

	if secret == nil || secret.Data == nil {
		return nil, nil
	}

	keys, ok := secret.Data["keys"].([]any)
	if !ok {
		return nil, nil
	}

	paths := make([]string, 0, len(keys))

	for _, key := range keys {
		text, ok := key.(string)
		if !ok {
			continue
		}

		if strings.HasSuffix(text, "/") {
			nested, err := s.List(ctx, prefix+text)
			if err != nil {
				return nil, err
			}

			paths = append(paths, nested...)

			continue
		}

		paths = append(paths, prefix+text)
	}

	return paths, nil
}

// Rotate stores a new version of the bundle. KV v2 retains prior versions.
func (s *VaultStore) Rotate(ctx context.Context, path string, data map[string]string) error {
	return s.Store(ctx, path, data, nil)
}

func toAnyMap(in map[string]string) map[string]any {
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}

	return out
}
