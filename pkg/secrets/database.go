package secrets

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/crypto/hkdf"

	"github.com/relayforge/relayforge/pkg/persistence"
)

// DatabaseStore is the relational fallback backend. Bundles are encrypted
// with AES-256-GCM before they reach the blob repository; the key is derived
// per path from the deployment master key, so a leaked row from one tenant
// cannot decrypt another tenant's bundle.
type DatabaseStore struct {
	blobs     persistence.SecretBlobRepository
	masterKey []byte
	logger    *slog.Logger
}

const masterKeySize = 32

// NewDatabaseStore builds a database-backed secret store.
func NewDatabaseStore(logger *slog.Logger, blobs persistence.SecretBlobRepository, masterKey []byte) (*DatabaseStore, error) {
	if len(masterKey) < masterKeySize {
		return nil, fmt.Errorf("%w: master key must be at least %d bytes", ErrBackendUnavailable, masterKeySize)
	}

	return &DatabaseStore{
		blobs:     blobs,
		masterKey: masterKey,
		logger:    logger,
	}, nil
}

// Store encrypts and writes a bundle at a path as version 1, replacing any
// existing bundle. Metadata is folded into the encrypted envelope.
func (s *DatabaseStore) Store(ctx context.Context, path string, data map[string]string, metadata map[string]string) error {
	return s.put(ctx, path, data, metadata, 1)
}

// Get decrypts and returns the bundle at a path, or (nil, nil) when absent.
func (s *DatabaseStore) Get(ctx context.Context, path string) (map[string]string, error) {
	ciphertext, _, err := s.blobs.Get(ctx, path)
	if err != nil {
		if errors.Is(err, persistence.ErrSecretBlobNotFound) {
			return nil, nil
		}

		s.logger.ErrorContext(ctx, "secret blob read failed", "path", path, "error", err)

		return nil, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}

	plaintext, err := s.decrypt(path, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt secret at %s: %w", path, err)
	}

	var envelope secretEnvelope

	err = json.Unmarshal(plaintext, &envelope)
	if err != nil {
		return nil, fmt.Errorf("failed to decode secret envelope: %w", err)
	}

	return envelope.Data, nil
}

// Delete removes the bundle at a path.
func (s *DatabaseStore) Delete(ctx context.Context, path string) error {
	err := s.blobs.Delete(ctx, path)
	if err != nil {
		s.logger.ErrorContext(ctx, "secret blob delete failed", "path", path, "error", err)

		return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}

	return nil
}

// List returns every stored path under a prefix.
func (s *DatabaseStore) List(ctx context.Context, prefix string) ([]string, error) {
	paths, err := s.blobs.ListPaths(ctx, prefix)
	if err != nil {
		s.logger.ErrorContext(ctx, "secret blob list failed", "prefix", prefix, "error", err)

		return nil, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}

	return paths, nil
}

// Rotate writes a new version of the bundle, bumping the version column.
func (s *DatabaseStore) Rotate(ctx context.Context, path string, data map[string]string) error {
	_, version, err := s.blobs.Get(ctx, path)
	if err != nil && !errors.Is(err, persistence.ErrSecretBlobNotFound) {
		s.logger.ErrorContext(ctx, "secret blob read failed", "path", path, "error", err)

		return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}

	return s.put(ctx, path, data, nil, version+1)
}

type secretEnvelope struct {
	Data     map[string]string `json:"data"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func (s *DatabaseStore) put(ctx context.Context, path string, data, metadata map[string]string, version int) error {
	plaintext, err := json.Marshal(secretEnvelope{Data: data, Metadata: metadata})
	if err != nil {
		return fmt.Errorf("failed to encode secret envelope: %w", err)
	}

	ciphertext, err := s.encrypt(path, plaintext)
	if err != nil {
		return fmt.Errorf("failed to encrypt secret at %s: %w", path, err)
	}

	err = s.blobs.Upsert(ctx, path, ciphertext, version)
	if err != nil {
		s.logger.ErrorContext(ctx, "secret blob write failed", "path", path, "error", err)

		return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}

	return nil
}

// pathKey derives the per-path AES key via HKDF-SHA256 with the secret path
// as the info parameter.
func (s *DatabaseStore) pathKey(path string) ([]byte, error) {
	reader := hkdf.New(sha256.New, s.masterKey, nil, []byte(path))

	key := make([]byte, masterKeySize)

	_, err := io.ReadFull(reader, key)
	if err != nil {
		return nil, fmt.Errorf("failed to derive path key: %w", err)
	}

	return key, nil
}

func (s *DatabaseStore) encrypt(path string, plaintext []byte) ([]byte, error) {
	gcm, err := s.cipherFor(path)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())

	_, err = io.ReadFull(rand.Reader, nonce)
	if err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func (s *DatabaseStore) decrypt(path string, ciphertext []byte) ([]byte, error) {
	gcm, err := s.cipherFor(path)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext shorter than nonce")
	}

	nonce, sealed := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}

	return plaintext, nil
}

func (s *DatabaseStore) cipherFor(path string) (cipher.AEAD, error) {
	key, err := s.pathKey(path)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return gcm, nil
}
