package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/relayforge/relayforge/pkg/persistence"
)

// SecretBlobRepository stores encrypted secret bundles keyed by secret path.
// Plaintext never reaches this layer; encryption happens in pkg/secrets.
type SecretBlobRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSecretBlobRepository creates a new secret blob repository.
func NewSecretBlobRepository(db *sql.DB, logger *slog.Logger) *SecretBlobRepository {
	return &SecretBlobRepository{db: db, logger: logger}
}

// Upsert writes a blob at a path with an explicit version.
func (r *SecretBlobRepository) Upsert(ctx context.Context, path string, ciphertext []byte, version int) error {
	query := `
		INSERT INTO secret_blobs (path, ciphertext, version, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (path) DO UPDATE SET
			ciphertext = EXCLUDED.ciphertext,
			version = EXCLUDED.version,
			updated_at = NOW()
	`

	_, err := r.db.ExecContext(ctx, query, path, ciphertext, version)
	if err != nil {
		return fmt.Errorf("failed to upsert secret blob: %w", err)
	}

	return nil
}

// Get returns the blob and version stored at a path.
func (r *SecretBlobRepository) Get(ctx context.Context, path string) ([]byte, int, error) {
	var (
		ciphertext []byte
		version    int
	)

	query := `SELECT ciphertext, version FROM secret_blobs WHERE path = $1`

	err := r.db.QueryRowContext(ctx, query, path).Scan(&ciphertext, &version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, 0, persistence.ErrSecretBlobNotFound
		}

		return nil, 0, fmt.Errorf("failed to query secret blob: %w", err)
	}

	return ciphertext, version, nil
}

// Delete removes the blob at a path.
func (r *SecretBlobRepository) Delete(ctx context.Context, path string) error {
	query := `DELETE FROM secret_blobs WHERE path = $1`

	_, err := r.db.ExecContext(ctx, query, path)
	if err != nil {
		return fmt.Errorf("failed to delete secret blob: %w", err)
	}

	return nil
}

// ListPaths returns every stored path under a prefix.
func (r *SecretBlobRepository) ListPaths(ctx context.Context, prefix string) ([]string, error) {
	query := `SELECT path FROM secret_blobs WHERE path LIKE $1 || '%' ORDER BY path`

	rows, err := r.db.QueryContext(ctx, query, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to query secret paths: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	paths := make([]string, 0)

	for rows.Next() {
		var path string

		err := rows.Scan(&path)
		if err != nil {
			return nil, fmt.Errorf("failed to scan secret path: %w", err)
		}

		paths = append(paths, path)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating secret paths: %w", err)
	}

	return paths, nil
}
