// Package cmd provides common initialization for the command-line binaries.
package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/relayforge/relayforge/pkg/persistence"
	"github.com/relayforge/relayforge/pkg/persistence/postgresql"
)

func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	if err != nil {
		panic(fmt.Errorf("failed to initialize persistence: %w", err))
	}

	return p
}
