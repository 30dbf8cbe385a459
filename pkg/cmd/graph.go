package cmd

import (
	"fmt"
	"log/slog"

	"github.com/relayforge/relayforge/pkg/graph"
)

func NewGraphStore(logger *slog.Logger, redisURL string) *graph.Store {
	store, err := graph.NewStore(logger, redisURL)
	if err != nil {
		panic(fmt.Errorf("failed to initialize graph store: %w", err))
	}

	return store
}
