// Package graph records tool-interaction outcomes as knowledge-graph edges
// used for future tool-selection ranking.
package graph

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Edge is one recorded tool interaction: source entity, tool server, outcome.
type Edge struct {
	SourceID   string    `json:"source_id"`
	ToolServer string    `json:"tool_server"`
	Success    bool      `json:"success"`
	Timestamp  time.Time `json:"timestamp"`
}

// Store keeps edges in Redis: a per-source sorted set ranks tool servers by
// success score, and per-edge counters keep raw outcome totals.
type Store struct {
	client *redis.Client
	logger *slog.Logger
}

// NewStore creates a Redis-backed knowledge graph store.
func NewStore(logger *slog.Logger, redisURL string) (*Store, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	return &Store{
		client: redis.NewClient(options),
		logger: logger,
	}, nil
}

// NewStoreWithClient wraps an existing Redis client; used by tests.
func NewStoreWithClient(logger *slog.Logger, client *redis.Client) *Store {
	return &Store{client: client, logger: logger}
}

// RecordEdge stores one tool interaction outcome. Successes add to the tool's
// ranking score, failures subtract, so frequently failing servers sink.
func (s *Store) RecordEdge(ctx context.Context, edge Edge) error {
	delta := 1.0
	outcome := "success"

	if !edge.Success {
		delta = -1.0
		outcome = "failure"
	}

	pipe := s.client.TxPipeline()
	pipe.ZIncrBy(ctx, rankingKey(edge.SourceID), delta, edge.ToolServer)
	pipe.HIncrBy(ctx, edgeKey(edge.SourceID, edge.ToolServer), outcome, 1)
	pipe.HSet(ctx, edgeKey(edge.SourceID, edge.ToolServer), "last_seen", edge.Timestamp.UTC().Format(time.RFC3339))

	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to record graph edge: %w", err)
	}

	return nil
}

// TopTools returns the highest-ranked tool servers for a source entity.
func (s *Store) TopTools(ctx context.Context, sourceID string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 5
	}

	tools, err := s.client.ZRevRange(ctx, rankingKey(sourceID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query tool ranking: %w", err)
	}

	return tools, nil
}

// Reindex rebuilds every ranking sorted set from the raw edge counters.
// Rankings drift when RecordEdge increments land while a ranking key was
// evicted or restored from an older snapshot; reindexing makes the score
// equal success minus failure again. Returns the number of edges rebuilt.
func (s *Store) Reindex(ctx context.Context) (int, error) {
	var cursor uint64

	rebuilt := 0

	for {
		keys, next, err := s.client.Scan(ctx, cursor, "graph:edge:*", 100).Result()
		if err != nil {
			return rebuilt, fmt.Errorf("failed to scan graph edges: %w", err)
		}

		for _, key := range keys {
			rest := strings.TrimPrefix(key, "graph:edge:")

			separator := strings.LastIndex(rest, ":")
			if separator < 0 {
				continue
			}

			sourceID, toolServer := rest[:separator], rest[separator+1:]

			counts, err := s.client.HGetAll(ctx, key).Result()
			if err != nil {
				s.logger.ErrorContext(ctx, "Failed to read edge counters", "key", key, "error", err)

				continue
			}

			success, _ := strconv.ParseInt(counts["success"], 10, 64)
			failure, _ := strconv.ParseInt(counts["failure"], 10, 64)

			err = s.client.ZAdd(ctx, rankingKey(sourceID), redis.Z{
				Score:  float64(success - failure),
				Member: toolServer,
			}).Err()
			if err != nil {
				s.logger.ErrorContext(ctx, "Failed to rebuild ranking entry", "key", key, "error", err)

				continue
			}

			rebuilt++
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return rebuilt, nil
}

// Close releases the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

func rankingKey(sourceID string) string {
	return "graph:ranking:" + sourceID
}

func edgeKey(sourceID, toolServer string) string {
	return "graph:edge:" + sourceID + ":" + toolServer
}
