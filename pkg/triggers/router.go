// Package triggers routes inbound webhook events to the workflows that
// registered them and keeps schedule triggers bound to the cron runner.
package triggers

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/relayforge/relayforge/pkg/engine"
	"github.com/relayforge/relayforge/pkg/models"
	"github.com/relayforge/relayforge/pkg/otelhelper"
	"github.com/relayforge/relayforge/pkg/persistence"
)

const (
	DispatchProcessed = "processed"
	DispatchIgnored   = "ignored"
)

// DispatchResult reports what a webhook dispatch did.
type DispatchResult struct {
	Status     string   `json:"status"`
	Matches    int      `json:"matches"`
	Executions []string `json:"executions"`
}

// Router matches webhook paths to registered workflow triggers across all
// tenants and starts one execution per match.
type Router struct {
	workflows persistence.WorkflowRepository
	engine    engine.Engine
	tracer    trace.Tracer
	logger    *slog.Logger
}

func NewRouter(workflows persistence.WorkflowRepository, eng engine.Engine, tracer trace.Tracer, logger *slog.Logger) *Router {
	return &Router{
		workflows: workflows,
		engine:    eng,
		tracer:    tracer,
		logger:    logger.With("module", "triggers"),
	}
}

// RegisterTriggers validates and atomically replaces a workflow's triggers.
func (r *Router) RegisterTriggers(ctx context.Context, workflowID string, triggers []models.WorkflowTrigger) error {
	for _, trigger := range triggers {
		switch trigger.Type {
		case models.TriggerTypeWebhook:
			if trigger.Path == "" {
				return fmt.Errorf("webhook trigger requires a path")
			}
		case models.TriggerTypeSchedule:
			if trigger.Cron == "" {
				return fmt.Errorf("schedule trigger requires a cron spec")
			}
		default:
			return fmt.Errorf("unknown trigger type: %s", trigger.Type)
		}
	}

	return r.workflows.ReplaceTriggers(ctx, workflowID, normalizeTriggers(triggers))
}

// Dispatch starts every workflow whose webhook trigger matches the path and
// whose secret, if the trigger carries one, matches the provided key. A
// failure starting one workflow never blocks the others.
func (r *Router) Dispatch(ctx context.Context, path, secret string, payload map[string]any) DispatchResult {
	path = NormalizePath(path)

	ctx, span := otelhelper.StartSpan(ctx, r.tracer, "triggers.dispatch",
		attribute.String(otelhelper.TriggerPathKey, path))
	defer span.End()

	matches, err := r.workflows.FindByWebhookPath(ctx, path)
	if err != nil {
		otelhelper.SetError(span, err)
		r.logger.ErrorContext(ctx, "Failed to look up webhook triggers", "path", path, "error", err)

		return DispatchResult{Status: DispatchIgnored}
	}

	result := DispatchResult{Status: DispatchIgnored, Executions: []string{}}

	for _, match := range matches {
		if !secretMatches(match.Trigger, secret) {
			r.logger.DebugContext(ctx, "Webhook secret mismatch, skipping workflow",
				"path", path, "workflow_id", match.Workflow.ID)

			continue
		}

		result.Matches++

		input := map[string]any{
			"source":  "webhook",
			"path":    path,
			"payload": payload,
		}

		// Workflow metadata carries standing definition input (topic, url,
		// job parameters), merged the same way scheduled fires merge it.
		for key, value := range match.Workflow.Metadata {
			if _, exists := input[key]; !exists {
				input[key] = value
			}
		}

		runID, err := r.engine.Start(ctx, match.Workflow, input)
		if err != nil {
			r.logger.ErrorContext(ctx, "Failed to start workflow from webhook",
				"path", path, "workflow_id", match.Workflow.ID, "error", err)

			continue
		}

		result.Executions = append(result.Executions, runID)
	}

	if result.Matches > 0 {
		result.Status = DispatchProcessed
	}

	return result
}

// NormalizePath ensures a single leading slash and no trailing slash, so
// "hook", "/hook" and "/hook/" address the same trigger.
func NormalizePath(path string) string {
	path = "/" + strings.Trim(path, "/")

	return path
}

// secretMatches compares in constant time. A trigger without a secret
// accepts any key; a trigger with one requires an exact match.
func secretMatches(trigger models.WorkflowTrigger, secret string) bool {
	if trigger.SecretKey == "" {
		return true
	}

	return subtle.ConstantTimeCompare([]byte(trigger.SecretKey), []byte(secret)) == 1
}

func normalizeTriggers(triggers []models.WorkflowTrigger) []models.WorkflowTrigger {
	normalized := make([]models.WorkflowTrigger, len(triggers))

	for i, trigger := range triggers {
		if trigger.Type == models.TriggerTypeWebhook {
			trigger.Path = NormalizePath(trigger.Path)
		}

		normalized[i] = trigger
	}

	return normalized
}
